package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/nugget/message-agent-host/internal/channel"
	"github.com/nugget/message-agent-host/internal/message"
)

// RecoveryEvent is written by the watchdog before spawning a fresh
// host generation and consumed once, here, on startup.
type RecoveryEvent struct {
	Timestamp    string `json:"timestamp"`
	Reason       string `json:"reason"`
	RestartCount int    `json:"restartCount"`
	WatchdogPID  int    `json:"watchdogPid"`
}

// NotifyRecovery reads path (the recovery-event file), formats a
// user-visible restart notice, sends it to every "channelId:conversationId"
// target, and unlinks the file. A malformed file is removed without
// sending anything, to avoid a poison-pill loop on every future start.
func NotifyRecovery(ctx context.Context, path string, targets []string, channels *channel.Manager, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("recovery event unreadable", "path", path, "error", err)
		}
		return
	}
	defer os.Remove(path)

	var event RecoveryEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		logger.Warn("recovery event malformed, discarding", "path", path, "error", err)
		return
	}

	notice := formatRecoveryNotice(event)
	for _, target := range targets {
		channelID, conversationID, ok := strings.Cut(target, ":")
		if !ok {
			logger.Warn("recovery notify target malformed, skipping", "target", target)
			continue
		}
		if err := channels.Send(ctx, channelID, conversationID, message.OutgoingMessage{Text: notice}); err != nil {
			logger.Warn("recovery notify failed", "target", target, "error", err)
		}
	}
}

func formatRecoveryNotice(event RecoveryEvent) string {
	downtime := "unknown"
	if ts, err := time.Parse(time.RFC3339, event.Timestamp); err == nil {
		downtime = time.Since(ts).Round(time.Second).String()
	}
	return fmt.Sprintf(
		"⚠ The assistant host restarted.\nReason: %s\nRestart #%d\nDowntime: %s\nRecovered at: %s",
		event.Reason, event.RestartCount, downtime, time.Now().UTC().Format(time.RFC3339),
	)
}
