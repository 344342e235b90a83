package health

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nugget/message-agent-host/internal/channel"
	"github.com/nugget/message-agent-host/internal/journal"
	"github.com/nugget/message-agent-host/internal/message"
	"github.com/nugget/message-agent-host/internal/taskstore"
)

// RecoverTasks implements startup Task Recovery: every file under
// tasks/active/ is dispatched according to its recorded phase, then
// force-completed. A single task's failure is logged and never aborts
// recovery of the rest.
func RecoverTasks(tasks *taskstore.Store, channels *channel.Manager, j *journal.Journal, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	active, err := tasks.ListActive()
	if err != nil {
		logger.Error("list active tasks failed", "error", err)
		return
	}

	ctx := context.Background()
	for _, t := range active {
		action := recoverOne(ctx, t, channels, logger)
		j.Record(t.ChannelID, t.ConversationID, t.ID, journal.EventTaskFailed, map[string]any{
			"recovery": true,
			"phase":    string(t.Phase),
			"action":   action,
		})
		if err := tasks.Fail(t.ID, fmt.Sprintf("recovered after interruption in phase %s", t.Phase)); err != nil {
			logger.Error("force-complete recovered task failed", "task", t.ID, "error", err)
		}
	}
}

func recoverOne(ctx context.Context, t taskstore.Task, channels *channel.Manager, logger *slog.Logger) string {
	switch t.Phase {
	case taskstore.PhaseReceived, taskstore.PhaseHistoryWritten, taskstore.PhaseLLMCalling:
		send(ctx, channels, t, "⚠ The assistant was interrupted before responding. Please resend your message.", logger)
		return "asked_to_resend"

	case taskstore.PhaseVerifying:
		if t.PendingResponse == "" {
			send(ctx, channels, t, "⚠ The assistant was interrupted before responding. Please resend your message.", logger)
			return "asked_to_resend"
		}
		send(ctx, channels, t, "[Recovered after interruption — response may not have been fully verified]\n\n"+t.PendingResponse, logger)
		return "sent_unverified"

	case taskstore.PhaseResponding:
		if t.PendingResponse == "" {
			return "stale"
		}
		send(ctx, channels, t, t.PendingResponse, logger)
		return "sent_pending"

	default: // completed, failed
		return "stale"
	}
}

func send(ctx context.Context, channels *channel.Manager, t taskstore.Task, text string, logger *slog.Logger) {
	if channels == nil {
		return
	}
	out := message.OutgoingMessage{Text: text}
	if err := channels.Send(ctx, t.ChannelID, t.ConversationID, out); err != nil {
		logger.Warn("recovery send failed", "task", t.ID, "error", err)
	}
}
