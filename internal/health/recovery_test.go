package health_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nugget/message-agent-host/internal/channel"
	"github.com/nugget/message-agent-host/internal/health"
	"github.com/nugget/message-agent-host/internal/journal"
	"github.com/nugget/message-agent-host/internal/message"
	"github.com/nugget/message-agent-host/internal/taskstore"
)

type recordingChannel struct {
	mu   sync.Mutex
	id   string
	sent []string
}

func (c *recordingChannel) ID() string   { return c.id }
func (c *recordingChannel) Type() string { return "mock" }
func (c *recordingChannel) Connect(ctx context.Context) error    { return nil }
func (c *recordingChannel) Disconnect(ctx context.Context) error { return nil }
func (c *recordingChannel) OnMessage(h channel.Handler)           {}
func (c *recordingChannel) SendTypingIndicator(ctx context.Context, conversationID string) error {
	return nil
}
func (c *recordingChannel) GetStatus() channel.Info { return channel.Info{ID: c.id, Status: channel.StatusConnected} }
func (c *recordingChannel) SendMessage(ctx context.Context, conversationID string, out message.OutgoingMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, out.Text)
	return nil
}

func TestRecoverTasks_VerifyingSendsUnverifiedDisclaimer(t *testing.T) {
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ts := taskstore.New(filepath.Join(dir, "tasks"), logger)
	_, err := ts.Persist("task1", message.NormalizedMessage{ChannelID: "c", ConversationID: "conv"})
	if err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if err := ts.UpdatePhase("task1", taskstore.PhaseVerifying, "X", ""); err != nil {
		t.Fatalf("UpdatePhase: %v", err)
	}

	ch := &recordingChannel{id: "c"}
	chMgr := channel.NewManager(logger)
	chMgr.Register(ch)

	j := journal.New(filepath.Join(dir, "journal"), false, logger)

	health.RecoverTasks(ts, chMgr, j, logger)

	ch.mu.Lock()
	defer ch.mu.Unlock()
	if len(ch.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(ch.sent))
	}
	want := "[Recovered after interruption — response may not have been fully verified]\n\nX"
	if ch.sent[0] != want {
		t.Fatalf("sent = %q, want %q", ch.sent[0], want)
	}

	active, err := ts.ListActive()
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("active tasks remain: %d, want 0", len(active))
	}
}

func TestNotifyRecovery_RemovesFileAndSendsNotice(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "recovery-event.json")
	raw, _ := json.Marshal(health.RecoveryEvent{
		Timestamp:    time.Now().Add(-90 * time.Second).UTC().Format(time.RFC3339),
		Reason:       "heartbeat timeout",
		RestartCount: 2,
		WatchdogPID:  123,
	})
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	ch := &recordingChannel{id: "c"}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	chMgr := channel.NewManager(logger)
	chMgr.Register(ch)

	health.NotifyRecovery(context.Background(), path, []string{"c:conv1"}, chMgr, logger)

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("recovery event file still exists after notify")
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if len(ch.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(ch.sent))
	}
	if !strings.Contains(ch.sent[0], "heartbeat timeout") {
		t.Fatalf("notice = %q, missing reason", ch.sent[0])
	}
}

func TestNotifyRecovery_MalformedFileIsRemoved(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "recovery-event.json")
	if err := os.WriteFile(path, []byte("not json"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	chMgr := channel.NewManager(logger)

	health.NotifyRecovery(context.Background(), path, nil, chMgr, logger)

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("malformed recovery event file still exists")
	}
}
