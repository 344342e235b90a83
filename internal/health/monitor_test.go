package health

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/nugget/message-agent-host/internal/channel"
	"github.com/nugget/message-agent-host/internal/message"
)

func TestBackoff_MatchesScenario(t *testing.T) {
	tests := []struct {
		failures int
		want     time.Duration
	}{
		{0, 2 * time.Second},
		{1, 4 * time.Second},
		{2, 8 * time.Second},
		{6, backoffMax}, // 2s*2^6 = 128s > 120s cap
		{30, backoffMax},
	}
	for _, tt := range tests {
		if got := backoff(tt.failures); got != tt.want {
			t.Errorf("backoff(%d) = %v, want %v", tt.failures, got, tt.want)
		}
	}
}

type flakyChannel struct {
	mu          sync.Mutex
	id          string
	status      channel.Status
	connectErrs int
}

func (c *flakyChannel) ID() string   { return c.id }
func (c *flakyChannel) Type() string { return "mock" }
func (c *flakyChannel) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connectErrs > 0 {
		c.connectErrs--
		return errFlaky
	}
	c.status = channel.StatusConnected
	return nil
}
func (c *flakyChannel) Disconnect(ctx context.Context) error { return nil }
func (c *flakyChannel) OnMessage(h channel.Handler)           {}
func (c *flakyChannel) SendTypingIndicator(ctx context.Context, conversationID string) error {
	return nil
}
func (c *flakyChannel) SendMessage(ctx context.Context, conversationID string, out message.OutgoingMessage) error {
	return nil
}
func (c *flakyChannel) GetStatus() channel.Info {
	c.mu.Lock()
	defer c.mu.Unlock()
	return channel.Info{ID: c.id, Status: c.status}
}

var errFlaky = &flakyErr{}

type flakyErr struct{}

func (*flakyErr) Error() string { return "flaky connect failure" }

func TestMonitor_ResetsFailureCounterOnSuccess(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ch := &flakyChannel{id: "c1", status: channel.StatusError, connectErrs: 0}
	chMgr := channel.NewManager(logger)
	chMgr.Register(ch)

	m := NewMonitor(chMgr, time.Hour, 10, logger)
	m.check(context.Background(), ch)

	if got := m.failureCount("c1"); got != 0 {
		t.Fatalf("failure count = %d, want 0 after successful reconnect", got)
	}
}
