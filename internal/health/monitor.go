package health

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nugget/message-agent-host/internal/channel"
)

const (
	backoffBase    = 2 * time.Second
	backoffMax     = 120 * time.Second
	defaultMaxFail = 10
)

// Monitor is the Channel Monitor: on a fixed cadence it inspects every
// registered channel and drives reconnection with exponential backoff.
type Monitor struct {
	channels    *channel.Manager
	interval    time.Duration
	maxAttempts int
	logger      *slog.Logger

	mu       sync.Mutex
	failures map[string]int

	done chan struct{}
}

// NewMonitor creates a Channel Monitor. checkInterval defaults to 30s,
// maxAttempts to 10.
func NewMonitor(channels *channel.Manager, checkInterval time.Duration, maxAttempts int, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	if checkInterval <= 0 {
		checkInterval = 30 * time.Second
	}
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxFail
	}
	return &Monitor{
		channels:    channels,
		interval:    checkInterval,
		maxAttempts: maxAttempts,
		logger:      logger.With("component", "channel_monitor"),
		failures:    make(map[string]int),
		done:        make(chan struct{}),
	}
}

// Start launches the monitor's background loop.
func (m *Monitor) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-m.done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.checkAll(ctx)
			}
		}
	}()
}

// Stop halts the monitor's background loop.
func (m *Monitor) Stop() {
	close(m.done)
}

func (m *Monitor) checkAll(ctx context.Context) {
	if m.channels == nil {
		return
	}
	for _, id := range m.channels.IDs() {
		ch, ok := m.channels.Get(id)
		if !ok {
			continue
		}
		m.check(ctx, ch)
	}
}

func (m *Monitor) check(ctx context.Context, ch channel.Channel) {
	status := ch.GetStatus()

	if status.Status == channel.StatusConnected {
		m.resetFailures(ch.ID())
		return
	}
	if status.Status == channel.StatusConnecting {
		return
	}

	failures := m.failureCount(ch.ID())
	if failures >= m.maxAttempts {
		m.logger.Warn("channel exceeded max reconnect attempts, cooling down", "channel", ch.ID(), "attempts", failures)
		m.resetFailures(ch.ID())
		return
	}

	delay := backoff(failures)
	m.logger.Info("channel unhealthy, scheduling reconnect", "channel", ch.ID(), "status", status.Status, "delay", delay)

	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return
	case <-m.done:
		return
	}

	ch.Disconnect(ctx)
	if err := ch.Connect(ctx); err != nil {
		m.incrementFailures(ch.ID())
		m.logger.Warn("channel reconnect failed", "channel", ch.ID(), "error", err)
		return
	}
	m.resetFailures(ch.ID())
}

func backoff(failures int) time.Duration {
	d := backoffBase * time.Duration(1<<uint(failures))
	if d > backoffMax || d <= 0 {
		return backoffMax
	}
	return d
}

func (m *Monitor) failureCount(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failures[id]
}

func (m *Monitor) incrementFailures(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[id]++
}

func (m *Monitor) resetFailures(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.failures, id)
}
