// Package channel defines the uniform transport contract every chat
// platform adapter implements, and the Manager that owns them.
package channel

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nugget/message-agent-host/internal/message"
)

// Status is a channel's connection state.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusError        Status = "error"
)

// Info is the externally-visible snapshot of a channel's state.
type Info struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Handler is the single process-wide inbound message callback. Every
// channel is registered with the same handler by the Manager at startup.
type Handler func(ctx context.Context, msg message.NormalizedMessage)

// Channel is a pluggable transport adapter. Implementations must make
// Connect non-throwing: failures are recorded via the status returned
// from GetStatus, not propagated as panics or fatal errors.
type Channel interface {
	ID() string
	Type() string

	// Connect moves the channel through connecting -> connected, or
	// -> error with a reason recorded in GetStatus.
	Connect(ctx context.Context) error

	// Disconnect tears down the channel's connection. Best-effort.
	Disconnect(ctx context.Context) error

	// OnMessage registers the single inbound handler. Called once by
	// the Manager before Connect.
	OnMessage(h Handler)

	// SendMessage delivers an outbound message to the given conversation.
	SendMessage(ctx context.Context, conversationID string, out message.OutgoingMessage) error

	// SendTypingIndicator emits a platform typing/presence signal.
	// Errors are swallowed by callers; implementations may log them.
	SendTypingIndicator(ctx context.Context, conversationID string) error

	GetStatus() Info
}

// Manager owns the set of configured channels keyed by id.
type Manager struct {
	mu       sync.RWMutex
	channels map[string]Channel
	logger   *slog.Logger
}

// NewManager creates an empty channel manager.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		channels: make(map[string]Channel),
		logger:   logger,
	}
}

// Register adds a channel to the manager. Must be called before
// ConnectAll/RegisterHandler.
func (m *Manager) Register(ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[ch.ID()] = ch
}

// Get returns the channel with the given id, if registered.
func (m *Manager) Get(id string) (Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.channels[id]
	return ch, ok
}

// RegisterHandler installs the single shared inbound handler on every
// registered channel.
func (m *Manager) RegisterHandler(h Handler) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, ch := range m.channels {
		ch.OnMessage(h)
	}
}

// ConnectAll connects every channel. A failure on one channel is logged
// and does not prevent the others from connecting.
func (m *Manager) ConnectAll(ctx context.Context) {
	m.mu.RLock()
	channels := make([]Channel, 0, len(m.channels))
	for _, ch := range m.channels {
		channels = append(channels, ch)
	}
	m.mu.RUnlock()

	for _, ch := range channels {
		if err := ch.Connect(ctx); err != nil {
			m.logger.Warn("channel connect failed", "channel", ch.ID(), "error", err)
		}
	}
}

// DisconnectAll disconnects every channel, best-effort, logging per-channel
// failures without aborting.
func (m *Manager) DisconnectAll(ctx context.Context) {
	m.mu.RLock()
	channels := make([]Channel, 0, len(m.channels))
	for _, ch := range m.channels {
		channels = append(channels, ch)
	}
	m.mu.RUnlock()

	for _, ch := range channels {
		if err := ch.Disconnect(ctx); err != nil {
			m.logger.Warn("channel disconnect failed", "channel", ch.ID(), "error", err)
		}
	}
}

// Statuses returns the aggregated status of every registered channel.
func (m *Manager) Statuses() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Info, 0, len(m.channels))
	for _, ch := range m.channels {
		out = append(out, ch.GetStatus())
	}
	return out
}

// Send routes an outbound message through the named channel.
func (m *Manager) Send(ctx context.Context, channelID, conversationID string, out message.OutgoingMessage) error {
	ch, ok := m.Get(channelID)
	if !ok {
		return fmt.Errorf("channel %q not registered", channelID)
	}
	return ch.SendMessage(ctx, conversationID, out)
}

// IDs returns all registered channel ids.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.channels))
	for id := range m.channels {
		ids = append(ids, id)
	}
	return ids
}
