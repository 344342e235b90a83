// Package taskmgr implements the Task Manager: the submission surface
// for background pipeline work, typing-indicator keepalive, and the
// Conversation Mutex that serializes history access per conversation.
package taskmgr

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nugget/message-agent-host/internal/channel"
	"github.com/nugget/message-agent-host/internal/message"
	"github.com/nugget/message-agent-host/internal/taskstore"
)

// TypingCadence is the reference interval between typing-indicator
// emissions, suitable for a 5s platform timeout.
const TypingCadence = 4 * time.Second

// Pipeline runs the full per-message pipeline for a submitted task. It
// receives the task id so it can persist phase transitions.
type Pipeline func(ctx context.Context, taskID string, msg message.NormalizedMessage)

// activeTask is the in-memory ConversationTask counterpart of a
// PersistedTask.
type activeTask struct {
	id             string
	channelID      string
	conversationID string
}

// Manager is the Task Manager.
type Manager struct {
	store    *taskstore.Store
	channels *channel.Manager
	logger   *slog.Logger

	mu     sync.Mutex
	active map[string]*activeTask // by task id
	typing map[string]*typingTimer

	convKey func(channelID, conversationID string) string
}

type typingTimer struct {
	cancel context.CancelFunc
	refs   int
}

// New creates a Task Manager.
func New(store *taskstore.Store, channels *channel.Manager, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:    store,
		channels: channels,
		logger:   logger.With("component", "taskmgr"),
		active:   make(map[string]*activeTask),
		typing:   make(map[string]*typingTimer),
		convKey:  func(c, v string) string { return c + ":" + v },
	}
}

// Submit allocates a task id, persists the initial task record, starts
// (or extends) the typing keepalive for the conversation, and launches
// pipeline concurrently. Submit returns immediately; the pipeline
// completes asynchronously via Complete/Fail.
func (m *Manager) Submit(ctx context.Context, msg message.NormalizedMessage, pipeline Pipeline) string {
	taskID := uuid.NewString()

	if _, err := m.store.Persist(taskID, msg); err != nil {
		m.logger.Error("failed to persist task", "task", taskID, "error", err)
	}

	m.mu.Lock()
	m.active[taskID] = &activeTask{id: taskID, channelID: msg.ChannelID, conversationID: msg.ConversationID}
	m.mu.Unlock()

	m.startTyping(msg.ChannelID, msg.ConversationID)

	go func() {
		defer m.finish(taskID, msg.ChannelID, msg.ConversationID)
		pipeline(ctx, taskID, msg)
	}()

	return taskID
}

// finish removes the in-memory entry and releases one typing reference.
// It does not itself mark the task complete/failed in the store — the
// pipeline does that explicitly so it can record phase-specific outcomes
// first (e.g. a sent response vs. a failure reply).
func (m *Manager) finish(taskID, channelID, conversationID string) {
	m.mu.Lock()
	delete(m.active, taskID)
	m.mu.Unlock()

	m.stopTyping(channelID, conversationID)
}

// Fail marks a task failed in the store and best-effort sends the
// user-facing error reply via the originating channel.
func (m *Manager) Fail(ctx context.Context, taskID, channelID, conversationID string, cause error) {
	if err := m.store.Fail(taskID, cause.Error()); err != nil {
		m.logger.Error("failed to persist task failure", "task", taskID, "error", err)
	}
	reply := message.OutgoingMessage{Text: "⚠ An error occurred processing your message: " + cause.Error()}
	if err := m.channels.Send(ctx, channelID, conversationID, reply); err != nil {
		m.logger.Warn("failed to deliver error reply", "task", taskID, "error", err)
	}
}

// startTyping begins (or adds a reference to) the periodic typing
// emitter for (channelID, conversationID).
func (m *Manager) startTyping(channelID, conversationID string) {
	key := m.convKey(channelID, conversationID)

	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.typing[key]; ok {
		t.refs++
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.typing[key] = &typingTimer{cancel: cancel, refs: 1}

	go func() {
		ticker := time.NewTicker(TypingCadence)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if ch, ok := m.channels.Get(channelID); ok {
					_ = ch.SendTypingIndicator(ctx, conversationID) // errors swallowed
				}
			}
		}
	}()
}

// stopTyping releases one reference; the timer is cancelled only when
// no other active task targets the same conversation.
func (m *Manager) stopTyping(channelID, conversationID string) {
	key := m.convKey(channelID, conversationID)

	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.typing[key]
	if !ok {
		return
	}
	t.refs--
	if t.refs <= 0 {
		t.cancel()
		delete(m.typing, key)
	}
}

// ActiveCount returns the number of in-flight tasks, for the dashboard.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}
