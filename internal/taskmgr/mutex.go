package taskmgr

import "sync"

// ConversationMutex provides per-key mutual exclusion with FIFO queueing.
// Different keys are fully independent; acquisitions for the same key
// queue behind a channel-based ticket so release is always safe to call
// even from a different goroutine than the one that acquired it.
type ConversationMutex struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

// NewConversationMutex creates an empty mutex table.
func NewConversationMutex() *ConversationMutex {
	return &ConversationMutex{locks: make(map[string]chan struct{})}
}

// Release is returned by Acquire; calling it more than once is a no-op.
type Release struct {
	once sync.Once
	ch   chan struct{}
}

// Unlock releases the held key. Idempotent and safe on every code path,
// including error paths — callers should defer it immediately after a
// successful Acquire.
func (r *Release) Unlock() {
	r.once.Do(func() {
		r.ch <- struct{}{}
	})
}

// Acquire blocks until the caller holds exclusive access to key, then
// returns a Release handle. Concurrent acquisitions for the same key
// are granted in FIFO order because each waiter blocks on receiving
// from the same buffered channel, which Go's channel implementation
// serves in arrival order.
func (m *ConversationMutex) Acquire(key string) *Release {
	m.mu.Lock()
	ch, ok := m.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		ch <- struct{}{} // start unlocked
		m.locks[key] = ch
	}
	m.mu.Unlock()

	<-ch
	return &Release{ch: ch}
}
