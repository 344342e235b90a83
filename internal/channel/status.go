package channel

import "sync"

// StatusTracker is embeddable by Channel implementations to provide
// goroutine-safe status bookkeeping without repeating the mutex dance.
type StatusTracker struct {
	mu     sync.RWMutex
	id     string
	typ    string
	status Status
	err    string
}

// NewStatusTracker creates a tracker starting in StatusDisconnected.
func NewStatusTracker(id, typ string) *StatusTracker {
	return &StatusTracker{id: id, typ: typ, status: StatusDisconnected}
}

func (s *StatusTracker) ID() string   { return s.id }
func (s *StatusTracker) Type() string { return s.typ }

// Set records a new status, clearing the error unless transitioning to
// StatusError.
func (s *StatusTracker) Set(status Status, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
	if err != nil {
		s.err = err.Error()
	} else if status != StatusError {
		s.err = ""
	}
}

// GetStatus returns the current snapshot.
func (s *StatusTracker) GetStatus() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Info{ID: s.id, Type: s.typ, Status: s.status, Error: s.err}
}
