package registry

import (
	"log/slog"
	"sync"
)

// Registry maps users to their live sessions.
type Registry interface {
	Register(s Session)
	Unregister(s Session)
	// Sessions returns a snapshot of the user's sessions.
	Sessions(userID string) []Session
	// Count returns the number of registered sessions.
	Count() int
	// UserCount returns the number of users with at least one session.
	UserCount() int
}

// Observer is notified after every change in the number of sessions.
type Observer func(sessions int)

// InMemoryRegistry is a Registry guarded by a single RWMutex. Sessions of the
// same user are keyed by session ID, so registering a session twice is a
// no-op.
type InMemoryRegistry struct {
	mu       sync.RWMutex
	byUser   map[string]map[string]Session
	total    int
	logger   *slog.Logger
	observer Observer
}

var _ Registry = (*InMemoryRegistry)(nil)

// NewInMemoryRegistry creates an empty registry. observer may be nil.
func NewInMemoryRegistry(logger *slog.Logger, observer Observer) *InMemoryRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &InMemoryRegistry{
		byUser:   make(map[string]map[string]Session),
		logger:   logger.With("component", "session_registry"),
		observer: observer,
	}
}

// Register adds s to its user's session set.
func (r *InMemoryRegistry) Register(s Session) {
	r.mu.Lock()
	sessions, ok := r.byUser[s.UserID()]
	if !ok {
		sessions = make(map[string]Session)
		r.byUser[s.UserID()] = sessions
	}
	_, existed := sessions[s.ID()]
	sessions[s.ID()] = s
	if !existed {
		r.total++
	}
	userSessions, total := len(sessions), r.total
	r.mu.Unlock()

	if existed {
		return
	}
	r.logger.Info("session registered",
		"session_id", s.ID(),
		"user_id", s.UserID(),
		"user_sessions", userSessions)
	r.notify(total)
}

// Unregister removes s. Removing an unknown session is a no-op.
func (r *InMemoryRegistry) Unregister(s Session) {
	r.mu.Lock()
	sessions, ok := r.byUser[s.UserID()]
	if !ok {
		r.mu.Unlock()
		return
	}
	if _, found := sessions[s.ID()]; !found {
		r.mu.Unlock()
		return
	}
	delete(sessions, s.ID())
	if len(sessions) == 0 {
		delete(r.byUser, s.UserID())
	}
	r.total--
	userSessions, total := len(sessions), r.total
	r.mu.Unlock()

	r.logger.Info("session unregistered",
		"session_id", s.ID(),
		"user_id", s.UserID(),
		"user_sessions", userSessions)
	r.notify(total)
}

// Sessions returns a copy of the user's sessions in no particular order.
func (r *InMemoryRegistry) Sessions(userID string) []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := r.byUser[userID]
	if len(sessions) == 0 {
		return nil
	}
	out := make([]Session, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s)
	}
	return out
}

// Count implements Registry.
func (r *InMemoryRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.total
}

// UserCount implements Registry.
func (r *InMemoryRegistry) UserCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}

func (r *InMemoryRegistry) notify(total int) {
	if r.observer != nil {
		r.observer(total)
	}
}
