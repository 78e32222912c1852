package realtime

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/phrazzld/tasknotify/internal/registry"
)

var (
	// ErrSessionClosed is returned when sending to a session that has
	// disconnected.
	ErrSessionClosed = errors.New("session closed")

	// ErrSendBufferFull is returned when a session's outgoing buffer is full.
	// The push is dropped for that session only.
	ErrSendBufferFull = errors.New("session send buffer full")
)

// session is one socket connection. Only the write pump writes to conn once
// the session is authenticated.
type session struct {
	id     string
	conn   *websocket.Conn
	send   chan registry.Push
	done   chan struct{}
	logger *slog.Logger

	closeOnce sync.Once

	mu              sync.Mutex
	state           registry.State
	userID          string
	authenticatedAt time.Time
}

var _ registry.Session = (*session)(nil)

func newSession(conn *websocket.Conn, buffer int, logger *slog.Logger) *session {
	id := uuid.NewString()
	return &session{
		id:     id,
		conn:   conn,
		send:   make(chan registry.Push, buffer),
		done:   make(chan struct{}),
		state:  registry.StateConnecting,
		logger: logger.With("session_id", id),
	}
}

func (s *session) ID() string { return s.id }

func (s *session) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

func (s *session) AuthenticatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticatedAt
}

// State returns the session's lifecycle state.
func (s *session) State() registry.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// transition moves the session to next if the state machine allows it.
func (s *session) transition(next registry.State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !registry.CanTransition(s.state, next) {
		return false
	}
	s.state = next
	return true
}

func (s *session) authenticate(userID string, at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !registry.CanTransition(s.state, registry.StateAuthenticated) {
		return false
	}
	s.state = registry.StateAuthenticated
	s.userID = userID
	s.authenticatedAt = at
	return true
}

// Send queues push without blocking. A full buffer drops the push.
func (s *session) Send(ctx context.Context, push registry.Push) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	select {
	case s.send <- push:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close stops the write pump, which sends a close frame and closes the
// connection. It is safe to call more than once.
func (s *session) Close() error {
	s.closeOnce.Do(func() {
		s.transition(registry.StateDisconnected)
		close(s.done)
	})
	return nil
}

// writePump drains the send buffer and keeps the connection alive with pings.
// It owns all writes to conn after authentication.
func (s *session) writePump(writeTimeout, pingInterval time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case push := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteJSON(push); err != nil {
				s.logger.Debug("socket write failed, closing session", "error", err)
				_ = s.Close()
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(writeTimeout)
			if err := s.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				s.logger.Debug("socket ping failed, closing session", "error", err)
				_ = s.Close()
				return
			}
		case <-s.done:
			deadline := time.Now().Add(writeTimeout)
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			return
		}
	}
}
