package broker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Memory is an in-process transport with the same acknowledgement contract as
// RedisStreams. Messages whose handler fails are parked until Redeliver is
// called, or retried automatically after RetryDelay when it is set.
type Memory struct {
	mu      sync.Mutex
	queue   []Message
	pending []Message
	seq     int64
	closed  bool
	wake    chan struct{}
	logger  *slog.Logger

	// RetryDelay, when positive, re-queues a failed message after the delay.
	RetryDelay time.Duration
}

var (
	_ Publisher = (*Memory)(nil)
	_ Consumer  = (*Memory)(nil)
)

// NewMemory creates an empty in-process transport.
func NewMemory(logger *slog.Logger) *Memory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Memory{
		wake:   make(chan struct{}, 1),
		logger: logger.With("component", "memory_broker"),
	}
}

// Publish implements Publisher. The body is copied.
func (m *Memory) Publish(ctx context.Context, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.seq++
	msg := Message{ID: fmt.Sprintf("%d-0", m.seq), Body: append([]byte(nil), body...)}
	m.queue = append(m.queue, msg)
	m.mu.Unlock()

	m.logger.Debug("message published", "message_id", msg.ID)
	m.signal()
	return nil
}

// Consume implements Consumer. It returns nil when ctx is cancelled and
// ErrClosed after Close.
func (m *Memory) Consume(ctx context.Context, handler Handler) error {
	for {
		msg, ok, closed := m.next()
		if closed {
			return ErrClosed
		}
		if !ok {
			select {
			case <-ctx.Done():
				return nil
			case <-m.wake:
				continue
			}
		}

		err := handler(ctx, msg)
		switch {
		case err == nil:
		case IsPermanent(err):
			m.logger.Error("dropping message that cannot be processed",
				"message_id", msg.ID,
				"error", err)
		default:
			m.logger.Warn("message handling failed, leaving it pending",
				"message_id", msg.ID,
				"error", err)
			m.park(msg)
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}

// Redeliver moves every parked message back to the head of the queue, oldest
// first, and returns how many were moved.
func (m *Memory) Redeliver() int {
	m.mu.Lock()
	n := len(m.pending)
	if n > 0 {
		m.queue = append(append([]Message(nil), m.pending...), m.queue...)
		m.pending = nil
	}
	m.mu.Unlock()

	if n > 0 {
		m.signal()
	}
	return n
}

// Pending returns the number of parked messages.
func (m *Memory) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Queued returns the number of messages waiting for delivery.
func (m *Memory) Queued() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Close stops the transport. Queued messages are discarded.
func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.signal()
	return nil
}

func (m *Memory) next() (Message, bool, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return Message{}, false, true
	}
	if len(m.queue) == 0 {
		return Message{}, false, false
	}
	msg := m.queue[0]
	m.queue = m.queue[1:]
	return msg, true, false
}

func (m *Memory) park(msg Message) {
	m.mu.Lock()
	m.pending = append(m.pending, msg)
	m.mu.Unlock()

	if m.RetryDelay > 0 {
		time.AfterFunc(m.RetryDelay, func() { m.Redeliver() })
	}
}

func (m *Memory) signal() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}
