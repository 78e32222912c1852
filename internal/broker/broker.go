package broker

import (
	"context"
	"errors"
)

// ErrClosed is returned when publishing to or consuming from a closed broker.
var ErrClosed = errors.New("broker closed")

// Message is a single delivery from the transport. Body holds the bytes the
// producer published, unchanged.
type Message struct {
	ID   string
	Body []byte
}

// Handler processes one message. A nil error acknowledges the message. An
// error wrapped with Permanent is logged and acknowledged as well, since
// redelivering it cannot succeed. Any other error leaves the message
// unacknowledged so it is delivered again.
type Handler func(ctx context.Context, msg Message) error

// Publisher hands message bodies to the transport.
type Publisher interface {
	Publish(ctx context.Context, body []byte) error
}

// Consumer delivers messages to a handler until ctx is cancelled. Messages
// are handled one at a time in transport order.
type Consumer interface {
	Consume(ctx context.Context, handler Handler) error
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return "permanent: " + e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err, or anything it wraps, was marked with
// Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}
