package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// State is the lifecycle position of a realtime session.
type State int

// Session states. Disconnected is terminal.
const (
	StateConnecting State = iota
	StateAuthenticating
	StateAuthenticated
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var transitions = map[State][]State{
	StateConnecting:     {StateAuthenticating, StateDisconnected},
	StateAuthenticating: {StateAuthenticated, StateDisconnected},
	StateAuthenticated:  {StateDisconnected},
}

// CanTransition reports whether a session may move from one state to another.
func CanTransition(from, to State) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Push is one server-to-client realtime event.
type Push struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewPush marshals data into a push named event.
func NewPush(event string, data any) (Push, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Push{}, fmt.Errorf("failed to encode %s push: %w", event, err)
	}
	return Push{Event: event, Data: raw}, nil
}

// Session is an authenticated realtime connection as seen by the registry.
type Session interface {
	ID() string
	UserID() string
	AuthenticatedAt() time.Time
	// Send queues a push for delivery without waiting for the network.
	Send(ctx context.Context, push Push) error
	Close() error
}
