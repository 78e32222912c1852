package client

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthenticationFailed is returned when the server rejects the
	// credentials. The adapter does not retry with the same credential.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrRetriesExhausted is reported once the reconnect budget is spent.
	ErrRetriesExhausted = errors.New("reconnect retries exhausted")

	// ErrClosed is returned by operations on a closed adapter.
	ErrClosed = errors.New("client closed")

	// ErrInvalidPayload is returned when a pushed notification cannot be
	// normalized.
	ErrInvalidPayload = errors.New("invalid notification payload")
)

// AuthError carries the reason the server gave in authentication_failed.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: %s", ErrAuthenticationFailed, e.Reason)
}

func (e *AuthError) Unwrap() error {
	return ErrAuthenticationFailed
}

// APIError is a non-2xx response from the REST surface.
type APIError struct {
	Status  int
	Message string
	TraceID string
}

func (e *APIError) Error() string {
	if e.TraceID != "" {
		return fmt.Sprintf("api error %d: %s (trace %s)", e.Status, e.Message, e.TraceID)
	}
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}
