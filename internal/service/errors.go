package service

import (
	"errors"
	"fmt"

	"github.com/phrazzld/tasknotify/internal/store"
)

// Common service errors - sentinel errors used across service implementations.
// Callers check for them with errors.Is(); the API layer maps them to status
// codes.
var (
	// ErrNotificationNotFound indicates the notification does not exist for the
	// requesting user. API layer should map this to HTTP 404 Not Found.
	ErrNotificationNotFound = errors.New("notification not found")

	// ErrInvalidPagination indicates page or limit are out of range.
	// API layer should map this to HTTP 400 Bad Request.
	ErrInvalidPagination = errors.New("invalid pagination parameters")
)

// NotificationServiceError wraps errors from the notification service with context.
type NotificationServiceError struct {
	// Operation is the operation that failed (e.g., "consume", "mark_all_read")
	Operation string
	// Message is a human-readable description of the error
	Message string
	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface for NotificationServiceError.
func (e *NotificationServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("notification service %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("notification service %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *NotificationServiceError) Unwrap() error {
	return e.Err
}

// NewNotificationServiceError creates a new NotificationServiceError.
// It returns known sentinel errors directly without wrapping.
func NewNotificationServiceError(operation, message string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, ErrNotificationNotFound) || store.IsNotFoundError(err) {
		return ErrNotificationNotFound
	}
	if errors.Is(err, ErrInvalidPagination) {
		return err
	}

	return &NotificationServiceError{
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
