package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/phrazzld/tasknotify/internal/domain"
)

// ListFilter narrows a user's notification listing.
type ListFilter struct {
	// IsRead restricts results to read (true) or unread (false)
	// notifications. Nil returns both.
	IsRead *bool
	Limit  int
	Offset int
}

// NotificationStore defines the interface for notification persistence.
type NotificationStore interface {
	// CreateFromEvent inserts the notification unless one already exists for
	// the same event ID. The returned notification is the stored row; created
	// is false when the event had been consumed before.
	CreateFromEvent(ctx context.Context, n *domain.Notification) (stored *domain.Notification, created bool, err error)

	// GetByID retrieves a notification owned by userID.
	// Returns ErrNotificationNotFound if it does not exist for that user.
	GetByID(ctx context.Context, id uuid.UUID, userID string) (*domain.Notification, error)

	// ListByUser returns a page of the user's notifications, newest first,
	// together with the total number matching the filter.
	ListByUser(ctx context.Context, userID string, filter ListFilter) ([]*domain.Notification, int64, error)

	// CountUnread returns the number of unread notifications for the user.
	CountUnread(ctx context.Context, userID string) (int64, error)

	// MarkAsRead flips a single notification to read. It reports whether the
	// row changed; an already-read or foreign notification is not an error.
	MarkAsRead(ctx context.Context, id uuid.UUID, userID string) (bool, error)

	// MarkAllAsRead flips every unread notification of the user and returns
	// how many rows changed.
	MarkAllAsRead(ctx context.Context, userID string) (int64, error)
}
