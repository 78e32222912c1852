package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/tasknotify/internal/domain"
	"github.com/phrazzld/tasknotify/internal/metrics"
	"github.com/phrazzld/tasknotify/internal/registry"
	"github.com/phrazzld/tasknotify/internal/store"
)

// Pagination bounds for GetUserNotifications.
const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 100
)

// Pusher delivers a realtime push to every live session of a user, wherever
// it is connected. Delivery is best-effort: implementations log and swallow
// failures.
type Pusher interface {
	PushToUser(ctx context.Context, userID string, push registry.Push)
}

// ListOptions selects a page of a user's notifications. Zero Page and Limit
// take the defaults.
type ListOptions struct {
	Page   int
	Limit  int
	IsRead *bool
}

// NotificationPage is one page of notifications, newest first.
type NotificationPage struct {
	Items  []*domain.Notification
	Page   int
	Limit  int
	Total  int64
	Unread int64
}

// NotificationService provides fan-out and read-state operations.
type NotificationService interface {
	// Consume persists the event's notification once and pushes it to the
	// user's live sessions. A returned error means the event must be retried.
	Consume(ctx context.Context, evt *domain.NotificationEvent) error

	// GetUserNotifications returns a page of the user's notifications.
	GetUserNotifications(ctx context.Context, userID string, opts ListOptions) (*NotificationPage, error)

	// MarkAsRead marks one notification read. It is a no-op when the
	// notification is already read or does not belong to the user.
	MarkAsRead(ctx context.Context, id uuid.UUID, userID string) error

	// MarkAllAsRead marks every unread notification of the user read and
	// returns how many changed.
	MarkAllAsRead(ctx context.Context, userID string) (int64, error)

	// UnreadCount returns the number of unread notifications of the user.
	UnreadCount(ctx context.Context, userID string) (int64, error)
}

// notificationServiceImpl implements the NotificationService interface
type notificationServiceImpl struct {
	store  store.NotificationStore
	pusher Pusher
	logger *slog.Logger
}

// NewNotificationService creates a new NotificationService.
// It returns an error if any of the required dependencies are nil.
func NewNotificationService(
	notificationStore store.NotificationStore,
	pusher Pusher,
	logger *slog.Logger,
) (NotificationService, error) {
	if notificationStore == nil {
		return nil, &NotificationServiceError{
			Operation: "new_notification_service",
			Message:   "notificationStore cannot be nil",
		}
	}
	if pusher == nil {
		return nil, &NotificationServiceError{
			Operation: "new_notification_service",
			Message:   "pusher cannot be nil",
		}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &notificationServiceImpl{
		store:  notificationStore,
		pusher: pusher,
		logger: logger.With("component", "notification_service"),
	}, nil
}

// Consume implements NotificationService.Consume
func (s *notificationServiceImpl) Consume(ctx context.Context, evt *domain.NotificationEvent) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ConsumeDuration)

	log := s.logger.With("event_id", evt.ID, "user_id", evt.UserID, "type", string(evt.Type))

	n, err := domain.NewNotificationFromEvent(evt)
	if err != nil {
		metrics.EventsConsumed.WithLabelValues(metrics.ResultInvalid).Inc()
		return NewNotificationServiceError("consume", "invalid event", err)
	}

	stored, created, err := s.store.CreateFromEvent(ctx, n)
	if store.IsDuplicateError(err) {
		// A store that reports the event conflict instead of returning the
		// existing row.
		metrics.EventsConsumed.WithLabelValues(metrics.ResultDuplicate).Inc()
		log.Debug("duplicate event absorbed", "error", err)
		return nil
	}
	if err != nil {
		metrics.EventsConsumed.WithLabelValues(metrics.ResultFailed).Inc()
		log.Error("failed to persist notification", "error", err)
		return NewNotificationServiceError("consume", "failed to persist notification", err)
	}
	if !created {
		metrics.EventsConsumed.WithLabelValues(metrics.ResultDuplicate).Inc()
		log.Debug("duplicate event absorbed", "notification_id", stored.ID)
		return nil
	}
	metrics.EventsConsumed.WithLabelValues(metrics.ResultCreated).Inc()

	push, err := registry.NewPush(domain.PushName(stored.Type), stored)
	if err != nil {
		// The row is durable; clients pick it up on their next fetch.
		log.Error("failed to encode notification push", "error", err)
		return nil
	}
	s.pusher.PushToUser(ctx, stored.UserID, push)

	log.Debug("notification consumed", "notification_id", stored.ID)
	return nil
}

// GetUserNotifications implements NotificationService.GetUserNotifications
func (s *notificationServiceImpl) GetUserNotifications(
	ctx context.Context,
	userID string,
	opts ListOptions,
) (*NotificationPage, error) {
	page, limit, err := normalizePagination(opts.Page, opts.Limit)
	if err != nil {
		return nil, err
	}

	items, total, err := s.store.ListByUser(ctx, userID, store.ListFilter{
		IsRead: opts.IsRead,
		Limit:  limit,
		Offset: (page - 1) * limit,
	})
	if err != nil {
		return nil, NewNotificationServiceError("list", "failed to list notifications", err)
	}

	unread, err := s.store.CountUnread(ctx, userID)
	if err != nil {
		return nil, NewNotificationServiceError("list", "failed to count unread notifications", err)
	}

	if items == nil {
		items = []*domain.Notification{}
	}
	return &NotificationPage{
		Items:  items,
		Page:   page,
		Limit:  limit,
		Total:  total,
		Unread: unread,
	}, nil
}

// MarkAsRead implements NotificationService.MarkAsRead
func (s *notificationServiceImpl) MarkAsRead(ctx context.Context, id uuid.UUID, userID string) error {
	changed, err := s.store.MarkAsRead(ctx, id, userID)
	if err != nil {
		return NewNotificationServiceError("mark_read", "failed to mark notification read", err)
	}
	if !changed {
		s.logNoopRead(ctx, id, userID)
		return nil
	}

	push, err := registry.NewPush(domain.PushNotificationRead, domain.ReadPayload{ID: id.String()})
	if err != nil {
		s.logger.Error("failed to encode read push", "error", err)
		return nil
	}
	s.pusher.PushToUser(ctx, userID, push)
	return nil
}

// logNoopRead records why a mark-read changed nothing: the notification is
// already read, or it does not exist for the user.
func (s *notificationServiceImpl) logNoopRead(ctx context.Context, id uuid.UUID, userID string) {
	log := s.logger.With("notification_id", id, "user_id", userID)
	if !log.Enabled(ctx, slog.LevelDebug) {
		return
	}
	n, err := s.store.GetByID(ctx, id, userID)
	switch {
	case store.IsNotFoundError(err):
		log.Debug("mark read ignored: notification not found for user")
	case err != nil:
		log.Debug("mark read was a no-op", "lookup_error", err)
	default:
		log.Debug("mark read ignored: already read", "read_at", n.ReadAt)
	}
}

// MarkAllAsRead implements NotificationService.MarkAllAsRead
func (s *notificationServiceImpl) MarkAllAsRead(ctx context.Context, userID string) (int64, error) {
	updated, err := s.store.MarkAllAsRead(ctx, userID)
	if err != nil {
		return 0, NewNotificationServiceError("mark_all_read", "failed to mark notifications read", err)
	}

	push, err := registry.NewPush(
		domain.PushNotificationsReadAll,
		domain.ReadAllPayload{UserID: userID, Updated: updated},
	)
	if err != nil {
		s.logger.Error("failed to encode read-all push", "error", err)
		return updated, nil
	}
	s.pusher.PushToUser(ctx, userID, push)

	s.logger.Debug("marked all notifications read", "user_id", userID, "updated", updated)
	return updated, nil
}

// UnreadCount implements NotificationService.UnreadCount
func (s *notificationServiceImpl) UnreadCount(ctx context.Context, userID string) (int64, error) {
	count, err := s.store.CountUnread(ctx, userID)
	if err != nil {
		return 0, NewNotificationServiceError("unread_count", "failed to count unread notifications", err)
	}
	return count, nil
}

func normalizePagination(page, limit int) (int, int, error) {
	if page == 0 {
		page = DefaultPage
	}
	if limit == 0 {
		limit = DefaultLimit
	}
	if page < 1 {
		return 0, 0, fmt.Errorf("%w: page must be at least 1", ErrInvalidPagination)
	}
	if limit < 1 || limit > MaxLimit {
		return 0, 0, fmt.Errorf("%w: limit must be between 1 and %d", ErrInvalidPagination, MaxLimit)
	}
	return page, limit, nil
}
