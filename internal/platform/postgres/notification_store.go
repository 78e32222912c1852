package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/tasknotify/internal/domain"
	"github.com/phrazzld/tasknotify/internal/platform/logger"
	"github.com/phrazzld/tasknotify/internal/store"
)

const notificationColumns = `id, event_id, user_id, task_id, type, title, message, data,
	is_read, created_at, updated_at, read_at`

// PostgresNotificationStore implements the store.NotificationStore interface
// using a PostgreSQL database as the storage backend.
type PostgresNotificationStore struct {
	db     store.DBTX
	logger *slog.Logger
	now    func() time.Time
}

// NewPostgresNotificationStore creates a new PostgreSQL implementation of the
// NotificationStore interface. If logger is nil, a default logger will be used.
func NewPostgresNotificationStore(db store.DBTX, logger *slog.Logger) *PostgresNotificationStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresNotificationStore{
		db:     db,
		logger: logger.With(slog.String("component", "notification_store")),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Ensure PostgresNotificationStore implements store.NotificationStore interface
var _ store.NotificationStore = (*PostgresNotificationStore)(nil)

// CreateFromEvent implements store.NotificationStore.CreateFromEvent.
// The unique constraint on event_id makes the insert idempotent: a redelivered
// event inserts nothing and the original row is returned instead.
func (s *PostgresNotificationStore) CreateFromEvent(
	ctx context.Context,
	n *domain.Notification,
) (*domain.Notification, bool, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		INSERT INTO notifications (id, event_id, user_id, task_id, type, title, message, data,
			is_read, created_at, updated_at, read_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, FALSE, $9, $9, NULL)
		ON CONFLICT ON CONSTRAINT notifications_event_id_key DO NOTHING
		RETURNING ` + notificationColumns

	row := s.db.QueryRowContext(ctx, query,
		n.ID,
		n.EventID,
		n.UserID,
		n.TaskID,
		string(n.Type),
		n.Title,
		n.Message,
		nullableJSON(n.Data),
		n.CreatedAt,
	)

	created, err := scanNotification(row)
	if err == nil {
		log.Debug("notification created",
			slog.String("notification_id", created.ID.String()),
			slog.String("event_id", created.EventID),
			slog.String("user_id", created.UserID))
		return created, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		log.Error("failed to create notification",
			slog.String("error", err.Error()),
			slog.String("event_id", n.EventID),
			slog.String("user_id", n.UserID))
		return nil, false, MapError("create", err)
	}

	existing, err := s.getByEventID(ctx, n.EventID)
	if err != nil {
		log.Error("failed to load notification after conflicting insert",
			slog.String("error", err.Error()),
			slog.String("event_id", n.EventID))
		return nil, false, err
	}

	log.Debug("notification already exists for event",
		slog.String("notification_id", existing.ID.String()),
		slog.String("event_id", n.EventID))
	return existing, false, nil
}

func (s *PostgresNotificationStore) getByEventID(ctx context.Context, eventID string) (*domain.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE event_id = $1`
	n, err := scanNotification(s.db.QueryRowContext(ctx, query, eventID))
	if err != nil {
		return nil, MapError("get_by_event", err)
	}
	return n, nil
}

// GetByID implements store.NotificationStore.GetByID
func (s *PostgresNotificationStore) GetByID(
	ctx context.Context,
	id uuid.UUID,
	userID string,
) (*domain.Notification, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = $1 AND user_id = $2`
	n, err := scanNotification(s.db.QueryRowContext(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("notification not found",
				slog.String("notification_id", id.String()),
				slog.String("user_id", userID))
			return nil, MapError("get", err)
		}
		log.Error("failed to get notification by ID",
			slog.String("error", err.Error()),
			slog.String("notification_id", id.String()))
		return nil, MapError("get", err)
	}
	return n, nil
}

// ListByUser implements store.NotificationStore.ListByUser
func (s *PostgresNotificationStore) ListByUser(
	ctx context.Context,
	userID string,
	filter store.ListFilter,
) ([]*domain.Notification, int64, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	var total int64
	countQuery := `
		SELECT COUNT(*) FROM notifications
		WHERE user_id = $1 AND ($2::boolean IS NULL OR is_read = $2)
	`
	if err := s.db.QueryRowContext(ctx, countQuery, userID, filter.IsRead).Scan(&total); err != nil {
		log.Error("failed to count notifications",
			slog.String("error", err.Error()),
			slog.String("user_id", userID))
		return nil, 0, MapError("list", err)
	}

	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE user_id = $1 AND ($2::boolean IS NULL OR is_read = $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := s.db.QueryContext(ctx, query, userID, filter.IsRead, filter.Limit, filter.Offset)
	if err != nil {
		log.Error("failed to list notifications",
			slog.String("error", err.Error()),
			slog.String("user_id", userID))
		return nil, 0, MapError("list", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			log.Error("failed to close rows", slog.String("error", closeErr.Error()))
		}
	}()

	notifications := make([]*domain.Notification, 0, filter.Limit)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			log.Error("failed to scan notification row",
				slog.String("error", err.Error()),
				slog.String("user_id", userID))
			return nil, 0, MapError("list", err)
		}
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		log.Error("error iterating notification rows",
			slog.String("error", err.Error()),
			slog.String("user_id", userID))
		return nil, 0, MapError("list", err)
	}

	log.Debug("notifications listed",
		slog.String("user_id", userID),
		slog.Int("count", len(notifications)),
		slog.Int64("total", total))
	return notifications, total, nil
}

// CountUnread implements store.NotificationStore.CountUnread
func (s *PostgresNotificationStore) CountUnread(ctx context.Context, userID string) (int64, error) {
	var count int64
	query := `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND NOT is_read`
	if err := s.db.QueryRowContext(ctx, query, userID).Scan(&count); err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to count unread notifications",
			slog.String("error", err.Error()),
			slog.String("user_id", userID))
		return 0, MapError("count_unread", err)
	}
	return count, nil
}

// MarkAsRead implements store.NotificationStore.MarkAsRead
func (s *PostgresNotificationStore) MarkAsRead(ctx context.Context, id uuid.UUID, userID string) (bool, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE notifications
		SET is_read = TRUE, read_at = $3, updated_at = $3
		WHERE id = $1 AND user_id = $2 AND NOT is_read
	`
	result, err := s.db.ExecContext(ctx, query, id, userID, s.now())
	if err != nil {
		log.Error("failed to mark notification as read",
			slog.String("error", err.Error()),
			slog.String("notification_id", id.String()),
			slog.String("user_id", userID))
		return false, MapError("mark_read", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, store.NewStoreError(notificationEntity, "mark_read", "rows affected unavailable",
			fmt.Errorf("%w: %w", store.ErrUpdateFailed, err))
	}

	log.Debug("mark as read applied",
		slog.String("notification_id", id.String()),
		slog.Bool("changed", affected > 0))
	return affected > 0, nil
}

// MarkAllAsRead implements store.NotificationStore.MarkAllAsRead
func (s *PostgresNotificationStore) MarkAllAsRead(ctx context.Context, userID string) (int64, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE notifications
		SET is_read = TRUE, read_at = $2, updated_at = $2
		WHERE user_id = $1 AND NOT is_read
	`
	result, err := s.db.ExecContext(ctx, query, userID, s.now())
	if err != nil {
		log.Error("failed to mark all notifications as read",
			slog.String("error", err.Error()),
			slog.String("user_id", userID))
		return 0, MapError("mark_all_read", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, store.NewStoreError(notificationEntity, "mark_all_read", "rows affected unavailable",
			fmt.Errorf("%w: %w", store.ErrUpdateFailed, err))
	}

	log.Info("marked all notifications as read",
		slog.String("user_id", userID),
		slog.Int64("updated", affected))
	return affected, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNotification(row rowScanner) (*domain.Notification, error) {
	var (
		n         domain.Notification
		eventType string
		data      []byte
		readAt    sql.NullTime
	)
	err := row.Scan(
		&n.ID,
		&n.EventID,
		&n.UserID,
		&n.TaskID,
		&eventType,
		&n.Title,
		&n.Message,
		&data,
		&n.IsRead,
		&n.CreatedAt,
		&n.UpdatedAt,
		&readAt,
	)
	if err != nil {
		return nil, err
	}

	n.Type = domain.EventType(eventType)
	if len(data) > 0 {
		n.Data = json.RawMessage(data)
	}
	if readAt.Valid {
		t := readAt.Time
		n.ReadAt = &t
	}
	return &n, nil
}

func nullableJSON(data json.RawMessage) any {
	if len(data) == 0 {
		return nil
	}
	return []byte(data)
}
