package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/phrazzld/tasknotify/internal/store"
)

// SQLSTATE codes the notifications table can raise.
const (
	uniqueViolationCode  = "23505"
	checkViolationCode   = "23514"
	notNullViolationCode = "23502"
	invalidTextCode      = "22P02"
	stringTruncationCode = "22001"
	invalidJSONTextCode  = "22032"
)

// Constraint names from the notifications migration.
const (
	notificationsPrimaryKey = "notifications_pkey"
	eventIDConstraint       = "notifications_event_id_key"
	typeCheckConstraint     = "notifications_type_check"
	readAtCheckConstraint   = "notifications_read_at_check"
)

const notificationEntity = "notification"

// MapError turns a database error raised during op into a *store.StoreError
// whose chain carries both the matching store sentinel and the driver error.
func MapError(op string, err error) error {
	if err == nil {
		return nil
	}

	kind, message := classify(err)
	if kind == nil {
		return store.NewStoreError(notificationEntity, op, message, err)
	}
	return store.NewStoreError(notificationEntity, op, message, fmt.Errorf("%w: %w", kind, err))
}

func classify(err error) (error, string) {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotificationNotFound, "notification not found"
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return nil, "database error"
	}

	switch pgErr.Code {
	case uniqueViolationCode:
		switch pgErr.ConstraintName {
		case eventIDConstraint:
			return store.ErrDuplicateEvent, "event already stored"
		case notificationsPrimaryKey:
			return store.ErrDuplicate, "notification id already used"
		}
		return store.ErrDuplicate, "duplicate notification"
	case checkViolationCode:
		switch pgErr.ConstraintName {
		case typeCheckConstraint:
			return store.ErrInvalidEntity, "unknown notification type"
		case readAtCheckConstraint:
			return store.ErrInvalidEntity, "read flag and read time disagree"
		}
		return store.ErrInvalidEntity, "check constraint " + pgErr.ConstraintName + " violated"
	case notNullViolationCode:
		return store.ErrInvalidEntity, "missing " + pgErr.ColumnName
	case stringTruncationCode:
		return store.ErrInvalidEntity, "value too long"
	case invalidTextCode, invalidJSONTextCode:
		return store.ErrInvalidEntity, "malformed value"
	}
	return nil, "database error"
}
