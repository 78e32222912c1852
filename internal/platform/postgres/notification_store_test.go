//go:build integration

package postgres_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/tasknotify/internal/domain"
	"github.com/phrazzld/tasknotify/internal/platform/postgres"
	"github.com/phrazzld/tasknotify/internal/store"
	"github.com/phrazzld/tasknotify/internal/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newNotification(t *testing.T, userID string, createdAt time.Time) *domain.Notification {
	t.Helper()
	n, err := domain.NewNotificationFromEvent(&domain.NotificationEvent{
		ID:        uuid.NewString(),
		Type:      domain.EventTaskAssigned,
		UserID:    userID,
		TaskID:    "t1",
		Title:     "X",
		Message:   "Y",
		CreatedAt: createdAt,
	})
	require.NoError(t, err)
	return n
}

func TestNotificationStore_CreateFromEventIsIdempotent(t *testing.T) {
	db := testdb.GetTestDB(t)

	testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
		ctx := context.Background()
		s := postgres.NewPostgresNotificationStore(tx, discardLogger())

		n := newNotification(t, "u-"+uuid.NewString(), time.Now().UTC())
		n.Data = json.RawMessage(`{"priority":"high"}`)

		first, created, err := s.CreateFromEvent(ctx, n)
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, n.ID, first.ID)
		assert.JSONEq(t, `{"priority":"high"}`, string(first.Data))

		// Redelivery builds a new notification value with a fresh id for the same event.
		again := *n
		again.ID = uuid.New()
		second, created, err := s.CreateFromEvent(ctx, &again)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, first.ID, second.ID, "the original row is returned")

		items, total, err := s.ListByUser(ctx, n.UserID, store.ListFilter{Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		assert.Len(t, items, 1)
	})
}

func TestNotificationStore_ListByUser(t *testing.T) {
	db := testdb.GetTestDB(t)

	testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
		ctx := context.Background()
		s := postgres.NewPostgresNotificationStore(tx, discardLogger())
		userID := "u-" + uuid.NewString()
		base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

		var ids []uuid.UUID
		for i := 0; i < 5; i++ {
			n := newNotification(t, userID, base.Add(time.Duration(i)*time.Minute))
			n.Title = fmt.Sprintf("n%d", i)
			_, _, err := s.CreateFromEvent(ctx, n)
			require.NoError(t, err)
			ids = append(ids, n.ID)
		}
		_, _, err := s.CreateFromEvent(ctx, newNotification(t, "someone-else", base))
		require.NoError(t, err)

		page1, total, err := s.ListByUser(ctx, userID, store.ListFilter{Limit: 2, Offset: 0})
		require.NoError(t, err)
		assert.Equal(t, int64(5), total)
		require.Len(t, page1, 2)
		assert.Equal(t, "n4", page1[0].Title, "newest first")
		assert.Equal(t, "n3", page1[1].Title)

		page3, _, err := s.ListByUser(ctx, userID, store.ListFilter{Limit: 2, Offset: 4})
		require.NoError(t, err)
		require.Len(t, page3, 1)
		assert.Equal(t, "n0", page3[0].Title)

		changed, err := s.MarkAsRead(ctx, ids[0], userID)
		require.NoError(t, err)
		assert.True(t, changed)

		read := true
		readOnly, total, err := s.ListByUser(ctx, userID, store.ListFilter{IsRead: &read, Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		require.Len(t, readOnly, 1)
		assert.True(t, readOnly[0].IsRead)
		assert.NotNil(t, readOnly[0].ReadAt)

		unread := false
		_, total, err = s.ListByUser(ctx, userID, store.ListFilter{IsRead: &unread, Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, int64(4), total)
	})
}

func TestNotificationStore_ReadState(t *testing.T) {
	db := testdb.GetTestDB(t)

	testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
		ctx := context.Background()
		s := postgres.NewPostgresNotificationStore(tx, discardLogger())
		userID := "u-" + uuid.NewString()

		var first *domain.Notification
		for i := 0; i < 5; i++ {
			n := newNotification(t, userID, time.Now().UTC())
			_, _, err := s.CreateFromEvent(ctx, n)
			require.NoError(t, err)
			if first == nil {
				first = n
			}
		}

		count, err := s.CountUnread(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, int64(5), count)

		changed, err := s.MarkAsRead(ctx, first.ID, userID)
		require.NoError(t, err)
		assert.True(t, changed)

		changed, err = s.MarkAsRead(ctx, first.ID, userID)
		require.NoError(t, err)
		assert.False(t, changed, "second mark is a no-op")

		changed, err = s.MarkAsRead(ctx, first.ID, "intruder")
		require.NoError(t, err)
		assert.False(t, changed, "foreign user cannot mark")

		changed, err = s.MarkAsRead(ctx, uuid.New(), userID)
		require.NoError(t, err)
		assert.False(t, changed)

		updated, err := s.MarkAllAsRead(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, int64(4), updated)

		updated, err = s.MarkAllAsRead(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, int64(0), updated)

		count, err = s.CountUnread(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, int64(0), count)

		got, err := s.GetByID(ctx, first.ID, userID)
		require.NoError(t, err)
		assert.True(t, got.IsRead)

		_, err = s.GetByID(ctx, first.ID, "intruder")
		assert.ErrorIs(t, err, store.ErrNotificationNotFound)
	})
}
