package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/phrazzld/tasknotify/internal/domain"
	"github.com/phrazzld/tasknotify/internal/store"
	"github.com/stretchr/testify/mock"
)

// MockNotificationStore is a mock of store.NotificationStore for use with testify/mock
type MockNotificationStore struct {
	mock.Mock
}

var _ store.NotificationStore = (*MockNotificationStore)(nil)

// CreateFromEvent is a mock implementation of store.NotificationStore.CreateFromEvent
func (m *MockNotificationStore) CreateFromEvent(
	ctx context.Context,
	n *domain.Notification,
) (*domain.Notification, bool, error) {
	args := m.Called(ctx, n)
	if stored, ok := args.Get(0).(*domain.Notification); ok {
		return stored, args.Bool(1), args.Error(2)
	}
	return nil, args.Bool(1), args.Error(2)
}

// GetByID is a mock implementation of store.NotificationStore.GetByID
func (m *MockNotificationStore) GetByID(
	ctx context.Context,
	id uuid.UUID,
	userID string,
) (*domain.Notification, error) {
	args := m.Called(ctx, id, userID)
	if n, ok := args.Get(0).(*domain.Notification); ok {
		return n, args.Error(1)
	}
	return nil, args.Error(1)
}

// ListByUser is a mock implementation of store.NotificationStore.ListByUser
func (m *MockNotificationStore) ListByUser(
	ctx context.Context,
	userID string,
	filter store.ListFilter,
) ([]*domain.Notification, int64, error) {
	args := m.Called(ctx, userID, filter)
	if items, ok := args.Get(0).([]*domain.Notification); ok {
		return items, args.Get(1).(int64), args.Error(2)
	}
	return nil, args.Get(1).(int64), args.Error(2)
}

// CountUnread is a mock implementation of store.NotificationStore.CountUnread
func (m *MockNotificationStore) CountUnread(ctx context.Context, userID string) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

// MarkAsRead is a mock implementation of store.NotificationStore.MarkAsRead
func (m *MockNotificationStore) MarkAsRead(ctx context.Context, id uuid.UUID, userID string) (bool, error) {
	args := m.Called(ctx, id, userID)
	return args.Bool(0), args.Error(1)
}

// MarkAllAsRead is a mock implementation of store.NotificationStore.MarkAllAsRead
func (m *MockNotificationStore) MarkAllAsRead(ctx context.Context, userID string) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}
