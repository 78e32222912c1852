package mocks

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/phrazzld/tasknotify/internal/domain"
	"github.com/phrazzld/tasknotify/internal/store"
)

// MemoryNotificationStore is a map-backed store.NotificationStore with the
// same idempotency rule as the Postgres store: one row per event id.
type MemoryNotificationStore struct {
	mu      sync.Mutex
	byEvent map[string]*domain.Notification
	rows    []*domain.Notification
}

var _ store.NotificationStore = (*MemoryNotificationStore)(nil)

// NewMemoryNotificationStore returns an empty store.
func NewMemoryNotificationStore() *MemoryNotificationStore {
	return &MemoryNotificationStore{byEvent: make(map[string]*domain.Notification)}
}

// CreateFromEvent implements store.NotificationStore.
func (f *MemoryNotificationStore) CreateFromEvent(
	_ context.Context,
	n *domain.Notification,
) (*domain.Notification, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.byEvent[n.EventID]; ok {
		cp := *existing
		return &cp, false, nil
	}
	cp := *n
	f.byEvent[n.EventID] = &cp
	f.rows = append(f.rows, &cp)
	out := cp
	return &out, true, nil
}

// GetByID implements store.NotificationStore.
func (f *MemoryNotificationStore) GetByID(_ context.Context, id uuid.UUID, userID string) (*domain.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range f.rows {
		if n.ID == id && n.UserID == userID {
			cp := *n
			return &cp, nil
		}
	}
	return nil, store.ErrNotificationNotFound
}

// ListByUser implements store.NotificationStore, newest first.
func (f *MemoryNotificationStore) ListByUser(
	_ context.Context,
	userID string,
	filter store.ListFilter,
) ([]*domain.Notification, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matched []*domain.Notification
	for _, n := range f.rows {
		if n.UserID != userID {
			continue
		}
		if filter.IsRead != nil && n.IsRead != *filter.IsRead {
			continue
		}
		cp := *n
		matched = append(matched, &cp)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	total := int64(len(matched))
	if filter.Offset >= len(matched) {
		return []*domain.Notification{}, total, nil
	}
	end := filter.Offset + filter.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[filter.Offset:end], total, nil
}

// CountUnread implements store.NotificationStore.
func (f *MemoryNotificationStore) CountUnread(_ context.Context, userID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for _, n := range f.rows {
		if n.UserID == userID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

// MarkAsRead implements store.NotificationStore.
func (f *MemoryNotificationStore) MarkAsRead(_ context.Context, id uuid.UUID, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range f.rows {
		if n.ID == id && n.UserID == userID && !n.IsRead {
			n.IsRead = true
			return true, nil
		}
	}
	return false, nil
}

// MarkAllAsRead implements store.NotificationStore.
func (f *MemoryNotificationStore) MarkAllAsRead(_ context.Context, userID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var updated int64
	for _, n := range f.rows {
		if n.UserID == userID && !n.IsRead {
			n.IsRead = true
			updated++
		}
	}
	return updated, nil
}

// Len returns the number of stored notifications.
func (f *MemoryNotificationStore) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}
