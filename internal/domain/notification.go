package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Notification is the persisted record created once per consumed event.
// Only the read state changes after creation.
type Notification struct {
	ID        uuid.UUID       `json:"id"`
	EventID   string          `json:"-"`
	UserID    string          `json:"userId"`
	TaskID    string          `json:"taskId"`
	Type      EventType       `json:"type"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data,omitempty"`
	IsRead    bool            `json:"isRead"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
	ReadAt    *time.Time      `json:"readAt,omitempty"`
}

// NewNotificationFromEvent derives an unread notification from a validated
// event. The notification keeps the event's creation time so that ordering
// follows the domain action rather than consumption.
func NewNotificationFromEvent(evt *NotificationEvent) (*Notification, error) {
	if err := evt.Validate(); err != nil {
		return nil, err
	}

	createdAt := evt.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	return &Notification{
		ID:        uuid.New(),
		EventID:   evt.ID,
		UserID:    evt.UserID,
		TaskID:    evt.TaskID,
		Type:      evt.Type,
		Title:     evt.Title,
		Message:   evt.Message,
		Data:      evt.Data,
		IsRead:    false,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}, nil
}
