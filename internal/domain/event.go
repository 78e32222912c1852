package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// EventType identifies the domain action that produced a notification.
type EventType string

// Event types carried on the broker.
const (
	EventTaskCreated    EventType = "TASK_CREATED"
	EventTaskAssigned   EventType = "TASK_ASSIGNED"
	EventTaskUpdated    EventType = "TASK_UPDATED"
	EventCommentCreated EventType = "COMMENT_CREATED"
)

// EventTypes lists every accepted event type.
var EventTypes = []EventType{
	EventTaskCreated,
	EventTaskAssigned,
	EventTaskUpdated,
	EventCommentCreated,
}

// IsValid reports whether t is one of the known event types.
func (t EventType) IsValid() bool {
	for _, known := range EventTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ParseEventType converts a string into an EventType. Matching is exact
// after trimming and upper-casing.
func ParseEventType(s string) (EventType, error) {
	t := EventType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidEventType, s)
	}
	return t, nil
}

// Length limits for NotificationEvent text fields, in runes.
const (
	MaxTitleLength   = 255
	MaxMessageLength = 2000
)

// NotificationEvent is the message body producers publish and the fan-out
// consumer reads. Its ID is generated by the producer and is the idempotency
// key for persistence.
type NotificationEvent struct {
	ID        string          `json:"id"        validate:"required,max=128"`
	Type      EventType       `json:"type"      validate:"required"`
	UserID    string          `json:"userId"    validate:"required,max=128"`
	TaskID    string          `json:"taskId"    validate:"required,max=128"`
	Title     string          `json:"title"     validate:"required,max=255"`
	Message   string          `json:"message"   validate:"required,max=2000"`
	Data      json.RawMessage `json:"data,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

var eventValidator = validator.New()

// NewNotificationEvent builds an event with a fresh ID and the current time.
func NewNotificationEvent(
	eventType EventType,
	userID, taskID, title, message string,
	data json.RawMessage,
) (*NotificationEvent, error) {
	evt := &NotificationEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		UserID:    userID,
		TaskID:    taskID,
		Title:     title,
		Message:   message,
		Data:      data,
		CreatedAt: time.Now().UTC(),
	}
	if err := evt.Validate(); err != nil {
		return nil, err
	}
	return evt, nil
}

// Validate checks the event against the contract. All failures wrap
// ErrValidation.
func (e *NotificationEvent) Validate() error {
	if err := eventValidator.Struct(e); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if !e.Type.IsValid() {
		return fmt.Errorf("%w: %w: %q", ErrValidation, ErrInvalidEventType, e.Type)
	}
	if len(e.Data) > 0 && !json.Valid(e.Data) {
		return fmt.Errorf("%w: data is not valid JSON", ErrValidation)
	}
	return nil
}

// DecodeEvent parses and validates a broker message body.
func DecodeEvent(body []byte) (*NotificationEvent, error) {
	var evt NotificationEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	if err := evt.Validate(); err != nil {
		return nil, err
	}
	return &evt, nil
}

// Encode serializes the event for publishing.
func (e *NotificationEvent) Encode() ([]byte, error) {
	return json.Marshal(e)
}
