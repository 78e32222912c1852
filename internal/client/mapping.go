package client

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/phrazzld/tasknotify/internal/domain"
)

// ViewType is the notification type as the client renders it.
type ViewType string

const (
	TypeTaskAssigned  ViewType = "task_assigned"
	TypeStatusChanged ViewType = "status_changed"
	TypeNewComment    ViewType = "new_comment"
)

// EventNotification is the generic push whose view type is taken from the
// payload's server type.
const EventNotification = "notification"

// Mapping resolves pushed event names to view types. Both the colon and the
// underscore spellings are accepted.
var Mapping = map[string]ViewType{
	domain.PushCommentNew:   TypeNewComment,
	"comment_created":       TypeNewComment,
	"new_comment":           TypeNewComment,
	domain.PushTaskAssigned: TypeTaskAssigned,
	"task_assigned":         TypeTaskAssigned,
	domain.PushTaskCreated:  TypeStatusChanged,
	"task_created":          TypeStatusChanged,
	domain.PushTaskUpdated:  TypeStatusChanged,
	"task_updated":          TypeStatusChanged,
	"task:status":           TypeStatusChanged,
	"status_changed":        TypeStatusChanged,
}

var serverTypes = map[domain.EventType]ViewType{
	domain.EventTaskCreated:    TypeStatusChanged,
	domain.EventTaskAssigned:   TypeTaskAssigned,
	domain.EventTaskUpdated:    TypeStatusChanged,
	domain.EventCommentCreated: TypeNewComment,
}

// IsNotificationEvent reports whether event carries a notification payload.
func IsNotificationEvent(event string) bool {
	if event == EventNotification {
		return true
	}
	_, ok := Mapping[event]
	return ok
}

// TypeForEvent returns the view type for a pushed event. serverType is only
// consulted for the generic notification event. Anything unrecognized is a
// new comment.
func TypeForEvent(event string, serverType string) ViewType {
	if event == EventNotification {
		return TypeForServerType(serverType)
	}
	if t, ok := Mapping[event]; ok {
		return t
	}
	return TypeNewComment
}

// TypeForServerType maps a stored notification type to a view type.
func TypeForServerType(serverType string) ViewType {
	if t, ok := serverTypes[domain.EventType(serverType)]; ok {
		return t
	}
	if t, ok := Mapping[serverType]; ok {
		return t
	}
	return TypeNewComment
}

// View is the client-side notification shape.
type View struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	TaskID    string    `json:"taskId"`
	Type      ViewType  `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	IsRead    bool      `json:"isRead"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type pushedNotification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	TaskID    string    `json:"taskId"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	IsRead    bool      `json:"isRead"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Normalize converts a pushed payload into a View. The payload must carry
// an id.
func Normalize(event string, payload json.RawMessage) (View, error) {
	var p pushedNotification
	if err := json.Unmarshal(payload, &p); err != nil {
		return View{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if p.ID == "" {
		return View{}, fmt.Errorf("%w: missing id", ErrInvalidPayload)
	}

	updated := p.UpdatedAt
	if updated.IsZero() {
		updated = p.CreatedAt
	}
	return View{
		ID:        p.ID,
		UserID:    p.UserID,
		TaskID:    p.TaskID,
		Type:      TypeForEvent(event, p.Type),
		Title:     p.Title,
		Message:   p.Message,
		IsRead:    p.IsRead,
		CreatedAt: p.CreatedAt,
		UpdatedAt: updated,
	}, nil
}

// FromREST converts a notification returned by the REST surface.
func FromREST(n *domain.Notification) View {
	return View{
		ID:        n.ID.String(),
		UserID:    n.UserID,
		TaskID:    n.TaskID,
		Type:      TypeForServerType(string(n.Type)),
		Title:     n.Title,
		Message:   n.Message,
		IsRead:    n.IsRead,
		CreatedAt: n.CreatedAt,
		UpdatedAt: n.UpdatedAt,
	}
}
