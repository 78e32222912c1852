package api

import "github.com/phrazzld/tasknotify/internal/domain"

// ListNotificationsQuery holds the parsed query of GET /api/notifications.
// Zero Page and Limit take the service defaults.
type ListNotificationsQuery struct {
	Page   int   `validate:"omitempty,min=1"`
	Limit  int   `validate:"omitempty,min=1,max=100"`
	IsRead *bool `validate:"-"`
}

// PageMeta describes the page returned by the list endpoint.
type PageMeta struct {
	Page        int   `json:"page"`
	Limit       int   `json:"limit"`
	Total       int64 `json:"total"`
	UnreadCount int64 `json:"unreadCount"`
}

// NotificationListResponse is the body of GET /api/notifications.
type NotificationListResponse struct {
	Data []*domain.Notification `json:"data"`
	Meta PageMeta               `json:"meta"`
}

// MarkAllReadResponse is the body of POST /api/notifications/read-all.
type MarkAllReadResponse struct {
	Updated int64 `json:"updated"`
}

// UnreadCountResponse is the body of GET /api/notifications/unread-count.
type UnreadCountResponse struct {
	Count int64 `json:"count"`
}

// PublishEventRequest is the body of POST /api/events. The authenticated
// user is the actor and is never notified.
type PublishEventRequest struct {
	Type        string   `json:"type"        validate:"required"`
	TaskID      string   `json:"taskId"      validate:"required,max=128"`
	TaskTitle   string   `json:"taskTitle"   validate:"required"`
	Status      string   `json:"status"      validate:"omitempty,max=64"`
	Recipients  []string `json:"recipients"  validate:"required,min=1,max=500,dive,required,max=128"`
	Changes     []string `json:"changes"     validate:"omitempty,max=50,dive,max=64"`
	CommentID   string   `json:"commentId"   validate:"omitempty,max=128"`
	CommentBody string   `json:"commentBody"`
}

// PublishEventResponse is the body of POST /api/events.
type PublishEventResponse struct {
	Published int `json:"published"`
}
