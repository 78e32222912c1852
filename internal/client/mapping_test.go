package client

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/tasknotify/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypeForEvent(t *testing.T) {
	tests := []struct {
		event      string
		serverType string
		want       ViewType
	}{
		{event: "comment:new", want: TypeNewComment},
		{event: "comment_created", want: TypeNewComment},
		{event: "task:assigned", want: TypeTaskAssigned},
		{event: "task_assigned", want: TypeTaskAssigned},
		{event: "task:created", want: TypeStatusChanged},
		{event: "task_created", want: TypeStatusChanged},
		{event: "task:updated", want: TypeStatusChanged},
		{event: "task_updated", want: TypeStatusChanged},
		{event: "task:status", want: TypeStatusChanged},
		{event: "something:else", want: TypeNewComment},
		{event: "notification", serverType: "TASK_ASSIGNED", want: TypeTaskAssigned},
		{event: "notification", serverType: "TASK_UPDATED", want: TypeStatusChanged},
		{event: "notification", serverType: "task:assigned", want: TypeTaskAssigned},
		{event: "notification", serverType: "mystery", want: TypeNewComment},
		{event: "task:assigned", serverType: "COMMENT_CREATED", want: TypeTaskAssigned},
	}
	for _, tt := range tests {
		t.Run(tt.event+"/"+tt.serverType, func(t *testing.T) {
			assert.Equal(t, tt.want, TypeForEvent(tt.event, tt.serverType))
		})
	}
}

func TestIsNotificationEvent(t *testing.T) {
	assert.True(t, IsNotificationEvent("comment:new"))
	assert.True(t, IsNotificationEvent("notification"))
	assert.False(t, IsNotificationEvent(domain.PushNotificationRead))
	assert.False(t, IsNotificationEvent(domain.EventAuthenticated))
}

func TestNormalize(t *testing.T) {
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("pushed notification", func(t *testing.T) {
		payload := json.RawMessage(`{
			"id": "n1",
			"userId": "u1",
			"taskId": "t1",
			"type": "TASK_ASSIGNED",
			"title": "Task assigned",
			"message": "You were assigned to Write docs",
			"isRead": false,
			"createdAt": "2025-03-01T12:00:00Z"
		}`)

		view, err := Normalize("task:assigned", payload)
		require.NoError(t, err)
		assert.Equal(t, View{
			ID:        "n1",
			UserID:    "u1",
			TaskID:    "t1",
			Type:      TypeTaskAssigned,
			Title:     "Task assigned",
			Message:   "You were assigned to Write docs",
			CreatedAt: created,
			UpdatedAt: created,
		}, view)
	})

	t.Run("missing id", func(t *testing.T) {
		_, err := Normalize("comment:new", json.RawMessage(`{"title":"x"}`))
		assert.ErrorIs(t, err, ErrInvalidPayload)
	})

	t.Run("not an object", func(t *testing.T) {
		_, err := Normalize("comment:new", json.RawMessage(`"hello"`))
		assert.ErrorIs(t, err, ErrInvalidPayload)
	})
}

func TestFromREST(t *testing.T) {
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	n := &domain.Notification{
		ID:        uuid.New(),
		UserID:    "u1",
		TaskID:    "t1",
		Type:      domain.EventCommentCreated,
		Title:     "New comment",
		Message:   "hi",
		IsRead:    true,
		CreatedAt: created,
		UpdatedAt: created.Add(time.Minute),
	}

	view := FromREST(n)
	assert.Equal(t, n.ID.String(), view.ID)
	assert.Equal(t, TypeNewComment, view.Type)
	assert.True(t, view.IsRead)
	assert.Equal(t, created.Add(time.Minute), view.UpdatedAt)
}
