package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/phrazzld/tasknotify/internal/api/shared"
	"github.com/phrazzld/tasknotify/internal/domain"
	"github.com/phrazzld/tasknotify/internal/events"
)

// EventProducer turns task actions into notification events.
// *events.Producer implements it.
type EventProducer interface {
	TaskCreated(ctx context.Context, actorID string, task events.Task, recipients []string) error
	TaskAssigned(ctx context.Context, actorID string, task events.Task, assignees []string) error
	TaskUpdated(ctx context.Context, actorID string, task events.Task, recipients []string, changes []string) error
	CommentCreated(ctx context.Context, task events.Task, comment events.Comment, recipients []string) error
}

var _ EventProducer = (*events.Producer)(nil)

// EventHandler accepts task actions over HTTP and publishes one notification
// event per recipient. It is the ingress for deployments without a separate
// task service, such as the single-binary memory broker setup.
type EventHandler struct {
	producer EventProducer
	logger   *slog.Logger
}

// NewEventHandler creates a new EventHandler.
func NewEventHandler(producer EventProducer, logger *slog.Logger) *EventHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventHandler{
		producer: producer,
		logger:   logger.With("component", "event_handler"),
	}
}

// PublishEvent handles POST /api/events.
func (h *EventHandler) PublishEvent(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req PublishEventRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		HandleAPIError(w, r, fmt.Errorf("%w: %v", domain.ErrInvalidFormat, err), "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		HandleAPIError(w, r, err, SanitizeValidationError(err))
		return
	}
	eventType, err := domain.ParseEventType(req.Type)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	task := events.Task{ID: req.TaskID, Title: req.TaskTitle, Status: req.Status}
	ctx := r.Context()
	switch eventType {
	case domain.EventTaskCreated:
		err = h.producer.TaskCreated(ctx, actorID, task, req.Recipients)
	case domain.EventTaskAssigned:
		err = h.producer.TaskAssigned(ctx, actorID, task, req.Recipients)
	case domain.EventTaskUpdated:
		err = h.producer.TaskUpdated(ctx, actorID, task, req.Recipients, req.Changes)
	case domain.EventCommentCreated:
		if req.CommentID == "" || req.CommentBody == "" {
			HandleAPIError(w, r,
				fmt.Errorf("%w: commentId and commentBody are required", domain.ErrValidation),
				"Invalid comment: required field")
			return
		}
		comment := events.Comment{ID: req.CommentID, AuthorID: actorID, Body: req.CommentBody}
		err = h.producer.CommentCreated(ctx, task, comment, req.Recipients)
	}
	if err != nil {
		HandleAPIError(w, r, err, "Failed to publish events")
		return
	}

	published := len(events.Recipients(actorID, req.Recipients))
	h.logger.Debug("task action published",
		"type", string(eventType),
		"task_id", req.TaskID,
		"actor_id", actorID,
		"events", published)
	shared.RespondWithJSON(w, r, http.StatusAccepted, PublishEventResponse{Published: published})
}
