package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/phrazzld/tasknotify/internal/broker"
	"github.com/phrazzld/tasknotify/internal/domain"
	"github.com/phrazzld/tasknotify/internal/metrics"
)

// Task is the part of a task a notification refers to.
type Task struct {
	ID     string
	Title  string
	Status string
}

// Comment is a newly added comment on a task.
type Comment struct {
	ID       string
	AuthorID string
	Body     string
}

// Producer builds notification events for task lifecycle and comment actions
// and publishes them.
type Producer struct {
	publisher broker.Publisher
	logger    *slog.Logger
}

// NewProducer creates a Producer publishing through publisher.
func NewProducer(publisher broker.Publisher, logger *slog.Logger) (*Producer, error) {
	if publisher == nil {
		return nil, errors.New("publisher cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Producer{
		publisher: publisher,
		logger:    logger.With("component", "event_producer"),
	}, nil
}

// TaskCreated notifies watchers of a new task. The actor is never notified.
func (p *Producer) TaskCreated(ctx context.Context, actorID string, task Task, recipients []string) error {
	return p.emit(ctx, domain.EventTaskCreated, actorID, recipients, task,
		fmt.Sprintf("New task: %s", task.Title),
		fmt.Sprintf("Task %q was created", task.Title),
		taskData(task, actorID))
}

// TaskAssigned notifies each assignee. Assigning a task to three users yields
// three events.
func (p *Producer) TaskAssigned(ctx context.Context, actorID string, task Task, assignees []string) error {
	return p.emit(ctx, domain.EventTaskAssigned, actorID, assignees, task,
		"Task assigned",
		fmt.Sprintf("You have been assigned to %q", task.Title),
		taskData(task, actorID))
}

// TaskUpdated notifies watchers that a task changed. changes lists the
// updated field names and may be empty.
func (p *Producer) TaskUpdated(
	ctx context.Context,
	actorID string,
	task Task,
	recipients []string,
	changes []string,
) error {
	data := taskData(task, actorID)
	if len(changes) > 0 {
		data["changes"] = changes
	}
	return p.emit(ctx, domain.EventTaskUpdated, actorID, recipients, task,
		"Task updated",
		fmt.Sprintf("Task %q was updated", task.Title),
		data)
}

// CommentCreated notifies watchers of a new comment. The comment author is
// the actor.
func (p *Producer) CommentCreated(ctx context.Context, task Task, comment Comment, recipients []string) error {
	data := taskData(task, comment.AuthorID)
	data["commentId"] = comment.ID
	return p.emit(ctx, domain.EventCommentCreated, comment.AuthorID, recipients, task,
		"New comment",
		fmt.Sprintf("New comment on %q: %s", task.Title, excerpt(comment.Body, 140)),
		data)
}

// emit publishes one event per distinct recipient other than the actor. Every
// recipient is attempted; failures are joined into the returned error.
func (p *Producer) emit(
	ctx context.Context,
	eventType domain.EventType,
	actorID string,
	recipients []string,
	task Task,
	title, message string,
	data map[string]any,
) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode event data: %w", err)
	}

	title = excerpt(title, domain.MaxTitleLength)
	message = excerpt(message, domain.MaxMessageLength)

	var errs []error
	for _, userID := range Recipients(actorID, recipients) {
		evt, err := domain.NewNotificationEvent(eventType, userID, task.ID, title, message, raw)
		if err != nil {
			p.fail(eventType, "", userID, err)
			errs = append(errs, err)
			continue
		}
		body, err := evt.Encode()
		if err != nil {
			p.fail(eventType, evt.ID, userID, err)
			errs = append(errs, err)
			continue
		}
		if err := p.publisher.Publish(ctx, body); err != nil {
			p.fail(eventType, evt.ID, userID, err)
			errs = append(errs, fmt.Errorf("publish %s for user %s: %w", eventType, userID, err))
			continue
		}
		p.logger.Debug("event published",
			"event_id", evt.ID,
			"user_id", userID,
			"type", string(eventType))
	}
	return errors.Join(errs...)
}

func (p *Producer) fail(eventType domain.EventType, eventID, userID string, err error) {
	metrics.ProducerPublishFailures.WithLabelValues(string(eventType)).Inc()
	p.logger.Error("failed to publish notification event",
		"error", err,
		"event_id", eventID,
		"user_id", userID,
		"type", string(eventType))
}

// Recipients returns the distinct non-empty ids in recipients, in first-seen
// order, with actorID removed.
func Recipients(actorID string, recipients []string) []string {
	seen := make(map[string]struct{}, len(recipients))
	out := make([]string, 0, len(recipients))
	for _, id := range recipients {
		if id == "" || id == actorID {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func taskData(task Task, actorID string) map[string]any {
	data := map[string]any{
		"taskTitle": task.Title,
	}
	if task.Status != "" {
		data["status"] = task.Status
	}
	if actorID != "" {
		data["actorId"] = actorID
	}
	return data
}

// excerpt shortens s to at most max runes, marking the cut with an ellipsis.
func excerpt(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
