package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/phrazzld/tasknotify/internal/broker"
	"github.com/phrazzld/tasknotify/internal/domain"
	"github.com/phrazzld/tasknotify/internal/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// capture drains everything published to a memory broker.
func capture(t *testing.T, mem *broker.Memory) []*domain.NotificationEvent {
	t.Helper()
	var out []*domain.NotificationEvent
	if mem.Queued() == 0 {
		return out
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	err := mem.Consume(ctx, func(_ context.Context, msg broker.Message) error {
		evt, err := domain.DecodeEvent(msg.Body)
		require.NoError(t, err)
		out = append(out, evt)
		if mem.Queued() == 0 {
			cancel()
		}
		return nil
	})
	require.NoError(t, err)
	return out
}

func TestNewProducer(t *testing.T) {
	_, err := NewProducer(nil, testLogger())
	assert.Error(t, err)

	p, err := NewProducer(&mocks.MockPublisher{}, nil)
	require.NoError(t, err)
	assert.NotNil(t, p)
}

func TestRecipients(t *testing.T) {
	assert.Equal(t, []string{"b", "c"}, Recipients("a", []string{"a", "b", "", "c", "b", "a"}))
	assert.Empty(t, Recipients("a", nil))
	assert.Empty(t, Recipients("a", []string{"a"}))
}

func TestTaskAssignedOneEventPerAssignee(t *testing.T) {
	mem := broker.NewMemory(testLogger())
	p, err := NewProducer(mem, testLogger())
	require.NoError(t, err)

	task := Task{ID: "t1", Title: "Ship it"}
	require.NoError(t, p.TaskAssigned(context.Background(), "boss", task, []string{"u1", "u2", "u3", "u2"}))

	events := capture(t, mem)
	require.Len(t, events, 3)

	ids := make(map[string]bool)
	for i, want := range []string{"u1", "u2", "u3"} {
		evt := events[i]
		assert.Equal(t, want, evt.UserID)
		assert.Equal(t, domain.EventTaskAssigned, evt.Type)
		assert.Equal(t, "t1", evt.TaskID)
		assert.Contains(t, evt.Message, "Ship it")
		assert.False(t, evt.CreatedAt.IsZero())
		ids[evt.ID] = true

		var data map[string]any
		require.NoError(t, json.Unmarshal(evt.Data, &data))
		assert.Equal(t, "boss", data["actorId"])
	}
	assert.Len(t, ids, 3, "event ids must be unique")
}

func TestActorIsSkipped(t *testing.T) {
	mem := broker.NewMemory(testLogger())
	p, err := NewProducer(mem, testLogger())
	require.NoError(t, err)

	ctx := context.Background()
	task := Task{ID: "t1", Title: "Docs"}
	require.NoError(t, p.TaskCreated(ctx, "u1", task, []string{"u1"}))
	require.NoError(t, p.TaskUpdated(ctx, "u1", task, []string{"u1", "u2"}, []string{"status"}))
	require.NoError(t, p.CommentCreated(ctx, task, Comment{ID: "c1", AuthorID: "u2", Body: "hi"}, []string{"u1", "u2"}))

	events := capture(t, mem)
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventTaskUpdated, events[0].Type)
	assert.Equal(t, "u2", events[0].UserID)
	assert.Equal(t, domain.EventCommentCreated, events[1].Type)
	assert.Equal(t, "u1", events[1].UserID)

	var data map[string]any
	require.NoError(t, json.Unmarshal(events[1].Data, &data))
	assert.Equal(t, "c1", data["commentId"])
}

func TestCommentExcerpt(t *testing.T) {
	mem := broker.NewMemory(testLogger())
	p, err := NewProducer(mem, testLogger())
	require.NoError(t, err)

	long := strings.Repeat("x", 500)
	require.NoError(t, p.CommentCreated(context.Background(), Task{ID: "t1", Title: "T"},
		Comment{ID: "c1", AuthorID: "a", Body: long}, []string{"u1"}))

	events := capture(t, mem)
	require.Len(t, events, 1)
	assert.Less(t, len(events[0].Message), 200)
}

func TestLongTaskTitleIsShortened(t *testing.T) {
	mem := broker.NewMemory(testLogger())
	p, err := NewProducer(mem, testLogger())
	require.NoError(t, err)

	task := Task{ID: "t1", Title: strings.Repeat("x", 3000)}
	ctx := context.Background()
	require.NoError(t, p.TaskCreated(ctx, "actor", task, []string{"u1", "u2"}))
	require.NoError(t, p.TaskAssigned(ctx, "actor", task, []string{"u1"}))
	require.NoError(t, p.TaskUpdated(ctx, "actor", task, []string{"u1"}, nil))

	events := capture(t, mem)
	require.Len(t, events, 4)
	for _, evt := range events {
		assert.LessOrEqual(t, utf8.RuneCountInString(evt.Title), domain.MaxTitleLength)
		assert.LessOrEqual(t, utf8.RuneCountInString(evt.Message), domain.MaxMessageLength)
		assert.NoError(t, evt.Validate())
	}
	assert.True(t, strings.HasSuffix(events[0].Title, "…"))
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "short", excerpt("short", 10))
	assert.Equal(t, "abcd…", excerpt("abcdefgh", 5))
	assert.Equal(t, 5, utf8.RuneCountInString(excerpt(strings.Repeat("é", 9), 5)))
}

func TestPublishFailureDoesNotStopOtherRecipients(t *testing.T) {
	pub := &mocks.MockPublisher{}
	failure := errors.New("broker unreachable")

	userOf := func(body []byte) string {
		evt, err := domain.DecodeEvent(body)
		if err != nil {
			return ""
		}
		return evt.UserID
	}

	var published []string
	pub.On("Publish", mock.Anything, mock.MatchedBy(func(body []byte) bool {
		return userOf(body) == "u2"
	})).Return(failure)
	pub.On("Publish", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			published = append(published, userOf(args.Get(1).([]byte)))
		}).
		Return(nil)

	p, err := NewProducer(pub, testLogger())
	require.NoError(t, err)

	err = p.TaskAssigned(context.Background(), "boss", Task{ID: "t1", Title: "T"}, []string{"u1", "u2", "u3"})
	require.Error(t, err)
	assert.ErrorIs(t, err, failure)
	assert.Contains(t, err.Error(), "u2")
	assert.Equal(t, []string{"u1", "u3"}, published)
	pub.AssertNumberOfCalls(t, "Publish", 3)
}

func TestClosedBrokerIsReported(t *testing.T) {
	mem := broker.NewMemory(testLogger())
	require.NoError(t, mem.Close())

	p, err := NewProducer(mem, testLogger())
	require.NoError(t, err)

	err = p.TaskCreated(context.Background(), "a", Task{ID: "t1", Title: "T"}, []string{"u1"})
	assert.ErrorIs(t, err, broker.ErrClosed)
}
