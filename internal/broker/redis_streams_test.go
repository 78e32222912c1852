package broker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStreams(t *testing.T, client redis.UniversalClient, consumer string) *RedisStreams {
	t.Helper()
	b, err := NewRedisStreams(client, StreamConfig{
		Stream:        "notifications:test",
		Group:         "fanout",
		Consumer:      consumer,
		BatchSize:     10,
		BlockTimeout:  20 * time.Millisecond,
		ClaimMinIdle:  10 * time.Millisecond,
		ClaimInterval: time.Hour,
		RetryMin:      5 * time.Millisecond,
		RetryMax:      20 * time.Millisecond,
	}, testLogger())
	require.NoError(t, err)
	return b
}

func newTestClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func pendingCount(t *testing.T, client *redis.Client, b *RedisStreams) int64 {
	t.Helper()
	p, err := client.XPending(context.Background(), b.cfg.Stream, b.cfg.Group).Result()
	require.NoError(t, err)
	return p.Count
}

func TestNewRedisStreams_Validation(t *testing.T) {
	_, err := NewRedisStreams(nil, StreamConfig{Stream: "s", Group: "g", Consumer: "c"}, nil)
	assert.Error(t, err)

	_, client := newTestClient(t)
	_, err = NewRedisStreams(client, StreamConfig{Stream: "s"}, nil)
	assert.Error(t, err)
}

func TestRedisStreams_PublishAndConsume(t *testing.T) {
	_, client := newTestClient(t)
	b := newTestStreams(t, client, "c1")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// published before the group exists; still delivered
	body := []byte(`{"id":"e1","type":"TASK_CREATED","data":{"k":"é"}}`)
	require.NoError(t, b.Publish(ctx, body))

	rec := newRecorder()
	done := make(chan error, 1)
	go func() {
		done <- b.Consume(ctx, func(ctx context.Context, msg Message) error {
			rec.record(msg)
			return nil
		})
	}()

	got := rec.wait(t)
	assert.Equal(t, body, got.Body, "payload bytes are preserved")
	assert.NotEmpty(t, got.ID)

	require.NoError(t, b.Publish(ctx, []byte("second")))
	assert.Equal(t, "second", string(rec.wait(t).Body))

	assert.Eventually(t, func() bool { return pendingCount(t, client, b) == 0 }, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Consume did not stop")
	}
}

func TestRedisStreams_RetriesUntilHandlerSucceeds(t *testing.T) {
	_, client := newTestClient(t)
	b := newTestStreams(t, client, "c1")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var attempts atomic.Int32
	rec := newRecorder()
	go func() {
		_ = b.Consume(ctx, func(ctx context.Context, msg Message) error {
			rec.record(msg)
			if attempts.Add(1) < 3 {
				return errors.New("database unavailable")
			}
			return nil
		})
	}()

	require.NoError(t, b.Publish(ctx, []byte("retry-me")))
	first := rec.wait(t)
	second := rec.wait(t)
	third := rec.wait(t)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.ID, third.ID)
	assert.Eventually(t, func() bool { return pendingCount(t, client, b) == 0 }, time.Second, 10*time.Millisecond)
}

func TestRedisStreams_PermanentFailureIsAcknowledged(t *testing.T) {
	_, client := newTestClient(t)
	b := newTestStreams(t, client, "c1")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	rec := newRecorder()
	go func() {
		_ = b.Consume(ctx, func(ctx context.Context, msg Message) error {
			calls.Add(1)
			rec.record(msg)
			if string(msg.Body) == "poison" {
				return Permanent(errors.New("malformed"))
			}
			return nil
		})
	}()

	require.NoError(t, b.Publish(ctx, []byte("poison")))
	require.NoError(t, b.Publish(ctx, []byte("fine")))
	assert.Equal(t, "poison", string(rec.wait(t).Body))
	assert.Equal(t, "fine", string(rec.wait(t).Body))
	assert.Eventually(t, func() bool { return pendingCount(t, client, b) == 0 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRedisStreams_RestartProcessesOwnPendingEntries(t *testing.T) {
	_, client := newTestClient(t)
	b := newTestStreams(t, client, "c1")
	require.NoError(t, b.Publish(context.Background(), []byte("survives-crash")))

	// First run: the handler never succeeds and the consumer goes away.
	ctx1, cancel1 := context.WithCancel(context.Background())
	rec1 := newRecorder()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = b.Consume(ctx1, func(ctx context.Context, msg Message) error {
			rec1.record(msg)
			return errors.New("crash before ack")
		})
	}()
	rec1.wait(t)
	cancel1()
	<-done
	assert.Equal(t, int64(1), pendingCount(t, client, b))

	// Second run with the same consumer name picks the entry up again.
	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel2()
	rec2 := newRecorder()
	go func() {
		_ = b.Consume(ctx2, func(ctx context.Context, msg Message) error {
			rec2.record(msg)
			return nil
		})
	}()
	assert.Equal(t, "survives-crash", string(rec2.wait(t).Body))
	assert.Eventually(t, func() bool { return pendingCount(t, client, b) == 0 }, time.Second, 10*time.Millisecond)
}

func TestRedisStreams_ClaimsEntriesAbandonedByAnotherConsumer(t *testing.T) {
	_, client := newTestClient(t)
	crashed := newTestStreams(t, client, "crashed")
	require.NoError(t, crashed.Publish(context.Background(), []byte("orphan")))

	ctx1, cancel1 := context.WithCancel(context.Background())
	rec1 := newRecorder()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = crashed.Consume(ctx1, func(ctx context.Context, msg Message) error {
			rec1.record(msg)
			return errors.New("crash before ack")
		})
	}()
	rec1.wait(t)
	cancel1()
	<-done

	survivor := newTestStreams(t, client, "survivor")
	survivor.cfg.ClaimInterval = 30 * time.Millisecond

	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel2()
	rec2 := newRecorder()
	go func() {
		_ = survivor.Consume(ctx2, func(ctx context.Context, msg Message) error {
			rec2.record(msg)
			return nil
		})
	}()

	assert.Equal(t, "orphan", string(rec2.wait(t).Body))
	assert.Eventually(t, func() bool { return pendingCount(t, client, survivor) == 0 }, 2*time.Second, 10*time.Millisecond)
}
