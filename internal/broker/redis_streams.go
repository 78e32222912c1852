package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jpillora/backoff"
	"github.com/redis/go-redis/v9"
)

// payloadField is the stream entry field holding the message body.
const payloadField = "payload"

// StreamConfig tunes a RedisStreams transport.
type StreamConfig struct {
	Stream   string
	Group    string
	Consumer string
	// BatchSize caps entries fetched per read.
	BatchSize int64
	// BlockTimeout bounds how long a read waits for new entries.
	BlockTimeout time.Duration
	// ClaimMinIdle is how long an entry must sit unacknowledged with another
	// consumer before this one takes it over.
	ClaimMinIdle time.Duration
	// ClaimInterval is how often abandoned entries are looked for.
	ClaimInterval time.Duration
	// RetryMin and RetryMax bound the pause after a failed handler or read.
	RetryMin time.Duration
	RetryMax time.Duration
}

// RedisStreams implements Publisher and Consumer on a Redis stream with a
// consumer group.
type RedisStreams struct {
	client redis.UniversalClient
	cfg    StreamConfig
	logger *slog.Logger
}

var (
	_ Publisher = (*RedisStreams)(nil)
	_ Consumer  = (*RedisStreams)(nil)
)

// NewRedisStreams creates a stream transport. Zero durations and sizes in cfg
// fall back to defaults.
func NewRedisStreams(client redis.UniversalClient, cfg StreamConfig, logger *slog.Logger) (*RedisStreams, error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	if cfg.Stream == "" || cfg.Group == "" || cfg.Consumer == "" {
		return nil, errors.New("stream, group and consumer are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 16
	}
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = 5 * time.Second
	}
	if cfg.ClaimMinIdle <= 0 {
		cfg.ClaimMinIdle = 30 * time.Second
	}
	if cfg.ClaimInterval <= 0 {
		cfg.ClaimInterval = 15 * time.Second
	}
	if cfg.RetryMin <= 0 {
		cfg.RetryMin = 200 * time.Millisecond
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = 30 * time.Second
	}

	return &RedisStreams{
		client: client,
		cfg:    cfg,
		logger: logger.With(
			slog.String("component", "redis_streams"),
			slog.String("stream", cfg.Stream),
			slog.String("group", cfg.Group),
			slog.String("consumer", cfg.Consumer),
		),
	}, nil
}

// Publish appends body to the stream.
func (b *RedisStreams) Publish(ctx context.Context, body []byte) error {
	id, err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: b.cfg.Stream,
		Values: map[string]interface{}{payloadField: body},
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to append to stream %s: %w", b.cfg.Stream, err)
	}
	b.logger.Debug("message published", slog.String("message_id", id))
	return nil
}

// EnsureGroup creates the consumer group, and the stream if needed. The group
// starts at the beginning of the stream so entries published before the first
// consumer started are still delivered.
func (b *RedisStreams) EnsureGroup(ctx context.Context) error {
	err := b.client.XGroupCreateMkStream(ctx, b.cfg.Stream, b.cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group %s: %w", b.cfg.Group, err)
	}
	return nil
}

// Consume implements Consumer. It first drains entries this consumer read but
// never acknowledged, then waits for new ones, and periodically takes over
// entries abandoned by other consumers. Returns nil once ctx is cancelled.
func (b *RedisStreams) Consume(ctx context.Context, handler Handler) error {
	if err := b.EnsureGroup(ctx); err != nil {
		return err
	}

	retry := &backoff.Backoff{Min: b.cfg.RetryMin, Max: b.cfg.RetryMax, Factor: 2, Jitter: true}
	readPending := true
	lastClaim := time.Now()

	b.logger.Info("consumer started")
	defer b.logger.Info("consumer stopped")

	for ctx.Err() == nil {
		if time.Since(lastClaim) >= b.cfg.ClaimInterval {
			lastClaim = time.Now()
			if !b.reclaim(ctx, handler) {
				readPending = true
			}
		}

		id := ">"
		if readPending {
			id = "0"
		}

		msgs, err := b.read(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			b.logger.Error("failed to read from stream", slog.String("error", err.Error()))
			sleep(ctx, retry.Duration())
			continue
		}

		if readPending && len(msgs) == 0 {
			readPending = false
			continue
		}

		if !b.process(ctx, handler, msgs) {
			readPending = true
			sleep(ctx, retry.Duration())
			continue
		}
		retry.Reset()
	}

	return nil
}

func (b *RedisStreams) read(ctx context.Context, id string) ([]redis.XMessage, error) {
	block := b.cfg.BlockTimeout
	if id != ">" {
		// history reads return immediately; a negative value omits BLOCK
		block = -1
	}

	streams, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    b.cfg.Group,
		Consumer: b.cfg.Consumer,
		Streams:  []string{b.cfg.Stream, id},
		Count:    b.cfg.BatchSize,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var msgs []redis.XMessage
	for _, s := range streams {
		msgs = append(msgs, s.Messages...)
	}
	return msgs, nil
}

// reclaim takes over entries idle longer than ClaimMinIdle and handles them.
// Returns false if any claimed entry failed and remains pending.
func (b *RedisStreams) reclaim(ctx context.Context, handler Handler) bool {
	start := "0-0"
	for {
		msgs, next, err := b.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   b.cfg.Stream,
			Group:    b.cfg.Group,
			Consumer: b.cfg.Consumer,
			MinIdle:  b.cfg.ClaimMinIdle,
			Start:    start,
			Count:    b.cfg.BatchSize,
		}).Result()
		if err != nil {
			if ctx.Err() == nil {
				b.logger.Error("failed to claim idle entries", slog.String("error", err.Error()))
			}
			return true
		}

		if len(msgs) > 0 {
			b.logger.Info("claimed idle entries", slog.Int("count", len(msgs)))
			if !b.process(ctx, handler, msgs) {
				return false
			}
		}

		if next == "0-0" || next == "" || len(msgs) == 0 {
			return true
		}
		start = next
	}
}

// process handles msgs in order and stops at the first retryable failure so
// later entries are not acknowledged ahead of it.
func (b *RedisStreams) process(ctx context.Context, handler Handler, msgs []redis.XMessage) bool {
	for _, xm := range msgs {
		body, ok := payload(xm)
		if !ok {
			b.logger.Warn("dropping entry without payload", slog.String("message_id", xm.ID))
			b.ack(ctx, xm.ID)
			continue
		}

		err := handler(ctx, Message{ID: xm.ID, Body: body})
		switch {
		case err == nil:
			b.ack(ctx, xm.ID)
		case IsPermanent(err):
			b.logger.Error("dropping message that cannot be processed",
				slog.String("message_id", xm.ID),
				slog.String("error", err.Error()))
			b.ack(ctx, xm.ID)
		default:
			b.logger.Warn("message handling failed, leaving it pending",
				slog.String("message_id", xm.ID),
				slog.String("error", err.Error()))
			return false
		}
	}
	return true
}

func (b *RedisStreams) ack(ctx context.Context, id string) {
	// a handled message is acknowledged even when shutdown began meanwhile
	ctx = context.WithoutCancel(ctx)
	if err := b.client.XAck(ctx, b.cfg.Stream, b.cfg.Group, id).Err(); err != nil {
		b.logger.Error("failed to acknowledge message",
			slog.String("message_id", id),
			slog.String("error", err.Error()))
	}
}

func payload(xm redis.XMessage) ([]byte, bool) {
	v, ok := xm.Values[payloadField]
	if !ok {
		return nil, false
	}
	switch p := v.(type) {
	case string:
		return []byte(p), true
	case []byte:
		return p, true
	default:
		return nil, false
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
