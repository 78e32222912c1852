package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/phrazzld/tasknotify/internal/registry"
)

// envelope is what travels on the broadcast channel.
type envelope struct {
	UserID string        `json:"userId"`
	Push   registry.Push `json:"push"`
}

// RedisBroadcaster fans pushes out to every instance through Redis pub/sub.
// Each instance runs one subscriber that hands received pushes to its local
// registry, including pushes it published itself.
type RedisBroadcaster struct {
	client  redis.UniversalClient
	channel string
	local   *LocalPusher
	logger  *slog.Logger

	mu     sync.Mutex
	pubsub *redis.PubSub
	done   chan struct{}
}

// NewRedisBroadcaster creates a broadcaster on channel delivering to local.
func NewRedisBroadcaster(
	client redis.UniversalClient,
	channel string,
	local *LocalPusher,
	logger *slog.Logger,
) (*RedisBroadcaster, error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	if channel == "" {
		return nil, errors.New("broadcast channel cannot be empty")
	}
	if local == nil {
		return nil, errors.New("local pusher cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisBroadcaster{
		client:  client,
		channel: channel,
		local:   local,
		logger:  logger.With("component", "redis_broadcaster", "channel", channel),
	}, nil
}

// Start subscribes to the channel and begins delivering in the background.
// It returns once the subscription is confirmed.
func (b *RedisBroadcaster) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pubsub != nil {
		return errors.New("broadcaster already started")
	}

	pubsub := b.client.Subscribe(ctx, b.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", b.channel, err)
	}

	b.pubsub = pubsub
	b.done = make(chan struct{})
	go b.run(pubsub.Channel(), b.done)

	b.logger.Info("broadcast subscriber started")
	return nil
}

func (b *RedisBroadcaster) run(messages <-chan *redis.Message, done chan struct{}) {
	defer close(done)
	for msg := range messages {
		var env envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			b.logger.Warn("discarding malformed broadcast", "error", err)
			continue
		}
		if env.UserID == "" || env.Push.Event == "" {
			b.logger.Warn("discarding incomplete broadcast")
			continue
		}
		b.local.Deliver(context.Background(), env.UserID, env.Push)
	}
}

// Close ends the subscription and waits for the delivery loop to stop.
func (b *RedisBroadcaster) Close() error {
	b.mu.Lock()
	pubsub, done := b.pubsub, b.done
	b.pubsub = nil
	b.mu.Unlock()

	if pubsub == nil {
		return nil
	}
	err := pubsub.Close()
	<-done
	return err
}

// PushToUser publishes push for delivery on every instance. If Redis is
// unreachable the push is delivered to local sessions only.
func (b *RedisBroadcaster) PushToUser(ctx context.Context, userID string, push registry.Push) {
	payload, err := json.Marshal(envelope{UserID: userID, Push: push})
	if err != nil {
		b.logger.Error("failed to encode broadcast", "error", err, "user_id", userID)
		return
	}

	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		b.logger.Warn("broadcast publish failed, delivering locally",
			"error", err,
			"user_id", userID,
			"event", push.Event)
		b.local.Deliver(ctx, userID, push)
	}
}
