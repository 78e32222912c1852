package realtime

import (
	"context"
	"log/slog"

	"github.com/phrazzld/tasknotify/internal/metrics"
	"github.com/phrazzld/tasknotify/internal/registry"
)

// LocalPusher delivers pushes to the sessions registered in this process.
type LocalPusher struct {
	registry registry.Registry
	logger   *slog.Logger
}

// NewLocalPusher creates a pusher over reg.
func NewLocalPusher(reg registry.Registry, logger *slog.Logger) *LocalPusher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalPusher{
		registry: reg,
		logger:   logger.With("component", "local_pusher"),
	}
}

// PushToUser queues push on every live session of the user. A user with no
// sessions is not an error; a session that cannot take the push loses it.
func (p *LocalPusher) PushToUser(ctx context.Context, userID string, push registry.Push) {
	p.Deliver(ctx, userID, push)
}

// Deliver is PushToUser returning the number of sessions that accepted the
// push.
func (p *LocalPusher) Deliver(ctx context.Context, userID string, push registry.Push) int {
	sessions := p.registry.Sessions(userID)
	if len(sessions) == 0 {
		p.logger.Debug("no live sessions for push", "user_id", userID, "event", push.Event)
		return 0
	}

	delivered := 0
	for _, s := range sessions {
		if err := s.Send(ctx, push); err != nil {
			metrics.PushesDropped.Inc()
			p.logger.Debug("push dropped",
				"user_id", userID,
				"session_id", s.ID(),
				"event", push.Event,
				"error", err)
			continue
		}
		metrics.PushesTotal.WithLabelValues(push.Event).Inc()
		delivered++
	}
	return delivered
}
