package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/phrazzld/tasknotify/internal/broker"
	"github.com/phrazzld/tasknotify/internal/domain"
	"github.com/phrazzld/tasknotify/internal/metrics"
	"github.com/phrazzld/tasknotify/internal/platform/logger"
)

// NewMessageHandler adapts the service to the broker. Bodies that can never be
// consumed (malformed JSON, events failing validation) are marked permanent so
// the transport acknowledges them instead of redelivering forever.
func NewMessageHandler(svc NotificationService, log *slog.Logger) broker.Handler {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "notification_consumer")

	return func(ctx context.Context, msg broker.Message) error {
		msgLog := log.With("message_id", msg.ID)
		ctx = logger.WithLogger(ctx, msgLog)

		evt, err := domain.DecodeEvent(msg.Body)
		if err != nil {
			metrics.EventsConsumed.WithLabelValues(metrics.ResultInvalid).Inc()
			msgLog.Error("discarding undecodable event", "error", err)
			return broker.Permanent(err)
		}

		if err := svc.Consume(ctx, evt); err != nil {
			if errors.Is(err, domain.ErrValidation) || errors.Is(err, domain.ErrInvalidFormat) {
				msgLog.Error("discarding invalid event", "event_id", evt.ID, "error", err)
				return broker.Permanent(err)
			}
			msgLog.Error("event consumption failed, leaving for redelivery",
				"event_id", evt.ID,
				"error", err)
			return err
		}
		return nil
	}
}
