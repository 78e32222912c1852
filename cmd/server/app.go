package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/phrazzld/tasknotify/internal/broker"
	"github.com/phrazzld/tasknotify/internal/config"
	"github.com/phrazzld/tasknotify/internal/events"
	"github.com/phrazzld/tasknotify/internal/metrics"
	"github.com/phrazzld/tasknotify/internal/platform/postgres"
	"github.com/phrazzld/tasknotify/internal/realtime"
	"github.com/phrazzld/tasknotify/internal/redact"
	"github.com/phrazzld/tasknotify/internal/registry"
	"github.com/phrazzld/tasknotify/internal/service"
	"github.com/phrazzld/tasknotify/internal/service/auth"
	"github.com/phrazzld/tasknotify/internal/store"
)

// dependencies are the connections established before the application is
// wired. redis is nil when no component needs it.
type dependencies struct {
	db    *sql.DB
	redis goredis.UniversalClient
	// store overrides the Postgres store built from db.
	store store.NotificationStore
}

func (d dependencies) close(logger *slog.Logger) {
	if d.redis != nil {
		if err := d.redis.Close(); err != nil {
			logger.Error("error closing redis client", "error", redact.Error(err))
		}
	}
	if d.db != nil {
		if err := d.db.Close(); err != nil {
			logger.Error("error closing database connection", "error", redact.Error(err))
		}
	}
}

// eventTransport is what the application needs from a broker.
type eventTransport interface {
	broker.Publisher
	broker.Consumer
}

// application holds the wired components and owns their shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	deps   dependencies

	broker      eventTransport
	registry    *registry.InMemoryRegistry
	broadcaster *realtime.RedisBroadcaster
	pusher      service.Pusher

	jwtService          auth.JWTService
	notificationService service.NotificationService
	realtimeHandler     *realtime.Handler
	// producer is nil unless the HTTP event ingress is enabled.
	producer *events.Producer
}

// newApplication wires every component from cfg and the established
// connections.
func newApplication(cfg *config.Config, logger *slog.Logger, deps dependencies) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
		deps:   deps,
	}

	var err error
	app.jwtService, err = auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
	}

	app.broker, err = newBroker(cfg, deps.redis, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize broker: %w", err)
	}

	app.registry = registry.NewInMemoryRegistry(logger, metrics.SetSessions)
	local := realtime.NewLocalPusher(app.registry, logger)
	app.pusher = local
	if cfg.Realtime.Fanout == "redis" {
		app.broadcaster, err = realtime.NewRedisBroadcaster(deps.redis, cfg.Realtime.BroadcastChannel, local, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize broadcaster: %w", err)
		}
		app.pusher = app.broadcaster
	}

	notificationStore := deps.store
	if notificationStore == nil {
		notificationStore = postgres.NewPostgresNotificationStore(deps.db, logger)
	}
	app.notificationService, err = service.NewNotificationService(notificationStore, app.pusher, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create notification service: %w", err)
	}

	app.realtimeHandler, err = realtime.NewHandler(cfg.Realtime, app.jwtService, app.registry, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create realtime handler: %w", err)
	}

	if cfg.IngressEnabled() {
		app.producer, err = events.NewProducer(app.broker, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create event producer: %w", err)
		}
	}

	logger.Info("application initialized",
		slog.String("broker", cfg.Broker.Driver),
		slog.Bool("http_ingress", app.producer != nil),
		slog.String("fanout", cfg.Realtime.Fanout),
		slog.String("realtime_path", cfg.Realtime.Path))
	return app, nil
}

func newBroker(cfg *config.Config, client goredis.UniversalClient, logger *slog.Logger) (eventTransport, error) {
	switch cfg.Broker.Driver {
	case "memory":
		return broker.NewMemory(logger), nil
	case "redis":
		return broker.NewRedisStreams(client, broker.StreamConfig{
			Stream:        cfg.Broker.Stream,
			Group:         cfg.Broker.Group,
			Consumer:      cfg.Broker.Consumer,
			BatchSize:     cfg.Broker.BatchSize,
			BlockTimeout:  cfg.Broker.BlockTimeout,
			ClaimMinIdle:  cfg.Broker.ClaimMinIdle,
			ClaimInterval: cfg.Broker.ClaimInterval,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown broker driver %q", cfg.Broker.Driver)
	}
}

// consume feeds broker messages to the notification service until ctx is
// cancelled.
func (app *application) consume(ctx context.Context) error {
	handler := service.NewMessageHandler(app.notificationService, app.logger)
	app.logger.Info("event consumer started", slog.String("broker", app.config.Broker.Driver))
	if err := app.broker.Consume(ctx, handler); err != nil && ctx.Err() == nil {
		return fmt.Errorf("event consumer stopped: %w", err)
	}
	return nil
}

// cleanup releases resources once the HTTP server and consumer have stopped.
func (app *application) cleanup() {
	if app.broadcaster != nil {
		if err := app.broadcaster.Close(); err != nil {
			app.logger.Error("error closing broadcaster", "error", redact.Error(err))
		}
	}
	if closer, ok := app.broker.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			app.logger.Error("error closing broker", "error", redact.Error(err))
		}
	}
	app.deps.close(app.logger)
	app.logger.Info("application shutdown completed")
}
