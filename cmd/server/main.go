// Package main runs the notification service: it consumes task events from
// the broker, persists one notification per event, pushes it to the user's
// open sockets and serves the REST fallback.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/phrazzld/tasknotify/internal/config"
	"github.com/phrazzld/tasknotify/internal/platform/logger"
	"github.com/phrazzld/tasknotify/internal/platform/postgres"
	"github.com/phrazzld/tasknotify/internal/platform/redis"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Printf("notification service failed: %v", err)
		stop()
		os.Exit(1)
	}
}

// run loads configuration, connects the backing services and serves until
// ctx is cancelled.
func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	l, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}
	l.Info("server configuration loaded",
		slog.Int("port", cfg.Server.Port),
		slog.String("log_level", cfg.Server.LogLevel),
		slog.String("broker", cfg.Broker.Driver),
		slog.String("fanout", cfg.Realtime.Fanout))

	db, err := postgres.Open(ctx, cfg.Database, l)
	if err != nil {
		return err
	}
	if err := postgres.Migrate(db, "up", l); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	deps := dependencies{db: db}
	if cfg.NeedsRedis() {
		deps.redis, err = redis.NewClient(ctx, cfg.Redis, l)
		if err != nil {
			_ = db.Close()
			return err
		}
	}

	app, err := newApplication(cfg, l, deps)
	if err != nil {
		deps.close(l)
		return err
	}
	return app.Run(ctx)
}
