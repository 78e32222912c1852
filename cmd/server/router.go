package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/phrazzld/tasknotify/internal/api"
	apiMiddleware "github.com/phrazzld/tasknotify/internal/api/middleware"
	"github.com/phrazzld/tasknotify/internal/metrics"
)

// setupRouter creates the router serving the realtime endpoint, the REST
// fallback and the operational endpoints.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.TraceMiddleware(app.logger))
	r.Use(apiMiddleware.Metrics)

	// The socket endpoint authenticates in its own handshake.
	r.Handle(app.config.Realtime.Path, app.realtimeHandler)

	notificationHandler := api.NewNotificationHandler(app.notificationService, app.logger)
	authMiddleware := apiMiddleware.NewAuthMiddleware(app.jwtService)
	api.RegisterRoutes(r, notificationHandler, authMiddleware)
	if app.producer != nil {
		api.RegisterEventRoutes(r, api.NewEventHandler(app.producer, app.logger), authMiddleware)
	}

	r.Get("/health", app.health)
	r.Handle("/metrics", metrics.Handler())

	return r
}

func (app *application) health(w http.ResponseWriter, r *http.Request) {
	if app.deps.db != nil {
		if err := app.deps.db.PingContext(r.Context()); err != nil {
			app.logger.Warn("health check failed", "error", err)
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		app.logger.Error("failed to write health check response", "error", err)
	}
}
