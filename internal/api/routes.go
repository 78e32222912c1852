package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/phrazzld/tasknotify/internal/api/middleware"
)

// RegisterRoutes mounts the authenticated notification endpoints under
// /api/notifications, with /notifications as an alias for clients that
// address the REST surface without the /api prefix.
func RegisterRoutes(r chi.Router, h *NotificationHandler, authMiddleware *middleware.AuthMiddleware) {
	routes := func(r chi.Router) {
		r.Use(authMiddleware.Authenticate)

		r.Get("/", h.ListNotifications)
		r.Get("/unread-count", h.UnreadCount)
		r.Post("/read-all", h.MarkAllAsRead)
		r.Post("/{id}/read", h.MarkAsRead)
	}
	r.Route("/api/notifications", routes)
	r.Route("/notifications", routes)
}

// RegisterEventRoutes mounts the authenticated event ingress at /api/events.
func RegisterEventRoutes(r chi.Router, h *EventHandler, authMiddleware *middleware.AuthMiddleware) {
	r.With(authMiddleware.Authenticate).Post("/api/events", h.PublishEvent)
}
