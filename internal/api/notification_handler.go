package api

import (
	"log/slog"
	"net/http"

	"github.com/phrazzld/tasknotify/internal/api/shared"
	"github.com/phrazzld/tasknotify/internal/service"
)

// NotificationHandler serves the REST fallback for notifications: paged
// listing, read-state changes and the unread count.
type NotificationHandler struct {
	service service.NotificationService
	logger  *slog.Logger
}

// NewNotificationHandler creates a new NotificationHandler.
func NewNotificationHandler(svc service.NotificationService, logger *slog.Logger) *NotificationHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationHandler{
		service: svc,
		logger:  logger.With("component", "notification_handler"),
	}
}

// ListNotifications handles GET /api/notifications?page=&limit=&isRead=.
func (h *NotificationHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	query, err := parseListQuery(r)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	page, err := h.service.GetUserNotifications(r.Context(), userID, service.ListOptions{
		Page:   query.Page,
		Limit:  query.Limit,
		IsRead: query.IsRead,
	})
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, NotificationListResponse{
		Data: page.Items,
		Meta: PageMeta{
			Page:        page.Page,
			Limit:       page.Limit,
			Total:       page.Total,
			UnreadCount: page.Unread,
		},
	})
}

// MarkAsRead handles POST /api/notifications/{id}/read. Marking an unknown,
// foreign or already-read notification succeeds without effect.
func (h *NotificationHandler) MarkAsRead(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := handleUserIDAndPathUUID(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.MarkAsRead(r.Context(), id, userID); err != nil {
		HandleAPIError(w, r, err, "Failed to mark notification as read")
		return
	}

	shared.RespondNoContent(w)
}

// MarkAllAsRead handles POST /api/notifications/read-all.
func (h *NotificationHandler) MarkAllAsRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	updated, err := h.service.MarkAllAsRead(r.Context(), userID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to mark notifications as read")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, MarkAllReadResponse{Updated: updated})
}

// UnreadCount handles GET /api/notifications/unread-count.
func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	count, err := h.service.UnreadCount(r.Context(), userID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, UnreadCountResponse{Count: count})
}
