package api

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/tasknotify/internal/api/shared"
	"github.com/phrazzld/tasknotify/internal/domain"
	"github.com/phrazzld/tasknotify/internal/platform/logger"
)

// getUserIDFromContext extracts the authenticated user's ID from the request
// context, where the authentication middleware put it.
func getUserIDFromContext(r *http.Request) (string, bool) {
	return shared.GetUserID(r.Context())
}

// getPathUUID extracts a UUID from the URL path parameters.
func getPathUUID(r *http.Request, paramName string) (uuid.UUID, error) {
	pathParam := chi.URLParam(r, paramName)
	if pathParam == "" {
		return uuid.Nil, fmt.Errorf("%w: %s is required", domain.ErrValidation, paramName)
	}

	id, err := uuid.Parse(pathParam)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s has invalid format", domain.ErrInvalidID, paramName)
	}

	return id, nil
}

// requireUserID writes a 401 and returns false when the request carries no
// authenticated user.
func requireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := getUserIDFromContext(r)
	if !ok {
		logger.FromContext(r.Context()).Warn("user ID not found in request context")
		HandleAPIError(w, r, domain.ErrUnauthorized, "User ID not found or invalid")
		return "", false
	}
	return userID, true
}

// handleUserIDAndPathUUID extracts both the user ID from context and a UUID
// from the path parameters. It writes an error response if either extraction
// fails.
func handleUserIDAndPathUUID(
	w http.ResponseWriter,
	r *http.Request,
	paramName string,
) (string, uuid.UUID, bool) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return "", uuid.Nil, false
	}

	pathID, err := getPathUUID(r, paramName)
	if err != nil {
		logger.FromContext(r.Context()).Debug("invalid path parameter",
			slog.String("param_name", paramName),
			slog.String("value", chi.URLParam(r, paramName)))
		HandleAPIError(w, r, err, "")
		return "", uuid.Nil, false
	}

	return userID, pathID, true
}

// parseListQuery reads and validates the list endpoint's query string.
func parseListQuery(r *http.Request) (ListNotificationsQuery, error) {
	q := r.URL.Query()

	page, err := shared.QueryInt(q, "page")
	if err != nil {
		return ListNotificationsQuery{}, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	limit, err := shared.QueryInt(q, "limit")
	if err != nil {
		return ListNotificationsQuery{}, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	isRead, err := shared.QueryBool(q, "isRead")
	if err != nil {
		return ListNotificationsQuery{}, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	query := ListNotificationsQuery{Page: page, Limit: limit, IsRead: isRead}
	if err := shared.ValidateRequest(&query); err != nil {
		return ListNotificationsQuery{}, err
	}
	return query, nil
}
