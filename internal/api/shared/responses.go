package shared

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/phrazzld/tasknotify/internal/platform/logger"
	"github.com/phrazzld/tasknotify/internal/redact"
	"github.com/phrazzld/tasknotify/internal/store"
)

// ErrorResponse is the body of every failed request. Clients surface Error in
// a transient toast; TraceID correlates the toast with server logs.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// ResponseOption adjusts how an error response is logged.
type ResponseOption func(*responseOptions)

type responseOptions struct {
	warn bool
}

// WithElevatedLogLevel logs a 4xx response at WARN instead of DEBUG. The auth
// layer uses it so rejected credentials show up in operational logs.
func WithElevatedLogLevel() ResponseOption {
	return func(opts *responseOptions) {
		opts.warn = true
	}
}

// RespondWithJSON writes data as JSON. Notification payloads are per user and
// change on every push, so responses are never cached.
func RespondWithJSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.FromContext(r.Context()).Error("failed to encode JSON response", "error", err)
	}
}

// RespondNoContent writes an empty 204 response.
func RespondNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// RespondWithError writes message as an error response.
func RespondWithError(w http.ResponseWriter, r *http.Request, status int, message string) {
	RespondWithErrorAndLog(w, r, status, message, nil)
}

// RespondWithErrorAndLog writes userMessage to the client and logs err,
// redacted, with the request's trace and user. Server errors log at ERROR,
// client errors at DEBUG unless WithElevatedLogLevel is given. err never
// reaches the response body.
func RespondWithErrorAndLog(
	w http.ResponseWriter,
	r *http.Request,
	status int,
	userMessage string,
	err error,
	opts ...ResponseOption,
) {
	var options responseOptions
	for _, opt := range opts {
		opt(&options)
	}

	ctx := r.Context()
	traceID := GetTraceID(ctx)
	attrs := []slog.Attr{
		slog.String("trace_id", traceID),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status_code", status),
		slog.String("user_message", userMessage),
	}
	if userID, ok := GetUserID(ctx); ok {
		attrs = append(attrs, slog.String("user_id", userID))
	}
	if err != nil {
		attrs = append(attrs,
			slog.String("error", redact.Error(err)),
			slog.String("error_type", fmt.Sprintf("%T", err)))
		var storeErr *store.StoreError
		if errors.As(err, &storeErr) {
			attrs = append(attrs, slog.String("store_operation", storeErr.Operation))
		}
	}

	logger.FromContext(ctx).LogAttrs(ctx, errorLevel(status, options.warn), "API error response", attrs...)
	RespondWithJSON(w, r, status, ErrorResponse{Error: userMessage, TraceID: traceID})
}

func errorLevel(status int, warn bool) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case warn && status >= http.StatusBadRequest:
		return slog.LevelWarn
	default:
		return slog.LevelDebug
	}
}
