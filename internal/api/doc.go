// Package api serves the REST fallback of the notification service over
// chi. It translates HTTP requests into NotificationService calls and maps
// service errors to status codes and sanitized messages; the raw error only
// ever reaches the logs, redacted.
package api
