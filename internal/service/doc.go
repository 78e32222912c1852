// Package service contains the notification fan-out use cases. It sits
// between the broker consumer, the REST surface and the realtime pushers on
// one side, and the notification store (defined in internal/store) on the
// other.
//
// Consumption is idempotent on the event id: the store keeps exactly one row
// per event, and a redelivered event is acknowledged without being pushed a
// second time. Pushes are best-effort; the stored row is what clients
// reconcile against.
//
// Errors follow the package convention: expected conditions come back as
// sentinel errors (ErrNotificationNotFound, ErrInvalidPagination), everything
// else is wrapped in NotificationServiceError so callers can still reach the
// cause with errors.Is/errors.As.
package service
