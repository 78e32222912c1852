// Package postgres provides the PostgreSQL implementation of the notification
// store defined in the internal/store package, the embedded schema migrations,
// and the mapping of Postgres error codes onto store errors.
//
// Notifications are unique per producer event ID. Consuming the same event
// twice resolves to the row written the first time.
package postgres
