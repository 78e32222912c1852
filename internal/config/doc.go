// Package config handles configuration loading, parsing, and validation
// from various sources (environment variables, files). It provides type-safe
// access to the settings of the notification service: HTTP server, Postgres,
// token validation, the event broker, and the realtime endpoint.
package config
