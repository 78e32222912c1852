// Package client is the consumer side of the notification service: it keeps
// one realtime connection per authenticated user, reconnects with bounded
// retries, normalizes pushed notifications into a client View and mirrors
// read-state changes into a local State. A small REST client covers listing
// and marking notifications as read.
package client
