// Package broker carries notification events from producers to the fan-out
// consumer with at-least-once delivery. A message is acknowledged only after
// its handler succeeds, so a consumer crash leads to redelivery and handlers
// must be idempotent.
//
// RedisStreams is the production transport. Memory is an in-process
// transport for single-binary development and tests.
package broker
