// Package events turns completed task and comment mutations into
// notification events, one per affected user, and hands them to a broker
// publisher.
//
// Publishing is best-effort relative to the mutation that triggered it: the
// caller's write has already succeeded, so a failed publish is logged,
// counted, and reported back as an error the caller may ignore, but it is
// never silently dropped.
package events
