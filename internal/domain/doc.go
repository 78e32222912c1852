// Package domain contains the core entities of the notification service:
// the event contract producers publish, the notification record the service
// persists, and the names of the realtime pushes derived from them. It is
// independent of any specific infrastructure or delivery mechanism.
package domain
