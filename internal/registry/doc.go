// Package registry tracks the live realtime sessions of each user on this
// process. Fan-out looks sessions up here; the socket endpoint registers a
// session once it authenticates and unregisters it when the transport closes.
//
// The registry is process-local. Deployments with several instances pair it
// with a broadcaster so that pushes reach sessions held by other instances.
package registry
