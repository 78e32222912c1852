// Package realtime is the server side of the notification socket. It upgrades
// HTTP requests with gorilla/websocket, runs the authenticate handshake,
// registers authenticated sessions in the connection registry, and delivers
// pushes to them.
//
// Frames are JSON text messages of the form {"event": name, "data": payload}
// in both directions. The only client frame the server acts on is
// "authenticate"; everything else a client sends is ignored.
//
// Two pushers are provided. LocalPusher reaches sessions held by this
// process. RedisBroadcaster publishes every push on a Redis channel and
// delivers what it receives to its local registry, so a push reaches a
// user's sessions on every instance.
package realtime
