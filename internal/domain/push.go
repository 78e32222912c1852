package domain

// Realtime push event names. Task and comment names are chosen per event type;
// the read-state names are emitted by the mark-as-read operations.
const (
	PushCommentNew           = "comment:new"
	PushTaskCreated          = "task:created"
	PushTaskAssigned         = "task:assigned"
	PushTaskUpdated          = "task:updated"
	PushNotificationRead     = "notification_read"
	PushNotificationsReadAll = "notifications_read_all"
)

// Realtime control event names used by the connect handshake.
const (
	EventAuthenticate         = "authenticate"
	EventAuthenticated        = "authenticated"
	EventAuthenticationFailed = "authentication_failed"
)

var pushNames = map[EventType]string{
	EventTaskCreated:    PushTaskCreated,
	EventTaskAssigned:   PushTaskAssigned,
	EventTaskUpdated:    PushTaskUpdated,
	EventCommentCreated: PushCommentNew,
}

// PushName returns the realtime event name used to deliver a notification of
// type t.
func PushName(t EventType) string {
	if name, ok := pushNames[t]; ok {
		return name
	}
	return PushCommentNew
}

// ReadPayload is the body of a notification_read push.
type ReadPayload struct {
	ID string `json:"id"`
}

// ReadAllPayload is the body of a notifications_read_all push.
type ReadAllPayload struct {
	UserID  string `json:"userId"`
	Updated int64  `json:"updated"`
}
