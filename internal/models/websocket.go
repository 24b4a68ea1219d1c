package models

import "github.com/google/uuid"

// Server-to-client event names. These are part of the wire protocol and
// must not change without coordinating with the clients.
const (
	EventNewMessage       = "newMessage"
	EventMessageRead      = "messageRead"
	EventUnreadCount      = "unreadCount"
	EventMessageDeleted   = "messageDeleted"
	EventMessageArchived  = "messageArchived"
	EventFetchUnreadCount = "fetchUnreadCount"
	EventError            = "error"
)

// Client-to-server event names.
const (
	EventGetUnreadCount = "getUnreadCount"
	EventMarkAsRead     = "markAsRead"
)

type WSMessage struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload"`
}

type WSMarkReadPayload struct {
	MessageID uuid.UUID `json:"message_id"`
}

type WSErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// NotifyScope selects the fan-out topic of a notification envelope.
type NotifyScope string

const (
	ScopeUser   NotifyScope = "user"
	ScopeTenant NotifyScope = "tenant"
)

// Notification is the envelope published on the redis notify channel and
// routed by the hub to the matching live connections.
type Notification struct {
	Scope    NotifyScope `json:"scope"`
	UserID   int64       `json:"user_id,omitempty"`
	TenantID int64       `json:"tenant_id,omitempty"`
	Event    string      `json:"event"`
	Payload  interface{} `json:"payload"`
}
