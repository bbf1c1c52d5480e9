package bus

import "time"

// Event kinds published by the chat stack. Subscribers filter by prefix,
// so every kind starts with its namespace ("transport.", "stream.", ...).
const (
	KindStatusChanged  = "transport.status_changed"
	KindConnected      = "transport.connected"
	KindDisconnected   = "transport.disconnected"
	KindTransportError = "transport.error"

	KindRoomJoined = "room.joined"
	KindRoomLeft   = "room.left"

	KindMessageAppended = "stream.appended"
	KindHistoryLoaded   = "stream.loaded"
	KindUnread          = "stream.unread"
	KindResyncFailed    = "stream.resync_failed"

	KindTypingChanged = "typing.changed"

	KindChatsLoaded = "chats.loaded"

	KindCacheUpdated = "cache.updated"

	KindRefreshFailed = "auth.refresh_failed"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	ChatID    string
	Timestamp time.Time
	Payload   any
}

// NewEvent stamps an event with the current time.
func NewEvent(kind, chatID string, payload any) Event {
	return Event{Kind: kind, ChatID: chatID, Timestamp: time.Now(), Payload: payload}
}
