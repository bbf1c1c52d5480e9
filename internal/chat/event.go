package chat

import (
	"encoding/json"
	"time"
)

// Channel event names.
const (
	EventJoin           = "join"
	EventLeave          = "leave"
	EventJoined         = "joined"
	EventSendMessage    = "send_message"
	EventReceiveMessage = "receive_message"
	EventTyping         = "typing"
)

// Handler receives the raw data of one channel event.
type Handler func(data json.RawMessage)

// Channel is the event surface room, stream and typing share. Only the
// transport opens and closes the underlying connection.
type Channel interface {
	Emit(event string, payload any) error
	On(event string, h Handler) (unsubscribe func())
	OnConnect(fn func()) (unsubscribe func())
}

// RoomPayload is the body of join, leave and joined.
type RoomPayload struct {
	ChatID string `json:"chatId"`
}

// SendPayload is the body of send_message.
type SendPayload struct {
	ChatID     string `json:"chatId"`
	Text       string `json:"text"`
	SenderID   string `json:"senderId"`
	Timestamp  string `json:"timestamp"`
	SenderName string `json:"senderName,omitempty"`
}

// NewSendPayload builds the wire form of an outgoing message.
func NewSendPayload(m Message) SendPayload {
	return SendPayload{
		ChatID:     m.ChatID,
		Text:       m.Text,
		SenderID:   m.SenderID,
		Timestamp:  m.Timestamp.UTC().Format(time.RFC3339Nano),
		SenderName: m.SenderName,
	}
}

// TypingPayload is the body of typing in both directions. The server adds
// the username when it relays the event.
type TypingPayload struct {
	ChatID   string `json:"chatId"`
	IsTyping bool   `json:"isTyping"`
	UserID   string `json:"userId"`
	Username string `json:"username,omitempty"`
}
