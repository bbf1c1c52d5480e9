package api

import (
	"github.com/BusaSaiTeja/campus-lost-and-found/internal/chat"
)

// StatusResponse describes the daemon and its chat session.
type StatusResponse struct {
	Profile     string       `json:"profile"`
	State       string       `json:"state"`
	UserID      string       `json:"user_id"`
	Username    string       `json:"username"`
	ActiveChat  string       `json:"active_chat"`
	Partner     chat.Partner `json:"partner"`
	RoomState   string       `json:"room_state"`
	Refreshing  bool         `json:"refreshing"`
	Typing      []string     `json:"typing"`
	UptimeMs    int64        `json:"uptime_ms"`
	CachedChats int          `json:"cached_chats"`
	CachedMsgs  int          `json:"cached_messages"`
}

// LoginRequest carries credentials for the backend.
type LoginRequest struct {
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
}

// LoginResponse is the identity the backend accepted.
type LoginResponse struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// VerifyResponse reports whether the stored session is still valid.
type VerifyResponse struct {
	Valid bool   `json:"valid"`
	User  string `json:"user"`
}

// ChatsResponse lists chats. Cached is set when the backend was
// unreachable and the list came from the local cache.
type ChatsResponse struct {
	Chats  []chat.Summary `json:"chats"`
	Cached bool           `json:"cached"`
}

// StartChatRequest asks for the chat with a partner.
type StartChatRequest struct {
	PartnerID string `json:"partner_id" mapstructure:"partner_id"`
}

// ChatRef names a chat.
type ChatRef struct {
	ChatID string `json:"chat_id" mapstructure:"chat_id"`
}

// OpenChatResponse is the state of a freshly opened chat.
type OpenChatResponse struct {
	ChatID   string         `json:"chat_id"`
	Partner  chat.Partner   `json:"partner"`
	Messages []chat.Message `json:"messages"`
}

// ListMessagesRequest selects a chat's messages. BeforeMs pages back
// through the cache.
type ListMessagesRequest struct {
	ChatID   string `json:"chat_id" mapstructure:"chat_id"`
	Limit    int    `json:"limit" mapstructure:"limit"`
	BeforeMs int64  `json:"before_ms" mapstructure:"before_ms"`
}

// MessagesResponse carries messages and where they came from: "live" for
// the open chat, "cache" or "backend" otherwise.
type MessagesResponse struct {
	ChatID   string         `json:"chat_id"`
	Source   string         `json:"source"`
	Messages []chat.Message `json:"messages"`
}

// SearchRequest searches cached messages.
type SearchRequest struct {
	Query  string `json:"query" mapstructure:"query"`
	ChatID string `json:"chat_id" mapstructure:"chat_id"`
	Limit  int    `json:"limit" mapstructure:"limit"`
}

// SearchHit is one search match.
type SearchHit struct {
	Message chat.Message `json:"message"`
	Snippet string       `json:"snippet"`
}

// SearchResponse lists search matches.
type SearchResponse struct {
	Results []SearchHit `json:"results"`
}

// TextRequest carries composer text.
type TextRequest struct {
	Text string `json:"text" mapstructure:"text"`
}

// SendResponse is the optimistic message appended for a send.
type SendResponse struct {
	Message chat.Message `json:"message"`
}

// WatchRequest filters streamed events by kind prefix. Empty means all.
type WatchRequest struct {
	Prefix string `json:"prefix" mapstructure:"prefix"`
}

// Event is a bus event as streamed to clients.
type Event struct {
	ID      string `json:"id"`
	Kind    string `json:"kind"`
	ChatID  string `json:"chat_id"`
	TsMs    int64  `json:"ts_ms"`
	Payload any    `json:"payload,omitempty"`
}

// DecodePayload decodes the event payload into out.
func (e Event) DecodePayload(out any) error {
	return convert(e.Payload, out)
}
