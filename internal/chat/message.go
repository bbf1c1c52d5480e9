package chat

import (
	"fmt"
	"strings"
	"time"
)

// Status tracks an outgoing message from optimistic append to server echo.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// UnknownSender is shown for messages whose sender could not be decoded.
const UnknownSender = "unknown"

// Message is one entry in a room's stream.
type Message struct {
	ID         string    `json:"id,omitempty"`
	ChatID     string    `json:"chatId"`
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName,omitempty"`
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`
	Status     Status    `json:"status"`
}

// Key identifies a message for deduplication. Server ids win; optimistic
// messages fall back to sender, timestamp and text.
func (m Message) Key() string {
	if m.ID != "" {
		return "id:" + m.ID
	}
	return fmt.Sprintf("local:%s|%d|%s", m.SenderID, m.Timestamp.UnixNano(), m.Text)
}

// Mine reports whether userID authored the message.
func (m Message) Mine(userID string) bool {
	return userID != "" && m.SenderID == userID
}

// Preview returns the first line of the text, cut to n runes.
func (m Message) Preview(n int) string {
	line, _, _ := strings.Cut(m.Text, "\n")
	r := []rune(line)
	if len(r) <= n {
		return line
	}
	return string(r[:n]) + "…"
}

// Partner is the other participant of a one-to-one chat.
type Partner struct {
	UserID   string `json:"userId,omitempty"`
	Username string `json:"username"`
}

// Info is the room metadata returned by /api/chat/{id}/info.
type Info struct {
	ChatID       string    `json:"chatId"`
	Partner      Partner   `json:"partner"`
	Participants []Partner `json:"participants,omitempty"`
}

// LastMessage is the preview shown in the chat list.
type LastMessage struct {
	Text      string    `json:"text"`
	SenderID  string    `json:"senderId"`
	Timestamp time.Time `json:"timestamp"`
}

// Summary is one row of the user's chat list.
type Summary struct {
	ChatID      string       `json:"chatId"`
	WithUser    string       `json:"withUser"`
	WithUserID  string       `json:"withUserId,omitempty"`
	LastMessage *LastMessage `json:"lastMessage,omitempty"`
	UnreadCount int          `json:"unreadCount"`
}
