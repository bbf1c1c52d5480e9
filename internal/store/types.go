package store

import (
	"time"

	"github.com/BusaSaiTeja/campus-lost-and-found/internal/chat"
)

// Chat is a cached chat list row.
type Chat struct {
	ChatID             string
	WithUser           string
	WithUserID         string
	UnreadCount        int
	LastMessageAt      int64
	LastMessagePreview string
	LastSenderID       string
}

// Summary converts the row back to the backend's chat summary shape.
func (c Chat) Summary() chat.Summary {
	s := chat.Summary{
		ChatID:      c.ChatID,
		WithUser:    c.WithUser,
		WithUserID:  c.WithUserID,
		UnreadCount: c.UnreadCount,
	}
	if c.LastMessageAt > 0 || c.LastMessagePreview != "" {
		s.LastMessage = &chat.LastMessage{
			Text:      c.LastMessagePreview,
			SenderID:  c.LastSenderID,
			Timestamp: time.UnixMilli(c.LastMessageAt).UTC(),
		}
	}
	return s
}

// SearchResult is a cached message matching a search.
type SearchResult struct {
	Message chat.Message
	Snippet string
}

const previewLen = 100

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
