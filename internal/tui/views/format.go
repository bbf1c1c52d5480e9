package views

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/BusaSaiTeja/campus-lost-and-found/internal/chat"
)

// sanitizeForTerminal drops codepoints tcell renders badly: skin tone
// modifiers, zero width joiners and variation selectors. A thumbs-up with
// a skin tone becomes a plain two-cell thumbs-up.
func sanitizeForTerminal(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if !isProblematicRune(r) {
			b.WriteRune(r)
		}
		i += size
	}
	return b.String()
}

func isProblematicRune(r rune) bool {
	switch {
	case r >= 0x1F3FB && r <= 0x1F3FF:
		return true
	case r == 0x200D:
		return true
	case r >= 0xFE00 && r <= 0xFE0F:
		return true
	case r >= 0xE0100 && r <= 0xE01EF:
		return true
	default:
		return false
	}
}

// formatTimestamp shows today's times as 15:04 and older ones as 01/02.
func formatTimestamp(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	t = t.Local()
	now = now.Local()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	return t.Format("01/02")
}

// statusMark is the suffix shown after an outgoing message that the
// server has not echoed yet.
func statusMark(m chat.Message) string {
	switch m.Status {
	case chat.StatusPending:
		return "(sending…)"
	case chat.StatusFailed:
		return "(failed)"
	default:
		return ""
	}
}

// senderLabel names the author of m as seen by userID.
func senderLabel(m chat.Message, userID string) string {
	if m.Mine(userID) {
		return "You"
	}
	if m.SenderName != "" {
		return m.SenderName
	}
	if m.SenderID != "" {
		return m.SenderID
	}
	return chat.UnknownSender
}

func chatName(c chat.Summary) string {
	if c.WithUser != "" {
		return c.WithUser
	}
	return c.ChatID
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
