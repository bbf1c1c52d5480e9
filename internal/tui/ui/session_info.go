package ui

import (
	"fmt"
	"time"

	"github.com/rivo/tview"
)

// SessionData holds session information for display.
type SessionData struct {
	Profile  string
	User     string
	State    string
	Room     string
	Chats    int
	Messages int
	Uptime   time.Duration
}

// SessionInfo displays session metadata in the header.
type SessionInfo struct {
	*tview.TextView
	theme *Theme
}

// NewSessionInfo creates a new session info panel.
func NewSessionInfo(theme *Theme) *SessionInfo {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 1, 1)

	return &SessionInfo{
		TextView: tv,
		theme:    theme,
	}
}

// Update renders the session info.
func (si *SessionInfo) Update(data *SessionData) {
	si.Clear()
	if data == nil {
		return
	}

	fgColor := ColorName(si.theme.FgColor)
	counterColor := ColorName(si.theme.CounterColor)

	user := orDash(data.User)
	room := orDash(data.Room)

	text := fmt.Sprintf(
		"[%s::b]Profile:[-:-:-] [%s]%s[-]\n"+
			"[%s::b]User:[-:-:-]    [%s]%s[-]\n"+
			"[%s::b]Channel:[-:-:-] [%s]%s[-]\n"+
			"[%s::b]Room:[-:-:-]    [%s]%s[-]\n"+
			"[%s::b]Cached:[-:-:-]  [%s]%d chats, %d msgs[-]\n"+
			"[%s::b]Uptime:[-:-:-]  [%s]%s[-]",
		fgColor, counterColor, tview.Escape(data.Profile),
		fgColor, counterColor, tview.Escape(user),
		fgColor, counterColor, data.State,
		fgColor, counterColor, tview.Escape(room),
		fgColor, counterColor, data.Chats, data.Messages,
		fgColor, counterColor, formatDuration(data.Uptime),
	)

	_, _ = fmt.Fprint(si, text)
}

func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
