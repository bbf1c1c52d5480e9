package views

import (
	"fmt"
	"strings"
	"time"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/rivo/tview"

	"github.com/BusaSaiTeja/campus-lost-and-found/internal/chat"
	"github.com/BusaSaiTeja/campus-lost-and-found/internal/tui/ui"
)

// ChatDetails is what the details page shows about a chat.
type ChatDetails struct {
	ChatID  string
	Partner chat.Partner
	Summary chat.Summary
	Link    string
}

// ConversationInfo displays details of a chat and a QR code of its link.
type ConversationInfo struct {
	*tview.TextView
	theme *ui.Theme
}

// NewConversationInfo creates a new conversation info view.
func NewConversationInfo(theme *ui.Theme) *ConversationInfo {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Conversation Details ")
	tv.SetTitleColor(theme.TitleColor)

	return &ConversationInfo{
		TextView: tv,
		theme:    theme,
	}
}

// Crumb implements Component.
func (ci *ConversationInfo) Crumb() ui.Crumb { return ui.Crumb{Label: "Details"} }

// Init implements Component.
func (ci *ConversationInfo) Init() {}

// Start implements Component.
func (ci *ConversationInfo) Start() {}

// Stop implements Component.
func (ci *ConversationInfo) Stop() {}

// Hints implements Component.
func (ci *ConversationInfo) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Esc", Description: "Back"},
		{Key: ":", Description: "Command"},
		{Key: "?", Description: "Help"},
	}
}

// Update renders chat details.
func (ci *ConversationInfo) Update(d ChatDetails) {
	ci.Clear()
	if d.ChatID == "" {
		return
	}

	fg := ui.ColorName(ci.theme.FgColor)
	ct := ui.ColorName(ci.theme.CounterColor)

	partner := d.Partner.Username
	if partner == "" {
		partner = d.Summary.WithUser
	}
	partnerID := d.Partner.UserID
	if partnerID == "" {
		partnerID = d.Summary.WithUserID
	}
	lastActive, preview := "-", "-"
	if lm := d.Summary.LastMessage; lm != nil {
		lastActive = formatTimestamp(lm.Timestamp, time.Now())
		preview = (chat.Message{Text: lm.Text}).Preview(80)
	}

	_, _ = fmt.Fprintf(ci,
		"\n [%s::b]Partner:[-:-:-]      [%s]%s[-]\n"+
			" [%s::b]Partner ID:[-:-:-]   [%s]%s[-]\n"+
			" [%s::b]Chat ID:[-:-:-]      [%s]%s[-]\n"+
			" [%s::b]Unread:[-:-:-]       [%s]%d[-]\n"+
			" [%s::b]Last Active:[-:-:-]  [%s]%s[-]\n"+
			" [%s::b]Last Message:[-:-:-] [%s]%s[-]\n",
		fg, ct, tview.Escape(sanitizeForTerminal(orDash(partner))),
		fg, ct, tview.Escape(orDash(partnerID)),
		fg, ct, tview.Escape(d.ChatID),
		fg, ct, d.Summary.UnreadCount,
		fg, ct, lastActive,
		fg, ct, tview.Escape(sanitizeForTerminal(preview)),
	)
	if d.Link != "" {
		_, _ = fmt.Fprintf(ci, "\n [%s::b]Link:[-:-:-]         [%s]%s[-]\n\n%s",
			fg, ct, tview.Escape(d.Link), RenderQR(d.Link))
	}
	ci.SetTitle(fmt.Sprintf(" %s Details ", tview.Escape(sanitizeForTerminal(orDash(partner)))))
}

// RenderQR draws content as a QR code using Unicode half blocks, two
// modules per character cell.
func RenderQR(content string) string {
	qr, err := qrcode.New(content, qrcode.Low)
	if err != nil {
		return "  (QR generation failed: " + err.Error() + ")"
	}

	bitmap := qr.Bitmap()
	rows := len(bitmap)
	cols := 0
	if rows > 0 {
		cols = len(bitmap[0])
	}

	var sb strings.Builder
	for y := 0; y < rows; y += 2 {
		sb.WriteString("  ")
		for x := 0; x < cols; x++ {
			top := bitmap[y][x]
			bot := y+1 < rows && bitmap[y+1][x]
			switch {
			case top && bot:
				sb.WriteRune('█')
			case top:
				sb.WriteRune('▀')
			case bot:
				sb.WriteRune('▄')
			default:
				sb.WriteRune(' ')
			}
		}
		sb.WriteRune('\n')
	}
	return sb.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
