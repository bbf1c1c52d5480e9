package views

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/BusaSaiTeja/campus-lost-and-found/internal/chat"
	"github.com/BusaSaiTeja/campus-lost-and-found/internal/tui/ui"
)

// SortMode orders the conversation list.
type SortMode int

const (
	SortRecent SortMode = iota
	SortUnread
	SortName
)

func (m SortMode) String() string {
	switch m {
	case SortUnread:
		return "unread"
	case SortName:
		return "name"
	default:
		return "recent"
	}
}

// ConversationList is the main chat list view.
type ConversationList struct {
	*tview.Table
	theme   *ui.Theme
	chats   []chat.Summary
	visible []chat.Summary
	filter  string
	sort    SortMode
	cached  bool
}

// NewConversationList creates a new conversation list table.
func NewConversationList(theme *ui.Theme) *ConversationList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))
	table.SetTitle(" Conversations ")
	table.SetTitleColor(theme.TitleColor)

	return &ConversationList{
		Table: table,
		theme: theme,
	}
}

// Crumb implements Component. The badge counts unread messages across
// every chat, filtered out or not.
func (cl *ConversationList) Crumb() ui.Crumb {
	unread := 0
	for _, c := range cl.chats {
		unread += c.UnreadCount
	}
	return ui.Crumb{Label: "Chats", Unread: unread}
}

// Init implements Component.
func (cl *ConversationList) Init() {}

// Start implements Component.
func (cl *ConversationList) Start() {}

// Stop implements Component.
func (cl *ConversationList) Stop() {}

// Hints implements Component.
func (cl *ConversationList) Hints() []ui.MenuHint {
	hints := []ui.MenuHint{
		{Key: "Enter", Description: "Open", Kind: ui.HintChat},
		{Key: "/", Description: "Filter", Kind: ui.HintChat},
		{Key: "s", Description: "Sort", Kind: ui.HintChat},
		{Key: "r", Description: "Reload", Kind: ui.HintChat},
		{Key: ":", Description: "Command"},
		{Key: "?", Description: "Help"},
		{Key: "q", Description: "Quit"},
	}
	for n := 1; n <= min(len(cl.visible), 9); n++ {
		hints = append(hints, ui.MenuHint{Key: fmt.Sprint(n), Description: "Open chat", Kind: ui.HintJump})
	}
	return hints
}

// Update replaces the chat list. cached marks a list served from the
// daemon's cache while the backend is unreachable.
func (cl *ConversationList) Update(chats []chat.Summary, cached bool) {
	cl.chats = chats
	cl.cached = cached
	cl.render()
}

// SetFilter sets the active filter text and re-renders.
func (cl *ConversationList) SetFilter(filter string) {
	cl.filter = filter
	cl.render()
}

// Filter returns the active filter text.
func (cl *ConversationList) Filter() string {
	return cl.filter
}

// ClearFilter clears the active filter.
func (cl *ConversationList) ClearFilter() {
	cl.filter = ""
	cl.render()
}

// CycleSort switches to the next sort mode and returns it.
func (cl *ConversationList) CycleSort() SortMode {
	cl.sort = (cl.sort + 1) % 3
	cl.render()
	return cl.sort
}

func (cl *ConversationList) render() {
	cl.Clear()
	cl.visible = visibleChats(cl.chats, cl.filter, cl.sort)

	headers := []struct {
		text string
		exp  int
	}{
		{" NAME", 1},
		{" LAST MESSAGE", 2},
		{" TIME", 0},
	}
	for col, h := range headers {
		cl.SetCell(0, col, tview.NewTableCell(h.text).
			SetSelectable(false).
			SetTextColor(cl.theme.TableHeaderFg).
			SetBackgroundColor(cl.theme.TableHeaderBg).
			SetAttributes(tcell.AttrBold).
			SetExpansion(h.exp))
	}

	now := time.Now()
	for i, c := range cl.visible {
		row := i + 1
		name := sanitizeForTerminal(chatName(c))
		color := cl.theme.FgColor
		var attrs tcell.AttrMask
		if c.UnreadCount > 0 {
			name = fmt.Sprintf("● (%d) %s", c.UnreadCount, name)
			color = cl.theme.UnreadColor
			attrs = tcell.AttrBold
		}
		var preview, ts string
		if c.LastMessage != nil {
			preview = (chat.Message{Text: c.LastMessage.Text}).Preview(60)
			ts = formatTimestamp(c.LastMessage.Timestamp, now)
		}

		cl.SetCell(row, 0, tview.NewTableCell(" "+tview.Escape(name)).SetExpansion(1).SetTextColor(color).SetAttributes(attrs))
		cl.SetCell(row, 1, tview.NewTableCell(" "+tview.Escape(sanitizeForTerminal(preview))).SetExpansion(2).SetTextColor(cl.theme.FgColor))
		cl.SetCell(row, 2, tview.NewTableCell(ts).SetTextColor(cl.theme.FgColor).SetAlign(tview.AlignRight))
	}

	var title strings.Builder
	if cl.filter != "" {
		fmt.Fprintf(&title, " Conversations (%d/%d) filter: %s ", len(cl.visible), len(cl.chats), tview.Escape(cl.filter))
	} else {
		fmt.Fprintf(&title, " Conversations (%d) ", len(cl.chats))
	}
	if cl.sort != SortRecent {
		fmt.Fprintf(&title, "[by %s] ", cl.sort)
	}
	if cl.cached {
		title.WriteString("[offline] ")
	}
	cl.SetTitle(title.String())
}

// SelectedChat returns the id of the selected chat.
func (cl *ConversationList) SelectedChat() string {
	row, _ := cl.GetSelection()
	return cl.ChatByIndex(row)
}

// ChatByIndex returns the id of the Nth visible conversation (1-based).
func (cl *ConversationList) ChatByIndex(n int) string {
	if n < 1 || n > len(cl.visible) {
		return ""
	}
	return cl.visible[n-1].ChatID
}

// Lookup returns the chat with chatID from the last update.
func (cl *ConversationList) Lookup(chatID string) (chat.Summary, bool) {
	for _, c := range cl.chats {
		if c.ChatID == chatID {
			return c, true
		}
	}
	return chat.Summary{}, false
}

// visibleChats filters chats by name or preview and orders them by mode.
func visibleChats(chats []chat.Summary, filter string, mode SortMode) []chat.Summary {
	out := make([]chat.Summary, 0, len(chats))
	for _, c := range chats {
		preview := ""
		if c.LastMessage != nil {
			preview = c.LastMessage.Text
		}
		if filter != "" && !containsFold(chatName(c), filter) && !containsFold(preview, filter) {
			continue
		}
		out = append(out, c)
	}

	switch mode {
	case SortRecent:
		slices.SortStableFunc(out, func(a, b chat.Summary) int {
			return lastActivity(b).Compare(lastActivity(a))
		})
	case SortUnread:
		slices.SortStableFunc(out, func(a, b chat.Summary) int {
			if a.UnreadCount != b.UnreadCount {
				return b.UnreadCount - a.UnreadCount
			}
			return lastActivity(b).Compare(lastActivity(a))
		})
	case SortName:
		slices.SortStableFunc(out, func(a, b chat.Summary) int {
			return strings.Compare(strings.ToLower(chatName(a)), strings.ToLower(chatName(b)))
		})
	}
	return out
}

func lastActivity(c chat.Summary) time.Time {
	if c.LastMessage == nil {
		return time.Time{}
	}
	return c.LastMessage.Timestamp
}
