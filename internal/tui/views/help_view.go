package views

import (
	"fmt"

	"github.com/rivo/tview"

	"github.com/BusaSaiTeja/campus-lost-and-found/internal/tui/ui"
)

// HelpView displays key binding reference.
type HelpView struct {
	*tview.TextView
	theme *ui.Theme
}

// NewHelpView creates a new help view.
func NewHelpView(theme *ui.Theme) *HelpView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Help ")
	tv.SetTitleColor(theme.TitleColor)

	hv := &HelpView{
		TextView: tv,
		theme:    theme,
	}
	hv.render()
	return hv
}

// Crumb implements Component.
func (hv *HelpView) Crumb() ui.Crumb { return ui.Crumb{Label: "Help"} }

// Init implements Component.
func (hv *HelpView) Init() {}

// Start implements Component.
func (hv *HelpView) Start() {}

// Stop implements Component.
func (hv *HelpView) Stop() {}

// Hints implements Component.
func (hv *HelpView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Esc", Description: "Back"},
	}
}

func (hv *HelpView) render() {
	kc := ui.ColorName(hv.theme.MenuKeyColor)

	sections := []struct {
		title string
		keys  [][2]string
	}{
		{"Global Keys", [][2]string{
			{":", "Command mode"},
			{"/", "Filter conversations"},
			{"?", "Help"},
			{"Esc", "Cancel / Go back"},
			{"q", "Quit / Back"},
			{"Ctrl-C", "Quit immediately"},
		}},
		{"Conversation List", [][2]string{
			{"Enter", "Open conversation"},
			{"1-9", "Jump to Nth chat"},
			{"s", "Cycle sort (recent, unread, name)"},
			{"r", "Reload from the server"},
		}},
		{"Message Thread", [][2]string{
			{"i", "Focus composer"},
			{"Enter", "Send message (in composer)"},
			{"d", "Details and share QR"},
			{"Esc", "Leave composer / chat"},
		}},
		{"Commands (: mode)", [][2]string{
			{":start <userId>", "Start a chat with a user"},
			{":open <chatId>", "Open a chat by id"},
			{":search <query>", "Search cached messages"},
			{":read", "Mark the open chat read"},
			{":close", "Leave the open chat"},
			{":login", "Log in again"},
			{":help, :h", "Show this help"},
			{":quit, :q", "Quit"},
		}},
	}

	for _, sec := range sections {
		_, _ = fmt.Fprintf(hv, "\n  [::b]%s[-:-:-]\n\n", sec.title)
		for _, k := range sec.keys {
			_, _ = fmt.Fprintf(hv, "  [%s]%-18s[-:-:-] %s\n", kc, tview.Escape(k[0]), k[1])
		}
	}
}
