package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/rivo/tview"

	"github.com/BusaSaiTeja/campus-lost-and-found/internal/tui/ui"
)

// StatusBar shows the profile, channel state and identity on one line.
type StatusBar struct {
	*tview.TextView
	theme      *ui.Theme
	profile    string
	state      string
	user       string
	refreshing bool
	offline    bool
}

// NewStatusBar creates a new status bar.
func NewStatusBar(theme *ui.Theme) *StatusBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)

	return &StatusBar{TextView: tv, theme: theme}
}

// SetProfile updates the profile name display.
func (sb *StatusBar) SetProfile(name string) {
	sb.profile = name
	sb.render()
}

// SetState updates the channel state, user and session refresh flag.
func (sb *StatusBar) SetState(state, user string, refreshing bool) {
	sb.state = state
	sb.user = user
	sb.refreshing = refreshing
	sb.render()
}

// SetOffline marks data as served from the cache.
func (sb *StatusBar) SetOffline(offline bool) {
	sb.offline = offline
	sb.render()
}

func (sb *StatusBar) render() {
	sb.Clear()
	_, _ = fmt.Fprint(sb, sb.line(time.Now()))
}

func (sb *StatusBar) line(now time.Time) string {
	state := sb.state
	if state == "" {
		state = "UNKNOWN"
	}
	parts := []string{
		fmt.Sprintf(" [::b]%s[-:-:-]", tview.Escape(sb.profile)),
		fmt.Sprintf("[%s]%s[-]", stateColor(state, sb.theme), state),
	}
	if sb.user != "" {
		parts = append(parts, tview.Escape(sb.user))
	}
	if sb.refreshing {
		parts = append(parts, fmt.Sprintf("[%s]refreshing session[-]", ui.ColorName(sb.theme.FlashWarnColor)))
	}
	if sb.offline {
		parts = append(parts, fmt.Sprintf("[%s]offline[-]", ui.ColorName(sb.theme.FlashWarnColor)))
	}
	parts = append(parts, now.Format("15:04"))
	return strings.Join(parts, " | ")
}

func stateColor(state string, theme *ui.Theme) string {
	switch state {
	case "CONNECTED":
		return ui.ColorName(theme.UnreadColor)
	case "CONNECTING", "RECONNECTING":
		return ui.ColorName(theme.FlashWarnColor)
	case "FAILED", "CLOSED":
		return ui.ColorName(theme.FlashErrColor)
	default:
		return ui.ColorName(theme.FgColor)
	}
}
