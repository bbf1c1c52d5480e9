package ui

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"
)

// Menu lists the shortcuts of the current page: chat actions first, then
// navigation. Digit shortcuts collapse into a single range entry.
type Menu struct {
	*tview.TextView
	theme *Theme
}

// NewMenu creates a new menu hint bar.
func NewMenu(theme *Theme) *Menu {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 2, 0)

	return &Menu{
		TextView: tv,
		theme:    theme,
	}
}

// Update renders hints, one per line.
func (m *Menu) Update(hints []MenuHint) {
	m.Clear()
	_, _ = fmt.Fprint(m, menuText(hints, m.theme))
}

func menuText(hints []MenuHint, theme *Theme) string {
	var chatHints, navHints, jumps []MenuHint
	for _, h := range hints {
		switch h.Kind {
		case HintChat:
			chatHints = append(chatHints, h)
		case HintJump:
			jumps = append(jumps, h)
		default:
			navHints = append(navHints, h)
		}
	}
	if len(jumps) > 0 {
		key := jumps[0].Key
		if len(jumps) > 1 {
			key += "-" + jumps[len(jumps)-1].Key
		}
		chatHints = append(chatHints, MenuHint{Key: key, Description: jumps[0].Description, Kind: HintJump})
	}

	var b strings.Builder
	for _, h := range append(chatHints, navHints...) {
		color := theme.MenuKeyColor
		if h.Kind == HintJump {
			color = theme.NumericKeyColor
		}
		fmt.Fprintf(&b, "[%s::b]<%s>[-:-:-] %s\n", ColorName(color), tview.Escape(h.Key), h.Description)
	}
	return b.String()
}
