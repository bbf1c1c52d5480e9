package ui

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"
)

// Crumb is one page's entry in the breadcrumb bar.
type Crumb struct {
	Label string
	// Unread is shown as a badge when positive.
	Unread int
	// Typing marks a thread whose partner is typing.
	Typing bool
}

// Crumbs is the breadcrumb bar: the chat list, then the open chat and
// whatever was opened from it.
type Crumbs struct {
	*tview.TextView
	theme *Theme
}

// NewCrumbs creates a new breadcrumb bar.
func NewCrumbs(theme *Theme) *Crumbs {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)

	return &Crumbs{
		TextView: tv,
		theme:    theme,
	}
}

// Update renders trail, the last crumb highlighted.
func (c *Crumbs) Update(trail []Crumb) {
	c.Clear()
	_, _ = fmt.Fprint(c, crumbText(trail, c.theme))
}

func crumbText(trail []Crumb, theme *Theme) string {
	parts := make([]string, 0, len(trail))
	for i, cr := range trail {
		fg, bg, attr := theme.CrumbInactiveFg, theme.CrumbInactiveBg, "-"
		if i == len(trail)-1 {
			fg, bg, attr = theme.CrumbActiveFg, theme.CrumbActiveBg, "b"
		}
		var b strings.Builder
		fmt.Fprintf(&b, "[%s:%s:%s] %s", ColorName(fg), ColorName(bg), attr, tview.Escape(cr.Label))
		if cr.Typing {
			fmt.Fprintf(&b, " [%s]✎[%s]", ColorName(theme.TypingColor), ColorName(fg))
		}
		if cr.Unread > 0 {
			fmt.Fprintf(&b, " [%s::b](%d)[%s::%s]", ColorName(theme.UnreadColor), cr.Unread, ColorName(fg), attr)
		}
		b.WriteString(" [-:-:-]")
		parts = append(parts, b.String())
	}
	return strings.Join(parts, " › ")
}
