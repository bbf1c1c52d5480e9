package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/BusaSaiTeja/campus-lost-and-found/internal/chat"
	"github.com/BusaSaiTeja/campus-lost-and-found/internal/tui/ui"
)

// MessageThread displays one chat's messages, the typing line and a
// composer.
type MessageThread struct {
	*tview.Flex
	theme    *ui.Theme
	messages *tview.TextView
	typing   *tview.TextView
	composer *tview.InputField
	chatName string
	chatID   string
	typingOn bool
	onSend   func(text string)
	onInput  func(text string)
}

// NewMessageThread creates a new message thread view.
func NewMessageThread(theme *ui.Theme) *MessageThread {
	messages := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	messages.SetBorder(true)
	messages.SetBorderColor(theme.BorderColor)
	messages.SetBackgroundColor(theme.BgColor)
	messages.SetTextColor(theme.FgColor)
	messages.SetTitle(" Messages ")
	messages.SetTitleColor(theme.TitleColor)

	typing := tview.NewTextView().
		SetDynamicColors(true)
	typing.SetBackgroundColor(theme.BgColor)
	typing.SetTextColor(theme.TypingColor)

	composer := tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0)
	composer.SetBorder(true)
	composer.SetBorderColor(theme.BorderColor)
	composer.SetBackgroundColor(theme.BgColor)
	composer.SetFieldBackgroundColor(theme.BgColor)
	composer.SetFieldTextColor(theme.FgColor)
	composer.SetLabelColor(theme.MenuKeyColor)
	composer.SetTitle(" Compose (i to focus) ")
	composer.SetTitleColor(theme.TitleColor)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(messages, 0, 1, true).
		AddItem(typing, 1, 0, false).
		AddItem(composer, 3, 0, false)

	mt := &MessageThread{
		Flex:     flex,
		theme:    theme,
		messages: messages,
		typing:   typing,
		composer: composer,
	}

	composer.SetChangedFunc(func(text string) {
		if mt.onInput != nil {
			mt.onInput(text)
		}
	})
	composer.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter || mt.onSend == nil {
			return
		}
		text := composer.GetText()
		if strings.TrimSpace(text) == "" {
			return
		}
		mt.onSend(text)
		composer.SetText("")
	})

	return mt
}

// Crumb implements Component: the partner's name, marked while they type.
func (mt *MessageThread) Crumb() ui.Crumb {
	label := mt.chatName
	if label == "" {
		label = "Messages"
	}
	return ui.Crumb{Label: label, Typing: mt.typingOn}
}

// Init implements Component.
func (mt *MessageThread) Init() {}

// Start implements Component.
func (mt *MessageThread) Start() {}

// Stop implements Component.
func (mt *MessageThread) Stop() {}

// Hints implements Component.
func (mt *MessageThread) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "i", Description: "Compose", Kind: ui.HintChat},
		{Key: "d", Description: "Details", Kind: ui.HintChat},
		{Key: "Esc", Description: "Back"},
		{Key: ":", Description: "Command"},
		{Key: "?", Description: "Help"},
	}
}

// SetChat names the chat shown in the thread.
func (mt *MessageThread) SetChat(chatID, name string) {
	mt.chatID = chatID
	mt.chatName = name
	mt.messages.SetTitle(fmt.Sprintf(" %s ", tview.Escape(sanitizeForTerminal(name))))
}

// ChatID returns the chat shown in the thread.
func (mt *MessageThread) ChatID() string {
	return mt.chatID
}

// SetOnSend sets the callback for a submitted message.
func (mt *MessageThread) SetOnSend(fn func(text string)) {
	mt.onSend = fn
}

// SetOnInput sets the callback for every composer edit.
func (mt *MessageThread) SetOnInput(fn func(text string)) {
	mt.onInput = fn
}

// Update redraws the messages, oldest first, as seen by userID.
func (mt *MessageThread) Update(msgs []chat.Message, userID string) {
	mt.messages.Clear()
	_, _ = fmt.Fprint(mt.messages, renderMessages(msgs, userID, mt.theme, time.Now()))
	mt.messages.ScrollToEnd()
}

// SetTyping shows line under the messages; "" hides it.
func (mt *MessageThread) SetTyping(line string) {
	mt.typing.Clear()
	mt.typingOn = line != ""
	if line != "" {
		_, _ = fmt.Fprintf(mt.typing, " [::i]%s[-:-:-]", tview.Escape(line))
	}
}

// Messages returns the messages text view (for focus management).
func (mt *MessageThread) Messages() *tview.TextView {
	return mt.messages
}

// Composer returns the composer input field (for focus management).
func (mt *MessageThread) Composer() *tview.InputField {
	return mt.composer
}

func renderMessages(msgs []chat.Message, userID string, theme *ui.Theme, now time.Time) string {
	var b strings.Builder
	for _, m := range msgs {
		nameColor := ui.ColorName(theme.TitleColor)
		if m.Mine(userID) {
			nameColor = ui.ColorName(theme.OwnMessageColor)
		}
		fmt.Fprintf(&b, "[%s::b]%s[-:-:-] [::d]%s[-:-:-]",
			nameColor, tview.Escape(sanitizeForTerminal(senderLabel(m, userID))), formatTimestamp(m.Timestamp, now))
		if mark := statusMark(m); mark != "" {
			color := theme.PendingColor
			if m.Status == chat.StatusFailed {
				color = theme.FailedColor
			}
			fmt.Fprintf(&b, " [%s]%s[-]", ui.ColorName(color), tview.Escape(mark))
		}
		fmt.Fprintf(&b, "\n%s\n\n", tview.Escape(sanitizeForTerminal(m.Text)))
	}
	return b.String()
}
