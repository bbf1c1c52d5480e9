package ui

import (
	"slices"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// PromptMode selects what the prompt edits.
type PromptMode int

const (
	// PromptCommand reads a ":" command such as "open <chatId>".
	PromptCommand PromptMode = iota
	// PromptFilter narrows the chat list as the user types.
	PromptFilter
)

// Prompt is the input bar above the pages. In command mode it completes
// command names; in filter mode every edit is reported so the chat list
// narrows live, and Esc restores the filter it started from.
type Prompt struct {
	*tview.InputField
	theme    *Theme
	mode     PromptMode
	initial  string
	commands []string
	onSubmit func(mode PromptMode, text string)
	onChange func(mode PromptMode, text string)
	onCancel func()
}

// NewPrompt creates a new prompt input bar.
func NewPrompt(theme *Theme) *Prompt {
	input := tview.NewInputField()
	input.SetBorder(true)
	input.SetBorderColor(theme.PromptBorderColor)
	input.SetBackgroundColor(theme.BgColor)
	input.SetFieldBackgroundColor(theme.BgColor)
	input.SetFieldTextColor(theme.FgColor)
	input.SetLabelColor(theme.MenuKeyColor)

	p := &Prompt{
		InputField: input,
		theme:      theme,
	}

	input.SetAutocompleteFunc(func(text string) []string {
		if p.mode != PromptCommand {
			return nil
		}
		return completeCommand(p.commands, text)
	})
	input.SetChangedFunc(func(text string) {
		if p.mode == PromptFilter && p.onChange != nil {
			p.onChange(p.mode, text)
		}
	})
	input.SetDoneFunc(func(key tcell.Key) {
		switch key {
		case tcell.KeyEnter:
			text := strings.TrimSpace(p.GetText())
			if p.onSubmit != nil && (text != "" || p.mode == PromptFilter) {
				p.onSubmit(p.mode, text)
			}
		case tcell.KeyEscape:
			if p.mode == PromptFilter && p.onChange != nil {
				p.onChange(p.mode, p.initial)
			}
			if p.onCancel != nil {
				p.onCancel()
			}
		}
	})

	return p
}

// SetCommands sets the command names offered for completion.
func (p *Prompt) SetCommands(names []string) {
	p.commands = slices.Sorted(slices.Values(names))
}

// SetOnSubmit sets the callback for Enter. An empty filter is submitted
// too, since it clears the chat list filter.
func (p *Prompt) SetOnSubmit(fn func(mode PromptMode, text string)) {
	p.onSubmit = fn
}

// SetOnChange sets the callback for edits in filter mode.
func (p *Prompt) SetOnChange(fn func(mode PromptMode, text string)) {
	p.onChange = fn
}

// SetOnCancel sets the callback for Esc.
func (p *Prompt) SetOnCancel(fn func()) {
	p.onCancel = fn
}

// Activate shows the prompt in mode, starting from text.
func (p *Prompt) Activate(mode PromptMode, text string) {
	p.mode = mode
	p.initial = text
	switch mode {
	case PromptCommand:
		p.SetLabel(":")
		p.SetTitle(" Command (Tab completes) ")
	case PromptFilter:
		p.SetLabel("/")
		p.SetTitle(" Filter chats ")
	}
	p.SetText(text)
}

// Mode returns the current prompt mode.
func (p *Prompt) Mode() PromptMode {
	return p.mode
}

// completeCommand lists the commands starting with text. Once a command
// name is followed by arguments there is nothing left to complete.
func completeCommand(commands []string, text string) []string {
	text = strings.TrimLeft(text, " ")
	if text == "" || strings.Contains(text, " ") {
		return nil
	}
	var out []string
	for _, name := range commands {
		if strings.HasPrefix(name, strings.ToLower(text)) && name != text {
			out = append(out, name)
		}
	}
	return out
}
