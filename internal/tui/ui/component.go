package ui

import "github.com/rivo/tview"

// HintKind groups menu hints by what they act on.
type HintKind int

const (
	HintNav  HintKind = iota // moving between pages
	HintChat                 // acting on a chat or its messages
	HintJump                 // digit shortcuts into the chat list
)

// MenuHint describes a keyboard shortcut for display in the menu bar.
type MenuHint struct {
	Key         string
	Description string
	Kind        HintKind
}

// Component is one page of the chat window.
type Component interface {
	tview.Primitive
	// Crumb labels the page in the breadcrumb bar.
	Crumb() Crumb
	Init()
	Start()
	Stop()
	Hints() []MenuHint
}
