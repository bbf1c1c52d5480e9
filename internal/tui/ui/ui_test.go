package ui

import (
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

type page struct {
	*tview.Box
	crumb   Crumb
	hints   []MenuHint
	stopped bool
}

func newPage(label string) *page {
	return &page{Box: tview.NewBox(), crumb: Crumb{Label: label}, hints: []MenuHint{{Key: "Esc", Description: label}}}
}

func (p *page) Crumb() Crumb      { return p.crumb }
func (p *page) Init()             {}
func (p *page) Start()            {}
func (p *page) Stop()             { p.stopped = true }
func (p *page) Hints() []MenuHint { return p.hints }

func labels(trail []Crumb) []string {
	out := make([]string, len(trail))
	for i, c := range trail {
		out[i] = c.Label
	}
	return out
}

func TestPagesStack(t *testing.T) {
	p := NewPages()
	chats, thread := newPage("Chats"), newPage("ravi")
	p.Add("chats", chats)
	p.Add("thread", thread)
	p.Add("details", newPage("Details"))
	changes := 0
	p.SetOnChange(func() { changes++ })

	p.Reset("chats")
	p.Push("thread")
	p.Push("thread")
	p.Push("details")
	if got := p.Current(); got != "details" {
		t.Fatalf("Current = %q", got)
	}
	if got := labels(p.Trail()); !slices.Equal(got, []string{"Chats", "ravi", "Details"}) {
		t.Errorf("Trail = %v", got)
	}
	if got := p.Pop(); got != "details" {
		t.Errorf("Pop = %q", got)
	}
	if h := p.Hints(); len(h) != 1 || h[0].Description != "ravi" {
		t.Errorf("Hints = %v", h)
	}

	thread.crumb.Unread = 2
	if got := p.Trail()[1].Unread; got != 2 {
		t.Errorf("Trail unread = %d", got)
	}

	p.Pop()
	if got := p.Pop(); got != "" {
		t.Errorf("Pop of root page = %q", got)
	}
	if p.Depth() != 1 || p.Current() != "chats" {
		t.Errorf("depth=%d current=%q", p.Depth(), p.Current())
	}
	if changes != 5 {
		t.Errorf("onChange calls = %d, want 5", changes)
	}

	var names []string
	p.Each(func(name string, c Component) {
		names = append(names, name)
		c.Stop()
	})
	if !slices.Equal(names, []string{"chats", "thread", "details"}) || !chats.stopped {
		t.Errorf("Each visited %v", names)
	}
}

func TestFlashExpires(t *testing.T) {
	f := NewFlashModel()
	f.Set("sent", time.Minute)
	if got := f.Get(); got != "sent" {
		t.Errorf("Get = %q", got)
	}
	select {
	case msg := <-f.Watch():
		if msg.Level != FlashInfo {
			t.Errorf("level = %v", msg.Level)
		}
	default:
		t.Error("no watch notification")
	}

	f.Set("gone", -time.Second)
	if got := f.Get(); got != "" {
		t.Errorf("expired Get = %q", got)
	}
	if f.GetMessage() != nil {
		t.Error("expired GetMessage should be nil")
	}
}

func TestFlashHold(t *testing.T) {
	f := NewFlashModel()
	f.Hold(TopicConnection, FlashWarn, "Reconnecting to the chat server")
	if got := f.Get(); got != "Reconnecting to the chat server" {
		t.Errorf("held Get = %q", got)
	}

	f.Hold(TopicSession, FlashErr, "Session expired")
	if got := f.GetMessage(); got == nil || got.Topic != TopicSession {
		t.Errorf("most severe held = %+v", got)
	}

	f.Info("Signed in")
	if got := f.Get(); got != "Signed in" {
		t.Errorf("transient over held = %q", got)
	}
	f.Set("gone", -time.Second)
	if got := f.Get(); got != "Session expired" {
		t.Errorf("after expiry = %q", got)
	}

	if !f.Release(TopicSession) || f.Release(TopicSession) {
		t.Error("Release should report the held message once")
	}
	if !f.Held(TopicConnection) {
		t.Error("connection message released early")
	}
	f.Release(TopicConnection)
	if f.GetMessage() != nil {
		t.Errorf("GetMessage = %+v, want nil", f.GetMessage())
	}
}

func TestFlashText(t *testing.T) {
	theme := DefaultTheme()
	held := flashText(&FlashMessage{Text: "Channel [down]", Level: FlashErr, Topic: TopicConnection}, theme)
	if !strings.Contains(held, "● Channel [down[]") {
		t.Errorf("held text = %q", held)
	}
	if plain := flashText(&FlashMessage{Text: "Sorted"}, theme); strings.Contains(plain, "●") {
		t.Errorf("transient text = %q", plain)
	}
}

func TestCrumbText(t *testing.T) {
	got := crumbText([]Crumb{{Label: "Chats", Unread: 3}, {Label: "ravi", Typing: true}}, DefaultTheme())
	for _, want := range []string{"Chats", "(3)", "ravi", "✎", " › "} {
		if !strings.Contains(got, want) {
			t.Errorf("crumbs %q missing %q", got, want)
		}
	}
	if strings.Index(got, "Chats") > strings.Index(got, "ravi") {
		t.Error("crumbs out of order")
	}
	if got := crumbText([]Crumb{{Label: "Chats"}}, DefaultTheme()); strings.Contains(got, "(0)") {
		t.Errorf("zero unread badge in %q", got)
	}
}

func TestMenuText(t *testing.T) {
	hints := []MenuHint{{Key: "q", Description: "Quit"}, {Key: "Enter", Description: "Open", Kind: HintChat}}
	for n := 1; n <= 9; n++ {
		hints = append(hints, MenuHint{Key: string(rune('0' + n)), Description: "Open chat", Kind: HintJump})
	}
	got := menuText(hints, DefaultTheme())
	lines := strings.Split(strings.TrimRight(got, "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("menu lines = %d:\n%s", len(lines), got)
	}
	if !strings.Contains(lines[0], "<Enter>") || !strings.Contains(lines[1], "<1-9>") || !strings.Contains(lines[2], "<q>") {
		t.Errorf("menu order:\n%s", got)
	}
}

func TestCompleteCommand(t *testing.T) {
	commands := []string{"close", "help", "login", "open", "quit", "read", "search", "start"}
	tests := []struct {
		text string
		want []string
	}{
		{"s", []string{"search", "start"}},
		{"O", []string{"open"}},
		{"open", nil},
		{"open c1", nil},
		{"", nil},
		{"x", nil},
	}
	for _, tt := range tests {
		if got := completeCommand(commands, tt.text); !slices.Equal(got, tt.want) {
			t.Errorf("completeCommand(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{42 * time.Second, "0m"},
		{5 * time.Minute, "5m"},
		{2*time.Hour + 7*time.Minute, "2h7m"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%s) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestColorName(t *testing.T) {
	if got := ColorName(tcell.NewRGBColor(0x12, 0x34, 0x56)); got != "#123456" {
		t.Errorf("ColorName(rgb) = %q", got)
	}
}
