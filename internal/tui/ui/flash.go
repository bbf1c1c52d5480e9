package ui

import (
	"fmt"
	"sync"
	"time"

	"github.com/rivo/tview"
)

// FlashLevel represents the severity of a flash message.
type FlashLevel int

const (
	FlashInfo FlashLevel = iota
	FlashWarn
	FlashErr
)

// FlashTopic names a standing condition whose message stays on the bar
// until the condition clears.
type FlashTopic string

const (
	// TopicConnection covers the daemon's chat channel being down.
	TopicConnection FlashTopic = "connection"
	// TopicSession covers an expired session that needs a new login.
	TopicSession FlashTopic = "session"
)

// FlashMessage is one notification. Held messages carry a Topic and no
// expiry.
type FlashMessage struct {
	Text    string
	Level   FlashLevel
	Expires time.Time
	Topic   FlashTopic
}

// FlashModel holds the notification bar's state: at most one transient
// message plus one held message per topic. A live transient message
// shows over the held ones; otherwise the most severe held message shows.
type FlashModel struct {
	mu      sync.RWMutex
	current FlashMessage
	held    map[FlashTopic]FlashMessage
	watchCh chan FlashMessage
}

// NewFlashModel creates a new flash model.
func NewFlashModel() *FlashModel {
	return &FlashModel{
		held:    make(map[FlashTopic]FlashMessage),
		watchCh: make(chan FlashMessage, 8),
	}
}

// Info sets an info-level flash message.
func (f *FlashModel) Info(msg string) {
	f.set(msg, FlashInfo, 5*time.Second)
}

// Warn sets a warn-level flash message.
func (f *FlashModel) Warn(msg string) {
	f.set(msg, FlashWarn, 8*time.Second)
}

// Err sets an error-level flash message.
func (f *FlashModel) Err(err error) {
	f.set(err.Error(), FlashErr, 10*time.Second)
}

// Set sets an info-level flash message shown for d.
func (f *FlashModel) Set(msg string, d time.Duration) {
	f.set(msg, FlashInfo, d)
}

// Hold keeps msg on the bar until Release(topic), replacing any message
// already held for topic.
func (f *FlashModel) Hold(topic FlashTopic, level FlashLevel, msg string) {
	fm := FlashMessage{Text: msg, Level: level, Topic: topic}
	f.mu.Lock()
	f.held[topic] = fm
	f.mu.Unlock()
	f.notify(fm)
}

// Release clears topic's held message and reports whether there was one.
func (f *FlashModel) Release(topic FlashTopic) bool {
	f.mu.Lock()
	fm, ok := f.held[topic]
	delete(f.held, topic)
	f.mu.Unlock()
	if ok {
		f.notify(fm)
	}
	return ok
}

// Held reports whether topic has a message on hold.
func (f *FlashModel) Held(topic FlashTopic) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.held[topic]
	return ok
}

func (f *FlashModel) set(msg string, level FlashLevel, d time.Duration) {
	fm := FlashMessage{
		Text:    msg,
		Level:   level,
		Expires: time.Now().Add(d),
	}
	f.mu.Lock()
	f.current = fm
	f.mu.Unlock()
	f.notify(fm)
}

func (f *FlashModel) notify(fm FlashMessage) {
	select {
	case f.watchCh <- fm:
	default:
	}
}

// Get returns the text on the bar, or "".
func (f *FlashModel) Get() string {
	if m := f.GetMessage(); m != nil {
		return m.Text
	}
	return ""
}

// GetMessage returns the message on the bar, or nil.
func (f *FlashModel) GetMessage() *FlashMessage {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.current.Text != "" && time.Now().Before(f.current.Expires) {
		m := f.current
		return &m
	}
	var top *FlashMessage
	for _, m := range f.held {
		if top == nil || m.Level > top.Level || (m.Level == top.Level && m.Topic > top.Topic) {
			top = &m
		}
	}
	return top
}

// Watch returns a channel that receives flash messages.
func (f *FlashModel) Watch() <-chan FlashMessage {
	return f.watchCh
}

// FlashBar is the UI component that displays flash notifications.
type FlashBar struct {
	*tview.TextView
	theme *Theme
}

// NewFlashBar creates a new flash notification bar.
func NewFlashBar(theme *Theme) *FlashBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)

	return &FlashBar{
		TextView: tv,
		theme:    theme,
	}
}

// Update renders msg on the bar. Held messages are marked so they read as
// a standing condition rather than a passing notice.
func (fb *FlashBar) Update(msg *FlashMessage) {
	fb.Clear()
	if msg == nil {
		return
	}
	_, _ = fmt.Fprint(fb, flashText(msg, fb.theme))
}

func flashText(msg *FlashMessage, theme *Theme) string {
	var color string
	switch msg.Level {
	case FlashWarn:
		color = ColorName(theme.FlashWarnColor)
	case FlashErr:
		color = ColorName(theme.FlashErrColor)
	default:
		color = ColorName(theme.FlashInfoColor)
	}
	mark := ""
	if msg.Topic != "" {
		mark = "● "
	}
	return fmt.Sprintf(" [%s]%s%s[-]", color, mark, tview.Escape(msg.Text))
}
