package typing

import (
	"encoding/json"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BusaSaiTeja/campus-lost-and-found/internal/bus"
	"github.com/BusaSaiTeja/campus-lost-and-found/internal/chat"
)

const (
	DefaultDebounce = 200 * time.Millisecond
	DefaultExpiry   = 2 * time.Second
)

// Timer is the part of *time.Timer the signal needs.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. time.AfterFunc is the default.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Options configures a Signal.
type Options struct {
	UserID    string
	Debounce  time.Duration
	Expiry    time.Duration
	AfterFunc AfterFunc
	Logger    *zap.Logger
	Bus       *bus.Bus
}

// Change is published on the bus whenever a peer's indicator flips.
type Change struct {
	ChatID   string
	UserID   string
	Username string
	IsTyping bool
}

type scheduled struct {
	timer Timer
	gen   uint64
	name  string
}

type outgoing struct {
	scheduled
	isTyping bool
}

// Signal sends the local user's debounced typing state and tracks peers'
// indicators, each cleared after Expiry without a refresh.
type Signal struct {
	ch   chat.Channel
	opts Options
	log  *zap.Logger

	mu      sync.Mutex
	userID  string
	gen     uint64
	pending map[string]*outgoing
	peers   map[string]map[string]scheduled
	closed  bool

	unsubscribe func()
}

// New attaches a typing signal to ch.
func New(ch chat.Channel, opts Options) *Signal {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Expiry <= 0 {
		opts.Expiry = DefaultExpiry
	}
	if opts.AfterFunc == nil {
		opts.AfterFunc = realAfterFunc
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	s := &Signal{
		ch:      ch,
		opts:    opts,
		log:     opts.Logger.Named("typing"),
		userID:  opts.UserID,
		pending: make(map[string]*outgoing),
		peers:   make(map[string]map[string]scheduled),
	}
	s.unsubscribe = ch.On(chat.EventTyping, s.handleTyping)
	return s
}

// SetUserID changes whose events count as our own.
func (s *Signal) SetUserID(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = userID
}

// NotifyTyping schedules a typing emission for chatID Debounce after the
// last call. Calls inside the window coalesce into one emission carrying
// the latest state.
func (s *Signal) NotifyTyping(chatID string, isTyping bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || chatID == "" {
		return
	}
	if p, ok := s.pending[chatID]; ok {
		p.timer.Stop()
	}
	s.gen++
	gen := s.gen
	s.pending[chatID] = &outgoing{
		scheduled: scheduled{
			timer: s.opts.AfterFunc(s.opts.Debounce, func() { s.flush(chatID, gen) }),
			gen:   gen,
		},
		isTyping: isTyping,
	}
}

// InputChanged is the composer hook: typing while text is non-empty.
func (s *Signal) InputChanged(chatID, text string) {
	s.NotifyTyping(chatID, text != "")
}

// Typing returns the sorted ids of peers currently typing in chatID.
func (s *Signal) Typing(chatID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := make([]string, 0, len(s.peers[chatID]))
	for id := range s.peers[chatID] {
		users = append(users, id)
	}
	slices.Sort(users)
	return users
}

// Names returns the display names of peers typing in chatID, falling back
// to the user id when the server sent none.
func (s *Signal) Names(chatID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.peers[chatID]))
	for id, sc := range s.peers[chatID] {
		if sc.name != "" {
			names = append(names, sc.name)
		} else {
			names = append(names, id)
		}
	}
	slices.Sort(names)
	return names
}

// IsTyping reports whether userID is typing in chatID.
func (s *Signal) IsTyping(chatID, userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.peers[chatID][userID]
	return ok
}

// Close cancels every timer and detaches from the channel. Pending
// emissions are dropped.
func (s *Signal) Close() {
	s.mu.Lock()
	s.closed = true
	for chatID, p := range s.pending {
		p.timer.Stop()
		delete(s.pending, chatID)
	}
	for chatID, users := range s.peers {
		for _, sc := range users {
			sc.timer.Stop()
		}
		delete(s.peers, chatID)
	}
	s.mu.Unlock()
	s.unsubscribe()
}

func (s *Signal) flush(chatID string, gen uint64) {
	s.mu.Lock()
	p, ok := s.pending[chatID]
	if !ok || p.gen != gen || s.closed {
		s.mu.Unlock()
		return
	}
	delete(s.pending, chatID)
	payload := chat.TypingPayload{ChatID: chatID, IsTyping: p.isTyping, UserID: s.userID}
	s.mu.Unlock()

	if err := s.ch.Emit(chat.EventTyping, payload); err != nil {
		// Lossy by nature; a stale indicator is the worst outcome.
		s.log.Debug("typing not sent", zap.String("chat_id", chatID), zap.Error(err))
	}
}

func (s *Signal) handleTyping(data json.RawMessage) {
	var p chat.TypingPayload
	if err := json.Unmarshal(data, &p); err != nil {
		s.log.Debug("bad typing payload", zap.Error(err))
		return
	}

	s.mu.Lock()
	if s.closed || p.UserID == "" || p.ChatID == "" || p.UserID == s.userID {
		s.mu.Unlock()
		return
	}
	users := s.peers[p.ChatID]
	prev, wasTyping := users[p.UserID]
	if wasTyping {
		prev.timer.Stop()
	}

	if !p.IsTyping {
		if wasTyping {
			s.dropLocked(p.ChatID, p.UserID)
		}
		s.mu.Unlock()
		if wasTyping {
			s.publish(p.ChatID, p.UserID, prev.name, false)
		}
		return
	}

	if users == nil {
		users = make(map[string]scheduled)
		s.peers[p.ChatID] = users
	}
	s.gen++
	gen := s.gen
	chatID, userID := p.ChatID, p.UserID
	users[userID] = scheduled{
		timer: s.opts.AfterFunc(s.opts.Expiry, func() { s.expire(chatID, userID, gen) }),
		gen:   gen,
		name:  p.Username,
	}
	s.mu.Unlock()

	if !wasTyping {
		s.publish(chatID, userID, p.Username, true)
	}
}

func (s *Signal) expire(chatID, userID string, gen uint64) {
	s.mu.Lock()
	sc, ok := s.peers[chatID][userID]
	if !ok || sc.gen != gen {
		s.mu.Unlock()
		return
	}
	s.dropLocked(chatID, userID)
	s.mu.Unlock()
	s.publish(chatID, userID, sc.name, false)
}

func (s *Signal) dropLocked(chatID, userID string) {
	delete(s.peers[chatID], userID)
	if len(s.peers[chatID]) == 0 {
		delete(s.peers, chatID)
	}
}

func (s *Signal) publish(chatID, userID, username string, isTyping bool) {
	s.opts.Bus.Publish(bus.NewEvent(bus.KindTypingChanged, chatID, Change{
		ChatID: chatID, UserID: userID, Username: username, IsTyping: isTyping,
	}))
}
