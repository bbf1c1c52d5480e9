package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BusaSaiTeja/campus-lost-and-found/internal/bus"
	"github.com/BusaSaiTeja/campus-lost-and-found/internal/chat"
	"github.com/BusaSaiTeja/campus-lost-and-found/internal/metrics"
)

var (
	// ErrEmptyMessage is returned by Send for blank text.
	ErrEmptyMessage = errors.New("message text is empty")
	// ErrNotActive is returned by Send for a room other than the open one.
	ErrNotActive = errors.New("chat is not the active room")
)

const defaultResyncTimeout = 15 * time.Second

// History fetches a room's messages from the backend.
type History interface {
	History(ctx context.Context, chatID string) ([]chat.Message, error)
}

// HistoryFunc adapts a function to History.
type HistoryFunc func(ctx context.Context, chatID string) ([]chat.Message, error)

func (f HistoryFunc) History(ctx context.Context, chatID string) ([]chat.Message, error) {
	return f(ctx, chatID)
}

// Options configures a Stream.
type Options struct {
	History  History
	UserID   string
	UserName string
	// OnUnread receives messages pushed for rooms other than the active one.
	OnUnread      func(chatID string, m chat.Message)
	ResyncTimeout time.Duration
	Now           func() time.Time
	Logger        *zap.Logger
	Bus           *bus.Bus
}

// Stream is the ordered message list of the active room. It merges live
// pushes with fetched history and re-fetches after every reconnect.
type Stream struct {
	ch   chat.Channel
	opts Options
	log  *zap.Logger

	mu       sync.Mutex
	active   string
	msgs     []chat.Message
	keys     map[string]int
	userID   string
	userName string

	unsubs []func()
}

// New attaches a stream to ch.
func New(ch chat.Channel, opts Options) *Stream {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ResyncTimeout <= 0 {
		opts.ResyncTimeout = defaultResyncTimeout
	}
	s := &Stream{
		ch:       ch,
		opts:     opts,
		log:      opts.Logger.Named("stream"),
		keys:     make(map[string]int),
		userID:   opts.UserID,
		userName: opts.UserName,
	}
	s.unsubs = append(s.unsubs,
		ch.On(chat.EventReceiveMessage, s.handleReceive),
		ch.OnConnect(s.handleConnect),
	)
	return s
}

// SetIdentity changes the local user, e.g. after a login.
func (s *Stream) SetIdentity(userID, userName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID, s.userName = userID, userName
}

// Open makes chatID the active room and loads its history. Opening a
// different room discards the previous room's messages.
func (s *Stream) Open(ctx context.Context, chatID string) error {
	s.mu.Lock()
	if s.active != chatID {
		s.active = chatID
		s.msgs = nil
		s.keys = make(map[string]int)
	}
	s.mu.Unlock()

	_, err := s.LoadHistory(ctx, chatID)
	return err
}

// Deactivate clears the active room.
func (s *Stream) Deactivate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = ""
	s.msgs = nil
	s.keys = make(map[string]int)
}

// LoadHistory fetches chatID's history. For the active room the result is
// merged into the stream and the merged, timestamp-ordered list is returned.
// For any other room the fetched list is returned sorted, untouched.
func (s *Stream) LoadHistory(ctx context.Context, chatID string) ([]chat.Message, error) {
	if s.opts.History == nil {
		return nil, fmt.Errorf("load history: no history source")
	}
	hist, err := s.opts.History.History(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("load history %s: %w", chatID, err)
	}
	for i := range hist {
		if hist[i].ChatID == "" {
			hist[i].ChatID = chatID
		}
	}

	s.mu.Lock()
	if s.active != chatID {
		s.mu.Unlock()
		return chat.Merge(nil, hist), nil
	}
	s.mergeLocked(hist)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	metrics.MessagesAppended.WithLabelValues("history").Add(float64(len(hist)))
	s.opts.Bus.Publish(bus.NewEvent(bus.KindHistoryLoaded, chatID, snap))
	return snap, nil
}

// Send appends text to the active room as a pending message and emits it.
// When the emit fails the message stays visible, marked failed.
func (s *Stream) Send(chatID, text string) (chat.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return chat.Message{}, ErrEmptyMessage
	}

	s.mu.Lock()
	if chatID == "" || chatID != s.active {
		s.mu.Unlock()
		return chat.Message{}, fmt.Errorf("send to %s: %w", chatID, ErrNotActive)
	}
	m := chat.Message{
		ChatID:     chatID,
		SenderID:   s.userID,
		SenderName: s.userName,
		Text:       text,
		Timestamp:  s.opts.Now().UTC(),
		Status:     chat.StatusPending,
	}
	for {
		if _, dup := s.keys[m.Key()]; !dup {
			break
		}
		m.Timestamp = m.Timestamp.Add(time.Nanosecond)
	}
	s.appendLocked(m)
	s.mu.Unlock()

	metrics.MessagesAppended.WithLabelValues("local").Inc()
	s.opts.Bus.Publish(bus.NewEvent(bus.KindMessageAppended, chatID, m))

	if err := s.ch.Emit(chat.EventSendMessage, chat.NewSendPayload(m)); err != nil {
		m.Status = chat.StatusFailed
		s.mu.Lock()
		if i, ok := s.keys[m.Key()]; ok && s.msgs[i].Status == chat.StatusPending {
			s.msgs[i].Status = chat.StatusFailed
		}
		s.mu.Unlock()
		s.opts.Bus.Publish(bus.NewEvent(bus.KindMessageAppended, chatID, m))
		s.log.Warn("send failed", zap.String("chat_id", chatID), zap.Error(err))
		return m, fmt.Errorf("send to %s: %w", chatID, err)
	}
	return m, nil
}

// Messages returns a copy of the active room's messages.
func (s *Stream) Messages() []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Active returns the active room, or "" when none is open.
func (s *Stream) Active() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Close detaches from the channel.
func (s *Stream) Close() {
	for _, unsub := range s.unsubs {
		unsub()
	}
}

func (s *Stream) handleReceive(data json.RawMessage) {
	m, err := chat.DecodeMessage(data)
	if err != nil {
		s.log.Warn("unreadable receive_message", zap.Error(err))
		return
	}

	s.mu.Lock()
	if m.ChatID == "" {
		m.ChatID = s.active
	}
	if m.ChatID == "" {
		s.mu.Unlock()
		s.log.Debug("message with no room while none is open")
		return
	}
	if m.ChatID != s.active {
		s.mu.Unlock()
		s.routeUnread(m)
		return
	}

	switch {
	case s.hasLocked(m):
		s.mu.Unlock()
		metrics.MessagesDeduplicated.Inc()
		return
	case s.reconcileLocked(m):
	default:
		s.appendLocked(m)
	}
	s.mu.Unlock()

	metrics.MessagesAppended.WithLabelValues("push").Inc()
	s.opts.Bus.Publish(bus.NewEvent(bus.KindMessageAppended, m.ChatID, m))
}

func (s *Stream) routeUnread(m chat.Message) {
	metrics.UnreadRouted.Inc()
	s.opts.Bus.Publish(bus.NewEvent(bus.KindUnread, m.ChatID, m))
	if s.opts.OnUnread != nil {
		s.opts.OnUnread(m.ChatID, m)
	}
}

// handleConnect re-fetches the active room after every connection, so
// pushes missed while disconnected, or sent before the first connect, are
// merged in.
func (s *Stream) handleConnect() {
	active := s.Active()
	if active == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.ResyncTimeout)
	defer cancel()
	if _, err := s.LoadHistory(ctx, active); err != nil {
		metrics.Resyncs.WithLabelValues("failed").Inc()
		s.log.Warn("resync failed", zap.String("chat_id", active), zap.Error(err))
		s.opts.Bus.Publish(bus.NewEvent(bus.KindResyncFailed, active, err.Error()))
		return
	}
	metrics.Resyncs.WithLabelValues("ok").Inc()
	s.log.Info("resynced after reconnect", zap.String("chat_id", active))
}

// reconcileLocked swaps the server echo of one of our own messages in for
// the oldest pending copy with the same text. The server restamps the
// timestamp, so the content key alone cannot match them.
func (s *Stream) reconcileLocked(m chat.Message) bool {
	i := s.pendingEchoLocked(m)
	if i < 0 {
		return false
	}
	delete(s.keys, s.msgs[i].Key())
	s.msgs[i] = m
	s.keys[m.Key()] = i
	return true
}

func (s *Stream) pendingEchoLocked(m chat.Message) int {
	if m.Status != chat.StatusConfirmed || !m.Mine(s.userID) {
		return -1
	}
	for i, cur := range s.msgs {
		if cur.Status == chat.StatusPending && cur.ID == "" && cur.Mine(s.userID) && cur.Text == m.Text {
			return i
		}
	}
	return -1
}

// mergeLocked folds fetched messages into the stream: echoes of pending
// messages replace them, duplicates collapse, and the result is re-sorted.
func (s *Stream) mergeLocked(incoming []chat.Message) {
	for _, m := range incoming {
		if _, dup := s.keys[m.Key()]; dup {
			continue
		}
		if i := s.pendingEchoLocked(m); i >= 0 {
			s.removeLocked(i)
		}
	}
	before := len(s.msgs)
	s.msgs = chat.Merge(s.msgs, incoming)
	s.reindexLocked()
	if dups := before + len(incoming) - len(s.msgs); dups > 0 {
		metrics.MessagesDeduplicated.Add(float64(dups))
	}
}

func (s *Stream) hasLocked(m chat.Message) bool {
	_, ok := s.keys[m.Key()]
	return ok
}

func (s *Stream) appendLocked(m chat.Message) {
	s.keys[m.Key()] = len(s.msgs)
	s.msgs = append(s.msgs, m)
}

func (s *Stream) removeLocked(i int) {
	s.msgs = append(s.msgs[:i], s.msgs[i+1:]...)
	s.reindexLocked()
}

func (s *Stream) reindexLocked() {
	s.keys = make(map[string]int, len(s.msgs))
	for i, m := range s.msgs {
		s.keys[m.Key()] = i
	}
}

func (s *Stream) snapshotLocked() []chat.Message {
	return append([]chat.Message(nil), s.msgs...)
}
