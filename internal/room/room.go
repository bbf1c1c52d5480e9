package room

import (
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/BusaSaiTeja/campus-lost-and-found/internal/bus"
	"github.com/BusaSaiTeja/campus-lost-and-found/internal/chat"
)

// State of the channel's room membership.
type State string

const (
	Unjoined State = "UNJOINED"
	Joining  State = "JOINING"
	Joined   State = "JOINED"
)

// Options configures a Membership.
type Options struct {
	// RequireAck keeps the membership in Joining until the server's joined
	// event arrives. When false a join counts as soon as it is emitted.
	RequireAck bool
	Logger     *zap.Logger
	Bus        *bus.Bus
}

// Membership tracks the single room joined on a channel.
type Membership struct {
	ch   chat.Channel
	opts Options
	log  *zap.Logger

	mu       sync.Mutex
	chatID   string
	state    State
	onJoined []func(chatID string)

	unsubs []func()
}

// New attaches a membership tracker to ch. The current room is re-joined
// after every reconnect because the server forgets membership with the
// connection.
func New(ch chat.Channel, opts Options) *Membership {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	m := &Membership{
		ch:    ch,
		opts:  opts,
		log:   opts.Logger.Named("room"),
		state: Unjoined,
	}
	m.unsubs = append(m.unsubs,
		ch.On(chat.EventJoined, m.handleJoined),
		ch.OnConnect(m.rejoin),
	)
	return m
}

// Join joins chatID. Joining the current room is a no-op; joining a
// different one leaves the previous room first.
func (m *Membership) Join(chatID string) error {
	if chatID == "" {
		return fmt.Errorf("join: empty chat id")
	}
	var joined []func(string)
	defer func() { fire(joined, chatID) }()
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.chatID == chatID && m.state != Unjoined {
		return nil
	}
	if m.state != Unjoined {
		prev := m.chatID
		if err := m.ch.Emit(chat.EventLeave, chat.RoomPayload{ChatID: prev}); err != nil {
			m.log.Warn("implicit leave not delivered", zap.String("chat_id", prev), zap.Error(err))
		}
		m.chatID, m.state = "", Unjoined
		m.opts.Bus.Publish(bus.NewEvent(bus.KindRoomLeft, prev, nil))
	}

	m.chatID, m.state = chatID, Joining
	if err := m.ch.Emit(chat.EventJoin, chat.RoomPayload{ChatID: chatID}); err != nil {
		// Kept as Joining: the reconnect hook retries the join.
		m.log.Warn("join not delivered", zap.String("chat_id", chatID), zap.Error(err))
		return fmt.Errorf("join %s: %w", chatID, err)
	}
	if !m.opts.RequireAck {
		joined = m.markJoinedLocked(chatID)
	}
	return nil
}

// Leave leaves chatID. It is a no-op unless chatID is the current room.
func (m *Membership) Leave(chatID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == Unjoined || m.chatID != chatID {
		return nil
	}
	m.chatID, m.state = "", Unjoined
	m.opts.Bus.Publish(bus.NewEvent(bus.KindRoomLeft, chatID, nil))
	if err := m.ch.Emit(chat.EventLeave, chat.RoomPayload{ChatID: chatID}); err != nil {
		return fmt.Errorf("leave %s: %w", chatID, err)
	}
	return nil
}

// Current returns the current room and state.
func (m *Membership) Current() (string, State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chatID, m.state
}

// OnJoined registers a hook fired when a join is confirmed. With RequireAck
// that is the server's joined event; otherwise the emit itself.
func (m *Membership) OnJoined(fn func(chatID string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onJoined = append(m.onJoined, fn)
}

// Close detaches from the channel without emitting anything.
func (m *Membership) Close() {
	for _, unsub := range m.unsubs {
		unsub()
	}
}

func (m *Membership) handleJoined(data json.RawMessage) {
	var p chat.RoomPayload
	if err := json.Unmarshal(data, &p); err != nil {
		m.log.Warn("bad joined payload", zap.Error(err))
		return
	}
	m.mu.Lock()
	if m.state != Joining || m.chatID != p.ChatID {
		m.mu.Unlock()
		return
	}
	joined := m.markJoinedLocked(p.ChatID)
	m.mu.Unlock()
	fire(joined, p.ChatID)
}

// rejoin runs on every (re)connection. A new connection starts outside any
// room, so a remembered room goes back through Joining.
func (m *Membership) rejoin() {
	m.mu.Lock()
	if m.chatID == "" {
		m.mu.Unlock()
		return
	}
	chatID := m.chatID
	m.state = Joining
	if err := m.ch.Emit(chat.EventJoin, chat.RoomPayload{ChatID: chatID}); err != nil {
		m.mu.Unlock()
		m.log.Warn("rejoin failed", zap.String("chat_id", chatID), zap.Error(err))
		return
	}
	m.log.Debug("rejoined after reconnect", zap.String("chat_id", chatID))
	var joined []func(string)
	if !m.opts.RequireAck {
		joined = m.markJoinedLocked(chatID)
	}
	m.mu.Unlock()
	fire(joined, chatID)
}

// markJoinedLocked returns the hooks to run once the lock is released.
func (m *Membership) markJoinedLocked(chatID string) []func(string) {
	m.state = Joined
	m.opts.Bus.Publish(bus.NewEvent(bus.KindRoomJoined, chatID, nil))
	return append([]func(string){}, m.onJoined...)
}

func fire(hooks []func(string), chatID string) {
	for _, fn := range hooks {
		fn(chatID)
	}
}
