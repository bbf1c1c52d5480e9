package typing

import (
	"encoding/json"
	"slices"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/BusaSaiTeja/campus-lost-and-found/internal/bus"
	"github.com/BusaSaiTeja/campus-lost-and-found/internal/chat"
	"github.com/BusaSaiTeja/campus-lost-and-found/internal/chat/chattest"
)

// fakeClock fires scheduled functions only when the test advances it.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Duration
	seq    int
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Duration
	seq     int
	f       func()
	stopped bool
	fired   bool
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &fakeTimer{clock: c, at: c.now + d, seq: c.seq, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// Advance moves time forward, firing due timers in deadline order.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now + d
	c.mu.Unlock()
	for {
		c.mu.Lock()
		var due []*fakeTimer
		for _, t := range c.timers {
			if !t.stopped && !t.fired && t.at <= target {
				due = append(due, t)
			}
		}
		if len(due) == 0 {
			c.now = target
			c.mu.Unlock()
			return
		}
		sort.Slice(due, func(i, j int) bool {
			if due[i].at != due[j].at {
				return due[i].at < due[j].at
			}
			return due[i].seq < due[j].seq
		})
		next := due[0]
		next.fired = true
		c.now = next.at
		c.mu.Unlock()
		next.f()
	}
}

func (c *fakeClock) active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

func newSignal(t *testing.T, b *bus.Bus) (*Signal, *chattest.Channel, *fakeClock) {
	t.Helper()
	ch := chattest.New()
	clock := &fakeClock{}
	s := New(ch, Options{UserID: "me", AfterFunc: clock.AfterFunc, Bus: b})
	t.Cleanup(s.Close)
	return s, ch, clock
}

func peerTyping(ch *chattest.Channel, chatID, userID string, isTyping bool) {
	ch.Deliver(chat.EventTyping, chat.TypingPayload{ChatID: chatID, UserID: userID, IsTyping: isTyping})
}

func TestExpiryExactlyAfterQuietWindow(t *testing.T) {
	s, ch, clock := newSignal(t, nil)

	peerTyping(ch, "c1", "peer", true)
	if !s.IsTyping("c1", "peer") {
		t.Fatal("peer not shown typing")
	}

	clock.Advance(1999 * time.Millisecond)
	if !s.IsTyping("c1", "peer") {
		t.Fatal("cleared before 2000ms")
	}
	clock.Advance(time.Millisecond)
	if s.IsTyping("c1", "peer") {
		t.Fatal("still typing at 2000ms")
	}
}

func TestRefreshRestartsExpiry(t *testing.T) {
	s, ch, clock := newSignal(t, nil)

	peerTyping(ch, "c1", "peer", true)
	clock.Advance(1500 * time.Millisecond)
	peerTyping(ch, "c1", "peer", true)

	clock.Advance(1999 * time.Millisecond)
	if !s.IsTyping("c1", "peer") {
		t.Fatal("refreshed indicator expired early")
	}
	clock.Advance(time.Millisecond)
	if s.IsTyping("c1", "peer") {
		t.Fatal("refreshed indicator did not expire")
	}
}

func TestExplicitStopClearsImmediately(t *testing.T) {
	s, ch, clock := newSignal(t, nil)

	peerTyping(ch, "c1", "peer", true)
	peerTyping(ch, "c1", "peer", false)
	if s.IsTyping("c1", "peer") {
		t.Fatal("isTyping=false did not clear")
	}
	if clock.active() != 0 {
		t.Errorf("%d timers left running", clock.active())
	}
}

func TestOwnEventsIgnored(t *testing.T) {
	s, ch, _ := newSignal(t, nil)
	peerTyping(ch, "c1", "me", true)
	if len(s.Typing("c1")) != 0 {
		t.Error("own typing event shown")
	}
}

func TestTypingListsPeersPerRoom(t *testing.T) {
	s, ch, _ := newSignal(t, nil)
	peerTyping(ch, "c1", "zed", true)
	peerTyping(ch, "c1", "amy", true)
	peerTyping(ch, "c2", "bob", true)

	if got := s.Typing("c1"); !slices.Equal(got, []string{"amy", "zed"}) {
		t.Errorf("Typing(c1) = %v", got)
	}
	if got := s.Typing("c2"); !slices.Equal(got, []string{"bob"}) {
		t.Errorf("Typing(c2) = %v", got)
	}
}

func TestDebounceCoalesces(t *testing.T) {
	s, ch, clock := newSignal(t, nil)

	s.InputChanged("c1", "h")
	clock.Advance(100 * time.Millisecond)
	s.InputChanged("c1", "he")
	clock.Advance(100 * time.Millisecond)
	s.InputChanged("c1", "")
	clock.Advance(199 * time.Millisecond)
	if n := len(ch.Emitted()); n != 0 {
		t.Fatalf("emitted %d events inside the debounce window", n)
	}

	clock.Advance(time.Millisecond)
	em := ch.Emitted()
	if len(em) != 1 {
		t.Fatalf("emitted %d events, want 1", len(em))
	}
	var p chat.TypingPayload
	if err := json.Unmarshal(em[0].Data, &p); err != nil {
		t.Fatal(err)
	}
	if p.ChatID != "c1" || p.UserID != "me" || p.IsTyping {
		t.Errorf("payload = %+v, want latest state (not typing)", p)
	}
}

func TestDebouncePerRoom(t *testing.T) {
	s, ch, clock := newSignal(t, nil)
	s.NotifyTyping("c1", true)
	s.NotifyTyping("c2", true)
	clock.Advance(200 * time.Millisecond)
	if n := len(ch.Emitted()); n != 2 {
		t.Errorf("emitted %d events, want one per room", n)
	}
}

func TestChangeEvents(t *testing.T) {
	b := bus.New()
	events, unsub := b.Subscribe(bus.KindTypingChanged, 8)
	defer unsub()
	_, ch, clock := newSignal(t, b)

	peerTyping(ch, "c1", "peer", true)
	peerTyping(ch, "c1", "peer", true)
	clock.Advance(2 * time.Second)

	var got []bool
	for len(events) > 0 {
		evt := <-events
		got = append(got, evt.Payload.(Change).IsTyping)
	}
	if !slices.Equal(got, []bool{true, false}) {
		t.Errorf("changes = %v, want [true false]", got)
	}
}

func TestCloseStopsTimers(t *testing.T) {
	ch := chattest.New()
	clock := &fakeClock{}
	s := New(ch, Options{UserID: "me", AfterFunc: clock.AfterFunc})

	s.NotifyTyping("c1", true)
	peerTyping(ch, "c1", "peer", true)
	s.Close()

	if clock.active() != 0 {
		t.Errorf("%d timers still active after Close", clock.active())
	}
	clock.Advance(5 * time.Second)
	if len(ch.Emitted()) != 0 {
		t.Error("emitted after Close")
	}
	if ch.Subscribers() != 0 {
		t.Error("still subscribed after Close")
	}
}

func TestNamesPreferUsername(t *testing.T) {
	s, ch, _ := newSignal(t, nil)
	ch.Deliver(chat.EventTyping, chat.TypingPayload{ChatID: "c1", UserID: "u2", Username: "ravi", IsTyping: true})
	peerTyping(ch, "c1", "u3", true)

	if got := s.Names("c1"); !slices.Equal(got, []string{"ravi", "u3"}) {
		t.Errorf("Names() = %v", got)
	}
}
