package stream

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/BusaSaiTeja/campus-lost-and-found/internal/bus"
	"github.com/BusaSaiTeja/campus-lost-and-found/internal/chat"
	"github.com/BusaSaiTeja/campus-lost-and-found/internal/chat/chattest"
)

var t0 = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func at(sec int) time.Time { return t0.Add(time.Duration(sec) * time.Second) }

type fakeHistory struct {
	mu    sync.Mutex
	rooms map[string][]chat.Message
	calls map[string]int
	err   error
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{rooms: make(map[string][]chat.Message), calls: make(map[string]int)}
}

func (h *fakeHistory) set(chatID string, msgs ...chat.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rooms[chatID] = msgs
}

func (h *fakeHistory) History(_ context.Context, chatID string) ([]chat.Message, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls[chatID]++
	if h.err != nil {
		return nil, h.err
	}
	return append([]chat.Message(nil), h.rooms[chatID]...), nil
}

func (h *fakeHistory) callCount(chatID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls[chatID]
}

// wire renders a server-side message the way receive_message carries it.
func wire(id, chatID, sender, text string, ts time.Time) json.RawMessage {
	data, _ := json.Marshal(map[string]any{
		"_id":       id,
		"chatId":    chatID,
		"senderId":  sender,
		"text":      text,
		"timestamp": ts.Format(time.RFC3339Nano),
	})
	return data
}

func confirmed(id, chatID, sender, text string, ts time.Time) chat.Message {
	return chat.Message{ID: id, ChatID: chatID, SenderID: sender, Text: text, Timestamp: ts, Status: chat.StatusConfirmed}
}

func ids(msgs []chat.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func equalIDs(t *testing.T, got []chat.Message, want ...string) {
	t.Helper()
	g := ids(got)
	if len(g) != len(want) {
		t.Fatalf("ids = %v, want %v", g, want)
	}
	for i := range want {
		if g[i] != want[i] {
			t.Fatalf("ids = %v, want %v", g, want)
		}
	}
}

func newStream(t *testing.T, hist *fakeHistory, opts Options) (*Stream, *chattest.Channel) {
	t.Helper()
	ch := chattest.New()
	if opts.UserID == "" {
		opts.UserID = "me"
	}
	opts.History = hist
	s := New(ch, opts)
	t.Cleanup(s.Close)
	return s, ch
}

func TestDedupAcrossPushAndHistory(t *testing.T) {
	hist := newFakeHistory()
	s, ch := newStream(t, hist, Options{})
	if err := s.Open(context.Background(), "c1"); err != nil {
		t.Fatal(err)
	}

	ch.Deliver(chat.EventReceiveMessage, wire("m1", "c1", "peer", "a", at(1)))
	ch.Deliver(chat.EventReceiveMessage, wire("m3", "c1", "peer", "c", at(3)))
	ch.Deliver(chat.EventReceiveMessage, wire("m3", "c1", "peer", "c", at(3)))

	hist.set("c1",
		confirmed("m3", "c1", "peer", "c", at(3)),
		confirmed("m2", "c1", "peer", "b", at(2)),
		confirmed("m1", "c1", "peer", "a", at(1)),
		confirmed("m0", "c1", "peer", "z", at(0)),
	)
	got, err := s.LoadHistory(context.Background(), "c1")
	if err != nil {
		t.Fatal(err)
	}
	equalIDs(t, got, "m0", "m1", "m2", "m3")
	equalIDs(t, s.Messages(), "m0", "m1", "m2", "m3")
}

func TestLiveOrderWithinConnection(t *testing.T) {
	s, ch := newStream(t, newFakeHistory(), Options{})
	_ = s.Open(context.Background(), "c1")

	// Arrival order wins within one connection, even with skewed clocks.
	ch.Deliver(chat.EventReceiveMessage, wire("late", "c1", "peer", "x", at(5)))
	ch.Deliver(chat.EventReceiveMessage, wire("early", "c1", "peer", "y", at(1)))
	equalIDs(t, s.Messages(), "late", "early")
}

func TestRoomIsolation(t *testing.T) {
	b := bus.New()
	events, unsub := b.Subscribe("stream.unread", 8)
	defer unsub()

	var unread []string
	s, ch := newStream(t, newFakeHistory(), Options{
		Bus:      b,
		OnUnread: func(chatID string, _ chat.Message) { unread = append(unread, chatID) },
	})
	_ = s.Open(context.Background(), "A")

	ch.Deliver(chat.EventReceiveMessage, wire("b1", "B", "peer", "psst", at(1)))

	if n := len(s.Messages()); n != 0 {
		t.Fatalf("room A shows %d messages, want 0", n)
	}
	if len(unread) != 1 || unread[0] != "B" {
		t.Errorf("OnUnread calls = %v, want [B]", unread)
	}
	select {
	case evt := <-events:
		if evt.ChatID != "B" {
			t.Errorf("unread event chat = %q", evt.ChatID)
		}
	case <-time.After(time.Second):
		t.Error("no stream.unread event")
	}
}

func TestMissingChatIDGoesToActiveRoom(t *testing.T) {
	s, ch := newStream(t, newFakeHistory(), Options{})

	ch.Deliver(chat.EventReceiveMessage, json.RawMessage(`{"_id":"x","text":"ignored"}`))
	_ = s.Open(context.Background(), "c1")
	if len(s.Messages()) != 0 {
		t.Fatal("message without room delivered before any room was open")
	}

	ch.Deliver(chat.EventReceiveMessage, json.RawMessage(`{"_id":"m1","text":"hello"}`))
	msgs := s.Messages()
	if len(msgs) != 1 || msgs[0].ChatID != "c1" {
		t.Fatalf("messages = %+v", msgs)
	}
	if msgs[0].SenderID != chat.UnknownSender {
		t.Errorf("SenderID = %q, want placeholder", msgs[0].SenderID)
	}
}

func TestMalformedPushKept(t *testing.T) {
	s, ch := newStream(t, newFakeHistory(), Options{})
	_ = s.Open(context.Background(), "c1")

	ch.Deliver(chat.EventReceiveMessage, json.RawMessage(`{"_id":"m1","chatId":"c1","text":7,"timestamp":"soon"}`))
	ch.Deliver(chat.EventReceiveMessage, json.RawMessage(`"not an object"`))

	msgs := s.Messages()
	if len(msgs) != 1 {
		t.Fatalf("messages = %+v, want the malformed object kept", msgs)
	}
	if msgs[0].Text != "" || !msgs[0].Timestamp.IsZero() {
		t.Errorf("fallbacks not applied: %+v", msgs[0])
	}
}

func TestSendOptimisticThenEcho(t *testing.T) {
	s, ch := newStream(t, newFakeHistory(), Options{
		UserName: "Me",
		Now:      func() time.Time { return t0 },
	})
	_ = s.Open(context.Background(), "c1")

	m, err := s.Send("c1", "  hi  ")
	if err != nil {
		t.Fatal(err)
	}
	if m.Text != "hi" || m.SenderID != "me" || m.Status != chat.StatusPending {
		t.Fatalf("Send() = %+v", m)
	}

	msgs := s.Messages()
	if len(msgs) != 1 || msgs[0].Status != chat.StatusPending {
		t.Fatalf("not appended immediately: %+v", msgs)
	}

	em := ch.Emitted()
	if len(em) != 1 || em[0].Event != chat.EventSendMessage {
		t.Fatalf("emitted %+v", em)
	}
	var p chat.SendPayload
	if err := json.Unmarshal(em[0].Data, &p); err != nil {
		t.Fatal(err)
	}
	if p.ChatID != "c1" || p.Text != "hi" || p.SenderID != "me" || p.SenderName != "Me" || p.Timestamp == "" {
		t.Errorf("payload = %+v", p)
	}

	// The server echo carries an id and its own timestamp.
	ch.Deliver(chat.EventReceiveMessage, wire("srv1", "c1", "me", "hi", t0.Add(40*time.Millisecond)))

	msgs = s.Messages()
	if len(msgs) != 1 {
		t.Fatalf("echo duplicated the message: %+v", msgs)
	}
	if msgs[0].ID != "srv1" || msgs[0].Status != chat.StatusConfirmed {
		t.Errorf("echo not reconciled: %+v", msgs[0])
	}
}

func TestEchoMatchesOldestPending(t *testing.T) {
	clock := t0
	s, ch := newStream(t, newFakeHistory(), Options{Now: func() time.Time { clock = clock.Add(time.Second); return clock }})
	_ = s.Open(context.Background(), "c1")

	_, _ = s.Send("c1", "again")
	_, _ = s.Send("c1", "again")
	ch.Deliver(chat.EventReceiveMessage, wire("e1", "c1", "me", "again", at(1)))

	msgs := s.Messages()
	if len(msgs) != 2 {
		t.Fatalf("messages = %+v", msgs)
	}
	if msgs[0].ID != "e1" || msgs[1].Status != chat.StatusPending {
		t.Errorf("wrong pending replaced: %+v", msgs)
	}
}

func TestHistoryConfirmsPending(t *testing.T) {
	hist := newFakeHistory()
	s, _ := newStream(t, hist, Options{Now: func() time.Time { return at(5) }})
	_ = s.Open(context.Background(), "c1")
	_, _ = s.Send("c1", "hi")

	hist.set("c1", confirmed("srv", "c1", "me", "hi", at(6)))
	got, err := s.LoadHistory(context.Background(), "c1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "srv" {
		t.Errorf("pending not replaced by history copy: %+v", got)
	}
}

func TestSendValidation(t *testing.T) {
	s, ch := newStream(t, newFakeHistory(), Options{})

	if _, err := s.Send("c1", "hi"); !errors.Is(err, ErrNotActive) {
		t.Errorf("Send() with no room = %v, want ErrNotActive", err)
	}
	_ = s.Open(context.Background(), "c1")
	if _, err := s.Send("c1", " \n\t "); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("Send() blank = %v, want ErrEmptyMessage", err)
	}
	if _, err := s.Send("c2", "hi"); !errors.Is(err, ErrNotActive) {
		t.Errorf("Send() other room = %v, want ErrNotActive", err)
	}
	if len(ch.Emitted()) != 0 || len(s.Messages()) != 0 {
		t.Error("rejected sends left traces")
	}
}

func TestSendFailureMarksFailed(t *testing.T) {
	s, ch := newStream(t, newFakeHistory(), Options{})
	_ = s.Open(context.Background(), "c1")

	down := errors.New("channel not connected")
	ch.Fail(down)
	m, err := s.Send("c1", "lost")
	if !errors.Is(err, down) {
		t.Fatalf("Send() error = %v", err)
	}
	if m.Status != chat.StatusFailed {
		t.Errorf("returned status = %s", m.Status)
	}
	msgs := s.Messages()
	if len(msgs) != 1 || msgs[0].Status != chat.StatusFailed {
		t.Errorf("failed message not kept: %+v", msgs)
	}
}

func TestSameInstantSendsStayDistinct(t *testing.T) {
	s, _ := newStream(t, newFakeHistory(), Options{Now: func() time.Time { return t0 }})
	_ = s.Open(context.Background(), "c1")
	_, _ = s.Send("c1", "dup")
	_, _ = s.Send("c1", "dup")
	if n := len(s.Messages()); n != 2 {
		t.Errorf("len = %d, want 2", n)
	}
}

func TestReconnectResync(t *testing.T) {
	hist := newFakeHistory()
	hist.set("c1", confirmed("m1", "c1", "peer", "before", at(-5)))

	b := bus.New()
	loaded, unsub := b.Subscribe(bus.KindHistoryLoaded, 8)
	defer unsub()

	s, ch := newStream(t, hist, Options{Bus: b})
	ch.Connect()
	if hist.callCount("c1") != 0 {
		t.Fatal("connect with no open room should not fetch")
	}
	if err := s.Open(context.Background(), "c1"); err != nil {
		t.Fatal(err)
	}
	ch.Deliver(chat.EventReceiveMessage, wire("m2", "c1", "peer", "live", at(0)))

	// Disconnected at t0; two messages are missed at t0+1s and t0+2s.
	hist.set("c1",
		confirmed("m1", "c1", "peer", "before", at(-5)),
		confirmed("m2", "c1", "peer", "live", at(0)),
		confirmed("m3", "c1", "peer", "missed 1", at(1)),
		confirmed("m4", "c1", "peer", "missed 2", at(2)),
	)
	ch.Connect()

	if got := hist.callCount("c1"); got != 2 {
		t.Errorf("history fetched %d times, want open + resync", got)
	}
	equalIDs(t, s.Messages(), "m1", "m2", "m3", "m4")

	var n int
	for len(loaded) > 0 {
		<-loaded
		n++
	}
	if n != 2 {
		t.Errorf("stream.loaded published %d times, want 2", n)
	}
}

func TestOpenBeforeFirstConnect(t *testing.T) {
	hist := newFakeHistory()
	hist.set("c1", confirmed("m1", "c1", "peer", "found your keys", at(0)))

	s, ch := newStream(t, hist, Options{})
	if err := s.Open(context.Background(), "c1"); err != nil {
		t.Fatal(err)
	}
	hist.set("c1",
		confirmed("m1", "c1", "peer", "found your keys", at(0)),
		confirmed("m2", "c1", "peer", "at the library desk", at(1)),
	)
	ch.Connect()

	if got := hist.callCount("c1"); got != 2 {
		t.Errorf("history fetched %d times, want open + first connect", got)
	}
	equalIDs(t, s.Messages(), "m1", "m2")
}

func TestResyncFailureKeepsMessages(t *testing.T) {
	hist := newFakeHistory()
	b := bus.New()
	failed, unsub := b.Subscribe(bus.KindResyncFailed, 1)
	defer unsub()

	s, ch := newStream(t, hist, Options{Bus: b})
	ch.Connect()
	_ = s.Open(context.Background(), "c1")
	ch.Deliver(chat.EventReceiveMessage, wire("m1", "c1", "peer", "x", at(0)))

	hist.err = errors.New("backend down")
	ch.Connect()

	equalIDs(t, s.Messages(), "m1")
	select {
	case <-failed:
	default:
		t.Error("no stream.resync_failed event")
	}
}

func TestLoadHistoryOtherRoomDoesNotMerge(t *testing.T) {
	hist := newFakeHistory()
	hist.set("c2", confirmed("x2", "", "peer", "b", at(2)), confirmed("x1", "", "peer", "a", at(1)))
	s, _ := newStream(t, hist, Options{})
	_ = s.Open(context.Background(), "c1")

	got, err := s.LoadHistory(context.Background(), "c2")
	if err != nil {
		t.Fatal(err)
	}
	equalIDs(t, got, "x1", "x2")
	if got[0].ChatID != "c2" {
		t.Errorf("chat id not filled: %q", got[0].ChatID)
	}
	if len(s.Messages()) != 0 {
		t.Error("other room's history merged into the active stream")
	}
}

func TestOpenAnotherRoomResets(t *testing.T) {
	hist := newFakeHistory()
	hist.set("c1", confirmed("a", "c1", "peer", "x", at(0)))
	hist.set("c2", confirmed("b", "c2", "peer", "y", at(0)))
	s, _ := newStream(t, hist, Options{})

	_ = s.Open(context.Background(), "c1")
	_ = s.Open(context.Background(), "c2")
	equalIDs(t, s.Messages(), "b")
	if s.Active() != "c2" {
		t.Errorf("Active() = %q", s.Active())
	}

	s.Deactivate()
	if s.Active() != "" || len(s.Messages()) != 0 {
		t.Error("Deactivate left state behind")
	}
}

func TestCloseUnsubscribes(t *testing.T) {
	ch := chattest.New()
	s := New(ch, Options{History: newFakeHistory()})
	s.Close()
	if n := ch.Subscribers(); n != 0 {
		t.Errorf("%d subscriptions left", n)
	}
}
