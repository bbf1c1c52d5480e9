package room

import (
	"encoding/json"
	"errors"
	"slices"
	"testing"

	"github.com/BusaSaiTeja/campus-lost-and-found/internal/chat"
	"github.com/BusaSaiTeja/campus-lost-and-found/internal/chat/chattest"
)

func chatIDOf(t *testing.T, data json.RawMessage) string {
	t.Helper()
	var p chat.RoomPayload
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatal(err)
	}
	return p.ChatID
}

func TestJoinFireAndForget(t *testing.T) {
	ch := chattest.New()
	m := New(ch, Options{})

	var acked []string
	m.OnJoined(func(id string) { acked = append(acked, id) })

	if err := m.Join("c1"); err != nil {
		t.Fatal(err)
	}
	if id, st := m.Current(); id != "c1" || st != Joined {
		t.Errorf("Current() = %q, %s", id, st)
	}
	if !slices.Equal(acked, []string{"c1"}) {
		t.Errorf("OnJoined calls = %v", acked)
	}

	// Same room again is idempotent.
	if err := m.Join("c1"); err != nil {
		t.Fatal(err)
	}
	if got := ch.Events(); !slices.Equal(got, []string{"join"}) {
		t.Errorf("emitted %v, want one join", got)
	}
}

func TestJoinDifferentRoomLeavesFirst(t *testing.T) {
	ch := chattest.New()
	m := New(ch, Options{})

	_ = m.Join("a")
	if err := m.Join("b"); err != nil {
		t.Fatal(err)
	}

	em := ch.Emitted()
	if len(em) != 3 {
		t.Fatalf("emitted %d events, want join, leave, join", len(em))
	}
	want := []struct{ event, chatID string }{
		{"join", "a"}, {"leave", "a"}, {"join", "b"},
	}
	for i, w := range want {
		if em[i].Event != w.event || chatIDOf(t, em[i].Data) != w.chatID {
			t.Errorf("emit %d = %s %s, want %s %s", i, em[i].Event, em[i].Data, w.event, w.chatID)
		}
	}
	if id, _ := m.Current(); id != "b" {
		t.Errorf("current = %q, want b", id)
	}
}

func TestLeave(t *testing.T) {
	ch := chattest.New()
	m := New(ch, Options{})

	if err := m.Leave("c1"); err != nil {
		t.Fatal(err)
	}
	if len(ch.Events()) != 0 {
		t.Error("leave while unjoined should emit nothing")
	}

	_ = m.Join("c1")
	_ = m.Leave("other")
	if _, st := m.Current(); st != Joined {
		t.Error("leave of another room changed state")
	}
	if err := m.Leave("c1"); err != nil {
		t.Fatal(err)
	}
	if id, st := m.Current(); id != "" || st != Unjoined {
		t.Errorf("Current() = %q, %s after leave", id, st)
	}
	if got := ch.Events(); !slices.Equal(got, []string{"join", "leave"}) {
		t.Errorf("emitted %v", got)
	}
}

func TestRequireAck(t *testing.T) {
	ch := chattest.New()
	m := New(ch, Options{RequireAck: true})

	var acked []string
	m.OnJoined(func(id string) { acked = append(acked, id) })

	_ = m.Join("c1")
	if _, st := m.Current(); st != Joining {
		t.Fatalf("state = %s, want JOINING before ack", st)
	}

	ch.Deliver(chat.EventJoined, chat.RoomPayload{ChatID: "other"})
	if _, st := m.Current(); st != Joining {
		t.Fatal("ack for another room accepted")
	}

	ch.Deliver(chat.EventJoined, chat.RoomPayload{ChatID: "c1"})
	if _, st := m.Current(); st != Joined {
		t.Fatalf("state = %s, want JOINED after ack", st)
	}
	if !slices.Equal(acked, []string{"c1"}) {
		t.Errorf("OnJoined calls = %v", acked)
	}
}

func TestRejoinOnReconnect(t *testing.T) {
	ch := chattest.New()
	m := New(ch, Options{})

	ch.Connect()
	if len(ch.Events()) != 0 {
		t.Fatal("connect without a room should not join")
	}

	_ = m.Join("c1")
	ch.Reset()
	ch.Connect()

	em := ch.Emitted()
	if len(em) != 1 || em[0].Event != "join" || chatIDOf(t, em[0].Data) != "c1" {
		t.Errorf("reconnect emitted %+v, want join c1", em)
	}
	if _, st := m.Current(); st != Joined {
		t.Errorf("state = %s after rejoin", st)
	}
}

func TestJoinWhileDownRetriedOnConnect(t *testing.T) {
	ch := chattest.New()
	m := New(ch, Options{})

	down := errors.New("not connected")
	ch.Fail(down)
	if err := m.Join("c1"); !errors.Is(err, down) {
		t.Fatalf("Join() error = %v", err)
	}
	if id, st := m.Current(); id != "c1" || st != Joining {
		t.Fatalf("Current() = %q, %s", id, st)
	}

	ch.Fail(nil)
	ch.Connect()
	if _, st := m.Current(); st != Joined {
		t.Errorf("state = %s after reconnect", st)
	}
}

func TestClose(t *testing.T) {
	ch := chattest.New()
	m := New(ch, Options{})
	m.Close()
	if n := ch.Subscribers(); n != 0 {
		t.Errorf("%d subscriptions left after Close", n)
	}
}
