package model

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"

	"github.com/BusaSaiTeja/campus-lost-and-found/internal/api"
	"github.com/BusaSaiTeja/campus-lost-and-found/internal/bus"
	"github.com/BusaSaiTeja/campus-lost-and-found/internal/chat"
	"github.com/BusaSaiTeja/campus-lost-and-found/internal/tui/ui"
)

type fakeClient struct {
	mu       sync.Mutex
	chats    []chat.Summary
	chatsErr error
	msgs     map[string][]chat.Message
	sendStat chat.Status
	listed   int
	listErr  error
	closed   bool
}

func (f *fakeClient) Status(context.Context) (api.StatusResponse, error) {
	return api.StatusResponse{State: "CONNECTED", UserID: "u1", Username: "asha"}, nil
}

func (f *fakeClient) Login(_ context.Context, username, _ string) (api.LoginResponse, error) {
	return api.LoginResponse{UserID: "u1", Username: username}, nil
}

func (f *fakeClient) ListChats(context.Context) (api.ChatsResponse, error) {
	return api.ChatsResponse{Chats: f.chats}, f.chatsErr
}

func (f *fakeClient) StartChat(_ context.Context, partnerID string) (string, error) {
	return "chat-" + partnerID, nil
}

func (f *fakeClient) OpenChat(_ context.Context, chatID string) (api.OpenChatResponse, error) {
	return api.OpenChatResponse{
		ChatID:   chatID,
		Partner:  chat.Partner{UserID: "u2", Username: "ravi"},
		Messages: f.msgs[chatID],
	}, nil
}

func (f *fakeClient) CloseChat(context.Context) error {
	f.closed = true
	return nil
}

func (f *fakeClient) ListMessages(_ context.Context, req api.ListMessagesRequest) (api.MessagesResponse, error) {
	f.mu.Lock()
	f.listed++
	f.mu.Unlock()
	if f.listErr != nil {
		return api.MessagesResponse{}, f.listErr
	}
	return api.MessagesResponse{ChatID: req.ChatID, Source: "live", Messages: f.msgs[req.ChatID]}, nil
}

func (f *fakeClient) SearchMessages(_ context.Context, req api.SearchRequest) (api.SearchResponse, error) {
	return api.SearchResponse{Results: []api.SearchHit{{Snippet: "<<" + req.Query + ">>"}}}, nil
}

func (f *fakeClient) SendText(_ context.Context, text string) (api.SendResponse, error) {
	return api.SendResponse{Message: chat.Message{
		ChatID:    "c1",
		SenderID:  "u1",
		Text:      text,
		Timestamp: time.UnixMilli(5000),
		Status:    f.sendStat,
	}}, nil
}

func (f *fakeClient) InputChanged(context.Context, string) error { return nil }

func (f *fakeClient) MarkRead(context.Context, string) error { return nil }

func (f *fakeClient) WatchEvents(context.Context, string) (*api.EventStream, error) {
	return nil, errors.New("not supported")
}

type sliceEvents struct {
	events []api.Event
}

func (s *sliceEvents) Recv() (api.Event, error) {
	if len(s.events) == 0 {
		return api.Event{}, io.EOF
	}
	evt := s.events[0]
	s.events = s.events[1:]
	return evt, nil
}

func newOpenModel(t *testing.T) (*ViewModel, *fakeClient) {
	t.Helper()
	fc := &fakeClient{
		chats: []chat.Summary{
			{ChatID: "c1", WithUser: "ravi", UnreadCount: 2},
			{ChatID: "c2", WithUser: "mei"},
		},
		msgs: map[string][]chat.Message{
			"c1": {{ID: "m1", ChatID: "c1", SenderID: "u2", Text: "found your keys", Status: chat.StatusConfirmed}},
		},
		sendStat: chat.StatusPending,
	}
	vm := NewViewModel(fc)
	ctx := context.Background()
	if err := vm.LoadChats(ctx); err != nil {
		t.Fatal(err)
	}
	if err := vm.OpenChat(ctx, "c1"); err != nil {
		t.Fatal(err)
	}
	return vm, fc
}

func TestOpenChatClearsUnread(t *testing.T) {
	vm, _ := newOpenModel(t)

	if vm.ActiveChat() != "c1" || vm.Partner().Username != "ravi" {
		t.Fatalf("active = %q partner = %+v", vm.ActiveChat(), vm.Partner())
	}
	if got := vm.Chats()[0].UnreadCount; got != 0 {
		t.Errorf("unread after open = %d, want 0", got)
	}
	if msgs := vm.Messages(); len(msgs) != 1 || msgs[0].Text != "found your keys" {
		t.Errorf("messages = %+v", msgs)
	}
}

func TestApplyTyping(t *testing.T) {
	vm, _ := newOpenModel(t)

	start := api.Event{Kind: bus.KindTypingChanged, ChatID: "c1", Payload: map[string]any{
		"ChatID": "c1", "UserID": "u2", "Username": "ravi", "IsTyping": true,
	}}
	if r := vm.Apply(start); r != 0 {
		t.Errorf("reload = %v, want none", r)
	}
	if got := TypingLine(vm.Typing()); got != "ravi is typing…" {
		t.Errorf("typing line = %q", got)
	}

	other := api.Event{Kind: bus.KindTypingChanged, ChatID: "c2", Payload: map[string]any{
		"ChatID": "c2", "UserID": "u3", "Username": "mei", "IsTyping": true,
	}}
	vm.Apply(other)
	if got := vm.Typing(); len(got) != 1 {
		t.Errorf("typing in other chat leaked: %v", got)
	}

	stop := api.Event{Kind: bus.KindTypingChanged, ChatID: "c1", Payload: map[string]any{
		"ChatID": "c1", "UserID": "u2", "Username": "ravi", "IsTyping": false,
	}}
	vm.Apply(stop)
	if got := TypingLine(vm.Typing()); got != "" {
		t.Errorf("typing line after stop = %q", got)
	}
}

func TestApplyStatusChange(t *testing.T) {
	vm, _ := newOpenModel(t)

	r := vm.Apply(api.Event{Kind: bus.KindStatusChanged, Payload: map[string]any{"From": "CONNECTED", "To": "RECONNECTING"}})
	if r != 0 {
		t.Errorf("reload = %v, want none", r)
	}
	if got := vm.Status().State; got != "RECONNECTING" {
		t.Errorf("state = %q", got)
	}
	if r := vm.Apply(api.Event{Kind: bus.KindRoomJoined, ChatID: "c1"}); r != ReloadStatus {
		t.Errorf("room joined reload = %v, want status", r)
	}
}

func TestApplyAppended(t *testing.T) {
	vm, _ := newOpenModel(t)

	tests := []struct {
		name string
		msg  chat.Message
		want Reload
	}{
		{"active chat", chat.Message{ID: "m2", ChatID: "c1", Text: "at the library", Timestamp: time.UnixMilli(2000)}, ReloadMessages},
		{"other chat", chat.Message{ID: "m3", ChatID: "c2", Text: "blue bottle?", Timestamp: time.UnixMilli(3000)}, 0},
		{"unknown chat", chat.Message{ID: "m4", ChatID: "c9", Text: "hi", Timestamp: time.UnixMilli(4000)}, ReloadChats},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := vm.Apply(api.Event{Kind: bus.KindMessageAppended, ChatID: tt.msg.ChatID, Payload: tt.msg})
			if got != tt.want {
				t.Errorf("reload = %v, want %v", got, tt.want)
			}
		})
	}

	chats := vm.Chats()
	if chats[1].LastMessage == nil || chats[1].LastMessage.Text != "blue bottle?" {
		t.Errorf("preview of c2 = %+v", chats[1].LastMessage)
	}
}

func TestApplyUnread(t *testing.T) {
	vm, _ := newOpenModel(t)

	if r := vm.Apply(api.Event{Kind: bus.KindUnread, ChatID: "c2"}); r != 0 {
		t.Errorf("reload = %v", r)
	}
	if got := vm.Chats()[1].UnreadCount; got != 1 {
		t.Errorf("unread = %d, want 1", got)
	}
	if r := vm.Apply(api.Event{Kind: bus.KindUnread, ChatID: "c7"}); r != ReloadChats {
		t.Errorf("unknown chat reload = %v, want chats", r)
	}
}

func TestApplyRefreshFailed(t *testing.T) {
	vm, _ := newOpenModel(t)

	vm.Apply(api.Event{Kind: bus.KindRefreshFailed, Payload: "refresh rejected"})
	if !vm.NeedsLogin() {
		t.Error("expected NeedsLogin after refresh failure")
	}
	if !vm.Flash.Held(ui.TopicSession) {
		t.Error("expired session should stay on the flash bar")
	}

	if err := vm.Login(context.Background(), "asha", "pw"); err != nil {
		t.Fatal(err)
	}
	if vm.Flash.Held(ui.TopicSession) || vm.NeedsLogin() {
		t.Error("login should clear the expired session")
	}
}

func TestConnectionFlash(t *testing.T) {
	vm, _ := newOpenModel(t)
	change := func(from, to string) {
		vm.Apply(api.Event{Kind: bus.KindStatusChanged, Payload: map[string]any{"From": from, "To": to}})
	}

	change("CONNECTED", "RECONNECTING")
	if !vm.Flash.Held(ui.TopicConnection) {
		t.Fatal("no held message while reconnecting")
	}
	change("RECONNECTING", "FAILED")
	if msg := vm.Flash.GetMessage(); msg == nil || msg.Level != ui.FlashErr {
		t.Errorf("failed channel message = %+v", msg)
	}
	change("CONNECTING", "CONNECTED")
	if vm.Flash.Held(ui.TopicConnection) {
		t.Error("held message kept after reconnect")
	}
	if got := vm.Flash.Get(); got != "Reconnected" {
		t.Errorf("flash = %q", got)
	}
}

func TestFailSkipsExpiredSession(t *testing.T) {
	vm, _ := newOpenModel(t)
	vm.Fail("open chat", grpcstatus.Error(codes.Unauthenticated, "log in"))
	if vm.Flash.Get() != "" || !vm.NeedsLogin() {
		t.Errorf("flash = %q, needsLogin = %v", vm.Flash.Get(), vm.NeedsLogin())
	}

	vm.Fail("open chat", grpcstatus.Error(codes.NotFound, "no such chat"))
	if got := vm.Flash.Get(); got != "open chat: no such chat" {
		t.Errorf("flash = %q", got)
	}
}

func TestWatchReloadsActiveMessages(t *testing.T) {
	vm, fc := newOpenModel(t)
	fc.msgs["c1"] = append(fc.msgs["c1"], chat.Message{ID: "m2", ChatID: "c1", Text: "still there?", Status: chat.StatusConfirmed})

	events := &sliceEvents{events: []api.Event{
		{Kind: bus.KindMessageAppended, ChatID: "c1", Payload: fc.msgs["c1"][1]},
	}}
	err := vm.Watch(context.Background(), events)
	if !errors.Is(err, io.EOF) {
		t.Fatalf("Watch = %v, want EOF", err)
	}
	if fc.listed != 1 {
		t.Errorf("ListMessages calls = %d, want 1", fc.listed)
	}
	if got := vm.Messages(); len(got) != 2 {
		t.Errorf("messages = %d, want 2", len(got))
	}
}

func TestFailedReloadFlashes(t *testing.T) {
	vm, fc := newOpenModel(t)
	fc.listErr = grpcstatus.Error(codes.Unavailable, "list messages: channel down")

	events := &sliceEvents{events: []api.Event{
		{Kind: bus.KindHistoryLoaded, ChatID: "c1", Payload: fc.msgs["c1"]},
	}}
	_ = vm.Watch(context.Background(), events)

	if got := vm.Flash.Get(); !strings.Contains(got, "messages") || !strings.Contains(got, "channel down") {
		t.Errorf("flash = %q", got)
	}
}

func TestUnauthenticatedReloadDoesNotFlash(t *testing.T) {
	vm, fc := newOpenModel(t)
	fc.chatsErr = grpcstatus.Error(codes.Unauthenticated, "log in")

	events := &sliceEvents{events: []api.Event{
		{Kind: bus.KindUnread, ChatID: "c9", Payload: chat.Message{ChatID: "c9", Text: "hello"}},
	}}
	_ = vm.Watch(context.Background(), events)

	if got := vm.Flash.Get(); got != "" {
		t.Errorf("flash = %q, want none", got)
	}
	if !vm.NeedsLogin() {
		t.Error("NeedsLogin() = false")
	}
}

func TestSendText(t *testing.T) {
	vm, fc := newOpenModel(t)
	ctx := context.Background()

	if err := vm.SendText(ctx, "on my way"); err != nil {
		t.Fatal(err)
	}
	msgs := vm.Messages()
	if last := msgs[len(msgs)-1]; last.Text != "on my way" || last.Status != chat.StatusPending {
		t.Errorf("last = %+v", last)
	}

	fc.sendStat = chat.StatusFailed
	if err := vm.SendText(ctx, "again"); err != nil {
		t.Fatal(err)
	}
	if vm.Flash.Get() == "" {
		t.Error("failed send should flash")
	}

	if err := vm.CloseChat(ctx); err != nil {
		t.Fatal(err)
	}
	if !fc.closed {
		t.Error("CloseChat not forwarded")
	}
	if err := vm.SendText(ctx, "nobody"); !errors.Is(err, ErrNoActiveChat) {
		t.Errorf("send without chat = %v", err)
	}
}

func TestUnauthenticatedNeedsLogin(t *testing.T) {
	fc := &fakeClient{chatsErr: grpcstatus.Error(codes.Unauthenticated, "log in")}
	vm := NewViewModel(fc)

	if err := vm.LoadChats(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if !vm.NeedsLogin() {
		t.Error("expected NeedsLogin")
	}
	if err := vm.Login(context.Background(), "asha", "pw"); err != nil {
		t.Fatal(err)
	}
	if vm.NeedsLogin() {
		t.Error("NeedsLogin after login")
	}
}

func TestTypingLine(t *testing.T) {
	tests := []struct {
		names []string
		want  string
	}{
		{nil, ""},
		{[]string{"ravi"}, "ravi is typing…"},
		{[]string{"mei", "ravi"}, "mei, ravi are typing…"},
	}
	for _, tt := range tests {
		if got := TypingLine(tt.names); got != tt.want {
			t.Errorf("TypingLine(%v) = %q, want %q", tt.names, got, tt.want)
		}
	}
}
