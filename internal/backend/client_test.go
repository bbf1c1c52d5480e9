package backend

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BusaSaiTeja/campus-lost-and-found/internal/chat"
	"github.com/BusaSaiTeja/campus-lost-and-found/internal/gateway"
	"github.com/BusaSaiTeja/campus-lost-and-found/internal/testserver"
)

func newClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	hc, err := NewHTTPClient(5 * time.Second)
	if err != nil {
		t.Fatal(err)
	}
	gw, err := gateway.New(gateway.Options{BaseURL: baseURL, Client: hc})
	if err != nil {
		t.Fatal(err)
	}
	return New(gw, nil)
}

func loggedIn(t *testing.T) (*testserver.Server, *Client, string, string) {
	t.Helper()
	srv := testserver.New(t)
	me := srv.AddUser("asha", "pw")
	peer := srv.AddUser("ravi", "pw")
	c := newClient(t, srv.URL)
	id, err := c.Login(context.Background(), "asha", "pw")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if id.UserID != me || id.Username != "asha" {
		t.Fatalf("Login() = %+v", id)
	}
	return srv, c, me, peer
}

func TestLoginStoresIdentityCookie(t *testing.T) {
	_, c, me, _ := loggedIn(t)
	if got := c.UserID(); got != me {
		t.Errorf("UserID() = %q, want %q", got, me)
	}
	if c.Cookie(CookieAccess) == "" || c.Cookie(CookieRefresh) == "" {
		t.Error("session cookies not stored")
	}

	v, err := c.VerifyToken(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !v.Valid || v.User != "asha" {
		t.Errorf("VerifyToken() = %+v", v)
	}
}

func TestLoginBadCredentials(t *testing.T) {
	srv := testserver.New(t)
	srv.AddUser("asha", "pw")
	c := newClient(t, srv.URL)

	_, err := c.Login(context.Background(), "asha", "nope")
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusUnauthorized {
		t.Fatalf("Login() error = %v", err)
	}
	if se.Message != "Invalid credentials" {
		t.Errorf("Message = %q", se.Message)
	}
}

func TestChatRoundTrip(t *testing.T) {
	srv, c, me, peer := loggedIn(t)
	ctx := context.Background()

	chatID, err := c.StartChat(ctx, peer)
	if err != nil {
		t.Fatal(err)
	}
	again, err := c.StartChat(ctx, peer)
	if err != nil || again != chatID {
		t.Errorf("StartChat() second call = %q, %v; want existing %q", again, err, chatID)
	}

	t0 := time.Date(2024, 2, 2, 8, 0, 0, 0, time.UTC)
	srv.Store(chatID, peer, "found your keys", t0.Add(time.Minute))
	srv.Store(chatID, me, "thanks!", t0.Add(2*time.Minute))

	info, err := c.Info(ctx, chatID)
	if err != nil {
		t.Fatal(err)
	}
	if info.Partner.Username != "ravi" || info.Partner.UserID != peer || len(info.Participants) != 2 {
		t.Errorf("Info() = %+v", info)
	}

	chats, err := c.Chats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(chats) != 1 || chats[0].ChatID != chatID || chats[0].WithUser != "ravi" {
		t.Fatalf("Chats() = %+v", chats)
	}
	if chats[0].UnreadCount != 1 {
		t.Errorf("UnreadCount = %d, want 1", chats[0].UnreadCount)
	}
	if lm := chats[0].LastMessage; lm == nil || lm.Text != "thanks!" || !lm.Timestamp.Equal(t0.Add(2*time.Minute)) {
		t.Errorf("LastMessage = %+v", chats[0].LastMessage)
	}

	msgs, err := c.History(ctx, chatID)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 || msgs[0].Text != "found your keys" || msgs[1].SenderID != me {
		t.Fatalf("History() = %+v", msgs)
	}
	if msgs[0].ChatID != chatID || msgs[0].ID == "" || !msgs[0].Timestamp.Equal(t0.Add(time.Minute)) {
		t.Errorf("History()[0] = %+v", msgs[0])
	}

	if err := c.MarkRead(ctx, chatID); err != nil {
		t.Fatal(err)
	}
	chats, _ = c.Chats(ctx)
	if chats[0].UnreadCount != 0 {
		t.Errorf("UnreadCount after MarkRead = %d", chats[0].UnreadCount)
	}
}

func TestExpiredSessionRefreshedTransparently(t *testing.T) {
	srv, c, _, peer := loggedIn(t)
	chatID := srv.AddRoom(c.UserID(), peer)

	srv.ExpireSessions()
	if _, err := c.History(context.Background(), chatID); err != nil {
		t.Fatalf("History() after expiry = %v", err)
	}
	if srv.Refreshes() != 1 {
		t.Errorf("refreshes = %d, want 1", srv.Refreshes())
	}
}

func TestRefreshFailureNeedsLogin(t *testing.T) {
	srv, c, _, _ := loggedIn(t)
	srv.ExpireSessions()
	srv.FailRefresh(true)

	_, err := c.Chats(context.Background())
	if !NeedsLogin(err) {
		t.Fatalf("Chats() error = %v, want login required", err)
	}
	if !gateway.IsRefreshError(err) {
		t.Errorf("error %v is not a refresh error", err)
	}
}

func TestStatusErrors(t *testing.T) {
	_, c, _, _ := loggedIn(t)

	_, err := c.Info(context.Background(), "missing")
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusNotFound || se.Message != "Chat not found" {
		t.Errorf("Info(missing) error = %v", err)
	}
	if errors.Is(err, ErrUnauthorized) {
		t.Error("404 should not match ErrUnauthorized")
	}

	if _, err := c.StartChat(context.Background(), c.UserID()); err == nil {
		t.Error("StartChat with self should fail")
	}
}

func TestUnauthorizedAfterReplay(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == gateway.DefaultRefreshPath {
			w.WriteHeader(http.StatusOK)
			return
		}
		http.Error(w, `{"message":"Token is invalid!"}`, http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)
	c := newClient(t, srv.URL)

	_, err := c.Chats(context.Background())
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("Chats() error = %v, want ErrUnauthorized", err)
	}
	if !NeedsLogin(err) {
		t.Error("NeedsLogin() = false")
	}
}

func TestTolerantShapes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/chat/c1/info":
			_, _ = w.Write([]byte(`{"partner":null}`))
		case "/api/chat/user":
			_, _ = w.Write([]byte(`{"chats":[{"chatId":"c1","lastMessage":null,"unreadCount":2}]}`))
		case "/api/chat/c1/messages":
			_, _ = w.Write([]byte(`{"messages":[{"_id":"m1","timestamp":1700000000000},{"text":"no id"}]}`))
		}
	}))
	t.Cleanup(srv.Close)
	c := newClient(t, srv.URL)
	ctx := context.Background()

	info, err := c.Info(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if info.Partner.Username != chat.UnknownSender || info.ChatID != "c1" {
		t.Errorf("Info() = %+v", info)
	}

	chats, err := c.Chats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if chats[0].WithUser != chat.UnknownSender || chats[0].LastMessage != nil || chats[0].UnreadCount != 2 {
		t.Errorf("Chats() = %+v", chats[0])
	}

	msgs, err := c.History(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 || msgs[0].SenderID != chat.UnknownSender || msgs[1].Text != "no id" {
		t.Errorf("History() = %+v", msgs)
	}
}
