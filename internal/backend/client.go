package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"

	"github.com/BusaSaiTeja/campus-lost-and-found/internal/chat"
	"github.com/BusaSaiTeja/campus-lost-and-found/internal/gateway"
)

// Cookie names set by the backend.
const (
	CookieAccess  = "access_token"
	CookieRefresh = "refresh_token"
	CookieUserID  = "user_id"
)

// NewHTTPClient returns a client with a fresh cookie jar. The jar is the
// only place credentials live; the websocket dial shares it.
func NewHTTPClient(timeout time.Duration) (*http.Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	return &http.Client{Jar: jar, Timeout: timeout}, nil
}

// Client is the typed REST API of the lost & found backend. Every call
// goes through the gateway.
type Client struct {
	gw  *gateway.Gateway
	log *zap.Logger
}

// New creates a backend client.
func New(gw *gateway.Gateway, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{gw: gw, log: log.Named("backend")}
}

// History returns a room's messages.
func (c *Client) History(ctx context.Context, chatID string) ([]chat.Message, error) {
	var body struct {
		Messages []json.RawMessage `json:"messages"`
	}
	if err := c.get(ctx, "/api/chat/"+url.PathEscape(chatID)+"/messages", &body); err != nil {
		return nil, err
	}
	msgs := chat.DecodeMessages(body.Messages)
	for i := range msgs {
		if msgs[i].ChatID == "" {
			msgs[i].ChatID = chatID
		}
	}
	return msgs, nil
}

// Info returns a room's partner and participants. A missing partner name
// reads as "unknown".
func (c *Client) Info(ctx context.Context, chatID string) (chat.Info, error) {
	var body struct {
		ChatID       string         `json:"chatId"`
		Partner      *chat.Partner  `json:"partner"`
		Participants []chat.Partner `json:"participants"`
	}
	if err := c.get(ctx, "/api/chat/"+url.PathEscape(chatID)+"/info", &body); err != nil {
		return chat.Info{}, err
	}
	info := chat.Info{ChatID: body.ChatID, Participants: body.Participants}
	if info.ChatID == "" {
		info.ChatID = chatID
	}
	if body.Partner != nil {
		info.Partner = *body.Partner
	}
	if info.Partner.Username == "" {
		info.Partner.Username = chat.UnknownSender
	}
	return info, nil
}

// StartChat opens (or finds) the one-to-one chat with partnerID.
func (c *Client) StartChat(ctx context.Context, partnerID string) (string, error) {
	var body struct {
		ChatID string `json:"chatId"`
	}
	in := map[string]string{"partnerId": partnerID}
	if err := c.send(ctx, http.MethodPost, "/api/chat/start", in, &body); err != nil {
		return "", err
	}
	if body.ChatID == "" {
		return "", fmt.Errorf("start chat: response has no chatId")
	}
	return body.ChatID, nil
}

type wireSummary struct {
	ChatID      string `json:"chatId"`
	WithUser    string `json:"withUser"`
	WithUserID  string `json:"withUserId"`
	UnreadCount int    `json:"unreadCount"`
	LastMessage *struct {
		Text      string          `json:"text"`
		SenderID  string          `json:"senderId"`
		Timestamp json.RawMessage `json:"timestamp"`
	} `json:"lastMessage"`
}

// Chats lists the user's chats, most recent first as the backend sorts them.
func (c *Client) Chats(ctx context.Context) ([]chat.Summary, error) {
	var body struct {
		Chats []wireSummary `json:"chats"`
	}
	if err := c.get(ctx, "/api/chat/user", &body); err != nil {
		return nil, err
	}
	out := make([]chat.Summary, 0, len(body.Chats))
	for _, w := range body.Chats {
		s := chat.Summary{
			ChatID:      w.ChatID,
			WithUser:    w.WithUser,
			WithUserID:  w.WithUserID,
			UnreadCount: w.UnreadCount,
		}
		if s.WithUser == "" {
			s.WithUser = chat.UnknownSender
		}
		if w.LastMessage != nil {
			s.LastMessage = &chat.LastMessage{
				Text:      w.LastMessage.Text,
				SenderID:  w.LastMessage.SenderID,
				Timestamp: chat.ParseTimestamp(w.LastMessage.Timestamp),
			}
		}
		out = append(out, s)
	}
	return out, nil
}

// MarkRead marks every message in chatID as read.
func (c *Client) MarkRead(ctx context.Context, chatID string) error {
	return c.send(ctx, http.MethodPost, "/api/chat/"+url.PathEscape(chatID)+"/read", struct{}{}, nil)
}

// Verification is the result of /api/verify_token.
type Verification struct {
	Valid bool   `json:"valid"`
	User  string `json:"user"`
}

// VerifyToken checks that the session is still accepted.
func (c *Client) VerifyToken(ctx context.Context) (Verification, error) {
	var v Verification
	err := c.get(ctx, "/api/verify_token", &v)
	return v, err
}

// Identity is the logged-in user.
type Identity struct {
	UserID   string
	Username string
}

// Login exchanges credentials for session cookies, which land in the jar.
// The user id comes from the response body or, failing that, the user_id
// cookie.
func (c *Client) Login(ctx context.Context, username, password string) (Identity, error) {
	var body struct {
		UserID string `json:"userId"`
		User   string `json:"user"`
	}
	in := map[string]string{"username": username, "password": password}
	if err := c.send(ctx, http.MethodPost, "/api/login", in, &body); err != nil {
		return Identity{}, fmt.Errorf("login: %w", err)
	}
	id := Identity{UserID: body.UserID, Username: body.User}
	if id.UserID == "" {
		id.UserID = c.UserID()
	}
	if id.Username == "" {
		id.Username = username
	}
	c.log.Info("logged in", zap.String("username", id.Username), zap.String("user_id", id.UserID))
	return id, nil
}

// UserID returns the user_id cookie the backend set, or "".
func (c *Client) UserID() string {
	return c.Cookie(CookieUserID)
}

// Cookie returns the named cookie's value for the backend host.
func (c *Client) Cookie(name string) string {
	jar := c.gw.Client().Jar
	if jar == nil {
		return ""
	}
	for _, ck := range jar.Cookies(c.gw.BaseURL()) {
		if ck.Name == name {
			return ck.Value
		}
	}
	return ""
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, gateway.NewRequest(http.MethodGet, path), out)
}

func (c *Client) send(ctx context.Context, method, path string, in, out any) error {
	req, err := gateway.NewJSONRequest(method, path, in)
	if err != nil {
		return err
	}
	return c.do(ctx, req, out)
}

func (c *Client) do(ctx context.Context, req *gateway.Request, out any) error {
	resp, err := c.gw.Do(ctx, req)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return statusError(req, resp)
	}
	if out == nil || len(resp.Body) == 0 {
		return nil
	}
	return resp.Decode(out)
}
