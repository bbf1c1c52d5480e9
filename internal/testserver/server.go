// Package testserver is an in-process lost & found backend: cookie
// sessions, the chat REST API and the chat websocket. Tests use it to run
// the client stack end to end.
package testserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type user struct {
	ID       string
	Name     string
	Password string
}

type message struct {
	ID        string
	SenderID  string
	Text      string
	Timestamp time.Time
	ReadBy    map[string]bool
}

type room struct {
	ID           string
	Participants []*user
	Messages     []*message
}

// Server is a fake backend bound to an httptest server.
type Server struct {
	*httptest.Server

	secret []byte

	mu          sync.Mutex
	users       map[string]*user
	rooms       map[string]*room
	generation  int
	failRefresh bool
	holdRefresh func()

	hub *hub

	refreshes    atomic.Int32
	unauthorized atomic.Int32
}

// New starts a server and closes it when the test ends.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		secret: []byte(uuid.NewString()),
		users:  make(map[string]*user),
		rooms:  make(map[string]*room),
	}
	s.hub = newHub(s)
	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(func() {
		s.hub.closeAll()
		s.Close()
	})
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/api/login", s.handleLogin)
	r.Post("/api/refresh", s.handleRefresh)
	r.Get("/ws", s.hub.serveWS)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Get("/api/verify_token", s.handleVerify)
		r.Post("/api/chat/start", s.handleStart)
		r.Get("/api/chat/user", s.handleUserChats)
		r.Get("/api/chat/{chatId}/info", s.handleInfo)
		r.Get("/api/chat/{chatId}/messages", s.handleMessages)
		r.Post("/api/chat/{chatId}/read", s.handleRead)
	})
	return r
}

// AddUser registers a user and returns its id.
func (s *Server) AddUser(name, password string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := &user{ID: uuid.NewString(), Name: name, Password: password}
	s.users[u.ID] = u
	return u.ID
}

// AddRoom creates a chat between the given users and returns its id.
func (s *Server) AddRoom(userIDs ...string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := &room{ID: uuid.NewString()}
	for _, id := range userIDs {
		r.Participants = append(r.Participants, s.users[id])
	}
	s.rooms[r.ID] = r
	return r.ID
}

// Store persists a message without broadcasting it, as if it was sent while
// the client was offline. Returns the message id.
func (s *Server) Store(chatID, senderID, text string, ts time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storeLocked(chatID, senderID, text, ts).ID
}

// Push persists a message and broadcasts it to the room.
func (s *Server) Push(chatID, senderID, text string) string {
	s.mu.Lock()
	m := s.storeLocked(chatID, senderID, text, time.Now().UTC())
	name := s.users[senderID].Name
	s.mu.Unlock()
	s.hub.broadcast(chatID, "", "receive_message", wireMessage(chatID, m, name))
	return m.ID
}

// ExpireSessions invalidates every access token issued so far. Refresh
// tokens stay valid.
func (s *Server) ExpireSessions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
}

// FailRefresh makes /api/refresh reject every call.
func (s *Server) FailRefresh(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failRefresh = fail
}

// HoldRefresh runs fn inside every refresh call before it answers.
func (s *Server) HoldRefresh(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holdRefresh = fn
}

// Refreshes counts calls to /api/refresh.
func (s *Server) Refreshes() int { return int(s.refreshes.Load()) }

// Unauthorized counts requests rejected with 401.
func (s *Server) Unauthorized() int { return int(s.unauthorized.Load()) }

// DropConnections closes every websocket without a close frame.
func (s *Server) DropConnections() { s.hub.closeAll() }

// Connections counts live websockets.
func (s *Server) Connections() int { return s.hub.count() }

// WSURL is the websocket endpoint.
func (s *Server) WSURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http") + "/ws"
}

func (s *Server) storeLocked(chatID, senderID, text string, ts time.Time) *message {
	m := &message{
		ID:        uuid.NewString(),
		SenderID:  senderID,
		Text:      text,
		Timestamp: ts,
		ReadBy:    map[string]bool{senderID: true},
	}
	if r, ok := s.rooms[chatID]; ok {
		r.Messages = append(r.Messages, m)
	}
	return m
}

func wireMessage(chatID string, m *message, senderName string) map[string]any {
	out := map[string]any{
		"_id":       m.ID,
		"senderId":  m.SenderID,
		"text":      m.Text,
		"timestamp": m.Timestamp.UTC().Format("2006-01-02T15:04:05.000000") + "Z",
	}
	if chatID != "" {
		out["chatId"] = chatID
	}
	if senderName != "" {
		out["senderName"] = senderName
	}
	return out
}

type ctxKey struct{}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, err := s.authenticate(r)
		if err != nil {
			s.unauthorized.Add(1)
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Token is invalid!"})
			return
		}
		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), u)))
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "bad request"})
		return
	}
	s.mu.Lock()
	var found *user
	for _, u := range s.users {
		if u.Name == in.Username && u.Password == in.Password {
			found = u
		}
	}
	s.mu.Unlock()
	if found == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid credentials"})
		return
	}
	if err := s.setSession(w, found); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"userId": found.ID, "user": found.Name})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.refreshes.Add(1)
	s.mu.Lock()
	hold, fail := s.holdRefresh, s.failRefresh
	s.mu.Unlock()
	if hold != nil {
		hold()
	}
	if fail {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Refresh token invalid"})
		return
	}

	ck, err := r.Cookie("refresh_token")
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Refresh token missing"})
		return
	}
	c, err := s.parse(ck.Value, "refresh")
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Refresh token invalid"})
		return
	}
	s.mu.Lock()
	u := s.users[c.UserID]
	s.mu.Unlock()
	if u == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "User not found"})
		return
	}
	if err := s.setSession(w, u); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"valid": true, "user": u.Name})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r.Context())
	var in struct {
		PartnerID string `json:"partnerId"`
	}
	_ = json.NewDecoder(r.Body).Decode(&in)
	if in.PartnerID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "partnerId is required"})
		return
	}
	if in.PartnerID == u.ID {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Cannot start chat with yourself"})
		return
	}

	s.mu.Lock()
	partner, ok := s.users[in.PartnerID]
	if !ok {
		s.mu.Unlock()
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "User not found"})
		return
	}
	for _, rm := range s.rooms {
		if len(rm.Participants) == 2 && rm.has(u.ID) && rm.has(partner.ID) {
			s.mu.Unlock()
			writeJSON(w, http.StatusOK, map[string]string{"chatId": rm.ID})
			return
		}
	}
	rm := &room{ID: uuid.NewString(), Participants: []*user{u, partner}}
	s.rooms[rm.ID] = rm
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"chatId": rm.ID})
}

func (s *Server) handleUserChats(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r.Context())
	type last struct {
		Text      string `json:"text"`
		SenderID  string `json:"senderId"`
		Timestamp string `json:"timestamp"`
	}
	type row struct {
		ChatID      string `json:"chatId"`
		WithUser    string `json:"withUser"`
		WithUserID  string `json:"withUserId"`
		LastMessage *last  `json:"lastMessage"`
		UnreadCount int    `json:"unreadCount"`
		sortKey     time.Time
	}

	s.mu.Lock()
	var rows []row
	for _, rm := range s.rooms {
		if !rm.has(u.ID) {
			continue
		}
		partner := rm.partnerOf(u.ID)
		if partner == nil {
			continue
		}
		rw := row{ChatID: rm.ID, WithUser: partner.Name, WithUserID: partner.ID}
		for _, m := range rm.Messages {
			if !m.ReadBy[u.ID] {
				rw.UnreadCount++
			}
		}
		if n := len(rm.Messages); n > 0 {
			m := rm.Messages[n-1]
			rw.LastMessage = &last{Text: m.Text, SenderID: m.SenderID, Timestamp: m.Timestamp.Format(time.RFC3339Nano)}
			rw.sortKey = m.Timestamp
		}
		rows = append(rows, rw)
	}
	s.mu.Unlock()

	sort.Slice(rows, func(i, j int) bool { return rows[i].sortKey.After(rows[j].sortKey) })
	writeJSON(w, http.StatusOK, map[string]any{"chats": rows})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r.Context())
	chatID := chi.URLParam(r, "chatId")

	s.mu.Lock()
	defer s.mu.Unlock()
	rm, ok := s.rooms[chatID]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Chat not found"})
		return
	}
	if !rm.has(u.ID) {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "Forbidden"})
		return
	}
	var parts []map[string]string
	for _, p := range rm.Participants {
		parts = append(parts, map[string]string{"userId": p.ID, "username": p.Name})
	}
	var partner any
	if p := rm.partnerOf(u.ID); p != nil {
		partner = map[string]string{"userId": p.ID, "username": p.Name}
	}
	writeJSON(w, http.StatusOK, map[string]any{"chatId": chatID, "participants": parts, "partner": partner})
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r.Context())
	chatID := chi.URLParam(r, "chatId")

	s.mu.Lock()
	defer s.mu.Unlock()
	rm, ok := s.rooms[chatID]
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"messages": []any{}})
		return
	}
	if !rm.has(u.ID) {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "Forbidden"})
		return
	}
	msgs := append([]*message(nil), rm.Messages...)
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].Timestamp.Before(msgs[j].Timestamp) })
	out := make([]map[string]any, 0, len(msgs))
	for _, m := range msgs {
		m.ReadBy[u.ID] = true
		out = append(out, wireMessage("", m, ""))
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": out})
}

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r.Context())
	chatID := chi.URLParam(r, "chatId")

	s.mu.Lock()
	defer s.mu.Unlock()
	rm, ok := s.rooms[chatID]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Not found"})
		return
	}
	for _, m := range rm.Messages {
		m.ReadBy[u.ID] = true
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (rm *room) has(userID string) bool {
	for _, p := range rm.Participants {
		if p != nil && p.ID == userID {
			return true
		}
	}
	return false
}

func (rm *room) partnerOf(userID string) *user {
	for _, p := range rm.Participants {
		if p != nil && p.ID != userID {
			return p
		}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
