package testserver

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type client struct {
	conn  *websocket.Conn
	user  *user
	rooms map[string]bool
	wmu   sync.Mutex
}

func (c *client) send(event string, data any) {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	_ = c.conn.WriteJSON(map[string]any{"event": event, "data": data})
}

type hub struct {
	srv      *Server
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]bool
}

func newHub(srv *Server) *hub {
	return &hub{srv: srv, clients: make(map[*client]bool)}
}

func (h *hub) serveWS(w http.ResponseWriter, r *http.Request) {
	u, err := h.srv.authenticate(r)
	if err != nil {
		h.srv.unauthorized.Add(1)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &client{conn: conn, user: u, rooms: make(map[string]bool)}
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
	defer h.remove(c)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var f frame
		if json.Unmarshal(data, &f) != nil {
			continue
		}
		h.handle(c, f)
	}
}

func (h *hub) handle(c *client, f frame) {
	var p struct {
		ChatID   string `json:"chatId"`
		Text     string `json:"text"`
		IsTyping bool   `json:"isTyping"`
	}
	_ = json.Unmarshal(f.Data, &p)
	if p.ChatID == "" {
		return
	}

	switch f.Event {
	case "join":
		h.srv.mu.Lock()
		rm, ok := h.srv.rooms[p.ChatID]
		allowed := ok && rm.has(c.user.ID)
		h.srv.mu.Unlock()
		if !allowed {
			return
		}
		h.mu.Lock()
		c.rooms[p.ChatID] = true
		h.mu.Unlock()
		c.send("joined", map[string]string{"chatId": p.ChatID})

	case "leave":
		h.mu.Lock()
		delete(c.rooms, p.ChatID)
		h.mu.Unlock()

	case "typing":
		h.broadcast(p.ChatID, c.user.ID, "typing", map[string]any{
			"chatId":   p.ChatID,
			"userId":   c.user.ID,
			"username": c.user.Name,
			"isTyping": p.IsTyping,
		})

	case "send_message":
		text := strings.TrimSpace(p.Text)
		if text == "" {
			return
		}
		h.srv.mu.Lock()
		rm, ok := h.srv.rooms[p.ChatID]
		if !ok || !rm.has(c.user.ID) {
			h.srv.mu.Unlock()
			return
		}
		m := h.srv.storeLocked(p.ChatID, c.user.ID, text, time.Now().UTC())
		h.srv.mu.Unlock()
		h.broadcast(p.ChatID, "", "receive_message", wireMessage(p.ChatID, m, c.user.Name))
	}
}

// broadcast sends to every client joined to chatID except the one whose
// user id is skip.
func (h *hub) broadcast(chatID, skip, event string, data any) {
	h.mu.Lock()
	var targets []*client
	for c := range h.clients {
		if c.rooms[chatID] && c.user.ID != skip {
			targets = append(targets, c)
		}
	}
	h.mu.Unlock()
	for _, c := range targets {
		c.send(event, data)
	}
}

func (h *hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	_ = c.conn.Close()
}

func (h *hub) closeAll() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		_ = c.conn.Close()
	}
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
