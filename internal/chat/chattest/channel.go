// Package chattest provides an in-memory chat.Channel for tests.
package chattest

import (
	"encoding/json"
	"sync"

	"github.com/BusaSaiTeja/campus-lost-and-found/internal/chat"
)

// Emitted is one event sent through the fake channel.
type Emitted struct {
	Event string
	Data  json.RawMessage
}

// Channel records emits and lets tests push incoming events and connection
// signals synchronously.
type Channel struct {
	mu        sync.Mutex
	emitted   []Emitted
	handlers  map[string]map[int]chat.Handler
	order     []int
	onConnect map[int]func()
	next      int
	emitErr   error
}

// New returns an empty fake channel.
func New() *Channel {
	return &Channel{
		handlers:  make(map[string]map[int]chat.Handler),
		onConnect: make(map[int]func()),
	}
}

// Fail makes every following Emit return err. Fail(nil) restores it.
func (c *Channel) Fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emitErr = err
}

func (c *Channel) Emit(event string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.emitErr != nil {
		return c.emitErr
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	c.emitted = append(c.emitted, Emitted{Event: event, Data: data})
	return nil
}

func (c *Channel) On(event string, h chat.Handler) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next++
	id := c.next
	if c.handlers[event] == nil {
		c.handlers[event] = make(map[int]chat.Handler)
	}
	c.handlers[event][id] = h
	c.order = append(c.order, id)
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.handlers[event], id)
	}
}

func (c *Channel) OnConnect(fn func()) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next++
	id := c.next
	c.onConnect[id] = fn
	c.order = append(c.order, id)
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.onConnect, id)
	}
}

// Deliver runs the handlers for event with payload marshalled to JSON.
// A json.RawMessage or []byte payload is passed through unchanged.
func (c *Channel) Deliver(event string, payload any) {
	var data json.RawMessage
	switch p := payload.(type) {
	case json.RawMessage:
		data = p
	case []byte:
		data = p
	default:
		data, _ = json.Marshal(payload)
	}
	for _, h := range c.handlersFor(event) {
		h(data)
	}
}

// Connect fires the connect hooks, as a (re)connection would.
func (c *Channel) Connect() {
	c.mu.Lock()
	var hooks []func()
	for _, id := range c.order {
		if fn, ok := c.onConnect[id]; ok {
			hooks = append(hooks, fn)
		}
	}
	c.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

// Emitted returns a copy of everything emitted so far.
func (c *Channel) Emitted() []Emitted {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Emitted(nil), c.emitted...)
}

// Events returns the names of everything emitted so far.
func (c *Channel) Events() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, len(c.emitted))
	for i, e := range c.emitted {
		names[i] = e.Event
	}
	return names
}

// Reset forgets recorded emits.
func (c *Channel) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emitted = nil
}

// Subscribers reports how many handlers and connect hooks are registered.
func (c *Channel) Subscribers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.onConnect)
	for _, hs := range c.handlers {
		n += len(hs)
	}
	return n
}

func (c *Channel) handlersFor(event string) []chat.Handler {
	c.mu.Lock()
	defer c.mu.Unlock()
	var hs []chat.Handler
	for _, id := range c.order {
		if h, ok := c.handlers[event][id]; ok {
			hs = append(hs, h)
		}
	}
	return hs
}

var _ chat.Channel = (*Channel)(nil)
