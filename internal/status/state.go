package status

import (
	"fmt"
	"slices"
	"sync"

	"github.com/BusaSaiTeja/campus-lost-and-found/internal/bus"
)

// State represents the connection state of the chat channel.
type State string

const (
	Idle         State = "IDLE"
	Connecting   State = "CONNECTING"
	Connected    State = "CONNECTED"
	Reconnecting State = "RECONNECTING"
	Failed       State = "FAILED"
	Closed       State = "CLOSED"
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Idle:         {Connecting, Closed},
	Connecting:   {Connected, Reconnecting, Failed, Closed},
	Connected:    {Reconnecting, Closed},
	Reconnecting: {Connecting, Failed, Closed},
	Failed:       {Connecting, Closed},
	Closed:       {},
}

// Machine tracks and enforces channel state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Idle state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Idle,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	m.bus.Publish(bus.NewEvent(bus.KindStatusChanged, "", StatusChange{From: from, To: to}))
	return nil
}

// Terminal reports whether no further transitions will happen on their own.
func (s State) Terminal() bool {
	return s == Failed || s == Closed
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From State
	To   State
}
