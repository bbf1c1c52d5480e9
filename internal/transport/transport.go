package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/BusaSaiTeja/campus-lost-and-found/internal/bus"
	"github.com/BusaSaiTeja/campus-lost-and-found/internal/chat"
	"github.com/BusaSaiTeja/campus-lost-and-found/internal/metrics"
	"github.com/BusaSaiTeja/campus-lost-and-found/internal/status"
)

var (
	// ErrNotConnected is returned by Emit while the channel is down.
	ErrNotConnected = errors.New("channel not connected")
	// ErrReconnectExhausted is the terminal error after the last failed attempt.
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
	// ErrClosed is returned by Connect after Close.
	ErrClosed = errors.New("transport closed")
)

const writeTimeout = 10 * time.Second

// Options configures a Transport.
type Options struct {
	URL      string
	Jar      http.CookieJar
	Dialer   *websocket.Dialer
	Attempts int
	Delay    time.Duration
	Logger   *zap.Logger
	Machine  *status.Machine
	Bus      *bus.Bus
}

// envelope is the frame format in both directions.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outgoing struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type entry[F any] struct {
	id int
	fn F
}

// Transport owns the websocket to the chat server. Credentials travel in the
// cookie jar on the upgrade request. Handlers run one at a time on the read
// goroutine, in arrival order.
type Transport struct {
	opts    Options
	log     *zap.Logger
	machine *status.Machine
	bus     *bus.Bus

	mu           sync.Mutex
	conn         *websocket.Conn
	running      bool
	closed       bool
	cancel       context.CancelFunc
	nextID       int
	handlers     map[string][]entry[chat.Handler]
	onConnect    []entry[func()]
	onDisconnect []entry[func(error)]
	onError      []entry[func(error)]

	writeMu sync.Mutex
}

// New creates a transport. Nothing is dialled until Connect.
func New(opts Options) *Transport {
	if opts.Attempts <= 0 {
		opts.Attempts = 10
	}
	if opts.Delay <= 0 {
		opts.Delay = time.Second
	}
	if opts.Dialer == nil {
		opts.Dialer = &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Machine == nil {
		opts.Machine = status.NewMachine(opts.Bus)
	}
	return &Transport{
		opts:     opts,
		log:      opts.Logger.Named("transport"),
		machine:  opts.Machine,
		bus:      opts.Bus,
		handlers: make(map[string][]entry[chat.Handler]),
	}
}

// State returns the current connection state.
func (t *Transport) State() status.State {
	return t.machine.Current()
}

// Connect dials the server, retrying up to Attempts times with a fixed delay.
// Once connected, a supervisor goroutine keeps reconnecting on loss until
// Close or until the attempts run out again. Connect is a no-op while the
// transport is already connected or reconnecting.
func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	if t.running {
		t.mu.Unlock()
		return nil
	}
	t.running = true
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	t.cancel = cancel
	t.mu.Unlock()

	stop := context.AfterFunc(ctx, cancel)
	conn, err := t.dialLoop(runCtx, true)
	stop()
	if err != nil {
		t.mu.Lock()
		t.running = false
		t.mu.Unlock()
		cancel()
		if !errors.Is(err, ErrReconnectExhausted) {
			t.enter(status.Failed)
		}
		return err
	}
	if !t.connected(conn) {
		t.mu.Lock()
		t.running = false
		t.mu.Unlock()
		return ErrClosed
	}
	go t.supervise(runCtx, conn)
	return nil
}

// Close disconnects and stops supervision. No reconnect happens afterwards.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	conn := t.conn
	t.conn = nil
	cancel := t.cancel
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	var err error
	if conn != nil {
		t.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		t.writeMu.Unlock()
		err = conn.Close()
	}
	t.enter(status.Closed)
	return err
}

// Emit sends one event. There is no buffering: while the channel is down the
// event is rejected with ErrNotConnected.
func (t *Transport) Emit(event string, payload any) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(outgoing{Event: event, Data: payload}); err != nil {
		return fmt.Errorf("emit %s: %w", event, err)
	}
	metrics.ChannelEvents.WithLabelValues("out", event).Inc()
	return nil
}

// On registers a handler for an incoming event.
func (t *Transport) On(event string, h chat.Handler) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.id()
	t.handlers[event] = append(t.handlers[event], entry[chat.Handler]{id: id, fn: h})
	return t.unsubscriber(func() {
		t.handlers[event] = remove(t.handlers[event], id)
	})
}

// OnConnect registers the resync hook, called after every successful
// connection including the first.
func (t *Transport) OnConnect(fn func()) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.id()
	t.onConnect = append(t.onConnect, entry[func()]{id: id, fn: fn})
	return t.unsubscriber(func() { t.onConnect = remove(t.onConnect, id) })
}

// OnDisconnect registers a hook for connection loss.
func (t *Transport) OnDisconnect(fn func(error)) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.id()
	t.onDisconnect = append(t.onDisconnect, entry[func(error)]{id: id, fn: fn})
	return t.unsubscriber(func() { t.onDisconnect = remove(t.onDisconnect, id) })
}

// OnError registers a hook for dial and read failures and for the terminal
// ErrReconnectExhausted.
func (t *Transport) OnError(fn func(error)) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.id()
	t.onError = append(t.onError, entry[func(error)]{id: id, fn: fn})
	return t.unsubscriber(func() { t.onError = remove(t.onError, id) })
}

func (t *Transport) supervise(ctx context.Context, conn *websocket.Conn) {
	for {
		err := t.readLoop(conn)

		t.mu.Lock()
		closed := t.closed
		if t.conn == conn {
			t.conn = nil
		}
		t.mu.Unlock()
		_ = conn.Close()
		if closed {
			return
		}

		t.log.Warn("channel lost", zap.Error(err))
		t.enter(status.Reconnecting)
		t.fireDisconnect(err)
		t.fireError(err)

		next, dialErr := t.dialLoop(ctx, false)
		if dialErr != nil {
			t.mu.Lock()
			t.running = false
			t.mu.Unlock()
			return
		}
		if !t.connected(next) {
			t.mu.Lock()
			t.running = false
			t.mu.Unlock()
			return
		}
		conn = next
	}
}

// dialLoop makes up to Attempts dials. Every attempt except the very first
// connection waits Delay beforehand.
func (t *Transport) dialLoop(ctx context.Context, initial bool) (*websocket.Conn, error) {
	var lastErr error
	for attempt := 1; attempt <= t.opts.Attempts; attempt++ {
		if !initial || attempt > 1 {
			t.enter(status.Reconnecting)
			if err := sleep(ctx, t.opts.Delay); err != nil {
				return nil, err
			}
		}
		t.enter(status.Connecting)

		conn, err := t.dial(ctx)
		if err == nil {
			t.mu.Lock()
			closed := t.closed
			t.mu.Unlock()
			if closed {
				_ = conn.Close()
				return nil, ErrClosed
			}
			return conn, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		metrics.ChannelDialFailures.Inc()
		t.log.Warn("dial failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", t.opts.Attempts),
			zap.Error(err))
		t.fireError(err)
	}

	t.enter(status.Failed)
	err := fmt.Errorf("%w after %d attempts: %w", ErrReconnectExhausted, t.opts.Attempts, lastErr)
	t.log.Error("giving up on channel", zap.Error(err))
	t.fireError(err)
	return nil, err
}

func (t *Transport) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := *t.opts.Dialer
	if t.opts.Jar != nil {
		dialer.Jar = t.opts.Jar
	}
	conn, resp, err := dialer.DialContext(ctx, t.opts.URL, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %s: %w", t.opts.URL, resp.Status, err)
		}
		return nil, fmt.Errorf("dial %s: %w", t.opts.URL, err)
	}
	return conn, nil
}

// connected installs conn as the live connection. It reports false, and
// closes conn, when Close has run since the dial.
func (t *Transport) connected(conn *websocket.Conn) bool {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		_ = conn.Close()
		return false
	}
	t.conn = conn
	hooks := snapshot(t.onConnect)
	t.mu.Unlock()

	t.enter(status.Connected)
	metrics.ChannelConnects.Inc()
	t.log.Info("channel connected", zap.String("url", t.opts.URL))
	t.bus.Publish(bus.NewEvent(bus.KindConnected, "", nil))
	for _, fn := range hooks {
		fn()
	}
	return true
}

func (t *Transport) readLoop(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.log.Warn("dropping unreadable frame", zap.Error(err))
			continue
		}
		if env.Event == "" {
			continue
		}
		metrics.ChannelEvents.WithLabelValues("in", env.Event).Inc()
		t.dispatch(env)
	}
}

func (t *Transport) dispatch(env envelope) {
	t.mu.Lock()
	hs := snapshot(t.handlers[env.Event])
	t.mu.Unlock()
	for _, h := range hs {
		h(env.Data)
	}
}

func (t *Transport) fireDisconnect(err error) {
	t.mu.Lock()
	hooks := snapshot(t.onDisconnect)
	t.mu.Unlock()
	t.bus.Publish(bus.NewEvent(bus.KindDisconnected, "", err.Error()))
	for _, fn := range hooks {
		fn(err)
	}
}

func (t *Transport) fireError(err error) {
	t.mu.Lock()
	hooks := snapshot(t.onError)
	t.mu.Unlock()
	t.bus.Publish(bus.NewEvent(bus.KindTransportError, "", err.Error()))
	for _, fn := range hooks {
		fn(err)
	}
}

// enter moves the state machine, skipping self-transitions and ignoring
// moves out of Closed.
func (t *Transport) enter(s status.State) {
	if t.machine.Current() == s {
		return
	}
	if err := t.machine.Transition(s); err != nil {
		t.log.Debug("state transition skipped", zap.Error(err))
	}
}

func (t *Transport) id() int {
	t.nextID++
	return t.nextID
}

func (t *Transport) unsubscriber(fn func()) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			fn()
		})
	}
}

func remove[F any](list []entry[F], id int) []entry[F] {
	out := list[:0:0]
	for _, e := range list {
		if e.id != id {
			out = append(out, e)
		}
	}
	return out
}

func snapshot[F any](list []entry[F]) []F {
	out := make([]F, len(list))
	for i, e := range list {
		out[i] = e.fn
	}
	return out
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var _ chat.Channel = (*Transport)(nil)
