package session

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BusaSaiTeja/campus-lost-and-found/internal/backend"
	"github.com/BusaSaiTeja/campus-lost-and-found/internal/bus"
	"github.com/BusaSaiTeja/campus-lost-and-found/internal/chat"
	"github.com/BusaSaiTeja/campus-lost-and-found/internal/config"
	"github.com/BusaSaiTeja/campus-lost-and-found/internal/gateway"
	"github.com/BusaSaiTeja/campus-lost-and-found/internal/room"
	"github.com/BusaSaiTeja/campus-lost-and-found/internal/status"
	"github.com/BusaSaiTeja/campus-lost-and-found/internal/stream"
	"github.com/BusaSaiTeja/campus-lost-and-found/internal/transport"
	"github.com/BusaSaiTeja/campus-lost-and-found/internal/typing"
)

// ErrNoActiveChat is returned by operations that need an open chat.
var ErrNoActiveChat = errors.New("no chat is open")

// Options configures a Session.
type Options struct {
	Config  *config.Config
	Cookies CookieStore
	Machine *status.Machine
	Bus     *bus.Bus
	Logger  *zap.Logger
	// RequireJoinAck waits for the server's joined event before a room
	// counts as joined.
	RequireJoinAck bool
}

// Session is one user's chat client: a single channel, the room it is
// joined to, the message stream of that room, typing presence and the
// authenticated REST client, all sharing one cookie jar.
type Session struct {
	cfg *config.Config
	log *zap.Logger
	bus *bus.Bus

	gateway   *gateway.Gateway
	backend   *backend.Client
	transport *transport.Transport
	room      *room.Membership
	stream    *stream.Stream
	typing    *typing.Signal

	mu       sync.Mutex
	identity backend.Identity
	partner  chat.Partner
}

// New wires a session from config. Nothing touches the network until
// Connect or a REST call.
func New(opts Options) (*Session, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	machine := opts.Machine
	if machine == nil {
		machine = status.NewMachine(opts.Bus)
	}

	base, err := url.Parse(cfg.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("parse server_url: %w", err)
	}
	wsURL, err := cfg.WebSocketURL()
	if err != nil {
		return nil, err
	}

	httpClient, err := backend.NewHTTPClient(cfg.RequestTimeout.Duration)
	if err != nil {
		return nil, err
	}
	if opts.Cookies != nil {
		jar := &persistentJar{
			CookieJar: httpClient.Jar,
			base:      base,
			store:     opts.Cookies,
			onErr:     func(err error) { log.Warn("saving session cookies failed", zap.Error(err)) },
		}
		n, err := jar.restore()
		if err != nil {
			log.Warn("restoring session cookies failed", zap.Error(err))
		} else if n > 0 {
			log.Info("restored session cookies", zap.Int("count", n))
		}
		httpClient.Jar = jar
	}

	gw, err := gateway.New(gateway.Options{
		BaseURL: cfg.ServerURL,
		Client:  httpClient,
		Logger:  log,
		Bus:     opts.Bus,
	})
	if err != nil {
		return nil, err
	}
	api := backend.New(gw, log)

	identity := backend.Identity{UserID: api.UserID()}
	if identity.UserID == "" {
		identity.UserID = cfg.UserID
	}

	tr := transport.New(transport.Options{
		URL:      wsURL,
		Jar:      httpClient.Jar,
		Attempts: cfg.Reconnect.Attempts,
		Delay:    cfg.Reconnect.Delay.Duration,
		Logger:   log,
		Machine:  machine,
		Bus:      opts.Bus,
	})

	return &Session{
		cfg:       cfg,
		log:       log.Named("session"),
		bus:       opts.Bus,
		gateway:   gw,
		backend:   api,
		transport: tr,
		room: room.New(tr, room.Options{
			RequireAck: opts.RequireJoinAck,
			Logger:     log,
			Bus:        opts.Bus,
		}),
		stream: stream.New(tr, stream.Options{
			History: api,
			UserID:  identity.UserID,
			Logger:  log,
			Bus:     opts.Bus,
		}),
		typing: typing.New(tr, typing.Options{
			UserID:   identity.UserID,
			Debounce: cfg.Typing.Debounce.Duration,
			Expiry:   cfg.Typing.Expiry.Duration,
			Logger:   log,
			Bus:      opts.Bus,
		}),
		identity: identity,
	}, nil
}

// Connect opens the chat channel.
func (s *Session) Connect(ctx context.Context) error {
	return s.transport.Connect(ctx)
}

// Login signs in, adopts the returned identity and (re)connects the
// channel with the new cookies.
func (s *Session) Login(ctx context.Context, username, password string) (backend.Identity, error) {
	id, err := s.backend.Login(ctx, username, password)
	if err != nil {
		return backend.Identity{}, err
	}
	s.setIdentity(id)

	if st := s.transport.State(); st == status.Idle || st == status.Failed {
		if err := s.transport.Connect(ctx); err != nil {
			return id, fmt.Errorf("logged in but channel failed: %w", err)
		}
	}
	return id, nil
}

// Verify checks the session and refreshes the cached username.
func (s *Session) Verify(ctx context.Context) (backend.Verification, error) {
	v, err := s.backend.VerifyToken(ctx)
	if err != nil {
		return v, err
	}
	s.mu.Lock()
	if v.User != "" {
		s.identity.Username = v.User
	}
	id := s.identity
	s.mu.Unlock()
	s.stream.SetIdentity(id.UserID, id.Username)
	return v, nil
}

// Chats lists the user's chats and publishes them for the cache.
func (s *Session) Chats(ctx context.Context) ([]chat.Summary, error) {
	chats, err := s.backend.Chats(ctx)
	if err != nil {
		return nil, err
	}
	s.bus.Publish(bus.NewEvent(bus.KindChatsLoaded, "", chats))
	return chats, nil
}

// StartChat returns the chat id for a conversation with partnerID.
func (s *Session) StartChat(ctx context.Context, partnerID string) (string, error) {
	return s.backend.StartChat(ctx, partnerID)
}

// Opened is the state of a freshly opened chat.
type Opened struct {
	Info     chat.Info
	Messages []chat.Message
}

// OpenChat joins chatID and loads its info and history in parallel. A join
// that cannot be sent right now is retried on the next connection.
func (s *Session) OpenChat(ctx context.Context, chatID string) (Opened, error) {
	if chatID == "" {
		return Opened{}, fmt.Errorf("open chat: empty chat id")
	}
	if err := s.room.Join(chatID); err != nil {
		s.log.Warn("join deferred until reconnect", zap.String("chat_id", chatID), zap.Error(err))
	}

	var info chat.Info
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		info, err = s.backend.Info(gctx, chatID)
		return err
	})
	g.Go(func() error {
		return s.stream.Open(gctx, chatID)
	})
	if err := g.Wait(); err != nil {
		return Opened{}, fmt.Errorf("open chat %s: %w", chatID, err)
	}

	s.mu.Lock()
	s.partner = info.Partner
	s.mu.Unlock()
	return Opened{Info: info, Messages: s.stream.Messages()}, nil
}

// CloseChat leaves the active room.
func (s *Session) CloseChat() error {
	chatID := s.stream.Active()
	if chatID == "" {
		return nil
	}
	s.stream.Deactivate()
	s.mu.Lock()
	s.partner = chat.Partner{}
	s.mu.Unlock()
	return s.room.Leave(chatID)
}

// Send posts text to the active chat.
func (s *Session) Send(text string) (chat.Message, error) {
	chatID := s.stream.Active()
	if chatID == "" {
		return chat.Message{}, ErrNoActiveChat
	}
	return s.stream.Send(chatID, text)
}

// InputChanged feeds composer edits into the typing signal.
func (s *Session) InputChanged(text string) error {
	chatID := s.stream.Active()
	if chatID == "" {
		return ErrNoActiveChat
	}
	s.typing.InputChanged(chatID, text)
	return nil
}

// MarkRead marks chatID read on the backend.
func (s *Session) MarkRead(ctx context.Context, chatID string) error {
	return s.backend.MarkRead(ctx, chatID)
}

// History fetches a chat's history without touching the active stream
// unless chatID is the active chat.
func (s *Session) History(ctx context.Context, chatID string) ([]chat.Message, error) {
	return s.stream.LoadHistory(ctx, chatID)
}

// Messages returns the active chat's messages.
func (s *Session) Messages() []chat.Message {
	return s.stream.Messages()
}

// Typing returns who is typing in the active chat.
func (s *Session) Typing() []string {
	chatID := s.stream.Active()
	if chatID == "" {
		return nil
	}
	return s.typing.Names(chatID)
}

// Snapshot describes the session for status displays.
type Snapshot struct {
	State      status.State
	UserID     string
	Username   string
	ActiveChat string
	Partner    chat.Partner
	RoomState  room.State
	Refreshing bool
}

// Snapshot returns the current session state.
func (s *Session) Snapshot() Snapshot {
	chatID, roomState := s.room.Current()
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		State:      s.transport.State(),
		UserID:     s.identity.UserID,
		Username:   s.identity.Username,
		ActiveChat: chatID,
		Partner:    s.partner,
		RoomState:  roomState,
		Refreshing: s.gateway.State() == gateway.Refreshing,
	}
}

// Close leaves the room, stops timers and closes the channel.
func (s *Session) Close() error {
	if chatID := s.stream.Active(); chatID != "" {
		_ = s.room.Leave(chatID)
	}
	s.typing.Close()
	s.stream.Close()
	s.room.Close()
	return s.transport.Close()
}

func (s *Session) setIdentity(id backend.Identity) {
	s.mu.Lock()
	s.identity = id
	s.mu.Unlock()
	s.stream.SetIdentity(id.UserID, id.Username)
	s.typing.SetUserID(id.UserID)
}
