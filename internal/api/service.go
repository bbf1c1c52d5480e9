// Package api exposes the daemon's chat session over gRPC on the
// profile's Unix socket. Messages travel as structpb.Struct so the
// service needs no generated code.
package api

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/BusaSaiTeja/campus-lost-and-found/internal/backend"
	"github.com/BusaSaiTeja/campus-lost-and-found/internal/bus"
	"github.com/BusaSaiTeja/campus-lost-and-found/internal/chat"
	"github.com/BusaSaiTeja/campus-lost-and-found/internal/session"
	"github.com/BusaSaiTeja/campus-lost-and-found/internal/store"
)

// Chat is the session surface the service drives. *session.Session
// implements it.
type Chat interface {
	Login(ctx context.Context, username, password string) (backend.Identity, error)
	Verify(ctx context.Context) (backend.Verification, error)
	Chats(ctx context.Context) ([]chat.Summary, error)
	StartChat(ctx context.Context, partnerID string) (string, error)
	OpenChat(ctx context.Context, chatID string) (session.Opened, error)
	CloseChat() error
	Send(text string) (chat.Message, error)
	InputChanged(text string) error
	MarkRead(ctx context.Context, chatID string) error
	History(ctx context.Context, chatID string) ([]chat.Message, error)
	Messages() []chat.Message
	Typing() []string
	Snapshot() session.Snapshot
}

// Options configures a Service.
type Options struct {
	Profile string
	Chat    Chat
	Store   *store.DB
	Bus     *bus.Bus
	Logger  *zap.Logger
}

// Service implements lostfound.chat.v1.ChatService.
type Service struct {
	profile   string
	chat      Chat
	db        *store.DB
	bus       *bus.Bus
	logger    *zap.Logger
	startedAt time.Time
}

// NewService creates the chat service. Store may be nil, in which case
// cache-backed calls go to the backend.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		profile:   opts.Profile,
		chat:      opts.Chat,
		db:        opts.Store,
		bus:       opts.Bus,
		logger:    logger.Named("api"),
		startedAt: time.Now(),
	}
}
