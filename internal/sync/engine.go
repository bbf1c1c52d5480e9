// Package sync mirrors what the chat stack sees into the local cache.
package sync

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/BusaSaiTeja/campus-lost-and-found/internal/bus"
	"github.com/BusaSaiTeja/campus-lost-and-found/internal/chat"
	"github.com/BusaSaiTeja/campus-lost-and-found/internal/store"
)

// CacheUpdate is the payload of cache.updated events.
type CacheUpdate struct {
	Source   string
	Messages int
}

// Engine ingests stream, chat list and room events from the bus into the
// store. Only server-confirmed messages are cached; pending and failed
// sends live in the stream alone.
type Engine struct {
	db         *store.DB
	bus        *bus.Bus
	logger     *zap.Logger
	reconciler *Reconciler
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewEngine creates a new sync engine.
func NewEngine(db *store.DB, b *bus.Bus, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		db:         db,
		bus:        b,
		logger:     logger.Named("sync"),
		reconciler: NewReconciler(db, logger),
	}
}

// Reconciler returns the engine's checkpoint store.
func (e *Engine) Reconciler() *Reconciler { return e.reconciler }

// Start subscribes to the bus and ingests events until Stop or ctx ends.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})
	subs := []string{"stream.", "chats.", bus.KindRoomJoined}
	in := make([]<-chan bus.Event, 0, len(subs))
	var unsubs []func()
	for _, ns := range subs {
		ch, unsub := e.bus.Subscribe(ns, 256)
		in = append(in, ch)
		unsubs = append(unsubs, unsub)
	}

	go func() {
		defer close(e.done)
		defer func() {
			for _, unsub := range unsubs {
				unsub()
			}
		}()
		for {
			select {
			case evt := <-in[0]:
				e.handleEvent(evt)
			case evt := <-in[1]:
				e.handleEvent(evt)
			case evt := <-in[2]:
				e.handleEvent(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the engine and waits for the ingest loop to exit.
func (e *Engine) Stop() {
	if e.cancel == nil {
		return
	}
	e.cancel()
	<-e.done
}

func (e *Engine) handleEvent(evt bus.Event) {
	var err error
	switch evt.Kind {
	case bus.KindHistoryLoaded:
		msgs, ok := evt.Payload.([]chat.Message)
		if !ok {
			return
		}
		err = e.IngestSnapshot(evt.ChatID, msgs)
	case bus.KindMessageAppended:
		m, ok := evt.Payload.(chat.Message)
		if !ok {
			return
		}
		err = e.IngestMessage(m)
	case bus.KindUnread:
		m, ok := evt.Payload.(chat.Message)
		if !ok {
			return
		}
		err = e.IngestUnread(m)
	case bus.KindChatsLoaded:
		chats, ok := evt.Payload.([]chat.Summary)
		if !ok {
			return
		}
		err = e.IngestChats(chats)
	case bus.KindRoomJoined:
		err = e.db.ClearUnread(evt.ChatID)
	default:
		return
	}
	if err != nil {
		e.logger.Error("cache ingest failed", zap.String("kind", evt.Kind), zap.String("chat_id", evt.ChatID), zap.Error(err))
	}
}

// IngestSnapshot replaces a chat's cached messages with a freshly merged
// history and records the resync checkpoint.
func (e *Engine) IngestSnapshot(chatID string, msgs []chat.Message) error {
	confirmed := make([]chat.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Status == chat.StatusConfirmed || m.Status == "" {
			confirmed = append(confirmed, m)
		}
	}
	if err := e.db.ReplaceMessages(chatID, confirmed); err != nil {
		return fmt.Errorf("replace messages: %w", err)
	}
	if n := len(confirmed); n > 0 {
		last := confirmed[n-1]
		last.ChatID = chatID
		if err := e.db.TouchChat(last); err != nil {
			return fmt.Errorf("touch chat: %w", err)
		}
	}
	if err := e.reconciler.MarkResynced(chatID); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	e.publish(chatID, "history", len(confirmed))
	return nil
}

// IngestMessage upserts a single confirmed message (idempotent).
func (e *Engine) IngestMessage(m chat.Message) error {
	if m.Status != chat.StatusConfirmed && m.Status != "" {
		return nil
	}
	if m.ChatID == "" {
		return fmt.Errorf("message %s has no chat id", m.Key())
	}
	if err := e.db.UpsertMessage(m); err != nil {
		return fmt.Errorf("upsert message: %w", err)
	}
	if err := e.db.TouchChat(m); err != nil {
		return fmt.Errorf("touch chat: %w", err)
	}
	e.publish(m.ChatID, "live", 1)
	return nil
}

// IngestUnread stores a message that arrived for a room other than the
// open one and bumps that chat's unread count.
func (e *Engine) IngestUnread(m chat.Message) error {
	if err := e.IngestMessage(m); err != nil {
		return err
	}
	if err := e.db.BumpUnread(m.ChatID); err != nil {
		return fmt.Errorf("bump unread: %w", err)
	}
	return nil
}

// IngestChats stores the backend's chat list.
func (e *Engine) IngestChats(chats []chat.Summary) error {
	if err := e.db.UpsertChats(chats); err != nil {
		return fmt.Errorf("upsert chats: %w", err)
	}
	e.publish("", "chats", 0)
	return nil
}

func (e *Engine) publish(chatID, source string, n int) {
	e.bus.Publish(bus.NewEvent(bus.KindCacheUpdated, chatID, CacheUpdate{Source: source, Messages: n}))
}
