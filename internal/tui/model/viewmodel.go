package model

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/BusaSaiTeja/campus-lost-and-found/internal/api"
	"github.com/BusaSaiTeja/campus-lost-and-found/internal/bus"
	"github.com/BusaSaiTeja/campus-lost-and-found/internal/chat"
	"github.com/BusaSaiTeja/campus-lost-and-found/internal/status"
	"github.com/BusaSaiTeja/campus-lost-and-found/internal/tui/ui"
	"github.com/BusaSaiTeja/campus-lost-and-found/internal/typing"
)

// ErrNoActiveChat is returned when an action needs an open chat.
var ErrNoActiveChat = errors.New("open a chat first")

// Client is the part of the daemon API the view model drives.
type Client interface {
	Status(ctx context.Context) (api.StatusResponse, error)
	Login(ctx context.Context, username, password string) (api.LoginResponse, error)
	ListChats(ctx context.Context) (api.ChatsResponse, error)
	StartChat(ctx context.Context, partnerID string) (string, error)
	OpenChat(ctx context.Context, chatID string) (api.OpenChatResponse, error)
	CloseChat(ctx context.Context) error
	ListMessages(ctx context.Context, req api.ListMessagesRequest) (api.MessagesResponse, error)
	SearchMessages(ctx context.Context, req api.SearchRequest) (api.SearchResponse, error)
	SendText(ctx context.Context, text string) (api.SendResponse, error)
	InputChanged(ctx context.Context, text string) error
	MarkRead(ctx context.Context, chatID string) error
	WatchEvents(ctx context.Context, prefix string) (*api.EventStream, error)
}

// Events is a source of daemon events.
type Events interface {
	Recv() (api.Event, error)
}

// Reload flags the state an event made stale.
type Reload uint8

const (
	ReloadStatus Reload = 1 << iota
	ReloadChats
	ReloadMessages
)

const (
	messageLimit   = 200
	searchLimit    = 50
	watchRetryWait = 2 * time.Second
)

// ViewModel caches daemon state for the views and signals when it changes.
type ViewModel struct {
	mu sync.RWMutex

	client      Client
	status      api.StatusResponse
	chats       []chat.Summary
	chatsCached bool
	activeChat  string
	partner     chat.Partner
	messages    []chat.Message
	typing      map[string]string
	needsLogin  bool

	Flash *ui.FlashModel

	refreshCh chan struct{}
}

// NewViewModel creates a view model backed by the daemon client.
func NewViewModel(c Client) *ViewModel {
	return &ViewModel{
		client:    c,
		typing:    make(map[string]string),
		Flash:     ui.NewFlashModel(),
		refreshCh: make(chan struct{}, 1),
	}
}

// RefreshCh returns the channel that signals UI refresh.
func (vm *ViewModel) RefreshCh() <-chan struct{} {
	return vm.refreshCh
}

func (vm *ViewModel) signalRefresh() {
	select {
	case vm.refreshCh <- struct{}{}:
	default:
	}
}

// LoadStatus fetches the daemon status.
func (vm *ViewModel) LoadStatus(ctx context.Context) error {
	resp, err := vm.client.Status(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.status = resp
	if resp.UserID == "" {
		vm.needsLogin = true
	}
	if resp.ActiveChat != "" && resp.ActiveChat == vm.activeChat {
		vm.typing = make(map[string]string, len(resp.Typing))
		for _, name := range resp.Typing {
			vm.typing[name] = name
		}
	}
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// LoadChats fetches the chat list.
func (vm *ViewModel) LoadChats(ctx context.Context) error {
	resp, err := vm.client.ListChats(ctx)
	if err != nil {
		vm.noteAuth(err)
		return err
	}
	vm.mu.Lock()
	vm.chats = resp.Chats
	vm.chatsCached = resp.Cached
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// Login signs in through the daemon.
func (vm *ViewModel) Login(ctx context.Context, username, password string) error {
	resp, err := vm.client.Login(ctx, username, password)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.needsLogin = false
	vm.status.UserID = resp.UserID
	vm.status.Username = resp.Username
	vm.mu.Unlock()
	vm.Flash.Release(ui.TopicSession)
	vm.Flash.Info("Signed in as " + resp.Username)
	vm.signalRefresh()
	return nil
}

// OpenChat makes chatID the active chat and loads its history.
func (vm *ViewModel) OpenChat(ctx context.Context, chatID string) error {
	resp, err := vm.client.OpenChat(ctx, chatID)
	if err != nil {
		vm.noteAuth(err)
		return err
	}
	vm.mu.Lock()
	vm.activeChat = resp.ChatID
	vm.partner = resp.Partner
	vm.messages = resp.Messages
	vm.typing = make(map[string]string)
	for i := range vm.chats {
		if vm.chats[i].ChatID == resp.ChatID {
			vm.chats[i].UnreadCount = 0
		}
	}
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// StartChat finds or creates the chat with partnerID and opens it.
func (vm *ViewModel) StartChat(ctx context.Context, partnerID string) (string, error) {
	chatID, err := vm.client.StartChat(ctx, partnerID)
	if err != nil {
		vm.noteAuth(err)
		return "", err
	}
	return chatID, vm.OpenChat(ctx, chatID)
}

// CloseChat leaves the active chat.
func (vm *ViewModel) CloseChat(ctx context.Context) error {
	vm.mu.Lock()
	active := vm.activeChat
	vm.activeChat = ""
	vm.partner = chat.Partner{}
	vm.messages = nil
	vm.typing = make(map[string]string)
	vm.mu.Unlock()
	vm.signalRefresh()
	if active == "" {
		return nil
	}
	return vm.client.CloseChat(ctx)
}

// LoadMessages refreshes the active chat's messages.
func (vm *ViewModel) LoadMessages(ctx context.Context) error {
	active := vm.ActiveChat()
	if active == "" {
		return nil
	}
	resp, err := vm.client.ListMessages(ctx, api.ListMessagesRequest{ChatID: active, Limit: messageLimit})
	if err != nil {
		return err
	}
	vm.mu.Lock()
	if vm.activeChat == resp.ChatID {
		vm.messages = resp.Messages
	}
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// SendText sends text to the active chat. A message the daemon could not
// emit comes back failed and is flashed, not returned as an error.
func (vm *ViewModel) SendText(ctx context.Context, text string) error {
	if vm.ActiveChat() == "" {
		return ErrNoActiveChat
	}
	resp, err := vm.client.SendText(ctx, text)
	if err != nil {
		vm.noteAuth(err)
		return err
	}
	vm.mu.Lock()
	vm.messages = mergeMessage(vm.messages, resp.Message)
	vm.mu.Unlock()
	if resp.Message.Status == chat.StatusFailed {
		vm.Flash.Warn("Message not sent: connection is down")
	}
	vm.signalRefresh()
	return nil
}

// InputChanged reports composer activity for the typing indicator.
func (vm *ViewModel) InputChanged(ctx context.Context, text string) error {
	if vm.ActiveChat() == "" {
		return nil
	}
	return vm.client.InputChanged(ctx, text)
}

// MarkRead clears the unread count of chatID.
func (vm *ViewModel) MarkRead(ctx context.Context, chatID string) error {
	if err := vm.client.MarkRead(ctx, chatID); err != nil {
		return err
	}
	vm.mu.Lock()
	for i := range vm.chats {
		if vm.chats[i].ChatID == chatID {
			vm.chats[i].UnreadCount = 0
		}
	}
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// SearchMessages searches the daemon's message cache.
func (vm *ViewModel) SearchMessages(ctx context.Context, query string) ([]api.SearchHit, error) {
	resp, err := vm.client.SearchMessages(ctx, api.SearchRequest{Query: query, Limit: searchLimit})
	if err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// Run keeps an event watch open until ctx is done, reopening it after
// failures and reloading status each time it reconnects.
func (vm *ViewModel) Run(ctx context.Context) {
	for {
		stream, err := vm.client.WatchEvents(ctx, "")
		if err == nil {
			vm.report(ctx, "status", vm.LoadStatus(ctx))
			err = vm.Watch(ctx, stream)
		}
		if ctx.Err() != nil {
			return
		}
		if err != nil && !api.IsStreamEnd(err) {
			vm.Flash.Warn("Lost daemon events, retrying")
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(watchRetryWait):
		}
	}
}

// Watch applies events until the source fails.
func (vm *ViewModel) Watch(ctx context.Context, events Events) error {
	for {
		evt, err := events.Recv()
		if err != nil {
			return err
		}
		vm.reload(ctx, vm.Apply(evt))
	}
}

func (vm *ViewModel) reload(ctx context.Context, r Reload) {
	if r&ReloadStatus != 0 {
		vm.report(ctx, "status", vm.LoadStatus(ctx))
	}
	if r&ReloadChats != 0 {
		vm.report(ctx, "chats", vm.LoadChats(ctx))
	}
	if r&ReloadMessages != 0 {
		vm.report(ctx, "messages", vm.LoadMessages(ctx))
	}
}

// Refetch reloads what r names, flashing failures.
func (vm *ViewModel) Refetch(ctx context.Context, r Reload) {
	vm.reload(ctx, r)
}

// Fail flashes a failed user action. An expired session only raises the
// login page.
func (vm *ViewModel) Fail(action string, err error) {
	if err == nil {
		return
	}
	if api.IsUnauthenticated(err) {
		vm.noteAuth(err)
		return
	}
	vm.Flash.Err(errors.New(action + ": " + api.ErrorMessage(err)))
}

// noteConnection keeps a message on the flash bar while the daemon's chat
// channel is down, and clears it once the channel is back.
func (vm *ViewModel) noteConnection(state status.State) {
	switch state {
	case status.Reconnecting:
		vm.Flash.Hold(ui.TopicConnection, ui.FlashWarn, "Reconnecting to the chat server…")
	case status.Failed:
		vm.Flash.Hold(ui.TopicConnection, ui.FlashErr, "Chat server unreachable, messages will not send")
	case status.Closed:
		vm.Flash.Hold(ui.TopicConnection, ui.FlashWarn, "Chat channel closed")
	case status.Connected:
		if vm.Flash.Release(ui.TopicConnection) {
			vm.Flash.Info("Reconnected")
		}
	}
}

// report flashes a failed background load. Cancellation is silent, and an
// expired session is left to the login page.
func (vm *ViewModel) report(ctx context.Context, what string, err error) {
	if err == nil || ctx.Err() != nil || api.IsUnauthenticated(err) {
		return
	}
	vm.Flash.Warn("Could not load " + what + ": " + api.ErrorMessage(err))
}

// Apply folds one daemon event into the cached state and returns what
// must be fetched again.
func (vm *ViewModel) Apply(evt api.Event) Reload {
	defer vm.signalRefresh()

	switch evt.Kind {
	case bus.KindStatusChanged:
		var change status.StatusChange
		if err := evt.DecodePayload(&change); err != nil {
			return ReloadStatus
		}
		vm.mu.Lock()
		vm.status.State = string(change.To)
		vm.mu.Unlock()
		vm.noteConnection(change.To)
		return 0

	case bus.KindConnected, bus.KindDisconnected, bus.KindRoomJoined, bus.KindRoomLeft:
		return ReloadStatus

	case bus.KindTransportError:
		if msg, ok := evt.Payload.(string); ok && msg != "" {
			vm.Flash.Warn("Connection: " + msg)
		}
		return 0

	case bus.KindMessageAppended:
		var m chat.Message
		if err := evt.DecodePayload(&m); err != nil {
			return ReloadChats
		}
		if m.ChatID == "" {
			m.ChatID = evt.ChatID
		}
		vm.mu.Lock()
		known := touchChat(vm.chats, m)
		active := vm.activeChat == m.ChatID
		vm.mu.Unlock()
		var r Reload
		if active {
			r |= ReloadMessages
		}
		if !known {
			r |= ReloadChats
		}
		return r

	case bus.KindHistoryLoaded:
		if evt.ChatID == vm.ActiveChat() {
			return ReloadMessages
		}
		return 0

	case bus.KindUnread:
		vm.mu.Lock()
		known := false
		for i := range vm.chats {
			if vm.chats[i].ChatID == evt.ChatID {
				vm.chats[i].UnreadCount++
				known = true
			}
		}
		vm.mu.Unlock()
		if !known {
			return ReloadChats
		}
		return 0

	case bus.KindResyncFailed:
		vm.Flash.Warn("Could not catch up on missed messages")
		return 0

	case bus.KindTypingChanged:
		var change typing.Change
		if err := evt.DecodePayload(&change); err != nil {
			return 0
		}
		name := change.Username
		if name == "" {
			name = change.UserID
		}
		vm.mu.Lock()
		if change.ChatID == vm.activeChat {
			if change.IsTyping {
				vm.typing[change.UserID] = name
			} else {
				delete(vm.typing, change.UserID)
			}
		}
		vm.mu.Unlock()
		return 0

	case bus.KindChatsLoaded:
		var chats []chat.Summary
		if err := evt.DecodePayload(&chats); err != nil {
			return ReloadChats
		}
		vm.mu.Lock()
		vm.chats = chats
		vm.chatsCached = false
		vm.mu.Unlock()
		return 0

	case bus.KindRefreshFailed:
		vm.mu.Lock()
		vm.needsLogin = true
		vm.mu.Unlock()
		vm.Flash.Hold(ui.TopicSession, ui.FlashErr, "Session expired, log in again")
		return 0
	}
	return 0
}

// Status returns the last known daemon status.
func (vm *ViewModel) Status() api.StatusResponse {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.status
}

// Chats returns a copy of the chat list.
func (vm *ViewModel) Chats() []chat.Summary {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return slices.Clone(vm.chats)
}

// ChatsCached reports whether the chat list came from the daemon's cache.
func (vm *ViewModel) ChatsCached() bool {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.chatsCached
}

// Messages returns a copy of the active chat's messages.
func (vm *ViewModel) Messages() []chat.Message {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return slices.Clone(vm.messages)
}

// ActiveChat returns the open chat id, or "".
func (vm *ViewModel) ActiveChat() string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.activeChat
}

// Partner returns the other participant of the open chat.
func (vm *ViewModel) Partner() chat.Partner {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.partner
}

// NeedsLogin reports whether the daemon has no usable session.
func (vm *ViewModel) NeedsLogin() bool {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.needsLogin
}

// Typing returns the sorted names of users typing in the open chat.
func (vm *ViewModel) Typing() []string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	names := make([]string, 0, len(vm.typing))
	for _, n := range vm.typing {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// TypingLine renders the typing indicator for names.
func TypingLine(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0] + " is typing…"
	default:
		return strings.Join(names, ", ") + " are typing…"
	}
}

func (vm *ViewModel) noteAuth(err error) {
	if !api.IsUnauthenticated(err) {
		return
	}
	vm.mu.Lock()
	vm.needsLogin = true
	vm.mu.Unlock()
	vm.signalRefresh()
}

// touchChat moves m into its chat's preview. It reports whether the chat
// is in the list.
func touchChat(chats []chat.Summary, m chat.Message) bool {
	for i := range chats {
		if chats[i].ChatID != m.ChatID {
			continue
		}
		last := chats[i].LastMessage
		if last == nil || !m.Timestamp.Before(last.Timestamp) {
			chats[i].LastMessage = &chat.LastMessage{Text: m.Text, SenderID: m.SenderID, Timestamp: m.Timestamp}
		}
		return true
	}
	return false
}

// mergeMessage replaces the message with m's key, or appends m.
func mergeMessage(msgs []chat.Message, m chat.Message) []chat.Message {
	key := m.Key()
	for i := range msgs {
		if msgs[i].Key() == key {
			out := slices.Clone(msgs)
			out[i] = m
			return out
		}
	}
	return append(slices.Clone(msgs), m)
}
