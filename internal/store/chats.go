package store

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/capitalize-ai/chatsync/internal/llm"
	"github.com/capitalize-ai/chatsync/internal/model"
	"github.com/capitalize-ai/chatsync/internal/persist"
	"github.com/capitalize-ai/chatsync/pkg/logger"
	"github.com/capitalize-ai/chatsync/pkg/metrics"
)

// TitlePrompt prefixes the message contents when a title is generated.
const TitlePrompt = "ONLY ON RUSSIAN LANGUAGE, WITHOUT EMOJI AND MARKDOWN, Generate a short title for the following chat: "

// ChatState is a point-in-time view of the chat store.
type ChatState struct {
	Chats    []model.Chat
	Selected string
	Loading  bool
	Err      error
}

// ChatDeps wires a ChatStore.
type ChatDeps struct {
	Gateway    Gateway
	Identity   Identity
	Rooms      Rooms
	Settings   *SettingsStore
	Messages   *MessageStore
	Titler     llm.Client
	TitleModel string
	Session    Session
	Logger     *logger.Logger
}

// ChatStore owns the chat list and the selection, and keeps the settings and
// message stores on the selected chat.
type ChatStore struct {
	gw         Gateway
	identity   Identity
	rooms      Rooms
	settings   *SettingsStore
	messages   *MessageStore
	titler     llm.Client
	titleModel string
	session    Session
	logger     *logger.Logger

	mu       sync.Mutex
	chats    []model.Chat
	selected string
	loading  int
	err      error
	ticket   uint64

	// pending holds chats whose delete is in flight; the channel closes
	// when the backend has answered.
	pending map[string]chan struct{}

	// applyMu serializes the switch of room, settings and log.
	applyMu sync.Mutex
}

// NewChatStore creates a chat store and binds the message store to it.
func NewChatStore(d ChatDeps) *ChatStore {
	if d.Logger == nil {
		d.Logger = logger.Nop()
	}
	if d.Rooms == nil {
		d.Rooms = nopRooms{}
	}
	s := &ChatStore{
		gw:         d.Gateway,
		identity:   d.Identity,
		rooms:      d.Rooms,
		settings:   d.Settings,
		messages:   d.Messages,
		titler:     d.Titler,
		titleModel: d.TitleModel,
		session:    d.Session,
		logger:     d.Logger.Component("chats"),
		pending:    map[string]chan struct{}{},
	}
	d.Messages.bindChats(s.awaitLive)
	return s
}

// Initialize loads the current user and the chat list, then selects
// preferredID when it exists, else the first chat.
func (s *ChatStore) Initialize(ctx context.Context, preferredID string) error {
	if _, err := s.identity.FetchUser(ctx); err != nil {
		return s.fail("initialize", err)
	}
	if err := s.Refresh(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	target := ""
	if lo.ContainsBy(s.chats, func(c model.Chat) bool { return c.ID == preferredID }) {
		target = preferredID
	} else if len(s.chats) > 0 {
		target = s.chats[0].ID
	}
	s.mu.Unlock()

	if target == "" {
		s.clearSelection()
		return nil
	}
	return s.Select(ctx, target)
}

// Refresh re-lists the chats.
func (s *ChatStore) Refresh(ctx context.Context) error {
	s.begin()
	defer s.end()

	chats, err := s.gw.ListChats(ctx)
	if err != nil {
		return s.fail("refresh", err)
	}
	s.mu.Lock()
	s.chats = chats
	s.mu.Unlock()
	return nil
}

// Select makes id the selected chat. Only the most recent selection is
// applied; an earlier one that resolves late is dropped.
func (s *ChatStore) Select(ctx context.Context, id string) error {
	t := s.nextTicket()
	s.begin()
	defer s.end()

	chat, err := s.gw.GetChat(ctx, id)
	if err != nil {
		return s.failIfCurrent(t, "select", err)
	}
	msgs, err := s.gw.ListMessages(ctx, id)
	if err != nil {
		return s.failIfCurrent(t, "select", err)
	}
	s.apply(t, chat, msgs)
	return nil
}

// Add starts a chat for the current user, puts it first and selects it.
func (s *ChatStore) Add(ctx context.Context) (*model.Chat, error) {
	user := s.identity.User()
	if user == nil {
		return nil, s.fail("add", model.NewError(model.KindAuth, "chats.add", "no user is logged in"))
	}

	t := s.nextTicket()
	s.begin()
	defer s.end()

	chat, err := s.gw.StartChat(ctx, user.ID)
	if err != nil {
		return nil, s.fail("add", err)
	}

	s.mu.Lock()
	s.chats = append([]model.Chat{*chat}, s.chats...)
	s.mu.Unlock()

	s.apply(t, chat, nil)
	return chat, nil
}

// Delete removes a chat. It disappears from the list before the backend is
// asked and comes back at its old position if the backend refuses. A chat
// the backend no longer knows counts as deleted. When the selected chat goes
// the first remaining chat is selected, or nothing.
func (s *ChatStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	removed, idx, ok := lo.FindIndexOf(s.chats, func(c model.Chat) bool { return c.ID == id })
	if !ok {
		s.mu.Unlock()
		return nil
	}
	s.chats = append(s.chats[:idx:idx], s.chats[idx+1:]...)
	done := make(chan struct{})
	s.pending[id] = done
	s.loading++
	s.err = nil
	s.mu.Unlock()

	err := s.gw.DeleteChat(ctx, id)

	s.mu.Lock()
	s.loading--
	delete(s.pending, id)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		at := min(idx, len(s.chats))
		s.chats = append(s.chats[:at], append([]model.Chat{removed}, s.chats[at:]...)...)
		close(done)
		s.mu.Unlock()
		return s.fail("delete", err)
	}
	wasSelected := s.selected == id
	next := ""
	if len(s.chats) > 0 {
		next = s.chats[0].ID
	}
	close(done)
	s.mu.Unlock()

	if err := s.rooms.LeaveChat(id); err != nil {
		s.logger.Warn("failed to leave room", zap.String("chat_id", id), zap.Error(err))
	}
	s.logger.Info("chat deleted", zap.String("chat_id", id))

	if !wasSelected {
		return nil
	}
	if next == "" {
		s.clearSelection()
		return nil
	}
	return s.Select(ctx, next)
}

// Rename sets the title of a chat. A nil or blank title is generated by the
// title model from the chat's messages.
func (s *ChatStore) Rename(ctx context.Context, id string, title *string) error {
	s.begin()
	defer s.end()

	if title == nil || strings.TrimSpace(*title) == "" {
		generated, err := s.generateTitle(ctx, id)
		if err != nil {
			return s.fail("rename", err)
		}
		title = &generated
	}

	chat, err := s.gw.UpdateChat(ctx, id, model.ChatUpdate{Title: title})
	if err != nil {
		return s.fail("rename", err)
	}

	s.mu.Lock()
	if _, idx, ok := lo.FindIndexOf(s.chats, func(c model.Chat) bool { return c.ID == id }); ok {
		t := *title
		if chat.Title != nil {
			t = *chat.Title
		}
		s.chats[idx].Title = &t
	}
	s.mu.Unlock()
	return nil
}

func (s *ChatStore) generateTitle(ctx context.Context, id string) (string, error) {
	var contents []string
	if s.messages.ChatID() == id {
		contents = s.messages.Contents()
	} else {
		msgs, err := s.gw.ListMessages(ctx, id)
		if err != nil {
			return "", err
		}
		contents = lo.Map(msgs, func(m model.Message, _ int) string { return m.Content })
	}

	resp, err := s.titler.Complete(ctx, &llm.CompletionRequest{
		Model: s.titleModel,
		Messages: []model.ChatMessage{
			{Role: model.RoleUser, Content: TitlePrompt + strings.Join(contents, " ")},
		},
	})
	if err != nil {
		if model.KindOf(err) == "" {
			err = model.WrapError(model.KindGeneration, "chats.title", err)
		}
		return "", err
	}
	title := strings.TrimSpace(resp.Content)
	if title == "" {
		return "", model.NewError(model.KindGeneration, "chats.title", "model returned an empty title")
	}
	return title, nil
}

// Resync re-fetches the selected chat's messages and replaces the log.
func (s *ChatStore) Resync(ctx context.Context) error {
	s.mu.Lock()
	id, t := s.selected, s.ticket
	s.mu.Unlock()
	if id == "" {
		return nil
	}

	msgs, err := s.gw.ListMessages(ctx, id)
	if err != nil {
		return s.failIfCurrent(t, "resync", err)
	}

	s.applyMu.Lock()
	defer s.applyMu.Unlock()
	if !s.current(t) {
		metrics.RecordStale("resync", "discard")
		return nil
	}
	s.messages.SetMessages(id, msgs)
	return nil
}

// Reset forgets the chat list and the selection, leaving the joined room.
// Selections still in flight are dropped.
func (s *ChatStore) Reset() {
	s.nextTicket()

	s.applyMu.Lock()
	s.mu.Lock()
	prev := s.selected
	s.chats = nil
	s.err = nil
	s.mu.Unlock()
	if prev != "" {
		if err := s.rooms.LeaveChat(prev); err != nil {
			s.logger.Warn("failed to leave room", zap.String("chat_id", prev), zap.Error(err))
		}
	}
	s.applyMu.Unlock()

	s.clearSelection()
}

// Has reports whether id is in the chat list.
func (s *ChatStore) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo.ContainsBy(s.chats, func(c model.Chat) bool { return c.ID == id })
}

// awaitLive reports whether id is still a chat, waiting for an in-flight
// delete of it to settle first.
func (s *ChatStore) awaitLive(ctx context.Context, id string) bool {
	s.mu.Lock()
	done, ok := s.pending[id]
	s.mu.Unlock()
	if ok {
		select {
		case <-done:
		case <-ctx.Done():
			return false
		}
	}
	return s.Has(id)
}

// Selected returns the selected chat id, or "" when none is selected.
func (s *ChatStore) Selected() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

// Snapshot returns the current state.
func (s *ChatStore) Snapshot() ChatState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ChatState{
		Chats:    append([]model.Chat(nil), s.chats...),
		Selected: s.selected,
		Loading:  s.loading > 0,
		Err:      s.err,
	}
}

// ClearError forgets the last error.
func (s *ChatStore) ClearError() {
	s.mu.Lock()
	s.err = nil
	s.mu.Unlock()
}

// apply switches the selection to chat unless a newer selection has started
// or the chat was deleted meanwhile.
func (s *ChatStore) apply(t uint64, chat *model.Chat, msgs []model.Message) {
	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	s.mu.Lock()
	if t != s.ticket {
		s.mu.Unlock()
		metrics.RecordStale("select", "discard")
		s.logger.Debug("stale selection dropped", zap.String("chat_id", chat.ID))
		return
	}
	_, idx, ok := lo.FindIndexOf(s.chats, func(c model.Chat) bool { return c.ID == chat.ID })
	if !ok {
		s.mu.Unlock()
		metrics.RecordStale("select", "deleted")
		return
	}
	s.chats[idx] = *chat
	prev := s.selected
	s.mu.Unlock()

	if prev != "" && prev != chat.ID {
		if err := s.rooms.LeaveChat(prev); err != nil {
			s.logger.Warn("failed to leave room", zap.String("chat_id", prev), zap.Error(err))
		}
	}
	s.settings.Replace(chat.ID, chat.Settings)
	s.messages.SetMessages(chat.ID, msgs)
	if err := s.rooms.JoinChat(chat.ID); err != nil {
		s.logger.Warn("failed to join room", zap.String("chat_id", chat.ID), zap.Error(err))
	}

	s.mu.Lock()
	s.selected = chat.ID
	s.mu.Unlock()

	saveSession(s.session, s.logger, func(p *persist.Session) { p.CurrentChat = chat.ID })
	s.logger.Debug("chat selected", zap.String("chat_id", chat.ID))
}

func (s *ChatStore) clearSelection() {
	s.nextTicket()

	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	s.settings.Reset()
	s.messages.Clear()
	s.mu.Lock()
	s.selected = ""
	s.mu.Unlock()

	saveSession(s.session, s.logger, func(p *persist.Session) { p.CurrentChat = "" })
}

func (s *ChatStore) nextTicket() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticket++
	return s.ticket
}

func (s *ChatStore) current(t uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticket == t
}

func (s *ChatStore) begin() {
	s.mu.Lock()
	s.loading++
	s.err = nil
	s.mu.Unlock()
}

func (s *ChatStore) end() {
	s.mu.Lock()
	s.loading--
	s.mu.Unlock()
}

// failIfCurrent records err unless a newer selection superseded ticket t.
func (s *ChatStore) failIfCurrent(t uint64, op string, err error) error {
	if !s.current(t) {
		metrics.RecordStale(op, "error")
		return err
	}
	return s.fail(op, err)
}

func (s *ChatStore) fail(op string, err error) error {
	record(s.logger, "chats", op, err)
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	return err
}
