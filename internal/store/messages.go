package store

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/capitalize-ai/chatsync/internal/llm"
	"github.com/capitalize-ai/chatsync/internal/model"
	"github.com/capitalize-ai/chatsync/pkg/logger"
	"github.com/capitalize-ai/chatsync/pkg/metrics"
)

// SendState is where a sent message ended up.
type SendState string

const (
	StateComposed   SendState = "composed"
	StateSent       SendState = "sent"
	StateGenerating SendState = "generating"
	StateCompleted  SendState = "completed"
	StateFailed     SendState = "failed"
)

// SendResult describes the outcome of SendMessage.
type SendResult struct {
	State  SendState
	ChatID string
	User   *model.Message
	Reply  *model.Message
	// Discarded is set when the chat was deleted before the reply arrived.
	Discarded bool
	// Rerouted is set when the reply was persisted to a chat that is no
	// longer selected.
	Rerouted bool
}

// GenerationConfig supplies the model and sampling options for a completion.
type GenerationConfig interface {
	GenerationOptions() map[string]any
	ModelName(fallback string) string
	SystemPrompt() (string, bool)
}

// MessageState is a point-in-time view of the message store.
type MessageState struct {
	ChatID     string
	Messages   []model.Message
	Generating bool
	Err        error
}

// MessageStore is the ordered message log of the selected chat.
type MessageStore struct {
	gw           MessageAPI
	llm          llm.Client
	gen          GenerationConfig
	defaultModel string
	logger       *logger.Logger

	mu         sync.Mutex
	chatID     string
	messages   []model.Message
	generating int
	err        error
	live       func(ctx context.Context, chatID string) bool
}

// NewMessageStore creates an empty log.
func NewMessageStore(gw MessageAPI, client llm.Client, gen GenerationConfig, defaultModel string, log *logger.Logger) *MessageStore {
	if log == nil {
		log = logger.Nop()
	}
	return &MessageStore{
		gw:           gw,
		llm:          client,
		gen:          gen,
		defaultModel: defaultModel,
		logger:       log.Component("messages"),
	}
}

// bindChats sets the check for whether a chat still exists. The check may
// block while a delete of the chat is in flight.
func (s *MessageStore) bindChats(live func(ctx context.Context, chatID string) bool) {
	s.mu.Lock()
	s.live = live
	s.mu.Unlock()
}

// SendMessage persists content as a user message in the log's chat, asks the
// model for a reply and persists the reply. Blank content, or no chat, is a
// no-op. A failed generation leaves the user message in place.
func (s *MessageStore) SendMessage(ctx context.Context, content string) (*SendResult, error) {
	s.mu.Lock()
	chatID := s.chatID
	if chatID == "" || strings.TrimSpace(content) == "" {
		s.mu.Unlock()
		return &SendResult{State: StateComposed, ChatID: chatID}, nil
	}
	history := lo.Map(s.messages, func(m model.Message, _ int) model.ChatMessage {
		return model.ChatMessage{Role: m.Role.LLMRole(), Content: m.Content}
	})
	s.generating++
	s.err = nil
	s.mu.Unlock()
	defer s.doneGenerating()

	// The context is fixed before the user message exists anywhere, so a
	// realtime echo of it cannot put it in twice.
	req := s.completionRequest(history, content)
	log := s.logger.WithChat(chatID)
	res := &SendResult{State: StateComposed, ChatID: chatID}

	userMsg, err := s.gw.SendMessage(ctx, chatID, model.RoleUser, content)
	if err != nil {
		return res, s.fail("send", err)
	}
	res.State, res.User = StateSent, userMsg
	s.mergeIfCurrent(chatID, *userMsg)

	res.State = StateGenerating
	resp, err := s.llm.Complete(ctx, req)
	if err != nil {
		if model.KindOf(err) == "" {
			err = model.WrapError(model.KindGeneration, "messages.generate", err)
		}
		res.State = StateFailed
		return res, s.fail("generate", err)
	}
	if strings.TrimSpace(resp.Content) == "" {
		res.State = StateFailed
		return res, s.fail("generate", model.NewError(model.KindGeneration, "messages.generate", "model returned an empty response"))
	}

	if !s.isLive(ctx, chatID) {
		metrics.RecordStale("generate", "discard")
		log.Info("chat deleted during generation, reply discarded")
		res.State, res.Discarded = StateCompleted, true
		return res, nil
	}

	reply, err := s.gw.SendMessage(ctx, chatID, model.RoleAssistant, resp.Content)
	if err != nil {
		res.State = StateFailed
		return res, s.fail("send_reply", err)
	}
	res.State, res.Reply = StateCompleted, reply

	if !s.mergeIfCurrent(chatID, *reply) {
		metrics.RecordStale("generate", "reroute")
		log.Info("selection changed during generation, reply stored in its chat")
		res.Rerouted = true
	}
	log.Debug("reply stored",
		zap.Int64("message_id", reply.ID),
		zap.String("model", resp.Model),
		zap.Int64("latency_ms", resp.LatencyMs),
	)
	return res, nil
}

func (s *MessageStore) completionRequest(history []model.ChatMessage, content string) *llm.CompletionRequest {
	msgs := make([]model.ChatMessage, 0, len(history)+2)
	if prompt, ok := s.gen.SystemPrompt(); ok && strings.TrimSpace(prompt) != "" {
		msgs = append(msgs, model.ChatMessage{Role: model.RoleSystem, Content: prompt})
	}
	msgs = append(msgs, history...)
	msgs = append(msgs, model.ChatMessage{Role: model.RoleUser, Content: content})

	return &llm.CompletionRequest{
		Model:    s.gen.ModelName(s.defaultModel),
		Messages: msgs,
		Options:  s.gen.GenerationOptions(),
	}
}

// UpdateMessage replaces a message's content and mirrors the result locally.
func (s *MessageStore) UpdateMessage(ctx context.Context, id int64, content string) error {
	msg, err := s.gw.UpdateMessage(ctx, id, content)
	if err != nil {
		return s.fail("update", err)
	}
	s.ApplyEvent(model.Event{Type: model.EventUpdateMessage, ChatID: msg.ChatID, Message: msg})
	return nil
}

// DeleteMessage removes a message. A message the backend no longer knows is
// removed locally as well.
func (s *MessageStore) DeleteMessage(ctx context.Context, id int64) error {
	if err := s.gw.DeleteMessage(ctx, id); err != nil && !errors.Is(err, model.ErrNotFound) {
		return s.fail("delete", err)
	}
	s.mu.Lock()
	s.removeLocked(id)
	s.mu.Unlock()
	return nil
}

// ClearMessages deletes every message of chatID and empties the log when it
// shows that chat.
func (s *MessageStore) ClearMessages(ctx context.Context, chatID string) error {
	if err := s.gw.ClearMessages(ctx, chatID); err != nil {
		return s.fail("clear", err)
	}
	s.mu.Lock()
	if s.chatID == chatID {
		s.messages = nil
	}
	s.mu.Unlock()
	return nil
}

// SetMessages replaces the log wholesale with the messages of chatID.
func (s *MessageStore) SetMessages(chatID string, msgs []model.Message) {
	sorted := append([]model.Message(nil), msgs...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	s.mu.Lock()
	s.chatID = chatID
	s.messages = sorted
	s.mu.Unlock()
}

// Clear empties the log and detaches it from any chat.
func (s *MessageStore) Clear() {
	s.mu.Lock()
	s.chatID = ""
	s.messages = nil
	s.mu.Unlock()
}

// ApplyEvent merges a realtime event into the log. Events for other chats,
// duplicate creates and changes to unknown ids are ignored.
func (s *MessageStore) ApplyEvent(ev model.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.ChatID != s.chatID || s.chatID == "" {
		return false
	}

	switch ev.Type {
	case model.EventNewMessage:
		if ev.Message == nil {
			return false
		}
		return s.insertLocked(*ev.Message)
	case model.EventUpdateMessage:
		if ev.Message == nil {
			return false
		}
		_, idx, ok := lo.FindIndexOf(s.messages, func(m model.Message) bool { return m.ID == ev.Message.ID })
		if !ok {
			return false
		}
		s.messages[idx].Content = ev.Message.Content
		return true
	case model.EventDeleteMessage:
		return s.removeLocked(ev.MessageID)
	}
	return false
}

// ReportError records an error raised outside a store call, such as a
// dropped realtime channel.
func (s *MessageStore) ReportError(err error) {
	s.fail("realtime", err)
}

// ChatID returns the chat the log belongs to.
func (s *MessageStore) ChatID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chatID
}

// Contents returns the message texts in order.
func (s *MessageStore) Contents() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo.Map(s.messages, func(m model.Message, _ int) string { return m.Content })
}

// Snapshot returns the current state.
func (s *MessageStore) Snapshot() MessageState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return MessageState{
		ChatID:     s.chatID,
		Messages:   append([]model.Message(nil), s.messages...),
		Generating: s.generating > 0,
		Err:        s.err,
	}
}

// ClearError forgets the last error.
func (s *MessageStore) ClearError() {
	s.mu.Lock()
	s.err = nil
	s.mu.Unlock()
}

// mergeIfCurrent inserts msg when the log still shows chatID.
func (s *MessageStore) mergeIfCurrent(chatID string, msg model.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chatID != chatID {
		return false
	}
	s.insertLocked(msg)
	return true
}

func (s *MessageStore) insertLocked(msg model.Message) bool {
	if lo.ContainsBy(s.messages, func(m model.Message) bool { return m.ID == msg.ID }) {
		return false
	}
	i := sort.Search(len(s.messages), func(i int) bool { return msg.Before(s.messages[i]) })
	s.messages = append(s.messages, model.Message{})
	copy(s.messages[i+1:], s.messages[i:])
	s.messages[i] = msg
	return true
}

func (s *MessageStore) removeLocked(id int64) bool {
	_, idx, ok := lo.FindIndexOf(s.messages, func(m model.Message) bool { return m.ID == id })
	if !ok {
		return false
	}
	s.messages = append(s.messages[:idx], s.messages[idx+1:]...)
	return true
}

func (s *MessageStore) isLive(ctx context.Context, chatID string) bool {
	s.mu.Lock()
	live := s.live
	s.mu.Unlock()
	return live == nil || live(ctx, chatID)
}

func (s *MessageStore) doneGenerating() {
	s.mu.Lock()
	s.generating--
	s.mu.Unlock()
}

func (s *MessageStore) fail(op string, err error) error {
	record(s.logger, "messages", op, err)
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	return err
}
