package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/chatsync/internal/model"
	"github.com/capitalize-ai/chatsync/pkg/logger"
)

// MessageService handles message operations. Every mutation is broadcast to
// the chat's realtime room after it is stored.
type MessageService struct {
	chats     *ChatService
	publisher EventPublisher
	logger    *logger.Logger

	messages map[int64]*model.Message
	nextID   int64
	mu       sync.RWMutex
}

// NewMessageService creates a new message service.
func NewMessageService(chats *ChatService, publisher EventPublisher, log *logger.Logger) *MessageService {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	return &MessageService{
		chats:     chats,
		publisher: publisher,
		logger:    log,
		messages:  make(map[int64]*model.Message),
	}
}

// Send stores a message in a chat owned by userID.
func (s *MessageService) Send(ctx context.Context, userID int64, req *model.SendMessageRequest) (*model.Message, error) {
	if !req.Sender.Valid() {
		return nil, ErrInvalidInput
	}
	if _, err := s.chats.Get(ctx, userID, req.ChatID); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.nextID++
	msg := &model.Message{
		ID:      s.nextID,
		ChatID:  req.ChatID,
		Role:    req.Sender,
		Content: req.Content,
		SentAt:  time.Now().UTC(),
	}
	s.messages[msg.ID] = msg
	out := *msg
	s.mu.Unlock()

	s.publish(ctx, model.EventNewMessage, &out)
	return &out, nil
}

// List returns a chat's messages ordered by sentAt then id.
func (s *MessageService) List(ctx context.Context, userID int64, chatID string) ([]model.Message, error) {
	if _, err := s.chats.Get(ctx, userID, chatID); err != nil {
		return nil, err
	}

	s.mu.RLock()
	msgs := make([]model.Message, 0)
	for _, m := range s.messages {
		if m.ChatID == chatID {
			msgs = append(msgs, *m)
		}
	}
	s.mu.RUnlock()

	sort.Slice(msgs, func(i, j int) bool { return msgs[i].Before(msgs[j]) })
	return msgs, nil
}

// Update replaces a message's content.
func (s *MessageService) Update(ctx context.Context, userID, messageID int64, content string) (*model.Message, error) {
	chatID, err := s.chatOf(messageID)
	if err != nil {
		return nil, err
	}
	if _, err := s.chats.Get(ctx, userID, chatID); err != nil {
		return nil, ErrNotFound
	}

	s.mu.Lock()
	msg, ok := s.messages[messageID]
	if !ok {
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	msg.Content = content
	out := *msg
	s.mu.Unlock()

	s.publish(ctx, model.EventUpdateMessage, &out)
	return &out, nil
}

// Delete removes a message.
func (s *MessageService) Delete(ctx context.Context, userID, messageID int64) error {
	chatID, err := s.chatOf(messageID)
	if err != nil {
		return err
	}
	if _, err := s.chats.Get(ctx, userID, chatID); err != nil {
		return ErrNotFound
	}

	s.mu.Lock()
	_, ok := s.messages[messageID]
	delete(s.messages, messageID)
	s.mu.Unlock()
	if !ok {
		return ErrNotFound
	}

	s.publishDelete(ctx, chatID, messageID)
	return nil
}

// Clear removes every message of a chat and broadcasts a delete for each.
func (s *MessageService) Clear(ctx context.Context, userID int64, chatID string) error {
	if _, err := s.chats.Get(ctx, userID, chatID); err != nil {
		return err
	}
	for _, id := range s.purge(chatID) {
		s.publishDelete(ctx, chatID, id)
	}
	return nil
}

// PurgeChat drops the messages of a deleted chat without broadcasting.
func (s *MessageService) PurgeChat(chatID string) {
	s.purge(chatID)
}

func (s *MessageService) purge(chatID string) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []int64
	for id, m := range s.messages {
		if m.ChatID == chatID {
			ids = append(ids, id)
			delete(s.messages, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s *MessageService) chatOf(messageID int64) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[messageID]
	if !ok {
		return "", ErrNotFound
	}
	return m.ChatID, nil
}

// Publishing is best effort: the mutation is already stored.
func (s *MessageService) publish(ctx context.Context, eventType model.EventType, msg *model.Message) {
	if _, err := s.publisher.PublishMessageEvent(ctx, eventType, msg); err != nil {
		s.logger.Warn("failed to publish event",
			zap.String("type", string(eventType)),
			zap.String("chat_id", msg.ChatID),
			zap.Int64("message_id", msg.ID),
			zap.Error(err),
		)
	}
}

func (s *MessageService) publishDelete(ctx context.Context, chatID string, messageID int64) {
	if _, err := s.publisher.PublishDelete(ctx, chatID, messageID); err != nil {
		s.logger.Warn("failed to publish event",
			zap.String("type", string(model.EventDeleteMessage)),
			zap.String("chat_id", chatID),
			zap.Int64("message_id", messageID),
			zap.Error(err),
		)
	}
}
