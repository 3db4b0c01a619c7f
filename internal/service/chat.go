package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/chatsync/internal/model"
	"github.com/capitalize-ai/chatsync/pkg/logger"
)

// ChatService handles chat operations.
type ChatService struct {
	logger *logger.Logger

	// In-memory storage, keyed by chat ID.
	chats map[string]*model.Chat
	mu    sync.RWMutex
}

// NewChatService creates a new chat service.
func NewChatService(log *logger.Logger) *ChatService {
	return &ChatService{
		logger: log,
		chats:  make(map[string]*model.Chat),
	}
}

// Create starts an empty chat with every setting disabled.
func (s *ChatService) Create(ctx context.Context, userID int64) (*model.Chat, error) {
	chat := &model.Chat{
		ID:        uuid.Must(uuid.NewV7()).String(),
		UserID:    userID,
		StartTime: time.Now().UTC(),
		Settings:  &model.Settings{},
	}

	s.mu.Lock()
	s.chats[chat.ID] = chat
	s.mu.Unlock()

	s.logger.Info("chat created",
		zap.String("chat_id", chat.ID),
		zap.Int64("user_id", userID),
	)

	return cloneChat(chat), nil
}

// Get retrieves a chat owned by userID.
func (s *ChatService) Get(ctx context.Context, userID int64, chatID string) (*model.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chat, ok := s.chats[chatID]
	if !ok || chat.UserID != userID {
		return nil, ErrNotFound
	}
	return cloneChat(chat), nil
}

// List returns the chats of userID, newest first.
func (s *ChatService) List(ctx context.Context, userID int64) ([]model.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chats := make([]model.Chat, 0)
	for _, chat := range s.chats {
		if chat.UserID == userID {
			chats = append(chats, *cloneChat(chat))
		}
	}
	sort.Slice(chats, func(i, j int) bool {
		if !chats[i].StartTime.Equal(chats[j].StartTime) {
			return chats[i].StartTime.After(chats[j].StartTime)
		}
		return chats[i].ID > chats[j].ID
	})
	return chats, nil
}

// Update merges the keys present in update into the chat.
func (s *ChatService) Update(ctx context.Context, userID int64, chatID string, update *model.ChatUpdate) (*model.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat, ok := s.chats[chatID]
	if !ok || chat.UserID != userID {
		return nil, ErrNotFound
	}

	if update.Title != nil {
		title := *update.Title
		chat.Title = &title
	}
	if update.Settings != nil {
		chat.Settings = update.Settings.Clone()
	}
	if update.EndTime != nil {
		end := *update.EndTime
		chat.EndTime = &end
	}

	return cloneChat(chat), nil
}

// Delete removes a chat.
func (s *ChatService) Delete(ctx context.Context, userID int64, chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat, ok := s.chats[chatID]
	if !ok || chat.UserID != userID {
		return ErrNotFound
	}
	delete(s.chats, chatID)

	s.logger.Info("chat deleted", zap.String("chat_id", chatID))
	return nil
}

func cloneChat(c *model.Chat) *model.Chat {
	out := *c
	if c.Title != nil {
		title := *c.Title
		out.Title = &title
	}
	if c.EndTime != nil {
		end := *c.EndTime
		out.EndTime = &end
	}
	if c.Settings != nil {
		out.Settings = c.Settings.Clone()
	}
	return &out
}
