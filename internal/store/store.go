// Package store holds the client-side state of a chat session: who is logged
// in, which chats exist and which one is selected, the selected chat's
// settings and its message log. Stores are safe for concurrent use and never
// hold their lock across a gateway or LLM call.
package store

import (
	"context"

	"go.uber.org/zap"

	"github.com/capitalize-ai/chatsync/internal/model"
	"github.com/capitalize-ai/chatsync/internal/persist"
	"github.com/capitalize-ai/chatsync/pkg/logger"
	"github.com/capitalize-ai/chatsync/pkg/metrics"
)

// UserAPI is the user side of the gateway.
type UserAPI interface {
	CreateUser(ctx context.Context, req model.RegisterRequest) (*model.User, error)
	Login(ctx context.Context, email, password string) (string, error)
	Logout(ctx context.Context) error
	CurrentUser(ctx context.Context) (*model.User, error)
	SetToken(token string)
	Token() string
}

// ChatAPI is the chat side of the gateway.
type ChatAPI interface {
	StartChat(ctx context.Context, userID int64) (*model.Chat, error)
	ListChats(ctx context.Context) ([]model.Chat, error)
	GetChat(ctx context.Context, id string) (*model.Chat, error)
	UpdateChat(ctx context.Context, id string, update model.ChatUpdate) (*model.Chat, error)
	DeleteChat(ctx context.Context, id string) error
}

// MessageAPI is the message side of the gateway.
type MessageAPI interface {
	SendMessage(ctx context.Context, chatID string, role model.Role, content string) (*model.Message, error)
	ListMessages(ctx context.Context, chatID string) ([]model.Message, error)
	UpdateMessage(ctx context.Context, id int64, content string) (*model.Message, error)
	DeleteMessage(ctx context.Context, id int64) error
	ClearMessages(ctx context.Context, chatID string) error
}

// Gateway is everything the stores need from the backend.
type Gateway interface {
	UserAPI
	ChatAPI
	MessageAPI
}

// Rooms manages realtime room membership.
type Rooms interface {
	JoinChat(chatID string) error
	LeaveChat(chatID string) error
}

// Session persists login state between runs. *persist.File implements it.
type Session interface {
	Load() (*persist.Session, error)
	Update(fn func(*persist.Session)) error
}

// Identity supplies the current user.
type Identity interface {
	User() *model.User
	FetchUser(ctx context.Context) (*model.User, error)
}

type nopRooms struct{}

func (nopRooms) JoinChat(string) error { return nil }
func (nopRooms) LeaveChat(string) error { return nil }

func record(log *logger.Logger, store, op string, err error) {
	kind := model.KindOf(err)
	if kind == "" {
		kind = "unknown"
	}
	metrics.RecordStoreError(store, op, string(kind))
	log.Warn("operation failed",
		zap.String("op", op),
		zap.String("kind", string(kind)),
		zap.Error(err),
	)
}

func saveSession(s Session, log *logger.Logger, fn func(*persist.Session)) {
	if s == nil {
		return
	}
	if err := s.Update(fn); err != nil {
		log.Warn("failed to persist session", zap.Error(err))
	}
}
