// Package service provides the in-memory business logic of the development
// backend.
package service

import (
	"context"
	"errors"

	"github.com/capitalize-ai/chatsync/internal/model"
)

// Service errors. Handlers map them onto HTTP statuses.
var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidInput       = errors.New("invalid input")
)

// EventPublisher broadcasts message mutations to a chat's realtime room.
type EventPublisher interface {
	PublishMessageEvent(ctx context.Context, eventType model.EventType, msg *model.Message) (uint64, error)
	PublishDelete(ctx context.Context, chatID string, messageID int64) (uint64, error)
}

// NopPublisher drops every event. Used when no realtime channel is configured.
type NopPublisher struct{}

func (NopPublisher) PublishMessageEvent(context.Context, model.EventType, *model.Message) (uint64, error) {
	return 0, nil
}

func (NopPublisher) PublishDelete(context.Context, string, int64) (uint64, error) {
	return 0, nil
}
