package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/capitalize-ai/chatsync/internal/model"
	"github.com/capitalize-ai/chatsync/pkg/metrics"
)

// StreamName is the name of the chat events stream.
const StreamName = "CHATS"

// StreamManager handles JetStream stream operations.
type StreamManager struct {
	client *Client
}

// NewStreamManager creates a new stream manager.
func NewStreamManager(client *Client) *StreamManager {
	return &StreamManager{client: client}
}

// EnsureStream ensures the chat events stream exists.
func (m *StreamManager) EnsureStream(ctx context.Context) error {
	js := m.client.JetStream()

	if _, err := js.Stream(ctx, StreamName); err == nil {
		return nil
	}

	_, err := js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      7 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Description: "Realtime message events per chat room",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// PublishMessageEvent publishes a create or update event carrying msg.
func (m *StreamManager) PublishMessageEvent(ctx context.Context, eventType model.EventType, msg *model.Message) (uint64, error) {
	return m.publish(ctx, msg.ChatID, eventType, msg)
}

// PublishDelete publishes a delete event for a message id.
func (m *StreamManager) PublishDelete(ctx context.Context, chatID string, messageID int64) (uint64, error) {
	return m.publish(ctx, chatID, model.EventDeleteMessage, model.DeletePayload{ID: messageID})
}

func (m *StreamManager) publish(ctx context.Context, chatID string, eventType model.EventType, payload any) (uint64, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal event: %w", err)
	}

	ack, err := m.client.JetStream().Publish(ctx, EventSubject(chatID, eventType), data)
	if err != nil {
		return 0, fmt.Errorf("failed to publish event: %w", err)
	}

	metrics.EventsPublishedTotal.WithLabelValues(string(eventType)).Inc()
	return ack.Sequence, nil
}
