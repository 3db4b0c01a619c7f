package nats

import (
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/capitalize-ai/chatsync/internal/model"
	"github.com/capitalize-ai/chatsync/pkg/metrics"
)

// SubjectPrefix is the prefix for all chat room subjects.
const SubjectPrefix = "chat"

// ValidateChatID rejects ids that cannot be used as a subject token.
func ValidateChatID(chatID string) error {
	if chatID == "" {
		return model.NewError(model.KindValidation, "room", "chat id is required")
	}
	if strings.ContainsAny(chatID, ".*> \t\r\n") {
		return model.NewError(model.KindValidation, "room", "chat id %q is not a valid room name", chatID)
	}
	return nil
}

// EventSubject returns the subject an event for chatID is published on.
func EventSubject(chatID string, eventType model.EventType) string {
	return fmt.Sprintf("%s.%s.%s", SubjectPrefix, chatID, eventType)
}

// RoomSubject returns the wildcard subject covering every event of a chat.
func RoomSubject(chatID string) string {
	return fmt.Sprintf("%s.%s.*", SubjectPrefix, chatID)
}

// ParseSubject splits an event subject into chat id and event type.
func ParseSubject(subject string) (string, model.EventType, error) {
	parts := strings.Split(subject, ".")
	if len(parts) != 3 || parts[0] != SubjectPrefix || parts[1] == "" {
		return "", "", fmt.Errorf("unexpected subject %q", subject)
	}
	eventType := model.EventType(parts[2])
	if !eventType.Valid() {
		return "", "", fmt.Errorf("unknown event type %q", parts[2])
	}
	return parts[1], eventType, nil
}

// SubscribeRoom subscribes to every event of chatID. Payloads that cannot be
// decoded are logged and dropped; handler only sees well-formed events.
func (c *Client) SubscribeRoom(chatID string, handler func(model.Event)) (*nats.Subscription, error) {
	if err := ValidateChatID(chatID); err != nil {
		return nil, err
	}

	sub, err := c.conn.Subscribe(RoomSubject(chatID), func(msg *nats.Msg) {
		ev, err := decodeMsg(msg)
		if err != nil {
			metrics.RecordRealtimeEvent("unknown", "decode_error")
			c.logger.Warn("dropping realtime event",
				zap.String("subject", msg.Subject),
				zap.Error(err),
			)
			return
		}
		handler(ev)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to room %s: %w", chatID, err)
	}
	return sub, nil
}

func decodeMsg(msg *nats.Msg) (model.Event, error) {
	chatID, eventType, err := ParseSubject(msg.Subject)
	if err != nil {
		return model.Event{}, err
	}
	return model.DecodeEvent(eventType, chatID, msg.Data)
}
