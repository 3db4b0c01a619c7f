package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// EventType is the kind of a realtime message event.
type EventType string

const (
	EventNewMessage    EventType = "newMessage"
	EventUpdateMessage EventType = "updateMessage"
	EventDeleteMessage EventType = "deleteMessage"
)

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	switch t {
	case EventNewMessage, EventUpdateMessage, EventDeleteMessage:
		return true
	}
	return false
}

// Event is a decoded realtime event scoped to one chat room.
type Event struct {
	Type   EventType
	ChatID string
	// Message is set for create and update events.
	Message *Message
	// MessageID is set for every event.
	MessageID int64
}

// DeletePayload is the body of a deleteMessage event.
type DeletePayload struct {
	ID int64 `json:"id"`
}

// DecodeEvent decodes the payload of an event received on a chat room.
// Delete payloads accept the id as a JSON number or a numeric string.
func DecodeEvent(eventType EventType, chatID string, data []byte) (Event, error) {
	ev := Event{Type: eventType, ChatID: chatID}

	switch eventType {
	case EventNewMessage, EventUpdateMessage:
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			return ev, fmt.Errorf("decode %s: %w", eventType, err)
		}
		if msg.ChatID == "" {
			msg.ChatID = chatID
		}
		ev.Message = &msg
		ev.MessageID = msg.ID
	case EventDeleteMessage:
		var raw struct {
			ID json.RawMessage `json:"id"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return ev, fmt.Errorf("decode %s: %w", eventType, err)
		}
		id, err := parseID(raw.ID)
		if err != nil {
			return ev, fmt.Errorf("decode %s: %w", eventType, err)
		}
		ev.MessageID = id
	default:
		return ev, fmt.Errorf("unknown event type %q", eventType)
	}

	return ev, nil
}

func parseID(raw json.RawMessage) (int64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, fmt.Errorf("missing id")
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, err
		}
		return strconv.ParseInt(s, 10, 64)
	}
	return strconv.ParseInt(string(raw), 10, 64)
}
