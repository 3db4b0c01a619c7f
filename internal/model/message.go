package model

import (
	"strings"
	"time"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// LLMRole maps a stored sender onto the roles a completion request accepts.
// Anything that is neither user nor assistant is sent as system.
func (r Role) LLMRole() Role {
	switch Role(strings.ToLower(string(r))) {
	case RoleUser:
		return RoleUser
	case RoleAssistant:
		return RoleAssistant
	default:
		return RoleSystem
	}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant || r == RoleSystem
}

// Message represents one turn in a chat.
type Message struct {
	ID      int64     `json:"id"`
	ChatID  string    `json:"chatId"`
	Role    Role      `json:"role"`
	Content string    `json:"content"`
	SentAt  time.Time `json:"sentAt"`
}

// Before reports whether m sorts before o: by sentAt, then by id.
func (m Message) Before(o Message) bool {
	if !m.SentAt.Equal(o.SentAt) {
		return m.SentAt.Before(o.SentAt)
	}
	return m.ID < o.ID
}

// SendMessageRequest is the request to persist a new message.
type SendMessageRequest struct {
	ChatID  string `json:"chatId"`
	Sender  Role   `json:"sender"`
	Content string `json:"content"`
}

// UpdateMessageRequest replaces a message's content.
type UpdateMessageRequest struct {
	Content string `json:"content"`
}

// ChatMessage is one entry of a completion request.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
