package model

import "time"

// Chat is a conversation aggregate owning messages and settings.
type Chat struct {
	ID        string     `json:"id"`
	UserID    int64      `json:"userId"`
	StartTime time.Time  `json:"startTime"`
	EndTime   *time.Time `json:"endTime,omitempty"`
	Title     *string    `json:"title,omitempty"`
	Settings  *Settings  `json:"settings,omitempty"`
}

// DisplayTitle returns the title, or fallback when the chat is untitled.
func (c Chat) DisplayTitle(fallback string) string {
	if c.Title == nil || *c.Title == "" {
		return fallback
	}
	return *c.Title
}

// StartChatRequest is the request to create a chat.
type StartChatRequest struct {
	UserID int64 `json:"userId"`
}

// ChatUpdate is a partial chat update. Only non-nil keys are sent; the server
// merges them into the stored chat.
type ChatUpdate struct {
	Title    *string    `json:"title,omitempty"`
	Settings *Settings  `json:"settings,omitempty"`
	EndTime  *time.Time `json:"endTime,omitempty"`
}

// Empty reports whether the update carries no keys.
func (u ChatUpdate) Empty() bool {
	return u.Title == nil && u.Settings == nil && u.EndTime == nil
}
