package gateway

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/capitalize-ai/chatsync/internal/model"
)

// SendMessage persists a message. It is the only way messages enter a chat;
// the returned copy carries the server id and sentAt.
func (c *Client) SendMessage(ctx context.Context, chatID string, role model.Role, content string) (*model.Message, error) {
	var msg model.Message
	req := model.SendMessageRequest{ChatID: chatID, Sender: role, Content: content}
	if err := c.do(ctx, http.MethodPost, "/messages", "/messages", req, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// ListMessages returns a chat's messages.
func (c *Client) ListMessages(ctx context.Context, chatID string) ([]model.Message, error) {
	var msgs []model.Message
	if err := c.do(ctx, http.MethodGet, "/messages/{chatId}", "/messages/"+url.PathEscape(chatID), nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// UpdateMessage replaces a message's content.
func (c *Client) UpdateMessage(ctx context.Context, id int64, content string) (*model.Message, error) {
	var msg model.Message
	path := "/messages/" + strconv.FormatInt(id, 10)
	if err := c.do(ctx, http.MethodPut, "/messages/{id}", path, model.UpdateMessageRequest{Content: content}, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// DeleteMessage removes a message.
func (c *Client) DeleteMessage(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, "/messages/{id}", "/messages/"+strconv.FormatInt(id, 10), nil, nil)
}

// ClearMessages removes every message of a chat.
func (c *Client) ClearMessages(ctx context.Context, chatID string) error {
	return c.do(ctx, http.MethodDelete, "/messages/clear/{chatId}", "/messages/clear/"+url.PathEscape(chatID), nil, nil)
}
