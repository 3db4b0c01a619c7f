package gateway

import (
	"context"
	"net/http"
	"net/url"

	"github.com/capitalize-ai/chatsync/internal/model"
)

// StartChat creates an empty chat owned by userID.
func (c *Client) StartChat(ctx context.Context, userID int64) (*model.Chat, error) {
	var chat model.Chat
	if err := c.do(ctx, http.MethodPost, "/chats", "/chats", model.StartChatRequest{UserID: userID}, &chat); err != nil {
		return nil, err
	}
	return &chat, nil
}

// ListChats returns the caller's chats in server order.
func (c *Client) ListChats(ctx context.Context) ([]model.Chat, error) {
	var chats []model.Chat
	if err := c.do(ctx, http.MethodGet, "/chats", "/chats", nil, &chats); err != nil {
		return nil, err
	}
	return chats, nil
}

// GetChat returns one chat.
func (c *Client) GetChat(ctx context.Context, id string) (*model.Chat, error) {
	var chat model.Chat
	if err := c.do(ctx, http.MethodGet, "/chats/{id}", "/chats/"+url.PathEscape(id), nil, &chat); err != nil {
		return nil, err
	}
	return &chat, nil
}

// UpdateChat sends only the keys set in update; the server merges them.
func (c *Client) UpdateChat(ctx context.Context, id string, update model.ChatUpdate) (*model.Chat, error) {
	var chat model.Chat
	if err := c.do(ctx, http.MethodPut, "/chats/{id}", "/chats/"+url.PathEscape(id), update, &chat); err != nil {
		return nil, err
	}
	return &chat, nil
}

// DeleteChat deletes a chat. A repeated delete may fail with a not-found
// error.
func (c *Client) DeleteChat(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/chats/{id}", "/chats/"+url.PathEscape(id), nil, nil)
}
