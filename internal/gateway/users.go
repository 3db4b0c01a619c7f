package gateway

import (
	"context"
	"net/http"

	"github.com/capitalize-ai/chatsync/internal/model"
)

// ListUsers returns every user visible to the caller.
func (c *Client) ListUsers(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := c.do(ctx, http.MethodGet, "/users", "/users", nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// CreateUser registers a new account.
func (c *Client) CreateUser(ctx context.Context, req model.RegisterRequest) (*model.User, error) {
	var user model.User
	if err := c.do(ctx, http.MethodPost, "/users", "/users", req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Login exchanges credentials for a bearer token. The token is returned, not
// attached; callers decide whether to SetToken.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	var resp model.LoginResponse
	err := c.do(ctx, http.MethodPost, "/users/login", "/users/login",
		model.LoginRequest{Email: email, Password: password}, &resp)
	if err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", model.NewError(model.KindServer, "POST /users/login", "login response carried no token")
	}
	return resp.Token, nil
}

// Logout ends the server session of the current token.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/users/logout", "/users/logout", nil, nil)
}

// CurrentUser returns the user the current token belongs to.
func (c *Client) CurrentUser(ctx context.Context) (*model.User, error) {
	var user model.User
	if err := c.do(ctx, http.MethodGet, "/users/me", "/users/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}
