package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/storefront-dev/storefront/internal/domain/session"
)

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type profileResponse struct {
	User *session.User `json:"user"`
}

// Register calls POST /auth/register.
func (c *Client) Register(ctx context.Context, name, email, password string) (*session.AuthResponse, error) {
	var resp session.AuthResponse
	err := c.doRequest(ctx, http.MethodPost, "/auth/register", "/auth/register",
		registerRequest{Name: name, Email: email, Password: password}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Token == "" {
		return nil, fmt.Errorf("register: %w: missing token", ErrMalformedResponse)
	}
	return &resp, nil
}

// Login calls POST /auth/login.
func (c *Client) Login(ctx context.Context, email, password string) (*session.AuthResponse, error) {
	var resp session.AuthResponse
	err := c.doRequest(ctx, http.MethodPost, "/auth/login", "/auth/login",
		loginRequest{Email: email, Password: password}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Token == "" {
		return nil, fmt.Errorf("login: %w: missing token", ErrMalformedResponse)
	}
	return &resp, nil
}

// Profile calls GET /auth/profile with the stored token.
func (c *Client) Profile(ctx context.Context) (*session.User, error) {
	var resp profileResponse
	if err := c.doRequest(ctx, http.MethodGet, "/auth/profile", "/auth/profile", nil, &resp); err != nil {
		return nil, err
	}
	if resp.User == nil {
		return nil, fmt.Errorf("profile: %w: missing user", ErrMalformedResponse)
	}
	return resp.User, nil
}
