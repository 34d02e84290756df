package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"chamber-agent/internal/domain"
)

// LoginRequest is the credential payload for POST /auth/login
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RegisterRequest is the payload for POST /auth/register
type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

// AuthResponse is the server's session grant: the user plus a fresh token
// pair. Refresh responses use the same shape and may rotate the refresh token.
type AuthResponse struct {
	User         domain.User `json:"user"`
	Token        string      `json:"token"`
	RefreshToken string      `json:"refresh_token"`
	ExpiresIn    int64       `json:"expires_in"`
}

// Login authenticates with username/password. A rejected login maps to
// ErrInvalidCredentials; transport failures pass through as TransportError.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	var resp AuthResponse
	err := c.do(ctx, http.MethodPost, "/auth/login", nil, req, &resp, true)
	if err != nil {
		return nil, mapAuthRejection(err)
	}
	return &resp, nil
}

// Register creates an account and returns a session grant for it.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	var resp AuthResponse
	err := c.do(ctx, http.MethodPost, "/auth/register", nil, req, &resp, true)
	if err != nil {
		return nil, mapAuthRejection(err)
	}
	return &resp, nil
}

// RefreshToken exchanges the refresh token for a new token pair. Never
// routed through the 401-retry path: a rejected refresh is final.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*AuthResponse, error) {
	body := map[string]string{"refresh_token": refreshToken}

	var resp AuthResponse
	if err := c.do(ctx, http.MethodPost, "/auth/refresh", nil, body, &resp, true); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Logout invalidates the session server-side. Best-effort: callers log
// failures instead of propagating them, and local state is cleared either way.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/auth/logout", nil, nil, nil, true)
}

// CurrentUser fetches the profile behind the current access token. This is
// the session validity probe, so it skips the automatic refresh-and-retry: a
// 401 here must be visible to the caller, not papered over.
func (c *Client) CurrentUser(ctx context.Context) (*domain.User, error) {
	var user domain.User
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, nil, &user, true); err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateProfile changes the current user's display name.
func (c *Client) UpdateProfile(ctx context.Context, name string) (*domain.User, error) {
	body := map[string]string{"name": name}

	var user domain.User
	if err := c.do(ctx, http.MethodPut, "/auth/profile", nil, body, &user, false); err != nil {
		return nil, err
	}
	return &user, nil
}

// ChangePassword rotates the account password.
func (c *Client) ChangePassword(ctx context.Context, currentPassword, newPassword string) error {
	body := map[string]string{
		"current_password": currentPassword,
		"new_password":     newPassword,
	}
	return c.do(ctx, http.MethodPost, "/auth/change-password", nil, body, nil, false)
}

// mapAuthRejection converts a 401 on login/register into the credential
// sentinel while leaving validation and transport errors untouched.
func mapAuthRejection(err error) error {
	var apiErr *domain.APIError
	if errors.As(err, &apiErr) && apiErr.IsAuthFailure() {
		if apiErr.Message != "" {
			return fmt.Errorf("%s: %w", apiErr.Message, domain.ErrInvalidCredentials)
		}
		return domain.ErrInvalidCredentials
	}
	return err
}
