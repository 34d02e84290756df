package domain

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrInvalidCredentials is returned when a login or registration is rejected.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNoRefreshToken is returned when a refresh is attempted with no stored token.
	ErrNoRefreshToken = errors.New("no refresh token available")
	// ErrRefreshFailed is returned when the remote refresh is rejected. The
	// session is gone after this; callers must treat it as unauthenticated.
	ErrRefreshFailed = errors.New("token refresh failed")
	// ErrAuthExpired is returned when a request still fails after its one
	// refresh-and-retry. Callers are expected to re-authenticate.
	ErrAuthExpired = errors.New("authentication expired")
	// ErrNotAuthenticated is returned for operations requiring a session when none exists.
	ErrNotAuthenticated = errors.New("not authenticated")
)

// TransportError wraps a network-level failure, as opposed to an API-level
// rejection. Never triggers session clearing.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ValidationError carries the API's error field for a malformed request body.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// APIError is a non-2xx API response that is neither an auth expiry nor a
// validation rejection.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api error (status %d)", e.StatusCode)
}

// IsAuthFailure reports whether the response was an authorization rejection.
func (e *APIError) IsAuthFailure() bool {
	return e.StatusCode == http.StatusUnauthorized
}
