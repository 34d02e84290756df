// Package api is the client for the chamber platform REST API. Every
// outbound call goes through here: the current bearer credential is
// attached, responses are unwrapped from the platform envelope, and an
// authorization failure triggers exactly one coordinated refresh-and-retry
// before the call is given up as expired.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"chamber-agent/internal/domain"
	"chamber-agent/internal/observability"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	requestTimeout = 15 * time.Second

	// Outbound rate limit: average requests per second and burst
	requestsPerSecond = 20
	requestBurst      = 50
)

// AuthProvider supplies the current access token and performs a token
// refresh when the client hits a 401. Implemented by the session manager;
// wired after construction to break the client/manager dependency knot.
type AuthProvider interface {
	AccessToken() string
	Refresh(ctx context.Context) error
}

// Client handles requests to the chamber platform API
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter

	mu   sync.RWMutex
	auth AuthProvider
}

// NewClient creates a new platform API client
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), requestBurst),
	}
}

// SetAuthProvider wires the credential source. Must be called before any
// authenticated request is issued.
func (c *Client) SetAuthProvider(p AuthProvider) {
	c.mu.Lock()
	c.auth = p
	c.mu.Unlock()
}

func (c *Client) authProvider() AuthProvider {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.auth
}

// envelope is the platform's response wrapper
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
	Message string          `json:"message,omitempty"`
}

func (e *envelope) errorMessage() string {
	if e.Error != "" {
		return e.Error
	}
	return e.Message
}

// do issues one API call. On a 401 with auth retry enabled it refreshes the
// session and replays the request once; a 401 on the replay propagates as
// ErrAuthExpired without another refresh.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any, skipAuthRetry bool) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	retried := false
	for {
		status, env, err := c.send(ctx, method, path, query, payload)
		if err != nil {
			return err
		}

		if status == http.StatusUnauthorized {
			auth := c.authProvider()
			if skipAuthRetry || auth == nil {
				return &domain.APIError{StatusCode: status, Message: env.errorMessage()}
			}
			if retried {
				// The refreshed token was rejected too. Another refresh
				// would just loop.
				return fmt.Errorf("request rejected after token refresh: %w", domain.ErrAuthExpired)
			}
			retried = true
			if rerr := auth.Refresh(ctx); rerr != nil {
				return fmt.Errorf("token refresh after 401 failed: %w", domain.ErrAuthExpired)
			}
			continue
		}

		if status < 200 || status >= 300 {
			if status == http.StatusBadRequest || status == http.StatusUnprocessableEntity {
				return &domain.ValidationError{Message: env.errorMessage()}
			}
			return &domain.APIError{StatusCode: status, Message: env.errorMessage()}
		}

		if out != nil && len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, out); err != nil {
				return fmt.Errorf("failed to decode response data: %w", err)
			}
		}
		return nil
	}
}

// send performs a single HTTP round trip and parses the envelope.
func (c *Client) send(ctx context.Context, method, path string, query url.Values, payload []byte) (int, *envelope, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, nil, fmt.Errorf("request cancelled: %w", err)
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}

	requestID := uuid.New().String()
	req.Header.Set("X-Request-ID", requestID)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if auth := c.authProvider(); auth != nil {
		if token := auth.AccessToken(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		observability.APIRequestsTotal.WithLabelValues(method, path, "transport_error").Inc()
		return 0, nil, &domain.TransportError{Err: err}
	}
	defer resp.Body.Close()

	duration := time.Since(start).Seconds()
	statusLabel := strconv.Itoa(resp.StatusCode)
	observability.APIRequestDuration.WithLabelValues(method, path, statusLabel).Observe(duration)
	observability.APIRequestsTotal.WithLabelValues(method, path, statusLabel).Inc()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, &domain.TransportError{Err: err}
	}

	env := parseEnvelope(resp.StatusCode, raw)

	observability.FromContext(observability.WithRequestID(ctx, requestID)).Debug("api request",
		"method", method,
		"path", path,
		"status", resp.StatusCode)

	return resp.StatusCode, env, nil
}

// parseEnvelope decodes the platform envelope. A 2xx body without the
// success wrapper is treated as bare data, matching the server's behavior
// for a few legacy endpoints.
func parseEnvelope(status int, raw []byte) *envelope {
	env := &envelope{}
	if len(raw) == 0 {
		env.Success = status >= 200 && status < 300
		return env
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		// Non-JSON body: keep it as the error message for diagnostics
		env.Error = strings.TrimSpace(string(raw))
		return env
	}

	if _, wrapped := probe["success"]; !wrapped {
		env.Success = true
		env.Data = raw
		return env
	}

	if err := json.Unmarshal(raw, env); err != nil {
		env.Error = strings.TrimSpace(string(raw))
	}
	return env
}
