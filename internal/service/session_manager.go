// Package service holds the agent's core behavior: the authenticated
// session lifecycle and the experiment tracking loop.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"chamber-agent/internal/api"
	"chamber-agent/internal/domain"
	"chamber-agent/internal/observability"
	"chamber-agent/internal/store"
)

// SessionState is the lifecycle phase of the agent's session.
type SessionState int

const (
	StateUnauthenticated SessionState = iota
	StateAuthenticating
	StateAuthenticated
	StateRefreshing
	StateError
)

func (s SessionState) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateRefreshing:
		return "refreshing"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Storage keys for the persisted session. The names are shared with other
// platform clients so a session written by one survives into another.
const (
	storageKeyAccessToken  = "auth_token"
	storageKeyRefreshToken = "refresh_token"
	storageKeyUser         = "auth_user"
)

// AuthAPI is the slice of the platform client the session manager needs.
type AuthAPI interface {
	Login(ctx context.Context, req api.LoginRequest) (*api.AuthResponse, error)
	Register(ctx context.Context, req api.RegisterRequest) (*api.AuthResponse, error)
	RefreshToken(ctx context.Context, refreshToken string) (*api.AuthResponse, error)
	Logout(ctx context.Context) error
	CurrentUser(ctx context.Context) (*domain.User, error)
	UpdateProfile(ctx context.Context, name string) (*domain.User, error)
	ChangePassword(ctx context.Context, currentPassword, newPassword string) error
}

// tracker is the lifecycle hook the manager drives: tracking starts when a
// session is established and stops when it is cleared.
type tracker interface {
	Start()
	Stop()
}

// SessionManager owns the agent's session: credentials, the current user,
// and the persisted copy of both. It implements api.AuthProvider so the
// platform client can pull the bearer token and trigger refreshes.
type SessionManager struct {
	api   AuthAPI
	store store.Store

	mu          sync.RWMutex
	state       SessionState
	session     *domain.Session
	initialized bool
	tracker     tracker

	// refreshMu serializes token refreshes so concurrent 401s collapse
	// into a single exchange.
	refreshMu sync.Mutex
}

// NewSessionManager creates a SessionManager backed by the given API client
// and persistent store.
func NewSessionManager(authAPI AuthAPI, st store.Store) *SessionManager {
	return &SessionManager{
		api:   authAPI,
		store: st,
		state: StateUnauthenticated,
	}
}

// SetTracker wires the tracking loop the manager starts and stops with the
// session. Must be called before Initialize or Login.
func (m *SessionManager) SetTracker(t tracker) {
	m.mu.Lock()
	m.tracker = t
	m.mu.Unlock()
}

// State returns the current session state.
func (m *SessionManager) State() SessionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Initialized reports whether Initialize has completed.
func (m *SessionManager) Initialized() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.initialized
}

// CurrentUser returns the authenticated user, or nil.
func (m *SessionManager) CurrentUser() *domain.User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return nil
	}
	return m.session.User
}

// AccessToken implements api.AuthProvider.
func (m *SessionManager) AccessToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return ""
	}
	return m.session.AccessToken
}

func (m *SessionManager) refreshToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return ""
	}
	return m.session.RefreshToken
}

// Login authenticates with the given credentials, persists the granted
// session, and starts experiment tracking.
func (m *SessionManager) Login(ctx context.Context, username, password string) error {
	m.setState(StateAuthenticating)

	resp, err := m.api.Login(ctx, api.LoginRequest{Username: username, Password: password})
	if err != nil {
		m.setState(StateError)
		return err
	}

	m.establishSession(ctx, resp)
	m.startTracker()

	observability.FromContext(ctx).Info("session established",
		"username", resp.User.Username)
	return nil
}

// Register creates an account and stores the granted session. Tracking is
// not started: a fresh account has nothing to track and the caller decides
// when to begin.
func (m *SessionManager) Register(ctx context.Context, username, password, name string) error {
	m.setState(StateAuthenticating)

	resp, err := m.api.Register(ctx, api.RegisterRequest{Username: username, Password: password, Name: name})
	if err != nil {
		m.setState(StateError)
		return err
	}

	m.establishSession(ctx, resp)

	observability.FromContext(ctx).Info("account registered",
		"username", resp.User.Username)
	return nil
}

// Refresh exchanges the refresh token for a new token pair. Implements
// api.AuthProvider: the platform client calls this when a request hits a
// 401. Concurrent callers collapse into one exchange; a failed exchange
// clears the session.
func (m *SessionManager) Refresh(ctx context.Context) error {
	before := m.AccessToken()

	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	// Another caller finished a refresh while this one waited. The token
	// it produced is as fresh as a second exchange would be.
	if current := m.AccessToken(); current != "" && current != before {
		return nil
	}

	token := m.refreshToken()
	if token == "" {
		return domain.ErrNoRefreshToken
	}

	return m.exchangeRefreshToken(ctx, token)
}

// exchangeRefreshToken performs the actual token exchange. Callers hold
// refreshMu.
func (m *SessionManager) exchangeRefreshToken(ctx context.Context, token string) error {
	m.setState(StateRefreshing)

	resp, err := m.api.RefreshToken(ctx, token)
	if err != nil {
		observability.TokenRefreshesTotal.WithLabelValues("failure").Inc()
		observability.FromContext(ctx).Warn("token refresh failed", "error", err)
		m.clearSession(ctx)
		return fmt.Errorf("%v: %w", err, domain.ErrRefreshFailed)
	}

	observability.TokenRefreshesTotal.WithLabelValues("success").Inc()
	m.establishSession(ctx, resp)
	return nil
}

// FetchCurrentUser revalidates the session against the server and updates
// the stored user profile. A 401 means the session is gone server-side, so
// local state is cleared.
func (m *SessionManager) FetchCurrentUser(ctx context.Context) (*domain.User, error) {
	if m.AccessToken() == "" {
		return nil, domain.ErrNotAuthenticated
	}

	user, err := m.api.CurrentUser(ctx)
	if err != nil {
		var apiErr *domain.APIError
		if errors.As(err, &apiErr) && apiErr.IsAuthFailure() {
			m.clearSession(ctx)
		}
		return nil, err
	}

	m.mu.Lock()
	if m.session != nil {
		m.session.User = user
	}
	m.mu.Unlock()
	m.persistUser(ctx, user)

	return user, nil
}

// Initialize restores the persisted session and validates it with the
// server. A rejected token gets one refresh attempt and one retry; if that
// fails too, the stale session is cleared. Safe to call once at startup;
// later calls are no-ops.
func (m *SessionManager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	if m.initialized {
		m.mu.Unlock()
		return nil
	}
	m.initialized = true
	m.mu.Unlock()

	logger := observability.FromContext(ctx)

	session, err := m.restoreSession(ctx)
	if err != nil {
		logger.Warn("failed to restore persisted session", "error", err)
		return nil
	}
	if session == nil {
		logger.Info("no persisted session found")
		return nil
	}

	m.mu.Lock()
	m.session = session
	m.mu.Unlock()

	refreshToken := session.RefreshToken

	user, err := m.api.CurrentUser(ctx)
	if err != nil {
		logger.Info("persisted session rejected, attempting refresh", "error", err)

		m.refreshMu.Lock()
		rerr := m.exchangeRefreshToken(ctx, refreshToken)
		m.refreshMu.Unlock()
		if rerr != nil {
			return nil
		}

		user, err = m.api.CurrentUser(ctx)
		if err != nil {
			logger.Warn("session invalid after refresh, clearing", "error", err)
			m.clearSession(ctx)
			return nil
		}
	}

	m.mu.Lock()
	m.session.User = user
	m.state = StateAuthenticated
	m.mu.Unlock()
	m.persistUser(ctx, user)
	observability.SessionAuthenticated.Set(1)

	m.startTracker()
	logger.Info("session restored", "username", user.Username)
	return nil
}

// Logout invalidates the session server-side and clears local state. The
// server call is best-effort: local state is cleared even when it fails.
func (m *SessionManager) Logout(ctx context.Context) {
	if m.AccessToken() != "" {
		if err := m.api.Logout(ctx); err != nil {
			observability.FromContext(ctx).Warn("server logout failed", "error", err)
		}
	}
	m.clearSession(ctx)
}

// UpdateProfile changes the user's display name and syncs the stored copy.
func (m *SessionManager) UpdateProfile(ctx context.Context, name string) (*domain.User, error) {
	if m.AccessToken() == "" {
		return nil, domain.ErrNotAuthenticated
	}

	user, err := m.api.UpdateProfile(ctx, name)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.session != nil {
		m.session.User = user
	}
	m.mu.Unlock()
	m.persistUser(ctx, user)

	return user, nil
}

// ChangePassword rotates the account password.
func (m *SessionManager) ChangePassword(ctx context.Context, currentPassword, newPassword string) error {
	if m.AccessToken() == "" {
		return domain.ErrNotAuthenticated
	}
	return m.api.ChangePassword(ctx, currentPassword, newPassword)
}

// establishSession replaces the session with the granted one and persists
// it. The replacement is atomic: readers never observe a new access token
// paired with the old refresh token.
func (m *SessionManager) establishSession(ctx context.Context, resp *api.AuthResponse) {
	session := &domain.Session{
		AccessToken:  resp.Token,
		RefreshToken: resp.RefreshToken,
	}
	if resp.User.ID != "" {
		user := resp.User
		session.User = &user
	} else {
		// Some grants omit the user; keep the one already known.
		session.User = m.CurrentUser()
	}

	m.mu.Lock()
	m.session = session
	m.state = StateAuthenticated
	m.mu.Unlock()

	observability.SessionAuthenticated.Set(1)
	m.persistSession(ctx, session)
}

func (m *SessionManager) clearSession(ctx context.Context) {
	m.mu.Lock()
	hadTracker := m.tracker
	m.session = nil
	m.state = StateUnauthenticated
	m.mu.Unlock()

	if hadTracker != nil {
		hadTracker.Stop()
	}
	observability.SessionAuthenticated.Set(0)

	logger := observability.FromContext(ctx)
	for _, key := range []string{storageKeyAccessToken, storageKeyRefreshToken, storageKeyUser} {
		if err := m.store.Delete(ctx, key); err != nil && !errors.Is(err, store.ErrKeyNotFound) {
			logger.Warn("failed to remove persisted session key", "key", key, "error", err)
		}
	}
}

// persistSession writes the token pair and user to the store. Failures are
// logged, not propagated: a broken store degrades restart recovery, it does
// not invalidate the live session.
func (m *SessionManager) persistSession(ctx context.Context, session *domain.Session) {
	logger := observability.FromContext(ctx)

	if err := m.store.Set(ctx, storageKeyAccessToken, session.AccessToken); err != nil {
		logger.Warn("failed to persist access token", "error", err)
	}
	if err := m.store.Set(ctx, storageKeyRefreshToken, session.RefreshToken); err != nil {
		logger.Warn("failed to persist refresh token", "error", err)
	}
	if session.User != nil {
		m.persistUser(ctx, session.User)
	}
}

func (m *SessionManager) persistUser(ctx context.Context, user *domain.User) {
	raw, err := json.Marshal(user)
	if err != nil {
		observability.FromContext(ctx).Warn("failed to encode user for persistence", "error", err)
		return
	}
	if err := m.store.Set(ctx, storageKeyUser, string(raw)); err != nil {
		observability.FromContext(ctx).Warn("failed to persist user", "error", err)
	}
}

// restoreSession loads the persisted session. Returns (nil, nil) when no
// session was stored. A missing user record is tolerated; missing tokens
// are not a session.
func (m *SessionManager) restoreSession(ctx context.Context) (*domain.Session, error) {
	accessToken, err := m.store.Get(ctx, storageKeyAccessToken)
	if errors.Is(err, store.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	refreshToken, err := m.store.Get(ctx, storageKeyRefreshToken)
	if err != nil && !errors.Is(err, store.ErrKeyNotFound) {
		return nil, err
	}

	session := &domain.Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}

	rawUser, err := m.store.Get(ctx, storageKeyUser)
	if err == nil {
		var user domain.User
		if uerr := json.Unmarshal([]byte(rawUser), &user); uerr == nil {
			session.User = &user
		} else {
			observability.FromContext(ctx).Warn("discarding corrupt persisted user", "error", uerr)
		}
	}

	return session, nil
}

func (m *SessionManager) setState(state SessionState) {
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()
}

func (m *SessionManager) startTracker() {
	m.mu.RLock()
	t := m.tracker
	m.mu.RUnlock()
	if t != nil {
		t.Start()
	}
}
