// Package testutil provides shared test utilities, mocks, and fixtures
// for testing the chamber-agent application.
package testutil

import (
	"context"
	"errors"
	"sync"

	"chamber-agent/internal/api"
	"chamber-agent/internal/domain"
	"chamber-agent/internal/notify"
	"chamber-agent/internal/store"
)

// Common test errors
var (
	ErrMockNotImplemented = errors.New("mock function not implemented")
)

// MockStore implements store.Store for testing
type MockStore struct {
	mu sync.RWMutex

	// Function overrides - set these to customize behavior
	GetFunc    func(ctx context.Context, key string) (string, error)
	SetFunc    func(ctx context.Context, key, value string) error
	DeleteFunc func(ctx context.Context, key string) error

	// In-memory storage for simple tests
	Values map[string]string
}

// NewMockStore creates a new MockStore with initialized maps
func NewMockStore() *MockStore {
	return &MockStore{
		Values: make(map[string]string),
	}
}

func (m *MockStore) Get(ctx context.Context, key string) (string, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, key)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.Values[key]
	if !ok {
		return "", store.ErrKeyNotFound
	}
	return value, nil
}

func (m *MockStore) Set(ctx context.Context, key, value string) error {
	if m.SetFunc != nil {
		return m.SetFunc(ctx, key, value)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Values == nil {
		m.Values = make(map[string]string)
	}
	m.Values[key] = value
	return nil
}

func (m *MockStore) Delete(ctx context.Context, key string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.Values, key)
	return nil
}

// MockAuthAPI implements service.AuthAPI for testing
type MockAuthAPI struct {
	mu sync.Mutex

	// Function overrides - set these to customize behavior
	LoginFunc          func(ctx context.Context, req api.LoginRequest) (*api.AuthResponse, error)
	RegisterFunc       func(ctx context.Context, req api.RegisterRequest) (*api.AuthResponse, error)
	RefreshTokenFunc   func(ctx context.Context, refreshToken string) (*api.AuthResponse, error)
	LogoutFunc         func(ctx context.Context) error
	CurrentUserFunc    func(ctx context.Context) (*domain.User, error)
	UpdateProfileFunc  func(ctx context.Context, name string) (*domain.User, error)
	ChangePasswordFunc func(ctx context.Context, currentPassword, newPassword string) error

	// Call counters
	LoginCalls        int
	RefreshTokenCalls int
	LogoutCalls       int
	CurrentUserCalls  int
}

func (m *MockAuthAPI) Login(ctx context.Context, req api.LoginRequest) (*api.AuthResponse, error) {
	m.mu.Lock()
	m.LoginCalls++
	m.mu.Unlock()
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, req)
	}
	return nil, ErrMockNotImplemented
}

func (m *MockAuthAPI) Register(ctx context.Context, req api.RegisterRequest) (*api.AuthResponse, error) {
	if m.RegisterFunc != nil {
		return m.RegisterFunc(ctx, req)
	}
	return nil, ErrMockNotImplemented
}

func (m *MockAuthAPI) RefreshToken(ctx context.Context, refreshToken string) (*api.AuthResponse, error) {
	m.mu.Lock()
	m.RefreshTokenCalls++
	m.mu.Unlock()
	if m.RefreshTokenFunc != nil {
		return m.RefreshTokenFunc(ctx, refreshToken)
	}
	return nil, ErrMockNotImplemented
}

func (m *MockAuthAPI) Logout(ctx context.Context) error {
	m.mu.Lock()
	m.LogoutCalls++
	m.mu.Unlock()
	if m.LogoutFunc != nil {
		return m.LogoutFunc(ctx)
	}
	return nil
}

func (m *MockAuthAPI) CurrentUser(ctx context.Context) (*domain.User, error) {
	m.mu.Lock()
	m.CurrentUserCalls++
	m.mu.Unlock()
	if m.CurrentUserFunc != nil {
		return m.CurrentUserFunc(ctx)
	}
	return nil, ErrMockNotImplemented
}

func (m *MockAuthAPI) UpdateProfile(ctx context.Context, name string) (*domain.User, error) {
	if m.UpdateProfileFunc != nil {
		return m.UpdateProfileFunc(ctx, name)
	}
	return nil, ErrMockNotImplemented
}

func (m *MockAuthAPI) ChangePassword(ctx context.Context, currentPassword, newPassword string) error {
	if m.ChangePasswordFunc != nil {
		return m.ChangePasswordFunc(ctx, currentPassword, newPassword)
	}
	return ErrMockNotImplemented
}

// MockExperimentAPI implements service.ExperimentAPI for testing. The
// Listed channel receives after every ListExperiments call so tests can
// synchronize with the polling loop.
type MockExperimentAPI struct {
	mu sync.Mutex

	// Function overrides - set these to customize behavior
	ListExperimentsFunc        func(ctx context.Context, chamberID string) ([]domain.Experiment, error)
	UpdateExperimentStatusFunc func(ctx context.Context, id string, status domain.ExperimentStatus) (*domain.Experiment, error)

	Listed chan struct{}

	ListCalls     int
	UpdatedIDs    []string
	UpdatedStatus []domain.ExperimentStatus
}

// NewMockExperimentAPI creates a MockExperimentAPI with a buffered sync channel
func NewMockExperimentAPI() *MockExperimentAPI {
	return &MockExperimentAPI{
		Listed: make(chan struct{}, 16),
	}
}

func (m *MockExperimentAPI) ListExperiments(ctx context.Context, chamberID string) ([]domain.Experiment, error) {
	m.mu.Lock()
	m.ListCalls++
	m.mu.Unlock()

	var (
		experiments []domain.Experiment
		err         error
	)
	if m.ListExperimentsFunc != nil {
		experiments, err = m.ListExperimentsFunc(ctx, chamberID)
	}

	if m.Listed != nil {
		select {
		case m.Listed <- struct{}{}:
		default:
		}
	}
	return experiments, err
}

func (m *MockExperimentAPI) UpdateExperimentStatus(ctx context.Context, id string, status domain.ExperimentStatus) (*domain.Experiment, error) {
	m.mu.Lock()
	m.UpdatedIDs = append(m.UpdatedIDs, id)
	m.UpdatedStatus = append(m.UpdatedStatus, status)
	m.mu.Unlock()

	if m.UpdateExperimentStatusFunc != nil {
		return m.UpdateExperimentStatusFunc(ctx, id, status)
	}
	return nil, ErrMockNotImplemented
}

// Updates returns a copy of the recorded status update calls
func (m *MockExperimentAPI) Updates() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.UpdatedIDs))
	copy(out, m.UpdatedIDs)
	return out
}

// MockNotifier implements notify.Notifier and records every notification
type MockNotifier struct {
	mu     sync.Mutex
	Events []notify.Notification
}

func (m *MockNotifier) record(level notify.Level, title, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, notify.Notification{Level: level, Title: title, Message: message})
}

func (m *MockNotifier) Success(_ context.Context, title, message string) {
	m.record(notify.LevelSuccess, title, message)
}

func (m *MockNotifier) Error(_ context.Context, title, message string) {
	m.record(notify.LevelError, title, message)
}

func (m *MockNotifier) Warning(_ context.Context, title, message string) {
	m.record(notify.LevelWarning, title, message)
}

func (m *MockNotifier) Info(_ context.Context, title, message string) {
	m.record(notify.LevelInfo, title, message)
}

// Recorded returns a copy of the captured notifications
func (m *MockNotifier) Recorded() []notify.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]notify.Notification, len(m.Events))
	copy(out, m.Events)
	return out
}

// MockTracker records Start/Stop calls from the session manager
type MockTracker struct {
	mu         sync.Mutex
	StartCalls int
	StopCalls  int
}

func (m *MockTracker) Start() {
	m.mu.Lock()
	m.StartCalls++
	m.mu.Unlock()
}

func (m *MockTracker) Stop() {
	m.mu.Lock()
	m.StopCalls++
	m.mu.Unlock()
}

func (m *MockTracker) Started() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.StartCalls
}

func (m *MockTracker) Stopped() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.StopCalls
}
