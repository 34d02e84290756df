package testutil

import (
	"fmt"
	"sync/atomic"
	"time"

	"chamber-agent/internal/api"
	"chamber-agent/internal/domain"
)

// Counter for generating unique IDs
var idCounter atomic.Int64

// nextID generates a unique ID for test fixtures
func nextID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, idCounter.Add(1))
}

// UserOptions allows customizing user fixture creation
type UserOptions struct {
	ID       string
	Username string
	Name     string
	Role     domain.UserRole
}

// NewTestUser creates a test user with sensible defaults
// Pass options to override specific fields
func NewTestUser(opts ...func(*UserOptions)) *domain.User {
	o := &UserOptions{
		ID:       nextID("user"),
		Username: fmt.Sprintf("testuser%d", idCounter.Load()),
		Role:     domain.RoleUser,
	}

	for _, opt := range opts {
		opt(o)
	}

	if o.Name == "" {
		o.Name = "Test " + o.Username
	}

	return &domain.User{
		ID:        o.ID,
		Username:  o.Username,
		Name:      o.Name,
		Role:      o.Role,
		IsActive:  true,
		CreatedAt: time.Now(),
	}
}

// WithUserID sets the user ID
func WithUserID(id string) func(*UserOptions) {
	return func(o *UserOptions) {
		o.ID = id
	}
}

// WithUsername sets the username
func WithUsername(username string) func(*UserOptions) {
	return func(o *UserOptions) {
		o.Username = username
	}
}

// WithRole sets the user role
func WithRole(role domain.UserRole) func(*UserOptions) {
	return func(o *UserOptions) {
		o.Role = role
	}
}

// ExperimentOptions allows customizing experiment fixture creation
type ExperimentOptions struct {
	ID        string
	Title     string
	Status    domain.ExperimentStatus
	ChamberID string
	Schedule  []domain.ScheduleItem
}

// NewTestExperiment creates a test experiment with sensible defaults
func NewTestExperiment(opts ...func(*ExperimentOptions)) domain.Experiment {
	o := &ExperimentOptions{
		ID:        nextID("exp"),
		Status:    domain.StatusActive,
		ChamberID: nextID("chamber"),
	}

	for _, opt := range opts {
		opt(o)
	}

	if o.Title == "" {
		o.Title = "Experiment " + o.ID
	}

	return domain.Experiment{
		ID:        o.ID,
		Title:     o.Title,
		Status:    o.Status,
		ChamberID: o.ChamberID,
		Schedule:  o.Schedule,
		CreatedAt: time.Now(),
	}
}

// WithExperimentID sets the experiment ID
func WithExperimentID(id string) func(*ExperimentOptions) {
	return func(o *ExperimentOptions) {
		o.ID = id
	}
}

// WithStatus sets the experiment status
func WithStatus(status domain.ExperimentStatus) func(*ExperimentOptions) {
	return func(o *ExperimentOptions) {
		o.Status = status
	}
}

// WithSchedule sets the experiment schedule
func WithSchedule(schedule []domain.ScheduleItem) func(*ExperimentOptions) {
	return func(o *ExperimentOptions) {
		o.Schedule = schedule
	}
}

// WithScheduleWindow sets a single-phase schedule covering [start, end)
func WithScheduleWindow(start, end time.Time) func(*ExperimentOptions) {
	return func(o *ExperimentOptions) {
		o.Schedule = []domain.ScheduleItem{
			{PhaseIndex: 0, StartTimestamp: start.Unix(), EndTimestamp: end.Unix()},
		}
	}
}

// NewTestAuthResponse creates a session grant for the given user
func NewTestAuthResponse(user *domain.User) *api.AuthResponse {
	return &api.AuthResponse{
		User:         *user,
		Token:        nextID("token"),
		RefreshToken: nextID("refresh"),
		ExpiresIn:    900,
	}
}
