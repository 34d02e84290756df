package domain

import "time"

// ExperimentStatus represents the lifecycle state of an experiment
type ExperimentStatus string

const (
	StatusDraft     ExperimentStatus = "draft"
	StatusActive    ExperimentStatus = "active"
	StatusPaused    ExperimentStatus = "paused"
	StatusCompleted ExperimentStatus = "completed"
	StatusArchived  ExperimentStatus = "archived"
)

// ScheduleItem is one phase window of an experiment's timeline. Timestamps
// are unix seconds. Windows are not guaranteed sorted or contiguous, so
// consumers must scan the full slice for extremes.
type ScheduleItem struct {
	PhaseIndex     int   `json:"phase_index"`
	StartTimestamp int64 `json:"start_timestamp"`
	EndTimestamp   int64 `json:"end_timestamp"`
}

// Start returns the window start as a time.Time.
func (s ScheduleItem) Start() time.Time {
	return time.Unix(s.StartTimestamp, 0)
}

// End returns the window end as a time.Time.
func (s ScheduleItem) End() time.Time {
	return time.Unix(s.EndTimestamp, 0)
}

// Experiment is a scheduled multi-phase run of chamber conditions. The remote
// system owns it; the client holds a cache copy refreshed on each poll.
type Experiment struct {
	ID          string           `json:"id"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Status      ExperimentStatus `json:"status"`
	ChamberID   string           `json:"chamber_id"`
	Schedule    []ScheduleItem   `json:"schedule"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// IsActive reports whether the experiment is currently running.
func (e *Experiment) IsActive() bool {
	return e.Status == StatusActive
}

// Chamber is a remote controlled-environment device. Referenced only as
// experiment metadata.
type Chamber struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Location      string    `json:"location"`
	Status        string    `json:"status"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}
