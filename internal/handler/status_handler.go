package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"chamber-agent/internal/domain"
	"chamber-agent/internal/service"
)

// StatusHandler exposes the agent's session and tracking state on the
// admin server.
type StatusHandler struct {
	manager *service.SessionManager
	tracker *service.ExperimentTracker
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(manager *service.SessionManager, tracker *service.ExperimentTracker) *StatusHandler {
	return &StatusHandler{
		manager: manager,
		tracker: tracker,
	}
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	State          string       `json:"state"`
	Authenticated  bool         `json:"authenticated"`
	User           *domain.User `json:"user,omitempty"`
	TrackerRunning bool         `json:"tracker_running"`
}

// Status reports the session state and whether tracking is active.
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	state := h.manager.State()

	resp := StatusResponse{
		State:          state.String(),
		Authenticated:  state == service.StateAuthenticated,
		User:           h.manager.CurrentUser(),
		TrackerRunning: h.tracker.Running(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// ExperimentView is an experiment from the tracker's cache decorated with
// its computed progress.
type ExperimentView struct {
	domain.Experiment
	Progress service.ExperimentProgress `json:"progress"`
}

// Experiments reports the tracker's cached experiment list with progress
// computed at request time.
func (h *StatusHandler) Experiments(w http.ResponseWriter, r *http.Request) {
	experiments := h.tracker.Experiments()
	now := time.Now()

	views := make([]ExperimentView, 0, len(experiments))
	for _, exp := range experiments {
		views = append(views, ExperimentView{
			Experiment: exp,
			Progress:   service.ProgressWithDefaults(exp, now),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(views)
}
