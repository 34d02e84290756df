package api

import (
	"context"
	"net/http"
	"net/url"

	"chamber-agent/internal/domain"
)

// ExperimentRequest is the payload for creating or updating an experiment.
type ExperimentRequest struct {
	Title       string                  `json:"title"`
	Description string                  `json:"description,omitempty"`
	Status      domain.ExperimentStatus `json:"status,omitempty"`
	ChamberID   string                  `json:"chamber_id"`
	Schedule    []domain.ScheduleItem   `json:"schedule,omitempty"`
}

// ListExperiments fetches the caller's experiments, optionally filtered by
// chamber.
func (c *Client) ListExperiments(ctx context.Context, chamberID string) ([]domain.Experiment, error) {
	var query url.Values
	if chamberID != "" {
		query = url.Values{"chamber_id": []string{chamberID}}
	}

	var experiments []domain.Experiment
	if err := c.do(ctx, http.MethodGet, "/experiments", query, nil, &experiments, false); err != nil {
		return nil, err
	}
	return experiments, nil
}

// GetExperiment fetches a single experiment by ID.
func (c *Client) GetExperiment(ctx context.Context, id string) (*domain.Experiment, error) {
	var experiment domain.Experiment
	if err := c.do(ctx, http.MethodGet, "/experiments/"+id, nil, nil, &experiment, false); err != nil {
		return nil, err
	}
	return &experiment, nil
}

// CreateExperiment creates a new experiment.
func (c *Client) CreateExperiment(ctx context.Context, req ExperimentRequest) (*domain.Experiment, error) {
	var experiment domain.Experiment
	if err := c.do(ctx, http.MethodPost, "/experiments", nil, req, &experiment, false); err != nil {
		return nil, err
	}
	return &experiment, nil
}

// UpdateExperiment replaces an experiment's editable fields.
func (c *Client) UpdateExperiment(ctx context.Context, id string, req ExperimentRequest) (*domain.Experiment, error) {
	var experiment domain.Experiment
	if err := c.do(ctx, http.MethodPut, "/experiments/"+id, nil, req, &experiment, false); err != nil {
		return nil, err
	}
	return &experiment, nil
}

// DeleteExperiment removes an experiment.
func (c *Client) DeleteExperiment(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/experiments/"+id, nil, nil, nil, false)
}

// UpdateExperimentStatus issues a status transition through the dedicated
// endpoint and returns the updated experiment. The server treats repeating
// an already-applied transition as a no-op.
func (c *Client) UpdateExperimentStatus(ctx context.Context, id string, status domain.ExperimentStatus) (*domain.Experiment, error) {
	body := map[string]domain.ExperimentStatus{"status": status}

	var experiment domain.Experiment
	if err := c.do(ctx, http.MethodPatch, "/experiments/"+id+"/status", nil, body, &experiment, false); err != nil {
		return nil, err
	}
	return &experiment, nil
}
