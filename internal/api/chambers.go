package api

import (
	"context"
	"net/http"

	"chamber-agent/internal/domain"
)

// ListChambers fetches the chambers visible to the current user.
func (c *Client) ListChambers(ctx context.Context) ([]domain.Chamber, error) {
	var chambers []domain.Chamber
	if err := c.do(ctx, http.MethodGet, "/chambers", nil, nil, &chambers, false); err != nil {
		return nil, err
	}
	return chambers, nil
}

// GetChamber fetches a single chamber by ID.
func (c *Client) GetChamber(ctx context.Context, id string) (*domain.Chamber, error) {
	var chamber domain.Chamber
	if err := c.do(ctx, http.MethodGet, "/chambers/"+id, nil, nil, &chamber, false); err != nil {
		return nil, err
	}
	return &chamber, nil
}
