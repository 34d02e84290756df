package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"chamber-agent/internal/domain"
	"chamber-agent/internal/notify"
	"chamber-agent/internal/observability"

	"github.com/jonboulle/clockwork"
)

const (
	trackingInterval      = 60 * time.Second
	completionGracePeriod = 5 * time.Minute
)

// ExperimentAPI is the slice of the platform client the tracker needs.
type ExperimentAPI interface {
	ListExperiments(ctx context.Context, chamberID string) ([]domain.Experiment, error)
	UpdateExperimentStatus(ctx context.Context, id string, status domain.ExperimentStatus) (*domain.Experiment, error)
}

// ExperimentTracker polls the platform for the user's experiments and
// transitions the ones whose schedule has ended (plus the grace period)
// to completed. The platform has no push channel for schedule expiry, so
// the agent owns this loop.
type ExperimentTracker struct {
	api      ExperimentAPI
	notifier notify.Notifier
	clock    clockwork.Clock

	mu          sync.Mutex
	running     bool
	cancel      context.CancelFunc
	experiments []domain.Experiment
}

// NewExperimentTracker creates a tracker. Pass clockwork.NewRealClock()
// outside of tests.
func NewExperimentTracker(expAPI ExperimentAPI, notifier notify.Notifier, clock clockwork.Clock) *ExperimentTracker {
	return &ExperimentTracker{
		api:      expAPI,
		notifier: notifier,
		clock:    clock,
	}
}

// Start launches the polling loop. Idempotent: a running tracker stays as
// it is. The first check runs immediately, then every trackingInterval.
func (t *ExperimentTracker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.running = true

	go t.run(ctx)
}

// Stop cancels the polling loop. It does not wait for an in-flight check:
// Stop can be reached from inside a check (a failed refresh during a poll
// tears the session down), and waiting there would deadlock.
func (t *ExperimentTracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return
	}
	t.cancel()
	t.running = false
}

// Running reports whether the polling loop is active.
func (t *ExperimentTracker) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Experiments returns a copy of the most recently fetched experiment list.
func (t *ExperimentTracker) Experiments() []domain.Experiment {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]domain.Experiment, len(t.experiments))
	copy(out, t.experiments)
	return out
}

func (t *ExperimentTracker) run(ctx context.Context) {
	t.checkAll(ctx)

	ticker := t.clock.NewTicker(trackingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if ctx.Err() != nil {
				return
			}
			t.checkAll(ctx)
		}
	}
}

// checkAll runs one poll: fetch the experiment list, then complete every
// active experiment whose schedule ended more than the grace period ago.
// Experiments are processed independently; one failed update does not stop
// the rest.
func (t *ExperimentTracker) checkAll(ctx context.Context) {
	observability.TrackerTicksTotal.Inc()
	logger := observability.FromContext(ctx)

	experiments, err := t.api.ListExperiments(ctx, "")
	if err != nil {
		observability.TrackerFetchFailuresTotal.Inc()
		logger.Warn("experiment fetch failed, skipping check", "error", err)
		return
	}

	t.mu.Lock()
	t.experiments = experiments
	t.mu.Unlock()

	now := t.clock.Now()
	for _, exp := range experiments {
		if !exp.IsActive() {
			continue
		}
		if !experimentCompleted(exp, now, completionGracePeriod) {
			continue
		}
		t.complete(ctx, exp)
	}
}

func (t *ExperimentTracker) complete(ctx context.Context, exp domain.Experiment) {
	logger := observability.FromContext(observability.WithExperimentID(ctx, exp.ID))

	updated, err := t.api.UpdateExperimentStatus(ctx, exp.ID, domain.StatusCompleted)
	if err != nil {
		observability.ExperimentUpdateFailuresTotal.Inc()
		logger.Warn("failed to complete experiment", "title", exp.Title, "error", err)
		t.notifier.Error(ctx, "Experiment update failed",
			fmt.Sprintf("Could not mark %q as completed: %v", exp.Title, err))
		return
	}

	t.mu.Lock()
	for i := range t.experiments {
		if t.experiments[i].ID == updated.ID {
			t.experiments[i] = *updated
			break
		}
	}
	t.mu.Unlock()

	observability.ExperimentsCompletedTotal.Inc()
	logger.Info("experiment completed", "title", exp.Title)
	t.notifier.Success(ctx, "Experiment completed",
		fmt.Sprintf("%q has finished its schedule", exp.Title))
}
