package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"chamber-agent/internal/domain"
	"chamber-agent/internal/notify"
	"chamber-agent/internal/testutil"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTracker(t *testing.T) (*ExperimentTracker, *testutil.MockExperimentAPI, *testutil.MockNotifier, *clockwork.FakeClock) {
	t.Helper()

	expAPI := testutil.NewMockExperimentAPI()
	notifier := &testutil.MockNotifier{}
	clock := clockwork.NewFakeClock()

	tracker := NewExperimentTracker(expAPI, notifier, clock)
	t.Cleanup(tracker.Stop)
	return tracker, expAPI, notifier, clock
}

// startAndAwaitFirstCheck starts the tracker and blocks until the first
// check has fully finished. The run loop only creates its ticker after the
// initial check, so a registered clock waiter means the check is done.
func startAndAwaitFirstCheck(t *testing.T, tracker *ExperimentTracker, clock *clockwork.FakeClock) {
	t.Helper()
	tracker.Start()
	clock.BlockUntil(1)
}

// expiredExperiment builds an active experiment whose schedule ended more
// than the grace period before now.
func expiredExperiment(now time.Time) domain.Experiment {
	return testutil.NewTestExperiment(testutil.WithScheduleWindow(
		now.Add(-2*time.Hour),
		now.Add(-time.Hour),
	))
}

// runningExperiment builds an active experiment still inside its schedule.
func runningExperiment(now time.Time) domain.Experiment {
	return testutil.NewTestExperiment(testutil.WithScheduleWindow(
		now.Add(-time.Hour),
		now.Add(time.Hour),
	))
}

func waitSignal(t *testing.T, ch chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestExperimentTracker_CompletesExpiredExperiments(t *testing.T) {
	tracker, expAPI, notifier, clock := newTestTracker(t)
	now := clock.Now()

	expired := expiredExperiment(now)
	running := runningExperiment(now)
	draft := testutil.NewTestExperiment(testutil.WithStatus(domain.StatusDraft),
		testutil.WithScheduleWindow(now.Add(-2*time.Hour), now.Add(-time.Hour)))

	expAPI.ListExperimentsFunc = func(ctx context.Context, chamberID string) ([]domain.Experiment, error) {
		return []domain.Experiment{expired, running, draft}, nil
	}
	expAPI.UpdateExperimentStatusFunc = func(ctx context.Context, id string, status domain.ExperimentStatus) (*domain.Experiment, error) {
		exp := expired
		exp.Status = status
		return &exp, nil
	}

	startAndAwaitFirstCheck(t, tracker, clock)

	assert.Equal(t, []string{expired.ID}, expAPI.Updates(),
		"only the expired active experiment transitions")
	assert.Equal(t, domain.StatusCompleted, expAPI.UpdatedStatus[0])

	events := notifier.Recorded()
	require.Len(t, events, 1)
	assert.Equal(t, notify.LevelSuccess, events[0].Level)
	assert.Contains(t, events[0].Message, expired.Title)

	for _, exp := range tracker.Experiments() {
		if exp.ID == expired.ID {
			assert.Equal(t, domain.StatusCompleted, exp.Status)
		}
	}
}

func TestExperimentTracker_GracePeriodHoldsTransition(t *testing.T) {
	tracker, expAPI, _, clock := newTestTracker(t)
	now := clock.Now()

	// Ended one second short of the grace period
	justEnded := testutil.NewTestExperiment(testutil.WithScheduleWindow(
		now.Add(-time.Hour),
		now.Add(-completionGracePeriod+time.Second),
	))

	expAPI.ListExperimentsFunc = func(ctx context.Context, chamberID string) ([]domain.Experiment, error) {
		return []domain.Experiment{justEnded}, nil
	}

	startAndAwaitFirstCheck(t, tracker, clock)

	assert.Empty(t, expAPI.Updates())
}

func TestExperimentTracker_OneFailureDoesNotStopTheBatch(t *testing.T) {
	tracker, expAPI, notifier, clock := newTestTracker(t)
	now := clock.Now()

	first := expiredExperiment(now)
	second := expiredExperiment(now)
	third := expiredExperiment(now)

	expAPI.ListExperimentsFunc = func(ctx context.Context, chamberID string) ([]domain.Experiment, error) {
		return []domain.Experiment{first, second, third}, nil
	}
	expAPI.UpdateExperimentStatusFunc = func(ctx context.Context, id string, status domain.ExperimentStatus) (*domain.Experiment, error) {
		if id == second.ID {
			return nil, errors.New("conflict")
		}
		return &domain.Experiment{ID: id, Status: status}, nil
	}

	startAndAwaitFirstCheck(t, tracker, clock)

	assert.ElementsMatch(t, []string{first.ID, second.ID, third.ID}, expAPI.Updates())

	var levels []notify.Level
	for _, event := range notifier.Recorded() {
		levels = append(levels, event.Level)
	}
	assert.ElementsMatch(t, []notify.Level{notify.LevelSuccess, notify.LevelError, notify.LevelSuccess}, levels)
}

func TestExperimentTracker_FetchFailureSkipsCheck(t *testing.T) {
	tracker, expAPI, notifier, clock := newTestTracker(t)

	expAPI.ListExperimentsFunc = func(ctx context.Context, chamberID string) ([]domain.Experiment, error) {
		return nil, &domain.TransportError{Err: errors.New("connection refused")}
	}

	startAndAwaitFirstCheck(t, tracker, clock)

	assert.Empty(t, expAPI.Updates())
	assert.Empty(t, notifier.Recorded())
}

func TestExperimentTracker_PollsOnInterval(t *testing.T) {
	tracker, expAPI, _, clock := newTestTracker(t)

	expAPI.ListExperimentsFunc = func(ctx context.Context, chamberID string) ([]domain.Experiment, error) {
		return nil, nil
	}

	startAndAwaitFirstCheck(t, tracker, clock)
	waitSignal(t, expAPI.Listed, "initial check")

	clock.Advance(trackingInterval)
	waitSignal(t, expAPI.Listed, "second check")

	clock.Advance(trackingInterval)
	waitSignal(t, expAPI.Listed, "third check")
}

func TestExperimentTracker_StartIsIdempotent(t *testing.T) {
	tracker, expAPI, _, clock := newTestTracker(t)

	expAPI.ListExperimentsFunc = func(ctx context.Context, chamberID string) ([]domain.Experiment, error) {
		return nil, nil
	}

	tracker.Start()
	tracker.Start()
	clock.BlockUntil(1)

	assert.Equal(t, 1, expAPI.ListCalls, "a second Start must not spawn a second loop")
	assert.True(t, tracker.Running())
}

func TestExperimentTracker_StopHaltsPolling(t *testing.T) {
	tracker, expAPI, _, clock := newTestTracker(t)

	expAPI.ListExperimentsFunc = func(ctx context.Context, chamberID string) ([]domain.Experiment, error) {
		return nil, nil
	}

	startAndAwaitFirstCheck(t, tracker, clock)
	waitSignal(t, expAPI.Listed, "initial check")

	tracker.Stop()
	assert.False(t, tracker.Running())

	clock.Advance(trackingInterval)
	select {
	case <-expAPI.Listed:
		t.Fatal("check ran after Stop")
	case <-time.After(100 * time.Millisecond):
	}

	// stopping again is a no-op
	tracker.Stop()
}

func TestExperimentTracker_RestartAfterStop(t *testing.T) {
	tracker, expAPI, _, clock := newTestTracker(t)

	expAPI.ListExperimentsFunc = func(ctx context.Context, chamberID string) ([]domain.Experiment, error) {
		return nil, nil
	}

	startAndAwaitFirstCheck(t, tracker, clock)
	waitSignal(t, expAPI.Listed, "initial check")
	tracker.Stop()

	tracker.Start()
	waitSignal(t, expAPI.Listed, "check after restart")
	assert.True(t, tracker.Running())
}

func TestExperimentTracker_ExperimentsReturnsCopy(t *testing.T) {
	tracker, expAPI, _, clock := newTestTracker(t)
	now := clock.Now()

	running := runningExperiment(now)
	expAPI.ListExperimentsFunc = func(ctx context.Context, chamberID string) ([]domain.Experiment, error) {
		return []domain.Experiment{running}, nil
	}

	startAndAwaitFirstCheck(t, tracker, clock)

	snapshot := tracker.Experiments()
	require.Len(t, snapshot, 1)
	snapshot[0].Status = domain.StatusArchived
	assert.Equal(t, domain.StatusActive, tracker.Experiments()[0].Status)
}
