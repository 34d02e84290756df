package service

import (
	"time"

	"chamber-agent/internal/domain"
)

// ExperimentProgress is a point-in-time view of how far an experiment has
// run through its schedule.
type ExperimentProgress struct {
	CurrentPhase    *int           `json:"current_phase"`
	ProgressPercent float64        `json:"progress_percent"`
	TimeRemaining   *time.Duration `json:"time_remaining"`
	IsCompleted     bool           `json:"is_completed"`
}

// ExperimentStartTime returns the earliest phase start in the schedule.
// The schedule is scanned in full: phases are not required to be sorted.
func ExperimentStartTime(exp domain.Experiment) (time.Time, bool) {
	if len(exp.Schedule) == 0 {
		return time.Time{}, false
	}
	earliest := exp.Schedule[0].StartTimestamp
	for _, item := range exp.Schedule[1:] {
		if item.StartTimestamp < earliest {
			earliest = item.StartTimestamp
		}
	}
	return time.Unix(earliest, 0), true
}

// ExperimentEndTime returns the latest phase end in the schedule.
func ExperimentEndTime(exp domain.Experiment) (time.Time, bool) {
	if len(exp.Schedule) == 0 {
		return time.Time{}, false
	}
	latest := exp.Schedule[0].EndTimestamp
	for _, item := range exp.Schedule[1:] {
		if item.EndTimestamp > latest {
			latest = item.EndTimestamp
		}
	}
	return time.Unix(latest, 0), true
}

// experimentCompleted reports whether the experiment's schedule has ended
// and the grace period has elapsed. The grace period absorbs clock skew
// between the agent and the server.
func experimentCompleted(exp domain.Experiment, now time.Time, grace time.Duration) bool {
	end, ok := ExperimentEndTime(exp)
	if !ok {
		return false
	}
	return !now.Before(end.Add(grace))
}

// ProgressWithDefaults computes Progress with the tracker's grace period.
func ProgressWithDefaults(exp domain.Experiment, now time.Time) ExperimentProgress {
	return Progress(exp, now, completionGracePeriod)
}

// Progress computes the experiment's progress at the given instant. An
// empty schedule yields the zero report: no phase, 0%, not completed.
func Progress(exp domain.Experiment, now time.Time, grace time.Duration) ExperimentProgress {
	start, ok := ExperimentStartTime(exp)
	if !ok {
		return ExperimentProgress{}
	}
	end, _ := ExperimentEndTime(exp)

	progress := ExperimentProgress{
		IsCompleted: experimentCompleted(exp, now, grace),
	}

	total := end.Sub(start)
	if total > 0 {
		elapsed := now.Sub(start)
		pct := float64(elapsed) / float64(total) * 100
		if pct < 0 {
			pct = 0
		}
		if pct > 100 {
			pct = 100
		}
		progress.ProgressPercent = pct
	} else if !now.Before(end) {
		progress.ProgressPercent = 100
	}

	remaining := end.Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	progress.TimeRemaining = &remaining

	// First phase whose window contains now, in schedule order. Windows
	// are half-open: a phase ends the instant the next one may begin.
	for i, item := range exp.Schedule {
		if !now.Before(item.Start()) && now.Before(item.End()) {
			phase := exp.Schedule[i].PhaseIndex
			progress.CurrentPhase = &phase
			break
		}
	}

	return progress
}
