// Package stats computes derived progress metrics from task registry
// snapshots. All functions are pure computations with no side effects
// and no persisted state of their own.
package stats

import (
	"time"

	"github.com/nlowe/devpulse/internal/task"
)

// Compute calculates the full Derived metrics from a task snapshot,
// the session start time, and the current time. This is a pure
// function: callers decide when "now" is, which keeps it deterministic
// under test.
func Compute(tasks []task.Task, sessionStart, now time.Time) Derived {
	d := Derived{TotalTasks: len(tasks)}

	for i := range tasks {
		switch tasks[i].Status {
		case task.StatusCompleted:
			d.SuccessfulTasks++
			d.CompletedTasks++
		case task.StatusError:
			d.FailedTasks++
			d.CompletedTasks++
		case task.StatusCancelled:
			d.CancelledTasks++
			d.CompletedTasks++
		default:
			d.ActiveTasks++
		}
	}

	if d.TotalTasks > 0 {
		d.ErrorRate = float64(d.FailedTasks) / float64(d.TotalTasks) * 100
		d.OverallProgress = float64(d.CompletedTasks) / float64(d.TotalTasks) * 100
		d.ActualAchievement = float64(d.SuccessfulTasks) / float64(d.TotalTasks) * 100
	}

	d.ThroughputPerMinute = throughput(d.CompletedTasks, sessionStart, now)

	if d.ThroughputPerMinute > 0 {
		eta := float64(d.ActiveTasks) / d.ThroughputPerMinute * 60_000
		d.EstimatedTimeRemainingMS = &eta
	}

	d.CurrentTask = currentTask(tasks)

	return d
}

// throughput returns terminal tasks per elapsed session minute.
// Returns 0 when no time has elapsed (division by zero protection).
func throughput(completed int, sessionStart, now time.Time) float64 {
	if sessionStart.IsZero() {
		return 0
	}
	elapsedMinutes := now.Sub(sessionStart).Minutes()
	if elapsedMinutes <= 0 {
		return 0
	}
	return float64(completed) / elapsedMinutes
}

// currentTask picks the display spotlight: the first in_progress task,
// else the first task still active, else nil.
func currentTask(tasks []task.Task) *task.Task {
	for i := range tasks {
		if tasks[i].Status == task.StatusInProgress {
			t := tasks[i]
			return &t
		}
	}
	for i := range tasks {
		if tasks[i].Status.Active() {
			t := tasks[i]
			return &t
		}
	}
	return nil
}
