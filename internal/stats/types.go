package stats

import "github.com/nlowe/devpulse/internal/task"

// Derived holds all progress metrics computed from a task snapshot.
// Percentages are 0-100. EstimatedTimeRemainingMS is nil when throughput
// is zero: an unknown ETA is a distinct state from "0 ms remaining" and
// renderers must treat it as such.
type Derived struct {
	TotalTasks      int
	ActiveTasks     int
	CompletedTasks  int // any terminal state: completed, error, or cancelled
	SuccessfulTasks int
	FailedTasks     int
	CancelledTasks  int

	ErrorRate         float64
	OverallProgress   float64
	ActualAchievement float64

	ThroughputPerMinute      float64 // terminal tasks per elapsed session minute
	EstimatedTimeRemainingMS *float64

	// CurrentTask is a deterministic single-task spotlight for display:
	// the first in_progress task, else the first active one, else nil.
	// It is not a scheduling decision.
	CurrentTask *task.Task
}
