package engine

import (
	"time"

	"github.com/nlowe/devpulse/internal/history"
	"github.com/nlowe/devpulse/internal/modelperf"
	"github.com/nlowe/devpulse/internal/stats"
	"github.com/nlowe/devpulse/internal/task"
)

// Error codes surfaced on the read model. No error in this engine is
// fatal: observers read LastError and degrade gracefully instead of
// crashing on backend anomalies.
const (
	ErrCodeTaskNotFound = "task_not_found"
	ErrCodeImportParse  = "import_parse"
)

// EngineError is the readable error field on the engine's view.
type EngineError struct {
	Code    string    `json:"code"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// SessionMetrics describes the current tracking session. All counters
// are derived from the task registry on read, never independently
// mutated, so they cannot drift.
type SessionMetrics struct {
	SessionID             string     `json:"sessionId"`
	StartTime             time.Time  `json:"startTime"`
	EndTime               *time.Time `json:"endTime,omitempty"`
	TotalTasks            int        `json:"totalTasks"`
	CompletedTasks        int        `json:"completedTasks"`
	ErrorRate             float64    `json:"errorRate"`
	AverageTaskDurationMS float64    `json:"averageTaskDurationMs"`
	OverallProgress       float64    `json:"overallProgress"`
}

// View is the fully derived read model handed to observers. It is a
// deep copy; mutating it never affects engine state. A freshly started
// session legitimately has empty tasks, models, and history.
type View struct {
	Session            SessionMetrics
	CurrentModel       string
	Tasks              []task.Task
	Models             map[string]modelperf.Metrics
	Derived            stats.Derived
	ProgressHistory    []history.ProgressPoint
	PerformanceHistory []history.PerformancePoint
	LastError          *EngineError
}
