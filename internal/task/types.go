package task

import "time"

// Status is the lifecycle state of a task. Transitions are monotonic:
// pending -> in_progress -> {completed | error | cancelled}. Terminal
// states absorb any further transition attempt.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether the status is a terminal state.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusError, StatusCancelled:
		return true
	default:
		return false
	}
}

// Active reports whether a task in this status still counts toward
// remaining work.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusInProgress
}

// Priority is the display priority of a task.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// ErrorInfo carries failure details for a task that ended in error or
// was cancelled with a reason.
type ErrorInfo struct {
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// Task is a unit of work tracked for observability.
type Task struct {
	ID              string            `json:"id"`
	Label           string            `json:"label"`
	Status          Status            `json:"status"`
	Priority        Priority          `json:"priority"`
	ProgressPercent float64           `json:"progressPercent"`
	StartedAt       time.Time         `json:"startedAt"`
	CompletedAt     *time.Time        `json:"completedAt,omitempty"`
	DurationMS      *int64            `json:"durationMs,omitempty"`
	AssociatedModel string            `json:"associatedModel,omitempty"`
	ErrorInfo       *ErrorInfo        `json:"errorInfo,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// Descriptor describes a task at creation time.
type Descriptor struct {
	Label           string
	Priority        Priority
	AssociatedModel string
	Metadata        map[string]string
}

// Fields is a partial update applied by Registry.Update. Nil pointer
// fields are left unchanged. Terminal status values are ignored; terminal
// transitions go through Complete and Cancel so completion stamps happen
// exactly once.
type Fields struct {
	Label           *string
	Status          *Status
	ProgressPercent *float64
	AssociatedModel *string
	Metadata        map[string]string
}
