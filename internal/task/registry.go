// Package task owns task entities and their lifecycle state machine.
// The Registry is the only writer of task state; readers always receive
// deep copies so internal state cannot be mutated from outside.
package task

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrTaskNotFound is returned by mutations that reference an unknown
// task id. Event-source races with task expiry are expected, so callers
// treat this as a reportable no-op rather than a fatal condition.
var ErrTaskNotFound = errors.New("task not found")

// DefaultPendingDelay is how long a freshly created task stays pending
// before it is automatically promoted to in_progress. Work begins
// asynchronously after being queued; observers must tolerate a task
// being momentarily pending right after creation.
const DefaultPendingDelay = 100 * time.Millisecond

// Registry is a thread-safe in-memory store of tasks.
type Registry struct {
	mu           sync.RWMutex
	tasks        map[string]*Task
	order        []string // insertion order, for deterministic listing
	pendingDelay time.Duration
	generation   uint64 // bumped on Reset; stale promotion timers check it
}

// NewRegistry creates an empty Registry. pendingDelay controls the
// automatic pending -> in_progress promotion; values <= 0 fall back to
// DefaultPendingDelay.
func NewRegistry(pendingDelay time.Duration) *Registry {
	if pendingDelay <= 0 {
		pendingDelay = DefaultPendingDelay
	}
	return &Registry{
		tasks:        make(map[string]*Task),
		order:        nil,
		pendingDelay: pendingDelay,
	}
}

// newTaskID builds a collision-resistant task id from a millisecond
// timestamp and a random suffix. Uniqueness within the registry is a
// hard contract: the caller must hold the write lock and the id is
// re-rolled on the (vanishingly rare) collision.
func (r *Registry) newTaskID(now time.Time) string {
	for {
		suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
		id := fmt.Sprintf("task-%d-%s", now.UnixMilli(), suffix)
		if _, exists := r.tasks[id]; !exists {
			return id
		}
	}
}

// Start creates a task in pending status with progress 0 and schedules
// its automatic promotion to in_progress. It returns the new task id.
func (r *Registry) Start(d Descriptor) string {
	r.mu.Lock()

	now := time.Now()
	id := r.newTaskID(now)

	priority := d.Priority
	if priority == "" {
		priority = PriorityMedium
	}

	t := &Task{
		ID:              id,
		Label:           d.Label,
		Status:          StatusPending,
		Priority:        priority,
		ProgressPercent: 0,
		StartedAt:       now,
		AssociatedModel: d.AssociatedModel,
	}
	if len(d.Metadata) > 0 {
		t.Metadata = make(map[string]string, len(d.Metadata))
		for k, v := range d.Metadata {
			t.Metadata[k] = v
		}
	}

	r.tasks[id] = t
	r.order = append(r.order, id)
	gen := r.generation

	r.mu.Unlock()

	time.AfterFunc(r.pendingDelay, func() {
		r.promote(id, gen)
	})

	return id
}

// promote moves a still-pending task to in_progress. A stale timer from
// before a Reset finds a different generation and does nothing.
func (r *Registry) promote(id string, gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.generation != gen {
		return
	}
	t, ok := r.tasks[id]
	if !ok || t.Status != StatusPending {
		return
	}
	t.Status = StatusInProgress
}

// Update merges the given fields into an existing task. Unknown ids
// return ErrTaskNotFound. Progress is clamped to [0,100]. Terminal
// status values in fields are ignored; terminal transitions go through
// Complete and Cancel. Tasks already in a terminal state ignore status
// changes entirely.
func (r *Registry) Update(id string, f Fields) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok {
		return fmt.Errorf("updating task %q: %w", id, ErrTaskNotFound)
	}

	if f.Label != nil {
		t.Label = *f.Label
	}
	if f.Status != nil && !t.Status.Terminal() && !f.Status.Terminal() {
		t.Status = *f.Status
	}
	if f.ProgressPercent != nil {
		t.ProgressPercent = clampProgress(*f.ProgressPercent)
	}
	if f.AssociatedModel != nil {
		t.AssociatedModel = *f.AssociatedModel
	}
	if len(f.Metadata) > 0 {
		if t.Metadata == nil {
			t.Metadata = make(map[string]string, len(f.Metadata))
		}
		for k, v := range f.Metadata {
			t.Metadata[k] = v
		}
	}

	return nil
}

// Complete moves a task into completed (success) or error (failure),
// sets progress to 100, and stamps CompletedAt and DurationMS exactly
// once. A second call on an already-terminal task is a silent no-op:
// completion races from multiple event sources are expected.
func (r *Registry) Complete(id string, success bool, resultOrErr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok {
		return fmt.Errorf("completing task %q: %w", id, ErrTaskNotFound)
	}
	if t.Status.Terminal() {
		return nil
	}

	if success {
		t.Status = StatusCompleted
		if resultOrErr != "" {
			if t.Metadata == nil {
				t.Metadata = make(map[string]string, 1)
			}
			t.Metadata["result"] = resultOrErr
		}
	} else {
		t.Status = StatusError
		t.ErrorInfo = &ErrorInfo{Message: resultOrErr}
	}

	t.ProgressPercent = 100
	r.stampCompletion(t)

	return nil
}

// Cancel forces a non-terminal task into cancelled and stamps its
// completion time. A reason, if given, is stored as the error message.
func (r *Registry) Cancel(id, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok {
		return fmt.Errorf("cancelling task %q: %w", id, ErrTaskNotFound)
	}
	if t.Status.Terminal() {
		return nil
	}

	t.Status = StatusCancelled
	if reason != "" {
		t.ErrorInfo = &ErrorInfo{Message: reason}
	}
	r.stampCompletion(t)

	return nil
}

// stampCompletion sets CompletedAt and DurationMS on the first terminal
// transition. Caller must hold the write lock and have verified the
// task was not already terminal.
func (r *Registry) stampCompletion(t *Task) {
	now := time.Now()
	t.CompletedAt = &now
	if !t.StartedAt.IsZero() {
		dur := now.Sub(t.StartedAt).Milliseconds()
		t.DurationMS = &dur
	}
}

// Get returns a deep copy of the task with the given id, or nil if it
// does not exist.
func (r *Registry) Get(id string) *Task {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tasks[id]
	if !ok {
		return nil
	}
	return copyTask(t)
}

// List returns deep copies of all tasks in creation order.
func (r *Registry) List() []Task {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Task, 0, len(r.order))
	for _, id := range r.order {
		result = append(result, *copyTask(r.tasks[id]))
	}
	return result
}

// Len returns the number of tracked tasks.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}

// Restore replaces the registry contents with the given tasks, keeping
// their order. Used by snapshot import; the snapshot was validated
// before this call.
func (r *Registry) Restore(tasks []Task) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.generation++
	r.tasks = make(map[string]*Task, len(tasks))
	r.order = make([]string, 0, len(tasks))
	for i := range tasks {
		t := copyTask(&tasks[i])
		r.tasks[t.ID] = t
		r.order = append(r.order, t.ID)
	}
}

// Reset removes all tasks and invalidates any outstanding promotion
// timers from the previous session.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.generation++
	r.tasks = make(map[string]*Task)
	r.order = nil
}

// clampProgress bounds a progress value to [0,100].
func clampProgress(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// copyTask returns a deep copy of a Task to prevent callers from
// mutating internal state.
func copyTask(t *Task) *Task {
	cp := *t

	if t.CompletedAt != nil {
		ts := *t.CompletedAt
		cp.CompletedAt = &ts
	}
	if t.DurationMS != nil {
		d := *t.DurationMS
		cp.DurationMS = &d
	}
	if t.ErrorInfo != nil {
		ei := ErrorInfo{Message: t.ErrorInfo.Message}
		if len(t.ErrorInfo.Details) > 0 {
			ei.Details = make(map[string]string, len(t.ErrorInfo.Details))
			for k, v := range t.ErrorInfo.Details {
				ei.Details[k] = v
			}
		}
		cp.ErrorInfo = &ei
	}
	if len(t.Metadata) > 0 {
		cp.Metadata = make(map[string]string, len(t.Metadata))
		for k, v := range t.Metadata {
			cp.Metadata[k] = v
		}
	}

	return &cp
}
