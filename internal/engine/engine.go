// Package engine composes the task registry, model metrics aggregator,
// derived metrics calculator, history sampler, and session tracker
// behind a single facade. External collaborators mutate state and read
// the computed view only through this boundary; observers subscribe for
// immutable snapshots and never touch internal state directly.
package engine

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nlowe/devpulse/internal/history"
	"github.com/nlowe/devpulse/internal/metrics"
	"github.com/nlowe/devpulse/internal/modelperf"
	"github.com/nlowe/devpulse/internal/stats"
	"github.com/nlowe/devpulse/internal/task"
)

// Options configures a new Engine. Zero values fall back to the
// defaults noted on each field.
type Options struct {
	// PendingDelay is how long a new task stays pending before its
	// automatic promotion to in_progress. Default task.DefaultPendingDelay.
	PendingDelay time.Duration
	// SampleInterval drives the history sampler tick. Default 1s.
	SampleInterval time.Duration
	// ProgressRetention and PerformanceRetention bound the history
	// buffers. Default history.DefaultRetention each.
	ProgressRetention    int
	PerformanceRetention int
}

const defaultSampleInterval = time.Second

// Subscriber receives an immutable view after every mutation.
type Subscriber func(View)

// Engine is the explicitly constructed, dependency-injected service
// instance backing a dashboard's real-time views. Multiple engines can
// run in isolation; there is no shared static state. All methods are
// safe for concurrent use: the engine serializes its own mutations.
type Engine struct {
	mu sync.RWMutex

	registry   *task.Registry
	aggregator *modelperf.Aggregator
	sampler    *history.Sampler

	sessionID    string
	sessionStart time.Time
	sessionEnd   *time.Time
	currentModel string
	lastError    *EngineError

	subscribers map[int]Subscriber
	nextSubID   int
}

// New creates an Engine with a fresh tracking session already started.
func New(opts Options) *Engine {
	interval := opts.SampleInterval
	if interval <= 0 {
		interval = defaultSampleInterval
	}

	e := &Engine{
		registry:     task.NewRegistry(opts.PendingDelay),
		aggregator:   modelperf.NewAggregator(),
		sessionID:    newSessionID(),
		sessionStart: time.Now(),
		subscribers:  make(map[int]Subscriber),
	}
	e.sampler = history.NewSampler(interval, opts.ProgressRetention, opts.PerformanceRetention, e.sampleAt)

	metrics.RecordSessionStarted()
	return e
}

func newSessionID() string {
	return "session-" + uuid.NewString()
}

// StartSampling launches the history sampler's single ticker. Each tick
// is synchronous and ticks never overlap.
func (e *Engine) StartSampling() {
	e.sampler.Start()
}

// StopSampling halts the history sampler. It is immediate: there is no
// in-flight state to unwind.
func (e *Engine) StopSampling() {
	e.sampler.Stop()
}

// StartTask creates a new tracked task and returns its id. Tasks with
// no associated model inherit the engine's current model.
func (e *Engine) StartTask(d task.Descriptor) string {
	e.mu.Lock()
	if d.AssociatedModel == "" {
		d.AssociatedModel = e.currentModel
	}
	id := e.registry.Start(d)
	e.mu.Unlock()

	priority := d.Priority
	if priority == "" {
		priority = task.PriorityMedium
	}
	metrics.RecordTaskStarted(string(priority))

	e.notify()
	return id
}

// UpdateTask merges partial fields into an existing task. An unknown id
// is reported through the view's LastError and returned; no existing
// task is altered.
func (e *Engine) UpdateTask(id string, f task.Fields) error {
	e.mu.Lock()
	err := e.registry.Update(id, f)
	if err != nil {
		e.recordErrorLocked(ErrCodeTaskNotFound, err)
		e.mu.Unlock()
		return err
	}
	e.mu.Unlock()

	e.notify()
	return nil
}

// CompleteTask moves a task into completed or error. A second call on
// an already-terminal task changes nothing: completion races from
// multiple event sources are expected.
func (e *Engine) CompleteTask(id string, success bool, resultOrErr string) error {
	e.mu.Lock()
	prior := e.registry.Get(id)
	err := e.registry.Complete(id, success, resultOrErr)
	if err != nil {
		e.recordErrorLocked(ErrCodeTaskNotFound, err)
		e.mu.Unlock()
		return err
	}
	transitioned := prior != nil && !prior.Status.Terminal()
	var duration time.Duration
	if transitioned {
		if done := e.registry.Get(id); done != nil && done.DurationMS != nil {
			duration = time.Duration(*done.DurationMS) * time.Millisecond
		}
	}
	e.mu.Unlock()

	// The idempotence guard: counters move only on the first terminal
	// transition.
	if transitioned {
		if success {
			metrics.RecordTaskCompleted(duration)
		} else {
			metrics.RecordTaskFailed(duration)
		}
	}

	e.notify()
	return nil
}

// CancelTask forces a task into cancelled, storing the reason if given.
func (e *Engine) CancelTask(id, reason string) error {
	e.mu.Lock()
	prior := e.registry.Get(id)
	err := e.registry.Cancel(id, reason)
	if err != nil {
		e.recordErrorLocked(ErrCodeTaskNotFound, err)
		e.mu.Unlock()
		return err
	}
	transitioned := prior != nil && !prior.Status.Terminal()
	var duration time.Duration
	if transitioned {
		if done := e.registry.Get(id); done != nil && done.DurationMS != nil {
			duration = time.Duration(*done.DurationMS) * time.Millisecond
		}
	}
	e.mu.Unlock()

	if transitioned {
		metrics.RecordTaskCancelled(duration)
	}

	e.notify()
	return nil
}

// RecordModelRequest folds one completed model call into the per-model
// statistics. It never fails; an empty model id is a valid bucket.
func (e *Engine) RecordModelRequest(model string, responseTimeMS float64, success bool, tokens *modelperf.TokenUsage) {
	e.aggregator.Record(model, responseTimeMS, success, tokens)
	metrics.RecordModelRequest(model, time.Duration(responseTimeMS)*time.Millisecond, success)
	e.notify()
}

// SwitchModel sets the model new tasks are associated with by default.
func (e *Engine) SwitchModel(model string) {
	e.mu.Lock()
	e.currentModel = model
	e.mu.Unlock()
	e.notify()
}

// StartSession begins a new tracking session, fully and atomically
// resetting tasks, model metrics, both history buffers, and the error
// field. An empty id generates a new one.
func (e *Engine) StartSession(id string) string {
	e.mu.Lock()
	if id == "" {
		id = newSessionID()
	}
	e.sessionID = id
	e.sessionStart = time.Now()
	e.sessionEnd = nil
	e.lastError = nil
	e.registry.Reset()
	e.aggregator.Reset()
	e.sampler.Reset()
	e.mu.Unlock()

	metrics.RecordSessionStarted()
	e.notify()
	return id
}

// EndSession stamps the session's end time. State stays readable until
// the next StartSession.
func (e *Engine) EndSession() {
	e.mu.Lock()
	if e.sessionEnd == nil {
		now := time.Now()
		e.sessionEnd = &now
	}
	e.mu.Unlock()
	e.notify()
}

// ResetSession discards all state and begins a fresh session with a
// generated id.
func (e *Engine) ResetSession() string {
	return e.StartSession("")
}

// Subscribe registers an observer that receives an immutable view after
// every mutation. The returned function unsubscribes it. Observers are
// invoked synchronously outside the engine lock and must not mutate the
// engine from within the callback chain.
func (e *Engine) Subscribe(fn Subscriber) (unsubscribe func()) {
	e.mu.Lock()
	id := e.nextSubID
	e.nextSubID++
	e.subscribers[id] = fn
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.subscribers, id)
		e.mu.Unlock()
	}
}

// View returns the current fully derived read model. Reads reflect all
// mutations that completed before the call; there is no
// eventual-consistency window.
func (e *Engine) View() View {
	return e.viewAt(time.Now())
}

func (e *Engine) viewAt(now time.Time) View {
	e.mu.RLock()
	defer e.mu.RUnlock()

	tasks := e.registry.List()
	derived := stats.Compute(tasks, e.sessionStart, now)

	v := View{
		Session: SessionMetrics{
			SessionID:             e.sessionID,
			StartTime:             e.sessionStart,
			TotalTasks:            derived.TotalTasks,
			CompletedTasks:        derived.CompletedTasks,
			ErrorRate:             derived.ErrorRate,
			AverageTaskDurationMS: averageDuration(tasks),
			OverallProgress:       derived.OverallProgress,
		},
		CurrentModel:       e.currentModel,
		Tasks:              tasks,
		Models:             e.aggregator.Snapshot(),
		Derived:            derived,
		ProgressHistory:    e.sampler.ProgressHistory(),
		PerformanceHistory: e.sampler.PerformanceHistory(),
	}
	if e.sessionEnd != nil {
		end := *e.sessionEnd
		v.Session.EndTime = &end
	}
	if e.lastError != nil {
		le := *e.lastError
		v.LastError = &le
	}
	return v
}

// LastError returns the most recent reported error, or nil.
func (e *Engine) LastError() *EngineError {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.lastError == nil {
		return nil
	}
	le := *e.lastError
	return &le
}

// ClearError resets the readable error field.
func (e *Engine) ClearError() {
	e.mu.Lock()
	e.lastError = nil
	e.mu.Unlock()
}

// sampleAt is the history sampler's sample function: one progress point
// and one aggregate performance point at the given instant.
func (e *Engine) sampleAt(now time.Time) (history.ProgressPoint, history.PerformancePoint) {
	e.mu.RLock()
	tasks := e.registry.List()
	sessionStart := e.sessionStart
	models := e.aggregator.Snapshot()
	e.mu.RUnlock()

	derived := stats.Compute(tasks, sessionStart, now)

	pp := history.ProgressPoint{
		Timestamp:       now,
		OverallProgress: derived.OverallProgress,
		ActiveTasks:     derived.ActiveTasks,
		CompletedTasks:  derived.CompletedTasks,
		ErrorRate:       derived.ErrorRate,
	}

	var totalRequests, errorCount int64
	var weightedRT float64
	for _, m := range models {
		totalRequests += m.TotalRequests
		errorCount += m.ErrorCount
		weightedRT += m.ResponseTimeAvg * float64(m.TotalRequests)
	}
	perf := history.PerformancePoint{
		Timestamp:           now,
		ThroughputPerMinute: derived.ThroughputPerMinute,
		TotalRequests:       totalRequests,
		ErrorCount:          errorCount,
	}
	if totalRequests > 0 {
		perf.AvgResponseTimeMS = weightedRT / float64(totalRequests)
	}

	return pp, perf
}

// recordErrorLocked stores a reported error on the read model. Caller
// must hold the write lock.
func (e *Engine) recordErrorLocked(code string, err error) {
	e.lastError = &EngineError{
		Code:    code,
		Message: err.Error(),
		At:      time.Now(),
	}
}

// notify delivers the current view to all subscribers, outside the
// engine lock so callbacks cannot deadlock against it.
func (e *Engine) notify() {
	e.mu.RLock()
	subs := make([]Subscriber, 0, len(e.subscribers))
	for _, fn := range e.subscribers {
		subs = append(subs, fn)
	}
	e.mu.RUnlock()

	if len(subs) == 0 {
		return
	}
	v := e.View()
	for _, fn := range subs {
		fn(v)
	}
}

// averageDuration returns the mean duration in milliseconds across all
// tasks that have reached a terminal state, 0 when none have.
func averageDuration(tasks []task.Task) float64 {
	var sum int64
	var count int
	for i := range tasks {
		if tasks[i].DurationMS != nil {
			sum += *tasks[i].DurationMS
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return float64(sum) / float64(count)
}

// IsTaskNotFound reports whether err stems from a mutation referencing
// an unknown task id.
func IsTaskNotFound(err error) bool {
	return errors.Is(err, task.ErrTaskNotFound)
}
