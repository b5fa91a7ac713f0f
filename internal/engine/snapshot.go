package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/nlowe/devpulse/internal/history"
	"github.com/nlowe/devpulse/internal/modelperf"
	"github.com/nlowe/devpulse/internal/task"
)

// ErrImportParse marks a malformed or invalid snapshot handed to
// ImportSnapshot. State is left untouched when it is reported.
var ErrImportParse = errors.New("snapshot parse error")

const snapshotVersion = 1

// snapshotFile is the self-describing serialized form of the engine's
// full state.
type snapshotFile struct {
	Version            int                         `json:"version"`
	ExportedAt         time.Time                   `json:"exportedAt"`
	Session            snapshotSession             `json:"session"`
	CurrentModel       string                      `json:"currentModel,omitempty"`
	Tasks              []task.Task                 `json:"tasks"`
	Models             map[string]modelperf.Record `json:"models"`
	ProgressHistory    []history.ProgressPoint     `json:"progressHistory"`
	PerformanceHistory []history.PerformancePoint  `json:"performanceHistory"`
}

type snapshotSession struct {
	ID        string     `json:"id"`
	StartTime time.Time  `json:"startTime"`
	EndTime   *time.Time `json:"endTime,omitempty"`
}

// ExportSnapshot serializes all tasks, session state, model metrics,
// and both history buffers into a self-describing JSON document.
func (e *Engine) ExportSnapshot() (string, error) {
	e.mu.RLock()
	snap := snapshotFile{
		Version:    snapshotVersion,
		ExportedAt: time.Now(),
		Session: snapshotSession{
			ID:        e.sessionID,
			StartTime: e.sessionStart,
		},
		CurrentModel:       e.currentModel,
		Tasks:              e.registry.List(),
		Models:             e.aggregator.Export(),
		ProgressHistory:    e.sampler.ProgressHistory(),
		PerformanceHistory: e.sampler.PerformanceHistory(),
	}
	if e.sessionEnd != nil {
		end := *e.sessionEnd
		snap.Session.EndTime = &end
	}
	e.mu.RUnlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding snapshot: %w", err)
	}
	return string(data), nil
}

// ImportSnapshot parses a document produced by ExportSnapshot and
// atomically replaces the engine's state with it. On any parse or
// validation failure the existing state is left untouched, false is
// returned, and the failure is reported through the view's LastError.
func (e *Engine) ImportSnapshot(data string) bool {
	var snap snapshotFile
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		e.reportImportError(fmt.Errorf("%w: %v", ErrImportParse, err))
		return false
	}

	if err := validateSnapshot(&snap); err != nil {
		e.reportImportError(fmt.Errorf("%w: %v", ErrImportParse, err))
		return false
	}

	e.mu.Lock()
	e.sessionID = snap.Session.ID
	e.sessionStart = snap.Session.StartTime
	e.sessionEnd = nil
	if snap.Session.EndTime != nil {
		end := *snap.Session.EndTime
		e.sessionEnd = &end
	}
	e.currentModel = snap.CurrentModel
	e.lastError = nil
	e.registry.Restore(snap.Tasks)
	e.aggregator.Restore(snap.Models)
	e.sampler.Restore(snap.ProgressHistory, snap.PerformanceHistory)
	e.mu.Unlock()

	e.notify()
	return true
}

// validateSnapshot rejects documents that parsed as JSON but do not
// describe a state this engine can adopt.
func validateSnapshot(snap *snapshotFile) error {
	if snap.Version != snapshotVersion {
		return fmt.Errorf("unsupported snapshot version %d", snap.Version)
	}
	if snap.Session.ID == "" {
		return errors.New("missing session id")
	}
	if snap.Session.StartTime.IsZero() {
		return errors.New("missing session start time")
	}
	for i := range snap.Tasks {
		t := &snap.Tasks[i]
		if t.ID == "" {
			return fmt.Errorf("task %d: missing id", i)
		}
		switch t.Status {
		case task.StatusPending, task.StatusInProgress, task.StatusCompleted, task.StatusError, task.StatusCancelled:
		default:
			return fmt.Errorf("task %q: unknown status %q", t.ID, t.Status)
		}
		if t.ProgressPercent < 0 || t.ProgressPercent > 100 {
			return fmt.Errorf("task %q: progress %f out of range", t.ID, t.ProgressPercent)
		}
	}
	return nil
}

func (e *Engine) reportImportError(err error) {
	log.Printf("WARNING: snapshot import rejected: %v", err)
	e.mu.Lock()
	e.recordErrorLocked(ErrCodeImportParse, err)
	e.mu.Unlock()
}
