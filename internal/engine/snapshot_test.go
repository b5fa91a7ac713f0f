package engine

import (
	"strings"
	"testing"
	"time"

	"github.com/nlowe/devpulse/internal/modelperf"
	"github.com/nlowe/devpulse/internal/task"
)

func TestSnapshot_RoundTrip(t *testing.T) {
	e := newTestEngine()

	e.SwitchModel("gpt-x")
	done := e.StartTask(task.Descriptor{Label: "build", Priority: task.PriorityHigh})
	e.CompleteTask(done, true, "artifact.tar")
	failed := e.StartTask(task.Descriptor{Label: "test"})
	e.CompleteTask(failed, false, "3 failures")
	e.StartTask(task.Descriptor{Label: "deploy", Metadata: map[string]string{"env": "staging"}})
	e.RecordModelRequest("gpt-x", 1000, true, &modelperf.TokenUsage{Input: 10, Output: 20, Total: 30})
	e.RecordModelRequest("gpt-x", 3000, false, nil)
	e.sampler.SampleOnce(time.Now())
	e.sampler.SampleOnce(time.Now().Add(time.Second))

	exported, err := e.ExportSnapshot()
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if !strings.Contains(exported, `"version"`) || !strings.Contains(exported, `"exportedAt"`) {
		t.Errorf("snapshot missing self-describing fields")
	}

	fresh := newTestEngine()
	if !fresh.ImportSnapshot(exported) {
		t.Fatalf("import failed: %+v", fresh.LastError())
	}

	want := e.View()
	got := fresh.View()

	if got.Session.SessionID != want.Session.SessionID {
		t.Errorf("session id mismatch: %q vs %q", got.Session.SessionID, want.Session.SessionID)
	}
	if got.Session.TotalTasks != want.Session.TotalTasks {
		t.Errorf("task count mismatch: %d vs %d", got.Session.TotalTasks, want.Session.TotalTasks)
	}
	if got.Session.CompletedTasks != want.Session.CompletedTasks {
		t.Errorf("completed count mismatch: %d vs %d", got.Session.CompletedTasks, want.Session.CompletedTasks)
	}
	if got.Session.ErrorRate != want.Session.ErrorRate {
		t.Errorf("error rate mismatch: %f vs %f", got.Session.ErrorRate, want.Session.ErrorRate)
	}
	if got.CurrentModel != "gpt-x" {
		t.Errorf("current model not restored: %q", got.CurrentModel)
	}

	wantModel := want.Models["gpt-x"]
	gotModel := got.Models["gpt-x"]
	if gotModel != wantModel {
		t.Errorf("model metrics mismatch:\nwant %+v\ngot  %+v", wantModel, gotModel)
	}

	if len(got.ProgressHistory) != len(want.ProgressHistory) {
		t.Errorf("progress history length mismatch: %d vs %d", len(got.ProgressHistory), len(want.ProgressHistory))
	}
	if len(got.PerformanceHistory) != len(want.PerformanceHistory) {
		t.Errorf("performance history length mismatch: %d vs %d", len(got.PerformanceHistory), len(want.PerformanceHistory))
	}

	// Tasks keep ids, order, statuses, and completion stamps.
	for i := range want.Tasks {
		if got.Tasks[i].ID != want.Tasks[i].ID {
			t.Errorf("task %d id mismatch: %q vs %q", i, got.Tasks[i].ID, want.Tasks[i].ID)
		}
		if got.Tasks[i].Status != want.Tasks[i].Status {
			t.Errorf("task %d status mismatch: %q vs %q", i, got.Tasks[i].Status, want.Tasks[i].Status)
		}
	}
}

func TestSnapshot_ImportMalformedJSON(t *testing.T) {
	e := newTestEngine()
	id := e.StartTask(task.Descriptor{Label: "precious"})

	if e.ImportSnapshot("{ not json") {
		t.Fatalf("expected malformed import to fail")
	}

	v := e.View()
	if v.LastError == nil || v.LastError.Code != ErrCodeImportParse {
		t.Errorf("expected import_parse error on view, got %+v", v.LastError)
	}
	// Existing state untouched.
	if v.Session.TotalTasks != 1 || v.Tasks[0].ID != id {
		t.Errorf("failed import altered state: %+v", v.Session)
	}
	// Engine stays usable.
	if err := e.CompleteTask(id, true, ""); err != nil {
		t.Errorf("engine unusable after failed import: %v", err)
	}
}

func TestSnapshot_ImportRejectsInvalidDocuments(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"wrong version", `{"version": 99, "session": {"id": "s", "startTime": "2026-01-02T10:00:00Z"}}`},
		{"missing session id", `{"version": 1, "session": {"id": "", "startTime": "2026-01-02T10:00:00Z"}}`},
		{"missing start time", `{"version": 1, "session": {"id": "s"}}`},
		{"unknown task status", `{"version": 1, "session": {"id": "s", "startTime": "2026-01-02T10:00:00Z"}, "tasks": [{"id": "t1", "status": "exploded"}]}`},
		{"progress out of range", `{"version": 1, "session": {"id": "s", "startTime": "2026-01-02T10:00:00Z"}, "tasks": [{"id": "t1", "status": "pending", "progressPercent": 250}]}`},
		{"task without id", `{"version": 1, "session": {"id": "s", "startTime": "2026-01-02T10:00:00Z"}, "tasks": [{"id": "", "status": "pending"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine()
			before := e.View().Session.SessionID

			if e.ImportSnapshot(tt.data) {
				t.Fatalf("expected import to be rejected")
			}
			if got := e.View(); got.Session.SessionID != before {
				t.Errorf("rejected import changed session: %q -> %q", before, got.Session.SessionID)
			}
			if le := e.LastError(); le == nil || le.Code != ErrCodeImportParse {
				t.Errorf("expected import_parse error, got %+v", le)
			}
		})
	}
}

func TestSnapshot_ImportClearsPriorError(t *testing.T) {
	e := newTestEngine()
	e.UpdateTask("task-0-missing", task.Fields{}) // seed LastError

	donor := newTestEngine()
	exported, err := donor.ExportSnapshot()
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}

	if !e.ImportSnapshot(exported) {
		t.Fatalf("import failed: %+v", e.LastError())
	}
	if le := e.LastError(); le != nil {
		t.Errorf("expected error cleared by successful import, got %+v", le)
	}
}
