// Package modelperf maintains per-model running statistics for AI model
// requests: request/error counts, incremental response-time mean, token
// usage sums, and latency extrema plus a p95 estimated from a bounded
// sample buffer.
package modelperf

import (
	"sort"
	"sync"

	"github.com/nlowe/devpulse/internal/ring"
)

// MaxLatencySamples bounds each model's latency sample buffer. The p95
// is always computed from this recency-biased sample, never from the
// full historical stream, so memory stays bounded per model.
const MaxLatencySamples = 1000

// TokenUsage holds cumulative token sums for one model.
type TokenUsage struct {
	Input  int64 `json:"input"`
	Output int64 `json:"output"`
	Total  int64 `json:"total"`
}

// Latency holds response-time statistics in milliseconds. P95 uses the
// nearest-rank method over a sorted snapshot of the sample buffer:
// index floor(n * 0.95). Interpolating methods would give slightly
// different values; nearest-rank is the convention here.
type Latency struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P95 float64 `json:"p95"`
}

// Metrics is the computed view of one model's performance. SuccessRate
// and Latency.Avg are always consistent with TotalRequests/ErrorCount
// and the sample buffer at the time of computation.
type Metrics struct {
	Model           string     `json:"model"`
	TotalRequests   int64      `json:"totalRequests"`
	ErrorCount      int64      `json:"errorCount"`
	SuccessRate     float64    `json:"successRate"` // 0-100
	ResponseTimeAvg float64    `json:"responseTimeAvg"`
	TokenUsage      TokenUsage `json:"tokenUsage"`
	Latency         Latency    `json:"latency"`
}

// Record is the serializable form of one model's state, including the
// latency samples needed to keep p95 consistent across a snapshot
// export/import round trip.
type Record struct {
	Metrics Metrics   `json:"metrics"`
	Samples []float64 `json:"latencySamples,omitempty"`
}

type modelState struct {
	metrics Metrics
	samples *ring.Buffer[float64]
}

// Aggregator is a thread-safe per-model statistics accumulator. Buckets
// are created lazily on first Record for a model id; an empty model id
// is accepted as a distinct bucket (validation is a caller concern).
type Aggregator struct {
	mu     sync.RWMutex
	models map[string]*modelState
}

// NewAggregator creates an empty Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		models: make(map[string]*modelState),
	}
}

func (a *Aggregator) getOrCreate(model string) *modelState {
	st, ok := a.models[model]
	if !ok {
		st = &modelState{
			metrics: Metrics{Model: model},
			samples: ring.New[float64](MaxLatencySamples),
		}
		a.models[model] = st
	}
	return st
}

// Record folds one completed model request into the model's statistics.
// It cannot fail: every input is a valid observation.
func (a *Aggregator) Record(model string, responseTimeMS float64, success bool, tokens *TokenUsage) {
	a.mu.Lock()
	defer a.mu.Unlock()

	st := a.getOrCreate(model)
	m := &st.metrics

	oldCount := m.TotalRequests
	m.TotalRequests++
	if !success {
		m.ErrorCount++
	}
	m.SuccessRate = float64(m.TotalRequests-m.ErrorCount) / float64(m.TotalRequests) * 100

	// Incremental mean: bounded memory for the average regardless of
	// request volume.
	m.ResponseTimeAvg = (m.ResponseTimeAvg*float64(oldCount) + responseTimeMS) / float64(m.TotalRequests)

	st.samples.Add(responseTimeMS)

	if oldCount == 0 || responseTimeMS < m.Latency.Min {
		m.Latency.Min = responseTimeMS
	}
	if responseTimeMS > m.Latency.Max {
		m.Latency.Max = responseTimeMS
	}
	m.Latency.Avg = m.ResponseTimeAvg
	m.Latency.P95 = p95(st.samples.List())

	if tokens != nil {
		m.TokenUsage.Input += tokens.Input
		m.TokenUsage.Output += tokens.Output
		m.TokenUsage.Total += tokens.Total
	}
}

// Get returns the metrics for a model and whether it exists.
func (a *Aggregator) Get(model string) (Metrics, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	st, ok := a.models[model]
	if !ok {
		return Metrics{}, false
	}
	return st.metrics, true
}

// Snapshot returns a copy of all per-model metrics keyed by model id.
func (a *Aggregator) Snapshot() map[string]Metrics {
	a.mu.RLock()
	defer a.mu.RUnlock()

	result := make(map[string]Metrics, len(a.models))
	for model, st := range a.models {
		result[model] = st.metrics
	}
	return result
}

// Export returns the full serializable state including latency samples.
func (a *Aggregator) Export() map[string]Record {
	a.mu.RLock()
	defer a.mu.RUnlock()

	result := make(map[string]Record, len(a.models))
	for model, st := range a.models {
		result[model] = Record{
			Metrics: st.metrics,
			Samples: st.samples.List(),
		}
	}
	return result
}

// Restore replaces the aggregator state with the given records. Sample
// slices longer than MaxLatencySamples keep only the most recent tail.
func (a *Aggregator) Restore(records map[string]Record) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.models = make(map[string]*modelState, len(records))
	for model, rec := range records {
		st := &modelState{
			metrics: rec.Metrics,
			samples: ring.New[float64](MaxLatencySamples),
		}
		st.metrics.Model = model
		samples := rec.Samples
		if len(samples) > MaxLatencySamples {
			samples = samples[len(samples)-MaxLatencySamples:]
		}
		for _, s := range samples {
			st.samples.Add(s)
		}
		a.models[model] = st
	}
}

// SampleCount returns the current latency sample buffer length for a
// model, 0 if the model is unknown.
func (a *Aggregator) SampleCount(model string) int {
	a.mu.RLock()
	defer a.mu.RUnlock()

	st, ok := a.models[model]
	if !ok {
		return 0
	}
	return st.samples.Len()
}

// Reset removes all model buckets.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.models = make(map[string]*modelState)
}

// p95 computes the 95th percentile of the given samples by nearest rank.
// Returns 0 for an empty sample set.
func p95(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)

	idx := int(0.95 * float64(len(sorted)))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
