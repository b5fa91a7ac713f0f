// Package history turns live engine state into bounded time-series data
// for charts. A single ticker goroutine samples the derived metrics into
// two ring buffers; each tick is synchronous, so ticks never overlap and
// stopping the sampler has no in-flight work to unwind.
package history

import (
	"sync"
	"time"

	"github.com/nlowe/devpulse/internal/ring"
)

// DefaultRetention is the fallback number of points each history buffer
// keeps when the configured retention is not positive.
const DefaultRetention = 120

// SampleFunc produces one point for each history series at the given
// instant. The engine wires this to its derived-metrics computation.
type SampleFunc func(now time.Time) (ProgressPoint, PerformancePoint)

// Sampler appends periodic snapshots to the progress and performance
// history buffers. All methods are safe for concurrent use.
type Sampler struct {
	mu          sync.Mutex
	interval    time.Duration
	sampleFn    SampleFunc
	progress    *ring.Buffer[ProgressPoint]
	performance *ring.Buffer[PerformancePoint]

	ticker *time.Ticker
	stop   chan struct{}
	done   chan struct{}
}

// NewSampler creates a stopped Sampler. retention values that are not
// positive fall back to DefaultRetention.
func NewSampler(interval time.Duration, progressRetention, performanceRetention int, fn SampleFunc) *Sampler {
	if progressRetention < 1 {
		progressRetention = DefaultRetention
	}
	if performanceRetention < 1 {
		performanceRetention = DefaultRetention
	}
	return &Sampler{
		interval:    interval,
		sampleFn:    fn,
		progress:    ring.New[ProgressPoint](progressRetention),
		performance: ring.New[PerformancePoint](performanceRetention),
	}
}

// Start launches the ticker goroutine. Starting an already running
// sampler is a no-op.
func (s *Sampler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.interval)
	stopCh := make(chan struct{})
	doneCh := make(chan struct{})
	s.stop = stopCh
	s.done = doneCh
	ticker := s.ticker

	go func() {
		defer close(doneCh)
		for {
			select {
			case <-stopCh:
				return
			case now := <-ticker.C:
				s.SampleOnce(now)
			}
		}
	}()
}

// Stop halts the ticker goroutine and waits for it to exit. Stopping a
// sampler that is not running is a no-op.
func (s *Sampler) Stop() {
	s.mu.Lock()
	if s.ticker == nil {
		s.mu.Unlock()
		return
	}
	ticker := s.ticker
	stopCh := s.stop
	doneCh := s.done
	s.ticker = nil
	s.stop = nil
	s.done = nil
	s.mu.Unlock()

	ticker.Stop()
	close(stopCh)
	<-doneCh
}

// SampleOnce appends one point to each history buffer using the sample
// function. Exposed so ticks can be driven deterministically in tests.
func (s *Sampler) SampleOnce(now time.Time) {
	pp, perf := s.sampleFn(now)
	s.progress.Add(pp)
	s.performance.Add(perf)
}

// ProgressHistory returns the progress points, oldest first.
func (s *Sampler) ProgressHistory() []ProgressPoint {
	return s.progress.List()
}

// PerformanceHistory returns the performance points, oldest first.
func (s *Sampler) PerformanceHistory() []PerformancePoint {
	return s.performance.List()
}

// Reset clears both history buffers. The sampler keeps running if it
// was running.
func (s *Sampler) Reset() {
	s.progress.Reset()
	s.performance.Reset()
}

// Restore replaces the buffer contents with the given series, keeping
// only the most recent entries that fit each retention.
func (s *Sampler) Restore(progress []ProgressPoint, performance []PerformancePoint) {
	s.progress.Reset()
	for _, p := range tail(progress, s.progress.Cap()) {
		s.progress.Add(p)
	}
	s.performance.Reset()
	for _, p := range tail(performance, s.performance.Cap()) {
		s.performance.Add(p)
	}
}

func tail[T any](points []T, n int) []T {
	if len(points) <= n {
		return points
	}
	return points[len(points)-n:]
}
