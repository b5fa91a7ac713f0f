// Package metrics provides Prometheus instruments mirroring engine
// activity, for embedders that scrape the tracker alongside the rest of
// their stack.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TasksStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devpulse_tasks_started_total",
			Help: "Total number of tasks started",
		},
		[]string{"priority"},
	)
	TasksCompleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "devpulse_tasks_completed_total",
			Help: "Total number of tasks completed successfully",
		},
	)
	TasksFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "devpulse_tasks_failed_total",
			Help: "Total number of tasks that ended in error",
		},
	)
	TasksCancelled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "devpulse_tasks_cancelled_total",
			Help: "Total number of tasks cancelled",
		},
	)
	TaskDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "devpulse_task_duration_seconds",
			Help:    "Task duration from start to terminal state in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
	)
	ModelRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devpulse_model_requests_total",
			Help: "Total number of recorded model requests",
		},
		[]string{"model", "outcome"},
	)
	ModelLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "devpulse_model_latency_seconds",
			Help:    "Model request latency in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"model"},
	)
	ActiveTasks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "devpulse_active_tasks",
			Help: "Current number of pending or in-progress tasks",
		},
	)
	OverallProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "devpulse_overall_progress_percent",
			Help: "Current overall session progress, 0-100",
		},
	)
	SessionErrorRate = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "devpulse_session_error_rate_percent",
			Help: "Current session error rate, 0-100",
		},
	)
	Throughput = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "devpulse_throughput_per_minute",
			Help: "Terminal tasks per elapsed session minute",
		},
	)
	SessionsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "devpulse_sessions_started_total",
			Help: "Total number of tracking sessions started",
		},
	)
)

func RecordTaskStarted(priority string) {
	TasksStarted.WithLabelValues(priority).Inc()
}

func RecordTaskCompleted(duration time.Duration) {
	TasksCompleted.Inc()
	TaskDuration.Observe(duration.Seconds())
}

func RecordTaskFailed(duration time.Duration) {
	TasksFailed.Inc()
	TaskDuration.Observe(duration.Seconds())
}

func RecordTaskCancelled(duration time.Duration) {
	TasksCancelled.Inc()
	TaskDuration.Observe(duration.Seconds())
}

func RecordModelRequest(model string, latency time.Duration, success bool) {
	outcome := "success"
	if !success {
		outcome = "error"
	}
	ModelRequests.WithLabelValues(model, outcome).Inc()
	ModelLatency.WithLabelValues(model).Observe(latency.Seconds())
}

func RecordSessionStarted() {
	SessionsStarted.Inc()
}

// UpdateProgressGauges refreshes the point-in-time gauges. Callers
// typically drive this from a periodic collector loop.
func UpdateProgressGauges(activeTasks int, overallProgress, errorRate, throughputPerMinute float64) {
	ActiveTasks.Set(float64(activeTasks))
	OverallProgress.Set(overallProgress)
	SessionErrorRate.Set(errorRate)
	Throughput.Set(throughputPerMinute)
}
