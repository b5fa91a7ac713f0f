package history

import "time"

// ProgressPoint is an immutable snapshot of task progress at an instant.
type ProgressPoint struct {
	Timestamp       time.Time `json:"timestamp"`
	OverallProgress float64   `json:"overallProgress"`
	ActiveTasks     int       `json:"activeTasks"`
	CompletedTasks  int       `json:"completedTasks"`
	ErrorRate       float64   `json:"errorRate"`
}

// PerformancePoint is an immutable snapshot of model performance at an
// instant, aggregated across all models.
type PerformancePoint struct {
	Timestamp           time.Time `json:"timestamp"`
	ThroughputPerMinute float64   `json:"throughputPerMinute"`
	AvgResponseTimeMS   float64   `json:"avgResponseTimeMs"`
	TotalRequests       int64     `json:"totalRequests"`
	ErrorCount          int64     `json:"errorCount"`
}
