package model

import "time"

// HealthStatus represents the derived health of a source, computed
// from its rolling window of recent check outcomes.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
	HealthStatusCritical  HealthStatus = "critical"
	HealthStatusUnknown   HealthStatus = "unknown"
)

// severity ranks statuses for worst-of comparisons. Unknown ranks
// lowest: a source we know nothing about does not drag the system down.
var severity = map[HealthStatus]int{
	HealthStatusUnknown:   0,
	HealthStatusHealthy:   1,
	HealthStatusDegraded:  2,
	HealthStatusUnhealthy: 3,
	HealthStatusCritical:  4,
}

// WorseThan reports whether s is more severe than other
func (s HealthStatus) WorseThan(other HealthStatus) bool {
	return severity[s] > severity[other]
}

// HealthCheck is one immutable outcome record for a source, produced
// per task execution and consumed by the health monitor.
type HealthCheck struct {
	Source    string        `json:"source"`
	Timestamp time.Time     `json:"timestamp"`
	Success   bool          `json:"success"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`
}

// HealthMetrics is the derived per-source state recomputed on every
// ingested check. All duration figures are taken over the current
// rolling window.
type HealthMetrics struct {
	Source              string        `json:"source"`
	Status              HealthStatus  `json:"status"`
	TotalChecks         int           `json:"total_checks"`
	SuccessfulChecks    int           `json:"successful_checks"`
	FailedChecks        int           `json:"failed_checks"`
	SuccessRate         float64       `json:"success_rate"`
	AvgDuration         time.Duration `json:"avg_duration"`
	MinDuration         time.Duration `json:"min_duration"`
	MaxDuration         time.Duration `json:"max_duration"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	LastSuccess         *time.Time    `json:"last_success,omitempty"`
	LastFailure         *time.Time    `json:"last_failure,omitempty"`
}

// SourceHealth is the per-source slice of a health report
type SourceHealth struct {
	Status              HealthStatus `json:"status"`
	SuccessRate         float64      `json:"success_rate"`
	TotalChecks         int          `json:"total_checks"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	AvgDurationMS       int64        `json:"avg_duration_ms"`
	LastSuccess         *time.Time   `json:"last_success,omitempty"`
	LastFailure         *time.Time   `json:"last_failure,omitempty"`
}

// SystemStats is a point-in-time snapshot of host resource usage,
// attached to health reports for operator visibility.
type SystemStats struct {
	CPUUsage    float64   `json:"cpu_usage"`
	MemoryUsage float64   `json:"memory_usage"`
	CollectedAt time.Time `json:"collected_at"`
}

// HealthReport is the exposed snapshot of the whole monitor
type HealthReport struct {
	Timestamp    time.Time               `json:"timestamp"`
	SystemHealth HealthStatus            `json:"system_health"`
	Sources      map[string]SourceHealth `json:"sources"`
	RecentAlerts []Alert                 `json:"recent_alerts"`
	Resources    *SystemStats            `json:"resources,omitempty"`
}
