package model

import "time"

// healthySuccessRate is the minimum success rate for a run to be
// considered healthy overall.
const healthySuccessRate = 0.8

// TaskSummary is the per-task slice of a CollectionReport, serialized
// for JSON logging or display.
type TaskSummary struct {
	Source      string     `json:"source"`
	Description string     `json:"description"`
	Status      TaskStatus `json:"status"`
	Error       string     `json:"error,omitempty"`
	RetryCount  int        `json:"retry_count"`
	DurationMS  int64      `json:"duration_ms"`
}

// CollectionReport is the immutable summary of one orchestrator run.
// The task list preserves scheduling order, not completion order.
type CollectionReport struct {
	RunID             string        `json:"run_id"`
	StartedAt         time.Time     `json:"started_at"`
	CompletedAt       time.Time     `json:"completed_at"`
	Tasks             []TaskSummary `json:"tasks"`
	TotalSources      int           `json:"total_sources"`
	SuccessfulSources int           `json:"successful_sources"`
	FailedSources     int           `json:"failed_sources"`
	DegradedSources   int           `json:"degraded_sources"`
	SuccessRate       float64       `json:"success_rate"`
	Healthy           bool          `json:"healthy"`
}

// NewCollectionReport assembles a report from settled tasks. Degraded
// tasks count toward the success rate: the data arrived, only its
// quality is suspect.
func NewCollectionReport(runID string, startedAt, completedAt time.Time, tasks []*Task) *CollectionReport {
	report := &CollectionReport{
		RunID:        runID,
		StartedAt:    startedAt,
		CompletedAt:  completedAt,
		Tasks:        make([]TaskSummary, 0, len(tasks)),
		TotalSources: len(tasks),
	}

	for _, task := range tasks {
		switch task.Status {
		case TaskStatusCompleted:
			report.SuccessfulSources++
		case TaskStatusDegraded:
			report.DegradedSources++
		case TaskStatusFailed:
			report.FailedSources++
		}

		report.Tasks = append(report.Tasks, TaskSummary{
			Source:      task.Source,
			Description: task.Description,
			Status:      task.Status,
			Error:       task.Error,
			RetryCount:  task.RetryCount,
			DurationMS:  task.Duration().Milliseconds(),
		})
	}

	if report.TotalSources > 0 {
		report.SuccessRate = float64(report.SuccessfulSources+report.DegradedSources) / float64(report.TotalSources)
	}
	report.Healthy = report.TotalSources > 0 && report.SuccessRate >= healthySuccessRate

	return report
}
