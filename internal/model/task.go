package model

import (
	"time"
)

// TaskStatus represents the current status of a collection task
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusDegraded  TaskStatus = "degraded"
)

// Task represents one scheduled fetch-and-validate unit of work against a source.
// Lower priority values run first. A Task belongs to the orchestrator run that
// scheduled it and is discarded once the run's report is assembled.
type Task struct {
	Source      string        `json:"source"`
	Description string        `json:"description"`
	Fetcher     Fetcher       `json:"-"`
	Validator   Validator     `json:"-"`
	Priority    int           `json:"priority"`
	Timeout     time.Duration `json:"timeout"`
	MaxRetries  int           `json:"max_retries"`

	// Mutable execution state, owned by the orchestrator.
	Status     TaskStatus `json:"status"`
	Result     any        `json:"-"`
	Error      string     `json:"error,omitempty"`
	RetryCount int        `json:"retry_count"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Duration returns the wall-clock execution time of the task, or zero
// if the task has not both started and completed.
func (t *Task) Duration() time.Duration {
	if t.StartedAt == nil || t.CompletedAt == nil {
		return 0
	}
	return t.CompletedAt.Sub(*t.StartedAt)
}
