package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/oddsflow/collector/internal/model"
	"github.com/oddsflow/collector/internal/retry"
)

// DefaultMaxConcurrentTasks bounds how many tasks run at once when no
// explicit limit is configured.
const DefaultMaxConcurrentTasks = 5

// HealthRecorder receives one outcome record per executed task. The
// health monitor implements it; the orchestrator only needs this slice
// of its surface.
type HealthRecorder interface {
	RecordCheck(check model.HealthCheck)
}

// Config holds orchestrator tunables
type Config struct {
	MaxConcurrentTasks int
}

// Orchestrator holds a collection of scheduled tasks and runs them
// concurrently under a global concurrency cap, producing one
// CollectionReport per run. The pending list is mutated only before
// Run snapshots it; task execution itself never touches it.
type Orchestrator struct {
	logger   *zap.Logger
	executor *retry.Executor
	monitor  HealthRecorder
	config   Config

	mu      sync.Mutex
	pending []*model.Task
}

// New creates an orchestrator. A zero MaxConcurrentTasks selects the
// default; a negative one is a configuration error.
func New(executor *retry.Executor, monitor HealthRecorder, config Config, logger *zap.Logger) (*Orchestrator, error) {
	if executor == nil {
		return nil, &ConfigurationError{Field: "executor", Reason: "must not be nil"}
	}
	if config.MaxConcurrentTasks < 0 {
		return nil, &ConfigurationError{Field: "max_concurrent_tasks", Reason: "must be positive"}
	}
	if config.MaxConcurrentTasks == 0 {
		config.MaxConcurrentTasks = DefaultMaxConcurrentTasks
	}

	return &Orchestrator{
		logger:   logger.Named("orchestrator"),
		executor: executor,
		monitor:  monitor,
		config:   config,
	}, nil
}

// Schedule appends a task to the pending list, preserving insertion
// order. It only validates; execution happens in Run.
func (o *Orchestrator) Schedule(task *model.Task) error {
	if task == nil {
		return &ConfigurationError{Field: "task", Reason: "must not be nil"}
	}
	if task.Source == "" {
		return &ConfigurationError{Field: "source", Reason: "must not be empty"}
	}
	if task.Fetcher == nil {
		return &ConfigurationError{Field: "fetcher", Reason: "must not be nil"}
	}
	if task.Timeout <= 0 {
		return &ConfigurationError{Field: "timeout", Reason: "must be positive"}
	}
	if task.MaxRetries < 0 {
		return &ConfigurationError{Field: "max_retries", Reason: "must not be negative"}
	}

	task.Status = model.TaskStatusPending

	o.mu.Lock()
	o.pending = append(o.pending, task)
	o.mu.Unlock()

	o.logger.Debug("Task scheduled",
		zap.String("source", task.Source),
		zap.Int("priority", task.Priority))

	return nil
}

// Run executes all pending tasks and assembles the run report. Tasks
// are sorted by ascending priority (stable, so ties keep insertion
// order) and executed concurrently up to the configured limit. Run
// always completes and returns a report even when every task fails;
// individual task failures never propagate to the caller.
func (o *Orchestrator) Run(ctx context.Context) *model.CollectionReport {
	o.mu.Lock()
	tasks := o.pending
	o.pending = nil
	o.mu.Unlock()

	runID := uuid.New().String()
	startedAt := time.Now()

	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].Priority < tasks[j].Priority
	})

	o.logger.Info("Collection run started",
		zap.String("run_id", runID),
		zap.Int("tasks", len(tasks)),
		zap.Int("max_concurrent", o.config.MaxConcurrentTasks))

	var g errgroup.Group
	g.SetLimit(o.config.MaxConcurrentTasks)

	for _, task := range tasks {
		task := task
		g.Go(func() error {
			o.executeTask(ctx, task)
			return nil
		})
	}
	g.Wait()

	report := model.NewCollectionReport(runID, startedAt, time.Now(), tasks)

	o.logger.Info("Collection run finished",
		zap.String("run_id", runID),
		zap.Int("successful", report.SuccessfulSources),
		zap.Int("degraded", report.DegradedSources),
		zap.Int("failed", report.FailedSources),
		zap.Float64("success_rate", report.SuccessRate))

	return report
}

// outcome is the tagged result of one task execution
type outcome struct {
	status  model.TaskStatus
	payload any
	reason  string
	err     error
}

// executeTask runs one task end to end: mark running, collect, settle
// the final status, and report the outcome to the health monitor.
// Health tracking is never skipped, whatever path the task took.
func (o *Orchestrator) executeTask(ctx context.Context, task *model.Task) {
	startedAt := time.Now()
	task.Status = model.TaskStatusRunning
	task.StartedAt = &startedAt

	out := o.collect(ctx, task)

	completedAt := time.Now()
	task.CompletedAt = &completedAt
	task.Status = out.status
	task.Result = out.payload

	switch out.status {
	case model.TaskStatusCompleted:
		o.logger.Info("Task completed",
			zap.String("source", task.Source),
			zap.Int("retries", task.RetryCount),
			zap.Duration("duration", task.Duration()))

	case model.TaskStatusDegraded:
		task.Error = out.reason
		o.logger.Warn("Task degraded by validator",
			zap.String("source", task.Source),
			zap.String("reason", out.reason))

	case model.TaskStatusFailed:
		task.Error = out.err.Error()
		o.logger.Error("Task failed",
			zap.String("source", task.Source),
			zap.Int("retries", task.RetryCount),
			zap.Error(out.err))
	}

	if o.monitor != nil {
		o.monitor.RecordCheck(model.HealthCheck{
			Source:    task.Source,
			Timestamp: completedAt,
			Success:   out.status != model.TaskStatusFailed,
			Duration:  completedAt.Sub(startedAt),
			Error:     task.Error,
		})
	}
}

// collect performs the fetch-and-validate phase and returns a tagged
// outcome. Panics from fetchers or validators are converted into a
// failed outcome so one task can never take down its siblings.
func (o *Orchestrator) collect(ctx context.Context, task *model.Task) (out outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = outcome{
				status: model.TaskStatusFailed,
				err:    fmt.Errorf("task panicked: %v", r),
			}
		}
	}()

	payload, retries, err := o.executor.Execute(ctx, task.Source, task.Fetcher, task.Timeout, task.MaxRetries)
	task.RetryCount = retries
	if err != nil {
		return outcome{status: model.TaskStatusFailed, err: err}
	}

	if task.Validator != nil {
		verdict := task.Validator.Validate(payload)
		if !verdict.Acceptable {
			reason := verdict.Reason
			if reason == "" {
				reason = fmt.Sprintf("payload failed quality check (score %.2f)", verdict.Score)
			}
			return outcome{status: model.TaskStatusDegraded, payload: payload, reason: reason}
		}
	}

	return outcome{status: model.TaskStatusCompleted, payload: payload}
}
