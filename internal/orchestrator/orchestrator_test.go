package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/oddsflow/collector/internal/breaker"
	"github.com/oddsflow/collector/internal/model"
	"github.com/oddsflow/collector/internal/retry"
)

// recordingMonitor captures health checks for assertions
type recordingMonitor struct {
	mu     sync.Mutex
	checks []model.HealthCheck
}

func (m *recordingMonitor) RecordCheck(check model.HealthCheck) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks = append(m.checks, check)
}

func (m *recordingMonitor) all() []model.HealthCheck {
	m.mu.Lock()
	defer m.mu.Unlock()
	checks := make([]model.HealthCheck, len(m.checks))
	copy(checks, m.checks)
	return checks
}

func newTestOrchestrator(t *testing.T, maxConcurrent int) (*Orchestrator, *recordingMonitor) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	registry := breaker.NewRegistry(breaker.Config{FailureThreshold: 100}, logger)
	executor := retry.NewExecutor(registry, &retry.ExponentialBackoff{
		InitialDelay: time.Millisecond,
		Multiplier:   2,
	}, true, logger)

	mon := &recordingMonitor{}
	orch, err := New(executor, mon, Config{MaxConcurrentTasks: maxConcurrent}, logger)
	require.NoError(t, err)
	return orch, mon
}

func staticFetcher(payload any) model.Fetcher {
	return model.FetcherFunc(func(ctx context.Context) (any, error) {
		return payload, nil
	})
}

func newTask(source string, fetcher model.Fetcher) *model.Task {
	return &model.Task{
		Source:     source,
		Fetcher:    fetcher,
		Timeout:    time.Second,
		MaxRetries: 0,
	}
}

func TestOrchestrator_ScheduleValidation(t *testing.T) {
	orch, _ := newTestOrchestrator(t, 2)

	tests := []struct {
		name string
		task *model.Task
	}{
		{"nil task", nil},
		{"empty source", &model.Task{Fetcher: staticFetcher(nil), Timeout: time.Second}},
		{"nil fetcher", &model.Task{Source: "espn", Timeout: time.Second}},
		{"zero timeout", &model.Task{Source: "espn", Fetcher: staticFetcher(nil)}},
		{"negative retries", &model.Task{Source: "espn", Fetcher: staticFetcher(nil), Timeout: time.Second, MaxRetries: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := orch.Schedule(tt.task)
			require.Error(t, err)
			var cfgErr *ConfigurationError
			assert.ErrorAs(t, err, &cfgErr)
		})
	}
}

func TestOrchestrator_ConstructorValidation(t *testing.T) {
	logger := zaptest.NewLogger(t)

	_, err := New(nil, nil, Config{}, logger)
	require.Error(t, err)

	registry := breaker.NewRegistry(breaker.Config{}, logger)
	executor := retry.NewExecutor(registry, nil, true, logger)

	_, err = New(executor, nil, Config{MaxConcurrentTasks: -1}, logger)
	require.Error(t, err)

	orch, err := New(executor, nil, Config{}, logger)
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxConcurrentTasks, orch.config.MaxConcurrentTasks)
}

func TestOrchestrator_ConcurrencyCap(t *testing.T) {
	const limit = 3
	orch, _ := newTestOrchestrator(t, limit)

	var running, peak int32
	for i := 0; i < 12; i++ {
		task := newTask("source", model.FetcherFunc(func(ctx context.Context) (any, error) {
			n := atomic.AddInt32(&running, 1)
			for {
				old := atomic.LoadInt32(&peak)
				if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			atomic.AddInt32(&running, -1)
			return nil, nil
		}))
		require.NoError(t, orch.Schedule(task))
	}

	report := orch.Run(context.Background())

	assert.Equal(t, 12, report.TotalSources)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(limit))
}

func TestOrchestrator_PriorityOrderStable(t *testing.T) {
	orch, _ := newTestOrchestrator(t, 1)

	require.NoError(t, orch.Schedule(&model.Task{Source: "c", Fetcher: staticFetcher(nil), Priority: 2, Timeout: time.Second}))
	require.NoError(t, orch.Schedule(&model.Task{Source: "a", Fetcher: staticFetcher(nil), Priority: 1, Timeout: time.Second}))
	require.NoError(t, orch.Schedule(&model.Task{Source: "b", Fetcher: staticFetcher(nil), Priority: 1, Timeout: time.Second}))

	report := orch.Run(context.Background())

	require.Len(t, report.Tasks, 3)
	// Ascending priority, insertion order on ties.
	assert.Equal(t, "a", report.Tasks[0].Source)
	assert.Equal(t, "b", report.Tasks[1].Source)
	assert.Equal(t, "c", report.Tasks[2].Source)
}

func TestOrchestrator_ValidatorDowngradesToDegraded(t *testing.T) {
	orch, mon := newTestOrchestrator(t, 2)

	task := newTask("espn", staticFetcher(map[string]any{"rows": 1}))
	task.Validator = model.ValidatorFunc(func(payload any) model.Verdict {
		return model.Verdict{Acceptable: false, Score: 0.4, Reason: "too few rows"}
	})
	require.NoError(t, orch.Schedule(task))

	report := orch.Run(context.Background())

	require.Len(t, report.Tasks, 1)
	assert.Equal(t, model.TaskStatusDegraded, report.Tasks[0].Status)
	assert.Equal(t, "too few rows", report.Tasks[0].Error)
	assert.Equal(t, 1, report.DegradedSources)
	assert.Equal(t, 0, report.FailedSources)

	// Degraded still counts as a successful fetch for health purposes.
	checks := mon.all()
	require.Len(t, checks, 1)
	assert.True(t, checks[0].Success)
}

func TestOrchestrator_PanicIsolatedToTask(t *testing.T) {
	orch, mon := newTestOrchestrator(t, 2)

	require.NoError(t, orch.Schedule(newTask("bad", model.FetcherFunc(func(ctx context.Context) (any, error) {
		panic("boom")
	}))))
	require.NoError(t, orch.Schedule(newTask("good", staticFetcher("ok"))))

	report := orch.Run(context.Background())

	assert.Equal(t, 1, report.SuccessfulSources)
	assert.Equal(t, 1, report.FailedSources)

	var badTask model.TaskSummary
	for _, ts := range report.Tasks {
		if ts.Source == "bad" {
			badTask = ts
		}
	}
	assert.Equal(t, model.TaskStatusFailed, badTask.Status)
	assert.Contains(t, badTask.Error, "panicked")

	// Health tracking is never skipped, even on the panic path.
	assert.Len(t, mon.all(), 2)
}

func TestOrchestrator_EndToEndScenario(t *testing.T) {
	orch, _ := newTestOrchestrator(t, 2)

	// A succeeds immediately.
	require.NoError(t, orch.Schedule(newTask("a", staticFetcher("payload-a"))))

	// B fails twice then succeeds.
	var bCalls int32
	taskB := newTask("b", model.FetcherFunc(func(ctx context.Context) (any, error) {
		if atomic.AddInt32(&bCalls, 1) <= 2 {
			return nil, errors.New("transient")
		}
		return "payload-b", nil
	}))
	taskB.MaxRetries = 3
	require.NoError(t, orch.Schedule(taskB))

	// C fails until retries are exhausted.
	taskC := newTask("c", model.FetcherFunc(func(ctx context.Context) (any, error) {
		return nil, errors.New("permanently down")
	}))
	taskC.MaxRetries = 2
	require.NoError(t, orch.Schedule(taskC))

	report := orch.Run(context.Background())

	assert.Equal(t, 3, report.TotalSources)
	assert.Equal(t, 2, report.SuccessfulSources)
	assert.Equal(t, 1, report.FailedSources)

	byName := make(map[string]model.TaskSummary)
	for _, ts := range report.Tasks {
		byName[ts.Source] = ts
	}

	assert.Equal(t, model.TaskStatusCompleted, byName["a"].Status)
	assert.Equal(t, 2, byName["b"].RetryCount)
	assert.Equal(t, model.TaskStatusFailed, byName["c"].Status)
	assert.Contains(t, byName["c"].Error, "permanently down")
}

func TestOrchestrator_RunWithAllFailuresStillReturns(t *testing.T) {
	orch, _ := newTestOrchestrator(t, 2)

	for _, source := range []string{"x", "y", "z"} {
		require.NoError(t, orch.Schedule(newTask(source, model.FetcherFunc(func(ctx context.Context) (any, error) {
			return nil, errors.New("down")
		}))))
	}

	report := orch.Run(context.Background())

	assert.Equal(t, 3, report.FailedSources)
	assert.Equal(t, 0.0, report.SuccessRate)
	assert.False(t, report.Healthy)
}

func TestOrchestrator_PendingClearedBetweenRuns(t *testing.T) {
	orch, _ := newTestOrchestrator(t, 2)

	require.NoError(t, orch.Schedule(newTask("a", staticFetcher(nil))))
	first := orch.Run(context.Background())
	require.Equal(t, 1, first.TotalSources)

	second := orch.Run(context.Background())
	assert.Equal(t, 0, second.TotalSources)
}
