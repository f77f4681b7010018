package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func settledTask(source string, status TaskStatus, retries int, errMsg string) *Task {
	started := time.Now().Add(-2 * time.Second)
	completed := started.Add(150 * time.Millisecond)
	return &Task{
		Source:      source,
		Status:      status,
		Error:       errMsg,
		RetryCount:  retries,
		StartedAt:   &started,
		CompletedAt: &completed,
	}
}

func TestNewCollectionReport_Counts(t *testing.T) {
	tasks := []*Task{
		settledTask("a", TaskStatusCompleted, 0, ""),
		settledTask("b", TaskStatusCompleted, 2, ""),
		settledTask("c", TaskStatusDegraded, 0, "low score"),
		settledTask("d", TaskStatusFailed, 3, "down"),
	}

	started := time.Now().Add(-time.Minute)
	completed := time.Now()
	report := NewCollectionReport("run-1", started, completed, tasks)

	assert.Equal(t, 4, report.TotalSources)
	assert.Equal(t, 2, report.SuccessfulSources)
	assert.Equal(t, 1, report.DegradedSources)
	assert.Equal(t, 1, report.FailedSources)

	// Degraded counts toward the success rate.
	assert.InDelta(t, 0.75, report.SuccessRate, 1e-9)
	assert.False(t, report.Healthy)

	require.Len(t, report.Tasks, 4)
	assert.Equal(t, "a", report.Tasks[0].Source)
	assert.Equal(t, 2, report.Tasks[1].RetryCount)
	assert.Equal(t, "low score", report.Tasks[2].Error)
	assert.Equal(t, int64(150), report.Tasks[0].DurationMS)
}

func TestNewCollectionReport_HealthyThreshold(t *testing.T) {
	tests := []struct {
		name    string
		tasks   []*Task
		healthy bool
	}{
		{
			"all completed",
			[]*Task{
				settledTask("a", TaskStatusCompleted, 0, ""),
				settledTask("b", TaskStatusCompleted, 0, ""),
			},
			true,
		},
		{
			"four of five is healthy",
			[]*Task{
				settledTask("a", TaskStatusCompleted, 0, ""),
				settledTask("b", TaskStatusCompleted, 0, ""),
				settledTask("c", TaskStatusCompleted, 0, ""),
				settledTask("d", TaskStatusDegraded, 0, ""),
				settledTask("e", TaskStatusFailed, 0, "down"),
			},
			true,
		},
		{
			"half failed is unhealthy",
			[]*Task{
				settledTask("a", TaskStatusCompleted, 0, ""),
				settledTask("b", TaskStatusFailed, 0, "down"),
			},
			false,
		},
		{
			"empty run is not healthy",
			nil,
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := NewCollectionReport("run", time.Now(), time.Now(), tt.tasks)
			assert.Equal(t, tt.healthy, report.Healthy)
		})
	}
}

func TestCollectionReport_JSONRoundTrip(t *testing.T) {
	report := NewCollectionReport("run-42", time.Now().Add(-time.Minute), time.Now(), []*Task{
		settledTask("espn", TaskStatusCompleted, 1, ""),
		settledTask("weather", TaskStatusFailed, 3, "timed out"),
	})

	data, err := json.Marshal(report)
	require.NoError(t, err)

	var decoded CollectionReport
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, report.RunID, decoded.RunID)
	assert.Equal(t, report.TotalSources, decoded.TotalSources)
	assert.Equal(t, report.SuccessfulSources, decoded.SuccessfulSources)
	assert.Equal(t, report.FailedSources, decoded.FailedSources)
	require.Len(t, decoded.Tasks, 2)
	assert.Equal(t, TaskStatusFailed, decoded.Tasks[1].Status)
	assert.Equal(t, "timed out", decoded.Tasks[1].Error)
}

func TestTask_Duration(t *testing.T) {
	task := &Task{Source: "espn"}
	assert.Equal(t, time.Duration(0), task.Duration())

	started := time.Now().Add(-time.Second)
	task.StartedAt = &started
	completed := started.Add(300 * time.Millisecond)
	task.CompletedAt = &completed
	assert.Equal(t, 300*time.Millisecond, task.Duration())
}

func TestHealthStatus_WorseThan(t *testing.T) {
	ordered := []HealthStatus{
		HealthStatusUnknown,
		HealthStatusHealthy,
		HealthStatusDegraded,
		HealthStatusUnhealthy,
		HealthStatusCritical,
	}

	for i := 1; i < len(ordered); i++ {
		assert.True(t, ordered[i].WorseThan(ordered[i-1]),
			"%s should be worse than %s", ordered[i], ordered[i-1])
		assert.False(t, ordered[i-1].WorseThan(ordered[i]))
	}
}
