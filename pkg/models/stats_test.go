package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeExecutionStats_MixedStatuses(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	var executions []*Execution

	for i := 1; i <= 7; i++ {
		completedAt := base.Add(time.Duration(i*100) * time.Millisecond)
		executions = append(executions, &Execution{
			ID:          "completed",
			Status:      ExecutionStatusCompleted,
			StartedAt:   base,
			CompletedAt: &completedAt,
		})
	}

	for range 2 {
		completedAt := base.Add(5 * time.Second)
		executions = append(executions, &Execution{
			Status:      ExecutionStatusFailed,
			StartedAt:   base,
			CompletedAt: &completedAt,
		})
	}

	executions = append(executions, &Execution{Status: ExecutionStatusRunning, StartedAt: base})

	stats := ComputeExecutionStats(executions)

	assert.Equal(t, int64(10), stats.Total)
	assert.Equal(t, int64(7), stats.Completed)
	assert.Equal(t, int64(2), stats.Failed)
	assert.Equal(t, int64(1), stats.Running)
	assert.Equal(t, int64(0), stats.Cancelled)

	require.NotNil(t, stats.SuccessRate)
	assert.Equal(t, int64(78), *stats.SuccessRate)

	require.NotNil(t, stats.AvgDurationMs)
	assert.Equal(t, int64(400), *stats.AvgDurationMs)
}

func TestComputeExecutionStats_Empty(t *testing.T) {
	stats := ComputeExecutionStats(nil)

	assert.Equal(t, int64(0), stats.Total)
	assert.Nil(t, stats.SuccessRate)
	assert.Nil(t, stats.AvgDurationMs)
}

func TestSuccessRate_OnlyCancelled(t *testing.T) {
	assert.Nil(t, SuccessRate(0, 0))

	rate := SuccessRate(1, 2)
	require.NotNil(t, rate)
	assert.Equal(t, int64(33), *rate)
}
