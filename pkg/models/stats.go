package models

import "math"

// ExecutionStats is the rollup over a filtered set of executions.
type ExecutionStats struct {
	Total     int64 `json:"total"`
	Queued    int64 `json:"queued"`
	Pending   int64 `json:"pending"`
	Running   int64 `json:"running"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Cancelled int64 `json:"cancelled"`

	// SuccessRate is round(completed / (completed + failed) * 100), nil without any finished run.
	SuccessRate *int64 `json:"success_rate"`

	// AvgDurationMs averages COMPLETED runs only, nil when there are none.
	AvgDurationMs *int64 `json:"avg_duration_ms"`
}

// Add counts one execution with the given status.
func (s *ExecutionStats) Add(status ExecutionStatus) {
	s.Total++

	switch status {
	case ExecutionStatusQueued:
		s.Queued++
	case ExecutionStatusPending:
		s.Pending++
	case ExecutionStatusRunning:
		s.Running++
	case ExecutionStatusCompleted:
		s.Completed++
	case ExecutionStatusFailed:
		s.Failed++
	case ExecutionStatusCancelled:
		s.Cancelled++
	}
}

// ComputeExecutionStats rolls up an already-filtered slice of executions.
func ComputeExecutionStats(executions []*Execution) *ExecutionStats {
	stats := &ExecutionStats{}

	var (
		totalMs float64
		timed   int64
	)

	for _, execution := range executions {
		stats.Add(execution.Status)

		if execution.Status != ExecutionStatusCompleted {
			continue
		}

		if duration, ok := execution.Duration(); ok {
			totalMs += float64(duration.Milliseconds())
			timed++
		}
	}

	stats.SuccessRate = SuccessRate(stats.Completed, stats.Failed)
	stats.AvgDurationMs = AverageMs(totalMs, timed)

	return stats
}

// SuccessRate returns round(completed / (completed + failed) * 100) or nil.
func SuccessRate(completed, failed int64) *int64 {
	denominator := completed + failed
	if denominator == 0 {
		return nil
	}

	rate := int64(math.Round(float64(completed) / float64(denominator) * 100))

	return &rate
}

// AverageMs returns round(totalMs / count) or nil when count is zero.
func AverageMs(totalMs float64, count int64) *int64 {
	if count == 0 {
		return nil
	}

	avg := int64(math.Round(totalMs / float64(count)))

	return &avg
}
