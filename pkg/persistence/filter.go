package persistence

import (
	"sort"
	"strings"

	"github.com/dukex/runledger/pkg/models"
)

// Matches reports whether execution falls inside the filter scope. Backends
// that filter in memory share it so they agree with the SQL backend.
func (f ExecutionFilter) Matches(execution *models.Execution) bool {
	if f.Status != "" && execution.Status != f.Status {
		return false
	}

	if f.TriggerType != "" && execution.TriggerType != f.TriggerType {
		return false
	}

	if f.WorkflowID != "" && execution.WorkflowID != f.WorkflowID {
		return false
	}

	if f.Owner != "" && execution.Owner != f.Owner {
		return false
	}

	if f.Search != "" && !strings.Contains(strings.ToLower(execution.WorkflowName), strings.ToLower(f.Search)) {
		return false
	}

	return true
}

// SortByStartedAtDesc orders executions newest first, breaking ties by id.
func SortByStartedAtDesc(executions []*models.Execution) {
	sort.SliceStable(executions, func(i, j int) bool {
		if executions[i].StartedAt.Equal(executions[j].StartedAt) {
			return executions[i].ID > executions[j].ID
		}

		return executions[i].StartedAt.After(executions[j].StartedAt)
	})
}

// Window applies an offset page window to an already sorted slice.
func Window(executions []*models.Execution, limit, offset int) []*models.Execution {
	if offset < 0 {
		offset = 0
	}

	if offset >= len(executions) {
		return []*models.Execution{}
	}

	end := len(executions)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}

	return executions[offset:end]
}
