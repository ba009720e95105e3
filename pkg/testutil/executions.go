package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/dukex/runledger/pkg/models"
	"github.com/dukex/runledger/pkg/persistence"
	"github.com/stretchr/testify/require"
)

// Status paths accepted by SeedExecution.
var (
	PathCompleted = []models.ExecutionStatus{models.ExecutionStatusPending, models.ExecutionStatusRunning, models.ExecutionStatusCompleted}
	PathFailed    = []models.ExecutionStatus{models.ExecutionStatusPending, models.ExecutionStatusRunning, models.ExecutionStatusFailed}
	PathRunning   = []models.ExecutionStatus{models.ExecutionStatusPending, models.ExecutionStatusRunning}
)

// SeedExecution stores a manual execution of wf and moves it through path,
// one second per transition. FAILED moves record a fixed error.
func SeedExecution(
	t *testing.T,
	store persistence.Persistence,
	wf *models.Workflow,
	startedAt time.Time,
	path ...models.ExecutionStatus,
) *models.Execution {
	t.Helper()

	ctx := context.Background()

	execution := models.NewExecution(wf, models.TriggerTypeManual, map[string]any{"id": "o-1"}, startedAt)
	require.NoError(t, store.ExecutionRepository().Create(ctx, execution))

	at := startedAt

	for _, status := range path {
		at = at.Add(time.Second)

		reason := ""
		if status == models.ExecutionStatusFailed {
			reason = "node Fetch (fetch) failed: boom"
		}

		updated, err := store.ExecutionRepository().Transition(ctx, execution.ID, status, reason, at)
		require.NoError(t, err)

		execution = updated
	}

	return execution
}
