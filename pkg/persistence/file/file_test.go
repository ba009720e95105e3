package file

import (
	"context"
	"testing"

	"github.com/dukex/runledger/pkg/models"
	"github.com/dukex/runledger/pkg/persistence"
	"github.com/dukex/runledger/pkg/persistence/persistencetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilePersistence(t *testing.T) {
	persistencetest.Run(t, func(t *testing.T) persistence.Persistence {
		return NewPersistence("file://" + t.TempDir())
	})
}

func TestFilePersistence_RejectsPathTraversal(t *testing.T) {
	p := NewPersistence(t.TempDir())
	ctx := context.Background()

	_, err := p.ExecutionRepository().GetByID(ctx, "../etc/passwd")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid characters")

	_, err = p.WorkflowRepository().GetByID(ctx, "a/b")
	require.Error(t, err)

	workflow := persistencetest.NewWorkflow("wf-1", "Order sync", "user-1")
	execution := persistencetest.NewExecution(workflow, models.TriggerTypeManual, persistencetest.Base)
	execution.ID = `..\x`
	require.Error(t, p.ExecutionRepository().Create(ctx, execution))
}

func TestFilePersistence_HealthCheck(t *testing.T) {
	ctx := context.Background()

	assert.NoError(t, NewPersistence(t.TempDir()).HealthCheck(ctx))
	assert.Error(t, NewPersistence("/does/not/exist").HealthCheck(ctx))
}

func TestFilePersistence_SurvivesReopen(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()

	workflow := persistencetest.NewWorkflow("wf-1", "Order sync", "user-1")
	execution := persistencetest.NewExecution(workflow, models.TriggerTypeManual, persistencetest.Base)

	require.NoError(t, NewPersistence(root).ExecutionRepository().Create(ctx, execution))

	reopened, err := NewPersistence(root).ExecutionRepository().GetByID(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, execution.WorkflowName, reopened.WorkflowName)
	assert.True(t, execution.StartedAt.Equal(reopened.StartedAt))
}
