package services_test

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/dukex/runledger/pkg/models"
	"github.com/dukex/runledger/pkg/persistence/memory"
	"github.com/dukex/runledger/pkg/services"
	"github.com/dukex/runledger/pkg/testutil"
	"github.com/dukex/runledger/pkg/workflow"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

// recordingDispatcher accepts every execution without running it.
type recordingDispatcher struct {
	mu         sync.Mutex
	executions []*models.Execution
}

func (d *recordingDispatcher) Dispatch(_ context.Context, execution *models.Execution) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.executions = append(d.executions, execution)

	return nil
}

func (d *recordingDispatcher) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.executions)
}

type fixture struct {
	store      *memory.Persistence
	dispatcher *recordingDispatcher
	executions *services.Executions
	workflows  *services.Workflows
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store, err := memory.NewPersistence()
	require.NoError(t, err)

	dispatcher := &recordingDispatcher{}
	launcher := workflow.NewLauncher(store, dispatcher, testLogger)
	validate := validator.New(validator.WithRequiredStructEnabled())

	return &fixture{
		store:      store,
		dispatcher: dispatcher,
		executions: services.NewExecutions(store, launcher, validate, testLogger),
		workflows:  services.NewWorkflows(store, launcher, validate, testLogger),
	}
}

func sampleWorkflow() *models.Workflow {
	return testutil.CreateTestWorkflow("wf-orders", "Order sync", "alice",
		testutil.CreateTestNode(testutil.WithID("start"), testutil.WithManualTrigger()),
		testutil.CreateTestNode(
			testutil.WithID("fetch"),
			testutil.WithName("Fetch"),
			testutil.WithType(models.NodeTypeHTTPRequest),
			testutil.WithVariableName("orders"),
			testutil.WithConfig(map[string]any{"url": "https://api.example.com/orders/{{trigger.id}}"}),
		),
	)
}

// seed stores an execution moved through the given statuses.
func (f *fixture) seed(t *testing.T, wf *models.Workflow, startedAt time.Time, path ...models.ExecutionStatus) *models.Execution {
	t.Helper()

	return testutil.SeedExecution(t, f.store, wf, startedAt, path...)
}

var (
	toCompleted = testutil.PathCompleted
	toFailed    = testutil.PathFailed
	toRunning   = testutil.PathRunning
)
