package eventbus

import (
	"testing"
	"time"

	"github.com/dukex/runledger/pkg/events"
	"github.com/dukex/runledger/pkg/models"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusTracker_OutOfOrder(t *testing.T) {
	t1 := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Second)

	tracker := NewStatusTracker()

	assert.True(t, tracker.Apply(events.NodeStatus{NodeID: "n1", Status: models.ExecutionStatusCompleted, CreatedAt: t2}))
	assert.False(t, tracker.Apply(events.NodeStatus{NodeID: "n1", Status: models.ExecutionStatusRunning, CreatedAt: t1}))

	state, ok := tracker.Status("n1")
	require.True(t, ok)
	assert.Equal(t, models.ExecutionStatusCompleted, state.Status)
	assert.Equal(t, t2, state.UpdatedAt)
}

func TestStatusTracker_TieFavoursTerminal(t *testing.T) {
	at := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	tracker := NewStatusTracker()

	tracker.Apply(events.NodeStatus{NodeID: "n1", Status: models.ExecutionStatusFailed, CreatedAt: at})
	tracker.Apply(events.NodeStatus{NodeID: "n1", Status: models.ExecutionStatusRunning, CreatedAt: at})

	state, _ := tracker.Status("n1")
	assert.Equal(t, models.ExecutionStatusFailed, state.Status)
}

func TestStatusTracker_ApplyLogs(t *testing.T) {
	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	done := start.Add(2 * time.Second)

	tracker := NewStatusTracker()
	tracker.Apply(events.NodeStatus{NodeID: "fetch", Status: models.ExecutionStatusRunning, CreatedAt: start})

	rows := []*models.ExecutionLog{
		{NodeID: "fetch", Status: models.ExecutionStatusCompleted, StartedAt: start, CompletedAt: &done},
		{NodeID: "summarize", Status: models.ExecutionStatusRunning, StartedAt: done},
	}

	changed := tracker.ApplyLogs(rows)
	require.Len(t, changed, 2)
	assert.Equal(t, NodeState{NodeID: "fetch", Status: models.ExecutionStatusCompleted, UpdatedAt: done}, changed[0])
	assert.Equal(t, "summarize", changed[1].NodeID)

	snapshot := tracker.Snapshot()
	require.Len(t, snapshot, 2)
	assert.Equal(t, models.ExecutionStatusCompleted, snapshot["fetch"].Status)
	assert.Equal(t, models.ExecutionStatusRunning, snapshot["summarize"].Status)

	assert.Empty(t, tracker.ApplyLogs(rows))
}

func TestStatusTracker_OrderIndependent(t *testing.T) {
	properties := gopter.NewProperties(nil)

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	properties.Property("latest timestamp wins regardless of arrival order", prop.ForAll(
		func(offsets []int) bool {
			forward := NewStatusTracker()
			backward := NewStatusTracker()

			latest := -1
			for _, offset := range offsets {
				if offset > latest {
					latest = offset
				}
			}

			for i := range offsets {
				forward.Apply(events.NodeStatus{NodeID: "n", Status: models.ExecutionStatusRunning, CreatedAt: base.Add(time.Duration(offsets[i]) * time.Second)})
				backward.Apply(events.NodeStatus{NodeID: "n", Status: models.ExecutionStatusRunning, CreatedAt: base.Add(time.Duration(offsets[len(offsets)-1-i]) * time.Second)})
			}

			a, _ := forward.Status("n")
			b, _ := backward.Status("n")

			return a.UpdatedAt.Equal(b.UpdatedAt) && a.UpdatedAt.Equal(base.Add(time.Duration(latest)*time.Second))
		},
		gen.SliceOfN(8, gen.IntRange(0, 1000)),
	))

	properties.TestingRun(t)
}
