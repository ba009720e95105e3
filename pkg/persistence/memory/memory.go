// Package memory provides an in-process persistence implementation backed by go-memdb.
// Reads run inside a single read transaction, so every list or stats call sees one snapshot.
package memory

import (
	"context"
	"fmt"

	"github.com/dukex/runledger/pkg/persistence"
	"github.com/hashicorp/go-memdb"
)

const (
	workflowsTable     = "workflows"
	executionsTable    = "executions"
	executionLogsTable = "execution_logs"

	idIndex            = "id"
	executionIDIndex   = "execution_id"
	executionNodeIndex = "execution_node"
)

// Persistence implements persistence.Persistence in memory.
type Persistence struct {
	db               *memdb.MemDB
	workflowRepo     *WorkflowRepository
	executionRepo    *ExecutionRepository
	executionLogRepo *ExecutionLogRepository
}

// NewPersistence creates an empty in-memory store.
func NewPersistence() (*Persistence, error) {
	db, err := memdb.NewMemDB(schema())
	if err != nil {
		return nil, fmt.Errorf("failed to create memdb: %w", err)
	}

	return &Persistence{
		db:               db,
		workflowRepo:     &WorkflowRepository{db: db},
		executionRepo:    &ExecutionRepository{db: db},
		executionLogRepo: &ExecutionLogRepository{db: db},
	}, nil
}

func (p *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return p.workflowRepo
}

func (p *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return p.executionRepo
}

func (p *Persistence) ExecutionLogRepository() persistence.ExecutionLogRepository {
	return p.executionLogRepo
}

// HealthCheck always succeeds for the in-memory store.
func (p *Persistence) HealthCheck(_ context.Context) error {
	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	return nil
}

func schema() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			workflowsTable: {
				Name: workflowsTable,
				Indexes: map[string]*memdb.IndexSchema{
					idIndex: {
						Name:    idIndex,
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "ID"},
					},
				},
			},
			executionsTable: {
				Name: executionsTable,
				Indexes: map[string]*memdb.IndexSchema{
					idIndex: {
						Name:    idIndex,
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "ID"},
					},
					"workflow_id": {
						Name:    "workflow_id",
						Indexer: &memdb.StringFieldIndex{Field: "WorkflowID"},
					},
				},
			},
			executionLogsTable: {
				Name: executionLogsTable,
				Indexes: map[string]*memdb.IndexSchema{
					idIndex: {
						Name:    idIndex,
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "ID"},
					},
					executionIDIndex: {
						Name:    executionIDIndex,
						Indexer: &memdb.StringFieldIndex{Field: "ExecutionID"},
					},
					executionNodeIndex: {
						Name:   executionNodeIndex,
						Unique: true,
						Indexer: &memdb.CompoundIndex{
							Indexes: []memdb.Indexer{
								&memdb.StringFieldIndex{Field: "ExecutionID"},
								&memdb.StringFieldIndex{Field: "NodeID"},
							},
						},
					},
				},
			},
		},
	}
}
