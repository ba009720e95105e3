package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dukex/runledger/pkg/models"
	"github.com/dukex/runledger/pkg/persistence"
	"github.com/google/uuid"
	"github.com/hashicorp/go-memdb"
)

// WorkflowRepository stores workflows in memdb.
type WorkflowRepository struct {
	db *memdb.MemDB
}

func (r *WorkflowRepository) GetAll(_ context.Context) ([]*models.Workflow, error) {
	txn := r.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(workflowsTable, idIndex)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	workflows := make([]*models.Workflow, 0)

	for obj := it.Next(); obj != nil; obj = it.Next() {
		workflow, err := cloneWorkflow(obj.(*models.Workflow))
		if err != nil {
			return nil, err
		}

		workflows = append(workflows, workflow)
	}

	return workflows, nil
}

func (r *WorkflowRepository) Save(_ context.Context, workflow *models.Workflow) error {
	now := time.Now().UTC()

	if workflow.ID == "" {
		workflow.ID = uuid.New().String()
	}

	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	stored, err := cloneWorkflow(workflow)
	if err != nil {
		return err
	}

	txn := r.db.Txn(true)
	defer txn.Abort()

	if err := txn.Insert(workflowsTable, stored); err != nil {
		return fmt.Errorf("failed to save workflow %s: %w", workflow.ID, err)
	}

	txn.Commit()

	return nil
}

func (r *WorkflowRepository) GetByID(_ context.Context, id string) (*models.Workflow, error) {
	txn := r.db.Txn(false)
	defer txn.Abort()

	obj, err := txn.First(workflowsTable, idIndex, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow %s: %w", id, err)
	}

	if obj == nil {
		return nil, persistence.ErrWorkflowNotFound
	}

	return cloneWorkflow(obj.(*models.Workflow))
}

func (r *WorkflowRepository) Delete(_ context.Context, id string) error {
	txn := r.db.Txn(true)
	defer txn.Abort()

	deleted, err := txn.DeleteAll(workflowsTable, idIndex, id)
	if err != nil {
		return fmt.Errorf("failed to delete workflow %s: %w", id, err)
	}

	if deleted == 0 {
		return persistence.ErrWorkflowNotFound
	}

	txn.Commit()

	return nil
}

// cloneWorkflow deep-copies through JSON so stored graphs never alias caller memory.
func cloneWorkflow(workflow *models.Workflow) (*models.Workflow, error) {
	data, err := json.Marshal(workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to copy workflow %s: %w", workflow.ID, err)
	}

	var clone models.Workflow
	if err := json.Unmarshal(data, &clone); err != nil {
		return nil, fmt.Errorf("failed to copy workflow %s: %w", workflow.ID, err)
	}

	return &clone, nil
}
