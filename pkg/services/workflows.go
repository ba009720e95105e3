package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukex/runledger/pkg/models"
	"github.com/dukex/runledger/pkg/persistence"
	"github.com/dukex/runledger/pkg/workflow"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"
)

// Workflows stores workflow definitions and starts executions for them.
type Workflows struct {
	store    persistence.Persistence
	launcher *workflow.Launcher
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

func NewWorkflows(store persistence.Persistence, launcher *workflow.Launcher, validate *validator.Validate, logger *slog.Logger) *Workflows {
	return &Workflows{
		store:    store,
		launcher: launcher,
		validate: validate,
		logger:   logger.With("module", "workflow_service"),
		now:      time.Now,
	}
}

// Create validates the definition and its graph and stores it owned by caller.
func (s *Workflows) Create(ctx context.Context, caller string, wf *models.Workflow) (*models.Workflow, error) {
	if wf == nil {
		return nil, ErrWorkflowNil
	}

	if strings.TrimSpace(wf.Name) == "" {
		return nil, ErrWorkflowNameRequired
	}

	if len(wf.Nodes) == 0 {
		return nil, ErrNodesRequired
	}

	if err := s.validate.Struct(wf); err != nil {
		return nil, NewValidationError("create_workflow", "invalid_workflow", err.Error(), ErrInvalidRequest)
	}

	if err := workflow.Validate(wf); err != nil {
		return nil, err
	}

	if wf.ID == "" {
		wf.ID = uuid.New().String()
	} else if err := s.claimID(ctx, caller, wf.ID); err != nil {
		return nil, err
	}

	now := s.now().UTC()

	if caller != "" {
		wf.Owner = caller
	}

	wf.CreatedAt = now
	wf.UpdatedAt = now

	if err := s.store.WorkflowRepository().Save(ctx, wf); err != nil {
		return nil, fmt.Errorf("failed to save workflow: %w", err)
	}

	s.logger.InfoContext(ctx, "Workflow created", "workflow_id", wf.ID, "nodes", len(wf.Nodes))

	return wf, nil
}

// claimID refuses a client-supplied ID that is already stored, so Create never
// replaces an existing definition.
func (s *Workflows) claimID(ctx context.Context, caller, id string) error {
	existing, err := s.store.WorkflowRepository().GetByID(ctx, id)
	if persistence.IsWorkflowNotFound(err) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to look up workflow: %w", err)
	}

	if caller != "" && existing.Owner != caller {
		return &ServiceError{Op: "create_workflow", Code: "unauthorized", Err: ErrUnauthorized}
	}

	return &ServiceError{
		Op:      "create_workflow",
		Code:    "workflow_exists",
		Message: fmt.Sprintf("workflow %q already exists", id),
		Err:     ErrWorkflowExists,
	}
}

// FetchByID returns the workflow when caller may see it.
func (s *Workflows) FetchByID(ctx context.Context, caller, id string) (*models.Workflow, error) {
	wf, err := s.store.WorkflowRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if caller != "" && wf.Owner != caller {
		return nil, &ServiceError{Op: "get_workflow", Code: "unauthorized", Err: ErrUnauthorized}
	}

	return wf, nil
}

// List returns every workflow caller owns.
func (s *Workflows) List(ctx context.Context, caller string) ([]*models.Workflow, error) {
	all, err := s.store.WorkflowRepository().GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	workflows := make([]*models.Workflow, 0, len(all))

	for _, wf := range all {
		if caller == "" || wf.Owner == caller {
			workflows = append(workflows, wf)
		}
	}

	return workflows, nil
}

// Delete removes the definition. Past executions keep their name snapshot.
func (s *Workflows) Delete(ctx context.Context, caller, id string) error {
	if _, err := s.FetchByID(ctx, caller, id); err != nil {
		return err
	}

	return s.store.WorkflowRepository().Delete(ctx, id)
}

// Trigger starts an execution of a workflow the caller owns.
func (s *Workflows) Trigger(ctx context.Context, caller, id string, triggerType models.TriggerType, payload map[string]any) (*models.Execution, error) {
	if _, err := s.FetchByID(ctx, caller, id); err != nil {
		return nil, err
	}

	return s.launcher.Launch(ctx, workflow.TriggerEvent{WorkflowID: id, TriggerType: triggerType, Payload: payload})
}

// Webhook starts a WEBHOOK execution. The workflow must declare a webhook
// trigger; when that trigger carries a JSON schema the body must satisfy it.
func (s *Workflows) Webhook(ctx context.Context, id string, payload map[string]any) (*models.Execution, error) {
	wf, err := s.store.WorkflowRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	triggers := wf.NodesOfType(models.NodeTypeWebhookTrigger)
	if len(triggers) == 0 {
		return nil, ErrNoWebhookTrigger
	}

	if payload == nil {
		payload = map[string]any{}
	}

	for _, node := range triggers {
		if err := validateWebhookPayload(node, payload); err != nil {
			return nil, err
		}
	}

	return s.launcher.Launch(ctx, workflow.TriggerEvent{
		WorkflowID:  id,
		TriggerType: models.TriggerTypeWebhook,
		Payload:     payload,
	})
}

func validateWebhookPayload(node *models.WorkflowNode, payload map[string]any) error {
	schema, ok := node.Config["schema"].(map[string]any)
	if !ok || len(schema) == 0 {
		return nil
	}

	compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schema))
	if err != nil {
		return NewValidationError("webhook", "invalid_schema", err.Error(), ErrInvalidRequest)
	}

	result, err := compiled.Validate(gojsonschema.NewGoLoader(payload))
	if err != nil {
		return NewValidationError("webhook", "invalid_payload", err.Error(), ErrInvalidPayload)
	}

	if !result.Valid() {
		messages := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			messages = append(messages, desc.String())
		}

		return NewValidationError("webhook", "invalid_payload", strings.Join(messages, "; "), ErrInvalidPayload)
	}

	return nil
}

// HealthCheck reports whether the backing store answers.
func (s *Workflows) HealthCheck(ctx context.Context) (string, bool) {
	if s.store == nil {
		return "Persistence layer not initialized", false
	}

	if err := s.store.HealthCheck(ctx); err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}
