// Package web provides HTTP handlers and REST API endpoints for execution history,
// execution control and the real-time status stream.
package web

import (
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/dukex/runledger/pkg/eventbus"
	"github.com/dukex/runledger/pkg/models"
	"github.com/dukex/runledger/pkg/registry"
	"github.com/dukex/runledger/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type APIHandlers struct {
	executions *services.Executions
	workflows  *services.Workflows
	validator  *validator.Validate
	registry   *registry.Registry
	statusBus  *eventbus.StatusBus
	logger     *slog.Logger

	heartbeat time.Duration
	streams   sync.Map // subscription id -> *eventbus.Subscription
}

func NewAPIHandlers(
	executions *services.Executions,
	workflows *services.Workflows,
	validator *validator.Validate,
	registry *registry.Registry,
	statusBus *eventbus.StatusBus,
	logger *slog.Logger,
) *APIHandlers {
	return &APIHandlers{
		executions: executions,
		workflows:  workflows,
		validator:  validator,
		registry:   registry,
		statusBus:  statusBus,
		logger:     logger.With("module", "web"),
		heartbeat:  15 * time.Second,
	}
}

// Register mounts every route on router.
func (h *APIHandlers) Register(router fiber.Router) {
	e := router.Group("/executions")
	e.Get("/", h.ListExecutions)
	e.Get("/stats", h.ExecutionStats)
	e.Get("/:id", h.GetExecution)
	e.Post("/:id/cancel", h.CancelExecution)
	e.Post("/:id/rerun", h.RerunExecution)

	w := router.Group("/workflows")
	w.Get("/", h.ListWorkflows)
	w.Post("/", h.CreateWorkflow)
	w.Get("/:id", h.GetWorkflow)
	w.Delete("/:id", h.DeleteWorkflow)
	w.Post("/:id/executions", h.TriggerWorkflow)

	router.Post("/webhooks/:workflowId", h.Webhook)

	s := router.Group("/subscriptions")
	s.Post("/token", h.IssueSubscriptionToken)
	s.Get("/stream", h.StreamStatus)
	s.Post("/:id/refresh", h.RefreshSubscription)

	router.Get("/health", h.HealthCheck)
}

func caller(c fiber.Ctx) string {
	return c.Get(CallerHeader)
}

func (h *APIHandlers) ListExecutions(c fiber.Ctx) error {
	filters := parseExecutionFilters(c)

	req := services.ListExecutionsRequest{ExecutionFilters: filters}

	var err error

	if req.Page, err = queryInt(c, "page"); err != nil {
		return badRequest(c, "Invalid page: "+err.Error())
	}

	if req.PageSize, err = queryInt(c, "page_size"); err != nil {
		return badRequest(c, "Invalid page_size: "+err.Error())
	}

	result, err := h.executions.List(c.Context(), caller(c), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) ExecutionStats(c fiber.Ctx) error {
	stats, err := h.executions.Stats(c.Context(), caller(c), parseExecutionFilters(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(stats)
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	detail, err := h.executions.FetchByID(c.Context(), caller(c), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(detail)
}

func (h *APIHandlers) CancelExecution(c fiber.Ctx) error {
	execution, err := h.executions.Cancel(c.Context(), caller(c), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(execution)
}

func (h *APIHandlers) RerunExecution(c fiber.Ctx) error {
	result, err := h.executions.Rerun(c.Context(), caller(c), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(result)
}

func (h *APIHandlers) ListWorkflows(c fiber.Ctx) error {
	workflows, err := h.workflows.List(c.Context(), caller(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflows)
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var req CreateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	workflow := &models.Workflow{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		Nodes:       req.Nodes,
		Connections: req.Connections,
	}

	created, err := h.workflows.Create(c.Context(), caller(c), workflow)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	workflow, err := h.workflows.FetchByID(c.Context(), caller(c), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	if err := h.workflows.Delete(c.Context(), caller(c), c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) TriggerWorkflow(c fiber.Ctx) error {
	var req TriggerExecutionRequest

	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	if req.TriggerType == "" {
		req.TriggerType = models.TriggerTypeManual
	}

	execution, err := h.workflows.Trigger(c.Context(), caller(c), c.Params("id"), req.TriggerType, req.Payload)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(execution)
}

func (h *APIHandlers) Webhook(c fiber.Ctx) error {
	payload := map[string]any{}

	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&payload); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	execution, err := h.workflows.Webhook(c.Context(), c.Params("workflowId"), payload)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"workflow_id":  execution.WorkflowID,
		"execution_id": execution.ID,
	})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	registryCheck, regOk := h.registry.HealthCheck()
	repositoryCheck, repOk := h.workflows.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Runledger API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if regOk && repOk {
		status = "healthy"
		message = "Runledger API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"registry":   registryCheck,
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func parseExecutionFilters(c fiber.Ctx) services.ExecutionFilters {
	return services.ExecutionFilters{
		Status:      models.ExecutionStatus(c.Query("status")),
		TriggerType: models.TriggerType(c.Query("trigger_type")),
		Search:      c.Query("search"),
		WorkflowID:  c.Query("workflow_id"),
	}
}

func queryInt(c fiber.Ctx, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}

	return strconv.Atoi(raw)
}
