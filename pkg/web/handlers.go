// Package web provides the HTTP boundary: workflow creation and resumption,
// gate resolution and read-side views of the store.
package web

import (
	"encoding/json"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/dirigent-dev/dirigent/pkg/gates"
	"github.com/dirigent-dev/dirigent/pkg/models"
	"github.com/dirigent-dev/dirigent/pkg/persistence"
	"github.com/dirigent-dev/dirigent/pkg/runner"
	"github.com/dirigent-dev/dirigent/pkg/workflow"
)

type APIHandlers struct {
	service     *workflow.Service
	gates       *gates.Manager
	persistence persistence.Persistence
	handles     *runner.HandleRegistry
	validator   *validator.Validate
}

func NewAPIHandlers(
	service *workflow.Service,
	gateManager *gates.Manager,
	p persistence.Persistence,
	handles *runner.HandleRegistry,
	validate *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		service:     service,
		gates:       gateManager,
		persistence: p,
		handles:     handles,
		validator:   validate,
	}
}

// StartWorkflow plans the goal and returns the created workflow without
// waiting for execution.
func (h *APIHandlers) StartWorkflow(c fiber.Ctx) error {
	var req StartWorkflowRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.service.Start(c.Context(), req.Goal, req.Execute)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(TransformWorkflowResponse(created))
}

// ResumeWorkflow queues a saved or interrupted workflow for execution.
func (h *APIHandlers) ResumeWorkflow(c fiber.Ctx) error {
	if err := h.service.Resume(c.Context(), c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusAccepted)
}

// GetWorkflow returns one workflow.
func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	found, err := h.persistence.WorkflowRepository().GetByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(TransformWorkflowResponse(found))
}

// GetWorkflows lists all workflows.
func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	all, err := h.persistence.WorkflowRepository().GetAll(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	responses := make([]WorkflowResponse, 0, len(all))
	for _, wf := range all {
		responses = append(responses, TransformWorkflowResponse(wf))
	}

	return c.JSON(fiber.Map{"workflows": responses})
}

// GetWorkflowRuns lists the workflow's run records in step order.
func (h *APIHandlers) GetWorkflowRuns(c fiber.Ctx) error {
	workflowID := c.Params("id")

	if _, err := h.persistence.WorkflowRepository().GetByID(c.Context(), workflowID); err != nil {
		return handleServiceError(c, err)
	}

	records, err := h.persistence.RunRecordRepository().ListByWorkflow(c.Context(), workflowID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"run_records": records})
}

// GetWorkflowGates lists the workflow's approval gates.
func (h *APIHandlers) GetWorkflowGates(c fiber.Ctx) error {
	workflowID := c.Params("id")

	if _, err := h.persistence.WorkflowRepository().GetByID(c.Context(), workflowID); err != nil {
		return handleServiceError(c, err)
	}

	list, err := h.persistence.GateRepository().ListByWorkflow(c.Context(), workflowID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"gates": list})
}

// ResolveGate records a human decision. The engine process picks the
// resolution up through the store, so this handler is safe to serve from a
// process that never runs the engine loop.
func (h *APIHandlers) ResolveGate(c fiber.Ctx) error {
	var req ResolveGateRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	err := h.gates.Resolve(c.Context(), c.Params("id"), models.GateStatus(req.Decision), req.ResolvedBy, req.Notes)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// StopRunProcess kills the live OS process behind a run record, when this
// process still holds its handle. Handles are process-local: after an engine
// restart the invocation runs orphaned and there is nothing to stop here.
func (h *APIHandlers) StopRunProcess(c fiber.Ctx) error {
	stopped, err := h.handles.Stop(c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	if !stopped {
		return notFound(c, "no live process for this run record")
	}

	return c.SendStatus(fiber.StatusNoContent)
}
