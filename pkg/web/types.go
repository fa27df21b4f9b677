// Package web provides HTTP request and response types for the boundary API.
package web

import "github.com/dirigent-dev/dirigent/pkg/models"

// StartWorkflowRequest represents the request body for planning a workflow.
// Execute false saves the plan without queueing it.
type StartWorkflowRequest struct {
	Goal    string `json:"goal"    validate:"required,min=3"`
	Execute bool   `json:"execute"`
}

// ResolveGateRequest represents a human decision on a pending gate.
type ResolveGateRequest struct {
	Decision   string `json:"decision"    validate:"required,oneof=approved rejected"`
	ResolvedBy string `json:"resolved_by" validate:"required"`
	Notes      string `json:"notes"`
}

// WorkflowResponse is the workflow view returned by the API. The plan is
// included as stored; run records and gates have their own endpoints.
type WorkflowResponse struct {
	ID               string                `json:"id"`
	Goal             string                `json:"goal"`
	Status           models.WorkflowStatus `json:"status"`
	Plan             []*models.Step        `json:"plan"`
	StepCount        int                   `json:"step_count"`
	CurrentStepIndex int                   `json:"current_step_index"`
	Summary          string                `json:"summary,omitempty"`
	TotalCost        float64               `json:"total_cost"`
}

// TransformWorkflowResponse maps a stored workflow to its API view.
func TransformWorkflowResponse(workflow *models.Workflow) WorkflowResponse {
	return WorkflowResponse{
		ID:               workflow.ID,
		Goal:             workflow.Goal,
		Status:           workflow.Status,
		Plan:             workflow.Plan,
		StepCount:        workflow.StepCount,
		CurrentStepIndex: workflow.CurrentStepIndex,
		Summary:          workflow.Summary,
		TotalCost:        workflow.TotalCost,
	}
}
