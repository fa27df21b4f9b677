// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"time"

	"github.com/google/uuid"

	"github.com/dirigent-dev/dirigent/pkg/models"
)

// CreateTestWorkflow creates a saved workflow with default values that can
// be overridden.
func CreateTestWorkflow(overrides ...func(*models.Workflow)) *models.Workflow {
	steps := []*models.Step{CreateTestStep()}

	workflow := &models.Workflow{
		ID:        uuid.New().String(),
		Goal:      "Extract names from the uploaded badge PDF",
		Plan:      steps,
		Status:    models.WorkflowStatusSaved,
		StepCount: len(steps),
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	for _, override := range overrides {
		override(workflow)
	}

	return workflow
}

// WithPlan replaces the plan and keeps the step count consistent.
func WithPlan(steps ...*models.Step) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Plan = steps
		w.StepCount = len(steps)
	}
}

// WithStatus sets the workflow status.
func WithStatus(status models.WorkflowStatus) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Status = status
	}
}

// WithGoal sets the workflow goal.
func WithGoal(goal string) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Goal = goal
	}
}

// CreateTestStep creates a plan step with default values that can be
// overridden.
func CreateTestStep(overrides ...func(*models.Step)) *models.Step {
	step := &models.Step{
		Ordinal:       1,
		WorkerName:    "pdf-ocr-parser",
		Description:   "Parse the badge PDF",
		Parameters:    map[string]string{"--input": "/badges.pdf"},
		GateCondition: models.GateConditionNone,
	}

	for _, override := range overrides {
		override(step)
	}

	return step
}

// WithOrdinal sets the step ordinal.
func WithOrdinal(ordinal int) func(*models.Step) {
	return func(s *models.Step) {
		s.Ordinal = ordinal
	}
}

// WithWorker sets the step's worker name.
func WithWorker(name string) func(*models.Step) {
	return func(s *models.Step) {
		s.WorkerName = name
	}
}

// WithParameters sets the step parameters.
func WithParameters(parameters map[string]string) func(*models.Step) {
	return func(s *models.Step) {
		s.Parameters = parameters
	}
}

// WithApproval marks the step as requiring plan-declared approval.
func WithApproval() func(*models.Step) {
	return func(s *models.Step) {
		s.RequiresApproval = true
	}
}

// WithGateCondition sets the step's gate condition.
func WithGateCondition(condition models.GateCondition) func(*models.Step) {
	return func(s *models.Step) {
		s.GateCondition = condition
	}
}

// CreateTestWorker creates a catalog worker with default values that can be
// overridden. The script path points nowhere; tests that actually execute
// workers write their own scripts.
func CreateTestWorker(overrides ...func(*models.Worker)) *models.Worker {
	worker := &models.Worker{
		Name:        "pdf-ocr-parser",
		Description: "Extracts text from PDF documents",
		ScriptPath:  "./workers/pdf_ocr_parser.py",
		Language:    "python",
		Capabilities: []string{
			"pdf-parsing",
			"data-extraction",
		},
		EstimatedCost: 0.08,
		CreatedAt:     time.Now().UTC(),
	}

	for _, override := range overrides {
		override(worker)
	}

	return worker
}

// WithWorkerName sets the worker name.
func WithWorkerName(name string) func(*models.Worker) {
	return func(w *models.Worker) {
		w.Name = name
	}
}

// WithScriptPath sets the worker script path.
func WithScriptPath(path string) func(*models.Worker) {
	return func(w *models.Worker) {
		w.ScriptPath = path
	}
}

// CreateTestGate creates a pending approval gate with default values that
// can be overridden.
func CreateTestGate(workflowID string, overrides ...func(*models.ApprovalGate)) *models.ApprovalGate {
	gate := &models.ApprovalGate{
		ID:          uuid.New().String(),
		WorkflowID:  workflowID,
		StepOrdinal: 1,
		Kind:        models.GateKindPreExecution,
		Status:      models.GateStatusPending,
		Context:     map[string]any{"worker_name": "pdf-ocr-parser"},
		CreatedAt:   time.Now().UTC(),
	}

	for _, override := range overrides {
		override(gate)
	}

	return gate
}

// WithGateKind sets the gate kind.
func WithGateKind(kind models.GateKind) func(*models.ApprovalGate) {
	return func(g *models.ApprovalGate) {
		g.Kind = kind
	}
}
