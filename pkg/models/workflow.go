// Package models defines the core domain models for goal-driven workflow orchestration.
package models

import "time"

// WorkflowStatus represents the lifecycle state of a workflow.
type WorkflowStatus string

const (
	WorkflowStatusPlanning  WorkflowStatus = "planning"  // Plan being generated, not executable
	WorkflowStatusSaved     WorkflowStatus = "saved"     // Plan accepted, waiting for execution
	WorkflowStatusRunning   WorkflowStatus = "running"   // Engine is advancing through steps
	WorkflowStatusCompleted WorkflowStatus = "completed" // Terminal, all steps done
	WorkflowStatusFailed    WorkflowStatus = "failed"    // Terminal, aborted by error or pre-check
	WorkflowStatusCancelled WorkflowStatus = "cancelled" // Terminal, rejected at a gate
)

// Terminal reports whether no further transitions are allowed from this status.
func (s WorkflowStatus) Terminal() bool {
	return s == WorkflowStatusCompleted || s == WorkflowStatusFailed || s == WorkflowStatusCancelled
}

// CanTransitionTo reports whether the state machine allows moving to next.
// Planning -> {Saved, Running}; Saved -> Running; Running -> terminal states.
func (s WorkflowStatus) CanTransitionTo(next WorkflowStatus) bool {
	switch s {
	case WorkflowStatusPlanning:
		return next == WorkflowStatusSaved || next == WorkflowStatusRunning
	case WorkflowStatusSaved:
		return next == WorkflowStatusRunning
	case WorkflowStatusRunning:
		return next.Terminal()
	default:
		return false
	}
}

// Workflow represents a single orchestration run from goal to terminal status.
//
// The plan is immutable once the workflow enters Running; the engine is the
// only writer of status, current_step_index, summary and total_cost.
type Workflow struct {
	ID               string         `json:"id"`
	Goal             string         `json:"goal"                   validate:"required"`
	Plan             []*Step        `json:"plan"`
	Status           WorkflowStatus `json:"status"                 validate:"required"`
	StepCount        int            `json:"step_count"`
	CurrentStepIndex int            `json:"current_step_index"`
	Summary          string         `json:"summary,omitempty"`
	TotalCost        float64        `json:"total_cost"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	StartedAt        *time.Time     `json:"started_at,omitempty"`
	CompletedAt      *time.Time     `json:"completed_at,omitempty"`
}

// StepByOrdinal returns the plan step with the given 1-based ordinal.
func (w *Workflow) StepByOrdinal(ordinal int) (*Step, bool) {
	for _, step := range w.Plan {
		if step.Ordinal == ordinal {
			return step, true
		}
	}

	return nil, false
}

// NewWorkers returns the worker specs the planner flagged as missing from the
// catalog. These are provisioned once, before the step loop starts.
func (w *Workflow) NewWorkers() []*WorkerSpec {
	var specs []*WorkerSpec

	for _, step := range w.Plan {
		if step.NewWorker != nil {
			specs = append(specs, step.NewWorker)
		}
	}

	return specs
}
