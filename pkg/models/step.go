package models

// GateCondition controls whether a step's own failure halts the workflow.
type GateCondition string

const (
	GateConditionNone           GateCondition = "none"
	GateConditionPreCheck       GateCondition = "pre_check"       // A failed invocation aborts the remaining plan
	GateConditionPostValidation GateCondition = "post_validation" // Result reviewed after execution
)

// Step is one declarative unit within a workflow's plan, bound to exactly
// one worker. Ordinals are 1-based and define strict execution order.
type Step struct {
	Ordinal          int               `json:"ordinal"     validate:"required,min=1"`
	WorkerName       string            `json:"worker_name" validate:"required"`
	Description      string            `json:"description"`
	Parameters       map[string]string `json:"parameters,omitempty"`
	RequiresApproval bool              `json:"requires_approval"`
	GateCondition    GateCondition     `json:"gate_condition,omitempty"`

	// NewWorker is set by the planner when the step needs a capability no
	// catalog worker provides; provisioning runs before the step loop.
	NewWorker *WorkerSpec `json:"new_worker,omitempty"`
}
