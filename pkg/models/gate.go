package models

import "time"

// GateKind classifies what an approval gate is guarding.
type GateKind string

const (
	GateKindPreExecution   GateKind = "pre_execution"   // Plan-declared human review before a step
	GateKindPostValidation GateKind = "post_validation" // Review of a step's result
	GateKindCriticalAction GateKind = "critical_action" // Engine safety policy flagged the step
	GateKindWorkerCreation GateKind = "worker_creation" // Generated worker awaiting adoption
)

// GateStatus represents the resolution state of a gate. Approved and
// Rejected are terminal; a gate is never reopened.
type GateStatus string

const (
	GateStatusPending  GateStatus = "pending"
	GateStatusApproved GateStatus = "approved"
	GateStatusRejected GateStatus = "rejected"
)

// PreRunOrdinal is the step ordinal used for gates that guard the run as a
// whole rather than a single step, such as worker-creation gates.
const PreRunOrdinal = 0

// ApprovalGate is a persisted human-decision checkpoint blocking workflow
// progress until resolved. Context is a point-in-time snapshot of what is
// being approved and is never mutated after creation.
type ApprovalGate struct {
	ID              string         `json:"id"`
	WorkflowID      string         `json:"workflow_id"`
	StepOrdinal     int            `json:"step_ordinal"`
	Kind            GateKind       `json:"kind"`
	Status          GateStatus     `json:"status"`
	Context         map[string]any `json:"context,omitempty"`
	ResolvedBy      string         `json:"resolved_by,omitempty"`
	ResolutionNotes string         `json:"resolution_notes,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	ResolvedAt      *time.Time     `json:"resolved_at,omitempty"`
}
