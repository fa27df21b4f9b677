package models

import "time"

// RunStatus represents the lifecycle state of one worker invocation attempt.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Terminal reports whether the status is final.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed || s == RunStatusCancelled
}

// Captured text bounds. These are part of the contract with the store:
// callers must not assume the full worker output is retrievable.
const (
	MaxOutputLen = 1000
	MaxErrorLen  = 500
)

// RunRecord is the durable record of one actual invocation of a step's
// worker. At most one non-terminal record exists per (workflow, ordinal)
// pair at any time.
type RunRecord struct {
	ID           string     `json:"id"`
	WorkflowID   string     `json:"workflow_id"`
	StepOrdinal  int        `json:"step_ordinal"`
	WorkerName   string     `json:"worker_name"`
	Status       RunStatus  `json:"status"`
	Output       string     `json:"output,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	ExitCode     int        `json:"exit_code"`
	Cost         *float64   `json:"cost,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Truncate trims a captured string to max characters.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}

	return s[:max]
}
