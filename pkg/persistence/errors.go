// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrWorkflowNotFound indicates a workflow was not found by the given identifier.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrWorkflowConflict indicates a conditional workflow update did not
	// apply: the row was no longer Running or the step index would have
	// moved backwards.
	ErrWorkflowConflict = errors.New("workflow update conflict")

	// ErrRunRecordNotFound indicates a run record was not found by the given identifier.
	ErrRunRecordNotFound = errors.New("run record not found")

	// ErrGateNotFound indicates an approval gate was not found by the given identifier.
	ErrGateNotFound = errors.New("approval gate not found")

	// ErrGateAlreadyResolved indicates a resolve attempt against a gate
	// that already left Pending. The stored decision is unchanged.
	ErrGateAlreadyResolved = errors.New("approval gate already resolved")

	// ErrWorkerNotFound indicates no catalog worker exists with the given name.
	ErrWorkerNotFound = errors.New("worker not found")

	// ErrArtifactNotFound indicates a worker artifact was not found by the given identifier.
	ErrArtifactNotFound = errors.New("worker artifact not found")
)

// WorkflowError wraps workflow-related errors with additional context.
type WorkflowError struct {
	Op         string // Operation being performed (e.g., "GetByID", "Save", "UpdateProgress")
	WorkflowID string // Workflow ID if applicable
	Err        error  // Underlying error
}

func (e *WorkflowError) Error() string {
	return fmt.Sprintf("%s operation failed for workflow %s: %v", e.Op, e.WorkflowID, e.Err)
}

func (e *WorkflowError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for workflow errors.
func (e *WorkflowError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewWorkflowError creates a new workflow error with context.
func NewWorkflowError(op, workflowID string, err error) *WorkflowError {
	return &WorkflowError{
		Op:         op,
		WorkflowID: workflowID,
		Err:        err,
	}
}

// GateError wraps gate-related errors with additional context.
type GateError struct {
	Op     string
	GateID string
	Err    error
}

func (e *GateError) Error() string {
	return fmt.Sprintf("%s operation failed for gate %s: %v", e.Op, e.GateID, e.Err)
}

func (e *GateError) Unwrap() error {
	return e.Err
}

func (e *GateError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsWorkflowNotFound checks if an error indicates a workflow was not found.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsWorkflowConflict checks if an error indicates a lost conditional update.
func IsWorkflowConflict(err error) bool {
	return errors.Is(err, ErrWorkflowConflict)
}

// IsGateNotFound checks if an error indicates a gate was not found.
func IsGateNotFound(err error) bool {
	return errors.Is(err, ErrGateNotFound)
}

// IsGateAlreadyResolved checks if an error indicates a double resolution attempt.
func IsGateAlreadyResolved(err error) bool {
	return errors.Is(err, ErrGateAlreadyResolved)
}

// IsWorkerNotFound checks if an error indicates a catalog worker was not found.
func IsWorkerNotFound(err error) bool {
	return errors.Is(err, ErrWorkerNotFound)
}

// IsRunRecordNotFound checks if an error indicates a run record was not found.
func IsRunRecordNotFound(err error) bool {
	return errors.Is(err, ErrRunRecordNotFound)
}
