// Package persistence provides the data storage abstraction layer for
// workflows, run records, approval gates and the worker catalog.
package persistence

import (
	"context"

	"github.com/dirigent-dev/dirigent/pkg/models"
)

// WorkflowRepository stores orchestration runs. UpdateProgress is the only
// write the engine performs per step; it must be atomic with respect to
// concurrent administrative writes to the same row.
type WorkflowRepository interface {
	Save(ctx context.Context, workflow *models.Workflow) error
	GetByID(ctx context.Context, id string) (*models.Workflow, error)
	GetAll(ctx context.Context) ([]*models.Workflow, error)

	// UpdateProgress conditionally advances current_step_index and the
	// accumulated cost: the write applies only while the workflow is still
	// Running and the index does not move backwards. Returns
	// ErrWorkflowConflict when the guard fails.
	UpdateProgress(ctx context.Context, id string, stepIndex int, totalCost float64) error

	// UpdateStatus performs the terminal (or Running-entry) transition,
	// stamping started/completed timestamps and the summary as appropriate.
	UpdateStatus(ctx context.Context, workflow *models.Workflow) error

	// Delete removes the workflow and cascades to its run records, gates
	// and artifacts. Administrative action; the engine never calls it.
	Delete(ctx context.Context, id string) error
}

// RunRecordRepository stores worker invocation attempts.
type RunRecordRepository interface {
	Save(ctx context.Context, record *models.RunRecord) error
	GetByID(ctx context.Context, id string) (*models.RunRecord, error)
	ListByWorkflow(ctx context.Context, workflowID string) ([]*models.RunRecord, error)
}

// GateRepository stores approval gates.
type GateRepository interface {
	Save(ctx context.Context, gate *models.ApprovalGate) error
	GetByID(ctx context.Context, id string) (*models.ApprovalGate, error)
	ListByWorkflow(ctx context.Context, workflowID string) ([]*models.ApprovalGate, error)

	// Resolve atomically sets the terminal status, resolver identity and
	// notes. A gate that is no longer pending yields
	// ErrGateAlreadyResolved and keeps its stored decision unchanged.
	Resolve(ctx context.Context, id string, status models.GateStatus, resolvedBy, notes string) (*models.ApprovalGate, error)
}

// WorkerRepository stores the worker catalog, including workers adopted
// mid-run, and the generated artifacts behind them.
type WorkerRepository interface {
	SaveWorker(ctx context.Context, worker *models.Worker) error
	WorkerByName(ctx context.Context, name string) (*models.Worker, error)
	Workers(ctx context.Context) ([]*models.Worker, error)

	SaveArtifact(ctx context.Context, artifact *models.WorkerArtifact) error
	ArtifactByID(ctx context.Context, id string) (*models.WorkerArtifact, error)
}

// Persistence aggregates the repositories behind a single connection.
type Persistence interface {
	WorkflowRepository() WorkflowRepository
	RunRecordRepository() RunRecordRepository
	GateRepository() GateRepository
	WorkerRepository() WorkerRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
