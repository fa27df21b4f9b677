package file

import (
	"context"
	"sort"
	"time"

	"github.com/dirigent-dev/dirigent/pkg/models"
	"github.com/dirigent-dev/dirigent/pkg/persistence"
	"github.com/google/uuid"
)

const workflowKind = "workflows"

// WorkflowRepository handles workflow-related file operations.
type WorkflowRepository struct {
	p *Persistence
}

// Save writes the full workflow document, assigning an ID and timestamps
// when missing.
func (r *WorkflowRepository) Save(_ context.Context, workflow *models.Workflow) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	now := time.Now().UTC()
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	if workflow.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return persistence.NewWorkflowError("Save", "", err)
		}

		workflow.ID = id.String()
	}

	return r.p.write(workflowKind, workflow.ID, workflow)
}

// GetByID loads one workflow.
func (r *WorkflowRepository) GetByID(_ context.Context, id string) (*models.Workflow, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	return r.load(id)
}

// GetAll returns every stored workflow, newest first.
func (r *WorkflowRepository) GetAll(_ context.Context) ([]*models.Workflow, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	ids, err := r.p.ids(workflowKind)
	if err != nil {
		return []*models.Workflow{}, nil
	}

	workflows := make([]*models.Workflow, 0, len(ids))

	for _, id := range ids {
		workflow, err := r.load(id)
		if err != nil {
			return nil, err
		}

		workflows = append(workflows, workflow)
	}

	sort.Slice(workflows, func(i, j int) bool {
		return workflows[i].CreatedAt.After(workflows[j].CreatedAt)
	})

	return workflows, nil
}

// UpdateProgress conditionally advances the step cursor and accumulated
// cost, mirroring the guarded UPDATE the SQL backend performs.
func (r *WorkflowRepository) UpdateProgress(_ context.Context, id string, stepIndex int, totalCost float64) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	workflow, err := r.load(id)
	if err != nil {
		return err
	}

	if workflow.Status != models.WorkflowStatusRunning || stepIndex < workflow.CurrentStepIndex {
		return persistence.NewWorkflowError("UpdateProgress", id, persistence.ErrWorkflowConflict)
	}

	workflow.CurrentStepIndex = stepIndex
	workflow.TotalCost = totalCost
	workflow.UpdatedAt = time.Now().UTC()

	return r.p.write(workflowKind, id, workflow)
}

// UpdateStatus writes the status transition carried by the given workflow.
func (r *WorkflowRepository) UpdateStatus(_ context.Context, workflow *models.Workflow) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	stored, err := r.load(workflow.ID)
	if err != nil {
		return err
	}

	stored.Status = workflow.Status
	stored.CurrentStepIndex = workflow.CurrentStepIndex
	stored.Summary = workflow.Summary
	stored.TotalCost = workflow.TotalCost
	stored.StartedAt = workflow.StartedAt
	stored.CompletedAt = workflow.CompletedAt
	stored.UpdatedAt = time.Now().UTC()

	return r.p.write(workflowKind, workflow.ID, stored)
}

// Delete removes the workflow and everything it owns.
func (r *WorkflowRepository) Delete(ctx context.Context, id string) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if err := r.p.remove(workflowKind, id); err != nil {
		return err
	}

	// Cascade to owned run records, gates and artifacts.
	for _, kind := range []string{runRecordKind, gateKind, artifactKind} {
		ids, err := r.p.ids(kind)
		if err != nil {
			continue
		}

		for _, ownedID := range ids {
			var owned struct {
				WorkflowID string `json:"workflow_id"`
			}

			if err := r.p.read(kind, ownedID, &owned, nil); err != nil {
				continue
			}

			if owned.WorkflowID == id {
				_ = r.p.remove(kind, ownedID)
			}
		}
	}

	return nil
}

func (r *WorkflowRepository) load(id string) (*models.Workflow, error) {
	var workflow models.Workflow

	err := r.p.read(workflowKind, id, &workflow, persistence.ErrWorkflowNotFound)
	if err != nil {
		return nil, err
	}

	return &workflow, nil
}
