package file

import (
	"context"
	"sort"
	"time"

	"github.com/dirigent-dev/dirigent/pkg/models"
	"github.com/dirigent-dev/dirigent/pkg/persistence"
	"github.com/google/uuid"
)

const gateKind = "gates"

// GateRepository handles approval gate file operations.
type GateRepository struct {
	p *Persistence
}

// Save writes the gate, assigning an ID and creation time when missing.
func (r *GateRepository) Save(_ context.Context, gate *models.ApprovalGate) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if gate.CreatedAt.IsZero() {
		gate.CreatedAt = time.Now().UTC()
	}

	if gate.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}

		gate.ID = id.String()
	}

	return r.p.write(gateKind, gate.ID, gate)
}

// GetByID loads one gate.
func (r *GateRepository) GetByID(_ context.Context, id string) (*models.ApprovalGate, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	return r.load(id)
}

// ListByWorkflow returns the workflow's gates in creation order.
func (r *GateRepository) ListByWorkflow(_ context.Context, workflowID string) ([]*models.ApprovalGate, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	ids, err := r.p.ids(gateKind)
	if err != nil {
		return []*models.ApprovalGate{}, nil
	}

	gates := make([]*models.ApprovalGate, 0)

	for _, id := range ids {
		gate, err := r.load(id)
		if err != nil {
			return nil, err
		}

		if gate.WorkflowID == workflowID {
			gates = append(gates, gate)
		}
	}

	sort.Slice(gates, func(i, j int) bool {
		return gates[i].CreatedAt.Before(gates[j].CreatedAt)
	})

	return gates, nil
}

// Resolve sets the terminal status under the store lock. A second attempt
// fails with ErrGateAlreadyResolved and leaves the stored decision intact.
func (r *GateRepository) Resolve(_ context.Context, id string, status models.GateStatus, resolvedBy, notes string) (*models.ApprovalGate, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	gate, err := r.load(id)
	if err != nil {
		return nil, err
	}

	if gate.Status != models.GateStatusPending {
		return gate, &persistence.GateError{Op: "Resolve", GateID: id, Err: persistence.ErrGateAlreadyResolved}
	}

	now := time.Now().UTC()
	gate.Status = status
	gate.ResolvedBy = resolvedBy
	gate.ResolutionNotes = notes
	gate.ResolvedAt = &now

	if err := r.p.write(gateKind, id, gate); err != nil {
		return nil, err
	}

	return gate, nil
}

func (r *GateRepository) load(id string) (*models.ApprovalGate, error) {
	var gate models.ApprovalGate

	err := r.p.read(gateKind, id, &gate, persistence.ErrGateNotFound)
	if err != nil {
		return nil, err
	}

	return &gate, nil
}
