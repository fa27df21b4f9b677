package file

import (
	"context"
	"sort"
	"time"

	"github.com/dirigent-dev/dirigent/pkg/models"
	"github.com/dirigent-dev/dirigent/pkg/persistence"
	"github.com/google/uuid"
)

const runRecordKind = "run_records"

// RunRecordRepository handles run record file operations.
type RunRecordRepository struct {
	p *Persistence
}

// Save writes the run record, assigning an ID and creation time when missing.
func (r *RunRecordRepository) Save(_ context.Context, record *models.RunRecord) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	if record.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}

		record.ID = id.String()
	}

	return r.p.write(runRecordKind, record.ID, record)
}

// GetByID loads one run record.
func (r *RunRecordRepository) GetByID(_ context.Context, id string) (*models.RunRecord, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	var record models.RunRecord

	err := r.p.read(runRecordKind, id, &record, persistence.ErrRunRecordNotFound)
	if err != nil {
		return nil, err
	}

	return &record, nil
}

// ListByWorkflow returns the workflow's run records ordered by step ordinal.
func (r *RunRecordRepository) ListByWorkflow(_ context.Context, workflowID string) ([]*models.RunRecord, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	ids, err := r.p.ids(runRecordKind)
	if err != nil {
		return []*models.RunRecord{}, nil
	}

	records := make([]*models.RunRecord, 0)

	for _, id := range ids {
		var record models.RunRecord
		if err := r.p.read(runRecordKind, id, &record, persistence.ErrRunRecordNotFound); err != nil {
			return nil, err
		}

		if record.WorkflowID == workflowID {
			records = append(records, &record)
		}
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].StepOrdinal != records[j].StepOrdinal {
			return records[i].StepOrdinal < records[j].StepOrdinal
		}

		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})

	return records, nil
}
