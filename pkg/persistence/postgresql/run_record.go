package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dirigent-dev/dirigent/pkg/models"
	"github.com/dirigent-dev/dirigent/pkg/persistence"
	"github.com/google/uuid"
)

// RunRecordRepository handles run record database operations.
type RunRecordRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

const runRecordColumns = `
	id
  , workflow_id
  , step_ordinal
  , worker_name
  , status
  , output
  , error_message
  , exit_code
  , cost
  , started_at
  , completed_at
  , created_at
`

// Save upserts the run record.
func (r *RunRecordRepository) Save(ctx context.Context, record *models.RunRecord) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	if record.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate run record ID: %w", err)
		}

		record.ID = id.String()
	}

	query := `
		INSERT INTO run_records (id, workflow_id, step_ordinal, worker_name, status,
			output, error_message, exit_code, cost, started_at, completed_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			output = EXCLUDED.output,
			error_message = EXCLUDED.error_message,
			exit_code = EXCLUDED.exit_code,
			cost = EXCLUDED.cost,
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at
	`

	_, err := r.db.ExecContext(ctx, query,
		record.ID,
		record.WorkflowID,
		record.StepOrdinal,
		record.WorkerName,
		record.Status,
		record.Output,
		record.ErrorMessage,
		record.ExitCode,
		record.Cost,
		record.StartedAt,
		record.CompletedAt,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save run record %s: %w", record.ID, err)
	}

	return nil
}

// GetByID returns a run record by its ID.
func (r *RunRecordRepository) GetByID(ctx context.Context, id string) (*models.RunRecord, error) {
	query := `SELECT ` + runRecordColumns + ` FROM run_records WHERE id = $1`

	record, err := r.scanRunRecord(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrRunRecordNotFound
		}

		return nil, fmt.Errorf("failed to scan run record: %w", err)
	}

	return record, nil
}

// ListByWorkflow returns the workflow's run records ordered by step ordinal.
func (r *RunRecordRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.RunRecord, error) {
	query := `SELECT ` + runRecordColumns + `
		FROM run_records
		WHERE workflow_id = $1
		ORDER BY step_ordinal, created_at`

	rows, err := r.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query run records: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	records := make([]*models.RunRecord, 0)

	for rows.Next() {
		record, err := r.scanRunRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run record: %w", err)
		}

		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run records: %w", err)
	}

	return records, nil
}

func (r *RunRecordRepository) scanRunRecord(scanner interface {
	Scan(dest ...any) error
}) (*models.RunRecord, error) {
	var record models.RunRecord

	err := scanner.Scan(
		&record.ID,
		&record.WorkflowID,
		&record.StepOrdinal,
		&record.WorkerName,
		&record.Status,
		&record.Output,
		&record.ErrorMessage,
		&record.ExitCode,
		&record.Cost,
		&record.StartedAt,
		&record.CompletedAt,
		&record.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &record, nil
}
