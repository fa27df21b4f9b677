package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dirigent-dev/dirigent/pkg/models"
	"github.com/dirigent-dev/dirigent/pkg/persistence"
	"github.com/google/uuid"
)

// WorkflowRepository handles workflow-related database operations.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

const workflowColumns = `
	id
  , goal
  , plan
  , status
  , step_count
  , current_step_index
  , summary
  , total_cost
  , metadata
  , created_at
  , updated_at
  , started_at
  , completed_at
`

// Save upserts the workflow document, plan included.
func (r *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
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

	planJSON, err := json.Marshal(workflow.Plan)
	if err != nil {
		return fmt.Errorf("failed to marshal plan: %w", err)
	}

	metadataJSON, err := json.Marshal(workflow.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO workflows (id, goal, plan, status, step_count, current_step_index,
			summary, total_cost, metadata, created_at, updated_at, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			plan = EXCLUDED.plan,
			status = EXCLUDED.status,
			step_count = EXCLUDED.step_count,
			current_step_index = EXCLUDED.current_step_index,
			summary = EXCLUDED.summary,
			total_cost = EXCLUDED.total_cost,
			metadata = EXCLUDED.metadata,
			updated_at = EXCLUDED.updated_at,
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at
	`

	_, err = r.db.ExecContext(ctx, query,
		workflow.ID,
		workflow.Goal,
		planJSON,
		workflow.Status,
		workflow.StepCount,
		workflow.CurrentStepIndex,
		workflow.Summary,
		workflow.TotalCost,
		metadataJSON,
		workflow.CreatedAt,
		workflow.UpdatedAt,
		workflow.StartedAt,
		workflow.CompletedAt,
	)
	if err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	return nil
}

// GetByID returns a workflow by its ID.
func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows WHERE id = $1`

	workflow, err := r.scanWorkflow(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
		}

		return nil, persistence.NewWorkflowError("GetByID", id, err)
	}

	return workflow, nil
}

// GetAll returns all workflows, newest first.
func (r *WorkflowRepository) GetAll(ctx context.Context) ([]*models.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	workflows := make([]*models.Workflow, 0)

	for rows.Next() {
		workflow, err := r.scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		workflows = append(workflows, workflow)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	return workflows, nil
}

// UpdateProgress advances the step cursor and accumulated cost with a single
// guarded statement so a racing administrative cancel cannot be overwritten
// and the cursor never moves backwards.
func (r *WorkflowRepository) UpdateProgress(ctx context.Context, id string, stepIndex int, totalCost float64) error {
	query := `
		UPDATE workflows
		SET current_step_index = $2, total_cost = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'running' AND current_step_index <= $2
	`

	result, err := r.db.ExecContext(ctx, query, id, stepIndex, totalCost)
	if err != nil {
		return persistence.NewWorkflowError("UpdateProgress", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewWorkflowError("UpdateProgress", id, err)
	}

	if rowsAffected == 0 {
		return persistence.NewWorkflowError("UpdateProgress", id, persistence.ErrWorkflowConflict)
	}

	return nil
}

// UpdateStatus writes the status transition carried by the given workflow.
func (r *WorkflowRepository) UpdateStatus(ctx context.Context, workflow *models.Workflow) error {
	query := `
		UPDATE workflows
		SET status = $2, current_step_index = $3, summary = $4, total_cost = $5,
			started_at = $6, completed_at = $7, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		workflow.ID,
		workflow.Status,
		workflow.CurrentStepIndex,
		workflow.Summary,
		workflow.TotalCost,
		workflow.StartedAt,
		workflow.CompletedAt,
	)
	if err != nil {
		return persistence.NewWorkflowError("UpdateStatus", workflow.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewWorkflowError("UpdateStatus", workflow.ID, err)
	}

	if rowsAffected == 0 {
		return persistence.NewWorkflowError("UpdateStatus", workflow.ID, persistence.ErrWorkflowNotFound)
	}

	return nil
}

// Delete removes the workflow; run records, gates and artifacts cascade.
func (r *WorkflowRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM workflows WHERE id = $1`, id)
	if err != nil {
		return persistence.NewWorkflowError("Delete", id, err)
	}

	return nil
}

func (r *WorkflowRepository) scanWorkflow(scanner interface {
	Scan(dest ...any) error
}) (*models.Workflow, error) {
	var (
		workflow               models.Workflow
		planJSON, metadataJSON []byte
		summary                sql.NullString
	)

	err := scanner.Scan(
		&workflow.ID,
		&workflow.Goal,
		&planJSON,
		&workflow.Status,
		&workflow.StepCount,
		&workflow.CurrentStepIndex,
		&summary,
		&workflow.TotalCost,
		&metadataJSON,
		&workflow.CreatedAt,
		&workflow.UpdatedAt,
		&workflow.StartedAt,
		&workflow.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	workflow.Summary = summary.String

	if planJSON != nil {
		err := json.Unmarshal(planJSON, &workflow.Plan)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal plan: %w", err)
		}
	}

	if metadataJSON != nil {
		err := json.Unmarshal(metadataJSON, &workflow.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return &workflow, nil
}
