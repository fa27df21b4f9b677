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

// GateRepository handles approval gate database operations.
type GateRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

const gateColumns = `
	id
  , workflow_id
  , step_ordinal
  , kind
  , status
  , context
  , resolved_by
  , resolution_notes
  , created_at
  , resolved_at
`

// Save inserts the gate. Gates are append-only outside of Resolve.
func (r *GateRepository) Save(ctx context.Context, gate *models.ApprovalGate) error {
	if gate.CreatedAt.IsZero() {
		gate.CreatedAt = time.Now().UTC()
	}

	if gate.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate gate ID: %w", err)
		}

		gate.ID = id.String()
	}

	contextJSON, err := json.Marshal(gate.Context)
	if err != nil {
		return fmt.Errorf("failed to marshal gate context: %w", err)
	}

	query := `
		INSERT INTO approval_gates (id, workflow_id, step_ordinal, kind, status,
			context, resolved_by, resolution_notes, created_at, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err = r.db.ExecContext(ctx, query,
		gate.ID,
		gate.WorkflowID,
		gate.StepOrdinal,
		gate.Kind,
		gate.Status,
		contextJSON,
		gate.ResolvedBy,
		gate.ResolutionNotes,
		gate.CreatedAt,
		gate.ResolvedAt,
	)
	if err != nil {
		return &persistence.GateError{Op: "Save", GateID: gate.ID, Err: err}
	}

	return nil
}

// GetByID returns a gate by its ID.
func (r *GateRepository) GetByID(ctx context.Context, id string) (*models.ApprovalGate, error) {
	query := `SELECT ` + gateColumns + ` FROM approval_gates WHERE id = $1`

	gate, err := r.scanGate(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &persistence.GateError{Op: "GetByID", GateID: id, Err: persistence.ErrGateNotFound}
		}

		return nil, &persistence.GateError{Op: "GetByID", GateID: id, Err: err}
	}

	return gate, nil
}

// ListByWorkflow returns the workflow's gates in creation order.
func (r *GateRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.ApprovalGate, error) {
	query := `SELECT ` + gateColumns + `
		FROM approval_gates
		WHERE workflow_id = $1
		ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query gates: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	gates := make([]*models.ApprovalGate, 0)

	for rows.Next() {
		gate, err := r.scanGate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan gate: %w", err)
		}

		gates = append(gates, gate)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating gates: %w", err)
	}

	return gates, nil
}

// Resolve sets the terminal status with a single conditional UPDATE so a
// concurrent second resolution cannot slip through: only a pending row is
// written, and zero affected rows distinguishes already-resolved from
// missing.
func (r *GateRepository) Resolve(ctx context.Context, id string, status models.GateStatus, resolvedBy, notes string) (*models.ApprovalGate, error) {
	query := `
		UPDATE approval_gates
		SET status = $2, resolved_by = $3, resolution_notes = $4, resolved_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`

	result, err := r.db.ExecContext(ctx, query, id, status, resolvedBy, notes)
	if err != nil {
		return nil, &persistence.GateError{Op: "Resolve", GateID: id, Err: err}
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, &persistence.GateError{Op: "Resolve", GateID: id, Err: err}
	}

	if rowsAffected == 0 {
		gate, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		return gate, &persistence.GateError{Op: "Resolve", GateID: id, Err: persistence.ErrGateAlreadyResolved}
	}

	return r.GetByID(ctx, id)
}

func (r *GateRepository) scanGate(scanner interface {
	Scan(dest ...any) error
}) (*models.ApprovalGate, error) {
	var (
		gate        models.ApprovalGate
		contextJSON []byte
	)

	err := scanner.Scan(
		&gate.ID,
		&gate.WorkflowID,
		&gate.StepOrdinal,
		&gate.Kind,
		&gate.Status,
		&contextJSON,
		&gate.ResolvedBy,
		&gate.ResolutionNotes,
		&gate.CreatedAt,
		&gate.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}

	if contextJSON != nil {
		err := json.Unmarshal(contextJSON, &gate.Context)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal gate context: %w", err)
		}
	}

	return &gate, nil
}
