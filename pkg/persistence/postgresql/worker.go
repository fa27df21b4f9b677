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

// WorkerRepository handles worker catalog and artifact database operations.
type WorkerRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

const workerColumns = `
	name
  , description
  , script_path
  , language
  , default_parameters
  , tags
  , capabilities
  , estimated_cost
  , system_generated
  , created_at
`

// SaveWorker upserts the catalog entry, keyed by worker name.
func (r *WorkerRepository) SaveWorker(ctx context.Context, worker *models.Worker) error {
	if worker.CreatedAt.IsZero() {
		worker.CreatedAt = time.Now().UTC()
	}

	parametersJSON, err := json.Marshal(worker.DefaultParameters)
	if err != nil {
		return fmt.Errorf("failed to marshal default parameters: %w", err)
	}

	tagsJSON, err := json.Marshal(worker.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}

	capabilitiesJSON, err := json.Marshal(worker.Capabilities)
	if err != nil {
		return fmt.Errorf("failed to marshal capabilities: %w", err)
	}

	query := `
		INSERT INTO workers (name, description, script_path, language,
			default_parameters, tags, capabilities, estimated_cost, system_generated, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (name) DO UPDATE SET
			description = EXCLUDED.description,
			script_path = EXCLUDED.script_path,
			language = EXCLUDED.language,
			default_parameters = EXCLUDED.default_parameters,
			tags = EXCLUDED.tags,
			capabilities = EXCLUDED.capabilities,
			estimated_cost = EXCLUDED.estimated_cost,
			system_generated = EXCLUDED.system_generated
	`

	_, err = r.db.ExecContext(ctx, query,
		worker.Name,
		worker.Description,
		worker.ScriptPath,
		worker.Language,
		parametersJSON,
		tagsJSON,
		capabilitiesJSON,
		worker.EstimatedCost,
		worker.SystemGenerated,
		worker.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save worker %s: %w", worker.Name, err)
	}

	return nil
}

// WorkerByName returns one catalog entry.
func (r *WorkerRepository) WorkerByName(ctx context.Context, name string) (*models.Worker, error) {
	query := `SELECT ` + workerColumns + ` FROM workers WHERE name = $1`

	worker, err := r.scanWorker(r.db.QueryRowContext(ctx, query, name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrWorkerNotFound
		}

		return nil, fmt.Errorf("failed to scan worker: %w", err)
	}

	return worker, nil
}

// Workers returns the whole catalog sorted by name.
func (r *WorkerRepository) Workers(ctx context.Context) ([]*models.Worker, error) {
	query := `SELECT ` + workerColumns + ` FROM workers ORDER BY name`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query workers: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	workers := make([]*models.Worker, 0)

	for rows.Next() {
		worker, err := r.scanWorker(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan worker: %w", err)
		}

		workers = append(workers, worker)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workers: %w", err)
	}

	return workers, nil
}

// SaveArtifact inserts the generated worker artifact.
func (r *WorkerRepository) SaveArtifact(ctx context.Context, artifact *models.WorkerArtifact) error {
	if artifact.CreatedAt.IsZero() {
		artifact.CreatedAt = time.Now().UTC()
	}

	if artifact.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate artifact ID: %w", err)
		}

		artifact.ID = id.String()
	}

	capabilitiesJSON, err := json.Marshal(artifact.Capabilities)
	if err != nil {
		return fmt.Errorf("failed to marshal artifact capabilities: %w", err)
	}

	var gateID any
	if artifact.GateID != "" {
		gateID = artifact.GateID
	}

	query := `
		INSERT INTO worker_artifacts (id, workflow_id, worker_name, description,
			capabilities, source, safety_verdict, gate_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			gate_id = EXCLUDED.gate_id
	`

	_, err = r.db.ExecContext(ctx, query,
		artifact.ID,
		artifact.WorkflowID,
		artifact.WorkerName,
		artifact.Description,
		capabilitiesJSON,
		artifact.Source,
		artifact.SafetyVerdict,
		gateID,
		artifact.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save artifact %s: %w", artifact.ID, err)
	}

	return nil
}

// ArtifactByID returns one artifact.
func (r *WorkerRepository) ArtifactByID(ctx context.Context, id string) (*models.WorkerArtifact, error) {
	query := `
		SELECT id, workflow_id, worker_name, description, capabilities, source, safety_verdict, gate_id, created_at
		FROM worker_artifacts
		WHERE id = $1
	`

	var (
		artifact         models.WorkerArtifact
		capabilitiesJSON []byte
		gateID           sql.NullString
	)

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&artifact.ID,
		&artifact.WorkflowID,
		&artifact.WorkerName,
		&artifact.Description,
		&capabilitiesJSON,
		&artifact.Source,
		&artifact.SafetyVerdict,
		&gateID,
		&artifact.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrArtifactNotFound
		}

		return nil, fmt.Errorf("failed to scan artifact: %w", err)
	}

	artifact.GateID = gateID.String

	if capabilitiesJSON != nil {
		err := json.Unmarshal(capabilitiesJSON, &artifact.Capabilities)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal artifact capabilities: %w", err)
		}
	}

	return &artifact, nil
}

func (r *WorkerRepository) scanWorker(scanner interface {
	Scan(dest ...any) error
}) (*models.Worker, error) {
	var (
		worker                             models.Worker
		parametersJSON, tagsJSON, capsJSON []byte
	)

	err := scanner.Scan(
		&worker.Name,
		&worker.Description,
		&worker.ScriptPath,
		&worker.Language,
		&parametersJSON,
		&tagsJSON,
		&capsJSON,
		&worker.EstimatedCost,
		&worker.SystemGenerated,
		&worker.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if parametersJSON != nil {
		if err := json.Unmarshal(parametersJSON, &worker.DefaultParameters); err != nil {
			return nil, fmt.Errorf("failed to unmarshal default parameters: %w", err)
		}
	}

	if tagsJSON != nil {
		if err := json.Unmarshal(tagsJSON, &worker.Tags); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
		}
	}

	if capsJSON != nil {
		if err := json.Unmarshal(capsJSON, &worker.Capabilities); err != nil {
			return nil, fmt.Errorf("failed to unmarshal capabilities: %w", err)
		}
	}

	return &worker, nil
}
