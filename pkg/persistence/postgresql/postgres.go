// Package postgresql provides PostgreSQL persistence for workflows, run
// records, approval gates and the worker catalog.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/dirigent-dev/dirigent/pkg/persistence"
	"github.com/dirigent-dev/dirigent/pkg/persistence/sqlbase"
	_ "github.com/lib/pq" // postgres driver
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db     *sql.DB
	logger *slog.Logger

	workflowRepo  *WorkflowRepository
	runRecordRepo *RunRecordRepository
	gateRepo      *GateRepository
	workerRepo    *WorkerRepository
}

// NewPersistence creates a new PostgreSQL persistence layer and runs any
// pending migrations.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:            database,
		logger:        logger,
		workflowRepo:  &WorkflowRepository{db: database, logger: logger},
		runRecordRepo: &RunRecordRepository{db: database, logger: logger},
		gateRepo:      &GateRepository{db: database, logger: logger},
		workerRepo:    &WorkerRepository{db: database, logger: logger},
	}, nil
}

// WorkflowRepository returns the workflow repository implementation.
func (p *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return p.workflowRepo
}

// RunRecordRepository returns the run record repository implementation.
func (p *Persistence) RunRecordRepository() persistence.RunRecordRepository {
	return p.runRecordRepo
}

// GateRepository returns the approval gate repository implementation.
func (p *Persistence) GateRepository() persistence.GateRepository {
	return p.gateRepo
}

// WorkerRepository returns the worker catalog repository implementation.
func (p *Persistence) WorkerRepository() persistence.WorkerRepository {
	return p.workerRepo
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}
