// Package registry maintains the worker catalog: the set of named, invocable
// workers the planner can assign steps to, including workers adopted mid-run.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dirigent-dev/dirigent/pkg/models"
	"github.com/dirigent-dev/dirigent/pkg/persistence"
)

// Registry resolves worker names to catalog entries. Reads go through an
// in-memory snapshot refreshed from the store; registrations write through
// to the store and install a new snapshot atomically, so a provisioning
// rejection never leaves a partially visible entry.
type Registry struct {
	logger  *slog.Logger
	workers persistence.WorkerRepository

	mu       sync.RWMutex
	snapshot map[string]*models.Worker
}

// NewRegistry creates a registry backed by the given worker repository.
func NewRegistry(logger *slog.Logger, workers persistence.WorkerRepository) *Registry {
	return &Registry{
		logger:   logger.With("module", "registry"),
		workers:  workers,
		snapshot: make(map[string]*models.Worker),
	}
}

// Load refreshes the snapshot from the store. Call once at engine start;
// later registrations keep the snapshot current.
func (r *Registry) Load(ctx context.Context) error {
	workers, err := r.workers.Workers(ctx)
	if err != nil {
		return fmt.Errorf("failed to load worker catalog: %w", err)
	}

	snapshot := make(map[string]*models.Worker, len(workers))
	for _, worker := range workers {
		snapshot[worker.Name] = worker
	}

	r.mu.Lock()
	r.snapshot = snapshot
	r.mu.Unlock()

	r.logger.InfoContext(ctx, "Worker catalog loaded", "workers", len(snapshot))

	return nil
}

// Resolve returns the catalog entry for name. Falls back to the store on a
// snapshot miss so a worker registered by another process is still found.
func (r *Registry) Resolve(ctx context.Context, name string) (*models.Worker, error) {
	r.mu.RLock()
	worker, ok := r.snapshot[name]
	r.mu.RUnlock()

	if ok {
		return worker, nil
	}

	worker, err := r.workers.WorkerByName(ctx, name)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.snapshot[worker.Name] = worker
	r.mu.Unlock()

	return worker, nil
}

// Workers returns the current snapshot as a list, for planner catalogs.
func (r *Registry) Workers() []*models.Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()

	workers := make([]*models.Worker, 0, len(r.snapshot))
	for _, worker := range r.snapshot {
		workers = append(workers, worker)
	}

	return workers
}

// Register persists the worker and installs a fresh snapshot containing it.
// The copy keeps concurrent readers on the old view until the store write
// has succeeded.
func (r *Registry) Register(ctx context.Context, worker *models.Worker) error {
	if err := r.workers.SaveWorker(ctx, worker); err != nil {
		return fmt.Errorf("failed to persist worker %s: %w", worker.Name, err)
	}

	r.mu.Lock()
	snapshot := make(map[string]*models.Worker, len(r.snapshot)+1)
	for name, w := range r.snapshot {
		snapshot[name] = w
	}

	snapshot[worker.Name] = worker
	r.snapshot = snapshot
	r.mu.Unlock()

	r.logger.InfoContext(ctx, "Worker registered", "worker", worker.Name, "system_generated", worker.SystemGenerated)

	return nil
}
