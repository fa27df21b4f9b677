package file

import (
	"context"
	"sort"
	"time"

	"github.com/dirigent-dev/dirigent/pkg/models"
	"github.com/dirigent-dev/dirigent/pkg/persistence"
	"github.com/google/uuid"
)

const (
	workerKind   = "workers"
	artifactKind = "artifacts"
)

// WorkerRepository handles worker catalog and artifact file operations.
type WorkerRepository struct {
	p *Persistence
}

// SaveWorker writes the catalog entry, keyed by worker name.
func (r *WorkerRepository) SaveWorker(_ context.Context, worker *models.Worker) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if worker.CreatedAt.IsZero() {
		worker.CreatedAt = time.Now().UTC()
	}

	return r.p.write(workerKind, worker.Name, worker)
}

// WorkerByName loads one catalog entry.
func (r *WorkerRepository) WorkerByName(_ context.Context, name string) (*models.Worker, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	var worker models.Worker

	err := r.p.read(workerKind, name, &worker, persistence.ErrWorkerNotFound)
	if err != nil {
		return nil, err
	}

	return &worker, nil
}

// Workers returns the whole catalog sorted by name.
func (r *WorkerRepository) Workers(_ context.Context) ([]*models.Worker, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	names, err := r.p.ids(workerKind)
	if err != nil {
		return []*models.Worker{}, nil
	}

	sort.Strings(names)

	workers := make([]*models.Worker, 0, len(names))

	for _, name := range names {
		var worker models.Worker
		if err := r.p.read(workerKind, name, &worker, persistence.ErrWorkerNotFound); err != nil {
			return nil, err
		}

		workers = append(workers, &worker)
	}

	return workers, nil
}

// SaveArtifact writes the generated worker artifact.
func (r *WorkerRepository) SaveArtifact(_ context.Context, artifact *models.WorkerArtifact) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if artifact.CreatedAt.IsZero() {
		artifact.CreatedAt = time.Now().UTC()
	}

	if artifact.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}

		artifact.ID = id.String()
	}

	return r.p.write(artifactKind, artifact.ID, artifact)
}

// ArtifactByID loads one artifact.
func (r *WorkerRepository) ArtifactByID(_ context.Context, id string) (*models.WorkerArtifact, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	var artifact models.WorkerArtifact

	err := r.p.read(artifactKind, id, &artifact, persistence.ErrArtifactNotFound)
	if err != nil {
		return nil, err
	}

	return &artifact, nil
}
