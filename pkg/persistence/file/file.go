// Package file provides file-based persistence for workflows, run records,
// approval gates and the worker catalog. It is intended for tests and local
// development; production deployments use the postgresql package.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dirigent-dev/dirigent/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface using JSON
// files under a root directory, one subdirectory per entity kind.
//
// A single lock serializes all operations. That is deliberate: gate
// resolutions arrive from goroutines other than the engine's, and the file
// backend has no transactional story of its own.
type Persistence struct {
	root string
	mu   sync.RWMutex

	workflowRepo  *WorkflowRepository
	runRecordRepo *RunRecordRepository
	gateRepo      *GateRepository
	workerRepo    *WorkerRepository
}

// NewPersistence creates a new instance rooted at the given directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	p := &Persistence{root: cleanRoot}
	p.workflowRepo = &WorkflowRepository{p: p}
	p.runRecordRepo = &RunRecordRepository{p: p}
	p.gateRepo = &GateRepository{p: p}
	p.workerRepo = &WorkerRepository{p: p}

	return p
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

// HealthCheck verifies the root directory is usable.
func (p *Persistence) HealthCheck(_ context.Context) error {
	if err := os.MkdirAll(p.root, 0o755); err != nil {
		return fmt.Errorf("file persistence root unavailable: %w", err)
	}

	return nil
}

// Close performs any necessary cleanup. Nothing to do for files.
func (p *Persistence) Close(_ context.Context) error {
	return nil
}

func (p *Persistence) entityPath(kind, id string) string {
	return filepath.Join(p.root, kind, id+".json")
}

// write marshals v into root/kind/id.json. Callers hold the lock.
func (p *Persistence) write(kind, id string, v any) error {
	dir := filepath.Join(p.root, kind)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", kind, err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s %s: %w", kind, id, err)
	}

	if err := os.WriteFile(p.entityPath(kind, id), data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s %s: %w", kind, id, err)
	}

	return nil
}

// read unmarshals root/kind/id.json into v, mapping a missing file to
// notFound. Callers hold the lock.
func (p *Persistence) read(kind, id string, v any, notFound error) error {
	data, err := os.ReadFile(p.entityPath(kind, id))
	if err != nil {
		if os.IsNotExist(err) {
			return notFound
		}

		return fmt.Errorf("failed to read %s %s: %w", kind, id, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s %s: %w", kind, id, err)
	}

	return nil
}

// ids lists the entity ids stored under root/kind. Callers hold the lock.
func (p *Persistence) ids(kind string) ([]string, error) {
	root := os.DirFS(filepath.Join(p.root, kind))

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list %s files: %w", kind, err)
	}

	ids := make([]string, 0, len(jsonFiles))
	for _, file := range jsonFiles {
		ids = append(ids, strings.TrimSuffix(file, ".json"))
	}

	return ids, nil
}

func (p *Persistence) remove(kind, id string) error {
	err := os.Remove(p.entityPath(kind, id))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s %s: %w", kind, id, err)
	}

	return nil
}
