package registry

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dirigent-dev/dirigent/pkg/persistence"
	"github.com/dirigent-dev/dirigent/pkg/persistence/file"
	"github.com/dirigent-dev/dirigent/pkg/testutil"
)

func newTestRegistry(t *testing.T) (*Registry, *file.Persistence) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	p := file.NewPersistence(t.TempDir())
	require.NoError(t, p.HealthCheck(context.Background()))

	return NewRegistry(logger, p.WorkerRepository()), p
}

func TestRegistryLoadAndResolve(t *testing.T) {
	ctx := context.Background()
	reg, p := newTestRegistry(t)

	worker := testutil.CreateTestWorker()
	require.NoError(t, p.WorkerRepository().SaveWorker(ctx, worker))
	require.NoError(t, reg.Load(ctx))

	resolved, err := reg.Resolve(ctx, worker.Name)
	require.NoError(t, err)
	assert.Equal(t, worker.Name, resolved.Name)
	assert.Equal(t, worker.ScriptPath, resolved.ScriptPath)
}

func TestRegistryResolveUnknown(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t)
	require.NoError(t, reg.Load(ctx))

	_, err := reg.Resolve(ctx, "no-such-worker")
	require.Error(t, err)
	assert.True(t, persistence.IsWorkerNotFound(err))
}

// A worker saved by another process after Load is still resolvable through
// the store fallback.
func TestRegistryResolveFallsBackToStore(t *testing.T) {
	ctx := context.Background()
	reg, p := newTestRegistry(t)
	require.NoError(t, reg.Load(ctx))

	worker := testutil.CreateTestWorker(testutil.WithWorkerName("late-arrival"))
	require.NoError(t, p.WorkerRepository().SaveWorker(ctx, worker))

	resolved, err := reg.Resolve(ctx, "late-arrival")
	require.NoError(t, err)
	assert.Equal(t, "late-arrival", resolved.Name)

	// The miss installed the worker into the snapshot.
	assert.Len(t, reg.Workers(), 1)
}

func TestRegistryWorkers(t *testing.T) {
	ctx := context.Background()
	reg, p := newTestRegistry(t)

	for _, name := range []string{"pdf-ocr-parser", "hubspot-contact-sync"} {
		require.NoError(t, p.WorkerRepository().SaveWorker(ctx, testutil.CreateTestWorker(testutil.WithWorkerName(name))))
	}

	require.NoError(t, reg.Load(ctx))

	workers := reg.Workers()
	require.Len(t, workers, 2)

	names := []string{workers[0].Name, workers[1].Name}
	assert.ElementsMatch(t, []string{"pdf-ocr-parser", "hubspot-contact-sync"}, names)
}

func TestRegistryRegister(t *testing.T) {
	ctx := context.Background()
	reg, p := newTestRegistry(t)
	require.NoError(t, reg.Load(ctx))

	worker := testutil.CreateTestWorker(testutil.WithWorkerName("csv-differ"))
	require.NoError(t, reg.Register(ctx, worker))

	// Visible in the snapshot and durably in the store.
	resolved, err := reg.Resolve(ctx, "csv-differ")
	require.NoError(t, err)
	assert.Equal(t, "csv-differ", resolved.Name)

	stored, err := p.WorkerRepository().WorkerByName(ctx, "csv-differ")
	require.NoError(t, err)
	assert.Equal(t, "csv-differ", stored.Name)
}
