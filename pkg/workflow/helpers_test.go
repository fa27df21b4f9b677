package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dirigent-dev/dirigent/pkg/eventbus"
	"github.com/dirigent-dev/dirigent/pkg/gates"
	"github.com/dirigent-dev/dirigent/pkg/models"
	"github.com/dirigent-dev/dirigent/pkg/persistence/file"
	"github.com/dirigent-dev/dirigent/pkg/provision"
	"github.com/dirigent-dev/dirigent/pkg/registry"
	"github.com/dirigent-dev/dirigent/pkg/runner"
	"github.com/dirigent-dev/dirigent/pkg/testutil"
)

// stubRunner returns canned results per worker name instead of spawning
// processes.
type stubRunner struct {
	mu      sync.Mutex
	results map[string]*runner.Result
	errs    map[string]error
	calls   []string
}

func newStubRunner() *stubRunner {
	return &stubRunner{
		results: make(map[string]*runner.Result),
		errs:    make(map[string]error),
	}
}

func (s *stubRunner) succeed(workerName, output string) {
	s.results[workerName] = &runner.Result{ExitCode: 0, Output: output, Duration: time.Millisecond}
}

func (s *stubRunner) fail(workerName, stderr string) {
	s.results[workerName] = &runner.Result{ExitCode: 1, Stderr: stderr, Duration: time.Millisecond}
}

func (s *stubRunner) explode(workerName string, err error) {
	s.errs[workerName] = err
}

func (s *stubRunner) Run(_ context.Context, _ string, worker *models.Worker, _ map[string]string) (*runner.Result, error) {
	s.mu.Lock()
	s.calls = append(s.calls, worker.Name)
	s.mu.Unlock()

	if err, ok := s.errs[worker.Name]; ok {
		return nil, err
	}

	if result, ok := s.results[worker.Name]; ok {
		return result, nil
	}

	return &runner.Result{ExitCode: 0, Output: "ok", Duration: time.Millisecond}, nil
}

func (s *stubRunner) invoked() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.calls...)
}

// stubPlanner satisfies the planner interfaces without any HTTP.
type stubPlanner struct {
	steps     []*models.Step
	planErr   error
	summary   string
	source    string
	sourceErr error
}

func (s *stubPlanner) PlanWorkflow(_ context.Context, _ string, _ []*models.Worker) ([]*models.Step, error) {
	return s.steps, s.planErr
}

func (s *stubPlanner) Summarize(_ context.Context, _ string, _ []*models.RunRecord) (string, error) {
	return s.summary, nil
}

func (s *stubPlanner) GenerateWorkerSource(_ context.Context, _ *models.WorkerSpec) (string, error) {
	return s.source, s.sourceErr
}

// capturingPublisher records published events for assertions.
type capturingPublisher struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (c *capturingPublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.events = append(c.events, event)

	return nil
}

func (c *capturingPublisher) published() []eventbus.Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]eventbus.Event(nil), c.events...)
}

// harness wires an engine over file persistence and stub collaborators.
type harness struct {
	persistence *file.Persistence
	registry    *registry.Registry
	gates       *gates.Manager
	invoker     *Invoker
	coordinator *Coordinator
	engine      *Engine
	runner      *stubRunner
	planner     *stubPlanner
	bus         *capturingPublisher
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	p := file.NewPersistence(t.TempDir())
	require.NoError(t, p.HealthCheck(context.Background()))

	reg := registry.NewRegistry(logger, p.WorkerRepository())
	stub := newStubRunner()
	plan := &stubPlanner{summary: "all steps completed", source: safeWorkerSource}
	bus := &capturingPublisher{}

	gateManager := gates.NewManager(logger, p.GateRepository(), bus, nil, gates.Config{
		PollInterval: 5 * time.Millisecond,
	})

	invoker := NewInvoker(logger, p.RunRecordRepository(), reg, stub, nil)
	coordinator := NewCoordinator(logger, invoker, gateManager, nil, bus)
	provisioner := provision.NewProvisioner(logger, p.WorkerRepository(), reg, plan, gateManager, bus, t.TempDir())
	engine := NewEngine(logger, p.WorkflowRepository(), p.RunRecordRepository(),
		coordinator, provisioner, gateManager, plan, bus, nil)

	return &harness{
		persistence: p,
		registry:    reg,
		gates:       gateManager,
		invoker:     invoker,
		coordinator: coordinator,
		engine:      engine,
		runner:      stub,
		planner:     plan,
		bus:         bus,
	}
}

const safeWorkerSource = `#!/usr/bin/env python3
import argparse

def main():
    parser = argparse.ArgumentParser()
    parser.add_argument('--input', required=True)
    args = parser.parse_args()
    print(f"processed {args.input}")

if __name__ == '__main__':
    main()
`

// seedWorkers registers catalog entries for every worker named in the plan.
func (h *harness) seedWorkers(t *testing.T, names ...string) {
	t.Helper()

	ctx := context.Background()

	for _, name := range names {
		worker := testutil.CreateTestWorker(testutil.WithWorkerName(name))
		require.NoError(t, h.persistence.WorkerRepository().SaveWorker(ctx, worker))
	}

	require.NoError(t, h.registry.Load(ctx))
}

// saveWorkflow persists the workflow for the engine to pick up.
func (h *harness) saveWorkflow(t *testing.T, workflow *models.Workflow) {
	t.Helper()

	require.NoError(t, h.persistence.WorkflowRepository().Save(context.Background(), workflow))
}

// resolveGates resolves pending gates in the background until the returned
// stop function is called. decide inspects each gate and picks the decision.
func (h *harness) resolveGates(t *testing.T, workflowID string, decide func(*models.ApprovalGate) models.GateStatus) func() {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup

	wg.Add(1)

	go func() {
		defer wg.Done()

		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Millisecond):
			}

			pending, err := h.persistence.GateRepository().ListByWorkflow(ctx, workflowID)
			if err != nil {
				continue
			}

			for _, gate := range pending {
				if gate.Status != models.GateStatusPending {
					continue
				}

				_ = h.gates.Resolve(ctx, gate.ID, decide(gate), "test-approver", "")
			}
		}
	}()

	return func() {
		cancel()
		wg.Wait()
	}
}

// runRecords returns the workflow's stored run records.
func (h *harness) runRecords(t *testing.T, workflowID string) []*models.RunRecord {
	t.Helper()

	records, err := h.persistence.RunRecordRepository().ListByWorkflow(context.Background(), workflowID)
	require.NoError(t, err)

	return records
}

// loadWorkflow re-reads the workflow from the store.
func (h *harness) loadWorkflow(t *testing.T, workflowID string) *models.Workflow {
	t.Helper()

	workflow, err := h.persistence.WorkflowRepository().GetByID(context.Background(), workflowID)
	require.NoError(t, err)

	return workflow
}

func approveAll(*models.ApprovalGate) models.GateStatus {
	return models.GateStatusApproved
}

func rejectAll(*models.ApprovalGate) models.GateStatus {
	return models.GateStatusRejected
}

var errBoom = fmt.Errorf("interpreter missing")
