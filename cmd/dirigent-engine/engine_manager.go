package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.opentelemetry.io/otel/trace"

	"github.com/dirigent-dev/dirigent/pkg/eventbus"
	"github.com/dirigent-dev/dirigent/pkg/events"
	"github.com/dirigent-dev/dirigent/pkg/gates"
	"github.com/dirigent-dev/dirigent/pkg/persistence"
	"github.com/dirigent-dev/dirigent/pkg/planner"
	"github.com/dirigent-dev/dirigent/pkg/provision"
	"github.com/dirigent-dev/dirigent/pkg/registry"
	"github.com/dirigent-dev/dirigent/pkg/runner"
	"github.com/dirigent-dev/dirigent/pkg/workflow"
)

// EngineManager subscribes to queued-workflow events and runs each workflow
// on its own goroutine: sequential within a workflow, concurrent across
// workflows.
type EngineManager struct {
	id          string
	logger      *slog.Logger
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	engine      *workflow.Engine
	handles     *runner.HandleRegistry
	registry    *registry.Registry

	wg sync.WaitGroup
}

// NewEngineManager wires the engine from its collaborators.
func NewEngineManager(
	id string,
	logger *slog.Logger,
	p persistence.Persistence,
	eventBus eventbus.EventBus,
	plan planner.Planner,
	waker gates.Waker,
	tracer trace.Tracer,
	sandboxDir string,
) *EngineManager {
	managerLogger := logger.With("module", "dirigent-engine", "engine_id", id)

	reg := registry.NewRegistry(managerLogger, p.WorkerRepository())
	handles := runner.NewHandleRegistry()
	processRunner := runner.NewProcessRunner(managerLogger, handles)
	gateManager := gates.NewManager(managerLogger, p.GateRepository(), eventBus, waker, gates.Config{})
	invoker := workflow.NewInvoker(managerLogger, p.RunRecordRepository(), reg, processRunner, nil)
	coordinator := workflow.NewCoordinator(managerLogger, invoker, gateManager, nil, eventBus)
	provisioner := provision.NewProvisioner(managerLogger, p.WorkerRepository(), reg, plan, gateManager, eventBus, sandboxDir)
	engine := workflow.NewEngine(managerLogger, p.WorkflowRepository(), p.RunRecordRepository(),
		coordinator, provisioner, gateManager, plan, eventBus, tracer)

	return &EngineManager{
		id:          id,
		logger:      managerLogger,
		persistence: p,
		eventBus:    eventBus,
		engine:      engine,
		handles:     handles,
		registry:    reg,
	}
}

// Start loads the worker catalog, subscribes and blocks until a signal.
func (m *EngineManager) Start(ctx context.Context) error {
	if err := m.registry.Load(ctx); err != nil {
		return err
	}

	if err := m.eventBus.Handle(events.WorkflowQueuedEvent, m.handleWorkflowQueued); err != nil {
		return err
	}

	if err := m.eventBus.Subscribe(ctx); err != nil {
		m.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	m.logger.InfoContext(ctx, "Engine started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	m.logger.InfoContext(ctx, "Shutting down engine, waiting for in-flight workflows...")
	m.wg.Wait()

	return nil
}

func (m *EngineManager) handleWorkflowQueued(ctx context.Context, event any) error {
	queued, ok := event.(*events.WorkflowQueued)
	if !ok {
		m.logger.ErrorContext(ctx, "Invalid event type for WorkflowQueued")

		return nil
	}

	m.logger.InfoContext(ctx, "Workflow queued",
		"workflow_id", queued.WorkflowID, "resume", queued.Resume)

	m.wg.Add(1)

	go func() {
		defer m.wg.Done()

		if err := m.engine.Run(ctx, queued.WorkflowID); err != nil {
			m.logger.ErrorContext(ctx, "Workflow run failed",
				"workflow_id", queued.WorkflowID, "error", err)
		}
	}()

	return nil
}
