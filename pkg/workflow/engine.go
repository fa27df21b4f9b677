package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dirigent-dev/dirigent/pkg/eventbus"
	"github.com/dirigent-dev/dirigent/pkg/events"
	"github.com/dirigent-dev/dirigent/pkg/gates"
	"github.com/dirigent-dev/dirigent/pkg/models"
	"github.com/dirigent-dev/dirigent/pkg/otelhelper"
	"github.com/dirigent-dev/dirigent/pkg/persistence"
	"github.com/dirigent-dev/dirigent/pkg/provision"
)

// Engine advances one workflow at a time through its plan. Steps within a
// workflow are strictly sequential; distinct workflows may run on separate
// engine goroutines concurrently.
type Engine struct {
	logger      *slog.Logger
	workflows   persistence.WorkflowRepository
	records     persistence.RunRecordRepository
	coordinator *Coordinator
	provisioner *provision.Provisioner
	gates       *gates.Manager
	summarizer  Summarizer
	eventBus    eventbus.EventPublisher
	tracer      trace.Tracer
}

// Summarizer produces the executive summary on completion. Satisfied by the
// planner.
type Summarizer interface {
	Summarize(ctx context.Context, goal string, records []*models.RunRecord) (string, error)
}

// NewEngine creates an engine. summarizer, eventBus and tracer may be nil.
func NewEngine(logger *slog.Logger, workflows persistence.WorkflowRepository, records persistence.RunRecordRepository, coordinator *Coordinator, provisioner *provision.Provisioner, gateManager *gates.Manager, summarizer Summarizer, eventBus eventbus.EventPublisher, tracer trace.Tracer) *Engine {
	return &Engine{
		logger:      logger.With("module", "engine"),
		workflows:   workflows,
		records:     records,
		coordinator: coordinator,
		provisioner: provisioner,
		gates:       gateManager,
		summarizer:  summarizer,
		eventBus:    eventBus,
		tracer:      tracer,
	}
}

// Run executes the workflow to a terminal status and returns the abort
// error, if any. The stored status is never left at Running once Run
// observes an error: every exit path persists a terminal transition first,
// then re-raises, so callers must not assume a clean return from a failed
// run.
func (e *Engine) Run(ctx context.Context, workflowID string) error {
	var span trace.Span

	if e.tracer != nil {
		ctx, span = otelhelper.StartSpan(ctx, e.tracer, "workflow.run",
			attribute.String(otelhelper.WorkflowIDKey, workflowID))
		defer span.End()
	}

	workflow, err := e.workflows.GetByID(ctx, workflowID)
	if err != nil {
		return fmt.Errorf("failed to load workflow %s: %w", workflowID, err)
	}

	if workflow.Status.Terminal() {
		return fmt.Errorf("workflow %s is already %s", workflowID, workflow.Status)
	}

	if workflow.Status != models.WorkflowStatusRunning {
		if !workflow.Status.CanTransitionTo(models.WorkflowStatusRunning) {
			return fmt.Errorf("workflow %s cannot start from status %s", workflowID, workflow.Status)
		}

		started := time.Now().UTC()
		workflow.Status = models.WorkflowStatusRunning
		workflow.CurrentStepIndex = 0
		workflow.StartedAt = &started

		if err := e.workflows.UpdateStatus(ctx, workflow); err != nil {
			return fmt.Errorf("failed to start workflow %s: %w", workflowID, err)
		}

		e.publish(ctx, workflow.ID, events.WorkflowStarted{
			BaseEvent: events.NewBaseEvent(events.WorkflowStartedEvent, workflow.ID),
			Goal:      workflow.Goal,
			StepCount: workflow.StepCount,
		})
	}

	e.logger.InfoContext(ctx, "Workflow running",
		"workflow_id", workflow.ID, "steps", workflow.StepCount, "resume_from", workflow.CurrentStepIndex)

	if err := e.execute(ctx, workflow); err != nil {
		if span != nil {
			otelhelper.SetError(span, err)
		}

		e.abort(ctx, workflow, err)

		return err
	}

	e.complete(ctx, workflow)

	return nil
}

// execute runs the provisioning pre-pass and then the step loop. Any error
// it returns aborts the run.
func (e *Engine) execute(ctx context.Context, workflow *models.Workflow) error {
	if err := e.reconcileInterrupted(ctx, workflow); err != nil {
		return err
	}

	// New workers are computed once, before the loop, never per step.
	for _, spec := range workflow.NewWorkers() {
		if err := e.provisionWorker(ctx, workflow, spec); err != nil {
			return err
		}
	}

	resumeFrom := workflow.CurrentStepIndex

	for _, step := range workflow.Plan {
		if step.Ordinal <= resumeFrom {
			continue
		}

		// The in-memory cursor names the step in flight; the store is
		// updated once the step's own records are terminal, keeping the
		// persisted index behind the newest run record at all times.
		workflow.CurrentStepIndex = step.Ordinal

		record, stepErr := e.runStep(ctx, workflow, step)

		if record == nil && stepErr != nil {
			// The step produced no run record (gate rejected before
			// invocation, or the worker could not be started at all), so
			// persisting the advanced cursor would let observers see an
			// index past the newest record.
			return stepErr
		}

		if record != nil && record.Cost != nil {
			workflow.TotalCost += *record.Cost
		}

		if err := e.workflows.UpdateProgress(ctx, workflow.ID, workflow.CurrentStepIndex, workflow.TotalCost); err != nil {
			return fmt.Errorf("failed to persist progress at step %d: %w", step.Ordinal, err)
		}

		e.publish(ctx, workflow.ID, events.WorkflowProgress{
			BaseEvent:        events.NewBaseEvent(events.WorkflowProgressEvent, workflow.ID),
			CurrentStepIndex: workflow.CurrentStepIndex,
			StepCount:        workflow.StepCount,
			TotalCost:        workflow.TotalCost,
		})

		if stepErr != nil {
			return stepErr
		}
	}

	return nil
}

// reconcileInterrupted cancels run records a previous engine process left at
// a non-terminal status. Their writer is gone, so nothing will ever finish
// them; replaying the step would otherwise store a fresh record next to a
// permanently running one for the same ordinal.
func (e *Engine) reconcileInterrupted(ctx context.Context, workflow *models.Workflow) error {
	records, err := e.records.ListByWorkflow(ctx, workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to list run records for %s: %w", workflow.ID, err)
	}

	for _, record := range records {
		if record.Status.Terminal() {
			continue
		}

		completed := time.Now().UTC()
		record.Status = models.RunStatusCancelled
		record.ErrorMessage = "interrupted by engine restart"
		record.CompletedAt = &completed

		if err := e.records.Save(ctx, record); err != nil {
			return fmt.Errorf("failed to cancel interrupted run record %s: %w", record.ID, err)
		}

		e.logger.WarnContext(ctx, "Cancelled interrupted run record",
			"workflow_id", workflow.ID, "run_record_id", record.ID, "step_ordinal", record.StepOrdinal)
	}

	return nil
}

func (e *Engine) runStep(ctx context.Context, workflow *models.Workflow, step *models.Step) (*models.RunRecord, error) {
	if e.tracer != nil {
		var span trace.Span

		ctx, span = otelhelper.StartSpan(ctx, e.tracer, "workflow.step",
			attribute.String(otelhelper.WorkflowIDKey, workflow.ID),
			attribute.Int(otelhelper.StepOrdinalKey, step.Ordinal),
			attribute.String(otelhelper.WorkerNameKey, step.WorkerName))
		defer span.End()

		record, err := e.coordinator.ExecuteStep(ctx, workflow, step)
		if err != nil {
			otelhelper.SetError(span, err)
		}

		return record, err
	}

	return e.coordinator.ExecuteStep(ctx, workflow, step)
}

// provisionWorker runs one spec through provisioning and blocks on the
// adoption gate. A rejection aborts the run before any step executes.
func (e *Engine) provisionWorker(ctx context.Context, workflow *models.Workflow, spec *models.WorkerSpec) error {
	artifact, gate, err := e.provisioner.Provision(ctx, workflow.ID, spec)
	if err != nil {
		return err
	}

	decision, err := e.gates.Await(ctx, gate.ID)
	if err != nil {
		return fmt.Errorf("failed awaiting adoption gate %s: %w", gate.ID, err)
	}

	if decision == models.GateStatusRejected {
		return fmt.Errorf("worker %q adoption gate %s: %w", spec.Name, gate.ID, ErrGateRejected)
	}

	if _, err := e.provisioner.Finalize(ctx, artifact); err != nil {
		return fmt.Errorf("failed to finalize worker %q: %w", spec.Name, err)
	}

	return nil
}

// complete closes out a run whose every step was processed.
func (e *Engine) complete(ctx context.Context, workflow *models.Workflow) {
	if e.summarizer != nil {
		list, err := e.records.ListByWorkflow(ctx, workflow.ID)
		if err == nil {
			summary, serr := e.summarizer.Summarize(ctx, workflow.Goal, list)
			if serr != nil {
				e.logger.WarnContext(ctx, "Failed to generate summary", "workflow_id", workflow.ID, "error", serr)
			} else {
				workflow.Summary = summary
			}
		}
	}

	completed := time.Now().UTC()
	workflow.Status = models.WorkflowStatusCompleted
	workflow.CompletedAt = &completed

	if err := e.workflows.UpdateStatus(ctx, workflow); err != nil {
		e.logger.ErrorContext(ctx, "Failed to persist completed status", "workflow_id", workflow.ID, "error", err)

		return
	}

	e.publish(ctx, workflow.ID, events.WorkflowCompleted{
		BaseEvent: events.NewBaseEvent(events.WorkflowCompletedEvent, workflow.ID),
		Summary:   workflow.Summary,
		TotalCost: workflow.TotalCost,
		Duration:  runDuration(workflow),
	})

	e.logger.InfoContext(ctx, "Workflow completed",
		"workflow_id", workflow.ID, "total_cost", workflow.TotalCost)
}

// abort persists the terminal status implied by the abort error before the
// engine re-raises it: Cancelled for a human rejection, Failed otherwise.
func (e *Engine) abort(ctx context.Context, workflow *models.Workflow, cause error) {
	completed := time.Now().UTC()
	workflow.CompletedAt = &completed

	if IsGateRejected(cause) {
		workflow.Status = models.WorkflowStatusCancelled
	} else {
		workflow.Status = models.WorkflowStatusFailed
		workflow.Summary = models.Truncate(cause.Error(), models.MaxErrorLen)
	}

	if err := e.workflows.UpdateStatus(ctx, workflow); err != nil {
		e.logger.ErrorContext(ctx, "Failed to persist terminal status",
			"workflow_id", workflow.ID, "status", workflow.Status, "error", err)
	}

	switch workflow.Status {
	case models.WorkflowStatusCancelled:
		e.publish(ctx, workflow.ID, events.WorkflowCancelled{
			BaseEvent: events.NewBaseEvent(events.WorkflowCancelledEvent, workflow.ID),
			Reason:    cause.Error(),
		})
	default:
		e.publish(ctx, workflow.ID, events.WorkflowFailed{
			BaseEvent:    events.NewBaseEvent(events.WorkflowFailedEvent, workflow.ID),
			Error:        cause.Error(),
			FailedAtStep: workflow.CurrentStepIndex,
		})
	}

	e.logger.WarnContext(ctx, "Workflow aborted",
		"workflow_id", workflow.ID, "status", workflow.Status, "error", cause)
}

func (e *Engine) publish(ctx context.Context, workflowID string, event eventbus.Event) {
	if e.eventBus == nil {
		return
	}

	if err := e.eventBus.Publish(ctx, workflowID, event); err != nil {
		e.logger.ErrorContext(ctx, "Failed to publish workflow event", "error", err, "event", event.GetType())
	}
}

func runDuration(workflow *models.Workflow) time.Duration {
	if workflow.StartedAt == nil || workflow.CompletedAt == nil {
		return 0
	}

	return workflow.CompletedAt.Sub(*workflow.StartedAt)
}
