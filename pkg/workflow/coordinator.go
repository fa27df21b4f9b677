package workflow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dirigent-dev/dirigent/pkg/eventbus"
	"github.com/dirigent-dev/dirigent/pkg/events"
	"github.com/dirigent-dev/dirigent/pkg/gates"
	"github.com/dirigent-dev/dirigent/pkg/models"
)

// Coordinator executes one step: policy check, approval gate, invocation,
// result gating. It absorbs ordinary worker failures and escalates only
// human rejections, pre-check failures and coordination errors.
type Coordinator struct {
	logger   *slog.Logger
	invoker  *Invoker
	gates    *gates.Manager
	policy   *ApprovalPolicy
	eventBus eventbus.EventPublisher
}

// NewCoordinator creates a coordinator. A nil policy gets the default one.
func NewCoordinator(logger *slog.Logger, invoker *Invoker, gateManager *gates.Manager, policy *ApprovalPolicy, eventBus eventbus.EventPublisher) *Coordinator {
	if policy == nil {
		policy = DefaultApprovalPolicy()
	}

	return &Coordinator{
		logger:   logger.With("module", "coordinator"),
		invoker:  invoker,
		gates:    gateManager,
		policy:   policy,
		eventBus: eventBus,
	}
}

// ExecuteStep runs the step end to end and returns its run record.
//
// Error contract: a nil error with a Failed record means the failure was
// absorbed and the plan continues. ErrGateRejected and ErrPreCheckFailed
// abort the run; any other error is a coordination failure the engine
// treats as fatal.
func (c *Coordinator) ExecuteStep(ctx context.Context, workflow *models.Workflow, step *models.Step) (*models.RunRecord, error) {
	if kind, required := c.policy.Evaluate(step); required {
		if err := c.awaitApproval(ctx, workflow, step, kind, stepSnapshot(step)); err != nil {
			return nil, err
		}
	}

	c.publish(ctx, workflow.ID, events.StepStarted{
		BaseEvent:   events.NewBaseEvent(events.StepStartedEvent, workflow.ID),
		StepOrdinal: step.Ordinal,
		WorkerName:  step.WorkerName,
	})

	record, err := c.invoker.Invoke(ctx, workflow, step)
	if err != nil {
		if !IsInvocationFailed(err) {
			// Unknown worker or a failure to execute at all: fatal.
			return record, err
		}

		c.logger.WarnContext(ctx, "Step failed",
			"workflow_id", workflow.ID, "step_ordinal", step.Ordinal, "error", err)

		c.publish(ctx, workflow.ID, events.StepFailed{
			BaseEvent:   events.NewBaseEvent(events.StepFailedEvent, workflow.ID),
			StepOrdinal: step.Ordinal,
			WorkerName:  step.WorkerName,
			RunRecordID: record.ID,
			Error:       record.ErrorMessage,
		})

		if step.GateCondition == models.GateConditionPreCheck {
			return record, fmt.Errorf("step %d (%s): %w", step.Ordinal, step.WorkerName, ErrPreCheckFailed)
		}

		return record, nil
	}

	if step.GateCondition == models.GateConditionPostValidation {
		if err := c.awaitApproval(ctx, workflow, step, models.GateKindPostValidation, resultSnapshot(step, record)); err != nil {
			return record, err
		}
	}

	c.publish(ctx, workflow.ID, events.StepFinished{
		BaseEvent:   events.NewBaseEvent(events.StepFinishedEvent, workflow.ID),
		StepOrdinal: step.Ordinal,
		WorkerName:  step.WorkerName,
		RunRecordID: record.ID,
		Status:      record.Status,
		Cost:        record.Cost,
		DurationMs:  durationMs(record),
	})

	return record, nil
}

// awaitApproval opens a gate and blocks until a human resolves it. A
// rejection aborts the entire workflow, not just this step.
func (c *Coordinator) awaitApproval(ctx context.Context, workflow *models.Workflow, step *models.Step, kind models.GateKind, snapshot map[string]any) error {
	gate, err := c.gates.Open(ctx, workflow.ID, step.Ordinal, kind, snapshot)
	if err != nil {
		return fmt.Errorf("failed to open %s gate for step %d: %w", kind, step.Ordinal, err)
	}

	decision, err := c.gates.Await(ctx, gate.ID)
	if err != nil {
		return fmt.Errorf("failed awaiting gate %s: %w", gate.ID, err)
	}

	if decision == models.GateStatusRejected {
		return fmt.Errorf("step %d (%s) gate %s: %w", step.Ordinal, step.WorkerName, gate.ID, ErrGateRejected)
	}

	return nil
}

func (c *Coordinator) publish(ctx context.Context, workflowID string, event eventbus.Event) {
	if c.eventBus == nil {
		return
	}

	if err := c.eventBus.Publish(ctx, workflowID, event); err != nil {
		c.logger.ErrorContext(ctx, "Failed to publish step event", "error", err, "event", event.GetType())
	}
}

// stepSnapshot captures what a pre-execution approver is deciding on.
func stepSnapshot(step *models.Step) map[string]any {
	return map[string]any{
		"ordinal":     step.Ordinal,
		"worker_name": step.WorkerName,
		"description": step.Description,
		"parameters":  step.Parameters,
	}
}

// resultSnapshot captures what a post-validation approver is reviewing.
func resultSnapshot(step *models.Step, record *models.RunRecord) map[string]any {
	return map[string]any{
		"ordinal":       step.Ordinal,
		"worker_name":   step.WorkerName,
		"run_record_id": record.ID,
		"status":        string(record.Status),
		"output":        record.Output,
	}
}

func durationMs(record *models.RunRecord) int64 {
	if record.StartedAt == nil || record.CompletedAt == nil {
		return 0
	}

	return record.CompletedAt.Sub(*record.StartedAt).Milliseconds()
}
