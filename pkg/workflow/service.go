package workflow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/dirigent-dev/dirigent/pkg/eventbus"
	"github.com/dirigent-dev/dirigent/pkg/events"
	"github.com/dirigent-dev/dirigent/pkg/models"
	"github.com/dirigent-dev/dirigent/pkg/persistence"
	"github.com/dirigent-dev/dirigent/pkg/planner"
	"github.com/dirigent-dev/dirigent/pkg/registry"
)

// Service is the boundary surface callers use to create and kick off
// workflows. Start and Resume are fire-and-forget: the caller gets an id
// immediately and observes completion through the store or the event
// channel, never by blocking here.
type Service struct {
	logger    *slog.Logger
	workflows persistence.WorkflowRepository
	planner   planner.Planner
	registry  *registry.Registry
	eventBus  eventbus.EventPublisher
	validator *validator.Validate
}

// NewService creates the service.
func NewService(logger *slog.Logger, workflows persistence.WorkflowRepository, p planner.Planner, reg *registry.Registry, eventBus eventbus.EventPublisher) *Service {
	return &Service{
		logger:    logger.With("module", "service"),
		workflows: workflows,
		planner:   p,
		registry:  reg,
		eventBus:  eventBus,
		validator: validator.New(),
	}
}

// Start plans the goal against the current worker catalog and persists the
// workflow. When execute is true it also queues the workflow for an engine
// process to pick up; otherwise the workflow stays Saved.
//
// A planning failure surfaces planner.ErrPlanningFailed and persists
// nothing: there is no partial workflow to clean up.
func (s *Service) Start(ctx context.Context, goal string, execute bool) (*models.Workflow, error) {
	if goal == "" {
		return nil, fmt.Errorf("goal must not be empty")
	}

	steps, err := s.planner.PlanWorkflow(ctx, goal, s.registry.Workers())
	if err != nil {
		return nil, err
	}

	workflow := &models.Workflow{
		Goal:      goal,
		Plan:      steps,
		Status:    models.WorkflowStatusSaved,
		StepCount: len(steps),
	}

	if err := s.validator.Struct(workflow); err != nil {
		return nil, fmt.Errorf("%w: planned workflow failed validation: %v", planner.ErrPlanningFailed, err)
	}

	for _, step := range steps {
		if err := s.validator.Struct(step); err != nil {
			return nil, fmt.Errorf("%w: planned step %d failed validation: %v", planner.ErrPlanningFailed, step.Ordinal, err)
		}
	}

	if err := s.workflows.Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to persist workflow: %w", err)
	}

	s.logger.InfoContext(ctx, "Workflow created",
		"workflow_id", workflow.ID, "steps", workflow.StepCount, "execute", execute)

	if execute {
		if err := s.queue(ctx, workflow.ID, false); err != nil {
			return workflow, err
		}
	}

	return workflow, nil
}

// Resume queues a previously saved or interrupted workflow for execution.
func (s *Service) Resume(ctx context.Context, workflowID string) error {
	workflow, err := s.workflows.GetByID(ctx, workflowID)
	if err != nil {
		return err
	}

	if workflow.Status.Terminal() {
		return fmt.Errorf("workflow %s is already %s", workflowID, workflow.Status)
	}

	return s.queue(ctx, workflowID, workflow.Status == models.WorkflowStatusRunning)
}

func (s *Service) queue(ctx context.Context, workflowID string, resume bool) error {
	event := events.WorkflowQueued{
		BaseEvent: events.NewBaseEvent(events.WorkflowQueuedEvent, workflowID),
		Resume:    resume,
	}

	if err := s.eventBus.Publish(ctx, workflowID, event); err != nil {
		return fmt.Errorf("failed to queue workflow %s: %w", workflowID, err)
	}

	s.logger.InfoContext(ctx, "Workflow queued", "workflow_id", workflowID, "resume", resume)

	return nil
}
