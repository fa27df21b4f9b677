package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dirigent-dev/dirigent/pkg/models"
	"github.com/dirigent-dev/dirigent/pkg/persistence"
	"github.com/dirigent-dev/dirigent/pkg/registry"
	"github.com/dirigent-dev/dirigent/pkg/runner"
)

// Invoker is the worker invocation adapter: one out-of-process execution,
// single attempt, no retry. It owns the run record lifecycle and nothing
// else about the workflow.
type Invoker struct {
	logger   *slog.Logger
	records  persistence.RunRecordRepository
	registry *registry.Registry
	runner   runner.Runner
	costs    CostParser
}

// NewInvoker creates the adapter.
func NewInvoker(logger *slog.Logger, records persistence.RunRecordRepository, reg *registry.Registry, r runner.Runner, costs CostParser) *Invoker {
	if costs == nil {
		costs = NewCostParser()
	}

	return &Invoker{
		logger:   logger.With("module", "invoker"),
		records:  records,
		registry: reg,
		runner:   r,
		costs:    costs,
	}
}

// Invoke runs the step's worker to completion and returns its run record.
//
// The record reaches its terminal status durably before Invoke returns. An
// earlier rendition of this adapter returned on process start instead, which
// left workflows permanently stuck at their first step; the terminal write
// is the contract here, not an afterthought.
//
// An unknown worker name fails immediately without creating a run record.
// A non-zero exit persists a Failed record and returns it together with an
// error wrapping ErrInvocationFailed; a failure to execute at all returns
// the record with a plain error.
func (i *Invoker) Invoke(ctx context.Context, workflow *models.Workflow, step *models.Step) (*models.RunRecord, error) {
	worker, err := i.registry.Resolve(ctx, step.WorkerName)
	if err != nil {
		return nil, fmt.Errorf("step %d references unknown worker %q: %w", step.Ordinal, step.WorkerName, err)
	}

	record := &models.RunRecord{
		WorkflowID:  workflow.ID,
		StepOrdinal: step.Ordinal,
		WorkerName:  worker.Name,
		Status:      models.RunStatusPending,
	}

	if err := i.records.Save(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to create run record for step %d: %w", step.Ordinal, err)
	}

	started := time.Now().UTC()
	record.Status = models.RunStatusRunning
	record.StartedAt = &started

	if err := i.records.Save(ctx, record); err != nil {
		return record, fmt.Errorf("failed to mark run record %s running: %w", record.ID, err)
	}

	i.logger.InfoContext(ctx, "Invoking worker",
		"workflow_id", workflow.ID, "step_ordinal", step.Ordinal, "worker", worker.Name, "run_record_id", record.ID)

	result, runErr := i.runner.Run(ctx, record.ID, worker, mergeParameters(worker.DefaultParameters, step.Parameters))

	completed := time.Now().UTC()
	record.CompletedAt = &completed

	if runErr != nil {
		record.Status = models.RunStatusFailed
		record.ErrorMessage = models.Truncate(runErr.Error(), models.MaxErrorLen)

		if err := i.records.Save(ctx, record); err != nil {
			return record, fmt.Errorf("failed to persist failed run record %s: %w", record.ID, err)
		}

		return record, fmt.Errorf("worker %q execution error: %w", worker.Name, runErr)
	}

	record.ExitCode = result.ExitCode
	record.Output = models.Truncate(result.Output, models.MaxOutputLen)
	record.Cost = i.costs.Parse(result.Output)

	if result.ExitCode != 0 {
		record.Status = models.RunStatusFailed
		record.ErrorMessage = models.Truncate(result.Stderr, models.MaxErrorLen)

		if err := i.records.Save(ctx, record); err != nil {
			return record, fmt.Errorf("failed to persist failed run record %s: %w", record.ID, err)
		}

		return record, fmt.Errorf("worker %q exited with code %d: %s: %w",
			worker.Name, result.ExitCode, record.ErrorMessage, ErrInvocationFailed)
	}

	record.Status = models.RunStatusCompleted

	if err := i.records.Save(ctx, record); err != nil {
		return record, fmt.Errorf("failed to persist completed run record %s: %w", record.ID, err)
	}

	i.logger.InfoContext(ctx, "Worker invocation completed",
		"run_record_id", record.ID, "worker", worker.Name, "duration", result.Duration, "cost", record.Cost)

	return record, nil
}

// mergeParameters overlays the step's parameters on the worker's defaults.
func mergeParameters(defaults, overrides map[string]string) map[string]string {
	merged := make(map[string]string, len(defaults)+len(overrides))

	for key, value := range defaults {
		merged[key] = value
	}

	for key, value := range overrides {
		merged[key] = value
	}

	return merged
}
