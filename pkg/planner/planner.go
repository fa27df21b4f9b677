// Package planner defines the planning collaborator: the component that
// turns a natural-language goal into an ordered step list, summarizes a
// finished run, and generates source for new workers.
package planner

import (
	"context"
	"errors"

	"github.com/dirigent-dev/dirigent/pkg/models"
)

// ErrPlanningFailed indicates the planning collaborator returned output
// that could not be turned into a usable plan. Surfaced to the caller
// before any workflow is persisted.
var ErrPlanningFailed = errors.New("planning failed")

// Planner is the LLM-backed collaborator behind plan generation. It is a
// black box that may fail or return malformed output; implementations map
// malformed output to ErrPlanningFailed rather than crashing.
type Planner interface {
	// PlanWorkflow decomposes the goal into ordered steps drawn from the
	// given worker catalog.
	PlanWorkflow(ctx context.Context, goal string, workers []*models.Worker) ([]*models.Step, error)

	// Summarize produces the executive summary for a completed run, given
	// the full result list.
	Summarize(ctx context.Context, goal string, records []*models.RunRecord) (string, error)

	// GenerateWorkerSource produces a source artifact for the requested
	// worker, following the fleet's interface conventions.
	GenerateWorkerSource(ctx context.Context, spec *models.WorkerSpec) (string, error)
}

// IsPlanningFailed checks if an error indicates unusable planner output.
func IsPlanningFailed(err error) bool {
	return errors.Is(err, ErrPlanningFailed)
}
