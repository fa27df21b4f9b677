package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWorkflowStatusTerminal(t *testing.T) {
	assert.True(t, WorkflowStatusCompleted.Terminal())
	assert.True(t, WorkflowStatusFailed.Terminal())
	assert.True(t, WorkflowStatusCancelled.Terminal())
	assert.False(t, WorkflowStatusPlanning.Terminal())
	assert.False(t, WorkflowStatusSaved.Terminal())
	assert.False(t, WorkflowStatusRunning.Terminal())
}

func TestWorkflowStatusTransitions(t *testing.T) {
	assert.True(t, WorkflowStatusPlanning.CanTransitionTo(WorkflowStatusSaved))
	assert.True(t, WorkflowStatusPlanning.CanTransitionTo(WorkflowStatusRunning))
	assert.True(t, WorkflowStatusSaved.CanTransitionTo(WorkflowStatusRunning))
	assert.True(t, WorkflowStatusRunning.CanTransitionTo(WorkflowStatusCompleted))
	assert.True(t, WorkflowStatusRunning.CanTransitionTo(WorkflowStatusFailed))
	assert.True(t, WorkflowStatusRunning.CanTransitionTo(WorkflowStatusCancelled))

	// Terminal states never transition out.
	assert.False(t, WorkflowStatusCompleted.CanTransitionTo(WorkflowStatusRunning))
	assert.False(t, WorkflowStatusFailed.CanTransitionTo(WorkflowStatusRunning))
	assert.False(t, WorkflowStatusCancelled.CanTransitionTo(WorkflowStatusSaved))
	assert.False(t, WorkflowStatusSaved.CanTransitionTo(WorkflowStatusCompleted))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "abc", Truncate("abc", 3))
	assert.Equal(t, "ab", Truncate("abc", 2))
	assert.Empty(t, Truncate("", 10))

	long := strings.Repeat("x", MaxOutputLen*3)
	assert.Len(t, Truncate(long, MaxOutputLen), MaxOutputLen)
}

func TestStepByOrdinal(t *testing.T) {
	workflow := &Workflow{
		Plan: []*Step{
			{Ordinal: 1, WorkerName: "first"},
			{Ordinal: 2, WorkerName: "second"},
		},
	}

	step, found := workflow.StepByOrdinal(2)
	assert.True(t, found)
	assert.Equal(t, "second", step.WorkerName)

	_, found = workflow.StepByOrdinal(3)
	assert.False(t, found)
}

func TestNewWorkers(t *testing.T) {
	spec := &WorkerSpec{Name: "csv-differ", Description: "Diffs CSV files"}
	workflow := &Workflow{
		Plan: []*Step{
			{Ordinal: 1, WorkerName: "pdf-ocr-parser"},
			{Ordinal: 2, WorkerName: "csv-differ", NewWorker: spec},
		},
	}

	specs := workflow.NewWorkers()
	assert.Len(t, specs, 1)
	assert.Equal(t, "csv-differ", specs[0].Name)
}
