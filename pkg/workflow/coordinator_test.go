package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dirigent-dev/dirigent/pkg/events"
	"github.com/dirigent-dev/dirigent/pkg/models"
	"github.com/dirigent-dev/dirigent/pkg/testutil"
)

func TestCoordinatorRunsStepWithoutGate(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedWorkers(t, "pdf-ocr-parser")
	h.runner.succeed("pdf-ocr-parser", "parsed")

	workflow := testutil.CreateTestWorkflow()
	h.saveWorkflow(t, workflow)

	record, err := h.coordinator.ExecuteStep(ctx, workflow, workflow.Plan[0])
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, models.RunStatusCompleted, record.Status)

	// A benign step never opens a gate.
	gatesForRun, err := h.persistence.GateRepository().ListByWorkflow(ctx, workflow.ID)
	require.NoError(t, err)
	assert.Empty(t, gatesForRun)
}

func TestCoordinatorOpensPreExecutionGate(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedWorkers(t, "pdf-ocr-parser")

	workflow := testutil.CreateTestWorkflow(testutil.WithPlan(
		testutil.CreateTestStep(testutil.WithApproval()),
	))
	h.saveWorkflow(t, workflow)

	var snapshot map[string]any

	stop := h.resolveGates(t, workflow.ID, func(gate *models.ApprovalGate) models.GateStatus {
		snapshot = gate.Context

		return models.GateStatusApproved
	})
	defer stop()

	record, err := h.coordinator.ExecuteStep(ctx, workflow, workflow.Plan[0])
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, record.Status)

	require.NotNil(t, snapshot)
	assert.Equal(t, "pdf-ocr-parser", snapshot["worker_name"])
}

func TestCoordinatorCriticalWorkerGateOutranksPlan(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedWorkers(t, "prod-db-migrator")

	workflow := testutil.CreateTestWorkflow(testutil.WithPlan(
		testutil.CreateTestStep(testutil.WithWorker("prod-db-migrator"), testutil.WithApproval()),
	))
	h.saveWorkflow(t, workflow)

	var seen models.GateKind

	stop := h.resolveGates(t, workflow.ID, func(gate *models.ApprovalGate) models.GateStatus {
		seen = gate.Kind

		return models.GateStatusApproved
	})
	defer stop()

	_, err := h.coordinator.ExecuteStep(ctx, workflow, workflow.Plan[0])
	require.NoError(t, err)
	assert.Equal(t, models.GateKindCriticalAction, seen)
}

func TestCoordinatorGateRejection(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedWorkers(t, "pdf-ocr-parser")

	workflow := testutil.CreateTestWorkflow(testutil.WithPlan(
		testutil.CreateTestStep(testutil.WithApproval()),
	))
	h.saveWorkflow(t, workflow)

	stop := h.resolveGates(t, workflow.ID, rejectAll)
	defer stop()

	record, err := h.coordinator.ExecuteStep(ctx, workflow, workflow.Plan[0])
	require.Error(t, err)
	assert.True(t, IsGateRejected(err))
	assert.Nil(t, record)

	// The worker never ran.
	assert.Empty(t, h.runner.invoked())
}

func TestCoordinatorAbsorbsStepFailure(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedWorkers(t, "pdf-ocr-parser")
	h.runner.fail("pdf-ocr-parser", "corrupt file")

	workflow := testutil.CreateTestWorkflow()
	h.saveWorkflow(t, workflow)

	record, err := h.coordinator.ExecuteStep(ctx, workflow, workflow.Plan[0])
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, models.RunStatusFailed, record.Status)
	assert.Equal(t, "corrupt file", record.ErrorMessage)
}

func TestCoordinatorPreCheckEscalatesFailure(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedWorkers(t, "pdf-ocr-parser")
	h.runner.fail("pdf-ocr-parser", "corrupt file")

	workflow := testutil.CreateTestWorkflow(testutil.WithPlan(
		testutil.CreateTestStep(testutil.WithGateCondition(models.GateConditionPreCheck)),
	))
	h.saveWorkflow(t, workflow)

	record, err := h.coordinator.ExecuteStep(ctx, workflow, workflow.Plan[0])
	require.Error(t, err)
	assert.True(t, IsPreCheckFailed(err))
	require.NotNil(t, record)
	assert.Equal(t, models.RunStatusFailed, record.Status)
}

func TestCoordinatorPostValidationGate(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedWorkers(t, "pdf-ocr-parser")
	h.runner.succeed("pdf-ocr-parser", "42 names extracted")

	workflow := testutil.CreateTestWorkflow(testutil.WithPlan(
		testutil.CreateTestStep(testutil.WithGateCondition(models.GateConditionPostValidation)),
	))
	h.saveWorkflow(t, workflow)

	var reviewed map[string]any

	stop := h.resolveGates(t, workflow.ID, func(gate *models.ApprovalGate) models.GateStatus {
		assert.Equal(t, models.GateKindPostValidation, gate.Kind)
		reviewed = gate.Context

		return models.GateStatusApproved
	})
	defer stop()

	record, err := h.coordinator.ExecuteStep(ctx, workflow, workflow.Plan[0])
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, record.Status)

	// The approver reviews the actual output, not a placeholder.
	require.NotNil(t, reviewed)
	assert.Equal(t, "42 names extracted", reviewed["output"])
}

func TestCoordinatorPostValidationRejection(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedWorkers(t, "pdf-ocr-parser")
	h.runner.succeed("pdf-ocr-parser", "garbage")

	workflow := testutil.CreateTestWorkflow(testutil.WithPlan(
		testutil.CreateTestStep(testutil.WithGateCondition(models.GateConditionPostValidation)),
	))
	h.saveWorkflow(t, workflow)

	stop := h.resolveGates(t, workflow.ID, rejectAll)
	defer stop()

	record, err := h.coordinator.ExecuteStep(ctx, workflow, workflow.Plan[0])
	require.Error(t, err)
	assert.True(t, IsGateRejected(err))

	// The step itself completed before the reviewer rejected its result.
	require.NotNil(t, record)
	assert.Equal(t, models.RunStatusCompleted, record.Status)
}

func TestCoordinatorStepEvents(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedWorkers(t, "pdf-ocr-parser", "hubspot-contact-sync")
	h.runner.succeed("pdf-ocr-parser", "parsed")
	h.runner.fail("hubspot-contact-sync", "rate limited")

	workflow := testutil.CreateTestWorkflow(testutil.WithPlan(
		testutil.CreateTestStep(),
		testutil.CreateTestStep(testutil.WithOrdinal(2), testutil.WithWorker("hubspot-contact-sync")),
	))
	h.saveWorkflow(t, workflow)

	_, err := h.coordinator.ExecuteStep(ctx, workflow, workflow.Plan[0])
	require.NoError(t, err)
	_, err = h.coordinator.ExecuteStep(ctx, workflow, workflow.Plan[1])
	require.NoError(t, err)

	var types []events.EventType

	for _, event := range h.bus.published() {
		types = append(types, event.GetType())
	}

	assert.Equal(t, []events.EventType{
		events.StepStartedEvent,
		events.StepFinishedEvent,
		events.StepStartedEvent,
		events.StepFailedEvent,
	}, types)
}
