package workflow

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/dirigent-dev/dirigent/pkg/events"
	"github.com/dirigent-dev/dirigent/pkg/models"
	"github.com/dirigent-dev/dirigent/pkg/testutil"
)

func TestEngineCompletesAllSteps(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedWorkers(t, "pdf-ocr-parser", "hubspot-contact-sync")
	h.runner.succeed("pdf-ocr-parser", "parsed\nEstimated Cost: ~$0.08/execution")
	h.runner.succeed("hubspot-contact-sync", "synced\nEstimated Cost: ~$0.02/execution")

	workflow := testutil.CreateTestWorkflow(testutil.WithPlan(
		testutil.CreateTestStep(),
		testutil.CreateTestStep(testutil.WithOrdinal(2), testutil.WithWorker("hubspot-contact-sync")),
	))
	h.saveWorkflow(t, workflow)

	require.NoError(t, h.engine.Run(ctx, workflow.ID))

	final := h.loadWorkflow(t, workflow.ID)
	assert.Equal(t, models.WorkflowStatusCompleted, final.Status)
	assert.Equal(t, 2, final.CurrentStepIndex)
	assert.InDelta(t, 0.10, final.TotalCost, 0.0001)
	assert.Equal(t, "all steps completed", final.Summary)
	assert.NotNil(t, final.StartedAt)
	assert.NotNil(t, final.CompletedAt)

	records := h.runRecords(t, workflow.ID)
	require.Len(t, records, 2)
	assert.Equal(t, models.RunStatusCompleted, records[0].Status)
	assert.Equal(t, models.RunStatusCompleted, records[1].Status)
}

// The pdf-then-hubspot scenario: the gate for step 2 exists before any run
// record for step 2, approving it runs the step and completes the workflow.
func TestEngineApprovalScenario(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedWorkers(t, "pdf-ocr-parser", "hubspot-contact-sync")

	workflow := testutil.CreateTestWorkflow(testutil.WithPlan(
		testutil.CreateTestStep(testutil.WithParameters(map[string]string{"--input": "/badges.pdf"})),
		testutil.CreateTestStep(
			testutil.WithOrdinal(2),
			testutil.WithWorker("hubspot-contact-sync"),
			testutil.WithParameters(map[string]string{"--input": "/tmp/names.json"}),
			testutil.WithApproval(),
		),
	))
	h.saveWorkflow(t, workflow)

	stop := h.resolveGates(t, workflow.ID, func(gate *models.ApprovalGate) models.GateStatus {
		// At gate time step 1 is done and step 2 has not started.
		assert.Equal(t, 2, gate.StepOrdinal)
		assert.Equal(t, models.GateKindPreExecution, gate.Kind)

		current := h.loadWorkflow(t, workflow.ID)
		assert.Equal(t, 1, current.CurrentStepIndex)

		for _, record := range h.runRecords(t, workflow.ID) {
			assert.NotEqual(t, 2, record.StepOrdinal)
		}

		return models.GateStatusApproved
	})
	defer stop()

	require.NoError(t, h.engine.Run(ctx, workflow.ID))

	final := h.loadWorkflow(t, workflow.ID)
	assert.Equal(t, models.WorkflowStatusCompleted, final.Status)
	assert.Equal(t, 2, final.CurrentStepIndex)

	records := h.runRecords(t, workflow.ID)
	require.Len(t, records, 2)
	assert.Equal(t, 2, records[1].StepOrdinal)
	assert.Equal(t, models.RunStatusCompleted, records[1].Status)
}

// Rejecting any step's gate cancels the whole run: remaining steps are
// skipped, not just the rejected one.
func TestEngineGateRejectionCancelsRun(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedWorkers(t, "pdf-ocr-parser", "hubspot-contact-sync", "report-writer")

	workflow := testutil.CreateTestWorkflow(testutil.WithPlan(
		testutil.CreateTestStep(),
		testutil.CreateTestStep(testutil.WithOrdinal(2), testutil.WithWorker("hubspot-contact-sync"), testutil.WithApproval()),
		testutil.CreateTestStep(testutil.WithOrdinal(3), testutil.WithWorker("report-writer")),
	))
	h.saveWorkflow(t, workflow)

	stop := h.resolveGates(t, workflow.ID, rejectAll)
	defer stop()

	err := h.engine.Run(ctx, workflow.ID)
	require.Error(t, err)
	assert.True(t, IsGateRejected(err))

	final := h.loadWorkflow(t, workflow.ID)
	assert.Equal(t, models.WorkflowStatusCancelled, final.Status)

	// The rejected step produced no run record, so the stored cursor still
	// points at the last step that did.
	assert.Equal(t, 1, final.CurrentStepIndex)

	for _, record := range h.runRecords(t, workflow.ID) {
		assert.NotEqual(t, 2, record.StepOrdinal)
		assert.NotEqual(t, 3, record.StepOrdinal)
	}

	assert.NotContains(t, h.runner.invoked(), "hubspot-contact-sync")
	assert.NotContains(t, h.runner.invoked(), "report-writer")
}

func TestEnginePreCheckAbort(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedWorkers(t, "pdf-ocr-parser", "hubspot-contact-sync")
	h.runner.fail("pdf-ocr-parser", "unreadable pdf")

	workflow := testutil.CreateTestWorkflow(testutil.WithPlan(
		testutil.CreateTestStep(testutil.WithGateCondition(models.GateConditionPreCheck)),
		testutil.CreateTestStep(testutil.WithOrdinal(2), testutil.WithWorker("hubspot-contact-sync")),
	))
	h.saveWorkflow(t, workflow)

	err := h.engine.Run(ctx, workflow.ID)
	require.Error(t, err)
	assert.True(t, IsPreCheckFailed(err))

	final := h.loadWorkflow(t, workflow.ID)
	assert.Equal(t, models.WorkflowStatusFailed, final.Status)
	assert.NotContains(t, h.runner.invoked(), "hubspot-contact-sync")
}

// A plain step failure is absorbed: the run record shows it, the workflow
// still completes.
func TestEngineStepFailureDoesNotFailWorkflow(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedWorkers(t, "pdf-ocr-parser", "hubspot-contact-sync")
	h.runner.fail("pdf-ocr-parser", "page 3 unreadable")
	h.runner.succeed("hubspot-contact-sync", "synced")

	workflow := testutil.CreateTestWorkflow(testutil.WithPlan(
		testutil.CreateTestStep(),
		testutil.CreateTestStep(testutil.WithOrdinal(2), testutil.WithWorker("hubspot-contact-sync")),
	))
	h.saveWorkflow(t, workflow)

	require.NoError(t, h.engine.Run(ctx, workflow.ID))

	final := h.loadWorkflow(t, workflow.ID)
	assert.Equal(t, models.WorkflowStatusCompleted, final.Status)
	assert.Equal(t, 2, final.CurrentStepIndex)

	records := h.runRecords(t, workflow.ID)
	require.Len(t, records, 2)
	assert.Equal(t, models.RunStatusFailed, records[0].Status)
	assert.Equal(t, "page 3 unreadable", records[0].ErrorMessage)
	assert.Equal(t, models.RunStatusCompleted, records[1].Status)
}

// An unexpected execution error (not a non-zero exit) fails the workflow
// and is observable by the caller, with the store never left at Running.
func TestEngineUnexpectedErrorFailsWorkflow(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedWorkers(t, "pdf-ocr-parser")
	h.runner.explode("pdf-ocr-parser", errBoom)

	workflow := testutil.CreateTestWorkflow()
	h.saveWorkflow(t, workflow)

	err := h.engine.Run(ctx, workflow.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, errBoom)

	final := h.loadWorkflow(t, workflow.ID)
	assert.Equal(t, models.WorkflowStatusFailed, final.Status)
	assert.NotEmpty(t, final.Summary)
}

func TestEngineRefusesTerminalWorkflow(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	workflow := testutil.CreateTestWorkflow(testutil.WithStatus(models.WorkflowStatusCompleted))
	h.saveWorkflow(t, workflow)

	assert.Error(t, h.engine.Run(ctx, workflow.ID))
}

// Resuming a workflow that already advanced past step 1 re-runs only the
// remaining steps.
func TestEngineResumeSkipsProcessedSteps(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedWorkers(t, "pdf-ocr-parser", "hubspot-contact-sync")

	workflow := testutil.CreateTestWorkflow(
		testutil.WithStatus(models.WorkflowStatusRunning),
		testutil.WithPlan(
			testutil.CreateTestStep(),
			testutil.CreateTestStep(testutil.WithOrdinal(2), testutil.WithWorker("hubspot-contact-sync")),
		),
	)
	workflow.CurrentStepIndex = 1
	h.saveWorkflow(t, workflow)

	require.NoError(t, h.engine.Run(ctx, workflow.ID))

	assert.Equal(t, []string{"hubspot-contact-sync"}, h.runner.invoked())
	assert.Equal(t, models.WorkflowStatusCompleted, h.loadWorkflow(t, workflow.ID).Status)
}

// A record left at running by an engine that died mid-step is cancelled on
// resume: its writer is gone, so nothing else would ever terminate it, and
// the replay must not leave two records for the ordinal with one of them
// non-terminal forever.
func TestEngineResumeCancelsInterruptedRecord(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedWorkers(t, "pdf-ocr-parser", "hubspot-contact-sync")

	workflow := testutil.CreateTestWorkflow(
		testutil.WithStatus(models.WorkflowStatusRunning),
		testutil.WithPlan(
			testutil.CreateTestStep(),
			testutil.CreateTestStep(testutil.WithOrdinal(2), testutil.WithWorker("hubspot-contact-sync")),
		),
	)
	h.saveWorkflow(t, workflow)

	started := time.Now().UTC()
	stale := &models.RunRecord{
		WorkflowID:  workflow.ID,
		StepOrdinal: 1,
		WorkerName:  "pdf-ocr-parser",
		Status:      models.RunStatusRunning,
		StartedAt:   &started,
	}
	require.NoError(t, h.persistence.RunRecordRepository().Save(ctx, stale))

	require.NoError(t, h.engine.Run(ctx, workflow.ID))
	assert.Equal(t, models.WorkflowStatusCompleted, h.loadWorkflow(t, workflow.ID).Status)

	records := h.runRecords(t, workflow.ID)
	require.Len(t, records, 3)

	for _, record := range records {
		assert.True(t, record.Status.Terminal(),
			"record %s for step %d left at %s", record.ID, record.StepOrdinal, record.Status)
	}

	reconciled, err := h.persistence.RunRecordRepository().GetByID(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCancelled, reconciled.Status)
	assert.NotNil(t, reconciled.CompletedAt)
	assert.Contains(t, reconciled.ErrorMessage, "interrupted")
}

// Engine and step spans carry the error when a run aborts.
func TestEngineMarksSpanOnAbort(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedWorkers(t, "pdf-ocr-parser")
	h.runner.explode("pdf-ocr-parser", errBoom)

	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tracer := provider.Tracer("dirigent-test")

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	engine := NewEngine(logger, h.persistence.WorkflowRepository(), h.persistence.RunRecordRepository(),
		h.coordinator, nil, h.gates, h.planner, h.bus, tracer)

	workflow := testutil.CreateTestWorkflow()
	h.saveWorkflow(t, workflow)

	require.Error(t, engine.Run(ctx, workflow.ID))

	spans := recorder.Ended()
	require.NotEmpty(t, spans)

	var flagged int

	for _, span := range spans {
		if span.Status().Code == codes.Error {
			flagged++
		}
	}

	assert.Equal(t, 2, flagged)
}

// A policy-flagged worker gets a critical-action gate even though the plan
// never asked for approval.
func TestEngineCriticalActionGate(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedWorkers(t, "deploy-to-staging")

	workflow := testutil.CreateTestWorkflow(testutil.WithPlan(
		testutil.CreateTestStep(testutil.WithWorker("deploy-to-staging")),
	))
	h.saveWorkflow(t, workflow)

	var seen models.GateKind

	stop := h.resolveGates(t, workflow.ID, func(gate *models.ApprovalGate) models.GateStatus {
		seen = gate.Kind

		return models.GateStatusApproved
	})
	defer stop()

	require.NoError(t, h.engine.Run(ctx, workflow.ID))
	assert.Equal(t, models.GateKindCriticalAction, seen)
}

func TestEngineProvisioningRejectionCancelsBeforeSteps(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedWorkers(t, "pdf-ocr-parser")

	spec := &models.WorkerSpec{Name: "csv-differ", Description: "Diffs CSV exports"}
	workflow := testutil.CreateTestWorkflow(testutil.WithPlan(
		testutil.CreateTestStep(),
		testutil.CreateTestStep(testutil.WithOrdinal(2), testutil.WithWorker("csv-differ")),
	))
	workflow.Plan[1].NewWorker = spec
	h.saveWorkflow(t, workflow)

	stop := h.resolveGates(t, workflow.ID, rejectAll)
	defer stop()

	err := h.engine.Run(ctx, workflow.ID)
	require.Error(t, err)
	assert.True(t, IsGateRejected(err))

	final := h.loadWorkflow(t, workflow.ID)
	assert.Equal(t, models.WorkflowStatusCancelled, final.Status)

	// The rejection happened before any step: no run records at all.
	assert.Empty(t, h.runRecords(t, workflow.ID))
	assert.Empty(t, h.runner.invoked())
}

func TestEngineProvisioningApprovedAdoptsWorker(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedWorkers(t, "pdf-ocr-parser")
	h.runner.succeed("csv-differ", "diffed")

	spec := &models.WorkerSpec{Name: "csv-differ", Description: "Diffs CSV exports", Capabilities: []string{"csv-compare"}}
	workflow := testutil.CreateTestWorkflow(testutil.WithPlan(
		testutil.CreateTestStep(),
		testutil.CreateTestStep(testutil.WithOrdinal(2), testutil.WithWorker("csv-differ")),
	))
	workflow.Plan[1].NewWorker = spec
	h.saveWorkflow(t, workflow)

	stop := h.resolveGates(t, workflow.ID, approveAll)
	defer stop()

	require.NoError(t, h.engine.Run(ctx, workflow.ID))

	final := h.loadWorkflow(t, workflow.ID)
	assert.Equal(t, models.WorkflowStatusCompleted, final.Status)
	assert.Contains(t, h.runner.invoked(), "csv-differ")

	adopted, err := h.registry.Resolve(ctx, "csv-differ")
	require.NoError(t, err)
	assert.True(t, adopted.SystemGenerated)
	assert.FileExists(t, adopted.ScriptPath)
	assert.Equal(t, "csv-differ.py", filepath.Base(adopted.ScriptPath))

	source, err := os.ReadFile(adopted.ScriptPath)
	require.NoError(t, err)
	assert.Contains(t, string(source), "argparse")
}

// Progress events fire after every step, success or failure alike.
func TestEnginePublishesProgressEvents(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedWorkers(t, "pdf-ocr-parser", "hubspot-contact-sync")
	h.runner.fail("pdf-ocr-parser", "bad pdf")

	workflow := testutil.CreateTestWorkflow(testutil.WithPlan(
		testutil.CreateTestStep(),
		testutil.CreateTestStep(testutil.WithOrdinal(2), testutil.WithWorker("hubspot-contact-sync")),
	))
	h.saveWorkflow(t, workflow)

	require.NoError(t, h.engine.Run(ctx, workflow.ID))

	var progress []events.WorkflowProgress

	for _, event := range h.bus.published() {
		if p, ok := event.(events.WorkflowProgress); ok {
			progress = append(progress, p)
		}
	}

	require.Len(t, progress, 2)
	assert.Equal(t, 1, progress[0].CurrentStepIndex)
	assert.Equal(t, 2, progress[1].CurrentStepIndex)
}
