// Package events defines event types and structures for workflow lifecycle notifications.
package events

import (
	"time"

	"github.com/dirigent-dev/dirigent/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Topic carries every lifecycle event; external viewers subscribe here
// instead of polling the execution engine.
const Topic = "dirigent.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Workflow lifecycle events.
	WorkflowQueuedEvent    EventType = "workflow.queued"
	WorkflowStartedEvent   EventType = "workflow.started"
	WorkflowProgressEvent  EventType = "workflow.progress"
	WorkflowCompletedEvent EventType = "workflow.completed"
	WorkflowFailedEvent    EventType = "workflow.failed"
	WorkflowCancelledEvent EventType = "workflow.cancelled"

	// Step lifecycle events.
	StepStartedEvent  EventType = "step.started"
	StepFinishedEvent EventType = "step.finished"
	StepFailedEvent   EventType = "step.failed"

	// Approval gate events.
	GateOpenedEvent   EventType = "gate.opened"
	GateResolvedEvent EventType = "gate.resolved"

	// Provisioning events.
	WorkerProvisionedEvent EventType = "worker.provisioned"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID string         `json:"workflow_id"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// NewBaseEvent creates the shared envelope for a lifecycle event.
func NewBaseEvent(eventType EventType, workflowID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
	}
}

// WorkflowQueued asks an engine process to pick up a workflow and run it.
// Published by startWorkflow/resumeWorkflow, which return immediately.
type WorkflowQueued struct {
	BaseEvent

	Resume bool `json:"resume"`
}

func (e WorkflowQueued) GetType() EventType {
	return WorkflowQueuedEvent
}

type WorkflowStarted struct {
	BaseEvent

	Goal      string `json:"goal"`
	StepCount int    `json:"step_count"`
}

func (e WorkflowStarted) GetType() EventType {
	return WorkflowStartedEvent
}

// WorkflowProgress is published after every step, success or failure, so
// subscribers see the cursor move.
type WorkflowProgress struct {
	BaseEvent

	CurrentStepIndex int     `json:"current_step_index"`
	StepCount        int     `json:"step_count"`
	TotalCost        float64 `json:"total_cost"`
}

func (e WorkflowProgress) GetType() EventType {
	return WorkflowProgressEvent
}

type WorkflowCompleted struct {
	BaseEvent

	Summary   string        `json:"summary,omitempty"`
	TotalCost float64       `json:"total_cost"`
	Duration  time.Duration `json:"duration"`
}

func (e WorkflowCompleted) GetType() EventType {
	return WorkflowCompletedEvent
}

type WorkflowFailed struct {
	BaseEvent

	Error        string `json:"error"`
	FailedAtStep int    `json:"failed_at_step"`
}

func (e WorkflowFailed) GetType() EventType {
	return WorkflowFailedEvent
}

type WorkflowCancelled struct {
	BaseEvent

	GateID string `json:"gate_id,omitempty"`
	Reason string `json:"reason,omitempty"`
}

func (e WorkflowCancelled) GetType() EventType {
	return WorkflowCancelledEvent
}

type StepStarted struct {
	BaseEvent

	StepOrdinal int    `json:"step_ordinal"`
	WorkerName  string `json:"worker_name"`
}

func (e StepStarted) GetType() EventType {
	return StepStartedEvent
}

type StepFinished struct {
	BaseEvent

	StepOrdinal int              `json:"step_ordinal"`
	WorkerName  string           `json:"worker_name"`
	RunRecordID string           `json:"run_record_id"`
	Status      models.RunStatus `json:"status"`
	Cost        *float64         `json:"cost,omitempty"`
	DurationMs  int64            `json:"duration_ms"`
}

func (e StepFinished) GetType() EventType {
	return StepFinishedEvent
}

type StepFailed struct {
	BaseEvent

	StepOrdinal int    `json:"step_ordinal"`
	WorkerName  string `json:"worker_name"`
	RunRecordID string `json:"run_record_id,omitempty"`
	Error       string `json:"error"`
}

func (e StepFailed) GetType() EventType {
	return StepFailedEvent
}

type GateOpened struct {
	BaseEvent

	GateID      string          `json:"gate_id"`
	StepOrdinal int             `json:"step_ordinal"`
	Kind        models.GateKind `json:"kind"`
}

func (e GateOpened) GetType() EventType {
	return GateOpenedEvent
}

type GateResolved struct {
	BaseEvent

	GateID     string            `json:"gate_id"`
	Status     models.GateStatus `json:"status"`
	ResolvedBy string            `json:"resolved_by,omitempty"`
}

func (e GateResolved) GetType() EventType {
	return GateResolvedEvent
}

type WorkerProvisioned struct {
	BaseEvent

	WorkerName string `json:"worker_name"`
	ArtifactID string `json:"artifact_id"`
	GateID     string `json:"gate_id"`
}

func (e WorkerProvisioned) GetType() EventType {
	return WorkerProvisionedEvent
}
