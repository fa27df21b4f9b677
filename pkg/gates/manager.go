// Package gates manages approval gates: persisted human-decision
// checkpoints that block workflow progress until resolved.
package gates

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dirigent-dev/dirigent/pkg/eventbus"
	"github.com/dirigent-dev/dirigent/pkg/events"
	"github.com/dirigent-dev/dirigent/pkg/models"
	"github.com/dirigent-dev/dirigent/pkg/persistence"
)

// ErrGateWaitTimeout indicates an Await gave up because the configured
// timeout elapsed before a human resolved the gate.
var ErrGateWaitTimeout = errors.New("gate resolution wait timed out")

// DefaultPollInterval is how often a waiter re-reads a pending gate from the
// store. Resolution can originate in an entirely separate process, so the
// store is always the authority; a Waker only shortens the wait.
const DefaultPollInterval = 2 * time.Second

// Waker optionally signals that a gate may have been resolved. Wakes are
// hints: the waiter re-reads the persisted status on every wake, so a
// restarted process that lost its subscription still converges via polling.
type Waker interface {
	// Wait blocks until a wake hint for gateID arrives, the interval
	// elapses, or ctx is done.
	Wait(ctx context.Context, gateID string, interval time.Duration) error

	// Wake publishes a hint that gateID was resolved.
	Wake(ctx context.Context, gateID string) error
}

// Config tunes the manager.
type Config struct {
	// PollInterval defaults to DefaultPollInterval when zero.
	PollInterval time.Duration

	// Timeout bounds Await. Zero means wait forever: a human-in-the-loop
	// gate should not auto-expire unless an operator opts in.
	Timeout time.Duration
}

// Manager creates, resolves and waits on approval gates.
type Manager struct {
	logger   *slog.Logger
	gates    persistence.GateRepository
	eventBus eventbus.EventPublisher
	waker    Waker
	config   Config
}

// NewManager creates a gate manager. eventBus and waker may be nil.
func NewManager(logger *slog.Logger, gates persistence.GateRepository, eventBus eventbus.EventPublisher, waker Waker, config Config) *Manager {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}

	return &Manager{
		logger:   logger.With("module", "gates"),
		gates:    gates,
		eventBus: eventBus,
		waker:    waker,
		config:   config,
	}
}

// Open inserts a Pending gate and returns immediately. The context snapshot
// is captured as given and never mutated afterwards.
func (m *Manager) Open(ctx context.Context, workflowID string, stepOrdinal int, kind models.GateKind, snapshot map[string]any) (*models.ApprovalGate, error) {
	gate := &models.ApprovalGate{
		WorkflowID:  workflowID,
		StepOrdinal: stepOrdinal,
		Kind:        kind,
		Status:      models.GateStatusPending,
		Context:     snapshot,
	}

	if err := m.gates.Save(ctx, gate); err != nil {
		return nil, fmt.Errorf("failed to open gate for workflow %s step %d: %w", workflowID, stepOrdinal, err)
	}

	m.logger.InfoContext(ctx, "Approval gate opened",
		"gate_id", gate.ID, "workflow_id", workflowID, "step_ordinal", stepOrdinal, "kind", kind)

	m.publish(ctx, workflowID, events.GateOpened{
		BaseEvent:   events.NewBaseEvent(events.GateOpenedEvent, workflowID),
		GateID:      gate.ID,
		StepOrdinal: stepOrdinal,
		Kind:        kind,
	})

	return gate, nil
}

// Resolve records a terminal decision. A second resolution attempt fails
// with persistence.ErrGateAlreadyResolved and changes nothing. Safe to call
// from a process other than the one running the engine loop.
func (m *Manager) Resolve(ctx context.Context, gateID string, decision models.GateStatus, resolvedBy, notes string) error {
	if decision != models.GateStatusApproved && decision != models.GateStatusRejected {
		return fmt.Errorf("invalid gate decision %q", decision)
	}

	gate, err := m.gates.Resolve(ctx, gateID, decision, resolvedBy, notes)
	if err != nil {
		return err
	}

	m.logger.InfoContext(ctx, "Approval gate resolved",
		"gate_id", gateID, "decision", decision, "resolved_by", resolvedBy)

	m.publish(ctx, gate.WorkflowID, events.GateResolved{
		BaseEvent:  events.NewBaseEvent(events.GateResolvedEvent, gate.WorkflowID),
		GateID:     gateID,
		Status:     decision,
		ResolvedBy: resolvedBy,
	})

	if m.waker != nil {
		if err := m.waker.Wake(ctx, gateID); err != nil {
			m.logger.WarnContext(ctx, "Failed to publish gate wake hint", "gate_id", gateID, "error", err)
		}
	}

	return nil
}

// Await blocks until the gate's status leaves Pending and returns the
// decision. The persisted status is re-read on every wake, so a waiter that
// restarted mid-wait picks up a resolution it never saw announced.
func (m *Manager) Await(ctx context.Context, gateID string) (models.GateStatus, error) {
	if m.config.Timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeoutCause(ctx, m.config.Timeout, ErrGateWaitTimeout)
		defer cancel()
	}

	for {
		gate, err := m.gates.GetByID(ctx, gateID)
		if err != nil {
			return "", err
		}

		if gate.Status != models.GateStatusPending {
			return gate.Status, nil
		}

		if err := m.wait(ctx, gateID); err != nil {
			if cause := context.Cause(ctx); errors.Is(cause, ErrGateWaitTimeout) {
				return "", ErrGateWaitTimeout
			}

			return "", err
		}
	}
}

// wait blocks for one poll interval or until a wake hint arrives.
func (m *Manager) wait(ctx context.Context, gateID string) error {
	if m.waker != nil {
		return m.waker.Wait(ctx, gateID, m.config.PollInterval)
	}

	timer := time.NewTimer(m.config.PollInterval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (m *Manager) publish(ctx context.Context, workflowID string, event eventbus.Event) {
	if m.eventBus == nil {
		return
	}

	if err := m.eventBus.Publish(ctx, workflowID, event); err != nil {
		m.logger.ErrorContext(ctx, "Failed to publish gate event", "error", err, "event", event.GetType())
	}
}
