// Package provision creates new workers mid-run: planner-generated source,
// static safety checks, human adoption gate, registry registration.
package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dirigent-dev/dirigent/pkg/eventbus"
	"github.com/dirigent-dev/dirigent/pkg/events"
	"github.com/dirigent-dev/dirigent/pkg/gates"
	"github.com/dirigent-dev/dirigent/pkg/models"
	"github.com/dirigent-dev/dirigent/pkg/persistence"
	"github.com/dirigent-dev/dirigent/pkg/registry"
)

// ErrUnsafeArtifact marks a provisioning attempt stopped by a static safety
// check: nothing is persisted and no gate is created.
var ErrUnsafeArtifact = errors.New("unsafe worker artifact")

// IsUnsafeArtifact reports whether err is a safety-scan rejection.
func IsUnsafeArtifact(err error) bool {
	return errors.Is(err, ErrUnsafeArtifact)
}

// previewLen bounds the source excerpt placed in the gate context. The
// approver sees a preview; the full source lives on the artifact.
const previewLen = 400

// Generator produces worker source for a spec. Satisfied by the planner.
type Generator interface {
	GenerateWorkerSource(ctx context.Context, spec *models.WorkerSpec) (string, error)
}

// Provisioner drives the provisioning flow. Provision stops at the adoption
// gate; Finalize runs only after that gate resolves Approved.
type Provisioner struct {
	logger     *slog.Logger
	workers    persistence.WorkerRepository
	registry   *registry.Registry
	generator  Generator
	gates      *gates.Manager
	eventBus   eventbus.EventPublisher
	sandboxDir string
}

// NewProvisioner creates a provisioner storing adopted worker scripts under
// sandboxDir.
func NewProvisioner(logger *slog.Logger, workers persistence.WorkerRepository, reg *registry.Registry, generator Generator, gateManager *gates.Manager, eventBus eventbus.EventPublisher, sandboxDir string) *Provisioner {
	return &Provisioner{
		logger:     logger.With("module", "provision"),
		workers:    workers,
		registry:   reg,
		generator:  generator,
		gates:      gateManager,
		eventBus:   eventBus,
		sandboxDir: sandboxDir,
	}
}

// Provision generates and safety-checks a worker for the spec, persists the
// artifact with its verdict and opens the adoption gate. The returned gate
// must resolve Approved before Finalize may be called.
//
// Both safety checks are static deny lists: declared capabilities first,
// then the generated source text. A hit on either fails the attempt with
// ErrUnsafeArtifact before anything is persisted.
func (p *Provisioner) Provision(ctx context.Context, workflowID string, spec *models.WorkerSpec) (*models.WorkerArtifact, *models.ApprovalGate, error) {
	if capability, denied := checkCapabilities(spec.Capabilities); denied {
		return nil, nil, fmt.Errorf("worker %q declares denied capability %q: %w", spec.Name, capability, ErrUnsafeArtifact)
	}

	source, err := p.generator.GenerateWorkerSource(ctx, spec)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate source for worker %q: %w", spec.Name, err)
	}

	if construct, denied := scanSource(source); denied {
		return nil, nil, fmt.Errorf("generated source for worker %q contains %q: %w", spec.Name, construct, ErrUnsafeArtifact)
	}

	artifact := &models.WorkerArtifact{
		WorkflowID:    workflowID,
		WorkerName:    spec.Name,
		Description:   spec.Description,
		Capabilities:  spec.Capabilities,
		Source:        source,
		SafetyVerdict: models.SafetyVerdictSafe,
	}

	if err := p.workers.SaveArtifact(ctx, artifact); err != nil {
		return nil, nil, fmt.Errorf("failed to persist artifact for worker %q: %w", spec.Name, err)
	}

	gate, err := p.gates.Open(ctx, workflowID, models.PreRunOrdinal, models.GateKindWorkerCreation, map[string]any{
		"worker_name":    spec.Name,
		"description":    spec.Description,
		"capabilities":   spec.Capabilities,
		"source_preview": models.Truncate(source, previewLen),
		"artifact_id":    artifact.ID,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open adoption gate for worker %q: %w", spec.Name, err)
	}

	artifact.GateID = gate.ID
	if err := p.workers.SaveArtifact(ctx, artifact); err != nil {
		return nil, nil, fmt.Errorf("failed to link artifact %s to gate %s: %w", artifact.ID, gate.ID, err)
	}

	p.logger.InfoContext(ctx, "Worker artifact awaiting adoption",
		"workflow_id", workflowID, "worker", spec.Name, "artifact_id", artifact.ID, "gate_id", gate.ID)

	return artifact, gate, nil
}

// Finalize adopts an approved artifact as a first-class worker: source
// stored at a deterministic sandboxed path, catalog entry tagged as
// system-generated, registry snapshot updated so subsequent steps in the
// same run can already invoke it.
func (p *Provisioner) Finalize(ctx context.Context, artifact *models.WorkerArtifact) (*models.Worker, error) {
	if err := os.MkdirAll(p.sandboxDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create sandbox dir: %w", err)
	}

	scriptPath := filepath.Join(p.sandboxDir, artifact.WorkerName+".py")

	if err := os.WriteFile(scriptPath, []byte(artifact.Source), 0o644); err != nil {
		return nil, fmt.Errorf("failed to store source for worker %q: %w", artifact.WorkerName, err)
	}

	worker := &models.Worker{
		Name:            artifact.WorkerName,
		Description:     artifact.Description,
		ScriptPath:      scriptPath,
		Language:        "python",
		Capabilities:    artifact.Capabilities,
		Tags:            []string{"system-generated"},
		SystemGenerated: true,
		CreatedAt:       time.Now().UTC(),
	}

	if err := p.registry.Register(ctx, worker); err != nil {
		return nil, err
	}

	p.logger.InfoContext(ctx, "Worker adopted",
		"worker", worker.Name, "script_path", scriptPath, "workflow_id", artifact.WorkflowID)

	if p.eventBus != nil {
		event := events.WorkerProvisioned{
			BaseEvent:  events.NewBaseEvent(events.WorkerProvisionedEvent, artifact.WorkflowID),
			WorkerName: worker.Name,
			ArtifactID: artifact.ID,
			GateID:     artifact.GateID,
		}

		if err := p.eventBus.Publish(ctx, artifact.WorkflowID, event); err != nil {
			p.logger.ErrorContext(ctx, "Failed to publish provisioned event", "error", err)
		}
	}

	return worker, nil
}
