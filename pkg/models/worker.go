package models

import "time"

// Worker is an external unit of work with a name, declared capabilities and
// an out-of-process invocation contract: an executable script taking its
// parameters as command-line flags.
type Worker struct {
	Name              string            `json:"name"        validate:"required"`
	Description       string            `json:"description"`
	ScriptPath        string            `json:"script_path" validate:"required"`
	Language          string            `json:"language"`
	DefaultParameters map[string]string `json:"default_parameters,omitempty"`
	Tags              []string          `json:"tags,omitempty"`
	Capabilities      []string          `json:"capabilities,omitempty"`
	EstimatedCost     float64           `json:"estimated_cost"`
	SystemGenerated   bool              `json:"system_generated"`
	CreatedAt         time.Time         `json:"created_at"`
}

// HasCapability reports whether the worker declares the given capability tag.
func (w *Worker) HasCapability(capability string) bool {
	for _, c := range w.Capabilities {
		if c == capability {
			return true
		}
	}

	return false
}

// WorkerSpec describes a worker the planner wants provisioned: the declared
// capability set is safety-checked before any code generation happens.
type WorkerSpec struct {
	Name         string   `json:"name"        validate:"required"`
	Description  string   `json:"description" validate:"required"`
	Capabilities []string `json:"capabilities"`
}

// SafetyVerdict is the outcome of the static artifact scan, computed once.
type SafetyVerdict string

const (
	SafetyVerdictSafe   SafetyVerdict = "safe"
	SafetyVerdictUnsafe SafetyVerdict = "unsafe"
)

// WorkerArtifact is a generated worker definition awaiting adoption. The
// source is persisted before the creation gate opens so approvers review a
// fixed snapshot.
type WorkerArtifact struct {
	ID            string        `json:"id"`
	WorkflowID    string        `json:"workflow_id"`
	WorkerName    string        `json:"worker_name"`
	Description   string        `json:"description"`
	Capabilities  []string      `json:"capabilities,omitempty"`
	Source        string        `json:"source"`
	SafetyVerdict SafetyVerdict `json:"safety_verdict"`
	GateID        string        `json:"gate_id,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}
