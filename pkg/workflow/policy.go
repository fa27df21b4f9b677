package workflow

import (
	"strings"

	"github.com/dirigent-dev/dirigent/pkg/models"
)

// ApprovalPolicy decides, fresh per step at run time, whether a step needs a
// human decision before its worker runs. The engine's own safety check takes
// precedence over the plan: a step the policy flags gets a critical-action
// gate even when the plan never asked for approval.
type ApprovalPolicy struct {
	// CriticalWorkerSubstrings match against the lowercased worker name.
	CriticalWorkerSubstrings []string

	// DangerousFlags match against parameter keys with leading dashes and
	// case stripped, so "--force", "-force" and "force" are one flag.
	DangerousFlags []string
}

// DefaultApprovalPolicy returns the built-in deny-ish list: workers that
// touch production systems or money, and flags that disable safety rails.
func DefaultApprovalPolicy() *ApprovalPolicy {
	return &ApprovalPolicy{
		CriticalWorkerSubstrings: []string{"deploy", "payment", "prod"},
		DangerousFlags:           []string{"force", "auto-fix", "no-dry-run", "apply-changes"},
	}
}

// Evaluate returns the gate kind guarding the step and whether one is needed
// at all. Policy hits yield a critical-action gate; a plan-declared approval
// flag yields a pre-execution gate.
func (p *ApprovalPolicy) Evaluate(step *models.Step) (models.GateKind, bool) {
	worker := strings.ToLower(step.WorkerName)

	for _, substring := range p.CriticalWorkerSubstrings {
		if strings.Contains(worker, substring) {
			return models.GateKindCriticalAction, true
		}
	}

	for key := range step.Parameters {
		flag := strings.ToLower(strings.TrimLeft(key, "-"))
		flag = strings.ReplaceAll(flag, "_", "-")

		for _, dangerous := range p.DangerousFlags {
			if flag == dangerous {
				return models.GateKindCriticalAction, true
			}
		}
	}

	if step.RequiresApproval {
		return models.GateKindPreExecution, true
	}

	return "", false
}
