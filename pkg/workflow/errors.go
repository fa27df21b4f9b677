// Package workflow implements the execution engine: the step coordinator,
// the worker invocation adapter and the fire-and-forget service surface.
package workflow

import "errors"

var (
	// ErrInvocationFailed marks a worker that terminated with a non-success
	// signal. Recorded on the run record; by itself it does not fail the
	// workflow unless the step's gate condition escalates it.
	ErrInvocationFailed = errors.New("worker invocation failed")

	// ErrGateRejected marks a human rejection at an approval gate. Always
	// fatal to the owning workflow, never to just the step.
	ErrGateRejected = errors.New("approval gate rejected")

	// ErrPreCheckFailed marks a failed invocation on a step whose gate
	// condition demands success before the plan may continue. A data-driven
	// halt, distinct from a human rejection.
	ErrPreCheckFailed = errors.New("pre-check step failed")
)

// IsInvocationFailed reports whether err is a worker failure absorbed at the
// step level.
func IsInvocationFailed(err error) bool {
	return errors.Is(err, ErrInvocationFailed)
}

// IsGateRejected reports whether err is a human rejection.
func IsGateRejected(err error) bool {
	return errors.Is(err, ErrGateRejected)
}

// IsPreCheckFailed reports whether err is a pre-check abort.
func IsPreCheckFailed(err error) bool {
	return errors.Is(err, ErrPreCheckFailed)
}
