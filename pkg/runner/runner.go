// Package runner executes workers out of process and tracks their live
// process handles for administrative stop actions.
package runner

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"sort"
	"time"

	"github.com/dirigent-dev/dirigent/pkg/models"
)

// Result is the terminal outcome of one worker process. Output and Stderr
// are untruncated here; the invocation adapter applies the storage bounds.
type Result struct {
	ExitCode int
	Output   string
	Stderr   string
	Duration time.Duration
}

// Runner starts one unit of work and blocks until it terminates. A non-zero
// exit is reported through Result, not through the error; the error is for
// failures to run at all.
type Runner interface {
	Run(ctx context.Context, invocationID string, worker *models.Worker, parameters map[string]string) (*Result, error)
}

// ProcessRunner invokes workers as external processes: the worker's language
// interpreter, its script path, then its parameters as command-line flags.
type ProcessRunner struct {
	logger  *slog.Logger
	handles *HandleRegistry
}

// NewProcessRunner creates a runner that registers every live process in the
// given handle registry.
func NewProcessRunner(logger *slog.Logger, handles *HandleRegistry) *ProcessRunner {
	return &ProcessRunner{
		logger:  logger.With("module", "runner"),
		handles: handles,
	}
}

// Run blocks until the worker process exits. The handle registry holds the
// process for the whole run so an administrative stop can reach it.
func (r *ProcessRunner) Run(ctx context.Context, invocationID string, worker *models.Worker, parameters map[string]string) (*Result, error) {
	interpreter := worker.Language
	if interpreter == "" {
		interpreter = "python3"
	} else if interpreter == "python" {
		interpreter = "python3"
	}

	args := append([]string{worker.ScriptPath}, flagArgs(parameters)...)
	cmd := exec.CommandContext(ctx, interpreter, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	started := time.Now()

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	r.handles.Track(invocationID, cmd.Process)
	defer r.handles.Release(invocationID)

	r.logger.InfoContext(ctx, "Worker process started",
		"worker", worker.Name, "invocation_id", invocationID, "pid", cmd.Process.Pid)

	err := cmd.Wait()
	duration := time.Since(started)

	result := &Result{
		Output:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: duration,
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()

			return result, nil
		}

		return nil, err
	}

	return result, nil
}

// flagArgs renders the parameter map as stable, ordered command-line
// arguments: keys are passed verbatim, so planners emit them in the
// worker's own flag syntax ("--input", "-v", ...).
func flagArgs(parameters map[string]string) []string {
	keys := make([]string, 0, len(parameters))
	for key := range parameters {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	args := make([]string, 0, len(parameters)*2)

	for _, key := range keys {
		args = append(args, key)
		if parameters[key] != "" {
			args = append(args, parameters[key])
		}
	}

	return args
}
