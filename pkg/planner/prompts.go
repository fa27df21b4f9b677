package planner

import (
	"fmt"
	"strings"

	"github.com/dirigent-dev/dirigent/pkg/models"
)

const planSystemPrompt = `You are a workflow planner. Decompose the user's goal into an ordered
sequence of steps over the available worker catalog. Reply with a single JSON object of the form
{"steps": [...]} and nothing else. Each step has: ordinal (1-based, contiguous), worker_name,
description, parameters (string map of CLI flags), requires_approval (bool), gate_condition
("none", "pre_check" or "post_validation"), and optionally new_worker when no catalog worker fits.
Prefer catalog workers; request a new_worker only when the goal cannot be met otherwise.`

const summarySystemPrompt = `You are a workflow reporter. Write a short executive summary of the
workflow outcome in plain prose. Mention failed steps explicitly. Reply with the summary text only.`

const workerSystemPrompt = `You are a tooling engineer. Write a complete, standalone Python 3 script
implementing the requested worker. The script must parse its parameters with argparse as long-form
CLI flags, print results to stdout, and exit non-zero on failure. Reply with the source code only.`

func planUserPrompt(goal string, workers []*models.Worker) string {
	var b strings.Builder

	b.WriteString("Goal: ")
	b.WriteString(goal)
	b.WriteString("\n\nAvailable workers:\n")

	for _, worker := range workers {
		fmt.Fprintf(&b, "- %s: %s", worker.Name, worker.Description)

		if len(worker.Capabilities) > 0 {
			fmt.Fprintf(&b, " (capabilities: %s)", strings.Join(worker.Capabilities, ", "))
		}

		if len(worker.DefaultParameters) > 0 {
			flags := make([]string, 0, len(worker.DefaultParameters))
			for flag := range worker.DefaultParameters {
				flags = append(flags, flag)
			}

			fmt.Fprintf(&b, " [flags: %s]", strings.Join(flags, ", "))
		}

		b.WriteString("\n")
	}

	return b.String()
}

func summaryUserPrompt(goal string, records []*models.RunRecord) string {
	var b strings.Builder

	b.WriteString("Goal: ")
	b.WriteString(goal)
	b.WriteString("\n\nStep results:\n")

	for _, record := range records {
		fmt.Fprintf(&b, "- step %d (%s): %s", record.StepOrdinal, record.WorkerName, record.Status)

		if record.ErrorMessage != "" {
			fmt.Fprintf(&b, " error=%q", record.ErrorMessage)
		} else if record.Output != "" {
			fmt.Fprintf(&b, " output=%q", record.Output)
		}

		b.WriteString("\n")
	}

	return b.String()
}

func workerUserPrompt(spec *models.WorkerSpec) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Worker name: %s\nPurpose: %s\n", spec.Name, spec.Description)

	if len(spec.Capabilities) > 0 {
		fmt.Fprintf(&b, "Required capabilities: %s\n", strings.Join(spec.Capabilities, ", "))
	}

	return b.String()
}
