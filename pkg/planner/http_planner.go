package planner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/dirigent-dev/dirigent/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

const defaultTimeout = 120 * time.Second

// Config configures the HTTP planner client.
type Config struct {
	// BaseURL of an OpenAI-compatible chat completions endpoint.
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// HTTPPlanner implements Planner against a chat-completions style HTTP API.
// The model's reply is parsed as JSON and validated against a schema before
// it is trusted; anything else is ErrPlanningFailed.
type HTTPPlanner struct {
	logger *slog.Logger
	config Config
	client *http.Client
	schema *gojsonschema.Schema
}

// NewHTTPPlanner creates the client.
func NewHTTPPlanner(logger *slog.Logger, config Config) (*HTTPPlanner, error) {
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(planSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile plan schema: %w", err)
	}

	return &HTTPPlanner{
		logger: logger.With("module", "planner"),
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		schema: schema,
	}, nil
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// PlanWorkflow decomposes the goal into ordered steps.
func (p *HTTPPlanner) PlanWorkflow(ctx context.Context, goal string, workers []*models.Worker) ([]*models.Step, error) {
	reply, err := p.complete(ctx, planSystemPrompt, planUserPrompt(goal, workers))
	if err != nil {
		return nil, err
	}

	return p.parsePlan(ctx, reply)
}

// Summarize produces the executive summary for a completed run.
func (p *HTTPPlanner) Summarize(ctx context.Context, goal string, records []*models.RunRecord) (string, error) {
	reply, err := p.complete(ctx, summarySystemPrompt, summaryUserPrompt(goal, records))
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(reply), nil
}

// GenerateWorkerSource produces a source artifact for the requested worker.
func (p *HTTPPlanner) GenerateWorkerSource(ctx context.Context, spec *models.WorkerSpec) (string, error) {
	reply, err := p.complete(ctx, workerSystemPrompt, workerUserPrompt(spec))
	if err != nil {
		return "", err
	}

	return stripCodeFence(reply), nil
}

func (p *HTTPPlanner) complete(ctx context.Context, system, user string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: p.config.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal planner request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(p.config.BaseURL, "/")+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build planner request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if p.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("planner request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read planner response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: planner endpoint returned status %d", ErrPlanningFailed, resp.StatusCode)
	}

	var chat chatResponse
	if err := json.Unmarshal(payload, &chat); err != nil {
		return "", fmt.Errorf("%w: unparseable completion envelope: %v", ErrPlanningFailed, err)
	}

	if len(chat.Choices) == 0 {
		return "", fmt.Errorf("%w: completion contained no choices", ErrPlanningFailed)
	}

	return chat.Choices[0].Message.Content, nil
}

// parsePlan validates and decodes the model's JSON reply into steps.
func (p *HTTPPlanner) parsePlan(ctx context.Context, reply string) ([]*models.Step, error) {
	document := stripCodeFence(reply)

	result, err := p.schema.Validate(gojsonschema.NewStringLoader(document))
	if err != nil {
		return nil, fmt.Errorf("%w: plan is not valid JSON: %v", ErrPlanningFailed, err)
	}

	if !result.Valid() {
		p.logger.WarnContext(ctx, "Planner returned schema-invalid plan", "errors", result.Errors())

		return nil, fmt.Errorf("%w: plan violates schema: %s", ErrPlanningFailed, result.Errors()[0].String())
	}

	var parsed struct {
		Steps []*models.Step `json:"steps"`
	}

	if err := json.Unmarshal([]byte(document), &parsed); err != nil {
		return nil, fmt.Errorf("%w: failed to decode plan: %v", ErrPlanningFailed, err)
	}

	sort.Slice(parsed.Steps, func(i, j int) bool {
		return parsed.Steps[i].Ordinal < parsed.Steps[j].Ordinal
	})

	for i, step := range parsed.Steps {
		if step.Ordinal != i+1 {
			return nil, fmt.Errorf("%w: step ordinals are not a contiguous 1-based sequence", ErrPlanningFailed)
		}

		if step.GateCondition == "" {
			step.GateCondition = models.GateConditionNone
		}
	}

	return parsed.Steps, nil
}

// stripCodeFence unwraps a ```json ... ``` block when the model adds one.
func stripCodeFence(reply string) string {
	trimmed := strings.TrimSpace(reply)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	trimmed = strings.TrimPrefix(trimmed, "```")
	if newline := strings.IndexByte(trimmed, '\n'); newline >= 0 {
		// Drop the language tag line, if any.
		trimmed = trimmed[newline+1:]
	}

	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")

	return strings.TrimSpace(trimmed)
}
