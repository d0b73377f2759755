// Package coach turns a recommendation result into a short written study
// plan, asking an LLM when one is configured and falling back to a plan
// built straight from the buckets.
package coach

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/studytrack/backend/internal/config"
	"github.com/studytrack/backend/internal/models"
	"github.com/studytrack/backend/internal/recommend"
)

const maxSteps = 5

const (
	SourceLLM      = "llm"
	SourceFallback = "fallback"
)

type Input struct {
	DaysLeft  int
	Result    recommend.Result
	Dashboard models.DashboardProgress
}

type Plan struct {
	Summary string   `json:"summary"`
	Steps   []string `json:"steps"`
	Source  string   `json:"source"`
	Model   string   `json:"model,omitempty"`
}

type Coach struct {
	llm   LLMClient
	model string
	log   *zap.Logger
}

func New(llm LLMClient, model string, log *zap.Logger) *Coach {
	return &Coach{llm: llm, model: model, log: log}
}

// FromConfig picks the backend named by cfg.Provider.
func FromConfig(cfg config.CoachConfig, log *zap.Logger) *Coach {
	if cfg.Provider == "anthropic" && cfg.APIKey != "" {
		log.Info("coach using Anthropic API", zap.String("model", cfg.Model))
		return New(NewAPIClient(cfg.APIKey, cfg.Model, cfg.MaxTokens, log), cfg.Model, log)
	}
	if cfg.Provider == "anthropic" {
		log.Warn("coach provider is anthropic but no API key is set, using mock")
	}
	return New(NewMockClient(), "mock", log)
}

// Plan never fails: any LLM or parse error yields the fallback plan.
func (c *Coach) Plan(ctx context.Context, in Input) Plan {
	resp, err := c.llm.Generate(ctx, SystemPrompt(), BuildUserPrompt(in))
	if err != nil {
		c.log.Warn("coach generation failed", zap.Error(err))
		return Fallback(in)
	}

	plan, err := ParsePlan(resp.Content)
	if err != nil {
		c.log.Warn("coach response rejected", zap.Error(err))
		return Fallback(in)
	}

	c.log.Debug("coach plan generated",
		zap.Int("prompt_tokens", resp.PromptTokens),
		zap.Int("output_tokens", resp.OutputTokens),
	)
	plan.Source = SourceLLM
	plan.Model = c.model
	return *plan
}

func ParsePlan(content string) (*Plan, error) {
	var plan Plan
	if err := json.Unmarshal([]byte(stripCodeFences(content)), &plan); err != nil {
		return nil, fmt.Errorf("failed to parse JSON response: %w", err)
	}

	plan.Summary = strings.TrimSpace(plan.Summary)
	if plan.Summary == "" {
		return nil, fmt.Errorf("plan has no summary")
	}

	steps := plan.Steps[:0]
	for _, s := range plan.Steps {
		if s = strings.TrimSpace(s); s != "" {
			steps = append(steps, s)
		}
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("plan has no steps")
	}
	if len(steps) > maxSteps {
		steps = steps[:maxSteps]
	}
	plan.Steps = steps
	return &plan, nil
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```json") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimSpace(s)
	} else if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSpace(s)
	}
	if strings.HasSuffix(s, "```") {
		s = strings.TrimSuffix(s, "```")
		s = strings.TrimSpace(s)
	}
	return s
}

// Fallback builds a plan from the buckets alone, in bucket order.
func Fallback(in Input) Plan {
	var steps []string
	for _, r := range in.Result.Revise {
		steps = append(steps, fmt.Sprintf("Revise %s", r.Name))
	}
	for _, r := range in.Result.Priority {
		steps = append(steps, fmt.Sprintf("Continue learning %s", r.Name))
	}
	for _, r := range in.Result.StartNext {
		steps = append(steps, fmt.Sprintf("Start %s", r.Name))
	}
	if len(steps) > maxSteps {
		steps = steps[:maxSteps]
	}
	if len(steps) == 0 {
		steps = []string{"Add subjects and topics to get a plan"}
	}

	summary := fmt.Sprintf("%d days left, overall progress %.1f%%.", in.DaysLeft, in.Dashboard.Overall)
	return Plan{Summary: summary, Steps: steps, Source: SourceFallback}
}
