package agents

import (
	"context"
	"time"

	"github.com/d64483912-cmd/BabyAGI-Medical/internal/providers"
)

// Fixed failure and fallback messages.
const (
	ErrMsgNoAPIKey = "API key not configured"
	NoResponseText = "No response generated"
)

// AIAgent executes tasks with one chat completion per task.
type AIAgent struct {
	provider providers.Provider
}

// NewAIAgent creates an agent backed by provider.
func NewAIAgent(provider providers.Provider) *AIAgent {
	return &AIAgent{provider: provider}
}

// Name returns "ai:<provider>".
func (a *AIAgent) Name() string {
	return "ai:" + a.provider.Name()
}

// SystemPrompt anchors the model to the objective.
func SystemPrompt(objective string) string {
	return `You are an autonomous task execution agent working toward this objective: "` + objective +
		`". Execute tasks efficiently and provide concise, actionable results.`
}

// UserPrompt asks for a short result for one task.
func UserPrompt(description string) string {
	return "Execute this task and provide a brief result (2-3 sentences):\n\n" + description
}

// Execute sends the task to the provider. Missing credentials fail without
// a network call; API and transport errors become ExecuteResult.Error.
func (a *AIAgent) Execute(ctx context.Context, opts ExecuteOptions) (*ExecuteResult, error) {
	start := time.Now()
	s := opts.Settings

	if a.provider.RequiresAPIKey() && s.APIKey == "" {
		return &ExecuteResult{Error: ErrMsgNoAPIKey}, nil
	}

	resp, err := a.provider.Complete(ctx, providers.ChatRequest{
		APIKey: s.APIKey,
		Model:  s.Model,
		Messages: []providers.Message{
			{Role: providers.RoleSystem, Content: SystemPrompt(opts.Objective)},
			{Role: providers.RoleUser, Content: UserPrompt(opts.Description)},
		},
		Temperature: s.Temperature,
		MaxTokens:   s.MaxTokens,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return &ExecuteResult{Error: err.Error(), Duration: time.Since(start)}, nil
	}

	out := resp.Content
	if out == "" {
		out = NoResponseText
	}
	return &ExecuteResult{
		Output:     out,
		Model:      resp.Model,
		TokensUsed: resp.TokensUsed,
		Duration:   time.Since(start),
	}, nil
}
