// Package agents provides the task executors the agent loop calls.
// An agent turns a task description into a result text or a failure.
package agents

import (
	"context"
	"fmt"
	"time"

	"github.com/d64483912-cmd/BabyAGI-Medical/internal/config"
	"github.com/d64483912-cmd/BabyAGI-Medical/internal/providers"
)

// Agent is the interface for task execution.
type Agent interface {
	// Name returns the agent identifier.
	Name() string

	// Execute runs one task. Execution failures are reported in
	// ExecuteResult.Error; the error return is reserved for cancellation.
	Execute(ctx context.Context, opts ExecuteOptions) (*ExecuteResult, error)
}

// ExecuteOptions configures an agent execution.
type ExecuteOptions struct {
	Description string          // Task description
	Objective   string          // Objective the run is working toward
	Settings    config.Settings // Settings snapshot taken at run start
}

// ExecuteResult holds the outcome of an agent execution.
type ExecuteResult struct {
	Output     string        // Result text
	Model      string        // Model that produced the output, if any
	TokensUsed int           // Tokens reported by the provider
	Duration   time.Duration // Execution duration
	Error      string        // Error message if failed
}

// IsSuccess returns true if the execution succeeded.
func (r *ExecuteResult) IsSuccess() bool {
	return r.Error == ""
}

// ForMode returns the agent for a run mode. Provider is required for AI mode.
func ForMode(mode string, provider providers.Provider) (Agent, error) {
	switch mode {
	case "", config.ModeSimulated:
		return NewSimulatedAgent(), nil
	case config.ModeAI:
		if provider == nil {
			return nil, fmt.Errorf("ai mode requires a provider")
		}
		return NewAIAgent(provider), nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrInvalidMode, mode)
	}
}
