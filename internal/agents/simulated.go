package agents

import (
	"context"
	"math/rand/v2"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// Simulated delay bounds.
const (
	DefaultMinDelay = 500 * time.Millisecond
	DefaultMaxDelay = 2500 * time.Millisecond
)

var simulatedResults = []string{
	"Completed research on {keyword}. Found 3 relevant sources with key insights about implementation strategies.",
	"Analyzed {keyword} and identified 5 critical factors: feasibility, cost, timeline, resources, and risks.",
	"Generated comprehensive outline with 4 main sections covering all aspects of {keyword}.",
	"Evaluated different approaches to {keyword}. Recommended hybrid strategy combining best practices.",
	"Synthesized findings into actionable recommendations. Next steps clearly defined.",
	"Reviewed {keyword} thoroughly. Identified 3 optimization opportunities and 2 potential blockers.",
	"Created detailed framework for {keyword} with step-by-step implementation guide.",
	"Gathered data on {keyword}. Key metrics show positive trends and strong potential.",
}

// SimulatedAgent produces canned results after an artificial delay.
// It never fails except on cancellation.
type SimulatedAgent struct {
	mu       sync.Mutex
	rng      *rand.Rand
	minDelay time.Duration
	maxDelay time.Duration
}

// SimulatedOption configures a SimulatedAgent.
type SimulatedOption func(*SimulatedAgent)

// WithRand sets the random source for delay and template choice.
func WithRand(r *rand.Rand) SimulatedOption {
	return func(a *SimulatedAgent) {
		a.rng = r
	}
}

// WithDelay sets the delay range. Zero values disable the delay.
func WithDelay(minDelay, maxDelay time.Duration) SimulatedOption {
	return func(a *SimulatedAgent) {
		a.minDelay = minDelay
		a.maxDelay = max(minDelay, maxDelay)
	}
}

// NewSimulatedAgent creates a simulated agent.
func NewSimulatedAgent(opts ...SimulatedOption) *SimulatedAgent {
	a := &SimulatedAgent{
		rng:      rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		minDelay: DefaultMinDelay,
		maxDelay: DefaultMaxDelay,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name returns "simulated".
func (a *SimulatedAgent) Name() string {
	return "simulated"
}

// Execute waits for the simulated delay and returns a templated result.
func (a *SimulatedAgent) Execute(ctx context.Context, opts ExecuteOptions) (*ExecuteResult, error) {
	start := time.Now()

	a.mu.Lock()
	delay := a.minDelay
	if span := a.maxDelay - a.minDelay; span > 0 {
		delay += time.Duration(a.rng.Int64N(int64(span)))
	}
	template := simulatedResults[a.rng.IntN(len(simulatedResults))]
	a.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return &ExecuteResult{
		Output:   strings.Replace(template, "{keyword}", Keyword(opts.Description), 1),
		Duration: time.Since(start),
	}, nil
}

// Keyword returns the first word longer than four characters, or "the task".
func Keyword(description string) string {
	for _, w := range strings.Fields(description) {
		if utf8.RuneCountInString(w) > 4 {
			return w
		}
	}
	return "the task"
}

// SimulatedResults returns the result templates.
func SimulatedResults() []string {
	return append([]string(nil), simulatedResults...)
}
