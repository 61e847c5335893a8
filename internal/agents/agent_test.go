package agents

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"github.com/d64483912-cmd/BabyAGI-Medical/internal/config"
	"github.com/d64483912-cmd/BabyAGI-Medical/internal/providers"
)

// mockProvider is a test double for providers.Provider.
type mockProvider struct {
	needsKey bool
	resp     *providers.ChatResponse
	err      error

	calls    int
	captured providers.ChatRequest
}

func (m *mockProvider) Name() string         { return "mock" }
func (m *mockProvider) RequiresAPIKey() bool { return m.needsKey }

func (m *mockProvider) Complete(ctx context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
	m.calls++
	m.captured = req
	return m.resp, m.err
}

func aiSettings() config.Settings {
	s := config.DefaultSettings()
	s.APIKey = "sk-test"
	return s
}

func TestKeyword(t *testing.T) {
	tests := []struct {
		desc string
		want string
	}{
		{"Research budget options", "Research"},
		{"Find the best venue", "venue"},
		{"do it now", "the task"},
		{"", "the task"},
	}
	for _, tt := range tests {
		if got := Keyword(tt.desc); got != tt.want {
			t.Errorf("Keyword(%q) = %q, want %q", tt.desc, got, tt.want)
		}
	}
}

func TestSimulatedAgent_Execute(t *testing.T) {
	agent := NewSimulatedAgent(WithDelay(0, 0), WithRand(rand.New(rand.NewPCG(1, 2))))

	for range 20 {
		res, err := agent.Execute(context.Background(), ExecuteOptions{Description: "Research budget options"})
		if err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
		if !res.IsSuccess() {
			t.Fatalf("simulated agent failed: %s", res.Error)
		}
		if strings.Contains(res.Output, "{keyword}") {
			t.Errorf("placeholder not substituted: %q", res.Output)
		}
		if !matchesTemplate(res.Output, "Research") {
			t.Errorf("output %q does not match any template", res.Output)
		}
	}
}

func matchesTemplate(out, keyword string) bool {
	for _, tmpl := range SimulatedResults() {
		if strings.Replace(tmpl, "{keyword}", keyword, 1) == out {
			return true
		}
	}
	return false
}

func TestSimulatedAgent_DelayBounds(t *testing.T) {
	agent := NewSimulatedAgent(WithDelay(20*time.Millisecond, 40*time.Millisecond))

	start := time.Now()
	if _, err := agent.Execute(context.Background(), ExecuteOptions{Description: "x"}); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("Execute() returned after %v, want at least 20ms", elapsed)
	}
}

func TestSimulatedAgent_Cancelled(t *testing.T) {
	agent := NewSimulatedAgent(WithDelay(time.Hour, time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := agent.Execute(ctx, ExecuteOptions{Description: "x"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Execute() error = %v, want context.Canceled", err)
	}
}

func TestAIAgent_MissingKey(t *testing.T) {
	p := &mockProvider{needsKey: true}
	agent := NewAIAgent(p)

	s := aiSettings()
	s.APIKey = ""
	res, err := agent.Execute(context.Background(), ExecuteOptions{Description: "x", Settings: s})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.Error != "API key not configured" {
		t.Errorf("Error = %q, want API key not configured", res.Error)
	}
	if p.calls != 0 {
		t.Errorf("provider called %d times, want 0", p.calls)
	}
}

func TestAIAgent_LocalProviderNeedsNoKey(t *testing.T) {
	p := &mockProvider{resp: &providers.ChatResponse{Content: "ok"}}
	agent := NewAIAgent(p)

	s := aiSettings()
	s.APIKey = ""
	res, _ := agent.Execute(context.Background(), ExecuteOptions{Description: "x", Settings: s})
	if !res.IsSuccess() || res.Output != "ok" {
		t.Errorf("result = %+v, want success ok", res)
	}
}

func TestAIAgent_Request(t *testing.T) {
	p := &mockProvider{needsKey: true, resp: &providers.ChatResponse{Content: "Venue shortlisted.", Model: "m", TokensUsed: 42}}
	agent := NewAIAgent(p)

	res, err := agent.Execute(context.Background(), ExecuteOptions{
		Description: "Find a venue",
		Objective:   "Plan a birthday party",
		Settings:    aiSettings(),
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.Output != "Venue shortlisted." || res.TokensUsed != 42 {
		t.Errorf("result = %+v", res)
	}

	req := p.captured
	if req.APIKey != "sk-test" || req.Model != config.DefaultModel {
		t.Errorf("request key/model = %q/%q", req.APIKey, req.Model)
	}
	if req.Temperature != config.DefaultTemperature || req.MaxTokens != config.DefaultMaxTokens {
		t.Errorf("request temperature/max tokens = %v/%d", req.Temperature, req.MaxTokens)
	}
	if len(req.Messages) != 2 {
		t.Fatalf("len(Messages) = %d, want 2", len(req.Messages))
	}
	wantSystem := `You are an autonomous task execution agent working toward this objective: "Plan a birthday party". Execute tasks efficiently and provide concise, actionable results.`
	if req.Messages[0].Role != providers.RoleSystem || req.Messages[0].Content != wantSystem {
		t.Errorf("system message = %+v", req.Messages[0])
	}
	wantUser := "Execute this task and provide a brief result (2-3 sentences):\n\nFind a venue"
	if req.Messages[1].Role != providers.RoleUser || req.Messages[1].Content != wantUser {
		t.Errorf("user message = %+v", req.Messages[1])
	}
}

func TestAIAgent_EmptyContent(t *testing.T) {
	agent := NewAIAgent(&mockProvider{needsKey: true, resp: &providers.ChatResponse{}})

	res, _ := agent.Execute(context.Background(), ExecuteOptions{Description: "x", Settings: aiSettings()})
	if res.Output != "No response generated" || !res.IsSuccess() {
		t.Errorf("result = %+v, want fallback text", res)
	}
}

func TestAIAgent_ProviderError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"api message", &providers.APIError{StatusCode: 401, Message: "Invalid API key"}, "Invalid API key"},
		{"api status", &providers.APIError{StatusCode: 500}, "API error: 500"},
		{"network", errors.New("dial tcp: connection refused"), "dial tcp: connection refused"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agent := NewAIAgent(&mockProvider{needsKey: true, err: tt.err})
			res, err := agent.Execute(context.Background(), ExecuteOptions{Description: "x", Settings: aiSettings()})
			if err != nil {
				t.Fatalf("Execute() error = %v, want structured failure", err)
			}
			if res.IsSuccess() || res.Error != tt.want {
				t.Errorf("Error = %q, want %q", res.Error, tt.want)
			}
		})
	}
}

func TestForMode(t *testing.T) {
	a, err := ForMode(config.ModeSimulated, nil)
	if err != nil || a.Name() != "simulated" {
		t.Errorf("ForMode(simulated) = %v, %v", a, err)
	}

	a, err = ForMode(config.ModeAI, &mockProvider{})
	if err != nil || a.Name() != "ai:mock" {
		t.Errorf("ForMode(ai) = %v, %v", a, err)
	}

	if _, err := ForMode(config.ModeAI, nil); err == nil {
		t.Error("ForMode(ai, nil) should fail")
	}
	if _, err := ForMode("psychic", nil); !errors.Is(err, config.ErrInvalidMode) {
		t.Errorf("ForMode(psychic) error = %v, want ErrInvalidMode", err)
	}
}
