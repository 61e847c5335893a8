// Package providers implements chat-completion clients for the AI agent.
// Supports OpenAI-compatible endpoints (OpenRouter, OpenAI, Anthropic) and
// local Ollama models.
package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"
)

// Provider is the interface all chat-completion backends implement.
type Provider interface {
	// Name returns the provider identifier.
	Name() string

	// RequiresAPIKey reports whether requests need a credential.
	RequiresAPIKey() bool

	// Complete sends one chat request and returns the first choice.
	Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat message.
type Message struct {
	Role    string
	Content string
}

// ChatRequest is a single chat-completion request.
type ChatRequest struct {
	APIKey      string
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// ChatResponse holds the first choice of a completion.
type ChatResponse struct {
	Content      string
	Model        string
	TokensUsed   int
	FinishReason string
}

// APIError is a non-2xx response from a provider.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("API error: %d", e.StatusCode)
}

// ErrUnknownProvider is returned by New for unsupported provider names.
var ErrUnknownProvider = errors.New("unknown provider")

// Provider names.
const (
	NameOpenRouter = "openrouter"
	NameOpenAI     = "openai"
	NameAnthropic  = "anthropic"
	NameOllama     = "ollama"
)

// Default endpoints.
const (
	DefaultOpenRouterURL = "https://openrouter.ai/api/v1"
	DefaultOpenAIURL     = "https://api.openai.com/v1"
	DefaultAnthropicURL  = "https://api.anthropic.com/v1"
	DefaultOllamaURL     = "http://localhost:11434"
)

// DefaultTimeout bounds a single completion request.
const DefaultTimeout = 60 * time.Second

// Options configures a provider.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	// Referer and Title identify the app to OpenRouter.
	Referer string
	Title   string
}

// Option mutates Options.
type Option func(*Options)

// WithBaseURL overrides the provider endpoint.
func WithBaseURL(u string) Option {
	return func(o *Options) {
		o.BaseURL = u
	}
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Options) {
		o.HTTPClient = c
	}
}

// WithAppIdentity sets the OpenRouter attribution headers.
func WithAppIdentity(referer, title string) Option {
	return func(o *Options) {
		o.Referer = referer
		o.Title = title
	}
}

// Names lists the supported provider names.
func Names() []string {
	return []string{NameOpenRouter, NameOpenAI, NameAnthropic, NameOllama}
}

// IsKnown reports whether name is a supported provider.
func IsKnown(name string) bool {
	return slices.Contains(Names(), name)
}

// New creates a provider by name.
func New(name string, opts ...Option) (Provider, error) {
	o := Options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: DefaultTimeout}
	}

	switch name {
	case NameOpenRouter:
		if o.BaseURL == "" {
			o.BaseURL = DefaultOpenRouterURL
		}
		return NewOpenAICompatible(name, o), nil
	case NameOpenAI:
		if o.BaseURL == "" {
			o.BaseURL = DefaultOpenAIURL
		}
		return NewOpenAICompatible(name, o), nil
	case NameAnthropic:
		if o.BaseURL == "" {
			o.BaseURL = DefaultAnthropicURL
		}
		return NewOpenAICompatible(name, o), nil
	case NameOllama:
		if o.BaseURL == "" {
			o.BaseURL = DefaultOllamaURL
		}
		return NewOllama(o.BaseURL, o.HTTPClient)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
}
