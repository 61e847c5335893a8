package providers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAICompatible talks to any endpoint implementing the OpenAI chat
// completions API.
type OpenAICompatible struct {
	name    string
	baseURL string
	client  *http.Client
}

// NewOpenAICompatible creates a client for the named endpoint. OpenRouter
// attribution headers are added when set in opts.
func NewOpenAICompatible(name string, opts Options) *OpenAICompatible {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	if opts.Referer != "" || opts.Title != "" {
		wrapped := *client
		wrapped.Transport = &headerTransport{
			base:    client.Transport,
			referer: opts.Referer,
			title:   opts.Title,
		}
		client = &wrapped
	}
	return &OpenAICompatible{
		name:    name,
		baseURL: strings.TrimSuffix(opts.BaseURL, "/"),
		client:  client,
	}
}

// Name returns the provider identifier.
func (p *OpenAICompatible) Name() string {
	return p.name
}

// RequiresAPIKey is always true for hosted endpoints.
func (p *OpenAICompatible) RequiresAPIKey() bool {
	return true
}

// Complete sends a chat completion request.
func (p *OpenAICompatible) Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	cfg := openai.DefaultConfig(req.APIKey)
	cfg.BaseURL = p.baseURL
	cfg.HTTPClient = p.client
	client := openai.NewClientWithConfig(cfg)

	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, normalizeOpenAIError(err)
	}

	out := &ChatResponse{
		Model:      resp.Model,
		TokensUsed: resp.Usage.TotalTokens,
	}
	if len(resp.Choices) > 0 {
		out.Content = resp.Choices[0].Message.Content
		out.FinishReason = string(resp.Choices[0].FinishReason)
	}
	return out, nil
}

// normalizeOpenAIError maps go-openai errors onto APIError. Transport
// failures pass through unchanged.
func normalizeOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &APIError{StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return &APIError{StatusCode: reqErr.HTTPStatusCode}
	}
	return err
}

// headerTransport adds OpenRouter attribution headers to every request.
type headerTransport struct {
	base    http.RoundTripper
	referer string
	title   string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	if t.referer != "" {
		req.Header.Set("HTTP-Referer", t.referer)
	}
	if t.title != "" {
		req.Header.Set("X-Title", t.title)
	}
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}
