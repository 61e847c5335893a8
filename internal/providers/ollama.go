package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"
)

// Ollama runs chat completions against a local Ollama server.
type Ollama struct {
	client *api.Client
}

// NewOllama creates a client for the Ollama server at baseURL.
func NewOllama(baseURL string, httpClient *http.Client) (*Ollama, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing ollama url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Ollama{client: api.NewClient(u, httpClient)}, nil
}

// Name returns the provider identifier.
func (o *Ollama) Name() string {
	return NameOllama
}

// RequiresAPIKey is false; local models need no credential.
func (o *Ollama) RequiresAPIKey() bool {
	return false
}

// Complete sends a non-streaming chat request.
func (o *Ollama) Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	messages := make([]api.Message, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = api.Message{Role: m.Role, Content: m.Content}
	}

	stream := false
	options := map[string]any{"temperature": req.Temperature}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}

	out := &ChatResponse{}
	err := o.client.Chat(ctx, &api.ChatRequest{
		Model:    req.Model,
		Messages: messages,
		Stream:   &stream,
		Options:  options,
	}, func(resp api.ChatResponse) error {
		out.Content += resp.Message.Content
		out.Model = resp.Model
		if resp.Done {
			out.FinishReason = resp.DoneReason
			out.TokensUsed = resp.PromptEvalCount + resp.EvalCount
		}
		return nil
	})
	if err != nil {
		var statusErr api.StatusError
		if errors.As(err, &statusErr) {
			return nil, &APIError{StatusCode: statusErr.StatusCode, Message: statusErr.ErrorMessage}
		}
		return nil, err
	}
	return out, nil
}
