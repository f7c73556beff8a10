// Package llm completes prompts for dynamic snippets through pluggable
// providers.
package llm

import "context"

// Request is the input to a Provider.
type Request struct {
	Prompt      string  `json:"prompt"`
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

// Response is the output of a completion.
type Response struct {
	Text  string `json:"text"`
	Model string `json:"model"`
}

// Provider is one LLM backend.
type Provider interface {
	// Name returns the provider identifier (e.g. "anthropic", "openai").
	Name() string

	// Complete sends a request and returns the full response.
	Complete(ctx context.Context, req Request) (Response, error)
}

// Completer routes a request to a named provider.
type Completer interface {
	Complete(ctx context.Context, provider string, req Request) (Response, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc struct {
	ID string
	Fn func(ctx context.Context, req Request) (Response, error)
}

// Name implements Provider.
func (p ProviderFunc) Name() string { return p.ID }

// Complete implements Provider.
func (p ProviderFunc) Complete(ctx context.Context, req Request) (Response, error) {
	return p.Fn(ctx, req)
}
