package providers

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/dshills/textstorm/internal/llm"
)

// Anthropic implements llm.Provider with the Anthropic Messages API.
type Anthropic struct {
	client    anthropic.Client
	model     string
	maxTokens int
}

// NewAnthropic creates the provider. It fails without an API key.
func NewAnthropic(cfg Config) (*Anthropic, error) {
	if cfg.APIKey == "" {
		return nil, llm.ErrNoAPIKey("anthropic")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithMaxRetries(0)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Anthropic{
		client:    anthropic.NewClient(opts...),
		model:     pick(cfg.Model, DefaultAnthropicModel),
		maxTokens: pickInt(cfg.MaxTokens, defaultMaxTokens),
	}, nil
}

// Name implements llm.Provider.
func (a *Anthropic) Name() string { return "anthropic" }

// Complete implements llm.Provider.
func (a *Anthropic) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(pick(req.Model, a.model)),
		MaxTokens: int64(pickInt(req.MaxTokens, a.maxTokens)),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return llm.Response{}, llm.FromStatus(a.Name(), apiErr.StatusCode, err)
		}
		return llm.Response{}, wrapTransport(a.Name(), err)
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return llm.Response{Text: b.String(), Model: string(msg.Model)}, nil
}
