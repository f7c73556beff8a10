package providers

import (
	"context"
	"errors"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/dshills/textstorm/internal/llm"
)

// OpenAI implements llm.Provider with the Chat Completions API.
type OpenAI struct {
	client    openai.Client
	model     string
	maxTokens int
}

// NewOpenAI creates the provider. It fails without an API key.
func NewOpenAI(cfg Config) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, llm.ErrNoAPIKey("openai")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithMaxRetries(0)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAI{
		client:    openai.NewClient(opts...),
		model:     pick(cfg.Model, DefaultOpenAIModel),
		maxTokens: pickInt(cfg.MaxTokens, defaultMaxTokens),
	}, nil
}

// Name implements llm.Provider.
func (o *OpenAI) Name() string { return "openai" }

// Complete implements llm.Provider.
func (o *OpenAI) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(pick(req.Model, o.model)),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(req.Prompt),
		},
		MaxCompletionTokens: openai.Int(int64(pickInt(req.MaxTokens, o.maxTokens))),
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return llm.Response{}, llm.FromStatus(o.Name(), apiErr.StatusCode, err)
		}
		return llm.Response{}, wrapTransport(o.Name(), err)
	}
	if len(resp.Choices) == 0 {
		return llm.Response{}, llm.ErrEmptyResponse(o.Name())
	}
	return llm.Response{Text: resp.Choices[0].Message.Content, Model: resp.Model}, nil
}
