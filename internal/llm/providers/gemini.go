package providers

import (
	"context"
	"errors"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/dshills/textstorm/internal/llm"
)

// Gemini implements llm.Provider with the Gemini API.
type Gemini struct {
	opts      []option.ClientOption
	model     string
	maxTokens int
}

// NewGemini creates the provider. It fails without an API key.
func NewGemini(cfg Config) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, llm.ErrNoAPIKey("gemini")
	}
	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(cfg.BaseURL))
	}
	return &Gemini{
		opts:      opts,
		model:     pick(cfg.Model, DefaultGeminiModel),
		maxTokens: pickInt(cfg.MaxTokens, defaultMaxTokens),
	}, nil
}

// Name implements llm.Provider.
func (g *Gemini) Name() string { return "gemini" }

// httpCoder is implemented by googleapis API errors.
type httpCoder interface {
	HTTPCode() int
}

// Complete implements llm.Provider.
func (g *Gemini) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	client, err := genai.NewClient(ctx, g.opts...)
	if err != nil {
		return llm.Response{}, wrapTransport(g.Name(), err)
	}
	defer client.Close()

	name := pick(req.Model, g.model)
	model := client.GenerativeModel(name)
	model.SetMaxOutputTokens(int32(pickInt(req.MaxTokens, g.maxTokens)))
	if req.Temperature > 0 {
		model.SetTemperature(float32(req.Temperature))
	}

	resp, err := model.GenerateContent(ctx, genai.Text(req.Prompt))
	if err != nil {
		var coded httpCoder
		if errors.As(err, &coded) && coded.HTTPCode() > 0 {
			return llm.Response{}, llm.FromStatus(g.Name(), coded.HTTPCode(), err)
		}
		return llm.Response{}, wrapTransport(g.Name(), err)
	}

	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				b.WriteString(string(text))
			}
		}
		break
	}
	return llm.Response{Text: b.String(), Model: name}, nil
}
