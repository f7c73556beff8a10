// Package providers implements llm.Provider on top of the vendor SDKs.
package providers

import (
	"context"
	"os"

	"github.com/dshills/textstorm/internal/llm"
)

// Config configures one provider.
type Config struct {
	APIKey    string `toml:"api_key"`
	BaseURL   string `toml:"base_url"`
	Model     string `toml:"model"`
	MaxTokens int    `toml:"max_tokens"`
}

// Default models used when neither the snippet nor the config names one.
const (
	DefaultAnthropicModel = "claude-3-5-haiku-latest"
	DefaultOpenAIModel    = "gpt-4o-mini"
	DefaultGeminiModel    = "gemini-1.5-flash"

	defaultMaxTokens = 1024
)

// apiKeyEnv maps provider names to the environment variables holding
// their keys.
var apiKeyEnv = map[string][]string{
	"anthropic": {"ANTHROPIC_API_KEY"},
	"openai":    {"OPENAI_API_KEY"},
	"gemini":    {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
}

// ResolveAPIKey returns cfg.APIKey or the provider's environment variable.
func ResolveAPIKey(provider string, cfg Config) string {
	if cfg.APIKey != "" {
		return cfg.APIKey
	}
	for _, env := range apiKeyEnv[provider] {
		if v := os.Getenv(env); v != "" {
			return v
		}
	}
	return ""
}

// Register adds the anthropic, openai and gemini providers to r. A provider
// without an API key is registered as one that fails with
// llm.CategoryNoAPIKey, so dynamic snippets can explain what is missing.
func Register(r *llm.Registry, configs map[string]Config) {
	factories := map[string]func(Config) (llm.Provider, error){
		"anthropic": func(c Config) (llm.Provider, error) { return NewAnthropic(c) },
		"openai":    func(c Config) (llm.Provider, error) { return NewOpenAI(c) },
		"gemini":    func(c Config) (llm.Provider, error) { return NewGemini(c) },
	}
	for name, factory := range factories {
		cfg := configs[name]
		cfg.APIKey = ResolveAPIKey(name, cfg)
		p, err := factory(cfg)
		if err != nil {
			p = failing(name, err)
		}
		r.Register(p)
	}
}

func failing(name string, err error) llm.Provider {
	return llm.ProviderFunc{ID: name, Fn: func(context.Context, llm.Request) (llm.Response, error) {
		return llm.Response{}, err
	}}
}

func pick(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func pickInt(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
