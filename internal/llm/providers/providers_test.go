package providers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/dshills/textstorm/internal/llm"
)

func TestAnthropicComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "write a haiku", gjson.GetBytes(body, "messages.0.content.0.text").String())
		assert.Equal(t, int64(64), gjson.GetBytes(body, "max_tokens").Int())

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":          "msg_1",
			"type":        "message",
			"role":        "assistant",
			"model":       "claude-test",
			"stop_reason": "end_turn",
			"content":     []map[string]any{{"type": "text", "text": "autumn moon"}},
			"usage":       map[string]any{"input_tokens": 3, "output_tokens": 2},
		})
	}))
	defer server.Close()

	p, err := NewAnthropic(Config{APIKey: "test-key", BaseURL: server.URL})
	require.NoError(t, err)

	resp, err := p.Complete(context.Background(), llm.Request{Prompt: "write a haiku", MaxTokens: 64})
	require.NoError(t, err)
	assert.Equal(t, "autumn moon", resp.Text)
	assert.Equal(t, "claude-test", resp.Model)
}

func TestAnthropicRateLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`))
	}))
	defer server.Close()

	p, err := NewAnthropic(Config{APIKey: "k", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = p.Complete(context.Background(), llm.Request{Prompt: "x"})
	require.Error(t, err)
	assert.Equal(t, llm.CategoryRateLimit, llm.Categorize(err))
}

func TestOpenAIComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "gpt-test", gjson.GetBytes(body, "model").String())
		assert.Equal(t, "user", gjson.GetBytes(body, "messages.0.role").String())

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "gpt-test",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": "hello there"},
			}},
		})
	}))
	defer server.Close()

	p, err := NewOpenAI(Config{APIKey: "test-key", BaseURL: server.URL, Model: "gpt-test"})
	require.NoError(t, err)

	resp, err := p.Complete(context.Background(), llm.Request{Prompt: "greet"})
	require.NoError(t, err)
	assert.Equal(t, "hello there", resp.Text)
}

func TestOpenAIAuthFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer server.Close()

	p, err := NewOpenAI(Config{APIKey: "bad", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = p.Complete(context.Background(), llm.Request{Prompt: "x"})
	assert.Equal(t, llm.CategoryAuth, llm.Categorize(err))
	assert.Equal(t, "openai rejected the API key", llm.Reason(err))
}

func TestRegister_MissingKeys(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")

	r := llm.NewRegistry()
	Register(r, map[string]Config{"openai": {APIKey: "set"}})
	assert.Equal(t, []string{"anthropic", "gemini", "openai"}, r.Names())

	_, err := r.Complete(context.Background(), "gemini", llm.Request{Prompt: "x"})
	assert.Equal(t, llm.CategoryNoAPIKey, llm.Categorize(err))
	assert.Equal(t, "no API key for gemini", llm.Reason(err))
}

func TestResolveAPIKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "g")
	assert.Equal(t, "g", ResolveAPIKey("gemini", Config{}))
	assert.Equal(t, "explicit", ResolveAPIKey("gemini", Config{APIKey: "explicit"}))
}
