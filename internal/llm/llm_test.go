package llm

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echo(name string) Provider {
	return ProviderFunc{ID: name, Fn: func(_ context.Context, req Request) (Response, error) {
		return Response{Text: "echo: " + req.Prompt, Model: req.Model}, nil
	}}
}

func TestRegistry_Complete(t *testing.T) {
	r := NewRegistry()
	r.Register(echo("Anthropic"))

	resp, err := r.Complete(context.Background(), "anthropic", Request{Prompt: "hi", Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, "echo: hi", resp.Text)
	assert.Equal(t, []string{"anthropic"}, r.Names())
}

func TestRegistry_UnknownProvider(t *testing.T) {
	_, err := NewRegistry().Complete(context.Background(), "nope", Request{})
	assert.Equal(t, CategoryNoProvider, Categorize(err))
	assert.Equal(t, "unknown provider nope", Reason(err))
}

func TestRegistry_Timeout(t *testing.T) {
	r := NewRegistry(WithTimeout(10 * time.Millisecond))
	r.Register(ProviderFunc{ID: "slow", Fn: func(ctx context.Context, _ Request) (Response, error) {
		<-ctx.Done()
		return Response{}, ctx.Err()
	}})

	_, err := r.Complete(context.Background(), "slow", Request{})
	assert.Equal(t, CategoryTimeout, Categorize(err))
	assert.Equal(t, "provider timed out", Reason(err))
}

func TestRegistry_EmptyResponse(t *testing.T) {
	r := NewRegistry()
	r.Register(ProviderFunc{ID: "blank", Fn: func(context.Context, Request) (Response, error) {
		return Response{Text: "  "}, nil
	}})
	_, err := r.Complete(context.Background(), "blank", Request{})
	assert.Equal(t, CategoryEmpty, Categorize(err))
}

func TestFromStatus(t *testing.T) {
	tests := []struct {
		status int
		want   Category
		reason string
	}{
		{http.StatusUnauthorized, CategoryAuth, "openai rejected the API key"},
		{http.StatusTooManyRequests, CategoryRateLimit, "openai rate limit reached"},
		{http.StatusGatewayTimeout, CategoryTimeout, "openai timed out"},
		{http.StatusInternalServerError, CategoryProvider, "openai error (HTTP 500)"},
	}
	for _, tt := range tests {
		err := FromStatus("openai", tt.status, errors.New("body"))
		assert.Equal(t, tt.want, Categorize(err))
		assert.Equal(t, tt.reason, Reason(err))
	}
}

func TestReason_NoAPIKey(t *testing.T) {
	assert.Equal(t, "no API key for gemini", Reason(ErrNoAPIKey("gemini")))
	assert.Equal(t, "unexpected error", Reason(errors.New("x")))
}
