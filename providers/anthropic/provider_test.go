package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiorch/core/internal/llmtypes"
	"github.com/aiorch/core/internal/orcherr"
	"github.com/aiorch/core/internal/provider"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p := New(nil, []string{"claude-sonnet-4-5-20250514"})
	require.NoError(t, p.Initialize(context.Background(), provider.Config{APIKey: "test-key", BaseURL: srv.URL}))
	return p
}

func TestCompleteParsesContentAndUsage(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		_ = json.NewEncoder(w).Encode(response{
			Content:    []contentBlock{{Type: "text", Text: "hello there"}},
			Model:      "claude-sonnet-4-5-20250514",
			StopReason: "end_turn",
			Usage:      usage{InputTokens: 10, OutputTokens: 5},
		})
	})

	res, err := p.Complete(context.Background(), &provider.CompletionRequest{
		Model:     "claude-sonnet-4-5-20250514",
		Messages:  []llmtypes.Message{{Role: llmtypes.RoleUser, Content: "hi"}},
		MaxTokens: 100,
	})
	require.NoError(t, err)
	assert.Equal(t, "hello there", res.Content)
	assert.Equal(t, 10, res.InputTokens)
	assert.Equal(t, 5, res.OutputTokens)
	assert.Equal(t, llmtypes.FinishStop, res.FinishReason)
}

func TestCompleteMapsMaxTokensFinish(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(response{StopReason: "max_tokens", Usage: usage{InputTokens: 1, OutputTokens: 1}})
	})
	res, err := p.Complete(context.Background(), &provider.CompletionRequest{Model: "m", Messages: []llmtypes.Message{{Role: llmtypes.RoleUser, Content: "hi"}}})
	require.NoError(t, err)
	assert.Equal(t, llmtypes.FinishMaxTokens, res.FinishReason)
}

func TestCompleteRateLimitIsRetryable(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(errorEnvelope{})
	})
	_, err := p.Complete(context.Background(), &provider.CompletionRequest{Model: "m", Messages: []llmtypes.Message{{Role: llmtypes.RoleUser, Content: "hi"}}})
	require.Error(t, err)
	assert.True(t, orcherr.IsRetryable(err))
}

func TestCompleteUnauthorizedIsPermanent(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(errorEnvelope{})
	})
	_, err := p.Complete(context.Background(), &provider.CompletionRequest{Model: "m", Messages: []llmtypes.Message{{Role: llmtypes.RoleUser, Content: "hi"}}})
	require.Error(t, err)
	assert.Equal(t, orcherr.CodeProviderPermanent, orcherr.CodeOf(err))
}

func TestSupportsModel(t *testing.T) {
	p := New(nil, []string{"claude-haiku-4.5", "claude-sonnet-4.5"})
	assert.True(t, p.SupportsModel("claude-haiku-4.5"))
	assert.False(t, p.SupportsModel("gpt-4.1"))
}

func TestCacheControlAttachedWhenCacheable(t *testing.T) {
	blocks := buildSystemBlocks([]provider.SystemBlock{{Text: "long system prompt", Cacheable: true}, {Text: "short", Cacheable: false}})
	require.Len(t, blocks, 2)
	assert.NotNil(t, blocks[0].CacheControl)
	assert.Nil(t, blocks[1].CacheControl)
}
