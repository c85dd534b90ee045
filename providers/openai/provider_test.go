package openai

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
	p := New(nil, []string{"gpt-4.1"})
	require.NoError(t, p.Initialize(context.Background(), provider.Config{APIKey: "test-key", BaseURL: srv.URL}))
	return p
}

func TestCompleteParsesContentAndCachedTokens(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(response{
			Model:   "gpt-4.1",
			Choices: []choice{{Message: message{Content: "hello"}, FinishReason: "stop"}},
			Usage:   usage{PromptTokens: 1100, CompletionTokens: 50, PromptTokensDetails: &promptTokensDetails{CachedTokens: 1024}},
		})
	})

	res, err := p.Complete(context.Background(), &provider.CompletionRequest{
		Model:    "gpt-4.1",
		Messages: []llmtypes.Message{{Role: llmtypes.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", res.Content)
	assert.Equal(t, 76, res.InputTokens)
	assert.Equal(t, 1024, res.CachedInputTokens)
	assert.Equal(t, llmtypes.FinishStop, res.FinishReason)
}

func TestCompleteMapsLengthFinish(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(response{Choices: []choice{{FinishReason: "length"}}})
	})
	res, err := p.Complete(context.Background(), &provider.CompletionRequest{Model: "m", Messages: []llmtypes.Message{{Role: llmtypes.RoleUser, Content: "hi"}}})
	require.NoError(t, err)
	assert.Equal(t, llmtypes.FinishMaxTokens, res.FinishReason)
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

func TestCompleteRateLimitedIsRetryable(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(errorEnvelope{})
	})
	_, err := p.Complete(context.Background(), &provider.CompletionRequest{Model: "m", Messages: []llmtypes.Message{{Role: llmtypes.RoleUser, Content: "hi"}}})
	require.Error(t, err)
	assert.True(t, orcherr.IsRetryable(err))
}

func TestSystemBlocksBecomeSystemMessages(t *testing.T) {
	msgs := buildMessages([]provider.SystemBlock{{Text: "be concise"}}, []llmtypes.Message{{Role: llmtypes.RoleUser, Content: "hi"}})
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].Role)
	assert.Equal(t, "be concise", msgs[0].Content)
}
