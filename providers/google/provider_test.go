package google

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
	p := New(nil, []string{"gemini-2.5-flash"})
	require.NoError(t, p.Initialize(context.Background(), provider.Config{APIKey: "test-key", BaseURL: srv.URL}))
	return p
}

func TestCompleteParsesTextAndUsage(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
		_ = json.NewEncoder(w).Encode(response{
			Candidates: []candidate{{Content: content{Parts: []part{{Text: "hi there"}}}, FinishReason: "STOP"}},
			UsageMetadata: &usageMetadata{PromptTokenCount: 20, CandidatesTokenCount: 8, CachedContentTokenCount: 5},
		})
	})

	res, err := p.Complete(context.Background(), &provider.CompletionRequest{
		Model:    "gemini-2.5-flash",
		Messages: []llmtypes.Message{{Role: llmtypes.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "hi there", res.Content)
	assert.Equal(t, 15, res.InputTokens)
	assert.Equal(t, 5, res.CachedInputTokens)
	assert.Equal(t, 8, res.OutputTokens)
	assert.Equal(t, llmtypes.FinishStop, res.FinishReason)
}

func TestCompleteMapsMaxTokensFinish(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(response{Candidates: []candidate{{FinishReason: "MAX_TOKENS"}}})
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

func TestSupportsModel(t *testing.T) {
	p := New(nil, []string{"gemini-2.5-flash-lite", "gemini-2.5-pro"})
	assert.True(t, p.SupportsModel("gemini-2.5-pro"))
	assert.False(t, p.SupportsModel("claude-haiku-4.5"))
}
