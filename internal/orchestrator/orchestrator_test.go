package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiorch/core/internal/costtracker"
	"github.com/aiorch/core/internal/llmtypes"
	"github.com/aiorch/core/internal/modelregistry"
	"github.com/aiorch/core/internal/orcherr"
	"github.com/aiorch/core/internal/provider"
	"github.com/aiorch/core/internal/providerregistry"
)

// fakeProvider is a scripted provider.Provider stand-in so tests never make
// real HTTP calls. Complete returns nextContent/nextErr in sequence for
// successive calls, falling back to repeating the last entry.
type fakeProvider struct {
	name     string
	models   []string
	contents []string
	errs     []error
	calls    int
}

func (p *fakeProvider) Initialize(ctx context.Context, cfg provider.Config) error { return nil }

func (p *fakeProvider) Complete(ctx context.Context, req *provider.CompletionRequest) (*provider.CompletionResult, error) {
	i := p.calls
	if i >= len(p.contents) {
		i = len(p.contents) - 1
	}
	p.calls++
	if i < len(p.errs) && p.errs[i] != nil {
		return nil, p.errs[i]
	}
	return &provider.CompletionResult{
		Content: p.contents[i], Model: req.Model, InputTokens: 100, OutputTokens: 50,
		FinishReason: llmtypes.FinishStop,
	}, nil
}

func (p *fakeProvider) Stream(ctx context.Context, req *provider.CompletionRequest) (<-chan provider.StreamRecord, error) {
	ch := make(chan provider.StreamRecord)
	close(ch)
	return ch, nil
}

func (p *fakeProvider) TestConnection(ctx context.Context) (*provider.ConnectionTest, error) {
	return &provider.ConnectionTest{Connected: true}, nil
}

func (p *fakeProvider) ListModels() []string      { return p.models }
func (p *fakeProvider) SupportsModel(m string) bool {
	for _, mm := range p.models {
		if mm == m {
			return true
		}
	}
	return false
}
func (p *fakeProvider) SupportsCaching() bool { return false }

func (p *fakeProvider) GetHealthStatus() provider.HealthStatus {
	return provider.HealthStatus{Status: provider.HealthHealthy, LatencyMS: 100}
}

func (p *fakeProvider) Shutdown(ctx context.Context) error { return nil }
func (p *fakeProvider) Name() string                       { return p.name }
func (p *fakeProvider) Priority() int                       { return 1 }

func testCatalog(t *testing.T) *modelregistry.Registry {
	t.Helper()
	entries := []modelregistry.Entry{
		{Tier: "cheap", Family: "test", ProviderID: "test", UpstreamModel: "cheap-model", PriceInPerM: 1, PriceOutPerM: 2, Rank: 1},
		{Tier: "strong", Family: "test", ProviderID: "test", UpstreamModel: "strong-model", PriceInPerM: 10, PriceOutPerM: 20, Rank: 2},
	}
	reg, err := modelregistry.New(entries, map[string]bool{"test": true})
	require.NoError(t, err)
	return reg
}

func newTestOrchestrator(t *testing.T, fp *fakeProvider) *Orchestrator {
	t.Helper()
	models := testCatalog(t)
	providers := providerregistry.New(models)
	require.NoError(t, providers.Register(context.Background(), fp, provider.Config{APIKey: "test"}))

	o, err := New(DefaultConfig(), Deps{Models: models, Providers: providers})
	require.NoError(t, err)
	return o
}

func validRequest() *llmtypes.AIRequest {
	return &llmtypes.AIRequest{Content: "what is the weather", Category: llmtypes.CategoryQuery}
}

func TestExecuteRejectsInvalidRequest(t *testing.T) {
	o := newTestOrchestrator(t, &fakeProvider{name: "test", models: []string{"cheap-model", "strong-model"}, contents: []string{"ok"}})
	_, err := o.Execute(context.Background(), &llmtypes.AIRequest{})
	require.Error(t, err)
	assert.Equal(t, "INVALID_REQUEST", string(orcherr.CodeOf(err)))
}

func TestExecuteRejectsWhenDisabled(t *testing.T) {
	fp := &fakeProvider{name: "test", models: []string{"cheap-model", "strong-model"}, contents: []string{"ok"}}
	models := testCatalog(t)
	providers := providerregistry.New(models)
	require.NoError(t, providers.Register(context.Background(), fp, provider.Config{APIKey: "test"}))

	cfg := DefaultConfig()
	cfg.OrchestratorEnabled = false
	o, err := New(cfg, Deps{Models: models, Providers: providers})
	require.NoError(t, err)

	_, err = o.Execute(context.Background(), validRequest())
	require.Error(t, err)
	assert.Equal(t, "ORCHESTRATOR_DISABLED", string(orcherr.CodeOf(err)))
}

func TestExecuteSucceedsWithoutEscalation(t *testing.T) {
	fp := &fakeProvider{name: "test", models: []string{"cheap-model", "strong-model"}, contents: []string{"a confident and thorough answer that should score well"}}
	o := newTestOrchestrator(t, fp)

	resp, err := o.Execute(context.Background(), validRequest())
	require.NoError(t, err)
	assert.False(t, resp.Escalated)
	assert.NotEmpty(t, resp.Model)
	assert.Greater(t, resp.Cost, 0.0)
}

func TestExecuteEscalatesAtMostOnce(t *testing.T) {
	fp := &fakeProvider{
		name: "test", models: []string{"cheap-model", "strong-model"},
		contents: []string{"i'm not sure, it's unclear and hard to say, honestly i don't know", "a confident final answer"},
	}
	o := newTestOrchestrator(t, fp)

	resp, err := o.Execute(context.Background(), &llmtypes.AIRequest{
		Content: "solve this complex multi-step reasoning problem involving several interdependent constraints and edge cases", Category: llmtypes.CategoryPlanning,
	})
	require.NoError(t, err)
	assert.True(t, resp.Escalated)
	assert.Equal(t, 2, fp.calls)
}

func TestExecuteRejectsOverBudget(t *testing.T) {
	fp := &fakeProvider{name: "test", models: []string{"cheap-model", "strong-model"}, contents: []string{"ok"}}
	models := testCatalog(t)
	providers := providerregistry.New(models)
	require.NoError(t, providers.Register(context.Background(), fp, provider.Config{APIKey: "test"}))

	ctCfg := costtracker.DefaultConfig()
	ctCfg.MaxTokensPerRequest = 1
	ct := costtracker.New(ctCfg, nil)

	o, err := New(DefaultConfig(), Deps{Models: models, Providers: providers, CostTracker: ct})
	require.NoError(t, err)

	_, err = o.Execute(context.Background(), validRequest())
	require.Error(t, err)
	assert.Equal(t, "BUDGET_EXCEEDED", string(orcherr.CodeOf(err)))
}

func TestExecutePublishesRequestCompleteOncePerAttempt(t *testing.T) {
	fp := &fakeProvider{
		name: "test", models: []string{"cheap-model", "strong-model"},
		contents: []string{"unsure maybe not certain", "a confident final answer"},
	}
	o := newTestOrchestrator(t, fp)

	var completes int
	o.bus.Subscribe("llm:request_complete", func(ctx context.Context, topic string, payload any) {
		completes++
	})

	_, err := o.Execute(context.Background(), &llmtypes.AIRequest{
		Content: "solve this complex multi-step reasoning problem involving several interdependent constraints and edge cases", Category: llmtypes.CategoryPlanning,
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return completes == 2 }, time.Second, 5*time.Millisecond)
}

func TestGetStatusReportsAggregates(t *testing.T) {
	fp := &fakeProvider{name: "test", models: []string{"cheap-model", "strong-model"}, contents: []string{"a confident and thorough answer"}}
	o := newTestOrchestrator(t, fp)

	_, err := o.Execute(context.Background(), validRequest())
	require.NoError(t, err)

	status := o.GetStatus()
	assert.Equal(t, int64(1), status.TotalRequests)
	assert.Equal(t, int64(0), status.TotalErrors)
	assert.Greater(t, status.TotalCost, 0.0)
}

func TestTestConnectionReportsTrueWhenAnyProviderConnects(t *testing.T) {
	fp := &fakeProvider{name: "test", models: []string{"cheap-model", "strong-model"}, contents: []string{"ok"}}
	o := newTestOrchestrator(t, fp)
	assert.True(t, o.TestConnection(context.Background()))
}

func TestShutdownDrainsInFlightRequests(t *testing.T) {
	fp := &fakeProvider{name: "test", models: []string{"cheap-model", "strong-model"}, contents: []string{"ok"}}
	o := newTestOrchestrator(t, fp)

	_, err := o.Execute(context.Background(), validRequest())
	require.NoError(t, err)

	err = o.Shutdown(context.Background())
	require.NoError(t, err)
}

func TestParseCommandFallsBackToUnknownOnNonJSONReply(t *testing.T) {
	fp := &fakeProvider{name: "test", models: []string{"cheap-model", "strong-model"}, contents: []string{"this is plain text, not JSON"}}
	o := newTestOrchestrator(t, fp)

	result, err := o.ParseCommand(context.Background(), "do the thing", "agent-1")
	require.NoError(t, err)
	assert.Equal(t, "unknown", result.Intent)
	assert.Equal(t, "this is plain text, not JSON", result.Raw)
}

func TestQueryReturnsContent(t *testing.T) {
	fp := &fakeProvider{name: "test", models: []string{"cheap-model", "strong-model"}, contents: []string{"a confident and thorough answer"}}
	o := newTestOrchestrator(t, fp)

	text, err := o.Query(context.Background(), "hello", "agent-1")
	require.NoError(t, err)
	assert.Equal(t, "a confident and thorough answer", text)
}
