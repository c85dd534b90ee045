// Package google adapts the Gemini generateContent API to the core's
// uniform provider.Provider contract.
package google

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/aiorch/core/internal/llmtypes"
	"github.com/aiorch/core/internal/orcherr"
	"github.com/aiorch/core/internal/provider"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com"

// Provider implements provider.Provider against the Gemini API. Google's
// context cache is a manual, separately-created resource with a 32k-token
// floor; this adapter reports whatever cachedInputTokens/cacheWriteTokens
// the response's usageMetadata carries and leaves cache-resource lifecycle
// management to the caller via EnableCaching on the request.
type Provider struct {
	provider.HealthTracker

	mu      sync.RWMutex
	cfg     provider.Config
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
	models  []string
}

func New(logger *zap.Logger, models []string) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{logger: logger, models: models}
}

func (p *Provider) Name() string { return "google" }

func (p *Provider) Initialize(ctx context.Context, cfg provider.Config) error {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	p.mu.Lock()
	p.cfg = cfg
	p.client = &http.Client{Timeout: cfg.Timeout}
	p.limiter = rate.NewLimiter(rate.Limit(4), 8)
	p.mu.Unlock()
	return nil
}

func (p *Provider) Priority() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg.Priority
}

func (p *Provider) ListModels() []string { return p.models }

func (p *Provider) SupportsModel(model string) bool {
	for _, m := range p.models {
		if m == model {
			return true
		}
	}
	return false
}

func (p *Provider) SupportsCaching() bool { return true }

// --- wire types -------------------------------------------------------

type part struct {
	Text string `json:"text,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	MaxOutputTokens int `json:"maxOutputTokens,omitempty"`
}

type request struct {
	Contents          []content         `json:"contents"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type usageMetadata struct {
	PromptTokenCount        int `json:"promptTokenCount"`
	CandidatesTokenCount    int `json:"candidatesTokenCount"`
	CachedContentTokenCount int `json:"cachedContentTokenCount"`
}

type candidate struct {
	Content      content `json:"content"`
	FinishReason string  `json:"finishReason"`
}

type response struct {
	Candidates    []candidate    `json:"candidates"`
	UsageMetadata *usageMetadata `json:"usageMetadata"`
}

type errorEnvelope struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func mapFinishReason(reason string) llmtypes.FinishReason {
	switch reason {
	case "STOP":
		return llmtypes.FinishStop
	case "MAX_TOKENS":
		return llmtypes.FinishMaxTokens
	default:
		return llmtypes.FinishStop
	}
}

func buildContents(msgs []llmtypes.Message) []content {
	out := make([]content, 0, len(msgs))
	for _, m := range msgs {
		role := string(m.Role)
		if role == "assistant" {
			role = "model"
		}
		out = append(out, content{Role: role, Parts: []part{{Text: m.Content}}})
	}
	return out
}

func buildSystemInstruction(blocks []provider.SystemBlock) *content {
	if len(blocks) == 0 {
		return nil
	}
	var sb strings.Builder
	for i, b := range blocks {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(b.Text)
	}
	return &content{Parts: []part{{Text: sb.String()}}}
}

func (p *Provider) headers(req *http.Request) {
	req.Header.Set("x-goog-api-key", p.cfg.APIKey)
	req.Header.Set("content-type", "application/json")
}

func (p *Provider) Complete(ctx context.Context, creq *provider.CompletionRequest) (*provider.CompletionResult, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body := request{
		Contents:          buildContents(creq.Messages),
		SystemInstruction: buildSystemInstruction(creq.System),
	}
	if creq.MaxTokens > 0 {
		body.GenerationConfig = &generationConfig{MaxOutputTokens: creq.MaxTokens}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, orcherr.New(orcherr.CodeInvalidRequest, "upstream", err.Error()).WithProvider(p.Name())
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", strings.TrimRight(p.cfg.BaseURL, "/"), creq.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	p.headers(httpReq)

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		p.RecordFailure(latency)
		return nil, orcherr.New(orcherr.CodeProviderTransient, "upstream", err.Error()).WithProvider(p.Name()).WithRetryable(true)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		p.RecordFailure(latency)
		return nil, classifyHTTPError(resp.StatusCode, readErrMsg(resp.Body), p.Name())
	}

	var geminiResp response
	if err := json.NewDecoder(resp.Body).Decode(&geminiResp); err != nil {
		p.RecordFailure(latency)
		return nil, orcherr.New(orcherr.CodeProviderTransient, "upstream", err.Error()).WithProvider(p.Name()).WithRetryable(true)
	}
	p.RecordSuccess(latency)

	var text strings.Builder
	var finish llmtypes.FinishReason = llmtypes.FinishStop
	if len(geminiResp.Candidates) > 0 {
		c := geminiResp.Candidates[0]
		finish = mapFinishReason(c.FinishReason)
		for _, part := range c.Content.Parts {
			text.WriteString(part.Text)
		}
	}

	result := &provider.CompletionResult{
		Content:      text.String(),
		Model:        creq.Model,
		DurationMS:   latency,
		FinishReason: finish,
	}
	if geminiResp.UsageMetadata != nil {
		result.CachedInputTokens = geminiResp.UsageMetadata.CachedContentTokenCount
		result.InputTokens = geminiResp.UsageMetadata.PromptTokenCount - result.CachedInputTokens
		result.OutputTokens = geminiResp.UsageMetadata.CandidatesTokenCount
	}
	return result, nil
}

func (p *Provider) Stream(ctx context.Context, creq *provider.CompletionRequest) (<-chan provider.StreamRecord, error) {
	res, err := p.Complete(ctx, creq)
	if err != nil {
		return nil, err
	}
	ch := make(chan provider.StreamRecord, 2)
	ch <- provider.StreamRecord{Kind: provider.StreamTextDelta, Text: res.Content}
	ch <- provider.StreamRecord{Kind: provider.StreamDone, Usage: res}
	close(ch)
	return ch, nil
}

func (p *Provider) TestConnection(ctx context.Context) (*provider.ConnectionTest, error) {
	start := time.Now()
	_, err := p.Complete(ctx, &provider.CompletionRequest{
		Model:     p.cheapestModel(),
		Messages:  []llmtypes.Message{{Role: llmtypes.RoleUser, Content: "ping"}},
		MaxTokens: 1,
	})
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return &provider.ConnectionTest{Connected: false, LatencyMS: latency, Err: err}, nil
	}
	return &provider.ConnectionTest{Connected: true, LatencyMS: latency}, nil
}

func (p *Provider) cheapestModel() string {
	if len(p.models) == 0 {
		return ""
	}
	return p.models[0]
}

func (p *Provider) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		p.client.CloseIdleConnections()
	}
	return nil
}

func readErrMsg(body io.Reader) string {
	data, _ := io.ReadAll(body)
	var env errorEnvelope
	if err := json.Unmarshal(data, &env); err == nil && env.Error.Message != "" {
		return fmt.Sprintf("%s (%s)", env.Error.Message, env.Error.Status)
	}
	return string(data)
}

func classifyHTTPError(status int, msg, providerName string) error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return orcherr.New(orcherr.CodeProviderPermanent, "upstream", msg).WithProvider(providerName)
	case http.StatusTooManyRequests:
		return orcherr.New(orcherr.CodeProviderTransient, "upstream", msg).WithProvider(providerName).WithRetryable(true)
	case http.StatusBadRequest:
		return orcherr.New(orcherr.CodeProviderPermanent, "upstream", msg).WithProvider(providerName)
	default:
		if status >= 500 {
			return orcherr.New(orcherr.CodeProviderTransient, "upstream", msg).WithProvider(providerName).WithRetryable(true)
		}
		return orcherr.New(orcherr.CodeProviderPermanent, "upstream", msg).WithProvider(providerName)
	}
}
