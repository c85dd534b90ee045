// Package telemetry wires the orchestrator's metrics and traces to a
// Prometheus scrape endpoint via the otel Prometheus exporter bridge.
// Counters/histograms are created once in buildMetrics and recorded from every
// pipeline step; when telemetry is disabled, Init returns a noop Metrics
// whose recording calls are safe but inert.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/aiorch/core/internal/orchestrator"

// Config controls whether telemetry is collected and where it is served.
type Config struct {
	Enabled     bool
	ServiceName string
	ListenAddr  string // e.g. ":9090"; the Prometheus exporter serves /metrics here
}

// Metrics holds every counter/histogram the orchestrator pipeline records
// against. A nil-valued Metrics (Enabled: false) is never constructed;
// instead Init returns one backed by a noop meter so call sites never
// need to branch on whether telemetry is active.
type Metrics struct {
	tracer trace.Tracer

	requestTotal      metric.Int64Counter
	tokenTotal        metric.Int64Counter
	errorTotal        metric.Int64Counter
	escalationTotal   metric.Int64Counter
	cacheHitTotal     metric.Int64Counter
	cacheMissTotal    metric.Int64Counter
	circuitOpenTotal  metric.Int64Counter
	governanceDenials metric.Int64Counter

	requestDuration metric.Float64Histogram
	tokenCount      metric.Int64Histogram
	costPerRequest  metric.Float64Histogram
	qualityScore    metric.Float64Histogram

	activeRequests metric.Int64UpDownCounter
}

// Providers bundles the sdk MeterProvider (needed only for Shutdown) with
// the http.Server exposing the Prometheus scrape endpoint.
type Providers struct {
	mp     *sdkmetric.MeterProvider
	srv    *http.Server
	logger *zap.Logger
}

// Init stands up the otel SDK wired to a Prometheus exporter and starts an
// HTTP server serving /metrics on cfg.ListenAddr. When cfg.Enabled is false
// it returns noop Providers and a Metrics that safely discards everything.
func Init(cfg Config, logger *zap.Logger) (*Providers, *Metrics, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Enabled {
		logger.Info("telemetry disabled, using noop metrics")
		m, err := buildMetrics(otel.GetMeterProvider().Meter(instrumentationName))
		return &Providers{logger: logger}, m, err
	}

	version := buildVersion()
	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(version),
		),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("create otel resource: %w", err)
	}

	reg := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return nil, nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: cfg.ListenAddr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("telemetry: metrics server stopped", zap.Error(err))
		}
	}()

	m, err := buildMetrics(mp.Meter(instrumentationName))
	if err != nil {
		return nil, nil, err
	}

	logger.Info("telemetry initialized",
		zap.String("listen_addr", cfg.ListenAddr),
		zap.String("service_name", cfg.ServiceName),
	)

	return &Providers{mp: mp, srv: srv, logger: logger}, m, nil
}

func buildMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{tracer: otel.Tracer(instrumentationName)}
	var err error

	if m.requestTotal, err = meter.Int64Counter("aiorch.request.total",
		metric.WithDescription("Total number of orchestrator requests"),
		metric.WithUnit("{request}")); err != nil {
		return nil, err
	}
	if m.tokenTotal, err = meter.Int64Counter("aiorch.token.total",
		metric.WithDescription("Total tokens consumed"),
		metric.WithUnit("{token}")); err != nil {
		return nil, err
	}
	if m.errorTotal, err = meter.Int64Counter("aiorch.error.total",
		metric.WithDescription("Total number of request errors"),
		metric.WithUnit("{error}")); err != nil {
		return nil, err
	}
	if m.escalationTotal, err = meter.Int64Counter("aiorch.escalation.total",
		metric.WithDescription("Total number of quality escalations"),
		metric.WithUnit("{escalation}")); err != nil {
		return nil, err
	}
	if m.cacheHitTotal, err = meter.Int64Counter("aiorch.cache.hit.total",
		metric.WithDescription("Total prompt cache hits"),
		metric.WithUnit("{hit}")); err != nil {
		return nil, err
	}
	if m.cacheMissTotal, err = meter.Int64Counter("aiorch.cache.miss.total",
		metric.WithDescription("Total prompt cache misses"),
		metric.WithUnit("{miss}")); err != nil {
		return nil, err
	}
	if m.circuitOpenTotal, err = meter.Int64Counter("aiorch.circuit.open.total",
		metric.WithDescription("Total circuit breaker open transitions"),
		metric.WithUnit("{transition}")); err != nil {
		return nil, err
	}
	if m.governanceDenials, err = meter.Int64Counter("aiorch.governance.denied.total",
		metric.WithDescription("Total governance approval denials"),
		metric.WithUnit("{denial}")); err != nil {
		return nil, err
	}
	if m.requestDuration, err = meter.Float64Histogram("aiorch.request.duration",
		metric.WithDescription("Request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30)); err != nil {
		return nil, err
	}
	if m.tokenCount, err = meter.Int64Histogram("aiorch.token.count",
		metric.WithDescription("Token count per request"),
		metric.WithUnit("{token}"),
		metric.WithExplicitBucketBoundaries(100, 500, 1000, 2000, 4000, 8000, 16000, 32000)); err != nil {
		return nil, err
	}
	if m.costPerRequest, err = meter.Float64Histogram("aiorch.cost.per_request",
		metric.WithDescription("Cost per request in USD"),
		metric.WithUnit("USD"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5)); err != nil {
		return nil, err
	}
	if m.qualityScore, err = meter.Float64Histogram("aiorch.quality.score",
		metric.WithDescription("Response quality score as evaluated post-call"),
		metric.WithExplicitBucketBoundaries(0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9)); err != nil {
		return nil, err
	}
	if m.activeRequests, err = meter.Int64UpDownCounter("aiorch.request.active",
		metric.WithDescription("Number of in-flight requests"),
		metric.WithUnit("{request}")); err != nil {
		return nil, err
	}

	return m, nil
}

// RequestAttrs identifies a request for span/metric attribution.
type RequestAttrs struct {
	Category string
	Agent    string
	Provider string
	Model    string
}

// ResponseAttrs carries the outcome recorded at the end of a request.
type ResponseAttrs struct {
	Status         string // "ok", "error", "circuit_open", "budget_exceeded", "governance_denied"
	InputTokens    int
	OutputTokens   int
	Cost           float64
	Duration       time.Duration
	Cached         bool
	Escalated      bool
	QualityScore   float64
	CircuitOpened  bool
	GovernanceDeny bool
}

// StartRequest opens a span for one orchestrator request and increments the
// in-flight gauge.
func (m *Metrics) StartRequest(ctx context.Context, attrs RequestAttrs) (context.Context, trace.Span) {
	ctx, span := m.tracer.Start(ctx, "aiorch.execute",
		trace.WithAttributes(
			attribute.String("aiorch.category", attrs.Category),
			attribute.String("aiorch.agent", attrs.Agent),
			attribute.String("aiorch.provider", attrs.Provider),
			attribute.String("aiorch.model", attrs.Model),
		))
	m.activeRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", attrs.Provider),
		attribute.String("model", attrs.Model)))
	return ctx, span
}

// EndRequest closes span, decrements the in-flight gauge, and records every
// histogram/counter implied by resp.
func (m *Metrics) EndRequest(ctx context.Context, span trace.Span, req RequestAttrs, resp ResponseAttrs) {
	defer span.End()

	common := []attribute.KeyValue{
		attribute.String("provider", req.Provider),
		attribute.String("model", req.Model),
		attribute.String("category", req.Category),
		attribute.String("status", resp.Status),
	}

	m.activeRequests.Add(ctx, -1, metric.WithAttributes(
		attribute.String("provider", req.Provider),
		attribute.String("model", req.Model)))
	m.requestTotal.Add(ctx, 1, metric.WithAttributes(common...))
	m.requestDuration.Record(ctx, resp.Duration.Seconds(), metric.WithAttributes(common...))

	totalTokens := int64(resp.InputTokens + resp.OutputTokens)
	if totalTokens > 0 {
		m.tokenTotal.Add(ctx, totalTokens, metric.WithAttributes(
			attribute.String("provider", req.Provider), attribute.String("model", req.Model)))
		m.tokenCount.Record(ctx, totalTokens, metric.WithAttributes(common...))
	}
	if resp.Cost > 0 {
		m.costPerRequest.Record(ctx, resp.Cost, metric.WithAttributes(common...))
	}
	if resp.Status != "ok" {
		m.errorTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("provider", req.Provider),
			attribute.String("model", req.Model),
			attribute.String("status", resp.Status)))
		span.SetAttributes(attribute.String("aiorch.status", resp.Status))
	}
	if resp.Escalated {
		m.escalationTotal.Add(ctx, 1, metric.WithAttributes(common...))
		span.SetAttributes(attribute.Bool("aiorch.escalated", true))
	}
	if resp.Cached {
		m.cacheHitTotal.Add(ctx, 1, metric.WithAttributes(common...))
		span.SetAttributes(attribute.Bool("aiorch.cache_hit", true))
	} else {
		m.cacheMissTotal.Add(ctx, 1, metric.WithAttributes(common...))
	}
	if resp.CircuitOpened {
		m.circuitOpenTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("provider", req.Provider)))
	}
	if resp.GovernanceDeny {
		m.governanceDenials.Add(ctx, 1, metric.WithAttributes(
			attribute.String("category", req.Category)))
	}
	if resp.QualityScore > 0 {
		m.qualityScore.Record(ctx, resp.QualityScore, metric.WithAttributes(common...))
	}

	span.SetAttributes(
		attribute.Int("aiorch.tokens.input", resp.InputTokens),
		attribute.Int("aiorch.tokens.output", resp.OutputTokens),
		attribute.Float64("aiorch.cost", resp.Cost),
		attribute.Float64("aiorch.duration_ms", float64(resp.Duration.Milliseconds())),
	)
}

// Tracer exposes the tracer directly for spans outside the request lifecycle
// (e.g. a single cascade step).
func (m *Metrics) Tracer() trace.Tracer {
	return m.tracer
}

// Shutdown stops the metrics HTTP server and flushes the meter provider.
// Safe to call on noop Providers.
func (p *Providers) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var errs []error
	if p.srv != nil {
		if err := p.srv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown metrics server: %w", err))
		}
	}
	if p.mp != nil {
		if err := p.mp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown meter provider: %w", err))
		}
	}
	return errors.Join(errs...)
}

func buildVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev"
	}
	if info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev"
}
