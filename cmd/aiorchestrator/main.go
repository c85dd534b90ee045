// Command aiorchestrator runs the AI orchestration core as a standalone
// process: it loads configuration, registers the configured upstream
// providers, and serves the orchestrator's Prometheus metrics endpoint until
// interrupted.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aiorch/core/internal/config"
	"github.com/aiorch/core/internal/costtracker"
	"github.com/aiorch/core/internal/eventbridge"
	"github.com/aiorch/core/internal/eventbus"
	"github.com/aiorch/core/internal/modelregistry"
	"github.com/aiorch/core/internal/orchestrator"
	"github.com/aiorch/core/internal/provider"
	"github.com/aiorch/core/internal/providerregistry"
	"github.com/aiorch/core/internal/telemetry"
	"github.com/aiorch/core/providers/anthropic"
	"github.com/aiorch/core/providers/google"
	"github.com/aiorch/core/providers/openai"
	"github.com/aiorch/core/providers/xai"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "aiorchestrator:", err)
		os.Exit(1)
	}
}

func run() error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	cfg, err := config.NewLoader().WithConfigPath(os.Getenv("AI_ORCHESTRATOR_CONFIG_PATH")).Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	models, err := modelregistry.New(modelregistry.DefaultCatalog(), enabledProviderIDs(cfg))
	if err != nil {
		return fmt.Errorf("build model catalog: %w", err)
	}

	providers := providerregistry.New(models)
	if err := registerProviders(context.Background(), providers, cfg, logger); err != nil {
		return fmt.Errorf("register providers: %w", err)
	}

	_, metrics, err := telemetry.Init(telemetry.Config{
		Enabled: cfg.Telemetry.Enabled, ServiceName: cfg.Telemetry.ServiceName, ListenAddr: cfg.Telemetry.ListenAddr,
	}, logger)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}

	orchCfg := orchestrator.DefaultConfig()
	orchCfg.OrchestratorEnabled = cfg.OrchestratorEnabled
	orchCfg.PromptCachingEnabled = cfg.PromptCachingEnabled
	orchCfg.GovernanceEnabled = cfg.Governance.Enabled
	orchCfg.QualityEscalationEnabled = cfg.QualityEscalationEnable
	orchCfg.GovernanceCostThresholdUSD = cfg.Governance.CostThresholdUSD

	bus := eventbus.New(logger)

	var ct orchestrator.CostTracker
	if cfg.CostTracker.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.CostTracker.RedisAddr, DB: cfg.CostTracker.RedisDB})
		ct = costtracker.NewDistributedAdapter(costtracker.NewDistributed(rdb, costtracker.DefaultConfig(), "aiorch:cost", logger), logger)
		logger.Info("cost tracker backed by redis", zap.String("addr", cfg.CostTracker.RedisAddr))
	}

	orch, err := orchestrator.New(orchCfg, orchestrator.Deps{
		Models: models, Providers: providers, Metrics: metrics, Logger: logger, Bus: bus, CostTracker: ct,
	})
	if err != nil {
		return fmt.Errorf("build orchestrator: %w", err)
	}

	var bridgeSrv *http.Server
	if cfg.EventBridge.Enabled {
		bridge := eventbridge.New(bus, nil, logger)
		defer bridge.Close()
		bridgeSrv = &http.Server{Addr: cfg.EventBridge.ListenAddr, Handler: bridge}
		go func() {
			if err := bridgeSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("eventbridge server stopped", zap.Error(err))
			}
		}()
		logger.Info("eventbridge listening", zap.String("addr", cfg.EventBridge.ListenAddr))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("aiorchestrator started", zap.Int("providers", len(providers.List())))
	<-ctx.Done()
	logger.Info("aiorchestrator shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if bridgeSrv != nil {
		_ = bridgeSrv.Shutdown(shutdownCtx)
	}
	return orch.Shutdown(shutdownCtx)
}

// enabledProviderIDs derives the set ModelRegistry needs to mark tiers
// available from which provider config blocks are present and enabled,
// defaulting an absent block to enabled so a config with no providers
// section still lights every provider up.
func enabledProviderIDs(cfg *config.Config) map[string]bool {
	ids := map[string]bool{"anthropic": true, "openai": true, "google": true, "xai": true}
	for name, pc := range cfg.Providers {
		ids[name] = pc.Enabled
	}
	return ids
}

func registerProviders(ctx context.Context, reg *providerregistry.Registry, cfg *config.Config, logger *zap.Logger) error {
	enabled := enabledProviderIDs(cfg)

	if enabled["anthropic"] {
		p := anthropic.New(logger, []string{"claude-haiku-4-5", "claude-sonnet-4-5", "claude-opus-4-5", "claude-opus-4-6"})
		if err := reg.Register(ctx, p, providerConfigFor(cfg, "anthropic")); err != nil {
			return err
		}
	}
	if enabled["openai"] {
		p := openai.New(logger, []string{"gpt-4.1-mini", "gpt-4.1", "o3"})
		if err := reg.Register(ctx, p, providerConfigFor(cfg, "openai")); err != nil {
			return err
		}
	}
	if enabled["google"] {
		p := google.New(logger, []string{"gemini-2.5-flash-lite", "gemini-2.5-flash", "gemini-2.5-pro"})
		if err := reg.Register(ctx, p, providerConfigFor(cfg, "google")); err != nil {
			return err
		}
	}
	if enabled["xai"] {
		p := xai.New(logger, []string{"grok-4-fast", "grok-4"})
		if err := reg.Register(ctx, p, providerConfigFor(cfg, "xai")); err != nil {
			return err
		}
	}
	return nil
}

// providerConfigFor builds the provider.Config for name from cfg's
// per-provider block, falling back to an empty block with Enabled: true when
// cfg has none for name. The API key comes only from that block; no
// environment variable supplies it, since config.Providers is not read from
// the environment.
func providerConfigFor(cfg *config.Config, name string) provider.Config {
	pc, ok := cfg.Providers[name]
	if !ok {
		return provider.Config{Enabled: true}
	}
	return provider.Config{
		APIKey: pc.APIKey, BaseURL: pc.BaseURL, Timeout: pc.Timeout,
		MaxRetries: pc.MaxRetries, Priority: pc.Priority, Enabled: pc.Enabled,
	}
}
