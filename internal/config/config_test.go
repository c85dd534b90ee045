package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenNoFileOrEnv(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.True(t, cfg.OrchestratorEnabled)
	assert.True(t, cfg.PromptCachingEnabled)
	assert.True(t, cfg.QualityEscalationEnable)
	assert.False(t, cfg.Governance.Enabled)
}

func TestLoadFromFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlBody := `
orchestrator_enabled: true
prompt_caching_enabled: false
governance:
  enabled: true
  cost_threshold_usd: 5.5
providers:
  anthropic:
    api_key: file-key
    priority: 1
    enabled: true
`
	require.NoError(t, os.WriteFile(path, []byte(yamlBody), 0o600))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)
	assert.False(t, cfg.PromptCachingEnabled)
	assert.True(t, cfg.Governance.Enabled)
	assert.Equal(t, 5.5, cfg.Governance.CostThresholdUSD)
	require.Contains(t, cfg.Providers, "anthropic")
	assert.Equal(t, "file-key", cfg.Providers["anthropic"].APIKey)
}

func TestLoadFromEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("prompt_caching_enabled: true\n"), 0o600))

	t.Setenv("AI_ORCHESTRATOR_PROMPT_CACHING_ENABLED", "false")
	t.Setenv("AI_ORCHESTRATOR_GOVERNANCE_ENABLED", "true")
	t.Setenv("AI_ORCHESTRATOR_GOVERNANCE_COST_THRESHOLD_USD", "2.25")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)
	assert.False(t, cfg.PromptCachingEnabled)
	assert.True(t, cfg.Governance.Enabled)
	assert.Equal(t, 2.25, cfg.Governance.CostThresholdUSD)
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/nonexistent/path/config.yaml").Load()
	require.NoError(t, err)
	assert.NotNil(t, cfg)
}

func TestLoadComputesProviderTimeoutFromMillis(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlBody := `
providers:
  openai:
    api_key: k
    timeout_ms: 5000
`
	require.NoError(t, os.WriteFile(path, []byte(yamlBody), 0o600))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)
	assert.Equal(t, int64(5_000_000_000), cfg.Providers["openai"].Timeout.Nanoseconds())
}

func TestWithEnvPrefixChangesLookupKeys(t *testing.T) {
	t.Setenv("CUSTOM_PREFIX_ORCHESTRATOR_ENABLED", "false")
	cfg, err := NewLoader().WithEnvPrefix("CUSTOM_PREFIX").Load()
	require.NoError(t, err)
	assert.False(t, cfg.OrchestratorEnabled)
}
