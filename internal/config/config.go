// Package config loads the orchestrator's process-wide configuration from
// an optional YAML file with environment variable overrides, following the
// AI_ORCHESTRATOR_* surface named in this module's external interfaces.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ProviderConfig is the per-provider construction config recognized by the
// orchestrator's external configuration surface.
type ProviderConfig struct {
	APIKey     string        `yaml:"api_key" env:"API_KEY"`
	BaseURL    string        `yaml:"base_url" env:"BASE_URL"`
	TimeoutMS  int           `yaml:"timeout_ms" env:"TIMEOUT_MS"`
	MaxRetries int           `yaml:"max_retries" env:"MAX_RETRIES"`
	Priority   int           `yaml:"priority" env:"PRIORITY"`
	Enabled    bool          `yaml:"enabled" env:"ENABLED"`
	Timeout    time.Duration `yaml:"-" env:"-"`
}

// TelemetryConfig controls whether metrics are collected and served.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled" env:"ENABLED"`
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	ListenAddr  string `yaml:"listen_addr" env:"LISTEN_ADDR"`
}

// GovernanceConfig controls the approval gate and, optionally, decision
// signing.
type GovernanceConfig struct {
	Enabled          bool    `yaml:"enabled" env:"ENABLED"`
	SignKey          string  `yaml:"sign_key" env:"SIGN_KEY"`
	CostThresholdUSD float64 `yaml:"cost_threshold_usd" env:"COST_THRESHOLD_USD"`
	DeadlineMS       int     `yaml:"deadline_ms" env:"DEADLINE_MS"`
}

// EventBridgeConfig controls the optional WebSocket fan-out of the event bus
// to external dashboards.
type EventBridgeConfig struct {
	Enabled    bool   `yaml:"enabled" env:"ENABLED"`
	ListenAddr string `yaml:"listen_addr" env:"LISTEN_ADDR"`
}

// CostTrackerConfig selects between the in-process budget tracker and a
// Redis-backed one shared across orchestrator instances. RedisAddr empty
// means in-process.
type CostTrackerConfig struct {
	RedisAddr string `yaml:"redis_addr" env:"REDIS_ADDR"`
	RedisDB   int    `yaml:"redis_db" env:"REDIS_DB"`
}

// Config is the orchestrator's complete process configuration.
type Config struct {
	OrchestratorEnabled     bool   `yaml:"orchestrator_enabled" env:"ORCHESTRATOR_ENABLED"`
	PromptCachingEnabled    bool   `yaml:"prompt_caching_enabled" env:"PROMPT_CACHING_ENABLED"`
	QualityEscalationEnable bool   `yaml:"quality_escalation_enabled" env:"QUALITY_ESCALATION_ENABLED"`
	AuditLogPath            string `yaml:"audit_log_path" env:"AUDIT_LOG_PATH"`

	Governance   GovernanceConfig   `yaml:"governance" env:"GOVERNANCE"`
	Telemetry    TelemetryConfig    `yaml:"telemetry" env:"TELEMETRY"`
	EventBridge  EventBridgeConfig  `yaml:"event_bridge" env:"EVENT_BRIDGE"`
	CostTracker  CostTrackerConfig  `yaml:"cost_tracker" env:"COST_TRACKER"`

	Providers map[string]ProviderConfig `yaml:"providers" env:"-"`
}

// DefaultConfig returns the configuration baseline spec §6 names: caching
// and escalation on by default, governance off, orchestrator enabled.
func DefaultConfig() *Config {
	return &Config{
		OrchestratorEnabled:     true,
		PromptCachingEnabled:    true,
		QualityEscalationEnable: true,
		Telemetry:               TelemetryConfig{ServiceName: "aiorch-core", ListenAddr: ":9090"},
		Governance:              GovernanceConfig{CostThresholdUSD: 1.0, DeadlineMS: 30_000},
		EventBridge:             EventBridgeConfig{ListenAddr: ":9091"},
		Providers:               map[string]ProviderConfig{},
	}
}

// Loader loads a Config from an optional YAML file, then applies
// environment variable overrides under envPrefix (default AI_ORCHESTRATOR).
type Loader struct {
	configPath string
	envPrefix  string
}

// NewLoader builds a Loader with the default env prefix.
func NewLoader() *Loader {
	return &Loader{envPrefix: "AI_ORCHESTRATOR"}
}

// WithConfigPath sets the YAML file to read before env overrides apply.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix overrides the default AI_ORCHESTRATOR env prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// Load reads defaults, overlays the YAML file (if configPath is set and
// exists), then overlays environment variables, in that priority order.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("config: load file: %w", err)
		}
	}
	// The four feature flags are also read under their unprefixed names;
	// the prefixed keys applied below take precedence when both are set.
	for key, dst := range map[string]*bool{
		"AI_ORCHESTRATOR_ENABLED":       &cfg.OrchestratorEnabled,
		"AI_PROMPT_CACHING_ENABLED":     &cfg.PromptCachingEnabled,
		"AI_GOVERNANCE_ENABLED":         &cfg.Governance.Enabled,
		"AI_QUALITY_ESCALATION_ENABLED": &cfg.QualityEscalationEnable,
	} {
		if raw, ok := os.LookupEnv(key); ok {
			b, err := strconv.ParseBool(raw)
			if err != nil {
				return nil, fmt.Errorf("config: load env: set %s: %w", key, err)
			}
			*dst = b
		}
	}
	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("config: load env: %w", err)
	}
	for name, pc := range cfg.Providers {
		pc.Timeout = time.Duration(pc.TimeoutMS) * time.Millisecond
		cfg.Providers[name] = pc
	}
	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func (l *Loader) loadFromEnv(cfg *Config) error {
	return setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv walks struct fields tagged `env:"..."`, recursing into
// nested structs, and overwrites any field whose corresponding
// PREFIX_TAG environment variable is set.
func setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		envTag := t.Field(i).Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}
		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		raw, ok := os.LookupEnv(envKey)
		if !ok {
			continue
		}
		if err := setFieldValue(field, raw); err != nil {
			return fmt.Errorf("set %s: %w", envKey, err)
		}
	}
	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	default:
		return fmt.Errorf("unsupported kind %s", field.Kind())
	}
	return nil
}
