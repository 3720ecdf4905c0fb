// Package config loads the engine configuration from praxis.yaml with
// PRAXIS_* environment overrides, and watches the file for hot-reload.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/praxis-dev/praxis/internal/tracing"
)

// WorkspaceConfig scopes the filesystem surface tools may touch.
type WorkspaceConfig struct {
	Roots        []string `mapstructure:"roots"`
	DenyPatterns []string `mapstructure:"deny_patterns"`
}

// LLMConfig tunes the LLM client.
type LLMConfig struct {
	DefaultModel  string `mapstructure:"default_model"`
	ModelsFile    string `mapstructure:"models_file"`
	MaxRetries    int    `mapstructure:"max_retries"`
	BackoffBaseMs int    `mapstructure:"backoff_base_ms"`
	BackoffMaxMs  int    `mapstructure:"backoff_max_ms"`
	RateLimitRPM  int    `mapstructure:"rate_limit_rpm"`
}

// BudgetConfig is the default per-session resource ceiling.
type BudgetConfig struct {
	MaxIterations   int  `mapstructure:"max_iterations"`
	MaxTokens       int  `mapstructure:"max_tokens"`
	TimeoutSeconds  int  `mapstructure:"timeout_seconds"`
	ParallelActions bool `mapstructure:"parallel_actions"`
}

// SessionConfig points at the redis session archive.
type SessionConfig struct {
	RedisAddr string `mapstructure:"redis_addr"`
	TTLHours  int    `mapstructure:"ttl_hours"`
}

// PersistenceConfig selects the unit-of-work state database.
type PersistenceConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// MetricsConfig controls the prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// LoggingConfig controls the zap logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Config is the full engine configuration.
type Config struct {
	Workspace   WorkspaceConfig   `mapstructure:"workspace"`
	LLM         LLMConfig         `mapstructure:"llm"`
	Budget      BudgetConfig      `mapstructure:"budget"`
	Session     SessionConfig     `mapstructure:"session"`
	Persistence PersistenceConfig `mapstructure:"persistence"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Tracing     tracing.Config    `mapstructure:"tracing"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// Timeout returns the session timeout as a duration.
func (b BudgetConfig) Timeout() time.Duration {
	return time.Duration(b.TimeoutSeconds) * time.Second
}

// TTL returns the session archive TTL as a duration.
func (s SessionConfig) TTL() time.Duration {
	return time.Duration(s.TTLHours) * time.Hour
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.default_model", "gpt-4o-mini")
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.backoff_base_ms", 200)
	v.SetDefault("llm.backoff_max_ms", 5000)
	v.SetDefault("budget.max_iterations", 10)
	v.SetDefault("budget.max_tokens", 100000)
	v.SetDefault("budget.timeout_seconds", 300)
	v.SetDefault("persistence.driver", "sqlite3")
	v.SetDefault("persistence.dsn", "praxis.db")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 2112)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Load reads configuration from the given file. Environment variables with
// the PRAXIS_ prefix override file values (PRAXIS_SESSION_REDIS_ADDR maps to
// session.redis_addr). An empty path loads defaults and env only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("PRAXIS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if len(c.Workspace.Roots) == 0 {
		return fmt.Errorf("config: workspace.roots must list at least one directory")
	}
	if c.LLM.MaxRetries < 0 {
		return fmt.Errorf("config: llm.max_retries must not be negative")
	}
	if c.Budget.MaxIterations <= 0 {
		return fmt.Errorf("config: budget.max_iterations must be positive")
	}
	switch c.Persistence.Driver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("config: unsupported persistence.driver %q", c.Persistence.Driver)
	}
	return nil
}
