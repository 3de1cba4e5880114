package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for cadence-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, API keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8087"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Database configuration (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// Autonomy configuration
	Autonomy AutonomyConfig `yaml:"autonomy"`

	// Generation provider configuration
	Generation GenerationConfig `yaml:"generation"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"cadence"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"cadence_engine"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// AutonomyConfig holds the autonomy engine's process-wide settings.
type AutonomyConfig struct {
	// Enabled is the global kill switch. When false every evaluation
	// returns BLOCK_KILLSWITCH. Read at evaluation time, never cached.
	Enabled bool `yaml:"enabled" env:"AUTONOMY_ENABLED" env-default:"true"`

	// ScanIntervalSeconds is how often the scheduler scans for due
	// automations.
	ScanIntervalSeconds int `yaml:"scan_interval_seconds" env:"AUTONOMY_SCAN_INTERVAL_SECONDS" env-default:"60"`

	// DefaultCooldownMinutes is the minimum time between two executions
	// of the same automation unless its rules say otherwise.
	DefaultCooldownMinutes int `yaml:"default_cooldown_minutes" env:"AUTONOMY_DEFAULT_COOLDOWN_MINUTES" env-default:"60"`
}

// ScanInterval returns the scheduler scan interval as a duration.
func (c *AutonomyConfig) ScanInterval() time.Duration {
	return time.Duration(c.ScanIntervalSeconds) * time.Second
}

// GenerationConfig holds settings for the content-generation provider.
type GenerationConfig struct {
	// Provider selects the generation backend: "openai", "anthropic"
	// or "mock" (local development without a provider).
	Provider string `yaml:"provider" env:"GENERATION_PROVIDER" env-default:"mock"`

	BaseURL string `yaml:"base_url" env:"GENERATION_BASE_URL" env-default:""`
	Model   string `yaml:"model" env:"GENERATION_MODEL" env-default:""`
	APIKey  string `yaml:"-" env:"GENERATION_API_KEY"` // Secret - not in YAML

	// TimeoutSeconds bounds every generation call so a stalled provider
	// cannot wedge the scheduler.
	TimeoutSeconds int `yaml:"timeout_seconds" env:"GENERATION_TIMEOUT_SECONDS" env-default:"120"`
}

// Timeout returns the generation call timeout as a duration.
func (c *GenerationConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		return nil, fmt.Errorf("failed to read config.yaml: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Autonomy.ScanIntervalSeconds <= 0 {
		return fmt.Errorf("autonomy scan interval must be positive, got %d", c.Autonomy.ScanIntervalSeconds)
	}
	if c.Autonomy.DefaultCooldownMinutes < 0 {
		return fmt.Errorf("default cooldown must not be negative, got %d", c.Autonomy.DefaultCooldownMinutes)
	}
	switch c.Generation.Provider {
	case "openai", "anthropic", "mock":
	default:
		return fmt.Errorf("unknown generation provider %q", c.Generation.Provider)
	}
	if c.Generation.Provider == "openai" && c.Generation.BaseURL == "" {
		return fmt.Errorf("generation base_url is required for the openai provider")
	}
	return nil
}

// ConnectionString returns a PostgreSQL connection string. When the
// process runs inside a container and the configured host is localhost,
// the host is rewritten so the connection reaches the machine running
// the container.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		ResolveHostForDocker(c.Host), c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
