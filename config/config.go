// Package config loads leadgen service configuration from TOML files and
// environment variables using Viper.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/ekemper/leadgen/errors"
)

// Config represents the core leadgen configuration
type Config struct {
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Server       ServerConfig       `mapstructure:"server"`
	Breaker      BreakerConfig      `mapstructure:"breaker"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Runtime      RuntimeConfig      `mapstructure:"runtime"`
	Alerting     AlertingConfig     `mapstructure:"alerting"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// DatabaseConfig configures the SQLite database holding jobs and campaigns
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// RedisConfig configures the shared state store. When Addr is empty the
// service falls back to the in-process memory store (single-node mode).
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// ServerConfig configures the leadgen HTTP server
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// BreakerConfig configures the global circuit breaker
type BreakerConfig struct {
	// Key under which breaker state is persisted in the shared store
	Key string `mapstructure:"key"`
	// TTLHours is the soft expiry on the breaker record. Absence of the
	// key always means CLOSED, so expiry is a defensive decay, not a
	// correctness mechanism.
	TTLHours int `mapstructure:"ttl_hours"`
	// Dependencies is the fixed set of third-party services gated by the
	// breaker (e.g. apollo, openai)
	Dependencies []string `mapstructure:"dependencies"`
}

// OrchestratorConfig configures bulk job pause/resume
type OrchestratorConfig struct {
	ChunkSize      int `mapstructure:"chunk_size"`      // jobs per storage transaction
	SubmitAttempts int `mapstructure:"submit_attempts"` // bounded retries for task submission
}

// RuntimeConfig configures the local task runtime worker pool.
// Workers = 0 disables the in-process pool (external runtime assumed).
type RuntimeConfig struct {
	Workers             int    `mapstructure:"workers"`
	Queue               string `mapstructure:"queue"`
	PollIntervalSeconds int    `mapstructure:"poll_interval_seconds"`
}

// AlertingConfig configures breaker event alerting
type AlertingConfig struct {
	WebhookURL      string  `mapstructure:"webhook_url"`
	AlertsPerMinute float64 `mapstructure:"alerts_per_minute"`
}

// LoggingConfig configures log output
type LoggingConfig struct {
	JSON bool `mapstructure:"json"`
}

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "leadgen.db")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("server.port", 8410)

	v.SetDefault("breaker.key", "leadgen:circuit_breaker")
	v.SetDefault("breaker.ttl_hours", 24)
	v.SetDefault("breaker.dependencies", []string{"apollo", "openai"})

	v.SetDefault("orchestrator.chunk_size", 50)
	v.SetDefault("orchestrator.submit_attempts", 3)

	v.SetDefault("runtime.workers", 1)
	v.SetDefault("runtime.queue", "leadgen:tasks")
	v.SetDefault("runtime.poll_interval_seconds", 5)

	v.SetDefault("alerting.alerts_per_minute", 6)

	v.SetDefault("logging.json", false)
}

// Load reads configuration from leadgen.toml (searched upward from the
// working directory), environment variables prefixed LEADGEN_, and defaults.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")

	v.SetEnvPrefix("LEADGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	if path := findProjectConfig(); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "failed to read config file %s", path)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	return &config, nil
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", configPath)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal config from %s", configPath)
	}
	return &config, nil
}

// findProjectConfig searches for leadgen.toml by walking up the directory tree.
// Returns the path to the first config file found, or empty string if none found.
func findProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		path := filepath.Join(dir, "leadgen.toml")
		if _, err := os.Stat(path); err == nil {
			return path
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}
