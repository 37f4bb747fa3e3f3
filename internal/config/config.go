// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all configuration knobs for the API server and the worker.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Allowlist []string        `mapstructure:"allowlist"`
	Schedule  ScheduleConfig  `mapstructure:"schedule"`
	Extractor ExtractorConfig `mapstructure:"extractor"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int `mapstructure:"port"`
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// AuthConfig defines the shared-secret credential. The work distribution
// endpoints always require the key; Enabled extends the check to the
// user-facing query endpoints.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// DatabaseConfig controls access to the Postgres registry. An empty DSN
// selects the in-memory store (dev/test runs).
type DatabaseConfig struct {
	DSN          string `mapstructure:"dsn"`
	MaxConns     int32  `mapstructure:"max_conns"`
	MinConns     int32  `mapstructure:"min_conns"`
	ConnLifeMins int    `mapstructure:"conn_life_minutes"`
}

// ScheduleConfig lists the worker's daily crawl times (HH:MM, local time).
// The first slot runs the full active set; the rest run retries. Every slot
// also picks up pending URLs.
type ScheduleConfig struct {
	Times []string `mapstructure:"times"`
}

// ExtractorConfig governs the page extractor.
type ExtractorConfig struct {
	UserAgent         string `mapstructure:"user_agent"`
	NavTimeoutSeconds int    `mapstructure:"nav_timeout_seconds"`
	WarmupURL         string `mapstructure:"warmup_url"`
	HeadlessEnabled   bool   `mapstructure:"headless_enabled"`
}

// WorkerConfig points the scheduler at the API server.
type WorkerConfig struct {
	ServerURL         string `mapstructure:"server_url"`
	URLTimeoutSeconds int    `mapstructure:"url_timeout_seconds"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PRICEWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.timeout_seconds", 60)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("schedule.times", []string{"02:00", "08:00", "16:00", "22:00"})
	v.SetDefault("extractor.user_agent", "pricewatch-bot/0.1")
	v.SetDefault("extractor.nav_timeout_seconds", 25)
	v.SetDefault("extractor.headless_enabled", true)
	v.SetDefault("worker.server_url", "http://127.0.0.1:8080")
	v.SetDefault("worker.url_timeout_seconds", 30)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.TimeoutSeconds <= 0 {
		return fmt.Errorf("server.timeout_seconds must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if len(c.Schedule.Times) == 0 {
		return fmt.Errorf("schedule.times must list at least one daily time")
	}
	for _, t := range c.Schedule.Times {
		if _, err := time.Parse("15:04", t); err != nil {
			return fmt.Errorf("schedule.times entry %q is not HH:MM", t)
		}
	}
	if c.Worker.URLTimeoutSeconds <= 0 {
		return fmt.Errorf("worker.url_timeout_seconds must be > 0")
	}
	return nil
}

// URLTimeout is the per-URL extraction budget.
func (c Config) URLTimeout() time.Duration {
	return time.Duration(c.Worker.URLTimeoutSeconds) * time.Second
}

// NavTimeout is the headless navigation budget.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Extractor.NavTimeoutSeconds) * time.Second
}
