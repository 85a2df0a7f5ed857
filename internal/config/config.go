// Package config loads engine configuration from an optional YAML file,
// STRATENGINE_* environment variables, and built-in defaults, in that
// order of increasing precedence for env over file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full engine configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Monitor MonitorConfig `mapstructure:"monitor"`
	Workers WorkersConfig `mapstructure:"workers"`
	Session SessionConfig `mapstructure:"session"`
	Log     LogConfig     `mapstructure:"log"`
}

// ServerConfig configures the HTTP/WebSocket surface.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Addr returns the listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// MonitorConfig configures the session monitor loop.
type MonitorConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// WorkersConfig configures the backtest worker pool.
type WorkersConfig struct {
	NumWorkers int `mapstructure:"num_workers"`
	QueueSize  int `mapstructure:"queue_size"`
}

// SessionConfig configures session defaults and entitlements.
type SessionConfig struct {
	// LiveOwners is the allow list for live mode. Empty means paper only.
	LiveOwners []string `mapstructure:"live_owners"`
	// SyntheticSeed seeds the synthetic market data feed.
	SyntheticSeed int64 `mapstructure:"synthetic_seed"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads configuration. path may be empty, in which case only
// defaults and environment variables apply.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("monitor.poll_interval", 5*time.Second)
	v.SetDefault("workers.num_workers", 0) // 0 means NumCPU
	v.SetDefault("workers.queue_size", 1024)
	v.SetDefault("session.live_owners", []string{})
	v.SetDefault("session.synthetic_seed", 42)
	v.SetDefault("log.level", "info")

	v.SetEnvPrefix("STRATENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail deep inside the
// engine.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Monitor.PollInterval <= 0 {
		return fmt.Errorf("monitor poll interval must be positive: %s", c.Monitor.PollInterval)
	}
	if c.Workers.NumWorkers < 0 {
		return fmt.Errorf("workers num_workers must be >= 0: %d", c.Workers.NumWorkers)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}
	return nil
}
