package config

import (
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Simulator SimulatorConfig `yaml:"simulator"`
	Database  DatabaseConfig  `yaml:"database"`
	History   HistoryConfig   `yaml:"history"`
	Push      PushConfig      `yaml:"push"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RequestIPHeader string  `yaml:"request_ip_header"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// SimulatorConfig controls the periodic tick loop.
type SimulatorConfig struct {
	Enabled            bool          `yaml:"enabled"`
	IntervalSeconds    int           `yaml:"interval_seconds"`
	Interval           time.Duration `yaml:"-"` // Ignored by YAML parser
	Seed               int64         `yaml:"seed"`
	AdvanceProbability float64       `yaml:"advance_probability"`
	SkipSeed           bool          `yaml:"skip_seed"`
	ReplayOnStart      bool          `yaml:"replay_on_start"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"` // postgres or sqlite
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	EnableTimescale        bool   `yaml:"enable_timescale"`
	LogLevel               string `yaml:"log_level"`
}

// HistoryConfig bounds the per-device sample history.
type HistoryConfig struct {
	MaxEntriesPerDevice int `yaml:"max_entries_per_device"`
}

// PushConfig holds the WebSocket hub settings.
type PushConfig struct {
	ClientBuffer     int           `yaml:"client_buffer"`
	KeepaliveSeconds int           `yaml:"keepalive_seconds"`
	Keepalive        time.Duration `yaml:"-"`
}

// LogConfig selects the logrus level and formatter.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// Default returns a configuration with every default applied, backed by an
// in-memory sqlite database.
func Default() *Config {
	cfg := Config{
		Simulator: SimulatorConfig{Enabled: true, ReplayOnStart: true},
		Database:  DatabaseConfig{Driver: "sqlite", DSN: "file::memory:?cache=shared"},
	}
	cfg.ApplyDefaults()
	return &cfg
}

// ApplyDefaults fills zero values and derives durations.
func (cfg *Config) ApplyDefaults() {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 5
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 10
	}
	if cfg.Server.CacheTTLSeconds < 0 {
		cfg.Server.CacheTTLSeconds = 0
	}

	if cfg.Simulator.IntervalSeconds <= 0 {
		cfg.Simulator.IntervalSeconds = 1800
	}
	cfg.Simulator.Interval = time.Duration(cfg.Simulator.IntervalSeconds) * time.Second
	if cfg.Simulator.AdvanceProbability <= 0 || cfg.Simulator.AdvanceProbability > 1 {
		cfg.Simulator.AdvanceProbability = 0.30
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Database.MaxOpenConns <= 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns <= 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetimeMinutes <= 0 {
		cfg.Database.ConnMaxLifetimeMinutes = 30
	}

	if cfg.History.MaxEntriesPerDevice <= 0 {
		cfg.History.MaxEntriesPerDevice = 1000
	}

	if cfg.Push.ClientBuffer <= 0 {
		logrus.Debug("push.client_buffer is not set or invalid; defaulting to 64")
		cfg.Push.ClientBuffer = 64
	}
	if cfg.Push.KeepaliveSeconds <= 0 {
		cfg.Push.KeepaliveSeconds = 30
	}
	cfg.Push.Keepalive = time.Duration(cfg.Push.KeepaliveSeconds) * time.Second

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

// ConfigureLogging applies the log section to the standard logrus logger.
func (cfg *Config) ConfigureLogging() error {
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)
	if cfg.Log.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}
