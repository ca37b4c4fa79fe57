package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Logging   LoggingConfig   `yaml:"logging"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Fetch     FetchConfig     `yaml:"fetch"`
	TTL       TTLConfig       `yaml:"ttl"`
	Similar   SimilarConfig   `yaml:"similarity"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Server    ServerConfig    `yaml:"server"`
}

// DatabaseConfig configures SQLite storage.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig configures the rotating file logger.
type LoggingConfig struct {
	Path       string `yaml:"path"`
	Level      string `yaml:"level"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// ScheduleConfig configures the refresh and maintenance loops.
type ScheduleConfig struct {
	RefreshTick      string `yaml:"refresh_tick"`
	MaintenanceTick  string `yaml:"maintenance_tick"`
	SourceDelay      string `yaml:"source_delay"`
	RetentionDays    int    `yaml:"retention_days"`
	LogRetentionDays int    `yaml:"log_retention_days"`
}

// ParseRefreshTick returns the refresh loop cadence.
func (s ScheduleConfig) ParseRefreshTick() time.Duration {
	d, err := time.ParseDuration(s.RefreshTick)
	if err != nil {
		return time.Minute
	}
	return d
}

// ParseMaintenanceTick returns the maintenance loop cadence.
func (s ScheduleConfig) ParseMaintenanceTick() time.Duration {
	d, err := time.ParseDuration(s.MaintenanceTick)
	if err != nil {
		return 24 * time.Hour
	}
	return d
}

// ParseSourceDelay returns the pause between sequential source fetches.
func (s ScheduleConfig) ParseSourceDelay() time.Duration {
	d, err := time.ParseDuration(s.SourceDelay)
	if err != nil {
		return 2 * time.Second
	}
	return d
}

// FetchConfig configures the per-source fetch pipeline.
type FetchConfig struct {
	Timeout        string `yaml:"timeout"`
	UserAgent      string `yaml:"user_agent"`
	MaxItems       int    `yaml:"max_items_per_cycle"`
	MaxAgeDays     int    `yaml:"max_age_days"`
	SkipAgeFilter  bool   `yaml:"skip_age_filter"`
	ExtractContent bool   `yaml:"extract_content"`
}

// ParseTimeout returns the network timeout for feed and article fetches.
func (f FetchConfig) ParseTimeout() time.Duration {
	d, err := time.ParseDuration(f.Timeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// TTLConfig configures the refresh-interval controller. The weights are
// empirically chosen defaults, not invariants.
type TTLConfig struct {
	BaseWeight        float64 `yaml:"base_weight"`
	EngagementWeight  float64 `yaml:"engagement_weight"`
	ReliabilityWeight float64 `yaml:"reliability_weight"`
}

// SimilarConfig configures near-duplicate grouping.
type SimilarConfig struct {
	LexicalThreshold   float64 `yaml:"lexical_threshold"`
	EmbeddingThreshold float64 `yaml:"embedding_threshold"`
	WindowHours        int     `yaml:"window_hours"`
}

// EmbeddingConfig configures the optional embedding job.
type EmbeddingConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Provider      string `yaml:"provider"` // "local" or "openai"
	Model         string `yaml:"model"`
	BaseURL       string `yaml:"base_url"`
	APIKey        string `yaml:"api_key"`
	RatePerMinute int    `yaml:"rate_per_minute"`
	BatchSize     int    `yaml:"batch_size"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "./zib.db"},
		Logging: LoggingConfig{
			Path:       "./logs/zib.log",
			Level:      "INFO",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Schedule: ScheduleConfig{
			RefreshTick:      "1m",
			MaintenanceTick:  "24h",
			SourceDelay:      "2s",
			RetentionDays:    90,
			LogRetentionDays: 30,
		},
		Fetch: FetchConfig{
			Timeout:        "10s",
			UserAgent:      "zib/1.0 (+https://github.com/faulander/zib)",
			MaxItems:       50,
			MaxAgeDays:     7,
			ExtractContent: true,
		},
		TTL: TTLConfig{
			BaseWeight:        0.5,
			EngagementWeight:  0.3,
			ReliabilityWeight: 0.2,
		},
		Similar: SimilarConfig{
			LexicalThreshold:   0.5,
			EmbeddingThreshold: 0.85,
			WindowHours:        48,
		},
		Embedding: EmbeddingConfig{
			Provider:      "local",
			Model:         "nomic-embed-text",
			BaseURL:       "http://localhost:11434",
			RatePerMinute: 0,
			BatchSize:     100,
		},
		Server: ServerConfig{Port: 8080},
	}
}

// Load reads configuration from a YAML file and applies env var overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides overrides config values with environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ZIB_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("ZIB_LOG_PATH"); v != "" {
		cfg.Logging.Path = v
	}
	if v := os.Getenv("ZIB_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = v
	}
	if v := os.Getenv("ZIB_EMBEDDING_PROVIDER"); v != "" {
		cfg.Embedding.Provider = v
		cfg.Embedding.Enabled = true
	}
}
