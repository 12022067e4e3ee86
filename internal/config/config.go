package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config represents the top-level application config.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Database    DatabaseConfig    `koanf:"database"`
	Aggregation AggregationConfig `koanf:"aggregation"`
	Pipeline    PipelineConfig    `koanf:"pipeline"`
	Summarizer  SummarizerConfig  `koanf:"summarizer"`
	Delivery    DeliveryConfig    `koanf:"delivery"`
	Preferences PreferencesConfig `koanf:"preferences"`
}

type ServerConfig struct {
	Port          int    `koanf:"port"`
	Host          string `koanf:"host"`
	MaxBodySizeMB int    `koanf:"max_body_size_mb"`
	Mode          string `koanf:"mode"` // debug | release
}

type DatabaseConfig struct {
	DSN          string `koanf:"dsn"`
	MaxOpenConns int    `koanf:"max_open_conns"`
	MaxIdleConns int    `koanf:"max_idle_conns"`
	AutoMigrate  bool   `koanf:"auto_migrate"`
}

type AggregationConfig struct {
	Enabled           bool   `koanf:"enabled"`
	WindowSize        string `koanf:"window_size"`    // e.g. "2h", "1d"
	SweepInterval     string `koanf:"sweep_interval"` // empty: derived from window size
	MaxWindowAttempts int    `koanf:"max_window_attempts"`
	WorkerCount       int    `koanf:"worker_count"`
	BatchSize         int    `koanf:"batch_size"`
	DailyEnabled      bool   `koanf:"daily_enabled"`
	DailyInterval     string `koanf:"daily_interval"`
}

type PipelineConfig struct {
	RulesDir        string `koanf:"rules_dir"` // empty: built-in rules only
	MaxItems        int    `koanf:"max_items"`
	MaxFactsPerItem int    `koanf:"max_facts_per_item"`
	MaxTotalChars   int    `koanf:"max_total_chars"`
}

type SummarizerConfig struct {
	Endpoint    string `koanf:"endpoint"`
	Model       string `koanf:"model"`
	APIKey      string `koanf:"api_key"`
	Timeout     string `koanf:"timeout"`
	MaxAttempts int    `koanf:"max_attempts"` // transport-level retries per call
}

type DeliveryConfig struct {
	Enabled      bool               `koanf:"enabled"`
	MaxAttempts  int                `koanf:"max_attempts"`
	BackoffBase  string             `koanf:"backoff_base"`
	PollInterval string             `koanf:"poll_interval"`
	Telegram     TelegramConfig     `koanf:"telegram"`
	EmailGateway EmailGatewayConfig `koanf:"email_gateway"`
}

type TelegramConfig struct {
	BotToken string `koanf:"bot_token"`
}

type EmailGatewayConfig struct {
	Endpoint string `koanf:"endpoint"`
	Token    string `koanf:"token"`
}

type PreferencesConfig struct {
	Dir             string   `koanf:"dir"`
	DefaultChannels []string `koanf:"default_channels"`
}

// EffectiveSweepInterval returns the aggregation sweep cadence: the explicit
// setting when present, otherwise a quarter of the window size so a due window
// never waits more than 25% of its span before pickup.
func (c AggregationConfig) EffectiveSweepInterval(windowSize time.Duration) time.Duration {
	if c.SweepInterval != "" {
		if d, err := time.ParseDuration(c.SweepInterval); err == nil && d > 0 {
			return d
		}
	}
	quarter := windowSize / 4
	if quarter < time.Minute {
		return time.Minute
	}
	return quarter
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d (must be 1-65535)", c.Server.Port)
	}
	if strings.TrimSpace(c.Server.Host) == "" {
		return fmt.Errorf("server.host is required")
	}
	if c.Server.MaxBodySizeMB <= 0 {
		return fmt.Errorf("server.max_body_size_mb must be > 0")
	}
	if c.Server.Mode != "debug" && c.Server.Mode != "release" {
		return fmt.Errorf("invalid server.mode %q (must be debug or release)", c.Server.Mode)
	}

	if strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be > 0")
	}
	if c.Database.MaxIdleConns <= 0 {
		return fmt.Errorf("database.max_idle_conns must be > 0")
	}

	if strings.TrimSpace(c.Aggregation.WindowSize) == "" {
		return fmt.Errorf("aggregation.window_size is required")
	}
	if c.Aggregation.MaxWindowAttempts <= 0 {
		return fmt.Errorf("aggregation.max_window_attempts must be > 0")
	}
	if c.Aggregation.WorkerCount <= 0 {
		return fmt.Errorf("aggregation.worker_count must be > 0")
	}
	if c.Aggregation.BatchSize <= 0 {
		return fmt.Errorf("aggregation.batch_size must be > 0")
	}
	if c.Aggregation.DailyEnabled {
		interval, err := time.ParseDuration(c.Aggregation.DailyInterval)
		if err != nil {
			return fmt.Errorf("invalid aggregation.daily_interval %q: %w", c.Aggregation.DailyInterval, err)
		}
		if interval <= 0 {
			return fmt.Errorf("aggregation.daily_interval must be > 0")
		}
	}

	if c.Pipeline.MaxItems <= 0 {
		return fmt.Errorf("pipeline.max_items must be > 0")
	}
	if c.Pipeline.MaxFactsPerItem <= 0 {
		return fmt.Errorf("pipeline.max_facts_per_item must be > 0")
	}
	if c.Pipeline.MaxTotalChars <= 0 {
		return fmt.Errorf("pipeline.max_total_chars must be > 0")
	}

	if strings.TrimSpace(c.Summarizer.Endpoint) == "" {
		return fmt.Errorf("summarizer.endpoint is required")
	}
	if strings.TrimSpace(c.Summarizer.Model) == "" {
		return fmt.Errorf("summarizer.model is required")
	}
	if timeout, err := time.ParseDuration(c.Summarizer.Timeout); err != nil || timeout <= 0 {
		return fmt.Errorf("invalid summarizer.timeout %q", c.Summarizer.Timeout)
	}
	if c.Summarizer.MaxAttempts <= 0 {
		return fmt.Errorf("summarizer.max_attempts must be > 0")
	}

	if c.Delivery.Enabled {
		if c.Delivery.MaxAttempts <= 0 {
			return fmt.Errorf("delivery.max_attempts must be > 0")
		}
		if backoff, err := time.ParseDuration(c.Delivery.BackoffBase); err != nil || backoff <= 0 {
			return fmt.Errorf("invalid delivery.backoff_base %q", c.Delivery.BackoffBase)
		}
		if poll, err := time.ParseDuration(c.Delivery.PollInterval); err != nil || poll <= 0 {
			return fmt.Errorf("invalid delivery.poll_interval %q", c.Delivery.PollInterval)
		}
		if len(c.Preferences.DefaultChannels) == 0 {
			return fmt.Errorf("preferences.default_channels is required when delivery is enabled")
		}
	}

	return nil
}

// Load parses config from file + env and validates it. Environment variables
// use the BRIEFCAST_ prefix with "__" as the section separator, e.g.
// BRIEFCAST_DATABASE__DSN overrides database.dsn.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"server.port":                     8080,
		"server.host":                     "0.0.0.0",
		"server.max_body_size_mb":         1,
		"server.mode":                     "release",
		"database.dsn":                    "",
		"database.max_open_conns":         25,
		"database.max_idle_conns":         25,
		"database.auto_migrate":           true,
		"aggregation.enabled":             true,
		"aggregation.window_size":         "2h",
		"aggregation.sweep_interval":      "",
		"aggregation.max_window_attempts": 3,
		"aggregation.worker_count":        10,
		"aggregation.batch_size":          100,
		"aggregation.daily_enabled":       true,
		"aggregation.daily_interval":      "1h",
		"pipeline.rules_dir":              "",
		"pipeline.max_items":              20,
		"pipeline.max_facts_per_item":     5,
		"pipeline.max_total_chars":        8000,
		"summarizer.endpoint":             "https://api.openai.com/v1",
		"summarizer.model":                "gpt-4o-mini",
		"summarizer.api_key":              "",
		"summarizer.timeout":              "60s",
		"summarizer.max_attempts":         3,
		"delivery.enabled":                true,
		"delivery.max_attempts":           3,
		"delivery.backoff_base":           "2s",
		"delivery.poll_interval":          "30s",
		"delivery.telegram.bot_token":     "",
		"delivery.email_gateway.endpoint": "",
		"delivery.email_gateway.token":    "",
		"preferences.dir":                 "./config/preferences",
		"preferences.default_channels":    []string{"email"},
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider("BRIEFCAST_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "BRIEFCAST_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
