package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for PULSE.
type Config struct {
	General   GeneralConfig   `yaml:"general"`
	Screener  ScreenerConfig  `yaml:"screener"`
	Bitquery  BitqueryConfig  `yaml:"bitquery"`
	Launchpad LaunchpadConfig `yaml:"launchpad"`
	Social    SocialConfig    `yaml:"social"`
	Cache     CacheConfig     `yaml:"cache"`
	Bus       BusConfig       `yaml:"bus"`
	Alerts    AlertsConfig    `yaml:"alerts"`
	HTTP      HTTPConfig      `yaml:"http"`
}

type GeneralConfig struct {
	InstanceID  string `yaml:"instance_id"`
	Environment string `yaml:"environment"` // production|staging|development
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"` // json|text
}

type ScreenerConfig struct {
	// Seconds between screening cycles. Clamped to [10, 300].
	RefreshIntervalSec int `yaml:"refresh_interval_sec"`

	// Global ceiling on in-flight upstream calls across both stages.
	MaxConcurrentRequests int `yaml:"max_concurrent_requests"`

	// Per-call timeout for every upstream fetch.
	RequestTimeoutSec int `yaml:"request_timeout_sec"`

	// Optional whole-cycle deadline. 0 disables it.
	CycleDeadlineSec int `yaml:"cycle_deadline_sec"`

	// Stage-1 momentum gate.
	MinBuysPerMinute int     `yaml:"min_buys_per_minute"`
	MinVolume1hSOL   float64 `yaml:"min_volume_1h_sol"`

	// Candidates pulled from the launchpad per cycle.
	CandidateLimit int `yaml:"candidate_limit"`

	// Fall back to the bundled sample mints when discovery comes up empty.
	UseSampleFallback bool `yaml:"use_sample_fallback"`

	// View criteria for qualified tokens (alerts, /tokens endpoint).
	MinCompositeScore  float64 `yaml:"min_composite_score"`
	MaxRiskScore       float64 `yaml:"max_risk_score"`
	MinResultVolumeSOL float64 `yaml:"min_result_volume_sol"`
}

type BitqueryConfig struct {
	Endpoint     string  `yaml:"endpoint"`
	APIKey       string  `yaml:"api_key"`
	RateLimitRPS float64 `yaml:"rate_limit_rps"`
}

type LaunchpadConfig struct {
	BaseURL string `yaml:"base_url"`

	// Live listing stream over the Bitquery websocket. Off by default;
	// cycles run on REST discovery alone when disabled.
	StreamEnabled bool   `yaml:"stream_enabled"`
	StreamURL     string `yaml:"stream_url"`
}

type SocialConfig struct {
	Enabled bool `yaml:"enabled"`

	// Bridge endpoints for search-interest and post-volume lookups.
	// Empty URLs disable the corresponding signal (it scores as zero).
	TrendsURL string `yaml:"trends_url"`
	PostsURL  string `yaml:"posts_url"`
}

type CacheConfig struct {
	Enabled bool `yaml:"enabled"`
	TTLSec  int  `yaml:"ttl_sec"`
	MaxSize int  `yaml:"max_size"`
}

type BusConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Brokers       []string `yaml:"brokers"`
	SchemaVersion string   `yaml:"schema_version"`
}

type AlertsConfig struct {
	Enabled          bool   `yaml:"enabled"`
	DiscordWebhook   string `yaml:"discord_webhook"`
	TelegramBotToken string `yaml:"telegram_bot_token"`
	TelegramChatID   int64  `yaml:"telegram_chat_id"`
	DedupeTTLSec     int    `yaml:"dedupe_ttl_sec"`
}

type HTTPConfig struct {
	Port int `yaml:"port"`
}

const (
	minRefreshIntervalSec = 10
	maxRefreshIntervalSec = 300
)

// Load reads and parses a YAML configuration file. A .env file in the
// working directory, when present, seeds the environment before ${VAR}
// expansion.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Apply defaults
	applyDefaults(cfg)

	return cfg, nil
}

// Default returns the configuration an empty file would produce.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.General.InstanceID == "" {
		cfg.General.InstanceID = "pulse-1"
	}
	if cfg.General.Environment == "" {
		cfg.General.Environment = "development"
	}
	if cfg.General.LogLevel == "" {
		cfg.General.LogLevel = "info"
	}
	if cfg.General.LogFormat == "" {
		cfg.General.LogFormat = "json"
	}
	if cfg.Screener.RefreshIntervalSec == 0 {
		cfg.Screener.RefreshIntervalSec = 30
	}
	if cfg.Screener.RefreshIntervalSec < minRefreshIntervalSec {
		cfg.Screener.RefreshIntervalSec = minRefreshIntervalSec
	}
	if cfg.Screener.RefreshIntervalSec > maxRefreshIntervalSec {
		cfg.Screener.RefreshIntervalSec = maxRefreshIntervalSec
	}
	if cfg.Screener.MaxConcurrentRequests == 0 {
		cfg.Screener.MaxConcurrentRequests = 10
	}
	if cfg.Screener.RequestTimeoutSec == 0 {
		cfg.Screener.RequestTimeoutSec = 30
	}
	if cfg.Screener.MinBuysPerMinute == 0 {
		cfg.Screener.MinBuysPerMinute = 25
	}
	if cfg.Screener.MinVolume1hSOL == 0 {
		cfg.Screener.MinVolume1hSOL = 2000
	}
	if cfg.Screener.CandidateLimit == 0 {
		cfg.Screener.CandidateLimit = 50
	}
	if cfg.Screener.MinCompositeScore == 0 {
		cfg.Screener.MinCompositeScore = 3.0
	}
	if cfg.Screener.MaxRiskScore == 0 {
		cfg.Screener.MaxRiskScore = 0.7
	}
	if cfg.Screener.MinResultVolumeSOL == 0 {
		cfg.Screener.MinResultVolumeSOL = 1000
	}
	if cfg.Bitquery.Endpoint == "" {
		cfg.Bitquery.Endpoint = "https://streaming.bitquery.io/graphql"
	}
	if cfg.Bitquery.RateLimitRPS == 0 {
		cfg.Bitquery.RateLimitRPS = 5
	}
	if cfg.Launchpad.BaseURL == "" {
		cfg.Launchpad.BaseURL = "https://pump.fun/api"
	}
	if cfg.Launchpad.StreamURL == "" {
		cfg.Launchpad.StreamURL = "wss://streaming.bitquery.io/eap"
	}
	if cfg.Cache.TTLSec == 0 {
		cfg.Cache.TTLSec = 300
	}
	if cfg.Cache.MaxSize == 0 {
		cfg.Cache.MaxSize = 1000
	}
	if len(cfg.Bus.Brokers) == 0 {
		cfg.Bus.Brokers = []string{"localhost:9092"}
	}
	if cfg.Bus.SchemaVersion == "" {
		cfg.Bus.SchemaVersion = "1.0.0"
	}
	if cfg.Alerts.DedupeTTLSec == 0 {
		cfg.Alerts.DedupeTTLSec = 3600
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8880
	}
}

// Validate checks invariants that defaults cannot repair.
func (c *Config) Validate() error {
	if c.Screener.MaxConcurrentRequests < 1 {
		return fmt.Errorf("screener.max_concurrent_requests must be >= 1, got %d", c.Screener.MaxConcurrentRequests)
	}
	if c.Screener.RequestTimeoutSec < 1 {
		return fmt.Errorf("screener.request_timeout_sec must be >= 1, got %d", c.Screener.RequestTimeoutSec)
	}
	if c.Screener.MinBuysPerMinute < 0 {
		return fmt.Errorf("screener.min_buys_per_minute must be >= 0, got %d", c.Screener.MinBuysPerMinute)
	}
	if c.Screener.MinVolume1hSOL < 0 {
		return fmt.Errorf("screener.min_volume_1h_sol must be >= 0, got %f", c.Screener.MinVolume1hSOL)
	}
	if c.Screener.CycleDeadlineSec < 0 {
		return fmt.Errorf("screener.cycle_deadline_sec must be >= 0, got %d", c.Screener.CycleDeadlineSec)
	}
	if c.Screener.MinCompositeScore < 0 || c.Screener.MinCompositeScore > 10 {
		return fmt.Errorf("screener.min_composite_score must be in [0, 10], got %f", c.Screener.MinCompositeScore)
	}
	if c.Screener.MaxRiskScore < 0 || c.Screener.MaxRiskScore > 1 {
		return fmt.Errorf("screener.max_risk_score must be in [0, 1], got %f", c.Screener.MaxRiskScore)
	}
	if c.Screener.MinResultVolumeSOL < 0 {
		return fmt.Errorf("screener.min_result_volume_sol must be >= 0, got %f", c.Screener.MinResultVolumeSOL)
	}
	if c.Bus.Enabled && len(c.Bus.Brokers) == 0 {
		return fmt.Errorf("bus.enabled requires at least one broker")
	}
	if c.Alerts.Enabled && c.Alerts.DiscordWebhook == "" && c.Alerts.TelegramBotToken == "" {
		return fmt.Errorf("alerts.enabled requires a discord webhook or a telegram bot token")
	}
	return nil
}
