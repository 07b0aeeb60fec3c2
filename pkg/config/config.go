// Package config loads the agent configuration from the environment, reading a
// .env file first when one is present.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"

	apperrors "coinpulse/pkg/errors"
)

type Config struct {
	// Teneo agent runtime
	AgentEnabled       bool   `env:"AGENT_ENABLED" default:"true"`
	AgentName          string `env:"AGENT_NAME" default:"Coin Pulse Sentiment"`
	AgentDescription   string `env:"AGENT_DESCRIPTION" default:"Scores recent social posts about a coin and reports the community sentiment with market context."`
	PrivateKey         string `env:"PRIVATE_KEY"`
	NFTTokenID         string `env:"NFT_TOKEN_ID"`
	OwnerAddress       string `env:"OWNER_ADDRESS"`
	RateLimitPerMinute int    `env:"RATE_LIMIT_PER_MINUTE" default:"0"`

	// Invocation
	WorkspaceID       string        `env:"WORKSPACE_ID"`
	InvocationTimeout time.Duration `env:"INVOCATION_TIMEOUT" default:"2m"`

	// Search collaborator
	SearchQuery          string        `env:"SEARCH_QUERY" default:"bitcoin"`
	Lookback             time.Duration `env:"LOOKBACK" default:"1h"`
	PageSize             int           `env:"PAGE_SIZE" default:"100"`
	MaxPages             int           `env:"MAX_PAGES" default:"10"`
	SearchRatePerSec     float64       `env:"SEARCH_RATE_PER_SEC" default:"1"`
	SearchRetryAttempts  int           `env:"SEARCH_RETRY_ATTEMPTS" default:"1"`
	XAPIBaseURL          string        `env:"X_API_BASE_URL" default:"https://api.twitter.com"`
	XBearerToken         string        `env:"X_BEARER_TOKEN"`
	IntegrationBaseURL   string        `env:"INTEGRATION_BASE_URL"`
	IntegrationAPIKey    string        `env:"INTEGRATION_API_KEY"`
	TwitterIntegrationID string        `env:"TWITTER_INTEGRATION_ID" default:"twitter-v2"`

	// Scoring
	PositiveThreshold float64 `env:"POSITIVE_THRESHOLD" default:"60"`
	NegativeThreshold float64 `env:"NEGATIVE_THRESHOLD" default:"40"`

	// Price collaborator
	MarketEnrichment bool          `env:"MARKET_ENRICHMENT" default:"true"`
	CoinGeckoBaseURL string        `env:"COINGECKO_BASE_URL" default:"https://api.coingecko.com/api/v3"`
	CoinGeckoAPIKey  string        `env:"COINGECKO_API_KEY"`
	AssetID          string        `env:"ASSET_ID" default:"bitcoin"`
	AssetName        string        `env:"ASSET_NAME" default:"Bitcoin"`
	MarketCacheTTL   time.Duration `env:"MARKET_CACHE_TTL" default:"30s"`
	RedisURL         string        `env:"REDIS_URL"`

	// Delivery
	TelegramWebhook string `env:"TELEGRAM_WEBHOOK"`
	TelegramChatID  string `env:"TELEGRAM_CHAT_ID"`
	SlackWebhookURL string `env:"SLACK_WEBHOOK_URL"`

	// HTTP surface
	Port               string        `env:"PORT" default:"3000"`
	HTTPTimeout        time.Duration `env:"HTTP_TIMEOUT" default:"15s"`
	RegisterRatePerSec float64       `env:"REGISTER_RATE_PER_SEC" default:"1"`
	RegisterBurst      int           `env:"REGISTER_BURST" default:"5"`

	// Scheduling; zero disables the periodic report.
	ReportInterval time.Duration `env:"REPORT_INTERVAL" default:"0s"`

	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`
}

// UsesIntegration reports whether searches go through the workspace integration
// proxy instead of the X API directly.
func (c *Config) UsesIntegration() bool {
	return c.IntegrationBaseURL != "" && c.IntegrationAPIKey != ""
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}
	return FromEnv()
}

// FromEnv decodes and validates the process environment without touching .env.
func FromEnv() (*Config, error) {
	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, apperrors.ConfigError(fmt.Sprintf("failed to load environment variables: %v", err))
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	cfg.PageSize = clamp(cfg.PageSize, 10, 100)

	return &cfg, nil
}

func validate(cfg *Config) error {
	required := []struct{ name, value string }{
		{"TELEGRAM_WEBHOOK", cfg.TelegramWebhook},
		{"WORKSPACE_ID", cfg.WorkspaceID},
	}
	for _, r := range required {
		if r.value == "" {
			return apperrors.ConfigError(fmt.Sprintf("%s is required", r.name))
		}
	}

	if cfg.AgentEnabled && cfg.PrivateKey == "" {
		return apperrors.ConfigError("PRIVATE_KEY is required when AGENT_ENABLED is true")
	}

	if cfg.XBearerToken == "" && !cfg.UsesIntegration() {
		return apperrors.ConfigError("either X_BEARER_TOKEN or INTEGRATION_BASE_URL with INTEGRATION_API_KEY is required")
	}
	if cfg.UsesIntegration() && cfg.TwitterIntegrationID == "" {
		return apperrors.ConfigError("TWITTER_INTEGRATION_ID is required for integration searches")
	}

	urls := []struct{ name, value string }{
		{"TELEGRAM_WEBHOOK", cfg.TelegramWebhook},
		{"X_API_BASE_URL", cfg.XAPIBaseURL},
		{"COINGECKO_BASE_URL", cfg.CoinGeckoBaseURL},
		{"INTEGRATION_BASE_URL", cfg.IntegrationBaseURL},
		{"SLACK_WEBHOOK_URL", cfg.SlackWebhookURL},
	}
	for _, u := range urls {
		if u.value == "" {
			continue
		}
		parsed, err := url.Parse(u.value)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return apperrors.ConfigError(fmt.Sprintf("%s must be an absolute URL", u.name))
		}
	}

	if cfg.NegativeThreshold > cfg.PositiveThreshold {
		return apperrors.ConfigError("NEGATIVE_THRESHOLD must not exceed POSITIVE_THRESHOLD")
	}
	if cfg.Lookback <= 0 {
		return apperrors.ConfigError("LOOKBACK must be positive")
	}
	if cfg.MaxPages < 1 {
		return apperrors.ConfigError("MAX_PAGES must be at least 1")
	}
	if cfg.SearchRetryAttempts < 1 {
		return apperrors.ConfigError("SEARCH_RETRY_ATTEMPTS must be at least 1")
	}
	if cfg.InvocationTimeout <= 0 {
		return apperrors.ConfigError("INVOCATION_TIMEOUT must be positive")
	}
	if cfg.ReportInterval < 0 {
		return apperrors.ConfigError("REPORT_INTERVAL must not be negative")
	}

	return nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
