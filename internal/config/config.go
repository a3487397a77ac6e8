// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
)

// Config is decoded from environment variables. Every malformed or missing
// value is a startup error; nothing falls back silently.
type Config struct {
	// BaseURL is the Dhan API root. ENV: DHAN_BASE_URL
	BaseURL string `env:"DHAN_BASE_URL,default=https://api.dhan.co/v2"`
	// AccessToken authenticates API calls. ENV: DHAN_ACCESS_TOKEN
	AccessToken string `env:"DHAN_ACCESS_TOKEN,required"`
	// ClientID identifies the trading account. ENV: DHAN_CLIENT_ID
	ClientID string `env:"DHAN_CLIENT_ID,required"`
	// TimeoutMS bounds each broker request. ENV: DHAN_TIMEOUT_MS
	TimeoutMS int `env:"DHAN_TIMEOUT_MS,default=15000"`
	// RateLimit caps broker requests per second, 0 disables. ENV: DHAN_RATE_LIMIT
	RateLimit float64 `env:"DHAN_RATE_LIMIT,default=0"`
	// TradingEnabled opens the order placement and cancellation gates.
	// ENV: ENABLE_TRADING_TOOLS
	TradingEnabled Toggle `env:"ENABLE_TRADING_TOOLS,default=false"`
	// MaxOrderQuantity caps place_order quantities. ENV: MAX_ORDER_QUANTITY
	MaxOrderQuantity int `env:"MAX_ORDER_QUANTITY,default=10000"`
	// MaxInFlight caps concurrently dispatched messages. ENV: MAX_INFLIGHT
	MaxInFlight int `env:"MAX_INFLIGHT,default=32"`
	// MetricsAddr enables the Prometheus listener when set. ENV: DHAN_MCP_METRICS_ADDR
	MetricsAddr string `env:"DHAN_MCP_METRICS_ADDR"`
}

// Toggle is a boolean that accepts 1/true/yes/on and 0/false/no/off, case
// insensitively. Any other value is an error.
type Toggle bool

// Decode implements envdecode.Decoder.
func (t *Toggle) Decode(s string) error {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		*t = true
	case "0", "false", "no", "off":
		*t = false
	default:
		return fmt.Errorf("invalid boolean %q: want one of 1, true, yes, on, 0, false, no, off", s)
	}
	return nil
}

// FromEnv decodes and validates Config.
func FromEnv() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks ranges and formats envdecode cannot express.
func (c Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("config: DHAN_BASE_URL %q must be an absolute http(s) URL", c.BaseURL)
	}
	if strings.TrimSpace(c.AccessToken) == "" {
		return fmt.Errorf("config: DHAN_ACCESS_TOKEN is required")
	}
	if strings.TrimSpace(c.ClientID) == "" {
		return fmt.Errorf("config: DHAN_CLIENT_ID is required")
	}
	if c.TimeoutMS <= 0 {
		return fmt.Errorf("config: DHAN_TIMEOUT_MS must be positive, got %d", c.TimeoutMS)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("config: DHAN_RATE_LIMIT must not be negative, got %v", c.RateLimit)
	}
	if c.MaxOrderQuantity <= 0 {
		return fmt.Errorf("config: MAX_ORDER_QUANTITY must be positive, got %d", c.MaxOrderQuantity)
	}
	if c.MaxInFlight <= 0 {
		return fmt.Errorf("config: MAX_INFLIGHT must be positive, got %d", c.MaxInFlight)
	}
	return nil
}

// Timeout returns TimeoutMS as a duration.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}
