// Package config defines the top-level configuration for the arbitrage
// scanner and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by ARBSCAN_* environment
// variables.
type Config struct {
	Server     ServerConfig     `toml:"server"`
	Log        LogConfig        `toml:"log"`
	Feed       FeedConfig       `toml:"feed"`
	Engine     EngineConfig     `toml:"engine"`
	Execution  ExecutionConfig  `toml:"execution"`
	Risk       RiskConfig       `toml:"risk"`
	Polymarket PolymarketConfig `toml:"polymarket"`
	Limitless  LimitlessConfig  `toml:"limitless"`
	Notify     NotifyConfig     `toml:"notify"`
	Strategies StrategiesConfig `toml:"strategies"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	// RateLimit is requests per minute per client IP; 0 disables limiting.
	RateLimit int `toml:"rate_limit"`
}

// LogConfig selects the slog handler and level.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// FeedConfig holds websocket reconnection and broadcast queue parameters.
type FeedConfig struct {
	BaseDelay   duration `toml:"base_delay"`
	MaxDelay    duration `toml:"max_delay"`
	MaxAttempts int      `toml:"max_attempts"`
	QueueSize   int      `toml:"queue_size"`
}

// EngineConfig holds detection engine scan parameters.
type EngineConfig struct {
	ScanInterval      duration `toml:"scan_interval"`
	StaleAfter        duration `toml:"stale_after"`
	HighSpreadCents   float64  `toml:"high_spread_cents"`
	SpreadUpdateCents float64  `toml:"spread_update_cents"`
	SignalValidity    duration `toml:"signal_validity"`
	FeesCents         float64  `toml:"fees_cents"`
}

// ExecutionConfig holds order book walk parameters for VWAP sizing.
type ExecutionConfig struct {
	LiquidityFactor  float64 `toml:"liquidity_factor"`
	MaxSlippageCents float64 `toml:"max_slippage_cents"`
	MaxDepth         int     `toml:"max_depth"`
	MinLiquidityUSD  float64 `toml:"min_liquidity_usd"`
}

// RiskConfig holds circuit breaker limits.
type RiskConfig struct {
	MaxPositionPerMarketUSD float64  `toml:"max_position_per_market_usd"`
	MaxTotalPositionUSD     float64  `toml:"max_total_position_usd"`
	MaxDailyLossUSD         float64  `toml:"max_daily_loss_usd"`
	MaxLossPerTradeUSD      float64  `toml:"max_loss_per_trade_usd"`
	MaxConsecutiveErrors    int      `toml:"max_consecutive_errors"`
	ErrorCooldown           duration `toml:"error_cooldown"`
	GasBufferCents          float64  `toml:"gas_buffer_cents"`
	LiquidityFactor         float64  `toml:"liquidity_factor"`
}

// PolymarketConfig holds the websocket endpoint and the markets to track.
type PolymarketConfig struct {
	WSURL   string             `toml:"ws_url"`
	Markets []PolymarketMarket `toml:"markets"`
}

// PolymarketMarket maps one Polymarket condition to its outcome token IDs.
type PolymarketMarket struct {
	ConditionID  string  `toml:"condition_id"`
	Question     string  `toml:"question"`
	YesAssetID   string  `toml:"yes_asset_id"`
	NoAssetID    string  `toml:"no_asset_id"`
	LiquidityUSD float64 `toml:"liquidity_usd"`
}

// LimitlessConfig holds the REST polling endpoint and the pools to track.
type LimitlessConfig struct {
	Enabled      bool            `toml:"enabled"`
	BaseURL      string          `toml:"base_url"`
	PollInterval duration        `toml:"poll_interval"`
	Pools        []LimitlessPool `toml:"pools"`
}

// LimitlessPool maps one Limitless pool to its Polymarket counterpart for
// cross-platform comparison.
type LimitlessPool struct {
	Address      string  `toml:"address"`
	Pair         string  `toml:"pair"`
	PolymarketID string  `toml:"polymarket_id"`
	LiquidityUSD float64 `toml:"liquidity_usd"`
}

// NotifyConfig holds notification channel credentials. A channel with empty
// credentials is simply not wired.
type NotifyConfig struct {
	TelegramToken     string `toml:"telegram_token"`
	TelegramChatID    string `toml:"telegram_chat_id"`
	DiscordWebhookURL string `toml:"discord_webhook_url"`
	// MinPriority drops alerts below this priority: low, medium, or high.
	MinPriority string `toml:"min_priority"`
}

// StrategyConfig holds the tunable fields for one detection strategy.
type StrategyConfig struct {
	Enabled        bool    `toml:"enabled"`
	MinProfitCents float64 `toml:"min_profit_cents"`
	MaxRiskLevel   int     `toml:"max_risk_level"`
	FeesCents      float64 `toml:"fees_cents"`
}

// StrategiesConfig holds per-strategy settings.
type StrategiesConfig struct {
	SingleMarket  StrategyConfig `toml:"single_market"`
	CrossPlatform StrategyConfig `toml:"cross_platform"`
	MultiOutcome  StrategyConfig `toml:"multi_outcome"`
	ThreeWay      StrategyConfig `toml:"three_way"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   0,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Feed: FeedConfig{
			BaseDelay:   duration{time.Second},
			MaxDelay:    duration{60 * time.Second},
			MaxAttempts: 10,
			QueueSize:   256,
		},
		Engine: EngineConfig{
			ScanInterval:      duration{time.Second},
			StaleAfter:        duration{5 * time.Second},
			HighSpreadCents:   2.0,
			SpreadUpdateCents: 0.1,
			SignalValidity:    duration{60 * time.Second},
			FeesCents:         3.0,
		},
		Execution: ExecutionConfig{
			LiquidityFactor:  0.5,
			MaxSlippageCents: 2.0,
			MaxDepth:         5,
			MinLiquidityUSD:  50.0,
		},
		Risk: RiskConfig{
			MaxPositionPerMarketUSD: 50000,
			MaxTotalPositionUSD:     100000,
			MaxDailyLossUSD:         500,
			MaxLossPerTradeUSD:      5,
			MaxConsecutiveErrors:    5,
			ErrorCooldown:           duration{60 * time.Second},
			GasBufferCents:          3,
			LiquidityFactor:         0.5,
		},
		Polymarket: PolymarketConfig{
			WSURL: "wss://ws-subscriptions-clob.polymarket.com/ws/market",
		},
		Limitless: LimitlessConfig{
			Enabled:      true,
			BaseURL:      "https://limitlex.com/api",
			PollInterval: duration{5 * time.Second},
		},
		Notify: NotifyConfig{
			MinPriority: "medium",
		},
		Strategies: StrategiesConfig{
			SingleMarket:  StrategyConfig{Enabled: true, MinProfitCents: 2, MaxRiskLevel: 1, FeesCents: 3},
			CrossPlatform: StrategyConfig{Enabled: true, MinProfitCents: 3, MaxRiskLevel: 2, FeesCents: 3},
			MultiOutcome:  StrategyConfig{Enabled: true, MinProfitCents: 3, MaxRiskLevel: 2, FeesCents: 3},
			ThreeWay:      StrategyConfig{Enabled: true, MinProfitCents: 3, MaxRiskLevel: 3, FeesCents: 3},
		},
	}
}

// validLogLevels enumerates the accepted values for LogConfig.Level.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validLogFormats enumerates the accepted values for LogConfig.Format.
var validLogFormats = map[string]bool{
	"json": true,
	"text": true,
}

// validPriorities enumerates the accepted values for NotifyConfig.MinPriority.
var validPriorities = map[string]bool{
	"low":    true,
	"medium": true,
	"high":   true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Log
	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, fmt.Sprintf("log: unknown level %q (valid: debug, info, warn, error)", c.Log.Level))
	}
	if !validLogFormats[strings.ToLower(c.Log.Format)] {
		errs = append(errs, fmt.Sprintf("log: unknown format %q (valid: json, text)", c.Log.Format))
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, "server: rate_limit must be >= 0")
	}

	// Feed: zero values fall back to package defaults, so only the
	// relationship between the delays needs checking here.
	if c.Feed.BaseDelay.Duration > 0 && c.Feed.MaxDelay.Duration > 0 &&
		c.Feed.MaxDelay.Duration < c.Feed.BaseDelay.Duration {
		errs = append(errs, "feed: max_delay must be >= base_delay")
	}

	// Engine
	if c.Engine.ScanInterval.Duration <= 0 {
		errs = append(errs, "engine: scan_interval must be positive")
	}
	if c.Engine.StaleAfter.Duration <= 0 {
		errs = append(errs, "engine: stale_after must be positive")
	}
	if c.Engine.SignalValidity.Duration <= 0 {
		errs = append(errs, "engine: signal_validity must be positive")
	}
	if c.Engine.HighSpreadCents < 0 {
		errs = append(errs, "engine: high_spread_cents must be non-negative")
	}
	if c.Engine.SpreadUpdateCents < 0 {
		errs = append(errs, "engine: spread_update_cents must be non-negative")
	}
	if c.Engine.FeesCents < 0 {
		errs = append(errs, "engine: fees_cents must be non-negative")
	}

	// Execution
	if c.Execution.LiquidityFactor <= 0 || c.Execution.LiquidityFactor > 1 {
		errs = append(errs, fmt.Sprintf("execution: liquidity_factor must be in (0, 1], got %g", c.Execution.LiquidityFactor))
	}
	if c.Execution.MaxSlippageCents < 0 {
		errs = append(errs, "execution: max_slippage_cents must be non-negative")
	}
	if c.Execution.MaxDepth < 1 {
		errs = append(errs, "execution: max_depth must be >= 1")
	}
	if c.Execution.MinLiquidityUSD < 0 {
		errs = append(errs, "execution: min_liquidity_usd must be non-negative")
	}

	// Risk
	if c.Risk.MaxPositionPerMarketUSD <= 0 {
		errs = append(errs, "risk: max_position_per_market_usd must be positive")
	}
	if c.Risk.MaxTotalPositionUSD <= 0 {
		errs = append(errs, "risk: max_total_position_usd must be positive")
	}
	if c.Risk.MaxTotalPositionUSD < c.Risk.MaxPositionPerMarketUSD {
		errs = append(errs, "risk: max_total_position_usd must be >= max_position_per_market_usd")
	}
	if c.Risk.MaxDailyLossUSD <= 0 {
		errs = append(errs, "risk: max_daily_loss_usd must be positive")
	}
	if c.Risk.MaxLossPerTradeUSD < 0 {
		errs = append(errs, "risk: max_loss_per_trade_usd must be non-negative")
	}
	if c.Risk.MaxConsecutiveErrors <= 0 {
		errs = append(errs, "risk: max_consecutive_errors must be positive")
	}
	if c.Risk.ErrorCooldown.Duration <= 0 {
		errs = append(errs, "risk: error_cooldown must be positive")
	}
	if c.Risk.GasBufferCents < 0 {
		errs = append(errs, "risk: gas_buffer_cents must be non-negative")
	}
	if c.Risk.LiquidityFactor <= 0 || c.Risk.LiquidityFactor > 1 {
		errs = append(errs, fmt.Sprintf("risk: liquidity_factor must be in (0, 1], got %g", c.Risk.LiquidityFactor))
	}

	// Polymarket
	if c.Polymarket.WSURL == "" {
		errs = append(errs, "polymarket: ws_url must not be empty")
	}
	seenConditions := make(map[string]bool, len(c.Polymarket.Markets))
	for i, m := range c.Polymarket.Markets {
		if m.ConditionID == "" {
			errs = append(errs, fmt.Sprintf("polymarket: markets[%d]: condition_id must not be empty", i))
			continue
		}
		if seenConditions[m.ConditionID] {
			errs = append(errs, fmt.Sprintf("polymarket: markets[%d]: duplicate condition_id %q", i, m.ConditionID))
		}
		seenConditions[m.ConditionID] = true
		if m.YesAssetID == "" || m.NoAssetID == "" {
			errs = append(errs, fmt.Sprintf("polymarket: markets[%d] (%s): yes_asset_id and no_asset_id must both be set", i, m.ConditionID))
		}
	}

	// Limitless
	if c.Limitless.Enabled {
		if c.Limitless.BaseURL == "" {
			errs = append(errs, "limitless: base_url must not be empty when enabled")
		}
		if c.Limitless.PollInterval.Duration <= 0 {
			errs = append(errs, "limitless: poll_interval must be positive when enabled")
		}
		seenPools := make(map[string]bool, len(c.Limitless.Pools))
		for i, p := range c.Limitless.Pools {
			if p.Address == "" {
				errs = append(errs, fmt.Sprintf("limitless: pools[%d]: address must not be empty", i))
				continue
			}
			if seenPools[p.Address] {
				errs = append(errs, fmt.Sprintf("limitless: pools[%d]: duplicate address %q", i, p.Address))
			}
			seenPools[p.Address] = true
		}
	}

	// Notify: credentials are optional but must be complete per channel.
	tt := c.Notify.TelegramToken != ""
	tc := c.Notify.TelegramChatID != ""
	if tt != tc {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}
	if c.Notify.MinPriority != "" && !validPriorities[strings.ToLower(c.Notify.MinPriority)] {
		errs = append(errs, fmt.Sprintf("notify: unknown min_priority %q (valid: low, medium, high)", c.Notify.MinPriority))
	}

	// Strategies
	strategySections := []struct {
		name string
		cfg  StrategyConfig
	}{
		{"single_market", c.Strategies.SingleMarket},
		{"cross_platform", c.Strategies.CrossPlatform},
		{"multi_outcome", c.Strategies.MultiOutcome},
		{"three_way", c.Strategies.ThreeWay},
	}
	for _, s := range strategySections {
		if s.cfg.MinProfitCents < 0 {
			errs = append(errs, fmt.Sprintf("strategies: %s: min_profit_cents must be non-negative", s.name))
		}
		if s.cfg.MaxRiskLevel < 1 {
			errs = append(errs, fmt.Sprintf("strategies: %s: max_risk_level must be >= 1", s.name))
		}
		if s.cfg.FeesCents < 0 {
			errs = append(errs, fmt.Sprintf("strategies: %s: fees_cents must be non-negative", s.name))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
