package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies ARBSCAN_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known ARBSCAN_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e.
// not empty). This lets operators inject secrets at deploy time without
// touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Server ──
	setBool(&cfg.Server.Enabled, "ARBSCAN_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "ARBSCAN_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "ARBSCAN_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "ARBSCAN_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "ARBSCAN_SERVER_RATE_LIMIT")

	// ── Log ──
	setStr(&cfg.Log.Level, "ARBSCAN_LOG_LEVEL")
	setStr(&cfg.Log.Format, "ARBSCAN_LOG_FORMAT")

	// ── Feed ──
	setDuration(&cfg.Feed.BaseDelay, "ARBSCAN_FEED_BASE_DELAY")
	setDuration(&cfg.Feed.MaxDelay, "ARBSCAN_FEED_MAX_DELAY")
	setInt(&cfg.Feed.MaxAttempts, "ARBSCAN_FEED_MAX_ATTEMPTS")
	setInt(&cfg.Feed.QueueSize, "ARBSCAN_FEED_QUEUE_SIZE")

	// ── Engine ──
	setDuration(&cfg.Engine.ScanInterval, "ARBSCAN_ENGINE_SCAN_INTERVAL")
	setDuration(&cfg.Engine.StaleAfter, "ARBSCAN_ENGINE_STALE_AFTER")
	setFloat64(&cfg.Engine.HighSpreadCents, "ARBSCAN_ENGINE_HIGH_SPREAD_CENTS")
	setFloat64(&cfg.Engine.SpreadUpdateCents, "ARBSCAN_ENGINE_SPREAD_UPDATE_CENTS")
	setDuration(&cfg.Engine.SignalValidity, "ARBSCAN_ENGINE_SIGNAL_VALIDITY")
	setFloat64(&cfg.Engine.FeesCents, "ARBSCAN_ENGINE_FEES_CENTS")

	// ── Execution ──
	setFloat64(&cfg.Execution.LiquidityFactor, "ARBSCAN_EXECUTION_LIQUIDITY_FACTOR")
	setFloat64(&cfg.Execution.MaxSlippageCents, "ARBSCAN_EXECUTION_MAX_SLIPPAGE_CENTS")
	setInt(&cfg.Execution.MaxDepth, "ARBSCAN_EXECUTION_MAX_DEPTH")
	setFloat64(&cfg.Execution.MinLiquidityUSD, "ARBSCAN_EXECUTION_MIN_LIQUIDITY_USD")

	// ── Risk ──
	setFloat64(&cfg.Risk.MaxPositionPerMarketUSD, "ARBSCAN_RISK_MAX_POSITION_PER_MARKET_USD")
	setFloat64(&cfg.Risk.MaxTotalPositionUSD, "ARBSCAN_RISK_MAX_TOTAL_POSITION_USD")
	setFloat64(&cfg.Risk.MaxDailyLossUSD, "ARBSCAN_RISK_MAX_DAILY_LOSS_USD")
	setFloat64(&cfg.Risk.MaxLossPerTradeUSD, "ARBSCAN_RISK_MAX_LOSS_PER_TRADE_USD")
	setInt(&cfg.Risk.MaxConsecutiveErrors, "ARBSCAN_RISK_MAX_CONSECUTIVE_ERRORS")
	setDuration(&cfg.Risk.ErrorCooldown, "ARBSCAN_RISK_ERROR_COOLDOWN")
	setFloat64(&cfg.Risk.GasBufferCents, "ARBSCAN_RISK_GAS_BUFFER_CENTS")
	setFloat64(&cfg.Risk.LiquidityFactor, "ARBSCAN_RISK_LIQUIDITY_FACTOR")

	// ── Polymarket ──
	setStr(&cfg.Polymarket.WSURL, "ARBSCAN_POLYMARKET_WS_URL")

	// ── Limitless ──
	setBool(&cfg.Limitless.Enabled, "ARBSCAN_LIMITLESS_ENABLED")
	setStr(&cfg.Limitless.BaseURL, "ARBSCAN_LIMITLESS_BASE_URL")
	setDuration(&cfg.Limitless.PollInterval, "ARBSCAN_LIMITLESS_POLL_INTERVAL")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "ARBSCAN_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "ARBSCAN_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "ARBSCAN_NOTIFY_DISCORD_WEBHOOK_URL")
	setStr(&cfg.Notify.MinPriority, "ARBSCAN_NOTIFY_MIN_PRIORITY")

	// ── Strategies ──
	setBool(&cfg.Strategies.SingleMarket.Enabled, "ARBSCAN_STRATEGIES_SINGLE_MARKET_ENABLED")
	setBool(&cfg.Strategies.CrossPlatform.Enabled, "ARBSCAN_STRATEGIES_CROSS_PLATFORM_ENABLED")
	setBool(&cfg.Strategies.MultiOutcome.Enabled, "ARBSCAN_STRATEGIES_MULTI_OUTCOME_ENABLED")
	setBool(&cfg.Strategies.ThreeWay.Enabled, "ARBSCAN_STRATEGIES_THREE_WAY_ENABLED")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
