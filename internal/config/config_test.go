package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Defaults() should validate, got: %v", err)
	}
}

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := writeTempConfig(t, `
[server]
port = 9090
api_key = "sekrit"

[engine]
scan_interval = "2s"
fees_cents = 4.5

[[polymarket.markets]]
condition_id = "0xabc"
question = "Will it rain tomorrow?"
yes_asset_id = "1111"
no_asset_id = "2222"
liquidity_usd = 12000.0

[[limitless.pools]]
address = "0xpool"
pair = "RAIN-USD"
polymarket_id = "0xabc"
liquidity_usd = 8000.0
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.APIKey != "sekrit" {
		t.Errorf("Server.APIKey = %q, want sekrit", cfg.Server.APIKey)
	}
	if got := cfg.Engine.ScanInterval.Duration; got != 2*time.Second {
		t.Errorf("Engine.ScanInterval = %v, want 2s", got)
	}
	if cfg.Engine.FeesCents != 4.5 {
		t.Errorf("Engine.FeesCents = %g, want 4.5", cfg.Engine.FeesCents)
	}

	// Untouched sections keep their defaults.
	if cfg.Feed.QueueSize != 256 {
		t.Errorf("Feed.QueueSize = %d, want default 256", cfg.Feed.QueueSize)
	}
	if got := cfg.Engine.StaleAfter.Duration; got != 5*time.Second {
		t.Errorf("Engine.StaleAfter = %v, want default 5s", got)
	}

	if len(cfg.Polymarket.Markets) != 1 {
		t.Fatalf("Markets count = %d, want 1", len(cfg.Polymarket.Markets))
	}
	m := cfg.Polymarket.Markets[0]
	if m.ConditionID != "0xabc" || m.YesAssetID != "1111" || m.NoAssetID != "2222" {
		t.Errorf("market decoded wrong: %+v", m)
	}
	if len(cfg.Limitless.Pools) != 1 || cfg.Limitless.Pools[0].PolymarketID != "0xabc" {
		t.Errorf("pools decoded wrong: %+v", cfg.Limitless.Pools)
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("loaded config should validate, got: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatal("Load with missing file should error")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ARBSCAN_SERVER_PORT", "7777")
	t.Setenv("ARBSCAN_LOG_LEVEL", "debug")
	t.Setenv("ARBSCAN_FEED_BASE_DELAY", "3s")
	t.Setenv("ARBSCAN_RISK_MAX_DAILY_LOSS_USD", "750.5")
	t.Setenv("ARBSCAN_NOTIFY_TELEGRAM_TOKEN", "tok")
	t.Setenv("ARBSCAN_NOTIFY_TELEGRAM_CHAT_ID", "chat")
	t.Setenv("ARBSCAN_STRATEGIES_SINGLE_MARKET_ENABLED", "false")
	t.Setenv("ARBSCAN_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	if cfg.Server.Port != 7777 {
		t.Errorf("Server.Port = %d, want 7777", cfg.Server.Port)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
	if got := cfg.Feed.BaseDelay.Duration; got != 3*time.Second {
		t.Errorf("Feed.BaseDelay = %v, want 3s", got)
	}
	if cfg.Risk.MaxDailyLossUSD != 750.5 {
		t.Errorf("Risk.MaxDailyLossUSD = %g, want 750.5", cfg.Risk.MaxDailyLossUSD)
	}
	if cfg.Notify.TelegramToken != "tok" || cfg.Notify.TelegramChatID != "chat" {
		t.Errorf("telegram override failed: %q %q", cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID)
	}
	if cfg.Strategies.SingleMarket.Enabled {
		t.Error("SingleMarket.Enabled should be false after override")
	}
	want := []string{"https://a.example", "https://b.example"}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[0] != want[0] || cfg.Server.CORSOrigins[1] != want[1] {
		t.Errorf("CORSOrigins = %v, want %v", cfg.Server.CORSOrigins, want)
	}
}

func TestEnvOverrideIgnoresMalformedValues(t *testing.T) {
	t.Setenv("ARBSCAN_SERVER_PORT", "not-a-number")
	t.Setenv("ARBSCAN_ENGINE_SCAN_INTERVAL", "soon")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	if cfg.Server.Port != 8000 {
		t.Errorf("Server.Port = %d, want default 8000 on malformed override", cfg.Server.Port)
	}
	if got := cfg.Engine.ScanInterval.Duration; got != time.Second {
		t.Errorf("Engine.ScanInterval = %v, want default 1s on malformed override", got)
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Log.Level = "loud"
	cfg.Server.Port = 0
	cfg.Engine.ScanInterval.Duration = 0
	cfg.Execution.LiquidityFactor = 1.5
	cfg.Risk.MaxTotalPositionUSD = 10 // below per-market cap

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate should fail")
	}
	msg := err.Error()
	for _, want := range []string{
		`unknown level "loud"`,
		"server: port must be 1-65535",
		"engine: scan_interval must be positive",
		"execution: liquidity_factor must be in (0, 1]",
		"risk: max_total_position_usd must be >= max_position_per_market_usd",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("error missing %q:\n%s", want, msg)
		}
	}
}

func TestValidateDuplicateMarkets(t *testing.T) {
	cfg := Defaults()
	cfg.Polymarket.Markets = []PolymarketMarket{
		{ConditionID: "0xabc", YesAssetID: "1", NoAssetID: "2"},
		{ConditionID: "0xabc", YesAssetID: "3", NoAssetID: "4"},
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate should fail on duplicate condition_id")
	}
	if !strings.Contains(err.Error(), `duplicate condition_id "0xabc"`) {
		t.Errorf("error missing duplicate notice: %v", err)
	}
}

func TestValidateTelegramPair(t *testing.T) {
	cfg := Defaults()
	cfg.Notify.TelegramToken = "tok" // chat id missing

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate should fail on half-configured telegram")
	}
	if !strings.Contains(err.Error(), "telegram_token and telegram_chat_id must be set together") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Server.APIKey = "super-secret"
	cfg.Notify.TelegramToken = "tok"
	cfg.Notify.TelegramChatID = "chat"
	cfg.Notify.DiscordWebhookURL = "https://discord.test/hook"
	cfg.Polymarket.Markets = []PolymarketMarket{{ConditionID: "0xabc", YesAssetID: "1", NoAssetID: "2"}}

	red := RedactedConfig(&cfg)

	if red.Server.APIKey != "***" {
		t.Errorf("APIKey = %q, want ***", red.Server.APIKey)
	}
	if red.Notify.TelegramToken != "***" || red.Notify.DiscordWebhookURL != "***" {
		t.Errorf("notify secrets not redacted: %+v", red.Notify)
	}
	if red.Server.Port != cfg.Server.Port {
		t.Errorf("non-secret changed: port %d != %d", red.Server.Port, cfg.Server.Port)
	}

	// Mutating the redacted copy must not leak back.
	red.Polymarket.Markets[0].ConditionID = "mutated"
	if cfg.Polymarket.Markets[0].ConditionID != "0xabc" {
		t.Error("mutation of redacted copy leaked into original")
	}

	// Original stays intact.
	if cfg.Server.APIKey != "super-secret" {
		t.Errorf("original APIKey changed: %q", cfg.Server.APIKey)
	}
}
