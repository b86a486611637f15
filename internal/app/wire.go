package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/oddslab/arbscan/internal/config"
	"github.com/oddslab/arbscan/internal/domain"
	"github.com/oddslab/arbscan/internal/engine"
	"github.com/oddslab/arbscan/internal/execution"
	"github.com/oddslab/arbscan/internal/feed"
	"github.com/oddslab/arbscan/internal/notify"
	"github.com/oddslab/arbscan/internal/risk"
	"github.com/oddslab/arbscan/internal/server"
	"github.com/oddslab/arbscan/internal/server/handler"
	"github.com/oddslab/arbscan/internal/server/ws"
	"github.com/oddslab/arbscan/internal/strategy"
	"github.com/oddslab/arbscan/internal/venue/limitless"
	"github.com/oddslab/arbscan/internal/venue/polymarket"
)

// notifyTimeout bounds a single alert delivery to the external channels.
const notifyTimeout = 15 * time.Second

// Dependencies bundles every component the application needs to operate. It
// is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Registry *strategy.Registry
	Breaker  *risk.Breaker
	Calc     *execution.Calculator
	Feed     *feed.Manager
	Engine   *engine.Engine
	Notifier *notify.Notifier

	// Poller is nil when the Limitless feed is disabled.
	Poller *limitless.Poller

	Hub *ws.Hub

	// Server is nil when the HTTP API is disabled.
	Server *server.Server
}

// Wire constructs all concrete components from the given configuration and
// returns them together with a cleanup function that should be called on
// shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Strategy registry ---
	registry := strategy.NewRegistry()
	applyStrategySettings(registry, cfg.Strategies)
	deps.Registry = registry

	// --- Risk circuit breaker ---
	breaker, err := risk.NewBreaker(risk.Config{
		MaxPositionPerMarketUSD: cfg.Risk.MaxPositionPerMarketUSD,
		MaxTotalPositionUSD:     cfg.Risk.MaxTotalPositionUSD,
		MaxDailyLossUSD:         cfg.Risk.MaxDailyLossUSD,
		MaxLossPerTradeUSD:      cfg.Risk.MaxLossPerTradeUSD,
		MaxConsecutiveErrors:    cfg.Risk.MaxConsecutiveErrors,
		ErrorCooldown:           cfg.Risk.ErrorCooldown.Duration,
		GasBufferCents:          cfg.Risk.GasBufferCents,
		LiquidityFactor:         cfg.Risk.LiquidityFactor,
	}, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: breaker: %w", err)
	}
	deps.Breaker = breaker

	// --- Execution sizing ---
	deps.Calc = execution.NewCalculator(execution.Config{
		LiquidityFactor:  cfg.Execution.LiquidityFactor,
		MaxSlippageCents: cfg.Execution.MaxSlippageCents,
		MaxDepth:         cfg.Execution.MaxDepth,
		MinLiquidityUSD:  cfg.Execution.MinLiquidityUSD,
	})

	// --- Feed manager ---
	manager := feed.NewManager(feed.Config{
		BaseDelay:   cfg.Feed.BaseDelay.Duration,
		MaxDelay:    cfg.Feed.MaxDelay.Duration,
		MaxAttempts: cfg.Feed.MaxAttempts,
		QueueSize:   cfg.Feed.QueueSize,
	}, logger)
	deps.Feed = manager

	// --- Detection engine ---
	eng, err := engine.NewEngine(engine.Config{
		ScanInterval:      cfg.Engine.ScanInterval.Duration,
		StaleAfter:        cfg.Engine.StaleAfter.Duration,
		HighSpreadCents:   cfg.Engine.HighSpreadCents,
		SpreadUpdateCents: cfg.Engine.SpreadUpdateCents,
		SignalValidity:    cfg.Engine.SignalValidity.Duration,
		FeesCents:         cfg.Engine.FeesCents,
	}, registry, manager, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: engine: %w", err)
	}
	deps.Engine = eng

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	notifier := notify.NewNotifier(senders,
		domain.AlertPriority(strings.ToLower(cfg.Notify.MinPriority)), logger)
	deps.Notifier = notifier

	// Alert callbacks fire on the scan goroutine, so each delivery is handed
	// off. In-flight sends are drained on shutdown.
	var inflight sync.WaitGroup
	eng.OnAlert(func(alert domain.Alert) {
		inflight.Add(1)
		go func() {
			defer inflight.Done()
			nctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
			defer cancel()
			if err := notifier.Notify(nctx, alert); err != nil {
				logger.Warn("wire: alert delivery failed",
					slog.String("alert_id", alert.ID),
					slog.String("error", err.Error()),
				)
			}
		}()
	})
	closers = append(closers, inflight.Wait)

	// --- Polymarket websocket feed ---
	adapter := polymarket.NewAdapter(polymarket.Config{
		WSURL:   cfg.Polymarket.WSURL,
		Markets: polymarketMarkets(cfg.Polymarket.Markets),
	}, eng, logger)
	if err := manager.RegisterSource(ctx, adapter.Source()); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: register polymarket source: %w", err)
	}

	// --- Limitless poll feed ---
	if cfg.Limitless.Enabled {
		deps.Poller = limitless.NewPoller(limitless.Config{
			BaseURL:      cfg.Limitless.BaseURL,
			PollInterval: cfg.Limitless.PollInterval.Duration,
			Pools:        limitlessPools(cfg.Limitless.Pools),
		}, eng, logger)
		for _, pool := range cfg.Limitless.Pools {
			if pool.PolymarketID != "" {
				eng.AddAssetMapping(pool.PolymarketID, pool.Address)
			}
		}
	}

	// --- WebSocket hub ---
	deps.Hub = ws.NewHub(manager, eng, logger)

	// --- HTTP API ---
	if cfg.Server.Enabled {
		statusH := handler.NewStatusHandler(eng, manager, breaker)
		if deps.Poller != nil {
			statusH = statusH.WithPoller(deps.Poller)
		}
		handlers := server.Handlers{
			Health:   handler.NewHealthHandler("arbscan", time.Now().UTC()),
			Status:   statusH,
			Arb:      handler.NewArbitrageHandler(eng, deps.Calc, breaker, logger),
			Risk:     handler.NewRiskHandler(breaker, logger),
			Strategy: handler.NewStrategyHandler(registry, logger),
		}
		deps.Server = server.NewServer(server.Config{
			Port:        cfg.Server.Port,
			CORSOrigins: cfg.Server.CORSOrigins,
			APIKey:      cfg.Server.APIKey,
			RateLimit:   cfg.Server.RateLimit,
		}, handlers, deps.Hub, logger)
	}

	return deps, cleanup, nil
}

// applyStrategySettings pushes the configured per-strategy overrides into the
// registry, keeping the built-in descriptions.
func applyStrategySettings(reg *strategy.Registry, cfg config.StrategiesConfig) {
	for _, sc := range []struct {
		name domain.Strategy
		cfg  config.StrategyConfig
	}{
		{domain.StrategySingleMarket, cfg.SingleMarket},
		{domain.StrategyCrossPlatform, cfg.CrossPlatform},
		{domain.StrategyMultiOutcome, cfg.MultiOutcome},
		{domain.StrategyThreeWay, cfg.ThreeWay},
	} {
		reg.Apply(sc.name, strategy.Settings{
			Enabled:        sc.cfg.Enabled,
			MinProfitCents: sc.cfg.MinProfitCents,
			MaxRiskLevel:   sc.cfg.MaxRiskLevel,
			FeesCents:      sc.cfg.FeesCents,
		})
	}
}

func polymarketMarkets(markets []config.PolymarketMarket) []polymarket.Market {
	out := make([]polymarket.Market, 0, len(markets))
	for _, m := range markets {
		out = append(out, polymarket.Market{
			ConditionID:  m.ConditionID,
			Question:     m.Question,
			YesAssetID:   m.YesAssetID,
			NoAssetID:    m.NoAssetID,
			LiquidityUSD: m.LiquidityUSD,
		})
	}
	return out
}

func limitlessPools(pools []config.LimitlessPool) []limitless.Pool {
	out := make([]limitless.Pool, 0, len(pools))
	for _, p := range pools {
		out = append(out, limitless.Pool{
			Address:      p.Address,
			Pair:         p.Pair,
			PolymarketID: p.PolymarketID,
			LiquidityUSD: p.LiquidityUSD,
		})
	}
	return out
}
