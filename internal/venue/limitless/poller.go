// Package limitless polls the Limitless Exchange REST API for pool quotes
// and feeds them into the detection engine. Limitless has no public
// streaming endpoint, so this venue is ticker-driven rather than a feed
// manager source.
package limitless

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/oddslab/arbscan/internal/domain"
)

const (
	// SourceName identifies this venue in status reports.
	SourceName = "limitless"

	// DefaultBaseURL is the public REST API root.
	DefaultBaseURL = "https://limitlex.com/api"

	// DefaultPollInterval is the delay between fetch rounds.
	DefaultPollInterval = 5 * time.Second

	requestTimeout = 30 * time.Second
	retryCount     = 3
	retryWait      = time.Second
	retryMaxWait   = 10 * time.Second
)

// Pool pins down one tracked pool: its on-chain address, the pair label
// the price feed uses, an optional Polymarket condition the pool mirrors,
// and a liquidity fallback for when the API omits TVL.
type Pool struct {
	Address      string
	Pair         string
	PolymarketID string
	LiquidityUSD float64
}

// Config selects the API endpoint, the poll cadence, and the pools to
// track. An empty pool list tracks everything the API returns.
type Config struct {
	BaseURL      string
	PollInterval time.Duration
	Pools        []Pool
}

// Engine receives normalized pool quotes from the poller.
type Engine interface {
	UpdateLimitlessPrice(pool string, yesCents, noCents float64, pair string, liquidityUSD float64)
}

// Poller fetches /pools and /prices on a fixed interval and pushes every
// tracked quote into the engine. Fetch errors degrade the reported status
// but never stop the loop.
type Poller struct {
	cfg    Config
	client *resty.Client
	engine Engine
	logger *slog.Logger

	tracked     map[string]bool
	pairToAddr  map[string]string
	fallbackLiq map[string]float64

	mu   sync.Mutex
	info domain.SourceInfo
}

// NewPoller builds a poller with retrying HTTP transport. Zero-valued
// config fields fall back to defaults.
func NewPoller(cfg Config, engine Engine, logger *slog.Logger) *Poller {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(requestTimeout).
		SetRetryCount(retryCount).
		SetRetryWaitTime(retryWait).
		SetRetryMaxWaitTime(retryMaxWait)

	p := &Poller{
		cfg:         cfg,
		client:      client,
		engine:      engine,
		logger:      logger.With(slog.String("component", "limitless_poller")),
		tracked:     make(map[string]bool, len(cfg.Pools)),
		pairToAddr:  make(map[string]string, len(cfg.Pools)),
		fallbackLiq: make(map[string]float64, len(cfg.Pools)),
		info: domain.SourceInfo{
			Name:     SourceName,
			Endpoint: cfg.BaseURL,
			Status:   domain.SourceConnecting,
		},
	}
	for _, pool := range cfg.Pools {
		if pool.Address == "" {
			continue
		}
		p.tracked[pool.Address] = true
		p.fallbackLiq[pool.Address] = pool.LiquidityUSD
		if pool.Pair != "" {
			p.pairToAddr[pool.Pair] = pool.Address
		}
	}
	return p
}

// Run polls immediately and then on every tick until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.InfoContext(ctx, "poller started",
		slog.String("base_url", p.cfg.BaseURL),
		slog.Duration("interval", p.cfg.PollInterval),
		slog.Int("tracked_pools", len(p.tracked)))

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	p.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			p.setStatus(domain.SourceDisconnected, "")
			return ctx.Err()
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

// Status reports the poller in the same shape as feed sources so the API
// can list both venues uniformly.
func (p *Poller) Status() domain.SourceInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.info
}

// poll runs one fetch round. A pools failure only costs liquidity data; a
// prices failure skips the round.
func (p *Poller) poll(ctx context.Context) {
	pools, err := p.fetchPools(ctx)
	if err != nil {
		p.logger.WarnContext(ctx, "fetch pools failed", slog.String("error", err.Error()))
	}

	prices, err := p.fetchPrices(ctx)
	if err != nil {
		p.setStatus(domain.SourceError, err.Error())
		p.logger.WarnContext(ctx, "fetch prices failed", slog.String("error", err.Error()))
		return
	}

	updated := 0
	for _, entry := range prices {
		if p.apply(entry, pools) {
			updated++
		}
	}

	p.markHealthy()
	p.logger.DebugContext(ctx, "poll round complete",
		slog.Int("prices", len(prices)),
		slog.Int("updated", updated))
}

func (p *Poller) fetchPools(ctx context.Context) (map[string]poolEntry, error) {
	resp, err := p.client.R().SetContext(ctx).Get("/pools")
	if err != nil {
		return nil, fmt.Errorf("venue/limitless: fetch pools: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("venue/limitless: fetch pools: status %d", resp.StatusCode())
	}

	var entries []poolEntry
	if err := decodeList(resp.Body(), "pools", &entries); err != nil {
		return nil, fmt.Errorf("venue/limitless: decode pools: %w", err)
	}

	pools := make(map[string]poolEntry, len(entries))
	for _, e := range entries {
		addr := e.Address
		if addr == "" {
			addr = e.ID
		}
		if addr == "" {
			continue
		}
		pools[addr] = e
	}
	return pools, nil
}

func (p *Poller) fetchPrices(ctx context.Context) ([]priceEntry, error) {
	resp, err := p.client.R().SetContext(ctx).Get("/prices")
	if err != nil {
		return nil, fmt.Errorf("venue/limitless: fetch prices: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("venue/limitless: fetch prices: status %d", resp.StatusCode())
	}

	var entries []priceEntry
	if err := decodeList(resp.Body(), "prices", &entries); err != nil {
		return nil, fmt.Errorf("venue/limitless: decode prices: %w", err)
	}
	return entries, nil
}

// apply resolves one price entry to a tracked pool and pushes the quote.
// Reports whether the engine was updated.
func (p *Poller) apply(entry priceEntry, pools map[string]poolEntry) bool {
	pair := entry.Pair
	if pair == "" {
		pair = entry.Symbol
	}
	addr := entry.Pool
	if addr == "" {
		addr = entry.Address
	}
	if addr == "" {
		addr = p.pairToAddr[pair]
	}
	if addr == "" {
		return false
	}
	if len(p.tracked) > 0 && !p.tracked[addr] {
		return false
	}

	yes, no := quoteCents(entry)
	if yes <= 0 && no <= 0 {
		return false
	}

	liquidity := pools[addr].TVL
	if liquidity == 0 {
		liquidity = p.fallbackLiq[addr]
	}

	p.engine.UpdateLimitlessPrice(addr, yes, no, pair, liquidity)
	return true
}

// quoteCents converts a price entry to yes/no cents. Explicit per-side
// prices win; a bare pool price in (0,1) dollars implies the complement.
func quoteCents(e priceEntry) (yes, no float64) {
	if e.YesPrice > 0 || e.NoPrice > 0 {
		return e.YesPrice * 100, e.NoPrice * 100
	}

	price := e.Price
	if price == 0 {
		price = e.PriceUSD
	}
	if price <= 0 || price >= 1 {
		return 0, 0
	}
	return price * 100, (1 - price) * 100
}

func (p *Poller) setStatus(status domain.SourceStatus, errText string) {
	p.mu.Lock()
	p.info.Status = status
	p.info.Error = errText
	p.mu.Unlock()
}

func (p *Poller) markHealthy() {
	p.mu.Lock()
	p.info.Status = domain.SourceConnected
	p.info.Error = ""
	p.info.LastMessageAt = time.Now()
	p.mu.Unlock()
}

// poolEntry is a pool as returned by GET /pools.
type poolEntry struct {
	Address   string  `json:"address"`
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	TVL       float64 `json:"tvl"`
	Volume24h float64 `json:"volume24h"`
}

// priceEntry is a quote as returned by GET /prices. Field coverage varies
// by deployment, hence the aliases.
type priceEntry struct {
	Pool      string  `json:"pool"`
	Address   string  `json:"address"`
	Pair      string  `json:"pair"`
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	PriceUSD  float64 `json:"priceUsd"`
	YesPrice  float64 `json:"yesPrice"`
	NoPrice   float64 `json:"noPrice"`
	Volume24h float64 `json:"volume24h"`
}

// decodeList accepts both {"<key>": [...]} wrappers and bare arrays.
func decodeList(raw []byte, key string, out any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var wrapper map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &wrapper); err != nil {
			return err
		}
		inner, ok := wrapper[key]
		if !ok {
			return fmt.Errorf("missing %q field", key)
		}
		trimmed = bytes.TrimSpace(inner)
	}
	return json.Unmarshal(trimmed, out)
}
