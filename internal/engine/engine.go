// Package engine runs the periodic arbitrage scan. The engine owns the
// market data cache and the opportunity map: venue adapters push price and
// book updates in, the scan loop runs the enabled detectors over fresh
// snapshots, and new opportunities come out as deduplicated signals and
// alerts plus a broadcast snapshot for connected clients.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oddslab/arbscan/internal/domain"
	"github.com/oddslab/arbscan/internal/metrics"
	"github.com/oddslab/arbscan/internal/strategy"
)

// Signal and alert logs are trimmed to this many entries; the process is
// long-lived and keeps no persistent history.
const maxLogEntries = 500

// Broadcaster pushes engine snapshots to connected clients. The feed
// manager satisfies it.
type Broadcaster interface {
	Broadcast(source string, data []byte) error
}

// Config tunes the scan loop.
type Config struct {
	ScanInterval      time.Duration
	StaleAfter        time.Duration
	HighSpreadCents   float64
	SpreadUpdateCents float64
	SignalValidity    time.Duration
	FeesCents         float64
}

// DefaultConfig returns the standard scan parameters.
func DefaultConfig() Config {
	return Config{
		ScanInterval:      time.Second,
		StaleAfter:        5 * time.Second,
		HighSpreadCents:   2.0,
		SpreadUpdateCents: 0.1,
		SignalValidity:    60 * time.Second,
		FeesCents:         3,
	}
}

// Validate checks the scan parameters for internal consistency.
func (c Config) Validate() error {
	var errs []string

	if c.ScanInterval <= 0 {
		errs = append(errs, "scan_interval must be positive")
	}
	if c.StaleAfter <= 0 {
		errs = append(errs, "stale_after must be positive")
	}
	if c.SignalValidity <= 0 {
		errs = append(errs, "signal_validity must be positive")
	}
	if c.HighSpreadCents < 0 {
		errs = append(errs, "high_spread_cents must be non-negative")
	}
	if c.SpreadUpdateCents < 0 {
		errs = append(errs, "spread_update_cents must be non-negative")
	}
	if c.FeesCents < 0 {
		errs = append(errs, "fees_cents must be non-negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("engine: invalid config:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Status is the engine's health-reporting view.
type Status struct {
	Running                  bool      `json:"running"`
	TotalOpportunitiesFound  int       `json:"total_opportunities_found"`
	ActiveOpportunities      int       `json:"active_opportunities"`
	ActiveSignals            int       `json:"active_signals"`
	PendingAlerts            int       `json:"pending_alerts"`
	TrackedPolymarketMarkets int       `json:"tracked_polymarket_markets"`
	TrackedLimitlessPools    int       `json:"tracked_limitless_pools"`
	TrackedOrderBooks        int       `json:"tracked_order_books"`
	AssetMappings            int       `json:"asset_mappings"`
	MultiOutcomeMarkets      int       `json:"multi_outcome_markets"`
	ThreeWayMarkets          int       `json:"three_way_markets"`
	LastScanAt               time.Time `json:"last_scan_at,omitzero"`
}

// Snapshot is the periodic fan-out payload pushed to every client sink:
// the top opportunities by net profit, the latest signals, and any
// unacknowledged alerts.
type Snapshot struct {
	Type          string               `json:"type"`
	Opportunities []domain.Opportunity `json:"opportunities"`
	Signals       []domain.Signal      `json:"signals"`
	Alerts        []domain.Alert       `json:"alerts"`
	Status        Status               `json:"status"`
}

// Filter narrows an Opportunities query. Zero values mean no constraint;
// inactive entries are excluded unless IncludeInactive is set.
type Filter struct {
	Strategy        domain.Strategy
	MinProfitCents  float64
	MaxRisk         int
	IncludeInactive bool
}

// Engine owns the market data cache and the opportunity/signal/alert
// state. The scan loop is the only opportunity-map writer; queries return
// copies.
type Engine struct {
	cfg      Config
	registry *strategy.Registry
	caster   Broadcaster
	logger   *slog.Logger
	now      func() time.Time

	cache *cache

	// scanMu serializes scans so a tick is atomic to observers.
	scanMu sync.Mutex

	mu            sync.RWMutex
	opportunities map[string]domain.Opportunity
	signals       []domain.Signal
	alerts        []domain.Alert
	totalFound    int
	lastScanAt    time.Time
	running       bool

	onAlert func(domain.Alert)
}

// NewEngine builds a stopped engine. The broadcaster may be nil when no
// client fan-out is wired (tests).
func NewEngine(cfg Config, registry *strategy.Registry, caster Broadcaster, logger *slog.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if registry == nil {
		return nil, fmt.Errorf("engine: registry is required")
	}
	e := &Engine{
		cfg:           cfg,
		registry:      registry,
		caster:        caster,
		logger:        logger.With(slog.String("component", "engine")),
		now:           time.Now,
		opportunities: make(map[string]domain.Opportunity),
	}
	e.cache = newCache(func() time.Time { return e.now() })
	return e, nil
}

// OnAlert registers a callback invoked once per newly created alert, after
// the scan releases its locks. Set before Run.
func (e *Engine) OnAlert(fn func(domain.Alert)) {
	e.onAlert = fn
}

// Run scans on a fixed period until ctx is cancelled, pushing a broadcast
// snapshot after each pass. A tick never overlaps the previous one.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	e.running = true
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	e.logger.InfoContext(ctx, "detection engine started",
		slog.Duration("scan_interval", e.cfg.ScanInterval),
		slog.Duration("stale_after", e.cfg.StaleAfter))

	ticker := time.NewTicker(e.cfg.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.InfoContext(ctx, "detection engine stopped")
			return ctx.Err()
		case <-ticker.C:
			e.Scan(ctx)
			e.broadcastSnapshot(ctx)
		}
	}
}

// Scan runs one detection pass over every fresh cached instrument and
// returns the number of new opportunity keys. Safe to call directly; scans
// never run concurrently with each other.
func (e *Engine) Scan(ctx context.Context) int {
	e.scanMu.Lock()
	defer e.scanMu.Unlock()

	start := e.now()
	staleBefore := start.Add(-e.cfg.StaleAfter)

	var found []domain.Opportunity

	if e.registry.Enabled(domain.StrategySingleMarket) {
		fees := e.feesFor(domain.StrategySingleMarket)
		for _, m := range e.cache.singleMarkets(staleBefore) {
			if opp := strategy.DetectSingleMarket(m, fees, start); opp != nil {
				found = append(found, *opp)
			}
		}
	}
	if e.registry.Enabled(domain.StrategyMultiOutcome) {
		fees := e.feesFor(domain.StrategyMultiOutcome)
		for _, m := range e.cache.multiOutcomeMarkets(staleBefore) {
			if opp := strategy.DetectMultiOutcome(m, fees, start); opp != nil {
				found = append(found, *opp)
			}
		}
	}
	if e.registry.Enabled(domain.StrategyThreeWay) {
		fees := e.feesFor(domain.StrategyThreeWay)
		for _, m := range e.cache.threeWayMarkets(staleBefore) {
			if opp := strategy.DetectThreeWay(m, fees, start); opp != nil {
				found = append(found, *opp)
			}
		}
	}
	if e.registry.Enabled(domain.StrategyCrossPlatform) {
		fees := e.feesFor(domain.StrategyCrossPlatform)
		for _, p := range e.cache.crossPairs(staleBefore) {
			if opp := strategy.DetectCrossPlatform(p, fees, start); opp != nil {
				found = append(found, *opp)
			}
		}
	}

	newCount := e.absorb(ctx, found)
	metrics.ScanDuration.Observe(e.now().Sub(start).Seconds())
	return newCount
}

// absorb folds one scan's detections into the opportunity map. An unseen
// key is new: it gets exactly one signal, and one alert when the spread
// crosses the high-spread threshold. A seen key is superseded by the fresh
// emission without duplicating either. Active entries that stopped being
// detected expire once they age out.
func (e *Engine) absorb(ctx context.Context, found []domain.Opportunity) int {
	now := e.now()
	seen := make(map[string]struct{}, len(found))
	var newOpps []domain.Opportunity
	var newAlerts []domain.Alert

	e.mu.Lock()
	for _, opp := range found {
		seen[opp.Key] = struct{}{}
		existing, ok := e.opportunities[opp.Key]
		e.opportunities[opp.Key] = opp

		if ok {
			if math.Abs(opp.SpreadCents-existing.SpreadCents) > e.cfg.SpreadUpdateCents {
				e.logger.DebugContext(ctx, "opportunity superseded",
					slog.String("key", opp.Key),
					slog.Float64("spread_cents", opp.SpreadCents))
			}
			continue
		}

		e.totalFound++
		newOpps = append(newOpps, opp)
		metrics.OpportunitiesDetected.WithLabelValues(string(opp.Strategy)).Inc()

		sig := e.buildSignal(opp)
		e.signals = append(e.signals, sig)
		metrics.SignalsGenerated.WithLabelValues(string(sig.Strength)).Inc()

		if opp.SpreadCents >= e.cfg.HighSpreadCents {
			al := e.buildAlert(opp)
			e.alerts = append(e.alerts, al)
			newAlerts = append(newAlerts, al)
			metrics.AlertsGenerated.WithLabelValues(string(al.Priority)).Inc()
		}
	}

	for key, opp := range e.opportunities {
		if _, ok := seen[key]; ok {
			continue
		}
		if opp.Status == domain.OpportunityActive && now.Sub(opp.DiscoveredAt) > e.cfg.StaleAfter {
			opp.Status = domain.OpportunityExpired
			e.opportunities[key] = opp
		}
	}

	e.trimLogsLocked()
	e.lastScanAt = now
	active := e.activeCountLocked()
	e.mu.Unlock()

	metrics.ActiveOpportunities.Set(float64(active))

	for _, opp := range newOpps {
		e.logger.InfoContext(ctx, "new opportunity",
			slog.String("key", opp.Key),
			slog.String("strategy", string(opp.Strategy)),
			slog.Float64("spread_cents", opp.SpreadCents),
			slog.Float64("net_profit_usd", opp.NetProfitUSD))
	}
	if cb := e.onAlert; cb != nil {
		for _, al := range newAlerts {
			cb(al)
		}
	}
	return len(newOpps)
}

func (e *Engine) buildSignal(opp domain.Opportunity) domain.Signal {
	var strength domain.SignalStrength
	switch {
	case opp.NetProfitPct() >= 2.0:
		strength = domain.SignalVeryStrong
	case opp.NetProfitPct() >= 1.0:
		strength = domain.SignalStrong
	case opp.NetProfitPct() >= 0.5:
		strength = domain.SignalModerate
	default:
		strength = domain.SignalWeak
	}

	var rec domain.Recommendation
	var urg domain.Urgency
	switch {
	case opp.RiskScore <= 3 && opp.Confidence >= 0.7:
		rec = domain.RecommendExecute
		urg = domain.UrgencySoon
		if opp.TimeSensitive {
			urg = domain.UrgencyImmediate
		}
	case opp.RiskScore <= 5:
		rec = domain.RecommendWait
		urg = domain.UrgencyMonitor
	default:
		rec = domain.RecommendSkip
		urg = domain.UrgencyMonitor
	}

	now := e.now()
	return domain.Signal{
		ID:              uuid.Must(uuid.NewRandom()).String(),
		OpportunityID:   opp.ID,
		Type:            "entry",
		Strength:        strength,
		ConfidenceScore: opp.Confidence * 100,
		EntryPriceCents: opp.YesPriceCents,
		TargetProfitPct: opp.NetProfitPct(),
		StopLossPct:     -opp.NetProfitPct() / 2,
		Recommendation:  rec,
		Urgency:         urg,
		Rationale: fmt.Sprintf("spread %.2f cents, net profit %.2f%%, risk %d/10",
			opp.SpreadCents, opp.NetProfitPct(), opp.RiskScore),
		GeneratedAt: now,
		ValidUntil:  now.Add(e.cfg.SignalValidity),
		Status:      "active",
	}
}

func (e *Engine) buildAlert(opp domain.Opportunity) domain.Alert {
	var priority domain.AlertPriority
	switch {
	case opp.SpreadCents >= e.cfg.HighSpreadCents:
		priority = domain.AlertHigh
	case opp.NetProfitPct() >= 1.0:
		priority = domain.AlertMedium
	default:
		priority = domain.AlertLow
	}

	return domain.Alert{
		ID:            uuid.Must(uuid.NewRandom()).String(),
		OpportunityID: opp.ID,
		Priority:      priority,
		Category:      "opportunity",
		Title:         fmt.Sprintf("Arbitrage: %.2f cent spread", opp.SpreadCents),
		Message:       fmt.Sprintf("%s - net profit $%.2f", truncate(opp.Question, 50), opp.NetProfitUSD),
		CreatedAt:     e.now(),
	}
}

func (e *Engine) feesFor(s domain.Strategy) float64 {
	if set, ok := e.registry.Settings(s); ok {
		return set.FeesCents
	}
	return e.cfg.FeesCents
}

// UpdatePolymarketPrice records the latest Polymarket quote for a market.
func (e *Engine) UpdatePolymarketPrice(marketID string, yesCents, noCents float64, question string, liquidityUSD float64) {
	e.cache.updatePolymarketPrice(marketID, yesCents, noCents, question, liquidityUSD)
}

// UpdateLimitlessPrice records the latest Limitless quote for a pool. A
// zero price on either side means that side is not quoted.
func (e *Engine) UpdateLimitlessPrice(pool string, yesCents, noCents float64, pair string, liquidityUSD float64) {
	e.cache.updateLimitlessPrice(pool, yesCents, noCents, pair, liquidityUSD)
}

// UpdateOrderBook records the latest book for a market, best level first.
func (e *Engine) UpdateOrderBook(marketID string, bids, asks []domain.PriceLevel) {
	e.cache.updateOrderBook(marketID, bids, asks)
}

// AddAssetMapping declares that a Polymarket market and a Limitless pool
// represent the same economic event, enabling cross-platform detection.
func (e *Engine) AddAssetMapping(polymarketID, limitlessPool string) {
	e.cache.addMapping(polymarketID, limitlessPool)
}

// RegisterMultiOutcome tracks a multi-outcome market for scanning.
// Re-register on every price refresh; stale registrations are skipped.
func (e *Engine) RegisterMultiOutcome(m domain.MultiOutcomeMarket) {
	e.cache.registerMultiOutcome(m)
}

// RegisterThreeWay tracks a three-way market for scanning.
func (e *Engine) RegisterThreeWay(m domain.ThreeWayMarket) {
	e.cache.registerThreeWay(m)
}

// OrderBook returns the latest cached book for a market.
func (e *Engine) OrderBook(marketID string) (domain.OrderBook, bool) {
	return e.cache.orderBook(marketID)
}

// YesPrices returns the latest Polymarket yes price per market, for
// pre-execution revalidation.
func (e *Engine) YesPrices() map[string]float64 {
	return e.cache.yesPrices()
}

// Opportunities returns matching opportunities sorted by net profit,
// highest first.
func (e *Engine) Opportunities(f Filter) []domain.Opportunity {
	e.mu.RLock()
	out := make([]domain.Opportunity, 0, len(e.opportunities))
	for _, opp := range e.opportunities {
		if !f.IncludeInactive && opp.Status != domain.OpportunityActive {
			continue
		}
		if f.Strategy != "" && opp.Strategy != f.Strategy {
			continue
		}
		if opp.NetProfitCents < f.MinProfitCents {
			continue
		}
		if f.MaxRisk > 0 && opp.RiskScore > f.MaxRisk {
			continue
		}
		out = append(out, opp)
	}
	e.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].NetProfitUSD > out[j].NetProfitUSD })
	return out
}

// Opportunity looks up one opportunity by its emission ID.
func (e *Engine) Opportunity(id string) (domain.Opportunity, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, opp := range e.opportunities {
		if opp.ID == id {
			return opp, true
		}
	}
	return domain.Opportunity{}, false
}

// Signals returns the most recent signals in generation order, oldest
// first. A non-positive limit defaults to 10.
func (e *Engine) Signals(limit int) []domain.Signal {
	if limit <= 0 {
		limit = 10
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	n := len(e.signals)
	if limit > n {
		limit = n
	}
	return append([]domain.Signal(nil), e.signals[n-limit:]...)
}

// Alerts returns alerts in creation order.
func (e *Engine) Alerts(unackedOnly bool) []domain.Alert {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]domain.Alert, 0, len(e.alerts))
	for _, al := range e.alerts {
		if unackedOnly && al.Acknowledged {
			continue
		}
		out = append(out, al)
	}
	return out
}

// AcknowledgeAlert marks an alert acknowledged. Returns false when the
// alert is unknown.
func (e *Engine) AcknowledgeAlert(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.alerts {
		if e.alerts[i].ID == id {
			e.alerts[i].Acknowledged = true
			return true
		}
	}
	return false
}

// Status reports the engine's counters and cache sizes.
func (e *Engine) Status() Status {
	counts := e.cache.counts()
	now := e.now()

	e.mu.RLock()
	defer e.mu.RUnlock()

	activeSignals := 0
	for _, s := range e.signals {
		if s.Valid(now) {
			activeSignals++
		}
	}
	pending := 0
	for _, a := range e.alerts {
		if !a.Acknowledged {
			pending++
		}
	}

	return Status{
		Running:                  e.running,
		TotalOpportunitiesFound:  e.totalFound,
		ActiveOpportunities:      e.activeCountLocked(),
		ActiveSignals:            activeSignals,
		PendingAlerts:            pending,
		TrackedPolymarketMarkets: counts.polymarket,
		TrackedLimitlessPools:    counts.limitless,
		TrackedOrderBooks:        counts.books,
		AssetMappings:            counts.mappings,
		MultiOutcomeMarkets:      counts.multi,
		ThreeWayMarkets:          counts.threeWay,
		LastScanAt:               e.lastScanAt,
	}
}

// BroadcastSnapshot assembles the client fan-out payload: top 10
// opportunities by net profit, the last 5 signals, and up to 5
// unacknowledged alerts.
func (e *Engine) BroadcastSnapshot() Snapshot {
	opps := e.Opportunities(Filter{})
	if len(opps) > 10 {
		opps = opps[:10]
	}
	alerts := e.Alerts(true)
	if len(alerts) > 5 {
		alerts = alerts[:5]
	}
	return Snapshot{
		Type:          "arbitrage_update",
		Opportunities: opps,
		Signals:       e.Signals(5),
		Alerts:        alerts,
		Status:        e.Status(),
	}
}

func (e *Engine) broadcastSnapshot(ctx context.Context) {
	if e.caster == nil {
		return
	}
	data, err := json.Marshal(e.BroadcastSnapshot())
	if err != nil {
		e.logger.ErrorContext(ctx, "marshal snapshot", slog.String("error", err.Error()))
		return
	}
	if err := e.caster.Broadcast("engine", data); err != nil {
		// Queue pressure is expected under load; the next tick retries.
		e.logger.DebugContext(ctx, "snapshot broadcast dropped", slog.String("error", err.Error()))
	}
}

func (e *Engine) activeCountLocked() int {
	n := 0
	for _, opp := range e.opportunities {
		if opp.Status == domain.OpportunityActive {
			n++
		}
	}
	return n
}

func (e *Engine) trimLogsLocked() {
	if n := len(e.signals); n > maxLogEntries {
		e.signals = append([]domain.Signal(nil), e.signals[n-maxLogEntries:]...)
	}
	if n := len(e.alerts); n > maxLogEntries {
		e.alerts = append([]domain.Alert(nil), e.alerts[n-maxLogEntries:]...)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
