// Package risk gates trade execution behind a circuit breaker. The breaker
// tracks positions, daily P&L, and consecutive errors, and halts trading
// when any limit is breached. Recovery is automatic: after a cooldown the
// breaker admits trades provisionally and closes again once conditions
// improve.
package risk

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oddslab/arbscan/internal/domain"
	"github.com/oddslab/arbscan/internal/metrics"
)

// State is the breaker's trading-permission state.
type State string

const (
	// StateClosed allows trading (normal operation).
	StateClosed State = "closed"
	// StateOpen halts trading after a limit breach.
	StateOpen State = "open"
	// StateHalfOpen allows trading provisionally after the cooldown.
	StateHalfOpen State = "half_open"
)

// Config holds the breaker's limits.
type Config struct {
	MaxPositionPerMarketUSD float64
	MaxTotalPositionUSD     float64
	MaxDailyLossUSD         float64
	MaxLossPerTradeUSD      float64
	MaxConsecutiveErrors    int
	ErrorCooldown           time.Duration
	GasBufferCents          float64
	LiquidityFactor         float64
}

// DefaultConfig returns the standard limits.
func DefaultConfig() Config {
	return Config{
		MaxPositionPerMarketUSD: 50000,
		MaxTotalPositionUSD:     100000,
		MaxDailyLossUSD:         500,
		MaxLossPerTradeUSD:      5,
		MaxConsecutiveErrors:    5,
		ErrorCooldown:           60 * time.Second,
		GasBufferCents:          3,
		LiquidityFactor:         0.5,
	}
}

// Validate checks the limits for internal consistency.
func (c Config) Validate() error {
	var errs []string

	if c.MaxPositionPerMarketUSD <= 0 {
		errs = append(errs, "max_position_per_market_usd must be positive")
	}
	if c.MaxTotalPositionUSD <= 0 {
		errs = append(errs, "max_total_position_usd must be positive")
	}
	if c.MaxTotalPositionUSD < c.MaxPositionPerMarketUSD {
		errs = append(errs, "max_total_position_usd must be >= max_position_per_market_usd")
	}
	if c.MaxDailyLossUSD <= 0 {
		errs = append(errs, "max_daily_loss_usd must be positive")
	}
	if c.MaxLossPerTradeUSD < 0 {
		errs = append(errs, "max_loss_per_trade_usd must be non-negative")
	}
	if c.MaxConsecutiveErrors <= 0 {
		errs = append(errs, "max_consecutive_errors must be positive")
	}
	if c.ErrorCooldown <= 0 {
		errs = append(errs, "error_cooldown must be positive")
	}
	if c.GasBufferCents < 0 {
		errs = append(errs, "gas_buffer_cents must be non-negative")
	}
	if c.LiquidityFactor <= 0 || c.LiquidityFactor > 1 {
		errs = append(errs, "liquidity_factor must be in (0, 1]")
	}

	if len(errs) > 0 {
		return fmt.Errorf("risk: invalid config:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Status is the externally visible breaker summary.
type Status struct {
	State                 State      `json:"state"`
	CanTrade              bool       `json:"can_trade"`
	ErrorCount            int        `json:"error_count"`
	ConsecutiveErrors     int        `json:"consecutive_errors"`
	DailyPnLUSD           float64    `json:"daily_pnl_usd"`
	DailyLossRemainingUSD float64    `json:"daily_loss_remaining_usd"`
	TotalPositions        int        `json:"total_positions"`
	TrippedAt             *time.Time `json:"tripped_at,omitempty"`
}

// Breaker is the risk gate. One mutex guards every field so that a
// validate call and its position reservation form a single critical
// section; two concurrent trades can never both pass a position check
// against the same headroom.
type Breaker struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	mu         sync.Mutex
	state      State
	positions  map[string]domain.Position
	reserved   map[string]float64
	daily      domain.DailyMetrics
	trippedAt  time.Time
	errorCount int
}

// NewBreaker constructs a closed breaker. Invalid limits fail construction.
func NewBreaker(cfg Config, logger *slog.Logger) (*Breaker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	b := &Breaker{
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "risk_breaker")),
		now:       time.Now,
		state:     StateClosed,
		positions: make(map[string]domain.Position),
		reserved:  make(map[string]float64),
	}
	b.daily = freshDaily(b.today())
	metrics.SetBreakerState(string(b.state))
	b.logger.Info("circuit breaker initialized",
		slog.String("state", string(b.state)),
		slog.Float64("max_daily_loss_usd", cfg.MaxDailyLossUSD))
	return b, nil
}

// State returns the current state, applying lazy transitions first: a
// half-open breaker closes once conditions recover, and an open breaker
// goes half-open after the cooldown elapses. The two transitions never
// chain within a single call.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshLocked()
	return b.state
}

// CanTrade reports whether trades may proceed.
func (b *Breaker) CanTrade() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshLocked()
	return b.state == StateClosed || b.state == StateHalfOpen
}

// ValidateTrade checks a proposed trade against every limit and, when all
// checks pass, reserves the size against the per-market and total position
// headroom in the same critical section. Callers must pair an approval
// with either RecordSuccess (commits the position) or ReleaseReservation
// (abandons the trade). A projected daily-loss breach trips the breaker;
// the other rejections do not.
func (b *Breaker) ValidateTrade(marketID string, sizeUSD, estimatedLossUSD float64) domain.ValidationResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshLocked()
	b.rollLocked()

	res := b.validateLocked(marketID, sizeUSD, estimatedLossUSD)
	metrics.RecordValidation(res.CanExecute)
	return res
}

func (b *Breaker) validateLocked(marketID string, sizeUSD, estimatedLossUSD float64) domain.ValidationResult {
	if b.state != StateClosed && b.state != StateHalfOpen {
		return domain.ValidationResult{Reason: fmt.Sprintf("circuit breaker is %s", b.state)}
	}

	projected := b.daily.TotalPnLUSD - estimatedLossUSD
	if projected < -b.cfg.MaxDailyLossUSD {
		b.tripLocked(fmt.Sprintf("daily loss limit exceeded: $%.2f projected", projected))
		return domain.ValidationResult{Reason: "daily loss limit would be exceeded"}
	}

	if estimatedLossUSD > b.cfg.MaxLossPerTradeUSD {
		return domain.ValidationResult{Reason: fmt.Sprintf("per-trade loss limit exceeded: $%.2f", estimatedLossUSD)}
	}

	marketExposure := b.positions[marketID].Quantity + b.reserved[marketID]
	if marketExposure+sizeUSD > b.cfg.MaxPositionPerMarketUSD {
		return domain.ValidationResult{Reason: fmt.Sprintf(
			"position limit for market would be exceeded: %.0f > %.0f",
			marketExposure+sizeUSD, b.cfg.MaxPositionPerMarketUSD)}
	}

	if b.totalExposureLocked()+sizeUSD > b.cfg.MaxTotalPositionUSD {
		return domain.ValidationResult{Reason: "total position limit would be exceeded"}
	}

	b.reserved[marketID] += sizeUSD
	return domain.ValidationResult{CanExecute: true}
}

// ReleaseReservation returns reserved headroom when a validated trade is
// abandoned before execution.
func (b *Breaker) ReleaseReservation(marketID string, sizeUSD float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.releaseLocked(marketID, sizeUSD)
}

func (b *Breaker) releaseLocked(marketID string, sizeUSD float64) {
	r := b.reserved[marketID] - sizeUSD
	if r <= 0 {
		delete(b.reserved, marketID)
		return
	}
	b.reserved[marketID] = r
}

// RecordSuccess closes the loop after an execution attempt. A failed
// result is routed to the error counters; a successful one updates the
// daily tally, commits the position, and converts its reservation.
func (b *Breaker) RecordSuccess(result domain.TradeResult) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollLocked()

	if !result.Success {
		msg := result.ErrorMessage
		if msg == "" {
			msg = "unknown error"
		}
		b.handleErrorLocked(msg)
		return
	}

	b.daily.TotalTrades++
	b.daily.SuccessfulTrades++
	b.daily.TotalGasSpentUSD += result.GasCostUSD

	if p := result.Position; p != nil {
		b.daily.TotalPnLUSD += p.UnrealizedPnLUSD
		if _, ok := b.positions[p.MarketID]; !ok {
			b.positions[p.MarketID] = *p
			b.logger.Info("position added",
				slog.String("position_id", p.ID),
				slog.String("market_id", p.MarketID),
				slog.Float64("quantity", p.Quantity))
		}
		b.releaseLocked(p.MarketID, p.Quantity)
	}

	b.errorCount = 0
	b.daily.ConsecutiveErrors = 0
}

// HandleError records an execution failure. Reaching the consecutive-error
// limit trips the breaker.
func (b *Breaker) HandleError(message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollLocked()
	b.handleErrorLocked(message)
}

func (b *Breaker) handleErrorLocked(message string) {
	b.errorCount++
	b.daily.ConsecutiveErrors++
	b.daily.FailedTrades++

	b.logger.Error("execution error",
		slog.Int("error_count", b.errorCount),
		slog.Int("max_consecutive_errors", b.cfg.MaxConsecutiveErrors),
		slog.String("error", message))

	if b.errorCount >= b.cfg.MaxConsecutiveErrors {
		b.tripLocked(fmt.Sprintf("too many consecutive errors: %d", b.errorCount))
	}
}

// Position returns the tracked position for a market.
func (b *Breaker) Position(marketID string) (domain.Position, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.positions[marketID]
	return p, ok
}

// Positions lists every tracked position, ordered by market.
func (b *Breaker) Positions() []domain.Position {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.Position, 0, len(b.positions))
	for _, p := range b.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MarketID < out[j].MarketID })
	return out
}

// UnrealizedPnL sums unrealized P&L across every tracked position.
func (b *Breaker) UnrealizedPnL() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	var total float64
	for _, p := range b.positions {
		total += p.UnrealizedPnLUSD
	}
	return total
}

// DailyMetrics returns today's tally, rolling to a fresh record when the
// UTC date has changed since the last touch.
func (b *Breaker) DailyMetrics() domain.DailyMetrics {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollLocked()
	return b.daily
}

// Status summarizes the breaker for the API and broadcast snapshots.
func (b *Breaker) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshLocked()
	b.rollLocked()

	st := Status{
		State:                 b.state,
		CanTrade:              b.state == StateClosed || b.state == StateHalfOpen,
		ErrorCount:            b.errorCount,
		ConsecutiveErrors:     b.daily.ConsecutiveErrors,
		DailyPnLUSD:           b.daily.TotalPnLUSD,
		DailyLossRemainingUSD: b.cfg.MaxDailyLossUSD - abs(b.daily.TotalPnLUSD),
		TotalPositions:        len(b.positions),
	}
	if !b.trippedAt.IsZero() {
		t := b.trippedAt
		st.TrippedAt = &t
	}
	return st
}

// Config returns the limits the breaker was built with.
func (b *Breaker) Config() Config {
	return b.cfg
}

// ManualReset forces the breaker back to closed and clears the counters.
func (b *Breaker) ManualReset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logger.Warn("manual reset requested")
	b.state = StateClosed
	b.errorCount = 0
	b.trippedAt = time.Time{}
	b.daily.ConsecutiveErrors = 0
	metrics.SetBreakerState(string(b.state))
}

// ManualTrip forces the breaker open.
func (b *Breaker) ManualTrip(reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logger.Warn("manual trip requested", slog.String("reason", reason))
	b.tripLocked("manual: " + reason)
}

// refreshLocked applies lazy state transitions. Callers must hold mu.
func (b *Breaker) refreshLocked() {
	if b.state == StateHalfOpen && b.canResetLocked() {
		b.state = StateClosed
		b.errorCount = 0
		b.trippedAt = time.Time{}
		metrics.SetBreakerState(string(b.state))
		b.logger.Info("state transition", slog.String("from", "half_open"), slog.String("to", "closed"))
	}

	if b.state == StateOpen && !b.trippedAt.IsZero() && b.now().Sub(b.trippedAt) > b.cfg.ErrorCooldown {
		b.state = StateHalfOpen
		// Halve rather than zero the error count: a half-open breaker
		// re-trips faster than a fresh one.
		b.errorCount = b.errorCount / 2
		if b.errorCount < 1 {
			b.errorCount = 1
		}
		metrics.SetBreakerState(string(b.state))
		b.logger.Info("state transition", slog.String("from", "open"), slog.String("to", "half_open"))
	}
}

func (b *Breaker) canResetLocked() bool {
	return b.errorCount == 0 &&
		b.daily.ConsecutiveErrors < b.cfg.MaxConsecutiveErrors &&
		b.daily.TotalPnLUSD > -b.cfg.MaxDailyLossUSD
}

func (b *Breaker) tripLocked(reason string) {
	b.state = StateOpen
	b.trippedAt = b.now()
	metrics.SetBreakerState(string(b.state))
	b.logger.Error("circuit breaker tripped", slog.String("reason", reason))
}

// rollLocked resets the daily tally when the UTC date changes.
func (b *Breaker) rollLocked() {
	if today := b.today(); b.daily.Date != today {
		b.daily = freshDaily(today)
		b.logger.Info("daily metrics rolled", slog.String("date", today))
	}
}

func (b *Breaker) today() string {
	return b.now().UTC().Format("2006-01-02")
}

func (b *Breaker) totalExposureLocked() float64 {
	var total float64
	for _, p := range b.positions {
		total += p.Quantity
	}
	for _, r := range b.reserved {
		total += r
	}
	return total
}

func freshDaily(date string) domain.DailyMetrics {
	return domain.DailyMetrics{Date: date}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
