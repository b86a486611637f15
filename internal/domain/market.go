package domain

import "time"

// Strategy identifies one of the arbitrage detection strategies.
type Strategy string

const (
	StrategySingleMarket  Strategy = "single_market"
	StrategyMultiOutcome  Strategy = "multi_outcome"
	StrategyThreeWay      Strategy = "three_way"
	StrategyCrossPlatform Strategy = "cross_platform"
)

// Strategies lists every known strategy in evaluation order.
func Strategies() []Strategy {
	return []Strategy{
		StrategySingleMarket,
		StrategyMultiOutcome,
		StrategyThreeWay,
		StrategyCrossPlatform,
	}
}

// SingleMarket is a binary market quoted on one venue. Prices are in cents
// (0-99); two complementary legs summing to 100 represent fair value.
type SingleMarket struct {
	ConditionID   string  `json:"condition_id"`
	Question      string  `json:"question"`
	YesPriceCents float64 `json:"yes_price_cents"`
	NoPriceCents  float64 `json:"no_price_cents"`
	LiquidityUSD  float64 `json:"liquidity_usd"`
}

// OutcomePrice is one leg of a multi-outcome market.
type OutcomePrice struct {
	Name          string  `json:"name"`
	YesPriceCents float64 `json:"yes_price_cents"`
	LiquidityUSD  float64 `json:"liquidity_usd"`
}

// MultiOutcomeMarket is a market with three or more mutually exclusive
// outcomes (elections, tournaments). The YES prices of all outcomes sum to
// 100 cents in an efficient market.
type MultiOutcomeMarket struct {
	ConditionID string         `json:"condition_id"`
	Question    string         `json:"question"`
	Category    string         `json:"category"`
	Outcomes    []OutcomePrice `json:"outcomes"`
}

// OutcomeQuote carries both sides of one outcome in a three-way market.
type OutcomeQuote struct {
	YesPriceCents float64 `json:"yes_price_cents"`
	NoPriceCents  float64 `json:"no_price_cents"`
}

// ThreeWayMarket is a sports-style market with home/away/draw outcomes.
type ThreeWayMarket struct {
	ConditionID  string       `json:"condition_id"`
	Question     string       `json:"question"`
	Home         OutcomeQuote `json:"home"`
	Away         OutcomeQuote `json:"away"`
	Draw         OutcomeQuote `json:"draw"`
	LiquidityUSD float64      `json:"liquidity_usd"`
}

// CrossPlatformPair joins two instruments that represent the same economic
// event on different venues. Either Limitless leg may be absent when that
// venue has no matching quote; detectors only evaluate feasible legs.
type CrossPlatformPair struct {
	PolymarketMarketID    string   `json:"polymarket_market_id"`
	PolymarketQuestion    string   `json:"polymarket_question"`
	PolyYesCents          float64  `json:"poly_yes_cents"`
	PolyNoCents           float64  `json:"poly_no_cents"`
	LimitlessPool         string   `json:"limitless_pool"`
	LimitlessYesCents     *float64 `json:"limitless_yes_cents,omitempty"`
	LimitlessNoCents      *float64 `json:"limitless_no_cents,omitempty"`
	PolyLiquidityUSD      float64  `json:"poly_liquidity_usd"`
	LimitlessLiquidityUSD float64  `json:"limitless_liquidity_usd"`
}

// PriceSnapshot is the latest known quote for one instrument on one venue.
// Mutated only by cache updates; read-only to detectors. Staleness is
// derived from UpdatedAt, never stored.
type PriceSnapshot struct {
	Venue         string    `json:"venue"`
	InstrumentID  string    `json:"instrument_id"`
	Question      string    `json:"question,omitempty"`
	YesPriceCents float64   `json:"yes_price_cents"`
	NoPriceCents  float64   `json:"no_price_cents"`
	LiquidityUSD  float64   `json:"liquidity_usd"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Age returns how old the snapshot is relative to now.
func (s PriceSnapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.UpdatedAt)
}
