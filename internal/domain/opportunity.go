package domain

import "time"

// Direction describes which venue combination an opportunity trades.
type Direction string

const (
	DirectionPolyInternal    Direction = "poly_internal"
	DirectionPolyToLimitless Direction = "poly_to_limitless"
	DirectionLimitlessToPoly Direction = "limitless_to_poly"
)

// OpportunityStatus is the lifecycle state of an opportunity.
type OpportunityStatus string

const (
	OpportunityActive  OpportunityStatus = "active"
	OpportunityExpired OpportunityStatus = "expired"
	OpportunityClosed  OpportunityStatus = "closed"
)

// Opportunity is a detected arbitrage. Identity for deduplication is Key
// (strategy:marketID); ID is unique per emission. An opportunity is
// superseded, never mutated, when its spread moves beyond the engine's
// update threshold. NetProfitUSD is strictly positive at creation.
type Opportunity struct {
	ID       string   `json:"id"`
	Key      string   `json:"key"`
	Strategy Strategy `json:"strategy"`

	MarketID string `json:"market_id"`
	Question string `json:"question,omitempty"`

	Direction Direction `json:"direction"`
	Action    string    `json:"action"`

	YesPriceCents       float64 `json:"yes_price_cents"`
	NoPriceCents        float64 `json:"no_price_cents"`
	LimitlessPriceCents float64 `json:"limitless_price_cents,omitempty"`

	SpreadCents           float64 `json:"spread_cents"`
	GrossProfitCents      float64 `json:"gross_profit_cents"`
	EstimatedFeesCents    float64 `json:"estimated_fees_cents"`
	NetProfitCents        float64 `json:"net_profit_cents"`
	NetProfitUSD          float64 `json:"net_profit_usd"`
	MinSizeUSD            float64 `json:"min_size_usd"`
	MaxSizeUSD            float64 `json:"max_size_usd"`
	AvailableLiquidityUSD float64 `json:"available_liquidity_usd"`
	SlippageEstimateCents float64 `json:"slippage_estimate_cents"`

	Confidence float64 `json:"confidence"` // 0-1
	RiskScore  int     `json:"risk_score"` // 1-10, lower is safer

	DiscoveredAt  time.Time         `json:"discovered_at"`
	TimeSensitive bool              `json:"time_sensitive"`
	Status        OpportunityStatus `json:"status"`
}

// NetProfitPct is the net profit as a percentage of a $100 round lot. With
// cents-basis pricing the two coincide numerically.
func (o Opportunity) NetProfitPct() float64 {
	return o.NetProfitCents
}
