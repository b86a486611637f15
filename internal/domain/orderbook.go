package domain

import "time"

// PriceLevel is a single price+size entry in an order book. Price is in
// cents, size in units (dollars of notional at $1 settlement).
type PriceLevel struct {
	PriceCents float64 `json:"price_cents"`
	Size       float64 `json:"size"`
}

// OrderBook is the latest L2 depth for one instrument, best-first on both
// sides (bids descending, asks ascending).
type OrderBook struct {
	MarketID  string       `json:"market_id"`
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// BestBid returns the top-of-book bid price, or 0 when the side is empty.
func (b OrderBook) BestBid() float64 {
	if len(b.Bids) == 0 {
		return 0
	}
	return b.Bids[0].PriceCents
}

// BestAsk returns the top-of-book ask price, or 0 when the side is empty.
func (b OrderBook) BestAsk() float64 {
	if len(b.Asks) == 0 {
		return 0
	}
	return b.Asks[0].PriceCents
}

// SpreadCents returns the bid/ask spread, or 0 when either side is empty.
func (b OrderBook) SpreadCents() float64 {
	if len(b.Bids) == 0 || len(b.Asks) == 0 {
		return 0
	}
	return b.Asks[0].PriceCents - b.Bids[0].PriceCents
}

// VWAPResult is the outcome of walking an order book for a target size.
// Value object: no identity, recomputed per call.
type VWAPResult struct {
	OptimalSizeUSD    float64 `json:"optimal_size_usd"`
	VWAPCents         float64 `json:"vwap_cents"`
	SlippageCents     float64 `json:"slippage_cents"`
	TotalLiquidityUSD float64 `json:"total_liquidity_usd"`
	LevelsUsed        int     `json:"levels_used"`
	ExecutionCostUSD  float64 `json:"execution_cost_usd"`
}

// ArbitrageVWAP sizes both legs of an arbitrage trade together. The
// combined size is bounded by the thinner leg and slippage accumulates
// across legs.
type ArbitrageVWAP struct {
	YesLeg                 VWAPResult `json:"yes_leg"`
	NoLeg                  VWAPResult `json:"no_leg"`
	CombinedOptimalSizeUSD float64    `json:"combined_optimal_size_usd"`
	TotalSlippageCents     float64    `json:"total_slippage_cents"`
	CanExecute             bool       `json:"can_execute"`
}

// BookValidation reports order book data-quality checks.
type BookValidation struct {
	Valid        bool     `json:"valid"`
	Fresh        bool     `json:"fresh"`
	HasLiquidity bool     `json:"has_liquidity"`
	Issues       []string `json:"issues,omitempty"`
}
