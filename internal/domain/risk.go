package domain

import "time"

// Position is open exposure in one market. Created on the first successful
// trade, updated on subsequent fills; its lifecycle is owned by the risk
// gate's caller.
type Position struct {
	ID                 string    `json:"id"`
	MarketID           string    `json:"market_id"`
	Quantity           float64   `json:"quantity"` // USD notional
	AvgEntryPriceCents float64   `json:"avg_entry_price_cents"`
	UnrealizedPnLUSD   float64   `json:"unrealized_pnl_usd"`
	OpenedAt           time.Time `json:"opened_at"`
}

// DailyMetrics accumulates trading results for one UTC calendar day. The
// record is replaced wholesale at day rollover; all mutation is
// append/increment, never retroactive edit.
type DailyMetrics struct {
	Date              string  `json:"date"` // UTC YYYY-MM-DD
	TotalTrades       int     `json:"total_trades"`
	SuccessfulTrades  int     `json:"successful_trades"`
	FailedTrades      int     `json:"failed_trades"`
	TotalPnLUSD       float64 `json:"total_pnl_usd"`
	MaxDrawdownUSD    float64 `json:"max_drawdown_usd"`
	ConsecutiveErrors int     `json:"consecutive_errors"`
	TotalGasSpentUSD  float64 `json:"total_gas_spent_usd"`
}

// TradeResult reports the outcome of an executed trade back to the risk
// gate, closing its feedback loop.
type TradeResult struct {
	Success      bool      `json:"success"`
	Position     *Position `json:"position,omitempty"`
	GasCostUSD   float64   `json:"gas_cost_usd"`
	ErrorMessage string    `json:"error_message,omitempty"`
}

// ValidationResult is the risk gate's answer to a proposed trade. A
// rejection is a normal outcome, never an error.
type ValidationResult struct {
	CanExecute bool   `json:"can_execute"`
	Reason     string `json:"reason,omitempty"`
}
