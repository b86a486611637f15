// Package strategy implements the four arbitrage detectors as pure
// functions over cents-denominated prices. All detectors share the same
// contract: compute the total cost of the position including fees and emit
// an opportunity iff total_cost < 100 strictly; profit is 100 - total_cost.
// Detectors never emit non-profitable opportunities.
package strategy

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/oddslab/arbscan/internal/domain"
)

// DetectSingleMarket checks a binary market for YES + NO + fees < 100.
// Both legs trade on the same book, so this carries the lowest risk score
// and the highest confidence of the four strategies.
func DetectSingleMarket(m domain.SingleMarket, feesCents float64, now time.Time) *domain.Opportunity {
	totalCost := m.YesPriceCents + m.NoPriceCents + feesCents
	if totalCost >= 100 {
		return nil
	}
	profitCents := 100 - totalCost

	return &domain.Opportunity{
		ID:       uuid.Must(uuid.NewRandom()).String(),
		Key:      Key(domain.StrategySingleMarket, m.ConditionID),
		Strategy: domain.StrategySingleMarket,

		MarketID: m.ConditionID,
		Question: m.Question,

		Direction: domain.DirectionPolyInternal,
		Action:    "buy_both",

		YesPriceCents: m.YesPriceCents,
		NoPriceCents:  m.NoPriceCents,

		SpreadCents:           profitCents,
		GrossProfitCents:      profitCents,
		EstimatedFeesCents:    feesCents,
		NetProfitCents:        profitCents,
		NetProfitUSD:          profitCents / 100,
		MinSizeUSD:            10,
		MaxSizeUSD:            m.LiquidityUSD * 0.5,
		AvailableLiquidityUSD: m.LiquidityUSD,
		SlippageEstimateCents: 0.1,

		Confidence: 0.95,
		RiskScore:  1,

		DiscoveredAt:  now,
		TimeSensitive: true,
		Status:        domain.OpportunityActive,
	}
}

// Key builds the deduplication identity for an opportunity. Two scans of
// the same market with the same strategy produce the same key.
func Key(s domain.Strategy, marketID string) string {
	return fmt.Sprintf("%s:%s", s, marketID)
}
