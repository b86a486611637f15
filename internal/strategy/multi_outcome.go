package strategy

import (
	"time"

	"github.com/google/uuid"

	"github.com/oddslab/arbscan/internal/domain"
)

// DetectMultiOutcome checks a market with N >= 3 mutually exclusive
// outcomes for sum(YES prices) + fees < 100. The liquidity bound is the
// thinnest outcome; risk grows with the number of execution legs and
// confidence drops 5% per outcome.
func DetectMultiOutcome(m domain.MultiOutcomeMarket, feesCents float64, now time.Time) *domain.Opportunity {
	n := len(m.Outcomes)
	if n < 3 {
		return nil
	}

	var totalPriceCents float64
	minLiquidity := m.Outcomes[0].LiquidityUSD
	for _, o := range m.Outcomes {
		totalPriceCents += o.YesPriceCents
		if o.LiquidityUSD < minLiquidity {
			minLiquidity = o.LiquidityUSD
		}
	}

	totalCost := totalPriceCents + feesCents
	if totalCost >= 100 {
		return nil
	}
	profitCents := 100 - totalCost

	riskScore := n/2 + 1
	if riskScore > 10 {
		riskScore = 10
	}
	confidence := 1 - float64(n)*0.05
	if confidence < 0 {
		confidence = 0
	}

	return &domain.Opportunity{
		ID:       uuid.Must(uuid.NewRandom()).String(),
		Key:      Key(domain.StrategyMultiOutcome, m.ConditionID),
		Strategy: domain.StrategyMultiOutcome,

		MarketID: m.ConditionID,
		Question: m.Question,

		Direction: domain.DirectionPolyInternal,
		Action:    "buy_all_outcomes",

		YesPriceCents: totalPriceCents,

		SpreadCents:           profitCents,
		GrossProfitCents:      profitCents,
		EstimatedFeesCents:    feesCents,
		NetProfitCents:        profitCents,
		NetProfitUSD:          profitCents / 100,
		MinSizeUSD:            10,
		MaxSizeUSD:            minLiquidity * 0.5,
		AvailableLiquidityUSD: minLiquidity,
		SlippageEstimateCents: float64(n) * 0.1,

		Confidence: confidence,
		RiskScore:  riskScore,

		DiscoveredAt:  now,
		TimeSensitive: true,
		Status:        domain.OpportunityActive,
	}
}
