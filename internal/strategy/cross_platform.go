package strategy

import (
	"time"

	"github.com/google/uuid"

	"github.com/oddslab/arbscan/internal/domain"
)

// DetectCrossPlatform checks a mapped pair for the two legal venue
// combinations: Polymarket YES + Limitless NO, and Limitless YES +
// Polymarket NO. A combination is only evaluated when the Limitless side
// has a quote. The more profitable feasible combination wins. The
// liquidity bound is the thinner venue.
func DetectCrossPlatform(p domain.CrossPlatformPair, feesCents float64, now time.Time) *domain.Opportunity {
	minLiquidity := p.PolyLiquidityUSD
	if p.LimitlessLiquidityUSD < minLiquidity {
		minLiquidity = p.LimitlessLiquidityUSD
	}

	var best *domain.Opportunity

	if p.LimitlessNoCents != nil {
		cost := p.PolyYesCents + *p.LimitlessNoCents + feesCents
		if cost < 100 {
			profitCents := 100 - cost
			best = crossOpportunity(p, profitCents, feesCents, minLiquidity, now)
			best.Direction = domain.DirectionPolyToLimitless
			best.Action = "buy_poly_yes_limitless_no"
			best.YesPriceCents = p.PolyYesCents
			best.LimitlessPriceCents = *p.LimitlessNoCents
		}
	}

	if p.LimitlessYesCents != nil {
		cost := *p.LimitlessYesCents + p.PolyNoCents + feesCents
		if cost < 100 {
			profitCents := 100 - cost
			if best == nil || profitCents > best.NetProfitCents {
				best = crossOpportunity(p, profitCents, feesCents, minLiquidity, now)
				best.Direction = domain.DirectionLimitlessToPoly
				best.Action = "buy_limitless_yes_poly_no"
				best.NoPriceCents = p.PolyNoCents
				best.LimitlessPriceCents = *p.LimitlessYesCents
			}
		}
	}

	return best
}

// crossOpportunity fills the fields common to both cross-platform
// combinations.
func crossOpportunity(p domain.CrossPlatformPair, profitCents, feesCents, minLiquidity float64, now time.Time) *domain.Opportunity {
	return &domain.Opportunity{
		ID:       uuid.Must(uuid.NewRandom()).String(),
		Key:      Key(domain.StrategyCrossPlatform, p.PolymarketMarketID),
		Strategy: domain.StrategyCrossPlatform,

		MarketID: p.PolymarketMarketID,
		Question: p.PolymarketQuestion,

		SpreadCents:           profitCents,
		GrossProfitCents:      profitCents,
		EstimatedFeesCents:    feesCents,
		NetProfitCents:        profitCents,
		NetProfitUSD:          profitCents / 100,
		MinSizeUSD:            10,
		MaxSizeUSD:            minLiquidity * 0.5,
		AvailableLiquidityUSD: minLiquidity,
		SlippageEstimateCents: 0.15,

		Confidence: 0.85,
		RiskScore:  2,

		DiscoveredAt:  now,
		TimeSensitive: true,
		Status:        domain.OpportunityActive,
	}
}
