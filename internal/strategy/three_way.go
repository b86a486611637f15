package strategy

import (
	"time"

	"github.com/google/uuid"

	"github.com/oddslab/arbscan/internal/domain"
)

// DetectThreeWay checks a home/away/draw market. Two combinations cover
// the outcome space: home YES + away NO + draw YES, and away YES + home NO
// + draw YES. The cheaper combination is evaluated against the 100-cent
// boundary. Cross-leg correlation keeps the risk score fixed at 6.
func DetectThreeWay(m domain.ThreeWayMarket, feesCents float64, now time.Time) *domain.Opportunity {
	option1 := m.Home.YesPriceCents + m.Away.NoPriceCents + m.Draw.YesPriceCents
	option2 := m.Away.YesPriceCents + m.Home.NoPriceCents + m.Draw.YesPriceCents

	var (
		bestCost float64
		action   string
		yesPrice float64
		noPrice  float64
	)
	if option1 < option2 {
		bestCost = option1
		action = "buy_home_yes_away_no"
		yesPrice = m.Home.YesPriceCents
		noPrice = m.Away.NoPriceCents
	} else {
		bestCost = option2
		action = "buy_away_yes_home_no"
		yesPrice = m.Away.YesPriceCents
		noPrice = m.Home.NoPriceCents
	}

	totalCost := bestCost + feesCents
	if totalCost >= 100 {
		return nil
	}
	profitCents := 100 - totalCost

	return &domain.Opportunity{
		ID:       uuid.Must(uuid.NewRandom()).String(),
		Key:      Key(domain.StrategyThreeWay, m.ConditionID),
		Strategy: domain.StrategyThreeWay,

		MarketID: m.ConditionID,
		Question: m.Question,

		Direction: domain.DirectionPolyInternal,
		Action:    action,

		YesPriceCents: yesPrice,
		NoPriceCents:  noPrice,

		SpreadCents:           profitCents,
		GrossProfitCents:      profitCents,
		EstimatedFeesCents:    feesCents,
		NetProfitCents:        profitCents,
		NetProfitUSD:          profitCents / 100,
		MinSizeUSD:            25,
		MaxSizeUSD:            m.LiquidityUSD * 0.4,
		AvailableLiquidityUSD: m.LiquidityUSD,
		SlippageEstimateCents: 0.3,

		Confidence: 0.7,
		RiskScore:  6,

		DiscoveredAt:  now,
		TimeSensitive: true,
		Status:        domain.OpportunityActive,
	}
}
