package strategy

import (
	"fmt"
	"math"
	"time"

	"github.com/oddslab/arbscan/internal/domain"
)

// Confidence scores an opportunity from its economics. Starting from a 0.5
// base: profit adds up to 0.3, log-scale liquidity adds up to 0.2, risk
// above the midpoint subtracts up to 0.3, and slippage beyond half a cent
// subtracts up to 0.2. The result is clamped to [0, 1].
func Confidence(profitCents, liquidityUSD float64, riskScore int, slippageCents float64) float64 {
	c := 0.5

	c += math.Min(0.3, profitCents*0.02)

	c += math.Min(0.2, math.Log10(math.Max(liquidityUSD, 1))*0.05)

	c += math.Max(-0.3, float64(5-riskScore)*0.05)

	c += math.Max(-0.2, (0.5-slippageCents)*0.2)

	return math.Max(0, math.Min(1, c))
}

// DefaultMaxOpportunityAge bounds how old an opportunity may be before a
// revalidation check rejects it.
const DefaultMaxOpportunityAge = 1000 * time.Millisecond

// Revalidate re-checks an opportunity immediately before downstream use.
// It rejects when the opportunity is older than maxAge, or when the
// tracked YES price has since moved by more than one percentage point.
// Markets without a current quote pass the price check unchanged.
func Revalidate(opp domain.Opportunity, currentYesCents map[string]float64, maxAge time.Duration, now time.Time) (bool, string) {
	if maxAge <= 0 {
		maxAge = DefaultMaxOpportunityAge
	}

	age := now.Sub(opp.DiscoveredAt)
	if age > maxAge {
		return false, fmt.Sprintf("opportunity is stale (%dms old)", age.Milliseconds())
	}

	if current, ok := currentYesCents[opp.MarketID]; ok {
		if diff := math.Abs(opp.YesPriceCents - current); diff > 1.0 {
			return false, fmt.Sprintf("price moved %.2f cents since discovery", diff)
		}
	}

	return true, ""
}
