// Package execution sizes orders against L2 order book depth. The
// calculator walks the book level by level, assumes only a fraction of
// displayed liquidity is real, and reports the largest size that stays
// within the slippage tolerance.
package execution

import (
	"fmt"
	"math"
	"time"

	"github.com/oddslab/arbscan/internal/domain"
)

// Config tunes the order book walk.
type Config struct {
	// LiquidityFactor is the fraction of displayed size treated as fillable.
	LiquidityFactor float64
	// MaxSlippageCents bounds acceptable VWAP drift from top of book.
	MaxSlippageCents float64
	// MaxDepth is how many levels deep the walk goes.
	MaxDepth int
	// MinLiquidityUSD is the smallest combined size worth executing.
	MinLiquidityUSD float64
}

// DefaultConfig returns the standard conservative walk parameters.
func DefaultConfig() Config {
	return Config{
		LiquidityFactor:  0.5,
		MaxSlippageCents: 2,
		MaxDepth:         5,
		MinLiquidityUSD:  50,
	}
}

// Calculator computes VWAP-based sizing over order books. Stateless; safe
// for concurrent use.
type Calculator struct {
	cfg Config
}

// NewCalculator builds a calculator, filling zero-valued config fields
// with defaults.
func NewCalculator(cfg Config) *Calculator {
	def := DefaultConfig()
	if cfg.LiquidityFactor <= 0 {
		cfg.LiquidityFactor = def.LiquidityFactor
	}
	if cfg.MaxSlippageCents <= 0 {
		cfg.MaxSlippageCents = def.MaxSlippageCents
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = def.MaxDepth
	}
	if cfg.MinLiquidityUSD <= 0 {
		cfg.MinLiquidityUSD = def.MinLiquidityUSD
	}
	return &Calculator{cfg: cfg}
}

// BuyVWAP walks up the ask side for a buy of targetUSD. Slippage is the
// VWAP's drift above the best ask.
func (c *Calculator) BuyVWAP(book domain.OrderBook, targetUSD float64) domain.VWAPResult {
	return c.walk(book.Asks, targetUSD, false)
}

// SellVWAP walks down the bid side for a sell of targetUSD. Slippage is
// the VWAP's drift below the best bid.
func (c *Calculator) SellVWAP(book domain.OrderBook, targetUSD float64) domain.VWAPResult {
	return c.walk(book.Bids, targetUSD, true)
}

// walk accumulates levels best-first until slippage leaves tolerance,
// then sizes the order against the deepest valid level. The walk discounts
// every level by the liquidity factor before accumulating.
func (c *Calculator) walk(levels []domain.PriceLevel, targetUSD float64, sell bool) domain.VWAPResult {
	if len(levels) == 0 || levels[0].PriceCents == 0 {
		return domain.VWAPResult{}
	}
	best := levels[0].PriceCents

	depth := len(levels)
	if depth > c.cfg.MaxDepth {
		depth = c.cfg.MaxDepth
	}

	var (
		cumSize  float64
		cumCost  float64
		validIdx = -1

		validSize     float64
		validVWAP     float64
		validSlippage float64
	)
	for i := 0; i < depth; i++ {
		size := levels[i].Size * c.cfg.LiquidityFactor
		cumSize += size
		cumCost += levels[i].PriceCents * size
		if cumSize == 0 {
			continue
		}

		vwap := cumCost / cumSize
		slippage := vwap - best
		if sell {
			slippage = best - vwap
		}
		if slippage <= c.cfg.MaxSlippageCents {
			validIdx = i
			validSize = cumSize
			validVWAP = vwap
			validSlippage = slippage
		}
	}

	if validIdx < 0 {
		// Even the top of book breaches tolerance; report the best price
		// and zero executable size.
		return domain.VWAPResult{VWAPCents: best}
	}

	optimal := math.Min(validSize, targetUSD)

	return domain.VWAPResult{
		OptimalSizeUSD:    optimal,
		VWAPCents:         roundTenth(validVWAP),
		SlippageCents:     roundTenth(validSlippage),
		TotalLiquidityUSD: validSize,
		LevelsUsed:        validIdx + 1,
		ExecutionCostUSD:  optimal * validVWAP / 100,
	}
}

// ArbitrageVWAP sizes both legs of a two-leg arbitrage together. Both legs
// are buys; the combined size is bounded by the thinner leg and the legs'
// slippages accumulate.
func (c *Calculator) ArbitrageVWAP(yesBook, noBook domain.OrderBook, targetUSD float64) domain.ArbitrageVWAP {
	yesLeg := c.BuyVWAP(yesBook, targetUSD)
	noLeg := c.BuyVWAP(noBook, targetUSD)

	combined := math.Min(yesLeg.OptimalSizeUSD, noLeg.OptimalSizeUSD)
	totalSlippage := yesLeg.SlippageCents + noLeg.SlippageCents

	return domain.ArbitrageVWAP{
		YesLeg:                 yesLeg,
		NoLeg:                  noLeg,
		CombinedOptimalSizeUSD: combined,
		TotalSlippageCents:     totalSlippage,
		CanExecute:             combined >= c.cfg.MinLiquidityUSD && totalSlippage <= c.cfg.MaxSlippageCents*2,
	}
}

// PriceImpact estimates the slippage of executing sizeUSD in one direction.
func (c *Calculator) PriceImpact(book domain.OrderBook, sizeUSD float64, buy bool) float64 {
	if buy {
		return c.BuyVWAP(book, sizeUSD).SlippageCents
	}
	return c.SellVWAP(book, sizeUSD).SlippageCents
}

// Imbalance scores book pressure over the top depth levels, from -1 (all
// asks) to +1 (all bids). An empty book scores 0.
func Imbalance(book domain.OrderBook, depth int) float64 {
	var bidLiquidity, askLiquidity float64
	for i := 0; i < depth && i < len(book.Bids); i++ {
		bidLiquidity += book.Bids[i].Size
	}
	for i := 0; i < depth && i < len(book.Asks); i++ {
		askLiquidity += book.Asks[i].Size
	}
	if bidLiquidity+askLiquidity == 0 {
		return 0
	}
	return (bidLiquidity - askLiquidity) / (bidLiquidity + askLiquidity)
}

// TotalLiquidity sums displayed size on both sides down to depth levels.
func TotalLiquidity(book domain.OrderBook, depth int) float64 {
	var total float64
	for i := 0; i < depth && i < len(book.Bids); i++ {
		total += book.Bids[i].Size
	}
	for i := 0; i < depth && i < len(book.Asks); i++ {
		total += book.Asks[i].Size
	}
	return total
}

// ValidateBook checks an order book for staleness, thin liquidity, and
// zero prices before it is trusted for sizing.
func (c *Calculator) ValidateBook(book domain.OrderBook, maxAge time.Duration, now time.Time) domain.BookValidation {
	var issues []string

	age := now.Sub(book.UpdatedAt)
	fresh := age < maxAge
	if !fresh {
		issues = append(issues, fmt.Sprintf("order book is stale: %.1fs old", age.Seconds()))
	}

	total := TotalLiquidity(book, c.cfg.MaxDepth)
	hasLiquidity := total >= c.cfg.MinLiquidityUSD
	if !hasLiquidity {
		issues = append(issues, fmt.Sprintf("insufficient liquidity: $%.2f", total))
	}

	validPrices := true
	if len(book.Bids) > 0 && book.Bids[0].PriceCents == 0 {
		validPrices = false
		issues = append(issues, "best bid price is 0")
	}
	if len(book.Asks) > 0 && book.Asks[0].PriceCents == 0 {
		validPrices = false
		issues = append(issues, "best ask price is 0")
	}

	return domain.BookValidation{
		Valid:        fresh && hasLiquidity && validPrices,
		Fresh:        fresh,
		HasLiquidity: hasLiquidity,
		Issues:       issues,
	}
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}
