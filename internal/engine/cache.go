package engine

import (
	"sync"
	"time"

	"github.com/oddslab/arbscan/internal/domain"
	"github.com/oddslab/arbscan/internal/metrics"
)

type multiOutcomeEntry struct {
	market    domain.MultiOutcomeMarket
	updatedAt time.Time
}

type threeWayEntry struct {
	market    domain.ThreeWayMarket
	updatedAt time.Time
}

// cache is the engine-owned market data store. Venue adapters write through
// the engine's update methods at arbitrary frequency; the scan loop reads
// typed snapshots filtered by age. One mutex guards every map.
type cache struct {
	now func() time.Time

	mu         sync.RWMutex
	polymarket map[string]domain.PriceSnapshot
	limitless  map[string]domain.PriceSnapshot
	books      map[string]domain.OrderBook
	mappings   map[string]string // polymarket market -> limitless pool
	multi      map[string]multiOutcomeEntry
	threeWay   map[string]threeWayEntry
}

func newCache(now func() time.Time) *cache {
	return &cache{
		now:        now,
		polymarket: make(map[string]domain.PriceSnapshot),
		limitless:  make(map[string]domain.PriceSnapshot),
		books:      make(map[string]domain.OrderBook),
		mappings:   make(map[string]string),
		multi:      make(map[string]multiOutcomeEntry),
		threeWay:   make(map[string]threeWayEntry),
	}
}

func (c *cache) updatePolymarketPrice(marketID string, yesCents, noCents float64, question string, liquidityUSD float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.polymarket[marketID] = domain.PriceSnapshot{
		Venue:         "polymarket",
		InstrumentID:  marketID,
		Question:      question,
		YesPriceCents: yesCents,
		NoPriceCents:  noCents,
		LiquidityUSD:  liquidityUSD,
		UpdatedAt:     c.now(),
	}
}

// updateLimitlessPrice stores a Limitless quote. A zero price on either
// side means that side is not quoted; cross-platform pairs carry the
// missing leg as absent.
func (c *cache) updateLimitlessPrice(pool string, yesCents, noCents float64, pair string, liquidityUSD float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.limitless[pool] = domain.PriceSnapshot{
		Venue:         "limitless",
		InstrumentID:  pool,
		Question:      pair,
		YesPriceCents: yesCents,
		NoPriceCents:  noCents,
		LiquidityUSD:  liquidityUSD,
		UpdatedAt:     c.now(),
	}
}

func (c *cache) updateOrderBook(marketID string, bids, asks []domain.PriceLevel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.books[marketID] = domain.OrderBook{
		MarketID:  marketID,
		Bids:      bids,
		Asks:      asks,
		UpdatedAt: c.now(),
	}
}

func (c *cache) addMapping(polymarketID, limitlessPool string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mappings[polymarketID] = limitlessPool
}

func (c *cache) registerMultiOutcome(m domain.MultiOutcomeMarket) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.multi[m.ConditionID] = multiOutcomeEntry{market: m, updatedAt: c.now()}
}

func (c *cache) registerThreeWay(m domain.ThreeWayMarket) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.threeWay[m.ConditionID] = threeWayEntry{market: m, updatedAt: c.now()}
}

func (c *cache) orderBook(marketID string) (domain.OrderBook, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	book, ok := c.books[marketID]
	return book, ok
}

// yesPrices returns the latest Polymarket yes price per market, for
// pre-execution revalidation.
func (c *cache) yesPrices() map[string]float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]float64, len(c.polymarket))
	for id, snap := range c.polymarket {
		out[id] = snap.YesPriceCents
	}
	return out
}

// singleMarkets builds the single-market detector inputs. One-sided quotes
// cannot price a round lot and are skipped like stale data.
func (c *cache) singleMarkets(staleBefore time.Time) []domain.SingleMarket {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.SingleMarket, 0, len(c.polymarket))
	skipped := 0
	for id, snap := range c.polymarket {
		if snap.UpdatedAt.Before(staleBefore) {
			skipped++
			continue
		}
		if snap.YesPriceCents <= 0 || snap.NoPriceCents <= 0 {
			continue
		}
		out = append(out, domain.SingleMarket{
			ConditionID:   id,
			Question:      snap.Question,
			YesPriceCents: snap.YesPriceCents,
			NoPriceCents:  snap.NoPriceCents,
			LiquidityUSD:  snap.LiquidityUSD,
		})
	}
	countStale(skipped)
	return out
}

func (c *cache) multiOutcomeMarkets(staleBefore time.Time) []domain.MultiOutcomeMarket {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.MultiOutcomeMarket, 0, len(c.multi))
	skipped := 0
	for _, entry := range c.multi {
		if entry.updatedAt.Before(staleBefore) {
			skipped++
			continue
		}
		if !allOutcomesQuoted(entry.market) {
			continue
		}
		out = append(out, entry.market)
	}
	countStale(skipped)
	return out
}

func (c *cache) threeWayMarkets(staleBefore time.Time) []domain.ThreeWayMarket {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.ThreeWayMarket, 0, len(c.threeWay))
	skipped := 0
	for _, entry := range c.threeWay {
		if entry.updatedAt.Before(staleBefore) {
			skipped++
			continue
		}
		m := entry.market
		if m.Home.YesPriceCents <= 0 || m.Home.NoPriceCents <= 0 ||
			m.Away.YesPriceCents <= 0 || m.Away.NoPriceCents <= 0 ||
			m.Draw.YesPriceCents <= 0 {
			continue
		}
		out = append(out, m)
	}
	countStale(skipped)
	return out
}

// crossPairs joins mapped instruments whose snapshots are fresh on both
// venues. A pair is only built when the Polymarket side quotes both legs.
func (c *cache) crossPairs(staleBefore time.Time) []domain.CrossPlatformPair {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.CrossPlatformPair, 0, len(c.mappings))
	skipped := 0
	for polyID, pool := range c.mappings {
		poly, ok := c.polymarket[polyID]
		if !ok {
			continue
		}
		lim, ok := c.limitless[pool]
		if !ok {
			continue
		}
		if poly.UpdatedAt.Before(staleBefore) || lim.UpdatedAt.Before(staleBefore) {
			skipped++
			continue
		}
		if poly.YesPriceCents <= 0 || poly.NoPriceCents <= 0 {
			continue
		}

		pair := domain.CrossPlatformPair{
			PolymarketMarketID:    polyID,
			PolymarketQuestion:    poly.Question,
			PolyYesCents:          poly.YesPriceCents,
			PolyNoCents:           poly.NoPriceCents,
			LimitlessPool:         pool,
			PolyLiquidityUSD:      poly.LiquidityUSD,
			LimitlessLiquidityUSD: lim.LiquidityUSD,
		}
		if lim.YesPriceCents > 0 {
			v := lim.YesPriceCents
			pair.LimitlessYesCents = &v
		}
		if lim.NoPriceCents > 0 {
			v := lim.NoPriceCents
			pair.LimitlessNoCents = &v
		}
		out = append(out, pair)
	}
	countStale(skipped)
	return out
}

type cacheCounts struct {
	polymarket int
	limitless  int
	books      int
	mappings   int
	multi      int
	threeWay   int
}

func (c *cache) counts() cacheCounts {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cacheCounts{
		polymarket: len(c.polymarket),
		limitless:  len(c.limitless),
		books:      len(c.books),
		mappings:   len(c.mappings),
		multi:      len(c.multi),
		threeWay:   len(c.threeWay),
	}
}

func allOutcomesQuoted(m domain.MultiOutcomeMarket) bool {
	for _, o := range m.Outcomes {
		if o.YesPriceCents <= 0 {
			return false
		}
	}
	return true
}

func countStale(n int) {
	if n > 0 {
		metrics.StaleSnapshotsSkipped.Add(float64(n))
	}
}
