package engine

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/oddslab/arbscan/internal/domain"
	"github.com/oddslab/arbscan/internal/strategy"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func closeTo(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestEngine(t *testing.T) (*Engine, *fakeClock) {
	t.Helper()
	e, err := NewEngine(DefaultConfig(), strategy.NewRegistry(), nil, testLogger())
	if err != nil {
		t.Fatalf("NewEngine error: %v", err)
	}
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	e.now = clock.now
	return e, clock
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}

	cfg := DefaultConfig()
	cfg.ScanInterval = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for zero scan interval")
	}

	cfg = DefaultConfig()
	cfg.FeesCents = -1
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for negative fees")
	}
}

func TestScanDetectsSingleMarket(t *testing.T) {
	e, clock := newTestEngine(t)
	ctx := context.Background()

	e.UpdatePolymarketPrice("m1", 40, 55, "BTC above 100k by July?", 5000)

	if n := e.Scan(ctx); n != 1 {
		t.Fatalf("new opportunities got=%d want=%d", n, 1)
	}

	opps := e.Opportunities(Filter{})
	if len(opps) != 1 {
		t.Fatalf("opportunities got=%d want=%d", len(opps), 1)
	}
	opp := opps[0]
	if opp.Key != "single_market:m1" {
		t.Fatalf("Key got=%q want=%q", opp.Key, "single_market:m1")
	}
	// 40 + 55 + 3 fees = 98, so 2 cents of profit.
	if !closeTo(opp.NetProfitCents, 2) {
		t.Fatalf("NetProfitCents got=%v want=%v", opp.NetProfitCents, 2.0)
	}
	if opp.Status != domain.OpportunityActive {
		t.Fatalf("Status got=%s want=%s", opp.Status, domain.OpportunityActive)
	}

	sigs := e.Signals(10)
	if len(sigs) != 1 {
		t.Fatalf("signals got=%d want=%d", len(sigs), 1)
	}
	sig := sigs[0]
	if sig.OpportunityID != opp.ID {
		t.Fatalf("OpportunityID got=%q want=%q", sig.OpportunityID, opp.ID)
	}
	if sig.Strength != domain.SignalVeryStrong {
		t.Fatalf("Strength got=%s want=%s", sig.Strength, domain.SignalVeryStrong)
	}
	// Risk 1 and confidence 0.95 clear the execute bar; the opportunity is
	// time-sensitive so urgency is immediate.
	if sig.Recommendation != domain.RecommendExecute {
		t.Fatalf("Recommendation got=%s want=%s", sig.Recommendation, domain.RecommendExecute)
	}
	if sig.Urgency != domain.UrgencyImmediate {
		t.Fatalf("Urgency got=%s want=%s", sig.Urgency, domain.UrgencyImmediate)
	}
	if !closeTo(sig.ConfidenceScore, 95) {
		t.Fatalf("ConfidenceScore got=%v want=%v", sig.ConfidenceScore, 95.0)
	}
	if !closeTo(sig.StopLossPct, -1) {
		t.Fatalf("StopLossPct got=%v want=%v", sig.StopLossPct, -1.0)
	}
	if want := clock.t.Add(60 * time.Second); !sig.ValidUntil.Equal(want) {
		t.Fatalf("ValidUntil got=%v want=%v", sig.ValidUntil, want)
	}

	// Spread 2 meets the high-spread threshold, so exactly one alert.
	alerts := e.Alerts(true)
	if len(alerts) != 1 {
		t.Fatalf("alerts got=%d want=%d", len(alerts), 1)
	}
	if alerts[0].Priority != domain.AlertHigh {
		t.Fatalf("Priority got=%s want=%s", alerts[0].Priority, domain.AlertHigh)
	}
}

func TestScanDedup(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	e.UpdatePolymarketPrice("m1", 40, 55, "q", 5000)
	if n := e.Scan(ctx); n != 1 {
		t.Fatalf("first scan got=%d want=%d", n, 1)
	}

	// Unchanged snapshot: the second scan reports nothing new and emits no
	// duplicate signal or alert.
	if n := e.Scan(ctx); n != 0 {
		t.Fatalf("second scan got=%d want=%d", n, 0)
	}
	if got := len(e.Signals(10)); got != 1 {
		t.Fatalf("signals got=%d want=%d", got, 1)
	}
	if got := len(e.Alerts(false)); got != 1 {
		t.Fatalf("alerts got=%d want=%d", got, 1)
	}

	// Spread moves from 2 to 3 cents: the stored opportunity is superseded
	// but the key is not new, so still one signal.
	e.UpdatePolymarketPrice("m1", 39, 55, "q", 5000)
	if n := e.Scan(ctx); n != 0 {
		t.Fatalf("update scan got=%d want=%d", n, 0)
	}
	opps := e.Opportunities(Filter{})
	if len(opps) != 1 || !closeTo(opps[0].NetProfitCents, 3) {
		t.Fatalf("superseded NetProfitCents got=%v want=%v", opps[0].NetProfitCents, 3.0)
	}
	if got := len(e.Signals(10)); got != 1 {
		t.Fatalf("signals after update got=%d want=%d", got, 1)
	}

	// A move within the update threshold still refreshes the stored copy.
	e.UpdatePolymarketPrice("m1", 38.95, 55, "q", 5000)
	e.Scan(ctx)
	opps = e.Opportunities(Filter{})
	if !closeTo(opps[0].NetProfitCents, 3.05) {
		t.Fatalf("refreshed NetProfitCents got=%v want=%v", opps[0].NetProfitCents, 3.05)
	}
}

func TestScanSkipsStaleSnapshots(t *testing.T) {
	e, clock := newTestEngine(t)
	ctx := context.Background()

	e.UpdatePolymarketPrice("m1", 40, 55, "q", 5000)
	clock.advance(6 * time.Second)

	if n := e.Scan(ctx); n != 0 {
		t.Fatalf("scan got=%d want=%d", n, 0)
	}
	if got := len(e.Opportunities(Filter{})); got != 0 {
		t.Fatalf("opportunities got=%d want=%d", got, 0)
	}
}

func TestScanHonorsRegistry(t *testing.T) {
	reg := strategy.NewRegistry()
	reg.SetEnabled(domain.StrategySingleMarket, false)
	e, err := NewEngine(DefaultConfig(), reg, nil, testLogger())
	if err != nil {
		t.Fatalf("NewEngine error: %v", err)
	}

	e.UpdatePolymarketPrice("m1", 40, 55, "q", 5000)
	if n := e.Scan(context.Background()); n != 0 {
		t.Fatalf("scan with disabled strategy got=%d want=%d", n, 0)
	}
}

func TestOpportunityExpires(t *testing.T) {
	e, clock := newTestEngine(t)
	ctx := context.Background()

	e.UpdatePolymarketPrice("m1", 40, 55, "q", 5000)
	e.Scan(ctx)

	clock.advance(6 * time.Second)
	e.Scan(ctx)

	if got := len(e.Opportunities(Filter{})); got != 0 {
		t.Fatalf("active opportunities got=%d want=%d", got, 0)
	}
	all := e.Opportunities(Filter{IncludeInactive: true})
	if len(all) != 1 {
		t.Fatalf("all opportunities got=%d want=%d", len(all), 1)
	}
	if all[0].Status != domain.OpportunityExpired {
		t.Fatalf("Status got=%s want=%s", all[0].Status, domain.OpportunityExpired)
	}
	if got := e.Status().ActiveOpportunities; got != 0 {
		t.Fatalf("ActiveOpportunities got=%d want=%d", got, 0)
	}
}

func TestCrossPlatformDetection(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	// Venue A quotes yes at 68 cents, venue B no at 28 cents; with 3 cents
	// of fees the round lot costs 99, leaving 1 cent of profit.
	e.AddAssetMapping("m1", "pool1")
	e.UpdatePolymarketPrice("m1", 68, 35, "ETH above 5k?", 4000)
	e.UpdateLimitlessPrice("pool1", 0, 28, "eth-5k", 1500)

	if n := e.Scan(ctx); n != 1 {
		t.Fatalf("scan got=%d want=%d", n, 1)
	}
	opps := e.Opportunities(Filter{})
	if len(opps) != 1 {
		t.Fatalf("opportunities got=%d want=%d", len(opps), 1)
	}
	opp := opps[0]
	if opp.Key != "cross_platform:m1" {
		t.Fatalf("Key got=%q want=%q", opp.Key, "cross_platform:m1")
	}
	if opp.Direction != domain.DirectionPolyToLimitless {
		t.Fatalf("Direction got=%s want=%s", opp.Direction, domain.DirectionPolyToLimitless)
	}
	if !closeTo(opp.NetProfitCents, 1) {
		t.Fatalf("NetProfitCents got=%v want=%v", opp.NetProfitCents, 1.0)
	}
	// Bounded by the thinner venue.
	if !closeTo(opp.AvailableLiquidityUSD, 1500) {
		t.Fatalf("AvailableLiquidityUSD got=%v want=%v", opp.AvailableLiquidityUSD, 1500.0)
	}
}

func TestThreeWayDetection(t *testing.T) {
	e, _ := newTestEngine(t)

	e.RegisterThreeWay(domain.ThreeWayMarket{
		ConditionID:  "match1",
		Question:     "Chelsea vs Arsenal",
		Home:         domain.OutcomeQuote{YesPriceCents: 20, NoPriceCents: 75},
		Away:         domain.OutcomeQuote{YesPriceCents: 70, NoPriceCents: 30},
		Draw:         domain.OutcomeQuote{YesPriceCents: 15, NoPriceCents: 80},
		LiquidityUSD: 4000,
	})

	if n := e.Scan(context.Background()); n != 1 {
		t.Fatalf("scan got=%d want=%d", n, 1)
	}
	opp := e.Opportunities(Filter{})[0]
	if opp.Key != "three_way:match1" {
		t.Fatalf("Key got=%q want=%q", opp.Key, "three_way:match1")
	}
	// home.yes 20 + away.no 30 + draw.yes 15 + 3 fees = 68, profit 32.
	if !closeTo(opp.NetProfitCents, 32) {
		t.Fatalf("NetProfitCents got=%v want=%v", opp.NetProfitCents, 32.0)
	}
}

func TestNoAlertBelowHighSpread(t *testing.T) {
	e, _ := newTestEngine(t)

	// 48 + 48.5 + 3 = 99.5: profitable but the 0.5 cent spread stays below
	// the 2 cent alert threshold.
	e.UpdatePolymarketPrice("m1", 48, 48.5, "q", 5000)
	e.Scan(context.Background())

	if got := len(e.Signals(10)); got != 1 {
		t.Fatalf("signals got=%d want=%d", got, 1)
	}
	if got := len(e.Alerts(false)); got != 0 {
		t.Fatalf("alerts got=%d want=%d", got, 0)
	}
	if s := e.Signals(10)[0]; s.Strength != domain.SignalModerate {
		t.Fatalf("Strength got=%s want=%s", s.Strength, domain.SignalModerate)
	}
}

func TestAcknowledgeAlert(t *testing.T) {
	e, _ := newTestEngine(t)

	e.UpdatePolymarketPrice("m1", 40, 55, "q", 5000)
	e.Scan(context.Background())

	alerts := e.Alerts(true)
	if len(alerts) != 1 {
		t.Fatalf("alerts got=%d want=%d", len(alerts), 1)
	}
	if !e.AcknowledgeAlert(alerts[0].ID) {
		t.Fatal("AcknowledgeAlert should find the alert")
	}
	if got := len(e.Alerts(true)); got != 0 {
		t.Fatalf("unacked alerts got=%d want=%d", got, 0)
	}
	if got := len(e.Alerts(false)); got != 1 {
		t.Fatalf("all alerts got=%d want=%d", got, 1)
	}
	if e.AcknowledgeAlert("nope") {
		t.Fatal("unknown alert id should not acknowledge")
	}
}

func TestOpportunitiesFilter(t *testing.T) {
	e, _ := newTestEngine(t)

	e.UpdatePolymarketPrice("m1", 40, 55, "binary", 5000)
	e.RegisterMultiOutcome(domain.MultiOutcomeMarket{
		ConditionID: "election",
		Question:    "Who wins?",
		Outcomes: []domain.OutcomePrice{
			{Name: "A", YesPriceCents: 38, LiquidityUSD: 3000},
			{Name: "B", YesPriceCents: 35, LiquidityUSD: 2500},
			{Name: "C", YesPriceCents: 20, LiquidityUSD: 4000},
		},
	})
	e.Scan(context.Background())

	all := e.Opportunities(Filter{})
	if len(all) != 2 {
		t.Fatalf("opportunities got=%d want=%d", len(all), 2)
	}
	// Multi-outcome: 93 + 3 = 96, profit 4; sorted above the 2 cent single.
	if all[0].Strategy != domain.StrategyMultiOutcome {
		t.Fatalf("top strategy got=%s want=%s", all[0].Strategy, domain.StrategyMultiOutcome)
	}

	if got := e.Opportunities(Filter{Strategy: domain.StrategySingleMarket}); len(got) != 1 {
		t.Fatalf("strategy filter got=%d want=%d", len(got), 1)
	}
	if got := e.Opportunities(Filter{MinProfitCents: 3}); len(got) != 1 {
		t.Fatalf("min profit filter got=%d want=%d", len(got), 1)
	}
	if got := e.Opportunities(Filter{MaxRisk: 1}); len(got) != 1 {
		t.Fatalf("max risk filter got=%d want=%d", len(got), 1)
	}

	byID, ok := e.Opportunity(all[0].ID)
	if !ok || byID.Key != all[0].Key {
		t.Fatalf("Opportunity lookup got=%v ok=%v", byID.Key, ok)
	}
	if _, ok := e.Opportunity("missing"); ok {
		t.Fatal("unknown id should not resolve")
	}
}

func TestStatusCounts(t *testing.T) {
	e, clock := newTestEngine(t)

	e.UpdatePolymarketPrice("m1", 40, 55, "q", 5000)
	e.UpdateLimitlessPrice("pool1", 60, 0, "pair", 1000)
	e.AddAssetMapping("m1", "pool1")
	e.UpdateOrderBook("m1", []domain.PriceLevel{{PriceCents: 49, Size: 100}}, []domain.PriceLevel{{PriceCents: 51, Size: 100}})
	e.RegisterThreeWay(domain.ThreeWayMarket{ConditionID: "match1"})
	e.RegisterMultiOutcome(domain.MultiOutcomeMarket{ConditionID: "election"})
	e.Scan(context.Background())

	st := e.Status()
	if st.Running {
		t.Fatal("engine should not report running before Run")
	}
	if st.TrackedPolymarketMarkets != 1 || st.TrackedLimitlessPools != 1 {
		t.Fatalf("tracked counts got=%d/%d want=1/1", st.TrackedPolymarketMarkets, st.TrackedLimitlessPools)
	}
	if st.AssetMappings != 1 || st.TrackedOrderBooks != 1 {
		t.Fatalf("mapping/book counts got=%d/%d want=1/1", st.AssetMappings, st.TrackedOrderBooks)
	}
	if st.MultiOutcomeMarkets != 1 || st.ThreeWayMarkets != 1 {
		t.Fatalf("registration counts got=%d/%d want=1/1", st.MultiOutcomeMarkets, st.ThreeWayMarkets)
	}
	if st.TotalOpportunitiesFound != 1 || st.ActiveOpportunities != 1 {
		t.Fatalf("opportunity counts got=%d/%d want=1/1", st.TotalOpportunitiesFound, st.ActiveOpportunities)
	}
	if st.ActiveSignals != 1 || st.PendingAlerts != 1 {
		t.Fatalf("signal/alert counts got=%d/%d want=1/1", st.ActiveSignals, st.PendingAlerts)
	}
	if !st.LastScanAt.Equal(clock.t) {
		t.Fatalf("LastScanAt got=%v want=%v", st.LastScanAt, clock.t)
	}

	book, ok := e.OrderBook("m1")
	if !ok || len(book.Asks) != 1 {
		t.Fatalf("OrderBook lookup got ok=%v asks=%d", ok, len(book.Asks))
	}
	if prices := e.YesPrices(); !closeTo(prices["m1"], 40) {
		t.Fatalf("YesPrices[m1] got=%v want=%v", prices["m1"], 40.0)
	}
}

func TestBroadcastSnapshotLimits(t *testing.T) {
	e, _ := newTestEngine(t)

	// Twelve profitable markets with distinct spreads, all above the alert
	// threshold.
	for i := 0; i < 12; i++ {
		id := string(rune('a' + i))
		e.UpdatePolymarketPrice(id, 40, float64(55-i), "q "+id, 5000)
	}
	e.Scan(context.Background())

	snap := e.BroadcastSnapshot()
	if snap.Type != "arbitrage_update" {
		t.Fatalf("Type got=%q want=%q", snap.Type, "arbitrage_update")
	}
	if len(snap.Opportunities) != 10 {
		t.Fatalf("snapshot opportunities got=%d want=%d", len(snap.Opportunities), 10)
	}
	// Highest net profit first: yes 40 + no 44 + fees 3 = 87, 13 cents.
	if !closeTo(snap.Opportunities[0].NetProfitCents, 13) {
		t.Fatalf("top NetProfitCents got=%v want=%v", snap.Opportunities[0].NetProfitCents, 13.0)
	}
	if len(snap.Signals) != 5 {
		t.Fatalf("snapshot signals got=%d want=%d", len(snap.Signals), 5)
	}
	if len(snap.Alerts) != 5 {
		t.Fatalf("snapshot alerts got=%d want=%d", len(snap.Alerts), 5)
	}
}

type fakeCaster struct{ ch chan []byte }

func (f *fakeCaster) Broadcast(source string, data []byte) error {
	select {
	case f.ch <- data:
	default:
	}
	return nil
}

func TestRunBroadcastsSnapshots(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ScanInterval = 10 * time.Millisecond

	caster := &fakeCaster{ch: make(chan []byte, 4)}
	e, err := NewEngine(cfg, strategy.NewRegistry(), caster, testLogger())
	if err != nil {
		t.Fatalf("NewEngine error: %v", err)
	}
	e.UpdatePolymarketPrice("m1", 40, 55, "q", 5000)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	select {
	case data := <-caster.ch:
		var snap Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			t.Fatalf("unmarshal snapshot: %v", err)
		}
		if snap.Type != "arbitrage_update" {
			t.Fatalf("Type got=%q want=%q", snap.Type, "arbitrage_update")
		}
		if len(snap.Opportunities) != 1 {
			t.Fatalf("opportunities got=%d want=%d", len(snap.Opportunities), 1)
		}
		if !snap.Status.Running {
			t.Fatal("snapshot should report the engine running")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a broadcast snapshot")
	}
}
