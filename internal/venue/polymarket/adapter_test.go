package polymarket

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/oddslab/arbscan/internal/domain"
)

type priceUpdate struct {
	marketID     string
	yesCents     float64
	noCents      float64
	question     string
	liquidityUSD float64
}

type bookUpdate struct {
	bids []domain.PriceLevel
	asks []domain.PriceLevel
}

type fakeEngine struct {
	prices []priceUpdate
	books  map[string]bookUpdate
}

func (f *fakeEngine) UpdatePolymarketPrice(marketID string, yesCents, noCents float64, question string, liquidityUSD float64) {
	f.prices = append(f.prices, priceUpdate{marketID, yesCents, noCents, question, liquidityUSD})
}

func (f *fakeEngine) UpdateOrderBook(marketID string, bids, asks []domain.PriceLevel) {
	if f.books == nil {
		f.books = make(map[string]bookUpdate)
	}
	f.books[marketID] = bookUpdate{bids: bids, asks: asks}
}

func testAdapter(t *testing.T) (*Adapter, *fakeEngine) {
	t.Helper()
	eng := &fakeEngine{}
	a := NewAdapter(Config{
		Markets: []Market{{
			ConditionID:  "cond1",
			Question:     "BTC above 100k?",
			YesAssetID:   "tok-yes",
			NoAssetID:    "tok-no",
			LiquidityUSD: 5000,
		}},
	}, eng, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return a, eng
}

func closeTo(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestSourceSpec(t *testing.T) {
	a, _ := testAdapter(t)

	spec := a.Source()
	if spec.Name != SourceName {
		t.Fatalf("Name got=%q want=%q", spec.Name, SourceName)
	}
	if spec.Endpoint != DefaultWSURL {
		t.Fatalf("Endpoint got=%q want=%q", spec.Endpoint, DefaultWSURL)
	}
	if len(spec.Subscriptions) != 2 {
		t.Fatalf("Subscriptions got=%d want=%d", len(spec.Subscriptions), 2)
	}
	if spec.Dial == nil || spec.Handle == nil {
		t.Fatal("Dial and Handle must be set")
	}
}

func TestHandleBookUpdatesEngine(t *testing.T) {
	a, eng := testAdapter(t)

	raw := []byte(`{
		"event_type": "book",
		"asset_id": "tok-yes",
		"market": "cond1",
		"bids": [{"price": "0.38", "size": "100"}, {"price": "0.40", "size": "50"}],
		"asks": [{"price": "0.44", "size": "80"}, {"price": "0.42", "size": "60"}]
	}`)

	out, err := a.Handle(context.Background(), raw)
	if err != nil {
		t.Fatalf("Handle error: %v", err)
	}
	if out == nil {
		t.Fatal("book event should produce a broadcast item")
	}

	book, ok := eng.books["cond1-yes"]
	if !ok {
		t.Fatalf("book keys got=%v want cond1-yes", eng.books)
	}
	// Best-first regardless of wire order, converted to cents.
	if !closeTo(book.bids[0].PriceCents, 40) || !closeTo(book.asks[0].PriceCents, 42) {
		t.Fatalf("best levels got=%v/%v want=40/42", book.bids[0].PriceCents, book.asks[0].PriceCents)
	}

	var f frame
	if err := json.Unmarshal(out, &f); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	if f.Type != "market_data" || f.Platform != "polymarket" {
		t.Fatalf("frame envelope got=%q/%q want=market_data/polymarket", f.Type, f.Platform)
	}
	if len(f.Events) != 1 || f.Events[0].Type != "orderbook_update" {
		t.Fatalf("events got=%+v want one orderbook_update", f.Events)
	}

	// One-sided data: no market price yet.
	if len(eng.prices) != 0 {
		t.Fatalf("price updates got=%d want=%d", len(eng.prices), 0)
	}
}

func TestBothSidesProduceMarketPrice(t *testing.T) {
	a, eng := testAdapter(t)
	ctx := context.Background()

	yesBook := []byte(`{"event_type":"book","asset_id":"tok-yes","market":"cond1",
		"bids":[{"price":"0.39","size":"10"}],"asks":[{"price":"0.41","size":"10"}]}`)
	noBook := []byte(`{"event_type":"book","asset_id":"tok-no","market":"cond1",
		"bids":[{"price":"0.54","size":"10"}],"asks":[{"price":"0.56","size":"10"}]}`)

	if _, err := a.Handle(ctx, yesBook); err != nil {
		t.Fatalf("Handle yes book: %v", err)
	}
	if _, err := a.Handle(ctx, noBook); err != nil {
		t.Fatalf("Handle no book: %v", err)
	}

	if len(eng.prices) != 1 {
		t.Fatalf("price updates got=%d want=%d", len(eng.prices), 1)
	}
	up := eng.prices[0]
	if up.marketID != "cond1" {
		t.Fatalf("marketID got=%q want=%q", up.marketID, "cond1")
	}
	if !closeTo(up.yesCents, 40) || !closeTo(up.noCents, 55) {
		t.Fatalf("prices got=%v/%v want=40/55", up.yesCents, up.noCents)
	}
	if up.question != "BTC above 100k?" || !closeTo(up.liquidityUSD, 5000) {
		t.Fatalf("metadata got=%q/%v", up.question, up.liquidityUSD)
	}
}

func TestHandlePriceChange(t *testing.T) {
	a, eng := testAdapter(t)
	ctx := context.Background()

	first := []byte(`{"event_type":"price_change","asset_id":"tok-yes","market":"cond1","side":"BUY","price":"0.40","size":"25"}`)
	second := []byte(`{"event_type":"price_change","asset_id":"tok-yes","market":"cond1","side":"BUY","price":"0.44","size":"25"}`)

	if _, err := a.Handle(ctx, first); err != nil {
		t.Fatalf("Handle first: %v", err)
	}
	out, err := a.Handle(ctx, second)
	if err != nil {
		t.Fatalf("Handle second: %v", err)
	}

	var f frame
	if err := json.Unmarshal(out, &f); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	data, _ := json.Marshal(f.Events[0].Data)
	var p priceItem
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatalf("unmarshal price item: %v", err)
	}
	if !closeTo(p.PriceCents, 44) || !closeTo(p.PrevPriceCents, 40) {
		t.Fatalf("prices got=%v/%v want=44/40", p.PriceCents, p.PrevPriceCents)
	}
	if !closeTo(p.ChangePct, 10) {
		t.Fatalf("ChangePct got=%v want=%v", p.ChangePct, 10.0)
	}

	// Still one-sided, so no market price push.
	if len(eng.prices) != 0 {
		t.Fatalf("price updates got=%d want=%d", len(eng.prices), 0)
	}
}

func TestHandleControlAndUnknown(t *testing.T) {
	a, _ := testAdapter(t)
	ctx := context.Background()

	for _, raw := range []string{
		`{"type": "connected"}`,
		`{"type": "subscribed"}`,
		`{"type": "pong"}`,
		`{"event_type": "tick_size_change", "asset_id": "tok-yes"}`,
	} {
		out, err := a.Handle(ctx, []byte(raw))
		if err != nil {
			t.Fatalf("Handle(%s) error: %v", raw, err)
		}
		if out != nil {
			t.Fatalf("Handle(%s) got=%s want nil", raw, out)
		}
	}
}

func TestHandleBatchFrame(t *testing.T) {
	a, eng := testAdapter(t)

	raw := []byte(`[
		{"event_type":"book","asset_id":"tok-yes","market":"cond1",
			"bids":[{"price":"0.39","size":"10"}],"asks":[{"price":"0.41","size":"10"}]},
		{"event_type":"book","asset_id":"tok-no","market":"cond1",
			"bids":[{"price":"0.54","size":"10"}],"asks":[{"price":"0.56","size":"10"}]},
		{"type":"pong"}
	]`)

	out, err := a.Handle(context.Background(), raw)
	if err != nil {
		t.Fatalf("Handle error: %v", err)
	}

	var f frame
	if err := json.Unmarshal(out, &f); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	if len(f.Events) != 2 {
		t.Fatalf("events got=%d want=%d", len(f.Events), 2)
	}
	if len(eng.prices) != 1 {
		t.Fatalf("price updates got=%d want=%d", len(eng.prices), 1)
	}
}

func TestHandleMalformedFrame(t *testing.T) {
	a, _ := testAdapter(t)

	if _, err := a.Handle(context.Background(), []byte("not json")); err == nil {
		t.Fatal("expected error for malformed frame")
	}
}

func TestUnknownAssetSkipsEngine(t *testing.T) {
	a, eng := testAdapter(t)

	raw := []byte(`{"event_type":"book","asset_id":"mystery","market":"other",
		"bids":[{"price":"0.50","size":"10"}],"asks":[{"price":"0.52","size":"10"}]}`)

	out, err := a.Handle(context.Background(), raw)
	if err != nil {
		t.Fatalf("Handle error: %v", err)
	}
	if out == nil {
		t.Fatal("unknown asset should still broadcast")
	}
	if len(eng.books) != 0 || len(eng.prices) != 0 {
		t.Fatalf("engine updates got books=%d prices=%d want none", len(eng.books), len(eng.prices))
	}
}

func TestParseLevelsDropsJunk(t *testing.T) {
	levels := parseLevels([]wireLevel{
		{Price: "0.50", Size: "10"},
		{Price: "bad", Size: "10"},
		{Price: "0.52", Size: "0"},
	}, false)

	if len(levels) != 1 || !closeTo(levels[0].PriceCents, 50) {
		t.Fatalf("levels got=%+v want one 50c level", levels)
	}
}
