package limitless

import (
	"context"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/oddslab/arbscan/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func closeTo(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

type quote struct {
	pool         string
	yesCents     float64
	noCents      float64
	pair         string
	liquidityUSD float64
}

type fakeEngine struct {
	quotes []quote
}

func (f *fakeEngine) UpdateLimitlessPrice(pool string, yesCents, noCents float64, pair string, liquidityUSD float64) {
	f.quotes = append(f.quotes, quote{pool, yesCents, noCents, pair, liquidityUSD})
}

func testServer(t *testing.T, pools, prices string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/pools", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, pools)
	})
	mux.HandleFunc("/prices", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, prices)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestPollUpdatesEngine(t *testing.T) {
	srv := testServer(t,
		`{"pools": [{"address": "pool1", "name": "eth-5k", "tvl": 1500}]}`,
		`{"prices": [{"pool": "pool1", "pair": "eth-5k", "price": 0.72}]}`,
	)

	eng := &fakeEngine{}
	p := NewPoller(Config{BaseURL: srv.URL}, eng, testLogger())
	p.poll(context.Background())

	if len(eng.quotes) != 1 {
		t.Fatalf("quotes got=%d want=%d", len(eng.quotes), 1)
	}
	q := eng.quotes[0]
	if q.pool != "pool1" || q.pair != "eth-5k" {
		t.Fatalf("identity got=%q/%q want=pool1/eth-5k", q.pool, q.pair)
	}
	if !closeTo(q.yesCents, 72) || !closeTo(q.noCents, 28) {
		t.Fatalf("cents got=%v/%v want=72/28", q.yesCents, q.noCents)
	}
	if !closeTo(q.liquidityUSD, 1500) {
		t.Fatalf("liquidity got=%v want=%v", q.liquidityUSD, 1500.0)
	}

	if st := p.Status(); st.Status != domain.SourceConnected {
		t.Fatalf("Status got=%s want=%s", st.Status, domain.SourceConnected)
	}
}

func TestPollBareArrays(t *testing.T) {
	srv := testServer(t,
		`[{"id": "pool9", "name": "sol-300", "tvl": 900}]`,
		`[{"pool": "pool9", "symbol": "sol-300", "priceUsd": 0.4}]`,
	)

	eng := &fakeEngine{}
	p := NewPoller(Config{BaseURL: srv.URL}, eng, testLogger())
	p.poll(context.Background())

	if len(eng.quotes) != 1 {
		t.Fatalf("quotes got=%d want=%d", len(eng.quotes), 1)
	}
	q := eng.quotes[0]
	if q.pool != "pool9" || q.pair != "sol-300" {
		t.Fatalf("identity got=%q/%q want=pool9/sol-300", q.pool, q.pair)
	}
	if !closeTo(q.yesCents, 40) || !closeTo(q.noCents, 60) {
		t.Fatalf("cents got=%v/%v want=40/60", q.yesCents, q.noCents)
	}
}

func TestPollHonorsTrackedPools(t *testing.T) {
	srv := testServer(t,
		`{"pools": []}`,
		`{"prices": [
			{"pool": "wanted", "pair": "a", "price": 0.5},
			{"pool": "other", "pair": "b", "price": 0.5}
		]}`,
	)

	eng := &fakeEngine{}
	p := NewPoller(Config{
		BaseURL: srv.URL,
		Pools:   []Pool{{Address: "wanted", Pair: "a", LiquidityUSD: 750}},
	}, eng, testLogger())
	p.poll(context.Background())

	if len(eng.quotes) != 1 {
		t.Fatalf("quotes got=%d want=%d", len(eng.quotes), 1)
	}
	if eng.quotes[0].pool != "wanted" {
		t.Fatalf("pool got=%q want=%q", eng.quotes[0].pool, "wanted")
	}
	// TVL missing from the API, so the configured fallback applies.
	if !closeTo(eng.quotes[0].liquidityUSD, 750) {
		t.Fatalf("liquidity got=%v want=%v", eng.quotes[0].liquidityUSD, 750.0)
	}
}

func TestPollResolvesPoolByPair(t *testing.T) {
	srv := testServer(t,
		`{"pools": []}`,
		`{"prices": [{"pair": "eth-5k", "price": 0.3}]}`,
	)

	eng := &fakeEngine{}
	p := NewPoller(Config{
		BaseURL: srv.URL,
		Pools:   []Pool{{Address: "pool1", Pair: "eth-5k"}},
	}, eng, testLogger())
	p.poll(context.Background())

	if len(eng.quotes) != 1 || eng.quotes[0].pool != "pool1" {
		t.Fatalf("quotes got=%+v want one for pool1", eng.quotes)
	}
}

func TestPollErrorSetsStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	eng := &fakeEngine{}
	p := NewPoller(Config{BaseURL: srv.URL}, eng, testLogger())
	p.poll(context.Background())

	st := p.Status()
	if st.Status != domain.SourceError {
		t.Fatalf("Status got=%s want=%s", st.Status, domain.SourceError)
	}
	if st.Error == "" {
		t.Fatal("Error should carry the failure text")
	}
	if len(eng.quotes) != 0 {
		t.Fatalf("quotes got=%d want=%d", len(eng.quotes), 0)
	}
}

func TestQuoteCents(t *testing.T) {
	if yes, no := quoteCents(priceEntry{Price: 0.72}); !closeTo(yes, 72) || !closeTo(no, 28) {
		t.Fatalf("complement got=%v/%v want=72/28", yes, no)
	}
	if yes, no := quoteCents(priceEntry{YesPrice: 0.6, NoPrice: 0.35}); !closeTo(yes, 60) || !closeTo(no, 35) {
		t.Fatalf("explicit got=%v/%v want=60/35", yes, no)
	}
	// Prices outside (0,1) dollars cannot be a prediction quote.
	if yes, no := quoteCents(priceEntry{Price: 1830.5}); yes != 0 || no != 0 {
		t.Fatalf("out of range got=%v/%v want=0/0", yes, no)
	}
	if yes, no := quoteCents(priceEntry{}); yes != 0 || no != 0 {
		t.Fatalf("empty got=%v/%v want=0/0", yes, no)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	srv := testServer(t, `{"pools": []}`, `{"prices": []}`)

	p := NewPoller(Config{BaseURL: srv.URL, PollInterval: 10 * time.Millisecond}, &fakeEngine{}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("Run error got=%v want=%v", err, context.Canceled)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}

	if st := p.Status(); st.Status != domain.SourceDisconnected {
		t.Fatalf("Status got=%s want=%s", st.Status, domain.SourceDisconnected)
	}
}
