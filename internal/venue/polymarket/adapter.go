// Package polymarket adapts the public Polymarket CLOB market WebSocket to
// the feed manager: it dials the market channel, subscribes to the
// configured token IDs, and turns book / price_change / last_trade_price
// events into engine updates plus market_data broadcast items.
package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/oddslab/arbscan/internal/domain"
	"github.com/oddslab/arbscan/internal/feed"
)

const (
	// SourceName identifies this venue in feed registrations and broadcast
	// envelopes.
	SourceName = "polymarket"

	// DefaultWSURL is the public CLOB market channel endpoint.
	DefaultWSURL = "wss://ws-subscriptions-clob.polymarket.com/ws/market"

	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// handshakeTimeout bounds the WebSocket dial.
	handshakeTimeout = 15 * time.Second

	// maxBookLevels caps the depth forwarded per book side.
	maxBookLevels = 10
)

// Market binds a Polymarket condition to its yes/no token IDs so per-token
// quotes can be reassembled into a two-sided market price.
type Market struct {
	ConditionID  string
	Question     string
	YesAssetID   string
	NoAssetID    string
	LiquidityUSD float64
}

// Config selects the endpoint and the markets to track.
type Config struct {
	WSURL   string
	Markets []Market
}

// Engine receives normalized quotes and books from the adapter.
type Engine interface {
	UpdatePolymarketPrice(marketID string, yesCents, noCents float64, question string, liquidityUSD float64)
	UpdateOrderBook(marketID string, bids, asks []domain.PriceLevel)
}

type marketState struct {
	conditionID  string
	question     string
	liquidityUSD float64
	yesCents     float64
	noCents      float64
	hasYes       bool
	hasNo        bool
}

type assetRef struct {
	market    *marketState
	yes       bool
	lastCents float64
}

// Adapter builds the feed source registration for the CLOB market channel.
// It keeps the last quote per token so the two one-sided token streams can
// be folded back into yes/no market prices for the engine.
type Adapter struct {
	cfg    Config
	engine Engine
	logger *slog.Logger

	mu     sync.Mutex
	assets map[string]*assetRef
}

// NewAdapter indexes the configured markets by token ID. A zero WSURL
// falls back to the public endpoint.
func NewAdapter(cfg Config, engine Engine, logger *slog.Logger) *Adapter {
	if cfg.WSURL == "" {
		cfg.WSURL = DefaultWSURL
	}

	a := &Adapter{
		cfg:    cfg,
		engine: engine,
		logger: logger.With(slog.String("component", "polymarket_feed")),
		assets: make(map[string]*assetRef),
	}
	for _, m := range cfg.Markets {
		state := &marketState{
			conditionID:  m.ConditionID,
			question:     m.Question,
			liquidityUSD: m.LiquidityUSD,
		}
		if m.YesAssetID != "" {
			a.assets[m.YesAssetID] = &assetRef{market: state, yes: true}
		}
		if m.NoAssetID != "" {
			a.assets[m.NoAssetID] = &assetRef{market: state}
		}
	}
	return a
}

// AssetIDs returns every subscribed token ID in configuration order.
func (a *Adapter) AssetIDs() []string {
	ids := make([]string, 0, 2*len(a.cfg.Markets))
	for _, m := range a.cfg.Markets {
		if m.YesAssetID != "" {
			ids = append(ids, m.YesAssetID)
		}
		if m.NoAssetID != "" {
			ids = append(ids, m.NoAssetID)
		}
	}
	return ids
}

// Source returns the feed registration for this venue.
func (a *Adapter) Source() feed.SourceSpec {
	return feed.SourceSpec{
		Name:          SourceName,
		Endpoint:      a.cfg.WSURL,
		Subscriptions: a.AssetIDs(),
		Dial:          a.dial,
		Handle:        a.Handle,
	}
}

// dial connects to the market channel and sends the subscription for the
// configured token IDs before handing the transport to the manager.
func (a *Adapter) dial(ctx context.Context, endpoint string) (feed.Transport, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("venue/polymarket: connect: %w", err)
	}

	sub := subscribeCommand{Assets: a.AssetIDs(), Type: "market"}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return nil, fmt.Errorf("venue/polymarket: subscribe: %w", err)
	}

	a.logger.Info("subscribed to market channel",
		slog.String("endpoint", endpoint),
		slog.Int("assets", len(sub.Assets)))

	return newWSTransport(conn), nil
}

// Handle parses one market-channel frame. A frame carries either a single
// event object or an array of events; every recognized event updates the
// engine, and the processed events are forwarded together as one
// market_data item. Control and unknown events produce nothing.
func (a *Adapter) Handle(ctx context.Context, raw []byte) ([]byte, error) {
	events, err := splitFrame(raw)
	if err != nil {
		return nil, fmt.Errorf("venue/polymarket: decode frame: %w", err)
	}

	items := make([]item, 0, len(events))
	for _, ev := range events {
		if it, ok := a.processEvent(ev); ok {
			items = append(items, it)
		}
	}
	if len(items) == 0 {
		return nil, nil
	}

	out, err := json.Marshal(frame{Type: "market_data", Platform: SourceName, Events: items})
	if err != nil {
		return nil, fmt.Errorf("venue/polymarket: encode frame: %w", err)
	}
	return out, nil
}

// splitFrame flattens a frame into its event objects: the channel delivers
// bare objects as well as batches.
func splitFrame(raw []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var events []json.RawMessage
		if err := json.Unmarshal(trimmed, &events); err != nil {
			return nil, err
		}
		return events, nil
	}
	if !json.Valid(trimmed) {
		return nil, fmt.Errorf("invalid JSON")
	}
	return []json.RawMessage{trimmed}, nil
}

func (a *Adapter) processEvent(raw json.RawMessage) (item, bool) {
	var envelope struct {
		Type  string `json:"type"`
		Event string `json:"event_type"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return item{}, false
	}
	msgType := envelope.Type
	if msgType == "" {
		msgType = envelope.Event
	}

	switch msgType {
	case "book":
		var ev bookEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return item{}, false
		}
		return a.handleBook(ev), true

	case "price_change":
		var ev priceChangeEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return item{}, false
		}
		return a.handlePriceChange(ev), true

	case "last_trade_price":
		var ev lastTradeEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return item{}, false
		}
		return item{Type: "last_trade_price", Data: tradeItem{
			TokenID:    ev.AssetID,
			MarketID:   ev.Market,
			PriceCents: centsFromWire(ev.Price),
			Size:       floatFromWire(ev.Size),
		}}, true

	default:
		// Control messages (connected, subscribed, pong, ack) and anything
		// unrecognized are dropped.
		return item{}, false
	}
}

// handleBook converts a snapshot to cents, pushes it into the engine under
// a side-qualified key, and refreshes the token's derived price from the
// book mid.
func (a *Adapter) handleBook(ev bookEvent) item {
	bids := parseLevels(ev.Bids, true)
	asks := parseLevels(ev.Asks, false)

	var bestBid, bestAsk, mid, spread float64
	if len(bids) > 0 {
		bestBid = bids[0].PriceCents
	}
	if len(asks) > 0 {
		bestAsk = asks[0].PriceCents
	}
	if bestBid > 0 && bestAsk > 0 {
		mid = (bestBid + bestAsk) / 2
		spread = bestAsk - bestBid
	}

	marketID := ev.Market
	a.mu.Lock()
	if ref, ok := a.assets[ev.AssetID]; ok {
		if ref.market.conditionID != "" {
			marketID = ref.market.conditionID
		}
		a.engine.UpdateOrderBook(bookKey(marketID, ref.yes), bids, asks)
		if mid > 0 {
			ref.lastCents = mid
			a.applyQuoteLocked(ref, mid)
		}
	}
	a.mu.Unlock()

	return item{Type: "orderbook_update", Data: bookItem{
		TokenID:      ev.AssetID,
		MarketID:     marketID,
		Bids:         toLevelItems(bids),
		Asks:         toLevelItems(asks),
		BestBidCents: bestBid,
		BestAskCents: bestAsk,
		SpreadCents:  spread,
		MidCents:     mid,
	}}
}

func (a *Adapter) handlePriceChange(ev priceChangeEvent) item {
	cents := centsFromWire(ev.Price)

	marketID := ev.Market
	var prev float64
	a.mu.Lock()
	if ref, ok := a.assets[ev.AssetID]; ok {
		if ref.market.conditionID != "" {
			marketID = ref.market.conditionID
		}
		prev = ref.lastCents
		if cents > 0 {
			ref.lastCents = cents
			a.applyQuoteLocked(ref, cents)
		}
	}
	a.mu.Unlock()

	var changePct float64
	if prev > 0 {
		changePct = (cents - prev) / prev * 100
	}
	if prev == 0 {
		prev = cents
	}

	return item{Type: "price_update", Data: priceItem{
		TokenID:        ev.AssetID,
		MarketID:       marketID,
		PriceCents:     cents,
		PrevPriceCents: prev,
		ChangePct:      changePct,
	}}
}

// applyQuoteLocked records one side's quote and forwards the market to the
// engine once both sides have been observed. Caller holds a.mu.
func (a *Adapter) applyQuoteLocked(ref *assetRef, cents float64) {
	if ref.yes {
		ref.market.yesCents = cents
		ref.market.hasYes = true
	} else {
		ref.market.noCents = cents
		ref.market.hasNo = true
	}
	m := ref.market
	if m.hasYes && m.hasNo {
		a.engine.UpdatePolymarketPrice(m.conditionID, m.yesCents, m.noCents, m.question, m.liquidityUSD)
	}
}

// bookKey qualifies an engine book key by outcome side, matching the keys
// the analyze endpoint reads.
func bookKey(marketID string, yes bool) string {
	if yes {
		return marketID + "-yes"
	}
	return marketID + "-no"
}

// parseLevels converts wire levels to cents and normalizes ordering to
// best-first; wire order varies by event.
func parseLevels(levels []wireLevel, bids bool) []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, len(levels))
	for _, lvl := range levels {
		price := centsFromWire(lvl.Price)
		size := floatFromWire(lvl.Size)
		if price <= 0 || size <= 0 {
			continue
		}
		out = append(out, domain.PriceLevel{PriceCents: price, Size: size})
	}
	sort.Slice(out, func(i, j int) bool {
		if bids {
			return out[i].PriceCents > out[j].PriceCents
		}
		return out[i].PriceCents < out[j].PriceCents
	})
	if len(out) > maxBookLevels {
		out = out[:maxBookLevels]
	}
	return out
}

func toLevelItems(levels []domain.PriceLevel) []levelItem {
	out := make([]levelItem, len(levels))
	for i, lvl := range levels {
		out[i] = levelItem{PriceCents: lvl.PriceCents, Size: lvl.Size}
	}
	return out
}

// centsFromWire parses a dollar-string price ("0.52") into cents.
func centsFromWire(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v * 100
}

func floatFromWire(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// wsTransport adapts a gorilla connection to the feed transport contract
// and keeps the connection alive with protocol pings.
type wsTransport struct {
	conn      *websocket.Conn
	closeOnce sync.Once
	done      chan struct{}
}

func newWSTransport(conn *websocket.Conn) *wsTransport {
	t := &wsTransport{conn: conn, done: make(chan struct{})}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	go t.pingLoop()

	return t
}

func (t *wsTransport) ReadMessage() ([]byte, error) {
	_, msg, err := t.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	t.conn.SetReadDeadline(time.Now().Add(pongWait))
	return msg, nil
}

func (t *wsTransport) Close() error {
	t.closeOnce.Do(func() {
		close(t.done)
		_ = t.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait),
		)
	})
	return t.conn.Close()
}

func (t *wsTransport) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			t.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := t.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
