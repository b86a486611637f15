package polymarket

// subscribeCommand is the market-channel subscription payload sent once
// after the handshake.
type subscribeCommand struct {
	Assets []string `json:"assets_ids"`
	Type   string   `json:"type"`
}

// wireLevel is a single bid/ask level as delivered on the wire. Prices and
// sizes arrive as decimal strings in dollars.
type wireLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// bookEvent is a full order book snapshot from the market channel.
type bookEvent struct {
	AssetID   string      `json:"asset_id"`
	Market    string      `json:"market"`
	Bids      []wireLevel `json:"bids"`
	Asks      []wireLevel `json:"asks"`
	Timestamp string      `json:"timestamp"`
	Hash      string      `json:"hash"`
}

// priceChangeEvent is an incremental price-level update.
type priceChangeEvent struct {
	AssetID string `json:"asset_id"`
	Market  string `json:"market"`
	Side    string `json:"side"`
	Price   string `json:"price"`
	Size    string `json:"size"`
}

// lastTradeEvent reports the most recent trade for an asset.
type lastTradeEvent struct {
	AssetID string `json:"asset_id"`
	Market  string `json:"market"`
	Price   string `json:"price"`
	Size    string `json:"size"`
}

// item is one processed event inside a market_data broadcast frame.
type item struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// frame is the broadcast payload fanned out to clients for every inbound
// message that produced at least one recognized event.
type frame struct {
	Type     string `json:"type"`
	Platform string `json:"platform"`
	Events   []item `json:"events"`
}

// bookItem is the client-facing form of a book event, prices in cents.
type bookItem struct {
	TokenID      string      `json:"token_id"`
	MarketID     string      `json:"market_id"`
	Bids         []levelItem `json:"bids"`
	Asks         []levelItem `json:"asks"`
	BestBidCents float64     `json:"best_bid_cents"`
	BestAskCents float64     `json:"best_ask_cents"`
	SpreadCents  float64     `json:"spread_cents"`
	MidCents     float64     `json:"mid_cents"`
}

type levelItem struct {
	PriceCents float64 `json:"price_cents"`
	Size       float64 `json:"size"`
}

// priceItem is the client-facing form of a price change.
type priceItem struct {
	TokenID        string  `json:"token_id"`
	MarketID       string  `json:"market_id"`
	PriceCents     float64 `json:"price_cents"`
	PrevPriceCents float64 `json:"prev_price_cents"`
	ChangePct      float64 `json:"change_pct"`
}

// tradeItem is the client-facing form of a last trade price event.
type tradeItem struct {
	TokenID    string  `json:"token_id"`
	MarketID   string  `json:"market_id"`
	PriceCents float64 `json:"price_cents"`
	Size       float64 `json:"size"`
}
