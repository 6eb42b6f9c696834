package venue

// Position is a single wallet's open position on one asset.
type Position struct {
	Wallet           string
	Coin             string
	Size             float64 // positive = long, negative = short
	EntryPrice       float64
	LiquidationPrice *float64
	Leverage         float64
	NotionalValue    float64
	UnrealizedPnL    float64
	MarginUsed       float64
}

// IsLong reports whether the position is long.
func (p Position) IsLong() bool { return p.Size > 0 }

// Side returns "long" or "short".
func (p Position) Side() string {
	if p.IsLong() {
		return "long"
	}
	return "short"
}

// AssetMeta describes one entry of the venue's universe listing.
type AssetMeta struct {
	Name        string
	MaxLeverage int
	SzDecimals  int
	IsDelisted  bool
}

// Meta is the raw response of the "meta" request type.
type Meta struct {
	Universe []AssetMeta
}

// AssetCtx is one asset's market context as returned alongside Meta by
// "metaAndAssetCtxs".
type AssetCtx struct {
	MarkPx       float64
	OraclePx     float64
	MidPx        float64
	OpenInterest float64
	DayNtlVlm    float64
	DayBaseVlm   float64
	Funding      float64
	Premium      float64
	PrevDayPx    float64
}

// AssetInfo is the merged, current state of a single asset.
type AssetInfo struct {
	Name          string
	MaxLeverage   int
	SzDecimals    int
	MarkPrice     float64
	OpenInterest  float64
	FundingRate   float64
}

// ClearinghouseState is a wallet's raw margin-and-positions snapshot.
type ClearinghouseState struct {
	AssetPositions []AssetPositionEntry
}

// AssetPositionEntry wraps one raw position record inside a clearinghouse
// state response.
type AssetPositionEntry struct {
	Position RawPosition
}

// RawPosition mirrors the venue's wire shape for a position before
// dust-filtering and type coercion.
type RawPosition struct {
	Coin            string
	Szi             float64
	EntryPx         float64
	LiquidationPx   *float64
	Leverage        RawLeverage
	PositionValue   float64
	UnrealizedPnl   float64
	MarginUsed      float64
}

// RawLeverage is the leverage sub-object on a raw position.
type RawLeverage struct {
	Type  string
	Value float64
}

// Trade is a single recent trade record for an asset. Users carries the
// wallet addresses involved (taker/maker), the same field wallet discovery
// extracts from the trades websocket channel.
type Trade struct {
	Coin  string
	Price float64
	Size  float64
	Side  string
	Time  int64
	Users []string
}

// OrderBookLevel is one price level of an order book side.
type OrderBookLevel struct {
	Price     float64
	Size      float64
	NumOrders int
}

// OrderBook holds both sides of a venue order book, bids first.
type OrderBook struct {
	Coin string
	Bids []OrderBookLevel
	Asks []OrderBookLevel
}
