// Package venue implements a rate-limited HTTP and WebSocket client for the
// exchange's public info/trades API.
package venue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/hlcollector/liqmap/config"
	"github.com/hlcollector/liqmap/retry"
	"github.com/rs/zerolog"
)

// Client is a rate-limited client for the venue's "/info" POST endpoint.
type Client struct {
	baseURL     string
	http        *http.Client
	limiter     *limiter
	retryPolicy retry.Policy
	log         zerolog.Logger
}

// New builds a Client with a pooled transport sized for sustained fan-out
// across many wallets, and a rate limiter matching cfg's configured ceiling.
func New(cfg *config.Config, log zerolog.Logger) *Client {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          128,
		MaxIdleConnsPerHost:   32,
		MaxConnsPerHost:       64,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &Client{
		baseURL: cfg.APIURL,
		http: &http.Client{
			Transport: transport,
			Timeout:   cfg.RequestTimeout,
		},
		limiter:     newLimiter(cfg.APIRequestsPerSecond, cfg.MinRequestSpacing),
		retryPolicy: retry.DefaultPolicy,
		log:         log.With().Str("component", "venue_client").Logger(),
	}
}

// request performs one rate-limited POST to /info and decodes the raw JSON
// response. Non-2xx responses and transport failures are wrapped in typed
// errors and retried under retry.DefaultPolicy when they're transient
// (429/5xx and network errors); semantic 4xx failures return immediately.
func (c *Client) request(ctx context.Context, body any) (json.RawMessage, error) {
	var raw json.RawMessage
	err := retry.Do(ctx, c.retryPolicy, func(ctx context.Context) error {
		r, err := c.doOnce(ctx, body)
		if err != nil {
			return err
		}
		raw = r
		return nil
	})
	return raw, err
}

func (c *Client) doOnce(ctx context.Context, body any) (json.RawMessage, error) {
	if err := c.limiter.acquire(ctx); err != nil {
		return nil, err
	}
	defer c.limiter.release()

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/info", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &NetError{Op: "POST /info", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetError{Op: "read body", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{Status: resp.StatusCode, Body: string(raw)}
	}

	return raw, nil
}

type metaWire struct {
	Universe []struct {
		Name        string `json:"name"`
		MaxLeverage int    `json:"maxLeverage"`
		SzDecimals  int    `json:"szDecimals"`
		IsDelisted  bool   `json:"isDelisted"`
	} `json:"universe"`
}

// Meta fetches exchange metadata: the asset universe and leverage limits.
func (c *Client) Meta(ctx context.Context) (Meta, error) {
	raw, err := c.request(ctx, map[string]string{"type": "meta"})
	if err != nil {
		return Meta{}, err
	}

	var wire metaWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return Meta{}, &DecodeError{Field: "meta", Value: string(raw)}
	}

	out := Meta{Universe: make([]AssetMeta, 0, len(wire.Universe))}
	for _, u := range wire.Universe {
		out.Universe = append(out.Universe, AssetMeta{
			Name:        u.Name,
			MaxLeverage: u.MaxLeverage,
			SzDecimals:  u.SzDecimals,
			IsDelisted:  u.IsDelisted,
		})
	}
	return out, nil
}

// AllMids fetches the current mid price for every listed asset, skipping
// internal "@"-prefixed index pseudo-symbols.
func (c *Client) AllMids(ctx context.Context) (map[string]float64, error) {
	raw, err := c.request(ctx, map[string]string{"type": "allMids"})
	if err != nil {
		return nil, err
	}

	var wire map[string]json.RawMessage
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, &DecodeError{Field: "allMids", Value: string(raw)}
	}

	out := make(map[string]float64, len(wire))
	for coin, v := range wire {
		if len(coin) > 0 && coin[0] == '@' {
			continue
		}
		f, err := decodeNumber(coin, v)
		if err != nil {
			continue
		}
		out[coin] = f
	}
	return out, nil
}

type assetCtxWire struct {
	MarkPx       json.RawMessage `json:"markPx"`
	OraclePx     json.RawMessage `json:"oraclePx"`
	MidPx        json.RawMessage `json:"midPx"`
	OpenInterest json.RawMessage `json:"openInterest"`
	DayNtlVlm    json.RawMessage `json:"dayNtlVlm"`
	DayBaseVlm   json.RawMessage `json:"dayBaseVlm"`
	Funding      json.RawMessage `json:"funding"`
	Premium      json.RawMessage `json:"premium"`
	PrevDayPx    json.RawMessage `json:"prevDayPx"`
}

// MetaAndAssetCtxs fetches the asset universe alongside each asset's current
// market context (open interest, funding, volume).
func (c *Client) MetaAndAssetCtxs(ctx context.Context) (Meta, []AssetCtx, error) {
	raw, err := c.request(ctx, map[string]string{"type": "metaAndAssetCtxs"})
	if err != nil {
		return Meta{}, nil, err
	}

	var pair []json.RawMessage
	if err := json.Unmarshal(raw, &pair); err != nil || len(pair) < 2 {
		return Meta{}, nil, &DecodeError{Field: "metaAndAssetCtxs", Value: string(raw)}
	}

	var metaWireVal metaWire
	if err := json.Unmarshal(pair[0], &metaWireVal); err != nil {
		return Meta{}, nil, &DecodeError{Field: "metaAndAssetCtxs.meta", Value: string(pair[0])}
	}

	var ctxWires []assetCtxWire
	if err := json.Unmarshal(pair[1], &ctxWires); err != nil {
		return Meta{}, nil, &DecodeError{Field: "metaAndAssetCtxs.ctxs", Value: string(pair[1])}
	}

	meta := Meta{Universe: make([]AssetMeta, 0, len(metaWireVal.Universe))}
	for _, u := range metaWireVal.Universe {
		meta.Universe = append(meta.Universe, AssetMeta{
			Name:        u.Name,
			MaxLeverage: u.MaxLeverage,
			SzDecimals:  u.SzDecimals,
			IsDelisted:  u.IsDelisted,
		})
	}

	ctxs := make([]AssetCtx, len(ctxWires))
	for i, w := range ctxWires {
		ctxs[i] = AssetCtx{
			MarkPx:       numOrZero(w.MarkPx),
			OraclePx:     numOrZero(w.OraclePx),
			MidPx:        numOrZero(w.MidPx),
			OpenInterest: numOrZero(w.OpenInterest),
			DayNtlVlm:    numOrZero(w.DayNtlVlm),
			DayBaseVlm:   numOrZero(w.DayBaseVlm),
			Funding:      numOrZero(w.Funding),
			Premium:      numOrZero(w.Premium),
			PrevDayPx:    numOrZero(w.PrevDayPx),
		}
	}

	return meta, ctxs, nil
}

func numOrZero(raw json.RawMessage) float64 {
	f, err := decodeNumber("", raw)
	if err != nil {
		return 0
	}
	return f
}

type clearinghouseWire struct {
	AssetPositions []struct {
		Position struct {
			Coin          string          `json:"coin"`
			Szi           json.RawMessage `json:"szi"`
			EntryPx       json.RawMessage `json:"entryPx"`
			LiquidationPx json.RawMessage `json:"liquidationPx"`
			Leverage      struct {
				Type  string          `json:"type"`
				Value json.RawMessage `json:"value"`
			} `json:"leverage"`
			PositionValue json.RawMessage `json:"positionValue"`
			UnrealizedPnl json.RawMessage `json:"unrealizedPnl"`
			MarginUsed    json.RawMessage `json:"marginUsed"`
		} `json:"position"`
	} `json:"assetPositions"`
}

// ClearinghouseState fetches a wallet's raw margin-and-positions snapshot.
func (c *Client) ClearinghouseState(ctx context.Context, wallet string) (ClearinghouseState, error) {
	raw, err := c.request(ctx, map[string]string{"type": "clearinghouseState", "user": wallet})
	if err != nil {
		return ClearinghouseState{}, err
	}

	var wire clearinghouseWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return ClearinghouseState{}, &DecodeError{Field: "clearinghouseState", Value: string(raw)}
	}

	out := ClearinghouseState{AssetPositions: make([]AssetPositionEntry, 0, len(wire.AssetPositions))}
	for _, ap := range wire.AssetPositions {
		p := ap.Position
		liqPx, _ := decodeOptionalLiquidationPrice(p.LiquidationPx)
		out.AssetPositions = append(out.AssetPositions, AssetPositionEntry{
			Position: RawPosition{
				Coin:          p.Coin,
				Szi:           numOrZero(p.Szi),
				EntryPx:       numOrZero(p.EntryPx),
				LiquidationPx: liqPx,
				Leverage: RawLeverage{
					Type:  p.Leverage.Type,
					Value: numOrZero(p.Leverage.Value),
				},
				PositionValue: numOrZero(p.PositionValue),
				UnrealizedPnl: numOrZero(p.UnrealizedPnl),
				MarginUsed:    numOrZero(p.MarginUsed),
			},
		})
	}
	return out, nil
}

// UserPositions returns wallet's open, non-dust positions. A non-nil error
// means the clearinghouse lookup itself failed (network/API/decode error,
// already retried per c.retryPolicy) and positions is always nil in that
// case; callers should count this as a real per-wallet failure rather than
// treat it as "wallet has no positions".
func (c *Client) UserPositions(ctx context.Context, wallet string, dustThreshold float64) ([]Position, error) {
	state, err := c.ClearinghouseState(ctx, wallet)
	if err != nil {
		c.log.Debug().Err(err).Str("wallet", wallet).Msg("clearinghouse state unavailable")
		return nil, err
	}

	positions := make([]Position, 0, len(state.AssetPositions))
	for _, ap := range state.AssetPositions {
		p := ap.Position
		if p.Coin == "" {
			continue
		}
		if abs(p.Szi) < dustThreshold {
			continue
		}

		leverage := p.Leverage.Value
		if leverage == 0 {
			leverage = 1
		}

		positions = append(positions, Position{
			Wallet:           wallet,
			Coin:             p.Coin,
			Size:             p.Szi,
			EntryPrice:       p.EntryPx,
			LiquidationPrice: p.LiquidationPx,
			Leverage:         leverage,
			NotionalValue:    abs(p.PositionValue),
			UnrealizedPnL:    p.UnrealizedPnl,
			MarginUsed:       p.MarginUsed,
		})
	}
	return positions, nil
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

type orderBookWire struct {
	Levels [][]struct {
		Px json.RawMessage `json:"px"`
		Sz json.RawMessage `json:"sz"`
		N  json.RawMessage `json:"n"`
	} `json:"levels"`
}

// L2Book fetches the order book for one asset.
func (c *Client) L2Book(ctx context.Context, coin string) (OrderBook, error) {
	raw, err := c.request(ctx, map[string]string{"type": "l2Book", "coin": coin})
	if err != nil {
		return OrderBook{}, err
	}

	var wire orderBookWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return OrderBook{}, &DecodeError{Field: "l2Book", Value: string(raw)}
	}
	if len(wire.Levels) < 2 {
		return OrderBook{}, &DecodeError{Field: "l2Book.levels", Value: string(raw)}
	}

	toLevels := func(side []struct {
		Px json.RawMessage `json:"px"`
		Sz json.RawMessage `json:"sz"`
		N  json.RawMessage `json:"n"`
	}) []OrderBookLevel {
		out := make([]OrderBookLevel, 0, len(side))
		for _, lvl := range side {
			out = append(out, OrderBookLevel{
				Price:     numOrZero(lvl.Px),
				Size:      numOrZero(lvl.Sz),
				NumOrders: int(numOrZero(lvl.N)),
			})
		}
		return out
	}

	return OrderBook{
		Coin: coin,
		Bids: toLevels(wire.Levels[0]),
		Asks: toLevels(wire.Levels[1]),
	}, nil
}

type tradeWire struct {
	Coin  string          `json:"coin"`
	Px    json.RawMessage `json:"px"`
	Sz    json.RawMessage `json:"sz"`
	Side  string          `json:"side"`
	Time  int64           `json:"time"`
	Users []string        `json:"users"`
}

// RecentTrades fetches the most recent trades for one asset.
func (c *Client) RecentTrades(ctx context.Context, coin string) ([]Trade, error) {
	raw, err := c.request(ctx, map[string]string{"type": "recentTrades", "coin": coin})
	if err != nil {
		return nil, err
	}

	var wire []tradeWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, &DecodeError{Field: "recentTrades", Value: string(raw)}
	}

	out := make([]Trade, 0, len(wire))
	for _, t := range wire {
		out = append(out, Trade{
			Coin:  t.Coin,
			Price: numOrZero(t.Px),
			Size:  numOrZero(t.Sz),
			Side:  t.Side,
			Time:  t.Time,
			Users: t.Users,
		})
	}
	return out, nil
}

// AssetInfos merges Meta and per-asset contexts into a lookup by coin name,
// skipping delisted assets and any context with no corresponding universe
// entry.
func (c *Client) AssetInfos(ctx context.Context) (map[string]AssetInfo, error) {
	meta, ctxs, err := c.MetaAndAssetCtxs(ctx)
	if err != nil {
		return nil, err
	}

	out := make(map[string]AssetInfo, len(meta.Universe))
	for i, am := range meta.Universe {
		if i >= len(ctxs) {
			break
		}
		if am.IsDelisted {
			continue
		}
		out[am.Name] = AssetInfo{
			Name:         am.Name,
			MaxLeverage:  am.MaxLeverage,
			SzDecimals:   am.SzDecimals,
			MarkPrice:    ctxs[i].MarkPx,
			OpenInterest: ctxs[i].OpenInterest,
			FundingRate:  ctxs[i].Funding,
		}
	}
	return out, nil
}

// Close releases idle connections held by the underlying transport.
func (c *Client) Close() {
	if transport, ok := c.http.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}
