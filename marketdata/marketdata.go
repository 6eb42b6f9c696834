// Package marketdata fetches per-asset market context (open interest,
// funding, volume) and, for the top assets by open interest, order-book
// liquidity depth and imbalance.
package marketdata

import (
	"context"
	"sort"
	"time"

	"github.com/hlcollector/liqmap/venue"
	"github.com/rs/zerolog"
)

// Liquidity holds order-book-derived depth and imbalance metrics for one asset.
type Liquidity struct {
	Coin          string
	Timestamp     time.Time
	BestBid       float64
	BestAsk       float64
	SpreadPercent float64

	BidDepth05Pct float64
	AskDepth05Pct float64
	BidDepth1Pct  float64
	AskDepth1Pct  float64
	BidDepth2Pct  float64
	AskDepth2Pct  float64

	Imbalance05Pct float64
	Imbalance1Pct  float64
}

// AssetData is the full market snapshot for one asset.
type AssetData struct {
	Coin      string
	Timestamp time.Time

	MarkPrice   float64
	OraclePrice float64
	MidPrice    float64

	OpenInterest    float64
	OpenInterestUSD float64

	Volume24hUSD  float64
	Volume24hBase float64

	FundingRate           float64
	FundingRateAnnualized float64
	Premium               float64

	PrevDayPrice      float64
	PriceChange24hPct float64

	Liquidity *Liquidity
}

// Fetcher pulls market data for all tracked assets from the venue client.
type Fetcher struct {
	client *venue.Client
	log    zerolog.Logger
}

// New builds a Fetcher.
func New(client *venue.Client, log zerolog.Logger) *Fetcher {
	return &Fetcher{client: client, log: log.With().Str("component", "market_data").Logger()}
}

// topAssetsByOI bounds how many assets get the (expensive) order-book fetch
// when includeLiquidity is requested.
const topAssetsByOI = 20

// FetchAll fetches market context for every listed asset, optionally
// enriching the top assets by open interest with order-book liquidity.
func (f *Fetcher) FetchAll(ctx context.Context, includeLiquidity bool) (map[string]*AssetData, error) {
	timestamp := time.Now()

	meta, ctxs, err := f.client.MetaAndAssetCtxs(ctx)
	if err != nil {
		return nil, err
	}

	results := make(map[string]*AssetData, len(meta.Universe))
	for i, ctxVal := range ctxs {
		if i >= len(meta.Universe) {
			break
		}
		coin := meta.Universe[i].Name

		openInterestUSD := ctxVal.OpenInterest * ctxVal.MarkPx
		fundingAnnualized := ctxVal.Funding * 24 * 365 * 100

		var priceChangePct float64
		if ctxVal.PrevDayPx > 0 {
			priceChangePct = ((ctxVal.MarkPx - ctxVal.PrevDayPx) / ctxVal.PrevDayPx) * 100
		}

		results[coin] = &AssetData{
			Coin:                  coin,
			Timestamp:             timestamp,
			MarkPrice:             ctxVal.MarkPx,
			OraclePrice:           ctxVal.OraclePx,
			MidPrice:              ctxVal.MidPx,
			OpenInterest:          ctxVal.OpenInterest,
			OpenInterestUSD:       openInterestUSD,
			Volume24hUSD:          ctxVal.DayNtlVlm,
			Volume24hBase:         ctxVal.DayBaseVlm,
			FundingRate:           ctxVal.Funding,
			FundingRateAnnualized: fundingAnnualized,
			Premium:               ctxVal.Premium,
			PrevDayPrice:          ctxVal.PrevDayPx,
			PriceChange24hPct:     priceChangePct,
		}
	}

	if includeLiquidity {
		top := topCoinsByOI(results, topAssetsByOI)
		for _, coin := range top {
			liquidity, err := f.FetchLiquidity(ctx, coin, results[coin].MarkPrice)
			if err != nil {
				f.log.Debug().Err(err).Str("coin", coin).Msg("liquidity fetch failed")
				continue
			}
			if liquidity != nil {
				results[coin].Liquidity = liquidity
			}
			time.Sleep(100 * time.Millisecond)
		}
	}

	return results, nil
}

func topCoinsByOI(data map[string]*AssetData, limit int) []string {
	coins := make([]string, 0, len(data))
	for coin := range data {
		coins = append(coins, coin)
	}
	sort.Slice(coins, func(i, j int) bool {
		return data[coins[i]].OpenInterestUSD > data[coins[j]].OpenInterestUSD
	})
	if len(coins) > limit {
		coins = coins[:limit]
	}
	return coins
}

// FetchLiquidity computes depth and imbalance metrics for one asset's order
// book. markPrice, if positive, is used as the reference mid instead of the
// book's own best-bid/best-ask midpoint.
func (f *Fetcher) FetchLiquidity(ctx context.Context, coin string, markPrice float64) (*Liquidity, error) {
	book, err := f.client.L2Book(ctx, coin)
	if err != nil {
		return nil, err
	}
	if len(book.Bids) == 0 || len(book.Asks) == 0 {
		return nil, nil
	}

	bestBid := book.Bids[0].Price
	bestAsk := book.Asks[0].Price
	mid := (bestBid + bestAsk) / 2
	if markPrice > 0 {
		mid = markPrice
	}

	spreadPercent := ((bestAsk - bestBid) / mid) * 100

	bid05 := depthWithinPct(book.Bids, mid, 0.5, true)
	ask05 := depthWithinPct(book.Asks, mid, 0.5, false)
	bid1 := depthWithinPct(book.Bids, mid, 1.0, true)
	ask1 := depthWithinPct(book.Asks, mid, 1.0, false)
	bid2 := depthWithinPct(book.Bids, mid, 2.0, true)
	ask2 := depthWithinPct(book.Asks, mid, 2.0, false)

	var imbalance05, imbalance1 float64
	if bid05+ask05 > 0 {
		imbalance05 = (bid05 - ask05) / (bid05 + ask05)
	}
	if bid1+ask1 > 0 {
		imbalance1 = (bid1 - ask1) / (bid1 + ask1)
	}

	return &Liquidity{
		Coin:           coin,
		Timestamp:      time.Now(),
		BestBid:        bestBid,
		BestAsk:        bestAsk,
		SpreadPercent:  spreadPercent,
		BidDepth05Pct:  bid05,
		AskDepth05Pct:  ask05,
		BidDepth1Pct:   bid1,
		AskDepth1Pct:   ask1,
		BidDepth2Pct:   bid2,
		AskDepth2Pct:   ask2,
		Imbalance05Pct: imbalance05,
		Imbalance1Pct:  imbalance1,
	}, nil
}

// depthWithinPct sums notional size (price * size) for levels within pct% of
// mid, in the direction appropriate to the side.
func depthWithinPct(levels []venue.OrderBookLevel, mid, pct float64, isBid bool) float64 {
	var threshold float64
	if isBid {
		threshold = mid * (1 - pct/100)
	} else {
		threshold = mid * (1 + pct/100)
	}

	var total float64
	for _, lvl := range levels {
		if isBid && lvl.Price >= threshold {
			total += lvl.Size * lvl.Price
		} else if !isBid && lvl.Price <= threshold {
			total += lvl.Size * lvl.Price
		}
	}
	return total
}

// AssetsByOpenInterest returns coins sorted by open interest, descending.
func AssetsByOpenInterest(data map[string]*AssetData, limit int) []string {
	return topCoinsByOI(data, limit)
}
