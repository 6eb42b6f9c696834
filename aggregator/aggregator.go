// Package aggregator turns raw liquidation levels into price-bucketed
// clusters and the per-asset liquidation map built from them.
package aggregator

import (
	"math"
	"sort"

	"github.com/hlcollector/liqmap/config"
	"github.com/hlcollector/liqmap/scanner"
)

// Cluster is a group of liquidation levels at similar prices. Field tags
// fix the wire shape spec.md §6 promises the dashboard consumer; they must
// not drift from {coin, side, price_low, price_high, price_center,
// total_size_usd, position_count, avg_leverage}.
type Cluster struct {
	Coin          string  `json:"coin"`
	Side          string  `json:"side"` // "long" or "short"
	PriceLow      float64 `json:"price_low"`
	PriceHigh     float64 `json:"price_high"`
	PriceCenter   float64 `json:"price_center"`
	TotalSizeUSD  float64 `json:"total_size_usd"`
	PositionCount int     `json:"position_count"`
	AvgLeverage   float64 `json:"avg_leverage"`
}

// PriceRangePercent is the cluster's width as a percentage of its center price.
func (c Cluster) PriceRangePercent() float64 {
	if c.PriceCenter == 0 {
		return 0
	}
	return ((c.PriceHigh - c.PriceLow) / c.PriceCenter) * 100
}

// Map is the complete liquidation map for one asset, matching spec.md §6's
// data/liquidation_map.json entry shape.
type Map struct {
	Coin                string    `json:"coin"`
	CurrentPrice        float64   `json:"current_price"`
	LongLiquidations    []Cluster `json:"long_liquidations"`  // below current price
	ShortLiquidations   []Cluster `json:"short_liquidations"` // above current price
	TotalLongAtRiskUSD  float64   `json:"total_long_at_risk_usd"`
	TotalShortAtRiskUSD float64   `json:"total_short_at_risk_usd"`
	NearestLongCluster  *Cluster  `json:"nearest_long_cluster"`
	NearestShortCluster *Cluster  `json:"nearest_short_cluster"`
}

// minBucketClusterUSD is the floor below which a single price bucket is
// dropped as noise before any merge pass runs.
const minBucketClusterUSD = 10_000

// Aggregator buckets raw liquidation levels into clusters per spec.md's
// price-bucketing and merge rules.
type Aggregator struct {
	bucketPercent   float64
	minClusterSize  float64
	mergePercent    float64
}

// New builds an Aggregator from cfg.
func New(cfg *config.Config) *Aggregator {
	return &Aggregator{
		bucketPercent:  cfg.PriceBucketPercent,
		minClusterSize: cfg.MinClusterSizeUSD,
		mergePercent:   cfg.ClusterMergePercent,
	}
}

func (a *Aggregator) priceToBucket(price, referencePrice float64) int {
	if referencePrice <= 0 {
		return 0
	}
	pctDiff := ((price - referencePrice) / referencePrice) * 100
	return int(math.Floor(pctDiff / a.bucketPercent))
}

func (a *Aggregator) bucketToPriceRange(bucket int, referencePrice float64) (low, high float64) {
	pctLow := float64(bucket) * a.bucketPercent
	pctHigh := float64(bucket+1) * a.bucketPercent
	low = referencePrice * (1 + pctLow/100)
	high = referencePrice * (1 + pctHigh/100)
	return low, high
}

// AggregateLevels builds a liquidation Map for one coin from its raw
// liquidation levels and the asset's current price.
func (a *Aggregator) AggregateLevels(levels []scanner.LiquidationLevel, currentPrice float64, coin string) Map {
	if len(levels) == 0 || currentPrice <= 0 {
		return Map{Coin: coin, CurrentPrice: currentPrice}
	}

	var longLevels, shortLevels []scanner.LiquidationLevel
	for _, l := range levels {
		if l.Side == "long" {
			longLevels = append(longLevels, l)
		} else {
			shortLevels = append(shortLevels, l)
		}
	}

	longClusters := a.aggregateToClusters(longLevels, currentPrice, "long")
	shortClusters := a.aggregateToClusters(shortLevels, currentPrice, "short")

	sort.Slice(longClusters, func(i, j int) bool {
		return currentPrice-longClusters[i].PriceCenter < currentPrice-longClusters[j].PriceCenter
	})
	sort.Slice(shortClusters, func(i, j int) bool {
		return shortClusters[i].PriceCenter-currentPrice < shortClusters[j].PriceCenter-currentPrice
	})

	var totalLong, totalShort float64
	for _, c := range longClusters {
		totalLong += c.TotalSizeUSD
	}
	for _, c := range shortClusters {
		totalShort += c.TotalSizeUSD
	}

	var nearestLong, nearestShort *Cluster
	for i := range longClusters {
		if longClusters[i].TotalSizeUSD >= a.minClusterSize {
			nearestLong = &longClusters[i]
			break
		}
	}
	for i := range shortClusters {
		if shortClusters[i].TotalSizeUSD >= a.minClusterSize {
			nearestShort = &shortClusters[i]
			break
		}
	}

	return Map{
		Coin:                coin,
		CurrentPrice:        currentPrice,
		LongLiquidations:    longClusters,
		ShortLiquidations:   shortClusters,
		TotalLongAtRiskUSD:  totalLong,
		TotalShortAtRiskUSD: totalShort,
		NearestLongCluster:  nearestLong,
		NearestShortCluster: nearestShort,
	}
}

func (a *Aggregator) aggregateToClusters(levels []scanner.LiquidationLevel, referencePrice float64, side string) []Cluster {
	if len(levels) == 0 {
		return nil
	}

	buckets := make(map[int][]scanner.LiquidationLevel)
	var bucketOrder []int
	for _, level := range levels {
		bucket := a.priceToBucket(level.Price, referencePrice)
		if _, ok := buckets[bucket]; !ok {
			bucketOrder = append(bucketOrder, bucket)
		}
		buckets[bucket] = append(buckets[bucket], level)
	}

	clusters := make([]Cluster, 0, len(bucketOrder))
	for _, bucket := range bucketOrder {
		bucketLevels := buckets[bucket]

		var totalSize float64
		for _, l := range bucketLevels {
			totalSize += l.SizeUSD
		}
		if totalSize < minBucketClusterUSD {
			continue
		}

		priceLow, priceHigh := a.bucketToPriceRange(bucket, referencePrice)

		var weightedLeverage float64
		for _, l := range bucketLevels {
			weightedLeverage += l.Leverage * l.SizeUSD
		}

		clusters = append(clusters, Cluster{
			Coin:          bucketLevels[0].Coin,
			Side:          side,
			PriceLow:      priceLow,
			PriceHigh:     priceHigh,
			PriceCenter:   (priceLow + priceHigh) / 2,
			TotalSizeUSD:  totalSize,
			PositionCount: len(bucketLevels),
			AvgLeverage:   weightedLeverage / totalSize,
		})
	}

	return a.mergeAdjacentClusters(clusters)
}

// mergeAdjacentClusters merges neighboring clusters when the gap between
// them is small and BOTH are still below the minimum cluster size, per
// spec.md's adjacent-small-cluster merge rule.
func (a *Aggregator) mergeAdjacentClusters(clusters []Cluster) []Cluster {
	if len(clusters) < 2 {
		return clusters
	}

	sort.Slice(clusters, func(i, j int) bool {
		return clusters[i].PriceCenter < clusters[j].PriceCenter
	})

	merged := make([]Cluster, 0, len(clusters))
	current := clusters[0]

	for _, next := range clusters[1:] {
		gapPercent := ((next.PriceLow - current.PriceHigh) / current.PriceCenter) * 100

		shouldMerge := gapPercent < a.mergePercent &&
			current.TotalSizeUSD < a.minClusterSize &&
			next.TotalSizeUSD < a.minClusterSize

		if shouldMerge {
			totalSize := current.TotalSizeUSD + next.TotalSizeUSD
			current = Cluster{
				Coin:          current.Coin,
				Side:          current.Side,
				PriceLow:      current.PriceLow,
				PriceHigh:     next.PriceHigh,
				PriceCenter:   (current.PriceLow + next.PriceHigh) / 2,
				TotalSizeUSD:  totalSize,
				PositionCount: current.PositionCount + next.PositionCount,
				AvgLeverage:   (current.AvgLeverage*current.TotalSizeUSD + next.AvgLeverage*next.TotalSizeUSD) / totalSize,
			}
		} else {
			merged = append(merged, current)
			current = next
		}
	}
	merged = append(merged, current)

	return merged
}

// BuildMapsFromLevels groups levels by coin and builds a Map for each one
// that has a known current price.
func (a *Aggregator) BuildMapsFromLevels(allLevels []scanner.LiquidationLevel, prices map[string]float64) map[string]Map {
	levelsByCoin := make(map[string][]scanner.LiquidationLevel)
	for _, l := range allLevels {
		levelsByCoin[l.Coin] = append(levelsByCoin[l.Coin], l)
	}

	maps := make(map[string]Map, len(levelsByCoin))
	for coin, levels := range levelsByCoin {
		price := prices[coin]
		if price > 0 {
			maps[coin] = a.AggregateLevels(levels, price, coin)
		}
	}
	return maps
}
