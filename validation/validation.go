// Package validation applies sanity checks to prices, liquidation clusters,
// positions, and liquidation maps before they feed into trading decisions.
package validation

import (
	"fmt"
	"math"

	"github.com/hlcollector/liqmap/aggregator"
)

// Result is the outcome of one validation call: errors mean the data is
// unusable, warnings flag something worth a second look but not fatal.
type Result struct {
	Valid    bool
	Warnings []string
	Errors   []string
}

func ok(warnings, errs []string) Result {
	return Result{Valid: len(errs) == 0, Warnings: warnings, Errors: errs}
}

func fail(warnings, errs []string) Result {
	return Result{Valid: false, Warnings: warnings, Errors: errs}
}

// priceBound is the expected sane price range for one asset.
type priceBound struct{ min, max float64 }

// priceBounds are rough sanity ranges per asset; prices outside them are
// flagged as warnings, not rejected, since legitimate prices do drift.
var priceBounds = map[string]priceBound{
	"BTC":  {10_000, 500_000},
	"ETH":  {500, 50_000},
	"SOL":  {5, 1_000},
	"DOGE": {0.01, 5},
	"ARB":  {0.1, 50},
	"OP":   {0.1, 50},
	"AVAX": {5, 500},
	"LINK": {1, 500},
	"SUI":  {0.1, 50},
	"APT":  {1, 100},
	"INJ":  {1, 200},
	"TIA":  {1, 100},
	"SEI":  {0.01, 10},
	"WLD":  {0.1, 50},
}

var defaultPriceBound = priceBound{0.0001, 1_000_000}

// Cluster size and position size sanity bounds.
const (
	MinClusterSizeUSD  = 10_000
	MaxClusterSizeUSD  = 10_000_000_000
	MinPositionSizeUSD = 100
	MaxPositionSizeUSD = 1_000_000_000
	MinLeverage        = 1
	MaxLeverage        = 200
)

// ValidatePrice checks a mid/mark price against its positivity and the
// asset's expected range.
func ValidatePrice(coin string, price float64) Result {
	if price <= 0 {
		return fail(nil, []string{fmt.Sprintf("%s: invalid price %g (must be positive)", coin, price)})
	}

	bound, ok2 := priceBounds[coin]
	if !ok2 {
		bound = defaultPriceBound
	}

	var warnings []string
	if price < bound.min {
		warnings = append(warnings, fmt.Sprintf("%s: price %.4f below expected minimum %.4f", coin, price, bound.min))
	}
	if price > bound.max {
		warnings = append(warnings, fmt.Sprintf("%s: price %.4f above expected maximum %.4f", coin, price, bound.max))
	}

	return ok(warnings, nil)
}

// ValidateLiquidationCluster checks a cluster's size and its distance from
// the current price.
func ValidateLiquidationCluster(coin string, priceLevel, sizeUSD, currentPrice float64) Result {
	var warnings, errs []string

	if sizeUSD < MinClusterSizeUSD {
		warnings = append(warnings, fmt.Sprintf("%s: cluster size %.0f below minimum %.0f", coin, sizeUSD, float64(MinClusterSizeUSD)))
	}
	if sizeUSD > MaxClusterSizeUSD {
		errs = append(errs, fmt.Sprintf("%s: cluster size %.0f exceeds maximum %.0f", coin, sizeUSD, float64(MaxClusterSizeUSD)))
		return fail(warnings, errs)
	}

	if currentPrice > 0 {
		distancePct := math.Abs(priceLevel-currentPrice) / currentPrice * 100

		if distancePct > 50 {
			warnings = append(warnings, fmt.Sprintf("%s: cluster at %.2f is %.1f%% from current price", coin, priceLevel, distancePct))
		}
		if distancePct > 100 {
			errs = append(errs, fmt.Sprintf("%s: cluster at %.2f is unrealistically far (%.1f%%) from current", coin, priceLevel, distancePct))
			return fail(warnings, errs)
		}
	}

	return ok(warnings, errs)
}

// ValidatePosition checks a single position's size, leverage, and
// liquidation-price plausibility.
func ValidatePosition(sizeUSD, leverage, liquidationPrice, currentPrice float64) Result {
	var warnings, errs []string

	if sizeUSD < MinPositionSizeUSD {
		warnings = append(warnings, fmt.Sprintf("position size %.0f below tracking threshold", sizeUSD))
	}
	if sizeUSD > MaxPositionSizeUSD {
		errs = append(errs, fmt.Sprintf("position size %.0f exceeds realistic maximum", sizeUSD))
		return fail(warnings, errs)
	}

	if leverage < MinLeverage || leverage > MaxLeverage {
		errs = append(errs, fmt.Sprintf("invalid leverage %gx (expected %g-%gx)", leverage, float64(MinLeverage), float64(MaxLeverage)))
		return fail(warnings, errs)
	}

	if liquidationPrice <= 0 {
		errs = append(errs, fmt.Sprintf("invalid liquidation price: %g", liquidationPrice))
		return fail(warnings, errs)
	}

	if currentPrice > 0 {
		distancePct := math.Abs(liquidationPrice-currentPrice) / currentPrice * 100
		if distancePct < 0.1 {
			warnings = append(warnings, fmt.Sprintf("liquidation very close to current price (%.2f%%)", distancePct))
		}
		if distancePct > 90 {
			warnings = append(warnings, fmt.Sprintf("liquidation very far from current price (%.1f%%)", distancePct))
		}
	}

	return ok(warnings, errs)
}

// ValidateLiquidationMap sanity-checks a fully aggregated map: long clusters
// should sit below the current price, short clusters above it, and the
// long/short imbalance shouldn't be extreme.
func ValidateLiquidationMap(coin string, m aggregator.Map) Result {
	if len(m.LongLiquidations) == 0 && len(m.ShortLiquidations) == 0 {
		return ok([]string{fmt.Sprintf("%s: empty liquidation map", coin)}, nil)
	}

	var warnings []string
	currentPrice := m.CurrentPrice

	var totalLong, totalShort float64
	for _, c := range m.LongLiquidations {
		totalLong += c.TotalSizeUSD
		if c.PriceCenter > currentPrice {
			warnings = append(warnings, fmt.Sprintf("%s: long liquidation at %.2f is above current %.2f", coin, c.PriceCenter, currentPrice))
		}
	}
	for _, c := range m.ShortLiquidations {
		totalShort += c.TotalSizeUSD
		if c.PriceCenter < currentPrice {
			warnings = append(warnings, fmt.Sprintf("%s: short liquidation at %.2f is below current %.2f", coin, c.PriceCenter, currentPrice))
		}
	}

	if totalLong > 0 && totalShort > 0 {
		ratio := math.Max(totalLong, totalShort) / math.Min(totalLong, totalShort)
		if ratio > 100 {
			warnings = append(warnings, fmt.Sprintf("%s: extreme long/short imbalance (%.0fx)", coin, ratio))
		}
	}

	return ok(warnings, nil)
}
