package marketdata

import (
	"testing"

	"github.com/hlcollector/liqmap/venue"
	"github.com/stretchr/testify/assert"
)

func TestDepthWithinPctSumsBidsAboveThreshold(t *testing.T) {
	levels := []venue.OrderBookLevel{
		{Price: 99.8, Size: 2},
		{Price: 99.0, Size: 5},
	}
	// mid=100, 0.5% below = 99.5, only the 99.8 level qualifies.
	depth := depthWithinPct(levels, 100, 0.5, true)
	assert.InDelta(t, 199.6, depth, 0.01)
}

func TestDepthWithinPctSumsAsksBelowThreshold(t *testing.T) {
	levels := []venue.OrderBookLevel{
		{Price: 100.2, Size: 3},
		{Price: 101.0, Size: 5},
	}
	depth := depthWithinPct(levels, 100, 0.5, false)
	assert.InDelta(t, 300.6, depth, 0.01)
}

func TestTopCoinsByOIOrdersDescendingAndLimits(t *testing.T) {
	data := map[string]*AssetData{
		"BTC": {OpenInterestUSD: 500},
		"ETH": {OpenInterestUSD: 1000},
		"SOL": {OpenInterestUSD: 100},
	}

	top := topCoinsByOI(data, 2)
	assert.Equal(t, []string{"ETH", "BTC"}, top)
}
