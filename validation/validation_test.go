package validation

import (
	"testing"

	"github.com/hlcollector/liqmap/aggregator"
	"github.com/stretchr/testify/assert"
)

func TestValidatePriceRejectsNonPositive(t *testing.T) {
	r := ValidatePrice("BTC", 0)
	assert.False(t, r.Valid)
	assert.NotEmpty(t, r.Errors)
}

func TestValidatePriceWarnsOutsideKnownBounds(t *testing.T) {
	r := ValidatePrice("BTC", 1)
	assert.True(t, r.Valid)
	assert.NotEmpty(t, r.Warnings)
}

func TestValidatePriceUsesDefaultBoundsForUnknownAsset(t *testing.T) {
	r := ValidatePrice("UNKNOWNCOIN", 42)
	assert.True(t, r.Valid)
	assert.Empty(t, r.Warnings)
}

func TestValidateLiquidationClusterRejectsFarCluster(t *testing.T) {
	r := ValidateLiquidationCluster("BTC", 200_000, 50_000, 50_000)
	assert.False(t, r.Valid)
}

func TestValidateLiquidationClusterWarnsModeratelyFar(t *testing.T) {
	r := ValidateLiquidationCluster("BTC", 76_000, 50_000, 50_000)
	assert.True(t, r.Valid)
	assert.NotEmpty(t, r.Warnings)
}

func TestValidatePositionRejectsBadLeverage(t *testing.T) {
	r := ValidatePosition(1000, 500, 45_000, 50_000)
	assert.False(t, r.Valid)
}

func TestValidatePositionRejectsNonPositiveLiquidationPrice(t *testing.T) {
	r := ValidatePosition(1000, 10, 0, 50_000)
	assert.False(t, r.Valid)
}

func TestValidatePositionWarnsOnSuspiciouslyCloseLiquidation(t *testing.T) {
	r := ValidatePosition(1000, 10, 49_990, 50_000)
	assert.True(t, r.Valid)
	assert.NotEmpty(t, r.Warnings)
}

func TestValidateLiquidationMapWarnsOnWrongSideClusters(t *testing.T) {
	m := aggregator.Map{
		CurrentPrice:     50_000,
		LongLiquidations: []aggregator.Cluster{{PriceCenter: 51_000, TotalSizeUSD: 100_000}},
	}
	r := ValidateLiquidationMap("BTC", m)
	assert.True(t, r.Valid)
	assert.NotEmpty(t, r.Warnings)
}

func TestValidateLiquidationMapEmptyIsValid(t *testing.T) {
	r := ValidateLiquidationMap("BTC", aggregator.Map{})
	assert.True(t, r.Valid)
	assert.NotEmpty(t, r.Warnings)
}
