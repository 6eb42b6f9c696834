package scanner

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hlcollector/liqmap/config"
	"github.com/hlcollector/liqmap/venue"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelsForCoinFiltersByCoin(t *testing.T) {
	result := Result{
		LiquidationLevels: []LiquidationLevel{
			{Coin: "BTC", Price: 50000},
			{Coin: "ETH", Price: 3000},
			{Coin: "BTC", Price: 51000},
		},
	}

	btc := LevelsForCoin(result, "BTC")
	assert.Len(t, btc, 2)
	assert.Equal(t, 50000.0, btc[0].Price)
}

func TestLevelsForCoinEmptyWhenNoMatch(t *testing.T) {
	result := Result{LiquidationLevels: []LiquidationLevel{{Coin: "ETH"}}}
	assert.Empty(t, LevelsForCoin(result, "BTC"))
}

func TestPositionSideMatchesSign(t *testing.T) {
	long := venue.Position{Size: 1.5}
	short := venue.Position{Size: -2.0}
	assert.Equal(t, "long", long.Side())
	assert.Equal(t, "short", short.Side())
}

// TestScanWalletsCountsPerWalletFailures locks in that a genuine
// clearinghouse-state failure for one wallet is counted in Result.Errors
// rather than silently dropped alongside a successful wallet's positions.
func TestScanWalletsCountsPerWalletFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		if body["user"] == "0xbad" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte("unknown wallet"))
			return
		}

		json.NewEncoder(w).Encode(map[string]any{
			"assetPositions": []map[string]any{
				{
					"position": map[string]any{
						"coin": "BTC", "szi": "1.0", "entryPx": "48000",
						"liquidationPx": "44000", "leverage": map[string]any{"type": "cross", "value": "5"},
						"positionValue": "50000", "unrealizedPnl": "2000", "marginUsed": "10000",
					},
				},
			},
		})
	}))
	defer srv.Close()

	cfg := &config.Config{
		APIURL:               srv.URL,
		APIRequestsPerSecond: 10,
		RequestTimeout:       5 * time.Second,
		MinPositionUSD:       100,
		DustThreshold:        0.0001,
	}
	log := zerolog.New(io.Discard)
	client := venue.New(cfg, log)
	s := New(cfg, client, log)

	result, err := s.ScanWallets(context.Background(), []string{"0xgood", "0xbad"})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Errors)
	assert.Equal(t, 1, result.TotalPositionsFound)
}
