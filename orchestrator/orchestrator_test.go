package orchestrator

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hlcollector/liqmap/aggregator"
	"github.com/hlcollector/liqmap/config"
	"github.com/hlcollector/liqmap/marketdata"
	"github.com/hlcollector/liqmap/registry"
	"github.com/hlcollector/liqmap/scanner"
	"github.com/hlcollector/liqmap/store"
	"github.com/hlcollector/liqmap/venue"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// fakeVenue serves just enough of the info API for one collection cycle:
// allMids, clearinghouseState for a single tracked wallet, and
// metaAndAssetCtxs for the market data fetch.
func fakeVenue(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		w.Header().Set("Content-Type", "application/json")
		switch req["type"] {
		case "allMids":
			json.NewEncoder(w).Encode(map[string]string{"BTC": "50000"})
		case "clearinghouseState":
			json.NewEncoder(w).Encode(map[string]any{
				"assetPositions": []map[string]any{
					{
						"position": map[string]any{
							"coin":          "BTC",
							"szi":           "1.0",
							"entryPx":       "48000",
							"liquidationPx": "44000",
							"leverage":      map[string]any{"type": "cross", "value": "5"},
							"positionValue": "50000",
							"unrealizedPnl": "2000",
							"marginUsed":    "10000",
						},
					},
				},
			})
		case "metaAndAssetCtxs":
			json.NewEncoder(w).Encode([]any{
				map[string]any{"universe": []map[string]any{{"name": "BTC", "maxLeverage": 50, "szDecimals": 5}}},
				[]map[string]any{{"markPx": "50000", "openInterest": "100", "funding": "0.0001", "prevDayPx": "49000"}},
			})
		default:
			json.NewEncoder(w).Encode(map[string]any{})
		}
	}))
}

func testOrchestrator(t *testing.T) (*Orchestrator, *registry.Registry) {
	t.Helper()
	srv := fakeVenue(t)
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	cfg := &config.Config{
		APIURL:               srv.URL,
		APIRequestsPerSecond: 10,
		MinRequestSpacing:    0,
		RequestTimeout:       5 * time.Second,
		MinPositionUSD:       100,
		DustThreshold:        0.0001,
		MaxWalletsToTrack:    100,
		PriceBucketPercent:   0.1,
		MinClusterSizeUSD:    1_000,
		ClusterMergePercent:  0.5,
		AlertClusterSizeUSD:  500_000,
		WalletBootstrapFloor: 0,
		WalletMaxAgeHours:    24,
		WalletBackfillAssets: 1,
		WalletCacheFile:      filepath.Join(dir, "wallets.json"),
		LiquidationMapFile:   filepath.Join(dir, "liquidation_map.json"),
		DatabasePath:         filepath.Join(dir, "historical.db"),
	}

	log := zerolog.New(io.Discard)
	client := venue.New(cfg, log)
	reg := registry.New(cfg, log)
	reg.Add("0xabc")

	sc := scanner.New(cfg, client, log)
	agg := aggregator.New(cfg)
	market := marketdata.New(client, log)

	st, err := store.Open(cfg.DatabasePath, log)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	o := New(cfg, client, reg, sc, agg, market, st, log)
	return o, reg
}

func TestRunOnceProducesAndPersistsLiquidationMap(t *testing.T) {
	o, _ := testOrchestrator(t)
	ctx := context.Background()

	coins, err := o.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, coins)

	data, err := o.historical.GetSnapshots(ctx, "BTC", time.Now().Add(-time.Hour), time.Now().Add(time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, data, 1)
}

func TestRunOnceWritesLiquidationMapFile(t *testing.T) {
	o, _ := testOrchestrator(t)

	_, err := o.RunOnce(context.Background())
	require.NoError(t, err)

	raw, err := os.ReadFile(o.cfg.LiquidationMapFile)
	require.NoError(t, err)

	var maps map[string]aggregator.Map
	require.NoError(t, json.Unmarshal(raw, &maps))
	require.Contains(t, maps, "BTC")
}

func TestStartAndStopShutsDownCleanly(t *testing.T) {
	o, _ := testOrchestrator(t)
	o.cfg.ScanIntervalSeconds = 3600

	o.Start(context.Background(), nil)
	time.Sleep(50 * time.Millisecond)
	o.Stop()
}
