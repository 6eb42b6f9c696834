package registry

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

	"github.com/hlcollector/liqmap/config"
	"github.com/hlcollector/liqmap/venue"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	cfg := &config.Config{WalletCacheFile: filepath.Join(t.TempDir(), "wallets.json")}
	log := zerolog.New(io.Discard)
	return New(cfg, log)
}

func TestAddReportsNewWallets(t *testing.T) {
	r := testRegistry(t)

	assert.True(t, r.Add("0xABC"))
	assert.False(t, r.Add("0xabc"))
	assert.Equal(t, 1, r.Len())
}

func TestAddFromTradesCountsUniqueWallets(t *testing.T) {
	r := testRegistry(t)

	trades := []venue.TradeEvent{
		{Coin: "BTC", Users: []string{"0xaaa", "0xbbb"}},
		{Coin: "BTC", Users: []string{"0xaaa"}},
	}
	newCount := r.AddFromTrades(trades)

	assert.Equal(t, 2, newCount)
	assert.Equal(t, 2, r.Len())
}

func TestWalletsFiltersByAgeAndActivity(t *testing.T) {
	r := testRegistry(t)
	r.Add("0xaaa")
	r.lastSeen["0xbbb"] = time.Now().Add(-48 * time.Hour)
	r.tradeCount["0xbbb"] = 5

	active := r.Wallets(1, 24*time.Hour)
	assert.Contains(t, active, "0xaaa")
	assert.NotContains(t, active, "0xbbb")
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	r := testRegistry(t)
	r.Add("0xaaa")
	r.Add("0xbbb")
	r.Add("0xaaa")

	require.NoError(t, r.Save())

	loaded := New(&config.Config{WalletCacheFile: r.cacheFile}, zerolog.New(io.Discard))
	require.NoError(t, loaded.Load())

	assert.Equal(t, 2, loaded.Len())
	assert.Equal(t, int64(2), loaded.tradeCount["0xaaa"])
}

func TestSaveWritesISO8601Timestamps(t *testing.T) {
	r := testRegistry(t)
	r.Add("0xaaa")
	require.NoError(t, r.Save())

	raw, err := os.ReadFile(r.cacheFile)
	require.NoError(t, err)

	var data cacheFile
	require.NoError(t, json.Unmarshal(raw, &data))

	_, err = time.Parse(time.RFC3339, data.SavedAt)
	assert.NoError(t, err)
	_, err = time.Parse(time.RFC3339, data.LastSeen["0xaaa"])
	assert.NoError(t, err)
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	r := testRegistry(t)
	require.NoError(t, r.Load())
	assert.Equal(t, 0, r.Len())
}

func TestBackfillFromRecentTradesDiscoversWalletsAcrossAssets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]map[string]any{
			{"coin": body["coin"], "px": "100", "sz": "1", "side": "B", "time": 1, "users": []string{"0xaaa", "0xbbb"}},
		})
	}))
	defer srv.Close()

	cfg := &config.Config{
		APIURL:               srv.URL,
		APIRequestsPerSecond: 10,
		RequestTimeout:       5 * time.Second,
	}
	log := zerolog.New(io.Discard)
	client := venue.New(cfg, log)
	r := testRegistry(t)

	newCount := r.BackfillFromRecentTrades(context.Background(), client, []string{"BTC", "ETH"})

	assert.Equal(t, 2, newCount)
	assert.Equal(t, 2, r.Len())
}
