package venue

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hlcollector/liqmap/config"
	"github.com/hlcollector/liqmap/retry"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := &config.Config{
		APIURL:               srv.URL,
		APIRequestsPerSecond: 20,
		MinRequestSpacing:    0,
		RequestTimeout:       5 * time.Second,
	}
	c := New(cfg, zerolog.New(io.Discard))
	c.retryPolicy = retry.Policy{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, ExponentialBase: 1}
	return c
}

func TestAllMidsSkipsPseudoSymbols(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"BTC": "50000.5", "@1": "1.0"})
	})

	mids, err := c.AllMids(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 50000.5, mids["BTC"])
	assert.NotContains(t, mids, "@1")
}

func TestUserPositionsFiltersDustAndDefaultsLeverage(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"assetPositions": []map[string]any{
				{
					"position": map[string]any{
						"coin": "BTC", "szi": "1.0", "entryPx": "48000",
						"liquidationPx": "44000", "leverage": map[string]any{"type": "cross", "value": "0"},
						"positionValue": "50000", "unrealizedPnl": "2000", "marginUsed": "10000",
					},
				},
				{
					"position": map[string]any{
						"coin": "ETH", "szi": "0.00001", "entryPx": "3000",
						"liquidationPx": nil, "leverage": map[string]any{"type": "cross", "value": "10"},
						"positionValue": "0.03", "unrealizedPnl": "0", "marginUsed": "0",
					},
				},
			},
		})
	})

	positions, err := c.UserPositions(context.Background(), "0xabc", 0.0001)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "BTC", positions[0].Coin)
	assert.Equal(t, 1.0, positions[0].Leverage)
	require.NotNil(t, positions[0].LiquidationPrice)
}

func TestUserPositionsPropagatesClearinghouseFailure(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("internal error"))
	})

	positions, err := c.UserPositions(context.Background(), "0xabc", 0.0001)
	assert.Error(t, err)
	assert.Nil(t, positions)
}

func TestRequestWrapsNon200AsAPIError(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte("rate limited"))
	})

	_, err := c.Meta(context.Background())
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.Status)
	assert.True(t, apiErr.Retryable())
}

func TestRequestRetriesTransientServerErrors(t *testing.T) {
	var attempts int64
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt64(&attempts, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"BTC": "50000"})
	})

	mids, err := c.AllMids(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 50000.0, mids["BTC"])
	assert.Equal(t, int64(2), atomic.LoadInt64(&attempts))
}

func TestL2BookParsesBidsAndAsks(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"levels": [][]map[string]any{
				{{"px": "49900", "sz": "1.5", "n": 3}},
				{{"px": "50100", "sz": "2.0", "n": 4}},
			},
		})
	})

	book, err := c.L2Book(context.Background(), "BTC")
	require.NoError(t, err)
	require.Len(t, book.Bids, 1)
	require.Len(t, book.Asks, 1)
	assert.Equal(t, 49900.0, book.Bids[0].Price)
	assert.Equal(t, 50100.0, book.Asks[0].Price)
}
