package venue

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hlcollector/liqmap/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func fakeTradeServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		var sub wsSubscribeMsg
		require.NoError(t, conn.ReadJSON(&sub))

		frame := map[string]any{
			"channel": "trades",
			"data": []map[string]any{
				{"coin": "BTC", "px": "50000", "sz": "1.5", "side": "B", "users": []string{"0xabc", "0xdef"}},
			},
		}
		require.NoError(t, conn.WriteJSON(frame))

		// Keep the connection open until the client disconnects.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func TestTradeStreamDeliversParsedTrades(t *testing.T) {
	srv := fakeTradeServer(t)
	defer srv.Close()

	cfg := &config.Config{
		WSURL:                 "ws" + strings.TrimPrefix(srv.URL, "http"),
		ReconnectInitialDelay: 10 * time.Millisecond,
		ReconnectMaxDelay:     100 * time.Millisecond,
		ReconnectFactor:       2,
	}

	stream := NewTradeStream(cfg, []string{"BTC"}, zerolog.New(io.Discard))

	received := make(chan TradeEvent, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go stream.Run(ctx, func(ev TradeEvent) {
		select {
		case received <- ev:
		default:
		}
	})

	select {
	case ev := <-received:
		require.Equal(t, "BTC", ev.Coin)
		require.Equal(t, 50000.0, ev.Price)
		require.Equal(t, 1.5, ev.Size)
		require.Equal(t, []string{"0xabc", "0xdef"}, ev.Users)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for trade event")
	}
}
