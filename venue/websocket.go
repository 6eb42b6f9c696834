package venue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hlcollector/liqmap/config"
	"github.com/rs/zerolog"
)

// TradeEvent is one fill reported on the trades WebSocket channel, carrying
// the wallet addresses involved so callers can use it for wallet discovery.
type TradeEvent struct {
	Coin  string
	Price float64
	Size  float64
	Side  string
	Users []string
}

type wsSubscribeMsg struct {
	Method       string            `json:"method"`
	Subscription wsSubscriptionDef `json:"subscription"`
}

type wsSubscriptionDef struct {
	Type string `json:"type"`
	Coin string `json:"coin"`
}

type wsTradeFrame struct {
	Channel string `json:"channel"`
	Data    []struct {
		Coin  string          `json:"coin"`
		Px    json.RawMessage `json:"px"`
		Sz    json.RawMessage `json:"sz"`
		Side  string          `json:"side"`
		Users []string        `json:"users"`
	} `json:"data"`
}

// TradeStream maintains a reconnecting WebSocket subscription to the trades
// channel for a fixed set of assets, delivering parsed TradeEvents to a
// handler until the context is cancelled.
type TradeStream struct {
	wsURL   string
	assets  []string
	initial time.Duration
	max     time.Duration
	factor  float64
	log     zerolog.Logger
}

// NewTradeStream builds a TradeStream for the given assets using cfg's
// reconnect schedule.
func NewTradeStream(cfg *config.Config, assets []string, log zerolog.Logger) *TradeStream {
	return &TradeStream{
		wsURL:   cfg.WSURL,
		assets:  assets,
		initial: cfg.ReconnectInitialDelay,
		max:     cfg.ReconnectMaxDelay,
		factor:  cfg.ReconnectFactor,
		log:     log.With().Str("component", "trade_stream").Logger(),
	}
}

// Run connects and re-connects with exponential backoff until ctx is done.
// Each received trade is passed to handle; frames that are not valid JSON or
// not on the trades channel are skipped.
func (s *TradeStream) Run(ctx context.Context, handle func(TradeEvent)) {
	delay := s.initial

	for {
		if ctx.Err() != nil {
			return
		}

		err := s.runOnce(ctx, handle)
		if ctx.Err() != nil {
			return
		}

		s.log.Warn().Err(err).Dur("retry_in", delay).Msg("trade stream disconnected, reconnecting")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}

		delay = time.Duration(float64(delay) * s.factor)
		if delay > s.max {
			delay = s.max
		}
	}
}

func (s *TradeStream) runOnce(ctx context.Context, handle func(TradeEvent)) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.wsURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	for _, coin := range s.assets {
		msg := wsSubscribeMsg{
			Method:       "subscribe",
			Subscription: wsSubscriptionDef{Type: "trades", Coin: coin},
		}
		if err := conn.WriteJSON(msg); err != nil {
			return err
		}
	}

	s.log.Info().Int("assets", len(s.assets)).Msg("trade stream connected")

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var frame wsTradeFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			continue
		}
		if frame.Channel != "trades" {
			continue
		}

		for _, t := range frame.Data {
			handle(TradeEvent{
				Coin:  t.Coin,
				Price: numOrZero(t.Px),
				Size:  numOrZero(t.Sz),
				Side:  t.Side,
				Users: t.Users,
			})
		}
	}
}
