// Package orchestrator runs the end-to-end collection cycle: load tracked
// wallets, scan their positions, aggregate liquidation clusters, and persist
// the result — either once or on a continuous interval.
package orchestrator

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/hlcollector/liqmap/aggregator"
	"github.com/hlcollector/liqmap/config"
	"github.com/hlcollector/liqmap/marketdata"
	"github.com/hlcollector/liqmap/registry"
	"github.com/hlcollector/liqmap/scanner"
	"github.com/hlcollector/liqmap/store"
	"github.com/hlcollector/liqmap/validation"
	"github.com/hlcollector/liqmap/venue"
	"github.com/rs/zerolog"
)

// onErrorBackoff is how long a continuous run pauses after a cycle fails,
// matching the original collector's 30s retry delay.
const onErrorBackoff = 30 * time.Second

// Orchestrator wires together every collection component and drives the
// one-shot and continuous collection loops.
type Orchestrator struct {
	cfg        *config.Config
	client     *venue.Client
	registry   *registry.Registry
	scanner    *scanner.Scanner
	agg        *aggregator.Aggregator
	market     *marketdata.Fetcher
	historical *store.Store

	log zerolog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// New builds an Orchestrator from its already-constructed components.
func New(
	cfg *config.Config,
	client *venue.Client,
	reg *registry.Registry,
	sc *scanner.Scanner,
	agg *aggregator.Aggregator,
	market *marketdata.Fetcher,
	historical *store.Store,
	log zerolog.Logger,
) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg,
		client:     client,
		registry:   reg,
		scanner:    sc,
		agg:        agg,
		market:     market,
		historical: historical,
		log:        log.With().Str("component", "orchestrator").Logger(),
		done:       make(chan struct{}),
	}
}

// RunOnce performs one full collection cycle: refresh the wallet set if it's
// thin, scan for positions, aggregate liquidation clusters, validate the
// result, and persist it. It returns the number of coins with a liquidation
// map this cycle.
func (o *Orchestrator) RunOnce(ctx context.Context) (int, error) {
	timestamp := time.Now().UTC()
	o.log.Info().Time("timestamp", timestamp).Msg("starting collection cycle")

	if err := o.ensureWalletFloor(ctx); err != nil {
		o.log.Warn().Err(err).Msg("wallet backfill failed, continuing with existing set")
	}

	wallets := o.registry.Wallets(1, time.Duration(o.cfg.WalletMaxAgeHours)*time.Hour)
	o.log.Info().Int("wallets", len(wallets)).Msg("scanning tracked wallets")

	scanResult, err := o.scanner.ScanWallets(ctx, wallets)
	if err != nil {
		return 0, err
	}

	prices, err := o.client.AllMids(ctx)
	if err != nil {
		return 0, err
	}

	liqMaps := o.agg.BuildMapsFromLevels(scanResult.LiquidationLevels, prices)

	for coin, m := range liqMaps {
		result := validation.ValidateLiquidationMap(coin, m)
		for _, w := range result.Warnings {
			o.log.Warn().Str("coin", coin).Msg(w)
		}
		for _, e := range result.Errors {
			o.log.Error().Str("coin", coin).Msg(e)
		}
	}

	if o.market != nil {
		if marketData, err := o.market.FetchAll(ctx, o.cfg.IncludeLiquidity); err != nil {
			o.log.Warn().Err(err).Msg("market data fetch failed")
		} else {
			top := marketdata.AssetsByOpenInterest(marketData, 5)
			o.log.Info().Strs("top_oi", top).Msg("market data refreshed")
		}
	}

	if o.historical != nil {
		if err := o.historical.StoreSnapshot(ctx, liqMaps, timestamp); err != nil {
			o.log.Error().Err(err).Msg("failed to store liquidation snapshot")
		}
		if err := o.historical.StorePrices(ctx, prices, timestamp); err != nil {
			o.log.Error().Err(err).Msg("failed to store price snapshot")
		}
	}

	if err := saveLiquidationMaps(o.cfg.LiquidationMapFile, liqMaps); err != nil {
		o.log.Error().Err(err).Msg("failed to write liquidation map file")
	}

	if err := o.registry.Save(); err != nil {
		o.log.Error().Err(err).Msg("failed to save wallet registry")
	}

	o.log.Info().
		Int("coins", len(liqMaps)).
		Int("positions", scanResult.TotalPositionsFound).
		Int("scan_errors", scanResult.Errors).
		Msg("collection cycle complete")

	return len(liqMaps), nil
}

// ensureWalletFloor backfills wallets from recent trades when the tracked
// set is thinner than the configured bootstrap floor.
func (o *Orchestrator) ensureWalletFloor(ctx context.Context) error {
	if o.registry.Len() >= o.cfg.WalletBootstrapFloor {
		return nil
	}

	assets := o.cfg.Assets
	if len(assets) > o.cfg.WalletBackfillAssets {
		assets = assets[:o.cfg.WalletBackfillAssets]
	}

	o.log.Info().Int("assets", len(assets)).Msg("wallet set below floor, backfilling from recent trades")
	newCount := o.registry.BackfillFromRecentTrades(ctx, o.client, assets)
	o.log.Info().Int("new_wallets", newCount).Msg("backfill complete")

	return o.registry.Save()
}

// Start begins continuous collection on cfg.ScanIntervalSeconds, including a
// background trade-stream subscription that keeps discovering wallets
// between scan cycles. Call Stop to shut it down gracefully.
func (o *Orchestrator) Start(ctx context.Context, stream *venue.TradeStream) {
	ctx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	if err := o.registry.Load(); err != nil {
		o.log.Warn().Err(err).Msg("failed to load wallet registry, starting empty")
	}

	if stream != nil {
		go stream.Run(ctx, func(t venue.TradeEvent) {
			o.registry.AddFromTrades([]venue.TradeEvent{t})
		})
	}

	go o.runLoop(ctx)
}

// Stop cancels the collection loop and waits for it to exit.
func (o *Orchestrator) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
	<-o.done
}

func (o *Orchestrator) runLoop(ctx context.Context) {
	defer close(o.done)

	interval := time.Duration(o.cfg.ScanIntervalSeconds) * time.Second
	o.log.Info().Dur("interval", interval).Msg("starting continuous collection")

	cycle := 0
	for {
		cycle++
		if _, err := o.RunOnce(ctx); err != nil {
			o.log.Error().Err(err).Int("cycle", cycle).Msg("collection cycle failed, backing off")
			select {
			case <-time.After(onErrorBackoff):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return
		}
	}
}

// saveLiquidationMaps writes the current liquidation maps to disk atomically.
func saveLiquidationMaps(path string, maps map[string]aggregator.Map) error {
	raw, err := json.MarshalIndent(maps, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".liqmap-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}
