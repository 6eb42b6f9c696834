// Package scanner fans out across tracked wallets to collect open positions
// and the liquidation levels implied by them.
package scanner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hlcollector/liqmap/config"
	"github.com/hlcollector/liqmap/venue"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// errScanInProgress is returned by ScanWallets when a scan is already running.
var errScanInProgress = errors.New("scanner: scan already in progress")

// LiquidationLevel is a single position's implied liquidation level.
type LiquidationLevel struct {
	Price    float64
	SizeUSD  float64
	Side     string
	Wallet   string
	Coin     string
	Leverage float64
}

// Result aggregates one full pass over the tracked wallet set.
type Result struct {
	Timestamp            time.Time
	TotalWalletsScanned  int
	TotalPositionsFound  int
	TotalLongExposureUSD float64
	TotalShortExposureUSD float64
	LiquidationLevels    []LiquidationLevel
	PositionsByCoin      map[string][]venue.Position
	Errors               int
}

// Scanner scans a wallet set for positions in rate-limited batches.
type Scanner struct {
	client         *venue.Client
	minPositionUSD float64
	dustThreshold  float64
	maxWallets     int
	batchSize      int

	running sync.Mutex
	log     zerolog.Logger
}

// New builds a Scanner configured from cfg.
func New(cfg *config.Config, client *venue.Client, log zerolog.Logger) *Scanner {
	return &Scanner{
		client:         client,
		minPositionUSD: cfg.MinPositionUSD,
		dustThreshold:  cfg.DustThreshold,
		maxWallets:     cfg.MaxWalletsToTrack,
		batchSize:      cfg.APIRequestsPerSecond,
		log:            log.With().Str("component", "position_scanner").Logger(),
	}
}

// ScanWallets scans the given wallets for positions, batching calls so the
// venue's rate limiter sees steady pressure rather than one giant burst.
// A scan already in progress causes this call to return immediately with
// an error rather than overlap with it.
func (s *Scanner) ScanWallets(ctx context.Context, wallets []string) (Result, error) {
	if !s.running.TryLock() {
		return Result{}, errScanInProgress
	}
	defer s.running.Unlock()

	start := time.Now()

	walletList := wallets
	if s.maxWallets > 0 && len(walletList) > s.maxWallets {
		walletList = walletList[:s.maxWallets]
	}
	total := len(walletList)

	s.log.Info().Int("wallets", total).Msg("scanning wallets")

	var (
		mu               sync.Mutex
		allPositions     []venue.Position
		positionsByCoin  = make(map[string][]venue.Position)
		liquidationLevels []LiquidationLevel
		errCount         int64
	)

	batchSize := s.batchSize
	if batchSize <= 0 {
		batchSize = 10
	}

	for i := 0; i < total; i += batchSize {
		end := i + batchSize
		if end > total {
			end = total
		}
		batch := walletList[i:end]

		g, gctx := errgroup.WithContext(ctx)
		for _, wallet := range batch {
			wallet := wallet
			g.Go(func() error {
				positions, err := s.client.UserPositions(gctx, wallet, s.dustThreshold)
				if err != nil {
					atomic.AddInt64(&errCount, 1)
					return nil
				}

				mu.Lock()
				defer mu.Unlock()
				for _, p := range positions {
					if p.NotionalValue < s.minPositionUSD {
						continue
					}
					allPositions = append(allPositions, p)
					positionsByCoin[p.Coin] = append(positionsByCoin[p.Coin], p)

					if p.LiquidationPrice != nil {
						liquidationLevels = append(liquidationLevels, LiquidationLevel{
							Price:    *p.LiquidationPrice,
							SizeUSD:  p.NotionalValue,
							Side:     p.Side(),
							Wallet:   p.Wallet,
							Coin:     p.Coin,
							Leverage: p.Leverage,
						})
					}
				}
				return nil
			})
		}

		_ = g.Wait()

		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}

		scanned := end
		s.log.Debug().Int("scanned", scanned).Int("total", total).Int("positions", len(allPositions)).Msg("scan progress")

		select {
		case <-time.After(100 * time.Millisecond):
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}

	var longExposure, shortExposure float64
	for _, p := range allPositions {
		if p.IsLong() {
			longExposure += p.NotionalValue
		} else {
			shortExposure += p.NotionalValue
		}
	}

	result := Result{
		Timestamp:             start,
		TotalWalletsScanned:   total,
		TotalPositionsFound:   len(allPositions),
		TotalLongExposureUSD:  longExposure,
		TotalShortExposureUSD: shortExposure,
		LiquidationLevels:     liquidationLevels,
		PositionsByCoin:       positionsByCoin,
		Errors:                int(atomic.LoadInt64(&errCount)),
	}

	s.log.Info().
		Dur("duration", time.Since(start)).
		Int("positions", result.TotalPositionsFound).
		Float64("long_exposure_usd", longExposure).
		Float64("short_exposure_usd", shortExposure).
		Int("liquidation_levels", len(liquidationLevels)).
		Int("errors", result.Errors).
		Msg("scan complete")

	return result, nil
}

// LevelsForCoin filters a Result's liquidation levels down to one asset.
func LevelsForCoin(result Result, coin string) []LiquidationLevel {
	out := make([]LiquidationLevel, 0)
	for _, l := range result.LiquidationLevels {
		if l.Coin == coin {
			out = append(out, l)
		}
	}
	return out
}
