// Package registry tracks the set of wallets worth scanning for positions,
// discovered from the trade stream and from historical-trade backfills, and
// persists that set to disk between runs.
package registry

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hlcollector/liqmap/config"
	"github.com/hlcollector/liqmap/venue"
	"github.com/rs/zerolog"
)

// Registry is the in-memory set of active wallets plus activity metadata,
// safe for concurrent discovery and reads.
type Registry struct {
	mu         sync.RWMutex
	lastSeen   map[string]time.Time
	tradeCount map[string]int64

	cacheFile string
	log       zerolog.Logger
}

// New builds an empty Registry that persists to cfg.WalletCacheFile.
func New(cfg *config.Config, log zerolog.Logger) *Registry {
	return &Registry{
		lastSeen:   make(map[string]time.Time),
		tradeCount: make(map[string]int64),
		cacheFile:  cfg.WalletCacheFile,
		log:        log.With().Str("component", "wallet_registry").Logger(),
	}
}

// Add registers a wallet sighting, lower-casing the address for consistent
// keys. Returns true if the wallet was not previously tracked.
func (r *Registry) Add(wallet string) bool {
	wallet = strings.ToLower(wallet)
	r.mu.Lock()
	defer r.mu.Unlock()

	_, known := r.lastSeen[wallet]
	r.lastSeen[wallet] = time.Now()
	r.tradeCount[wallet]++
	return !known
}

// AddFromTrades extracts wallet addresses from a batch of trade events and
// registers each, returning the count of newly discovered wallets.
func (r *Registry) AddFromTrades(trades []venue.TradeEvent) int {
	newCount := 0
	for _, t := range trades {
		for _, user := range t.Users {
			if r.Add(user) {
				newCount++
			}
		}
	}
	return newCount
}

// Wallets returns wallets active within maxAge with at least minTrades
// observed, the same min-trades/max-age filter original discovery used.
func (r *Registry) Wallets(minTrades int64, maxAge time.Duration) []string {
	cutoff := time.Now().Add(-maxAge)

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.lastSeen))
	for wallet, seen := range r.lastSeen {
		if r.tradeCount[wallet] >= minTrades && seen.After(cutoff) {
			out = append(out, wallet)
		}
	}
	return out
}

// Len returns the total number of tracked wallets regardless of activity.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.lastSeen)
}

// Stats summarizes registry activity.
type Stats struct {
	TotalWallets   int
	WalletsLast1h  int
	WalletsLast24h int
}

// Stats returns a point-in-time activity summary.
func (r *Registry) Stats() Stats {
	return Stats{
		TotalWallets:   r.Len(),
		WalletsLast1h:  len(r.Wallets(1, time.Hour)),
		WalletsLast24h: len(r.Wallets(1, 24*time.Hour)),
	}
}

// BackfillFromRecentTrades discovers wallets by pulling recent trades for
// each of the given assets, rate-limited by the shared venue client.
func (r *Registry) BackfillFromRecentTrades(ctx context.Context, client *venue.Client, coins []string) int {
	total := 0
	for _, coin := range coins {
		trades, err := client.RecentTrades(ctx, coin)
		if err != nil {
			r.log.Debug().Err(err).Str("coin", coin).Msg("recent trades backfill failed")
			continue
		}

		events := make([]venue.TradeEvent, 0, len(trades))
		for _, t := range trades {
			events = append(events, venue.TradeEvent{Coin: t.Coin, Price: t.Price, Size: t.Size, Side: t.Side, Users: t.Users})
		}
		total += r.AddFromTrades(events)
	}
	return total
}

// cacheFile is the on-disk shape of data/wallets.json. Timestamps are
// ISO8601 strings (not Unix epoch integers) to match spec.md §6 and
// original_source/src/wallet_discovery.py's save_to_file, which writes
// datetime.isoformat() throughout.
type cacheFile struct {
	Wallets     []string          `json:"wallets"`
	LastSeen    map[string]string `json:"last_seen"`
	TradeCounts map[string]int64  `json:"trade_counts"`
	SavedAt     string            `json:"saved_at"`
}

// Save persists the registry to its cache file atomically (write to a temp
// file in the same directory, then rename), so a crash mid-write never
// leaves a corrupt cache behind.
func (r *Registry) Save() error {
	r.mu.RLock()
	data := cacheFile{
		Wallets:     make([]string, 0, len(r.lastSeen)),
		LastSeen:    make(map[string]string, len(r.lastSeen)),
		TradeCounts: make(map[string]int64, len(r.tradeCount)),
		SavedAt:     time.Now().UTC().Format(time.RFC3339),
	}
	for wallet, seen := range r.lastSeen {
		data.Wallets = append(data.Wallets, wallet)
		data.LastSeen[wallet] = seen.UTC().Format(time.RFC3339)
	}
	for wallet, count := range r.tradeCount {
		data.TradeCounts[wallet] = count
	}
	r.mu.RUnlock()

	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}

	dir := filepath.Dir(r.cacheFile)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".wallets-*.tmp")
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

	if err := os.Rename(tmpName, r.cacheFile); err != nil {
		return err
	}

	r.log.Info().Int("wallets", len(data.Wallets)).Str("file", r.cacheFile).Msg("saved wallet registry")
	return nil
}

// Load restores registry state from its cache file. A missing file is not
// an error; the registry simply starts empty.
func (r *Registry) Load() error {
	raw, err := os.ReadFile(r.cacheFile)
	if os.IsNotExist(err) {
		r.log.Info().Str("file", r.cacheFile).Msg("no wallet cache found, starting empty")
		return nil
	}
	if err != nil {
		return err
	}

	var data cacheFile
	if err := json.Unmarshal(raw, &data); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastSeen = make(map[string]time.Time, len(data.Wallets))
	r.tradeCount = make(map[string]int64, len(data.Wallets))
	for _, wallet := range data.Wallets {
		seen := time.Unix(0, 0).UTC()
		if raw, ok := data.LastSeen[wallet]; ok {
			parsed, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				r.log.Warn().Err(err).Str("wallet", wallet).Str("raw", raw).Msg("malformed last_seen timestamp, treating as epoch")
			} else {
				seen = parsed
			}
		}
		r.lastSeen[wallet] = seen
		r.tradeCount[wallet] = data.TradeCounts[wallet]
	}

	r.log.Info().Int("wallets", len(r.lastSeen)).Str("file", r.cacheFile).Msg("loaded wallet registry")
	return nil
}
