// Package store persists liquidation snapshots, price history, and
// liquidation events to an embedded SQLite database for backtesting and
// trend analysis.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hlcollector/liqmap/aggregator"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp TEXT NOT NULL,
	coin TEXT NOT NULL,
	current_price REAL NOT NULL,
	total_long_at_risk REAL,
	total_short_at_risk REAL,
	nearest_long_price REAL,
	nearest_long_size REAL,
	nearest_short_price REAL,
	nearest_short_size REAL,
	clusters_json TEXT,
	UNIQUE(timestamp, coin)
);

CREATE INDEX IF NOT EXISTS idx_snapshots_coin_time ON snapshots(coin, timestamp);

CREATE TABLE IF NOT EXISTS price_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp TEXT NOT NULL,
	coin TEXT NOT NULL,
	price REAL NOT NULL,
	UNIQUE(timestamp, coin)
);

CREATE INDEX IF NOT EXISTS idx_price_coin_time ON price_history(coin, timestamp);

CREATE TABLE IF NOT EXISTS liquidation_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp TEXT NOT NULL,
	coin TEXT NOT NULL,
	price REAL NOT NULL,
	side TEXT NOT NULL,
	cluster_size REAL,
	price_move_percent REAL,
	time_to_hit_minutes REAL
);
`

// Store wraps a SQLite connection with the collector's schema.
type Store struct {
	db   *sql.DB
	path string
	log  zerolog.Logger
}

// Open creates (if needed) and opens the SQLite database at path, ensuring
// its schema exists.
func Open(path string, log zerolog.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1) // sqlite3 driver serializes writers; avoid lock contention

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Store{db: db, path: path, log: log.With().Str("component", "historical_store").Logger()}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

type clusterPair struct {
	Long  []aggregator.Cluster `json:"long"`
	Short []aggregator.Cluster `json:"short"`
}

// StoreSnapshot persists one liquidation map per coin at timestamp,
// replacing any existing row for the same (timestamp, coin) pair.
func (s *Store) StoreSnapshot(ctx context.Context, maps map[string]aggregator.Map, timestamp time.Time) error {
	tsStr := timestamp.UTC().Format(time.RFC3339)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO snapshots
		(timestamp, coin, current_price, total_long_at_risk, total_short_at_risk,
		 nearest_long_price, nearest_long_size, nearest_short_price, nearest_short_size,
		 clusters_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for coin, m := range maps {
		clustersJSON, err := compressJSON(clusterPair{Long: m.LongLiquidations, Short: m.ShortLiquidations})
		if err != nil {
			return fmt.Errorf("compress clusters for %s: %w", coin, err)
		}

		var nearestLongPrice, nearestLongSize, nearestShortPrice, nearestShortSize sql.NullFloat64
		if m.NearestLongCluster != nil {
			nearestLongPrice = sql.NullFloat64{Float64: m.NearestLongCluster.PriceCenter, Valid: true}
			nearestLongSize = sql.NullFloat64{Float64: m.NearestLongCluster.TotalSizeUSD, Valid: true}
		}
		if m.NearestShortCluster != nil {
			nearestShortPrice = sql.NullFloat64{Float64: m.NearestShortCluster.PriceCenter, Valid: true}
			nearestShortSize = sql.NullFloat64{Float64: m.NearestShortCluster.TotalSizeUSD, Valid: true}
		}

		_, err = stmt.ExecContext(ctx, tsStr, coin, m.CurrentPrice, m.TotalLongAtRiskUSD, m.TotalShortAtRiskUSD,
			nearestLongPrice, nearestLongSize, nearestShortPrice, nearestShortSize, clustersJSON)
		if err != nil {
			return fmt.Errorf("insert snapshot for %s: %w", coin, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	s.log.Info().Int("coins", len(maps)).Str("timestamp", tsStr).Msg("stored liquidation snapshot")
	return nil
}

// StorePrices persists one mid price per coin at timestamp, skipping
// non-positive prices.
func (s *Store) StorePrices(ctx context.Context, prices map[string]float64, timestamp time.Time) error {
	tsStr := timestamp.UTC().Format(time.RFC3339)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO price_history (timestamp, coin, price) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for coin, price := range prices {
		if price <= 0 {
			continue
		}
		if _, err := stmt.ExecContext(ctx, tsStr, coin, price); err != nil {
			return fmt.Errorf("insert price for %s: %w", coin, err)
		}
	}

	return tx.Commit()
}

// RecordLiquidationEvent logs that price moved into a liquidation cluster.
func (s *Store) RecordLiquidationEvent(ctx context.Context, coin, side string, price, clusterSize, priceMovePercent, timeToHitMinutes float64, timestamp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO liquidation_events
		(timestamp, coin, price, side, cluster_size, price_move_percent, time_to_hit_minutes)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, timestamp.UTC().Format(time.RFC3339), coin, price, side, clusterSize, priceMovePercent, timeToHitMinutes)
	return err
}

// SnapshotRow is one stored snapshot row, with clusters decompressed.
type SnapshotRow struct {
	Timestamp           time.Time
	Coin                string
	CurrentPrice        float64
	TotalLongAtRisk     float64
	TotalShortAtRisk    float64
	NearestLongPrice    *float64
	NearestLongSize     *float64
	NearestShortPrice   *float64
	NearestShortSize    *float64
	LongClusters        []aggregator.Cluster
	ShortClusters       []aggregator.Cluster
}

// GetSnapshots returns snapshots for coin between start and end (inclusive),
// newest first, capped at limit.
func (s *Store) GetSnapshots(ctx context.Context, coin string, start, end time.Time, limit int) ([]SnapshotRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, coin, current_price, total_long_at_risk, total_short_at_risk,
		       nearest_long_price, nearest_long_size, nearest_short_price, nearest_short_size,
		       clusters_json
		FROM snapshots
		WHERE coin = ? AND timestamp BETWEEN ? AND ?
		ORDER BY timestamp DESC
		LIMIT ?
	`, coin, start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SnapshotRow
	for rows.Next() {
		var (
			tsStr        string
			r            SnapshotRow
			nearestLP    sql.NullFloat64
			nearestLS    sql.NullFloat64
			nearestSP    sql.NullFloat64
			nearestSS    sql.NullFloat64
			clustersJSON sql.NullString
		)
		if err := rows.Scan(&tsStr, &r.Coin, &r.CurrentPrice, &r.TotalLongAtRisk, &r.TotalShortAtRisk,
			&nearestLP, &nearestLS, &nearestSP, &nearestSS, &clustersJSON); err != nil {
			return nil, err
		}

		r.Timestamp, _ = time.Parse(time.RFC3339, tsStr)
		if nearestLP.Valid {
			v := nearestLP.Float64
			r.NearestLongPrice = &v
		}
		if nearestLS.Valid {
			v := nearestLS.Float64
			r.NearestLongSize = &v
		}
		if nearestSP.Valid {
			v := nearestSP.Float64
			r.NearestShortPrice = &v
		}
		if nearestSS.Valid {
			v := nearestSS.Float64
			r.NearestShortSize = &v
		}

		if clustersJSON.Valid {
			var pair clusterPair
			if err := decompressJSON(clustersJSON.String, &pair); err == nil {
				r.LongClusters = pair.Long
				r.ShortClusters = pair.Short
			}
		}

		out = append(out, r)
	}
	return out, rows.Err()
}

// PricePoint is a single timestamped price observation.
type PricePoint struct {
	Timestamp time.Time
	Price     float64
}

// GetPriceHistory returns price_history rows for coin between start and end,
// oldest first.
func (s *Store) GetPriceHistory(ctx context.Context, coin string, start, end time.Time) ([]PricePoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, price FROM price_history
		WHERE coin = ? AND timestamp BETWEEN ? AND ?
		ORDER BY timestamp
	`, coin, start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PricePoint
	for rows.Next() {
		var tsStr string
		var p PricePoint
		if err := rows.Scan(&tsStr, &p.Price); err != nil {
			return nil, err
		}
		p.Timestamp, _ = time.Parse(time.RFC3339, tsStr)
		out = append(out, p)
	}
	return out, rows.Err()
}

// LiquidationEventRow is a single recorded liquidation event.
type LiquidationEventRow struct {
	Timestamp        time.Time
	Coin             string
	Price            float64
	Side             string
	ClusterSize      float64
	PriceMovePercent float64
	TimeToHitMinutes float64
}

// GetLiquidationEvents returns recorded events between start and end, newest
// first. An empty coin matches all coins.
func (s *Store) GetLiquidationEvents(ctx context.Context, coin string, start, end time.Time) ([]LiquidationEventRow, error) {
	query := `
		SELECT timestamp, coin, price, side, cluster_size, price_move_percent, time_to_hit_minutes
		FROM liquidation_events
		WHERE timestamp BETWEEN ? AND ?
	`
	args := []any{start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339)}
	if coin != "" {
		query = `
			SELECT timestamp, coin, price, side, cluster_size, price_move_percent, time_to_hit_minutes
			FROM liquidation_events
			WHERE coin = ? AND timestamp BETWEEN ? AND ?
		`
		args = []any{coin, start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339)}
	}
	query += " ORDER BY timestamp DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LiquidationEventRow
	for rows.Next() {
		var tsStr string
		var e LiquidationEventRow
		if err := rows.Scan(&tsStr, &e.Coin, &e.Price, &e.Side, &e.ClusterSize, &e.PriceMovePercent, &e.TimeToHitMinutes); err != nil {
			return nil, err
		}
		e.Timestamp, _ = time.Parse(time.RFC3339, tsStr)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Stats summarizes the database's overall size and coverage.
type Stats struct {
	SnapshotCount   int64
	PriceCount      int64
	EventCount      int64
	CoinsTracked    int64
	OldestSnapshot  *time.Time
	NewestSnapshot  *time.Time
	DatabaseSizeMB  float64
}

// GetStats returns summary statistics about the stored data.
func (s *Store) GetStats(ctx context.Context) (Stats, error) {
	var stats Stats

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM snapshots").Scan(&stats.SnapshotCount); err != nil {
		return stats, err
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM price_history").Scan(&stats.PriceCount); err != nil {
		return stats, err
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM liquidation_events").Scan(&stats.EventCount); err != nil {
		return stats, err
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(DISTINCT coin) FROM snapshots").Scan(&stats.CoinsTracked); err != nil {
		return stats, err
	}

	var oldest, newest sql.NullString
	if err := s.db.QueryRowContext(ctx, "SELECT MIN(timestamp), MAX(timestamp) FROM snapshots").Scan(&oldest, &newest); err != nil {
		return stats, err
	}
	if oldest.Valid {
		if t, err := time.Parse(time.RFC3339, oldest.String); err == nil {
			stats.OldestSnapshot = &t
		}
	}
	if newest.Valid {
		if t, err := time.Parse(time.RFC3339, newest.String); err == nil {
			stats.NewestSnapshot = &t
		}
	}

	if info, err := os.Stat(s.path); err == nil {
		stats.DatabaseSizeMB = float64(info.Size()) / (1024 * 1024)
	}

	return stats, nil
}
