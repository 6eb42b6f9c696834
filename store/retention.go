package store

import "context"

// MaintenanceReport summarizes what a retention pass deleted (or, in dry-run
// mode, would delete).
type MaintenanceReport struct {
	DryRun               bool
	DeletedOlderThan30d  int64
	DeletedNonNoon7to30d int64
	DeletedNonHourly1to7d int64
	DeletedPriceHistory  int64
	Vacuumed             bool
}

// snapshotDeleteQueries and priceDeleteQueries apply the tiered retention
// policy: data under 24h is kept in full, 1-7 days is thinned to the top of
// each hour, 7-30 days is thinned to 12:00 UTC, and anything past 30 days is
// dropped. Stored RFC3339 timestamps are normalized with datetime() so they
// compare correctly against SQLite's own datetime('now', ...) text.
var snapshotDeleteQueries = []string{
	`DELETE FROM snapshots WHERE datetime(timestamp) < datetime('now', '-30 days')`,
	`DELETE FROM snapshots WHERE datetime(timestamp) < datetime('now', '-7 days') AND datetime(timestamp) >= datetime('now', '-30 days') AND strftime('%H', timestamp) != '12'`,
	`DELETE FROM snapshots WHERE datetime(timestamp) < datetime('now', '-1 days') AND datetime(timestamp) >= datetime('now', '-7 days') AND strftime('%M', timestamp) != '00'`,
}

var priceDeleteQueries = []string{
	`DELETE FROM price_history WHERE datetime(timestamp) < datetime('now', '-30 days')`,
	`DELETE FROM price_history WHERE datetime(timestamp) < datetime('now', '-7 days') AND datetime(timestamp) >= datetime('now', '-30 days') AND strftime('%H', timestamp) != '12'`,
	`DELETE FROM price_history WHERE datetime(timestamp) < datetime('now', '-1 days') AND datetime(timestamp) >= datetime('now', '-7 days') AND strftime('%M', timestamp) != '00'`,
}

// RunMaintenance applies the tiered retention policy and reclaims space with
// VACUUM. In dry-run mode it only counts what would be deleted.
func (s *Store) RunMaintenance(ctx context.Context, dryRun bool) (MaintenanceReport, error) {
	report := MaintenanceReport{DryRun: dryRun}

	if dryRun {
		counts, err := s.countSnapshotDeletions(ctx)
		if err != nil {
			return report, err
		}
		report.DeletedOlderThan30d = counts[0]
		report.DeletedNonNoon7to30d = counts[1]
		report.DeletedNonHourly1to7d = counts[2]
		return report, nil
	}

	results := make([]int64, len(snapshotDeleteQueries))
	for i, query := range snapshotDeleteQueries {
		res, err := s.db.ExecContext(ctx, query)
		if err != nil {
			return report, err
		}
		results[i], _ = res.RowsAffected()
	}
	report.DeletedOlderThan30d = results[0]
	report.DeletedNonNoon7to30d = results[1]
	report.DeletedNonHourly1to7d = results[2]

	var priceDeleted int64
	for _, query := range priceDeleteQueries {
		res, err := s.db.ExecContext(ctx, query)
		if err != nil {
			return report, err
		}
		n, _ := res.RowsAffected()
		priceDeleted += n
	}
	report.DeletedPriceHistory = priceDeleted

	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return report, err
	}
	report.Vacuumed = true

	s.log.Info().
		Int64("deleted_30d", report.DeletedOlderThan30d).
		Int64("deleted_non_noon", report.DeletedNonNoon7to30d).
		Int64("deleted_non_hourly", report.DeletedNonHourly1to7d).
		Int64("deleted_price_history", report.DeletedPriceHistory).
		Msg("retention maintenance complete")

	return report, nil
}

func (s *Store) countSnapshotDeletions(ctx context.Context) ([3]int64, error) {
	var counts [3]int64
	queries := []string{
		`SELECT COUNT(*) FROM snapshots WHERE datetime(timestamp) < datetime('now', '-30 days')`,
		`SELECT COUNT(*) FROM snapshots WHERE datetime(timestamp) < datetime('now', '-7 days') AND datetime(timestamp) >= datetime('now', '-30 days') AND strftime('%H', timestamp) != '12'`,
		`SELECT COUNT(*) FROM snapshots WHERE datetime(timestamp) < datetime('now', '-1 days') AND datetime(timestamp) >= datetime('now', '-7 days') AND strftime('%M', timestamp) != '00'`,
	}
	for i, query := range queries {
		if err := s.db.QueryRowContext(ctx, query).Scan(&counts[i]); err != nil {
			return counts, err
		}
	}
	return counts, nil
}
