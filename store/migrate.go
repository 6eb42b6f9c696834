package store

import (
	"context"
	"encoding/json"
	"strings"
)

// MigrationReport summarizes a one-shot compression migration pass.
type MigrationReport struct {
	DryRun          bool
	TotalRecords    int64
	AlreadyCompressed int64
	Compressed      int64
}

// MigrateCompress compresses any legacy uncompressed clusters_json rows left
// over from before compression was introduced. Safe to run repeatedly: rows
// already carrying the compression marker are left untouched.
func (s *Store) MigrateCompress(ctx context.Context, dryRun bool, batchSize int) (MigrationReport, error) {
	var report MigrationReport
	report.DryRun = dryRun

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM snapshots").Scan(&report.TotalRecords); err != nil {
		return report, err
	}
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM snapshots WHERE clusters_json LIKE 'ZLIB:%'",
	).Scan(&report.AlreadyCompressed); err != nil {
		return report, err
	}

	if dryRun {
		var uncompressed int64
		if err := s.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM snapshots WHERE clusters_json IS NOT NULL AND clusters_json NOT LIKE 'ZLIB:%'",
		).Scan(&uncompressed); err != nil {
			return report, err
		}
		report.Compressed = uncompressed
		return report, nil
	}

	for {
		rows, err := s.db.QueryContext(ctx,
			"SELECT id, clusters_json FROM snapshots WHERE clusters_json IS NOT NULL AND clusters_json NOT LIKE 'ZLIB:%' LIMIT ?",
			batchSize,
		)
		if err != nil {
			return report, err
		}

		type pending struct {
			id   int64
			json string
		}
		var batch []pending
		for rows.Next() {
			var p pending
			if err := rows.Scan(&p.id, &p.json); err != nil {
				rows.Close()
				return report, err
			}
			batch = append(batch, p)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return report, err
		}
		if len(batch) == 0 {
			break
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return report, err
		}
		for _, p := range batch {
			if strings.TrimSpace(p.json) == "" {
				continue
			}

			var raw json.RawMessage
			if err := json.Unmarshal([]byte(p.json), &raw); err != nil {
				continue // leave unparseable legacy rows alone rather than corrupt them
			}

			compressed, err := compressJSON(raw)
			if err != nil {
				tx.Rollback()
				return report, err
			}

			if _, err := tx.ExecContext(ctx, "UPDATE snapshots SET clusters_json = ? WHERE id = ?", compressed, p.id); err != nil {
				tx.Rollback()
				return report, err
			}
			report.Compressed++
		}
		if err := tx.Commit(); err != nil {
			return report, err
		}
	}

	s.log.Info().Int64("compressed", report.Compressed).Msg("compression migration complete")
	return report, nil
}
