package store

import (
	"context"
	"encoding/csv"
	"os"
	"strconv"
	"time"
)

// ExportCSV writes a coin's snapshot history to a CSV file for external
// analysis. Not wired into the orchestrator's collection loop; callers use
// it interactively or from a maintenance script.
func (s *Store) ExportCSV(ctx context.Context, coin, outputPath string, limit int) error {
	snapshots, err := s.GetSnapshots(ctx, coin, time.Unix(0, 0), time.Now(), limit)
	if err != nil {
		return err
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	header := []string{
		"timestamp", "coin", "current_price",
		"total_long_at_risk", "total_short_at_risk",
		"nearest_long_price", "nearest_long_size",
		"nearest_short_price", "nearest_short_size",
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for _, snap := range snapshots {
		row := []string{
			snap.Timestamp.Format(time.RFC3339),
			snap.Coin,
			strconv.FormatFloat(snap.CurrentPrice, 'f', -1, 64),
			strconv.FormatFloat(snap.TotalLongAtRisk, 'f', -1, 64),
			strconv.FormatFloat(snap.TotalShortAtRisk, 'f', -1, 64),
			formatOptionalFloat(snap.NearestLongPrice),
			formatOptionalFloat(snap.NearestLongSize),
			formatOptionalFloat(snap.NearestShortPrice),
			formatOptionalFloat(snap.NearestShortSize),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	s.log.Info().Int("rows", len(snapshots)).Str("file", outputPath).Msg("exported snapshots to csv")
	return nil
}

func formatOptionalFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
