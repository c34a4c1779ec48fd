package store

import (
	"context"
	"time"

	"github.com/onnwee/reddit-fleet/internal/metrics"
)

// ScraperSnapshots implements metrics.StatsSource so the Metrics Aggregator
// collector (§4.L) can poll scraper status without internal/metrics ever
// importing internal/store directly.
func (s *Store) ScraperSnapshots(ctx context.Context) (out []metrics.ScraperSnapshot, err error) {
	defer func(start time.Time) { observe("scraper_snapshots", start, err) }(time.Now())
	rows, err := s.db.QueryContext(ctx, `SELECT id, scraper_type, status FROM scrapers`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var snap metrics.ScraperSnapshot
		if err = rows.Scan(&snap.ScraperID, &snap.ScraperType, &snap.Status); err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}
