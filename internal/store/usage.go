package store

import (
	"context"
	"time"
)

// UsageRow is one flush-interval aggregate (spec §3, §4.C).
type UsageRow struct {
	Subreddit            string
	ScraperType          string
	Timestamp            time.Time
	ActualHTTPRequests   int
	EstimatedCostUSD     float64
	CycleDurationSeconds float64
	RateLimitRemaining   *int
}

// RecordUsage writes one usage row per flush interval (default 60s). The
// cost is computed by the caller (internal/usage) using the billed rate
// from config, then persisted verbatim here — the store never recomputes
// cost so the invariant `estimated_cost_usd = requests × 0.24 / 1000`
// (spec §8 invariant 7) is the producer's responsibility, not a trigger.
func (s *Store) RecordUsage(ctx context.Context, row UsageRow) (err error) {
	defer func(start time.Time) { observe("record_usage", start, err) }(time.Now())
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO usage (subreddit, scraper_type, ts, actual_http_requests, estimated_cost_usd, cycle_duration_seconds, rate_limit_remaining)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, row.Subreddit, row.ScraperType, row.Timestamp, row.ActualHTTPRequests, row.EstimatedCostUSD, row.CycleDurationSeconds, row.RateLimitRemaining)
	return err
}

// CostSummary is the aggregation shape for GET /api/usage/cost (spec §6).
type CostSummary struct {
	TodayUSD           float64            `json:"today_usd"`
	LastHourUSD        float64            `json:"last_hour_usd"`
	SevenDayAvgUSD     float64            `json:"seven_day_avg_usd"`
	MonthlyProjection  float64            `json:"monthly_projection_usd"`
	PerSubredditUSD    map[string]float64 `json:"per_subreddit_usd"`
}

// CostSummary computes today / last-hour / 7-day-average / monthly
// projection as pure reductions over stored usage rows (spec §4.C).
func (s *Store) CostSummary(ctx context.Context) (summary CostSummary, err error) {
	defer func(start time.Time) { observe("cost_summary", start, err) }(time.Now())
	summary.PerSubredditUSD = make(map[string]float64)

	if err = s.db.QueryRowContext(ctx, `
		SELECT coalesce(sum(estimated_cost_usd), 0) FROM usage WHERE ts >= date_trunc('day', now())
	`).Scan(&summary.TodayUSD); err != nil {
		return summary, err
	}

	if err = s.db.QueryRowContext(ctx, `
		SELECT coalesce(sum(estimated_cost_usd), 0) FROM usage WHERE ts >= now() - interval '1 hour'
	`).Scan(&summary.LastHourUSD); err != nil {
		return summary, err
	}

	var sevenDayTotal float64
	if err = s.db.QueryRowContext(ctx, `
		SELECT coalesce(sum(estimated_cost_usd), 0) FROM usage WHERE ts >= now() - interval '7 days'
	`).Scan(&sevenDayTotal); err != nil {
		return summary, err
	}
	sevenDayAvgPerDay := sevenDayTotal / 7
	summary.SevenDayAvgUSD = sevenDayAvgPerDay
	summary.MonthlyProjection = sevenDayAvgPerDay * 30

	rows, err := s.db.QueryContext(ctx, `
		SELECT subreddit, coalesce(sum(estimated_cost_usd), 0)
		FROM usage WHERE ts >= date_trunc('day', now())
		GROUP BY subreddit
	`)
	if err != nil {
		return summary, err
	}
	defer rows.Close()
	for rows.Next() {
		var sub string
		var cost float64
		if err = rows.Scan(&sub, &cost); err != nil {
			return summary, err
		}
		summary.PerSubredditUSD[sub] = cost
	}
	return summary, rows.Err()
}
