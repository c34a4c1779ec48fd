package usage

import (
	"context"
	"sync"
	"time"

	"github.com/onnwee/reddit-fleet/internal/logger"
	"github.com/onnwee/reddit-fleet/internal/metrics"
	"github.com/onnwee/reddit-fleet/internal/ratelimit"
	"github.com/onnwee/reddit-fleet/internal/store"
)

// RowWriter is the minimal store surface the Recorder needs; satisfied by
// *internal/store.Store.
type RowWriter interface {
	RecordUsage(ctx context.Context, row store.UsageRow) error
}

// UsageRow is an alias kept for readability at call sites within this
// package; it is exactly the shape the store adapter persists.
type UsageRow = store.UsageRow

type bucketKey struct {
	subreddit   string
	scraperType string
}

// Recorder is the Usage Recorder (spec §4.C): buffers per-subreddit/
// per-scraper-type request counts in memory and flushes one aggregated row
// per key every flush_interval (default 60s, spec §6).
type Recorder struct {
	mu          sync.Mutex
	counts      map[bucketKey]int
	lastFlush   time.Time
	writer      RowWriter
	oracle      *ratelimit.Oracle
	costPer1000 float64
}

// NewRecorder builds a Recorder. oracle may be nil if the caller doesn't
// want a rate-limit snapshot attached to flushed rows (e.g. in tests).
func NewRecorder(writer RowWriter, oracle *ratelimit.Oracle, costPer1000 float64) *Recorder {
	return &Recorder{
		counts:      make(map[bucketKey]int),
		lastFlush:   time.Now(),
		writer:      writer,
		oracle:      oracle,
		costPer1000: costPer1000,
	}
}

// Add records one outbound HTTP request against (subreddit, scraperType).
// Called by CountingTransport for every request to oauth.reddit.com.
func (r *Recorder) Add(subreddit, scraperType string) {
	r.mu.Lock()
	r.counts[bucketKey{subreddit, scraperType}]++
	r.mu.Unlock()

	costDelta := r.costPer1000 / 1000
	metrics.EstimatedCostUSD.WithLabelValues(subreddit, scraperType).Add(costDelta)
}

// Run drives the periodic flush loop until ctx is canceled. Call it once
// per worker process (spec §4.C: "every flush_interval... writes one row").
func (r *Recorder) Run(ctx context.Context, flushInterval time.Duration) {
	if flushInterval <= 0 {
		flushInterval = 60 * time.Second
	}
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.Flush(ctx)
		case <-ctx.Done():
			r.Flush(context.Background())
			return
		}
	}
}

// Flush writes one usage row per (subreddit, scraperType) bucket accumulated
// since the last flush and resets the buffer. Safe to call concurrently
// with Add; exported so callers can force a flush at shutdown or in tests
// (spec §8 S6 cost-math scenario exercises this directly).
func (r *Recorder) Flush(ctx context.Context) {
	r.mu.Lock()
	counts := r.counts
	r.counts = make(map[bucketKey]int)
	since := r.lastFlush
	r.lastFlush = time.Now()
	r.mu.Unlock()

	if len(counts) == 0 {
		return
	}

	duration := time.Since(since).Seconds()
	var remaining *int
	if r.oracle != nil {
		snap := r.oracle.Snapshot()
		v := snap.Remaining
		remaining = &v
	}

	now := time.Now()
	for key, count := range counts {
		cost := float64(count) * r.costPer1000 / 1000
		row := UsageRow{
			Subreddit:            key.subreddit,
			ScraperType:          key.scraperType,
			Timestamp:            now,
			ActualHTTPRequests:   count,
			EstimatedCostUSD:     cost,
			CycleDurationSeconds: duration,
			RateLimitRemaining:   remaining,
		}
		if r.writer == nil {
			continue
		}
		if err := r.writer.RecordUsage(ctx, row); err != nil {
			logger.ErrorContext(ctx, "usage: failed to flush usage row", "subreddit", key.subreddit, "scraper_type", key.scraperType, "error", err)
		}
	}
}
