package metrics

import (
	"context"
	"time"

	"github.com/onnwee/reddit-fleet/internal/logger"
)

// ScraperSnapshot is one scraper's rolling status as seen by the Metrics
// Aggregator (spec §4.L). internal/store implements StatsSource by querying
// the scrapers table; the collector never talks to SQL directly so it can be
// unit tested against a fake.
type ScraperSnapshot struct {
	ScraperID   string
	ScraperType string
	Status      string // configured, starting, running, stopped, failed
}

// StatsSource is the minimal read surface the Metrics Aggregator needs from
// the Store Adapter. Kept tiny and defined on the consumer side so
// internal/metrics never imports internal/store.
type StatsSource interface {
	ScraperSnapshots(ctx context.Context) ([]ScraperSnapshot, error)
}

// Collector periodically polls the store for per-scraper status and
// republishes it as gauges, the way the teacher's graph/job collector did
// for crawl jobs (now scrapers instead of jobs, statuses instead of counts).
type Collector struct {
	source   StatsSource
	interval time.Duration
	stop     chan struct{}
}

// NewCollector creates a new metrics collector.
func NewCollector(source StatsSource, interval time.Duration) *Collector {
	return &Collector{
		source:   source,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// Start begins the metrics collection loop.
func (c *Collector) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.collect(ctx)

	for {
		select {
		case <-ticker.C:
			c.collect(ctx)
		case <-c.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop stops the metrics collector.
func (c *Collector) Stop() {
	close(c.stop)
}

// statuses enumerated up front so a status that drops to zero after a
// transition is reported as 0 rather than left stale at its last value.
var knownStatuses = []string{"running", "stopped", "failed", "starting"}

func (c *Collector) collect(ctx context.Context) {
	snapshots, err := c.source.ScraperSnapshots(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "metrics: failed to collect scraper snapshots", "error", err)
		return
	}

	counts := make(map[string]map[string]int) // scraper_id -> status -> count
	for _, s := range snapshots {
		if counts[s.ScraperID] == nil {
			counts[s.ScraperID] = make(map[string]int)
		}
		counts[s.ScraperID][s.Status]++
	}

	for scraperID, byStatus := range counts {
		for _, status := range knownStatuses {
			v := 0
			if byStatus[status] > 0 {
				v = 1
			}
			ScraperStatus.WithLabelValues(scraperID, status).Set(float64(v))
		}
	}
}
