// Package worker implements the Posts Worker (spec §4.E) and Comments
// Worker (spec §4.F) rotation loops, grounded on the teacher's
// internal/crawler/worker.go StartCrawlWorker loop: a select-on-ctx.Done
// outer loop around a per-subreddit unit of work, generalized here from a
// single shared job queue to the per-scraper cycle_list/pending_scrape
// model spec §4.D describes.
package worker

import (
	"context"
	"time"

	"github.com/onnwee/reddit-fleet/internal/logger"
	"github.com/onnwee/reddit-fleet/internal/metrics"
	"github.com/onnwee/reddit-fleet/internal/ratelimit"
	"github.com/onnwee/reddit-fleet/internal/store"
)

// QueueStore is the store surface the rotation skeleton needs; satisfied by
// *internal/store.Store.
type QueueStore interface {
	LoadScraper(ctx context.Context, id string) (store.ScraperRecord, error)
	MarkScraped(ctx context.Context, scraperID, subreddit string) error
	SetStatus(ctx context.Context, scraperID string, status store.ScraperStatus, lastError string) error
	RecordCycle(ctx context.Context, scraperID string, postsDelta, commentsDelta int, duration time.Duration) error
}

// Action runs one subreddit's unit of work for one cycle and reports how
// many posts/comments it produced, for the rolling metrics update (spec
// §4.L). A non-nil error fails only that subreddit, not the cycle.
type Action func(ctx context.Context, rec store.ScraperRecord, subreddit string) (postsDelta, commentsDelta int, err error)

// Rotation is the shared scheduler skeleton both workers build on (spec
// §4.E, §4.F, §9 "single rotation skeleton, a strategy function per scraper
// type"). Every cycle: compute cycle_list = pending_first ∥ rest, await
// capacity before each subreddit, re-load the record at the start of every
// iteration so a queue mutation lands within the current cycle (spec §4.D,
// §8 scenario S2), run the Action, mark success, then pace with
// RotationDelay and sleep out the remainder of Interval.
type Rotation struct {
	ScraperID     string
	ScraperType   string
	Store         QueueStore
	Oracle        *ratelimit.Oracle
	RotationDelay time.Duration
	Interval      time.Duration
	Action        Action
}

// Run blocks until ctx is canceled or a fatal (non-subreddit-scoped) error
// occurs, such as the scraper record itself failing to load.
func (r *Rotation) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		cycleStart := time.Now()
		rec, err := r.Store.LoadScraper(ctx, r.ScraperID)
		if err != nil {
			logger.ErrorContext(ctx, "worker: failed to load scraper record", "scraper_id", r.ScraperID, "error", err)
			return err
		}

		remaining := cycleList(rec)
		if len(remaining) == 0 {
			logger.WarnContext(ctx, "worker: empty subreddit queue, idling", "scraper_id", r.ScraperID)
			if sleepErr := sleepCancelable(ctx, 60*time.Second); sleepErr != nil {
				return sleepErr
			}
			continue
		}

		var totalPosts, totalComments int
		processed := make(map[string]bool, len(remaining))
		queued := toSet(remaining)

		for len(remaining) > 0 {
			if err := ctx.Err(); err != nil {
				return err
			}

			sub := remaining[0]
			remaining = remaining[1:]

			rec, err = r.Store.LoadScraper(ctx, r.ScraperID)
			if err != nil {
				logger.ErrorContext(ctx, "worker: failed to reload scraper record mid-cycle", "scraper_id", r.ScraperID, "error", err)
				continue
			}

			// ASAP priority (spec §4.D): a subreddit newly added to
			// pending_scrape since this cycle started is inserted at the
			// front of what's left, rather than waiting for next cycle.
			for _, p := range rec.PendingScrape {
				if !processed[p] && !queued[p] {
					remaining = append([]string{p}, remaining...)
					queued[p] = true
				}
			}

			if r.Oracle != nil {
				if err := r.Oracle.AwaitCapacity(ctx); err != nil {
					return err
				}
			}

			postsDelta, commentsDelta, runErr := r.Action(ctx, rec, sub)
			processed[sub] = true
			if runErr != nil {
				logger.ErrorContext(ctx, "worker: subreddit action failed", "scraper_id", r.ScraperID, "subreddit", sub, "error", runErr)
			} else {
				totalPosts += postsDelta
				totalComments += commentsDelta
				metrics.PostsProcessedTotal.WithLabelValues(sub).Add(float64(postsDelta))
				metrics.CommentsProcessedTotal.WithLabelValues(sub).Add(float64(commentsDelta))
				if err := r.Store.MarkScraped(ctx, r.ScraperID, sub); err != nil {
					logger.ErrorContext(ctx, "worker: failed to mark scraped", "scraper_id", r.ScraperID, "subreddit", sub, "error", err)
				}
			}

			if len(remaining) > 0 {
				if err := sleepCancelable(ctx, r.RotationDelay); err != nil {
					return err
				}
			}
		}

		duration := time.Since(cycleStart)
		metrics.CycleDurationSeconds.WithLabelValues(r.ScraperID, r.ScraperType).Observe(duration.Seconds())
		if err := r.Store.RecordCycle(ctx, r.ScraperID, totalPosts, totalComments, duration); err != nil {
			logger.ErrorContext(ctx, "worker: failed to record cycle", "scraper_id", r.ScraperID, "error", err)
		}

		if left := r.Interval - duration; left > 0 {
			if err := sleepCancelable(ctx, left); err != nil {
				return err
			}
		}
	}
}

// cycleList orders a scraper's subreddits pending-first, then the rest in
// their configured order (spec §4.D: "cycle_list = pending_first ∥ rest").
func cycleList(rec store.ScraperRecord) []string {
	pendingSet := toSet(rec.PendingScrape)
	out := make([]string, 0, len(rec.Subreddits))
	out = append(out, rec.PendingScrape...)
	for _, s := range rec.Subreddits {
		if !pendingSet[s] {
			out = append(out, s)
		}
	}
	return out
}

func toSet(list []string) map[string]bool {
	set := make(map[string]bool, len(list))
	for _, v := range list {
		set[v] = true
	}
	return set
}

func sleepCancelable(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
