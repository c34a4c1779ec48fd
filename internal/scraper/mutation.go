// Package scraper implements the Queue Mutation API (spec §4.I): the
// add/remove/replace operations operators use to retarget a live scraper
// without restarting its worker process. It is a thin business-logic layer
// over internal/store's single atomic UpdateSubreddits compare-and-set
// (spec §4.D): every operation here reduces to "compute the new full
// subreddits list, then call UpdateSubreddits."
package scraper

import (
	"context"
	"fmt"

	"github.com/onnwee/reddit-fleet/internal/apierr"
	"github.com/onnwee/reddit-fleet/internal/store"
)

// MaxSubreddits is the per-scraper subreddit ceiling (spec §3, §8 boundary:
// "subreddits size = 100: accepted; 101: API rejects").
const MaxSubreddits = 100

// Loader is the minimal store surface the Mutator needs.
type Loader interface {
	LoadScraper(ctx context.Context, id string) (store.ScraperRecord, error)
	UpdateSubreddits(ctx context.Context, scraperID string, newList []string) error
}

// Mutator implements add/remove/replace (spec §4.I).
type Mutator struct {
	store Loader
}

// NewMutator builds a Mutator over a store.
func NewMutator(s Loader) *Mutator {
	return &Mutator{store: s}
}

// Add unions new_subs into subreddits (and, via UpdateSubreddits's diff,
// into pending_scrape). Duplicates already present are silently dropped
// (spec §4.I).
func (m *Mutator) Add(ctx context.Context, scraperID string, newSubs []string) error {
	rec, err := m.store.LoadScraper(ctx, scraperID)
	if err != nil {
		return err
	}

	merged := unionPreserveOrder(rec.Subreddits, newSubs)
	if len(merged) > MaxSubreddits {
		return apierr.ScraperQueueLimit(len(merged))
	}
	return m.store.UpdateSubreddits(ctx, scraperID, merged)
}

// Remove subtracts old_subs from subreddits (and from pending_scrape via
// UpdateSubreddits's diff). The primary subreddit — the scraper's own id —
// MUST NOT be removed (spec §4.I, §8 invariant 4); doing so is rejected at
// the API boundary rather than silently ignored.
func (m *Mutator) Remove(ctx context.Context, scraperID string, oldSubs []string) error {
	if contains(oldSubs, scraperID) {
		return apierr.ScraperPrimaryProtected(scraperID)
	}

	rec, err := m.store.LoadScraper(ctx, scraperID)
	if err != nil {
		return err
	}

	removeSet := toSet(oldSubs)
	var kept []string
	for _, s := range rec.Subreddits {
		if _, drop := removeSet[s]; !drop {
			kept = append(kept, s)
		}
	}
	return m.store.UpdateSubreddits(ctx, scraperID, kept)
}

// Replace wholesale-replaces subreddits; UpdateSubreddits computes the
// added/removed diff against the prior list and updates pending_scrape
// accordingly (spec §4.I). The primary must remain in the replacement list.
func (m *Mutator) Replace(ctx context.Context, scraperID string, fullList []string) error {
	if !contains(fullList, scraperID) {
		return apierr.ScraperPrimaryProtected(scraperID)
	}
	deduped := unionPreserveOrder(nil, fullList)
	if len(deduped) > MaxSubreddits {
		return apierr.ScraperQueueLimit(len(deduped))
	}
	return m.store.UpdateSubreddits(ctx, scraperID, deduped)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func toSet(list []string) map[string]struct{} {
	set := make(map[string]struct{}, len(list))
	for _, v := range list {
		set[v] = struct{}{}
	}
	return set
}

// unionPreserveOrder merges b into a, keeping a's order and appending any
// new elements from b that aren't already present, with internal
// deduplication of b itself.
func unionPreserveOrder(a, b []string) []string {
	seen := toSet(a)
	out := append([]string{}, a...)
	for _, v := range b {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// ValidatePrimary checks the invariant that a scraper's own id must appear
// in its subreddits list before the record is ever created (spec §3).
func ValidatePrimary(scraperID string, subreddits []string) error {
	if !contains(subreddits, scraperID) {
		return fmt.Errorf("scraper: primary subreddit %q must be present in subreddits", scraperID)
	}
	return nil
}
