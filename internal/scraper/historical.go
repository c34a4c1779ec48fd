package scraper

import "context"

// PostCounter is the store surface the Historical-Fetch Strategy (spec
// §4.J) needs to detect first-run.
type PostCounter interface {
	PostsCount(ctx context.Context, subreddit string) (int, error)
}

// IsFirstRun reports whether a subreddit has never been scraped
// (post_count == 0), the trigger for the one-shot "month-of-top" fetch
// (spec §4.J, §4.E).
func IsFirstRun(ctx context.Context, counter PostCounter, subreddit string) (bool, error) {
	count, err := counter.PostsCount(ctx, subreddit)
	if err != nil {
		return false, err
	}
	return count == 0, nil
}

// TopTimeFilter picks "top" sort's t= filter: the initial wide filter on
// first run, the narrow daily filter afterward (spec §4.J). Only the "top"
// sort consults this; callers should not apply it to new/rising.
func TopTimeFilter(firstRun bool, initialFilter, steadyFilter string) string {
	if firstRun {
		if initialFilter == "" {
			return "month"
		}
		return initialFilter
	}
	if steadyFilter == "" {
		return "day"
	}
	return steadyFilter
}
