package worker

import (
	"context"
	"time"

	"github.com/onnwee/reddit-fleet/internal/reddit"
	"github.com/onnwee/reddit-fleet/internal/scraper"
	"github.com/onnwee/reddit-fleet/internal/store"
)

// PostFetcher is the Reddit-facing surface the Posts Worker needs;
// satisfied by *internal/reddit.Client.
type PostFetcher interface {
	FetchListing(ctx context.Context, subreddit, sort string, limit int, timeFilter string) ([]reddit.Post, error)
	FetchAbout(ctx context.Context, subreddit string) (reddit.SubredditAbout, error)
}

// PostStore is the store surface the Posts Worker needs.
type PostStore interface {
	UpsertPosts(ctx context.Context, posts []store.Post) error
	PostsCount(ctx context.Context, subreddit string) (int, error)
	RefreshSubredditMetadata(ctx context.Context, subreddit, title, description string, subscribers int) error
	SubredditMetadataStale(ctx context.Context, subreddit string, maxAge time.Duration) (bool, error)
}

// PostsAction builds the per-subreddit Action for the Posts Worker (spec
// §4.E): fetch every configured sort, deduplicate across sorts by post id
// so a post appearing in both "new" and "rising" is only upserted once,
// apply the Historical-Fetch Strategy's time filter to the "top" sort, then
// refresh community metadata at most once per 24h.
func PostsAction(fetcher PostFetcher, st PostStore) Action {
	return func(ctx context.Context, rec store.ScraperRecord, subreddit string) (int, int, error) {
		cfg := rec.Config

		firstRun, err := scraper.IsFirstRun(ctx, st, subreddit)
		if err != nil {
			return 0, 0, err
		}
		topFilter := scraper.TopTimeFilter(firstRun, cfg.InitialTopTimeFilter, cfg.TopTimeFilter)

		seen := make(map[string]struct{})
		var batch []store.Post

		for _, sort := range cfg.SortingMethods {
			limit := cfg.PostsLimit
			if l, ok := cfg.SortLimits[sort]; ok {
				limit = l
			}

			posts, err := fetcher.FetchListing(ctx, subreddit, sort, limit, topFilter)
			if err != nil {
				return 0, 0, err
			}
			for _, p := range posts {
				if _, dup := seen[p.PostID]; dup {
					continue
				}
				seen[p.PostID] = struct{}{}
				batch = append(batch, store.Post{
					PostID:      p.PostID,
					Subreddit:   p.Subreddit,
					Title:       p.Title,
					URL:         p.URL,
					Selftext:    p.Selftext,
					Author:      p.Author,
					Score:       p.Score,
					NumComments: p.NumComments,
					CreatedAt:   p.CreatedAt,
				})
			}
		}

		if err := st.UpsertPosts(ctx, batch); err != nil {
			return 0, 0, err
		}

		stale, err := st.SubredditMetadataStale(ctx, subreddit, 24*time.Hour)
		if err == nil && stale {
			if about, aerr := fetcher.FetchAbout(ctx, subreddit); aerr == nil {
				_ = st.RefreshSubredditMetadata(ctx, subreddit, about.Title, about.Description, about.Subscribers)
			}
		}

		return len(batch), 0, nil
	}
}
