package worker

import (
	"context"
	"testing"
	"time"

	"github.com/onnwee/reddit-fleet/internal/reddit"
	"github.com/onnwee/reddit-fleet/internal/store"
)

type fakePostFetcher struct {
	bySort map[string][]reddit.Post
	about  reddit.SubredditAbout
}

func (f *fakePostFetcher) FetchListing(ctx context.Context, subreddit, sort string, limit int, timeFilter string) ([]reddit.Post, error) {
	return f.bySort[sort], nil
}

func (f *fakePostFetcher) FetchAbout(ctx context.Context, subreddit string) (reddit.SubredditAbout, error) {
	return f.about, nil
}

type fakePostStore struct {
	upserted      []store.Post
	postsCount    int
	stale         bool
	refreshCalled bool
}

func (f *fakePostStore) UpsertPosts(ctx context.Context, posts []store.Post) error {
	f.upserted = append(f.upserted, posts...)
	return nil
}

func (f *fakePostStore) PostsCount(ctx context.Context, subreddit string) (int, error) {
	return f.postsCount, nil
}

func (f *fakePostStore) RefreshSubredditMetadata(ctx context.Context, subreddit, title, description string, subscribers int) error {
	f.refreshCalled = true
	return nil
}

func (f *fakePostStore) SubredditMetadataStale(ctx context.Context, subreddit string, maxAge time.Duration) (bool, error) {
	return f.stale, nil
}

// TestPostsActionDedupsAcrossSorts exercises spec §8 scenario S8: new
// returns [p1,p2], top returns [p2,p3] — the duplicate p2 must collapse to
// one upsert before the store call.
func TestPostsActionDedupsAcrossSorts(t *testing.T) {
	fetcher := &fakePostFetcher{bySort: map[string][]reddit.Post{
		"new": {{PostID: "p1", Subreddit: "s"}, {PostID: "p2", Subreddit: "s"}},
		"top": {{PostID: "p2", Subreddit: "s"}, {PostID: "p3", Subreddit: "s"}},
	}}
	st := &fakePostStore{postsCount: 5} // not first-run

	action := PostsAction(fetcher, st)
	rec := store.ScraperRecord{
		Config: store.ScraperConfig{
			SortingMethods: []string{"new", "top"},
			PostsLimit:     100,
			TopTimeFilter:  "day",
		},
	}

	postsDelta, commentsDelta, err := action(context.Background(), rec, "s")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if commentsDelta != 0 {
		t.Fatalf("posts action should never report a comments delta, got %d", commentsDelta)
	}
	if postsDelta != 3 {
		t.Fatalf("expected 3 deduped posts, got %d", postsDelta)
	}
	if len(st.upserted) != 3 {
		t.Fatalf("expected 3 posts upserted (p2 collapsed), got %d: %+v", len(st.upserted), st.upserted)
	}

	seen := make(map[string]bool)
	for _, p := range st.upserted {
		if seen[p.PostID] {
			t.Fatalf("post %s upserted more than once", p.PostID)
		}
		seen[p.PostID] = true
	}
	if !seen["p1"] || !seen["p2"] || !seen["p3"] {
		t.Fatalf("expected p1, p2, p3 all present, got %+v", st.upserted)
	}
}

// TestPostsActionRefreshesStaleMetadata verifies metadata refresh only
// fires when the store reports staleness (spec §4.E: "at most once per
// 24h").
func TestPostsActionRefreshesStaleMetadata(t *testing.T) {
	fetcher := &fakePostFetcher{bySort: map[string][]reddit.Post{"new": nil}}
	st := &fakePostStore{stale: true}

	action := PostsAction(fetcher, st)
	rec := store.ScraperRecord{Config: store.ScraperConfig{SortingMethods: []string{"new"}, PostsLimit: 10}}

	if _, _, err := action(context.Background(), rec, "s"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !st.refreshCalled {
		t.Fatal("expected metadata refresh to be called when stale")
	}
}

func TestPostsActionSkipsFreshMetadata(t *testing.T) {
	fetcher := &fakePostFetcher{bySort: map[string][]reddit.Post{"new": nil}}
	st := &fakePostStore{stale: false}

	action := PostsAction(fetcher, st)
	rec := store.ScraperRecord{Config: store.ScraperConfig{SortingMethods: []string{"new"}, PostsLimit: 10}}

	if _, _, err := action(context.Background(), rec, "s"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.refreshCalled {
		t.Fatal("expected metadata refresh to be skipped when fresh")
	}
}

// TestPostsActionPerSortLimitOverride verifies per-sort limits override the
// default PostsLimit (spec §3 config: "per-sort limits").
func TestPostsActionPerSortLimitOverride(t *testing.T) {
	var capturedLimit int
	fetcher := &capturingFetcher{fakePostFetcher: fakePostFetcher{bySort: map[string][]reddit.Post{"rising": nil}}, limits: map[string]int{}}
	st := &fakePostStore{}

	action := PostsAction(fetcher, st)
	rec := store.ScraperRecord{Config: store.ScraperConfig{
		SortingMethods: []string{"rising"},
		PostsLimit:     100,
		SortLimits:     map[string]int{"rising": 25},
	}}

	if _, _, err := action(context.Background(), rec, "s"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	capturedLimit = fetcher.limits["rising"]
	if capturedLimit != 25 {
		t.Fatalf("expected sort-specific limit 25 to override default, got %d", capturedLimit)
	}
}

type capturingFetcher struct {
	fakePostFetcher
	limits map[string]int
}

func (f *capturingFetcher) FetchListing(ctx context.Context, subreddit, sort string, limit int, timeFilter string) ([]reddit.Post, error) {
	f.limits[sort] = limit
	return f.fakePostFetcher.bySort[sort], nil
}
