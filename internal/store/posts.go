package store

import (
	"context"
	"time"

	"github.com/lib/pq"
)

// Post is the union shape workers pass to UpsertPosts; it carries only the
// content fields a fetch observes. Tracking fields are never set here —
// they are owned exclusively by the comments worker via MarkCommentsScraped.
type Post struct {
	PostID      string
	Subreddit   string
	Title       string
	URL         string
	Selftext    string
	Author      string
	Score       int
	NumComments int
	CreatedAt   time.Time
}

// UpsertPosts merges new content with existing rows without ever
// regressing the four tracking fields (spec §4.G invariant 1). The
// ON CONFLICT clause deliberately omits comments_scraped,
// initial_comments_scraped, last_comment_fetch_time, and
// comments_scraped_at from its SET list so a concurrent content refresh can
// never undo what the comments worker already committed.
func (s *Store) UpsertPosts(ctx context.Context, posts []Post) (err error) {
	defer func(start time.Time) { observe("upsert_posts", start, err) }(time.Now())
	if len(posts) == 0 {
		return nil
	}

	const q = `
		INSERT INTO posts (post_id, subreddit, title, url, selftext, author, score, num_comments, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		ON CONFLICT (post_id) DO UPDATE SET
			title        = EXCLUDED.title,
			url          = EXCLUDED.url,
			selftext     = EXCLUDED.selftext,
			author       = EXCLUDED.author,
			score        = EXCLUDED.score,
			num_comments = EXCLUDED.num_comments,
			updated_at   = now()
	`
	for _, p := range posts {
		if _, err = s.db.ExecContext(ctx, q, p.PostID, p.Subreddit, p.Title, p.URL, p.Selftext, p.Author, p.Score, p.NumComments, p.CreatedAt); err != nil {
			return err
		}
	}
	return nil
}

// PostsCount reports how many posts are stored for a subreddit; used by the
// Historical-Fetch Strategy (§4.J) to detect first-run.
func (s *Store) PostsCount(ctx context.Context, subreddit string) (count int, err error) {
	defer func(start time.Time) { observe("posts_count", start, err) }(time.Now())
	err = s.db.QueryRowContext(ctx, `SELECT count(*) FROM posts WHERE subreddit = $1`, subreddit).Scan(&count)
	return count, err
}

// ExistingCommentIDs returns the full set of comment ids already stored for
// a post — the deduplication oracle (§4.G contract 2).
func (s *Store) ExistingCommentIDs(ctx context.Context, postID string) (ids map[string]struct{}, err error) {
	defer func(start time.Time) { observe("existing_comment_ids", start, err) }(time.Now())
	rows, err := s.db.QueryContext(ctx, `SELECT comment_id FROM comments WHERE post_id = $1`, postID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids = make(map[string]struct{})
	for rows.Next() {
		var id string
		if err = rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

// VerifyCommentsPresent performs a fresh count read against the comments
// table for a post. It MUST NOT be served from any cache populated by the
// write it is verifying (spec §4.G contract 3) — this implementation talks
// straight to Postgres, never through internal/cache.
func (s *Store) VerifyCommentsPresent(ctx context.Context, postID string) (count int, err error) {
	defer func(start time.Time) { observe("verify_comments_present", start, err) }(time.Now())
	err = s.db.QueryRowContext(ctx, `SELECT count(*) FROM comments WHERE post_id = $1`, postID).Scan(&count)
	return count, err
}

// MarkCommentsScraped flips the tracking fields for a post after a
// successful verify-then-mark (spec §4.F). initialFirstTime additionally
// sets initial_comments_scraped on first success.
func (s *Store) MarkCommentsScraped(ctx context.Context, postID string, initialFirstTime bool) (err error) {
	defer func(start time.Time) { observe("mark_comments_scraped", start, err) }(time.Now())
	if initialFirstTime {
		_, err = s.db.ExecContext(ctx, `
			UPDATE posts SET
				comments_scraped = true,
				initial_comments_scraped = true,
				last_comment_fetch_time = now(),
				comments_scraped_at = now()
			WHERE post_id = $1
		`, postID)
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE posts SET
			comments_scraped = true,
			last_comment_fetch_time = now(),
			comments_scraped_at = now()
		WHERE post_id = $1
	`, postID)
	return err
}

// PostForCommentFetch is the row shape the Comments Worker selects on.
type PostForCommentFetch struct {
	PostID                 string
	Subreddit              string
	NumComments            int
	InitialCommentsScraped bool
	LastCommentFetchTime   *time.Time
	CreatedAt              time.Time
}

// SelectCommentEligiblePosts returns posts eligible under any priority tier
// (spec §4.F), scoped to the subreddits a single comments-worker tenant owns
// (spec §5: each tenant only ever touches its own partition), ordered
// unscraped-first, then by num_comments desc, then by created_at desc,
// limited to batchSize.
func (s *Store) SelectCommentEligiblePosts(ctx context.Context, subreddits []string, batchSize int) (posts []PostForCommentFetch, err error) {
	defer func(start time.Time) { observe("select_comment_eligible_posts", start, err) }(time.Now())

	const q = `
		SELECT post_id, subreddit, num_comments, initial_comments_scraped, last_comment_fetch_time, created_at
		FROM posts
		WHERE
			subreddit = ANY($1)
			AND (
				initial_comments_scraped = false
				OR (num_comments > 100 AND (last_comment_fetch_time IS NULL OR last_comment_fetch_time < now() - interval '2 hours'))
				OR (num_comments BETWEEN 20 AND 100 AND (last_comment_fetch_time IS NULL OR last_comment_fetch_time < now() - interval '6 hours'))
				OR (num_comments < 20 AND (last_comment_fetch_time IS NULL OR last_comment_fetch_time < now() - interval '24 hours'))
			)
		ORDER BY initial_comments_scraped ASC, num_comments DESC, created_at DESC
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, q, pq.Array(subreddits), batchSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var p PostForCommentFetch
		if err = rows.Scan(&p.PostID, &p.Subreddit, &p.NumComments, &p.InitialCommentsScraped, &p.LastCommentFetchTime, &p.CreatedAt); err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// RefreshSubredditMetadata upserts community attributes, bumping
// last_updated; the Posts Worker calls this at most once per 24h per
// subreddit (spec §4.E).
func (s *Store) RefreshSubredditMetadata(ctx context.Context, subreddit, title, description string, subscribers int) (err error) {
	defer func(start time.Time) { observe("refresh_subreddit_metadata", start, err) }(time.Now())
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO subreddit_metadata (subreddit_name, title, description, subscribers, last_updated)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (subreddit_name) DO UPDATE SET
			title        = EXCLUDED.title,
			description  = EXCLUDED.description,
			subscribers  = EXCLUDED.subscribers,
			last_updated = now()
	`, subreddit, title, description, subscribers)
	return err
}

// SubredditMetadataStale reports whether metadata.last_updated is older
// than the given max age (spec §4.E: "now − metadata.last_updated ≥ 24h").
func (s *Store) SubredditMetadataStale(ctx context.Context, subreddit string, maxAge time.Duration) (stale bool, err error) {
	defer func(start time.Time) { observe("subreddit_metadata_stale", start, err) }(time.Now())
	var lastUpdated time.Time
	err = s.db.QueryRowContext(ctx, `SELECT last_updated FROM subreddit_metadata WHERE subreddit_name = $1`, subreddit).Scan(&lastUpdated)
	if err != nil {
		// No metadata row yet: treat as stale so it gets fetched.
		return true, nil
	}
	return time.Since(lastUpdated) >= maxAge, nil
}
