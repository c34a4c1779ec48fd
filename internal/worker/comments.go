package worker

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/pkg/errors"

	"github.com/onnwee/reddit-fleet/internal/logger"
	"github.com/onnwee/reddit-fleet/internal/metrics"
	"github.com/onnwee/reddit-fleet/internal/reddit"
	"github.com/onnwee/reddit-fleet/internal/store"
)

// CommentFetcher is the Reddit-facing surface the Comments Worker needs;
// satisfied by *internal/reddit.Client.
type CommentFetcher interface {
	FetchCommentTree(ctx context.Context, subreddit, postID string, maxDepth, moreLimit int) ([]reddit.Comment, error)
}

// CommentStore is the store surface the Comments Worker needs.
type CommentStore interface {
	SelectCommentEligiblePosts(ctx context.Context, subreddits []string, batchSize int) ([]store.PostForCommentFetch, error)
	ExistingCommentIDs(ctx context.Context, postID string) (map[string]struct{}, error)
	UpsertComments(ctx context.Context, comments []store.Comment) error
	VerifyCommentsPresent(ctx context.Context, postID string) (int, error)
	MarkCommentsScraped(ctx context.Context, postID string, initialFirstTime bool) error
	RecordError(ctx context.Context, subreddit, postID string, errType store.ErrorType, message string, retryCount int) error
}

// CommentsBatch runs one priority-tier batch for one scraper's subreddits
// (spec §4.F). Unlike the Posts Worker's per-subreddit Action, comment
// eligibility is selected across the whole tenant partition in one query,
// so this isn't wired through Rotation's Action signature — it is its own
// top-level loop, started alongside the Posts Worker's Rotation for a
// comments-type scraper.
func CommentsBatch(fetcher CommentFetcher, st CommentStore, subreddits []string, batchSize, maxDepth, moreLimit, maxRetries int, politeness time.Duration) (int, error) {
	ctx := context.Background()
	return runCommentsBatch(ctx, fetcher, st, subreddits, batchSize, maxDepth, moreLimit, maxRetries, politeness)
}

// RunCommentsOnce selects one priority-tier batch and processes it to
// completion; callers loop this on their own interval (spec §4.F: "runs on
// its own schedule, independent of the Posts Worker's rotation").
func RunCommentsOnce(ctx context.Context, fetcher CommentFetcher, st CommentStore, subreddits []string, batchSize, maxDepth, moreLimit, maxRetries int, politeness time.Duration) (int, error) {
	return runCommentsBatch(ctx, fetcher, st, subreddits, batchSize, maxDepth, moreLimit, maxRetries, politeness)
}

func runCommentsBatch(ctx context.Context, fetcher CommentFetcher, st CommentStore, subreddits []string, batchSize, maxDepth, moreLimit, maxRetries int, politeness time.Duration) (int, error) {
	posts, err := st.SelectCommentEligiblePosts(ctx, subreddits, batchSize)
	if err != nil {
		return 0, err
	}

	var totalNew int
	for i, post := range posts {
		if err := ctx.Err(); err != nil {
			return totalNew, err
		}

		n, err := processPost(ctx, fetcher, st, post, maxDepth, moreLimit, maxRetries)
		if err != nil {
			logger.ErrorContext(ctx, "worker: comment fetch failed after retries", "post_id", post.PostID, "subreddit", post.Subreddit, "error", err)
		}
		totalNew += n

		if i < len(posts)-1 {
			if err := sleepCancelable(ctx, politeness); err != nil {
				return totalNew, err
			}
		}
	}
	return totalNew, nil
}

// processPost fetches, dedups, retries, and verify-then-marks a single
// post (spec §4.F, §4.G). Retries use an exponential backoff of
// 2s/4s/8s (factor 2) up to maxRetries, distinguishing non-retriable
// failures (404, auth) which abandon the post immediately via
// backoff.Permanent. A 404 is treated as a vacuous scrape (spec §7, §9 Open
// Question 2: the post itself is gone, so there are no comments to fetch);
// every other abandoned failure, including auth failures, is logged to the
// error ledger with tracking fields left untouched.
func processPost(ctx context.Context, fetcher CommentFetcher, st CommentStore, post store.PostForCommentFetch, maxDepth, moreLimit, maxRetries int) (int, error) {
	existing, err := st.ExistingCommentIDs(ctx, post.PostID)
	if err != nil {
		return 0, err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 2 * time.Second
	bo.Multiplier = 2
	bo.MaxInterval = 8 * time.Second
	bo.RandomizationFactor = 0

	var fresh []reddit.Comment
	var attempts int
	operation := func() (struct{}, error) {
		attempts++
		tree, err := fetcher.FetchCommentTree(ctx, post.Subreddit, post.PostID, maxDepth, moreLimit)
		if err != nil {
			if reddit.IsNotFound(err) || reddit.IsAuthFailure(err) {
				return struct{}{}, backoff.Permanent(err)
			}
			if !reddit.IsRetryable(err) {
				return struct{}{}, backoff.Permanent(err)
			}
			return struct{}{}, err
		}
		fresh = tree
		return struct{}{}, nil
	}

	_, err = backoff.Retry(ctx, operation, backoff.WithBackOff(bo), backoff.WithMaxTries(uint(maxRetries+1)))
	if err != nil {
		if reddit.IsNotFound(err) {
			// Resource missing (spec §7 "Resource missing", §9 Open Question
			// 2): the post itself is gone out-of-band, so there is no work
			// to do — its comments are vacuously scraped. Mark true instead
			// of recording an error, or it would be re-selected and spam the
			// ledger on every comments cycle forever.
			if merr := st.MarkCommentsScraped(ctx, post.PostID, !post.InitialCommentsScraped); merr != nil {
				return 0, merr
			}
			return 0, nil
		}
		// Wrapped so error_message carries the retry-loop context (attempt
		// count, post) rather than just the innermost transport cause.
		wrapped := errors.Wrapf(err, "comment fetch for post %s in r/%s failed after %d attempt(s)", post.PostID, post.Subreddit, attempts)
		_ = st.RecordError(ctx, post.Subreddit, post.PostID, store.ErrorCommentScrapeFailed, wrapped.Error(), attempts-1)
		return 0, err
	}

	var toInsert []store.Comment
	for _, c := range fresh {
		if _, dup := existing[c.CommentID]; dup {
			continue
		}
		toInsert = append(toInsert, store.Comment{
			CommentID:  c.CommentID,
			PostID:     c.PostID,
			ParentID:   c.ParentID,
			ParentType: c.ParentType,
			Depth:      c.Depth,
			Author:     c.Author,
			Body:       c.Body,
			Score:      c.Score,
			CreatedAt:  c.CreatedAt,
		})
	}

	if len(toInsert) > 0 {
		if err := st.UpsertComments(ctx, toInsert); err != nil {
			return 0, err
		}
	}

	// Verify-then-mark (spec §4.F, §4.G invariant 2): only flip the
	// tracking fields once a fresh read confirms rows actually landed, or
	// the tree was genuinely empty (a post with zero comments must not be
	// retried forever).
	count, err := st.VerifyCommentsPresent(ctx, post.PostID)
	if err != nil {
		return len(toInsert), err
	}

	if count == 0 && len(fresh) > 0 {
		metrics.GhostPostsPreventedTotal.Inc()
		_ = st.RecordError(ctx, post.Subreddit, post.PostID, store.ErrorVerificationFailed, "verify_comments_present returned 0 after non-empty fetch", maxRetries)
		return len(toInsert), nil
	}

	if err := st.MarkCommentsScraped(ctx, post.PostID, !post.InitialCommentsScraped); err != nil {
		return len(toInsert), err
	}
	return len(toInsert), nil
}
