package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/onnwee/reddit-fleet/internal/reddit"
	"github.com/onnwee/reddit-fleet/internal/redditapi"
	"github.com/onnwee/reddit-fleet/internal/store"
)

type fakeFetcher struct {
	tree []reddit.Comment
	err  error
	// failTimes, if > 0, makes the first N calls fail with a retriable
	// error before succeeding.
	failTimes int
	calls     int
}

func (f *fakeFetcher) FetchCommentTree(ctx context.Context, subreddit, postID string, maxDepth, moreLimit int) ([]reddit.Comment, error) {
	f.calls++
	if f.failTimes > 0 && f.calls <= f.failTimes {
		return nil, &redditapi.APIError{Type: redditapi.ErrorServerError, Retryable: true, Message: "simulated transient failure"}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.tree, nil
}

type fakeCommentStore struct {
	existing        map[string]struct{}
	inserted        []store.Comment
	verifyCount     int
	verifyErr       error
	marked          []string
	markedInitial   []bool
	errorsRecorded  []store.ErrorType
	selectErr       error
	eligiblePosts   []store.PostForCommentFetch
}

func (f *fakeCommentStore) SelectCommentEligiblePosts(ctx context.Context, subreddits []string, batchSize int) ([]store.PostForCommentFetch, error) {
	return f.eligiblePosts, f.selectErr
}

func (f *fakeCommentStore) ExistingCommentIDs(ctx context.Context, postID string) (map[string]struct{}, error) {
	if f.existing == nil {
		return map[string]struct{}{}, nil
	}
	return f.existing, nil
}

func (f *fakeCommentStore) UpsertComments(ctx context.Context, comments []store.Comment) error {
	f.inserted = append(f.inserted, comments...)
	return nil
}

func (f *fakeCommentStore) VerifyCommentsPresent(ctx context.Context, postID string) (int, error) {
	return f.verifyCount, f.verifyErr
}

func (f *fakeCommentStore) MarkCommentsScraped(ctx context.Context, postID string, initialFirstTime bool) error {
	f.marked = append(f.marked, postID)
	f.markedInitial = append(f.markedInitial, initialFirstTime)
	return nil
}

func (f *fakeCommentStore) RecordError(ctx context.Context, subreddit, postID string, errType store.ErrorType, message string, retryCount int) error {
	f.errorsRecorded = append(f.errorsRecorded, errType)
	return nil
}

func samplePost() store.PostForCommentFetch {
	return store.PostForCommentFetch{PostID: "p1", Subreddit: "golang", NumComments: 2}
}

// TestProcessPostVerifyThenMark exercises spec §8 scenario S3: a
// successful fetch + write + fresh verify(count>0) flips comments_scraped
// and initial_comments_scraped, and stamps last_comment_fetch_time.
func TestProcessPostVerifyThenMark(t *testing.T) {
	fetcher := &fakeFetcher{tree: []reddit.Comment{
		{CommentID: "c1", PostID: "p1", ParentType: "post", Depth: 0},
		{CommentID: "c2", PostID: "p1", ParentID: "c1", ParentType: "comment", Depth: 1},
	}}
	st := &fakeCommentStore{verifyCount: 2}

	n, err := processPost(context.Background(), fetcher, st, samplePost(), 3, 0, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 new comments inserted, got %d", n)
	}
	if len(st.marked) != 1 || st.marked[0] != "p1" {
		t.Fatalf("expected post marked scraped, got %v", st.marked)
	}
	if !st.markedInitial[0] {
		t.Fatal("expected initialFirstTime=true for a never-scraped post")
	}
	if len(st.errorsRecorded) != 0 {
		t.Fatalf("expected no error rows on success, got %v", st.errorsRecorded)
	}
}

// TestProcessPostVerificationFailureLeavesFlagsUntouched exercises spec §8
// scenario S4: the ghost-post defect. When verify_comments_present returns
// 0 after a non-empty fetch, comments_scraped must stay untouched and one
// verification_failed error row must be written.
func TestProcessPostVerificationFailureLeavesFlagsUntouched(t *testing.T) {
	fetcher := &fakeFetcher{tree: []reddit.Comment{
		{CommentID: "c1", PostID: "p1", ParentType: "post", Depth: 0},
	}}
	st := &fakeCommentStore{verifyCount: 0}

	_, err := processPost(context.Background(), fetcher, st, samplePost(), 3, 0, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(st.marked) != 0 {
		t.Fatalf("expected comments_scraped to remain untouched, but MarkCommentsScraped was called: %v", st.marked)
	}
	if len(st.errorsRecorded) != 1 || st.errorsRecorded[0] != store.ErrorVerificationFailed {
		t.Fatalf("expected one verification_failed error row, got %v", st.errorsRecorded)
	}
}

// TestProcessPostEmptyTreeIsAcceptable exercises the boundary case: a post
// with zero comments verifying to 0 is fine — it must not be treated as a
// ghost post, since there was nothing to write in the first place.
func TestProcessPostEmptyTreeIsAcceptable(t *testing.T) {
	fetcher := &fakeFetcher{tree: nil}
	st := &fakeCommentStore{verifyCount: 0}

	_, err := processPost(context.Background(), fetcher, st, samplePost(), 3, 0, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(st.marked) != 1 {
		t.Fatalf("expected comments_scraped=true for a genuinely empty tree, got marked=%v", st.marked)
	}
	if len(st.errorsRecorded) != 0 {
		t.Fatalf("expected no error row for a genuinely empty tree, got %v", st.errorsRecorded)
	}
}

// TestProcessPostDedupsAgainstExisting exercises spec §4.F: comments
// already present are skipped on insertion but their (hypothetical)
// children are still descended into by the fetcher — here we assert the
// worker only inserts what's new.
func TestProcessPostDedupsAgainstExisting(t *testing.T) {
	fetcher := &fakeFetcher{tree: []reddit.Comment{
		{CommentID: "c1", PostID: "p1", ParentType: "post", Depth: 0},
		{CommentID: "c2", PostID: "p1", ParentID: "c1", ParentType: "comment", Depth: 1},
	}}
	st := &fakeCommentStore{
		existing:    map[string]struct{}{"c1": {}},
		verifyCount: 2,
	}

	n, err := processPost(context.Background(), fetcher, st, samplePost(), 3, 0, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected only the new comment inserted, got %d", n)
	}
	if len(st.inserted) != 1 || st.inserted[0].CommentID != "c2" {
		t.Fatalf("expected only c2 inserted, got %+v", st.inserted)
	}
}

// TestProcessPostRetriesTransientFailures exercises spec §7's retry policy:
// transient failures are retried before eventually succeeding.
func TestProcessPostRetriesTransientFailures(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping retry-backoff test in short mode")
	}
	fetcher := &fakeFetcher{
		failTimes: 1,
		tree:      []reddit.Comment{{CommentID: "c1", PostID: "p1", ParentType: "post", Depth: 0}},
	}
	st := &fakeCommentStore{verifyCount: 1}

	n, err := processPost(context.Background(), fetcher, st, samplePost(), 3, 0, 3)
	if err != nil {
		t.Fatalf("expected eventual success after retries, got %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 comment inserted, got %d", n)
	}
	if fetcher.calls != 2 {
		t.Fatalf("expected 2 attempts (1 failure + 1 success), got %d", fetcher.calls)
	}
}

// TestProcessPostAbandonsNonRetriableFailures exercises spec §7: a 404 is
// non-retriable and the post is abandoned immediately rather than retried
// max_retries times. Per spec §7 "Resource missing" and §9 Open Question 2,
// a 404 means the post itself is gone — its comments are vacuously
// scraped, so the post is marked scraped rather than logged as an error.
func TestProcessPostAbandonsNonRetriableFailures(t *testing.T) {
	fetcher := &fakeFetcher{err: &redditapi.APIError{Type: redditapi.ErrorNotFound, Message: "post deleted"}}
	st := &fakeCommentStore{}

	_, err := processPost(context.Background(), fetcher, st, samplePost(), 3, 0, 3)
	if err != nil {
		t.Fatalf("expected a 404 to be treated as a vacuous scrape, not an error, got %v", err)
	}
	if fetcher.calls != 1 {
		t.Fatalf("expected exactly 1 attempt for a non-retriable failure, got %d", fetcher.calls)
	}
	if len(st.marked) != 1 || st.marked[0] != "p1" {
		t.Fatalf("expected the post marked scraped (vacuously) on 404, got marked=%v", st.marked)
	}
	if len(st.errorsRecorded) != 0 {
		t.Fatalf("expected no error row for a 404 (vacuous scrape), got %v", st.errorsRecorded)
	}
}

// TestProcessPostAbandonsAuthFailures exercises spec §7's distinct
// non-retriable auth-failure path: unlike 404, an auth failure is NOT a
// vacuous scrape — it is logged to the error ledger and the tracking
// fields are left untouched, since the post may well still have comments.
func TestProcessPostAbandonsAuthFailures(t *testing.T) {
	fetcher := &fakeFetcher{err: &redditapi.APIError{Type: redditapi.ErrorForbidden, Message: "private subreddit"}}
	st := &fakeCommentStore{}

	_, err := processPost(context.Background(), fetcher, st, samplePost(), 3, 0, 3)
	if err == nil {
		t.Fatal("expected error for an auth failure")
	}
	if fetcher.calls != 1 {
		t.Fatalf("expected exactly 1 attempt for a non-retriable failure, got %d", fetcher.calls)
	}
	if len(st.marked) != 0 {
		t.Fatalf("expected comments_scraped to remain untouched on auth failure, got marked=%v", st.marked)
	}
	if len(st.errorsRecorded) != 1 || st.errorsRecorded[0] != store.ErrorCommentScrapeFailed {
		t.Fatalf("expected one comment_scrape_failed error row, got %v", st.errorsRecorded)
	}
}

func TestRunCommentsOncePolitenessBetweenPosts(t *testing.T) {
	fetcher := &fakeFetcher{tree: []reddit.Comment{{CommentID: "c1", PostID: "p1", ParentType: "post", Depth: 0}}}
	st := &fakeCommentStore{
		verifyCount: 1,
		eligiblePosts: []store.PostForCommentFetch{
			{PostID: "p1", Subreddit: "golang"},
			{PostID: "p2", Subreddit: "golang"},
		},
	}

	start := time.Now()
	n, err := RunCommentsOnce(context.Background(), fetcher, st, []string{"golang"}, 10, 3, 0, 3, 10*time.Millisecond)
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 new comments across both posts, got %d", n)
	}
	if elapsed < 10*time.Millisecond {
		t.Fatalf("expected at least one politeness pause between posts, elapsed=%s", elapsed)
	}
}

func TestRunCommentsOncePropagatesSelectError(t *testing.T) {
	wantErr := errors.New("store unreachable")
	st := &fakeCommentStore{selectErr: wantErr}
	fetcher := &fakeFetcher{}

	_, err := RunCommentsOnce(context.Background(), fetcher, st, []string{"golang"}, 10, 3, 0, 3, 0)
	if err != wantErr {
		t.Fatalf("expected select error to propagate, got %v", err)
	}
}
