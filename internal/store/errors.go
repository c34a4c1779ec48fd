package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sqlc-dev/pqtype"
)

// ErrorType enumerates the taxonomy the Error Ledger records (spec §3, §7).
type ErrorType string

const (
	ErrorCommentScrapeFailed ErrorType = "comment_scrape_failed"
	ErrorVerificationFailed  ErrorType = "verification_failed"
	ErrorAuthFailed          ErrorType = "auth_failed"
	ErrorTransportError      ErrorType = "transport_error"
)

// ErrorRow is one append-only Error Ledger entry (spec §4.K).
type ErrorRow struct {
	ID           int64
	Subreddit    string
	PostID       string
	ErrorType    ErrorType
	ErrorMessage string
	RetryCount   int
	CreatedAt    time.Time
	Resolved     bool
	// Details is an optional structured payload (e.g. HTTP status code,
	// rate-limit snapshot at failure time) alongside the human-readable
	// ErrorMessage, mirroring the teacher's admin/job handlers' use of
	// pqtype.NullRawMessage for a nullable JSONB "details" column.
	Details json.RawMessage
}

// RecordError appends a row to the error ledger. Final failures are the
// only writes here — in-flight retry counters stay in memory on the
// worker (spec §4.K: "retries increment an in-memory counter; final
// failures write one row with final retry_count").
func (s *Store) RecordError(ctx context.Context, subreddit, postID string, errType ErrorType, message string, retryCount int) error {
	return s.RecordErrorDetailed(ctx, subreddit, postID, errType, message, retryCount, nil)
}

// RecordErrorDetailed is RecordError plus an optional structured details
// payload, stored as a nullable JSONB column via pqtype.NullRawMessage —
// the same pattern the teacher uses for its admin/scheduled-job "details"
// columns.
func (s *Store) RecordErrorDetailed(ctx context.Context, subreddit, postID string, errType ErrorType, message string, retryCount int, details json.RawMessage) (err error) {
	defer func(start time.Time) { observe("record_error", start, err) }(time.Now())
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO errors (subreddit, post_id, error_type, error_message, retry_count, resolved, details)
		VALUES ($1, $2, $3, $4, $5, false, $6)
	`, subreddit, postID, string(errType), message, retryCount, pqtype.NullRawMessage{RawMessage: details, Valid: len(details) > 0})
	return err
}

// UnresolvedErrors lets operators query by resolved=false to drive
// remediation (spec §4.K).
func (s *Store) UnresolvedErrors(ctx context.Context, limit int) (rows []ErrorRow, err error) {
	defer func(start time.Time) { observe("unresolved_errors", start, err) }(time.Now())
	res, err := s.db.QueryContext(ctx, `
		SELECT id, subreddit, post_id, error_type, error_message, retry_count, created_at, resolved, details
		FROM errors WHERE resolved = false ORDER BY created_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer res.Close()

	for res.Next() {
		var r ErrorRow
		var errType string
		var details pqtype.NullRawMessage
		if err = res.Scan(&r.ID, &r.Subreddit, &r.PostID, &errType, &r.ErrorMessage, &r.RetryCount, &r.CreatedAt, &r.Resolved, &details); err != nil {
			return nil, err
		}
		r.ErrorType = ErrorType(errType)
		if details.Valid {
			r.Details = details.RawMessage
		}
		rows = append(rows, r)
	}
	return rows, res.Err()
}
