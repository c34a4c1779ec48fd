package store

import (
	"context"
	"database/sql"
	"time"
)

// Comment is one node in a bounded-depth comment tree (spec §3, §4.F).
type Comment struct {
	CommentID  string
	PostID     string
	ParentID   string // empty for top-level
	ParentType string // "post" or "comment"
	Depth      int
	Author     string
	Body       string
	Score      int
	CreatedAt  time.Time
}

// UpsertComments inserts with comment_id as the unique key; duplicates are
// silently ignored (spec §4.G: "upsert_comments... duplicates silently
// ignored"). Depth-cap enforcement (max_comment_depth=3) happens in
// internal/reddit's comment walk before rows ever reach here, so this stays a
// mechanical insert.
func (s *Store) UpsertComments(ctx context.Context, comments []Comment) (err error) {
	defer func(start time.Time) { observe("upsert_comments", start, err) }(time.Now())
	if len(comments) == 0 {
		return nil
	}

	const q = `
		INSERT INTO comments (comment_id, post_id, parent_id, parent_type, depth, author, body, score, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (comment_id) DO NOTHING
	`
	for _, c := range comments {
		var parentID sql.NullString
		if c.ParentID != "" {
			parentID = sql.NullString{String: c.ParentID, Valid: true}
		}
		if _, err = s.db.ExecContext(ctx, q, c.CommentID, c.PostID, parentID, c.ParentType, c.Depth, c.Author, c.Body, c.Score, c.CreatedAt); err != nil {
			return err
		}
	}
	return nil
}
