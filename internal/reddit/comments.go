package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/onnwee/reddit-fleet/internal/usage"
)

// Comment is one node of a bounded-depth comment tree (spec §3, §4.F).
type Comment struct {
	CommentID string
	PostID    string
	ParentID  string // empty for top-level
	// ParentType is "post" for top-level comments, "comment" otherwise
	// (spec §3 Comment entity invariant).
	ParentType string
	Depth      int
	Author     string
	Body       string
	Score      int
	CreatedAt  time.Time
}

type commentThing struct {
	Kind string `json:"kind"`
	Data struct {
		ID         string          `json:"id"`
		Name       string          `json:"name"` // "t1_<id>"
		ParentID   string          `json:"parent_id"`
		Author     string          `json:"author"`
		Body       string          `json:"body"`
		Score      int             `json:"score"`
		CreatedUTC float64         `json:"created_utc"`
		Replies    json.RawMessage `json:"replies"`
		Children   []string        `json:"children"` // "more" nodes
	} `json:"data"`
}

type listingWrapper struct {
	Data struct {
		Children []commentThing `json:"children"`
	} `json:"data"`
}

// FetchCommentTree fetches a post's comment tree with two bounded
// expansions (spec §4.F): a depth cap (levels 0..maxDepth are retained) and
// a "more comments" expansion limit (0 skips the load-more expansion
// entirely; a positive integer fetches up to that many additional comment
// ids via /api/morechildren; the zero value is the spec's recommended
// default since depths 0-3 already capture ~85-90% of discussion).
func (c *Client) FetchCommentTree(ctx context.Context, subreddit, postID string, maxDepth, moreLimit int) ([]Comment, error) {
	ctx = usage.WithLabels(ctx, subreddit, c.scraperType)

	url := fmt.Sprintf("https://oauth.reddit.com/comments/%s?limit=500&depth=%d&raw_json=1", postID, maxDepth+1)
	resp, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var pair []listingWrapper
	if err := json.NewDecoder(resp.Body).Decode(&pair); err != nil {
		return nil, fmt.Errorf("reddit: decode comment tree for post %s: %w", postID, err)
	}
	if len(pair) < 2 {
		return nil, nil
	}

	var comments []Comment
	var moreIDs []string
	walkComments(pair[1].Data.Children, postID, "post", 0, maxDepth, &comments, &moreIDs)

	if moreLimit > 0 && len(moreIDs) > 0 {
		if len(moreIDs) > moreLimit {
			moreIDs = moreIDs[:moreLimit]
		}
		expanded, err := c.fetchMoreChildren(ctx, postID, moreIDs, maxDepth)
		if err != nil {
			// "more comments" expansion is best-effort: the primary tree
			// already satisfied the depth cap, so a failed expansion call
			// doesn't fail the whole fetch.
			return comments, nil
		}
		comments = append(comments, expanded...)
	}

	return comments, nil
}

// walkComments recursively flattens Reddit's nested listing/replies shape
// into a flat slice, stopping recursion once depth exceeds maxDepth (spec
// invariant 5: "for every stored comment, depth ≤ max_comment_depth").
// "more" kind nodes below the cap are recorded for optional expansion but
// never descended into directly.
func walkComments(children []commentThing, postID, parentType string, depth, maxDepth int, out *[]Comment, moreIDs *[]string) {
	if depth > maxDepth {
		return
	}
	for _, child := range children {
		switch child.Kind {
		case "t1":
			parentID := strings.TrimPrefix(child.Data.ParentID, "t1_")
			parentID = strings.TrimPrefix(parentID, "t3_")
			*out = append(*out, Comment{
				CommentID:  child.Data.ID,
				PostID:     postID,
				ParentID:   parentID,
				ParentType: parentType,
				Depth:      depth,
				Author:     child.Data.Author,
				Body:       child.Data.Body,
				Score:      child.Data.Score,
				CreatedAt:  time.Unix(int64(child.Data.CreatedUTC), 0),
			})

			if depth+1 <= maxDepth {
				nested := parseReplies(child.Data.Replies)
				walkComments(nested, postID, "comment", depth+1, maxDepth, out, moreIDs)
			}
		case "more":
			if depth <= maxDepth {
				*moreIDs = append(*moreIDs, child.Data.Children...)
			}
		}
	}
}

// parseReplies decodes the polymorphic "replies" field, which is either an
// empty string (no replies) or a nested listing object.
func parseReplies(raw json.RawMessage) []commentThing {
	if len(raw) == 0 {
		return nil
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return nil
	}
	var wrapper listingWrapper
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return nil
	}
	return wrapper.Data.Children
}

// fetchMoreChildren performs a single flat /api/morechildren expansion for
// the collected "more" ids. Every returned comment is recorded at maxDepth
// (the deepest retained level) with ParentType "comment", whatever its true
// nesting; this is a shallow, one-shot expansion rather
// than a fully recursive walk of the morechildren tree, matching the
// spec's "breadth-over-depth" non-goal for deep completeness.
func (c *Client) fetchMoreChildren(ctx context.Context, postID string, ids []string, maxDepth int) ([]Comment, error) {
	url := fmt.Sprintf("https://oauth.reddit.com/api/morechildren?link_id=t3_%s&children=%s&api_type=json&raw_json=1",
		postID, strings.Join(ids, ","))
	resp, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var parsed struct {
		JSON struct {
			Data struct {
				Things []struct {
					Kind string `json:"kind"`
					Data struct {
						ID         string  `json:"id"`
						ParentID   string  `json:"parent_id"`
						Author     string  `json:"author"`
						Body       string  `json:"body"`
						Score      int     `json:"score"`
						CreatedUTC float64 `json:"created_utc"`
					} `json:"data"`
				} `json:"things"`
			} `json:"data"`
		} `json:"json"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("reddit: decode morechildren for post %s: %w", postID, err)
	}

	var out []Comment
	for _, thing := range parsed.JSON.Data.Things {
		if thing.Kind != "t1" {
			continue
		}
		parentID := strings.TrimPrefix(thing.Data.ParentID, "t1_")
		parentID = strings.TrimPrefix(parentID, "t3_")
		out = append(out, Comment{
			CommentID:  thing.Data.ID,
			PostID:     postID,
			ParentID:   parentID,
			ParentType: "comment",
			Depth:      maxDepth,
			Author:     thing.Data.Author,
			Body:       thing.Data.Body,
			Score:      thing.Data.Score,
			CreatedAt:  time.Unix(int64(thing.Data.CreatedUTC), 0),
		})
	}
	return out, nil
}
