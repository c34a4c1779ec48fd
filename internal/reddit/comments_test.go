package reddit

import (
	"encoding/json"
	"testing"
)

func makeT1(id, parentID string, replies []commentThing) commentThing {
	var repliesRaw json.RawMessage
	if len(replies) == 0 {
		repliesRaw = json.RawMessage(`""`)
	} else {
		wrapper := listingWrapper{}
		wrapper.Data.Children = replies
		b, _ := json.Marshal(wrapper)
		repliesRaw = b
	}
	c := commentThing{Kind: "t1"}
	c.Data.ID = id
	c.Data.ParentID = "t1_" + parentID
	c.Data.Replies = repliesRaw
	return c
}

// TestWalkCommentsRespectsDepthCap exercises spec invariant 5: "for every
// stored comment, depth ≤ max_comment_depth" — deeper levels are dropped,
// not truncated-but-kept.
func TestWalkCommentsRespectsDepthCap(t *testing.T) {
	leaf := makeT1("c3", "c2", nil)
	mid := makeT1("c2", "c1", []commentThing{leaf})
	top := makeT1("c1", "post1", []commentThing{mid})

	var out []Comment
	var more []string
	walkComments([]commentThing{top}, "post1", "post", 0, 1, &out, &more)

	if len(out) != 2 {
		t.Fatalf("expected 2 comments retained at depth cap 1, got %d: %+v", len(out), out)
	}
	for _, c := range out {
		if c.Depth > 1 {
			t.Fatalf("comment %s exceeded depth cap: %d", c.CommentID, c.Depth)
		}
	}
}

// TestWalkCommentsFullDepth with a generous cap retains the whole chain and
// assigns parent_type=post only to the top-level comment.
func TestWalkCommentsFullDepth(t *testing.T) {
	leaf := makeT1("c3", "c2", nil)
	mid := makeT1("c2", "c1", []commentThing{leaf})
	top := makeT1("c1", "post1", []commentThing{mid})

	var out []Comment
	var more []string
	walkComments([]commentThing{top}, "post1", "post", 0, 3, &out, &more)

	if len(out) != 3 {
		t.Fatalf("expected all 3 comments retained, got %d", len(out))
	}
	byID := make(map[string]Comment, len(out))
	for _, c := range out {
		byID[c.CommentID] = c
	}
	if byID["c1"].ParentType != "post" || byID["c1"].Depth != 0 {
		t.Fatalf("top-level comment wrong: %+v", byID["c1"])
	}
	if byID["c2"].ParentType != "comment" || byID["c2"].Depth != 1 || byID["c2"].ParentID != "c1" {
		t.Fatalf("mid comment wrong: %+v", byID["c2"])
	}
	if byID["c3"].Depth != 2 {
		t.Fatalf("leaf comment wrong depth: %+v", byID["c3"])
	}
}

func TestWalkCommentsCollectsMoreNodes(t *testing.T) {
	more := commentThing{Kind: "more"}
	more.Data.Children = []string{"abc", "def"}
	top := makeT1("c1", "post1", nil)

	var out []Comment
	var moreIDs []string
	walkComments([]commentThing{top, more}, "post1", "post", 0, 3, &out, &moreIDs)

	if len(out) != 1 {
		t.Fatalf("expected 1 t1 comment, got %d", len(out))
	}
	if len(moreIDs) != 2 || moreIDs[0] != "abc" || moreIDs[1] != "def" {
		t.Fatalf("expected more ids collected, got %v", moreIDs)
	}
}

func TestParseRepliesEmptyString(t *testing.T) {
	if got := parseReplies(json.RawMessage(`""`)); got != nil {
		t.Fatalf("expected nil for empty-string replies, got %v", got)
	}
}

func TestParseRepliesNestedListing(t *testing.T) {
	wrapper := listingWrapper{}
	wrapper.Data.Children = []commentThing{makeT1("x", "y", nil)}
	raw, _ := json.Marshal(wrapper)

	got := parseReplies(raw)
	if len(got) != 1 || got[0].Data.ID != "x" {
		t.Fatalf("expected one nested child, got %+v", got)
	}
}
