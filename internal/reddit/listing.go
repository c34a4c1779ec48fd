package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/onnwee/reddit-fleet/internal/httpx"
	"github.com/onnwee/reddit-fleet/internal/usage"
)

// Post is the content shape returned by a listing fetch (spec §3 Post
// entity, content fields only — tracking fields are owned by the store).
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

type listingChild struct {
	Data struct {
		ID          string  `json:"id"`
		Title       string  `json:"title"`
		URL         string  `json:"url"`
		Selftext    string  `json:"selftext"`
		Author      string  `json:"author"`
		Score       int     `json:"score"`
		NumComments int     `json:"num_comments"`
		CreatedUTC  float64 `json:"created_utc"`
	} `json:"data"`
}

type listingResponse struct {
	Data struct {
		Children []listingChild `json:"children"`
		After    string         `json:"after"`
	} `json:"data"`
}

// FetchListing fetches up to `limit` posts for one (subreddit, sort),
// paginating in pages of ≤100 per Reddit's cap (spec §4.E, §6). timeFilter
// is only honored for the "top" sort, per spec §4.J ("only the top sort
// consults the filter; new/rising are unaffected").
func (c *Client) FetchListing(ctx context.Context, subreddit, sort string, limit int, timeFilter string) ([]Post, error) {
	ctx = usage.WithLabels(ctx, subreddit, c.scraperType)

	var posts []Post
	after := ""
	for len(posts) < limit {
		page := limit - len(posts)
		if page > 100 {
			page = 100
		}

		url := fmt.Sprintf("https://oauth.reddit.com/r/%s/%s?limit=%d&raw_json=1", subreddit, sort, page)
		if sort == "top" && timeFilter != "" {
			url += "&t=" + timeFilter
		}
		if after != "" {
			url += "&after=" + after
		}

		resp, err := c.get(ctx, url)
		if err != nil {
			return posts, err
		}

		var parsed listingResponse
		decodeErr := json.NewDecoder(resp.Body).Decode(&parsed)
		resp.Body.Close()
		if decodeErr != nil {
			return posts, fmt.Errorf("reddit: decode listing for r/%s/%s: %w", subreddit, sort, decodeErr)
		}

		for _, child := range parsed.Data.Children {
			posts = append(posts, Post{
				PostID:      child.Data.ID,
				Subreddit:   subreddit,
				Title:       child.Data.Title,
				URL:         child.Data.URL,
				Selftext:    child.Data.Selftext,
				Author:      child.Data.Author,
				Score:       child.Data.Score,
				NumComments: child.Data.NumComments,
				CreatedAt:   time.Unix(int64(child.Data.CreatedUTC), 0),
			})
			if len(posts) >= limit {
				break
			}
		}

		if parsed.Data.After == "" || len(parsed.Data.Children) == 0 {
			break
		}
		after = parsed.Data.After
	}
	return posts, nil
}

// SubredditAbout is the community metadata shape fetched for the
// subreddit_metadata refresh (spec §4.E).
type SubredditAbout struct {
	Title       string `json:"title"`
	Description string `json:"public_description"`
	Subscribers int    `json:"subscribers"`
}

// FetchAbout fetches subreddit community metadata.
func (c *Client) FetchAbout(ctx context.Context, subreddit string) (SubredditAbout, error) {
	ctx = usage.WithLabels(ctx, subreddit, c.scraperType)
	resp, err := c.get(ctx, fmt.Sprintf("https://oauth.reddit.com/r/%s/about?raw_json=1", subreddit))
	if err != nil {
		return SubredditAbout{}, err
	}
	defer resp.Body.Close()

	var wrapper struct {
		Data SubredditAbout `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wrapper); err != nil {
		return SubredditAbout{}, fmt.Errorf("reddit: decode about for r/%s: %w", subreddit, err)
	}
	return wrapper.Data, nil
}

// get issues an authenticated GET, retrying transient failures through
// internal/httpx and gating the whole attempt behind c.breaker so a
// sustained run of failures trips the circuit and fails fast instead of
// retrying into a downed upstream. The Authorization header is refreshed
// per attempt so a token that expires mid-retry-sequence is transparently
// renewed.
func (c *Client) get(ctx context.Context, url string) (*http.Response, error) {
	build := func() (*http.Request, error) {
		token, err := c.tokens.AccessToken(ctx)
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("User-Agent", c.userAgent)
		return req, nil
	}

	var resp *http.Response
	callErr := c.breaker.Call(func() error {
		var err error
		resp, err = httpx.DoWithRetryFactory(c.http, build, nil)
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			apiErr := ClassifyResponse(resp)
			resp.Body.Close()
			resp = nil
			return apiErr
		}
		return nil
	})
	if callErr != nil {
		return nil, callErr
	}
	return resp, nil
}
