// Package usage implements the HTTP Request Counter (spec §4.B) and the
// Usage Recorder (spec §4.C). The counter lives at the transport layer —
// every outbound request to oauth.reddit.com passes through one
// CountingTransport, whatever high-level call produced it — because a
// single post-listing call can expand into several paginated HTTP calls
// and counting anywhere above the transport undercounts (spec §4.B
// rationale). The Recorder buffers those counts and flushes aggregated
// rows to the store on an interval.
package usage

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/onnwee/reddit-fleet/internal/logger"
	"github.com/onnwee/reddit-fleet/internal/metrics"
	"github.com/onnwee/reddit-fleet/internal/ratelimit"
)

type labelsKey struct{}

// Labels identifies which tenant/worker an outbound request belongs to, so
// the counting transport can attribute cost correctly even though the
// *http.Client is shared across a rotation cycle's many subreddits.
type Labels struct {
	Subreddit   string
	ScraperType string
}

// WithLabels attaches the calling subreddit/scraper-type to a context so
// CountingTransport can label the request it produces. Every internal/reddit
// call wraps its context with this before issuing a request (spec §9: "the
// HTTP layer must be explicit — every listing and expansion is a deliberate
// call, and the counting interceptor sees all of them").
func WithLabels(ctx context.Context, subreddit, scraperType string) context.Context {
	return context.WithValue(ctx, labelsKey{}, Labels{Subreddit: subreddit, ScraperType: scraperType})
}

func labelsFrom(ctx context.Context) Labels {
	if l, ok := ctx.Value(labelsKey{}).(Labels); ok {
		return l
	}
	return Labels{}
}

// CountingTransport is the HTTP Request Counter (4.B). It wraps a base
// RoundTripper and, for every request to oauth.reddit.com: increments a
// labeled Prometheus counter, forwards response rate-limit headers to the
// Rate-Limit Oracle (4.A), and records the request against the Usage
// Recorder (4.C). It issues no requests itself and never retries — retry
// policy lives in internal/httpx / internal/reddit, one layer up.
type CountingTransport struct {
	Base     http.RoundTripper
	Oracle   *ratelimit.Oracle
	Recorder *Recorder
}

func (t *CountingTransport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

// RoundTrip implements http.RoundTripper.
func (t *CountingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Host != "oauth.reddit.com" {
		return t.base().RoundTrip(req)
	}

	labels := labelsFrom(req.Context())
	resp, err := t.base().RoundTrip(req)

	status := "error"
	if err == nil {
		switch {
		case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
			status = "retry"
		default:
			status = "success"
		}
	}
	metrics.HTTPRequestsTotal.WithLabelValues(labels.Subreddit, labels.ScraperType, status).Inc()

	if t.Recorder != nil {
		t.Recorder.Add(labels.Subreddit, labels.ScraperType)
	}

	if err == nil && t.Oracle != nil {
		observeRateLimitHeaders(t.Oracle, resp)
	}
	return resp, err
}

// observeRateLimitHeaders parses X-Ratelimit-{Used,Remaining,Reset} (spec
// §6) and forwards them to the oracle. A missing header set is skipped
// silently and a malformed value is logged at debug level and skipped,
// rather than treated as a fatal error — the oracle
// simply keeps its last-known snapshot, erring on the side of caution.
func observeRateLimitHeaders(oracle *ratelimit.Oracle, resp *http.Response) {
	remainingStr := resp.Header.Get("X-Ratelimit-Remaining")
	usedStr := resp.Header.Get("X-Ratelimit-Used")
	resetStr := resp.Header.Get("X-Ratelimit-Reset")
	if remainingStr == "" || resetStr == "" {
		return
	}

	remainingF, err := strconv.ParseFloat(remainingStr, 64)
	if err != nil {
		logger.Debug("usage: malformed X-Ratelimit-Remaining", "value", remainingStr)
		return
	}
	usedF, _ := strconv.ParseFloat(usedStr, 64)
	resetSecs, err := strconv.ParseFloat(resetStr, 64)
	if err != nil {
		logger.Debug("usage: malformed X-Ratelimit-Reset", "value", resetStr)
		return
	}

	oracle.Observe(int(remainingF), int(usedF), time.Now().Add(time.Duration(resetSecs)*time.Second))
}
