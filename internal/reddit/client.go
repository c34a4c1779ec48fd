package reddit

import (
	"net/http"
	"time"

	"github.com/onnwee/reddit-fleet/internal/circuitbreaker"
	"github.com/onnwee/reddit-fleet/internal/config"
)

// Client is the Reddit OAuth client used by one worker for one OAuth
// application (spec §9: never shared across tenants). It bundles the
// TokenManager, the counting/rate-limited *http.Client, and the scraper
// type used to label every outbound request.
type Client struct {
	http        *http.Client
	tokens      *TokenManager
	userAgent   string
	scraperType string
	breaker     *circuitbreaker.CircuitBreaker
}

// NewClient builds a Client. transport should be an
// *internal/usage.CountingTransport (or something that wraps one) so every
// request this client issues is counted and observed by the rate-limit
// oracle, per spec §9's "no lazy proxies without routing through the
// counter" rule.
//
// A circuit breaker wraps every outbound request: a sustained Reddit
// outage or OAuth app revocation trips it, so the worker fails fast
// instead of burning its retry budget hammering a downed upstream.
func NewClient(tokens *TokenManager, userAgent, scraperType string, transport http.RoundTripper) *Client {
	cfg := config.Load()
	breaker := circuitbreaker.New(circuitbreaker.Config{
		Name:             scraperType + ":" + userAgent,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
	})
	return &Client{
		http:        &http.Client{Timeout: cfg.HTTPTimeout, Transport: transport},
		tokens:      tokens,
		userAgent:   userAgent,
		scraperType: scraperType,
		breaker:     breaker,
	}
}
