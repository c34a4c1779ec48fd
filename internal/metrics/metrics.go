package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestsTotal is the transport-layer request counter (spec §4.B):
	// every outbound call to oauth.reddit.com, labeled by subreddit and
	// scraper type so cost can be attributed per tenant.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_http_requests_total",
			Help: "Total number of outbound HTTP requests to oauth.reddit.com",
		},
		[]string{"subreddit", "scraper_type", "status"}, // status: success, retry, error
	)

	HTTPRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fleet_http_retries_total",
			Help: "Total number of HTTP request retries",
		},
	)

	RateLimitWaitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fleet_rate_limit_waits_total",
			Help: "Total number of times a worker blocked in await_capacity",
		},
	)

	RateLimitWaitSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fleet_rate_limit_wait_seconds",
			Help:    "Duration of await_capacity blocking waits",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	RetryAfterWaitSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fleet_retry_after_wait_seconds",
			Help:    "Duration of Retry-After waits",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	PostsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_posts_processed_total",
			Help: "Total number of posts upserted by the Posts Worker",
		},
		[]string{"subreddit"},
	)

	CommentsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_comments_processed_total",
			Help: "Total number of comments inserted by the Comments Worker",
		},
		[]string{"subreddit"},
	)

	GhostPostsPreventedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fleet_ghost_posts_prevented_total",
			Help: "Total number of times verify-then-mark rejected a premature comments_scraped flip",
		},
	)

	CycleDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fleet_cycle_duration_seconds",
			Help:    "Duration of a full rotation cycle",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"scraper_id", "scraper_type"},
	)

	EstimatedCostUSD = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_estimated_cost_usd_total",
			Help: "Cumulative estimated Reddit API cost in USD",
		},
		[]string{"subreddit", "scraper_type"},
	)

	// Circuit breaker metrics, shared with internal/circuitbreaker.
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"component"},
	)

	CircuitBreakerTrips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_trips_total",
			Help: "Total number of circuit breaker trips",
		},
		[]string{"component"},
	)

	// Store operation metrics.
	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fleet_store_operation_duration_seconds",
			Help:    "Duration of store adapter operations",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"operation"},
	)

	StoreOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_store_operation_errors_total",
			Help: "Total number of store adapter operation errors",
		},
		[]string{"operation"},
	)

	// API cache metrics (usage-cost aggregation cache, §4.C).
	APICacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_api_cache_hits_total",
			Help: "Total number of API cache hits",
		},
		[]string{"endpoint"},
	)

	APICacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_api_cache_misses_total",
			Help: "Total number of API cache misses",
		},
		[]string{"endpoint"},
	)

	// Supervisor metrics (4.H).
	ScraperStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fleet_scraper_status",
			Help: "Scraper status gauge per scraper and status label (1 when the scraper is in the labeled status, 0 otherwise)",
		},
		[]string{"scraper_id", "status"},
	)

	ScraperRestartsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_scraper_restarts_total",
			Help: "Total number of auto-restarts performed by the Supervisor",
		},
		[]string{"scraper_id"},
	)

	// API request metrics (control-plane HTTP API).
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fleet_api_request_duration_seconds",
			Help:    "Duration of control-plane API requests in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"endpoint", "method", "status"},
	)

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_api_requests_total",
			Help: "Total number of control-plane API requests",
		},
		[]string{"endpoint", "method", "status"},
	)

	// WebSocket metrics (log-tail streaming).
	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fleet_websocket_connections_active",
			Help: "Number of active WebSocket log-tail connections",
		},
	)

	WebSocketMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fleet_websocket_messages_sent_total",
			Help: "Total number of WebSocket messages sent to clients",
		},
	)
)
