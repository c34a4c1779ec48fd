package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/reddit-fleet/internal/utils"
)

// Config holds process-wide configuration derived from environment variables.
// Per-scraper tunables (posts_limit, sort_limits, comment_batch, ...) live on
// the scraper record itself (internal/store) and are not part of this
// global config — only fleet-wide defaults and ambient-stack settings are.
type Config struct {
	UserAgent string

	HTTPMaxRetries int
	HTTPRetryBase  time.Duration
	HTTPTimeout    time.Duration
	LogHTTPRetries bool

	LogLevel          string
	Env               string
	SentryDSN         string
	SentryEnvironment string
	SentryRelease     string

	OTELEnabled    bool
	OTELEndpoint   string
	OTELSampleRate float64

	DatabaseURL string

	// RateLimitThreshold is the default `remaining` floor below which
	// await_capacity blocks (spec §4.A / §6).
	RateLimitThreshold int
	// CostPer1000Requests is Reddit's billed rate, USD per 1000 requests.
	CostPer1000Requests float64
	// FlushInterval is how often the Usage Recorder writes aggregated rows.
	FlushInterval time.Duration

	// RotationDelay is the default inter-subreddit pacing pause (4.E/4.F).
	RotationDelay time.Duration
	// CommentPoliteness is the pause between posts in the comments worker.
	CommentPoliteness time.Duration

	// ListenAddr is the control-plane HTTP API bind address.
	ListenAddr string

	// SupervisorPollInterval is how often the Supervisor polls child liveness.
	SupervisorPollInterval time.Duration
	// SupervisorShutdownGrace is the grace period before SIGKILL on stop.
	SupervisorShutdownGrace time.Duration
	// SupervisorRestartWindow / SupervisorRestartCeiling bound auto-restart rate.
	SupervisorRestartWindow  time.Duration
	SupervisorRestartCeiling int
}

var cached *Config

// Load reads env vars once and caches them.
func Load() *Config {
	if cached != nil {
		return cached
	}
	_ = godotenv.Load()
	ua := os.Getenv("REDDIT_USER_AGENT")
	if strings.TrimSpace(ua) == "" {
		ua = "reddit-fleet/0.1"
	}
	cached = &Config{
		UserAgent: ua,

		HTTPMaxRetries: utils.GetEnvAsInt("HTTP_MAX_RETRIES", 3),
		HTTPRetryBase:  time.Duration(utils.GetEnvAsInt("HTTP_RETRY_BASE_MS", 300)) * time.Millisecond,
		HTTPTimeout:    time.Duration(utils.GetEnvAsInt("HTTP_TIMEOUT_MS", 30000)) * time.Millisecond,
		LogHTTPRetries: utils.GetEnvAsBool("LOG_HTTP_RETRIES", false),

		LogLevel:          getEnv("LOG_LEVEL", "info"),
		Env:               getEnv("ENV", "development"),
		SentryDSN:         os.Getenv("SENTRY_DSN"),
		SentryEnvironment: getEnv("SENTRY_ENVIRONMENT", getEnv("ENV", "development")),
		SentryRelease:     getEnv("SENTRY_RELEASE", "dev"),

		OTELEnabled:    utils.GetEnvAsBool("OTEL_ENABLED", false),
		OTELEndpoint:   getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
		OTELSampleRate: utils.GetEnvAsFloat("OTEL_SAMPLE_RATE", 1.0),

		DatabaseURL: os.Getenv("DATABASE_URL"),

		RateLimitThreshold:  utils.GetEnvAsInt("RATE_LIMIT_THRESHOLD", 50),
		CostPer1000Requests: utils.GetEnvAsFloat("COST_PER_1000_REQUESTS", 0.24),
		FlushInterval:       time.Duration(utils.GetEnvAsInt("FLUSH_INTERVAL_SECONDS", 60)) * time.Second,

		RotationDelay:     time.Duration(utils.GetEnvAsInt("ROTATION_DELAY_SECONDS", 2)) * time.Second,
		CommentPoliteness: time.Duration(utils.GetEnvAsInt("COMMENT_POLITENESS_SECONDS", 2)) * time.Second,

		ListenAddr: getEnv("LISTEN_ADDR", ":8000"),

		SupervisorPollInterval:   time.Duration(utils.GetEnvAsInt("SUPERVISOR_POLL_SECONDS", 30)) * time.Second,
		SupervisorShutdownGrace:  time.Duration(utils.GetEnvAsInt("SUPERVISOR_SHUTDOWN_GRACE_SECONDS", 15)) * time.Second,
		SupervisorRestartWindow:  time.Duration(utils.GetEnvAsInt("SUPERVISOR_RESTART_WINDOW_MINUTES", 10)) * time.Minute,
		SupervisorRestartCeiling: utils.GetEnvAsInt("SUPERVISOR_RESTART_CEILING", 5),
	}
	return cached
}

func getEnv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

// ResetForTest clears cached config; for use in tests only.
func ResetForTest() { cached = nil }
