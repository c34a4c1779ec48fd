// Command worker is the per-scraper process the Supervisor spawns (spec
// §4.H, §5: "one process per tenant"). It reads SCRAPER_ID and WORKER_ROLE
// from its environment, loads that scraper's record, and runs either the
// Posts Worker's rotation (spec §4.E) or the Comments Worker's batch loop
// (spec §4.F) until signaled to stop.
//
// Grounded on the teacher's cmd/crawler/main.go: same ambient-stack init
// order (config, logger, error reporting, tracing), same SIGINT/SIGTERM ->
// context cancellation shutdown. Unlike the teacher's single package-level
// crawler, everything here — token manager, oracle, recorder, client — is
// constructed fresh for this one scraper's OAuth app, per spec §9.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/onnwee/reddit-fleet/internal/config"
	"github.com/onnwee/reddit-fleet/internal/credentials"
	"github.com/onnwee/reddit-fleet/internal/errorreporting"
	"github.com/onnwee/reddit-fleet/internal/logger"
	"github.com/onnwee/reddit-fleet/internal/ratelimit"
	"github.com/onnwee/reddit-fleet/internal/reddit"
	"github.com/onnwee/reddit-fleet/internal/secrets"
	"github.com/onnwee/reddit-fleet/internal/store"
	"github.com/onnwee/reddit-fleet/internal/tracing"
	"github.com/onnwee/reddit-fleet/internal/usage"
	"github.com/onnwee/reddit-fleet/internal/worker"
)

func main() {
	cfg := config.Load()

	logger.Init(cfg.LogLevel)
	logger.Info("initializing worker", "version", cfg.SentryRelease, "log_level", cfg.LogLevel)

	if err := errorreporting.Init(cfg.SentryEnvironment); err != nil {
		logger.Warn("failed to initialize error reporting", "error", err)
	} else if errorreporting.IsSentryEnabled() {
		logger.Info("error reporting initialized", "environment", cfg.SentryEnvironment)
		defer errorreporting.Flush(2 * time.Second)
	}

	shutdownTracing, err := tracing.Init("reddit-fleet-worker")
	if err != nil {
		logger.Warn("failed to initialize tracing", "error", err)
	} else if cfg.OTELEnabled {
		logger.Info("tracing initialized", "endpoint", cfg.OTELEndpoint)
		defer func() {
			if err := shutdownTracing(context.Background()); err != nil {
				logger.Error("failed to shut down tracer", "error", err)
			}
		}()
	}

	scraperID := os.Getenv("SCRAPER_ID")
	role := os.Getenv("WORKER_ROLE")
	sealKey := os.Getenv("CREDENTIALS_SEAL_KEY")
	if err := secrets.ValidateRequired(map[string]string{
		"SCRAPER_ID":           scraperID,
		"WORKER_ROLE":          role,
		"DATABASE_URL":         cfg.DatabaseURL,
		"CREDENTIALS_SEAL_KEY": sealKey,
	}); err != nil {
		logger.Error("worker: missing required configuration", "error", err)
		os.Exit(1)
	}

	logger.Info("worker: connecting to database", "database_url", secrets.MaskURL(cfg.DatabaseURL))
	conn, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer conn.Close()
	st := store.New(conn)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("worker: received shutdown signal")
		cancel()
	}()

	rec, err := st.LoadScraper(ctx, scraperID)
	if err != nil {
		logger.Error("worker: failed to load scraper record", "scraper_id", scraperID, "error", err)
		os.Exit(1)
	}

	sealer, err := credentials.NewAESGCMSealer([]byte(sealKey))
	if err != nil {
		logger.Error("worker: failed to build credential sealer", "error", err)
		os.Exit(1)
	}
	appCreds, err := credentials.UnsealCredentials(sealer, rec.Credentials)
	if err != nil {
		logger.Error("worker: failed to unseal credentials", "scraper_id", scraperID, "error", err)
		os.Exit(1)
	}
	userAgent := appCreds.UserAgent
	if userAgent == "" {
		userAgent = cfg.UserAgent
	}

	oracle := ratelimit.New(cfg.RateLimitThreshold)
	recorder := usage.NewRecorder(st, oracle, cfg.CostPer1000Requests)
	go recorder.Run(ctx, cfg.FlushInterval)

	transport := &usage.CountingTransport{Oracle: oracle, Recorder: recorder}
	var rt http.RoundTripper = transport

	tokens := reddit.NewTokenManager(&http.Client{Timeout: cfg.HTTPTimeout}, userAgent, appCreds.ClientID, appCreds.ClientSecret, appCreds.Username, appCreds.Password)
	client := reddit.NewClient(tokens, userAgent, rec.ScraperType, rt)

	logger.Info("worker: starting", "scraper_id", scraperID, "role", role, "subreddit_count", len(rec.Subreddits))

	switch role {
	case "posts":
		err = runPosts(ctx, st, client, oracle, scraperID, rec)
	case "comments":
		err = runComments(ctx, st, client, scraperID, rec)
	default:
		err = fmt.Errorf("worker: unknown WORKER_ROLE %q", role)
	}

	if err != nil && ctx.Err() == nil {
		logger.Error("worker: exited with error", "scraper_id", scraperID, "error", err)
		os.Exit(1)
	}
	logger.Info("worker: shut down", "scraper_id", scraperID)
}

func runPosts(ctx context.Context, st *store.Store, client *reddit.Client, oracle *ratelimit.Oracle, scraperID string, rec store.ScraperRecord) error {
	rotation := &worker.Rotation{
		ScraperID:     scraperID,
		ScraperType:   rec.ScraperType,
		Store:         st,
		Oracle:        oracle,
		RotationDelay: time.Duration(rec.Config.RotationDelaySecs) * time.Second,
		Interval:      time.Duration(rec.Config.IntervalSeconds) * time.Second,
		Action:        worker.PostsAction(client, st),
	}
	return rotation.Run(ctx)
}

func runComments(ctx context.Context, st *store.Store, client *reddit.Client, scraperID string, rec store.ScraperRecord) error {
	politeness := time.Duration(rec.Config.RotationDelaySecs) * time.Second
	interval := time.Duration(rec.Config.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		cur, err := st.LoadScraper(ctx, scraperID)
		if err != nil {
			logger.ErrorContext(ctx, "worker: failed to reload scraper record", "scraper_id", scraperID, "error", err)
		} else {
			rec = cur
		}

		n, err := worker.RunCommentsOnce(ctx, client, st, rec.Subreddits, rec.Config.CommentBatch, rec.Config.MaxCommentDepth, rec.Config.MoreCommentsLimit, rec.Config.MaxRetries, politeness)
		if err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			logger.ErrorContext(ctx, "worker: comments batch failed", "scraper_id", scraperID, "error", err)
		} else {
			logger.InfoContext(ctx, "worker: comments batch complete", "scraper_id", scraperID, "new_comments", n)
		}

		timer := time.NewTimer(interval)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}
