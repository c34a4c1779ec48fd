// Command controlplane runs the fleet's HTTP API and Supervisor (spec §4.H,
// §6): the one process that owns scraper lifecycle and serves
// /scrapers*, /api/usage/cost, /health, and /metrics.
//
// Grounded on the teacher's cmd/server/main.go ambient-stack init order
// (config, logger, error reporting, tracing) and ListenAndServe pattern,
// generalized here with a graceful HTTP shutdown and the Supervisor's
// background polling loop alongside it, the way cmd/crawler/main.go manages
// its own long-running goroutine under the same cancellation signal.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/onnwee/reddit-fleet/internal/api"
	"github.com/onnwee/reddit-fleet/internal/api/handlers"
	"github.com/onnwee/reddit-fleet/internal/cache"
	"github.com/onnwee/reddit-fleet/internal/config"
	"github.com/onnwee/reddit-fleet/internal/credentials"
	"github.com/onnwee/reddit-fleet/internal/errorreporting"
	"github.com/onnwee/reddit-fleet/internal/logger"
	"github.com/onnwee/reddit-fleet/internal/metrics"
	"github.com/onnwee/reddit-fleet/internal/middleware"
	"github.com/onnwee/reddit-fleet/internal/secrets"
	"github.com/onnwee/reddit-fleet/internal/store"
	"github.com/onnwee/reddit-fleet/internal/supervisor"
	"github.com/onnwee/reddit-fleet/internal/tracing"
)

func main() {
	cfg := config.Load()

	logger.Init(cfg.LogLevel)
	logger.Info("initializing control plane", "version", cfg.SentryRelease, "log_level", cfg.LogLevel)

	if err := errorreporting.Init(cfg.SentryEnvironment); err != nil {
		logger.Warn("failed to initialize error reporting", "error", err)
	} else if errorreporting.IsSentryEnabled() {
		logger.Info("error reporting initialized", "environment", cfg.SentryEnvironment)
		defer errorreporting.Flush(2 * time.Second)
	}

	shutdownTracing, err := tracing.Init("reddit-fleet-controlplane")
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

	sealKey := os.Getenv("CREDENTIALS_SEAL_KEY")
	if err := secrets.ValidateRequired(map[string]string{
		"DATABASE_URL":         cfg.DatabaseURL,
		"CREDENTIALS_SEAL_KEY": sealKey,
	}); err != nil {
		logger.Error("control plane: missing required configuration", "error", err)
		os.Exit(1)
	}

	logger.Info("control plane: connecting to database", "database_url", secrets.MaskURL(cfg.DatabaseURL))
	conn, err := store.Open(context.Background(), cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer conn.Close()
	conn.SetMaxOpenConns(20)
	st := store.New(conn)

	sealer, err := credentials.NewAESGCMSealer([]byte(sealKey))
	if err != nil {
		logger.Error("failed to build credential sealer", "error", err)
		os.Exit(1)
	}

	workerBin := os.Getenv("WORKER_BIN_PATH")
	if workerBin == "" {
		workerBin = "./worker"
	}
	logHubs := handlers.NewLogHubRegistry()
	sup := supervisor.New(
		st,
		workerBin,
		cfg.SupervisorPollInterval,
		cfg.SupervisorShutdownGrace,
		cfg.SupervisorRestartWindow,
		cfg.SupervisorRestartCeiling,
	).WithLogPublisher(logHubs)

	respCache, err := cache.NewLRU(64, 10_000, 30*time.Second)
	if err != nil {
		logger.Error("failed to build response cache", "error", err)
		os.Exit(1)
	}
	defer respCache.Close()

	rateLimiter := middleware.NewRateLimiter(50, 100, 5, 20)
	defer rateLimiter.Stop()

	router := api.NewRouter(api.Deps{
		Store:          st,
		Supervisor:     sup,
		SupervisorHP:   sup,
		Sealer:         sealer,
		Cache:          respCache,
		LogHubRegistry: logHubs,
		RateLimiter:    rateLimiter,
	})

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go sup.Run(ctx)

	statsCollector := metrics.NewCollector(st, 30*time.Second)
	go statsCollector.Start(ctx)
	defer statsCollector.Stop()

	go func() {
		logger.Info("control plane: listening", "address", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("control plane: HTTP server failed", "error", err)
			cancel()
		}
	}()

	select {
	case <-sigChan:
		logger.Info("control plane: received shutdown signal")
	case <-ctx.Done():
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("control plane: graceful shutdown failed", "error", err)
	}
	logger.Info("control plane: shut down")
}
