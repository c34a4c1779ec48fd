// Package api wires the control-plane HTTP API (spec §6), grounded on the
// teacher's internal/api/routes.go router assembly and middleware chain.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onnwee/reddit-fleet/internal/api/handlers"
	"github.com/onnwee/reddit-fleet/internal/cache"
	"github.com/onnwee/reddit-fleet/internal/credentials"
	"github.com/onnwee/reddit-fleet/internal/middleware"
	"github.com/onnwee/reddit-fleet/internal/scraper"
	"github.com/onnwee/reddit-fleet/internal/store"
)

// Deps bundles everything the router needs to construct its handlers.
type Deps struct {
	Store          *store.Store
	Supervisor     handlers.Lifecycle
	SupervisorHP   handlers.SupervisorHealth
	Sealer         credentials.Sealer
	Cache          cache.Cache
	LogHubRegistry *handlers.LogHubRegistry
	RateLimiter    *middleware.RateLimiter
}

// NewRouter builds the full control-plane router: `/health`, `/scrapers*`,
// `/api/usage/cost`, and the websocket log tail, wrapped in the teacher's
// CORS/requestid/recovery/gzip/etag/ratelimit middleware chain.
func NewRouter(d Deps) *mux.Router {
	r := mux.NewRouter()

	mutator := scraper.NewMutator(d.Store)
	scraperHandlers := handlers.NewScraperHandlers(d.Store, d.Supervisor, mutator, d.Sealer)
	usageHandlers := handlers.NewUsageHandlers(d.Store, d.Cache)
	healthHandler := handlers.NewHealthHandler(d.Store, d.SupervisorHP)
	wsHandler := handlers.NewWebSocketHandler(d.LogHubRegistry)

	r.HandleFunc("/health", healthHandler.Health).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	r.HandleFunc("/scrapers", scraperHandlers.ListScrapers).Methods("GET")
	r.HandleFunc("/scrapers/start", scraperHandlers.StartScraper).Methods("POST")
	r.HandleFunc("/scrapers/{id}/stop", scraperHandlers.StopScraper).Methods("POST")
	r.HandleFunc("/scrapers/{id}/restart", scraperHandlers.RestartScraper).Methods("POST")
	r.HandleFunc("/scrapers/{id}", scraperHandlers.DeleteScraper).Methods("DELETE")
	r.HandleFunc("/scrapers/{id}/status", scraperHandlers.GetScraperStatus).Methods("GET")
	r.HandleFunc("/scrapers/{id}/stats", scraperHandlers.GetScraperStats).Methods("GET")
	r.HandleFunc("/scrapers/{id}/subreddits/add", scraperHandlers.AddSubreddits).Methods("POST")
	r.HandleFunc("/scrapers/{id}/subreddits/remove", scraperHandlers.RemoveSubreddits).Methods("POST")
	r.HandleFunc("/scrapers/{id}/subreddits", scraperHandlers.ReplaceSubreddits).Methods("PATCH")
	r.HandleFunc("/scrapers/{id}/logs", wsHandler.HandleWebSocket).Methods("GET")

	r.HandleFunc("/api/usage/cost", usageHandlers.GetCostSummary).Methods("GET")

	var h http.Handler = r
	h = middleware.SecurityHeaders(h)
	h = middleware.Gzip(h)
	h = middleware.ETag(h)
	h = middleware.RequestID(h)
	h = middleware.RecoverWithSentry(h)
	if d.RateLimiter != nil {
		h = d.RateLimiter.Limit(h)
	}
	h = middleware.CORS(middleware.DefaultCORSConfig())(h)

	wrapped := mux.NewRouter()
	wrapped.PathPrefix("/").Handler(h)
	return wrapped
}
