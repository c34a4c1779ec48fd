package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/onnwee/reddit-fleet/internal/apierr"
	"github.com/onnwee/reddit-fleet/internal/credentials"
	"github.com/onnwee/reddit-fleet/internal/logger"
	"github.com/onnwee/reddit-fleet/internal/scraper"
	"github.com/onnwee/reddit-fleet/internal/store"
)

// ScraperStore is the store surface the scraper handlers need.
type ScraperStore interface {
	CreateScraper(ctx context.Context, r store.ScraperRecord) error
	LoadScraper(ctx context.Context, id string) (store.ScraperRecord, error)
	DeleteScraper(ctx context.Context, id string) error
	ListScrapers(ctx context.Context) ([]store.ScraperRecord, error)
	UpdateSubreddits(ctx context.Context, scraperID string, newList []string) error
}

// Lifecycle is the supervisor surface the scraper handlers need.
type Lifecycle interface {
	Start(ctx context.Context, scraperID string) error
	Stop(ctx context.Context, scraperID string) error
	Restart(ctx context.Context, scraperID string) error
}

// ScraperHandlers implements the control-plane's `/scrapers*` routes (spec §6).
type ScraperHandlers struct {
	store     ScraperStore
	lifecycle Lifecycle
	mutator   *scraper.Mutator
	sealer    credentials.Sealer
}

func NewScraperHandlers(st ScraperStore, lifecycle Lifecycle, mutator *scraper.Mutator, sealer credentials.Sealer) *ScraperHandlers {
	return &ScraperHandlers{store: st, lifecycle: lifecycle, mutator: mutator, sealer: sealer}
}

type createScraperRequest struct {
	ID          string                       `json:"id"`
	ScraperType string                       `json:"scraper_type"`
	Subreddits  []string                     `json:"subreddits"`
	Config      *store.ScraperConfig         `json:"config,omitempty"`
	Credentials credentials.AppCredentials   `json:"credentials"`
	AccountName string                       `json:"account_name,omitempty"`
	AutoRestart *bool                        `json:"auto_restart,omitempty"`
}

// StartScraper handles POST /scrapers/start: creates the scraper record
// (sealing credentials) then asks the Supervisor to launch it.
func (h *ScraperHandlers) StartScraper(w http.ResponseWriter, r *http.Request) {
	var req createScraperRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.WriteErrorWithContext(w, r, apierr.ValidationInvalidJSON())
		return
	}
	if req.ID == "" {
		apierr.WriteErrorWithContext(w, r, apierr.ValidationMissingField("id"))
		return
	}
	if err := scraper.ValidatePrimary(req.ID, req.Subreddits); err != nil {
		apierr.WriteErrorWithContext(w, r, apierr.ScraperInvalidSubreddit(err.Error()))
		return
	}

	if _, err := h.store.LoadScraper(r.Context(), req.ID); err == nil {
		apierr.WriteErrorWithContext(w, r, apierr.ScraperAlreadyExists(req.ID))
		return
	}

	cfg := store.DefaultScraperConfig()
	if req.Config != nil {
		cfg = *req.Config
	}

	sealed, err := credentials.SealCredentials(h.sealer, req.Credentials)
	if err != nil {
		apierr.WriteErrorWithContext(w, r, apierr.ScraperCredentialsFailed(err.Error()))
		return
	}

	autoRestart := true
	if req.AutoRestart != nil {
		autoRestart = *req.AutoRestart
	}

	rec := store.ScraperRecord{
		ID:            req.ID,
		ScraperType:   req.ScraperType,
		Subreddits:    req.Subreddits,
		PendingScrape: append([]string{}, req.Subreddits...),
		Config:        cfg,
		Credentials:   sealed,
		AccountName:   req.AccountName,
		Status:        store.StatusConfigured,
		AutoRestart:   autoRestart,
	}
	if err := h.store.CreateScraper(r.Context(), rec); err != nil {
		apierr.WriteErrorWithContext(w, r, apierr.SystemDatabase(err.Error()))
		return
	}

	if err := h.lifecycle.Start(r.Context(), req.ID); err != nil {
		apierr.WriteErrorWithContext(w, r, apierr.ScraperStartFailed(err.Error()))
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": req.ID, "status": string(store.StatusRunning)})
}

// StopScraper handles POST /scrapers/{id}/stop.
func (h *ScraperHandlers) StopScraper(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.lifecycle.Stop(r.Context(), id); err != nil {
		apierr.WriteErrorWithContext(w, r, apierr.ScraperStopFailed(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": string(store.StatusStopped)})
}

// RestartScraper handles POST /scrapers/{id}/restart.
func (h *ScraperHandlers) RestartScraper(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.lifecycle.Restart(r.Context(), id); err != nil {
		apierr.WriteErrorWithContext(w, r, apierr.ScraperStartFailed(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": string(store.StatusRunning)})
}

// DeleteScraper handles DELETE /scrapers/{id}: stops the worker first, then
// removes the record.
func (h *ScraperHandlers) DeleteScraper(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.lifecycle.Stop(r.Context(), id); err != nil {
		logger.WarnContext(r.Context(), "scrapers: stop-before-delete failed", "scraper_id", id, "error", err)
	}
	if err := h.store.DeleteScraper(r.Context(), id); err != nil {
		apierr.WriteErrorWithContext(w, r, apierr.SystemDatabase(err.Error()))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListScrapers handles GET /scrapers.
func (h *ScraperHandlers) ListScrapers(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.ListScrapers(r.Context())
	if err != nil {
		apierr.WriteErrorWithContext(w, r, apierr.SystemDatabase(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// GetScraperStatus handles GET /scrapers/{id}/status.
func (h *ScraperHandlers) GetScraperStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rec, err := h.store.LoadScraper(r.Context(), id)
	if err != nil {
		apierr.WriteErrorWithContext(w, r, apierr.ScraperNotFound(id))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// GetScraperStats handles GET /scrapers/{id}/stats: the scraper record's
// rolling metrics, the operator-facing counterpart of the Prometheus export
// (spec's SUPPLEMENTED FEATURES #4/#5).
func (h *ScraperHandlers) GetScraperStats(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rec, err := h.store.LoadScraper(r.Context(), id)
	if err != nil {
		apierr.WriteErrorWithContext(w, r, apierr.ScraperNotFound(id))
		return
	}
	writeJSON(w, http.StatusOK, rec.Metrics)
}

type subredditsRequest struct {
	Subreddits []string `json:"subreddits"`
}

// AddSubreddits handles POST /scrapers/{id}/subreddits/add.
func (h *ScraperHandlers) AddSubreddits(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req subredditsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.WriteErrorWithContext(w, r, apierr.ValidationInvalidJSON())
		return
	}
	if err := h.mutator.Add(r.Context(), id, req.Subreddits); err != nil {
		writeMutationError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveSubreddits handles POST /scrapers/{id}/subreddits/remove.
func (h *ScraperHandlers) RemoveSubreddits(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req subredditsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.WriteErrorWithContext(w, r, apierr.ValidationInvalidJSON())
		return
	}
	if err := h.mutator.Remove(r.Context(), id, req.Subreddits); err != nil {
		writeMutationError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ReplaceSubreddits handles PATCH /scrapers/{id}/subreddits.
func (h *ScraperHandlers) ReplaceSubreddits(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req subredditsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.WriteErrorWithContext(w, r, apierr.ValidationInvalidJSON())
		return
	}
	if err := h.mutator.Replace(r.Context(), id, req.Subreddits); err != nil {
		writeMutationError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeMutationError(w http.ResponseWriter, r *http.Request, err error) {
	if apiErr, ok := err.(*apierr.Error); ok {
		apierr.WriteErrorWithContext(w, r, apiErr)
		return
	}
	apierr.WriteErrorWithContext(w, r, apierr.SystemDatabase(err.Error()))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// NewScraperID generates a fresh id for callers that don't supply their own
// (the primary subreddit is typically used as the id instead, but account
// and credential rows use generated ids).
func NewScraperID() string {
	return uuid.NewString()
}
