package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/onnwee/reddit-fleet/internal/apierr"
	"github.com/onnwee/reddit-fleet/internal/cache"
	"github.com/onnwee/reddit-fleet/internal/store"
)

// CostStore is the store surface the usage handler needs.
type CostStore interface {
	CostSummary(ctx context.Context) (store.CostSummary, error)
}

const costSummaryCacheKey = "usage:cost_summary"
const costSummaryCacheTTL = 15 * time.Second

// UsageHandlers implements GET /api/usage/cost (spec §6, SUPPLEMENTED
// FEATURES #5). The aggregation is read through a ristretto-backed cache
// (spec's DOMAIN STACK entry for dgraph-io/ristretto) so frequent operator
// polling doesn't re-run the 7-day aggregation on every request.
type UsageHandlers struct {
	store CostStore
	cache cache.Cache
}

func NewUsageHandlers(st CostStore, c cache.Cache) *UsageHandlers {
	return &UsageHandlers{store: st, cache: c}
}

// GetCostSummary returns today/last-hour/7-day-average/monthly-projection
// cost reductions.
func (h *UsageHandlers) GetCostSummary(w http.ResponseWriter, r *http.Request) {
	if h.cache != nil {
		if cached, ok := h.cache.Get(costSummaryCacheKey); ok {
			var summary store.CostSummary
			if err := json.Unmarshal(cached, &summary); err == nil {
				writeJSON(w, http.StatusOK, summary)
				return
			}
		}
	}

	summary, err := h.store.CostSummary(r.Context())
	if err != nil {
		apierr.WriteErrorWithContext(w, r, apierr.SystemDatabase(err.Error()))
		return
	}

	if h.cache != nil {
		if encoded, err := json.Marshal(summary); err == nil {
			h.cache.Set(costSummaryCacheKey, encoded, costSummaryCacheTTL)
		}
	}

	writeJSON(w, http.StatusOK, summary)
}
