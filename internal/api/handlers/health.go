package handlers

import (
	"context"
	"encoding/json"
	"net/http"
)

// Pinger is the minimal store surface the deep health check needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SupervisorHealth reports whether the Supervisor's polling goroutine is
// alive; satisfied directly by *internal/supervisor.Supervisor, whose
// Healthy reports whether its poll loop has ticked within the last three
// poll intervals.
type SupervisorHealth interface {
	Healthy() bool
}

// HealthHandler implements GET /health (spec's SUPPLEMENTED FEATURES #2:
// beyond liveness, checks store reachability and supervisor health).
type HealthHandler struct {
	store      Pinger
	supervisor SupervisorHealth
}

func NewHealthHandler(store Pinger, supervisor SupervisorHealth) *HealthHandler {
	return &HealthHandler{store: store, supervisor: supervisor}
}

type healthStatus struct {
	Status     string `json:"status"`
	Store      string `json:"store"`
	Supervisor string `json:"supervisor"`
}

// Health performs a deep check: Postgres reachability plus the
// Supervisor's liveness, not just process-up.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	status := healthStatus{Status: "ok", Store: "ok", Supervisor: "ok"}
	code := http.StatusOK

	if h.store != nil {
		if err := h.store.Ping(r.Context()); err != nil {
			status.Store = "unreachable: " + err.Error()
			status.Status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}

	if h.supervisor != nil && !h.supervisor.Healthy() {
		status.Supervisor = "stalled"
		status.Status = "degraded"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(status)
}
