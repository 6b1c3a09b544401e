package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sakif/collab-playground/internal/relay"
)

// Sandbox reports on the execution backend. *executor.Orchestrator
// implements it.
type Sandbox interface {
	Active() int
	Backend() string
}

// RelayStats reports live connection counts. *relay.Hub implements it.
type RelayStats interface {
	Stats(ctx context.Context) (relay.Stats, error)
}

// HealthHandler reports whether the server can relay sessions and execute
// code.
type HealthHandler struct {
	sandbox Sandbox // nil when no backend could be started
	relay   RelayStats
	logger  *slog.Logger
}

func NewHealthHandler(sandbox Sandbox, relay RelayStats, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{sandbox: sandbox, relay: relay, logger: logger}
}

type healthResponse struct {
	Status      string `json:"status"`
	ActiveRuns  int    `json:"activeRuns"`
	Backend     string `json:"backend"`
	Connections int    `json:"connections"`
	Sessions    int    `json:"sessions"`
}

// HandleHealth answers liveness probes.
//
// HTTP: GET /healthz
//
// The server stays up without a sandbox backend (sessions still work), so
// that case is "degraded" with a 200 rather than a failing probe. A relay
// that no longer dispatches is a 503.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	stats, err := h.relay.Stats(r.Context())
	if err != nil {
		h.logger.Warn("relay stats unavailable", slog.String("error", err.Error()))
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable", Backend: h.backend()})
		return
	}

	resp := healthResponse{
		Status:      "ok",
		Backend:     h.backend(),
		Connections: stats.Connections,
		Sessions:    stats.Sessions,
	}
	if h.sandbox == nil {
		resp.Status = "degraded"
	} else {
		resp.ActiveRuns = h.sandbox.Active()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HealthHandler) backend() string {
	if h.sandbox == nil {
		return "none"
	}
	return h.sandbox.Backend()
}
