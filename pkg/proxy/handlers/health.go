package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"relaydesk/relay/pkg/proxy/types"
)

// HealthPath is the route served locally by every running proxy instead of
// being forwarded.
const HealthPath = "/health"

// HealthHandler answers liveness probes for a running proxy instance.
type HealthHandler struct {
	cfg types.ProxyConfig
	now func() time.Time
}

// NewHealthHandler creates a health handler that reports cfg as the active
// route.
func NewHealthHandler(cfg types.ProxyConfig) *HealthHandler {
	return &HealthHandler{cfg: cfg, now: time.Now}
}

// ServeHTTP implements http.Handler for liveness checks.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := types.HealthResponse{
		Status: "healthy",
		Proxy: types.HealthProxy{
			Target:    h.cfg.TargetURL(),
			Listening: h.cfg.ProxyPort,
		},
		Timestamp: types.Timestamp(h.now()),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Debug("failed to write health response", "error", err)
	}
}
