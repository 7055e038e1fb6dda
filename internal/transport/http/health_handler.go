package http

import (
	"net/http"
	"time"

	"github.com/go-chi/render"

	"invodesk/internal/timesource"
)

// HealthHandler reports process health and trusted-time sync state
type HealthHandler struct {
	version string
	oracle  *timesource.Oracle
	started time.Time
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(version string, oracle *timesource.Oracle) *HealthHandler {
	return &HealthHandler{
		version: version,
		oracle:  oracle,
		started: time.Now(),
	}
}

// HealthCheck handles GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status":         "ok",
		"version":        h.version,
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
		"timestamp":      time.Now().UTC(),
	}
	if h.oracle != nil {
		if last := h.oracle.LastSync(); !last.IsZero() {
			resp["time_last_sync"] = last.UTC()
		} else {
			resp["time_last_sync"] = nil
		}
	}
	render.JSON(w, r, resp)
}
