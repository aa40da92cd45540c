package infra

import (
	"net/http"
	"time"

	"github.com/mandalnilabja/latchway/internal/transport/http/handler/shared"
	"github.com/mandalnilabja/latchway/internal/version"
)

// RootStatus returns JSON status and version information at /.
func (h *Handlers) RootStatus(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{
		"name":       "latchway",
		"version":    version.Version,
		"status":     "running",
		"uptime":     time.Since(h.StartTime).Round(time.Second).String(),
		"api":        "/api/v1",
		"status_url": "/api/status",
	}
	shared.WriteJSON(w, response, http.StatusOK)
}

// HealthCheck handler returns the application health status.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := map[string]string{
		"status": "active",
		"app":    "latchway",
	}
	shared.WriteJSON(w, response, http.StatusOK)
}
