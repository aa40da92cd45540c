// Package infra serves health, status and metrics endpoints.
package infra

import (
	"context"
	"net/http"
	"time"

	"github.com/mandalnilabja/latchway/internal/config"
	"github.com/mandalnilabja/latchway/internal/storage"
)

// StateReader exposes the shared routing state for inspection.
type StateReader interface {
	Snapshot(ctx context.Context) (*storage.RoutingState, error)
}

// Handlers holds the dependencies for infrastructure HTTP handlers.
type Handlers struct {
	Config    config.Provider
	State     StateReader
	Metrics   http.Handler
	StartTime time.Time
	now       func() time.Time
}

// New creates a new instance of infrastructure handlers. metricsHandler may
// be nil, in which case /metrics answers 404.
func New(cfg config.Provider, st StateReader, metricsHandler http.Handler, startTime time.Time) *Handlers {
	return &Handlers{
		Config:    cfg,
		State:     st,
		Metrics:   metricsHandler,
		StartTime: startTime,
		now:       time.Now,
	}
}

// ServeMetrics exposes Prometheus metrics.
func (h *Handlers) ServeMetrics(w http.ResponseWriter, r *http.Request) {
	if h.Metrics == nil {
		http.NotFound(w, r)
		return
	}
	h.Metrics.ServeHTTP(w, r)
}
