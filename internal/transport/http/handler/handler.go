// Package handler composes the HTTP handler groups.
package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/mandalnilabja/latchway/internal/config"
	"github.com/mandalnilabja/latchway/internal/metrics"
	"github.com/mandalnilabja/latchway/internal/router"
	"github.com/mandalnilabja/latchway/internal/transport/http/handler/infra"
	"github.com/mandalnilabja/latchway/internal/transport/http/handler/proxy"
)

// Deps are the services the handlers call into. Tokenizer and Metrics may
// be nil.
type Deps struct {
	Config    config.Provider
	Engine    *router.Engine
	State     infra.StateReader
	Tokenizer proxy.Estimator
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// Repo composes all domain-specific handlers.
type Repo struct {
	Proxy *proxy.Handlers
	Infra *infra.Handlers
}

// NewRepo creates a new instance of the composed handler repository.
func NewRepo(d Deps) *Repo {
	var metricsHandler http.Handler
	if d.Metrics != nil {
		metricsHandler = d.Metrics.Handler()
	}
	return &Repo{
		Proxy: proxy.New(d.Engine, d.Tokenizer, d.Metrics, d.Logger),
		Infra: infra.New(d.Config, d.State, metricsHandler, time.Now()),
	}
}
