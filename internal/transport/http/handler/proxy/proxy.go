// Package proxy serves the client-facing chat-completion surface.
package proxy

import (
	"log/slog"

	"github.com/mandalnilabja/latchway/internal/metrics"
	"github.com/mandalnilabja/latchway/internal/router"
	"github.com/mandalnilabja/latchway/internal/types"
)

// maxBodyBytes bounds an inbound request body.
const maxBodyBytes = 16 << 20

// maxEstimates bounds concurrent prompt-token estimates. Samples beyond it
// are dropped.
const maxEstimates = 4

// BackendHeader names the backend that served a response.
const BackendHeader = "X-Latchway-Backend"

// Estimator sizes a request's prompt for metrics.
type Estimator interface {
	Estimate(p *types.Payload) int
}

// Handlers holds the dependencies for proxy HTTP handlers.
type Handlers struct {
	Engine    *router.Engine
	Tokenizer Estimator
	Metrics   *metrics.Metrics
	Logger    *slog.Logger

	estimates chan struct{}
}

// New creates a new instance of proxy handlers. tok and m may be nil.
func New(engine *router.Engine, tok Estimator, m *metrics.Metrics, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		Engine:    engine,
		Tokenizer: tok,
		Metrics:   m,
		Logger:    logger,
		estimates: make(chan struct{}, maxEstimates),
	}
}

// observePromptTokens records the request's prompt size in the background.
// The first estimate for an encoding may download BPE data, so at most
// maxEstimates run at once.
func (h *Handlers) observePromptTokens(category string, p *types.Payload) {
	if h.Tokenizer == nil || h.Metrics == nil {
		return
	}
	select {
	case h.estimates <- struct{}{}:
	default:
		return
	}
	go func() {
		defer func() { <-h.estimates }()
		h.Metrics.PromptTokens.WithLabelValues(category).Observe(float64(h.Tokenizer.Estimate(p)))
	}()
}
