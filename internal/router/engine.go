// Package router picks the backend that serves each request: the sticky pin
// first, then latch backends, then the rest, over a bounded number of rounds.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mandalnilabja/latchway/internal/config"
	"github.com/mandalnilabja/latchway/internal/metrics"
	"github.com/mandalnilabja/latchway/internal/provider"
	"github.com/mandalnilabja/latchway/internal/types"
)

// Invoker sends one request to one backend.
type Invoker interface {
	Attempt(ctx context.Context, backend config.Backend, call provider.Call) (*provider.Stream, error)
}

// State is the shared routing memory the engine reads and updates.
type State interface {
	Pin(ctx context.Context, category string) (string, error)
	SetPin(ctx context.Context, category, backend string) error
	ClearPin(ctx context.Context, category, backend string) (bool, error)
	RecordRequest(ctx context.Context, backend string) error
}

// Request is one inbound chat-completion request.
type Request struct {
	// Category is the model the client asked for; empty selects the default.
	Category   string
	Payload    *types.Payload
	ClientAuth string
	Header     http.Header
	RequestID  string
}

// Response is an accepted backend stream. The caller must close Stream.
type Response struct {
	Category string
	Backend  string
	Stream   *provider.Stream
}

// Engine routes requests. It is safe for concurrent use.
type Engine struct {
	config  config.Provider
	invoker Invoker
	state   State
	metrics *metrics.Metrics
	logger  *slog.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithMetrics enables metric collection.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithSleep replaces the inter-round sleep.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Engine) { e.sleep = sleep }
}

// New creates an Engine. Configuration is re-read from cfg on every request.
func New(cfg config.Provider, invoker Invoker, state State, opts ...Option) *Engine {
	e := &Engine{
		config:  cfg,
		invoker: invoker,
		state:   state,
		logger:  slog.Default(),
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the current configuration snapshot.
func (e *Engine) Config() *config.Snapshot {
	return e.config.Snapshot()
}

// Route finds a backend that accepts req and returns its live stream.
//
// Per-backend failures are collected, never returned individually: the
// error is ErrMissingCategory, *ExhaustedError or the context's error.
func (e *Engine) Route(ctx context.Context, req Request) (*Response, error) {
	snap := e.config.Snapshot()
	category := snap.ResolveCategory(req.Category)
	if category == "" {
		return nil, ErrMissingCategory
	}

	logger := e.logger.With("category", category)
	if req.RequestID != "" {
		logger = logger.With("request_id", req.RequestID)
	}

	call := provider.Call{
		Payload:     req.Payload,
		ClientAuth:  req.ClientAuth,
		RequiredKey: snap.RequiredKey(category),
		Header:      req.Header,
		Timeout:     snap.BackendTimeout,
	}

	var reasons []string

	// Sticky pin, tried outside the tiers.
	if pinned := e.pinned(ctx, logger, category); pinned != "" {
		if b, ok := snap.PinTarget(category, pinned); ok {
			stream, err := e.attempt(ctx, logger, category, b, call)
			if err == nil {
				return e.accept(ctx, logger, category, b, stream, false), nil
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			reasons = append(reasons, err.Error())
			// A wrong client key says nothing about the backend.
			var authErr *provider.AuthRejectedError
			if !errors.As(err, &authErr) {
				e.unpin(ctx, logger, category, b.Name)
			}
		} else {
			logger.Debug("ignoring stale pin", "backend", pinned)
		}
	}

	latch := snap.Candidates(category, true)
	plain := snap.Candidates(category, false)

	var slept time.Duration
	for round := 0; round <= snap.Retries; round++ {
		for _, b := range latch {
			stream, err := e.attempt(ctx, logger, category, b, call)
			if err == nil {
				return e.accept(ctx, logger, category, b, stream, true), nil
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			reasons = append(reasons, err.Error())
		}

		for _, b := range plain {
			stream, err := e.attempt(ctx, logger, category, b, call)
			if err == nil {
				return e.accept(ctx, logger, category, b, stream, false), nil
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			reasons = append(reasons, err.Error())
		}

		if round == snap.Retries {
			break
		}

		d := snap.RetryDelay
		if snap.MaxRetryWait > 0 && slept+d > snap.MaxRetryWait {
			d = snap.MaxRetryWait - slept
		}
		if d <= 0 {
			continue
		}
		logger.Debug("all candidates failed, retrying", "round", round+1, "delay", d)
		if e.metrics != nil {
			e.metrics.RetrySleeps.WithLabelValues(category).Inc()
		}
		if err := e.sleep(ctx, d); err != nil {
			return nil, err
		}
		slept += d
	}

	logger.Warn("no backend responded", "attempts", len(reasons))
	if e.metrics != nil {
		e.metrics.Exhausted.WithLabelValues(category).Inc()
	}
	return nil, &ExhaustedError{Category: category, Reasons: reasons}
}

func (e *Engine) attempt(ctx context.Context, logger *slog.Logger, category string, b config.Backend, call provider.Call) (*provider.Stream, error) {
	logger.Debug("attempting backend", "backend", b.Name, "latch", b.Latch)

	start := time.Now()
	stream, err := e.invoker.Attempt(ctx, b, call)

	if e.metrics != nil {
		e.metrics.Attempts.WithLabelValues(category, b.Name, outcome(err)).Inc()
		e.metrics.AttemptLatency.WithLabelValues(b.Name).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		logger.Info("backend attempt failed", "backend", b.Name, "error", err)
	}
	return stream, err
}

// accept records the successful dispatch and, for latch-tier wins, pins the
// backend. State failures are logged; the response is served regardless.
func (e *Engine) accept(ctx context.Context, logger *slog.Logger, category string, b config.Backend, stream *provider.Stream, pin bool) *Response {
	ctx = context.WithoutCancel(ctx)

	if pin {
		if err := e.state.SetPin(ctx, category, b.Name); err != nil {
			e.stateError(logger, "set_pin", err)
		} else {
			logger.Info("pinned backend", "backend", b.Name)
			if e.metrics != nil {
				e.metrics.PinChanges.WithLabelValues(category, "set").Inc()
			}
		}
	}
	if err := e.state.RecordRequest(ctx, b.Name); err != nil {
		e.stateError(logger, "record_request", err)
	}

	logger.Debug("backend accepted", "backend", b.Name)
	return &Response{Category: category, Backend: b.Name, Stream: stream}
}

func (e *Engine) pinned(ctx context.Context, logger *slog.Logger, category string) string {
	pin, err := e.state.Pin(ctx, category)
	if err != nil {
		e.stateError(logger, "load", err)
		return ""
	}
	return pin
}

func (e *Engine) unpin(ctx context.Context, logger *slog.Logger, category, backend string) {
	removed, err := e.state.ClearPin(context.WithoutCancel(ctx), category, backend)
	if err != nil {
		e.stateError(logger, "clear_pin", err)
		return
	}
	if removed {
		logger.Info("cleared pin", "backend", backend)
		if e.metrics != nil {
			e.metrics.PinChanges.WithLabelValues(category, "clear").Inc()
		}
	}
}

func (e *Engine) stateError(logger *slog.Logger, op string, err error) {
	logger.Warn("routing state update failed", "operation", op, "error", err)
	if e.metrics != nil {
		e.metrics.StateErrors.WithLabelValues(op).Inc()
	}
}

func outcome(err error) string {
	var (
		authErr      *provider.AuthRejectedError
		httpErr      *provider.HTTPError
		transportErr *provider.TransportError
		rejectedErr  *provider.StreamRejectedError
	)
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.As(err, &authErr):
		return metrics.OutcomeAuthRejected
	case errors.As(err, &httpErr):
		return metrics.OutcomeHTTPError
	case errors.As(err, &transportErr):
		return metrics.OutcomeTransportError
	case errors.As(err, &rejectedErr):
		return metrics.OutcomeStreamRejected
	default:
		return metrics.OutcomeOther
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("retry wait: %w", ctx.Err())
	}
}
