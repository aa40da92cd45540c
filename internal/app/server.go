package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

// shutdownTimeout bounds how long in-flight streams get to finish.
const shutdownTimeout = 15 * time.Second

// Watcher is a background task that runs until its context ends.
type Watcher interface {
	Watch(ctx context.Context) error
}

// Server wraps the HTTP server with its background tasks.
type Server struct {
	httpServer *http.Server
	watchers   []Watcher
	logger     *slog.Logger
}

// NewServer creates a new configured HTTP server instance.
func NewServer(addr string, handler http.Handler, logger *slog.Logger, watchers ...Watcher) *Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		// No WriteTimeout: it would cut off long completion streams.
		ReadTimeout: 60 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	return &Server{
		httpServer: srv,
		watchers:   watchers,
		logger:     logger,
	}
}

// Run serves until ctx is cancelled or the listener fails, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("server listening", "addr", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})

	for _, w := range s.watchers {
		g.Go(func() error {
			if err := w.Watch(gctx); err != nil && !errors.Is(err, context.Canceled) {
				// A failed watcher degrades to TTL-only reloads.
				s.logger.Warn("watcher stopped", "error", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}
