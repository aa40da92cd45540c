package app

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/mandalnilabja/latchway/internal/transport/http/handler"
	"github.com/mandalnilabja/latchway/internal/transport/http/handler/shared"
	"github.com/mandalnilabja/latchway/internal/transport/http/middleware"
)

// RouterOptions configures the HTTP router behavior.
type RouterOptions struct {
	Logger *slog.Logger
}

// NewRouter creates and configures the HTTP router with all application routes.
// Returns an http.Handler with middleware applied.
func NewRouter(repo *handler.Repo, opts *RouterOptions) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", repo.Infra.HealthCheck)
	mux.HandleFunc("GET /api/status", repo.Infra.Status)
	mux.HandleFunc("GET /metrics", repo.Infra.ServeMetrics)

	// Client routes accept any path prefix, so they are dispatched on the
	// last path segment rather than registered as patterns.
	mux.Handle("/", clientRoutes(repo))

	logger := slog.Default()
	if opts != nil && opts.Logger != nil {
		logger = opts.Logger
	}

	// Order: outer to inner
	return middleware.Chain(mux,
		middleware.CORS,
		middleware.RequestID,
		middleware.RequestLogger(logger),
		middleware.Recover(logger),
	)
}

// clientRoutes serves /, [<prefix>]/models and [<prefix>]/completions.
func clientRoutes(repo *handler.Repo) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimSuffix(r.URL.Path, "/")

		switch {
		case path == "":
			if !allow(w, r, http.MethodGet) {
				return
			}
			repo.Infra.RootStatus(w, r)
		case hasSegmentSuffix(path, "models"):
			if !allow(w, r, http.MethodGet) {
				return
			}
			repo.Proxy.ListModels(w, r)
		case hasSegmentSuffix(path, "completions"):
			if !allow(w, r, http.MethodPost) {
				return
			}
			repo.Proxy.Completions(w, r)
		default:
			shared.WriteJSONError(w, "not found", http.StatusNotFound)
		}
	})
}

// hasSegmentSuffix reports whether the final segment of path is name.
func hasSegmentSuffix(path, name string) bool {
	return strings.HasSuffix(path, "/"+name)
}

func allow(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method || (method == http.MethodGet && r.Method == http.MethodHead) {
		return true
	}
	w.Header().Set("Allow", method)
	shared.WriteJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
	return false
}
