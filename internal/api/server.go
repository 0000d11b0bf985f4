// Package api wires the HTTP surface: probes, metrics, the embedded page and
// the ephemeris, TLE lookup and session endpoints.
package api

import (
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/jyannick/OrbitPlot/internal/auth"
	"github.com/jyannick/OrbitPlot/internal/health"
	"github.com/jyannick/OrbitPlot/internal/metrics"
	"github.com/jyannick/OrbitPlot/internal/plot"
	"github.com/jyannick/OrbitPlot/internal/session"
	"github.com/jyannick/OrbitPlot/internal/stream"
	"github.com/jyannick/OrbitPlot/internal/tle"
)

// Deps are the server's collaborators. Catalog may be nil, which disables
// TLE lookup; Web may be nil, which disables the page.
type Deps struct {
	Generator session.Computer
	Sessions  *session.Manager
	Stream    *stream.Handler
	Catalog   *tle.Catalog
	Plotter   *plot.Renderer
	Defaults  Defaults
	Ready     func() bool
	Web       fs.FS
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// NewServer creates a configured HTTP server.
func NewServer(addr string, logger *slog.Logger, authCfg auth.Config, deps Deps) *Server {
	h := &handlers{deps: deps, logger: logger.With("component", "api")}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz(deps.Ready))
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("GET /api/v1/defaults", h.defaults)
	mux.HandleFunc("POST /api/v1/ephemeris", h.ephemeris)
	mux.HandleFunc("POST /api/v1/ephemeris/plot.png", h.plot)
	if deps.Catalog != nil {
		mux.HandleFunc("GET /api/v1/tle/{norad_id}", h.lookupTLE)
	}
	mux.HandleFunc("GET /api/v1/sessions/stream", deps.Stream.HandleSession)
	mux.HandleFunc("POST /api/v1/sessions/{id}/recompute", h.recompute)

	if deps.Web != nil {
		mux.Handle("GET /", http.FileServerFS(deps.Web))
	}

	// Build middleware chain: metrics -> logging -> auth -> mux.
	var handler http.Handler = mux
	handler = auth.Middleware(authCfg)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = metrics.Middleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			// Long enough for the largest synchronous generation; streams
			// clear it per connection.
			WriteTimeout: 2 * time.Minute,
			IdleTimeout:  120 * time.Second,
		},
		handler: handler,
		logger:  logger,
	}
}

// Handler returns the full middleware chain, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// HTTPServer returns the underlying *http.Server for external control (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// probePath returns true for health/readiness probe paths that should not log at INFO.
func probePath(path string) bool {
	return path == "/healthz" || path == "/readyz" || path == "/metrics"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

func loggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sr, r)

			duration := time.Since(start)
			level := slog.LevelInfo
			if probePath(r.URL.Path) {
				level = slog.LevelDebug
			}

			logger.Log(r.Context(), level, "request",
				"component", "api",
				"method", r.Method,
				"path", r.URL.Path,
				"status", strconv.Itoa(sr.statusCode),
				"duration_ms", duration.Milliseconds(),
				"remote_ip", r.RemoteAddr,
			)
		})
	}
}
