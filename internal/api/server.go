// Package api serves conversions over HTTP: uploads become jobs, progress
// streams over WebSocket, and results land in the rendering cache and the
// optional conversion store.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/redlinekit/redline/core/cache"
	"github.com/redlinekit/redline/core/errors"
	"github.com/redlinekit/redline/internal/logging"
	"github.com/redlinekit/redline/internal/store"
)

// Server is one serve-mode instance. All state is per instance; two
// servers in one process share no jobs, caches, or subscribers.
type Server struct {
	addr    string
	logger  *slog.Logger
	store   *store.Store
	cache   *cache.RenderingCache
	jobs    *JobStore
	hub     *Hub
	handler http.Handler
	started time.Time
}

// New assembles a server from cfg.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cacheCfg := cache.DefaultConfig()
	if cfg.CacheSize > 0 {
		cacheCfg.MaxSize = cfg.CacheSize
	}

	addr := cfg.Addr
	if addr == "" {
		addr = ":8080"
	}

	s := &Server{
		addr:    addr,
		logger:  logger,
		store:   cfg.Store,
		cache:   cache.NewRenderingCache(cacheCfg),
		jobs:    NewJobStore(),
		hub:     NewHub(logger),
		started: time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/api/v1/convert", s.handleConvert)
	mux.HandleFunc("/api/v1/jobs", s.handleJobs)
	mux.HandleFunc("/api/v1/jobs/", s.handleJobByID)
	mux.HandleFunc("/ws", s.handleWebSocket)

	s.handler = logging.Middleware(logger)(recoverMiddleware(logger)(mux))
	return s
}

// Handler returns the root handler with middleware applied. Tests serve it
// through httptest.
func (s *Server) Handler() http.Handler { return s.handler }

// Start runs the hub and the HTTP listener until ctx is cancelled, then
// shuts down gracefully. In-flight requests get ten seconds to finish.
func (s *Server) Start(ctx context.Context) error {
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go s.hub.Run(hubCtx)

	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logging.ServerStarted(s.logger, s.addr)

	select {
	case err := <-errCh:
		// Shutdown has not been called yet, so this is a real failure,
		// not ErrServerClosed.
		logging.ServerStopped(s.logger, err)
		return errors.Wrap(err, "server failed")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	logging.ServerStopped(s.logger, err)
	return err
}

// recoverMiddleware converts handler panics into 500 responses so one bad
// request cannot take the process down.
func recoverMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("handler panic", "method", r.Method, "path", r.URL.Path, "panic", rec)
					respondError(w, http.StatusInternalServerError, "INTERNAL", "Internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
