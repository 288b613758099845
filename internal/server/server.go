// Package server exposes maintenance, artifact, probe, cache and channel
// operations over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/warden/internal/cachestore"
	"github.com/MrSnakeDoc/warden/internal/channels"
	"github.com/MrSnakeDoc/warden/internal/logger"
	"github.com/MrSnakeDoc/warden/internal/probe"
	"github.com/MrSnakeDoc/warden/internal/resolver"
	"github.com/MrSnakeDoc/warden/internal/scheduler"
	"github.com/gorilla/mux"
)

type Resolver interface {
	Resolve(ctx context.Context, forceRefresh bool, overrideURL string) resolver.Record
}

type Prober interface {
	Probe(ctx context.Context, rawURL string) probe.Result
}

type Maintenance interface {
	RunOnce(ctx context.Context) (scheduler.Report, bool)
	LastReport() (scheduler.Report, bool)
	Running() bool
	Exclusive(fn func() error) (bool, error)
}

type Cache interface {
	Supported() bool
	Stats(ctx context.Context) (cachestore.Stats, error)
	CleanupExpired(ctx context.Context) (int, error)
	ValidateSize(ctx context.Context) (int, error)
}

type Channels interface {
	List(ctx context.Context) ([]channels.Channel, error)
	LastRefresh(ctx context.Context) (channels.LastRefresh, bool, error)
}

// Deps wires the handlers. Nil Cache or Channels answer as unsupported.
type Deps struct {
	Resolver    Resolver
	Prober      Prober
	Maintenance Maintenance
	Cache       Cache
	Channels    Channels
}

type Server struct {
	router *mux.Router
	deps   Deps
}

func New(deps Deps) *Server {
	s := &Server{router: mux.NewRouter(), deps: deps}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(recoverMiddleware, logMiddleware)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/maintenance/run", s.handleRun).Methods(http.MethodPost)
	api.HandleFunc("/maintenance/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/artifact", s.handleArtifact).Methods(http.MethodGet)
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	api.HandleFunc("/cache/stats", s.handleCacheStats).Methods(http.MethodGet)
	api.HandleFunc("/cache/cleanup", s.handleCacheCleanup).Methods(http.MethodPost)
	api.HandleFunc("/channels", s.handleChannels).Methods(http.MethodGet)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is canceled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	logger.Info("server: listening on http://%s", addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("server: shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}
