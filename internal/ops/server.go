// Package ops exposes the pipeline's operational surface over HTTP: liveness
// probes against the backing stores and drain statistics for dashboards.
package ops

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/mondaylite/notifier/internal/buffer"
	"github.com/mondaylite/notifier/internal/logging"
	"github.com/mondaylite/notifier/internal/worker"
)

// Probe checks one backing dependency. A nil return means healthy.
type Probe func(ctx context.Context) error

type Options struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type Server struct {
	srv    *http.Server
	store  *buffer.Store
	work   *worker.Worker
	probes map[string]Probe
	logger *zap.Logger
}

func NewServer(opts Options, store *buffer.Store, work *worker.Worker, probes map[string]Probe, logger *zap.Logger) *Server {
	s := &Server{
		store:  store,
		work:   work,
		probes: probes,
		logger: logger,
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(injectLogger(logger))
	r.Get("/healthz", s.handleHealthz)
	r.Get("/stats", s.handleStats)

	s.srv = &http.Server{
		Addr:         fmt.Sprintf(":%d", opts.Port),
		Handler:      r,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	}
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

func (s *Server) Start() {
	go func() {
		s.logger.Info("ops.listening", zap.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("ops.serve_failed", zap.Error(err))
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// injectLogger puts the server logger on the request context so handlers
// log through logging.FromContext.
func injectLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(logging.WithLogger(r.Context(), logger)))
		})
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	lg := logging.FromContext(r.Context())
	checks := make(map[string]string, len(s.probes))
	healthy := true
	for name, probe := range s.probes {
		if err := probe(ctx); err != nil {
			lg.Warn("ops.probe_failed", zap.String("check", name), zap.Error(err))
			checks[name] = err.Error()
			healthy = false
			continue
		}
		checks[name] = "ok"
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"healthy": healthy,
		"checks":  checks,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	lg := logging.FromContext(ctx)

	pending, err := s.store.PendingGroups(ctx)
	if err != nil {
		lg.Error("ops.stats_failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	ready, err := s.store.ReadyGroups(ctx, time.Now())
	if err != nil {
		lg.Error("ops.stats_failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"buffer": map[string]int64{
			"pending_groups": pending,
			"ready_groups":   ready,
		},
		"worker": s.work.Stats(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
