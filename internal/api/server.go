// Package api exposes the operational HTTP surface of the ingestion service:
// health, readiness, Prometheus metrics, and the latest per-feed status.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-feeds/internal/export"
	"github.com/JakeFAU/realtime-feeds/internal/metrics"
	"github.com/JakeFAU/realtime-feeds/internal/store"
)

// StatusReader returns the latest fetch-log row per source.
type StatusReader interface {
	LatestStatus(ctx context.Context) ([]store.FeedStatus, error)
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server wires HTTP handlers to the store.
type Server struct {
	router chi.Router
	status StatusReader
	pinger Pinger
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes. status and
// pinger may be nil, in which case /v1/status is unavailable and /readyz
// always succeeds.
func NewServer(status StatusReader, pinger Pinger, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{status: status, pinger: pinger, logger: logger}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metricsMiddleware)
	r.Use(timeoutMiddleware(30 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Get("/v1/status", s.feedStatus)

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is canceled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen on %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	s.logger.Info("http server stopped")
	return nil
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.pinger != nil {
		if err := s.pinger.Ping(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "store unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) feedStatus(w http.ResponseWriter, r *http.Request) {
	if s.status == nil {
		writeError(w, http.StatusNotFound, "status not available")
		return
	}
	latest, err := s.status.LatestStatus(r.Context())
	if err != nil {
		s.logger.Error("load feed status", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load status")
		return
	}
	out := make([]export.ExportedFeed, 0, len(latest))
	for _, st := range latest {
		out = append(out, export.ExportedFeed{
			SourceID:  st.Log.SourceID,
			Name:      st.Name,
			URL:       st.URL,
			Status:    st.Log.Status,
			PostCount: st.Log.PostCount,
			LatencyMs: st.Log.LatencyMs,
			Error:     st.Log.Error,
			FetchedAt: st.Log.FetchedAt.UTC(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"feeds":   out,
		"summary": export.Summarize(out),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
