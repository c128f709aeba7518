package telemetry

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes GET /health and GET /metrics on a dedicated listener.
type Server struct {
	srv       *http.Server
	logger    *slog.Logger
	startTime time.Time
}

// NewServer builds the telemetry HTTP server for the given listen address.
func NewServer(addr string, metrics *Metrics, logger *slog.Logger) *Server {
	s := &Server{logger: logger, startTime: time.Now()}

	r := chi.NewRouter()
	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics",
		promhttp.HandlerFor(metrics.registry, promhttp.HandlerOpts{}))

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": int(time.Since(s.startTime).Seconds()),
	})
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("telemetry listening", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the listener gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
