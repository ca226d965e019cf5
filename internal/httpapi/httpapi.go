// Package httpapi serves the operational HTTP surface: liveness, a status
// snapshot, and Prometheus metrics.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/LunaSea00/tg-twitter-sync/internal/dm"
)

const shutdownTimeout = 5 * time.Second

// StatusSource provides the monitor snapshot for /status.
type StatusSource interface {
	Status() dm.Status
}

// Server is the operational HTTP server.
type Server struct {
	srv    *http.Server
	status StatusSource
}

// NewServer builds the server on addr.
func NewServer(addr string, status StatusSource) *Server {
	s := &Server{status: status}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.Handle("GET /metrics", promhttp.Handler())
	s.srv = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.srv.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	resp := struct {
		Monitor dm.Status `json:"dm_monitor"`
		Time    time.Time `json:"time"`
	}{
		Monitor: s.status.Status(),
		Time:    time.Now().UTC(),
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Warn("status encode failed", "error", err)
	}
}
