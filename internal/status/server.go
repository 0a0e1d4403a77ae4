// Package status serves the operator HTTP surface: Prometheus metrics,
// a liveness probe and a JSON session snapshot.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/e7canasta/railscan"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 5 * time.Second

// SnapshotProvider is implemented by *railscan.Controller.
type SnapshotProvider interface {
	Snapshot() railscan.Snapshot
}

// StatsProvider supplies extra fields for /status, e.g. throughput.
type StatsProvider func() any

// Server is the status HTTP server.
type Server struct {
	addr     string
	handler  http.Handler
	listener net.Listener
}

// NewRouter builds the chi router. Exposed for tests.
func NewRouter(snap SnapshotProvider, gatherer prometheus.Gatherer, stats StatsProvider) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		state := snap.Snapshot().State
		if state != railscan.StatePlaying.String() {
			http.Error(w, state, http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok\n"))
	})

	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		body := struct {
			railscan.Snapshot
			Throughput any `json:"throughput,omitempty"`
		}{Snapshot: snap.Snapshot()}
		if stats != nil {
			body.Throughput = stats()
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(body); err != nil {
			slog.Debug("status: failed to encode snapshot", "error", err)
		}
	})

	return r
}

// New returns a server bound to addr once Run is called.
func New(addr string, handler http.Handler) *Server {
	return &Server{addr: addr, handler: handler}
}

// Listen binds the address. Run calls it when the caller did not.
func (s *Server) Listen() error {
	if s.listener != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("status: listen %s: %w", s.addr, err)
	}
	s.listener = ln
	return nil
}

// Addr returns the bound address, or the configured one before Listen.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("status: serving", "addr", s.Addr())
		errCh <- srv.Serve(s.listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("status: shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	slog.Debug("status: stopped")
	return nil
}
