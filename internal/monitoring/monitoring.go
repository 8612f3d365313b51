// Package monitoring serves the indexer's health and metrics HTTP surface
// (spec.md §6), grounded on
// original_source/backend/src/monitoring/database_metrics.rs's
// connection-stats-gauge pattern and
// original_source/backend-rust/src/graphql_api/monitoring.rs's use of a
// Prometheus registry alongside the service's primary work.
package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/concordium/ccdscan-indexer/internal/logging"
	"github.com/concordium/ccdscan-indexer/internal/metrics"
	"github.com/concordium/ccdscan-indexer/internal/schema"
)

// healthResponse is the body of the GET / health check (spec.md §6).
type healthResponse struct {
	DatabaseStatus string `json:"database_status"`
}

// Server serves GET / (health) and GET /metrics (Prometheus) on one
// listener, mirroring the teacher's pattern of a single lightweight
// monitoring endpoint alongside the indexer's main work.
type Server struct {
	pool *pgxpool.Pool
	reg  *metrics.Registry
	log  logging.Logger

	httpServer *http.Server
}

// New builds a Server that listens on addr once Run is called.
func New(addr string, pool *pgxpool.Pool, reg *metrics.Registry, log logging.Logger) *Server {
	s := &Server{pool: pool, reg: reg, log: log}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleHealth)
	mux.Handle("/metrics", promhttp.HandlerFor(reg.Gatherer(), promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// handleHealth reports 200 when a fresh connection from the pool succeeds
// and the schema is at the latest version, 500 otherwise.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := s.pool.Ping(ctx); err != nil {
		s.writeUnhealthy(w, "database ping failed", err)
		return
	}
	if err := schema.EnsureLatest(ctx, s.pool); err != nil {
		s.writeUnhealthy(w, "schema not at latest version", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(healthResponse{DatabaseStatus: "connected"})
}

func (s *Server) writeUnhealthy(w http.ResponseWriter, reason string, err error) {
	s.log.Warn(reason, "error", err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(healthResponse{DatabaseStatus: "disconnected"})
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
			return
		}
		errc <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-errc
	case err := <-errc:
		return err
	}
}
