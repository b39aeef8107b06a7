package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/dwellir-public/haproxy-collector/internal/config"
	"github.com/dwellir-public/haproxy-collector/internal/metrics"
	"github.com/dwellir-public/haproxy-collector/internal/service"
	"github.com/dwellir-public/haproxy-collector/pkg/logger"
)

// AdminServer exposes liveness, last-pass status and metrics for the
// collector in daemon mode
type AdminServer struct {
	server    *http.Server
	collector *service.Collector
	logger    *logger.Logger
	version   string
	startTime time.Time
}

// New creates a new admin server
func New(cfg config.AdminConfig, collector *service.Collector, version string, log *logger.Logger) *AdminServer {
	s := &AdminServer{
		collector: collector,
		logger:    log,
		version:   version,
		startTime: time.Now(),
	}

	router := mux.NewRouter()
	router.HandleFunc("/healthz", s.healthzHandler).Methods(http.MethodGet)
	router.HandleFunc("/status", s.statusHandler).Methods(http.MethodGet)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// Start runs the server until Shutdown is called
func (s *AdminServer) Start() error {
	s.logger.WithField("addr", s.server.Addr).Info("Starting admin server")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server
func (s *AdminServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// healthzHandler reports process liveness
func (s *AdminServer) healthzHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "alive",
		"timestamp": time.Now().UTC(),
		"version":   s.version,
		"uptime":    time.Since(s.startTime).String(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

// statusHandler reports the outcome of the most recent collection pass
func (s *AdminServer) statusHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	summary, ok := s.collector.LastPass()
	if !ok {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "no pass completed yet",
		})
		return
	}

	status := http.StatusOK
	if !summary.Success {
		status = http.StatusInternalServerError
	}
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(summary)
}
