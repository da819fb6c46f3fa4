package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cake-lab/arflow-go/internal/logging"
)

// Server exposes liveness, readiness, and (optionally) Prometheus metrics
// endpoints over HTTP, delegating status computation to an API.
type Server struct {
	host           string
	port           int
	metricsEnabled bool
	logger         *logging.Logger
	api            API
	httpServer     *http.Server

	activeSessions prometheus.Gauge
}

// NewServer builds a Server bound to host:port. If metricsEnabled, /metrics
// serves the default Prometheus registry plus an active_sessions gauge kept
// in sync on every /health/detailed poll.
func NewServer(host string, port int, metricsEnabled bool, api API, logger *logging.Logger) *Server {
	s := &Server{
		host:           host,
		port:           port,
		metricsEnabled: metricsEnabled,
		logger:         logger,
		api:            api,
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "arflow_active_sessions",
			Help: "Number of active recording/streaming sessions.",
		}),
	}
	if metricsEnabled {
		prometheus.MustRegister(s.activeSessions)
	}

	r := chi.NewRouter()
	r.Get("/health", s.handleHealth)
	r.Get("/health/detailed", s.handleDetailedHealth)
	r.Get("/ready", s.handleReadiness)
	r.Get("/alive", s.handleLiveness)
	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start begins serving. It does not block; call Stop to shut down.
func (s *Server) Start(context.Context) error {
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("health server failed")
		}
	}()
	s.logger.WithFields(logging.Fields{"host": s.host, "port": s.port}).Info("health server started")
	return nil
}

// Stop gracefully shuts the server down, satisfying internal/common.Stoppable.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp, err := s.api.GetHealth(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDetailedHealth(w http.ResponseWriter, r *http.Request) {
	resp, err := s.api.GetDetailedHealth(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if s.metricsEnabled {
		s.activeSessions.Set(float64(resp.ActiveSessions))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	resp, err := s.api.IsReady(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	resp, err := s.api.IsAlive(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	status := http.StatusOK
	if !resp.Alive {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
