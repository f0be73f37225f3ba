// File: internal/server/server.go
// Package server exposes the logbook over HTTP: QSO and session CRUD,
// callsign lookup, sync control, ADIF transfer, spots and conditions.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/fullduplex/carrierwave/internal/conditions"
	"github.com/fullduplex/carrierwave/internal/config"
	"github.com/fullduplex/carrierwave/internal/lookup"
	"github.com/fullduplex/carrierwave/internal/metrics"
	"github.com/fullduplex/carrierwave/internal/models"
	"github.com/fullduplex/carrierwave/internal/notification"
	"github.com/fullduplex/carrierwave/internal/spots"
	"github.com/fullduplex/carrierwave/internal/storage"
	logsync "github.com/fullduplex/carrierwave/internal/sync"
	"github.com/fullduplex/carrierwave/pkg/utils"
)

// HTTPServer serves the logbook API
type HTTPServer struct {
	config         *config.ServerConfig
	version        string
	server         *http.Server
	router         *mux.Router
	storage        storage.Storage
	lookup         *lookup.Service
	sync           *logsync.Service
	spots          *spots.Manager
	conditions     *conditions.Service
	notification   *notification.Manager
	metricsManager *metrics.Manager
	logger         *logrus.Logger
}

// NewHTTPServer creates the HTTP server. Spots, conditions and
// notification may be nil when those subsystems are disabled.
func NewHTTPServer(
	cfg *config.ServerConfig,
	version string,
	store storage.Storage,
	lookupSvc *lookup.Service,
	syncSvc *logsync.Service,
	spotMgr *spots.Manager,
	conditionsSvc *conditions.Service,
	notifier *notification.Manager,
	metricsManager *metrics.Manager,
) *HTTPServer {
	s := &HTTPServer{
		config:         cfg,
		version:        version,
		storage:        store,
		lookup:         lookupSvc,
		sync:           syncSvc,
		spots:          spotMgr,
		conditions:     conditionsSvc,
		notification:   notifier,
		metricsManager: metricsManager,
		logger:         utils.GetLogger(),
	}

	s.setupRouter()

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s
}

func (s *HTTPServer) setupRouter() {
	s.router = mux.NewRouter()

	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.corsMiddleware)
	if s.metricsManager != nil {
		s.router.Use(s.metricsMiddleware)
	}

	api := s.router.PathPrefix("/api/v1").Subrouter()

	if s.config.EnableHealth {
		api.HandleFunc("/health", s.healthHandler).Methods("GET")
		api.HandleFunc("/health/detailed", s.detailedHealthHandler).Methods("GET")
	}

	if s.config.EnableMetrics {
		s.router.Handle("/metrics", promhttp.Handler())
	}
	api.HandleFunc("/stats", s.statsHandler).Methods("GET")

	// QSO endpoints
	api.HandleFunc("/qsos", s.listQSOsHandler).Methods("GET")
	api.HandleFunc("/qsos", s.createQSOHandler).Methods("POST")
	api.HandleFunc("/qsos/count", s.countQSOsHandler).Methods("GET")
	api.HandleFunc("/qsos/search", s.searchQSOsHandler).Methods("GET")
	api.HandleFunc("/qsos/{id}", s.getQSOHandler).Methods("GET")
	api.HandleFunc("/qsos/{id}", s.updateQSOHandler).Methods("PUT")
	api.HandleFunc("/qsos/{id}", s.deleteQSOHandler).Methods("DELETE")

	// Session endpoints
	api.HandleFunc("/sessions", s.listSessionsHandler).Methods("GET")
	api.HandleFunc("/sessions", s.createSessionHandler).Methods("POST")
	api.HandleFunc("/sessions/{id}", s.getSessionHandler).Methods("GET")
	api.HandleFunc("/sessions/{id}", s.deleteSessionHandler).Methods("DELETE")
	api.HandleFunc("/sessions/{id}/close", s.closeSessionHandler).Methods("POST")

	// Callsign lookup
	api.HandleFunc("/lookup/{callsign}", s.lookupHandler).Methods("GET")

	// Sync control
	api.HandleFunc("/sync/run", s.syncRunHandler).Methods("POST")
	api.HandleFunc("/sync/status", s.syncStatusHandler).Methods("GET")
	api.HandleFunc("/sync/report", s.syncReportHandler).Methods("GET")
	api.HandleFunc("/sync/dedup", s.dedupHandler).Methods("POST")

	// ADIF transfer
	api.HandleFunc("/import", s.importHandler).Methods("POST")
	api.HandleFunc("/export", s.exportHandler).Methods("GET")

	// Spot feed
	api.HandleFunc("/spots", s.listSpotsHandler).Methods("GET")

	// Space weather
	api.HandleFunc("/conditions/solar", s.solarConditionsHandler).Methods("GET")
}

// Start begins serving, returning early binding errors
func (s *HTTPServer) Start() error {
	s.logger.WithFields(logrus.Fields{
		"address":         s.server.Addr,
		"metrics_enabled": s.config.EnableMetrics,
	}).Info("Starting HTTP server")

	if s.metricsManager != nil {
		s.updateComponentMetrics()
		go s.systemMetricsUpdater()
	}

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("HTTP server error")
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("failed to start HTTP server: %w", err)
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

// Stop shuts the server down gracefully
func (s *HTTPServer) Stop() error {
	s.logger.Info("Stopping HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) systemMetricsUpdater() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		s.metricsManager.UpdateSystemMetrics()
		s.updateComponentMetrics()
	}
}

func (s *HTTPServer) updateComponentMetrics() {
	pm := s.metricsManager.GetPrometheusMetrics()

	if s.storage != nil {
		pm.UpdateComponentHealth("storage", s.storage.GetHealth().Healthy)
	}
	if s.sync != nil {
		pm.UpdateComponentHealth("sync", true)
	}
	if s.spots != nil {
		pm.UpdateComponentHealth("spots", s.spots.IsRunning())
	}
	if s.conditions != nil {
		pm.UpdateComponentHealth("conditions", s.conditions.IsRunning())
	}
	if s.notification != nil {
		pm.UpdateComponentHealth("notification", s.notification.IsRunning())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if total, err := s.storage.CountQSOs(ctx, models.QSOFilter{}); err == nil {
		pm.UpdateQSOsTotal(total)
	}
	for _, backend := range models.AllBackends() {
		b := backend
		if n, err := s.storage.CountQSOs(ctx, models.QSOFilter{Unsynced: &b}); err == nil {
			pm.UpdateUnsyncedQSOs(string(b), n)
		}
	}
}

// Middleware

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)

		s.logger.WithFields(logrus.Fields{
			"method":    r.Method,
			"path":      r.URL.Path,
			"duration":  time.Since(start),
			"remote_ip": r.RemoteAddr,
		}).Debug("HTTP request")
	})
}

func (s *HTTPServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Utility methods

func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Error("Failed to encode JSON response")
	}
}

func (s *HTTPServer) writeError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]interface{}{
		"error":     message,
		"status":    status,
		"timestamp": time.Now().UTC(),
	}

	if err != nil {
		response["details"] = err.Error()
		s.logger.WithError(err).WithFields(logrus.Fields{
			"status":  status,
			"message": message,
		}).Warn("HTTP error")
	}

	s.writeJSON(w, status, response)
}
