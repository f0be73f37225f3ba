// File: internal/sync/sync.go
// Package sync pushes logged QSOs to the configured logbook backends and
// pulls remote changes back into local storage.
package sync

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/fullduplex/carrierwave/internal/config"
	"github.com/fullduplex/carrierwave/internal/metrics"
	"github.com/fullduplex/carrierwave/internal/models"
	"github.com/fullduplex/carrierwave/internal/storage"
	"github.com/fullduplex/carrierwave/pkg/utils"
)

// Backend is one remote logbook service
type Backend interface {
	Name() models.SyncBackend
	Sync(ctx context.Context) (*BackendReport, error)
}

// BackendReport summarizes one backend's sync run
type BackendReport struct {
	Backend    models.SyncBackend `json:"backend"`
	Uploaded   int                `json:"uploaded"`
	Downloaded int                `json:"downloaded"`
	Confirmed  int                `json:"confirmed"`
	Skipped    int                `json:"skipped"`
	Error      string             `json:"error,omitempty"`
	Duration   time.Duration      `json:"duration"`
}

// Report aggregates a full sync run across backends
type Report struct {
	StartedAt  time.Time                             `json:"started_at"`
	FinishedAt time.Time                             `json:"finished_at"`
	Backends   map[models.SyncBackend]*BackendReport `json:"backends"`
}

// Succeeded reports whether every backend completed without error
func (r *Report) Succeeded() bool {
	for _, br := range r.Backends {
		if br.Error != "" {
			return false
		}
	}
	return true
}

// TotalUploaded sums uploads across backends
func (r *Report) TotalUploaded() int {
	total := 0
	for _, br := range r.Backends {
		total += br.Uploaded
	}
	return total
}

// ReportSink receives completed sync reports, typically the notification
// manager.
type ReportSink interface {
	SyncReportCompleted(ctx context.Context, report *Report)
}

// Service runs sync across all enabled backends
type Service struct {
	config   *config.SyncConfig
	storage  storage.Storage
	backends []Backend
	metrics  *metrics.PrometheusMetrics
	sink     ReportSink
	logger   *logrus.Entry

	mu         sync.Mutex
	running    bool
	lastReport *Report
	ticker     *time.Ticker
	stopCh     chan struct{}
	wg         sync.WaitGroup
}

// NewService creates the sync service with all enabled backends
func NewService(cfg *config.SyncConfig, station *config.StationConfig, store storage.Storage, m *metrics.PrometheusMetrics) *Service {
	s := &Service{
		config:  cfg,
		storage: store,
		metrics: m,
		logger:  logrus.WithField("component", "sync"),
	}

	if cfg.QRZ.Enabled {
		s.backends = append(s.backends, NewQRZBackend(&cfg.QRZ, cfg, store))
	}
	if cfg.POTA.Enabled {
		s.backends = append(s.backends, NewPOTABackend(&cfg.POTA, cfg, station, store))
	}
	if cfg.HAMRS.Enabled {
		s.backends = append(s.backends, NewHAMRSBackend(&cfg.HAMRS, cfg, store))
	}
	if cfg.LoTW.Enabled {
		s.backends = append(s.backends, NewLoTWBackend(&cfg.LoTW, cfg, store))
	}
	if cfg.LoFi.Enabled {
		s.backends = append(s.backends, NewLoFiBackend(&cfg.LoFi, cfg, store))
	}

	return s
}

// SetReportSink registers a receiver for completed reports
func (s *Service) SetReportSink(sink ReportSink) {
	s.sink = sink
}

// Backends lists the enabled backend names
func (s *Service) Backends() []models.SyncBackend {
	names := make([]models.SyncBackend, len(s.backends))
	for i, b := range s.backends {
		names[i] = b.Name()
	}
	return names
}

// Start begins periodic syncing at the configured interval
func (s *Service) Start(ctx context.Context) error {
	if len(s.backends) == 0 {
		s.logger.Info("No sync backends enabled")
		return nil
	}
	if s.config.Interval <= 0 {
		return utils.NewAppError(utils.ErrCodeConfiguration, "Sync interval must be positive", s.config.Interval.String())
	}

	s.mu.Lock()
	if s.stopCh != nil {
		s.mu.Unlock()
		return nil
	}
	s.stopCh = make(chan struct{})
	s.ticker = time.NewTicker(s.config.Interval)
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-s.ticker.C:
				if _, err := s.SyncAll(ctx); err != nil {
					s.logger.WithError(err).Warn("Scheduled sync run failed")
				}
			case <-s.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	s.logger.WithField("interval", s.config.Interval).Info("Sync service started")
	return nil
}

// Stop halts periodic syncing
func (s *Service) Stop() error {
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return nil
	}
	close(s.stopCh)
	s.stopCh = nil
	s.ticker.Stop()
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("Sync service stopped")
	return nil
}

// IsRunning reports whether a sync run is in progress
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// LastReport returns the most recent completed report, or nil
func (s *Service) LastReport() *Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastReport
}

// SyncAll runs every enabled backend concurrently. A backend failure is
// recorded in the report without aborting the others.
func (s *Service) SyncAll(ctx context.Context) (*Report, error) {
	if len(s.backends) == 0 {
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "No sync backends enabled", "")
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil, utils.NewAppError(utils.ErrCodeSync, "Sync already in progress", "")
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	report := &Report{
		StartedAt: time.Now().UTC(),
		Backends:  make(map[models.SyncBackend]*BackendReport, len(s.backends)),
	}
	var reportMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, backend := range s.backends {
		g.Go(func() error {
			bctx := gctx
			if s.config.BackendTimeout > 0 {
				var cancel context.CancelFunc
				bctx, cancel = context.WithTimeout(gctx, s.config.BackendTimeout)
				defer cancel()
			}

			start := time.Now()
			br, err := backend.Sync(bctx)
			if br == nil {
				br = &BackendReport{Backend: backend.Name()}
			}
			br.Duration = time.Since(start)
			if err != nil {
				br.Error = err.Error()
				s.logger.WithError(err).WithField("backend", backend.Name()).Warn("Backend sync failed")
			}

			if s.metrics != nil {
				status := "ok"
				if err != nil {
					status = "error"
					s.metrics.RecordSyncError(string(backend.Name()), utils.ErrCodeSync)
				}
				s.metrics.RecordSyncRun(string(backend.Name()), status, br.Duration)
				s.metrics.RecordSyncUploaded(string(backend.Name()), br.Uploaded)
				s.metrics.RecordSyncDownloaded(string(backend.Name()), br.Downloaded)
			}

			reportMu.Lock()
			report.Backends[backend.Name()] = br
			reportMu.Unlock()

			// Failures are carried in the report, not as group errors
			return nil
		})
	}
	g.Wait()

	report.FinishedAt = time.Now().UTC()

	s.mu.Lock()
	s.lastReport = report
	s.mu.Unlock()

	s.logEvent(ctx, report)

	if s.sink != nil {
		s.sink.SyncReportCompleted(ctx, report)
	}

	return report, nil
}

// SyncBackend runs a single backend by name
func (s *Service) SyncBackend(ctx context.Context, name models.SyncBackend) (*BackendReport, error) {
	for _, backend := range s.backends {
		if backend.Name() != name {
			continue
		}

		start := time.Now()
		br, err := backend.Sync(ctx)
		if br == nil {
			br = &BackendReport{Backend: name}
		}
		br.Duration = time.Since(start)
		if err != nil {
			br.Error = err.Error()
		}
		return br, err
	}
	return nil, utils.NewAppError(utils.ErrCodeNotFound, "Backend not enabled", string(name))
}

// Prober is implemented by backends that support a lightweight
// connectivity check without moving any QSOs
type Prober interface {
	Probe(ctx context.Context) error
}

// Probe checks connectivity for a single backend. Backends without a
// probe are assumed reachable.
func (s *Service) Probe(ctx context.Context, name models.SyncBackend) error {
	for _, backend := range s.backends {
		if backend.Name() != name {
			continue
		}
		if prober, ok := backend.(Prober); ok {
			return prober.Probe(ctx)
		}
		return nil
	}
	return utils.NewAppError(utils.ErrCodeNotFound, "Backend not enabled", string(name))
}

func (s *Service) logEvent(ctx context.Context, report *Report) {
	data := map[string]interface{}{
		"uploaded":  report.TotalUploaded(),
		"succeeded": report.Succeeded(),
	}
	for name, br := range report.Backends {
		entry := map[string]interface{}{
			"uploaded":   br.Uploaded,
			"downloaded": br.Downloaded,
		}
		if br.Error != "" {
			entry["error"] = br.Error
		}
		data[string(name)] = entry
	}
	if err := s.storage.LogEvent(ctx, "sync_run", data); err != nil {
		s.logger.WithError(err).Debug("Failed to record sync event")
	}
}

// GetStats returns a snapshot for the stats endpoint
func (s *Service) GetStats() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := map[string]interface{}{
		"enabled_backends": len(s.backends),
		"running":          s.running,
	}
	if s.lastReport != nil {
		stats["last_run"] = s.lastReport.FinishedAt
		stats["last_succeeded"] = s.lastReport.Succeeded()
	}
	return stats
}
