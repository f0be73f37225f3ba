// File: internal/spots/manager.go
// Package spots ingests on-air spot feeds (Reverse Beacon Network, POTA)
// and raises alerts for watched callsigns and bands.
package spots

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fullduplex/carrierwave/internal/config"
	"github.com/fullduplex/carrierwave/internal/metrics"
	"github.com/fullduplex/carrierwave/internal/models"
	"github.com/fullduplex/carrierwave/internal/storage"
)

// pruneInterval is how often stored spots are swept against retention
const pruneInterval = 10 * time.Minute

// AlertSink receives watchlist matches, typically the notification manager
type AlertSink interface {
	SpotMatched(ctx context.Context, spot *models.Spot)
}

// Manager runs the enabled feeds, persists spots and applies the watchlist
type Manager struct {
	config        *config.SpotsConfig
	storage       storage.Storage
	metrics       *metrics.PrometheusMetrics
	sink          AlertSink
	spotRetention time.Duration
	logger        *logrus.Entry

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	stats   Stats
	station string
}

// Stats tracks feed activity
type Stats struct {
	Received   int64 `json:"received"`
	Stored     int64 `json:"stored"`
	Matched    int64 `json:"matched"`
	Reconnects int64 `json:"reconnects"`
}

// NewManager creates the spot manager
func NewManager(cfg *config.SpotsConfig, station *config.StationConfig, store storage.Storage, m *metrics.PrometheusMetrics, retention time.Duration) *Manager {
	return &Manager{
		config:        cfg,
		storage:       store,
		metrics:       m,
		spotRetention: retention,
		station:       station.Callsign,
		logger:        logrus.WithField("component", "spots"),
	}
}

// SetAlertSink registers a receiver for watchlist matches
func (m *Manager) SetAlertSink(sink AlertSink) {
	m.sink = sink
}

// Start launches the enabled feeds and the retention sweeper
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		return nil
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.mu.Unlock()

	if m.config.RBN.Enabled {
		feed := NewRBNFeed(&m.config.RBN, m.station, func(spot *models.Spot) {
			m.handleSpot(ctx, spot)
		})
		if m.metrics != nil {
			feed.onParseError = m.metrics.RecordSpotParseError
		}
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			feed.Run(ctx, func() { m.recordReconnect(models.SpotSourceRBN) })
		}()
	}

	if m.config.POTA.Enabled {
		poller := NewPOTAPoller(&m.config.POTA, func(spot *models.Spot) {
			m.handleSpot(ctx, spot)
		})
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			poller.Run(ctx, func() { m.recordReconnect(models.SpotSourcePOTA) })
		}()
	}

	if m.spotRetention > 0 {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.pruneLoop(ctx)
		}()
	}

	m.logger.WithFields(logrus.Fields{
		"rbn":  m.config.RBN.Enabled,
		"pota": m.config.POTA.Enabled,
	}).Info("Spot manager started")
	return nil
}

// Stop halts the feeds and waits for them to exit
func (m *Manager) Stop() error {
	m.mu.Lock()
	if m.cancel == nil {
		m.mu.Unlock()
		return nil
	}
	m.cancel()
	m.cancel = nil
	m.mu.Unlock()

	m.wg.Wait()
	m.logger.Info("Spot manager stopped")
	return nil
}

// IsRunning reports whether feeds are active
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancel != nil
}

func (m *Manager) handleSpot(ctx context.Context, spot *models.Spot) {
	m.mu.Lock()
	m.stats.Received++
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.RecordSpotReceived(string(spot.Source))
	}

	if err := m.storage.SaveSpot(ctx, spot); err != nil {
		m.logger.WithError(err).Debug("Failed to store spot")
		return
	}

	m.mu.Lock()
	m.stats.Stored++
	m.mu.Unlock()

	if m.Matches(spot) {
		m.mu.Lock()
		m.stats.Matched++
		m.mu.Unlock()

		if m.sink != nil {
			m.sink.SpotMatched(ctx, spot)
		}
	}
}

// Matches applies the watchlist: callsign prefixes and band names. An
// empty watchlist matches nothing, so quiet configurations stay quiet.
func (m *Manager) Matches(spot *models.Spot) bool {
	if len(m.config.WatchCalls) == 0 && len(m.config.WatchBands) == 0 {
		return false
	}

	callMatch := len(m.config.WatchCalls) == 0
	for _, prefix := range m.config.WatchCalls {
		if strings.HasPrefix(spot.DXCall, strings.ToUpper(prefix)) {
			callMatch = true
			break
		}
	}

	bandMatch := len(m.config.WatchBands) == 0
	for _, band := range m.config.WatchBands {
		if strings.EqualFold(spot.Band, band) {
			bandMatch = true
			break
		}
	}

	return callMatch && bandMatch
}

func (m *Manager) recordReconnect(source models.SpotSource) {
	m.mu.Lock()
	m.stats.Reconnects++
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.RecordSpotFeedReconnect(string(source))
	}
}

func (m *Manager) pruneLoop(ctx context.Context) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := m.storage.Cleanup(ctx, m.spotRetention); err != nil {
				m.logger.WithError(err).Debug("Storage cleanup failed")
			}
		case <-ctx.Done():
			return
		}
	}
}

// GetSpots queries stored spots
func (m *Manager) GetSpots(ctx context.Context, filter models.SpotFilter) ([]*models.Spot, error) {
	return m.storage.GetSpots(ctx, filter)
}

// GetStats returns feed statistics
func (m *Manager) GetStats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}
