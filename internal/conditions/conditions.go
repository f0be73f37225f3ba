// File: internal/conditions/conditions.go
// Package conditions fetches space-weather indices from NOAA SWPC and
// caches the latest reading for the API and propagation hints.
package conditions

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fullduplex/carrierwave/internal/config"
	"github.com/fullduplex/carrierwave/internal/metrics"
	"github.com/fullduplex/carrierwave/internal/models"
	"github.com/fullduplex/carrierwave/pkg/utils"
)

const (
	fluxProduct   = "/products/summary/10cm-flux.json"
	kIndexProduct = "/products/noaa-planetary-k-index.json"
)

// Service periodically refreshes solar conditions and serves the cached
// reading. A failed refresh keeps the previous value.
type Service struct {
	config     *config.ConditionsConfig
	metrics    *metrics.PrometheusMetrics
	httpClient *http.Client
	logger     *logrus.Entry

	mu      sync.RWMutex
	current *models.SolarConditions
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewService creates the conditions service
func NewService(cfg *config.ConditionsConfig, m *metrics.PrometheusMetrics) *Service {
	return &Service{
		config:     cfg,
		metrics:    m,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logrus.WithField("component", "conditions"),
	}
}

// Start fetches once and then refreshes on the configured interval
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return nil
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	interval := s.config.RefreshInterval
	if interval <= 0 {
		interval = 30 * time.Minute
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			if err := s.Refresh(ctx); err != nil {
				s.logger.WithError(err).Warn("Solar conditions refresh failed")
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()

	s.logger.WithField("interval", interval).Info("Conditions service started")
	return nil
}

// Stop halts the refresh loop
func (s *Service) Stop() error {
	s.mu.Lock()
	if s.cancel == nil {
		s.mu.Unlock()
		return nil
	}
	s.cancel()
	s.cancel = nil
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("Conditions service stopped")
	return nil
}

// IsRunning reports whether the refresh loop is active
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cancel != nil
}

// Current returns the last successful reading, or nil before the first one
func (s *Service) Current() *models.SolarConditions {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Refresh fetches both SWPC products and replaces the cached reading.
// Either product failing leaves the cache untouched.
func (s *Service) Refresh(ctx context.Context) error {
	sfi, err := s.fetchFlux(ctx)
	if err != nil {
		return err
	}

	aIndex, kIndex, err := s.fetchKIndex(ctx)
	if err != nil {
		return err
	}

	reading := &models.SolarConditions{
		SolarFluxIndex: sfi,
		AIndex:         aIndex,
		KIndex:         kIndex,
		FetchedAt:      time.Now().UTC(),
	}

	s.mu.Lock()
	s.current = reading
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.UpdateSolarConditions(sfi, aIndex, kIndex)
	}

	s.logger.WithFields(logrus.Fields{
		"sfi": sfi,
		"a":   aIndex,
		"k":   kIndex,
	}).Debug("Solar conditions updated")
	return nil
}

// fluxSummary mirrors /products/summary/10cm-flux.json
type fluxSummary struct {
	Flux string `json:"Flux"`
	Time string `json:"TimeStamp"`
}

func (s *Service) fetchFlux(ctx context.Context) (float64, error) {
	var summary fluxSummary
	if err := s.getJSON(ctx, fluxProduct, &summary); err != nil {
		return 0, err
	}

	sfi, err := strconv.ParseFloat(summary.Flux, 64)
	if err != nil {
		return 0, utils.NewAppError(utils.ErrCodeParse, "Unparseable solar flux value", summary.Flux)
	}
	return sfi, nil
}

// fetchKIndex reads the planetary K-index product, a row-oriented table
// whose columns are time_tag, Kp, a_running and station_count. The last
// row is the most recent reading.
func (s *Service) fetchKIndex(ctx context.Context) (aIndex, kIndex float64, err error) {
	var rows [][]string
	if err := s.getJSON(ctx, kIndexProduct, &rows); err != nil {
		return 0, 0, err
	}

	// First row is the header
	if len(rows) < 2 {
		return 0, 0, utils.NewAppError(utils.ErrCodeParse, "Empty K-index product")
	}

	last := rows[len(rows)-1]
	if len(last) < 3 {
		return 0, 0, utils.NewAppError(utils.ErrCodeParse, "Short K-index row")
	}

	kIndex, err = strconv.ParseFloat(last[1], 64)
	if err != nil {
		return 0, 0, utils.NewAppError(utils.ErrCodeParse, "Unparseable K-index value", last[1])
	}
	aIndex, err = strconv.ParseFloat(last[2], 64)
	if err != nil {
		return 0, 0, utils.NewAppError(utils.ErrCodeParse, "Unparseable A-index value", last[2])
	}
	return aIndex, kIndex, nil
}

func (s *Service) getJSON(ctx context.Context, product string, out interface{}) error {
	endpoint := strings.TrimRight(s.config.Endpoint, "/") + product
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeInternal, "Failed to build SWPC request", err.Error())
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeConnection, "SWPC request failed", err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return utils.NewAppError(utils.ErrCodeExternal, "SWPC returned unexpected status",
			fmt.Sprintf("HTTP %d for %s", resp.StatusCode, product))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return utils.NewAppError(utils.ErrCodeParse, "Failed to parse SWPC product", err.Error())
	}
	return nil
}
