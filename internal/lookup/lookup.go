// File: internal/lookup/lookup.go
// Package lookup resolves callsigns to operator details through the
// QRZ XML callbook and HamDB, with a persistent cache in front.
package lookup

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/fullduplex/carrierwave/internal/config"
	"github.com/fullduplex/carrierwave/internal/locator"
	"github.com/fullduplex/carrierwave/internal/metrics"
	"github.com/fullduplex/carrierwave/internal/models"
	"github.com/fullduplex/carrierwave/internal/storage"
	"github.com/fullduplex/carrierwave/pkg/utils"
)

// Provider is a single callbook source
type Provider interface {
	Name() models.LookupSource
	Lookup(ctx context.Context, callsign string) (*models.CallsignInfo, error)
}

// Service coordinates providers and the cache. Providers are queried
// concurrently and merged by precedence: QRZ first, then HamDB.
type Service struct {
	config    *config.LookupConfig
	storage   storage.Storage
	providers []Provider
	metrics   *metrics.PrometheusMetrics
	logger    *logrus.Entry

	mu    sync.RWMutex
	stats Stats
}

// Stats tracks lookup activity
type Stats struct {
	Requests  int64 `json:"requests"`
	CacheHits int64 `json:"cache_hits"`
	Misses    int64 `json:"misses"`
	Errors    int64 `json:"errors"`
}

// NewService creates the lookup service with the configured providers
func NewService(cfg *config.LookupConfig, store storage.Storage, m *metrics.PrometheusMetrics) *Service {
	s := &Service{
		config:  cfg,
		storage: store,
		metrics: m,
		logger:  logrus.WithField("component", "lookup"),
	}

	// Precedence order: QRZ wins over HamDB for overlapping fields
	if cfg.QRZ.Enabled {
		s.providers = append(s.providers, NewQRZClient(&cfg.QRZ, cfg.RequestTimeout))
	}
	if cfg.HamDB.Enabled {
		s.providers = append(s.providers, NewHamDBClient(&cfg.HamDB, cfg.RequestTimeout))
	}

	return s
}

// Lookup resolves a callsign, serving from cache when the entry is fresh.
// Portable designators are stripped for the callbook query, so P/W1AW/M
// resolves through W1AW.
func (s *Service) Lookup(ctx context.Context, callsign string) (*models.CallsignInfo, error) {
	return s.lookup(ctx, callsign, false)
}

// Refresh resolves a callsign bypassing the cache
func (s *Service) Refresh(ctx context.Context, callsign string) (*models.CallsignInfo, error) {
	return s.lookup(ctx, callsign, true)
}

func (s *Service) lookup(ctx context.Context, callsign string, force bool) (*models.CallsignInfo, error) {
	normalized := utils.NormalizeCallsign(callsign)
	if !utils.IsValidCallsign(utils.BaseCallsign(normalized)) {
		return nil, utils.NewAppError(utils.ErrCodeValidation, "Invalid callsign", callsign)
	}
	base := utils.BaseCallsign(normalized)

	s.mu.Lock()
	s.stats.Requests++
	s.mu.Unlock()

	if !force {
		cached, err := s.storage.GetCachedCallsign(ctx, base)
		if err != nil {
			s.logger.WithError(err).Warn("Callsign cache read failed")
		} else if cached != nil && time.Since(cached.FetchedAt) < s.config.CacheTTL {
			s.mu.Lock()
			s.stats.CacheHits++
			s.mu.Unlock()
			if s.metrics != nil {
				s.metrics.RecordLookupCacheHit()
			}
			return cached, nil
		}
	}

	info, err := s.queryProviders(ctx, base)
	if err != nil {
		s.mu.Lock()
		if utils.IsAppErrorCode(err, utils.ErrCodeNotFound) {
			s.stats.Misses++
		} else {
			s.stats.Errors++
		}
		s.mu.Unlock()
		return nil, err
	}

	if err := s.storage.PutCachedCallsign(ctx, info); err != nil {
		s.logger.WithError(err).Warn("Callsign cache write failed")
	}
	return info, nil
}

// queryProviders fans out to all providers concurrently and merges the
// responses in precedence order.
func (s *Service) queryProviders(ctx context.Context, callsign string) (*models.CallsignInfo, error) {
	if len(s.providers) == 0 {
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "No lookup providers enabled", "")
	}

	results := make([]*models.CallsignInfo, len(s.providers))
	errs := make([]error, len(s.providers))

	g, gctx := errgroup.WithContext(ctx)
	for i, provider := range s.providers {
		g.Go(func() error {
			start := time.Now()
			info, err := provider.Lookup(gctx, callsign)
			results[i] = info
			errs[i] = err

			if s.metrics != nil {
				status := "ok"
				if err != nil {
					status = "error"
					if utils.IsAppErrorCode(err, utils.ErrCodeNotFound) {
						status = "not_found"
					}
				}
				s.metrics.RecordLookup(string(provider.Name()), status, time.Since(start))
			}
			// Provider failures must not cancel the sibling queries
			return nil
		})
	}
	g.Wait()

	var merged *models.CallsignInfo
	for i := range s.providers {
		if errs[i] != nil {
			if !utils.IsAppErrorCode(errs[i], utils.ErrCodeNotFound) {
				s.logger.WithError(errs[i]).WithField("provider", s.providers[i].Name()).
					Debug("Provider lookup failed")
			}
			continue
		}
		if merged == nil {
			merged = results[i]
		} else {
			merged.MergeFrom(results[i])
		}
	}

	if merged == nil {
		// Prefer reporting a hard provider error over a plain miss
		for _, err := range errs {
			if err != nil && !utils.IsAppErrorCode(err, utils.ErrCodeNotFound) {
				return nil, err
			}
		}
		return nil, utils.NewAppError(utils.ErrCodeNotFound, "Callsign not found", callsign)
	}

	merged.Callsign = strings.ToUpper(callsign)

	// HamDB returns a grid without coordinates; derive the square
	// center so distance and mapping work either way
	if merged.Latitude == 0 && merged.Longitude == 0 && locator.IsValid(merged.Grid) {
		if lat, lon, err := locator.Decode(merged.Grid); err == nil {
			merged.Latitude = lat
			merged.Longitude = lon
		}
	}

	return merged, nil
}

// GetStats returns lookup statistics
func (s *Service) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// ProviderCount reports how many providers are enabled
func (s *Service) ProviderCount() int {
	return len(s.providers)
}
