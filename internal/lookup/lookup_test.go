package lookup

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fullduplex/carrierwave/internal/config"
	"github.com/fullduplex/carrierwave/internal/models"
	"github.com/fullduplex/carrierwave/internal/storage"
	"github.com/fullduplex/carrierwave/pkg/utils"
)

type fakeProvider struct {
	name    models.LookupSource
	info    *models.CallsignInfo
	err     error
	calls   int
	latency time.Duration
}

func (f *fakeProvider) Name() models.LookupSource { return f.name }

func (f *fakeProvider) Lookup(ctx context.Context, callsign string) (*models.CallsignInfo, error) {
	f.calls++
	if f.latency > 0 {
		select {
		case <-time.After(f.latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	info := *f.info
	info.Callsign = callsign
	return &info, nil
}

func newTestService(t *testing.T, providers ...Provider) *Service {
	t.Helper()

	store, err := storage.NewStorage(&storage.StorageConfig{
		Type:             "sqlite",
		ConnectionString: filepath.Join(t.TempDir(), "lookup.db"),
	})
	require.NoError(t, err)
	require.NoError(t, store.Connect())
	require.NoError(t, store.Migrate())
	t.Cleanup(func() { store.Close() })

	svc := NewService(&config.LookupConfig{
		CacheTTL:       time.Hour,
		RequestTimeout: time.Second,
	}, store, nil)
	svc.providers = providers
	return svc
}

func TestLookupMergesByPrecedence(t *testing.T) {
	qrz := &fakeProvider{
		name: models.SourceQRZ,
		info: &models.CallsignInfo{Name: "Hiram Maxim", Country: "United States", Source: models.SourceQRZ},
	}
	hamdb := &fakeProvider{
		name: models.SourceHamDB,
		info: &models.CallsignInfo{Name: "H. P. Maxim", Grid: "FN31pr", State: "CT", Source: models.SourceHamDB},
	}
	svc := newTestService(t, qrz, hamdb)

	info, err := svc.Lookup(context.Background(), "W1AW")
	require.NoError(t, err)

	// QRZ fields win, HamDB fills the gaps
	assert.Equal(t, "Hiram Maxim", info.Name)
	assert.Equal(t, "FN31pr", info.Grid)
	assert.Equal(t, "CT", info.State)
	assert.Equal(t, "W1AW", info.Callsign)
	assert.Equal(t, 1, qrz.calls)
	assert.Equal(t, 1, hamdb.calls)
}

func TestLookupServesFromCache(t *testing.T) {
	provider := &fakeProvider{
		name: models.SourceQRZ,
		info: &models.CallsignInfo{Name: "Test Op", Source: models.SourceQRZ},
	}
	svc := newTestService(t, provider)
	ctx := context.Background()

	_, err := svc.Lookup(ctx, "W1AW")
	require.NoError(t, err)

	info, err := svc.Lookup(ctx, "W1AW")
	require.NoError(t, err)
	assert.Equal(t, "Test Op", info.Name)
	assert.Equal(t, 1, provider.calls, "second lookup must hit the cache")

	stats := svc.GetStats()
	assert.Equal(t, int64(2), stats.Requests)
	assert.Equal(t, int64(1), stats.CacheHits)
}

func TestRefreshBypassesCache(t *testing.T) {
	provider := &fakeProvider{
		name: models.SourceQRZ,
		info: &models.CallsignInfo{Name: "Test Op", Source: models.SourceQRZ},
	}
	svc := newTestService(t, provider)
	ctx := context.Background()

	_, err := svc.Lookup(ctx, "W1AW")
	require.NoError(t, err)

	_, err = svc.Refresh(ctx, "W1AW")
	require.NoError(t, err)
	assert.Equal(t, 2, provider.calls)
}

func TestLookupStripsPortableDesignators(t *testing.T) {
	provider := &fakeProvider{
		name: models.SourceQRZ,
		info: &models.CallsignInfo{Name: "Test Op", Source: models.SourceQRZ},
	}
	svc := newTestService(t, provider)

	info, err := svc.Lookup(context.Background(), "w1aw/p")
	require.NoError(t, err)
	assert.Equal(t, "W1AW", info.Callsign)
}

func TestLookupSurvivesOneProviderFailure(t *testing.T) {
	qrz := &fakeProvider{
		name: models.SourceQRZ,
		err:  utils.NewAppError(utils.ErrCodeConnection, "dial failed"),
	}
	hamdb := &fakeProvider{
		name: models.SourceHamDB,
		info: &models.CallsignInfo{Name: "Backup Op", Source: models.SourceHamDB},
	}
	svc := newTestService(t, qrz, hamdb)

	info, err := svc.Lookup(context.Background(), "W1AW")
	require.NoError(t, err)
	assert.Equal(t, "Backup Op", info.Name)
}

func TestLookupNotFound(t *testing.T) {
	provider := &fakeProvider{
		name: models.SourceQRZ,
		err:  utils.NewAppError(utils.ErrCodeNotFound, "Callsign not found"),
	}
	svc := newTestService(t, provider)

	_, err := svc.Lookup(context.Background(), "W1AW")
	require.Error(t, err)
	assert.True(t, utils.IsAppErrorCode(err, utils.ErrCodeNotFound))

	stats := svc.GetStats()
	assert.Equal(t, int64(1), stats.Misses)
}

func TestLookupRejectsInvalidCallsign(t *testing.T) {
	svc := newTestService(t, &fakeProvider{name: models.SourceQRZ})

	_, err := svc.Lookup(context.Background(), "NOT A CALL")
	require.Error(t, err)
	assert.True(t, utils.IsAppErrorCode(err, utils.ErrCodeValidation))
}

func TestLookupNoProviders(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Lookup(context.Background(), "W1AW")
	require.Error(t, err)
	assert.True(t, utils.IsAppErrorCode(err, utils.ErrCodeConfiguration))
}

func TestLookupDerivesCoordinatesFromGrid(t *testing.T) {
	svc := newTestService(t, &fakeProvider{
		name: models.SourceHamDB,
		info: &models.CallsignInfo{Grid: "FN31pr", Source: models.SourceHamDB},
	})

	info, err := svc.Lookup(context.Background(), "W1AW")
	require.NoError(t, err)

	// Square center of FN31pr
	assert.InDelta(t, 41.73, info.Latitude, 0.05)
	assert.InDelta(t, -72.71, info.Longitude, 0.05)
}
