package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fullduplex/carrierwave/internal/models"
	"github.com/fullduplex/carrierwave/pkg/utils"
)

func newTestStorage(t *testing.T) Storage {
	t.Helper()

	store, err := NewStorage(&StorageConfig{
		Type:             "sqlite",
		ConnectionString: filepath.Join(t.TempDir(), "test.db"),
		MaxConnections:   2,
	})
	require.NoError(t, err)
	require.NoError(t, store.Connect())
	require.NoError(t, store.Migrate())

	t.Cleanup(func() { store.Close() })
	return store
}

func testQSO(call string) *models.QSO {
	return &models.QSO{
		ID:        utils.GenerateID(),
		Callsign:  call,
		Band:      "20m",
		Mode:      "SSB",
		RSTSent:   "59",
		RSTRcvd:   "57",
		Timestamp: time.Date(2025, 6, 14, 18, 30, 0, 0, time.UTC),
	}
}

func TestFactoryRejectsUnknownType(t *testing.T) {
	_, err := NewStorage(&StorageConfig{Type: "mongodb"})
	assert.Error(t, err)

	_, err = NewStorage(nil)
	assert.Error(t, err)
}

func TestQSOCRUD(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	qso := testQSO("W1AW")
	qso.Name = "ARRL HQ"
	qso.GridSquare = "FN31pr"
	require.NoError(t, store.SaveQSO(ctx, qso))

	got, err := store.GetQSO(ctx, qso.ID)
	require.NoError(t, err)
	assert.Equal(t, "W1AW", got.Callsign)
	assert.Equal(t, "ARRL HQ", got.Name)
	assert.Equal(t, "FN31pr", got.GridSquare)
	assert.False(t, got.CreatedAt.IsZero())

	got.Comments = "First contact"
	got.MarkSynced(models.BackendQRZ)
	require.NoError(t, store.UpdateQSO(ctx, got))

	updated, err := store.GetQSO(ctx, qso.ID)
	require.NoError(t, err)
	assert.Equal(t, "First contact", updated.Comments)
	assert.True(t, updated.SyncedQRZ)
	assert.False(t, updated.SyncedPOTA)

	require.NoError(t, store.DeleteQSO(ctx, qso.ID))
	_, err = store.GetQSO(ctx, qso.ID)
	assert.Error(t, err)
}

func TestQSOQRZLogIDRoundTrip(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	qso := testQSO("K1ABC")
	logID := int64(123456789)
	qso.QRZLogID = &logID
	require.NoError(t, store.SaveQSO(ctx, qso))

	got, err := store.GetQSO(ctx, qso.ID)
	require.NoError(t, err)
	require.NotNil(t, got.QRZLogID)
	assert.Equal(t, logID, *got.QRZLogID)

	// Without an upstream id the column stays NULL
	other := testQSO("K2DEF")
	require.NoError(t, store.SaveQSO(ctx, other))
	got, err = store.GetQSO(ctx, other.ID)
	require.NoError(t, err)
	assert.Nil(t, got.QRZLogID)
}

func TestQSOBatchSave(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	var qsos []*models.QSO
	for _, call := range []string{"W1AW", "K1ABC", "VE3XYZ"} {
		qsos = append(qsos, testQSO(call))
	}
	require.NoError(t, store.SaveQSOs(ctx, qsos))

	count, err := store.CountQSOs(ctx, models.QSOFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	// Empty batch is a no-op
	require.NoError(t, store.SaveQSOs(ctx, nil))
}

func TestQSOFilters(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	a := testQSO("W1AW")
	a.Band = "40m"
	a.Mode = "CW"
	a.TheirPark = "US-1211"

	b := testQSO("K1ABC")
	b.SyncedQRZ = true

	c := testQSO("W1AW")
	c.Timestamp = time.Date(2025, 6, 15, 9, 0, 0, 0, time.UTC)

	require.NoError(t, store.SaveQSOs(ctx, []*models.QSO{a, b, c}))

	call := "W1AW"
	got, err := store.GetQSOs(ctx, models.QSOFilter{Callsign: &call})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	// Newest first
	assert.Equal(t, c.ID, got[0].ID)

	band := "40m"
	got, err = store.GetQSOs(ctx, models.QSOFilter{Band: &band})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, a.ID, got[0].ID)

	park := "US-1211"
	got, err = store.GetQSOs(ctx, models.QSOFilter{Park: &park})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, a.ID, got[0].ID)

	backend := models.BackendQRZ
	got, err = store.GetQSOs(ctx, models.QSOFilter{Unsynced: &backend})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	from := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	got, err = store.GetQSOs(ctx, models.QSOFilter{From: &from})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, c.ID, got[0].ID)

	got, err = store.GetQSOs(ctx, models.QSOFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestFindQSOWindow(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	qso := testQSO("W1AW")
	require.NoError(t, store.SaveQSO(ctx, qso))

	// Inside the window
	found, err := store.FindQSO(ctx, "w1aw", "20m", "SSB", qso.Timestamp.Add(5*time.Minute), 15*time.Minute)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, qso.ID, found.ID)

	// Outside the window
	found, err = store.FindQSO(ctx, "W1AW", "20m", "SSB", qso.Timestamp.Add(time.Hour), 15*time.Minute)
	require.NoError(t, err)
	assert.Nil(t, found)

	// Band mismatch
	found, err = store.FindQSO(ctx, "W1AW", "40m", "SSB", qso.Timestamp, 15*time.Minute)
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestSessionLifecycle(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	session := &models.LoggingSession{
		ID:         utils.GenerateID(),
		Name:       "Park activation",
		MyCallsign: "N0CALL",
		MyGrid:     "EM48",
		MyPark:     "US-4321",
		StartedAt:  time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, store.SaveSession(ctx, session))

	qso := testQSO("W1AW")
	qso.SessionID = session.ID
	require.NoError(t, store.SaveQSO(ctx, qso))

	got, err := store.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.True(t, got.Active())
	assert.Equal(t, 1, got.QSOCount)

	active, err := store.GetSessions(ctx, true)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	require.NoError(t, store.CloseSession(ctx, session.ID, time.Now().UTC()))

	got, err = store.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.False(t, got.Active())

	active, err = store.GetSessions(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, active)

	// Closing twice fails: no active session left
	assert.Error(t, store.CloseSession(ctx, session.ID, time.Now().UTC()))

	// Deleting the session detaches its QSOs
	require.NoError(t, store.DeleteSession(ctx, session.ID))
	orphan, err := store.GetQSO(ctx, qso.ID)
	require.NoError(t, err)
	assert.Empty(t, orphan.SessionID)
}

func TestCallsignCache(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	miss, err := store.GetCachedCallsign(ctx, "W1AW")
	require.NoError(t, err)
	assert.Nil(t, miss)

	info := &models.CallsignInfo{
		Callsign: "w1aw",
		Name:     "ARRL HQ",
		Grid:     "FN31pr",
		Country:  "United States",
		State:    "CT",
		Source:   models.SourceQRZ,
	}
	require.NoError(t, store.PutCachedCallsign(ctx, info))

	// Lookup is case-insensitive on the stored key
	hit, err := store.GetCachedCallsign(ctx, "W1AW")
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.Equal(t, "ARRL HQ", hit.Name)
	assert.Equal(t, models.SourceQRZ, hit.Source)
	assert.False(t, hit.FetchedAt.IsZero())

	// Refreshing replaces the record
	info.Name = "Hiram Percy Maxim Memorial Station"
	require.NoError(t, store.PutCachedCallsign(ctx, info))
	hit, err = store.GetCachedCallsign(ctx, "W1AW")
	require.NoError(t, err)
	assert.Equal(t, "Hiram Percy Maxim Memorial Station", hit.Name)
}

func TestSpotsAndPruning(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	now := time.Now().UTC()
	fresh := &models.Spot{
		ID:           utils.GenerateID(),
		Spotter:      "W3LPL",
		DXCall:       "JA1ABC",
		FrequencyKHz: 14025.5,
		Band:         "20m",
		Mode:         "CW",
		SNR:          22,
		WPM:          28,
		Source:       models.SpotSourceRBN,
		SpottedAt:    now,
	}
	stale := &models.Spot{
		ID:           utils.GenerateID(),
		Spotter:      "POTA",
		DXCall:       "K1ABC",
		FrequencyKHz: 7225,
		Band:         "40m",
		Source:       models.SpotSourcePOTA,
		ParkRef:      "US-1211",
		SpottedAt:    now.Add(-2 * time.Hour),
	}
	require.NoError(t, store.SaveSpot(ctx, fresh))
	require.NoError(t, store.SaveSpot(ctx, stale))

	spots, err := store.GetSpots(ctx, models.SpotFilter{})
	require.NoError(t, err)
	assert.Len(t, spots, 2)

	source := models.SpotSourceRBN
	spots, err = store.GetSpots(ctx, models.SpotFilter{Source: &source})
	require.NoError(t, err)
	require.Len(t, spots, 1)
	assert.Equal(t, "JA1ABC", spots[0].DXCall)

	pruned, err := store.PruneSpots(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, pruned)

	spots, err = store.GetSpots(ctx, models.SpotFilter{})
	require.NoError(t, err)
	assert.Len(t, spots, 1)
}

func TestCleanup(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	now := time.Now().UTC()
	stale := &models.Spot{
		ID:           utils.GenerateID(),
		Spotter:      "W3LPL",
		DXCall:       "JA1ABC",
		FrequencyKHz: 14025.5,
		Band:         "20m",
		Mode:         "CW",
		Source:       models.SpotSourceRBN,
		SpottedAt:    now.Add(-48 * time.Hour),
	}
	fresh := &models.Spot{
		ID:           utils.GenerateID(),
		Spotter:      "W3LPL",
		DXCall:       "K1USN",
		FrequencyKHz: 7030,
		Band:         "40m",
		Mode:         "CW",
		Source:       models.SpotSourceRBN,
		SpottedAt:    now,
	}
	require.NoError(t, store.SaveSpot(ctx, stale))
	require.NoError(t, store.SaveSpot(ctx, fresh))

	require.NoError(t, store.LogEvent(ctx, "sync_run", map[string]interface{}{"backend": "qrz"}))

	// Backdate a second entry past the log retention horizon
	sqlite := store.(*SQLiteStorage)
	_, err := sqlite.db.Exec("INSERT INTO logs (type, data, created_at) VALUES (?, ?, ?)",
		"sync_run", "{}", now.AddDate(0, -4, 0))
	require.NoError(t, err)

	require.NoError(t, store.Cleanup(ctx, 24*time.Hour))

	spots, err := store.GetSpots(ctx, models.SpotFilter{})
	require.NoError(t, err)
	require.Len(t, spots, 1)
	assert.Equal(t, "K1USN", spots[0].DXCall)

	entries, err := store.GetLogsByType(ctx, "sync_run", 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSyncCursor(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	cursor, err := store.GetSyncCursor(ctx, models.BackendQRZ)
	require.NoError(t, err)
	assert.Empty(t, cursor)

	require.NoError(t, store.SetSyncCursor(ctx, models.BackendQRZ, "123456790"))
	require.NoError(t, store.SetSyncCursor(ctx, models.BackendLoTW, "2025-06-14"))

	cursor, err = store.GetSyncCursor(ctx, models.BackendQRZ)
	require.NoError(t, err)
	assert.Equal(t, "123456790", cursor)

	// Overwrite advances the checkpoint
	require.NoError(t, store.SetSyncCursor(ctx, models.BackendQRZ, "123456999"))
	cursor, err = store.GetSyncCursor(ctx, models.BackendQRZ)
	require.NoError(t, err)
	assert.Equal(t, "123456999", cursor)

	cursor, err = store.GetSyncCursor(ctx, models.BackendLoTW)
	require.NoError(t, err)
	assert.Equal(t, "2025-06-14", cursor)
}

func TestEventLog(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.LogEvent(ctx, "sync_run", map[string]interface{}{
		"backend":  "qrz",
		"uploaded": 12,
	}))
	require.NoError(t, store.LogEvent(ctx, "import", map[string]interface{}{"records": 40}))

	entries, err := store.GetLogsByType(ctx, "sync_run", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "qrz", entries[0].Data["backend"])
}

func TestStats(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	a := testQSO("W1AW")
	a.SyncedQRZ = true
	b := testQSO("K1ABC")
	require.NoError(t, store.SaveQSOs(ctx, []*models.QSO{a, b}))

	stats, err := store.GetStats()
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalQSOs)
	assert.Equal(t, int64(1), stats.UnsyncedByEach["qrz"])
	assert.Equal(t, int64(2), stats.UnsyncedByEach["pota"])
	require.NotNil(t, stats.OldestQSO)
	require.NotNil(t, stats.LatestQSO)
	assert.Greater(t, stats.DBSizeBytes, int64(0))
}

func TestHealth(t *testing.T) {
	store := newTestStorage(t)

	health := store.GetHealth()
	assert.Equal(t, "sqlite", health.StorageType)
	assert.True(t, health.Healthy)

	require.NoError(t, store.Close())
	health = store.GetHealth()
	assert.False(t, health.Healthy)
}
