package sync

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fullduplex/carrierwave/internal/config"
	"github.com/fullduplex/carrierwave/internal/models"
	"github.com/fullduplex/carrierwave/pkg/utils"
)

func makeQSO(call, band, mode string, ts time.Time) *models.QSO {
	return &models.QSO{
		ID:        utils.GenerateID(),
		Callsign:  call,
		Band:      band,
		Mode:      mode,
		Timestamp: ts,
	}
}

func TestFindDuplicates(t *testing.T) {
	base := time.Date(2025, 6, 14, 18, 0, 0, 0, time.UTC)

	dup1 := makeQSO("W1AW", "20m", "SSB", base)
	dup2 := makeQSO("w1aw", "20M", "ssb", base.Add(5*time.Minute))
	farApart := makeQSO("W1AW", "20m", "SSB", base.Add(2*time.Hour))
	otherBand := makeQSO("W1AW", "40m", "SSB", base)
	otherCall := makeQSO("K1ABC", "20m", "SSB", base)

	groups := FindDuplicates([]*models.QSO{farApart, dup2, dup1, otherBand, otherCall}, 15*time.Minute)

	require.Len(t, groups, 1)
	require.Len(t, groups[0], 2)
	// Oldest first
	assert.Equal(t, dup1.ID, groups[0][0].ID)
	assert.Equal(t, dup2.ID, groups[0][1].ID)
}

func TestFindDuplicatesChainsWithinWindow(t *testing.T) {
	base := time.Date(2025, 6, 14, 18, 0, 0, 0, time.UTC)

	// Each neighbor is 10 minutes apart; the chain spans 20 minutes
	a := makeQSO("W1AW", "20m", "SSB", base)
	b := makeQSO("W1AW", "20m", "SSB", base.Add(10*time.Minute))
	c := makeQSO("W1AW", "20m", "SSB", base.Add(20*time.Minute))

	groups := FindDuplicates([]*models.QSO{c, a, b}, 15*time.Minute)
	require.Len(t, groups, 1)
	assert.Len(t, groups[0], 3)
}

func TestMergeGroup(t *testing.T) {
	base := time.Date(2025, 6, 14, 18, 0, 0, 0, time.UTC)

	first := makeQSO("W1AW", "20m", "SSB", base)
	first.RSTSent = "59"
	first.SyncedQRZ = true

	second := makeQSO("W1AW", "20m", "SSB", base.Add(3*time.Minute))
	second.Name = "Hiram"
	second.GridSquare = "FN31pr"
	second.SyncedPOTA = true
	logID := int64(987)
	second.QRZLogID = &logID

	merged := MergeGroup(DuplicateGroup{first, second})

	assert.Equal(t, first.ID, merged.ID)
	assert.Equal(t, base, merged.Timestamp)
	assert.Equal(t, "59", merged.RSTSent)
	assert.Equal(t, "Hiram", merged.Name)
	assert.Equal(t, "FN31pr", merged.GridSquare)
	assert.True(t, merged.SyncedQRZ)
	assert.True(t, merged.SyncedPOTA)
	require.NotNil(t, merged.QRZLogID)
	assert.Equal(t, int64(987), *merged.QRZLogID)
}

func TestClassifyDuplicate(t *testing.T) {
	base := time.Date(2025, 6, 14, 18, 0, 0, 0, time.UTC)

	park := func(call, band, mode string, ts time.Time) *models.QSO {
		q := makeQSO(call, band, mode, ts)
		q.MyPark = "US-1211"
		return q
	}

	existing := []*models.QSO{
		park("W1AW", "20m", "SSB", base),
	}

	// Same band and mode, same day, same park
	assert.Equal(t, ClassDuplicate,
		ClassifyDuplicate(park("W1AW", "20m", "SSB", base.Add(time.Hour)), existing))

	// Same mode, different band
	assert.Equal(t, ClassNewBand,
		ClassifyDuplicate(park("W1AW", "40m", "SSB", base.Add(time.Hour)), existing))

	// Different mode entirely
	assert.Equal(t, ClassNew,
		ClassifyDuplicate(park("W1AW", "20m", "CW", base.Add(time.Hour)), existing))

	// Next UTC day resets the slate
	assert.Equal(t, ClassNew,
		ClassifyDuplicate(park("W1AW", "20m", "SSB", base.Add(24*time.Hour)), existing))

	// Different park is unrelated
	other := park("W1AW", "20m", "SSB", base.Add(time.Hour))
	other.MyPark = "US-9999"
	assert.Equal(t, ClassNew, ClassifyDuplicate(other, existing))

	// Different callsign is unrelated
	assert.Equal(t, ClassNew,
		ClassifyDuplicate(park("K1ABC", "20m", "SSB", base.Add(time.Hour)), existing))
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	store := newSyncTestStorage(t)
	return NewService(&config.SyncConfig{
		DedupWindow: 15 * time.Minute,
	}, &config.StationConfig{Callsign: "N0CALL"}, store, nil)
}

func TestServiceDeduplicate(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 14, 18, 0, 0, 0, time.UTC)

	keeper := makeQSO("W1AW", "20m", "SSB", base)
	dup := makeQSO("W1AW", "20m", "SSB", base.Add(2*time.Minute))
	dup.Name = "Hiram"
	unrelated := makeQSO("K1ABC", "40m", "CW", base)

	require.NoError(t, svc.storage.SaveQSOs(ctx, []*models.QSO{keeper, dup, unrelated}))

	removed, err := svc.Deduplicate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	count, err := svc.storage.CountQSOs(ctx, models.QSOFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	merged, err := svc.storage.GetQSO(ctx, keeper.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hiram", merged.Name)
}

func TestImportADIFSkipsDuplicates(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	existing := makeQSO("W1AW", "20m", "SSB", time.Date(2025, 6, 14, 18, 30, 0, 0, time.UTC))
	require.NoError(t, svc.storage.SaveQSO(ctx, existing))

	input := strings.Join([]string{
		"<CALL:4>W1AW<BAND:3>20m<MODE:3>SSB<QSO_DATE:8>20250614<TIME_ON:6>183200<eor>", // dup of existing
		"<CALL:5>K1ABC<BAND:3>40m<MODE:2>CW<QSO_DATE:8>20250614<TIME_ON:6>190000<eor>", // new
		"<BAND:3>20m<MODE:3>SSB<eor>", // missing CALL
	}, "\n")

	result, err := svc.ImportADIF(ctx, strings.NewReader(input), "")
	require.NoError(t, err)

	assert.Equal(t, 1, result.Imported)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 1, result.Invalid)

	count, err := svc.storage.CountQSOs(ctx, models.QSOFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestExportADIFRoundTrip(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	qso := makeQSO("W1AW", "20m", "SSB", time.Date(2025, 6, 14, 18, 30, 0, 0, time.UTC))
	qso.MyPark = "US-1211"
	require.NoError(t, svc.storage.SaveQSO(ctx, qso))

	var buf bytes.Buffer
	n, err := svc.ExportADIF(ctx, &buf, models.QSOFilter{}, "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	out := buf.String()
	assert.Contains(t, out, "<eoh>")
	assert.Contains(t, out, "<CALL:4>W1AW")
	assert.Contains(t, out, "<MY_SIG_INFO:7>US-1211")

	// Importing the export back is a no-op thanks to dedup
	result, err := svc.ImportADIF(ctx, strings.NewReader(out), "")
	require.NoError(t, err)
	assert.Equal(t, 0, result.Imported)
	assert.Equal(t, 1, result.Skipped)
}
