package sync

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
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

func TestParseQRZResponse(t *testing.T) {
	fields, adifText := parseQRZResponse("RESULT=OK&COUNT=2&ADIF=<CALL:4>W1AW<eor> text & more <CALL:5>K1ABC<eor>")

	assert.Equal(t, "OK", fields["RESULT"])
	assert.Equal(t, "2", fields["COUNT"])
	// Everything after ADIF= belongs to the payload, ampersands included
	assert.Contains(t, adifText, "<CALL:4>W1AW")
	assert.Contains(t, adifText, "text & more")
	assert.Contains(t, adifText, "<CALL:5>K1ABC")
}

func TestParseQRZResponseNoADIF(t *testing.T) {
	fields, adifText := parseQRZResponse("RESULT=FAIL&REASON=invalid api key")

	assert.Equal(t, "FAIL", fields["RESULT"])
	assert.Equal(t, "invalid api key", fields["REASON"])
	assert.Empty(t, adifText)
}

func TestParseQRZResponseUnescapesEntities(t *testing.T) {
	_, adifText := parseQRZResponse("RESULT=OK&ADIF=<NAME:13>Smith &amp; Co<eor>")
	assert.Contains(t, adifText, "Smith & Co")
}

func TestDecodeBodyLatin1Fallback(t *testing.T) {
	// 0xE9 alone is invalid UTF-8 but valid Latin-1 for é
	body := []byte{'R', 0xE9, 's', 'u', 'm'}
	decoded := decodeBody(body)
	assert.Equal(t, "Résum", decoded)

	// Valid UTF-8 passes through untouched
	assert.Equal(t, "Résum", decodeBody([]byte("Résum")))
}

func TestFetchFinished(t *testing.T) {
	done, err := fetchFinished(map[string]string{"RESULT": "FAIL", "REASON": "no log entries found"})
	assert.True(t, done)
	assert.NoError(t, err)

	done, err = fetchFinished(map[string]string{"RESULT": "FAIL", "COUNT": "0"})
	assert.True(t, done)
	assert.NoError(t, err)

	done, err = fetchFinished(map[string]string{"RESULT": "FAIL", "REASON": "server exploded", "COUNT": "5"})
	assert.True(t, done)
	assert.Error(t, err)

	done, err = fetchFinished(map[string]string{"RESULT": "OK", "COUNT": "2"})
	assert.False(t, done)
	assert.NoError(t, err)
}

func newSyncTestStorage(t *testing.T) storage.Storage {
	t.Helper()
	store, err := storage.NewStorage(&storage.StorageConfig{
		Type:             "sqlite",
		ConnectionString: filepath.Join(t.TempDir(), "sync.db"),
	})
	require.NoError(t, err)
	require.NoError(t, store.Connect())
	require.NoError(t, store.Migrate())
	t.Cleanup(func() { store.Close() })
	return store
}

// fakeQRZServer speaks just enough of the logbook API for the backend
type fakeQRZServer struct {
	inserted []string
	pages    []string
	page     int
}

func (f *fakeQRZServer) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		switch r.PostFormValue("ACTION") {
		case "STATUS":
			fmt.Fprint(w, "RESULT=OK&CALLSIGN=N0CALL&BOOKID=42&COUNT=10")
		case "INSERT":
			f.inserted = append(f.inserted, r.PostFormValue("ADIF"))
			fmt.Fprintf(w, "RESULT=OK&LOGID=%d", 1000+len(f.inserted))
		case "FETCH":
			if f.page >= len(f.pages) {
				fmt.Fprint(w, "RESULT=FAIL&COUNT=0&REASON=no log entries found")
				return
			}
			fmt.Fprint(w, f.pages[f.page])
			f.page++
		default:
			fmt.Fprint(w, "RESULT=FAIL&REASON=unknown action")
		}
	}
}

func newQRZBackendForTest(t *testing.T, store storage.Storage, endpoint string) *QRZBackend {
	t.Helper()
	syncCfg := &config.SyncConfig{DedupWindow: 15 * time.Minute}
	return NewQRZBackend(&config.QRZSyncConfig{
		Enabled:  true,
		APIKey:   "test-key",
		Endpoint: endpoint,
		PageSize: 2000,
	}, syncCfg, store)
}

func TestQRZSyncUploadsAndMarks(t *testing.T) {
	store := newSyncTestStorage(t)
	ctx := context.Background()

	qso := &models.QSO{
		ID:        utils.GenerateID(),
		Callsign:  "W1AW",
		Band:      "20m",
		Mode:      "SSB",
		Timestamp: time.Date(2025, 6, 14, 18, 30, 0, 0, time.UTC),
	}
	require.NoError(t, store.SaveQSO(ctx, qso))

	fake := &fakeQRZServer{}
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	backend := newQRZBackendForTest(t, store, server.URL)
	report, err := backend.Sync(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Uploaded)
	require.Len(t, fake.inserted, 1)
	assert.Contains(t, fake.inserted[0], "<CALL:4>W1AW")

	got, err := store.GetQSO(ctx, qso.ID)
	require.NoError(t, err)
	assert.True(t, got.SyncedQRZ)
	require.NotNil(t, got.QRZLogID)
	assert.Equal(t, int64(1001), *got.QRZLogID)
}

func TestQRZSyncDownloadsNewEntries(t *testing.T) {
	store := newSyncTestStorage(t)
	ctx := context.Background()

	fake := &fakeQRZServer{
		pages: []string{
			"RESULT=OK&COUNT=2&ADIF=" +
				"<CALL:5>K1ABC<BAND:3>40m<MODE:2>CW<QSO_DATE:8>20250610<TIME_ON:6>120000<APP_QRZLOG_LOGID:3>501<eor>" +
				"<CALL:6>VE3XYZ<BAND:3>20m<MODE:3>SSB<QSO_DATE:8>20250610<TIME_ON:6>121500<APP_QRZLOG_LOGID:3>502<eor>",
		},
	}
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	backend := newQRZBackendForTest(t, store, server.URL)
	report, err := backend.Sync(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Downloaded)

	count, err := store.CountQSOs(ctx, models.QSOFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	// Downloaded contacts are already synced and the cursor points past
	// the highest log id
	backendName := models.BackendQRZ
	unsynced, err := store.GetQSOs(ctx, models.QSOFilter{Unsynced: &backendName})
	require.NoError(t, err)
	assert.Empty(t, unsynced)

	cursor, err := store.GetSyncCursor(ctx, models.BackendQRZ)
	require.NoError(t, err)
	assert.Equal(t, "503", cursor)
}

func TestQRZSyncDownloadMergesExisting(t *testing.T) {
	store := newSyncTestStorage(t)
	ctx := context.Background()

	local := &models.QSO{
		ID:        utils.GenerateID(),
		Callsign:  "K1ABC",
		Band:      "40m",
		Mode:      "CW",
		Timestamp: time.Date(2025, 6, 10, 12, 2, 0, 0, time.UTC),
		SyncedQRZ: true, // already uploaded, should not re-insert
	}
	require.NoError(t, store.SaveQSO(ctx, local))

	fake := &fakeQRZServer{
		pages: []string{
			"RESULT=OK&COUNT=1&ADIF=" +
				"<CALL:5>K1ABC<BAND:3>40m<MODE:2>CW<QSO_DATE:8>20250610<TIME_ON:6>120000<APP_QRZLOG_LOGID:3>777<eor>",
		},
	}
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	backend := newQRZBackendForTest(t, store, server.URL)
	_, err := backend.Sync(ctx)
	require.NoError(t, err)

	// The matching local record absorbed the remote log id
	count, err := store.CountQSOs(ctx, models.QSOFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	got, err := store.GetQSO(ctx, local.ID)
	require.NoError(t, err)
	require.NotNil(t, got.QRZLogID)
	assert.Equal(t, int64(777), *got.QRZLogID)
}

func TestQRZStatusAuthError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "RESULT=AUTH&REASON=subscription required")
	}))
	defer server.Close()

	backend := newQRZBackendForTest(t, newSyncTestStorage(t), server.URL)
	_, err := backend.Status(context.Background())
	require.Error(t, err)
	assert.True(t, utils.IsAppErrorCode(err, utils.ErrCodeAuth))
}

func TestQRZInsertDuplicateTreatedAsSynced(t *testing.T) {
	store := newSyncTestStorage(t)
	ctx := context.Background()

	qso := &models.QSO{
		ID:        utils.GenerateID(),
		Callsign:  "W1AW",
		Band:      "20m",
		Mode:      "SSB",
		Timestamp: time.Date(2025, 6, 14, 18, 30, 0, 0, time.UTC),
	}
	require.NoError(t, store.SaveQSO(ctx, qso))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		switch r.PostFormValue("ACTION") {
		case "STATUS":
			fmt.Fprint(w, "RESULT=OK")
		case "INSERT":
			fmt.Fprint(w, "RESULT=FAIL&REASON=duplicate record")
		case "FETCH":
			fmt.Fprint(w, "RESULT=FAIL&COUNT=0&REASON=no log entries found")
		}
	}))
	defer server.Close()

	backend := newQRZBackendForTest(t, store, server.URL)
	report, err := backend.Sync(ctx)
	require.NoError(t, err)

	assert.Equal(t, 0, report.Uploaded)
	assert.Equal(t, 1, report.Skipped)

	got, err := store.GetQSO(ctx, qso.ID)
	require.NoError(t, err)
	assert.True(t, got.SyncedQRZ)
}
