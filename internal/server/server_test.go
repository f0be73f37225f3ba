package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fullduplex/carrierwave/internal/config"
	"github.com/fullduplex/carrierwave/internal/models"
	"github.com/fullduplex/carrierwave/internal/storage"
	logsync "github.com/fullduplex/carrierwave/internal/sync"
)

func newTestServer(t *testing.T) (*HTTPServer, *httptest.Server) {
	t.Helper()

	store, err := storage.NewStorage(&storage.StorageConfig{
		Type:             "sqlite",
		ConnectionString: filepath.Join(t.TempDir(), "test.db"),
	})
	require.NoError(t, err)
	require.NoError(t, store.Connect())
	require.NoError(t, store.Migrate())
	t.Cleanup(func() { store.Close() })

	syncSvc := logsync.NewService(&config.SyncConfig{
		DedupWindow: 15 * time.Minute,
	}, &config.StationConfig{Callsign: "N0CALL"}, store, nil)

	srv := NewHTTPServer(&config.ServerConfig{
		EnableHealth: true,
	}, "test", store, nil, syncSvc, nil, nil, nil, nil)

	ts := httptest.NewServer(srv.router)
	t.Cleanup(ts.Close)
	return srv, ts
}

func doJSON(t *testing.T, method, url string, body interface{}, out interface{}) *http.Response {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestQSOLifecycle(t *testing.T) {
	_, ts := newTestServer(t)

	// Create
	var created models.QSO
	resp := doJSON(t, "POST", ts.URL+"/api/v1/qsos", map[string]interface{}{
		"callsign": "w1aw",
		"band":     "20m",
		"mode":     "SSB",
	}, &created)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "W1AW", created.Callsign)
	assert.NotEmpty(t, created.ID)
	assert.False(t, created.Timestamp.IsZero())

	// Get
	var fetched models.QSO
	resp = doJSON(t, "GET", ts.URL+"/api/v1/qsos/"+created.ID, nil, &fetched)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, created.ID, fetched.ID)

	// Update
	fetched.Name = "Hiram"
	var updated models.QSO
	resp = doJSON(t, "PUT", ts.URL+"/api/v1/qsos/"+created.ID, &fetched, &updated)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Hiram", updated.Name)

	// Count
	var count struct {
		Count int64 `json:"count"`
	}
	resp = doJSON(t, "GET", ts.URL+"/api/v1/qsos/count", nil, &count)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(1), count.Count)

	// Delete
	resp = doJSON(t, "DELETE", ts.URL+"/api/v1/qsos/"+created.ID, nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, "GET", ts.URL+"/api/v1/qsos/"+created.ID, nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateQSOValidation(t *testing.T) {
	_, ts := newTestServer(t)

	resp := doJSON(t, "POST", ts.URL+"/api/v1/qsos", map[string]interface{}{
		"callsign": "W1AW",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSearchQSOs(t *testing.T) {
	_, ts := newTestServer(t)

	for i, name := range []string{"Hiram", "Maxim"} {
		resp := doJSON(t, "POST", ts.URL+"/api/v1/qsos", map[string]interface{}{
			"callsign": fmt.Sprintf("K%dABC", i+1),
			"band":     "40m",
			"mode":     "CW",
			"name":     name,
		}, nil)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	var result struct {
		QSOs  []*models.QSO `json:"qsos"`
		Total int           `json:"total"`
	}
	resp := doJSON(t, "GET", ts.URL+"/api/v1/qsos/search?q=Hiram", nil, &result)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 1, result.Total)
	assert.Equal(t, "K1ABC", result.QSOs[0].Callsign)

	// Missing query
	resp = doJSON(t, "GET", ts.URL+"/api/v1/qsos/search", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSessionLifecycle(t *testing.T) {
	_, ts := newTestServer(t)

	var session models.LoggingSession
	resp := doJSON(t, "POST", ts.URL+"/api/v1/sessions", map[string]interface{}{
		"name":        "Park run",
		"my_callsign": "n0call",
		"my_park":     "US-1211",
	}, &session)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "N0CALL", session.MyCallsign)
	assert.True(t, session.Active())

	var closed models.LoggingSession
	resp = doJSON(t, "POST", ts.URL+"/api/v1/sessions/"+session.ID+"/close", nil, &closed)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, closed.Active())

	var list struct {
		Sessions []*models.LoggingSession `json:"sessions"`
	}
	resp = doJSON(t, "GET", ts.URL+"/api/v1/sessions?active=true", nil, &list)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, list.Sessions)
}

func TestImportExport(t *testing.T) {
	_, ts := newTestServer(t)

	adif := "<CALL:4>W1AW<BAND:3>20m<MODE:3>SSB<QSO_DATE:8>20250614<TIME_ON:6>183000<eor>"
	req, err := http.NewRequest("POST", ts.URL+"/api/v1/import", strings.NewReader(adif))
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result logsync.ImportResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, 1, result.Imported)

	exportResp, err := http.Get(ts.URL + "/api/v1/export")
	require.NoError(t, err)
	defer exportResp.Body.Close()
	assert.Equal(t, http.StatusOK, exportResp.StatusCode)

	var buf bytes.Buffer
	_, err = buf.ReadFrom(exportResp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "<CALL:4>W1AW")
}

func TestHealthEndpoints(t *testing.T) {
	_, ts := newTestServer(t)

	var health map[string]interface{}
	resp := doJSON(t, "GET", ts.URL+"/api/v1/health", nil, &health)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", health["status"])

	var detailed map[string]interface{}
	resp = doJSON(t, "GET", ts.URL+"/api/v1/health/detailed", nil, &detailed)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, detailed, "components")
}

func TestOptionalComponentsUnavailable(t *testing.T) {
	_, ts := newTestServer(t)

	for _, path := range []string{
		"/api/v1/lookup/W1AW",
		"/api/v1/spots",
		"/api/v1/conditions/solar",
	} {
		resp := doJSON(t, "GET", ts.URL+path, nil, nil)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode, path)
	}
}

func TestSyncEndpoints(t *testing.T) {
	_, ts := newTestServer(t)

	// No backends enabled
	resp := doJSON(t, "POST", ts.URL+"/api/v1/sync/run", nil, nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	resp = doJSON(t, "POST", ts.URL+"/api/v1/sync/run?backend=qrz", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var status map[string]interface{}
	resp = doJSON(t, "GET", ts.URL+"/api/v1/sync/status", nil, &status)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, status["running"])

	resp = doJSON(t, "GET", ts.URL+"/api/v1/sync/report", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
