package conditions

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fullduplex/carrierwave/internal/config"
	"github.com/fullduplex/carrierwave/internal/models"
)

func newSWPCServer(t *testing.T, fluxBody, kIndexBody string, fluxStatus int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc(fluxProduct, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(fluxStatus)
		w.Write([]byte(fluxBody))
	})
	mux.HandleFunc(kIndexProduct, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(kIndexBody))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

const kIndexBody = `[["time_tag","Kp","a_running","station_count"],
["2025-06-14 15:00:00.000","2.00","8","8"],
["2025-06-14 18:00:00.000","3.33","12","8"]]`

func TestRefresh(t *testing.T) {
	server := newSWPCServer(t,
		`{"Flux":"142","TimeStamp":"2025-06-14 18:00:00"}`,
		kIndexBody, http.StatusOK)

	svc := NewService(&config.ConditionsConfig{Endpoint: server.URL}, nil)
	require.NoError(t, svc.Refresh(context.Background()))

	reading := svc.Current()
	require.NotNil(t, reading)
	assert.Equal(t, 142.0, reading.SolarFluxIndex)
	assert.Equal(t, 3.33, reading.KIndex)
	assert.Equal(t, 12.0, reading.AIndex)
	assert.False(t, reading.Stale(time.Minute))
}

func TestRefreshKeepsLastGoodOnFailure(t *testing.T) {
	server := newSWPCServer(t, `{"Flux":"142"}`, kIndexBody, http.StatusOK)

	svc := NewService(&config.ConditionsConfig{Endpoint: server.URL}, nil)
	require.NoError(t, svc.Refresh(context.Background()))
	good := svc.Current()

	broken := newSWPCServer(t, "oops", kIndexBody, http.StatusInternalServerError)
	svc.config.Endpoint = broken.URL

	err := svc.Refresh(context.Background())
	require.Error(t, err)
	assert.Same(t, good, svc.Current())
}

func TestRefreshBeforeFirstFetch(t *testing.T) {
	svc := NewService(&config.ConditionsConfig{Endpoint: "http://127.0.0.1:1"}, nil)
	assert.Nil(t, svc.Current())
	assert.Error(t, svc.Refresh(context.Background()))
	assert.Nil(t, svc.Current())
}

func TestStaleReading(t *testing.T) {
	reading := &models.SolarConditions{FetchedAt: time.Now().Add(-2 * time.Hour)}
	assert.True(t, reading.Stale(time.Hour))
	assert.False(t, reading.Stale(3*time.Hour))
}
