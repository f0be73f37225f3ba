package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Station: StationConfig{Callsign: "N0CALL", Grid: "FN31pr"},
		Storage: StorageConfig{Type: "sqlite", ConnectionString: "./data/logbook.db"},
		Sync:    SyncConfig{Interval: 15 * time.Minute},
		Server:  ServerConfig{Port: 8073},
	}
}

func TestValidateAcceptsMinimalConfig(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidateRejectsMissingCallsign(t *testing.T) {
	cfg := validConfig()
	cfg.Station.Callsign = ""
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsUnknownStorageType(t *testing.T) {
	cfg := validConfig()
	cfg.Storage.Type = "mongodb"
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsQRZSyncWithoutAPIKey(t *testing.T) {
	cfg := validConfig()
	cfg.Sync.QRZ.Enabled = true
	assert.Error(t, cfg.Validate())

	cfg.Sync.QRZ.APIKey = "ABCD-1234"
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsLoTWWithoutCredentials(t *testing.T) {
	cfg := validConfig()
	cfg.Sync.LoTW.Enabled = true
	cfg.Sync.LoTW.Username = "w1aw"
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsNonPositiveSyncInterval(t *testing.T) {
	cfg := validConfig()
	cfg.Sync.Interval = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsBadServerPort(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = 0
	assert.Error(t, cfg.Validate())

	cfg.Server.Port = 70000
	assert.Error(t, cfg.Validate())
}
