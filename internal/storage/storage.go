// File: internal/storage/storage.go
package storage

import (
	"context"
	"time"

	"github.com/fullduplex/carrierwave/internal/models"
)

// Storage defines the interface for logbook storage operations
type Storage interface {
	// Connection management
	Connect() error
	Close() error
	Ping() error
	Migrate() error

	// QSO operations
	SaveQSO(ctx context.Context, qso *models.QSO) error
	SaveQSOs(ctx context.Context, qsos []*models.QSO) error
	GetQSO(ctx context.Context, id string) (*models.QSO, error)
	GetQSOs(ctx context.Context, filter models.QSOFilter) ([]*models.QSO, error)
	CountQSOs(ctx context.Context, filter models.QSOFilter) (int64, error)
	UpdateQSO(ctx context.Context, qso *models.QSO) error
	DeleteQSO(ctx context.Context, id string) error

	// FindQSO locates a contact with the same callsign, band and mode whose
	// timestamp falls within the window around t. Used by deduplication and
	// confirmation matching.
	FindQSO(ctx context.Context, callsign, band, mode string, t time.Time, window time.Duration) (*models.QSO, error)

	// Session operations
	SaveSession(ctx context.Context, session *models.LoggingSession) error
	GetSession(ctx context.Context, id string) (*models.LoggingSession, error)
	GetSessions(ctx context.Context, activeOnly bool) ([]*models.LoggingSession, error)
	CloseSession(ctx context.Context, id string, endedAt time.Time) error
	DeleteSession(ctx context.Context, id string) error

	// Callsign cache
	GetCachedCallsign(ctx context.Context, callsign string) (*models.CallsignInfo, error)
	PutCachedCallsign(ctx context.Context, info *models.CallsignInfo) error

	// Spot operations
	SaveSpot(ctx context.Context, spot *models.Spot) error
	GetSpots(ctx context.Context, filter models.SpotFilter) ([]*models.Spot, error)
	PruneSpots(ctx context.Context, olderThan time.Time) (int, error)

	// Sync checkpoint per backend
	GetSyncCursor(ctx context.Context, backend models.SyncBackend) (string, error)
	SetSyncCursor(ctx context.Context, backend models.SyncBackend, cursor string) error

	// System log
	LogEvent(ctx context.Context, eventType string, data map[string]interface{}) error
	GetLogsByType(ctx context.Context, eventType string, limit int) ([]*models.LogEntry, error)

	// Statistics and monitoring
	GetStats() (*StorageStats, error)
	GetHealth() *StorageHealth

	// Maintenance
	Cleanup(ctx context.Context, spotRetention time.Duration) error
}

// StorageStats provides storage statistics
type StorageStats struct {
	TotalQSOs      int64      `json:"total_qsos"`
	TotalSessions  int64      `json:"total_sessions"`
	TotalSpots     int64      `json:"total_spots"`
	CachedCalls    int64      `json:"cached_callsigns"`
	OldestQSO      *time.Time `json:"oldest_qso,omitempty"`
	LatestQSO      *time.Time `json:"latest_qso,omitempty"`
	DBSizeBytes    int64      `json:"db_size_bytes"`
	UnsyncedByEach map[string]int64 `json:"unsynced_by_backend,omitempty"`
}

// StorageHealth describes storage health for the health endpoint
type StorageHealth struct {
	StorageType string            `json:"storage_type"`
	Healthy     bool              `json:"healthy"`
	Details     map[string]string `json:"details,omitempty"`
	LastPing    time.Time         `json:"last_ping"`
}

// StorageConfig holds storage configuration
type StorageConfig struct {
	Type             string        `json:"type"`
	ConnectionString string        `json:"connection_string"`
	MaxConnections   int           `json:"max_connections"`
	MaxIdleTime      time.Duration `json:"max_idle_time"`
}
