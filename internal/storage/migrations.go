package storage

import (
	"time"
)

// Migration represents a database migration
type Migration struct {
	ID          int       `db:"id"`
	Version     string    `db:"version"`
	Description string    `db:"description"`
	SQL         string    `db:"sql"`
	AppliedAt   time.Time `db:"applied_at"`
}

// GetSQLiteMigrations returns SQLite migration scripts
func GetSQLiteMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create qsos table",
			SQL: `
				CREATE TABLE IF NOT EXISTS qsos (
					id TEXT PRIMARY KEY,
					session_id TEXT NOT NULL DEFAULT '',
					callsign TEXT NOT NULL,
					band TEXT NOT NULL,
					mode TEXT NOT NULL,
					frequency_khz REAL NOT NULL DEFAULT 0,
					rst_sent TEXT NOT NULL DEFAULT '',
					rst_rcvd TEXT NOT NULL DEFAULT '',
					timestamp DATETIME NOT NULL,
					name TEXT NOT NULL DEFAULT '',
					grid_square TEXT NOT NULL DEFAULT '',
					qth TEXT NOT NULL DEFAULT '',
					state TEXT NOT NULL DEFAULT '',
					country TEXT NOT NULL DEFAULT '',
					power_w INTEGER NOT NULL DEFAULT 0,
					their_park TEXT NOT NULL DEFAULT '',
					my_park TEXT NOT NULL DEFAULT '',
					my_grid TEXT NOT NULL DEFAULT '',
					comments TEXT NOT NULL DEFAULT '',
					qrz_log_id INTEGER,
					synced_qrz BOOLEAN DEFAULT FALSE,
					synced_pota BOOLEAN DEFAULT FALSE,
					synced_hamrs BOOLEAN DEFAULT FALSE,
					synced_lotw BOOLEAN DEFAULT FALSE,
					synced_lofi BOOLEAN DEFAULT FALSE,
					lotw_confirmed BOOLEAN DEFAULT FALSE,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				);

				CREATE INDEX IF NOT EXISTS idx_qsos_callsign ON qsos(callsign);
				CREATE INDEX IF NOT EXISTS idx_qsos_timestamp ON qsos(timestamp);
				CREATE INDEX IF NOT EXISTS idx_qsos_session ON qsos(session_id);
				CREATE INDEX IF NOT EXISTS idx_qsos_band_mode ON qsos(band, mode);
				CREATE UNIQUE INDEX IF NOT EXISTS idx_qsos_qrz_log_id ON qsos(qrz_log_id) WHERE qrz_log_id IS NOT NULL;
			`,
		},
		{
			Version:     "002",
			Description: "Create sessions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS sessions (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					my_callsign TEXT NOT NULL,
					my_grid TEXT NOT NULL DEFAULT '',
					my_park TEXT NOT NULL DEFAULT '',
					started_at DATETIME NOT NULL,
					ended_at DATETIME
				);

				CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at);
			`,
		},
		{
			Version:     "003",
			Description: "Create callsign_cache table",
			SQL: `
				CREATE TABLE IF NOT EXISTS callsign_cache (
					callsign TEXT PRIMARY KEY,
					name TEXT NOT NULL DEFAULT '',
					grid TEXT NOT NULL DEFAULT '',
					country TEXT NOT NULL DEFAULT '',
					state TEXT NOT NULL DEFAULT '',
					city TEXT NOT NULL DEFAULT '',
					license_class TEXT NOT NULL DEFAULT '',
					latitude REAL NOT NULL DEFAULT 0,
					longitude REAL NOT NULL DEFAULT 0,
					source TEXT NOT NULL,
					fetched_at DATETIME NOT NULL
				);
			`,
		},
		{
			Version:     "004",
			Description: "Create spots table",
			SQL: `
				CREATE TABLE IF NOT EXISTS spots (
					id TEXT PRIMARY KEY,
					spotter TEXT NOT NULL,
					dx_call TEXT NOT NULL,
					frequency_khz REAL NOT NULL,
					band TEXT NOT NULL,
					mode TEXT NOT NULL DEFAULT '',
					snr INTEGER NOT NULL DEFAULT 0,
					wpm INTEGER NOT NULL DEFAULT 0,
					source TEXT NOT NULL,
					park_ref TEXT NOT NULL DEFAULT '',
					comment TEXT NOT NULL DEFAULT '',
					spotted_at DATETIME NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_spots_dx_call ON spots(dx_call);
				CREATE INDEX IF NOT EXISTS idx_spots_spotted_at ON spots(spotted_at);
				CREATE INDEX IF NOT EXISTS idx_spots_band ON spots(band);
			`,
		},
		{
			Version:     "005",
			Description: "Create sync_state table",
			SQL: `
				CREATE TABLE IF NOT EXISTS sync_state (
					backend TEXT PRIMARY KEY,
					checkpoint TEXT NOT NULL DEFAULT '',
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				);
			`,
		},
		{
			Version:     "006",
			Description: "Create logs table",
			SQL: `
				CREATE TABLE IF NOT EXISTS logs (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					type TEXT NOT NULL,
					data TEXT NOT NULL, -- JSON
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				);

				CREATE INDEX IF NOT EXISTS idx_logs_type ON logs(type);
			`,
		},
	}
}

// GetPostgresMigrations returns PostgreSQL migration scripts
func GetPostgresMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create qsos table",
			SQL: `
				CREATE TABLE IF NOT EXISTS qsos (
					id TEXT PRIMARY KEY,
					session_id TEXT NOT NULL DEFAULT '',
					callsign TEXT NOT NULL,
					band TEXT NOT NULL,
					mode TEXT NOT NULL,
					frequency_khz DOUBLE PRECISION NOT NULL DEFAULT 0,
					rst_sent TEXT NOT NULL DEFAULT '',
					rst_rcvd TEXT NOT NULL DEFAULT '',
					timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
					name TEXT NOT NULL DEFAULT '',
					grid_square TEXT NOT NULL DEFAULT '',
					qth TEXT NOT NULL DEFAULT '',
					state TEXT NOT NULL DEFAULT '',
					country TEXT NOT NULL DEFAULT '',
					power_w INTEGER NOT NULL DEFAULT 0,
					their_park TEXT NOT NULL DEFAULT '',
					my_park TEXT NOT NULL DEFAULT '',
					my_grid TEXT NOT NULL DEFAULT '',
					comments TEXT NOT NULL DEFAULT '',
					qrz_log_id BIGINT,
					synced_qrz BOOLEAN DEFAULT FALSE,
					synced_pota BOOLEAN DEFAULT FALSE,
					synced_hamrs BOOLEAN DEFAULT FALSE,
					synced_lotw BOOLEAN DEFAULT FALSE,
					synced_lofi BOOLEAN DEFAULT FALSE,
					lotw_confirmed BOOLEAN DEFAULT FALSE,
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
					updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_qsos_callsign ON qsos(callsign);
				CREATE INDEX IF NOT EXISTS idx_qsos_timestamp ON qsos(timestamp);
				CREATE INDEX IF NOT EXISTS idx_qsos_session ON qsos(session_id);
				CREATE INDEX IF NOT EXISTS idx_qsos_band_mode ON qsos(band, mode);
				CREATE UNIQUE INDEX IF NOT EXISTS idx_qsos_qrz_log_id ON qsos(qrz_log_id) WHERE qrz_log_id IS NOT NULL;
			`,
		},
		{
			Version:     "002",
			Description: "Create sessions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS sessions (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					my_callsign TEXT NOT NULL,
					my_grid TEXT NOT NULL DEFAULT '',
					my_park TEXT NOT NULL DEFAULT '',
					started_at TIMESTAMP WITH TIME ZONE NOT NULL,
					ended_at TIMESTAMP WITH TIME ZONE
				);

				CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at);
			`,
		},
		{
			Version:     "003",
			Description: "Create callsign_cache table",
			SQL: `
				CREATE TABLE IF NOT EXISTS callsign_cache (
					callsign TEXT PRIMARY KEY,
					name TEXT NOT NULL DEFAULT '',
					grid TEXT NOT NULL DEFAULT '',
					country TEXT NOT NULL DEFAULT '',
					state TEXT NOT NULL DEFAULT '',
					city TEXT NOT NULL DEFAULT '',
					license_class TEXT NOT NULL DEFAULT '',
					latitude DOUBLE PRECISION NOT NULL DEFAULT 0,
					longitude DOUBLE PRECISION NOT NULL DEFAULT 0,
					source TEXT NOT NULL,
					fetched_at TIMESTAMP WITH TIME ZONE NOT NULL
				);
			`,
		},
		{
			Version:     "004",
			Description: "Create spots table",
			SQL: `
				CREATE TABLE IF NOT EXISTS spots (
					id TEXT PRIMARY KEY,
					spotter TEXT NOT NULL,
					dx_call TEXT NOT NULL,
					frequency_khz DOUBLE PRECISION NOT NULL,
					band TEXT NOT NULL,
					mode TEXT NOT NULL DEFAULT '',
					snr INTEGER NOT NULL DEFAULT 0,
					wpm INTEGER NOT NULL DEFAULT 0,
					source TEXT NOT NULL,
					park_ref TEXT NOT NULL DEFAULT '',
					comment TEXT NOT NULL DEFAULT '',
					spotted_at TIMESTAMP WITH TIME ZONE NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_spots_dx_call ON spots(dx_call);
				CREATE INDEX IF NOT EXISTS idx_spots_spotted_at ON spots(spotted_at);
				CREATE INDEX IF NOT EXISTS idx_spots_band ON spots(band);
			`,
		},
		{
			Version:     "005",
			Description: "Create sync_state table",
			SQL: `
				CREATE TABLE IF NOT EXISTS sync_state (
					backend TEXT PRIMARY KEY,
					checkpoint TEXT NOT NULL DEFAULT '',
					updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
				);
			`,
		},
		{
			Version:     "006",
			Description: "Create logs table",
			SQL: `
				CREATE TABLE IF NOT EXISTS logs (
					id BIGSERIAL PRIMARY KEY,
					type TEXT NOT NULL,
					data JSONB NOT NULL,
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_logs_type ON logs(type);
			`,
		},
	}
}
