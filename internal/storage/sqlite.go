// File: internal/storage/sqlite.go
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/fullduplex/carrierwave/internal/models"
	"github.com/fullduplex/carrierwave/pkg/utils"
)

// SQLiteStorage implements Storage backed by a local SQLite file
type SQLiteStorage struct {
	config    *StorageConfig
	db        *sql.DB
	logger    *logrus.Logger
	mu        sync.RWMutex
	connected bool
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(config *StorageConfig) *SQLiteStorage {
	return &SQLiteStorage{
		config: config,
		logger: utils.GetLogger(),
	}
}

// Connect opens the database file and applies connection settings
func (s *SQLiteStorage) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected {
		return nil
	}

	dir := filepath.Dir(s.config.ConnectionString)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to create database directory", err.Error())
		}
	}

	db, err := sql.Open("sqlite", s.config.ConnectionString)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to open SQLite database", err.Error())
	}

	db.SetMaxOpenConns(s.config.MaxConnections)
	db.SetMaxIdleConns(s.config.MaxConnections / 2)
	db.SetConnMaxIdleTime(s.config.MaxIdleTime)

	if err := db.Ping(); err != nil {
		db.Close()
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to ping SQLite database", err.Error())
	}

	// WAL keeps readers from blocking the logging path during sync runs
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to apply pragma", fmt.Sprintf("%s: %v", pragma, err))
		}
	}

	s.db = db
	s.connected = true

	s.logger.WithField("path", s.config.ConnectionString).Info("Connected to SQLite database")
	return nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return nil
	}

	if err := s.db.Close(); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to close SQLite database", err.Error())
	}

	s.connected = false
	s.logger.Info("SQLite database connection closed")
	return nil
}

// Ping verifies the database connection
func (s *SQLiteStorage) Ping() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.connected {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}
	return s.db.Ping()
}

// Migrate applies pending schema migrations
func (s *SQLiteStorage) Migrate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to create migrations table", err.Error())
	}

	for _, migration := range GetSQLiteMigrations() {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", migration.Version).Scan(&count)
		if err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to check migration status", err.Error())
		}
		if count > 0 {
			continue
		}

		if _, err := s.db.Exec(migration.SQL); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase,
				fmt.Sprintf("Failed to apply migration %s", migration.Version), err.Error())
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version, description) VALUES (?, ?)",
			migration.Version, migration.Description); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to record migration", err.Error())
		}

		s.logger.WithFields(logrus.Fields{
			"version":     migration.Version,
			"description": migration.Description,
		}).Info("Applied migration")
	}

	return nil
}

const qsoColumns = `id, session_id, callsign, band, mode, frequency_khz, rst_sent, rst_rcvd,
	timestamp, name, grid_square, qth, state, country, power_w, their_park, my_park, my_grid,
	comments, qrz_log_id, synced_qrz, synced_pota, synced_hamrs, synced_lotw, synced_lofi,
	lotw_confirmed, created_at, updated_at`

func scanQSO(row interface{ Scan(...interface{}) error }) (*models.QSO, error) {
	var qso models.QSO
	var qrzLogID sql.NullInt64

	err := row.Scan(
		&qso.ID, &qso.SessionID, &qso.Callsign, &qso.Band, &qso.Mode, &qso.FrequencyKHz,
		&qso.RSTSent, &qso.RSTRcvd, &qso.Timestamp, &qso.Name, &qso.GridSquare, &qso.QTH,
		&qso.State, &qso.Country, &qso.PowerW, &qso.TheirPark, &qso.MyPark, &qso.MyGrid,
		&qso.Comments, &qrzLogID, &qso.SyncedQRZ, &qso.SyncedPOTA, &qso.SyncedHAMRS,
		&qso.SyncedLoTW, &qso.SyncedLoFi, &qso.LoTWConfirmed, &qso.CreatedAt, &qso.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if qrzLogID.Valid {
		qso.QRZLogID = &qrzLogID.Int64
	}
	return &qso, nil
}

func qsoArgs(qso *models.QSO) []interface{} {
	var qrzLogID interface{}
	if qso.QRZLogID != nil {
		qrzLogID = *qso.QRZLogID
	}
	return []interface{}{
		qso.ID, qso.SessionID, qso.Callsign, qso.Band, qso.Mode, qso.FrequencyKHz,
		qso.RSTSent, qso.RSTRcvd, qso.Timestamp, qso.Name, qso.GridSquare, qso.QTH,
		qso.State, qso.Country, qso.PowerW, qso.TheirPark, qso.MyPark, qso.MyGrid,
		qso.Comments, qrzLogID, qso.SyncedQRZ, qso.SyncedPOTA, qso.SyncedHAMRS,
		qso.SyncedLoTW, qso.SyncedLoFi, qso.LoTWConfirmed, qso.CreatedAt, qso.UpdatedAt,
	}
}

// SaveQSO inserts or replaces a contact
func (s *SQLiteStorage) SaveQSO(ctx context.Context, qso *models.QSO) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now().UTC()
	if qso.CreatedAt.IsZero() {
		qso.CreatedAt = now
	}
	qso.UpdatedAt = now

	query := `INSERT OR REPLACE INTO qsos (` + qsoColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	if _, err := s.db.ExecContext(ctx, query, qsoArgs(qso)...); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save QSO", err.Error())
	}
	return nil
}

// SaveQSOs stores a batch of contacts in a single transaction
func (s *SQLiteStorage) SaveQSOs(ctx context.Context, qsos []*models.QSO) error {
	if len(qsos) == 0 {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to begin transaction", err.Error())
	}
	defer tx.Rollback()

	query := `INSERT OR REPLACE INTO qsos (` + qsoColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to prepare statement", err.Error())
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, qso := range qsos {
		if qso.CreatedAt.IsZero() {
			qso.CreatedAt = now
		}
		qso.UpdatedAt = now
		if _, err := stmt.ExecContext(ctx, qsoArgs(qso)...); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save QSO batch", err.Error())
		}
	}

	if err := tx.Commit(); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to commit QSO batch", err.Error())
	}
	return nil
}

// GetQSO retrieves a contact by id
func (s *SQLiteStorage) GetQSO(ctx context.Context, id string) (*models.QSO, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+qsoColumns+` FROM qsos WHERE id = ?`, id)
	qso, err := scanQSO(row)
	if err == sql.ErrNoRows {
		return nil, utils.NewAppError(utils.ErrCodeNotFound, "QSO not found", id)
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get QSO", err.Error())
	}
	return qso, nil
}

func buildQSOWhere(filter models.QSOFilter) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	if filter.Callsign != nil {
		conditions = append(conditions, "callsign = ?")
		args = append(args, strings.ToUpper(*filter.Callsign))
	}
	if filter.Band != nil {
		conditions = append(conditions, "band = ?")
		args = append(args, *filter.Band)
	}
	if filter.Mode != nil {
		conditions = append(conditions, "mode = ?")
		args = append(args, *filter.Mode)
	}
	if filter.SessionID != nil {
		conditions = append(conditions, "session_id = ?")
		args = append(args, *filter.SessionID)
	}
	if filter.Park != nil {
		conditions = append(conditions, "(their_park = ? OR my_park = ?)")
		args = append(args, *filter.Park, *filter.Park)
	}
	if filter.From != nil {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		conditions = append(conditions, "timestamp <= ?")
		args = append(args, *filter.To)
	}
	if filter.Unsynced != nil {
		switch *filter.Unsynced {
		case models.BackendQRZ:
			conditions = append(conditions, "synced_qrz = FALSE")
		case models.BackendPOTA:
			conditions = append(conditions, "synced_pota = FALSE")
		case models.BackendHAMRS:
			conditions = append(conditions, "synced_hamrs = FALSE")
		case models.BackendLoTW:
			conditions = append(conditions, "synced_lotw = FALSE")
		case models.BackendLoFi:
			conditions = append(conditions, "synced_lofi = FALSE")
		}
	}
	if filter.Query != nil {
		like := "%" + *filter.Query + "%"
		conditions = append(conditions, "(callsign LIKE ? OR name LIKE ? OR qth LIKE ? OR comments LIKE ?)")
		args = append(args, like, like, like, like)
	}

	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

// GetQSOs retrieves contacts matching a filter, newest first
func (s *SQLiteStorage) GetQSOs(ctx context.Context, filter models.QSOFilter) ([]*models.QSO, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	where, args := buildQSOWhere(filter)
	query := `SELECT ` + qsoColumns + ` FROM qsos` + where + ` ORDER BY timestamp DESC`

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to query QSOs", err.Error())
	}
	defer rows.Close()

	var qsos []*models.QSO
	for rows.Next() {
		qso, err := scanQSO(rows)
		if err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan QSO", err.Error())
		}
		qsos = append(qsos, qso)
	}
	return qsos, rows.Err()
}

// CountQSOs counts contacts matching a filter
func (s *SQLiteStorage) CountQSOs(ctx context.Context, filter models.QSOFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	where, args := buildQSOWhere(filter)
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM qsos`+where, args...).Scan(&count)
	if err != nil {
		return 0, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count QSOs", err.Error())
	}
	return count, nil
}

// UpdateQSO updates an existing contact
func (s *SQLiteStorage) UpdateQSO(ctx context.Context, qso *models.QSO) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	qso.UpdatedAt = time.Now().UTC()

	var qrzLogID interface{}
	if qso.QRZLogID != nil {
		qrzLogID = *qso.QRZLogID
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE qsos SET session_id = ?, callsign = ?, band = ?, mode = ?, frequency_khz = ?,
			rst_sent = ?, rst_rcvd = ?, timestamp = ?, name = ?, grid_square = ?, qth = ?,
			state = ?, country = ?, power_w = ?, their_park = ?, my_park = ?, my_grid = ?,
			comments = ?, qrz_log_id = ?, synced_qrz = ?, synced_pota = ?, synced_hamrs = ?,
			synced_lotw = ?, synced_lofi = ?, lotw_confirmed = ?, updated_at = ?
		WHERE id = ?`,
		qso.SessionID, qso.Callsign, qso.Band, qso.Mode, qso.FrequencyKHz,
		qso.RSTSent, qso.RSTRcvd, qso.Timestamp, qso.Name, qso.GridSquare, qso.QTH,
		qso.State, qso.Country, qso.PowerW, qso.TheirPark, qso.MyPark, qso.MyGrid,
		qso.Comments, qrzLogID, qso.SyncedQRZ, qso.SyncedPOTA, qso.SyncedHAMRS,
		qso.SyncedLoTW, qso.SyncedLoFi, qso.LoTWConfirmed, qso.UpdatedAt, qso.ID)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to update QSO", err.Error())
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return utils.NewAppError(utils.ErrCodeNotFound, "QSO not found", qso.ID)
	}
	return nil
}

// DeleteQSO removes a contact by id
func (s *SQLiteStorage) DeleteQSO(ctx context.Context, id string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result, err := s.db.ExecContext(ctx, "DELETE FROM qsos WHERE id = ?", id)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to delete QSO", err.Error())
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return utils.NewAppError(utils.ErrCodeNotFound, "QSO not found", id)
	}
	return nil
}

// FindQSO locates a contact with the same callsign, band and mode within
// the time window around t. Returns nil without error when nothing matches.
func (s *SQLiteStorage) FindQSO(ctx context.Context, callsign, band, mode string, t time.Time, window time.Duration) (*models.QSO, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT `+qsoColumns+` FROM qsos
		WHERE callsign = ? AND band = ? AND mode = ? AND timestamp BETWEEN ? AND ?
		ORDER BY ABS(strftime('%s', timestamp) - strftime('%s', ?)) ASC
		LIMIT 1`,
		strings.ToUpper(callsign), band, mode, t.Add(-window), t.Add(window), t)

	qso, err := scanQSO(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to find QSO", err.Error())
	}
	return qso, nil
}

// SaveSession inserts or replaces a logging session
func (s *SQLiteStorage) SaveSession(ctx context.Context, session *models.LoggingSession) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var endedAt interface{}
	if session.EndedAt != nil {
		endedAt = *session.EndedAt
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO sessions (id, name, my_callsign, my_grid, my_park, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		session.ID, session.Name, session.MyCallsign, session.MyGrid, session.MyPark,
		session.StartedAt, endedAt)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save session", err.Error())
	}
	return nil
}

const sessionColumns = `s.id, s.name, s.my_callsign, s.my_grid, s.my_park, s.started_at, s.ended_at,
	(SELECT COUNT(*) FROM qsos q WHERE q.session_id = s.id) AS qso_count`

func scanSession(row interface{ Scan(...interface{}) error }) (*models.LoggingSession, error) {
	var session models.LoggingSession
	var endedAt sql.NullTime

	err := row.Scan(&session.ID, &session.Name, &session.MyCallsign, &session.MyGrid,
		&session.MyPark, &session.StartedAt, &endedAt, &session.QSOCount)
	if err != nil {
		return nil, err
	}
	if endedAt.Valid {
		session.EndedAt = &endedAt.Time
	}
	return &session, nil
}

// GetSession retrieves a session by id
func (s *SQLiteStorage) GetSession(ctx context.Context, id string) (*models.LoggingSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions s WHERE s.id = ?`, id)
	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, utils.NewAppError(utils.ErrCodeNotFound, "Session not found", id)
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get session", err.Error())
	}
	return session, nil
}

// GetSessions lists sessions, newest first
func (s *SQLiteStorage) GetSessions(ctx context.Context, activeOnly bool) ([]*models.LoggingSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + sessionColumns + ` FROM sessions s`
	if activeOnly {
		query += " WHERE s.ended_at IS NULL"
	}
	query += " ORDER BY s.started_at DESC"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to query sessions", err.Error())
	}
	defer rows.Close()

	var sessions []*models.LoggingSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan session", err.Error())
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// CloseSession marks a session as ended
func (s *SQLiteStorage) CloseSession(ctx context.Context, id string, endedAt time.Time) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result, err := s.db.ExecContext(ctx,
		"UPDATE sessions SET ended_at = ? WHERE id = ? AND ended_at IS NULL", endedAt, id)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to close session", err.Error())
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return utils.NewAppError(utils.ErrCodeNotFound, "Active session not found", id)
	}
	return nil
}

// DeleteSession removes a session. Its QSOs are kept but detached.
func (s *SQLiteStorage) DeleteSession(ctx context.Context, id string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to begin transaction", err.Error())
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "UPDATE qsos SET session_id = '' WHERE session_id = ?", id); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to detach session QSOs", err.Error())
	}

	result, err := tx.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to delete session", err.Error())
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return utils.NewAppError(utils.ErrCodeNotFound, "Session not found", id)
	}

	if err := tx.Commit(); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to commit session delete", err.Error())
	}
	return nil
}

// GetCachedCallsign retrieves a cached callsign record. Returns nil without
// error on a cache miss.
func (s *SQLiteStorage) GetCachedCallsign(ctx context.Context, callsign string) (*models.CallsignInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var info models.CallsignInfo
	err := s.db.QueryRowContext(ctx, `
		SELECT callsign, name, grid, country, state, city, license_class, latitude, longitude, source, fetched_at
		FROM callsign_cache WHERE callsign = ?`, strings.ToUpper(callsign)).Scan(
		&info.Callsign, &info.Name, &info.Grid, &info.Country, &info.State, &info.City,
		&info.LicenseClass, &info.Latitude, &info.Longitude, &info.Source, &info.FetchedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get cached callsign", err.Error())
	}
	return &info, nil
}

// PutCachedCallsign stores or refreshes a callsign record
func (s *SQLiteStorage) PutCachedCallsign(ctx context.Context, info *models.CallsignInfo) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if info.FetchedAt.IsZero() {
		info.FetchedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO callsign_cache
			(callsign, name, grid, country, state, city, license_class, latitude, longitude, source, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		strings.ToUpper(info.Callsign), info.Name, info.Grid, info.Country, info.State,
		info.City, info.LicenseClass, info.Latitude, info.Longitude, info.Source, info.FetchedAt)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to cache callsign", err.Error())
	}
	return nil
}

// SaveSpot stores a received spot
func (s *SQLiteStorage) SaveSpot(ctx context.Context, spot *models.Spot) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO spots
			(id, spotter, dx_call, frequency_khz, band, mode, snr, wpm, source, park_ref, comment, spotted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		spot.ID, spot.Spotter, spot.DXCall, spot.FrequencyKHz, spot.Band, spot.Mode,
		spot.SNR, spot.WPM, spot.Source, spot.ParkRef, spot.Comment, spot.SpottedAt)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save spot", err.Error())
	}
	return nil
}

// GetSpots retrieves spots matching a filter, newest first
func (s *SQLiteStorage) GetSpots(ctx context.Context, filter models.SpotFilter) ([]*models.Spot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var conditions []string
	var args []interface{}

	if filter.DXCall != nil {
		conditions = append(conditions, "dx_call = ?")
		args = append(args, strings.ToUpper(*filter.DXCall))
	}
	if filter.Band != nil {
		conditions = append(conditions, "band = ?")
		args = append(args, *filter.Band)
	}
	if filter.Mode != nil {
		conditions = append(conditions, "mode = ?")
		args = append(args, *filter.Mode)
	}
	if filter.Source != nil {
		conditions = append(conditions, "source = ?")
		args = append(args, *filter.Source)
	}
	if filter.Since != nil {
		conditions = append(conditions, "spotted_at >= ?")
		args = append(args, *filter.Since)
	}

	query := `SELECT id, spotter, dx_call, frequency_khz, band, mode, snr, wpm, source, park_ref, comment, spotted_at FROM spots`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY spotted_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to query spots", err.Error())
	}
	defer rows.Close()

	var spots []*models.Spot
	for rows.Next() {
		var spot models.Spot
		if err := rows.Scan(&spot.ID, &spot.Spotter, &spot.DXCall, &spot.FrequencyKHz,
			&spot.Band, &spot.Mode, &spot.SNR, &spot.WPM, &spot.Source, &spot.ParkRef,
			&spot.Comment, &spot.SpottedAt); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan spot", err.Error())
		}
		spots = append(spots, &spot)
	}
	return spots, rows.Err()
}

// PruneSpots deletes spots older than the cutoff and returns the count removed
func (s *SQLiteStorage) PruneSpots(ctx context.Context, olderThan time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result, err := s.db.ExecContext(ctx, "DELETE FROM spots WHERE spotted_at < ?", olderThan)
	if err != nil {
		return 0, utils.NewAppError(utils.ErrCodeDatabase, "Failed to prune spots", err.Error())
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

// GetSyncCursor returns the stored checkpoint for a backend, or "" if none
func (s *SQLiteStorage) GetSyncCursor(ctx context.Context, backend models.SyncBackend) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var checkpoint string
	err := s.db.QueryRowContext(ctx,
		"SELECT checkpoint FROM sync_state WHERE backend = ?", string(backend)).Scan(&checkpoint)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", utils.NewAppError(utils.ErrCodeDatabase, "Failed to get sync cursor", err.Error())
	}
	return checkpoint, nil
}

// SetSyncCursor stores the checkpoint for a backend
func (s *SQLiteStorage) SetSyncCursor(ctx context.Context, backend models.SyncBackend, cursor string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO sync_state (backend, checkpoint, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)`, string(backend), cursor)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to set sync cursor", err.Error())
	}
	return nil
}

// LogEvent appends a system event record
func (s *SQLiteStorage) LogEvent(ctx context.Context, eventType string, data map[string]interface{}) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	payload, err := json.Marshal(data)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeInternal, "Failed to marshal event data", err.Error())
	}

	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO logs (type, data) VALUES (?, ?)", eventType, string(payload)); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to log event", err.Error())
	}
	return nil
}

// GetLogsByType retrieves recent system events of a given type
func (s *SQLiteStorage) GetLogsByType(ctx context.Context, eventType string, limit int) ([]*models.LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, data, created_at FROM logs
		WHERE type = ? ORDER BY created_at DESC LIMIT ?`, eventType, limit)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to query logs", err.Error())
	}
	defer rows.Close()

	var entries []*models.LogEntry
	for rows.Next() {
		var entry models.LogEntry
		var raw string
		if err := rows.Scan(&entry.ID, &entry.Type, &raw, &entry.CreatedAt); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan log entry", err.Error())
		}
		if err := json.Unmarshal([]byte(raw), &entry.Data); err != nil {
			entry.Data = map[string]interface{}{"raw": raw}
		}
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

// GetStats returns storage statistics
func (s *SQLiteStorage) GetStats() (*StorageStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &StorageStats{UnsyncedByEach: make(map[string]int64)}

	if err := s.db.QueryRow("SELECT COUNT(*) FROM qsos").Scan(&stats.TotalQSOs); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count QSOs", err.Error())
	}
	if err := s.db.QueryRow("SELECT COUNT(*) FROM sessions").Scan(&stats.TotalSessions); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count sessions", err.Error())
	}
	if err := s.db.QueryRow("SELECT COUNT(*) FROM spots").Scan(&stats.TotalSpots); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count spots", err.Error())
	}
	if err := s.db.QueryRow("SELECT COUNT(*) FROM callsign_cache").Scan(&stats.CachedCalls); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count cached callsigns", err.Error())
	}

	var oldest, latest sql.NullTime
	if err := s.db.QueryRow("SELECT MIN(timestamp), MAX(timestamp) FROM qsos").Scan(&oldest, &latest); err == nil {
		if oldest.Valid {
			stats.OldestQSO = &oldest.Time
		}
		if latest.Valid {
			stats.LatestQSO = &latest.Time
		}
	}

	var pageCount, pageSize int64
	if err := s.db.QueryRow("PRAGMA page_count").Scan(&pageCount); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to read page count", err.Error())
	}
	if err := s.db.QueryRow("PRAGMA page_size").Scan(&pageSize); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to read page size", err.Error())
	}
	stats.DBSizeBytes = pageCount * pageSize

	unsyncedColumns := map[string]string{
		string(models.BackendQRZ):   "synced_qrz",
		string(models.BackendPOTA):  "synced_pota",
		string(models.BackendHAMRS): "synced_hamrs",
		string(models.BackendLoTW):  "synced_lotw",
		string(models.BackendLoFi):  "synced_lofi",
	}
	for backend, column := range unsyncedColumns {
		var count int64
		if err := s.db.QueryRow("SELECT COUNT(*) FROM qsos WHERE " + column + " = FALSE").Scan(&count); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count unsynced QSOs", err.Error())
		}
		stats.UnsyncedByEach[backend] = count
	}

	return stats, nil
}

// GetHealth returns storage health information
func (s *SQLiteStorage) GetHealth() *StorageHealth {
	health := &StorageHealth{
		StorageType: "sqlite",
		Details:     map[string]string{"path": s.config.ConnectionString},
		LastPing:    time.Now().UTC(),
	}
	health.Healthy = s.Ping() == nil
	return health
}

// Cleanup removes expired data: old spots and stale log entries
func (s *SQLiteStorage) Cleanup(ctx context.Context, spotRetention time.Duration) error {
	pruned, err := s.PruneSpots(ctx, time.Now().UTC().Add(-spotRetention))
	if err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM logs WHERE created_at < ?", time.Now().UTC().AddDate(0, -3, 0)); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to prune logs", err.Error())
	}

	if pruned > 0 {
		s.logger.WithField("spots_pruned", pruned).Debug("Storage cleanup complete")
	}
	return nil
}
