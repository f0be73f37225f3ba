// File: internal/storage/postgres.go
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/fullduplex/carrierwave/internal/models"
	"github.com/fullduplex/carrierwave/pkg/utils"
)

// PostgreSQLStorage implements Storage backed by PostgreSQL
type PostgreSQLStorage struct {
	config    *StorageConfig
	db        *sql.DB
	logger    *logrus.Logger
	mu        sync.RWMutex
	connected bool
}

// NewPostgreSQLStorage creates a new PostgreSQL storage instance
func NewPostgreSQLStorage(config *StorageConfig) *PostgreSQLStorage {
	return &PostgreSQLStorage{
		config: config,
		logger: utils.GetLogger(),
	}
}

// Connect opens the database connection pool
func (s *PostgreSQLStorage) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected {
		return nil
	}

	db, err := sql.Open("postgres", s.config.ConnectionString)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to open PostgreSQL connection", err.Error())
	}

	db.SetMaxOpenConns(s.config.MaxConnections)
	db.SetMaxIdleConns(s.config.MaxConnections / 2)
	db.SetConnMaxIdleTime(s.config.MaxIdleTime)

	if err := db.Ping(); err != nil {
		db.Close()
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to ping PostgreSQL database", err.Error())
	}

	s.db = db
	s.connected = true

	s.logger.Info("Connected to PostgreSQL database")
	return nil
}

// Close closes the database connection
func (s *PostgreSQLStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return nil
	}

	if err := s.db.Close(); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to close PostgreSQL database", err.Error())
	}

	s.connected = false
	s.logger.Info("PostgreSQL database connection closed")
	return nil
}

// Ping verifies the database connection
func (s *PostgreSQLStorage) Ping() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.connected {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}
	return s.db.Ping()
}

// Migrate applies pending schema migrations
func (s *PostgreSQLStorage) Migrate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to create migrations table", err.Error())
	}

	for _, migration := range GetPostgresMigrations() {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = $1", migration.Version).Scan(&count)
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
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version, description) VALUES ($1, $2)",
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

// placeholders produces a $1..$n list for a VALUES clause
func placeholders(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", i+1)
	}
	return strings.Join(parts, ", ")
}

const qsoUpsertClause = ` ON CONFLICT (id) DO UPDATE SET
	session_id = EXCLUDED.session_id, callsign = EXCLUDED.callsign, band = EXCLUDED.band,
	mode = EXCLUDED.mode, frequency_khz = EXCLUDED.frequency_khz, rst_sent = EXCLUDED.rst_sent,
	rst_rcvd = EXCLUDED.rst_rcvd, timestamp = EXCLUDED.timestamp, name = EXCLUDED.name,
	grid_square = EXCLUDED.grid_square, qth = EXCLUDED.qth, state = EXCLUDED.state,
	country = EXCLUDED.country, power_w = EXCLUDED.power_w, their_park = EXCLUDED.their_park,
	my_park = EXCLUDED.my_park, my_grid = EXCLUDED.my_grid, comments = EXCLUDED.comments,
	qrz_log_id = EXCLUDED.qrz_log_id, synced_qrz = EXCLUDED.synced_qrz,
	synced_pota = EXCLUDED.synced_pota, synced_hamrs = EXCLUDED.synced_hamrs,
	synced_lotw = EXCLUDED.synced_lotw, synced_lofi = EXCLUDED.synced_lofi,
	lotw_confirmed = EXCLUDED.lotw_confirmed, updated_at = EXCLUDED.updated_at`

// SaveQSO inserts or updates a contact
func (s *PostgreSQLStorage) SaveQSO(ctx context.Context, qso *models.QSO) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now().UTC()
	if qso.CreatedAt.IsZero() {
		qso.CreatedAt = now
	}
	qso.UpdatedAt = now

	query := `INSERT INTO qsos (` + qsoColumns + `) VALUES (` + placeholders(28) + `)` + qsoUpsertClause

	if _, err := s.db.ExecContext(ctx, query, qsoArgs(qso)...); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save QSO", err.Error())
	}
	return nil
}

// SaveQSOs stores a batch of contacts in a single transaction
func (s *PostgreSQLStorage) SaveQSOs(ctx context.Context, qsos []*models.QSO) error {
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

	query := `INSERT INTO qsos (` + qsoColumns + `) VALUES (` + placeholders(28) + `)` + qsoUpsertClause

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
func (s *PostgreSQLStorage) GetQSO(ctx context.Context, id string) (*models.QSO, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+qsoColumns+` FROM qsos WHERE id = $1`, id)
	qso, err := scanQSO(row)
	if err == sql.ErrNoRows {
		return nil, utils.NewAppError(utils.ErrCodeNotFound, "QSO not found", id)
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get QSO", err.Error())
	}
	return qso, nil
}

// renumber converts ?-style placeholders to $1..$n
func renumber(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// GetQSOs retrieves contacts matching a filter, newest first
func (s *PostgreSQLStorage) GetQSOs(ctx context.Context, filter models.QSOFilter) ([]*models.QSO, error) {
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

	rows, err := s.db.QueryContext(ctx, renumber(query), args...)
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
func (s *PostgreSQLStorage) CountQSOs(ctx context.Context, filter models.QSOFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	where, args := buildQSOWhere(filter)
	var count int64
	err := s.db.QueryRowContext(ctx, renumber(`SELECT COUNT(*) FROM qsos`+where), args...).Scan(&count)
	if err != nil {
		return 0, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count QSOs", err.Error())
	}
	return count, nil
}

// UpdateQSO updates an existing contact
func (s *PostgreSQLStorage) UpdateQSO(ctx context.Context, qso *models.QSO) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	qso.UpdatedAt = time.Now().UTC()

	var qrzLogID interface{}
	if qso.QRZLogID != nil {
		qrzLogID = *qso.QRZLogID
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE qsos SET session_id = $1, callsign = $2, band = $3, mode = $4, frequency_khz = $5,
			rst_sent = $6, rst_rcvd = $7, timestamp = $8, name = $9, grid_square = $10, qth = $11,
			state = $12, country = $13, power_w = $14, their_park = $15, my_park = $16, my_grid = $17,
			comments = $18, qrz_log_id = $19, synced_qrz = $20, synced_pota = $21, synced_hamrs = $22,
			synced_lotw = $23, synced_lofi = $24, lotw_confirmed = $25, updated_at = $26
		WHERE id = $27`,
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
func (s *PostgreSQLStorage) DeleteQSO(ctx context.Context, id string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result, err := s.db.ExecContext(ctx, "DELETE FROM qsos WHERE id = $1", id)
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
func (s *PostgreSQLStorage) FindQSO(ctx context.Context, callsign, band, mode string, t time.Time, window time.Duration) (*models.QSO, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT `+qsoColumns+` FROM qsos
		WHERE callsign = $1 AND band = $2 AND mode = $3 AND timestamp BETWEEN $4 AND $5
		ORDER BY ABS(EXTRACT(EPOCH FROM (timestamp - $6::timestamptz))) ASC
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

// SaveSession inserts or updates a logging session
func (s *PostgreSQLStorage) SaveSession(ctx context.Context, session *models.LoggingSession) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var endedAt interface{}
	if session.EndedAt != nil {
		endedAt = *session.EndedAt
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, name, my_callsign, my_grid, my_park, started_at, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, my_callsign = EXCLUDED.my_callsign, my_grid = EXCLUDED.my_grid,
			my_park = EXCLUDED.my_park, started_at = EXCLUDED.started_at, ended_at = EXCLUDED.ended_at`,
		session.ID, session.Name, session.MyCallsign, session.MyGrid, session.MyPark,
		session.StartedAt, endedAt)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save session", err.Error())
	}
	return nil
}

// GetSession retrieves a session by id
func (s *PostgreSQLStorage) GetSession(ctx context.Context, id string) (*models.LoggingSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions s WHERE s.id = $1`, id)
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
func (s *PostgreSQLStorage) GetSessions(ctx context.Context, activeOnly bool) ([]*models.LoggingSession, error) {
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
func (s *PostgreSQLStorage) CloseSession(ctx context.Context, id string, endedAt time.Time) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result, err := s.db.ExecContext(ctx,
		"UPDATE sessions SET ended_at = $1 WHERE id = $2 AND ended_at IS NULL", endedAt, id)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to close session", err.Error())
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return utils.NewAppError(utils.ErrCodeNotFound, "Active session not found", id)
	}
	return nil
}

// DeleteSession removes a session. Its QSOs are kept but detached.
func (s *PostgreSQLStorage) DeleteSession(ctx context.Context, id string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to begin transaction", err.Error())
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "UPDATE qsos SET session_id = '' WHERE session_id = $1", id); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to detach session QSOs", err.Error())
	}

	result, err := tx.ExecContext(ctx, "DELETE FROM sessions WHERE id = $1", id)
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
func (s *PostgreSQLStorage) GetCachedCallsign(ctx context.Context, callsign string) (*models.CallsignInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var info models.CallsignInfo
	err := s.db.QueryRowContext(ctx, `
		SELECT callsign, name, grid, country, state, city, license_class, latitude, longitude, source, fetched_at
		FROM callsign_cache WHERE callsign = $1`, strings.ToUpper(callsign)).Scan(
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
func (s *PostgreSQLStorage) PutCachedCallsign(ctx context.Context, info *models.CallsignInfo) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if info.FetchedAt.IsZero() {
		info.FetchedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO callsign_cache
			(callsign, name, grid, country, state, city, license_class, latitude, longitude, source, fetched_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (callsign) DO UPDATE SET
			name = EXCLUDED.name, grid = EXCLUDED.grid, country = EXCLUDED.country,
			state = EXCLUDED.state, city = EXCLUDED.city, license_class = EXCLUDED.license_class,
			latitude = EXCLUDED.latitude, longitude = EXCLUDED.longitude,
			source = EXCLUDED.source, fetched_at = EXCLUDED.fetched_at`,
		strings.ToUpper(info.Callsign), info.Name, info.Grid, info.Country, info.State,
		info.City, info.LicenseClass, info.Latitude, info.Longitude, info.Source, info.FetchedAt)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to cache callsign", err.Error())
	}
	return nil
}

// SaveSpot stores a received spot
func (s *PostgreSQLStorage) SaveSpot(ctx context.Context, spot *models.Spot) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO spots
			(id, spotter, dx_call, frequency_khz, band, mode, snr, wpm, source, park_ref, comment, spotted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING`,
		spot.ID, spot.Spotter, spot.DXCall, spot.FrequencyKHz, spot.Band, spot.Mode,
		spot.SNR, spot.WPM, spot.Source, spot.ParkRef, spot.Comment, spot.SpottedAt)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save spot", err.Error())
	}
	return nil
}

// GetSpots retrieves spots matching a filter, newest first
func (s *PostgreSQLStorage) GetSpots(ctx context.Context, filter models.SpotFilter) ([]*models.Spot, error) {
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

	rows, err := s.db.QueryContext(ctx, renumber(query), args...)
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
func (s *PostgreSQLStorage) PruneSpots(ctx context.Context, olderThan time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result, err := s.db.ExecContext(ctx, "DELETE FROM spots WHERE spotted_at < $1", olderThan)
	if err != nil {
		return 0, utils.NewAppError(utils.ErrCodeDatabase, "Failed to prune spots", err.Error())
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

// GetSyncCursor returns the stored checkpoint for a backend, or "" if none
func (s *PostgreSQLStorage) GetSyncCursor(ctx context.Context, backend models.SyncBackend) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var checkpoint string
	err := s.db.QueryRowContext(ctx,
		"SELECT checkpoint FROM sync_state WHERE backend = $1", string(backend)).Scan(&checkpoint)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", utils.NewAppError(utils.ErrCodeDatabase, "Failed to get sync cursor", err.Error())
	}
	return checkpoint, nil
}

// SetSyncCursor stores the checkpoint for a backend
func (s *PostgreSQLStorage) SetSyncCursor(ctx context.Context, backend models.SyncBackend, cursor string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_state (backend, checkpoint, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (backend) DO UPDATE SET checkpoint = EXCLUDED.checkpoint, updated_at = NOW()`,
		string(backend), cursor)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to set sync cursor", err.Error())
	}
	return nil
}

// LogEvent appends a system event record
func (s *PostgreSQLStorage) LogEvent(ctx context.Context, eventType string, data map[string]interface{}) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	payload, err := json.Marshal(data)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeInternal, "Failed to marshal event data", err.Error())
	}

	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO logs (type, data) VALUES ($1, $2)", eventType, string(payload)); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to log event", err.Error())
	}
	return nil
}

// GetLogsByType retrieves recent system events of a given type
func (s *PostgreSQLStorage) GetLogsByType(ctx context.Context, eventType string, limit int) ([]*models.LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, data, created_at FROM logs
		WHERE type = $1 ORDER BY created_at DESC LIMIT $2`, eventType, limit)
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
func (s *PostgreSQLStorage) GetStats() (*StorageStats, error) {
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

	if err := s.db.QueryRow("SELECT pg_database_size(current_database())").Scan(&stats.DBSizeBytes); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to read database size", err.Error())
	}

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
func (s *PostgreSQLStorage) GetHealth() *StorageHealth {
	health := &StorageHealth{
		StorageType: "postgres",
		Details:     map[string]string{},
		LastPing:    time.Now().UTC(),
	}
	health.Healthy = s.Ping() == nil
	return health
}

// Cleanup removes expired data: old spots and stale log entries
func (s *PostgreSQLStorage) Cleanup(ctx context.Context, spotRetention time.Duration) error {
	pruned, err := s.PruneSpots(ctx, time.Now().UTC().Add(-spotRetention))
	if err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM logs WHERE created_at < $1", time.Now().UTC().AddDate(0, -3, 0)); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to prune logs", err.Error())
	}

	if pruned > 0 {
		s.logger.WithField("spots_pruned", pruned).Debug("Storage cleanup complete")
	}
	return nil
}
