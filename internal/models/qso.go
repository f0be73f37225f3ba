package models

import (
	"time"
)

// SyncBackend identifies a third-party logbook service
type SyncBackend string

const (
	BackendQRZ   SyncBackend = "qrz"
	BackendPOTA  SyncBackend = "pota"
	BackendHAMRS SyncBackend = "hamrs"
	BackendLoTW  SyncBackend = "lotw"
	BackendLoFi  SyncBackend = "lofi"
)

// AllBackends lists every known sync backend
func AllBackends() []SyncBackend {
	return []SyncBackend{BackendQRZ, BackendPOTA, BackendHAMRS, BackendLoTW, BackendLoFi}
}

// QSO represents a logged two-way contact
type QSO struct {
	ID           string    `json:"id" db:"id"`
	SessionID    string    `json:"session_id,omitempty" db:"session_id"`
	Callsign     string    `json:"callsign" db:"callsign" validate:"required"`
	Band         string    `json:"band" db:"band" validate:"required"`
	Mode         string    `json:"mode" db:"mode" validate:"required"`
	FrequencyKHz float64   `json:"frequency_khz,omitempty" db:"frequency_khz"`
	RSTSent      string    `json:"rst_sent,omitempty" db:"rst_sent"`
	RSTRcvd      string    `json:"rst_rcvd,omitempty" db:"rst_rcvd"`
	Timestamp    time.Time `json:"timestamp" db:"timestamp"`

	// Station metadata, filled by callsign lookup or by hand
	Name       string `json:"name,omitempty" db:"name"`
	GridSquare string `json:"grid_square,omitempty" db:"grid_square"`
	QTH        string `json:"qth,omitempty" db:"qth"`
	State      string `json:"state,omitempty" db:"state"`
	Country    string `json:"country,omitempty" db:"country"`
	PowerW     int    `json:"power_w,omitempty" db:"power_w"`

	// Activation references (Parks on the Air)
	TheirPark string `json:"their_park,omitempty" db:"their_park"`
	MyPark    string `json:"my_park,omitempty" db:"my_park"`
	MyGrid    string `json:"my_grid,omitempty" db:"my_grid"`

	Comments string `json:"comments,omitempty" db:"comments"`

	// QRZLogID is the upstream logbook record id (APP_QRZLOG_LOGID),
	// used as the pagination cursor during downloads.
	QRZLogID *int64 `json:"qrz_log_id,omitempty" db:"qrz_log_id"`

	SyncedQRZ     bool `json:"synced_qrz" db:"synced_qrz"`
	SyncedPOTA    bool `json:"synced_pota" db:"synced_pota"`
	SyncedHAMRS   bool `json:"synced_hamrs" db:"synced_hamrs"`
	SyncedLoTW    bool `json:"synced_lotw" db:"synced_lotw"`
	SyncedLoFi    bool `json:"synced_lofi" db:"synced_lofi"`
	LoTWConfirmed bool `json:"lotw_confirmed" db:"lotw_confirmed"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// SyncedTo reports whether the QSO has been uploaded to a backend
func (q *QSO) SyncedTo(backend SyncBackend) bool {
	switch backend {
	case BackendQRZ:
		return q.SyncedQRZ
	case BackendPOTA:
		return q.SyncedPOTA
	case BackendHAMRS:
		return q.SyncedHAMRS
	case BackendLoTW:
		return q.SyncedLoTW
	case BackendLoFi:
		return q.SyncedLoFi
	}
	return false
}

// MarkSynced sets the sync flag for a backend
func (q *QSO) MarkSynced(backend SyncBackend) {
	switch backend {
	case BackendQRZ:
		q.SyncedQRZ = true
	case BackendPOTA:
		q.SyncedPOTA = true
	case BackendHAMRS:
		q.SyncedHAMRS = true
	case BackendLoTW:
		q.SyncedLoTW = true
	case BackendLoFi:
		q.SyncedLoFi = true
	}
}

// QSOFilter for querying QSOs
type QSOFilter struct {
	Callsign  *string      `json:"callsign,omitempty"`
	Band      *string      `json:"band,omitempty"`
	Mode      *string      `json:"mode,omitempty"`
	SessionID *string      `json:"session_id,omitempty"`
	Park      *string      `json:"park,omitempty"`
	From      *time.Time   `json:"from,omitempty"`
	To        *time.Time   `json:"to,omitempty"`
	Unsynced  *SyncBackend `json:"unsynced,omitempty"`
	Query     *string      `json:"query,omitempty"`
	Limit     int          `json:"limit,omitempty"`
	Offset    int          `json:"offset,omitempty"`
}
