// File: internal/server/handlers.go
package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/fullduplex/carrierwave/internal/models"
	"github.com/fullduplex/carrierwave/pkg/utils"
)

// Health handlers

func (s *HTTPServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"version":   s.version,
	})
}

func (s *HTTPServer) detailedHealthHandler(w http.ResponseWriter, r *http.Request) {
	storageHealth := s.storage.GetHealth()

	components := map[string]interface{}{
		"storage": storageHealth,
	}
	if s.sync != nil {
		components["sync"] = map[string]interface{}{
			"running":  s.sync.IsRunning(),
			"backends": s.sync.Backends(),
		}
	}
	if s.spots != nil {
		components["spots"] = map[string]interface{}{
			"running": s.spots.IsRunning(),
			"stats":   s.spots.GetStats(),
		}
	}
	if s.conditions != nil {
		components["conditions"] = map[string]interface{}{
			"running": s.conditions.IsRunning(),
		}
	}
	if s.notification != nil {
		components["notification"] = map[string]interface{}{
			"running": s.notification.IsRunning(),
			"stats":   s.notification.GetStats(),
		}
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !storageHealth.Healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	s.writeJSON(w, httpStatus, map[string]interface{}{
		"status":     status,
		"timestamp":  time.Now().UTC(),
		"version":    s.version,
		"components": components,
	})
}

func (s *HTTPServer) statsHandler(w http.ResponseWriter, r *http.Request) {
	storageStats, err := s.storage.GetStats()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve storage stats", err)
		return
	}

	stats := map[string]interface{}{
		"timestamp": time.Now().UTC(),
		"storage":   storageStats,
	}
	if s.lookup != nil {
		stats["lookup"] = s.lookup.GetStats()
	}
	if s.sync != nil {
		stats["sync"] = s.sync.GetStats()
	}
	if s.spots != nil {
		stats["spots"] = s.spots.GetStats()
	}
	if s.notification != nil {
		stats["notification"] = s.notification.GetStats()
	}

	s.writeJSON(w, http.StatusOK, stats)
}

// QSO handlers

func parseQSOFilter(r *http.Request) models.QSOFilter {
	q := r.URL.Query()
	filter := models.QSOFilter{Limit: 50}

	setString := func(key string, dst **string) {
		if v := q.Get(key); v != "" {
			*dst = &v
		}
	}
	setString("callsign", &filter.Callsign)
	setString("band", &filter.Band)
	setString("mode", &filter.Mode)
	setString("session", &filter.SessionID)
	setString("park", &filter.Park)
	setString("q", &filter.Query)

	if v := q.Get("unsynced"); v != "" {
		backend := models.SyncBackend(v)
		filter.Unsynced = &backend
	}
	if v := q.Get("from"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.From = &t
		}
	}
	if v := q.Get("to"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.To = &t
		}
	}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 {
		filter.Limit = v
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil && v > 0 {
		filter.Offset = v
	}

	return filter
}

func (s *HTTPServer) listQSOsHandler(w http.ResponseWriter, r *http.Request) {
	filter := parseQSOFilter(r)

	qsos, err := s.storage.GetQSOs(r.Context(), filter)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve QSOs", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"qsos":   qsos,
		"limit":  filter.Limit,
		"offset": filter.Offset,
		"total":  len(qsos),
	})
}

func (s *HTTPServer) createQSOHandler(w http.ResponseWriter, r *http.Request) {
	var qso models.QSO
	if err := json.NewDecoder(r.Body).Decode(&qso); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	qso.Callsign = utils.NormalizeCallsign(qso.Callsign)
	if qso.Callsign == "" || qso.Band == "" || qso.Mode == "" {
		s.writeError(w, http.StatusBadRequest, "callsign, band and mode are required", nil)
		return
	}

	if qso.ID == "" {
		qso.ID = utils.GenerateID()
	}
	if qso.Timestamp.IsZero() {
		qso.Timestamp = time.Now().UTC()
	}

	if err := s.storage.SaveQSO(r.Context(), &qso); err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to save QSO", err)
		return
	}

	if s.metricsManager != nil {
		s.metricsManager.GetPrometheusMetrics().RecordQSOLogged(qso.Band, qso.Mode)
	}

	s.writeJSON(w, http.StatusCreated, &qso)
}

func (s *HTTPServer) getQSOHandler(w http.ResponseWriter, r *http.Request) {
	qso, err := s.storage.GetQSO(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, http.StatusNotFound, "QSO not found", err)
		return
	}
	s.writeJSON(w, http.StatusOK, qso)
}

func (s *HTTPServer) updateQSOHandler(w http.ResponseWriter, r *http.Request) {
	var qso models.QSO
	if err := json.NewDecoder(r.Body).Decode(&qso); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	qso.ID = mux.Vars(r)["id"]
	qso.Callsign = utils.NormalizeCallsign(qso.Callsign)

	if _, err := s.storage.GetQSO(r.Context(), qso.ID); err != nil {
		s.writeError(w, http.StatusNotFound, "QSO not found", err)
		return
	}

	if err := s.storage.UpdateQSO(r.Context(), &qso); err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to update QSO", err)
		return
	}

	s.writeJSON(w, http.StatusOK, &qso)
}

func (s *HTTPServer) deleteQSOHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := s.storage.DeleteQSO(r.Context(), id); err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to delete QSO", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{"deleted": id})
}

func (s *HTTPServer) countQSOsHandler(w http.ResponseWriter, r *http.Request) {
	count, err := s.storage.CountQSOs(r.Context(), parseQSOFilter(r))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to count QSOs", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"count": count})
}

func (s *HTTPServer) searchQSOsHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		s.writeError(w, http.StatusBadRequest, "Search query is required", nil)
		return
	}

	filter := parseQSOFilter(r)
	filter.Query = &query

	qsos, err := s.storage.GetQSOs(r.Context(), filter)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Search failed", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"qsos":  qsos,
		"query": query,
		"total": len(qsos),
	})
}

// Session handlers

func (s *HTTPServer) listSessionsHandler(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"

	sessions, err := s.storage.GetSessions(r.Context(), activeOnly)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve sessions", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": sessions,
		"total":    len(sessions),
	})
}

func (s *HTTPServer) createSessionHandler(w http.ResponseWriter, r *http.Request) {
	var session models.LoggingSession
	if err := json.NewDecoder(r.Body).Decode(&session); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	session.MyCallsign = utils.NormalizeCallsign(session.MyCallsign)
	if session.MyCallsign == "" {
		s.writeError(w, http.StatusBadRequest, "my_callsign is required", nil)
		return
	}

	if session.ID == "" {
		session.ID = utils.GenerateID()
	}
	if session.StartedAt.IsZero() {
		session.StartedAt = time.Now().UTC()
	}

	if err := s.storage.SaveSession(r.Context(), &session); err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to save session", err)
		return
	}

	s.writeJSON(w, http.StatusCreated, &session)
}

func (s *HTTPServer) getSessionHandler(w http.ResponseWriter, r *http.Request) {
	session, err := s.storage.GetSession(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, http.StatusNotFound, "Session not found", err)
		return
	}
	s.writeJSON(w, http.StatusOK, session)
}

func (s *HTTPServer) closeSessionHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := s.storage.CloseSession(r.Context(), id, time.Now().UTC()); err != nil {
		if utils.IsAppErrorCode(err, utils.ErrCodeNotFound) {
			s.writeError(w, http.StatusNotFound, "Session not found", err)
		} else {
			s.writeError(w, http.StatusConflict, "Failed to close session", err)
		}
		return
	}

	session, err := s.storage.GetSession(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to reload session", err)
		return
	}
	s.writeJSON(w, http.StatusOK, session)
}

func (s *HTTPServer) deleteSessionHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := s.storage.DeleteSession(r.Context(), id); err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to delete session", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{"deleted": id})
}

// Lookup handler

func (s *HTTPServer) lookupHandler(w http.ResponseWriter, r *http.Request) {
	if s.lookup == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Lookup is not configured", nil)
		return
	}

	callsign := mux.Vars(r)["callsign"]
	refresh := r.URL.Query().Get("refresh") == "true"

	var info *models.CallsignInfo
	var err error
	if refresh {
		info, err = s.lookup.Refresh(r.Context(), callsign)
	} else {
		info, err = s.lookup.Lookup(r.Context(), callsign)
	}

	if err != nil {
		switch {
		case utils.IsAppErrorCode(err, utils.ErrCodeValidation):
			s.writeError(w, http.StatusBadRequest, "Invalid callsign", err)
		case utils.IsAppErrorCode(err, utils.ErrCodeNotFound):
			s.writeError(w, http.StatusNotFound, "Callsign not found", err)
		default:
			s.writeError(w, http.StatusBadGateway, "Lookup failed", err)
		}
		return
	}

	s.writeJSON(w, http.StatusOK, info)
}

// Sync handlers

func (s *HTTPServer) syncRunHandler(w http.ResponseWriter, r *http.Request) {
	if s.sync == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Sync is not configured", nil)
		return
	}

	if backend := r.URL.Query().Get("backend"); backend != "" {
		report, err := s.sync.SyncBackend(r.Context(), models.SyncBackend(backend))
		if err != nil {
			if utils.IsAppErrorCode(err, utils.ErrCodeNotFound) {
				s.writeError(w, http.StatusNotFound, "Unknown or disabled backend", err)
			} else {
				s.writeError(w, http.StatusBadGateway, "Sync failed", err)
			}
			return
		}
		s.writeJSON(w, http.StatusOK, report)
		return
	}

	report, err := s.sync.SyncAll(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Sync failed", err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *HTTPServer) syncStatusHandler(w http.ResponseWriter, r *http.Request) {
	if s.sync == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Sync is not configured", nil)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"running":  s.sync.IsRunning(),
		"backends": s.sync.Backends(),
		"stats":    s.sync.GetStats(),
	})
}

func (s *HTTPServer) syncReportHandler(w http.ResponseWriter, r *http.Request) {
	if s.sync == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Sync is not configured", nil)
		return
	}

	report := s.sync.LastReport()
	if report == nil {
		s.writeError(w, http.StatusNotFound, "No sync has run yet", nil)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *HTTPServer) dedupHandler(w http.ResponseWriter, r *http.Request) {
	if s.sync == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Sync is not configured", nil)
		return
	}

	removed, err := s.sync.Deduplicate(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Deduplication failed", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"removed": removed})
}

// ADIF transfer handlers

func (s *HTTPServer) importHandler(w http.ResponseWriter, r *http.Request) {
	if s.sync == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Sync is not configured", nil)
		return
	}
	defer r.Body.Close()

	result, err := s.sync.ImportADIF(r.Context(), r.Body, r.URL.Query().Get("session"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "ADIF import failed", err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) exportHandler(w http.ResponseWriter, r *http.Request) {
	if s.sync == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Sync is not configured", nil)
		return
	}

	filter := parseQSOFilter(r)
	// Exports are unbounded unless the caller limits them
	if r.URL.Query().Get("limit") == "" {
		filter.Limit = 0
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="carrierwave.adi"`)

	if _, err := s.sync.ExportADIF(r.Context(), w, filter, s.version); err != nil {
		s.logger.WithError(err).Error("ADIF export failed")
	}
}

// Spot handler

func (s *HTTPServer) listSpotsHandler(w http.ResponseWriter, r *http.Request) {
	if s.spots == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Spot feeds are not configured", nil)
		return
	}

	q := r.URL.Query()
	filter := models.SpotFilter{Limit: 100}

	if v := q.Get("dx_call"); v != "" {
		call := utils.NormalizeCallsign(v)
		filter.DXCall = &call
	}
	if v := q.Get("band"); v != "" {
		filter.Band = &v
	}
	if v := q.Get("mode"); v != "" {
		filter.Mode = &v
	}
	if v := q.Get("source"); v != "" {
		source := models.SpotSource(v)
		filter.Source = &source
	}
	if v := q.Get("since"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.Since = &t
		}
	}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 {
		filter.Limit = v
	}

	result, err := s.spots.GetSpots(r.Context(), filter)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve spots", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"spots": result,
		"total": len(result),
	})
}

// Conditions handler

func (s *HTTPServer) solarConditionsHandler(w http.ResponseWriter, r *http.Request) {
	if s.conditions == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Conditions service is not configured", nil)
		return
	}

	reading := s.conditions.Current()
	if reading == nil {
		s.writeError(w, http.StatusServiceUnavailable, "No conditions data available yet", nil)
		return
	}
	s.writeJSON(w, http.StatusOK, reading)
}
