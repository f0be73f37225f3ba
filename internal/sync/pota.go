// File: internal/sync/pota.go
package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fullduplex/carrierwave/internal/config"
	"github.com/fullduplex/carrierwave/internal/models"
	"github.com/fullduplex/carrierwave/internal/storage"
	"github.com/fullduplex/carrierwave/pkg/utils"
)

// DuplicateClass classifies a new park contact against prior ones
type DuplicateClass string

const (
	ClassNew       DuplicateClass = "new"
	ClassNewBand   DuplicateClass = "new_band"
	ClassDuplicate DuplicateClass = "duplicate"
)

// ClassifyDuplicate grades a park QSO against existing contacts. Within
// the same park reference and UTC day: same band and mode is a duplicate,
// a different band on the same mode is a new band, anything else is new.
func ClassifyDuplicate(qso *models.QSO, existing []*models.QSO) DuplicateClass {
	day := qso.Timestamp.UTC().Truncate(24 * time.Hour)

	class := ClassNew
	for _, prior := range existing {
		if prior.ID == qso.ID {
			continue
		}
		if !strings.EqualFold(prior.Callsign, qso.Callsign) {
			continue
		}
		if prior.MyPark != qso.MyPark {
			continue
		}
		if !prior.Timestamp.UTC().Truncate(24 * time.Hour).Equal(day) {
			continue
		}

		if strings.EqualFold(prior.Mode, qso.Mode) {
			if strings.EqualFold(prior.Band, qso.Band) {
				return ClassDuplicate
			}
			class = ClassNewBand
		}
	}
	return class
}

// POTABackend uploads park activation QSOs to the Parks on the Air API.
// Authentication is a bearer token from configuration.
type POTABackend struct {
	config     *config.POTAConfig
	syncConfig *config.SyncConfig
	station    *config.StationConfig
	storage    storage.Storage
	httpClient *http.Client
	logger     *logrus.Entry
}

// NewPOTABackend creates the POTA sync backend
func NewPOTABackend(cfg *config.POTAConfig, syncCfg *config.SyncConfig, station *config.StationConfig, store storage.Storage) *POTABackend {
	return &POTABackend{
		config:     cfg,
		syncConfig: syncCfg,
		station:    station,
		storage:    store,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logrus.WithField("component", "sync-pota"),
	}
}

// Name identifies the backend
func (b *POTABackend) Name() models.SyncBackend {
	return models.BackendPOTA
}

// potaQSO is the upload payload for one park contact
type potaQSO struct {
	StationCallsign string  `json:"stationCallsign"`
	Callsign        string  `json:"callsign"`
	Reference       string  `json:"reference"`
	Band            string  `json:"band"`
	Mode            string  `json:"mode"`
	Frequency       float64 `json:"frequency,omitempty"`
	QSODate         string  `json:"qsoDate"`
	TimeOn          string  `json:"timeOn"`
	RSTSent         string  `json:"rstSent,omitempty"`
	RSTRcvd         string  `json:"rstRcvd,omitempty"`
	TheirReference  string  `json:"theirReference,omitempty"`
	Grid            string  `json:"grid,omitempty"`
}

// Sync uploads unsynced park QSOs. Only contacts made from a park
// (MyPark set) belong to POTA; plain QSOs are skipped.
func (b *POTABackend) Sync(ctx context.Context) (*BackendReport, error) {
	report := &BackendReport{Backend: models.BackendPOTA}

	backend := models.BackendPOTA
	qsos, err := b.storage.GetQSOs(ctx, models.QSOFilter{Unsynced: &backend})
	if err != nil {
		return report, err
	}

	for _, qso := range qsos {
		if qso.MyPark == "" {
			// Not a park contact; mark so it stops showing as pending
			qso.MarkSynced(models.BackendPOTA)
			if err := b.storage.UpdateQSO(ctx, qso); err != nil {
				return report, err
			}
			report.Skipped++
			continue
		}

		if err := b.uploadQSO(ctx, qso); err != nil {
			return report, err
		}

		qso.MarkSynced(models.BackendPOTA)
		if err := b.storage.UpdateQSO(ctx, qso); err != nil {
			return report, err
		}
		report.Uploaded++
	}

	return report, nil
}

func (b *POTABackend) uploadQSO(ctx context.Context, qso *models.QSO) error {
	payload := potaQSO{
		StationCallsign: b.station.Callsign,
		Callsign:        qso.Callsign,
		Reference:       qso.MyPark,
		Band:            qso.Band,
		Mode:            qso.Mode,
		QSODate:         qso.Timestamp.UTC().Format("2006-01-02"),
		TimeOn:          qso.Timestamp.UTC().Format("15:04"),
		RSTSent:         qso.RSTSent,
		RSTRcvd:         qso.RSTRcvd,
		TheirReference:  qso.TheirPark,
		Grid:            qso.MyGrid,
	}
	if qso.FrequencyKHz > 0 {
		payload.Frequency = qso.FrequencyKHz
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeInternal, "Failed to marshal POTA payload", err.Error())
	}

	resp, err := b.do(ctx, http.MethodPost, "/qso", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		return nil
	case resp.StatusCode == http.StatusConflict:
		// Server already has the contact
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return utils.NewAppError(utils.ErrCodeAuth, "POTA token rejected", fmt.Sprintf("HTTP %d", resp.StatusCode))
	default:
		return utils.NewAppError(utils.ErrCodeSync, "POTA upload failed", fmt.Sprintf("HTTP %d", resp.StatusCode))
	}
}

// Park describes a POTA park reference
type Park struct {
	Reference string `json:"reference"`
	Name      string `json:"name"`
	Grid      string `json:"grid6"`
	Location  string `json:"locationDesc"`
	Active    int    `json:"active"`
}

// GetPark fetches park metadata by reference
func (b *POTABackend) GetPark(ctx context.Context, reference string) (*Park, error) {
	resp, err := b.do(ctx, http.MethodGet, "/park/"+reference, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, utils.NewAppError(utils.ErrCodeNotFound, "Park not found", reference)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, utils.NewAppError(utils.ErrCodeExternal, "POTA park lookup failed",
			fmt.Sprintf("HTTP %d", resp.StatusCode))
	}

	var park Park
	if err := json.NewDecoder(resp.Body).Decode(&park); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeParse, "Failed to parse park response", err.Error())
	}
	return &park, nil
}

// Probe implements Prober by fetching the activation history, which
// exercises both the endpoint and the bearer token
func (b *POTABackend) Probe(ctx context.Context) error {
	_, err := b.GetActivations(ctx)
	return err
}

// Activation summarizes one of the operator's park activations
type Activation struct {
	Reference string `json:"reference"`
	Date      string `json:"date"`
	QSOs      int    `json:"totalQSOs"`
}

// GetActivations fetches the operator's activation history
func (b *POTABackend) GetActivations(ctx context.Context) ([]Activation, error) {
	resp, err := b.do(ctx, http.MethodGet, "/user/activations", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, utils.NewAppError(utils.ErrCodeExternal, "POTA activations fetch failed",
			fmt.Sprintf("HTTP %d", resp.StatusCode))
	}

	var activations []Activation
	if err := json.NewDecoder(resp.Body).Decode(&activations); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeParse, "Failed to parse activations response", err.Error())
	}
	return activations, nil
}

func (b *POTABackend) do(ctx context.Context, method, path string, body *bytes.Reader) (*http.Response, error) {
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		reader = body
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(b.config.Endpoint, "/")+path, reader)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeInternal, "Failed to build POTA request", err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	if b.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+b.config.Token)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeConnection, "POTA request failed", err.Error())
	}
	return resp, nil
}
