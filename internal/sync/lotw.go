// File: internal/sync/lotw.go
package sync

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fullduplex/carrierwave/internal/adif"
	"github.com/fullduplex/carrierwave/internal/config"
	"github.com/fullduplex/carrierwave/internal/models"
	"github.com/fullduplex/carrierwave/internal/storage"
	"github.com/fullduplex/carrierwave/pkg/utils"
)

// lotwMatchWindow is how far a LoTW timestamp may drift from the local
// record and still confirm it
const lotwMatchWindow = 10 * time.Minute

// LoTWBackend downloads QSL confirmations from ARRL Logbook of the World.
// Upload is not supported: LoTW submissions must be signed with the TQSL
// certificate tooling, which has no API.
type LoTWBackend struct {
	config     *config.LoTWConfig
	syncConfig *config.SyncConfig
	storage    storage.Storage
	httpClient *http.Client
	logger     *logrus.Entry
}

// NewLoTWBackend creates the LoTW confirmation backend
func NewLoTWBackend(cfg *config.LoTWConfig, syncCfg *config.SyncConfig, store storage.Storage) *LoTWBackend {
	return &LoTWBackend{
		config:     cfg,
		syncConfig: syncCfg,
		storage:    store,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		logger:     logrus.WithField("component", "sync-lotw"),
	}
}

// Name identifies the backend
func (b *LoTWBackend) Name() models.SyncBackend {
	return models.BackendLoTW
}

// Sync downloads the confirmation report since the stored cursor and
// marks matching local QSOs confirmed. The cursor is the qso_qslsince
// date of the last successful run.
func (b *LoTWBackend) Sync(ctx context.Context) (*BackendReport, error) {
	report := &BackendReport{Backend: models.BackendLoTW}

	cursor, err := b.storage.GetSyncCursor(ctx, models.BackendLoTW)
	if err != nil {
		return report, err
	}

	params := url.Values{}
	params.Set("login", b.config.Username)
	params.Set("password", b.config.Password)
	params.Set("qso_query", "1")
	params.Set("qso_qsl", "yes")
	if cursor != "" {
		params.Set("qso_qslsince", cursor)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		b.config.Endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return report, utils.NewAppError(utils.ErrCodeInternal, "Failed to build LoTW request", err.Error())
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return report, utils.NewAppError(utils.ErrCodeConnection, "LoTW request failed", err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return report, utils.NewAppError(utils.ErrCodeAuth, "LoTW login rejected", "")
	}
	if resp.StatusCode != http.StatusOK {
		return report, utils.NewAppError(utils.ErrCodeExternal, "LoTW returned unexpected status",
			fmt.Sprintf("HTTP %d", resp.StatusCode))
	}

	records, err := adif.Parse(resp.Body)
	if err != nil {
		return report, err
	}

	confirmed, err := b.applyConfirmations(ctx, records)
	if err != nil {
		return report, err
	}
	report.Confirmed = confirmed
	report.Downloaded = len(records)

	// Next run only needs confirmations since today
	today := time.Now().UTC().Format("2006-01-02")
	if err := b.storage.SetSyncCursor(ctx, models.BackendLoTW, today); err != nil {
		return report, err
	}

	return report, nil
}

// applyConfirmations marks local QSOs confirmed when a QSL_RCVD=Y record
// matches on callsign, band and mode within the match window.
func (b *LoTWBackend) applyConfirmations(ctx context.Context, records []adif.Record) (int, error) {
	confirmed := 0

	for _, record := range records {
		qso, err := record.QSO()
		if err != nil {
			b.logger.WithError(err).Debug("Skipping unparseable LoTW record")
			continue
		}
		if !qso.LoTWConfirmed {
			continue
		}

		local, err := b.storage.FindQSO(ctx, qso.Callsign, qso.Band, qso.Mode, qso.Timestamp, lotwMatchWindow)
		if err != nil {
			return confirmed, err
		}
		if local == nil || local.LoTWConfirmed {
			continue
		}

		local.LoTWConfirmed = true
		local.MarkSynced(models.BackendLoTW)
		if err := b.storage.UpdateQSO(ctx, local); err != nil {
			return confirmed, err
		}
		confirmed++
	}

	return confirmed, nil
}
