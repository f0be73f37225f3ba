// File: internal/sync/hamrs.go
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

// hamrsBatchSize bounds a single upload request
const hamrsBatchSize = 100

// HAMRSBackend pushes QSO batches to the HAMRS Pro API. The cursor is the
// UpdatedAt of the newest record already pushed, so edits re-upload.
type HAMRSBackend struct {
	config     *config.HAMRSConfig
	syncConfig *config.SyncConfig
	storage    storage.Storage
	httpClient *http.Client
	logger     *logrus.Entry
}

// NewHAMRSBackend creates the HAMRS sync backend
func NewHAMRSBackend(cfg *config.HAMRSConfig, syncCfg *config.SyncConfig, store storage.Storage) *HAMRSBackend {
	return &HAMRSBackend{
		config:     cfg,
		syncConfig: syncCfg,
		storage:    store,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logrus.WithField("component", "sync-hamrs"),
	}
}

// Name identifies the backend
func (b *HAMRSBackend) Name() models.SyncBackend {
	return models.BackendHAMRS
}

// Sync uploads unsynced QSOs in batches
func (b *HAMRSBackend) Sync(ctx context.Context) (*BackendReport, error) {
	report := &BackendReport{Backend: models.BackendHAMRS}

	backend := models.BackendHAMRS
	qsos, err := b.storage.GetQSOs(ctx, models.QSOFilter{Unsynced: &backend})
	if err != nil {
		return report, err
	}
	if len(qsos) == 0 {
		return report, nil
	}

	for start := 0; start < len(qsos); start += hamrsBatchSize {
		end := start + hamrsBatchSize
		if end > len(qsos) {
			end = len(qsos)
		}
		batch := qsos[start:end]

		if err := b.uploadBatch(ctx, batch); err != nil {
			return report, err
		}

		var newest time.Time
		for _, qso := range batch {
			qso.MarkSynced(models.BackendHAMRS)
			if err := b.storage.UpdateQSO(ctx, qso); err != nil {
				return report, err
			}
			if qso.UpdatedAt.After(newest) {
				newest = qso.UpdatedAt
			}
		}
		report.Uploaded += len(batch)

		if err := b.storage.SetSyncCursor(ctx, models.BackendHAMRS,
			newest.UTC().Format(time.RFC3339)); err != nil {
			return report, err
		}
	}

	return report, nil
}

func (b *HAMRSBackend) uploadBatch(ctx context.Context, batch []*models.QSO) error {
	body, err := json.Marshal(map[string]interface{}{"qsos": batch})
	if err != nil {
		return utils.NewAppError(utils.ErrCodeInternal, "Failed to marshal HAMRS batch", err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(b.config.Endpoint, "/")+"/qsos/batch", bytes.NewReader(body))
	if err != nil {
		return utils.NewAppError(utils.ErrCodeInternal, "Failed to build HAMRS request", err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", b.config.APIKey)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeConnection, "HAMRS request failed", err.Error())
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		return nil
	case resp.StatusCode == http.StatusUnauthorized:
		return utils.NewAppError(utils.ErrCodeAuth, "HAMRS API key rejected", "")
	default:
		return utils.NewAppError(utils.ErrCodeSync, "HAMRS upload failed",
			fmt.Sprintf("HTTP %d", resp.StatusCode))
	}
}
