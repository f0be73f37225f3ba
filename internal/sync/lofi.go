// File: internal/sync/lofi.go
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

const (
	lofiBatchSize    = 50
	lofiPollInterval = 5 * time.Second
	lofiPollAttempts = 24
)

// LoFiBackend syncs with the Ham2K LoFi server. First contact uses a
// device-link flow: the server mails the operator a confirmation and the
// client polls until the link is approved, after which the token from
// configuration (or the link response) authorizes uploads.
type LoFiBackend struct {
	config     *config.LoFiConfig
	syncConfig *config.SyncConfig
	storage    storage.Storage
	httpClient *http.Client
	logger     *logrus.Entry

	token string
}

// NewLoFiBackend creates the LoFi sync backend
func NewLoFiBackend(cfg *config.LoFiConfig, syncCfg *config.SyncConfig, store storage.Storage) *LoFiBackend {
	return &LoFiBackend{
		config:     cfg,
		syncConfig: syncCfg,
		storage:    store,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logrus.WithField("component", "sync-lofi"),
		token:      cfg.Token,
	}
}

// Name identifies the backend
func (b *LoFiBackend) Name() models.SyncBackend {
	return models.BackendLoFi
}

// Sync links the device when needed, then uploads unsynced QSOs
func (b *LoFiBackend) Sync(ctx context.Context) (*BackendReport, error) {
	report := &BackendReport{Backend: models.BackendLoFi}

	if b.token == "" {
		token, err := b.linkDevice(ctx)
		if err != nil {
			return report, err
		}
		b.token = token
	}

	backend := models.BackendLoFi
	qsos, err := b.storage.GetQSOs(ctx, models.QSOFilter{Unsynced: &backend})
	if err != nil {
		return report, err
	}

	for start := 0; start < len(qsos); start += lofiBatchSize {
		end := start + lofiBatchSize
		if end > len(qsos) {
			end = len(qsos)
		}
		batch := qsos[start:end]

		if err := b.uploadBatch(ctx, batch); err != nil {
			return report, err
		}

		for _, qso := range batch {
			qso.MarkSynced(models.BackendLoFi)
			if err := b.storage.UpdateQSO(ctx, qso); err != nil {
				return report, err
			}
		}
		report.Uploaded += len(batch)
	}

	return report, nil
}

type lofiLinkResponse struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Token     string `json:"token"`
	Confirmed bool   `json:"confirmed"`
}

// linkDevice runs the device-link flow: register the client by email,
// then poll until the operator confirms the emailed link.
func (b *LoFiBackend) linkDevice(ctx context.Context) (string, error) {
	if b.config.Email == "" {
		return "", utils.NewAppError(utils.ErrCodeConfiguration,
			"LoFi requires either a token or an account email", "")
	}

	body, _ := json.Marshal(map[string]string{
		"email": b.config.Email,
		"name":  "carrierwave",
	})

	resp, err := b.post(ctx, "/v1/client", body, "")
	if err != nil {
		return "", err
	}
	link, err := decodeLink(resp)
	if err != nil {
		return "", err
	}

	b.logger.WithField("link_id", link.ID).Info("LoFi device link pending email confirmation")

	for attempt := 0; attempt < lofiPollAttempts; attempt++ {
		select {
		case <-time.After(lofiPollInterval):
		case <-ctx.Done():
			return "", ctx.Err()
		}

		resp, err := b.get(ctx, "/v1/client/"+link.ID)
		if err != nil {
			return "", err
		}
		status, err := decodeLink(resp)
		if err != nil {
			return "", err
		}
		if status.Confirmed && status.Token != "" {
			b.logger.Info("LoFi device link confirmed")
			return status.Token, nil
		}
	}

	return "", utils.NewAppError(utils.ErrCodeAuth, "LoFi device link not confirmed in time", "")
}

func decodeLink(resp *http.Response) (*lofiLinkResponse, error) {
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, utils.NewAppError(utils.ErrCodeExternal, "LoFi returned unexpected status",
			fmt.Sprintf("HTTP %d", resp.StatusCode))
	}

	var link lofiLinkResponse
	if err := json.NewDecoder(resp.Body).Decode(&link); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeParse, "Failed to parse LoFi response", err.Error())
	}
	return &link, nil
}

func (b *LoFiBackend) uploadBatch(ctx context.Context, batch []*models.QSO) error {
	body, err := json.Marshal(map[string]interface{}{"qsos": batch})
	if err != nil {
		return utils.NewAppError(utils.ErrCodeInternal, "Failed to marshal LoFi batch", err.Error())
	}

	resp, err := b.post(ctx, "/v1/sync", body, b.token)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		return nil
	case resp.StatusCode == http.StatusUnauthorized:
		// Token revoked; force a fresh link next run
		b.token = ""
		return utils.NewAppError(utils.ErrCodeAuth, "LoFi token rejected", "")
	default:
		return utils.NewAppError(utils.ErrCodeSync, "LoFi upload failed",
			fmt.Sprintf("HTTP %d", resp.StatusCode))
	}
}

func (b *LoFiBackend) post(ctx context.Context, path string, body []byte, token string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(b.config.Endpoint, "/")+path, bytes.NewReader(body))
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeInternal, "Failed to build LoFi request", err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeConnection, "LoFi request failed", err.Error())
	}
	return resp, nil
}

func (b *LoFiBackend) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		strings.TrimRight(b.config.Endpoint, "/")+path, nil)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeInternal, "Failed to build LoFi request", err.Error())
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeConnection, "LoFi request failed", err.Error())
	}
	return resp, nil
}
