// File: internal/sync/qrz.go
package sync

import (
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/fullduplex/carrierwave/internal/adif"
	"github.com/fullduplex/carrierwave/internal/config"
	"github.com/fullduplex/carrierwave/internal/models"
	"github.com/fullduplex/carrierwave/internal/storage"
	"github.com/fullduplex/carrierwave/pkg/utils"
)

// interPageDelay keeps pagination polite to the QRZ API
const interPageDelay = 200 * time.Millisecond

// QRZBackend syncs against the QRZ Logbook API. The API speaks form-POST
// requests and answers with &-separated key=value pairs; FETCH responses
// carry an ADIF payload after the ADIF= key.
type QRZBackend struct {
	config     *config.QRZSyncConfig
	syncConfig *config.SyncConfig
	storage    storage.Storage
	httpClient *http.Client
	logger     *logrus.Entry
}

// NewQRZBackend creates the QRZ Logbook sync backend
func NewQRZBackend(cfg *config.QRZSyncConfig, syncCfg *config.SyncConfig, store storage.Storage) *QRZBackend {
	return &QRZBackend{
		config:     cfg,
		syncConfig: syncCfg,
		storage:    store,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logrus.WithField("component", "sync-qrz"),
	}
}

// Name identifies the backend
func (b *QRZBackend) Name() models.SyncBackend {
	return models.BackendQRZ
}

// Sync validates the key, uploads unsynced QSOs, then downloads new log
// entries past the stored cursor.
func (b *QRZBackend) Sync(ctx context.Context) (*BackendReport, error) {
	report := &BackendReport{Backend: models.BackendQRZ}

	if _, err := b.Status(ctx); err != nil {
		return report, err
	}

	if err := b.upload(ctx, report); err != nil {
		return report, err
	}
	if err := b.download(ctx, report); err != nil {
		return report, err
	}
	return report, nil
}

// BookStatus describes the remote logbook
type BookStatus struct {
	Callsign string `json:"callsign"`
	BookID   string `json:"book_id"`
	Count    int    `json:"count"`
}

// Status validates the API key with ACTION=STATUS. A RESULT=AUTH response
// means the account has no logbook data subscription.
func (b *QRZBackend) Status(ctx context.Context) (*BookStatus, error) {
	fields, _, err := b.post(ctx, url.Values{
		"KEY":    {b.config.APIKey},
		"ACTION": {"STATUS"},
	})
	if err != nil {
		return nil, err
	}

	if fields["RESULT"] == "AUTH" {
		return nil, utils.NewAppError(utils.ErrCodeAuth,
			"QRZ logbook access requires an active subscription", fields["REASON"])
	}
	if fields["RESULT"] != "OK" {
		return nil, utils.NewAppError(utils.ErrCodeSync, "QRZ status check failed", fields["REASON"])
	}

	count, _ := strconv.Atoi(fields["COUNT"])
	return &BookStatus{
		Callsign: fields["CALLSIGN"],
		BookID:   fields["BOOKID"],
		Count:    count,
	}, nil
}

// Probe implements Prober using the status check
func (b *QRZBackend) Probe(ctx context.Context) error {
	_, err := b.Status(ctx)
	return err
}

// upload pushes unsynced QSOs one at a time with ACTION=INSERT. The
// server reporting a duplicate counts as synced.
func (b *QRZBackend) upload(ctx context.Context, report *BackendReport) error {
	backend := models.BackendQRZ
	qsos, err := b.storage.GetQSOs(ctx, models.QSOFilter{Unsynced: &backend})
	if err != nil {
		return err
	}

	for _, qso := range qsos {
		fields, _, err := b.post(ctx, url.Values{
			"KEY":    {b.config.APIKey},
			"ACTION": {"INSERT"},
			"ADIF":   {adif.FormatQSO(qso)},
		})
		if err != nil {
			return err
		}

		switch {
		case fields["RESULT"] == "OK":
			if logID, err := strconv.ParseInt(fields["LOGID"], 10, 64); err == nil {
				qso.QRZLogID = &logID
			}
		case strings.Contains(strings.ToLower(fields["REASON"]), "duplicate"):
			report.Skipped++
		default:
			return utils.NewAppError(utils.ErrCodeSync, "QRZ insert rejected", fields["REASON"])
		}

		qso.MarkSynced(models.BackendQRZ)
		if err := b.storage.UpdateQSO(ctx, qso); err != nil {
			return err
		}
		if fields["RESULT"] == "OK" {
			report.Uploaded++
		}
	}
	return nil
}

// download pulls pages with ACTION=FETCH, advancing AFTERLOGID past the
// highest log id seen. The cursor only moves after a page is persisted.
func (b *QRZBackend) download(ctx context.Context, report *BackendReport) error {
	cursor, err := b.storage.GetSyncCursor(ctx, models.BackendQRZ)
	if err != nil {
		return err
	}
	afterLogID, _ := strconv.ParseInt(cursor, 10, 64)

	pageSize := b.config.PageSize
	if pageSize <= 0 {
		pageSize = 2000
	}

	for {
		option := fmt.Sprintf("MAX:%d,AFTERLOGID:%d", pageSize, afterLogID)
		fields, adifText, err := b.post(ctx, url.Values{
			"KEY":    {b.config.APIKey},
			"ACTION": {"FETCH"},
			"OPTION": {option},
		})
		if err != nil {
			return err
		}

		if done, err := fetchFinished(fields); done {
			return err
		}

		records, err := adif.ParseString(adifText)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}

		maxLogID := int64(0)
		var page []*models.QSO
		for _, record := range records {
			qso, err := record.QSO()
			if err != nil {
				b.logger.WithError(err).Debug("Skipping unparseable QRZ record")
				continue
			}
			if qso.QRZLogID != nil && *qso.QRZLogID > maxLogID {
				maxLogID = *qso.QRZLogID
			}
			page = append(page, qso)
		}

		stored, err := b.storePage(ctx, page)
		if err != nil {
			return err
		}
		report.Downloaded += stored

		// Pages without log ids cannot advance the cursor; stop rather
		// than refetch the same page forever
		if maxLogID == 0 {
			return nil
		}

		// Cursor moves only once the page is in storage
		afterLogID = maxLogID + 1
		if err := b.storage.SetSyncCursor(ctx, models.BackendQRZ, strconv.FormatInt(afterLogID, 10)); err != nil {
			return err
		}

		if len(records) < pageSize {
			return nil
		}

		select {
		case <-time.After(interPageDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// fetchFinished interprets the FETCH terminal conditions
func fetchFinished(fields map[string]string) (bool, error) {
	reason := strings.ToLower(fields["REASON"])
	if strings.Contains(reason, "no log entries found") {
		return true, nil
	}
	if fields["RESULT"] == "FAIL" {
		if fields["COUNT"] == "0" || fields["COUNT"] == "" {
			return true, nil
		}
		return true, utils.NewAppError(utils.ErrCodeSync, "QRZ fetch failed", fields["REASON"])
	}
	return false, nil
}

// storePage merges downloaded records into local storage. A record that
// matches an existing QSO within the dedup window updates that QSO rather
// than inserting a twin.
func (b *QRZBackend) storePage(ctx context.Context, page []*models.QSO) (int, error) {
	stored := 0
	window := b.syncConfig.DedupWindow
	if window <= 0 {
		window = 15 * time.Minute
	}

	for _, qso := range page {
		existing, err := b.storage.FindQSO(ctx, qso.Callsign, qso.Band, qso.Mode, qso.Timestamp, window)
		if err != nil {
			return stored, err
		}

		if existing != nil {
			existing.QRZLogID = qso.QRZLogID
			existing.MarkSynced(models.BackendQRZ)
			if qso.LoTWConfirmed {
				existing.LoTWConfirmed = true
			}
			if err := b.storage.UpdateQSO(ctx, existing); err != nil {
				return stored, err
			}
			continue
		}

		qso.ID = utils.GenerateID()
		qso.MarkSynced(models.BackendQRZ)
		if err := b.storage.SaveQSO(ctx, qso); err != nil {
			return stored, err
		}
		stored++
	}
	return stored, nil
}

// post sends a form-POST and parses the response. The second return value
// is the decoded, entity-unescaped ADIF payload when present.
func (b *QRZBackend) post(ctx context.Context, form url.Values) (map[string]string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.config.Endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, "", utils.NewAppError(utils.ErrCodeInternal, "Failed to build QRZ request", err.Error())
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, "", utils.NewAppError(utils.ErrCodeConnection, "QRZ request failed", err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", utils.NewAppError(utils.ErrCodeExternal, "QRZ returned unexpected status",
			fmt.Sprintf("HTTP %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", utils.NewAppError(utils.ErrCodeConnection, "Failed to read QRZ response", err.Error())
	}

	fields, adifText := parseQRZResponse(decodeBody(body))
	return fields, adifText, nil
}

// decodeBody interprets the response as UTF-8, falling back to Latin-1
// for the legacy encoding older logbooks still carry.
func decodeBody(body []byte) string {
	if utf8.Valid(body) {
		return string(body)
	}
	runes := make([]rune, len(body))
	for i, c := range body {
		runes[i] = rune(c)
	}
	return string(runes)
}

// parseQRZResponse splits an &-separated key=value response. The ADIF
// value is everything after "ADIF=" because the payload itself contains
// unescaped ampersands.
func parseQRZResponse(body string) (map[string]string, string) {
	adifText := ""
	if idx := strings.Index(body, "ADIF="); idx >= 0 {
		adifText = html.UnescapeString(body[idx+len("ADIF="):])
		body = body[:idx]
	}

	fields := make(map[string]string)
	for _, pair := range strings.Split(body, "&") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, value, found := strings.Cut(pair, "=")
		if !found {
			continue
		}
		fields[strings.ToUpper(strings.TrimSpace(key))] = strings.TrimSpace(value)
	}
	return fields, adifText
}
