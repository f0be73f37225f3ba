// File: internal/sync/transfer.go
package sync

import (
	"context"
	"io"
	"time"

	"github.com/fullduplex/carrierwave/internal/adif"
	"github.com/fullduplex/carrierwave/internal/models"
	"github.com/fullduplex/carrierwave/pkg/utils"
)

// ImportResult summarizes an ADIF import
type ImportResult struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
	Invalid  int `json:"invalid"`
}

// ImportADIF reads an ADIF document and stores its QSOs. Records that
// duplicate an existing contact within the dedup window are skipped;
// records missing required fields are counted but not fatal.
func (s *Service) ImportADIF(ctx context.Context, r io.Reader, sessionID string) (*ImportResult, error) {
	records, err := adif.Parse(r)
	if err != nil {
		return nil, err
	}

	window := s.config.DedupWindow
	if window <= 0 {
		window = 15 * time.Minute
	}

	result := &ImportResult{}
	for _, record := range records {
		qso, err := record.QSO()
		if err != nil {
			result.Invalid++
			continue
		}

		existing, err := s.storage.FindQSO(ctx, qso.Callsign, qso.Band, qso.Mode, qso.Timestamp, window)
		if err != nil {
			return result, err
		}
		if existing != nil {
			result.Skipped++
			continue
		}

		qso.ID = utils.GenerateID()
		qso.SessionID = sessionID
		if err := s.storage.SaveQSO(ctx, qso); err != nil {
			return result, err
		}
		result.Imported++
	}

	if err := s.storage.LogEvent(ctx, "import", map[string]interface{}{
		"imported": result.Imported,
		"skipped":  result.Skipped,
		"invalid":  result.Invalid,
	}); err != nil {
		s.logger.WithError(err).Debug("Failed to record import event")
	}

	if s.metrics != nil {
		s.metrics.RecordQSOsImported("adif", result.Imported)
	}
	return result, nil
}

// ExportADIF writes the QSOs matching a filter as an ADIF document
func (s *Service) ExportADIF(ctx context.Context, w io.Writer, filter models.QSOFilter, version string) (int, error) {
	qsos, err := s.storage.GetQSOs(ctx, filter)
	if err != nil {
		return 0, err
	}

	if err := adif.Write(w, qsos, adif.Header{ProgramVersion: version}); err != nil {
		return 0, err
	}
	return len(qsos), nil
}
