// File: internal/sync/dedup.go
package sync

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/fullduplex/carrierwave/internal/models"
)

// DuplicateGroup is a set of QSOs that describe the same contact
type DuplicateGroup []*models.QSO

// FindDuplicates groups QSOs that share callsign, band and mode with
// timestamps within the window. Input order does not matter; each group
// comes back sorted oldest first.
func FindDuplicates(qsos []*models.QSO, window time.Duration) []DuplicateGroup {
	type key struct {
		call, band, mode string
	}

	buckets := make(map[key][]*models.QSO)
	for _, qso := range qsos {
		k := key{
			call: strings.ToUpper(qso.Callsign),
			band: strings.ToLower(qso.Band),
			mode: strings.ToUpper(qso.Mode),
		}
		buckets[k] = append(buckets[k], qso)
	}

	var groups []DuplicateGroup
	for _, bucket := range buckets {
		if len(bucket) < 2 {
			continue
		}
		sort.Slice(bucket, func(i, j int) bool {
			return bucket[i].Timestamp.Before(bucket[j].Timestamp)
		})

		// Chain contacts whose neighbors fall within the window
		current := DuplicateGroup{bucket[0]}
		for i := 1; i < len(bucket); i++ {
			if bucket[i].Timestamp.Sub(bucket[i-1].Timestamp) <= window {
				current = append(current, bucket[i])
				continue
			}
			if len(current) > 1 {
				groups = append(groups, current)
			}
			current = DuplicateGroup{bucket[i]}
		}
		if len(current) > 1 {
			groups = append(groups, current)
		}
	}

	sort.Slice(groups, func(i, j int) bool {
		return groups[i][0].Timestamp.Before(groups[j][0].Timestamp)
	})
	return groups
}

// MergeGroup collapses a duplicate group into its earliest record. Empty
// fields fill from the later duplicates, sync flags OR together, and the
// merged record keeps the earliest timestamp.
func MergeGroup(group DuplicateGroup) *models.QSO {
	if len(group) == 0 {
		return nil
	}

	keeper := group[0]
	for _, dup := range group[1:] {
		fillEmpty(keeper, dup)

		keeper.SyncedQRZ = keeper.SyncedQRZ || dup.SyncedQRZ
		keeper.SyncedPOTA = keeper.SyncedPOTA || dup.SyncedPOTA
		keeper.SyncedHAMRS = keeper.SyncedHAMRS || dup.SyncedHAMRS
		keeper.SyncedLoTW = keeper.SyncedLoTW || dup.SyncedLoTW
		keeper.SyncedLoFi = keeper.SyncedLoFi || dup.SyncedLoFi
		keeper.LoTWConfirmed = keeper.LoTWConfirmed || dup.LoTWConfirmed

		if keeper.QRZLogID == nil {
			keeper.QRZLogID = dup.QRZLogID
		}
	}
	return keeper
}

func fillEmpty(dst, src *models.QSO) {
	if dst.RSTSent == "" {
		dst.RSTSent = src.RSTSent
	}
	if dst.RSTRcvd == "" {
		dst.RSTRcvd = src.RSTRcvd
	}
	if dst.FrequencyKHz == 0 {
		dst.FrequencyKHz = src.FrequencyKHz
	}
	if dst.Name == "" {
		dst.Name = src.Name
	}
	if dst.GridSquare == "" {
		dst.GridSquare = src.GridSquare
	}
	if dst.QTH == "" {
		dst.QTH = src.QTH
	}
	if dst.State == "" {
		dst.State = src.State
	}
	if dst.Country == "" {
		dst.Country = src.Country
	}
	if dst.PowerW == 0 {
		dst.PowerW = src.PowerW
	}
	if dst.TheirPark == "" {
		dst.TheirPark = src.TheirPark
	}
	if dst.MyPark == "" {
		dst.MyPark = src.MyPark
	}
	if dst.MyGrid == "" {
		dst.MyGrid = src.MyGrid
	}
	if dst.Comments == "" {
		dst.Comments = src.Comments
	}
	if dst.SessionID == "" {
		dst.SessionID = src.SessionID
	}
}

// Deduplicate finds duplicate groups across the whole log, merges each
// group into its earliest record and deletes the rest. Returns the number
// of records removed.
func (s *Service) Deduplicate(ctx context.Context) (int, error) {
	qsos, err := s.storage.GetQSOs(ctx, models.QSOFilter{})
	if err != nil {
		return 0, err
	}

	window := s.config.DedupWindow
	if window <= 0 {
		window = 15 * time.Minute
	}

	removed := 0
	for _, group := range FindDuplicates(qsos, window) {
		keeper := MergeGroup(group)
		if err := s.storage.UpdateQSO(ctx, keeper); err != nil {
			return removed, err
		}
		for _, dup := range group[1:] {
			if err := s.storage.DeleteQSO(ctx, dup.ID); err != nil {
				return removed, err
			}
			removed++
		}
	}

	if removed > 0 {
		s.logger.WithField("removed", removed).Info("Deduplicated log")
		if err := s.storage.LogEvent(ctx, "dedup", map[string]interface{}{"removed": removed}); err != nil {
			s.logger.WithError(err).Debug("Failed to record dedup event")
		}
	}
	return removed, nil
}
