package app

import (
	"context"
	"time"

	"papercast/internal/util"
	"papercast/pkg/domain"
)

// SweepSummary counts what one orphan sweep saw and did.
type SweepSummary struct {
	Scanned  int `json:"scanned"`
	Orphaned int `json:"orphaned"`
	Deleted  int `json:"deleted"`
	Failed   int `json:"failed"`
}

// SweepOrphans deletes pending blobs older than olderThan that no record
// references. Younger blobs are skipped: their intake may still be
// creating the record.
func (a *App) SweepOrphans(ctx context.Context, olderThan time.Duration) (SweepSummary, error) {
	if olderThan <= 0 {
		olderThan = defaultOrphanAge
	}
	logger := util.LoggerFromContext(ctx)
	cutoff := a.now().UTC().Add(-olderThan)
	objects, err := a.objects.List(ctx, domain.PendingKeyPrefix)
	if err != nil {
		return SweepSummary{}, domain.Storage("could not list pending blobs", err)
	}

	var sum SweepSummary
	for _, obj := range objects {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		sum.Scanned++
		id, ok := uploadIDFromKey(obj.Key)
		if !ok {
			logger.Debug("sweep skipped foreign key", "storage_key", obj.Key)
			continue
		}
		if obj.LastModified.After(cutoff) {
			continue
		}
		exists, err := a.store.UploadExists(ctx, id)
		if err != nil {
			sum.Failed++
			logger.Warn("sweep record lookup failed", "storage_key", obj.Key, "err", err)
			continue
		}
		if exists {
			continue
		}
		sum.Orphaned++
		if err := a.objects.Delete(ctx, obj.Key); err != nil {
			sum.Failed++
			logger.Warn("sweep blob delete failed", "storage_key", obj.Key, "err", err)
			continue
		}
		sum.Deleted++
		orphansDeleted.Inc()
		logger.Info("sweep removed orphan blob", "storage_key", obj.Key, "last_modified", obj.LastModified)
	}
	return sum, nil
}
