package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"papercast/internal/util"
	"papercast/pkg/domain"
	"papercast/pkg/store"
)

// Delete removes the blob, then the record. A failed blob delete is
// logged and counted but does not stop the record removal; the record is
// never deleted before its blob has been attempted.
func (a *App) Delete(ctx context.Context, actor domain.Actor, id string) error {
	if err := requireOwnerOrAdmin(actor); err != nil {
		return err
	}
	u, err := a.loadVisible(ctx, actor, id)
	if err != nil {
		return err
	}
	logger := util.LoggerFromContext(ctx).With("upload_id", u.ID, "storage_key", u.StorageKey)

	if strings.TrimSpace(u.StorageKey) != "" {
		if err := a.objects.Delete(ctx, u.StorageKey); err != nil {
			blobDeleteFailures.Inc()
			logger.Warn("blob delete failed, continuing with record", "step", "delete_blob", "err", err)
		}
	}
	if err := a.store.DeleteUpload(ctx, u.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.NotFound("upload not found")
		}
		logger.Error("record delete failed", "step", "delete_record", "err", err)
		return domain.Database("could not delete upload", fmt.Errorf("delete upload %s: %w", u.ID, err))
	}
	logger.Info("upload deleted", "by", actor.ID)
	return nil
}
