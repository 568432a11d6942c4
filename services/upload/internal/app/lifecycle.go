package app

import (
	"context"

	"papercast/internal/util"
	"papercast/pkg/domain"
	"papercast/pkg/store"
)

// Transition moves an upload to target on behalf of a worker (or admin).
// The write is conditional on the version that was validated, so a
// concurrent edit makes this call fail with a Conflict.
func (a *App) Transition(ctx context.Context, actor domain.Actor, id string, target domain.UploadStatus, errMsg string) (domain.Upload, error) {
	if err := requireWorker(actor); err != nil {
		return domain.Upload{}, err
	}
	if !target.Valid() {
		return domain.Upload{}, domain.Validation("unknown status " + string(target))
	}
	current, ok, err := a.store.GetUpload(ctx, id)
	if err != nil {
		return domain.Upload{}, storeError("load upload", err)
	}
	if !ok {
		return domain.Upload{}, domain.NotFound("upload not found")
	}
	patch, err := domain.Transition(current.Status, target, errMsg)
	if err != nil {
		return domain.Upload{}, err
	}
	patch.ExpectedVersion = domain.Some(current.Version)
	return a.applyUpdate(ctx, current, patch)
}

// applyUpdate writes patch and records the status change, if any.
func (a *App) applyUpdate(ctx context.Context, current domain.Upload, patch domain.UploadPatch) (domain.Upload, error) {
	updated, err := a.store.UpdateUpload(ctx, current.ID, patch)
	if err != nil {
		return domain.Upload{}, storeError("update upload", err)
	}
	if updated.Status != current.Status {
		uploadTransitions.WithLabelValues(string(current.Status), string(updated.Status)).Inc()
		util.LoggerFromContext(ctx).Info("upload status changed",
			"upload_id", updated.ID, "from", current.Status, "to", updated.Status, "version", updated.Version)
		if updated.Status == domain.StatusPending {
			a.notifyPending(ctx, updated)
		}
	}
	return updated, nil
}

// Queue lists uploads in processing order. An unset status means pending.
func (a *App) Queue(ctx context.Context, actor domain.Actor, filter store.ListFilter) ([]domain.Upload, error) {
	if err := requireWorker(actor); err != nil {
		return nil, err
	}
	if filter.Status == nil {
		pending := domain.StatusPending
		filter.Status = &pending
	} else if !filter.Status.Valid() {
		return nil, domain.Validation("unknown status " + string(*filter.Status))
	}
	filter.OwnerID = nil
	items, err := a.store.ListForProcessing(ctx, filter.Normalize())
	if err != nil {
		return nil, storeError("list queue", err)
	}
	return items, nil
}
