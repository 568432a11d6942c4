package app

import (
	"context"
	"strings"

	"papercast/pkg/domain"
	"papercast/pkg/store"
)

// AdminList is one page of the unscoped admin listing.
type AdminList struct {
	Items  []domain.UploadWithOwner `json:"items"`
	Total  int64                    `json:"total"`
	Limit  int                      `json:"limit"`
	Offset int                      `json:"offset"`
}

// ListAll lists every upload in processing order, joined with its owner.
func (a *App) ListAll(ctx context.Context, actor domain.Actor, filter store.ListFilter) (AdminList, error) {
	if err := requireAdmin(actor); err != nil {
		return AdminList{}, err
	}
	if filter.Status != nil && !filter.Status.Valid() {
		return AdminList{}, domain.Validation("unknown status " + string(*filter.Status))
	}
	if filter.OwnerID != nil && strings.TrimSpace(*filter.OwnerID) == "" {
		filter.OwnerID = nil
	}
	filter = filter.Normalize()
	items, total, err := a.store.ListAll(ctx, filter)
	if err != nil {
		return AdminList{}, storeError("list uploads", err)
	}
	if items == nil {
		items = []domain.UploadWithOwner{}
	}
	return AdminList{Items: items, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

// Update applies an admin patch. Status changes follow the transition
// table; a status equal to the current one is treated as unchanged.
// errorMessage may be cleared at any time but set only on failed uploads.
func (a *App) Update(ctx context.Context, actor domain.Actor, id string, patch domain.UploadPatch) (domain.Upload, error) {
	if err := requireAdmin(actor); err != nil {
		return domain.Upload{}, err
	}
	patch.PageCount = domain.Optional[int]{}
	if patch.Empty() {
		return domain.Upload{}, domain.Validation("patch contains no fields")
	}
	if patch.Priority.Set && !domain.ValidPriority(patch.Priority.Value) {
		return domain.Upload{}, domain.Validation("priority must be between 1 and 10")
	}
	if patch.Status.Set && !patch.Status.Value.Valid() {
		return domain.Upload{}, domain.Validation("unknown status " + string(patch.Status.Value))
	}
	if patch.ErrorMessage.Set {
		patch.ErrorMessage.Value = strings.TrimSpace(patch.ErrorMessage.Value)
	}
	if patch.ExtractedAuthors.Set {
		patch.ExtractedAuthors.Value = normalizeAuthors(patch.ExtractedAuthors.Value)
	}

	current, err := a.loadVisible(ctx, actor, id)
	if err != nil {
		return domain.Upload{}, err
	}
	if patch.ExpectedVersion.Set && patch.ExpectedVersion.Value != current.Version {
		return domain.Upload{}, domain.Conflict("upload was modified concurrently; reload and retry")
	}

	if patch.Status.Set && patch.Status.Value == current.Status {
		patch.Status = domain.Optional[domain.UploadStatus]{}
	}
	if patch.Status.Set {
		step, err := domain.Transition(current.Status, patch.Status.Value, patch.ErrorMessage.Value)
		if err != nil {
			return domain.Upload{}, err
		}
		if !patch.ErrorMessage.Set {
			patch.ErrorMessage = step.ErrorMessage
		}
	}

	result := patch.Apply(current)
	if patch.ErrorMessage.Set && result.ErrorMessage != "" && result.Status != domain.StatusFailed {
		return domain.Upload{}, domain.Validation("errorMessage may only be set on failed uploads")
	}
	if patch.Empty() {
		return current, nil
	}
	if !patch.ExpectedVersion.Set && (patch.Status.Set || patch.ErrorMessage.Set) {
		patch.ExpectedVersion = domain.Some(current.Version)
	}
	return a.applyUpdate(ctx, current, patch)
}
