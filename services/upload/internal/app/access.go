package app

import (
	"context"
	"strings"

	"papercast/pkg/domain"
)

func requireActor(actor domain.Actor) error {
	if actor.Anonymous() {
		return domain.Unauthorized("authentication required")
	}
	return nil
}

// requireOwnerOrAdmin admits users and admins; workers only see the queue.
func requireOwnerOrAdmin(actor domain.Actor) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	if actor.IsWorker() {
		return domain.Forbidden("workers may not access user uploads")
	}
	return nil
}

func requireAdmin(actor domain.Actor) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	if !actor.IsAdmin() {
		return domain.Forbidden("admin role required")
	}
	return nil
}

func requireWorker(actor domain.Actor) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	if !actor.IsWorker() && !actor.IsAdmin() {
		return domain.Forbidden("worker role required")
	}
	return nil
}

// visible reports whether actor may see u. Records of other owners are
// hidden from users so their existence is not disclosed.
func visible(actor domain.Actor, u domain.Upload) bool {
	return actor.IsAdmin() || u.OwnerID == actor.ID
}

// resolveOwnerFilter returns the owner id a listing may use. Only admins
// may name someone else.
func resolveOwnerFilter(actor domain.Actor, ownerID string) (string, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" || ownerID == actor.ID {
		return actor.ID, nil
	}
	if !actor.IsAdmin() {
		return "", domain.Forbidden("cannot list another user's uploads")
	}
	return ownerID, nil
}

// loadVisible fetches id and applies the read gate.
func (a *App) loadVisible(ctx context.Context, actor domain.Actor, id string) (domain.Upload, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Upload{}, domain.Validation("upload id required")
	}
	u, ok, err := a.store.GetUpload(ctx, id)
	if err != nil {
		return domain.Upload{}, storeError("load upload", err)
	}
	if !ok || !visible(actor, u) {
		return domain.Upload{}, domain.NotFound("upload not found")
	}
	return u, nil
}

// Get returns one upload visible to actor.
func (a *App) Get(ctx context.Context, actor domain.Actor, id string) (domain.Upload, error) {
	if err := requireOwnerOrAdmin(actor); err != nil {
		return domain.Upload{}, err
	}
	return a.loadVisible(ctx, actor, id)
}

// ListByOwner lists uploads of ownerID, newest first. An empty ownerID
// means the caller.
func (a *App) ListByOwner(ctx context.Context, actor domain.Actor, ownerID string) ([]domain.Upload, error) {
	if err := requireOwnerOrAdmin(actor); err != nil {
		return nil, err
	}
	owner, err := resolveOwnerFilter(actor, ownerID)
	if err != nil {
		return nil, err
	}
	items, err := a.store.ListUploadsByOwner(ctx, owner)
	if err != nil {
		return nil, storeError("list uploads", err)
	}
	return items, nil
}
