package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"papercast/pkg/domain"
)

var baseTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newUpload(id, owner string, priority int, createdAt time.Time) domain.Upload {
	return domain.Upload{
		ID:               id,
		OwnerID:          owner,
		OriginalFilename: id + ".pdf",
		StorageKey:       domain.PendingKeyPrefix + id + ".pdf",
		StorageLocator:   "http://blobs.local/papers/pending/" + id + ".pdf",
		SizeBytes:        1024,
		Status:           domain.StatusPending,
		Priority:         priority,
		Version:          1,
		CreatedAt:        createdAt,
		UpdatedAt:        createdAt,
	}
}

func ids(items []domain.Upload) []string {
	out := make([]string, 0, len(items))
	for _, u := range items {
		out = append(out, u.ID)
	}
	return out
}

func sameIDs(got, want []string) bool {
	return fmt.Sprint(got) == fmt.Sprint(want)
}

// runStoreContract exercises behavior every Store implementation must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("processing order is priority then age", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		for i, p := range []int{5, 1, 5, 3} {
			u := newUpload(fmt.Sprintf("u%d", i), "owner-a", p, baseTime.Add(time.Duration(i)*time.Minute))
			if err := s.CreateUpload(ctx, u); err != nil {
				t.Fatalf("create %s: %v", u.ID, err)
			}
		}
		got, err := s.ListForProcessing(ctx, ListFilter{Limit: 10})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if want := []string{"u1", "u3", "u0", "u2"}; !sameIDs(ids(got), want) {
			t.Fatalf("order = %v, want %v", ids(got), want)
		}

		paged, err := s.ListForProcessing(ctx, ListFilter{Limit: 2, Offset: 1})
		if err != nil {
			t.Fatalf("list page: %v", err)
		}
		if want := []string{"u3", "u0"}; !sameIDs(ids(paged), want) {
			t.Fatalf("page = %v, want %v", ids(paged), want)
		}
	})

	t.Run("status filter", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		_ = s.CreateUpload(ctx, newUpload("a", "owner-a", 5, baseTime))
		_ = s.CreateUpload(ctx, newUpload("b", "owner-a", 5, baseTime.Add(time.Minute)))
		if _, err := s.UpdateUpload(ctx, "a", domain.UploadPatch{Status: domain.Some(domain.StatusProcessing)}); err != nil {
			t.Fatalf("update: %v", err)
		}
		pending := domain.StatusPending
		got, err := s.ListForProcessing(ctx, ListFilter{Status: &pending})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if want := []string{"b"}; !sameIDs(ids(got), want) {
			t.Fatalf("pending = %v, want %v", ids(got), want)
		}
	})

	t.Run("owner listing newest first", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		_ = s.CreateUpload(ctx, newUpload("old", "owner-a", 1, baseTime))
		_ = s.CreateUpload(ctx, newUpload("new", "owner-a", 9, baseTime.Add(time.Hour)))
		_ = s.CreateUpload(ctx, newUpload("other", "owner-b", 1, baseTime))
		got, err := s.ListUploadsByOwner(ctx, "owner-a")
		if err != nil {
			t.Fatalf("list by owner: %v", err)
		}
		if want := []string{"new", "old"}; !sameIDs(ids(got), want) {
			t.Fatalf("owner order = %v, want %v", ids(got), want)
		}
	})

	t.Run("create is idempotent on id and storage key", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		u := newUpload("dup", "owner-a", 5, baseTime)
		if err := s.CreateUpload(ctx, u); err != nil {
			t.Fatalf("first create: %v", err)
		}
		if err := s.CreateUpload(ctx, u); err != nil {
			t.Fatalf("replayed create should succeed, got %v", err)
		}
		u.StorageKey = "pending/elsewhere.pdf"
		if err := s.CreateUpload(ctx, u); !errors.Is(err, ErrDuplicateUpload) {
			t.Fatalf("expected ErrDuplicateUpload, got %v", err)
		}
	})

	t.Run("partial update applies only set fields", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		u := newUpload("p", "owner-a", 5, baseTime)
		u.Status = domain.StatusFailed
		u.ErrorMessage = "no text layer"
		u.ExtractedAuthors = []string{"Ada", "Grace"}
		if err := s.CreateUpload(ctx, u); err != nil {
			t.Fatalf("create: %v", err)
		}
		got, err := s.UpdateUpload(ctx, "p", domain.UploadPatch{Priority: domain.Some(3)})
		if err != nil {
			t.Fatalf("update priority: %v", err)
		}
		if got.Priority != 3 || got.Status != domain.StatusFailed || got.ErrorMessage != "no text layer" {
			t.Fatalf("unexpected record after priority patch: %+v", got)
		}
		if got.Version != 2 {
			t.Fatalf("version = %d, want 2", got.Version)
		}
		if !sameIDs(got.ExtractedAuthors, []string{"Ada", "Grace"}) {
			t.Fatalf("authors changed: %v", got.ExtractedAuthors)
		}

		got, err = s.UpdateUpload(ctx, "p", domain.UploadPatch{ErrorMessage: domain.Some("")})
		if err != nil {
			t.Fatalf("clear error: %v", err)
		}
		if got.ErrorMessage != "" || got.Priority != 3 {
			t.Fatalf("unexpected record after clear: %+v", got)
		}
		if !got.UpdatedAt.After(baseTime) {
			t.Fatalf("updatedAt not stamped: %v", got.UpdatedAt)
		}
	})

	t.Run("conditional update detects stale version", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		_ = s.CreateUpload(ctx, newUpload("v", "owner-a", 5, baseTime))
		if _, err := s.UpdateUpload(ctx, "v", domain.UploadPatch{
			Status:          domain.Some(domain.StatusProcessing),
			ExpectedVersion: domain.Some(int64(1)),
		}); err != nil {
			t.Fatalf("first conditional update: %v", err)
		}
		_, err := s.UpdateUpload(ctx, "v", domain.UploadPatch{
			Priority:        domain.Some(1),
			ExpectedVersion: domain.Some(int64(1)),
		})
		if !errors.Is(err, ErrVersionConflict) {
			t.Fatalf("expected ErrVersionConflict, got %v", err)
		}
		if _, err := s.UpdateUpload(ctx, "missing", domain.UploadPatch{Priority: domain.Some(1)}); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("delete twice", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		_ = s.CreateUpload(ctx, newUpload("d", "owner-a", 5, baseTime))
		if err := s.DeleteUpload(ctx, "d"); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if err := s.DeleteUpload(ctx, "d"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("second delete expected ErrNotFound, got %v", err)
		}
		if ok, err := s.UploadExists(ctx, "d"); err != nil || ok {
			t.Fatalf("exists after delete = %v, %v", ok, err)
		}
	})

	t.Run("list all joins owners", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		_ = s.CreateUpload(ctx, newUpload("x", "owner-a", 2, baseTime))
		_ = s.CreateUpload(ctx, newUpload("y", "owner-b", 1, baseTime))
		if err := s.UpsertOwner(ctx, domain.Owner{ID: "owner-a", Email: "a@example.com", DisplayName: "Ada"}); err != nil {
			t.Fatalf("upsert owner: %v", err)
		}
		items, total, err := s.ListAll(ctx, ListFilter{Limit: 10})
		if err != nil {
			t.Fatalf("list all: %v", err)
		}
		if total != 2 || len(items) != 2 {
			t.Fatalf("total=%d items=%d, want 2/2", total, len(items))
		}
		if items[0].ID != "y" || items[0].Owner.ID != "owner-b" || items[0].Owner.Email != "" {
			t.Fatalf("unexpected first row: %+v", items[0])
		}
		if items[1].Owner.Email != "a@example.com" || items[1].Owner.DisplayName != "Ada" {
			t.Fatalf("owner not joined: %+v", items[1].Owner)
		}
		ownerB := "owner-b"
		items, total, err = s.ListAll(ctx, ListFilter{OwnerID: &ownerB})
		if err != nil || total != 1 || len(items) != 1 {
			t.Fatalf("owner filter: total=%d items=%d err=%v", total, len(items), err)
		}
	})
}
