package store

import (
	"context"
	"errors"

	"papercast/pkg/domain"
)

var (
	// ErrNotFound is returned when the addressed upload does not exist.
	ErrNotFound = errors.New("upload not found")
	// ErrVersionConflict is returned when a conditional update loses to a
	// concurrent writer.
	ErrVersionConflict = errors.New("upload version conflict")
	// ErrDuplicateUpload is returned when an id is reused for a different blob.
	ErrDuplicateUpload = errors.New("upload id already bound to another storage key")
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// ProcessingOrder is the single ordering used for work queues and admin
// listings: lower priority numbers first, then oldest first, then id.
const ProcessingOrder = "priority ASC, created_at ASC, id ASC"

// OwnerOrder lists an owner's uploads newest first.
const OwnerOrder = "created_at DESC, id DESC"

// ListFilter narrows listing queries. Nil pointers mean "any".
type ListFilter struct {
	Status  *domain.UploadStatus
	OwnerID *string
	Limit   int
	Offset  int
}

// Normalize clamps paging to the accepted bounds.
func (f ListFilter) Normalize() ListFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// Store persists upload records and the owner directory.
type Store interface {
	// uploads
	CreateUpload(ctx context.Context, u domain.Upload) error
	GetUpload(ctx context.Context, id string) (domain.Upload, bool, error)
	ListUploadsByOwner(ctx context.Context, ownerID string) ([]domain.Upload, error)
	ListForProcessing(ctx context.Context, filter ListFilter) ([]domain.Upload, error)
	ListAll(ctx context.Context, filter ListFilter) ([]domain.UploadWithOwner, int64, error)
	UpdateUpload(ctx context.Context, id string, patch domain.UploadPatch) (domain.Upload, error)
	DeleteUpload(ctx context.Context, id string) error
	UploadExists(ctx context.Context, id string) (bool, error)

	// owners
	UpsertOwner(ctx context.Context, owner domain.Owner) error
}
