package store

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"papercast/pkg/domain"
)

// MemoryStore keeps uploads in-process for local development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	uploads map[string]domain.Upload
	owners  map[string]domain.Owner
	now     func() time.Time
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		uploads: make(map[string]domain.Upload),
		owners:  make(map[string]domain.Owner),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// CreateUpload stores a new upload. Replaying the same id and storage key is a no-op.
func (m *MemoryStore) CreateUpload(_ context.Context, u domain.Upload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.uploads[u.ID]; ok {
		if existing.StorageKey != u.StorageKey {
			return ErrDuplicateUpload
		}
		return nil
	}
	for _, existing := range m.uploads {
		if existing.StorageKey == u.StorageKey {
			return ErrDuplicateUpload
		}
	}
	m.uploads[u.ID] = cloneUpload(u)
	return nil
}

// GetUpload retrieves an upload by ID.
func (m *MemoryStore) GetUpload(_ context.Context, id string) (domain.Upload, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.uploads[id]
	return cloneUpload(u), ok, nil
}

// UploadExists reports whether id is stored.
func (m *MemoryStore) UploadExists(_ context.Context, id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.uploads[id]
	return ok, nil
}

// ListUploadsByOwner returns the owner's uploads newest first.
func (m *MemoryStore) ListUploadsByOwner(_ context.Context, ownerID string) ([]domain.Upload, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Upload, 0)
	for _, u := range m.uploads {
		if u.OwnerID == ownerID {
			res = append(res, cloneUpload(u))
		}
	}
	slices.SortFunc(res, func(a, b domain.Upload) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	return res, nil
}

// ListForProcessing returns a page of uploads in ProcessingOrder.
func (m *MemoryStore) ListForProcessing(_ context.Context, filter ListFilter) ([]domain.Upload, error) {
	filter = filter.Normalize()
	m.mu.RLock()
	defer m.mu.RUnlock()
	return page(m.filtered(filter), filter), nil
}

// ListAll returns a page of uploads in ProcessingOrder joined with owners.
func (m *MemoryStore) ListAll(_ context.Context, filter ListFilter) ([]domain.UploadWithOwner, int64, error) {
	filter = filter.Normalize()
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := m.filtered(filter)
	items := page(all, filter)
	res := make([]domain.UploadWithOwner, 0, len(items))
	for _, u := range items {
		owner, ok := m.owners[u.OwnerID]
		if !ok {
			owner = domain.Owner{ID: u.OwnerID}
		}
		res = append(res, domain.UploadWithOwner{Upload: u, Owner: owner})
	}
	return res, int64(len(all)), nil
}

func (m *MemoryStore) filtered(filter ListFilter) []domain.Upload {
	res := make([]domain.Upload, 0, len(m.uploads))
	for _, u := range m.uploads {
		if filter.Status != nil && u.Status != *filter.Status {
			continue
		}
		if filter.OwnerID != nil && u.OwnerID != *filter.OwnerID {
			continue
		}
		res = append(res, cloneUpload(u))
	}
	slices.SortFunc(res, compareProcessing)
	return res
}

// compareProcessing mirrors ProcessingOrder.
func compareProcessing(a, b domain.Upload) int {
	if c := cmp.Compare(a.Priority, b.Priority); c != 0 {
		return c
	}
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

func page(items []domain.Upload, filter ListFilter) []domain.Upload {
	if filter.Offset >= len(items) {
		return []domain.Upload{}
	}
	end := min(filter.Offset+filter.Limit, len(items))
	return items[filter.Offset:end]
}

// UpdateUpload applies a partial update.
func (m *MemoryStore) UpdateUpload(_ context.Context, id string, patch domain.UploadPatch) (domain.Upload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.uploads[id]
	if !ok {
		return domain.Upload{}, ErrNotFound
	}
	if patch.ExpectedVersion.Set && patch.ExpectedVersion.Value != u.Version {
		return domain.Upload{}, ErrVersionConflict
	}
	u = patch.Apply(u)
	u.Version++
	u.UpdatedAt = m.now()
	m.uploads[id] = u
	return cloneUpload(u), nil
}

// DeleteUpload removes an upload.
func (m *MemoryStore) DeleteUpload(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.uploads[id]; !ok {
		return ErrNotFound
	}
	delete(m.uploads, id)
	return nil
}

// UpsertOwner records display identity for an owner.
func (m *MemoryStore) UpsertOwner(_ context.Context, o domain.Owner) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o.UpdatedAt = m.now()
	m.owners[o.ID] = o
	return nil
}

func cloneUpload(u domain.Upload) domain.Upload {
	if u.ExtractedAuthors != nil {
		u.ExtractedAuthors = append([]string(nil), u.ExtractedAuthors...)
	}
	return u
}
