package app

import (
	"errors"
	"fmt"
	"time"

	"papercast/pkg/domain"
	"papercast/pkg/queue"
	"papercast/pkg/storage"
	"papercast/pkg/store"
)

const (
	defaultPresignExpiry = 15 * time.Minute
	defaultOrphanAge     = time.Hour
)

// Config wires the upload application to its collaborators.
type Config struct {
	Store    store.Store
	Objects  storage.ObjectStore
	Notifier queue.Notifier
	Retry    RetryPolicy
	// MaxUploadBytes is the intake ceiling; zero means domain.MaxUploadBytes.
	MaxUploadBytes int64
	PresignExpiry  time.Duration
	Now            func() time.Time
}

// App coordinates the record store and the object store for uploads.
type App struct {
	store         store.Store
	objects       storage.ObjectStore
	notifier      queue.Notifier
	retry         RetryPolicy
	maxBytes      int64
	presignExpiry time.Duration
	now           func() time.Time
}

// New constructs the application. Store and Objects are required.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, errors.New("record store required")
	}
	if cfg.Objects == nil {
		return nil, errors.New("object store required")
	}
	maxBytes := cfg.MaxUploadBytes
	if maxBytes <= 0 {
		maxBytes = domain.MaxUploadBytes
	}
	if maxBytes > domain.MaxUploadBytes {
		return nil, fmt.Errorf("max upload bytes %d exceeds hard ceiling %d", maxBytes, domain.MaxUploadBytes)
	}
	a := &App{
		store:         cfg.Store,
		objects:       cfg.Objects,
		notifier:      cfg.Notifier,
		retry:         cfg.Retry,
		maxBytes:      maxBytes,
		presignExpiry: cfg.PresignExpiry,
		now:           cfg.Now,
	}
	if a.notifier == nil {
		a.notifier = queue.NopNotifier{}
	}
	if a.retry == nil {
		a.retry = NewBackoffRetry(BackoffRetryConfig{})
	}
	if a.presignExpiry <= 0 {
		a.presignExpiry = defaultPresignExpiry
	}
	if a.now == nil {
		a.now = time.Now
	}
	return a, nil
}

// MaxUploadBytes returns the effective intake ceiling.
func (a *App) MaxUploadBytes() int64 { return a.maxBytes }

// storeError maps record-store failures onto the error taxonomy.
func storeError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return domain.NotFound("upload not found")
	case errors.Is(err, store.ErrVersionConflict):
		return domain.Conflict("upload was modified concurrently; reload and retry")
	default:
		return domain.Database(op+" failed", fmt.Errorf("%s: %w", op, err))
	}
}
