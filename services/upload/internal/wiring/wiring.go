// Package wiring opens the infrastructure clients named by the config.
package wiring

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"papercast/internal/ratelimit"
	"papercast/pkg/queue"
	"papercast/pkg/storage"
	"papercast/pkg/store"
	"papercast/services/upload/internal/config"
)

// Deps holds the opened collaborators. Close releases all of them.
type Deps struct {
	Store    store.Store
	Objects  storage.ObjectStore
	Notifier queue.Notifier
	Limiter  ratelimit.Limiter

	closers []io.Closer
}

// Open connects the record store, object store, notifier and limiter.
// On error everything opened so far is closed again.
func Open(cfg config.FileConfig) (*Deps, error) {
	deps := &Deps{}
	ok := false
	defer func() {
		if !ok {
			_ = deps.Close()
		}
	}()

	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		slog.Warn("using in-memory record store; data is lost on restart")
		deps.Store = store.NewMemoryStore()
	default:
		gs, err := store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
		deps.Store = gs
		deps.closers = append(deps.closers, gs)
	}

	objects, err := storage.NewMinioStore(storage.MinioConfig{
		Endpoint:      cfg.MinioEndpoint,
		AccessKey:     cfg.MinioAccessKey,
		SecretKey:     cfg.MinioSecretKey,
		Bucket:        cfg.MinioBucket,
		UseSSL:        cfg.MinioUseSSL,
		PublicBaseURL: cfg.MinioPublicBaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("init object store: %w", err)
	}
	deps.Objects = objects

	deps.Notifier = queue.NopNotifier{}
	if cfg.RedisAddr != "" {
		n, err := queue.NewRedisNotifier(queue.RedisNotifierConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			Stream:   cfg.NoticeStream,
		})
		if err != nil {
			return nil, fmt.Errorf("init work notifier: %w", err)
		}
		deps.Notifier = n
		deps.closers = append(deps.closers, n)
	}

	deps.Limiter = ratelimit.Unlimited{}
	if cfg.UploadRateLimit > 0 {
		l, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "", cfg.UploadRateLimit, cfg.UploadRateWindow.Std())
		if err != nil {
			return nil, fmt.Errorf("init upload rate limiter: %w", err)
		}
		deps.Limiter = l
		deps.closers = append(deps.closers, l)
	}
	ok = true
	return deps, nil
}

func (d *Deps) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}
