package app

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"papercast/internal/util"
	"papercast/pkg/store"
)

// RetryPolicy runs op until it succeeds or the policy gives up. key names
// the resource being written and is carried into retry logs.
type RetryPolicy interface {
	Do(ctx context.Context, key string, op func(context.Context) error) error
}

// BackoffRetryConfig bounds the exponential retry used for record writes.
type BackoffRetryConfig struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// BackoffRetry retries with capped exponential backoff. Duplicate-key
// failures are never retried.
type BackoffRetry struct {
	cfg BackoffRetryConfig
}

func NewBackoffRetry(cfg BackoffRetryConfig) BackoffRetry {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 100 * time.Millisecond
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 2 * time.Second
	}
	return BackoffRetry{cfg: cfg}
}

func (r BackoffRetry) Do(ctx context.Context, key string, op func(context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.InitialInterval
	b.MaxInterval = r.cfg.MaxInterval
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, r.cfg.MaxRetries), ctx)

	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		err := op(ctx)
		if err != nil && errors.Is(err, store.ErrDuplicateUpload) {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, wait time.Duration) {
		util.LoggerFromContext(ctx).Warn("record write failed, retrying",
			"storage_key", key, "attempt", attempt, "wait_ms", wait.Milliseconds(), "err", err)
	})
}

// NoRetry runs op exactly once.
type NoRetry struct{}

func (NoRetry) Do(ctx context.Context, _ string, op func(context.Context) error) error {
	return op(ctx)
}
