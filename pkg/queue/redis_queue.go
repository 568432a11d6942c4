package queue

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Notice tells workers that an upload entered the pending state.
type Notice struct {
	UploadID string
	Priority int
	Status   string
	At       time.Time
}

// Notifier publishes work notices. Delivery is best effort; workers treat
// the record store as the source of truth.
type Notifier interface {
	Notify(ctx context.Context, n Notice) error
}

// NopNotifier drops every notice.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Notice) error { return nil }

// RedisNotifier appends notices to a Redis stream.
type RedisNotifier struct {
	client *redis.Client
	stream string
	maxLen int64
}

type RedisNotifierConfig struct {
	Addr     string
	Password string
	Stream   string
	MaxLen   int64
}

func NewRedisNotifier(cfg RedisNotifierConfig) (*RedisNotifier, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("redis addr required")
	}
	stream := strings.TrimSpace(cfg.Stream)
	if stream == "" {
		stream = "papercast:uploads:pending"
	}
	maxLen := cfg.MaxLen
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &RedisNotifier{
		client: redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Password}),
		stream: stream,
		maxLen: maxLen,
	}, nil
}

func (q *RedisNotifier) Notify(ctx context.Context, n Notice) error {
	uploadID := strings.TrimSpace(n.UploadID)
	if uploadID == "" {
		return errors.New("uploadId required")
	}
	at := n.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		MaxLen: q.maxLen,
		Approx: true,
		Values: map[string]any{
			"upload_id": uploadID,
			"priority":  strconv.Itoa(n.Priority),
			"status":    n.Status,
			"at":        at.Format(time.RFC3339Nano),
		},
	}).Err()
}

// Close releases the Redis connection pool.
func (q *RedisNotifier) Close() error {
	return q.client.Close()
}
