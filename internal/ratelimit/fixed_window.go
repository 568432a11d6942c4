package ratelimit

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Returns {count, pttl} for the window counter.
var uploadWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

const (
	defaultPrefix = "papercast:uploads:quota"
	redisTimeout  = 2 * time.Second
)

// Decision is the outcome of one quota check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	// RetryAfter is how long until the current window resets. Zero when
	// unknown (limiter error or unlimited).
	RetryAfter time.Duration
}

// Limiter charges one unit of an actor's upload quota.
type Limiter interface {
	Allow(ctx context.Context, actorID string) Decision
}

// FixedWindowLimiter counts uploads per actor in fixed windows. Counters
// live in Redis so every replica of the service shares one quota.
type FixedWindowLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	client *redis.Client
	prefix string
}

// NewRedisFixedWindowLimiter connects a limiter allowing limit uploads per
// actor per window.
func NewRedisFixedWindowLimiter(addr, password, prefix string, limit int, window time.Duration) (*FixedWindowLimiter, error) {
	if limit <= 0 || window < time.Millisecond {
		return nil, errors.New("rate limiter requires positive limit and window")
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("rate limiter redis addr is required")
	}
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &FixedWindowLimiter{
		limit:  limit,
		window: window,
		now:    time.Now,
		client: redis.NewClient(&redis.Options{Addr: addr, Password: password}),
		prefix: prefix,
	}, nil
}

// windowKey names the counter for actorID in the window containing t,
// e.g. papercast:uploads:quota:user-a:29512340.
func (l *FixedWindowLimiter) windowKey(actorID string, t time.Time) string {
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		actorID = "anonymous"
	}
	slot := t.UTC().UnixMilli() / l.window.Milliseconds()
	return l.prefix + ":" + actorID + ":" + strconv.FormatInt(slot, 10)
}

// Allow charges one upload to actorID. A Redis failure denies the upload.
func (l *FixedWindowLimiter) Allow(ctx context.Context, actorID string) Decision {
	deny := Decision{Limit: l.limit}
	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()
	res, err := uploadWindowScript.Run(ctx, l.client, []string{l.windowKey(actorID, l.now())}, l.window.Milliseconds()).Int64Slice()
	if err != nil || len(res) != 2 {
		return deny
	}
	count, ttl := res[0], time.Duration(res[1])*time.Millisecond
	d := Decision{Limit: l.limit, Remaining: l.limit - int(count)}
	if d.Remaining < 0 {
		d.Remaining = 0
	}
	d.Allowed = count <= int64(l.limit)
	if !d.Allowed {
		d.RetryAfter = ttl
	}
	return d
}

func (l *FixedWindowLimiter) Close() error {
	return l.client.Close()
}

// Unlimited allows every upload. Used when no quota is configured.
type Unlimited struct{}

func (Unlimited) Allow(context.Context, string) Decision {
	return Decision{Allowed: true, Remaining: -1}
}
