// internal/pkg/throttle/redis_store.go
package throttle

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes a lock only while it still holds our token, so a lock
// that expired and was re-acquired elsewhere is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Limiter keeps short-lived coordination keys in redis so every instance of
// the service sees the same locks and cooldowns.
type Limiter struct {
	client *redis.Client
	prefix string
}

func NewLimiter(client *redis.Client, prefix string) *Limiter {
	if prefix == "" {
		prefix = "billing"
	}
	return &Limiter{client: client, prefix: prefix}
}

func (l *Limiter) key(parts ...string) string {
	k := l.prefix
	for _, p := range parts {
		k += ":" + p
	}
	return k
}

// Lock is a held redis lock.
type Lock struct {
	limiter *Limiter
	key     string
	token   string
}

// Release drops the lock if it is still ours.
func (lk *Lock) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, lk.limiter.client, []string{lk.key}, lk.token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("failed to release lock %s: %w", lk.key, err)
	}
	return nil
}

// AcquireLock takes name for ttl with SET NX PX. It returns nil, false when
// someone else holds it.
func (l *Limiter) AcquireLock(ctx context.Context, name string, ttl time.Duration) (*Lock, bool, error) {
	key := l.key("lock", name)
	token := ulid.Make().String()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	return &Lock{limiter: l, key: key, token: token}, true, nil
}

// Cooldown allows one action per name every ttl. When blocked it reports how
// long is left.
func (l *Limiter) Cooldown(ctx context.Context, name string, ttl time.Duration) (bool, time.Duration, error) {
	key := l.key("cooldown", name)

	ok, err := l.client.SetNX(ctx, key, time.Now().Unix(), ttl).Result()
	if err != nil {
		return false, 0, fmt.Errorf("failed to set cooldown %s: %w", key, err)
	}
	if ok {
		return true, 0, nil
	}

	remaining, err := l.client.PTTL(ctx, key).Result()
	if err != nil {
		return false, 0, fmt.Errorf("failed to read cooldown %s: %w", key, err)
	}
	if remaining < 0 {
		remaining = 0
	}

	return false, remaining, nil
}

// ResetCooldown clears a cooldown, e.g. when the guarded action failed.
func (l *Limiter) ResetCooldown(ctx context.Context, name string) error {
	return l.client.Del(ctx, l.key("cooldown", name)).Err()
}

// Allow counts hits in a fixed window and reports whether max is not exceeded.
// The window starts at the first hit; EXPIRE NX runs on every hit so a counter
// that lost its expiry gets one again.
func (l *Limiter) Allow(ctx context.Context, name string, max int64, window time.Duration) (bool, error) {
	key := l.key("ratelimit", name)

	var count *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		count = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, window)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to increment %s: %w", key, err)
	}

	return count.Val() <= max, nil
}
