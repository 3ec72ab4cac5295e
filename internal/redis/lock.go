package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/hackgods/salon-scheduling/internal/schedule"
)

var (
	ErrLockNotAcquired = fmt.Errorf("resource lock not acquired: %w", schedule.ErrResourceBusy)
)

const (
	minLockBackoff = 5 * time.Millisecond
	maxLockBackoff = 100 * time.Millisecond
)

type redisResourceLocker struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
}

// NewRedisResourceLocker creates a schedule.Locker backed by one Redis key per
// resource timeline. A held key is retried with backoff for up to wait before
// the call fails with ErrLockNotAcquired; a wait of zero tries once.
func NewRedisResourceLocker(client *redis.Client, ttl, wait time.Duration) schedule.Locker {
	return &redisResourceLocker{
		client: client,
		ttl:    ttl,
		wait:   wait,
	}
}

func lockKey(resourceKey string) string {
	return "lock:resource:" + resourceKey
}

func (l *redisResourceLocker) WithResourceLock(ctx context.Context, resourceKey string, fn func(ctx context.Context) error) error {
	key := lockKey(resourceKey)
	token := uuid.NewString()

	if err := l.acquire(ctx, key, token); err != nil {
		return err
	}

	defer func() {
		_ = l.release(context.WithoutCancel(ctx), key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

func (l *redisResourceLocker) acquire(ctx context.Context, key, token string) error {
	deadline := time.Now().Add(l.wait)
	backoff := minLockBackoff

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("acquire resource lock: %w", err)
		}
		if ok {
			return nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return ErrLockNotAcquired
		}
		timer := time.NewTimer(min(backoff, remaining))
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %w", ErrLockNotAcquired, ctx.Err())
		case <-timer.C:
		}
		backoff = min(backoff*2, maxLockBackoff)
	}
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisResourceLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release resource lock: %w", err)
	}
	return nil
}
