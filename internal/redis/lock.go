package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrLockNotAcquired = errors.New("lock not acquired")

// Locker guards the engine's critical sections: a per-(doctor, slot) lock
// around confirm's count-then-insert, and a per-(doctor, day) lock around
// availability replacement and stream-mode booking.
type Locker interface {
	WithBookingLock(ctx context.Context, doctorID uuid.UUID, slot time.Time, fn func(ctx context.Context) error) error
	WithDayLock(ctx context.Context, doctorID uuid.UUID, day time.Time, fn func(ctx context.Context) error) error
}

type redisLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisLocker creates a locker backed by per-key Redis SET NX with a TTL
// so a crashed holder cannot wedge a slot forever.
func NewRedisLocker(client *redis.Client, ttl time.Duration) Locker {
	return &redisLocker{
		client: client,
		ttl:    ttl,
	}
}

func (l *redisLocker) WithBookingLock(ctx context.Context, doctorID uuid.UUID, slot time.Time, fn func(ctx context.Context) error) error {
	key := fmt.Sprintf("lock:booking:%s:%s", doctorID, slot.UTC().Format("2006-01-02T15:04"))
	return l.withLock(ctx, key, fn)
}

func (l *redisLocker) WithDayLock(ctx context.Context, doctorID uuid.UUID, day time.Time, fn func(ctx context.Context) error) error {
	key := fmt.Sprintf("lock:day:%s:%s", doctorID, day.UTC().Format("2006-01-02"))
	return l.withLock(ctx, key, fn)
}

func (l *redisLocker) withLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return ErrLockNotAcquired
	}

	defer func() {
		_ = l.release(ctx, key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

// unlockScript deletes the lock only while it still holds our token, so a
// holder that outlived its TTL cannot release somebody else's lock.
var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lock %s: %w", key, err)
	}
	return nil
}
