package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrLockNotAcquired = errors.New("clinician calendar lock not acquired")

// Locker serializes booking-path critical sections per clinician calendar.
// Conflicts are decided per clinician window, so one key per clinician is
// enough; the store's overlap constraint stays the final arbiter.
type Locker interface {
	WithClinicianLock(ctx context.Context, clinicianID uuid.UUID, fn func(ctx context.Context) error) error
}

type redisClinicianLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClinicianLocker creates a locker backed by a per-clinician Redis
// key.
func NewRedisClinicianLocker(client *redis.Client, ttl time.Duration) Locker {
	return &redisClinicianLocker{
		client: client,
		ttl:    ttl,
	}
}

func (l *redisClinicianLocker) WithClinicianLock(ctx context.Context, clinicianID uuid.UUID, fn func(ctx context.Context) error) error {
	key := fmt.Sprintf("lock:clinician:%s", clinicianID.String())
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire clinician lock: %w", err)
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

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisClinicianLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release clinician lock: %w", err)
	}
	return nil
}

// NoopLocker runs the critical section without any distributed lock. Used in
// tests and single-process deployments where the store constraint alone is
// acceptable.
type NoopLocker struct{}

func (NoopLocker) WithClinicianLock(ctx context.Context, _ uuid.UUID, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
