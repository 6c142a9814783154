package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	id "dutyflow/pkg/domain"
	"dutyflow/pkg/platform/sentinel"
)

const keyPrefix = "dutyflow:lock:duty:"

// releaseScript deletes the key only if it still holds our token, so an expired
// lease taken over by another replica is never released by the old holder.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a lease-based lock shared by all replicas.
type Redis struct {
	client redis.Cmdable
	ttl    time.Duration
	wait   time.Duration
	retry  time.Duration
}

// NewRedis returns a lock holding leases for ttl and waiting up to wait to acquire.
func NewRedis(client redis.Cmdable, ttl, wait time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	if wait <= 0 {
		wait = 3 * time.Second
	}
	return &Redis{client: client, ttl: ttl, wait: wait, retry: 25 * time.Millisecond}
}

// Lock acquires the duty's lease or fails with sentinel.ErrLocked after the wait
// budget, or sentinel.ErrUnavailable when Redis cannot be reached.
func (r *Redis) Lock(ctx context.Context, dutyID id.DutyID) (func(), error) {
	key := keyPrefix + dutyID.String()
	token := uuid.NewString()

	waitCtx, cancel := context.WithTimeout(ctx, r.wait)
	defer cancel()

	for {
		ok, err := r.client.SetNX(waitCtx, key, token, r.ttl).Result()
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("lock duty %s: %w: %v", dutyID, sentinel.ErrUnavailable, err)
		}
		if ok {
			return func() { r.release(key, token) }, nil
		}

		timer := time.NewTimer(r.retry)
		select {
		case <-waitCtx.Done():
			timer.Stop()
			return nil, fmt.Errorf("lock duty %s: %w", dutyID, sentinel.ErrLocked)
		case <-timer.C:
		}
	}
}

func (r *Redis) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	// An unreleased lease expires after ttl.
	_ = releaseScript.Run(ctx, r.client, []string{key}, token).Err()
}
