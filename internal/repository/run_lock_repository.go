package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only while it still holds the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RunLockRepository serialises generation runs per key. With a Redis client the lock is shared across
// processes; without one it falls back to an in-process table honouring the same TTL.
type RunLockRepository struct {
	client *redis.Client
	prefix string

	mu    sync.Mutex
	local map[string]localLock
	now   func() time.Time
}

type localLock struct {
	token   string
	expires time.Time
}

// NewRunLockRepository constructs a lock repository. client may be nil.
func NewRunLockRepository(client *redis.Client) *RunLockRepository {
	return &RunLockRepository{
		client: client,
		prefix: "timetable:lock:",
		local:  make(map[string]localLock),
		now:    time.Now,
	}
}

// Acquire tries to take the lock for key. It returns the release token and false when another run
// holds it.
func (r *RunLockRepository) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	if r.client != nil {
		ok, err := r.client.SetNX(ctx, r.prefix+key, token, ttl).Result()
		if err != nil {
			return "", false, fmt.Errorf("redis acquire lock %s: %w", key, err)
		}
		if !ok {
			return "", false, nil
		}
		return token, true, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	if held, ok := r.local[key]; ok && now.Before(held.expires) {
		return "", false, nil
	}
	r.local[key] = localLock{token: token, expires: now.Add(ttl)}
	return token, true, nil
}

// Release frees the lock if token still owns it.
func (r *RunLockRepository) Release(ctx context.Context, key, token string) error {
	if r.client != nil {
		if err := releaseScript.Run(ctx, r.client, []string{r.prefix + key}, token).Err(); err != nil && err != redis.Nil {
			return fmt.Errorf("redis release lock %s: %w", key, err)
		}
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if held, ok := r.local[key]; ok && held.token == token {
		delete(r.local, key)
	}
	return nil
}
