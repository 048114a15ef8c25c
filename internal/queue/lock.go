package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/soochol/autoflow/internal/autoflow/ports"
)

var (
	_ ports.ConcurrencyControl = (*RedisLock)(nil)
	_ ports.LockInspector      = (*RedisLock)(nil)
)

const defaultLockPrefix = "autoflow:lock:"

var refreshScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`)

var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisLock is a per-workflow exclusive lock shared by every process using
// the same Redis. A held lock is kept alive by a background refresh and
// expires after ttl if its holder dies.
type RedisLock struct {
	client     *redis.Client
	prefix     string
	ttl        time.Duration
	retryDelay time.Duration

	mu   sync.Mutex
	held map[string]*heldLock
}

type heldLock struct {
	token string
	stop  chan struct{}
	done  chan struct{}
}

// NewRedisLock creates a lock with the given TTL (default 30s).
func NewRedisLock(client *redis.Client, ttl time.Duration) *RedisLock {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLock{
		client:     client,
		prefix:     defaultLockPrefix,
		ttl:        ttl,
		retryDelay: 200 * time.Millisecond,
		held:       make(map[string]*heldLock),
	}
}

// NewRedisLockWithPrefix creates a lock whose keys live under prefix, for
// locks that are not keyed by workflow.
func NewRedisLockWithPrefix(client *redis.Client, prefix string, ttl time.Duration) *RedisLock {
	l := NewRedisLock(client, ttl)
	if prefix != "" {
		l.prefix = prefix
	}
	return l
}

// Held reports whether any process holds the lock for workflowID.
func (l *RedisLock) Held(ctx context.Context, workflowID string) (bool, error) {
	n, err := l.client.Exists(ctx, l.prefix+workflowID).Result()
	if err != nil {
		return false, fmt.Errorf("inspect lock %s: %w", workflowID, err)
	}
	return n > 0, nil
}

// Acquire blocks until the lock for workflowID is held or ctx ends.
func (l *RedisLock) Acquire(ctx context.Context, workflowID string) error {
	key := l.prefix + workflowID
	token := uuid.NewString()
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("acquire lock %s: %w", workflowID, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.retryDelay):
		}
	}

	h := &heldLock{token: token, stop: make(chan struct{}), done: make(chan struct{})}
	l.mu.Lock()
	l.held[workflowID] = h
	l.mu.Unlock()
	go l.refresh(key, h)
	return nil
}

func (l *RedisLock) refresh(key string, h *heldLock) {
	defer close(h.done)
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-h.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.ttl/3)
			n, err := refreshScript.Run(ctx, l.client, []string{key}, h.token, l.ttl.Milliseconds()).Int()
			cancel()
			if err != nil {
				slog.Warn("lock: refresh failed", "key", key, "err", err)
			} else if n == 0 {
				slog.Warn("lock: lost before release", "key", key)
				return
			}
		}
	}
}

// Release gives up the lock for workflowID if this process holds it.
func (l *RedisLock) Release(workflowID string) {
	l.mu.Lock()
	h, ok := l.held[workflowID]
	delete(l.held, workflowID)
	l.mu.Unlock()
	if !ok {
		return
	}
	close(h.stop)
	<-h.done

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := releaseScript.Run(ctx, l.client, []string{l.prefix + workflowID}, h.token).Err(); err != nil && err != redis.Nil {
		slog.Warn("lock: release failed", "workflow", workflowID, "err", err)
	}
}
