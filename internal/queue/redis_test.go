package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soochol/autoflow/internal/autoflow"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedisQueue_EnqueueDequeue(t *testing.T) {
	_, client := newTestRedis(t)
	q := NewRedisQueue(client, "", 10*time.Millisecond)
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, q.Enqueue(ctx, &autoflow.Job{ID: "j2", ExecutionID: "e2", NotBefore: now.Add(-time.Second)}))
	require.NoError(t, q.Enqueue(ctx, &autoflow.Job{ID: "j1", ExecutionID: "e1", WorkflowID: "wf", Attempt: 1, NotBefore: now.Add(-time.Minute)}))

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	job, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "j1", job.ID)
	assert.Equal(t, "wf", job.WorkflowID)
	assert.Equal(t, 1, job.Attempt)

	job, err = q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "j2", job.ID)
	assert.True(t, q.Durable())
}

func TestRedisQueue_FutureJobNotDelivered(t *testing.T) {
	_, client := newTestRedis(t)
	q := NewRedisQueue(client, "test:jobs", 10*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, &autoflow.Job{ID: "later", NotBefore: time.Now().Add(time.Hour)}))

	shortCtx, cancel := context.WithTimeout(ctx, 60*time.Millisecond)
	defer cancel()
	_, err := q.Dequeue(shortCtx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	n, _ := q.Len(ctx)
	assert.Equal(t, 1, n)
}

func TestRedisLock_Exclusive(t *testing.T) {
	_, client := newTestRedis(t)
	first := NewRedisLock(client, 30*time.Second)
	second := NewRedisLock(client, 30*time.Second)
	ctx := context.Background()

	require.NoError(t, first.Acquire(ctx, "wf-1"))

	shortCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	assert.Error(t, second.Acquire(shortCtx, "wf-1"), "second holder must wait")
	require.NoError(t, second.Acquire(ctx, "wf-2"), "other workflows are independent")
	second.Release("wf-2")

	first.Release("wf-1")
	require.NoError(t, second.Acquire(ctx, "wf-1"))
	second.Release("wf-1")
}

func TestRedisLock_ExpiresWhenHolderDies(t *testing.T) {
	mr, client := newTestRedis(t)
	crashed := NewRedisLock(client, 30*time.Second)
	survivor := NewRedisLock(client, 30*time.Second)
	ctx := context.Background()

	require.NoError(t, crashed.Acquire(ctx, "wf-1"))
	mr.FastForward(31 * time.Second)

	acquireCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, survivor.Acquire(acquireCtx, "wf-1"))

	// The stale holder's release must not drop the survivor's lock.
	crashed.Release("wf-1")
	assert.True(t, mr.Exists(defaultLockPrefix+"wf-1"))
	survivor.Release("wf-1")
	assert.False(t, mr.Exists(defaultLockPrefix+"wf-1"))
}

func TestRedisLock_Held(t *testing.T) {
	mr, client := newTestRedis(t)
	holder := NewRedisLock(client, 30*time.Second)
	observer := NewRedisLock(client, 30*time.Second)
	ctx := context.Background()

	held, err := observer.Held(ctx, "wf-1")
	require.NoError(t, err)
	assert.False(t, held)

	require.NoError(t, holder.Acquire(ctx, "wf-1"))
	held, err = observer.Held(ctx, "wf-1")
	require.NoError(t, err)
	assert.True(t, held, "a lock held by another process is visible")

	// The holder died without releasing.
	mr.FastForward(31 * time.Second)
	held, err = observer.Held(ctx, "wf-1")
	require.NoError(t, err)
	assert.False(t, held)
}

func TestRedisLock_PrefixSeparatesNamespaces(t *testing.T) {
	mr, client := newTestRedis(t)
	workflows := NewRedisLock(client, 30*time.Second)
	sweeps := NewRedisLockWithPrefix(client, "test:sweep:", 30*time.Second)
	ctx := context.Background()

	require.NoError(t, sweeps.Acquire(ctx, "sweep"))
	assert.True(t, mr.Exists("test:sweep:sweep"))

	// A workflow that happens to share the name is not blocked.
	acquireCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, workflows.Acquire(acquireCtx, "sweep"))
	workflows.Release("sweep")
	sweeps.Release("sweep")
	assert.False(t, mr.Exists("test:sweep:sweep"))
}

func TestParseRedisURL(t *testing.T) {
	opts, err := ParseRedisURL("redis://:pw@cache.internal:6380/3")
	require.NoError(t, err)
	assert.Equal(t, "cache.internal:6380", opts.Addr)
	assert.Equal(t, "pw", opts.Password)
	assert.Equal(t, 3, opts.DB)

	_, err = ParseRedisURL("http://nope")
	assert.Error(t, err)
}
