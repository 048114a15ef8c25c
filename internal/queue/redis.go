package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/soochol/autoflow/internal/autoflow"
	"github.com/soochol/autoflow/internal/autoflow/ports"
	"github.com/soochol/autoflow/internal/xjson"
)

var _ ports.JobQueue = (*RedisQueue)(nil)

const defaultQueueKey = "autoflow:jobs"

// popDueScript atomically removes and returns the earliest job whose score
// (NotBefore in unix milliseconds) is at or before ARGV[1].
var popDueScript = redis.NewScript(`
local jobs = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, 1)
if #jobs == 0 then
	return false
end
redis.call('ZREM', KEYS[1], jobs[1])
return jobs[1]
`)

// RedisOptions configures the Redis connection.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// ParseRedisURL converts a redis:// URL into RedisOptions.
func ParseRedisURL(raw string) (RedisOptions, error) {
	o, err := redis.ParseURL(raw)
	if err != nil {
		return RedisOptions{}, fmt.Errorf("parse redis url: %w", err)
	}
	return RedisOptions{Addr: o.Addr, Password: o.Password, DB: o.DB, PoolSize: o.PoolSize}, nil
}

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
		PoolSize: opts.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return client, nil
}

// RedisQueue is a durable JobQueue kept in a Redis sorted set scored by
// NotBefore. Any number of processes may share it.
type RedisQueue struct {
	client       *redis.Client
	key          string
	pollInterval time.Duration
}

// NewRedisQueue creates a queue on key ("" for the default key).
func NewRedisQueue(client *redis.Client, key string, pollInterval time.Duration) *RedisQueue {
	if key == "" {
		key = defaultQueueKey
	}
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &RedisQueue{client: client, key: key, pollInterval: pollInterval}
}

func (q *RedisQueue) Enqueue(ctx context.Context, job *autoflow.Job) error {
	data, err := xjson.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.ID, err)
	}
	err = q.client.ZAdd(ctx, q.key, &redis.Z{
		Score:  float64(job.NotBefore.UnixMilli()),
		Member: string(data),
	}).Err()
	if err != nil {
		return fmt.Errorf("enqueue job %s: %w", job.ID, err)
	}
	return nil
}

// Dequeue polls until a due job is available or ctx ends.
func (q *RedisQueue) Dequeue(ctx context.Context) (*autoflow.Job, error) {
	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()
	for {
		job, err := q.popDue(ctx)
		if err != nil || job != nil {
			return job, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (q *RedisQueue) popDue(ctx context.Context) (*autoflow.Job, error) {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	raw, err := popDueScript.Run(ctx, q.client, []string{q.key}, now).Text()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("dequeue: %w", err)
	}
	var job autoflow.Job
	if err := xjson.Unmarshal([]byte(raw), &job); err != nil {
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}
	return &job, nil
}

func (q *RedisQueue) Len(ctx context.Context) (int, error) {
	n, err := q.client.ZCard(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("queue length: %w", err)
	}
	return int(n), nil
}

func (q *RedisQueue) Durable() bool { return true }
