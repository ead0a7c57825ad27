package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultBlockTimeout = time.Second

// RedisQueue 基于 Redis List 的持久队列：LPUSH 入队，BRPOP 出队
type RedisQueue struct {
	rdb          *redis.Client
	key          string
	blockTimeout time.Duration
	closed       atomic.Bool
}

// NewRedisQueue rdb 由调用方持有，Close 不会关闭连接
func NewRedisQueue(rdb *redis.Client, key string) *RedisQueue {
	return &RedisQueue{rdb: rdb, key: key, blockTimeout: defaultBlockTimeout}
}

func (q *RedisQueue) Enqueue(ctx context.Context, job Job) error {
	if q.closed.Load() {
		return ErrClosed
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.rdb.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("lpush %s: %w", q.key, err)
	}
	return nil
}

// Dequeue 以 blockTimeout 为周期轮询，便于及时响应关闭
func (q *RedisQueue) Dequeue(ctx context.Context) (Job, error) {
	for {
		if q.closed.Load() {
			return Job{}, ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return Job{}, err
		}

		res, err := q.rdb.BRPop(ctx, q.blockTimeout, q.key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Job{}, ctxErr
			}
			return Job{}, fmt.Errorf("brpop %s: %w", q.key, err)
		}

		// res = [key, value]
		var job Job
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			return Job{}, fmt.Errorf("unmarshal job: %w", err)
		}
		return job, nil
	}
}

func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.key).Result()
}

func (q *RedisQueue) Close() error {
	q.closed.Store(true)
	return nil
}
