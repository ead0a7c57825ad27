package cache

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/d60-Lab/medorder/internal/repository"
	"github.com/d60-Lab/medorder/pkg/logger"
)

const statsKey = "medorder:stats"

// StatsCache 管理端统计的 Redis 缓存，TTL 内允许读到旧值
type StatsCache struct {
	next  repository.StatsReader
	cache *redis.Client
	ttl   time.Duration

	hits  atomic.Int64
	loads atomic.Int64
}

var _ repository.StatsReader = (*StatsCache)(nil)

func NewStatsCache(next repository.StatsReader, cache *redis.Client, ttl time.Duration) *StatsCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &StatsCache{next: next, cache: cache, ttl: ttl}
}

// Stats 先读缓存，未命中或 Redis 不可用时回源数据库
func (s *StatsCache) Stats(ctx context.Context) (*repository.Stats, error) {
	if data, err := s.cache.Get(ctx, statsKey).Bytes(); err == nil {
		var st repository.Stats
		if uErr := json.Unmarshal(data, &st); uErr == nil {
			s.hits.Add(1)
			return &st, nil
		}
	}

	s.loads.Add(1)
	st, err := s.next.Stats(ctx)
	if err != nil {
		return nil, err
	}
	if payload, err := json.Marshal(st); err == nil {
		_ = s.cache.Set(ctx, statsKey, payload, s.ttl).Err()
	}
	return st, nil
}

// Invalidate 删除缓存，下次读取回源
func (s *StatsCache) Invalidate(ctx context.Context) error {
	return s.cache.Del(ctx, statsKey).Err()
}

// InvalidateOnChange 供订单与文件写入后调用，失败只记日志
func (s *StatsCache) InvalidateOnChange(ctx context.Context) {
	if err := s.Invalidate(context.WithoutCancel(ctx)); err != nil {
		logger.FromContext(ctx).Warn("invalidate stats cache failed", zap.Error(err))
	}
}

// Counters 命中与回源次数
func (s *StatsCache) Counters() Counters {
	return Counters{Hits: s.hits.Load(), Loads: s.loads.Load()}
}

type Counters struct {
	Hits  int64
	Loads int64
}
