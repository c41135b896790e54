package storage

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultDedupSize = 1024
	defaultDedupTTL  = 10 * time.Minute
	dedupKeyPrefix   = "dongman:event:"
)

// Deduper 判断事件是否已经处理过，首次出现时记录并返回 false
type Deduper interface {
	Seen(ctx context.Context, key string) (bool, error)
}

// MemoryDedup 固定容量的环形去重表，满了之后淘汰最早的 key
type MemoryDedup struct {
	mu   sync.Mutex
	set  map[string]struct{}
	ring []string
	idx  int
}

func NewMemoryDedup(size int) *MemoryDedup {
	if size <= 0 {
		size = defaultDedupSize
	}
	return &MemoryDedup{
		set:  make(map[string]struct{}, size),
		ring: make([]string, size),
	}
}

func (d *MemoryDedup) Seen(_ context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.set[key]; ok {
		return true, nil
	}
	if old := d.ring[d.idx]; old != "" {
		delete(d.set, old)
	}
	d.ring[d.idx] = key
	d.set[key] = struct{}{}
	d.idx = (d.idx + 1) % len(d.ring)
	return false, nil
}

// RedisDedup 用 SETNX + TTL 去重，多个实例共用同一个 OneBot 时使用
type RedisDedup struct {
	Redis *redis.Client
	ttl   time.Duration
}

// NewRedisDedup 连接 redis，ping 失败只告警，首次使用时再报错
func NewRedisDedup(addr string, ttl time.Duration, logger *zap.Logger) *RedisDedup {
	if ttl <= 0 {
		ttl = defaultDedupTTL
	}
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil && logger != nil {
		logger.Warn("redis ping failed", zap.String("addr", addr), zap.Error(err))
	}

	return &RedisDedup{Redis: rdb, ttl: ttl}
}

func (d *RedisDedup) Seen(ctx context.Context, key string) (bool, error) {
	ok, err := d.Redis.SetNX(ctx, dedupKeyPrefix+key, 1, d.ttl).Result()
	if err != nil {
		return false, err
	}
	return !ok, nil
}

func (d *RedisDedup) Close() error {
	return d.Redis.Close()
}

// New 根据配置选择去重实现，addr 为空时使用内存版
func New(redisAddr string, logger *zap.Logger) Deduper {
	if redisAddr == "" {
		return NewMemoryDedup(defaultDedupSize)
	}
	return NewRedisDedup(redisAddr, defaultDedupTTL, logger)
}
