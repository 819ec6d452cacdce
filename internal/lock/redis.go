package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"story-generator/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// 仅当值等于持有者令牌时删除
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLock 基于 SET NX PX 的锁，过期由Redis负责
type RedisLock struct {
	rdb *redis.Client
	key string

	mu    sync.Mutex
	token string
	ttl   time.Duration
	at    time.Time
}

// NewRedisLock 从URL创建Redis锁（例如 redis://:pass@host:6379/0）
func NewRedisLock(redisURL, key string) (*RedisLock, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("解析Redis URL失败: %w", err)
	}

	rdb := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("连接Redis失败: %w", err)
	}

	return NewRedisLockWithClient(rdb, key), nil
}

// NewRedisLockWithClient 使用已有客户端创建锁
func NewRedisLockWithClient(rdb *redis.Client, key string) *RedisLock {
	return &RedisLock{rdb: rdb, key: key}
}

// TryAcquire 尝试获取锁
func (l *RedisLock) TryAcquire(ctx context.Context, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, l.key, token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("获取Redis锁失败: %w", err)
	}
	if !ok {
		return false, nil
	}

	l.mu.Lock()
	l.token, l.ttl, l.at = token, ttl, time.Now()
	l.mu.Unlock()
	return true, nil
}

// Release 释放锁
func (l *RedisLock) Release(ctx context.Context) error {
	l.mu.Lock()
	token := l.token
	l.token = ""
	l.mu.Unlock()

	if token == "" {
		return nil
	}
	if err := releaseScript.Run(ctx, l.rdb, []string{l.key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("释放Redis锁失败: %w", err)
	}
	return nil
}

// Inspect 返回锁状态
func (l *RedisLock) Inspect(ctx context.Context) (models.GenerationLock, error) {
	owner, err := l.rdb.Get(ctx, l.key).Result()
	if errors.Is(err, redis.Nil) {
		return models.GenerationLock{}, nil
	}
	if err != nil {
		return models.GenerationLock{}, fmt.Errorf("读取Redis锁失败: %w", err)
	}
	remaining, err := l.rdb.PTTL(ctx, l.key).Result()
	if err != nil {
		return models.GenerationLock{}, fmt.Errorf("读取Redis锁TTL失败: %w", err)
	}

	st := models.GenerationLock{Held: true, Owner: owner, TTL: remaining, AcquiredAt: time.Now()}

	l.mu.Lock()
	if l.token == owner {
		st.AcquiredAt, st.TTL = l.at, l.ttl
	}
	l.mu.Unlock()
	return st, nil
}

// ForceRelease 无条件删除锁
func (l *RedisLock) ForceRelease(ctx context.Context) error {
	return l.rdb.Del(ctx, l.key).Err()
}

// Close 关闭Redis连接
func (l *RedisLock) Close() error {
	return l.rdb.Close()
}
