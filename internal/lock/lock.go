// lock 提供进程间的生成锁：同一时间只允许一个批次运行。
//
// 获取锁是对共享存储的一次原子比较并设置，从不阻塞或排队；
// 持有者崩溃后，锁在TTL到期时自动失效。
package lock

import (
	"context"
	"time"

	"story-generator/internal/models"
)

// DefaultTTL 需大于完整批次的最坏耗时
const DefaultTTL = 10 * time.Minute

// Manager 定义生成锁
type Manager interface {
	// TryAcquire 尝试获取锁，已被持有且未过期时立即返回false
	TryAcquire(ctx context.Context, ttl time.Duration) (bool, error)
	// Release 释放本实例持有的锁，未持有或已过期时为空操作
	Release(ctx context.Context) error
	// Inspect 返回锁的当前状态
	Inspect(ctx context.Context) (models.GenerationLock, error)
	// ForceRelease 无条件清除锁，供运维工具使用
	ForceRelease(ctx context.Context) error
}
