package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"story-generator/internal/models"

	"github.com/google/uuid"
)

// RecordStore 是保存锁记录的共享存储
type RecordStore interface {
	CompareAndSetLock(name, owner string, ttl time.Duration, now time.Time) (bool, error)
	CompareAndDeleteLock(name, owner string) error
	DeleteLock(name string) error
	GetLock(name string, now time.Time) (models.GenerationLock, error)
}

// StoreLock 基于本地数据库记录的锁，适用于单机部署
type StoreLock struct {
	store RecordStore
	name  string
	now   func() time.Time

	mu    sync.Mutex
	token string
}

// NewStoreLock 创建锁
func NewStoreLock(store RecordStore, name string) *StoreLock {
	return &StoreLock{store: store, name: name, now: time.Now}
}

// TryAcquire 尝试获取锁
func (l *StoreLock) TryAcquire(_ context.Context, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	token := uuid.NewString()
	ok, err := l.store.CompareAndSetLock(l.name, token, ttl, l.now())
	if err != nil {
		return false, fmt.Errorf("获取锁失败: %w", err)
	}
	if ok {
		l.mu.Lock()
		l.token = token
		l.mu.Unlock()
	}
	return ok, nil
}

// Release 释放锁，只删除本实例写入的记录
func (l *StoreLock) Release(_ context.Context) error {
	l.mu.Lock()
	token := l.token
	l.token = ""
	l.mu.Unlock()

	if token == "" {
		return nil
	}
	if err := l.store.CompareAndDeleteLock(l.name, token); err != nil {
		return fmt.Errorf("释放锁失败: %w", err)
	}
	return nil
}

// Inspect 返回锁状态
func (l *StoreLock) Inspect(_ context.Context) (models.GenerationLock, error) {
	return l.store.GetLock(l.name, l.now())
}

// ForceRelease 无条件删除锁
func (l *StoreLock) ForceRelease(_ context.Context) error {
	return l.store.DeleteLock(l.name)
}
