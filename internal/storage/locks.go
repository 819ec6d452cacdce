package storage

import (
	"encoding/json"
	"time"

	"story-generator/internal/models"

	bolt "go.etcd.io/bbolt"
)

type lockRecord struct {
	Owner      string        `json:"owner"`
	AcquiredAt time.Time     `json:"acquired_at"`
	TTL        time.Duration `json:"ttl"`
}

// CompareAndSetLock 在单个写事务内获取锁：记录存在且未过期时失败，
// 否则写入新记录（覆盖已过期的持有者）。
func (s *Store) CompareAndSetLock(name, owner string, ttl time.Duration, now time.Time) (bool, error) {
	acquired := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(locksBucket)
		if data := b.Get([]byte(name)); data != nil {
			var rec lockRecord
			if err := json.Unmarshal(data, &rec); err == nil && now.Before(rec.AcquiredAt.Add(rec.TTL)) {
				return nil
			}
		}
		data, err := json.Marshal(lockRecord{Owner: owner, AcquiredAt: now, TTL: ttl})
		if err != nil {
			return err
		}
		acquired = true
		return b.Put([]byte(name), data)
	})
	if err != nil {
		return false, err
	}
	return acquired, nil
}

// CompareAndDeleteLock 仅当owner匹配时删除锁记录
func (s *Store) CompareAndDeleteLock(name, owner string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(locksBucket)
		data := b.Get([]byte(name))
		if data == nil {
			return nil
		}
		var rec lockRecord
		if err := json.Unmarshal(data, &rec); err == nil && rec.Owner != owner {
			return nil
		}
		return b.Delete([]byte(name))
	})
}

// DeleteLock 无条件删除锁记录
func (s *Store) DeleteLock(name string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(locksBucket).Delete([]byte(name))
	})
}

// GetLock 读取锁记录，过期的记录视为未持有
func (s *Store) GetLock(name string, now time.Time) (models.GenerationLock, error) {
	var lock models.GenerationLock
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(locksBucket).Get([]byte(name))
		if data == nil {
			return nil
		}
		var rec lockRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return err
		}
		lock = models.GenerationLock{
			Held:       now.Before(rec.AcquiredAt.Add(rec.TTL)),
			Owner:      rec.Owner,
			AcquiredAt: rec.AcquiredAt,
			TTL:        rec.TTL,
		}
		return nil
	})
	return lock, err
}
