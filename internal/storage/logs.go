package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"story-generator/internal/models"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

// 日志键以纳秒时间戳开头，字典序即时间序
func logKey(t time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%019d-%s", t.UnixNano(), id))
}

// AppendLog 追加一条日志
func (s *Store) AppendLog(level, message string, at time.Time) error {
	entry := models.LogEntry{
		ID:        uuid.NewString(),
		Level:     level,
		Message:   message,
		CreatedAt: at,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(logsBucket).Put(logKey(at, entry.ID), data)
	})
}

// ListLogs 返回最新的limit条日志，按时间倒序
func (s *Store) ListLogs(limit int) ([]models.LogEntry, error) {
	var entries []models.LogEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(logsBucket).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(entries) >= limit {
				break
			}
			var entry models.LogEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				continue
			}
			entries = append(entries, entry)
		}
		return nil
	})
	return entries, err
}

// PurgeLogs 删除before之前的日志，返回删除条数
func (s *Store) PurgeLogs(before time.Time) (int, error) {
	cutoff := []byte(fmt.Sprintf("%019d", before.UnixNano()))
	var removed int
	err := s.db.Update(func(tx *bolt.Tx) error {
		c := tx.Bucket(logsBucket).Cursor()
		for k, _ := c.First(); k != nil && bytes.Compare(k, cutoff) < 0; k, _ = c.First() {
			if err := c.Delete(); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	return removed, err
}
