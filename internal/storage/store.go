package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"story-generator/internal/apperr"
	"story-generator/internal/models"

	bolt "go.etcd.io/bbolt"
)

var (
	entriesBucket    = []byte("entries")
	requestsBucket   = []byte("request_index")
	categoriesBucket = []byte("categories")
	tagsBucket       = []byte("tags")
	optionsBucket    = []byte("options")
	logsBucket       = []byte("logs")
	locksBucket      = []byte("locks")
)

// ErrNotFound 条目不存在
var ErrNotFound = errors.New("not found")

// 选项名
const (
	OptionPrompts          = "prompts"
	OptionOpenAIKey        = "openai_api_key"
	OptionImageSearchKey   = "image_search_key"
	OptionAuthorID         = "author_id"
	OptionIntervalDays     = "generation_interval_days"
	OptionLogRetentionDays = "log_retention_days"
	OptionAutoPublish      = "auto_publish"
	OptionLastRun          = "last_generation_run"
)

// Store 是基于bbolt的本地存储，承担内容条目、选项、日志和锁记录
type Store struct {
	db *bolt.DB
}

// NewStore 打开或创建数据库文件
func NewStore(dbPath string) (*Store, error) {
	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{entriesBucket, requestsBucket, categoriesBucket, tagsBucket, optionsBucket, logsBucket, locksBucket} {
			if _, createErr := tx.CreateBucketIfNotExists(bucket); createErr != nil {
				return createErr
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("创建bucket失败: %w", err)
	}

	return &Store{db: db}, nil
}

// Close 关闭数据库
func (s *Store) Close() error {
	return s.db.Close()
}

// FindByRequestID 按request_id查找已发布的条目
func (s *Store) FindByRequestID(_ context.Context, requestID string) (string, bool, error) {
	var id string
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(requestsBucket).Get([]byte(requestID)); v != nil {
			id = string(v)
		}
		return nil
	})
	return id, id != "", err
}

// CreateOrUpdateEntry 保存条目。同一事务内检查request_id索引，
// 若已被其他条目占用则返回已有ID和 apperr.ErrPublishConflict。
func (s *Store) CreateOrUpdateEntry(_ context.Context, entry *models.PublishedArticle) (string, error) {
	if entry.ID == "" {
		return "", fmt.Errorf("条目ID不能为空")
	}

	var existing string
	err := s.db.Update(func(tx *bolt.Tx) error {
		idx := tx.Bucket(requestsBucket)
		if rid := entry.Metadata.RequestID; rid != "" {
			if v := idx.Get([]byte(rid)); v != nil && string(v) != entry.ID {
				existing = string(v)
				return nil
			}
			if err := idx.Put([]byte(rid), []byte(entry.ID)); err != nil {
				return err
			}
		}
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		return tx.Bucket(entriesBucket).Put([]byte(entry.ID), data)
	})
	if err != nil {
		return "", fmt.Errorf("保存条目失败: %w", err)
	}
	if existing != "" {
		return existing, apperr.ErrPublishConflict
	}
	return entry.ID, nil
}

// GetEntry 读取单个条目
func (s *Store) GetEntry(_ context.Context, id string) (*models.PublishedArticle, error) {
	var entry models.PublishedArticle
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(entriesBucket).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &entry)
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// AssignCategory 设置条目分类，分类不存在时创建
func (s *Store) AssignCategory(_ context.Context, entryID, category string) error {
	category = strings.TrimSpace(category)
	return s.updateEntry(entryID, func(tx *bolt.Tx, entry *models.PublishedArticle) error {
		if category != "" {
			b := tx.Bucket(categoriesBucket)
			key := []byte(strings.ToLower(category))
			if b.Get(key) == nil {
				if err := b.Put(key, []byte(category)); err != nil {
					return err
				}
			} else {
				// 沿用已存在分类的写法
				category = string(b.Get(key))
			}
		}
		entry.Category = category
		return nil
	})
}

// AssignTags 设置条目标签并登记标签名
func (s *Store) AssignTags(_ context.Context, entryID string, tags []string) error {
	return s.updateEntry(entryID, func(tx *bolt.Tx, entry *models.PublishedArticle) error {
		b := tx.Bucket(tagsBucket)
		for _, tag := range tags {
			key := []byte(strings.ToLower(tag))
			if b.Get(key) == nil {
				if err := b.Put(key, []byte(tag)); err != nil {
					return err
				}
			}
		}
		entry.Tags = append([]string(nil), tags...)
		return nil
	})
}

// Categories 返回所有分类名
func (s *Store) Categories(_ context.Context) ([]string, error) {
	var names []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(categoriesBucket).ForEach(func(_, v []byte) error {
			names = append(names, string(v))
			return nil
		})
	})
	return names, err
}

// QueryRecentEntries 返回since之后发布的条目，按时间倒序。category为空时不限分类。
func (s *Store) QueryRecentEntries(_ context.Context, category string, since time.Time, limit int) ([]*models.PublishedArticle, error) {
	var entries []*models.PublishedArticle
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(entriesBucket).ForEach(func(_, v []byte) error {
			var entry models.PublishedArticle
			if err := json.Unmarshal(v, &entry); err != nil {
				return nil
			}
			if entry.Status != models.StatusPublished || entry.CreatedAt.Before(since) {
				return nil
			}
			if category != "" && !strings.EqualFold(entry.Category, category) {
				return nil
			}
			entries = append(entries, &entry)
			return nil
		})
	})
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, err
}

// CountEntries 返回条目总数
func (s *Store) CountEntries(_ context.Context) (int, error) {
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(entriesBucket).Stats().KeyN
		return nil
	})
	return n, err
}

func (s *Store) updateEntry(id string, fn func(tx *bolt.Tx, entry *models.PublishedArticle) error) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(entriesBucket)
		data := b.Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}

		var entry models.PublishedArticle
		if err := json.Unmarshal(data, &entry); err != nil {
			return err
		}
		if err := fn(tx, &entry); err != nil {
			return err
		}

		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), data)
	})
}
