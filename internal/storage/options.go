package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"story-generator/internal/models"

	bolt "go.etcd.io/bbolt"
)

// GetOption 读取选项，不存在时返回空字符串
func (s *Store) GetOption(name string) (string, error) {
	var value string
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(optionsBucket).Get([]byte(name)); v != nil {
			value = string(v)
		}
		return nil
	})
	return value, err
}

// SetOption 写入选项，空值表示删除
func (s *Store) SetOption(name, value string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(optionsBucket)
		if value == "" {
			return b.Delete([]byte(name))
		}
		return b.Put([]byte(name), []byte(value))
	})
}

// OptionOrDefault 读取字符串选项，不存在或读取失败时返回默认值
func (s *Store) OptionOrDefault(name, defaultValue string) string {
	value, err := s.GetOption(name)
	if err != nil || value == "" {
		return defaultValue
	}
	return value
}

// IntOptionOrDefault 读取整数选项
func (s *Store) IntOptionOrDefault(name string, defaultValue int) int {
	value, err := s.GetOption(name)
	if err != nil || value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

// GetPrompts 返回提示列表
func (s *Store) GetPrompts(ctx context.Context) ([]models.Prompt, error) {
	doc, err := s.GetPromptDocument(ctx)
	if err != nil {
		return nil, err
	}
	return doc.Prompts, nil
}

// GetDefaultSettings 返回默认生成设置
func (s *Store) GetDefaultSettings(ctx context.Context) (models.DefaultSettings, error) {
	doc, err := s.GetPromptDocument(ctx)
	if err != nil {
		return models.DefaultSettings{}, err
	}
	return doc.DefaultSettings, nil
}

// GetPromptDocument 读取完整的提示文档
func (s *Store) GetPromptDocument(_ context.Context) (models.PromptDocument, error) {
	var doc models.PromptDocument
	raw, err := s.GetOption(OptionPrompts)
	if err != nil {
		return doc, fmt.Errorf("读取提示文档失败: %w", err)
	}
	if raw == "" {
		return doc, nil
	}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return doc, fmt.Errorf("解析提示文档失败: %w", err)
	}
	return doc, nil
}

// SavePromptDocument 替换提示文档
func (s *Store) SavePromptDocument(_ context.Context, doc models.PromptDocument) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("序列化提示文档失败: %w", err)
	}
	return s.SetOption(OptionPrompts, string(data))
}

// SeedPrompts 在提示文档为空时从JSON文件导入
func (s *Store) SeedPrompts(ctx context.Context, path string) (bool, error) {
	if path == "" {
		return false, nil
	}
	existing, err := s.GetOption(OptionPrompts)
	if err != nil {
		return false, err
	}
	if existing != "" {
		return false, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("读取提示文件失败: %w", err)
	}
	var doc models.PromptDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return false, fmt.Errorf("解析提示文件失败: %w", err)
	}
	return true, s.SavePromptDocument(ctx, doc)
}
