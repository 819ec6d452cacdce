// logsink 将运行日志同时写入logrus和本地存储，供日志查看页面分页读取。
package logsink

import (
	"context"
	"fmt"
	"strings"
	"time"

	"story-generator/internal/models"

	log "github.com/sirupsen/logrus"
)

// Store 持久化日志条目
type Store interface {
	AppendLog(level, message string, at time.Time) error
	ListLogs(limit int) ([]models.LogEntry, error)
	PurgeLogs(before time.Time) (int, error)
}

// Sink 是日志收集器
type Sink struct {
	store  Store
	logger *log.Logger
	now    func() time.Time
}

// New 创建日志收集器，store为nil时只输出到logrus
func New(store Store, logger *log.Logger) *Sink {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Sink{store: store, logger: logger, now: time.Now}
}

// Log 记录一条日志
func (s *Sink) Log(level, message string) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	s.logger.Log(lvl, message)

	if s.store == nil {
		return
	}
	if err := s.store.AppendLog(lvl.String(), message, s.now()); err != nil {
		s.logger.WithError(err).Warn("保存日志失败")
	}
}

// Logf 格式化后记录一条日志
func (s *Sink) Logf(level, format string, args ...any) {
	s.Log(level, fmt.Sprintf(format, args...))
}

// Recent 返回最近的日志，最新的在前
func (s *Sink) Recent(limit int) ([]models.LogEntry, error) {
	if s.store == nil {
		return nil, nil
	}
	return s.store.ListLogs(limit)
}

// Purge 删除保留期之外的日志，retentionDays<=0 时不删除
func (s *Sink) Purge(_ context.Context, retentionDays int) (int, error) {
	if s.store == nil || retentionDays <= 0 {
		return 0, nil
	}
	before := s.now().AddDate(0, 0, -retentionDays)
	n, err := s.store.PurgeLogs(before)
	if err != nil {
		return 0, fmt.Errorf("清理日志失败: %w", err)
	}
	if n > 0 {
		s.logger.Infof("已清理 %d 条过期日志", n)
	}
	return n, nil
}

// Setup 按配置设置标准logger的格式和级别
func Setup(level string) {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	lvl, err := log.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
}
