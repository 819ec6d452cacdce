package main

import (
	"context"
	"flag"
	"time"

	"story-generator/config"
	"story-generator/internal/lock"
	"story-generator/internal/logsink"
	"story-generator/internal/storage"

	log "github.com/sirupsen/logrus"
)

func main() {
	inspectOnly := flag.Bool("inspect", false, "只查看锁状态，不释放")
	flag.Parse()

	// 加载配置
	cfg := config.LoadConfig()
	logsink.Setup(cfg.Server.LogLevel)

	// 创建上下文
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var genLock lock.Manager
	if cfg.Redis.URL != "" {
		redisLock, err := lock.NewRedisLock(cfg.Redis.URL, cfg.Redis.LockKey)
		if err != nil {
			log.Fatalf("创建Redis锁失败: %v", err)
		}
		defer redisLock.Close()
		genLock = redisLock
	} else {
		store, err := storage.NewStore(cfg.Storage.Path)
		if err != nil {
			log.Fatalf("打开存储失败: %v", err)
		}
		defer store.Close()
		genLock = lock.NewStoreLock(store, "generation")
	}

	// 检查锁是否存在
	st, err := genLock.Inspect(ctx)
	if err != nil {
		log.Fatalf("读取生成锁失败: %v", err)
	}

	if !st.Held {
		log.Info("生成锁未被持有")
		return
	}

	log.WithFields(log.Fields{
		"owner":       st.Owner,
		"acquired_at": st.AcquiredAt.Format(time.RFC3339),
		"ttl":         st.TTL.String(),
	}).Info("生成锁被持有")

	if *inspectOnly {
		return
	}

	// 释放锁
	if err := genLock.ForceRelease(ctx); err != nil {
		log.Fatalf("释放生成锁失败: %v", err)
	}

	log.Info("生成锁已释放")
}
