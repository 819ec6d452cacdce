package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"story-generator/config"
	"story-generator/internal/api"
	"story-generator/internal/dedup"
	"story-generator/internal/lock"
	"story-generator/internal/logsink"
	"story-generator/internal/orchestrator"
	"story-generator/internal/provider"
	"story-generator/internal/publisher"
	"story-generator/internal/scheduler"
	"story-generator/internal/storage"
	"story-generator/internal/subscription"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

const lockName = "generation"

func main() {
	// 加载配置
	cfg := config.LoadConfig()

	// 设置日志格式
	logsink.Setup(cfg.Server.LogLevel)
	log.Info("启动文章生成服务")

	// 打开本地存储
	store, err := storage.NewStore(cfg.Storage.Path)
	if err != nil {
		log.Fatalf("打开存储失败: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if cfg.Site.PromptsFile != "" {
		seeded, err := store.SeedPrompts(ctx, cfg.Site.PromptsFile)
		if err != nil {
			log.Warnf("导入提示文件失败: %v", err)
		} else if seeded {
			log.Infof("已从 %s 导入提示", cfg.Site.PromptsFile)
		}
	}

	sink := logsink.New(store, log.StandardLogger())

	// 生成锁：配置了Redis时跨进程共享，否则使用本地数据库
	var genLock lock.Manager
	if cfg.Redis.URL != "" {
		redisLock, err := lock.NewRedisLock(cfg.Redis.URL, cfg.Redis.LockKey)
		if err != nil {
			log.Fatalf("创建Redis锁失败: %v", err)
		}
		defer redisLock.Close()
		genLock = redisLock
		log.Info("使用Redis生成锁")
	} else {
		genLock = lock.NewStoreLock(store, lockName)
	}

	// 配图存储，不可用时发布时移除图片标记
	pub := publisher.New(store, nil)
	if minioClient, err := storage.NewMinioClient(&cfg.MinIO); err != nil {
		log.Warnf("MinIO不可用，配图将被跳过: %v", err)
	} else {
		pub = publisher.New(store, minioClient)
	}

	subs := subscription.NewService(&cfg.Managed)
	direct := provider.NewDirect(&cfg.OpenAI, provider.OptionCredentials{
		Options:  store,
		LLMKey:   cfg.OpenAI.APIKey,
		ImageKey: cfg.ImageSearch.APIKey,
	}, provider.NewPexelsSearcher(&cfg.ImageSearch))

	runner := orchestrator.NewRunner(orchestrator.ConfigFrom(cfg), orchestrator.Deps{
		Lock:          genLock,
		Subscriptions: subs,
		Prompts:       store,
		Options:       store,
		Dedup:         dedup.NewBuilder(store, cfg.Generation.DedupFeedURL),
		Providers:     provider.Set{Managed: provider.NewManaged(&cfg.Managed), Direct: direct},
		DirectKey:     direct,
		Publisher:     pub,
		Sink:          sink,
	})

	// 创建定时任务
	c := cron.New(cron.WithSeconds())
	sched := scheduler.New(c, store, func() {
		log.Info("定时任务触发：开始批量生成")
		result := runner.RunBatch(context.Background(), orchestrator.RunOptions{Trigger: orchestrator.TriggerCron})
		log.WithFields(log.Fields{
			"successes": len(result.Successes),
			"errors":    len(result.Errors),
		}).Info(result.Summary())
	})

	sched.Restore(cfg.Site.IntervalDays)

	// 每天凌晨3点30分清理过期日志
	err = sched.AddMaintenance("0 30 3 * * *", func() {
		days := store.IntOptionOrDefault(storage.OptionLogRetentionDays, cfg.Site.LogRetentionDays)
		if _, err := sink.Purge(context.Background(), days); err != nil {
			log.Warnf("清理日志失败: %v", err)
		}
	})
	if err != nil {
		log.Errorf("添加维护任务失败: %v", err)
	}

	sched.Start()
	defer sched.Stop()
	log.Info("定时任务已启动")

	server := api.NewServer(cfg, api.Deps{
		Runner:        runner,
		Subscriptions: subs,
		Scheduler:     sched,
		Prompts:       store,
		Lock:          genLock,
		Logs:          sink,
	})

	// 创建通道接收系统信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// 启动服务器（非阻塞）
	go func() {
		log.Infof("服务器正在监听端口 %s", cfg.Server.Port)
		if err := server.Run(); err != nil {
			log.Fatalf("服务器运行失败: %v", err)
		}
	}()

	// 等待退出信号
	<-quit
	log.Info("收到退出信号，正在关闭服务")
}
