// scheduler 将管理员设置的生成间隔同步到定时任务。
//
// 间隔从上次触发时间起算并持久化，进程重启不会重置倒计时。
package scheduler

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"story-generator/internal/storage"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// 错过触发时间后，重启时延迟这么久补跑一次
const catchUpDelay = time.Minute

// OptionStore 保存间隔设置和上次触发时间
type OptionStore interface {
	SetOption(name, value string) error
	OptionOrDefault(name, defaultValue string) string
	IntOptionOrDefault(name string, defaultValue int) int
}

// Scheduler 管理周期生成任务
type Scheduler struct {
	cron  *cron.Cron
	store OptionStore
	job   func()
	now   func() time.Time

	mu      sync.Mutex
	entryID cron.EntryID
	armed   int
}

// New 创建调度器，job为每次触发时执行的批次
func New(c *cron.Cron, store OptionStore, job func()) *Scheduler {
	return &Scheduler{cron: c, store: store, job: job, now: time.Now}
}

// anchoredSchedule 第一次在first触发，此后每隔every触发一次
type anchoredSchedule struct {
	every time.Duration
	first time.Time
}

// Next 实现 cron.Schedule
func (a anchoredSchedule) Next(t time.Time) time.Time {
	if t.Before(a.first) {
		return a.first
	}
	return t.Add(a.every)
}

// Reschedule 设置新的间隔天数：0表示停用；与当前间隔相同时不重新设置
func (s *Scheduler) Reschedule(days int) error {
	if days < 0 {
		return fmt.Errorf("间隔天数不能为负数: %d", days)
	}
	if err := s.store.SetOption(storage.OptionIntervalDays, strconv.Itoa(days)); err != nil {
		return fmt.Errorf("保存间隔设置失败: %w", err)
	}
	s.arm(days)
	return nil
}

// Restore 启动时按已保存的设置和上次触发时间恢复定时任务
func (s *Scheduler) Restore(defaultDays int) {
	s.arm(s.store.IntOptionOrDefault(storage.OptionIntervalDays, defaultDays))
}

func (s *Scheduler) arm(days int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if days == s.armed {
		return
	}

	if s.entryID != 0 {
		s.cron.Remove(s.entryID)
		s.entryID = 0
	}
	s.armed = 0

	if days == 0 {
		log.Info("自动生成已停用")
		return
	}

	every := time.Duration(days) * 24 * time.Hour
	sched := anchoredSchedule{every: every, first: s.firstRun(every)}
	s.entryID = s.cron.Schedule(sched, cron.FuncJob(s.run))
	s.armed = days
	log.Infof("自动生成已设置为每 %d 天一次，下次运行: %s", days, sched.first.Format(time.RFC3339))
}

// firstRun 根据上次触发时间计算第一次触发时间
func (s *Scheduler) firstRun(every time.Duration) time.Time {
	now := s.now()
	raw := s.store.OptionOrDefault(storage.OptionLastRun, "")
	if raw == "" {
		return now.Add(every)
	}
	last, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		log.WithError(err).Warn("上次运行时间无效，从现在开始计时")
		return now.Add(every)
	}

	due := last.Add(every)
	if due.Before(now) {
		return now.Add(catchUpDelay)
	}
	return due
}

// run 记录触发时间后执行批次
func (s *Scheduler) run() {
	if err := s.store.SetOption(storage.OptionLastRun, s.now().UTC().Format(time.RFC3339)); err != nil {
		log.WithError(err).Warn("保存上次运行时间失败")
	}
	s.job()
}

// Interval 返回当前生效的间隔天数
func (s *Scheduler) Interval() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.armed
}

// Next 返回下次触发时间，未设置时为零值
func (s *Scheduler) Next() time.Time {
	s.mu.Lock()
	id := s.entryID
	s.mu.Unlock()
	if id == 0 {
		return time.Time{}
	}
	entry := s.cron.Entry(id)
	if entry.Next.IsZero() {
		// 调度器尚未启动
		return entry.Schedule.Next(s.now())
	}
	return entry.Next
}

// AddMaintenance 添加维护任务，例如每日清理日志
func (s *Scheduler) AddMaintenance(spec string, fn func()) error {
	if _, err := s.cron.AddFunc(spec, fn); err != nil {
		return fmt.Errorf("添加维护任务失败: %w", err)
	}
	return nil
}

// Start 启动调度器
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop 停止调度器
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
