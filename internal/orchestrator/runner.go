// orchestrator 实现批量生成：持锁后按定义顺序逐个处理启用的提示。
//
// 单个提示的失败只记录到结果中，不会中止批次；只有锁竞争会阻止批次开始。
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"story-generator/config"
	"story-generator/internal/apperr"
	"story-generator/internal/lock"
	"story-generator/internal/models"
	"story-generator/internal/provider"
	"story-generator/internal/storage"

	log "github.com/sirupsen/logrus"
)

// State 是批次运行器的状态
type State string

const (
	StateIdle       State = "idle"
	StateLocking    State = "locking"
	StateRunning    State = "running"
	StateFinalizing State = "finalizing"
)

// 触发来源
const (
	TriggerCron   = "cron"
	TriggerManual = "manual"
)

// Subscriptions 是订阅与额度服务
type Subscriptions interface {
	GetStatus(ctx context.Context, domain string) (*models.SubscriptionStatus, error)
	ReserveCredit(ctx context.Context, domain string) bool
	CommitCredit(domain string)
}

// PromptStore 读取提示和默认设置
type PromptStore interface {
	GetPrompts(ctx context.Context) ([]models.Prompt, error)
	GetDefaultSettings(ctx context.Context) (models.DefaultSettings, error)
}

// Options 读取运行时设置
type Options interface {
	OptionOrDefault(name, defaultValue string) string
	IntOptionOrDefault(name string, defaultValue int) int
}

// ContextBuilder 构建去重上下文
type ContextBuilder interface {
	BuildContext(ctx context.Context, category string, windowDays, maxItems int) ([]models.RecentArticleSummary, error)
}

// KeyChecker 判断是否配置了直连密钥
type KeyChecker interface {
	KeyConfigured() bool
}

// Publisher 发布生成结果
type Publisher interface {
	Publish(ctx context.Context, resp *models.GenerationResponse, prompt models.Prompt, authorID string, autoPublish bool) (string, error)
}

// Sink 是日志收集器
type Sink interface {
	Log(level, message string)
}

// Config 是批次运行参数
type Config struct {
	Domain          string
	AuthorID        string
	AutoPublish     bool
	IntervalDays    int
	LockTTL         time.Duration
	DefaultTimeout  time.Duration
	DedupWindowDays int
	DedupMaxItems   int
}

// ConfigFrom 从应用配置提取批次参数
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		Domain:          cfg.Site.Domain,
		AuthorID:        cfg.Site.AuthorID,
		AutoPublish:     cfg.Site.AutoPublish,
		IntervalDays:    cfg.Site.IntervalDays,
		LockTTL:         cfg.Generation.LockTTL,
		DefaultTimeout:  cfg.Generation.DefaultTimeout,
		DedupWindowDays: cfg.Generation.DedupWindowDays,
		DedupMaxItems:   cfg.Generation.DedupMaxItems,
	}
}

// Deps 是运行器的协作者
type Deps struct {
	Lock          lock.Manager
	Subscriptions Subscriptions
	Prompts       PromptStore
	Options       Options
	Dedup         ContextBuilder
	Providers     provider.Set
	DirectKey     KeyChecker
	Publisher     Publisher
	Sink          Sink
}

// RunOptions 是一次批次的触发参数
type RunOptions struct {
	// Force 为手动触发，忽略“间隔为0时停用自动生成”
	Force   bool
	Trigger string
}

// LastRun 记录最近一次批次
type LastRun struct {
	Trigger    string             `json:"trigger"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
	Result     models.BatchResult `json:"result"`
}

// Runner 是批次运行器
type Runner struct {
	cfg  Config
	deps Deps
	now  func() time.Time

	mu    sync.Mutex
	state State
	last  *LastRun
}

// NewRunner 创建运行器
func NewRunner(cfg Config, deps Deps) *Runner {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = lock.DefaultTTL
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 2 * time.Minute
	}
	return &Runner{cfg: cfg, deps: deps, now: time.Now, state: StateIdle}
}

// State 返回当前状态
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// LastRun 返回最近一次批次，尚未运行时为nil
func (r *Runner) LastRun() *LastRun {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		return nil
	}
	last := *r.last
	return &last
}

func (r *Runner) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

func (r *Runner) transition(from, to State) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != from {
		return false
	}
	r.state = to
	return true
}

// RunBatch 运行一次批次
func (r *Runner) RunBatch(ctx context.Context, opts RunOptions) (result models.BatchResult) {
	result = models.BatchResult{Successes: []string{}, Errors: []string{}}

	if !opts.Force && r.deps.Options.IntOptionOrDefault(storage.OptionIntervalDays, r.cfg.IntervalDays) == 0 {
		log.Info("自动生成已停用，跳过本次触发")
		return result
	}

	started := r.now()
	// 同一进程内已有批次在运行时不改变其状态
	locking := r.transition(StateIdle, StateLocking)
	ok, err := r.deps.Lock.TryAcquire(ctx, r.cfg.LockTTL)
	if err != nil {
		if locking {
			r.transition(StateLocking, StateIdle)
		}
		msg := fmt.Sprintf("获取生成锁失败: %v", err)
		r.deps.Sink.Log("error", msg)
		result.Errors = append(result.Errors, msg)
		return result
	}
	if !ok {
		if locking {
			r.transition(StateLocking, StateIdle)
		}
		r.deps.Sink.Log("warning", "生成锁已被持有，跳过本次批次")
		result.Errors = append(result.Errors, apperr.ErrLockContention.Error())
		return result
	}
	// 批次必须在锁过期之前结束，留出释放锁的余量
	deadline := started.Add(r.cfg.LockTTL - finalizeMargin(r.cfg.LockTTL))
	runCtx, cancel := context.WithDeadline(ctx, deadline)

	defer func() {
		cancel()
		if p := recover(); p != nil {
			msg := fmt.Sprintf("批次异常终止: %v", p)
			r.deps.Sink.Log("error", msg)
			result.Errors = append(result.Errors, msg)
		}

		r.setState(StateFinalizing)
		if err := r.deps.Lock.Release(context.WithoutCancel(ctx)); err != nil {
			log.WithError(err).Warn("释放生成锁失败，等待TTL过期")
		}

		r.mu.Lock()
		r.state = StateIdle
		r.last = &LastRun{Trigger: opts.Trigger, StartedAt: started, FinishedAt: r.now(), Result: result}
		r.mu.Unlock()
	}()

	r.setState(StateRunning)
	r.run(runCtx, deadline, &result)
	return result
}

// run 按定义顺序处理启用的提示
func (r *Runner) run(ctx context.Context, deadline time.Time, result *models.BatchResult) {
	prompts, err := r.deps.Prompts.GetPrompts(ctx)
	if err != nil {
		r.fail(result, fmt.Sprintf("读取提示失败: %v", err))
		return
	}
	defaults, err := r.deps.Prompts.GetDefaultSettings(ctx)
	if err != nil {
		r.fail(result, fmt.Sprintf("读取默认设置失败: %v", err))
		return
	}

	active := models.ActivePrompts(prompts)
	if len(active) == 0 {
		log.Info("没有启用的提示")
		return
	}

	directKey := r.deps.DirectKey != nil && r.deps.DirectKey.KeyConfigured()
	status, err := r.deps.Subscriptions.GetStatus(ctx, r.cfg.Domain)
	if err != nil {
		if !directKey {
			r.fail(result, fmt.Sprintf("%v，且未配置直连API密钥", err))
			return
		}
		log.WithError(err).Warn("订阅服务无法访问，改用直连")
		status = nil
	}

	authorID := r.deps.Options.OptionOrDefault(storage.OptionAuthorID, r.cfg.AuthorID)
	autoPublish := r.cfg.AutoPublish
	if v := r.deps.Options.OptionOrDefault(storage.OptionAutoPublish, ""); v != "" {
		autoPublish = v == "1" || v == "true"
	}

	log.WithField("prompts", len(active)).Info("开始批量生成")

	overBudget := false
	for _, p := range active {
		settings := models.Merge(defaults, p)
		if settings.Timeout <= 0 {
			settings.Timeout = r.cfg.DefaultTimeout
		}

		// 最坏情况为一次重试
		if !overBudget && r.now().Add(2*settings.Timeout).After(deadline) {
			overBudget = true
		}
		if overBudget {
			r.record(result, p, "", apperr.ErrLockBudgetExceeded)
			continue
		}

		articleID, err := r.processPrompt(ctx, deadline, p, settings, status, directKey, authorID, autoPublish)
		if err != nil && ctx.Err() != nil {
			// 到达锁期限被中断，后续提示不再处理
			err = fmt.Errorf("%w: %v", apperr.ErrLockBudgetExceeded, err)
			overBudget = true
		}
		r.record(result, p, articleID, err)
	}
}

// processPrompt 选择提供方、检查额度、构建上下文、生成并发布
func (r *Runner) processPrompt(ctx context.Context, deadline time.Time, p models.Prompt, settings models.EffectiveSettings, status *models.SubscriptionStatus, directKey bool, authorID string, autoPublish bool) (string, error) {
	kind, err := provider.Select(status, directKey)
	if err != nil {
		return "", err
	}
	if err := r.reserve(ctx, kind); err != nil {
		return "", err
	}
	prov, err := r.deps.Providers.Get(kind)
	if err != nil {
		return "", err
	}

	recent, err := r.deps.Dedup.BuildContext(ctx, p.Category, r.cfg.DedupWindowDays, r.cfg.DedupMaxItems)
	if err != nil {
		log.WithError(err).WithField("prompt_id", p.ID).Warn("构建去重上下文失败，继续生成")
		recent = nil
	}

	req := models.GenerationRequest{
		PromptID:       p.ID,
		PromptText:     p.Text,
		Settings:       settings,
		RecentArticles: recent,
		Category:       p.Category,
		PhotoCount:     p.PhotoCount,
		CallerDomain:   r.cfg.Domain,
	}

	resp, err := prov.GenerateArticle(ctx, req, settings.Timeout)
	if err != nil && apperr.Retryable(err) && ctx.Err() == nil {
		fields := log.Fields{"prompt_id": p.ID, "provider": prov.Name()}
		if r.now().Add(settings.Timeout).After(deadline) {
			log.WithFields(fields).WithError(err).Warn("剩余锁时间不足，不再重试")
			return "", err
		}
		// 每次调用托管服务前都重新确认额度
		if err := r.reserve(ctx, kind); err != nil {
			return "", err
		}
		log.WithFields(fields).WithError(err).Info("生成失败，重试一次")
		resp, err = prov.GenerateArticle(ctx, req, settings.Timeout)
	}
	if err != nil {
		return "", err
	}

	articleID, err := r.deps.Publisher.Publish(ctx, resp, p, authorID, autoPublish)
	if err != nil {
		return "", err
	}

	if kind == provider.KindManaged {
		r.deps.Subscriptions.CommitCredit(r.cfg.Domain)
	}
	return articleID, nil
}

// reserve 在托管生成前确认仍有额度
func (r *Runner) reserve(ctx context.Context, kind provider.Kind) error {
	if kind == provider.KindManaged && !r.deps.Subscriptions.ReserveCredit(ctx, r.cfg.Domain) {
		return apperr.ErrCreditsExhausted
	}
	return nil
}

// finalizeMargin 返回批次期限与锁过期之间的余量
func finalizeMargin(ttl time.Duration) time.Duration {
	margin := ttl / 10
	if margin > 5*time.Second {
		margin = 5 * time.Second
	}
	return margin
}

// record 汇总单个提示的结果，每个错误只在这里记录一次
func (r *Runner) record(result *models.BatchResult, p models.Prompt, articleID string, err error) {
	if err == nil {
		msg := fmt.Sprintf("prompt %s: article %s", p.ID, articleID)
		result.Successes = append(result.Successes, msg)
		r.deps.Sink.Log("info", msg)
		return
	}

	msg := fmt.Sprintf("prompt %s: %v", p.ID, err)
	result.Errors = append(result.Errors, msg)

	level := "error"
	switch {
	case errors.Is(err, apperr.ErrCreditsExhausted),
		errors.Is(err, apperr.ErrLockBudgetExceeded),
		errors.Is(err, apperr.ErrNoProviderAvailable):
		level = "warning"
	}
	r.deps.Sink.Log(level, msg)
}

func (r *Runner) fail(result *models.BatchResult, msg string) {
	result.Errors = append(result.Errors, msg)
	r.deps.Sink.Log("error", msg)
}
