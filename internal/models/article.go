package models

import "time"

// 文章状态
const (
	StatusPublished = "published"
	StatusDraft     = "draft"
)

// PublishedArticle 表示由生成结果创建的内容条目
type PublishedArticle struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Excerpt   string    `json:"excerpt"`
	Status    string    `json:"status"`
	Category  string    `json:"category"`
	Tags      []string  `json:"tags"`
	AuthorID  string    `json:"author_id"`
	Permalink string    `json:"permalink"`
	Media     []string  `json:"media,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Metadata  Metadata  `json:"metadata"`
}

// Metadata 记录审计用的回溯信息
type Metadata struct {
	RequestID        string      `json:"request_id"`
	TokenUsage       int         `json:"token_usage"`
	SourceReferences []Reference `json:"source_references"`
	PromptID         string      `json:"prompt_id"`
	Provider         string      `json:"provider,omitempty"`
}

// Summary 返回用于去重上下文的摘要
func (a *PublishedArticle) Summary() RecentArticleSummary {
	return RecentArticleSummary{
		Title:     a.Title,
		Excerpt:   a.Excerpt,
		Permalink: a.Permalink,
	}
}

// SubscriptionStatus 表示订阅与额度状态
type SubscriptionStatus struct {
	Valid            bool      `json:"valid"`
	Domain           string    `json:"domain"`
	PackageID        string    `json:"package_id"`
	PackageName      string    `json:"package_name"`
	CreditsRemaining int       `json:"credits_remaining"`
	Price            string    `json:"price"`
	CreatedAt        time.Time `json:"created_at"`
}

// HasCapacity 判断套餐是否有效且仍有额度
func (s *SubscriptionStatus) HasCapacity() bool {
	return s != nil && s.Valid && s.CreditsRemaining > 0
}

// GenerationLock 表示生成锁的当前状态
type GenerationLock struct {
	Held       bool          `json:"held"`
	Owner      string        `json:"owner,omitempty"`
	AcquiredAt time.Time     `json:"acquired_at"`
	TTL        time.Duration `json:"ttl"`
}

// ExpiresAt 返回锁的过期时间
func (l GenerationLock) ExpiresAt() time.Time {
	return l.AcquiredAt.Add(l.TTL)
}

// BatchResult 表示一次批量生成的结果
type BatchResult struct {
	Successes []string `json:"successes"`
	Errors    []string `json:"errors"`
}

// Summary 返回手动触发时展示给用户的一句话结果
func (r BatchResult) Summary() string {
	if len(r.Errors) == 0 {
		if len(r.Successes) == 0 {
			return "没有需要生成的提示"
		}
		return "生成完成"
	}
	if len(r.Successes) == 0 {
		return "生成失败"
	}
	return "部分生成失败"
}

// LogEntry 表示持久化的一条日志
type LogEntry struct {
	ID        string    `json:"id"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}
