// dedup 收集近期已发布文章的摘要，作为“不要重复这些主题”的生成上下文。
//
// 上下文只是给模型的建议，不会据此拒绝任何生成结果。
package dedup

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"story-generator/internal/models"

	"github.com/mmcdole/gofeed"
	log "github.com/sirupsen/logrus"
)

// CMS 是查询近期条目的内容存储
type CMS interface {
	QueryRecentEntries(ctx context.Context, category string, since time.Time, limit int) ([]*models.PublishedArticle, error)
}

// Builder 构建去重上下文
type Builder struct {
	cms        CMS
	feedURL    string
	parser     *gofeed.Parser
	httpClient *http.Client
	now        func() time.Time
}

// NewBuilder 创建构建器，feedURL为空时只查询本地条目
func NewBuilder(cms CMS, feedURL string) *Builder {
	return &Builder{
		cms:        cms,
		feedURL:    feedURL,
		parser:     gofeed.NewParser(),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		now:        time.Now,
	}
}

// BuildContext 返回分类（为空时不限分类）在时间窗口内的近期文章，按时间倒序，最多maxItems条
func (b *Builder) BuildContext(ctx context.Context, category string, windowDays, maxItems int) ([]models.RecentArticleSummary, error) {
	if maxItems <= 0 {
		return nil, nil
	}
	since := b.now().AddDate(0, 0, -windowDays)

	entries, err := b.cms.QueryRecentEntries(ctx, category, since, maxItems)
	if err != nil {
		return nil, fmt.Errorf("查询近期文章失败: %w", err)
	}

	seen := make(map[string]bool)
	summaries := make([]models.RecentArticleSummary, 0, maxItems)
	add := func(s models.RecentArticleSummary) {
		key := s.Permalink
		if key == "" {
			key = strings.ToLower(s.Title)
		}
		if seen[key] || len(summaries) >= maxItems {
			return
		}
		seen[key] = true
		summaries = append(summaries, s)
	}

	for _, e := range entries {
		add(e.Summary())
	}

	if b.feedURL != "" && len(summaries) < maxItems {
		items, err := b.fetchFeed(ctx, category, since)
		if err != nil {
			log.WithError(err).Warn("获取RSS去重来源失败，仅使用本地文章")
		}
		for _, s := range items {
			add(s)
		}
	}

	return summaries, nil
}

// fetchFeed 从站点RSS读取近期条目
func (b *Builder) fetchFeed(ctx context.Context, category string, since time.Time) ([]models.RecentArticleSummary, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求RSS失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("请求RSS失败: %s", resp.Status)
	}

	feed, err := b.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("解析RSS失败: %w", err)
	}

	var out []models.RecentArticleSummary
	for _, item := range feed.Items {
		if item.PublishedParsed != nil && item.PublishedParsed.Before(since) {
			continue
		}
		if category != "" && !hasCategory(item.Categories, category) {
			continue
		}
		out = append(out, models.RecentArticleSummary{
			Title:     strings.TrimSpace(item.Title),
			Excerpt:   strings.TrimSpace(item.Description),
			Permalink: item.Link,
		})
	}
	return out, nil
}

func hasCategory(categories []string, category string) bool {
	for _, c := range categories {
		if strings.EqualFold(strings.TrimSpace(c), category) {
			return true
		}
	}
	return false
}

// AppendDirective 将近期文章列表原样附加到系统指令中
func AppendDirective(instructions string, summaries []models.RecentArticleSummary) string {
	if len(summaries) == 0 {
		return instructions
	}

	var sb strings.Builder
	sb.WriteString(strings.TrimRight(instructions, "\n"))
	if sb.Len() > 0 {
		sb.WriteString("\n\n")
	}
	sb.WriteString("Recently published articles. Do not repeat these topics; choose a different angle or subject:\n")
	for _, s := range summaries {
		sb.WriteString("- ")
		sb.WriteString(s.Title)
		if s.Excerpt != "" {
			sb.WriteString(": ")
			sb.WriteString(s.Excerpt)
		}
		if s.Permalink != "" {
			sb.WriteString(" (")
			sb.WriteString(s.Permalink)
			sb.WriteString(")")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
