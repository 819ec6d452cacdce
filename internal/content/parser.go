// content 校验并规范化内容提供方返回的结构化文章。
package content

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"story-generator/internal/apperr"
	"story-generator/internal/models"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
)

// ExcerptLength 自动生成摘要的最大字符数
const ExcerptLength = 160

var (
	htmlTagPattern = regexp.MustCompile(`<[a-zA-Z][^>]*>`)
	markerPattern  = regexp.MustCompile(`\[\[image:\d+\]\]`)
	spacePattern   = regexp.MustCompile(`\s+`)

	policy = bluemonday.UGCPolicy()
)

// rawArticle 是提供方返回的JSON结构
type rawArticle struct {
	Title      *string            `json:"title"`
	Content    *string            `json:"content"`
	Excerpt    string             `json:"excerpt"`
	References []models.Reference `json:"references"`
	Tags       []string           `json:"tags"`
	Images     []models.Image     `json:"images"`
	TokenUsage int                `json:"token_usage"`
	RequestID  string             `json:"request_id"`
}

// Parse 解析并校验原始JSON，返回可发布的生成结果
func Parse(raw []byte) (*models.GenerationResponse, error) {
	var a rawArticle
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrMalformedResponse, err)
	}
	if a.Title == nil || strings.TrimSpace(*a.Title) == "" {
		return nil, fmt.Errorf("%w: 缺少title", apperr.ErrMalformedResponse)
	}
	if a.Content == nil || strings.TrimSpace(*a.Content) == "" {
		return nil, fmt.Errorf("%w: 缺少content", apperr.ErrMalformedResponse)
	}

	body, err := SanitizeBody(*a.Content)
	if err != nil {
		return nil, err
	}

	excerpt := strings.TrimSpace(a.Excerpt)
	if excerpt == "" {
		excerpt = DeriveExcerpt(body, ExcerptLength)
	}

	return &models.GenerationResponse{
		Title:      strings.TrimSpace(*a.Title),
		BodyHTML:   body,
		Excerpt:    excerpt,
		References: NormalizeReferences(a.References),
		Tags:       NormalizeTags(a.Tags),
		Images:     normalizeImages(a.Images),
		TokenUsage: a.TokenUsage,
		RequestID:  strings.TrimSpace(a.RequestID),
	}, nil
}

// SanitizeBody 将Markdown转换为HTML并过滤不安全的标签
func SanitizeBody(content string) (string, error) {
	html := content
	if !htmlTagPattern.MatchString(content) {
		var buf bytes.Buffer
		if err := goldmark.Convert([]byte(content), &buf); err != nil {
			return "", fmt.Errorf("%w: 转换Markdown失败: %v", apperr.ErrMalformedResponse, err)
		}
		html = buf.String()
	}

	clean := strings.TrimSpace(policy.Sanitize(html))
	if clean == "" {
		return "", fmt.Errorf("%w: 过滤后正文为空", apperr.ErrMalformedResponse)
	}
	return clean, nil
}

// NormalizeTags 去除空白、空值和大小写不敏感的重复标签，保留首次出现的写法
func NormalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		key := strings.ToLower(t)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
	}
	return out
}

// NormalizeReferences 丢弃没有URL的引用，标题缺省为URL
func NormalizeReferences(refs []models.Reference) []models.Reference {
	out := make([]models.Reference, 0, len(refs))
	for _, r := range refs {
		r.URL = strings.TrimSpace(r.URL)
		if r.URL == "" {
			continue
		}
		r.Title = strings.TrimSpace(r.Title)
		if r.Title == "" {
			r.Title = r.URL
		}
		out = append(out, r)
	}
	return out
}

func normalizeImages(images []models.Image) []models.Image {
	var out []models.Image
	for _, img := range images {
		if strings.TrimSpace(img.URL) == "" {
			continue
		}
		out = append(out, img)
	}
	return out
}

// DeriveExcerpt 从正文纯文本截取摘要
func DeriveExcerpt(body string, n int) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return ""
	}
	text := markerPattern.ReplaceAllString(doc.Text(), " ")
	text = strings.TrimSpace(spacePattern.ReplaceAllString(text, " "))

	r := []rune(text)
	if len(r) <= n {
		return text
	}
	return strings.TrimSpace(string(r[:n])) + "…"
}
