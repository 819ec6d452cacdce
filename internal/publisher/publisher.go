// publisher 将生成结果幂等地写入内容存储。
package publisher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"story-generator/internal/apperr"
	"story-generator/internal/models"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// CMS 是发布所需的内容存储操作
type CMS interface {
	FindByRequestID(ctx context.Context, requestID string) (string, bool, error)
	CreateOrUpdateEntry(ctx context.Context, entry *models.PublishedArticle) (string, error)
	AssignCategory(ctx context.Context, entryID, category string) error
	AssignTags(ctx context.Context, entryID string, tags []string) error
}

// MediaStore 保存图片附件并返回访问地址
type MediaStore interface {
	AttachMedia(ctx context.Context, entryID string, index int, img models.Image) (string, error)
}

// 匹配图片标记，连同goldmark包裹它的段落标签
var markerPattern = regexp.MustCompile(`(?:<p>\s*)?\[\[image:(\d+)\]\](?:\s*</p>)?`)

// Publisher 发布文章
type Publisher struct {
	cms   CMS
	media MediaStore
	now   func() time.Time
}

// New 创建发布器，media为nil时图片标记会被移除
func New(cms CMS, media MediaStore) *Publisher {
	return &Publisher{cms: cms, media: media, now: time.Now}
}

// Publish 创建文章并返回其ID；相同request_id的文章已存在时直接返回已有ID
func (p *Publisher) Publish(ctx context.Context, resp *models.GenerationResponse, prompt models.Prompt, authorID string, autoPublish bool) (string, error) {
	requestID := resp.RequestID
	if requestID == "" {
		requestID = DeriveRequestID(prompt.ID, resp.Title, resp.BodyHTML)
	}

	existing, ok, err := p.cms.FindByRequestID(ctx, requestID)
	if err != nil {
		return "", fmt.Errorf("查询已发布文章失败: %w", err)
	}
	if ok {
		log.WithFields(log.Fields{"request_id": requestID, "article_id": existing}).Info("文章已发布，跳过")
		return existing, nil
	}

	id := uuid.NewString()

	status := models.StatusDraft
	if autoPublish || prompt.AutoPublish {
		status = models.StatusPublished
	}

	now := p.now()
	article := &models.PublishedArticle{
		ID:        id,
		Title:     resp.Title,
		Body:      markerPattern.ReplaceAllString(resp.BodyHTML, ""),
		Excerpt:   resp.Excerpt,
		Status:    status,
		AuthorID:  authorID,
		Permalink: permalink(now, resp.Title, id),
		CreatedAt: now,
		Metadata: models.Metadata{
			RequestID:        requestID,
			TokenUsage:       resp.TokenUsage,
			SourceReferences: resp.References,
			PromptID:         prompt.ID,
			Provider:         resp.Provider,
		},
	}

	created, err := p.cms.CreateOrUpdateEntry(ctx, article)
	if errors.Is(err, apperr.ErrPublishConflict) {
		log.WithFields(log.Fields{"request_id": requestID, "article_id": created}).Info("并发发布冲突，返回已有文章")
		return created, nil
	}
	if err != nil {
		return "", fmt.Errorf("创建文章失败: %w", err)
	}

	// 文章已存在，以下步骤失败只影响附件和分类，不影响发布结果
	fields := log.Fields{"request_id": requestID, "article_id": created}
	if p.media != nil && len(resp.Images) > 0 && markerPattern.MatchString(resp.BodyHTML) {
		article.Body, article.Media = p.resolveMarkers(ctx, created, resp.BodyHTML, resp.Images)
		if _, err := p.cms.CreateOrUpdateEntry(ctx, article); err != nil {
			log.WithFields(fields).WithError(err).Warn("保存配图失败，文章不含图片")
		}
	}

	if prompt.Category != "" {
		if err := p.cms.AssignCategory(ctx, created, prompt.Category); err != nil {
			log.WithFields(fields).WithError(err).Warn("设置分类失败")
		}
	}
	if len(resp.Tags) > 0 {
		if err := p.cms.AssignTags(ctx, created, resp.Tags); err != nil {
			log.WithFields(fields).WithError(err).Warn("设置标签失败")
		}
	}

	return created, nil
}

// resolveMarkers 将图片标记替换为附件，无法解析的标记直接移除
func (p *Publisher) resolveMarkers(ctx context.Context, entryID, body string, images []models.Image) (string, []string) {
	var media []string
	resolved := make(map[int]string)

	out := markerPattern.ReplaceAllStringFunc(body, func(m string) string {
		sub := markerPattern.FindStringSubmatch(m)
		idx, err := strconv.Atoi(sub[1])
		if err != nil || idx < 0 || idx >= len(images) {
			return ""
		}
		if fig, ok := resolved[idx]; ok {
			return fig
		}

		img := images[idx]
		url, err := p.media.AttachMedia(ctx, entryID, idx, img)
		if err != nil {
			log.WithError(err).WithField("image", img.URL).Warn("保存配图失败，移除标记")
			resolved[idx] = ""
			return ""
		}
		media = append(media, url)
		resolved[idx] = figure(url, img)
		return resolved[idx]
	})

	return out, media
}

func figure(url string, img models.Image) string {
	var sb strings.Builder
	sb.WriteString(`<figure><img src="`)
	sb.WriteString(html.EscapeString(url))
	sb.WriteString(`" alt="`)
	sb.WriteString(html.EscapeString(img.Alt))
	sb.WriteString(`">`)
	if img.Credit != "" {
		sb.WriteString("<figcaption>")
		sb.WriteString(html.EscapeString(img.Credit))
		sb.WriteString("</figcaption>")
	}
	sb.WriteString("</figure>")
	return sb.String()
}

// DeriveRequestID 在提供方没有返回request_id时，根据内容生成稳定的键
func DeriveRequestID(promptID, title, body string) string {
	sum := sha256.Sum256([]byte(promptID + "\x00" + title + "\x00" + body))
	return "sha256-" + hex.EncodeToString(sum[:16])
}

func permalink(t time.Time, title, id string) string {
	slug := slugify(title)
	short := strings.ReplaceAll(id, "-", "")
	if len(short) > 8 {
		short = short[:8]
	}
	if slug == "" {
		return fmt.Sprintf("/%04d/%02d/%s", t.Year(), t.Month(), short)
	}
	return fmt.Sprintf("/%04d/%02d/%s-%s", t.Year(), t.Month(), slug, short)
}

func slugify(s string) string {
	var sb strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			sb.WriteRune(r)
			dash = false
		case sb.Len() > 0 && !dash:
			sb.WriteByte('-')
			dash = true
		}
		if sb.Len() >= 60 {
			break
		}
	}
	return strings.Trim(sb.String(), "-")
}
