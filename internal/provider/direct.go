package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"story-generator/config"
	"story-generator/internal/ai"
	"story-generator/internal/apperr"
	"story-generator/internal/content"
	"story-generator/internal/dedup"
	"story-generator/internal/models"
	"story-generator/internal/storage"

	"github.com/sashabaranov/go-openai"
	log "github.com/sirupsen/logrus"
)

// Credentials 提供直连所需的密钥
type Credentials interface {
	OpenAIKey() string
	ImageSearchKey() string
}

// OptionReader 读取设置存储中的选项
type OptionReader interface {
	OptionOrDefault(name, defaultValue string) string
}

// OptionCredentials 优先读取设置存储中的密钥，其次使用环境变量中的值
type OptionCredentials struct {
	Options  OptionReader
	LLMKey   string
	ImageKey string
}

// OpenAIKey 返回LLM密钥
func (c OptionCredentials) OpenAIKey() string {
	if c.Options == nil {
		return strings.TrimSpace(c.LLMKey)
	}
	return strings.TrimSpace(c.Options.OptionOrDefault(storage.OptionOpenAIKey, c.LLMKey))
}

// ImageSearchKey 返回图片搜索密钥
func (c OptionCredentials) ImageSearchKey() string {
	if c.Options == nil {
		return strings.TrimSpace(c.ImageKey)
	}
	return strings.TrimSpace(c.Options.OptionOrDefault(storage.OptionImageSearchKey, c.ImageKey))
}

// Direct 使用站点自己的密钥直接调用LLM和图片搜索
type Direct struct {
	cfg    *config.OpenAIConfig
	creds  Credentials
	images ImageSearcher
}

// NewDirect 创建直连提供方
func NewDirect(cfg *config.OpenAIConfig, creds Credentials, images ImageSearcher) *Direct {
	return &Direct{cfg: cfg, creds: creds, images: images}
}

// Name 返回提供方名称
func (d *Direct) Name() string {
	return string(KindDirect)
}

// KeyConfigured 判断是否配置了LLM密钥
func (d *Direct) KeyConfigured() bool {
	return d.creds.OpenAIKey() != ""
}

// GenerateArticle 调用一次LLM，需要配图时再调用一次图片搜索，两者共用同一个超时
func (d *Direct) GenerateArticle(ctx context.Context, req models.GenerationRequest, timeout time.Duration) (*models.GenerationResponse, error) {
	key := d.creds.OpenAIKey()
	if key == "" {
		return nil, fmt.Errorf("%w: 未配置OpenAI API密钥", apperr.ErrConfiguration)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	instructions := req.Settings.SystemInstructions
	if strings.TrimSpace(instructions) == "" {
		instructions = ai.DefaultSystemInstructions
	}
	system := ai.BuildSystemPrompt(dedup.AppendDirective(instructions, req.RecentArticles))
	user := ai.BuildUserPrompt(req.PromptText, req.Category)

	client := ai.NewClient(d.cfg, key)
	completion, err := client.GenerateArticle(ctx, req.Settings.Model, system, user, timeout)
	if err != nil {
		return nil, d.classify(err)
	}

	resp, err := content.Parse([]byte(stripCodeFence(completion.Content)))
	if err != nil {
		return nil, err
	}
	if resp.RequestID == "" {
		resp.RequestID = completion.ID
	}
	if resp.TokenUsage == 0 {
		resp.TokenUsage = completion.TotalTokens
	}
	resp.Provider = d.Name()

	if req.PhotoCount > 0 {
		if err := d.attachImages(ctx, req, resp); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

// attachImages 搜索配图并在正文中插入标记，由发布时解析为附件
func (d *Direct) attachImages(ctx context.Context, req models.GenerationRequest, resp *models.GenerationResponse) error {
	imageKey := d.creds.ImageSearchKey()
	if imageKey == "" || d.images == nil {
		log.WithField("prompt_id", req.PromptID).Warn("未配置图片搜索密钥，跳过配图")
		return nil
	}

	query := resp.Title
	if query == "" {
		query = req.PromptText
	}
	images, err := d.images.Search(ctx, imageKey, query, req.PhotoCount)
	if err != nil {
		return err
	}

	resp.Images = images
	resp.BodyHTML = InsertImageMarkers(resp.BodyHTML, len(images))
	return nil
}

// classify 将OpenAI客户端错误映射到错误分类
func (d *Direct) classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusUnauthorized {
			return fmt.Errorf("%w: API密钥无效: %s", apperr.ErrConfiguration, apiErr.Message)
		}
		return &apperr.ProviderError{Provider: d.Name(), StatusCode: apiErr.HTTPStatusCode, Payload: apiErr.Message, Err: err}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &apperr.ProviderError{Provider: d.Name(), StatusCode: reqErr.HTTPStatusCode, Err: err}
	}

	return &apperr.ProviderError{Provider: d.Name(), Err: err}
}

// stripCodeFence 去掉模型偶尔包裹在JSON外的Markdown代码块
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
