package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"story-generator/config"

	"github.com/sashabaranov/go-openai"
	log "github.com/sirupsen/logrus"
)

// Client 是AI接口的客户端
type Client struct {
	client    *openai.Client
	model     string
	maxTokens int
}

// Completion 是一次生成调用的结果
type Completion struct {
	ID          string
	Content     string
	TotalTokens int
}

// NewClient 创建一个新的AI客户端，apiKey为空时由调用方负责拒绝请求
func NewClient(cfg *config.OpenAIConfig, apiKey string) *Client {
	// 创建OpenAI配置
	clientConfig := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &Client{
		client:    openai.NewClientWithConfig(clientConfig),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}
}

// GenerateArticle 以JSON模式生成一篇文章
func (c *Client) GenerateArticle(ctx context.Context, model, systemPrompt, userPrompt string, timeout time.Duration) (*Completion, error) {
	if model == "" {
		model = c.model
	}

	// 创建聊天请求
	req := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: userPrompt,
			},
		},
		MaxTokens: c.maxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	return c.generateText(ctx, req, timeout)
}

// generateText 发送AI请求并获取生成的文本，不在内部重试
func (c *Client) generateText(ctx context.Context, req openai.ChatCompletionRequest, timeout time.Duration) (*Completion, error) {
	log.Debugf("生成AI内容，模型: %s", req.Model)

	// 添加超时
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// 发送请求
	resp, err := c.client.CreateChatCompletion(timeoutCtx, req)
	if err != nil {
		return nil, fmt.Errorf("生成AI内容失败: %w", err)
	}

	// 检查响应是否有效
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return nil, fmt.Errorf("AI响应中没有内容")
	}

	log.Debugf("AI内容生成成功，使用tokens: %d", resp.Usage.TotalTokens)
	return &Completion{
		ID:          resp.ID,
		Content:     resp.Choices[0].Message.Content,
		TotalTokens: resp.Usage.TotalTokens,
	}, nil
}
