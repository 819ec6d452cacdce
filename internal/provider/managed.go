package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"story-generator/config"
	"story-generator/internal/apperr"
	"story-generator/internal/content"
	"story-generator/internal/models"
)

// Managed 调用托管生成服务，由服务端负责LLM、图片搜索和额度扣减
type Managed struct {
	baseURL    string
	httpClient *http.Client
}

// managedRequest 是发送给托管服务的请求体
type managedRequest struct {
	Domain string `json:"domain"`
	models.GenerationRequest
}

// managedEnvelope 是托管服务的响应外层
type managedEnvelope struct {
	Success    bool            `json:"success"`
	Error      string          `json:"error"`
	RequestID  string          `json:"request_id"`
	TokenUsage int             `json:"token_usage"`
	Article    json.RawMessage `json:"article"`
}

// NewManaged 创建托管提供方
func NewManaged(cfg *config.ManagedConfig) *Managed {
	return &Managed{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		// 超时由每次调用的context控制
		httpClient: &http.Client{},
	}
}

// Name 返回提供方名称
func (m *Managed) Name() string {
	return string(KindManaged)
}

// GenerateArticle 发起一次生成调用，不在内部重试
func (m *Managed) GenerateArticle(ctx context.Context, req models.GenerationRequest, timeout time.Duration) (*models.GenerationResponse, error) {
	payload, err := json.Marshal(managedRequest{Domain: req.CallerDomain, GenerationRequest: req})
	if err != nil {
		return nil, fmt.Errorf("序列化请求失败: %w", err)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/generate", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := m.httpClient.Do(httpReq)
	if err != nil {
		return nil, &apperr.ProviderError{Provider: m.Name(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, &apperr.ProviderError{Provider: m.Name(), StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode == http.StatusPaymentRequired {
		return nil, fmt.Errorf("%w: %s", apperr.ErrCreditsExhausted, strings.TrimSpace(string(body)))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &apperr.ProviderError{Provider: m.Name(), StatusCode: resp.StatusCode, Payload: string(body)}
	}

	var env managedEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &apperr.ProviderError{
			Provider:   m.Name(),
			StatusCode: resp.StatusCode,
			Payload:    string(body),
			Err:        fmt.Errorf("解析响应失败: %w", err),
		}
	}
	if !env.Success {
		return nil, &apperr.ProviderError{Provider: m.Name(), StatusCode: resp.StatusCode, Payload: env.Error}
	}

	article, err := content.Parse(env.Article)
	if err != nil {
		return nil, err
	}
	if article.RequestID == "" {
		article.RequestID = env.RequestID
	}
	if article.TokenUsage == 0 {
		article.TokenUsage = env.TokenUsage
	}
	article.Provider = m.Name()
	return article, nil
}
