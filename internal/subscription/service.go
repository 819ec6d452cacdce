// subscription 查询托管服务的套餐与额度状态，并在本地保留额度镜像。
//
// 额度的扣减以远程系统为准，本地只读取和报告。
package subscription

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"story-generator/config"
	"story-generator/internal/apperr"
	"story-generator/internal/models"
)

// Service 是订阅与额度服务
type Service struct {
	baseURL    string
	httpClient *http.Client

	mu     sync.Mutex
	mirror map[string]int
}

// NewService 创建订阅服务
func NewService(cfg *config.ManagedConfig) *Service {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Service{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		mirror:     make(map[string]int),
	}
}

// GetStatus 查询域名的订阅状态
func (s *Service) GetStatus(ctx context.Context, domain string) (*models.SubscriptionStatus, error) {
	endpoint := fmt.Sprintf("%s/subscription?domain=%s", s.baseURL, url.QueryEscape(domain))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("创建订阅请求失败: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrServiceUnreachable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: 读取响应失败: %v", apperr.ErrServiceUnreachable, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		// 未注册的域名视为无有效订阅
		st := &models.SubscriptionStatus{Valid: false, Domain: domain}
		s.remember(domain, st)
		return st, nil
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: 状态码 %d", apperr.ErrServiceUnreachable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: 状态码 %d: %s", apperr.ErrServiceUnreachable, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var st models.SubscriptionStatus
	if err := json.Unmarshal(body, &st); err != nil {
		return nil, fmt.Errorf("%w: 解析订阅状态失败: %v", apperr.ErrServiceUnreachable, err)
	}
	if st.Domain == "" {
		st.Domain = domain
	}
	if st.CreditsRemaining < 0 {
		st.CreditsRemaining = 0
	}

	s.remember(domain, &st)
	return &st, nil
}

// ReserveCredit 在每次托管生成前调用，额度为0或状态未知时返回false
func (s *Service) ReserveCredit(ctx context.Context, domain string) bool {
	st, err := s.GetStatus(ctx, domain)
	if err == nil {
		return st.HasCapacity()
	}

	credits, ok := s.Mirror(domain)
	return ok && credits > 0
}

// CommitCredit 在托管生成成功后扣减本地镜像
func (s *Service) CommitCredit(domain string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.mirror[domain]; ok && n > 0 {
		s.mirror[domain] = n - 1
	}
}

// Mirror 返回最近一次得知的剩余额度
func (s *Service) Mirror(domain string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.mirror[domain]
	return n, ok
}

func (s *Service) remember(domain string, st *models.SubscriptionStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !st.Valid {
		s.mirror[domain] = 0
		return
	}
	s.mirror[domain] = st.CreditsRemaining
}
