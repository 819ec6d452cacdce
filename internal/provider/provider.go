// provider 定义内容提供方：托管服务和直连第三方API两种实现。
package provider

import (
	"context"
	"time"

	"story-generator/internal/apperr"
	"story-generator/internal/models"
)

// Kind 提供方类型
type Kind string

const (
	KindManaged Kind = "managed"
	KindDirect  Kind = "direct"
)

// Provider 生成一篇文章
type Provider interface {
	Name() string
	GenerateArticle(ctx context.Context, req models.GenerationRequest, timeout time.Duration) (*models.GenerationResponse, error)
}

// Select 选择提供方：订阅有效时使用托管服务，否则在配置了直连密钥时直连
func Select(status *models.SubscriptionStatus, directKeyConfigured bool) (Kind, error) {
	if status != nil && status.Valid {
		return KindManaged, nil
	}
	if directKeyConfigured {
		return KindDirect, nil
	}
	return "", apperr.ErrNoProviderAvailable
}

// Set 按类型持有两种提供方
type Set struct {
	Managed Provider
	Direct  Provider
}

// Get 返回指定类型的提供方
func (s Set) Get(kind Kind) (Provider, error) {
	switch kind {
	case KindManaged:
		if s.Managed != nil {
			return s.Managed, nil
		}
	case KindDirect:
		if s.Direct != nil {
			return s.Direct, nil
		}
	}
	return nil, apperr.ErrNoProviderAvailable
}
