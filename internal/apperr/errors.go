// apperr 定义生成流程的错误分类。
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrLockContention 生成锁已被持有，本次批次不运行
	ErrLockContention = errors.New("lock held")
	// ErrServiceUnreachable 订阅服务无法访问
	ErrServiceUnreachable = errors.New("subscription service unreachable")
	// ErrConfiguration 密钥缺失或无效
	ErrConfiguration = errors.New("configuration error")
	// ErrProvider 远程服务返回4xx/5xx或超时，可重试一次
	ErrProvider = errors.New("provider error")
	// ErrMalformedResponse 响应JSON无效或缺少必填字段
	ErrMalformedResponse = errors.New("malformed response")
	// ErrNoProviderAvailable 既没有有效订阅也没有直连密钥
	ErrNoProviderAvailable = errors.New("no provider available")
	// ErrPublishConflict 相同request_id的文章已存在，不算错误
	ErrPublishConflict = errors.New("publish conflict")
	// ErrCreditsExhausted 套餐有效但额度为0
	ErrCreditsExhausted = errors.New("credits exhausted")
	// ErrLockBudgetExceeded 剩余的锁时间不足以处理下一个提示
	ErrLockBudgetExceeded = errors.New("skipped: lock budget exceeded")
)

// ProviderError 携带远程返回的原始内容，便于记录日志
type ProviderError struct {
	Provider   string
	StatusCode int
	Payload    string
	Err        error
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("%s: %s", ErrProvider, e.Provider)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" status %d", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Payload != "" {
		msg += ": " + truncate(e.Payload, 300)
	}
	return msg
}

// Is 让 errors.Is(err, ErrProvider) 成立
func (e *ProviderError) Is(target error) bool {
	return target == ErrProvider
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Retryable 判断错误是否允许批次重试一次
func Retryable(err error) bool {
	return errors.Is(err, ErrProvider)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
