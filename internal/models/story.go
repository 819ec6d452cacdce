package models

import "time"

// Prompt 表示用户编写的一个生成主题
type Prompt struct {
	ID          string `json:"id"`
	Text        string `json:"text"`
	Category    string `json:"category"`
	PhotoCount  int    `json:"photo_count"`
	Active      bool   `json:"active"`
	AutoPublish bool   `json:"auto_publish"`

	// 以下字段非零时覆盖默认设置
	Model              string `json:"model,omitempty"`
	SystemInstructions string `json:"system_instructions,omitempty"`
	Timeout            int    `json:"timeout,omitempty"` // 秒
}

// DefaultSettings 表示所有提示共享的默认生成设置
type DefaultSettings struct {
	Model              string `json:"model"`
	SystemInstructions string `json:"system_instructions"`
	Timeout            int    `json:"timeout"` // 秒
}

// PromptDocument 表示提示存储中的完整JSON文档
type PromptDocument struct {
	DefaultSettings DefaultSettings `json:"default_settings"`
	Prompts         []Prompt        `json:"prompts"`
}

// EffectiveSettings 表示一次生成调用实际使用的设置
type EffectiveSettings struct {
	Model              string        `json:"model"`
	SystemInstructions string        `json:"system_instructions"`
	Timeout            time.Duration `json:"timeout"`
}

// Merge 将提示自身的设置覆盖到默认设置之上
func Merge(defaults DefaultSettings, p Prompt) EffectiveSettings {
	eff := EffectiveSettings{
		Model:              defaults.Model,
		SystemInstructions: defaults.SystemInstructions,
		Timeout:            time.Duration(defaults.Timeout) * time.Second,
	}
	if p.Model != "" {
		eff.Model = p.Model
	}
	if p.SystemInstructions != "" {
		eff.SystemInstructions = p.SystemInstructions
	}
	if p.Timeout > 0 {
		eff.Timeout = time.Duration(p.Timeout) * time.Second
	}
	return eff
}

// ActivePrompts 按定义顺序返回启用的提示
func ActivePrompts(prompts []Prompt) []Prompt {
	active := make([]Prompt, 0, len(prompts))
	for _, p := range prompts {
		if p.Active {
			active = append(active, p)
		}
	}
	return active
}

// RecentArticleSummary 表示用于去重上下文的近期文章摘要
type RecentArticleSummary struct {
	Title     string `json:"title"`
	Excerpt   string `json:"excerpt"`
	Permalink string `json:"permalink"`
}

// Reference 表示文章引用的来源
type Reference struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Image 表示候选配图
type Image struct {
	URL    string `json:"url"`
	Alt    string `json:"alt,omitempty"`
	Credit string `json:"credit,omitempty"`
}

// GenerationRequest 表示发送给内容提供方的不可变请求
type GenerationRequest struct {
	PromptID       string                 `json:"prompt_id"`
	PromptText     string                 `json:"prompt_text"`
	Settings       EffectiveSettings      `json:"effective_settings"`
	RecentArticles []RecentArticleSummary `json:"recent_article_summaries"`
	Category       string                 `json:"category"`
	PhotoCount     int                    `json:"photo_count"`
	CallerDomain   string                 `json:"caller_domain"`
}

// GenerationResponse 表示经过校验和规范化的生成结果
type GenerationResponse struct {
	Title      string      `json:"title"`
	BodyHTML   string      `json:"body_html"`
	Excerpt    string      `json:"excerpt"`
	References []Reference `json:"references"`
	Tags       []string    `json:"tags"`
	Images     []Image     `json:"images,omitempty"`
	TokenUsage int         `json:"token_usage"`
	RequestID  string      `json:"request_id"`
	Provider   string      `json:"provider,omitempty"`
}
