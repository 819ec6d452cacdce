package ai

import (
	"fmt"
	"strings"
)

// ArticleFormatPrompt 要求模型返回固定结构的JSON
const ArticleFormatPrompt = `You are a professional blog writer.
Respond with a single JSON object and nothing else, using exactly these keys:
{
  "title": "article title",
  "content": "article body as HTML using <p>, <h2>, <h3>, <ul>, <li>, <blockquote>",
  "excerpt": "one or two sentence summary",
  "references": [{"title": "source title", "url": "https://..."}],
  "tags": ["tag"]
}
Do not wrap the JSON in Markdown code fences.`

// DefaultSystemInstructions 是未配置系统指令时使用的默认值
const DefaultSystemInstructions = "Write an original, well-structured and factually careful article for a general audience."

// BuildSystemPrompt 合并系统指令与输出格式要求
func BuildSystemPrompt(instructions string) string {
	instructions = strings.TrimSpace(instructions)
	if instructions == "" {
		instructions = DefaultSystemInstructions
	}
	return instructions + "\n\n" + ArticleFormatPrompt
}

// BuildUserPrompt 构造用户消息
func BuildUserPrompt(promptText, category string) string {
	if category == "" {
		return promptText
	}
	return fmt.Sprintf("Category: %s\n\n%s", category, promptText)
}

