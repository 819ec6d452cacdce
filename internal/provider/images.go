package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"story-generator/config"
	"story-generator/internal/apperr"
	"story-generator/internal/models"
)

// ImageSearcher 按关键词搜索候选配图
type ImageSearcher interface {
	Search(ctx context.Context, apiKey, query string, count int) ([]models.Image, error)
}

// PexelsSearcher 调用Pexels兼容的图片搜索接口
type PexelsSearcher struct {
	endpoint   string
	httpClient *http.Client
}

type pexelsResponse struct {
	Photos []struct {
		Alt          string `json:"alt"`
		Photographer string `json:"photographer"`
		Src          struct {
			Large    string `json:"large"`
			Original string `json:"original"`
		} `json:"src"`
	} `json:"photos"`
}

// NewPexelsSearcher 创建图片搜索客户端
func NewPexelsSearcher(cfg *config.ImageSearchConfig) *PexelsSearcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &PexelsSearcher{
		endpoint:   cfg.URL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Search 搜索图片
func (p *PexelsSearcher) Search(ctx context.Context, apiKey, query string, count int) ([]models.Image, error) {
	q := url.Values{}
	q.Set("query", query)
	q.Set("per_page", strconv.Itoa(count))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Authorization", apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, &apperr.ProviderError{Provider: "image-search", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &apperr.ProviderError{Provider: "image-search", StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &apperr.ProviderError{Provider: "image-search", StatusCode: resp.StatusCode, Payload: string(body)}
	}

	var pr pexelsResponse
	if err := json.Unmarshal(body, &pr); err != nil {
		return nil, &apperr.ProviderError{Provider: "image-search", StatusCode: resp.StatusCode, Payload: string(body), Err: err}
	}

	images := make([]models.Image, 0, count)
	for _, ph := range pr.Photos {
		src := ph.Src.Large
		if src == "" {
			src = ph.Src.Original
		}
		if src == "" {
			continue
		}
		images = append(images, models.Image{URL: src, Alt: ph.Alt, Credit: ph.Photographer})
		if len(images) == count {
			break
		}
	}
	return images, nil
}

var paragraphEnd = regexp.MustCompile(`(?i)</p>`)

// Marker 返回第n张图片在正文中的占位标记
func Marker(n int) string {
	return fmt.Sprintf("[[image:%d]]", n)
}

// InsertImageMarkers 在段落之间均匀插入n个图片标记，没有段落时追加到末尾
func InsertImageMarkers(body string, n int) string {
	if n <= 0 {
		return body
	}

	ends := paragraphEnd.FindAllStringIndex(body, -1)
	if len(ends) == 0 {
		var sb strings.Builder
		sb.WriteString(body)
		for i := 0; i < n; i++ {
			sb.WriteString("\n" + Marker(i))
		}
		return sb.String()
	}

	// 每个段落之后要插入的标记
	after := make(map[int][]int)
	for i := 0; i < n; i++ {
		k := (i + 1) * len(ends) / (n + 1)
		if k < 1 {
			k = 1
		}
		after[k-1] = append(after[k-1], i)
	}

	var sb strings.Builder
	last := 0
	for p, loc := range ends {
		sb.WriteString(body[last:loc[1]])
		last = loc[1]
		for _, i := range after[p] {
			sb.WriteString("\n" + Marker(i))
		}
	}
	sb.WriteString(body[last:])
	return sb.String()
}
