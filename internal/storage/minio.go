package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"story-generator/config"
	"story-generator/internal/models"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	log "github.com/sirupsen/logrus"
)

// 单张图片的最大下载体积
const maxImageBytes = 10 << 20

// MinioClient 是MinIO存储客户端的封装，用于保存文章配图
type MinioClient struct {
	client     *minio.Client
	bucketName string
	httpClient *http.Client
}

// NewMinioClient 创建一个新的MinIO客户端
func NewMinioClient(cfg *config.MinIOConfig) (*MinioClient, error) {
	// 解析endpoint
	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("解析MinIO endpoint失败: %w", err)
	}

	// 创建MinIO客户端
	secure := u.Scheme == "https"
	endpoint := u.Host

	// 如果endpoint为空，使用localhost:9000
	if endpoint == "" {
		endpoint = "localhost:9000"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, fmt.Errorf("创建MinIO客户端失败: %w", err)
	}

	// 确保bucket存在
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("检查bucket是否存在失败: %w", err)
	}

	if !exists {
		log.Infof("Bucket %s 不存在，正在创建...", cfg.BucketName)
		err = client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{})
		if err != nil {
			return nil, fmt.Errorf("创建bucket失败: %w", err)
		}
		log.Infof("Bucket %s 创建成功", cfg.BucketName)
	}

	return &MinioClient{
		client:     client,
		bucketName: cfg.BucketName,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// AttachMedia 下载候选图片并保存为条目的附件，返回可访问的URL
func (c *MinioClient) AttachMedia(ctx context.Context, entryID string, index int, img models.Image) (string, error) {
	data, contentType, err := downloadImage(ctx, c.httpClient, img.URL, maxImageBytes)
	if err != nil {
		return "", err
	}
	objectName := fmt.Sprintf("media/%s/%d%s", entryID, index, imageExt(img.URL, contentType))

	return c.UploadFile(ctx, objectName, data, contentType)
}

// downloadImage 下载图片，超过limit字节的图片直接拒绝
func downloadImage(ctx context.Context, httpClient *http.Client, rawURL string, limit int64) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("创建请求失败: %w", err)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("下载图片失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("下载图片失败: %s", resp.Status)
	}

	// 多读一个字节用于判断是否超限
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, "", fmt.Errorf("读取图片失败: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, "", fmt.Errorf("图片超过大小限制 %d 字节", limit)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return data, contentType, nil
}

// UploadFile 上传文件到MinIO
func (c *MinioClient) UploadFile(ctx context.Context, objectName string, data []byte, contentType string) (string, error) {
	// 创建reader
	reader := bytes.NewReader(data)

	// 上传文件
	info, err := c.client.PutObject(ctx, c.bucketName, objectName, reader, int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("上传文件失败: %w", err)
	}

	log.Debugf("文件 %s 上传成功，大小: %d", objectName, info.Size)

	// 生成预签名URL
	presignedURL, err := c.GetPresignedURL(ctx, objectName, 7*24*time.Hour) // 7天有效期
	if err != nil {
		log.Warnf("生成预签名URL失败: %v", err)
		// 返回相对路径
		return fmt.Sprintf("/%s/%s", c.bucketName, objectName), nil
	}

	return presignedURL, nil
}

// GetPresignedURL 生成预签名URL
func (c *MinioClient) GetPresignedURL(ctx context.Context, objectName string, expiry time.Duration) (string, error) {
	presignedURL, err := c.client.PresignedGetObject(ctx, c.bucketName, objectName, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("生成预签名URL失败: %w", err)
	}

	return presignedURL.String(), nil
}

// imageExt 优先取URL中的扩展名，其次按Content-Type推断
func imageExt(rawURL, contentType string) string {
	if u, err := url.Parse(rawURL); err == nil {
		ext := strings.ToLower(path.Ext(u.Path))
		switch ext {
		case ".jpg", ".jpeg", ".png", ".gif", ".webp":
			return ext
		}
	}
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".jpg"
}
