package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

func init() {
	// 加载.env文件
	if err := godotenv.Load(); err != nil {
		log.Printf("警告: 无法加载.env文件: %v", err)
	}
}

// Config 应用配置
type Config struct {
	Server      ServerConfig
	Site        SiteConfig
	Managed     ManagedConfig
	OpenAI      OpenAIConfig
	ImageSearch ImageSearchConfig
	MinIO       MinIOConfig
	Storage     StorageConfig
	Redis       RedisConfig
	Generation  GenerationConfig
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port       string
	Env        string
	AdminToken string
	LogLevel   string
}

// SiteConfig 站点配置，这些值可被设置存储中的选项覆盖
type SiteConfig struct {
	Domain           string
	AuthorID         string
	IntervalDays     int
	LogRetentionDays int
	PromptsFile      string
	AutoPublish      bool
}

// ManagedConfig 托管生成服务配置
type ManagedConfig struct {
	BaseURL string
	Timeout time.Duration
}

// OpenAIConfig OpenAI/Deepseek配置
type OpenAIConfig struct {
	BaseURL   string
	APIKey    string
	Model     string
	MaxTokens int
}

// ImageSearchConfig 图片搜索配置
type ImageSearchConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// MinIOConfig MinIO存储配置
type MinIOConfig struct {
	Endpoint        string
	BucketName      string
	AccessKeyID     string
	SecretAccessKey string
}

// StorageConfig 本地存储配置
type StorageConfig struct {
	Path string
}

// RedisConfig Redis配置，URL为空时使用本地锁
type RedisConfig struct {
	URL     string
	LockKey string
}

// GenerationConfig 生成批次相关配置
type GenerationConfig struct {
	LockTTL         time.Duration
	DefaultTimeout  time.Duration
	DedupWindowDays int
	DedupMaxItems   int
	DedupFeedURL    string
}

// LoadConfig 从环境变量加载配置
func LoadConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:       getEnvOrDefault("APP_PORT", "3001"),
			Env:        getEnvOrDefault("WORKER_ENV", "production"),
			AdminToken: getEnvOrDefault("ADMIN_TOKEN", ""),
			LogLevel:   getEnvOrDefault("LOG_LEVEL", "info"),
		},
		Site: SiteConfig{
			Domain:           getEnvOrDefault("SITE_DOMAIN", "localhost"),
			AuthorID:         getEnvOrDefault("AUTHOR_ID", "1"),
			IntervalDays:     getEnvIntOrDefault("GENERATION_INTERVAL_DAYS", 1),
			LogRetentionDays: getEnvIntOrDefault("LOG_RETENTION_DAYS", 30),
			PromptsFile:      getEnvOrDefault("PROMPTS_FILE", ""),
			AutoPublish:      getEnvOrDefault("AUTO_PUBLISH", "false") == "true",
		},
		Managed: ManagedConfig{
			BaseURL: getEnvOrDefault("MANAGED_API_URL", "https://api.storygen.io/v1"),
			Timeout: getEnvDurationOrDefault("MANAGED_STATUS_TIMEOUT", 15*time.Second),
		},
		OpenAI: OpenAIConfig{
			BaseURL:   getEnvOrDefault("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			APIKey:    getEnvOrDefault("OPENAI_API_KEY", ""),
			Model:     getEnvOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
			MaxTokens: getEnvIntOrDefault("OPENAI_MAX_TOKENS", 4096),
		},
		ImageSearch: ImageSearchConfig{
			URL:     getEnvOrDefault("IMAGE_SEARCH_URL", "https://api.pexels.com/v1/search"),
			APIKey:  getEnvOrDefault("IMAGE_SEARCH_KEY", ""),
			Timeout: getEnvDurationOrDefault("IMAGE_SEARCH_TIMEOUT", 20*time.Second),
		},
		MinIO: MinIOConfig{
			Endpoint:        getEnvOrDefault("MINIO_ENDPOINT", "http://localhost:9000"),
			BucketName:      getEnvOrDefault("MINIO_BUCKET_NAME", "story-media"),
			AccessKeyID:     getEnvOrDefault("MINIO_ACCESS_KEY", "minioadmin"),
			SecretAccessKey: getEnvOrDefault("MINIO_SECRET_KEY", "minioadmin"),
		},
		Storage: StorageConfig{
			Path: getEnvOrDefault("DB_PATH", "story-generator.db"),
		},
		Redis: RedisConfig{
			URL:     getEnvOrDefault("REDIS_URL", ""),
			LockKey: getEnvOrDefault("REDIS_LOCK_KEY", "story-generator:generation-lock"),
		},
		Generation: GenerationConfig{
			LockTTL:         getEnvDurationOrDefault("LOCK_TTL", 10*time.Minute),
			DefaultTimeout:  getEnvDurationOrDefault("GENERATION_TIMEOUT", 2*time.Minute),
			DedupWindowDays: getEnvIntOrDefault("DEDUP_WINDOW_DAYS", 30),
			DedupMaxItems:   getEnvIntOrDefault("DEDUP_MAX_ITEMS", 15),
			DedupFeedURL:    getEnvOrDefault("DEDUP_FEED_URL", ""),
		},
	}
}

// getEnvOrDefault 获取环境变量或默认值
func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvIntOrDefault 获取环境变量(整数)或默认值
func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intValue
}

// getEnvDurationOrDefault 获取环境变量(时长，如 10m)或默认值
func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}
