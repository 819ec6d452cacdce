package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"story-generator/config"
	"story-generator/internal/apperr"
	"story-generator/internal/models"
	"story-generator/internal/orchestrator"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// BatchRunner 运行生成批次
type BatchRunner interface {
	RunBatch(ctx context.Context, opts orchestrator.RunOptions) models.BatchResult
	State() orchestrator.State
	LastRun() *orchestrator.LastRun
}

// SubscriptionReader 查询订阅状态
type SubscriptionReader interface {
	GetStatus(ctx context.Context, domain string) (*models.SubscriptionStatus, error)
}

// Scheduler 管理自动生成间隔
type Scheduler interface {
	Reschedule(days int) error
	Interval() int
	Next() time.Time
}

// PromptDocuments 读写提示文档
type PromptDocuments interface {
	GetPromptDocument(ctx context.Context) (models.PromptDocument, error)
	SavePromptDocument(ctx context.Context, doc models.PromptDocument) error
}

// LockInspector 查看生成锁
type LockInspector interface {
	Inspect(ctx context.Context) (models.GenerationLock, error)
}

// LogReader 读取最近的运行日志
type LogReader interface {
	Recent(limit int) ([]models.LogEntry, error)
}

// Deps 是API服务器的依赖
type Deps struct {
	Runner        BatchRunner
	Subscriptions SubscriptionReader
	Scheduler     Scheduler
	Prompts       PromptDocuments
	Lock          LockInspector
	Logs          LogReader
}

// Server 是API服务器结构
type Server struct {
	config *config.Config
	router *gin.Engine
	deps   Deps
}

// NewServer 创建一个新的API服务器
func NewServer(cfg *config.Config, deps Deps) *Server {
	// 创建Gin路由
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	// 启用CORS
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, X-Admin-Token")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// 创建服务器
	server := &Server{
		config: cfg,
		router: router,
		deps:   deps,
	}

	// 注册路由
	server.registerRoutes()

	return server
}

// registerRoutes 注册API路由
func (s *Server) registerRoutes() {
	// 健康检查
	s.router.GET("/health", s.healthHandler)

	// API v1
	v1 := s.router.Group("/api/v1")
	{
		// 订阅状态
		v1.GET("/subscription", s.getSubscriptionHandler)

		// 运行状态
		v1.GET("/status", s.getStatusHandler)

		// 提示文档
		v1.GET("/prompts", s.getPromptsHandler)
	}

	// 需要管理员令牌
	admin := s.router.Group("/api/v1", s.adminAuth())
	{
		// 立即生成
		admin.POST("/generate", s.generateHandler)

		// 调整自动生成间隔
		admin.PUT("/schedule", s.scheduleHandler)

		// 替换提示文档
		admin.PUT("/prompts", s.putPromptsHandler)

		// 运行日志
		admin.GET("/logs", s.getLogsHandler)
	}
}

// Handler 返回HTTP处理器
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run 启动API服务器
func (s *Server) Run() error {
	return s.router.Run(":" + s.config.Server.Port)
}

// adminAuth 校验管理员令牌
func (s *Server) adminAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		expected := s.config.Server.AdminToken
		if expected == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "未配置管理员令牌"})
			return
		}

		token := c.GetHeader("X-Admin-Token")
		if token == "" {
			token = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "未授权"})
			return
		}
		c.Next()
	}
}

// requestLogger 使用logrus记录请求
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(log.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		}).Debug("请求完成")
	}
}

// healthHandler 健康检查处理程序
func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// generateHandler 手动触发一次批次，等待结果后返回
func (s *Server) generateHandler(c *gin.Context) {
	// 客户端断开不应中断已持锁的批次
	ctx := context.WithoutCancel(c.Request.Context())
	result := s.deps.Runner.RunBatch(ctx, orchestrator.RunOptions{Force: true, Trigger: orchestrator.TriggerManual})

	status := http.StatusOK
	if len(result.Errors) == 1 && result.Errors[0] == apperr.ErrLockContention.Error() && len(result.Successes) == 0 {
		status = http.StatusConflict
	}

	c.JSON(status, gin.H{
		"success":   len(result.Errors) == 0,
		"message":   result.Summary(),
		"successes": result.Successes,
		"errors":    result.Errors,
	})
}

// getSubscriptionHandler 获取订阅状态
func (s *Server) getSubscriptionHandler(c *gin.Context) {
	domain := c.Query("domain")
	if domain == "" {
		domain = s.config.Site.Domain
	}

	status, err := s.deps.Subscriptions.GetStatus(c.Request.Context(), domain)
	if err != nil {
		log.WithError(err).Warn("获取订阅状态失败")
		code := http.StatusInternalServerError
		if errors.Is(err, apperr.ErrServiceUnreachable) {
			code = http.StatusBadGateway
		}
		c.JSON(code, gin.H{
			"error": "获取订阅状态失败",
		})
		return
	}

	c.JSON(http.StatusOK, status)
}

// scheduleHandler 调整自动生成间隔
func (s *Server) scheduleHandler(c *gin.Context) {
	var req struct {
		IntervalDays *int `json:"interval_days" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || *req.IntervalDays < 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "无效的请求参数",
		})
		return
	}

	if err := s.deps.Scheduler.Reschedule(*req.IntervalDays); err != nil {
		log.WithError(err).Error("调整自动生成间隔失败")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "调整间隔失败",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"interval_days": s.deps.Scheduler.Interval(),
		"next_run":      formatTime(s.deps.Scheduler.Next()),
	})
}

// getStatusHandler 获取运行状态
func (s *Server) getStatusHandler(c *gin.Context) {
	lock, err := s.deps.Lock.Inspect(c.Request.Context())
	if err != nil {
		log.WithError(err).Warn("读取生成锁失败")
	}

	c.JSON(http.StatusOK, gin.H{
		"state":         s.deps.Runner.State(),
		"lock":          lock,
		"interval_days": s.deps.Scheduler.Interval(),
		"next_run":      formatTime(s.deps.Scheduler.Next()),
		"last_run":      s.deps.Runner.LastRun(),
	})
}

// getPromptsHandler 获取提示文档
func (s *Server) getPromptsHandler(c *gin.Context) {
	doc, err := s.deps.Prompts.GetPromptDocument(c.Request.Context())
	if err != nil {
		log.WithError(err).Error("读取提示失败")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "读取提示失败",
		})
		return
	}
	if doc.Prompts == nil {
		doc.Prompts = []models.Prompt{}
	}
	c.JSON(http.StatusOK, doc)
}

// putPromptsHandler 替换提示文档
func (s *Server) putPromptsHandler(c *gin.Context) {
	var doc models.PromptDocument
	if err := c.ShouldBindJSON(&doc); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "无效的请求参数",
		})
		return
	}
	if err := validatePrompts(doc.Prompts); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	if err := s.deps.Prompts.SavePromptDocument(c.Request.Context(), doc); err != nil {
		log.WithError(err).Error("保存提示失败")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "保存提示失败",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "提示已保存",
		"count":   len(doc.Prompts),
	})
}

// getLogsHandler 获取最近的运行日志
func (s *Server) getLogsHandler(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		limit = 50
	}

	entries, err := s.deps.Logs.Recent(limit)
	if err != nil {
		log.WithError(err).Error("读取日志失败")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "读取日志失败",
		})
		return
	}
	if entries == nil {
		entries = []models.LogEntry{}
	}
	c.JSON(http.StatusOK, gin.H{
		"logs": entries,
	})
}

// validatePrompts 校验提示ID非空且唯一
func validatePrompts(prompts []models.Prompt) error {
	seen := make(map[string]bool, len(prompts))
	for i, p := range prompts {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			return fmt.Errorf("第 %d 个提示缺少id", i+1)
		}
		if seen[id] {
			return fmt.Errorf("提示id重复: %s", id)
		}
		if strings.TrimSpace(p.Text) == "" {
			return fmt.Errorf("提示 %s 的内容为空", id)
		}
		if p.PhotoCount < 0 || p.Timeout < 0 {
			return fmt.Errorf("提示 %s 的参数无效", id)
		}
		seen[id] = true
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
