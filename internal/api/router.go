// internal/api/router.go
package api

import (
	"fmt"
	"time"

	"github.com/Corphon/StoryFrameAI/internal/config"
	"github.com/Corphon/StoryFrameAI/internal/di"
	"github.com/Corphon/StoryFrameAI/internal/services"
	"github.com/gin-gonic/gin"
)

// SetupRouter 配置HTTP路由
func SetupRouter() (*gin.Engine, error) {
	cfg := config.GetCurrentConfig()

	// 获取依赖注入容器
	container := di.GetContainer()

	// 只从容器获取服务，不再创建新实例
	sessionService, ok := container.Get("session").(*services.SessionService)
	if !ok {
		return nil, fmt.Errorf("会话服务未正确初始化")
	}

	analyzerService, ok := container.Get("analyzer").(*services.AnalyzerService)
	if !ok {
		return nil, fmt.Errorf("分析服务未正确初始化")
	}

	styleService, ok := container.Get("style").(*services.StyleService)
	if !ok {
		return nil, fmt.Errorf("风格建议服务未正确初始化")
	}

	imageService, ok := container.Get("image").(*services.ImageService)
	if !ok {
		return nil, fmt.Errorf("图像服务未正确初始化")
	}

	ingestService, ok := container.Get("ingest").(*services.IngestService)
	if !ok {
		return nil, fmt.Errorf("文件提取服务未正确初始化")
	}

	progressService, ok := container.Get("progress").(*services.ProgressService)
	if !ok {
		return nil, fmt.Errorf("进度服务未正确初始化")
	}

	statsService, ok := container.Get("stats").(*services.StatsService)
	if !ok {
		return nil, fmt.Errorf("统计服务未正确初始化")
	}

	llmService, ok := container.Get("llm").(*services.LLMService)
	if !ok {
		return nil, fmt.Errorf("LLM服务未正确初始化")
	}

	handler := NewHandler(
		sessionService,
		analyzerService,
		styleService,
		imageService,
		ingestService,
		progressService,
		statsService,
		llmService,
	)

	if !cfg.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()

	r.Use(corsMiddleware())
	r.Use(requestIDMiddleware())

	// 渲染接口按IP限流，其余接口不限
	renderLimiter := NewRateLimiter()

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/health", handler.Health)
		apiGroup.GET("/llm/status", handler.LLMStatus)
		apiGroup.GET("/stats", handler.GetStats)

		apiGroup.POST("/upload", handler.UploadScript)
		apiGroup.POST("/style/suggest", handler.SuggestStyle)
		apiGroup.GET("/progress/:taskID", handler.GetProgress)

		sessions := apiGroup.Group("/sessions")
		{
			sessions.POST("", handler.CreateSession)
			sessions.GET("/:sid", handler.GetSession)
			sessions.POST("/:sid/reset", handler.ResetSession)
			sessions.POST("/:sid/analyze", handler.AnalyzeScript)

			rendering := sessions.Group("")
			rendering.Use(rateLimitMiddleware(renderLimiter, 30, time.Minute))
			{
				rendering.POST("/:sid/scenes/:id/render", handler.RenderScene)
				rendering.POST("/:sid/render-all", handler.RenderAll)
			}

			sessions.GET("/:sid/history", handler.GetHistory)
			sessions.DELETE("/:sid/history", handler.ClearHistory)
			sessions.GET("/:sid/history/:ts/export", handler.ExportFrame)
		}
	}

	r.GET("/ws/progress/:taskID", handler.ProgressWebSocket)

	return r, nil
}
