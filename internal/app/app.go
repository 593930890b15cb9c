// internal/app/app.go
package app

import (
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/Corphon/StoryFrameAI/internal/config"
	"github.com/Corphon/StoryFrameAI/internal/di"
	"github.com/Corphon/StoryFrameAI/internal/services"
	"github.com/Corphon/StoryFrameAI/internal/storage"
)

// InitServices 按依赖顺序初始化所有服务并注册到容器
func InitServices() error {
	container := di.GetContainer()
	cfg := config.GetCurrentConfig()
	if cfg == nil {
		return fmt.Errorf("配置系统未初始化")
	}

	// 1. 基础设施：导出文件存储
	fileStorage, err := storage.NewFileStorage(cfg.ExportDir)
	if err != nil {
		return fmt.Errorf("初始化文件存储失败: %w", err)
	}
	container.Register("storage", fileStorage)

	// 2. 统计服务
	statsService := services.NewStatsService(filepath.Join(cfg.DataDir, "stats"))
	container.Register("stats", statsService)

	// 3. LLM服务（未配置密钥时降级为未就绪）
	llmService, err := services.NewLLMService()
	if err != nil {
		log.Printf("LLM服务初始化异常，使用后备服务: %v", err)
		llmService = services.NewEmptyLLMService()
	}
	container.Register("llm", llmService)

	// 4. 会话注册表
	sessionService := services.NewSessionService()
	sessionService.StartCleanupLoop(30 * time.Minute)
	container.Register("session", sessionService)

	// 5. 业务服务
	container.Register("analyzer", services.NewAnalyzerService(llmService))
	container.Register("style", services.NewStyleService(llmService))
	container.Register("ingest", services.NewIngestService())
	container.Register("progress", services.NewProgressService())
	container.Register("image", services.NewImageService(sessionService, fileStorage, statsService))

	return nil
}
