// internal/services/image_service.go
package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/Corphon/StoryFrameAI/internal/config"
	apperrors "github.com/Corphon/StoryFrameAI/internal/errors"
	"github.com/Corphon/StoryFrameAI/internal/imagegen"
	"github.com/Corphon/StoryFrameAI/internal/models"
	"github.com/Corphon/StoryFrameAI/internal/storage"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	// SeedRange 未指定seed时的随机取值上界（不含）
	SeedRange = 1_000_000

	// FrameAspectRatio 所有帧统一的宽高比
	FrameAspectRatio = "16:9"

	// renderAllConcurrency 批量渲染的并发上限
	renderAllConcurrency = 3
)

// ImageService 负责分镜图像的生成与落盘
type ImageService struct {
	providerMutex sync.RWMutex
	provider      imagegen.Provider
	providerName  string

	limiter  *rate.Limiter
	Sessions *SessionService
	Storage  *storage.FileStorage
	Stats    *StatsService
}

// NewImageService 从配置创建图像服务
// 提供者初始化失败时返回未就绪的服务，渲染调用会报错
func NewImageService(sessions *SessionService, fileStorage *storage.FileStorage, stats *StatsService) *ImageService {
	service := &ImageService{
		limiter:  rate.NewLimiter(rate.Every(time.Second), 2),
		Sessions: sessions,
		Storage:  fileStorage,
		Stats:    stats,
	}

	cfg := config.GetCurrentConfig()
	if cfg == nil || cfg.ImageProvider == "" {
		return service
	}

	provider, err := imagegen.GetProvider(cfg.ImageProvider, cfg.ImageConfig)
	if err != nil {
		log.Printf("图像提供者初始化失败: %v", err)
		return service
	}

	service.provider = provider
	service.providerName = cfg.ImageProvider
	return service
}

// NewImageServiceWithProvider 用指定提供者创建服务，测试用
func NewImageServiceWithProvider(provider imagegen.Provider, sessions *SessionService, fileStorage *storage.FileStorage, stats *StatsService) *ImageService {
	return &ImageService{
		provider:     provider,
		providerName: provider.GetName(),
		limiter:      rate.NewLimiter(rate.Inf, 1),
		Sessions:     sessions,
		Storage:      fileStorage,
		Stats:        stats,
	}
}

// IsReady 返回提供者是否可用
func (s *ImageService) IsReady() bool {
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()

	return s.provider != nil
}

// GetProviderName 返回当前提供者名称
func (s *ImageService) GetProviderName() string {
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()

	return s.providerName
}

// UpdateProvider 切换到新的图像提供者配置
func (s *ImageService) UpdateProvider(name string, providerConfig map[string]string) error {
	provider, err := imagegen.GetProvider(name, providerConfig)
	if err != nil {
		return err
	}

	s.providerMutex.Lock()
	defer s.providerMutex.Unlock()

	s.provider = provider
	s.providerName = name
	return nil
}

// ResolveSeed 确定本次渲染使用的seed
// 调用方给定时原样使用，否则在[0, SeedRange)内均匀取值
func ResolveSeed(seed *int64) int64 {
	if seed != nil {
		return *seed
	}
	return rand.Int63n(SeedRange)
}

// Render 为指定分镜渲染一帧图像
// 失败路径不改动任何会话状态；成功时图像覆盖、历史追加、计数器自增在同一次合并中完成
func (s *ImageService) Render(ctx context.Context, sessionID, sceneID string, seed *int64) (models.GeneratedImageRecord, error) {
	s.providerMutex.RLock()
	provider := s.provider
	s.providerMutex.RUnlock()

	if provider == nil {
		return models.GeneratedImageRecord{}, apperrors.NewValidationError("图像提供者未配置", nil)
	}

	scene, style, err := s.Sessions.SceneForRender(sessionID, sceneID)
	if err != nil {
		return models.GeneratedImageRecord{}, err
	}

	if scene.ImagePrompt == "" {
		return models.GeneratedImageRecord{}, apperrors.NewValidationError("分镜缺少图像提示词", nil)
	}

	usedSeed := ResolveSeed(seed)

	if err := s.limiter.Wait(ctx); err != nil {
		return models.GeneratedImageRecord{}, apperrors.NewTransportError("等待限流时请求被取消", err)
	}

	result, err := provider.Generate(ctx, imagegen.GenerationRequest{
		Prompt:      scene.ImagePrompt,
		Seed:        usedSeed,
		AspectRatio: FrameAspectRatio,
	})
	if err != nil {
		var refusal *imagegen.RefusalError
		if errors.As(err, &refusal) {
			return models.GeneratedImageRecord{}, apperrors.NewUpstreamRefusalError(refusal.Text, err)
		}
		return models.GeneratedImageRecord{}, apperrors.NewTransportError("图像生成请求失败", err)
	}

	imageURL := fmt.Sprintf("data:%s;base64,%s",
		result.MimeType, base64.StdEncoding.EncodeToString(result.Data))

	record := models.GeneratedImageRecord{
		Timestamp:   time.Now(),
		ImageURL:    imageURL,
		Prompt:      scene.ImagePrompt,
		SceneTitle:  scene.Title,
		SceneNumber: scene.SceneNumber,
		Style:       style,
	}

	if err := s.Sessions.ApplyRender(sessionID, sceneID, record); err != nil {
		return models.GeneratedImageRecord{}, err
	}

	// 落盘失败不回滚内存状态，导出时回退到内存中的图像数据
	filename := storage.FrameFilename(scene.SceneNumber, record.Timestamp, result.MimeType)
	if _, err := s.Storage.SaveFrame(sessionID, filename, result.Data); err != nil {
		log.Printf("帧图像落盘失败 %s: %v", filename, err)
	}

	if s.Stats != nil {
		s.Stats.RecordImageGenerated()
	}

	return record, nil
}

// SceneRenderError 批量渲染中单个分镜的失败
type SceneRenderError struct {
	SceneID string `json:"scene_id"`
	Message string `json:"message"`
}

// RenderAll 为当前项目的全部分镜渲染图像
// 各分镜相互独立：成功的立即生效，失败的只出现在错误列表里
func (s *ImageService) RenderAll(ctx context.Context, sessionID string, seed *int64, onProgress func(done, total int)) ([]models.GeneratedImageRecord, []SceneRenderError, error) {
	sceneIDs, err := s.Sessions.SceneIDs(sessionID)
	if err != nil {
		return nil, nil, err
	}

	var (
		mutex   sync.Mutex
		records []models.GeneratedImageRecord
		failed  []SceneRenderError
		done    int
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(renderAllConcurrency)

	for _, sceneID := range sceneIDs {
		sceneID := sceneID
		group.Go(func() error {
			record, renderErr := s.Render(groupCtx, sessionID, sceneID, seed)

			mutex.Lock()
			defer mutex.Unlock()

			if renderErr != nil {
				failed = append(failed, SceneRenderError{
					SceneID: sceneID,
					Message: renderErr.Error(),
				})
			} else {
				records = append(records, record)
			}

			done++
			if onProgress != nil {
				onProgress(done, len(sceneIDs))
			}

			// 单个分镜失败不中断其余渲染
			return nil
		})
	}

	// goroutine均返回nil，Wait只在上下文取消时可能报错
	if err := group.Wait(); err != nil {
		return records, failed, err
	}

	return records, failed, nil
}
