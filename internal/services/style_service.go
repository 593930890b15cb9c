// internal/services/style_service.go
package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/Corphon/StoryFrameAI/internal/llm"
	gocache "github.com/patrickmn/go-cache"
)

// StyleService 根据主题建议视觉风格
// 这是尽力而为的增强功能：失败只记录日志，从不阻塞主流程
type StyleService struct {
	LLM   *LLMService
	cache *gocache.Cache
}

// NewStyleService 创建风格建议服务
func NewStyleService(llmService *LLMService) *StyleService {
	return &StyleService{
		LLM:   llmService,
		cache: gocache.New(15*time.Minute, 5*time.Minute),
	}
}

// Suggest 为主题建议一个视觉风格
// 服务返回空文本或出错时回退到默认风格；建议结果按主题缓存
func (s *StyleService) Suggest(ctx context.Context, topic string) string {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return DefaultStyle
	}

	cacheKey := strings.ToLower(topic)
	if cached, found := s.cache.Get(cacheKey); found {
		if style, ok := cached.(string); ok {
			return style
		}
	}

	resp, err := s.LLM.CompleteText(ctx, llm.CompletionRequest{
		Prompt: fmt.Sprintf(
			`Suggest one concise visual style for illustrating the topic "%s" (for example "Film noir", "Watercolor", "Soviet propaganda poster"). Answer with the style name only, no explanation.`,
			topic),
		Temperature: 0.9,
		MaxTokens:   60,
	})
	if err != nil {
		// 建议失败不上报给用户
		log.Printf("风格建议失败（已忽略）: %v", err)
		return DefaultStyle
	}

	style := strings.TrimSpace(resp.Text)
	style = strings.Trim(style, `"`)
	if style == "" {
		return DefaultStyle
	}

	s.cache.Set(cacheKey, style, gocache.DefaultExpiration)
	return style
}
