// internal/services/style_service_test.go
package services

import (
	"context"
	"errors"
	"testing"

	"github.com/Corphon/StoryFrameAI/internal/llm"
	"github.com/stretchr/testify/assert"
)

func TestStyleSuggest_EmptyTopicFallsBack(t *testing.T) {
	provider := &stubLLMProvider{
		response: &llm.CompletionResponse{Text: "Film noir"},
	}
	service := NewStyleService(NewLLMServiceWithProvider(provider))

	assert.Equal(t, DefaultStyle, service.Suggest(context.Background(), ""))
	assert.Equal(t, DefaultStyle, service.Suggest(context.Background(), "   "))

	// 空主题不应发出请求
	assert.Empty(t, provider.lastReq.Prompt)
}

func TestStyleSuggest_ReturnsSuggestion(t *testing.T) {
	provider := &stubLLMProvider{
		response: &llm.CompletionResponse{Text: "  \"Film noir\"  "},
	}
	service := NewStyleService(NewLLMServiceWithProvider(provider))

	// 去掉包裹的空白和引号
	assert.Equal(t, "Film noir", service.Suggest(context.Background(), "detective story"))
}

func TestStyleSuggest_FailureIsSwallowed(t *testing.T) {
	provider := &stubLLMProvider{
		err: errors.New("service unavailable"),
	}
	service := NewStyleService(NewLLMServiceWithProvider(provider))

	// 失败不上抛，回退到默认风格
	assert.Equal(t, DefaultStyle, service.Suggest(context.Background(), "space opera"))
}

func TestStyleSuggest_EmptyResponseFallsBack(t *testing.T) {
	provider := &stubLLMProvider{
		response: &llm.CompletionResponse{Text: "  "},
	}
	service := NewStyleService(NewLLMServiceWithProvider(provider))

	assert.Equal(t, DefaultStyle, service.Suggest(context.Background(), "western"))
}

func TestStyleSuggest_CachedPerTopic(t *testing.T) {
	provider := &stubLLMProvider{
		response: &llm.CompletionResponse{Text: "Watercolor"},
	}
	service := NewStyleService(NewLLMServiceWithProvider(provider))

	first := service.Suggest(context.Background(), "Garden")
	assert.Equal(t, "Watercolor", first)

	// 第二次命中缓存，即使提供者开始报错
	provider.err = errors.New("down")
	second := service.Suggest(context.Background(), "garden")
	assert.Equal(t, "Watercolor", second)
}
