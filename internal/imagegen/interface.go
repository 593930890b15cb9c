// internal/imagegen/interface.go
package imagegen

import (
	"context"
	"errors"
	"fmt"
)

// 错误定义
var ErrUnknownProvider = errors.New("未知的图像提供者")

// RefusalError 表示图像服务拒绝生成（内容安全等），保留服务返回的拒绝文本
type RefusalError struct {
	Text string
}

func (e *RefusalError) Error() string {
	return fmt.Sprintf("图像服务拒绝生成: %s", e.Text)
}

// GenerationRequest 图像生成请求
type GenerationRequest struct {
	Prompt      string `json:"prompt"`
	Seed        int64  `json:"seed"`         // 相同seed+相同prompt期望产生视觉一致的结果
	AspectRatio string `json:"aspect_ratio"` // 例如 "16:9"
	Model       string `json:"model,omitempty"`
}

// GenerationResult 生成的图像数据及元信息
type GenerationResult struct {
	Data     []byte `json:"-"`
	MimeType string `json:"mime_type"`
	UsedSeed int64  `json:"used_seed"`
}

// Provider 定义所有图像生成提供者必须实现的接口
type Provider interface {
	// 初始化提供者，传入配置
	Initialize(config map[string]string) error

	// 获取提供者名称
	GetName() string

	// 生成图像；服务拒绝时返回*RefusalError
	Generate(ctx context.Context, req GenerationRequest) (*GenerationResult, error)
}

// 注册表和工厂函数类型
type ProviderFactory func() Provider

var providers = make(map[string]ProviderFactory)

// Register 注册提供者工厂
func Register(name string, factory ProviderFactory) {
	providers[name] = factory
}

// GetProvider 创建指定名称的提供者实例
func GetProvider(name string, config map[string]string) (Provider, error) {
	factory, exists := providers[name]
	if !exists {
		return nil, ErrUnknownProvider
	}

	provider := factory()
	err := provider.Initialize(config)
	return provider, err
}

// ListProviders 返回所有已注册的提供者名称
func ListProviders() []string {
	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	return names
}
