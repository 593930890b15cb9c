// internal/imagegen/providers/pollinations/pollinations.go
package pollinations

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/Corphon/StoryFrameAI/internal/imagegen"
)

func init() {
	imagegen.Register("pollinations", func() imagegen.Provider {
		return &Provider{
			baseURL: "https://image.pollinations.ai",
		}
	})
}

// Provider 通过Pollinations.ai生成图像，无需API密钥
// seed作为URL参数直接传递，同一seed+prompt可复现
type Provider struct {
	baseURL string
	model   string
	client  *http.Client
}

func (p *Provider) Initialize(config map[string]string) error {
	p.client = &http.Client{Timeout: 60 * time.Second}

	if model, exists := config["default_model"]; exists && model != "" {
		p.model = model
	} else {
		p.model = "flux"
	}

	if baseURL, exists := config["base_url"]; exists && baseURL != "" {
		p.baseURL = baseURL
	}

	return nil
}

func (p *Provider) GetName() string {
	return "pollinations"
}

func (p *Provider) Generate(ctx context.Context, req imagegen.GenerationRequest) (*imagegen.GenerationResult, error) {
	width, height := dimensionsFor(req.AspectRatio)

	imageURL := fmt.Sprintf(
		"%s/prompt/%s?width=%d&height=%d&nologo=true&model=%s&seed=%d",
		p.baseURL,
		url.PathEscape(req.Prompt),
		width,
		height,
		p.model,
		req.Seed,
	)

	httpReq, err := http.NewRequestWithContext(ctx, "GET", imageURL, nil)
	if err != nil {
		return nil, err
	}

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pollinations API错误(%d)", httpResp.StatusCode)
	}

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, err
	}

	// 过小的响应通常是错误页而不是图像
	if len(data) < 100 {
		return nil, errors.New("pollinations响应过小，可能不是图像")
	}

	return &imagegen.GenerationResult{
		Data:     data,
		MimeType: "image/jpeg",
		UsedSeed: req.Seed,
	}, nil
}

// dimensionsFor 将宽高比映射为具体尺寸，默认16:9
func dimensionsFor(aspectRatio string) (int, int) {
	switch aspectRatio {
	case "1:1":
		return 1024, 1024
	case "9:16":
		return 720, 1280
	default: // 16:9
		return 1280, 720
	}
}
