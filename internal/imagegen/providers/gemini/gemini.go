// internal/imagegen/providers/gemini/gemini.go
package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Corphon/StoryFrameAI/internal/imagegen"
)

func init() {
	imagegen.Register("gemini", func() imagegen.Provider {
		return &Provider{
			baseURL: "https://generativelanguage.googleapis.com/v1beta",
		}
	})
}

type Provider struct {
	apiKey       string
	baseURL      string
	client       *http.Client
	defaultModel string
}

func (p *Provider) Initialize(config map[string]string) error {
	apiKey, exists := config["api_key"]
	if !exists || apiKey == "" {
		return errors.New("gemini_api密钥未提供")
	}

	p.apiKey = apiKey
	p.client = &http.Client{}

	if model, exists := config["default_model"]; exists && model != "" {
		p.defaultModel = model
	} else {
		p.defaultModel = "gemini-2.0-flash-preview-image-generation"
	}

	if baseURL, exists := config["base_url"]; exists && baseURL != "" {
		p.baseURL = baseURL
	}

	return nil
}

func (p *Provider) GetName() string {
	return "gemini image"
}

// Generate 调用Gemini generateContent生成单张图像
// 成功响应携带inlineData（base64图像载荷）；只返回文本时视为服务拒绝
func (p *Provider) Generate(ctx context.Context, req imagegen.GenerationRequest) (*imagegen.GenerationResult, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	generationConfig := map[string]interface{}{
		"responseModalities": []string{"TEXT", "IMAGE"},
		"seed":               req.Seed,
	}

	if req.AspectRatio != "" {
		generationConfig["imageConfig"] = map[string]interface{}{
			"aspectRatio": req.AspectRatio,
		}
	}

	requestBody := map[string]interface{}{
		"contents": []map[string]interface{}{
			{"role": "user", "parts": []map[string]string{{"text": req.Prompt}}},
		},
		"generationConfig": generationConfig,
	}

	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return nil, err
	}

	apiURL := fmt.Sprintf("%s/models/%s:generateContent?key=%s", p.baseURL, model, p.apiKey)

	httpReq, err := http.NewRequestWithContext(
		ctx,
		"POST",
		apiURL,
		bytes.NewBuffer(jsonData),
	)
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		var errorResp map[string]interface{}
		body, _ := io.ReadAll(httpResp.Body)
		if err := json.Unmarshal(body, &errorResp); err == nil {
			if errorObj, ok := errorResp["error"].(map[string]interface{}); ok {
				return nil, fmt.Errorf("gemini image API错误(%d): %v",
					httpResp.StatusCode, errorObj["message"])
			}
		}
		return nil, fmt.Errorf("gemini image API错误(%d): %s", httpResp.StatusCode, string(body))
	}

	var response struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text       string `json:"text,omitempty"`
					InlineData *struct {
						MimeType string `json:"mimeType"`
						Data     string `json:"data"`
					} `json:"inlineData,omitempty"`
				} `json:"parts"`
			} `json:"content"`
			FinishReason string `json:"finishReason"`
		} `json:"candidates"`
	}

	if err := json.NewDecoder(httpResp.Body).Decode(&response); err != nil {
		return nil, err
	}

	if len(response.Candidates) == 0 {
		return nil, errors.New("gemini image未返回任何结果")
	}

	// 优先取内联图像载荷；只有文本时保留拒绝说明
	var refusalText strings.Builder
	for _, part := range response.Candidates[0].Content.Parts {
		if part.InlineData != nil && part.InlineData.Data != "" {
			data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
			if err != nil {
				return nil, fmt.Errorf("解码图像载荷失败: %w", err)
			}

			mimeType := part.InlineData.MimeType
			if mimeType == "" {
				mimeType = "image/png"
			}

			return &imagegen.GenerationResult{
				Data:     data,
				MimeType: mimeType,
				UsedSeed: req.Seed,
			}, nil
		}
		if part.Text != "" {
			refusalText.WriteString(part.Text)
		}
	}

	if refusalText.Len() > 0 {
		return nil, &imagegen.RefusalError{Text: strings.TrimSpace(refusalText.String())}
	}

	return nil, errors.New("gemini image响应中没有图像载荷")
}
