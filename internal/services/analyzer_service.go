// internal/services/analyzer_service.go
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/Corphon/StoryFrameAI/internal/errors"
	"github.com/Corphon/StoryFrameAI/internal/llm"
	"github.com/Corphon/StoryFrameAI/internal/models"
	"github.com/google/uuid"
	"github.com/invopop/jsonschema"
)

const (
	// MaxScriptChars 发送给分段服务前的剧本长度上限，超出部分静默丢弃
	// 截断点不做句子或场景边界对齐
	MaxScriptChars = 50000

	// MinFrameCount / MaxFrameCount 分镜数量的钳制范围
	MinFrameCount = 1
	MaxFrameCount = 500

	// DefaultTopic / DefaultStyle 输入为空时的固定回退值
	DefaultTopic = "Untitled"
	DefaultStyle = "Cinematic"
)

// GenerateSchema 为结构化输出生成JSON Schema
func GenerateSchema[T any]() interface{} {
	reflector := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

// analysisResultSchema 缓存的分段响应Schema
var analysisResultSchema = GenerateSchema[models.AnalysisResult]()

// AnalyzerService 负责把剧本文本交给LLM分段并转换为Project
type AnalyzerService struct {
	LLM *LLMService
}

// NewAnalyzerService 创建分析服务
func NewAnalyzerService(llmService *LLMService) *AnalyzerService {
	return &AnalyzerService{
		LLM: llmService,
	}
}

// ClampFrameCount 将分镜数量钳制到[1, 500]
func ClampFrameCount(n int) int {
	if n < MinFrameCount {
		return MinFrameCount
	}
	if n > MaxFrameCount {
		return MaxFrameCount
	}
	return n
}

// TruncateScript 按字符截断剧本文本
func TruncateScript(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}

// Analyze 执行一次完整的剧本分析，返回Project和本次消耗的token数
// 任何失败都不提交部分Project；返回的错误已按错误分类包装
func (s *AnalyzerService) Analyze(ctx context.Context, req models.AnalysisRequest) (*models.Project, int, error) {
	scriptText := strings.TrimSpace(req.ScriptText)
	if scriptText == "" {
		return nil, 0, apperrors.NewValidationError("剧本文本不能为空", nil)
	}

	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		topic = DefaultTopic
	}

	style := strings.TrimSpace(req.Style)
	if style == "" {
		style = DefaultStyle
	}

	frameCount := ClampFrameCount(req.FrameCount)
	scriptText = TruncateScript(scriptText, MaxScriptChars)

	prompt := buildAnalysisPrompt(scriptText, topic, style, frameCount)

	resp, err := s.LLM.CompleteText(ctx, llm.CompletionRequest{
		Prompt:         prompt,
		SystemPrompt:   analysisSystemPrompt,
		Temperature:    0.7,
		ResponseSchema: analysisResultSchema,
		SchemaName:     "storyboard_analysis",
	})
	if err != nil {
		return nil, 0, apperrors.NewTransportError("剧本分段服务请求失败", err)
	}

	result, err := parseAnalysisResponse(resp.Text)
	if err != nil {
		return nil, resp.TokensUsed, err
	}

	return buildProject(result, style), resp.TokensUsed, nil
}

// analysisSystemPrompt 分段任务的系统提示
const analysisSystemPrompt = `You are a storyboard director. You segment screenplays into visual scenes and write image-generation prompts. Always respond with valid JSON only.`

// buildAnalysisPrompt 构建分段请求的提示词
func buildAnalysisPrompt(scriptText, topic, style string, frameCount int) string {
	return fmt.Sprintf(`Segment the following screenplay into exactly %d narrative scenes for a storyboard about "%s".

Apply the visual style "%s" consistently across every scene.

For each scene provide:
- scene_number: its narrative order, starting at 1
- title: a short evocative title
- description: one or two sentences describing the action
- image_prompt: a detailed text-to-image prompt covering setting, subjects, lighting and mood, in the "%s" style

Also provide a project_title for the whole storyboard and echo the style as project_style.

SCREENPLAY:
%s`, frameCount, topic, style, style, scriptText)
}

// parseAnalysisResponse 解析并校验分段服务的响应
// 空响应或无法解析的响应是硬失败
func parseAnalysisResponse(text string) (*models.AnalysisResult, error) {
	cleaned := stripCodeFences(text)
	if cleaned == "" {
		return nil, apperrors.NewUpstreamParseError("分段服务返回空响应", nil)
	}

	var result models.AnalysisResult
	if err := json.Unmarshal([]byte(cleaned), &result); err != nil {
		return nil, apperrors.NewUpstreamParseError("分段服务响应无法解析", err)
	}

	if len(result.Scenes) == 0 {
		return nil, apperrors.NewUpstreamParseError("分段服务未返回任何分镜", nil)
	}

	return &result, nil
}

// buildProject 将分段结果转换为Project
// 分镜数量按服务返回值接受，不与请求数量做对账
func buildProject(result *models.AnalysisResult, fallbackStyle string) *models.Project {
	title := strings.TrimSpace(result.ProjectTitle)
	if title == "" {
		title = DefaultTopic
	}

	style := strings.TrimSpace(result.ProjectStyle)
	if style == "" {
		style = fallbackStyle
	}

	scenes := make([]models.Scene, 0, len(result.Scenes))
	seenIDs := make(map[string]bool, len(result.Scenes))
	for i, draft := range result.Scenes {
		// ID在Project内必须唯一，缺失或重复时重新生成
		id := strings.TrimSpace(draft.ID)
		if id == "" || seenIDs[id] {
			id = uuid.NewString()
		}
		seenIDs[id] = true

		sceneNumber := draft.SceneNumber
		if sceneNumber <= 0 {
			sceneNumber = i + 1
		}

		// ImageURL在分析后始终为空，首次渲染成功时才写入
		scenes = append(scenes, models.Scene{
			ID:          id,
			SceneNumber: sceneNumber,
			Title:       strings.TrimSpace(draft.Title),
			Description: strings.TrimSpace(draft.Description),
			ImagePrompt: strings.TrimSpace(draft.ImagePrompt),
		})
	}

	return &models.Project{
		ID:        uuid.NewString(),
		Title:     title,
		Style:     style,
		Scenes:    scenes,
		CreatedAt: time.Now(),
	}
}

// stripCodeFences 去掉模型偶尔包裹的markdown代码块
func stripCodeFences(text string) string {
	cleaned := strings.TrimSpace(text)
	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimPrefix(cleaned, "```")
		cleaned = strings.TrimSuffix(cleaned, "```")
		cleaned = strings.TrimSpace(cleaned)
	}
	return cleaned
}
