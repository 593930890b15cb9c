// internal/models/analysis.go
package models

// AnalysisRequest 分析请求参数
type AnalysisRequest struct {
	ScriptText string `json:"script_text"`
	Topic      string `json:"topic"`
	Style      string `json:"style"`
	FrameCount int    `json:"frame_count"`
}

// SceneDraft 分段服务返回的单个分镜（尚未进入Project）
type SceneDraft struct {
	ID          string `json:"id"`
	SceneNumber int    `json:"scene_number" jsonschema_description:"Positive integer giving the narrative order of the scene."`
	Title       string `json:"title" jsonschema_description:"A short evocative title for the scene."`
	Description string `json:"description" jsonschema_description:"One or two sentences describing the action of the scene."`
	ImagePrompt string `json:"image_prompt" jsonschema_description:"A detailed visual prompt suitable for a text-to-image model, including setting, subjects, lighting and mood."`
}

// AnalysisResult 分段服务的结构化响应
type AnalysisResult struct {
	ProjectTitle string       `json:"project_title" jsonschema_description:"A title for the whole storyboard project."`
	ProjectStyle string       `json:"project_style" jsonschema_description:"The visual style label applied to every scene."`
	Scenes       []SceneDraft `json:"scenes" jsonschema_description:"The ordered list of scenes segmented from the script."`
}
