// internal/api/error_codes.go
package api

// API错误代码常量
const (
	// 通用错误
	ErrorBadRequest    = "BAD_REQUEST"
	ErrorNotFound      = "NOT_FOUND"
	ErrorInternalError = "INTERNAL_ERROR"

	// 会话相关错误
	ErrorSessionNotFound = "SESSION_NOT_FOUND"

	// 分镜与分析相关错误
	ErrorSceneNotFound    = "SCENE_NOT_FOUND"
	ErrorAnalysisFailed   = "ANALYSIS_FAILED"
	ErrorAnalysisRejected = "ANALYSIS_REJECTED"
	ErrorScriptEmpty      = "SCRIPT_EMPTY"

	// 图像生成相关错误
	ErrorImageRefused       = "IMAGE_REFUSED"
	ErrorImageProviderUnset = "IMAGE_PROVIDER_UNSET"

	// 上游服务相关错误
	ErrorUpstreamUnavailable   = "UPSTREAM_UNAVAILABLE"
	ErrorUpstreamParse         = "UPSTREAM_PARSE_FAILED"
	ErrorLLMServiceUnavailable = "LLM_SERVICE_UNAVAILABLE"

	// 文件相关错误
	ErrorFileUploadFailed = "FILE_UPLOAD_FAILED"
	ErrorFileInvalid      = "FILE_INVALID"
	ErrorFileNotFound     = "FILE_NOT_FOUND"

	// 历史与导出相关错误
	ErrorHistoryRecordNotFound = "HISTORY_RECORD_NOT_FOUND"
	ErrorExportFailed          = "EXPORT_FAILED"

	// 任务相关错误
	ErrorTaskNotFound = "TASK_NOT_FOUND"
)
