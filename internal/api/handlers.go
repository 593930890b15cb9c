// internal/api/handlers.go
package api

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Corphon/StoryFrameAI/internal/models"
	"github.com/Corphon/StoryFrameAI/internal/services"
	"github.com/Corphon/StoryFrameAI/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// maxUploadSize 上传剧本文件的大小上限
const maxUploadSize = 20 << 20 // 20MB

// analysisTimeout 单次剧本分析的超时时间
const analysisTimeout = 5 * time.Minute

// renderAllTimeout 整批分镜渲染的超时时间
const renderAllTimeout = 15 * time.Minute

// Handler 处理API请求
type Handler struct {
	SessionService  *services.SessionService  // 会话服务
	AnalyzerService *services.AnalyzerService // 分析服务
	StyleService    *services.StyleService    // 风格建议服务
	ImageService    *services.ImageService    // 图像生成服务
	IngestService   *services.IngestService   // 文件提取服务
	ProgressService *services.ProgressService // 进度跟踪服务
	StatsService    *services.StatsService    // 统计服务
	LLMService      *services.LLMService      // LLM服务
	WebSocket       *WebSocketHandler         // WebSocket 处理器
	Response        *ResponseHelper           // 响应助手
}

// NewHandler 创建API处理器
func NewHandler(
	sessionService *services.SessionService,
	analyzerService *services.AnalyzerService,
	styleService *services.StyleService,
	imageService *services.ImageService,
	ingestService *services.IngestService,
	progressService *services.ProgressService,
	statsService *services.StatsService,
	llmService *services.LLMService,
) *Handler {
	return &Handler{
		SessionService:  sessionService,
		AnalyzerService: analyzerService,
		StyleService:    styleService,
		ImageService:    imageService,
		IngestService:   ingestService,
		ProgressService: progressService,
		StatsService:    statsService,
		LLMService:      llmService,
		WebSocket:       NewWebSocketHandler(progressService),
		Response:        NewResponseHelper(),
	}
}

// ========================================
// 健康与状态
// ========================================

// Health 健康检查
func (h *Handler) Health(c *gin.Context) {
	h.Response.Success(c, gin.H{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// LLMStatus 返回LLM与图像提供者的就绪状态
func (h *Handler) LLMStatus(c *gin.Context) {
	h.Response.Success(c, gin.H{
		"llm_ready":      h.LLMService.IsReady(),
		"llm_provider":   h.LLMService.GetProviderName(),
		"llm_state":      h.LLMService.GetReadyState(),
		"image_ready":    h.ImageService.IsReady(),
		"image_provider": h.ImageService.GetProviderName(),
	})
}

// GetStats 返回使用统计
func (h *Handler) GetStats(c *gin.Context) {
	h.Response.Success(c, h.StatsService.GetStats())
}

// ========================================
// 会话管理
// ========================================

// CreateSession 创建新会话
func (h *Handler) CreateSession(c *gin.Context) {
	snapshot := h.SessionService.CreateSession()
	h.Response.Created(c, snapshot, "会话已创建")
}

// GetSession 返回会话快照
func (h *Handler) GetSession(c *gin.Context) {
	snapshot, err := h.SessionService.Snapshot(c.Param("sid"))
	if err != nil {
		h.Response.NotFound(c, ErrorSessionNotFound, "会话不存在")
		return
	}
	h.Response.Success(c, snapshot)
}

// ResetSession 清空当前项目，历史保留
func (h *Handler) ResetSession(c *gin.Context) {
	sessionID := c.Param("sid")
	if err := h.SessionService.ResetProject(sessionID); err != nil {
		h.Response.NotFound(c, ErrorSessionNotFound, "会话不存在")
		return
	}

	snapshot, err := h.SessionService.Snapshot(sessionID)
	if err != nil {
		h.Response.NotFound(c, ErrorSessionNotFound, "会话不存在")
		return
	}
	h.Response.Success(c, snapshot, "项目已重置")
}

// ========================================
// 剧本上传与分析
// ========================================

// UploadScript 接收剧本文件并提取文本
func (h *Handler) UploadScript(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		h.Response.BadRequest(c, "缺少上传文件", err.Error())
		return
	}

	if fileHeader.Size > maxUploadSize {
		h.Response.Error(c, http.StatusRequestEntityTooLarge, ErrorFileInvalid, "文件超过大小限制")
		return
	}

	if !h.IngestService.IsSupported(fileHeader.Filename) {
		h.Response.Error(c, http.StatusUnprocessableEntity, ErrorFileInvalid,
			"不支持的文件类型，仅接受 .txt 和 .pdf")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		h.Response.InternalError(c, "读取上传文件失败", err.Error())
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		h.Response.InternalError(c, "读取上传文件失败", err.Error())
		return
	}

	text, err := h.IngestService.Extract(fileHeader.Filename, content)
	if err != nil {
		h.Response.AppError(c, err)
		return
	}

	h.Response.Success(c, gin.H{
		"filename":   fileHeader.Filename,
		"text":       text,
		"char_count": len([]rune(text)),
	}, "文件解析成功")
}

// AnalyzeRequest 剧本分析请求体
type AnalyzeRequest struct {
	ScriptText string `json:"script_text"`
	Topic      string `json:"topic"`
	Style      string `json:"style"`
	FrameCount int    `json:"frame_count"`
}

// AnalyzeScript 异步执行剧本分析
// 立即返回任务ID，进度通过 /api/progress/:taskID 或 WebSocket 获取
func (h *Handler) AnalyzeScript(c *gin.Context) {
	sessionID := c.Param("sid")

	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "请求格式错误", err.Error())
		return
	}

	if strings.TrimSpace(req.ScriptText) == "" {
		h.Response.Error(c, http.StatusBadRequest, ErrorScriptEmpty, "剧本文本不能为空")
		return
	}

	if !h.LLMService.IsReady() {
		h.Response.ServiceUnavailable(c, ErrorLLMServiceUnavailable,
			"LLM服务未就绪", h.LLMService.GetReadyState())
		return
	}

	if err := h.SessionService.BeginAnalysis(sessionID); err != nil {
		h.Response.NotFound(c, ErrorSessionNotFound, "会话不存在")
		return
	}

	taskID := uuid.NewString()
	tracker := h.ProgressService.CreateTracker(taskID)

	go h.runAnalysis(sessionID, tracker, req)

	h.Response.Accepted(c, gin.H{
		"task_id":    taskID,
		"session_id": sessionID,
	}, "分析任务已启动")
}

// runAnalysis 在后台执行分析并更新进度
func (h *Handler) runAnalysis(sessionID string, tracker *services.ProgressTracker, req AnalyzeRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), analysisTimeout)
	defer cancel()

	// 风格为空且主题非空时先请求风格建议
	style := strings.TrimSpace(req.Style)
	if style == "" && strings.TrimSpace(req.Topic) != "" {
		tracker.UpdateProgress(10, "生成风格建议...")
		style = h.StyleService.Suggest(ctx, req.Topic)
	}

	tracker.UpdateProgress(25, "剧本分段中...")

	project, tokensUsed, err := h.AnalyzerService.Analyze(ctx, models.AnalysisRequest{
		ScriptText: req.ScriptText,
		Topic:      req.Topic,
		Style:      style,
		FrameCount: req.FrameCount,
	})
	if tokensUsed > 0 {
		h.StatsService.RecordAnalysis(tokensUsed)
	}
	if err != nil {
		if failErr := h.SessionService.FailAnalysis(sessionID, err.Error()); failErr != nil {
			log.Printf("分析失败状态写入失败: %v", failErr)
		}
		tracker.Fail(err.Error())
		return
	}

	tracker.UpdateProgress(90, "整理分镜结果...")

	if err := h.SessionService.CommitProject(sessionID, project); err != nil {
		tracker.Fail(err.Error())
		return
	}

	tracker.Complete("分析完成", gin.H{
		"session_id":  sessionID,
		"scene_count": len(project.Scenes),
	})
}

// GetProgress 轮询任务进度
func (h *Handler) GetProgress(c *gin.Context) {
	tracker, exists := h.ProgressService.GetTracker(c.Param("taskID"))
	if !exists {
		h.Response.NotFound(c, ErrorTaskNotFound, "任务不存在")
		return
	}
	h.Response.Success(c, tracker.Snapshot())
}

// ProgressWebSocket 通过WebSocket订阅任务进度
func (h *Handler) ProgressWebSocket(c *gin.Context) {
	h.WebSocket.ProgressWebSocket(c)
}

// ========================================
// 风格建议
// ========================================

// SuggestStyleRequest 风格建议请求体
type SuggestStyleRequest struct {
	Topic string `json:"topic"`
}

// SuggestStyle 为主题建议视觉风格
func (h *Handler) SuggestStyle(c *gin.Context) {
	var req SuggestStyleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "请求格式错误", err.Error())
		return
	}

	style := h.StyleService.Suggest(c.Request.Context(), req.Topic)
	h.Response.Success(c, gin.H{"style": style})
}

// ========================================
// 图像渲染
// ========================================

// RenderRequest 渲染请求体，seed缺省时随机
type RenderRequest struct {
	Seed *int64 `json:"seed,omitempty"`
}

// RenderScene 为单个分镜渲染图像
func (h *Handler) RenderScene(c *gin.Context) {
	sessionID := c.Param("sid")
	sceneID := c.Param("id")

	var req RenderRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.Response.BadRequest(c, "请求格式错误", err.Error())
			return
		}
	}

	record, err := h.ImageService.Render(c.Request.Context(), sessionID, sceneID, req.Seed)
	if err != nil {
		h.Response.AppError(c, err)
		return
	}

	h.Response.Success(c, record, "渲染成功")
}

// RenderAll 异步渲染当前项目的全部分镜
// 立即返回任务ID，单个分镜失败不影响其它分镜，失败列表随任务结果一并返回
func (h *Handler) RenderAll(c *gin.Context) {
	sessionID := c.Param("sid")

	var req RenderRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.Response.BadRequest(c, "请求格式错误", err.Error())
			return
		}
	}

	// 提前校验会话与项目，启动后台任务前就把明确的错误返回给调用方
	if _, err := h.SessionService.SceneIDs(sessionID); err != nil {
		h.Response.AppError(c, err)
		return
	}

	taskID := uuid.NewString()
	tracker := h.ProgressService.CreateTracker(taskID)

	go h.runRenderAll(sessionID, tracker, req.Seed)

	h.Response.Accepted(c, gin.H{
		"task_id":    taskID,
		"session_id": sessionID,
	}, "批量渲染任务已启动")
}

// runRenderAll 在后台执行批量渲染并更新进度
func (h *Handler) runRenderAll(sessionID string, tracker *services.ProgressTracker, seed *int64) {
	ctx, cancel := context.WithTimeout(context.Background(), renderAllTimeout)
	defer cancel()

	tracker.UpdateProgress(5, "批量渲染中...")

	records, failed, err := h.ImageService.RenderAll(ctx, sessionID, seed,
		func(done, total int) {
			tracker.UpdateProgress(done*100/total, fmt.Sprintf("已完成 %d/%d 个分镜", done, total))
		})
	if err != nil && len(records) == 0 && len(failed) == 0 {
		tracker.Fail(err.Error())
		return
	}

	tracker.Complete("批量渲染完成", gin.H{
		"session_id": sessionID,
		"rendered":   records,
		"failed":     failed,
	})
}

// ========================================
// 历史记录
// ========================================

// GetHistory 返回过滤并排序后的历史视图
func (h *Handler) GetHistory(c *gin.Context) {
	ledger, err := h.SessionService.History(c.Param("sid"))
	if err != nil {
		h.Response.NotFound(c, ErrorSessionNotFound, "会话不存在")
		return
	}

	filter := models.HistoryFilter{
		Search: c.Query("search"),
		Style:  c.DefaultQuery("style", models.HistoryStyleAll),
		Sort:   models.HistorySortMode(c.DefaultQuery("sort", string(models.HistorySortNewest))),
	}

	records := ledger.Filter(filter)
	h.Response.Success(c, gin.H{
		"records": records,
		"total":   ledger.Len(),
	})
}

// ClearHistory 清空会话历史
func (h *Handler) ClearHistory(c *gin.Context) {
	ledger, err := h.SessionService.History(c.Param("sid"))
	if err != nil {
		h.Response.NotFound(c, ErrorSessionNotFound, "会话不存在")
		return
	}

	ledger.Clear()

	// 记录没了，对应的落盘帧文件一并清掉
	if err := h.ImageService.Storage.DeleteSessionFrames(c.Param("sid")); err != nil {
		log.Printf("清理会话帧文件失败: %v", err)
	}

	h.Response.Success(c, gin.H{"cleared": true}, "历史已清空")
}

// ExportFrame 下载指定历史记录的图像文件
func (h *Handler) ExportFrame(c *gin.Context) {
	ledger, err := h.SessionService.History(c.Param("sid"))
	if err != nil {
		h.Response.NotFound(c, ErrorSessionNotFound, "会话不存在")
		return
	}

	tsMilli, err := strconv.ParseInt(c.Param("ts"), 10, 64)
	if err != nil {
		h.Response.BadRequest(c, "时间戳格式错误", err.Error())
		return
	}

	record, found := ledger.FindByTimestamp(tsMilli)
	if !found {
		h.Response.NotFound(c, ErrorHistoryRecordNotFound, "历史记录不存在")
		return
	}

	mimeType := mimeFromDataURI(record.ImageURL)
	filename := storage.FrameFilename(record.SceneNumber, record.Timestamp, mimeType)

	// 优先读渲染时落盘的帧文件，落盘失败过的记录回退到内存数据
	data, err := h.ImageService.Storage.ReadFrame(c.Param("sid"), filename)
	if err != nil {
		data, err = decodeDataURI(record.ImageURL)
		if err != nil {
			h.Response.Error(c, http.StatusInternalServerError, ErrorExportFailed,
				"图像数据解码失败", err.Error())
			return
		}
	}

	h.Response.DownloadResponse(c, data, filename, mimeType)
}

// decodeDataURI 从data URI中取出原始图像字节
func decodeDataURI(uri string) ([]byte, error) {
	_, encoded, found := strings.Cut(uri, ";base64,")
	if !found {
		return nil, fmt.Errorf("不是有效的data URI")
	}
	return base64.StdEncoding.DecodeString(encoded)
}

// mimeFromDataURI 从data URI前缀解析MIME类型，解析不出时按PNG处理
func mimeFromDataURI(uri string) string {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "image/png"
	}

	mimeType, _, _ := strings.Cut(rest, ";")
	if mimeType == "" {
		return "image/png"
	}
	return mimeType
}
