// internal/api/handlers_test.go
package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/Corphon/StoryFrameAI/internal/imagegen"
	"github.com/Corphon/StoryFrameAI/internal/llm"
	"github.com/Corphon/StoryFrameAI/internal/models"
	"github.com/Corphon/StoryFrameAI/internal/services"
	"github.com/Corphon/StoryFrameAI/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLLM 返回固定单分镜分析结果
type fakeLLM struct{}

func (f *fakeLLM) Initialize(config map[string]string) error { return nil }
func (f *fakeLLM) GetName() string                           { return "fake" }
func (f *fakeLLM) GetSupportedModels() []string              { return []string{"fake"} }

func (f *fakeLLM) CompleteText(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return &llm.CompletionResponse{
		Text: `{"project_title": "T", "project_style": "Cinematic", "scenes": [
			{"scene_number": 1, "title": "Dock", "description": "d", "image_prompt": "p"}
		]}`,
		TokensUsed: 10,
	}, nil
}

// fakeImage 返回固定PNG字节
type fakeImage struct{}

func (f *fakeImage) Initialize(config map[string]string) error { return nil }
func (f *fakeImage) GetName() string                           { return "fake" }

func (f *fakeImage) Generate(ctx context.Context, req imagegen.GenerationRequest) (*imagegen.GenerationResult, error) {
	return &imagegen.GenerationResult{Data: []byte("png"), MimeType: "image/png", UsedSeed: req.Seed}, nil
}

// newTestRouter 用桩服务搭建完整路由
func newTestRouter(t *testing.T) (*gin.Engine, *services.SessionService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	llmService := services.NewLLMServiceWithProvider(&fakeLLM{})
	sessionService := services.NewSessionService()
	fileStorage, err := storage.NewFileStorage(t.TempDir())
	require.NoError(t, err)
	statsService := services.NewStatsService(t.TempDir())

	handler := NewHandler(
		sessionService,
		services.NewAnalyzerService(llmService),
		services.NewStyleService(llmService),
		services.NewImageServiceWithProvider(&fakeImage{}, sessionService, fileStorage, statsService),
		services.NewIngestService(),
		services.NewProgressService(),
		statsService,
		llmService,
	)

	r := gin.New()
	r.Use(requestIDMiddleware())

	apiGroup := r.Group("/api")
	apiGroup.GET("/health", handler.Health)
	apiGroup.POST("/sessions", handler.CreateSession)
	apiGroup.GET("/sessions/:sid", handler.GetSession)
	apiGroup.POST("/sessions/:sid/reset", handler.ResetSession)
	apiGroup.POST("/sessions/:sid/analyze", handler.AnalyzeScript)
	apiGroup.GET("/progress/:taskID", handler.GetProgress)
	apiGroup.POST("/sessions/:sid/scenes/:id/render", handler.RenderScene)
	apiGroup.POST("/sessions/:sid/render-all", handler.RenderAll)
	apiGroup.GET("/sessions/:sid/history", handler.GetHistory)
	apiGroup.DELETE("/sessions/:sid/history", handler.ClearHistory)
	apiGroup.GET("/sessions/:sid/history/:ts/export", handler.ExportFrame)

	return r, sessionService
}

// doJSON 发送JSON请求并解析标准响应包
func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp APIResponse
	if w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func TestHandler_Health(t *testing.T) {
	r, _ := newTestRouter(t)

	w, resp := doJSON(t, r, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.RequestID)
}

func TestHandler_SessionLifecycle(t *testing.T) {
	r, _ := newTestRouter(t)

	// 创建会话
	w, resp := doJSON(t, r, http.MethodPost, "/api/sessions", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	require.True(t, resp.Success)

	data, _ := json.Marshal(resp.Data)
	var snapshot models.SessionSnapshot
	require.NoError(t, json.Unmarshal(data, &snapshot))
	require.NotEmpty(t, snapshot.ID)
	assert.Equal(t, models.AnalysisIdle, snapshot.State)

	// 查询快照
	w, resp = doJSON(t, r, http.MethodGet, "/api/sessions/"+snapshot.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)

	// 未知会话404
	w, resp = doJSON(t, r, http.MethodGet, "/api/sessions/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrorSessionNotFound, resp.Error.Code)
}

func TestHandler_AnalyzeAndRender(t *testing.T) {
	r, sessions := newTestRouter(t)
	sid := sessions.CreateSession().ID

	// 空剧本直接拒绝
	w, resp := doJSON(t, r, http.MethodPost, "/api/sessions/"+sid+"/analyze",
		gin.H{"script_text": "  "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrorScriptEmpty, resp.Error.Code)

	// 正常分析返回任务ID
	w, resp = doJSON(t, r, http.MethodPost, "/api/sessions/"+sid+"/analyze",
		gin.H{"script_text": "EXT. DOCK - NIGHT", "frame_count": 1, "style": "Cinematic"})
	require.Equal(t, http.StatusAccepted, w.Code)
	require.True(t, resp.Success)

	// 等待后台分析提交
	require.Eventually(t, func() bool {
		snapshot, err := sessions.Snapshot(sid)
		return err == nil && snapshot.State == models.AnalysisReady
	}, 2*time.Second, 10*time.Millisecond)

	snapshot, err := sessions.Snapshot(sid)
	require.NoError(t, err)
	require.NotNil(t, snapshot.Project)
	require.Len(t, snapshot.Project.Scenes, 1)
	sceneID := snapshot.Project.Scenes[0].ID

	// 渲染单个分镜
	w, resp = doJSON(t, r, http.MethodPost,
		"/api/sessions/"+sid+"/scenes/"+sceneID+"/render", gin.H{"seed": 42})
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, resp.Success)

	// 历史应有一条记录
	w, resp = doJSON(t, r, http.MethodGet, "/api/sessions/"+sid+"/history", nil)
	require.Equal(t, http.StatusOK, w.Code)

	data, _ := json.Marshal(resp.Data)
	var historyPayload struct {
		Records []models.GeneratedImageRecord `json:"records"`
		Total   int                           `json:"total"`
	}
	require.NoError(t, json.Unmarshal(data, &historyPayload))
	assert.Equal(t, 1, historyPayload.Total)
	require.Len(t, historyPayload.Records, 1)

	// 导出该记录
	ts := historyPayload.Records[0].Timestamp.UnixMilli()
	req := httptest.NewRequest(http.MethodGet,
		"/api/sessions/"+sid+"/history/"+itoa(ts)+"/export", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "png", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "frame_1_")

	// 清空历史
	w, _ = doJSON(t, r, http.MethodDelete, "/api/sessions/"+sid+"/history", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// 重置项目，历史已空但状态回到Idle
	w, _ = doJSON(t, r, http.MethodPost, "/api/sessions/"+sid+"/reset", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	snapshot, err = sessions.Snapshot(sid)
	require.NoError(t, err)
	assert.Nil(t, snapshot.Project)
	assert.Equal(t, models.AnalysisIdle, snapshot.State)
}

func TestHandler_RenderAllAsync(t *testing.T) {
	r, sessions := newTestRouter(t)
	sid := sessions.CreateSession().ID

	// 没有项目时不启动任务
	w, resp := doJSON(t, r, http.MethodPost, "/api/sessions/"+sid+"/render-all", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	require.NotNil(t, resp.Error)

	// 先分析出项目
	w, _ = doJSON(t, r, http.MethodPost, "/api/sessions/"+sid+"/analyze",
		gin.H{"script_text": "EXT. DOCK - NIGHT", "frame_count": 1, "style": "Cinematic"})
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Eventually(t, func() bool {
		snapshot, err := sessions.Snapshot(sid)
		return err == nil && snapshot.State == models.AnalysisReady
	}, 2*time.Second, 10*time.Millisecond)

	// 批量渲染立即返回任务ID
	w, resp = doJSON(t, r, http.MethodPost, "/api/sessions/"+sid+"/render-all",
		gin.H{"seed": 7})
	require.Equal(t, http.StatusAccepted, w.Code)
	require.True(t, resp.Success)

	data, _ := json.Marshal(resp.Data)
	var task struct {
		TaskID string `json:"task_id"`
	}
	require.NoError(t, json.Unmarshal(data, &task))
	require.NotEmpty(t, task.TaskID)

	// 轮询进度直到任务完成
	var last services.ProgressUpdate
	require.Eventually(t, func() bool {
		_, progressResp := doJSON(t, r, http.MethodGet, "/api/progress/"+task.TaskID, nil)
		payload, _ := json.Marshal(progressResp.Data)
		if json.Unmarshal(payload, &last) != nil {
			return false
		}
		return last.Status != "running"
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, "completed", last.Status)
	assert.Equal(t, 100, last.Progress)

	// 每个分镜一条历史记录
	ledger, err := sessions.History(sid)
	require.NoError(t, err)
	assert.Equal(t, 1, ledger.Len())
}

func TestHandler_ExportJPEGRecord(t *testing.T) {
	r, sessions := newTestRouter(t)
	sid := sessions.CreateSession().ID

	// 记录落盘失败的场景：只有data URI，没有帧文件
	raw := []byte("jpeg-bytes")
	record := models.GeneratedImageRecord{
		Timestamp:   time.Now(),
		ImageURL:    "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(raw),
		Prompt:      "p",
		SceneTitle:  "Dock",
		SceneNumber: 3,
		Style:       "Cinematic",
	}
	ledger, err := sessions.History(sid)
	require.NoError(t, err)
	ledger.Append(record)

	req := httptest.NewRequest(http.MethodGet,
		"/api/sessions/"+sid+"/history/"+itoa(record.Timestamp.UnixMilli())+"/export", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, raw, rec.Body.Bytes())
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".jpg")
}

func TestHandler_ExportBadTimestamp(t *testing.T) {
	r, sessions := newTestRouter(t)
	sid := sessions.CreateSession().ID

	w, resp := doJSON(t, r, http.MethodGet,
		"/api/sessions/"+sid+"/history/not-a-number/export", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, resp.Error)

	w, resp = doJSON(t, r, http.MethodGet,
		"/api/sessions/"+sid+"/history/12345/export", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrorHistoryRecordNotFound, resp.Error.Code)
}

// itoa 便捷的int64转字符串
func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
