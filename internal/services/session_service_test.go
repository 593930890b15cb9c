// internal/services/session_service_test.go
package services

import (
	"testing"
	"time"

	apperrors "github.com/Corphon/StoryFrameAI/internal/errors"
	"github.com/Corphon/StoryFrameAI/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makeProject 构造测试项目
func makeProject(sceneCount int) *models.Project {
	scenes := make([]models.Scene, 0, sceneCount)
	for i := 1; i <= sceneCount; i++ {
		scenes = append(scenes, models.Scene{
			ID:          "scene-" + string(rune('a'+i-1)),
			SceneNumber: i,
			Title:       "scene",
			ImagePrompt: "prompt",
		})
	}
	return &models.Project{
		ID:        "project-1",
		Title:     "Test",
		Style:     "Cinematic",
		Scenes:    scenes,
		CreatedAt: time.Now(),
	}
}

func TestSessionService_CreateAndSnapshot(t *testing.T) {
	service := NewSessionService()

	snapshot := service.CreateSession()
	assert.NotEmpty(t, snapshot.ID)
	assert.Equal(t, models.AnalysisIdle, snapshot.State)
	assert.Nil(t, snapshot.Project)
	assert.Equal(t, 0, snapshot.ImagesGenerated)

	again, err := service.Snapshot(snapshot.ID)
	require.NoError(t, err)
	assert.Equal(t, snapshot.ID, again.ID)
}

func TestSessionService_UnknownSession(t *testing.T) {
	service := NewSessionService()

	_, err := service.Snapshot("missing")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFoundError(err))
}

func TestSessionService_AnalysisLifecycle(t *testing.T) {
	service := NewSessionService()
	sid := service.CreateSession().ID

	require.NoError(t, service.BeginAnalysis(sid))
	snapshot, _ := service.Snapshot(sid)
	assert.Equal(t, models.AnalysisRunning, snapshot.State)

	require.NoError(t, service.CommitProject(sid, makeProject(2)))
	snapshot, _ = service.Snapshot(sid)
	assert.Equal(t, models.AnalysisReady, snapshot.State)
	require.NotNil(t, snapshot.Project)
	assert.Len(t, snapshot.Project.Scenes, 2)
}

func TestSessionService_FailAnalysisRetainsNoProject(t *testing.T) {
	service := NewSessionService()
	sid := service.CreateSession().ID

	// 先成功一次再失败，失败必须清掉旧Project
	require.NoError(t, service.CommitProject(sid, makeProject(1)))
	require.NoError(t, service.BeginAnalysis(sid))
	require.NoError(t, service.FailAnalysis(sid, "上游服务不可用"))

	snapshot, _ := service.Snapshot(sid)
	assert.Equal(t, models.AnalysisError, snapshot.State)
	assert.Nil(t, snapshot.Project)
	assert.Equal(t, "上游服务不可用", snapshot.LastError)

	// Error状态允许重试
	require.NoError(t, service.BeginAnalysis(sid))
	snapshot, _ = service.Snapshot(sid)
	assert.Equal(t, models.AnalysisRunning, snapshot.State)
	assert.Empty(t, snapshot.LastError)
}

func TestSessionService_ResetKeepsHistory(t *testing.T) {
	service := NewSessionService()
	sid := service.CreateSession().ID

	require.NoError(t, service.CommitProject(sid, makeProject(1)))
	require.NoError(t, service.ApplyRender(sid, "scene-a", models.GeneratedImageRecord{
		Timestamp:   time.Now(),
		ImageURL:    "data:image/png;base64,AAAA",
		SceneNumber: 1,
	}))

	require.NoError(t, service.ResetProject(sid))

	snapshot, _ := service.Snapshot(sid)
	assert.Equal(t, models.AnalysisIdle, snapshot.State)
	assert.Nil(t, snapshot.Project)

	// 历史和计数器在重置后保留
	assert.Equal(t, 1, snapshot.HistoryCount)
	assert.Equal(t, 1, snapshot.ImagesGenerated)
}

func TestSessionService_ApplyRender(t *testing.T) {
	service := NewSessionService()
	sid := service.CreateSession().ID
	require.NoError(t, service.CommitProject(sid, makeProject(3)))

	record := models.GeneratedImageRecord{
		Timestamp:   time.Now(),
		ImageURL:    "data:image/png;base64,BBBB",
		SceneNumber: 2,
	}
	require.NoError(t, service.ApplyRender(sid, "scene-b", record))

	snapshot, _ := service.Snapshot(sid)
	require.NotNil(t, snapshot.Project)

	// 只有目标分镜被修改
	assert.Empty(t, snapshot.Project.Scenes[0].ImageURL)
	assert.Equal(t, record.ImageURL, snapshot.Project.Scenes[1].ImageURL)
	assert.Empty(t, snapshot.Project.Scenes[2].ImageURL)

	assert.Equal(t, 1, snapshot.ImagesGenerated)
	assert.Equal(t, 1, snapshot.HistoryCount)
}

func TestSessionService_ApplyRenderUnknownScene(t *testing.T) {
	service := NewSessionService()
	sid := service.CreateSession().ID
	require.NoError(t, service.CommitProject(sid, makeProject(1)))

	err := service.ApplyRender(sid, "missing", models.GeneratedImageRecord{})
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFoundError(err))

	// 失败不改变任何状态
	snapshot, _ := service.Snapshot(sid)
	assert.Equal(t, 0, snapshot.ImagesGenerated)
	assert.Equal(t, 0, snapshot.HistoryCount)
}

func TestSessionService_SnapshotIsACopy(t *testing.T) {
	service := NewSessionService()
	sid := service.CreateSession().ID
	require.NoError(t, service.CommitProject(sid, makeProject(1)))

	snapshot, _ := service.Snapshot(sid)
	snapshot.Project.Scenes[0].Title = "mutated"

	fresh, _ := service.Snapshot(sid)
	assert.Equal(t, "scene", fresh.Project.Scenes[0].Title)
}

func TestSessionService_CleanupIdleSessions(t *testing.T) {
	service := NewSessionService()
	service.maxIdle = 10 * time.Millisecond

	sid := service.CreateSession().ID
	time.Sleep(20 * time.Millisecond)

	removed := service.CleanupIdleSessions()
	assert.Equal(t, 1, removed)

	_, err := service.Snapshot(sid)
	assert.Error(t, err)
}
