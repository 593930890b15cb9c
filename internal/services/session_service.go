// internal/services/session_service.go
package services

import (
	"sync"
	"time"

	apperrors "github.com/Corphon/StoryFrameAI/internal/errors"
	"github.com/Corphon/StoryFrameAI/internal/models"
	"github.com/google/uuid"
)

// sessionState 单个会话的全部可变状态
// Project归编排层独占所有；History独立拥有，Project重置后仍然保留
type sessionState struct {
	mutex           sync.Mutex
	id              string
	state           models.AnalysisState
	lastError       string
	project         *models.Project
	imagesGenerated int
	history         *HistoryLedger
	createdAt       time.Time
	lastAccessed    time.Time
}

// SessionService 管理所有活跃会话
// 所有状态仅存于内存，进程重启即丢失（有意的范围限制）
type SessionService struct {
	sessions map[string]*sessionState
	mutex    sync.RWMutex
	maxIdle  time.Duration
}

// NewSessionService 创建会话服务
func NewSessionService() *SessionService {
	return &SessionService{
		sessions: make(map[string]*sessionState),
		maxIdle:  2 * time.Hour,
	}
}

// CreateSession 创建新会话并返回快照
func (s *SessionService) CreateSession() models.SessionSnapshot {
	now := time.Now()
	session := &sessionState{
		id:           uuid.NewString(),
		state:        models.AnalysisIdle,
		history:      NewHistoryLedger(),
		createdAt:    now,
		lastAccessed: now,
	}

	s.mutex.Lock()
	s.sessions[session.id] = session
	s.mutex.Unlock()

	return session.snapshot()
}

// get 查找会话，不存在时返回NotFound错误
func (s *SessionService) get(sessionID string) (*sessionState, error) {
	s.mutex.RLock()
	session, exists := s.sessions[sessionID]
	s.mutex.RUnlock()

	if !exists {
		return nil, apperrors.NewNotFoundError("会话不存在", nil)
	}

	session.mutex.Lock()
	session.lastAccessed = time.Now()
	session.mutex.Unlock()

	return session, nil
}

// Snapshot 返回会话状态的只读快照
func (s *SessionService) Snapshot(sessionID string) (models.SessionSnapshot, error) {
	session, err := s.get(sessionID)
	if err != nil {
		return models.SessionSnapshot{}, err
	}
	return session.snapshot(), nil
}

// History 返回会话的历史账本
func (s *SessionService) History(sessionID string) (*HistoryLedger, error) {
	session, err := s.get(sessionID)
	if err != nil {
		return nil, err
	}
	return session.history, nil
}

// BeginAnalysis 进入Analyzing状态
// Error状态下允许重试，重新进入Analyzing
func (s *SessionService) BeginAnalysis(sessionID string) error {
	session, err := s.get(sessionID)
	if err != nil {
		return err
	}

	session.mutex.Lock()
	defer session.mutex.Unlock()

	session.state = models.AnalysisRunning
	session.lastError = ""
	return nil
}

// CommitProject 分析成功，整体替换Project并进入Ready状态
func (s *SessionService) CommitProject(sessionID string, project *models.Project) error {
	session, err := s.get(sessionID)
	if err != nil {
		return err
	}

	session.mutex.Lock()
	defer session.mutex.Unlock()

	session.project = project
	session.state = models.AnalysisReady
	session.lastError = ""
	return nil
}

// FailAnalysis 分析失败，进入Error状态且不保留任何部分Project
func (s *SessionService) FailAnalysis(sessionID string, message string) error {
	session, err := s.get(sessionID)
	if err != nil {
		return err
	}

	session.mutex.Lock()
	defer session.mutex.Unlock()

	session.project = nil
	session.state = models.AnalysisError
	session.lastError = message
	return nil
}

// ResetProject 清空Project回到Idle；History和计数器保留
func (s *SessionService) ResetProject(sessionID string) error {
	session, err := s.get(sessionID)
	if err != nil {
		return err
	}

	session.mutex.Lock()
	defer session.mutex.Unlock()

	session.project = nil
	session.state = models.AnalysisIdle
	session.lastError = ""
	return nil
}

// SceneForRender 取出渲染所需的分镜快照和项目风格
func (s *SessionService) SceneForRender(sessionID, sceneID string) (models.Scene, string, error) {
	session, err := s.get(sessionID)
	if err != nil {
		return models.Scene{}, "", err
	}

	session.mutex.Lock()
	defer session.mutex.Unlock()

	if session.project == nil {
		return models.Scene{}, "", apperrors.NewNotFoundError("当前会话没有项目", nil)
	}

	idx, found := session.project.FindScene(sceneID)
	if !found {
		return models.Scene{}, "", apperrors.NewNotFoundError("分镜不存在", nil)
	}

	return session.project.Scenes[idx], session.project.Style, nil
}

// SceneIDs 返回当前项目全部分镜ID，保持叙事顺序
func (s *SessionService) SceneIDs(sessionID string) ([]string, error) {
	session, err := s.get(sessionID)
	if err != nil {
		return nil, err
	}

	session.mutex.Lock()
	defer session.mutex.Unlock()

	if session.project == nil {
		return nil, apperrors.NewNotFoundError("当前会话没有项目", nil)
	}

	ids := make([]string, 0, len(session.project.Scenes))
	for _, scene := range session.project.Scenes {
		ids = append(ids, scene.ID)
	}
	return ids, nil
}

// ApplyRender 提交一次成功渲染的结果
// 这是一个纯合并操作：覆盖目标分镜的图像、头部追加历史快照、计数器+1
// 与其它并发渲染的完成顺序无关（各自只触达自己的分镜槽位）
func (s *SessionService) ApplyRender(sessionID, sceneID string, record models.GeneratedImageRecord) error {
	session, err := s.get(sessionID)
	if err != nil {
		return err
	}

	session.mutex.Lock()
	defer session.mutex.Unlock()

	if session.project == nil {
		return apperrors.NewNotFoundError("当前会话没有项目", nil)
	}

	idx, found := session.project.FindScene(sceneID)
	if !found {
		return apperrors.NewNotFoundError("分镜不存在", nil)
	}

	// 覆盖而不追加
	session.project.Scenes[idx].ImageURL = record.ImageURL
	session.history.Append(record)
	session.imagesGenerated++

	return nil
}

// CleanupIdleSessions 清理超过空闲期的会话
func (s *SessionService) CleanupIdleSessions() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	removed := 0
	now := time.Now()
	for id, session := range s.sessions {
		session.mutex.Lock()
		idle := now.Sub(session.lastAccessed) > s.maxIdle
		session.mutex.Unlock()

		if idle {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// StartCleanupLoop 启动周期性的空闲会话清理
func (s *SessionService) StartCleanupLoop(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for range ticker.C {
			s.CleanupIdleSessions()
		}
	}()
}

// snapshot 生成只读快照，Project做深拷贝避免调用方观察到后续变更
func (st *sessionState) snapshot() models.SessionSnapshot {
	st.mutex.Lock()
	defer st.mutex.Unlock()

	var project *models.Project
	if st.project != nil {
		copied := *st.project
		copied.Scenes = append([]models.Scene(nil), st.project.Scenes...)
		project = &copied
	}

	return models.SessionSnapshot{
		ID:              st.id,
		State:           st.state,
		LastError:       st.lastError,
		Project:         project,
		ImagesGenerated: st.imagesGenerated,
		HistoryCount:    st.history.Len(),
		CreatedAt:       st.createdAt,
		LastAccessed:    st.lastAccessed,
	}
}
