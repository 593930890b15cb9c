// internal/services/progress_service.go
package services

import (
	"sync"
	"time"
)

// ProgressUpdate 表示进度更新
type ProgressUpdate struct {
	Progress int    `json:"progress"` // 进度百分比 (0-100)
	Message  string `json:"message"`  // 描述性消息
	Status   string `json:"status"`   // 状态：running, completed, failed
	Result   any    `json:"result,omitempty"`
	Error    string `json:"error,omitempty"`
}

// ProgressTracker 跟踪长时间运行任务的进度
type ProgressTracker struct {
	TaskID      string
	Progress    int
	Message     string
	Status      string
	Result      any
	Error       string
	StartTime   time.Time
	UpdateTime  time.Time
	Subscribers map[chan ProgressUpdate]bool
	Done        chan struct{}
	mutex       sync.Mutex
}

// ProgressService 管理所有进度跟踪器
type ProgressService struct {
	trackers map[string]*ProgressTracker
	mutex    sync.RWMutex
}

// NewProgressService 创建进度服务实例
func NewProgressService() *ProgressService {
	service := &ProgressService{
		trackers: make(map[string]*ProgressTracker),
	}
	service.startCleanup()
	return service
}

// CreateTracker 创建新的进度跟踪器
func (s *ProgressService) CreateTracker(taskID string) *ProgressTracker {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	// 如果已存在，返回现有追踪器
	if tracker, exists := s.trackers[taskID]; exists {
		return tracker
	}

	tracker := &ProgressTracker{
		TaskID:      taskID,
		Progress:    0,
		Message:     "任务初始化中...",
		Status:      "running",
		StartTime:   time.Now(),
		UpdateTime:  time.Now(),
		Subscribers: make(map[chan ProgressUpdate]bool),
		Done:        make(chan struct{}),
	}

	s.trackers[taskID] = tracker
	return tracker
}

// GetTracker 获取进度跟踪器
func (s *ProgressService) GetTracker(taskID string) (*ProgressTracker, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	tracker, exists := s.trackers[taskID]
	return tracker, exists
}

// startCleanup 周期清理完成超过一小时的追踪器
func (s *ProgressService) startCleanup() {
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()

		for range ticker.C {
			s.mutex.Lock()
			for id, tracker := range s.trackers {
				tracker.mutex.Lock()
				stale := tracker.Status != "running" &&
					time.Since(tracker.UpdateTime) > time.Hour
				tracker.mutex.Unlock()
				if stale {
					delete(s.trackers, id)
				}
			}
			s.mutex.Unlock()
		}
	}()
}

// UpdateProgress 更新任务进度
func (t *ProgressTracker) UpdateProgress(progress int, message string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if progress > t.Progress {
		t.Progress = progress
	}
	if message != "" {
		t.Message = message
	}
	t.UpdateTime = time.Now()

	t.notifyUnlocked()
}

// Complete 标记任务完成并附带结果
func (t *ProgressTracker) Complete(message string, result any) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.Status != "running" {
		return
	}

	t.Progress = 100
	if message != "" {
		t.Message = message
	} else {
		t.Message = "任务已完成"
	}
	t.Status = "completed"
	t.Result = result
	t.UpdateTime = time.Now()

	t.notifyUnlocked()
	close(t.Done)
}

// Fail 标记任务失败
func (t *ProgressTracker) Fail(errorMsg string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.Status != "running" {
		return
	}

	t.Message = "任务失败"
	t.Status = "failed"
	t.Error = errorMsg
	t.UpdateTime = time.Now()

	t.notifyUnlocked()
	close(t.Done)
}

// Subscribe 订阅进度更新
func (t *ProgressTracker) Subscribe() chan ProgressUpdate {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	ch := make(chan ProgressUpdate, 16)
	t.Subscribers[ch] = true

	// 立即推送当前状态
	ch <- ProgressUpdate{
		Progress: t.Progress,
		Message:  t.Message,
		Status:   t.Status,
		Result:   t.Result,
		Error:    t.Error,
	}
	return ch
}

// Unsubscribe 取消订阅
func (t *ProgressTracker) Unsubscribe(ch chan ProgressUpdate) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if _, exists := t.Subscribers[ch]; exists {
		delete(t.Subscribers, ch)
		close(ch)
	}
}

// Snapshot 返回当前进度状态
func (t *ProgressTracker) Snapshot() ProgressUpdate {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	return ProgressUpdate{
		Progress: t.Progress,
		Message:  t.Message,
		Status:   t.Status,
		Result:   t.Result,
		Error:    t.Error,
	}
}

// notifyUnlocked 向所有订阅者推送当前状态，调用方持有锁
// 非阻塞发送，通道已满时跳过该订阅者
func (t *ProgressTracker) notifyUnlocked() {
	update := ProgressUpdate{
		Progress: t.Progress,
		Message:  t.Message,
		Status:   t.Status,
		Result:   t.Result,
		Error:    t.Error,
	}

	for subscriber := range t.Subscribers {
		select {
		case subscriber <- update:
		default:
		}
	}
}
