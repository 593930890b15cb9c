// internal/services/stats_service.go
package services

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// UsageStats 表示API使用统计
type UsageStats struct {
	TodayRequests int            `json:"today_requests"`
	MonthlyTokens int            `json:"monthly_tokens"`
	TotalImages   int            `json:"total_images"`
	DailyStats    map[string]int `json:"daily_stats"`
	LastUpdated   time.Time      `json:"last_updated"`
}

// StatsService 提供API使用统计功能
// 写入采用脏标记加周期落盘，避免每次计数都触发磁盘IO
type StatsService struct {
	BasePath    string
	statsFile   string
	mutex       sync.Mutex
	cachedStats *UsageStats

	isDirty      bool
	lastSaveTime time.Time
	saveInterval time.Duration
}

// NewStatsService 创建统计服务实例
func NewStatsService(basePath string) *StatsService {
	if basePath == "" {
		basePath = "data/stats"
	}

	if err := os.MkdirAll(basePath, 0755); err != nil {
		fmt.Printf("警告: 创建统计目录失败: %v\n", err)
	}

	service := &StatsService{
		BasePath:     basePath,
		statsFile:    filepath.Join(basePath, "usage_stats.json"),
		saveInterval: 30 * time.Second,
	}

	service.startPeriodicSave()

	return service
}

// initStatsUnlocked 初始化统计数据（无锁版本）
func (s *StatsService) initStatsUnlocked() {
	if loaded, err := s.loadStats(); err == nil {
		s.resetForNewPeriod(loaded)
		s.cachedStats = loaded
		return
	}

	s.cachedStats = &UsageStats{
		DailyStats:  make(map[string]int),
		LastUpdated: time.Now(),
	}
}

// loadStats 从文件加载统计数据
func (s *StatsService) loadStats() (*UsageStats, error) {
	data, err := os.ReadFile(s.statsFile)
	if err != nil {
		return nil, err
	}

	var stats UsageStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, fmt.Errorf("解析统计文件失败: %w", err)
	}
	if stats.DailyStats == nil {
		stats.DailyStats = make(map[string]int)
	}
	return &stats, nil
}

// resetForNewPeriod 跨天或跨月后重置对应计数
func (s *StatsService) resetForNewPeriod(stats *UsageStats) {
	now := time.Now()
	if now.Format("2006-01-02") != stats.LastUpdated.Format("2006-01-02") {
		stats.TodayRequests = 0
	}
	if now.Format("2006-01") != stats.LastUpdated.Format("2006-01") {
		stats.MonthlyTokens = 0
	}
}

// ensureStatsUnlocked 保证缓存已加载，调用方持有锁
func (s *StatsService) ensureStatsUnlocked() {
	if s.cachedStats == nil {
		s.initStatsUnlocked()
	}
	s.resetForNewPeriod(s.cachedStats)
}

// RecordAnalysis 记录一次剧本分析请求
func (s *StatsService) RecordAnalysis(tokensUsed int) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.ensureStatsUnlocked()

	today := time.Now().Format("2006-01-02")
	s.cachedStats.TodayRequests++
	s.cachedStats.MonthlyTokens += tokensUsed
	s.cachedStats.DailyStats[today]++
	s.cachedStats.LastUpdated = time.Now()
	s.isDirty = true
}

// RecordImageGenerated 记录一次成功的图像生成
func (s *StatsService) RecordImageGenerated() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.ensureStatsUnlocked()

	s.cachedStats.TotalImages++
	s.cachedStats.LastUpdated = time.Now()
	s.isDirty = true
}

// GetStats 返回统计数据的拷贝
func (s *StatsService) GetStats() UsageStats {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.ensureStatsUnlocked()

	copied := *s.cachedStats
	copied.DailyStats = make(map[string]int, len(s.cachedStats.DailyStats))
	for k, v := range s.cachedStats.DailyStats {
		copied.DailyStats[k] = v
	}
	return copied
}

// startPeriodicSave 启动周期落盘
func (s *StatsService) startPeriodicSave() {
	go func() {
		ticker := time.NewTicker(s.saveInterval)
		defer ticker.Stop()

		for range ticker.C {
			s.FlushIfDirty()
		}
	}()
}

// FlushIfDirty 有未保存的变更时写盘
func (s *StatsService) FlushIfDirty() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.isDirty || s.cachedStats == nil {
		return
	}

	if err := s.saveStatsUnlocked(); err != nil {
		fmt.Printf("警告: 保存统计数据失败: %v\n", err)
		return
	}

	s.isDirty = false
	s.lastSaveTime = time.Now()
}

// saveStatsUnlocked 写入统计文件，调用方持有锁
func (s *StatsService) saveStatsUnlocked() error {
	data, err := json.MarshalIndent(s.cachedStats, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化统计数据失败: %w", err)
	}

	tempPath := s.statsFile + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("写入临时统计文件失败: %w", err)
	}
	return os.Rename(tempPath, s.statsFile)
}
