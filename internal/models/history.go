// internal/models/history.go
package models

import (
	"time"
)

// GeneratedImageRecord 表示一次成功图像渲染的不可变快照
// 字段是生成时刻的拷贝，后续对分镜的修改不会回溯影响历史记录
type GeneratedImageRecord struct {
	Timestamp   time.Time `json:"timestamp"` // 会话内的唯一键
	ImageURL    string    `json:"image_url"`
	Prompt      string    `json:"prompt"`
	SceneTitle  string    `json:"scene_title"`
	SceneNumber int       `json:"scene_number"`
	Style       string    `json:"style"`
}

// HistorySortMode 历史记录排序方式
type HistorySortMode string

const (
	HistorySortNewest    HistorySortMode = "newest"     // 按时间戳降序
	HistorySortOldest    HistorySortMode = "oldest"     // 按时间戳升序
	HistorySortSceneAsc  HistorySortMode = "scene_asc"  // 按分镜编号升序
	HistorySortSceneDesc HistorySortMode = "scene_desc" // 按分镜编号降序
)

// HistoryFilter 历史记录的派生视图参数
type HistoryFilter struct {
	Search string          `json:"search"` // 不区分大小写的子串匹配
	Style  string          `json:"style"`  // "all" 或精确匹配
	Sort   HistorySortMode `json:"sort"`
}

// HistoryStyleAll 表示不按风格过滤
const HistoryStyleAll = "all"
