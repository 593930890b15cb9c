// internal/models/session.go
package models

import (
	"time"
)

// AnalysisState 分析生命周期状态机：Idle -> Analyzing -> {Ready, Error}
type AnalysisState string

const (
	AnalysisIdle    AnalysisState = "idle"
	AnalysisRunning AnalysisState = "analyzing"
	AnalysisReady   AnalysisState = "ready"
	AnalysisError   AnalysisState = "error"
)

// SessionSnapshot 会话状态的只读快照，用于API响应
type SessionSnapshot struct {
	ID              string        `json:"id"`
	State           AnalysisState `json:"state"`
	LastError       string        `json:"last_error,omitempty"`
	Project         *Project      `json:"project,omitempty"`
	ImagesGenerated int           `json:"images_generated"` // 会话内单调递增，成功渲染时+1
	HistoryCount    int           `json:"history_count"`
	CreatedAt       time.Time     `json:"created_at"`
	LastAccessed    time.Time     `json:"last_accessed"`
}
