// internal/models/project.go
package models

import (
	"time"
)

// Project 表示一次剧本分析的结果：标题、视觉风格和有序的分镜列表
type Project struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Style     string    `json:"style"`
	Scenes    []Scene   `json:"scenes"`
	CreatedAt time.Time `json:"created_at"`
}

// Scene 表示一个叙事分镜（beat）及其图像生成提示词
type Scene struct {
	ID          string `json:"id"`
	SceneNumber int    `json:"scene_number"`
	Title       string `json:"title"`
	Description string `json:"description"`
	ImagePrompt string `json:"image_prompt"`
	// ImageURL 为 data URI，首次渲染成功前为空；重新渲染时覆盖而不追加
	ImageURL string `json:"image_url,omitempty"`
}

// FindScene 按ID查找分镜，返回索引和是否存在
func (p *Project) FindScene(sceneID string) (int, bool) {
	for i := range p.Scenes {
		if p.Scenes[i].ID == sceneID {
			return i, true
		}
	}
	return -1, false
}
