// internal/api/websocket.go
package api

import (
	"log"
	"net/http"
	"time"

	"github.com/Corphon/StoryFrameAI/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// WebSocket 升级器配置
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// 在生产环境中应该进行更严格的检查
		return true
	},
}

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

// WebSocketHandler 通过WebSocket推送任务进度
type WebSocketHandler struct {
	Progress *services.ProgressService
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(progress *services.ProgressService) *WebSocketHandler {
	return &WebSocketHandler{Progress: progress}
}

// ProgressWebSocket 处理进度订阅连接
// 任务完成或失败后推送最终状态并关闭连接
func (h *WebSocketHandler) ProgressWebSocket(c *gin.Context) {
	taskID := c.Param("taskID")

	tracker, exists := h.Progress.GetTracker(taskID)
	if !exists {
		c.JSON(http.StatusNotFound, &APIResponse{
			Success: false,
			Error: &APIError{
				Code:    ErrorTaskNotFound,
				Message: "任务不存在",
			},
			Timestamp: time.Now(),
		})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WebSocket升级失败: %v", err)
		return
	}
	defer conn.Close()

	updates := tracker.Subscribe()
	defer tracker.Unsubscribe(updates)

	// 丢弃客户端消息，仅用于感知连接断开
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				conn.Close()
				return
			}
		}
	}()

	pingTicker := time.NewTicker(wsPingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return
			}

			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(update); err != nil {
				return
			}

			if update.Status != "running" {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
