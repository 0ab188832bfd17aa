// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"doc-smart-go/internal/service"
	"doc-smart-go/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

// ChatHandler 负责处理问答请求，支持 HTTP 与 WebSocket 两种方式。
type ChatHandler struct {
	chatService service.ChatService
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(chatService service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

type askRequest struct {
	UserID    uint   `json:"userId" binding:"required"`
	Question  string `json:"question" binding:"required"`
	CatalogID string `json:"catalogId"`
}

// Ask 处理一次同步问答请求。
func (h *ChatHandler) Ask(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "请求参数错误", "data": nil})
		return
	}

	answer, err := h.chatService.Ask(c.Request.Context(), req.UserID, req.Question, req.CatalogID)
	if err != nil {
		log.Errorf("处理问答请求失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "AI服务暂时不可用，请稍后重试", "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": answer})
}

// HandleWS 处理一个传入的 WebSocket 连接，每条消息是一个问题。
func (h *ChatHandler) HandleWS(c *gin.Context) {
	userID, err := strconv.ParseUint(c.Query("userId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的 userId", "data": nil})
		return
	}
	catalogID := c.Query("catalogId")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	log.Infof("WebSocket 连接已建立，用户: %d", userID)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Warnf("从 WebSocket 读取消息失败: %v", err)
			break
		}
		log.Infof("收到 WebSocket 消息: %s", string(message))

		answer, err := h.chatService.Ask(c.Request.Context(), uint(userID), string(message), catalogID)
		if err != nil {
			log.Errorf("处理问答请求失败: %v", err)
			errResp := map[string]string{"error": "AI服务暂时不可用，请稍后重试"}
			b, _ := json.Marshal(errResp)
			_ = conn.WriteMessage(websocket.TextMessage, b)
			h.sendCompletion(conn)
			continue
		}

		b, err := json.Marshal(map[string]interface{}{
			"type":         "answer",
			"answer":       answer.Answer,
			"sources":      answer.Sources,
			"fromCache":    answer.FromCache,
			"cacheType":    answer.CacheType,
			"usedFallback": answer.UsedFallback,
		})
		if err != nil {
			log.Errorf("序列化回答失败: %v", err)
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
			log.Warnf("发送回答失败: %v", err)
			break
		}
		h.sendCompletion(conn)
	}
}

// sendCompletion 发送完成通知，客户端据此恢复输入框状态。
func (h *ChatHandler) sendCompletion(conn *websocket.Conn) {
	resp := map[string]interface{}{
		"type":      "completion",
		"status":    "finished",
		"message":   "响应已完成",
		"timestamp": time.Now().UnixMilli(),
		"date":      time.Now().Format("2006-01-02T15:04:05"),
	}
	b, _ := json.Marshal(resp)
	_ = conn.WriteMessage(websocket.TextMessage, b)
}
