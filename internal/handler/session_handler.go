package handler

import (
	"net/http"
	"strconv"

	"doc-smart-go/internal/session"

	"github.com/gin-gonic/gin"
)

// SessionHandler 提供会话记忆的管理接口。
type SessionHandler struct {
	memory *session.Memory
}

// NewSessionHandler 创建一个新的 SessionHandler。
func NewSessionHandler(memory *session.Memory) *SessionHandler {
	return &SessionHandler{memory: memory}
}

// Clear 清空用户的会话上下文。
func (h *SessionHandler) Clear(c *gin.Context) {
	userID, err := strconv.ParseUint(c.Param("userId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的 userId", "data": nil})
		return
	}
	if err := h.memory.ClearSession(c.Request.Context(), uint(userID)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "清空会话失败", "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": nil})
}
