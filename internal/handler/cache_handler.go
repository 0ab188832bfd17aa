package handler

import (
	"net/http"
	"strconv"

	"doc-smart-go/internal/cache"
	"doc-smart-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// CacheHandler 提供响应缓存的运维接口：统计、清空、失效、过期清理。
type CacheHandler struct {
	respCache *cache.ResponseCache
}

// NewCacheHandler 创建一个新的 CacheHandler。
func NewCacheHandler(respCache *cache.ResponseCache) *CacheHandler {
	return &CacheHandler{respCache: respCache}
}

// Stats 返回缓存统计信息。
func (h *CacheHandler) Stats(c *gin.Context) {
	stats, err := h.respCache.Stats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "获取缓存统计失败", "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": stats})
}

// Clear 清空响应缓存与向量缓存。
func (h *CacheHandler) Clear(c *gin.Context) {
	responses, embeddings, err := h.respCache.ClearAll()
	if err != nil {
		log.Errorf("清空缓存失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "清空缓存失败", "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": gin.H{
		"responsesRemoved":  responses,
		"embeddingsRemoved": embeddings,
	}})
}

// InvalidateDocument 失效引用某文档的全部缓存条目。
func (h *CacheHandler) InvalidateDocument(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的文档 ID", "data": nil})
		return
	}
	removed, err := h.respCache.InvalidateByDocument(uint(id))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "失效缓存失败", "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": gin.H{"removed": removed}})
}

// InvalidateCatalog 失效某目录范围的全部缓存条目。
func (h *CacheHandler) InvalidateCatalog(c *gin.Context) {
	catalogID := c.Param("catalogId")
	removed, err := h.respCache.InvalidateByCatalog(catalogID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "失效缓存失败", "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": gin.H{"removed": removed}})
}

// Cleanup 立即执行一次过期清理。
func (h *CacheHandler) Cleanup(c *gin.Context) {
	removed, err := h.respCache.CleanupExpired()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "过期清理失败", "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": gin.H{"removed": removed}})
}
