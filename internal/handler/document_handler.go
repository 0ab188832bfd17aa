package handler

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"doc-smart-go/internal/errs"
	"doc-smart-go/internal/model"
	"doc-smart-go/internal/pipeline"
	"doc-smart-go/internal/repository"
	"doc-smart-go/pkg/extract"
	"doc-smart-go/pkg/log"
	"doc-smart-go/pkg/storage"
	"doc-smart-go/pkg/tasks"

	"github.com/gin-gonic/gin"
)

// DocumentHandler 负责文档的上传接入、重建索引与删除。
type DocumentHandler struct {
	docRepo       repository.DocumentRepository
	storageClient *storage.Client
	queue         *tasks.Queue
	processor     *pipeline.Processor
}

// NewDocumentHandler 创建一个新的 DocumentHandler。
func NewDocumentHandler(docRepo repository.DocumentRepository, storageClient *storage.Client, queue *tasks.Queue, processor *pipeline.Processor) *DocumentHandler {
	return &DocumentHandler{
		docRepo:       docRepo,
		storageClient: storageClient,
		queue:         queue,
		processor:     processor,
	}
}

// Upload 接收上传文件，存入对象存储并投递摄取任务。
// 摄取是异步的，客户端通过 GET /documents/:id 轮询处理进度。
func (h *DocumentHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "缺少上传文件", "data": nil})
		return
	}
	catalogID := c.PostForm("catalogId")

	mimeType := fileHeader.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = extract.DetectMimeType(fileHeader.Filename)
	}
	// 对象名带时间戳前缀，避免同名文件互相覆盖
	objectName := fmt.Sprintf("%d_%s", time.Now().UnixNano(), filepath.Base(fileHeader.Filename))

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "读取上传文件失败", "data": nil})
		return
	}
	defer file.Close()

	if err := h.storageClient.PutObject(c.Request.Context(), objectName, file, fileHeader.Size, mimeType); err != nil {
		log.Errorf("上传文件到对象存储失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "保存文件失败", "data": nil})
		return
	}

	doc := &model.Document{
		FileName:       fileHeader.Filename,
		StoredFileName: objectName,
		FileType:       mimeType,
		CatalogID:      catalogID,
	}
	if err := h.docRepo.Create(doc); err != nil {
		log.Errorf("创建文档记录失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "创建文档记录失败", "data": nil})
		return
	}

	task := tasks.IngestTask{
		DocumentID: doc.ID,
		ObjectName: objectName,
		FileName:   doc.FileName,
		MimeType:   mimeType,
		CatalogID:  catalogID,
	}
	if err := h.queue.Produce(c.Request.Context(), task); err != nil {
		log.Errorf("投递摄取任务失败 (documentId=%d): %v", doc.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "投递摄取任务失败", "data": nil})
		return
	}

	log.Infof("文档已接收并投递摄取任务 (id=%d, file=%s)", doc.ID, doc.FileName)
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": doc})
}

// Get 返回文档元数据与处理进度。
func (h *DocumentHandler) Get(c *gin.Context) {
	id, ok := parseDocumentID(c)
	if !ok {
		return
	}
	doc, err := h.docRepo.FindByID(id)
	if errors.Is(err, errs.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "文档不存在", "data": nil})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "查询文档失败", "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": doc})
}

// Reindex 投递重建索引任务。同一文档已有重建在执行时由消费端拒绝。
func (h *DocumentHandler) Reindex(c *gin.Context) {
	id, ok := parseDocumentID(c)
	if !ok {
		return
	}
	doc, err := h.docRepo.FindByID(id)
	if errors.Is(err, errs.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "文档不存在", "data": nil})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "查询文档失败", "data": nil})
		return
	}

	task := tasks.IngestTask{
		DocumentID: doc.ID,
		ObjectName: doc.StoredFileName,
		FileName:   doc.FileName,
		MimeType:   doc.FileType,
		CatalogID:  doc.CatalogID,
		Reindex:    true,
	}
	if err := h.queue.Produce(c.Request.Context(), task); err != nil {
		log.Errorf("投递重建索引任务失败 (documentId=%d): %v", doc.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "投递重建索引任务失败", "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": gin.H{"documentId": doc.ID}})
}

// Delete 同步删除文档及其全部派生数据。
func (h *DocumentHandler) Delete(c *gin.Context) {
	id, ok := parseDocumentID(c)
	if !ok {
		return
	}
	err := h.processor.Delete(c.Request.Context(), id)
	if errors.Is(err, errs.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "文档不存在", "data": nil})
		return
	}
	if err != nil {
		log.Errorf("删除文档失败 (documentId=%d): %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "删除文档失败", "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": nil})
}

func parseDocumentID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的文档 ID", "data": nil})
		return 0, false
	}
	return uint(id), true
}
