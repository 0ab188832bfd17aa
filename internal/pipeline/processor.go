// Package pipeline 实现了文档摄取管线：下载、提取、分块、向量化、入库、索引。
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"doc-smart-go/internal/chunker"
	"doc-smart-go/internal/config"
	"doc-smart-go/internal/errs"
	"doc-smart-go/internal/model"
	"doc-smart-go/internal/repository"
	"doc-smart-go/pkg/embedding"
	"doc-smart-go/pkg/extract"
	"doc-smart-go/pkg/log"
	"doc-smart-go/pkg/notify"
	"doc-smart-go/pkg/tasks"
	"doc-smart-go/pkg/textutil"
)

// reindexLockTTL 是重建索引锁的有效期，持有者崩溃后锁自动过期。
const reindexLockTTL = 10 * time.Minute

// ObjectFetcher 读取文档原始文件。
type ObjectFetcher interface {
	FetchObject(ctx context.Context, objectName string) ([]byte, int64, error)
}

// TextExtractor 从文件内容中提取纯文本。
type TextExtractor interface {
	ExtractText(fileReader io.Reader, fileName, mimeType string) (string, error)
}

// ChunkIndexer 维护检索索引中的分块。
type ChunkIndexer interface {
	IndexChunk(ctx context.Context, doc model.EsChunk) error
	DeleteByDocument(ctx context.Context, documentID uint) error
}

// ResponseInvalidator 是摄取完成后需要联动的响应缓存操作。
type ResponseInvalidator interface {
	ClearAll() (int64, int64, error)
	InvalidateByDocument(documentID uint) (int64, error)
}

// Processor 是文档摄取状态机。同一文档的处理进度持久化在 documents 表，
// 任一阶段失败都会把文档标记为未索引并记录错误原因。
type Processor struct {
	docRepo   repository.DocumentRepository
	chunkRepo repository.ChunkRepository
	fetcher   ObjectFetcher
	extractor TextExtractor
	embedder  embedding.Client
	indexer   ChunkIndexer
	respCache ResponseInvalidator
	locker    repository.DocumentLocker
	notifier  notify.Notifier
	chunkCfg  config.ChunkingConfig
}

// NewProcessor 创建摄取处理器。
func NewProcessor(
	docRepo repository.DocumentRepository,
	chunkRepo repository.ChunkRepository,
	fetcher ObjectFetcher,
	extractor TextExtractor,
	embedder embedding.Client,
	indexer ChunkIndexer,
	respCache ResponseInvalidator,
	locker repository.DocumentLocker,
	notifier notify.Notifier,
	chunkCfg config.ChunkingConfig,
) *Processor {
	return &Processor{
		docRepo:   docRepo,
		chunkRepo: chunkRepo,
		fetcher:   fetcher,
		extractor: extractor,
		embedder:  embedder,
		indexer:   indexer,
		respCache: respCache,
		locker:    locker,
		notifier:  notifier,
		chunkCfg:  chunkCfg,
	}
}

// Process 是 Kafka 消费者的入口，按任务类型分发。
func (p *Processor) Process(ctx context.Context, task tasks.IngestTask) error {
	if task.Reindex {
		return p.Reindex(ctx, task.DocumentID)
	}
	return p.Ingest(ctx, task.DocumentID)
}

// Ingest 执行完整摄取流程。文档不存在时返回 errs.ErrNotFound。
func (p *Processor) Ingest(ctx context.Context, documentID uint) error {
	doc, err := p.docRepo.FindByID(documentID)
	if err != nil {
		return err
	}
	log.Infof("[Pipeline] 步骤1: 开始摄取文档 (id=%d, file=%s)", doc.ID, doc.FileName)
	if err := p.docRepo.UpdateProgress(doc.ID, 10); err != nil {
		log.Warnf("[Pipeline] 更新进度失败 (id=%d): %v", doc.ID, err)
	}

	text, isImage, err := p.extractContent(ctx, doc)
	if err != nil {
		return p.markFailed(doc, fmt.Errorf("提取文本失败: %w", err))
	}
	// 带上文件名作为检索线索
	text = fmt.Sprintf("文件名：%s\n\n%s", doc.FileName, text)
	log.Infof("[Pipeline] 步骤2: 文本提取完成 (id=%d, 长度=%d)", doc.ID, len([]rune(text)))
	if err := p.docRepo.UpdateProgress(doc.ID, 30); err != nil {
		log.Warnf("[Pipeline] 更新进度失败 (id=%d): %v", doc.ID, err)
	}

	chunks, err := chunker.Split(text, chunker.Options{
		ChunkSize: p.chunkCfg.ChunkSize,
		Overlap:   p.chunkCfg.Overlap,
		Strategy:  chooseStrategy(doc.FileName),
	})
	if err != nil {
		return p.markFailed(doc, fmt.Errorf("文本分块失败: %w", err))
	}
	log.Infof("[Pipeline] 步骤3: 分块完成 (id=%d, 分块数=%d)", doc.ID, len(chunks))
	if err := p.docRepo.UpdateProgress(doc.ID, 50); err != nil {
		log.Warnf("[Pipeline] 更新进度失败 (id=%d): %v", doc.ID, err)
	}

	vectors, err := p.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return p.markFailed(doc, fmt.Errorf("向量化失败: %w", err))
	}
	if len(vectors) != len(chunks) {
		return p.markFailed(doc, fmt.Errorf("向量化结果数量不匹配: 期望 %d, 实际 %d", len(chunks), len(vectors)))
	}
	log.Infof("[Pipeline] 步骤4: 向量化完成 (id=%d)", doc.ID)
	if err := p.docRepo.UpdateProgress(doc.ID, 80); err != nil {
		log.Warnf("[Pipeline] 更新进度失败 (id=%d): %v", doc.ID, err)
	}

	if err := p.replaceChunks(ctx, doc, chunks, vectors, isImage); err != nil {
		return p.markFailed(doc, fmt.Errorf("写入分块失败: %w", err))
	}
	log.Infof("[Pipeline] 步骤5: 分块入库与索引完成 (id=%d)", doc.ID)
	if err := p.docRepo.UpdateProgress(doc.ID, 95); err != nil {
		log.Warnf("[Pipeline] 更新进度失败 (id=%d): %v", doc.ID, err)
	}

	totalTokens := 0
	for _, chunk := range chunks {
		totalTokens += textutil.EstimateTokens(chunk)
	}
	doc.Indexed = true
	doc.ChunkCount = len(chunks)
	doc.TotalTokens = totalTokens
	doc.ProcessingProgress = 100
	doc.ProcessingError = ""
	doc.Version++
	if err := p.docRepo.Save(doc); err != nil {
		return p.markFailed(doc, fmt.Errorf("更新文档状态失败: %w", err))
	}

	// 新内容可能让此前无法回答的问题变得可答，同步清空响应缓存
	if _, _, err := p.respCache.ClearAll(); err != nil {
		log.Warnf("[Pipeline] 清空响应缓存失败 (id=%d): %v", doc.ID, err)
	}

	p.notifier.Notify(notify.Event{
		Type:       notify.EventDocumentIndexed,
		DocumentID: doc.ID,
		FileName:   doc.FileName,
		Detail:     fmt.Sprintf("分块数=%d", len(chunks)),
	})
	log.Infof("[Pipeline] 步骤6: 文档摄取成功 (id=%d, file=%s, 分块数=%d)", doc.ID, doc.FileName, len(chunks))
	return nil
}

// Reindex 重建文档索引。通过按文档的咨询锁保证同一文档同一时刻只有一个重建在执行，
// 抢锁失败返回 errs.ErrReindexInProgress。
func (p *Processor) Reindex(ctx context.Context, documentID uint) error {
	acquired, err := p.locker.TryLock(ctx, documentID, reindexLockTTL)
	if err != nil {
		return fmt.Errorf("获取重建锁失败: %w", err)
	}
	if !acquired {
		return fmt.Errorf("%w (documentId=%d)", errs.ErrReindexInProgress, documentID)
	}
	defer func() {
		if err := p.locker.Unlock(context.Background(), documentID); err != nil {
			log.Warnf("[Pipeline] 释放重建锁失败 (id=%d): %v", documentID, err)
		}
	}()

	log.Infof("[Pipeline] 开始重建索引 (id=%d)", documentID)
	if _, err := p.respCache.InvalidateByDocument(documentID); err != nil {
		log.Warnf("[Pipeline] 按文档失效缓存失败 (id=%d): %v", documentID, err)
	}
	return p.Ingest(ctx, documentID)
}

// Delete 删除文档及其全部派生数据：索引分块、数据库分块、文档记录、相关缓存。
func (p *Processor) Delete(ctx context.Context, documentID uint) error {
	doc, err := p.docRepo.FindByID(documentID)
	if err != nil {
		return err
	}
	if err := p.indexer.DeleteByDocument(ctx, documentID); err != nil {
		return fmt.Errorf("删除索引分块失败: %w", err)
	}
	if err := p.chunkRepo.DeleteByDocumentID(documentID); err != nil {
		return fmt.Errorf("删除数据库分块失败: %w", err)
	}
	if err := p.docRepo.Delete(documentID); err != nil {
		return fmt.Errorf("删除文档记录失败: %w", err)
	}
	if _, err := p.respCache.InvalidateByDocument(documentID); err != nil {
		log.Warnf("[Pipeline] 按文档失效缓存失败 (id=%d): %v", documentID, err)
	}
	log.Infof("[Pipeline] 文档已删除 (id=%d, file=%s)", documentID, doc.FileName)
	return nil
}

// extractContent 获取文档文本。图片不做 OCR，用占位描述保证可被文件名检索到。
func (p *Processor) extractContent(ctx context.Context, doc *model.Document) (string, bool, error) {
	if extract.IsImageMime(doc.FileType) {
		return fmt.Sprintf("这是一张图片，文件名为 %s。", doc.FileName), true, nil
	}

	data, size, err := p.fetcher.FetchObject(ctx, doc.StoredFileName)
	if err != nil {
		return "", false, err
	}
	if size == 0 {
		return "", false, errs.ErrEmptyExtraction
	}
	text, err := p.extractor.ExtractText(bytes.NewReader(data), doc.FileName, doc.FileType)
	if err != nil {
		return "", false, err
	}
	return text, false, nil
}

// replaceChunks 原子语义的分块替换：先清除旧分块再写入新分块与索引。
func (p *Processor) replaceChunks(ctx context.Context, doc *model.Document, chunks []string, vectors [][]float32, isImage bool) error {
	if err := p.indexer.DeleteByDocument(ctx, doc.ID); err != nil {
		return err
	}
	if err := p.chunkRepo.DeleteByDocumentID(doc.ID); err != nil {
		return err
	}

	records := make([]*model.Chunk, 0, len(chunks))
	for i, content := range chunks {
		records = append(records, &model.Chunk{
			DocumentID:     doc.ID,
			ChunkIndex:     i,
			Content:        content,
			Embedding:      vectors[i],
			FileName:       doc.FileName,
			FileType:       doc.FileType,
			CatalogID:      doc.CatalogID,
			IsImage:        isImage,
			StoredFileName: doc.StoredFileName,
		})
	}
	if err := p.chunkRepo.BatchCreate(records); err != nil {
		return err
	}

	for i, content := range chunks {
		esDoc := model.EsChunk{
			ChunkKey:   fmt.Sprintf("%d_%d", doc.ID, i),
			DocumentID: doc.ID,
			ChunkIndex: i,
			Content:    content,
			Vector:     vectors[i],
			FileName:   doc.FileName,
			CatalogID:  doc.CatalogID,
			IsImage:    isImage,
		}
		if err := p.indexer.IndexChunk(ctx, esDoc); err != nil {
			return err
		}
	}
	return nil
}

// markFailed 把文档标记为处理失败并发送失败事件，返回原始错误。
func (p *Processor) markFailed(doc *model.Document, cause error) error {
	log.Errorf("[Pipeline] 文档摄取失败 (id=%d, file=%s): %v", doc.ID, doc.FileName, cause)
	doc.Indexed = false
	doc.ChunkCount = 0
	doc.TotalTokens = 0
	doc.ProcessingProgress = 0
	doc.ProcessingError = cause.Error()
	if err := p.docRepo.Save(doc); err != nil {
		log.Errorf("[Pipeline] 记录失败状态出错 (id=%d): %v", doc.ID, err)
	}
	p.notifier.Notify(notify.Event{
		Type:       notify.EventDocumentFailed,
		DocumentID: doc.ID,
		FileName:   doc.FileName,
		Detail:     cause.Error(),
	})
	return cause
}

// chooseStrategy 根据文件名选择分块策略：结构化导出文本用纯滑动窗口。
func chooseStrategy(fileName string) chunker.Strategy {
	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".csv", ".tsv", ".xlsx", ".xls":
		return chunker.StrategySemantic
	}
	lower := strings.ToLower(fileName)
	if strings.Contains(lower, "表") || strings.Contains(lower, "table") {
		return chunker.StrategySemantic
	}
	return chunker.StrategyProductAware
}
