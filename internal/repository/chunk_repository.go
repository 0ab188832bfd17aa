package repository

import (
	"doc-smart-go/internal/model"

	"gorm.io/gorm"
)

// ChunkRepository 定义了对 chunks 表的数据操作接口。
type ChunkRepository interface {
	BatchCreate(chunks []*model.Chunk) error
	FindByDocumentID(documentID uint) ([]*model.Chunk, error)
	DeleteByDocumentID(documentID uint) error
	Count() (int64, error)
}

type chunkRepository struct {
	db *gorm.DB
}

// NewChunkRepository 创建一个新的 ChunkRepository 实例。
func NewChunkRepository(db *gorm.DB) ChunkRepository {
	return &chunkRepository{db: db}
}

// BatchCreate 批量创建分块记录。
func (r *chunkRepository) BatchCreate(chunks []*model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	return r.db.CreateInBatches(chunks, 100).Error // 每100条记录一批
}

// FindByDocumentID 查找文档的全部分块，按 chunk_index 升序。
func (r *chunkRepository) FindByDocumentID(documentID uint) ([]*model.Chunk, error) {
	var chunks []*model.Chunk
	err := r.db.Where("document_id = ?", documentID).Order("chunk_index asc").Find(&chunks).Error
	return chunks, err
}

// DeleteByDocumentID 删除文档的全部分块。
func (r *chunkRepository) DeleteByDocumentID(documentID uint) error {
	return r.db.Where("document_id = ?", documentID).Delete(&model.Chunk{}).Error
}

// Count 统计分块总数。
func (r *chunkRepository) Count() (int64, error) {
	var n int64
	err := r.db.Model(&model.Chunk{}).Count(&n).Error
	return n, err
}
