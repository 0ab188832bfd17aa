package repository

import (
	"errors"

	"doc-smart-go/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EmbeddingCacheRepository 定义了对 embedding_cache 表的数据操作接口。
type EmbeddingCacheRepository interface {
	FindByHash(textHash string) (*model.EmbeddingCacheEntry, error)
	Upsert(entry *model.EmbeddingCacheEntry) error
	Count() (int64, error)
	DeleteAll() (int64, error)
}

type embeddingCacheRepository struct {
	db *gorm.DB
}

// NewEmbeddingCacheRepository 创建一个新的 EmbeddingCacheRepository 实例。
func NewEmbeddingCacheRepository(db *gorm.DB) EmbeddingCacheRepository {
	return &embeddingCacheRepository{db: db}
}

// FindByHash 按文本哈希查找，未命中返回 nil。
func (r *embeddingCacheRepository) FindByHash(textHash string) (*model.EmbeddingCacheEntry, error) {
	var entry model.EmbeddingCacheEntry
	err := r.db.Where("text_hash = ?", textHash).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// Upsert 按 text_hash 插入或原地覆盖，重复缓存同一文本是幂等的。
func (r *embeddingCacheRepository) Upsert(entry *model.EmbeddingCacheEntry) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "text_hash"}},
		DoUpdates: clause.AssignmentColumns([]string{"embedding"}),
	}).Create(entry).Error
}

// Count 统计缓存条目数。
func (r *embeddingCacheRepository) Count() (int64, error) {
	var n int64
	err := r.db.Model(&model.EmbeddingCacheEntry{}).Count(&n).Error
	return n, err
}

// DeleteAll 清空向量缓存，返回删除数。
func (r *embeddingCacheRepository) DeleteAll() (int64, error) {
	res := r.db.Where("1 = 1").Delete(&model.EmbeddingCacheEntry{})
	return res.RowsAffected, res.Error
}
