// Package repository 提供了数据访问层的实现。
package repository

import (
	"errors"

	"doc-smart-go/internal/errs"
	"doc-smart-go/internal/model"

	"gorm.io/gorm"
)

// DocumentRepository 定义了对 documents 表的数据操作接口。
type DocumentRepository interface {
	Create(doc *model.Document) error
	FindByID(id uint) (*model.Document, error)
	Save(doc *model.Document) error
	// UpdateProgress 只更新处理进度字段，摄取管线在各阶段调用。
	UpdateProgress(id uint, progress int) error
	Delete(id uint) error
	Count() (int64, error)
	CountByCatalog(catalogID string) (int64, error)
}

type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository 创建一个新的 DocumentRepository 实例。
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

// Create 创建文档记录。
func (r *documentRepository) Create(doc *model.Document) error {
	return r.db.Create(doc).Error
}

// FindByID 根据主键查找文档，不存在时返回 errs.ErrNotFound。
func (r *documentRepository) FindByID(id uint) (*model.Document, error) {
	var doc model.Document
	err := r.db.First(&doc, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// Save 保存文档的全部字段。
func (r *documentRepository) Save(doc *model.Document) error {
	return r.db.Save(doc).Error
}

// UpdateProgress 只更新处理进度。
func (r *documentRepository) UpdateProgress(id uint, progress int) error {
	return r.db.Model(&model.Document{}).Where("id = ?", id).
		Update("processing_progress", progress).Error
}

// Delete 删除文档记录。
func (r *documentRepository) Delete(id uint) error {
	return r.db.Delete(&model.Document{}, id).Error
}

// Count 统计全部文档数。
func (r *documentRepository) Count() (int64, error) {
	var n int64
	err := r.db.Model(&model.Document{}).Count(&n).Error
	return n, err
}

// CountByCatalog 统计指定目录下的文档数。
func (r *documentRepository) CountByCatalog(catalogID string) (int64, error) {
	var n int64
	err := r.db.Model(&model.Document{}).Where("catalog_id = ?", catalogID).Count(&n).Error
	return n, err
}
