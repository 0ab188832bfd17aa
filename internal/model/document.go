// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// Document 对应 documents 表，记录每个已接入文档的元数据与处理状态。
// 处理状态字段由 pipeline.Processor 在摄取推进时更新。
type Document struct {
	ID                 uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	FileName           string    `gorm:"type:varchar(255);not null" json:"fileName"`
	StoredFileName     string    `gorm:"type:varchar(255);not null" json:"storedFileName"`
	FileType           string    `gorm:"type:varchar(100)" json:"fileType"` // MIME 类型
	CatalogID          string    `gorm:"type:varchar(64);index;default:''" json:"catalogId"`
	Indexed            bool      `gorm:"not null;default:false" json:"indexed"`
	ProcessingProgress int       `gorm:"not null;default:0" json:"processingProgress"` // 0-100
	ProcessingError    string    `gorm:"type:text" json:"processingError"`
	ChunkCount         int       `gorm:"not null;default:0" json:"chunkCount"`
	TotalTokens        int       `gorm:"not null;default:0" json:"totalTokens"`
	Version            int       `gorm:"not null;default:0" json:"version"` // 每次重建索引递增
	CreatedAt          time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Document) TableName() string {
	return "documents"
}
