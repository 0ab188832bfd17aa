package model

import "time"

// Chunk 对应 chunks 表。每个分块归属且仅归属一个文档，
// 文档删除或重建索引时一并删除。chunk_index 在同一文档内创建时连续且唯一。
type Chunk struct {
	ID             uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	DocumentID     uint      `gorm:"not null;index;column:document_id" json:"documentId"`
	ChunkIndex     int       `gorm:"not null;column:chunk_index" json:"chunkIndex"`
	Content        string    `gorm:"type:text" json:"content"`
	Embedding      []float32 `gorm:"serializer:json;type:json" json:"embedding"`
	FileName       string    `gorm:"type:varchar(255)" json:"fileName"`
	FileType       string    `gorm:"type:varchar(100)" json:"fileType"`
	CatalogID      string    `gorm:"type:varchar(64);index;default:''" json:"catalogId"`
	IsImage        bool      `gorm:"not null;default:false" json:"isImage"`
	StoredFileName string    `gorm:"type:varchar(255)" json:"storedFileName"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Chunk) TableName() string {
	return "chunks"
}

// EsChunk 定义了索引到 Elasticsearch 的分块文档结构。
type EsChunk struct {
	ChunkKey   string    `json:"chunk_key"` // 唯一标识：documentID_chunkIndex
	DocumentID uint      `json:"document_id"`
	ChunkIndex int       `json:"chunk_index"`
	Content    string    `json:"content"`
	Vector     []float32 `json:"vector"`
	FileName   string    `json:"file_name"`
	CatalogID  string    `json:"catalog_id"`
	IsImage    bool      `json:"is_image"`
}
