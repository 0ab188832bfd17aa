package model

import "time"

// Source 记录缓存答案引用过的分块来源。
type Source struct {
	FileName   string  `json:"fileName"`
	ChunkIndex int     `json:"chunkIndex"`
	Similarity float64 `json:"similarity"`
}

// ResponseCacheEntry 对应 response_cache 表。
// 同一 query_hash 至多一条存活记录（唯一索引），Put 为 upsert。
type ResponseCacheEntry struct {
	ID             uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	QueryText      string    `gorm:"type:text" json:"queryText"`
	QueryHash      string    `gorm:"type:varchar(64);uniqueIndex;not null;column:query_hash" json:"queryHash"`
	QueryEmbedding []float32 `gorm:"serializer:json;type:json" json:"queryEmbedding"`
	Response       string    `gorm:"type:text" json:"response"`
	Sources        []Source  `gorm:"serializer:json;type:json" json:"sources"`
	DocumentIDs    []uint    `gorm:"serializer:json;type:json;column:document_ids" json:"documentIds"`
	CatalogID      string    `gorm:"type:varchar(64);index;default:''" json:"catalogId"`
	HitCount       int64     `gorm:"not null;default:0" json:"hitCount"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"createdAt"`
	LastUsed       time.Time `gorm:"index;column:last_used" json:"lastUsed"`
	ExpiresAt      time.Time `gorm:"index;column:expires_at" json:"expiresAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (ResponseCacheEntry) TableName() string {
	return "response_cache"
}

// EmbeddingCacheEntry 对应 embedding_cache 表。
// 主键为规范化文本的哈希；向量对固定文本不会变化，故条目无过期时间。
type EmbeddingCacheEntry struct {
	TextHash  string    `gorm:"type:varchar(64);primaryKey;column:text_hash" json:"textHash"`
	Embedding []float32 `gorm:"serializer:json;type:json" json:"embedding"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (EmbeddingCacheEntry) TableName() string {
	return "embedding_cache"
}
