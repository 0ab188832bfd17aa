// Package cache 实现了向量缓存与两级响应缓存。
// 缓存只是性能优化而非正确性依赖：任何存储故障都降级为未命中，绝不阻断调用方。
package cache

import (
	"doc-smart-go/internal/model"
	"doc-smart-go/internal/repository"
	"doc-smart-go/pkg/log"
	"doc-smart-go/pkg/textutil"
)

// EmbeddingCache 是按文本哈希记忆向量的纯 memoization 层。
// 固定文本的向量不会变化，条目无过期时间，保留到手动清空为止。
type EmbeddingCache struct {
	repo repository.EmbeddingCacheRepository
}

// NewEmbeddingCache 创建向量缓存。
func NewEmbeddingCache(repo repository.EmbeddingCacheRepository) *EmbeddingCache {
	return &EmbeddingCache{repo: repo}
}

// Get 查找文本对应的向量。存储错误一律按未命中处理。
func (c *EmbeddingCache) Get(text string) ([]float32, bool) {
	entry, err := c.repo.FindByHash(textutil.HashText(text))
	if err != nil {
		log.Warnf("[EmbeddingCache] 读取缓存失败, 按未命中处理: %v", err)
		return nil, false
	}
	if entry == nil || len(entry.Embedding) == 0 {
		return nil, false
	}
	return entry.Embedding, true
}

// Put 写入或原地覆盖文本的向量，幂等。
func (c *EmbeddingCache) Put(text string, vector []float32) error {
	return c.repo.Upsert(&model.EmbeddingCacheEntry{
		TextHash:  textutil.HashText(text),
		Embedding: vector,
	})
}

// Count 返回缓存条目数。
func (c *EmbeddingCache) Count() (int64, error) {
	return c.repo.Count()
}

// Clear 清空向量缓存，返回删除数。
func (c *EmbeddingCache) Clear() (int64, error) {
	return c.repo.DeleteAll()
}
