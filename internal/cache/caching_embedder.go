package cache

import (
	"context"

	"doc-smart-go/pkg/embedding"
	"doc-smart-go/pkg/log"
)

// CachingEmbedder 在向量服务之上包一层缓存，实现 embedding.Client 接口。
// 批量路径只向服务请求未命中的文本。
type CachingEmbedder struct {
	provider  embedding.Client
	cache     *EmbeddingCache
	batchSize int
}

// NewCachingEmbedder 创建带缓存的向量客户端。
func NewCachingEmbedder(provider embedding.Client, cache *EmbeddingCache, batchSize int) *CachingEmbedder {
	if batchSize <= 0 {
		batchSize = 16
	}
	return &CachingEmbedder{provider: provider, cache: cache, batchSize: batchSize}
}

// Embed 先查缓存，未命中再调用向量服务并回填。
func (e *CachingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if vector, ok := e.cache.Get(text); ok {
		return vector, nil
	}
	vector, err := e.provider.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := e.cache.Put(text, vector); err != nil {
		// 缓存写入失败不影响调用方
		log.Warnf("[CachingEmbedder] 回填向量缓存失败: %v", err)
	}
	return vector, nil
}

// EmbedBatch 批量向量化，只把缓存未命中的文本发给服务，按 batchSize 分批请求。
func (e *CachingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string
	for i, text := range texts {
		if vector, ok := e.cache.Get(text); ok {
			vectors[i] = vector
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}
	if len(missTexts) == 0 {
		return vectors, nil
	}
	log.Infof("[CachingEmbedder] 向量缓存命中 %d/%d, 需请求 %d 条", len(texts)-len(missTexts), len(texts), len(missTexts))

	for start := 0; start < len(missTexts); start += e.batchSize {
		end := start + e.batchSize
		if end > len(missTexts) {
			end = len(missTexts)
		}
		batch, err := e.provider.EmbedBatch(ctx, missTexts[start:end])
		if err != nil {
			return nil, err
		}
		for j, vector := range batch {
			idx := missIdx[start+j]
			vectors[idx] = vector
			if err := e.cache.Put(texts[idx], vector); err != nil {
				log.Warnf("[CachingEmbedder] 回填向量缓存失败: %v", err)
			}
		}
	}
	return vectors, nil
}
