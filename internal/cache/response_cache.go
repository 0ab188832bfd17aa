package cache

import (
	"time"

	"doc-smart-go/internal/config"
	"doc-smart-go/internal/model"
	"doc-smart-go/internal/repository"
	"doc-smart-go/pkg/log"
	"doc-smart-go/pkg/textutil"
)

// ResponseCache 是两级问答缓存：精确哈希查找与语义相似度查找。
// 编排层固定先精确后语义的顺序。所有读取错误降级为未命中。
type ResponseCache struct {
	repo    repository.ResponseCacheRepository
	embRepo repository.EmbeddingCacheRepository
	cfg     config.CacheConfig
	// now 可在测试中替换以控制时间
	now func() time.Time
}

// NewResponseCache 创建响应缓存。
func NewResponseCache(repo repository.ResponseCacheRepository, embRepo repository.EmbeddingCacheRepository, cfg config.CacheConfig) *ResponseCache {
	return &ResponseCache{
		repo:    repo,
		embRepo: embRepo,
		cfg:     cfg,
		now:     time.Now,
	}
}

// LookupExact 按规范化查询哈希查找存活条目。
func (c *ResponseCache) LookupExact(query, catalogID string) *model.ResponseCacheEntry {
	entry, err := c.repo.FindLiveByHash(textutil.HashText(query), catalogID, c.now())
	if err != nil {
		log.Warnf("[ResponseCache] 精确查找失败, 按未命中处理: %v", err)
		return nil
	}
	return entry
}

// LookupSemantic 在最近使用的窗口内做余弦相似度扫描，
// 返回相似度达到阈值且最高的一条；同分时取 last_used 更新的。
// 没有条目达到阈值即未命中，绝不返回低置信匹配。
// 窗口外更相似的旧条目会被错过，这是有意的 LRU 偏向取舍（窗口大小可配）。
func (c *ResponseCache) LookupSemantic(queryEmbedding []float32, catalogID string) (*model.ResponseCacheEntry, float64) {
	if len(queryEmbedding) == 0 {
		return nil, 0
	}
	entries, err := c.repo.FindRecentLive(catalogID, c.cfg.SemanticScanWindow, c.now())
	if err != nil {
		log.Warnf("[ResponseCache] 语义查找失败, 按未命中处理: %v", err)
		return nil, 0
	}

	var best *model.ResponseCacheEntry
	var bestSim float64
	// entries 已按 last_used 降序排列，严格大于才替换，同分自然保留更新的条目
	for _, entry := range entries {
		sim := textutil.CosineSimilarity(queryEmbedding, entry.QueryEmbedding)
		if sim >= c.cfg.SemanticThreshold && sim > bestSim {
			best = entry
			bestSim = sim
		}
	}
	return best, bestSim
}

// RecordHit 原子递增命中计数并刷新 last_used。
// 写入失败只记日志，绝不让命中请求失败。
func (c *ResponseCache) RecordHit(entryID uint) {
	if err := c.repo.IncrementHit(entryID, c.now()); err != nil {
		log.Warnf("[ResponseCache] 记录命中失败 (id=%d): %v", entryID, err)
	}
}

// Put 按查询哈希 upsert 一条答案，过期时间为 now+TTL。
// 插入前若存活条目数达到容量上限，按 last_used 升序淘汰最旧的 10%；
// 刷新已有哈希走 upsert 覆盖，表不会增长，不触发淘汰。
// 并发写同一查询依赖 upsert 语义：后写者胜出，不产生重复行。
func (c *ResponseCache) Put(query string, queryEmbedding []float32, response string, sources []model.Source, documentIDs []uint, catalogID string) error {
	now := c.now()
	hash := textutil.HashText(query)

	exists, err := c.repo.ExistsByHash(hash)
	if err != nil {
		log.Warnf("[ResponseCache] 查询哈希存在性检查失败, 按新条目处理: %v", err)
		exists = false
	}
	if !exists {
		if live, err := c.repo.CountLive(now); err != nil {
			log.Warnf("[ResponseCache] 统计存活条目失败, 跳过淘汰: %v", err)
		} else if live >= int64(c.cfg.MaxEntries) {
			evictN := c.cfg.MaxEntries / 10
			if evictN < 1 {
				evictN = 1
			}
			removed, err := c.repo.EvictOldest(evictN)
			if err != nil {
				log.Warnf("[ResponseCache] LRU 淘汰失败: %v", err)
			} else {
				log.Infof("[ResponseCache] 容量达到上限 %d, 已淘汰最旧 %d 条", c.cfg.MaxEntries, removed)
			}
		}
	}

	return c.repo.Upsert(&model.ResponseCacheEntry{
		QueryText:      query,
		QueryHash:      hash,
		QueryEmbedding: queryEmbedding,
		Response:       response,
		Sources:        sources,
		DocumentIDs:    documentIDs,
		CatalogID:      catalogID,
		LastUsed:       now,
		ExpiresAt:      now.Add(c.cfg.TTL),
	})
}

// InvalidateByDocument 删除引用了该文档的全部条目，返回删除数。
// 文档重新摄取后必须同步调用，避免继续提供过期答案。
func (c *ResponseCache) InvalidateByDocument(documentID uint) (int64, error) {
	entries, err := c.repo.FindAll()
	if err != nil {
		return 0, err
	}
	var ids []uint
	for _, entry := range entries {
		for _, id := range entry.DocumentIDs {
			if id == documentID {
				ids = append(ids, entry.ID)
				break
			}
		}
	}
	removed, err := c.repo.DeleteByIDs(ids)
	if err != nil {
		return 0, err
	}
	log.Infof("[ResponseCache] 按文档失效 (documentId=%d), 删除 %d 条", documentID, removed)
	return removed, nil
}

// InvalidateByCatalog 删除指定目录范围的全部条目，返回删除数。
func (c *ResponseCache) InvalidateByCatalog(catalogID string) (int64, error) {
	removed, err := c.repo.DeleteByCatalog(catalogID)
	if err != nil {
		return 0, err
	}
	log.Infof("[ResponseCache] 按目录失效 (catalogId=%s), 删除 %d 条", catalogID, removed)
	return removed, nil
}

// ClearAll 清空响应缓存与向量缓存，返回各自的删除数。
// 全量摄取或重建索引后调用：新内容可能让此前"不知道"的答案变得可答，
// 聚合类答案可能跨多个文档，按文档的局部失效并不充分。
func (c *ResponseCache) ClearAll() (responses int64, embeddings int64, err error) {
	responses, err = c.repo.DeleteAll()
	if err != nil {
		return 0, 0, err
	}
	embeddings, err = c.embRepo.DeleteAll()
	if err != nil {
		return responses, 0, err
	}
	log.Infof("[ResponseCache] 已清空全部缓存: 响应 %d 条, 向量 %d 条", responses, embeddings)
	return responses, embeddings, nil
}

// CleanupExpired 删除全部已过期条目，返回删除数。由后台定时任务周期执行。
func (c *ResponseCache) CleanupExpired() (int64, error) {
	removed, err := c.repo.DeleteExpired(c.now())
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		log.Infof("[ResponseCache] 过期清理完成, 删除 %d 条", removed)
	}
	return removed, nil
}

// Stats 返回缓存统计信息。
func (c *ResponseCache) Stats() (map[string]interface{}, error) {
	live, err := c.repo.CountLive(c.now())
	if err != nil {
		return nil, err
	}
	embCount, err := c.embRepo.Count()
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"liveEntries":        live,
		"embeddingEntries":   embCount,
		"maxEntries":         c.cfg.MaxEntries,
		"ttl":                c.cfg.TTL.String(),
		"semanticThreshold":  c.cfg.SemanticThreshold,
		"semanticScanWindow": c.cfg.SemanticScanWindow,
	}, nil
}
