// Package service 提供了检索与问答的业务逻辑。
package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"doc-smart-go/internal/model"
	"doc-smart-go/internal/repository"
	"doc-smart-go/pkg/embedding"
	"doc-smart-go/pkg/es"
	"doc-smart-go/pkg/log"
)

// SearchService 接口定义了检索操作。
type SearchService interface {
	// HybridSearch 执行 kNN 与 BM25 的两阶段混合检索，catalogID 非空时限定目录范围。
	HybridSearch(ctx context.Context, query string, topK int, catalogID string) ([]model.SearchResult, error)
	// MultiSearch 对多条改写查询扇出检索，按分块去重并保留各分块的最高得分。
	MultiSearch(ctx context.Context, queries []string, topK int, catalogID string) ([]model.SearchResult, error)
	// Stats 返回语料库统计信息。
	Stats(ctx context.Context, catalogID string) (model.CorpusStats, error)
}

type searchService struct {
	embeddingClient embedding.Client
	esClient        *es.Client
	docRepo         repository.DocumentRepository
}

// NewSearchService 创建一个新的 SearchService 实例。
func NewSearchService(embeddingClient embedding.Client, esClient *es.Client, docRepo repository.DocumentRepository) SearchService {
	return &searchService{
		embeddingClient: embeddingClient,
		esClient:        esClient,
		docRepo:         docRepo,
	}
}

// HybridSearch 执行两阶段混合搜索。
func (s *searchService) HybridSearch(ctx context.Context, query string, topK int, catalogID string) ([]model.SearchResult, error) {
	log.Infof("[SearchService] 开始执行混合搜索, query: '%s', topK: %d, catalog: '%s'", query, topK, catalogID)

	// 1. 轻量归一化（去噪）以获取核心短语
	normalized, phrase := normalizeQuery(query)
	if normalized != query {
		log.Infof("[SearchService] 规范化查询: '%s' -> '%s' (phrase='%s')", query, normalized, phrase)
	}

	// 2. 向量化查询（用原始用户问句，保持语义检索能力）
	log.Info("[SearchService] 步骤1: 开始向量化查询")
	queryVector, err := s.embeddingClient.Embed(ctx, query)
	if err != nil {
		log.Errorf("[SearchService] 向量化查询失败: %v", err)
		return nil, fmt.Errorf("failed to create query embedding: %w", err)
	}
	log.Infof("[SearchService] 步骤1: 向量化查询成功, 向量维度: %d", len(queryVector))

	// 3. 构建两阶段混合搜索查询并执行
	log.Info("[SearchService] 步骤2: 开始执行 Elasticsearch 混合搜索")
	body := buildHybridQuery(queryVector, normalized, phrase, topK, catalogID)
	chunks, scores, err := s.esClient.Search(ctx, body)
	if err != nil {
		return nil, err
	}

	// 4. 零命中兜底：用核心短语重试一次（更强关键词信号）
	if len(chunks) == 0 && phrase != "" && phrase != query {
		log.Infof("[SearchService] 使用核心短语重试查询: '%s'", phrase)
		body = buildHybridQuery(queryVector, phrase, phrase, topK, catalogID)
		chunks, scores, err = s.esClient.Search(ctx, body)
		if err != nil {
			return nil, err
		}
	}
	if len(chunks) == 0 {
		log.Infof("[SearchService] Elasticsearch 返回 0 条命中结果")
		return []model.SearchResult{}, nil
	}

	// 5. 组装最终结果
	results := make([]model.SearchResult, 0, len(chunks))
	for i, chunk := range chunks {
		results = append(results, model.SearchResult{
			DocumentID: chunk.DocumentID,
			FileName:   chunk.FileName,
			ChunkIndex: chunk.ChunkIndex,
			Content:    chunk.Content,
			Score:      scores[i],
			CatalogID:  chunk.CatalogID,
		})
	}
	log.Infof("[SearchService] 混合搜索执行完毕, query: '%s', 返回 %d 条结果", query, len(results))
	return results, nil
}

// MultiSearch 扇出多路检索并合并，同一分块保留最高得分，按得分降序截断到 topK。
func (s *searchService) MultiSearch(ctx context.Context, queries []string, topK int, catalogID string) ([]model.SearchResult, error) {
	if len(queries) == 0 {
		return []model.SearchResult{}, nil
	}
	log.Infof("[SearchService] 开始多路检索, 查询数: %d", len(queries))

	best := make(map[string]model.SearchResult)
	for _, q := range queries {
		results, err := s.HybridSearch(ctx, q, topK, catalogID)
		if err != nil {
			// 单路失败不放弃整体检索
			log.Warnf("[SearchService] 多路检索其中一路失败 (query='%s'): %v", q, err)
			continue
		}
		for _, r := range results {
			key := fmt.Sprintf("%d_%d", r.DocumentID, r.ChunkIndex)
			if existing, ok := best[key]; !ok || r.Score > existing.Score {
				best[key] = r
			}
		}
	}

	merged := make([]model.SearchResult, 0, len(best))
	for _, r := range best {
		merged = append(merged, r)
	}
	// 按得分降序排列
	for i := 0; i < len(merged); i++ {
		for j := i + 1; j < len(merged); j++ {
			if merged[j].Score > merged[i].Score {
				merged[i], merged[j] = merged[j], merged[i]
			}
		}
	}
	if len(merged) > topK {
		merged = merged[:topK]
	}
	log.Infof("[SearchService] 多路检索合并后返回 %d 条结果", len(merged))
	return merged, nil
}

// Stats 返回文档数与分块数。
func (s *searchService) Stats(ctx context.Context, catalogID string) (model.CorpusStats, error) {
	var stats model.CorpusStats
	var err error
	if catalogID == "" {
		stats.DocumentCount, err = s.docRepo.Count()
	} else {
		stats.DocumentCount, err = s.docRepo.CountByCatalog(catalogID)
	}
	if err != nil {
		return stats, fmt.Errorf("统计文档数失败: %w", err)
	}
	stats.ChunkCount, err = s.esClient.CountChunks(ctx, catalogID)
	if err != nil {
		return stats, fmt.Errorf("统计分块数失败: %w", err)
	}
	return stats, nil
}

// buildHybridQuery 构建 kNN 召回加 BM25 重打分的混合查询体。
func buildHybridQuery(queryVector []float32, normalized, phrase string, topK int, catalogID string) map[string]interface{} {
	boolQuery := map[string]interface{}{
		"must": map[string]interface{}{
			"match": map[string]interface{}{
				"content": normalized,
			},
		},
		// 额外的 should：对核心短语做 match_phrase 以兜底召回
		"should": buildPhraseShould(phrase),
	}
	if catalogID != "" {
		boolQuery["filter"] = []map[string]interface{}{
			{"term": map[string]interface{}{"catalog_id": catalogID}},
		}
	}

	knn := map[string]interface{}{
		"field":          "vector",
		"query_vector":   queryVector,
		"k":              topK * 30,
		"num_candidates": topK * 30,
	}
	if catalogID != "" {
		knn["filter"] = map[string]interface{}{
			"term": map[string]interface{}{"catalog_id": catalogID},
		}
	}

	return map[string]interface{}{
		"knn":   knn,
		"query": map[string]interface{}{"bool": boolQuery},
		"rescore": map[string]interface{}{
			"window_size": topK * 30,
			"query": map[string]interface{}{
				"rescore_query": map[string]interface{}{
					"match": map[string]interface{}{
						"content": map[string]interface{}{
							"query":    normalized,
							"operator": "and",
						},
					},
				},
				"query_weight":         0.2, // 保留部分 k-NN 分数
				"rescore_query_weight": 1.0, // BM25 分数权重
			},
		},
		"size": topK,
	}
}

// normalizeQuery 对用户查询进行轻量去噪与短语提取。
// 返回值：规范化后的查询（用于 BM25/rescore）与核心短语（用于 match_phrase 兜底）。
func normalizeQuery(q string) (string, string) {
	if q == "" {
		return q, ""
	}
	lower := strings.ToLower(q)
	// 去除常见口语/功能词
	stopPhrases := []string{"是谁", "是什么", "是啥", "请问", "怎么", "如何", "告诉我", "严格", "按照", "不要补充", "的区别", "区别", "吗", "呢", "？", "?"}
	for _, sp := range stopPhrases {
		lower = strings.ReplaceAll(lower, sp, " ")
	}
	// 仅保留中文、英文、数字与空白
	reKeep := regexp.MustCompile(`[^\p{Han}a-z0-9\s]+`)
	kept := reKeep.ReplaceAllString(lower, " ")
	// 归一空白
	reSpace := regexp.MustCompile(`\s+`)
	kept = strings.TrimSpace(reSpace.ReplaceAllString(kept, " "))
	if kept == "" {
		return q, ""
	}
	return kept, kept
}

// buildPhraseShould 构建 match_phrase should 子句（带 boost），为空则返回 nil
func buildPhraseShould(phrase string) interface{} {
	if phrase == "" {
		return nil
	}
	return []map[string]interface{}{
		{
			"match_phrase": map[string]interface{}{
				"content": map[string]interface{}{
					"query": phrase,
					"boost": 3.0,
				},
			},
		},
	}
}
