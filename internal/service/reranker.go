package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"doc-smart-go/internal/model"
	"doc-smart-go/pkg/llm"
	"doc-smart-go/pkg/log"
	"doc-smart-go/pkg/textutil"
)

// Reranker 用大模型对检索结果做相关性重排，
// 最终得分为原始检索分与模型打分的加权混合。
// 任何失败都保留原始顺序，重排只是可选的质量增强。
type Reranker struct {
	llmClient llm.Client
	// 原始检索分与模型打分的混合权重
	origWeight float64
	llmWeight  float64
}

// NewReranker 创建重排器。
func NewReranker(llmClient llm.Client) *Reranker {
	return &Reranker{
		llmClient:  llmClient,
		origWeight: 0.3,
		llmWeight:  0.7,
	}
}

const rerankPromptTemplate = `你是一个检索结果相关性评估器。针对用户问题，给下面每个文档片段打一个 0 到 10 的相关性分数。
只输出一个 JSON 数组，数组长度与片段数相同，按片段顺序排列，例如 [8, 3, 9]。不要输出任何其他内容。

用户问题：%s

%s`

// Rerank 对候选结果重排后返回新序列。失败时返回原序列与错误，调用方可忽略错误降级。
func (r *Reranker) Rerank(ctx context.Context, query string, results []model.SearchResult) ([]model.SearchResult, error) {
	if len(results) <= 1 {
		return results, nil
	}

	var b strings.Builder
	for i, res := range results {
		fmt.Fprintf(&b, "片段 %d（来自 %s）：\n%s\n\n", i+1, res.FileName, textutil.TruncateRunes(res.Content, 500))
	}

	prompt := fmt.Sprintf(rerankPromptTemplate, query, b.String())
	raw, err := r.llmClient.Complete(ctx, []llm.Message{
		{Role: "user", Content: prompt},
	}, nil)
	if err != nil {
		log.Warnf("[Reranker] 调用重排模型失败, 保留原始顺序: %v", err)
		return results, err
	}

	scores, err := parseScores(raw, len(results))
	if err != nil {
		log.Warnf("[Reranker] 解析重排打分失败, 保留原始顺序: %v", err)
		return results, err
	}

	// 原始分归一化到 0-10 后与模型分加权混合
	maxOrig := 0.0
	for _, res := range results {
		if res.Score > maxOrig {
			maxOrig = res.Score
		}
	}
	reranked := make([]model.SearchResult, len(results))
	copy(reranked, results)
	for i := range reranked {
		orig := 0.0
		if maxOrig > 0 {
			orig = reranked[i].Score / maxOrig * 10
		}
		reranked[i].Score = r.origWeight*orig + r.llmWeight*scores[i]
	}
	sort.SliceStable(reranked, func(i, j int) bool {
		return reranked[i].Score > reranked[j].Score
	})
	log.Infof("[Reranker] 重排完成, 候选数: %d", len(reranked))
	return reranked, nil
}

// parseScores 从模型输出中解析打分数组，容忍围绕 JSON 的多余文本。
func parseScores(raw string, expected int) ([]float64, error) {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("输出中未找到 JSON 数组: %q", textutil.TruncateRunes(raw, 100))
	}
	var scores []float64
	if err := json.Unmarshal([]byte(raw[start:end+1]), &scores); err != nil {
		return nil, fmt.Errorf("解析打分数组失败: %w", err)
	}
	if len(scores) != expected {
		return nil, fmt.Errorf("打分数量不匹配: 期望 %d, 实际 %d", expected, len(scores))
	}
	for i, s := range scores {
		if s < 0 {
			scores[i] = 0
		}
		if s > 10 {
			scores[i] = 10
		}
	}
	return scores, nil
}
