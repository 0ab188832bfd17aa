package service

import (
	"context"
	"errors"
	"testing"

	"doc-smart-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScores(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected int
		want     []float64
		wantErr  bool
	}{
		{"纯数组", "[8, 3, 9]", 3, []float64{8, 3, 9}, false},
		{"带包裹文本", "评分结果如下：[7.5, 2]，仅供参考", 2, []float64{7.5, 2}, false},
		{"越界分数被截断", "[12, -3]", 2, []float64{10, 0}, false},
		{"数量不匹配", "[8, 3]", 3, nil, true},
		{"无数组", "无法评估", 2, nil, true},
		{"非法 JSON", "[8, abc]", 2, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseScores(tt.raw, tt.expected)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReranker_ReordersByBlendedScore(t *testing.T) {
	// 模型把第三条评为最相关
	client := &fakeLLMClient{answer: "[2, 5, 10]"}
	r := NewReranker(client)

	results := []model.SearchResult{
		{FileName: "a.pdf", Content: "片段一", Score: 9},
		{FileName: "b.pdf", Content: "片段二", Score: 6},
		{FileName: "c.pdf", Content: "片段三", Score: 3},
	}
	reranked, err := r.Rerank(context.Background(), "推荐哪款设备", results)
	require.NoError(t, err)
	require.Len(t, reranked, 3)

	// 第一条混合分 0.3*10 + 0.7*2 = 4.4，第三条 0.3*(3/9*10) + 0.7*10 = 8.0：模型打分主导排序
	assert.Equal(t, "c.pdf", reranked[0].FileName)
}

func TestReranker_FailureKeepsOriginalOrder(t *testing.T) {
	client := &fakeLLMClient{err: errors.New("模型不可用")}
	r := NewReranker(client)

	results := []model.SearchResult{
		{FileName: "a.pdf", Score: 9},
		{FileName: "b.pdf", Score: 6},
	}
	reranked, err := r.Rerank(context.Background(), "问题", results)
	assert.Error(t, err)
	require.Len(t, reranked, 2)
	assert.Equal(t, "a.pdf", reranked[0].FileName)
	assert.Equal(t, "b.pdf", reranked[1].FileName)
}

func TestReranker_SingleResultPassThrough(t *testing.T) {
	client := &fakeLLMClient{}
	r := NewReranker(client)

	results := []model.SearchResult{{FileName: "a.pdf", Score: 9}}
	reranked, err := r.Rerank(context.Background(), "问题", results)
	require.NoError(t, err)
	assert.Equal(t, results, reranked)
	assert.Equal(t, 0, client.calls)
}
