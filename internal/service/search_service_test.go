package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeQuery(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"去除口语词与符号", "请问XK-500的保修期是什么", "xk 500的保修期"},
		{"去除标点", "保修期多久？", "保修期多久"},
		{"大小写归一", "XK500 Warranty", "xk500 warranty"},
		{"空查询", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := normalizeQuery(tt.query)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeQuery_AllNoiseFallsBackToOriginal(t *testing.T) {
	// 全部被去噪时回退到原查询，短语为空
	normalized, phrase := normalizeQuery("请问？")
	assert.Equal(t, "请问？", normalized)
	assert.Empty(t, phrase)
}

func TestBuildHybridQuery(t *testing.T) {
	body := buildHybridQuery([]float32{0.1, 0.2}, "保修期", "保修期", 5, "machines")

	knn, ok := body["knn"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, 150, knn["k"], "召回候选为 topK*30")
	assert.NotNil(t, knn["filter"], "目录范围应下推到 kNN 过滤")

	assert.Equal(t, 5, body["size"])
	assert.NotNil(t, body["rescore"])

	boolQuery := body["query"].(map[string]interface{})["bool"].(map[string]interface{})
	assert.NotNil(t, boolQuery["filter"], "目录范围应出现在 BM25 过滤")
	assert.NotNil(t, boolQuery["should"], "核心短语兜底子句")
}

func TestBuildHybridQuery_NoCatalogNoFilter(t *testing.T) {
	body := buildHybridQuery([]float32{0.1}, "保修期", "", 5, "")

	knn := body["knn"].(map[string]interface{})
	_, hasFilter := knn["filter"]
	assert.False(t, hasFilter)

	boolQuery := body["query"].(map[string]interface{})["bool"].(map[string]interface{})
	_, hasFilter = boolQuery["filter"]
	assert.False(t, hasFilter)
	assert.Nil(t, boolQuery["should"])
}
