package cache

import (
	"fmt"
	"testing"
	"time"

	"doc-smart-go/internal/config"
	"doc-smart-go/internal/model"
	"doc-smart-go/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestResponseCache(t *testing.T, cfg config.CacheConfig) (*ResponseCache, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	c := NewResponseCache(
		repository.NewResponseCacheRepository(db),
		repository.NewEmbeddingCacheRepository(db),
		cfg,
	)
	return c, db
}

func defaultCacheConfig() config.CacheConfig {
	return config.CacheConfig{
		TTL:                24 * time.Hour,
		MaxEntries:         1000,
		SemanticThreshold:  0.95,
		SemanticScanWindow: 100,
	}
}

func TestResponseCache_ExactHit(t *testing.T) {
	c, _ := newTestResponseCache(t, defaultCacheConfig())

	sources := []model.Source{{FileName: "手册.pdf", ChunkIndex: 2, Similarity: 0.88}}
	require.NoError(t, c.Put("XK-500 的保修期是多久", []float32{1, 0}, "保修期为两年。", sources, []uint{7}, ""))

	entry := c.LookupExact("XK-500 的保修期是多久", "")
	require.NotNil(t, entry)
	assert.Equal(t, "保修期为两年。", entry.Response)
	assert.Equal(t, sources, entry.Sources)
	assert.Equal(t, []uint{7}, entry.DocumentIDs)
}

func TestResponseCache_ExactHitOnNormalizedVariant(t *testing.T) {
	c, _ := newTestResponseCache(t, defaultCacheConfig())

	require.NoError(t, c.Put("What is the Warranty Period", []float32{1, 0}, "两年。", nil, nil, ""))

	// 大小写与多余空白不影响精确命中
	entry := c.LookupExact("  what is   the warranty period ", "")
	require.NotNil(t, entry)
	assert.Equal(t, "两年。", entry.Response)
}

func TestResponseCache_CatalogScopeIsolation(t *testing.T) {
	c, _ := newTestResponseCache(t, defaultCacheConfig())

	require.NoError(t, c.Put("保修期多久", []float32{1, 0}, "目录 A 的答案", nil, nil, "A"))

	assert.Nil(t, c.LookupExact("保修期多久", "B"), "跨目录不应命中")
	assert.Nil(t, c.LookupExact("保修期多久", ""), "默认目录不应命中")

	entry := c.LookupExact("保修期多久", "A")
	require.NotNil(t, entry)
	assert.Equal(t, "目录 A 的答案", entry.Response)

	// 语义查找同样按目录隔离
	hit, _ := c.LookupSemantic([]float32{1, 0}, "B")
	assert.Nil(t, hit)
	hit, _ = c.LookupSemantic([]float32{1, 0}, "A")
	assert.NotNil(t, hit)
}

func TestResponseCache_SemanticThreshold(t *testing.T) {
	c, _ := newTestResponseCache(t, defaultCacheConfig())

	require.NoError(t, c.Put("设备的质保政策", []float32{1, 0}, "质保两年。", nil, nil, ""))

	// 相似度远高于阈值：命中
	hit, sim := c.LookupSemantic([]float32{0.999, 0.0447}, "")
	require.NotNil(t, hit)
	assert.GreaterOrEqual(t, sim, 0.95)
	assert.Equal(t, "质保两年。", hit.Response)

	// 相似度明显低于阈值：未命中，绝不返回低置信匹配
	hit, _ = c.LookupSemantic([]float32{0.9, 0.436}, "")
	assert.Nil(t, hit)

	// 正交向量：未命中
	hit, _ = c.LookupSemantic([]float32{0, 1}, "")
	assert.Nil(t, hit)
}

func TestResponseCache_SemanticThresholdBoundary(t *testing.T) {
	cfg := defaultCacheConfig()
	// 阈值取 1.0，可被浮点精确表示，用于钉住边界语义
	cfg.SemanticThreshold = 1.0
	c, _ := newTestResponseCache(t, cfg)

	require.NoError(t, c.Put("设备的质保政策", []float32{1, 0}, "质保两年。", nil, nil, ""))

	// 共线向量，相似度恰好等于阈值：等于即命中
	hit, sim := c.LookupSemantic([]float32{2, 0}, "")
	require.NotNil(t, hit)
	assert.Equal(t, 1.0, sim)
	assert.Equal(t, "质保两年。", hit.Response)

	// 轻微偏转，相似度略低于阈值：未命中
	hit, _ = c.LookupSemantic([]float32{1, 0.01}, "")
	assert.Nil(t, hit)
}

func TestResponseCache_SemanticBestMatchWins(t *testing.T) {
	c, _ := newTestResponseCache(t, defaultCacheConfig())

	require.NoError(t, c.Put("问题一", []float32{1, 0}, "答案一", nil, nil, ""))
	require.NoError(t, c.Put("问题二", []float32{0.97, 0.243}, "答案二", nil, nil, ""))

	// 两条都超过阈值，返回相似度更高的一条
	hit, sim := c.LookupSemantic([]float32{1, 0}, "")
	require.NotNil(t, hit)
	assert.Equal(t, "答案一", hit.Response)
	assert.InDelta(t, 1.0, sim, 0.001)
}

func TestResponseCache_SemanticScanWindowBound(t *testing.T) {
	cfg := defaultCacheConfig()
	cfg.SemanticScanWindow = 2
	c, _ := newTestResponseCache(t, cfg)

	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	clock := base
	c.now = func() time.Time { return clock }

	// 最旧的条目才是语义匹配项
	require.NoError(t, c.Put("目标问题", []float32{1, 0}, "目标答案", nil, nil, ""))
	clock = clock.Add(time.Minute)
	require.NoError(t, c.Put("无关问题一", []float32{0, 1}, "无关答案一", nil, nil, ""))
	clock = clock.Add(time.Minute)
	require.NoError(t, c.Put("无关问题二", []float32{0, 1}, "无关答案二", nil, nil, ""))

	// 窗口只有 2，目标条目落在窗口外：未命中是预期行为
	hit, _ := c.LookupSemantic([]float32{1, 0}, "")
	assert.Nil(t, hit)

	// 放大窗口后可以命中
	c.cfg.SemanticScanWindow = 10
	hit, _ = c.LookupSemantic([]float32{1, 0}, "")
	require.NotNil(t, hit)
	assert.Equal(t, "目标答案", hit.Response)
}

func TestResponseCache_TTLExpiry(t *testing.T) {
	c, _ := newTestResponseCache(t, defaultCacheConfig())

	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	clock := base
	c.now = func() time.Time { return clock }

	require.NoError(t, c.Put("会过期的问题", []float32{1, 0}, "会过期的答案", nil, nil, ""))

	// TTL 内可命中
	clock = base.Add(23 * time.Hour)
	require.NotNil(t, c.LookupExact("会过期的问题", ""))

	// 过期后精确与语义都不可命中
	clock = base.Add(24*time.Hour + time.Minute)
	assert.Nil(t, c.LookupExact("会过期的问题", ""))
	hit, _ := c.LookupSemantic([]float32{1, 0}, "")
	assert.Nil(t, hit)
}

func TestResponseCache_CleanupExpired(t *testing.T) {
	c, _ := newTestResponseCache(t, defaultCacheConfig())

	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	clock := base
	c.now = func() time.Time { return clock }

	// 3 条早写入的条目将过期，2 条后写入的保持存活
	for i := 0; i < 3; i++ {
		require.NoError(t, c.Put(fmt.Sprintf("旧问题 %d", i), []float32{1, 0}, "旧答案", nil, nil, ""))
	}
	clock = base.Add(12 * time.Hour)
	for i := 0; i < 2; i++ {
		require.NoError(t, c.Put(fmt.Sprintf("新问题 %d", i), []float32{1, 0}, "新答案", nil, nil, ""))
	}

	// 推进到只有前 3 条过期的时刻
	clock = base.Add(25 * time.Hour)
	removed, err := c.CleanupExpired()
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)

	assert.Nil(t, c.LookupExact("旧问题 0", ""))
	assert.NotNil(t, c.LookupExact("新问题 0", ""))
}

func TestResponseCache_EvictionAtCapacity(t *testing.T) {
	cfg := defaultCacheConfig()
	cfg.MaxEntries = 10
	c, db := newTestResponseCache(t, cfg)

	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	clock := base
	c.now = func() time.Time { return clock }

	// 填满容量，last_used 依次递增
	for i := 0; i < 10; i++ {
		require.NoError(t, c.Put(fmt.Sprintf("问题 %d", i), []float32{1, 0}, "答案", nil, nil, ""))
		clock = clock.Add(time.Minute)
	}

	// 第 11 条触发淘汰最旧的 10% (1 条)
	require.NoError(t, c.Put("问题 10", []float32{1, 0}, "答案", nil, nil, ""))

	var count int64
	require.NoError(t, db.Model(&model.ResponseCacheEntry{}).Count(&count).Error)
	assert.Equal(t, int64(10), count)

	// 最旧的条目被淘汰，较新的保留
	assert.Nil(t, c.LookupExact("问题 0", ""))
	assert.NotNil(t, c.LookupExact("问题 9", ""))
	assert.NotNil(t, c.LookupExact("问题 10", ""))
}

func TestResponseCache_RefreshAtCapacityDoesNotEvict(t *testing.T) {
	cfg := defaultCacheConfig()
	cfg.MaxEntries = 10
	c, db := newTestResponseCache(t, cfg)

	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	clock := base
	c.now = func() time.Time { return clock }

	for i := 0; i < 10; i++ {
		require.NoError(t, c.Put(fmt.Sprintf("问题 %d", i), []float32{1, 0}, "答案", nil, nil, ""))
		clock = clock.Add(time.Minute)
	}

	// 满容量下刷新已有查询：覆盖而非新增，不触发淘汰
	require.NoError(t, c.Put("问题 5", []float32{1, 0}, "新答案", nil, nil, ""))

	var count int64
	require.NoError(t, db.Model(&model.ResponseCacheEntry{}).Count(&count).Error)
	assert.Equal(t, int64(10), count)

	// 最旧的条目没有被误伤
	assert.NotNil(t, c.LookupExact("问题 0", ""))

	entry := c.LookupExact("问题 5", "")
	require.NotNil(t, entry)
	assert.Equal(t, "新答案", entry.Response)
}

func TestResponseCache_RecordHit(t *testing.T) {
	c, db := newTestResponseCache(t, defaultCacheConfig())

	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	clock := base
	c.now = func() time.Time { return clock }

	require.NoError(t, c.Put("热门问题", []float32{1, 0}, "答案", nil, nil, ""))
	entry := c.LookupExact("热门问题", "")
	require.NotNil(t, entry)

	clock = base.Add(time.Hour)
	c.RecordHit(entry.ID)
	c.RecordHit(entry.ID)

	var updated model.ResponseCacheEntry
	require.NoError(t, db.First(&updated, entry.ID).Error)
	assert.Equal(t, int64(2), updated.HitCount)
	assert.True(t, updated.LastUsed.After(entry.LastUsed), "命中应刷新 last_used")
}

func TestResponseCache_InvalidateByDocument(t *testing.T) {
	c, _ := newTestResponseCache(t, defaultCacheConfig())

	require.NoError(t, c.Put("问题一", []float32{1, 0}, "答案一", nil, []uint{7, 8}, ""))
	require.NoError(t, c.Put("问题二", []float32{1, 0}, "答案二", nil, []uint{7}, ""))
	require.NoError(t, c.Put("问题三", []float32{1, 0}, "答案三", nil, []uint{9}, ""))

	removed, err := c.InvalidateByDocument(7)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	assert.Nil(t, c.LookupExact("问题一", ""))
	assert.Nil(t, c.LookupExact("问题二", ""))
	assert.NotNil(t, c.LookupExact("问题三", ""))
}

func TestResponseCache_InvalidateByCatalog(t *testing.T) {
	c, _ := newTestResponseCache(t, defaultCacheConfig())

	require.NoError(t, c.Put("A 目录的问题", []float32{1, 0}, "答案", nil, nil, "A"))
	require.NoError(t, c.Put("B 目录的问题", []float32{1, 0}, "答案", nil, nil, "B"))

	removed, err := c.InvalidateByCatalog("A")
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	assert.Nil(t, c.LookupExact("A 目录的问题", "A"))
	assert.NotNil(t, c.LookupExact("B 目录的问题", "B"))
}

func TestResponseCache_ClearAll(t *testing.T) {
	c, db := newTestResponseCache(t, defaultCacheConfig())
	embCache := NewEmbeddingCache(repository.NewEmbeddingCacheRepository(db))

	require.NoError(t, c.Put("问题", []float32{1, 0}, "答案", nil, nil, ""))
	require.NoError(t, embCache.Put("某段文本", []float32{1, 2, 3}))

	responses, embeddings, err := c.ClearAll()
	require.NoError(t, err)
	assert.Equal(t, int64(1), responses)
	assert.Equal(t, int64(1), embeddings)

	assert.Nil(t, c.LookupExact("问题", ""))
	embCount, err := embCache.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(0), embCount)
}

func TestResponseCache_PutUpsertSameQuery(t *testing.T) {
	c, db := newTestResponseCache(t, defaultCacheConfig())

	require.NoError(t, c.Put("同一个问题", []float32{1, 0}, "第一版答案", nil, nil, ""))
	require.NoError(t, c.Put("同一个问题", []float32{1, 0}, "第二版答案", nil, nil, ""))

	var count int64
	require.NoError(t, db.Model(&model.ResponseCacheEntry{}).Count(&count).Error)
	assert.Equal(t, int64(1), count, "同一查询不产生重复行")

	entry := c.LookupExact("同一个问题", "")
	require.NotNil(t, entry)
	assert.Equal(t, "第二版答案", entry.Response)
}

func TestResponseCache_Stats(t *testing.T) {
	c, _ := newTestResponseCache(t, defaultCacheConfig())

	require.NoError(t, c.Put("问题", []float32{1, 0}, "答案", nil, nil, ""))

	stats, err := c.Stats()
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats["liveEntries"])
	assert.Equal(t, 1000, stats["maxEntries"])
}
