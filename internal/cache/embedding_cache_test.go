package cache

import (
	"testing"

	"doc-smart-go/internal/model"
	"doc-smart-go/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB 打开一个仅限单连接的内存 sqlite 数据库并完成建表。
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// 内存库按连接隔离，必须限制为单连接
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&model.ResponseCacheEntry{}, &model.EmbeddingCacheEntry{}))
	return db
}

func TestEmbeddingCache_PutAndGet(t *testing.T) {
	c := NewEmbeddingCache(repository.NewEmbeddingCacheRepository(newTestDB(t)))

	vector := []float32{0.1, 0.2, 0.3}
	require.NoError(t, c.Put("XK-500 的保修期", vector))

	got, ok := c.Get("XK-500 的保修期")
	require.True(t, ok)
	assert.Equal(t, vector, got)
}

func TestEmbeddingCache_MissOnUnknownText(t *testing.T) {
	c := NewEmbeddingCache(repository.NewEmbeddingCacheRepository(newTestDB(t)))

	_, ok := c.Get("从未缓存过的文本")
	assert.False(t, ok)
}

func TestEmbeddingCache_NormalizedKey(t *testing.T) {
	c := NewEmbeddingCache(repository.NewEmbeddingCacheRepository(newTestDB(t)))

	require.NoError(t, c.Put("Hello   World", []float32{1, 2}))

	// 大小写与空白差异在规范化后共享同一条目
	got, ok := c.Get("  hello world ")
	require.True(t, ok)
	assert.Equal(t, []float32{1, 2}, got)
}

func TestEmbeddingCache_UpsertIdempotent(t *testing.T) {
	c := NewEmbeddingCache(repository.NewEmbeddingCacheRepository(newTestDB(t)))

	require.NoError(t, c.Put("同一条文本", []float32{1}))
	require.NoError(t, c.Put("同一条文本", []float32{2}))
	require.NoError(t, c.Put("同一条文本", []float32{3}))

	count, err := c.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	// 覆盖语义：保留最后一次写入
	got, ok := c.Get("同一条文本")
	require.True(t, ok)
	assert.Equal(t, []float32{3}, got)
}

func TestEmbeddingCache_Clear(t *testing.T) {
	c := NewEmbeddingCache(repository.NewEmbeddingCacheRepository(newTestDB(t)))

	require.NoError(t, c.Put("文本一", []float32{1}))
	require.NoError(t, c.Put("文本二", []float32{2}))

	removed, err := c.Clear()
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	count, err := c.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}
