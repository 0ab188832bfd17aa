package repository

import (
	"errors"
	"time"

	"doc-smart-go/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ResponseCacheRepository 定义了对 response_cache 表的数据操作接口。
// 过期语义由查询条件保证：所有读取只返回 expires_at > now 的存活条目。
type ResponseCacheRepository interface {
	FindLiveByHash(queryHash, catalogID string, now time.Time) (*model.ResponseCacheEntry, error)
	// ExistsByHash 判断某查询哈希是否已有条目（不论是否过期，upsert 按哈希覆盖）。
	ExistsByHash(queryHash string) (bool, error)
	// FindRecentLive 返回范围内最近使用的 limit 条存活条目，last_used 降序。
	FindRecentLive(catalogID string, limit int, now time.Time) ([]*model.ResponseCacheEntry, error)
	// IncrementHit 原子递增 hit_count 并刷新 last_used。
	IncrementHit(id uint, now time.Time) error
	Upsert(entry *model.ResponseCacheEntry) error
	CountLive(now time.Time) (int64, error)
	// EvictOldest 按 last_used 升序淘汰 n 条最旧的条目，返回淘汰数。
	EvictOldest(n int) (int64, error)
	FindAll() ([]*model.ResponseCacheEntry, error)
	DeleteByIDs(ids []uint) (int64, error)
	DeleteByCatalog(catalogID string) (int64, error)
	DeleteAll() (int64, error)
	DeleteExpired(now time.Time) (int64, error)
}

type responseCacheRepository struct {
	db *gorm.DB
}

// NewResponseCacheRepository 创建一个新的 ResponseCacheRepository 实例。
func NewResponseCacheRepository(db *gorm.DB) ResponseCacheRepository {
	return &responseCacheRepository{db: db}
}

// FindLiveByHash 按 (query_hash, catalog_id) 查找存活条目，未命中返回 nil。
func (r *responseCacheRepository) FindLiveByHash(queryHash, catalogID string, now time.Time) (*model.ResponseCacheEntry, error) {
	var entry model.ResponseCacheEntry
	err := r.db.Where("query_hash = ? AND catalog_id = ? AND expires_at > ?", queryHash, catalogID, now).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// ExistsByHash 按 query_hash 统计是否已有条目。
func (r *responseCacheRepository) ExistsByHash(queryHash string) (bool, error) {
	var n int64
	err := r.db.Model(&model.ResponseCacheEntry{}).Where("query_hash = ?", queryHash).Count(&n).Error
	return n > 0, err
}

// FindRecentLive 返回语义扫描窗口内的条目。
func (r *responseCacheRepository) FindRecentLive(catalogID string, limit int, now time.Time) ([]*model.ResponseCacheEntry, error) {
	var entries []*model.ResponseCacheEntry
	err := r.db.Where("catalog_id = ? AND expires_at > ?", catalogID, now).
		Order("last_used desc").Limit(limit).Find(&entries).Error
	return entries, err
}

// IncrementHit 原子递增命中计数并刷新最近使用时间。
func (r *responseCacheRepository) IncrementHit(id uint, now time.Time) error {
	return r.db.Model(&model.ResponseCacheEntry{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"hit_count": gorm.Expr("hit_count + 1"),
			"last_used": now,
		}).Error
}

// Upsert 按 query_hash 插入或整体覆盖。并发写同一查询时后写者胜出，不产生重复行。
func (r *responseCacheRepository) Upsert(entry *model.ResponseCacheEntry) error {
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "query_hash"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"query_text", "query_embedding", "response", "sources",
			"document_ids", "catalog_id", "last_used", "expires_at",
		}),
	}).Create(entry).Error
}

// CountLive 统计存活条目数。
func (r *responseCacheRepository) CountLive(now time.Time) (int64, error) {
	var n int64
	err := r.db.Model(&model.ResponseCacheEntry{}).Where("expires_at > ?", now).Count(&n).Error
	return n, err
}

// EvictOldest 近似 LRU 淘汰：选出 last_used 最旧的 n 条后按主键删除。
// 先选再删以保持跨方言可移植（DELETE ... ORDER BY ... LIMIT 并非各方言都支持）。
func (r *responseCacheRepository) EvictOldest(n int) (int64, error) {
	if n <= 0 {
		return 0, nil
	}
	var ids []uint
	if err := r.db.Model(&model.ResponseCacheEntry{}).
		Order("last_used asc").Limit(n).Pluck("id", &ids).Error; err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	return r.DeleteByIDs(ids)
}

// FindAll 返回全部条目，按文档失效时在内存中过滤使用。
func (r *responseCacheRepository) FindAll() ([]*model.ResponseCacheEntry, error) {
	var entries []*model.ResponseCacheEntry
	err := r.db.Find(&entries).Error
	return entries, err
}

// DeleteByIDs 按主键批量删除，返回删除数。
func (r *responseCacheRepository) DeleteByIDs(ids []uint) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.Where("id IN ?", ids).Delete(&model.ResponseCacheEntry{})
	return res.RowsAffected, res.Error
}

// DeleteByCatalog 删除指定目录范围的全部条目。
func (r *responseCacheRepository) DeleteByCatalog(catalogID string) (int64, error) {
	res := r.db.Where("catalog_id = ?", catalogID).Delete(&model.ResponseCacheEntry{})
	return res.RowsAffected, res.Error
}

// DeleteAll 清空响应缓存，返回删除数。
func (r *responseCacheRepository) DeleteAll() (int64, error) {
	res := r.db.Where("1 = 1").Delete(&model.ResponseCacheEntry{})
	return res.RowsAffected, res.Error
}

// DeleteExpired 删除全部已过期条目，返回删除数。
func (r *responseCacheRepository) DeleteExpired(now time.Time) (int64, error) {
	res := r.db.Where("expires_at < ?", now).Delete(&model.ResponseCacheEntry{})
	return res.RowsAffected, res.Error
}
