package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// DocumentLocker 提供按文档粒度的咨询锁，用于串行化同一文档的重建索引。
// 锁带 TTL，持有者崩溃后自动释放。
type DocumentLocker interface {
	// TryLock 尝试获取锁，已被占用时返回 false。
	TryLock(ctx context.Context, documentID uint, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, documentID uint) error
}

type redisDocumentLocker struct {
	redisClient *redis.Client
}

// NewDocumentLocker 创建基于 Redis SETNX 的文档锁。
func NewDocumentLocker(redisClient *redis.Client) DocumentLocker {
	return &redisDocumentLocker{redisClient: redisClient}
}

func lockKey(documentID uint) string {
	return fmt.Sprintf("document:%d:reindex_lock", documentID)
}

// TryLock 用 SETNX 抢占锁。
func (l *redisDocumentLocker) TryLock(ctx context.Context, documentID uint, ttl time.Duration) (bool, error) {
	ok, err := l.redisClient.SetNX(ctx, lockKey(documentID), 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire document lock: %w", err)
	}
	return ok, nil
}

// Unlock 释放锁。
func (l *redisDocumentLocker) Unlock(ctx context.Context, documentID uint) error {
	if err := l.redisClient.Del(ctx, lockKey(documentID)).Err(); err != nil {
		return fmt.Errorf("failed to release document lock: %w", err)
	}
	return nil
}
