package database

import (
	"context"

	"doc-smart-go/pkg/log"

	"github.com/go-redis/redis/v8"
)

// OpenRedis 建立 Redis 客户端连接并返回实例。
func OpenRedis(addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// 测试连接
	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	log.Info("Redis client connected successfully")
	return rdb, nil
}
