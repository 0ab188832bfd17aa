package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"doc-smart-go/internal/model"

	"github.com/go-redis/redis/v8"
)

// SessionRepository 定义了会话上下文的存取接口。
// 会话不设 TTL，只能通过 Delete 显式清除（对话归档时调用）。
type SessionRepository interface {
	Get(ctx context.Context, userID uint) (*model.SessionContext, error)
	Save(ctx context.Context, session *model.SessionContext) error
	Delete(ctx context.Context, userID uint) error
}

type redisSessionRepository struct {
	redisClient *redis.Client
}

// NewSessionRepository 创建一个新的 SessionRepository 实例。
func NewSessionRepository(redisClient *redis.Client) SessionRepository {
	return &redisSessionRepository{redisClient: redisClient}
}

func sessionKey(userID uint) string {
	return fmt.Sprintf("session:%d:context", userID)
}

// Get 从 Redis 获取会话上下文，不存在时返回 nil。
func (r *redisSessionRepository) Get(ctx context.Context, userID uint) (*model.SessionContext, error) {
	jsonData, err := r.redisClient.Get(ctx, sessionKey(userID)).Result()
	if err == redis.Nil {
		return nil, nil // 尚未建立会话
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session context: %w", err)
	}
	var session model.SessionContext
	if err := json.Unmarshal([]byte(jsonData), &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session context: %w", err)
	}
	return &session, nil
}

// Save 将会话上下文整体写入 Redis。
func (r *redisSessionRepository) Save(ctx context.Context, session *model.SessionContext) error {
	jsonData, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session context: %w", err)
	}
	if err := r.redisClient.Set(ctx, sessionKey(session.UserID), jsonData, 0).Err(); err != nil {
		return fmt.Errorf("failed to set session context: %w", err)
	}
	return nil
}

// Delete 删除会话上下文记录。
func (r *redisSessionRepository) Delete(ctx context.Context, userID uint) error {
	if err := r.redisClient.Del(ctx, sessionKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to delete session context: %w", err)
	}
	return nil
}
