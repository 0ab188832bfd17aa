package session

import (
	"context"
	"testing"
	"time"

	"doc-smart-go/internal/config"
	"doc-smart-go/internal/repository"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestMemory 连接本地 Redis，不可用时跳过测试。
func newTestMemory(t *testing.T) (*Memory, func()) {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379", DB: 15})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis 不可用，跳过: %v", err)
	}

	m := NewMemory(repository.NewSessionRepository(rdb), NewRegexExtractor(), config.SessionConfig{
		MaxMachines:     3,
		MaxTopics:       3,
		MaxCategories:   2,
		MaxProvidedInfo: 5,
	})
	cleanup := func() { _ = rdb.Close() }
	return m, cleanup
}

func TestMemory_ProcessMessageContextAccumulates(t *testing.T) {
	m, cleanup := newTestMemory(t)
	defer cleanup()
	ctx := context.Background()
	const userID = 90001
	require.NoError(t, m.ClearSession(ctx, userID))
	defer m.ClearSession(ctx, userID)

	m.ProcessMessageContext(ctx, userID, "XK-500 的保修期多久")
	instructions := m.ProcessMessageContext(ctx, userID, "用表格对比 XK-500 和 HT-300")

	// 上下文摘要包含累积的实体
	assert.Contains(t, instructions, "XK-500")
	assert.Contains(t, instructions, "HT-300")
	assert.Contains(t, instructions, "表格")
}

func TestMemory_EntityListBounded(t *testing.T) {
	m, cleanup := newTestMemory(t)
	defer cleanup()
	ctx := context.Background()
	const userID = 90002
	require.NoError(t, m.ClearSession(ctx, userID))
	defer m.ClearSession(ctx, userID)

	// MaxMachines 为 3，提到 5 个型号后只保留最近 3 个
	m.ProcessMessageContext(ctx, userID, "介绍 AA-100")
	m.ProcessMessageContext(ctx, userID, "介绍 BB-200")
	m.ProcessMessageContext(ctx, userID, "介绍 CC-300")
	m.ProcessMessageContext(ctx, userID, "介绍 DD-400")
	instructions := m.ProcessMessageContext(ctx, userID, "介绍 EE-500")

	assert.NotContains(t, instructions, "AA-100")
	assert.NotContains(t, instructions, "BB-200")
	assert.Contains(t, instructions, "CC-300")
	assert.Contains(t, instructions, "DD-400")
	assert.Contains(t, instructions, "EE-500")
}

func TestMemory_ProvidedInfoRoundTrip(t *testing.T) {
	m, cleanup := newTestMemory(t)
	defer cleanup()
	ctx := context.Background()
	const userID = 90003
	require.NoError(t, m.ClearSession(ctx, userID))
	defer m.ClearSession(ctx, userID)

	m.ProcessMessageContext(ctx, userID, "XK-500 的保修期多久")
	m.RecordProvidedInfo(ctx, userID, "XK-500 保修期为两年")

	assert.True(t, m.IsInfoAlreadyProvided(ctx, userID, "XK-500 保修期为两年"))
	// 规范化比对：大小写与空白差异不影响判断
	assert.True(t, m.IsInfoAlreadyProvided(ctx, userID, "  XK-500 保修期为两年 "))
	assert.False(t, m.IsInfoAlreadyProvided(ctx, userID, "HT-300 保修期为三年"))
}

func TestMemory_NoRepeatDirectiveAfterTwoMessages(t *testing.T) {
	m, cleanup := newTestMemory(t)
	defer cleanup()
	ctx := context.Background()
	const userID = 90004
	require.NoError(t, m.ClearSession(ctx, userID))
	defer m.ClearSession(ctx, userID)

	m.ProcessMessageContext(ctx, userID, "XK-500 的保修期")
	m.RecordProvidedInfo(ctx, userID, "保修期两年")
	second := m.ProcessMessageContext(ctx, userID, "它的价格呢")
	// 第二条消息还不附加去重指令
	assert.NotContains(t, second, "已提供过")

	third := m.ProcessMessageContext(ctx, userID, "维护周期是多久")
	assert.Contains(t, third, "已提供过")
	assert.Contains(t, third, "保修期两年")
}

func TestMemory_NoRepeatDirectiveWithoutRecordedInfo(t *testing.T) {
	m, cleanup := newTestMemory(t)
	defer cleanup()
	ctx := context.Background()
	const userID = 90006
	require.NoError(t, m.ClearSession(ctx, userID))
	defer m.ClearSession(ctx, userID)

	// 没有记录过任何已提供信息，去重指令仍按消息轮数出现
	m.ProcessMessageContext(ctx, userID, "XK-500 的保修期")
	m.ProcessMessageContext(ctx, userID, "它的价格呢")
	third := m.ProcessMessageContext(ctx, userID, "维护周期是多久")

	assert.Contains(t, third, "不要原样重复")
	assert.NotContains(t, third, "已提供过的信息:")
}

func TestMemory_ClearSession(t *testing.T) {
	m, cleanup := newTestMemory(t)
	defer cleanup()
	ctx := context.Background()
	const userID = 90005

	m.ProcessMessageContext(ctx, userID, "XK-500 的保修期多久")
	require.NoError(t, m.ClearSession(ctx, userID))

	// 清空后如同新会话，无任何累积上下文
	instructions := m.ProcessMessageContext(ctx, userID, "价格多少")
	assert.NotContains(t, instructions, "XK-500")
	_ = m.ClearSession(ctx, userID)
}
