package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"doc-smart-go/internal/config"
	"doc-smart-go/internal/model"
	"doc-smart-go/internal/repository"
	"doc-smart-go/pkg/log"
	"doc-smart-go/pkg/textutil"
)

// Memory 维护按用户隔离的会话上下文：提到过的实体、已提供的信息、回答偏好。
// 上下文读写失败不阻断对话，退化为无记忆的单轮问答。
type Memory struct {
	repo      repository.SessionRepository
	extractor EntityExtractor
	cfg       config.SessionConfig
}

// NewMemory 创建会话记忆。
func NewMemory(repo repository.SessionRepository, extractor EntityExtractor, cfg config.SessionConfig) *Memory {
	return &Memory{repo: repo, extractor: extractor, cfg: cfg}
}

// ProcessMessageContext 用新消息更新会话上下文并返回注入提示词的指令块。
// 每条消息都会累计计数、合并实体、更新偏好与滚动摘要。
func (m *Memory) ProcessMessageContext(ctx context.Context, userID uint, message string) string {
	sc, err := m.repo.Get(ctx, userID)
	if err != nil {
		log.Warnf("[SessionMemory] 读取会话上下文失败 (userId=%d), 按新会话处理: %v", userID, err)
		sc = nil
	}
	if sc == nil {
		sc = &model.SessionContext{UserID: userID}
	}

	sc.MessageCount++
	sc.LastUpdated = time.Now()

	extracted := m.extractor.ExtractEntities(message)
	sc.Entities.Machines = mergeBounded(sc.Entities.Machines, extracted.Machines, m.cfg.MaxMachines)
	sc.Entities.Topics = mergeBounded(sc.Entities.Topics, extracted.Topics, m.cfg.MaxTopics)
	sc.Entities.Categories = mergeBounded(sc.Entities.Categories, extracted.Categories, m.cfg.MaxCategories)
	sc.Preferences = m.extractor.DetectPreferences(message, sc.Preferences)
	sc.ContextSummary = m.buildSummary(sc)

	if err := m.repo.Save(ctx, sc); err != nil {
		log.Warnf("[SessionMemory] 保存会话上下文失败 (userId=%d): %v", userID, err)
	}
	return m.buildInstructions(sc)
}

// RecordProvidedInfo 记录一条已向用户提供过的信息摘要。
func (m *Memory) RecordProvidedInfo(ctx context.Context, userID uint, info string) {
	sc, err := m.repo.Get(ctx, userID)
	if err != nil || sc == nil {
		if err != nil {
			log.Warnf("[SessionMemory] 读取会话上下文失败 (userId=%d): %v", userID, err)
		}
		return
	}
	normalized := textutil.Normalize(info)
	if normalized == "" {
		return
	}
	for _, existing := range sc.ProvidedInfo {
		if existing == normalized {
			return
		}
	}
	sc.ProvidedInfo = append(sc.ProvidedInfo, normalized)
	if len(sc.ProvidedInfo) > m.cfg.MaxProvidedInfo {
		sc.ProvidedInfo = sc.ProvidedInfo[len(sc.ProvidedInfo)-m.cfg.MaxProvidedInfo:]
	}
	sc.LastUpdated = time.Now()
	if err := m.repo.Save(ctx, sc); err != nil {
		log.Warnf("[SessionMemory] 保存会话上下文失败 (userId=%d): %v", userID, err)
	}
}

// IsInfoAlreadyProvided 判断某条信息是否在本会话中提供过（按规范化文本精确比对）。
func (m *Memory) IsInfoAlreadyProvided(ctx context.Context, userID uint, info string) bool {
	sc, err := m.repo.Get(ctx, userID)
	if err != nil || sc == nil {
		return false
	}
	normalized := textutil.Normalize(info)
	for _, existing := range sc.ProvidedInfo {
		if existing == normalized {
			return true
		}
	}
	return false
}

// ClearSession 清空用户的会话上下文。
func (m *Memory) ClearSession(ctx context.Context, userID uint) error {
	if err := m.repo.Delete(ctx, userID); err != nil {
		return err
	}
	log.Infof("[SessionMemory] 已清空会话上下文 (userId=%d)", userID)
	return nil
}

// buildSummary 生成滚动上下文摘要，覆盖式重建而非追加。
func (m *Memory) buildSummary(sc *model.SessionContext) string {
	var parts []string
	if len(sc.Entities.Machines) > 0 {
		parts = append(parts, "提到的设备: "+strings.Join(sc.Entities.Machines, "、"))
	}
	if len(sc.Entities.Topics) > 0 {
		parts = append(parts, "关注的主题: "+strings.Join(sc.Entities.Topics, "、"))
	}
	if len(sc.Entities.Categories) > 0 {
		parts = append(parts, "涉及的品类: "+strings.Join(sc.Entities.Categories, "、"))
	}
	if len(parts) == 0 {
		return ""
	}
	return fmt.Sprintf("本会话已进行 %d 轮。%s", sc.MessageCount, strings.Join(parts, "；"))
}

// buildInstructions 生成注入系统提示词的会话指令块。
// 超过两轮后追加"不要重复已提供信息"的指令。
func (m *Memory) buildInstructions(sc *model.SessionContext) string {
	var b strings.Builder
	if sc.ContextSummary != "" {
		b.WriteString("会话背景: ")
		b.WriteString(sc.ContextSummary)
		b.WriteString("\n")
	}
	if sc.Preferences.PrefersTables {
		b.WriteString("用户偏好用表格呈现答案。\n")
	}
	if sc.Preferences.PrefersLists {
		b.WriteString("用户偏好分点列表呈现答案。\n")
	}
	switch sc.Preferences.TechnicalLevel {
	case "advanced":
		b.WriteString("用户具备专业背景，可给出技术细节。\n")
	case "basic":
		b.WriteString("用户偏好通俗表达，避免过多术语。\n")
	}
	if sc.MessageCount > 2 {
		b.WriteString("除非用户明确要求，不要原样重复本会话早前已提供过的信息。\n")
		if len(sc.ProvidedInfo) > 0 {
			b.WriteString("已提供过的信息: ")
			b.WriteString(strings.Join(tail(sc.ProvidedInfo, 5), "；"))
			b.WriteString("\n")
		}
	}
	return b.String()
}

// mergeBounded 合并去重并保留最近的 max 条。
func mergeBounded(existing, incoming []string, max int) []string {
	merged := existing
	for _, item := range incoming {
		merged = appendUnique(merged, item)
	}
	if max > 0 && len(merged) > max {
		merged = merged[len(merged)-max:]
	}
	return merged
}

func tail(list []string, n int) []string {
	if len(list) <= n {
		return list
	}
	return list[len(list)-n:]
}
