package model

import "time"

// MentionedEntities 记录会话中提到过的实体，按最近优先保留有界列表。
type MentionedEntities struct {
	Machines   []string `json:"machines"`
	Topics     []string `json:"topics"`
	Categories []string `json:"categories"`
}

// DetectedPreferences 记录从消息中推断出的回答格式偏好。
type DetectedPreferences struct {
	PrefersTables  bool   `json:"prefersTables"`
	PrefersLists   bool   `json:"prefersLists"`
	TechnicalLevel string `json:"technicalLevel"` // basic / intermediate / advanced
}

// SessionContext 是单个用户的会话记忆，以 JSON 形式存于 Redis。
// 首条消息时惰性创建，对话归档或清空上下文时整体删除。
type SessionContext struct {
	UserID         uint                `json:"userId"`
	ContextSummary string              `json:"contextSummary"`
	Entities       MentionedEntities   `json:"mentionedEntities"`
	ProvidedInfo   []string            `json:"providedInfo"` // 规范化后的信息摘要，按集合语义使用，保留最近 100 条
	Preferences    DetectedPreferences `json:"detectedPreferences"`
	MessageCount   int                 `json:"messageCount"`
	LastUpdated    time.Time           `json:"lastUpdated"`
}
