// Package session 实现了按用户维度的会话记忆。
package session

import (
	"regexp"
	"strings"

	"doc-smart-go/internal/model"
)

// EntityExtractor 从消息中抽取实体与偏好。
// 以接口形式提供，便于将来替换为模型驱动的抽取器而不改动会话记忆的契约。
type EntityExtractor interface {
	ExtractEntities(message string) model.MentionedEntities
	DetectPreferences(message string, current model.DetectedPreferences) model.DetectedPreferences
}

// regexExtractor 是默认的启发式正则抽取器。
type regexExtractor struct{}

// NewRegexExtractor 创建默认抽取器。
func NewRegexExtractor() EntityExtractor {
	return regexExtractor{}
}

var (
	// 设备型号：大写字母与数字的组合，如 XK-500、DMC1450、S7-1200
	machineRe = regexp.MustCompile(`\b[A-Z]{1,6}[-_]?\d{2,6}[A-Z0-9-]*\b`)
	// 型号 XXX / Model XXX 写法
	machineLabelRe = regexp.MustCompile(`(?:型号|设备|机型|[Mm]odel)[:：\s]+([A-Za-z0-9-]{2,20})`)

	topicKeywords = []string{
		"保修", "质保", "安装", "操作", "维护", "保养", "维修", "故障",
		"参数", "规格", "价格", "安全", "培训", "认证", "配件", "耗材",
		"warranty", "installation", "maintenance", "specification", "price", "safety",
	}
	categoryKeywords = []string{
		"机床", "车床", "铣床", "注塑机", "压缩机", "泵", "电机", "传感器",
		"lathe", "milling", "compressor", "pump", "motor", "sensor",
	}

	tableRe    = regexp.MustCompile(`(表格|用表|做成表|in a table|as a table)`)
	listRe     = regexp.MustCompile(`(列表|分点|逐条|bullet|as a list|list form)`)
	advancedRe = regexp.MustCompile(`(技术细节|专业|详细参数|深入|technical detail|in depth)`)
	basicRe    = regexp.MustCompile(`(通俗|简单点|大白话|入门|不懂|simple terms|beginner)`)
)

// ExtractEntities 通过模式匹配抽取设备型号、主题词与设备类别。
func (regexExtractor) ExtractEntities(message string) model.MentionedEntities {
	var ents model.MentionedEntities

	for _, m := range machineRe.FindAllString(message, -1) {
		ents.Machines = appendUnique(ents.Machines, m)
	}
	for _, m := range machineLabelRe.FindAllStringSubmatch(message, -1) {
		ents.Machines = appendUnique(ents.Machines, m[1])
	}

	lower := strings.ToLower(message)
	for _, kw := range topicKeywords {
		if strings.Contains(lower, kw) {
			ents.Topics = appendUnique(ents.Topics, kw)
		}
	}
	for _, kw := range categoryKeywords {
		if strings.Contains(lower, kw) {
			ents.Categories = appendUnique(ents.Categories, kw)
		}
	}
	return ents
}

// DetectPreferences 从消息中推断回答格式与技术层级偏好。
// 偏好只累积更新：一次表达过的偏好在后续消息中保留。
func (regexExtractor) DetectPreferences(message string, current model.DetectedPreferences) model.DetectedPreferences {
	lower := strings.ToLower(message)
	if tableRe.MatchString(lower) {
		current.PrefersTables = true
	}
	if listRe.MatchString(lower) {
		current.PrefersLists = true
	}
	if advancedRe.MatchString(lower) {
		current.TechnicalLevel = "advanced"
	} else if basicRe.MatchString(lower) {
		current.TechnicalLevel = "basic"
	}
	return current
}

func appendUnique(list []string, item string) []string {
	for _, existing := range list {
		if existing == item {
			return list
		}
	}
	return append(list, item)
}
