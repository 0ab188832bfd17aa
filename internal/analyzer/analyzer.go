// Package analyzer 实现了查询路由分析器。
// Analyze 是无状态纯函数：相同输入永远产生相同输出。
package analyzer

import (
	"regexp"
	"strings"

	"doc-smart-go/pkg/textutil"
)

// QueryType 是问题的分类结果。
type QueryType string

const (
	TypeGreeting       QueryType = "greeting"
	TypeFactual        QueryType = "factual"
	TypeAggregation    QueryType = "aggregation"
	TypeExploratory    QueryType = "exploratory"
	TypeComparative    QueryType = "comparative"
	TypeRecommendation QueryType = "recommendation"
	TypeCount          QueryType = "count"
)

// Result 是分析结果，决定下游的检索参数。
type Result struct {
	Type QueryType
	// ContextSize 是检索返回的分块数上限。
	ContextSize int
	// NeedsMultiQuery 为 true 时按 SuggestedQueries 扇出多路检索再合并。
	NeedsMultiQuery bool
	// IsCountQuery 为 true 时额外拉取语料库统计信息作为辅助上下文。
	IsCountQuery bool
	// SuggestedQueries 是多路检索的改写查询（含原查询）。
	SuggestedQueries []string
	// Categories 是问题中识别出的主题类别。
	Categories []string
}

var (
	greetingRe  = regexp.MustCompile(`^(你好|您好|嗨|哈喽|早上好|下午好|晚上好|hi|hello|hey|谢谢|多谢|thanks|thank you)[!！。.～~\s]*$`)
	countRe     = regexp.MustCompile(`(多少|几个|几种|几台|数量|总共|一共|how many|count of|number of)`)
	compareRe   = regexp.MustCompile(`(对比|比较|区别|差异|差别|哪个更|孰优|versus|\bvs\b|compare|difference between)`)
	recommendRe = regexp.MustCompile(`(推荐|建议|适合|选哪|选择什么|值得|recommend|suggest|best for|which should)`)
	aggregateRe = regexp.MustCompile(`(所有|全部|列出|罗列|汇总|总结|盘点|清单|list all|summarize|all of|every)`)
	exploreRe   = regexp.MustCompile(`(介绍|了解|概况|概述|讲讲|说说|科普|overview|introduce|tell me about|explain)`)

	categoryPatterns = []struct {
		name string
		re   *regexp.Regexp
	}{
		{"specs", regexp.MustCompile(`(参数|规格|配置|尺寸|功率|spec|dimension|power)`)},
		{"warranty", regexp.MustCompile(`(保修|质保|售后|warranty|guarantee)`)},
		{"price", regexp.MustCompile(`(价格|报价|费用|多少钱|price|cost)`)},
		{"maintenance", regexp.MustCompile(`(维护|保养|维修|故障|检修|maintenance|repair|troubleshoot)`)},
		{"safety", regexp.MustCompile(`(安全|防护|事故|警告|safety|hazard|warning)`)},
		{"operation", regexp.MustCompile(`(操作|使用|安装|启动|运行|operate|install|usage|how to use)`)},
	}
)

// Analyze 对问题分类并选定检索参数。
func Analyze(question string) Result {
	q := strings.ToLower(strings.TrimSpace(question))

	res := Result{
		Type:        TypeFactual,
		ContextSize: 5,
	}
	if q == "" || greetingRe.MatchString(q) {
		res.Type = TypeGreeting
		res.ContextSize = 0
		return res
	}

	res.Categories = detectCategories(q)

	switch {
	case countRe.MatchString(q):
		res.Type = TypeCount
		res.IsCountQuery = true
		res.ContextSize = 8
	case compareRe.MatchString(q):
		res.Type = TypeComparative
		res.ContextSize = 12
		res.NeedsMultiQuery = true
	case recommendRe.MatchString(q):
		res.Type = TypeRecommendation
		res.ContextSize = 12
	case aggregateRe.MatchString(q):
		res.Type = TypeAggregation
		res.ContextSize = 12
		res.NeedsMultiQuery = true
	case exploreRe.MatchString(q):
		res.Type = TypeExploratory
		res.ContextSize = 12
		res.NeedsMultiQuery = true
	}

	if res.NeedsMultiQuery {
		res.SuggestedQueries = suggestQueries(question, res.Categories)
	}
	return res
}

// suggestQueries 为扇出检索生成至多 3 条确定性的改写查询。
func suggestQueries(question string, categories []string) []string {
	queries := []string{question}

	core := textutil.Normalize(question)
	if core != "" && core != strings.ToLower(strings.TrimSpace(question)) {
		queries = append(queries, core)
	}

	// 按识别出的首个类别补充一条聚焦改写
	if len(categories) > 0 && len(queries) < 3 {
		var focus string
		switch categories[0] {
		case "specs":
			focus = core + " 技术参数 规格"
		case "warranty":
			focus = core + " 保修期 售后政策"
		case "price":
			focus = core + " 价格 报价"
		case "maintenance":
			focus = core + " 维护 保养"
		case "safety":
			focus = core + " 安全 注意事项"
		case "operation":
			focus = core + " 操作 使用说明"
		}
		if focus != "" {
			queries = append(queries, focus)
		}
	}

	if len(queries) > 3 {
		queries = queries[:3]
	}
	return queries
}

func detectCategories(q string) []string {
	var cats []string
	for _, cp := range categoryPatterns {
		if cp.re.MatchString(q) {
			cats = append(cats, cp.name)
		}
	}
	return cats
}
