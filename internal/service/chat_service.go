package service

import (
	"context"
	"fmt"
	"strings"

	"doc-smart-go/internal/analyzer"
	"doc-smart-go/internal/config"
	"doc-smart-go/internal/errs"
	"doc-smart-go/internal/model"
	"doc-smart-go/pkg/embedding"
	"doc-smart-go/pkg/llm"
	"doc-smart-go/pkg/log"
	"doc-smart-go/pkg/notify"
	"doc-smart-go/pkg/textutil"
)

// 生成层的默认文案，可被配置覆盖。
const (
	defaultRules = `你是一个基于企业文档知识库的智能问答助手。严格依据参考资料回答问题，不要编造资料中不存在的信息。
回答使用中文，条理清晰。引用资料时不需要标注出处编号。`
	defaultRefStart     = "【参考资料开始】"
	defaultRefEnd       = "【参考资料结束】"
	defaultNoResultText = "抱歉，知识库中没有找到与您问题相关的资料。您可以换个问法，或确认相关文档是否已上传。"
	defaultGreetingText = "您好！我是文档智能问答助手，可以根据已上传的文档回答您的问题。请问有什么可以帮您？"
	// 备用模型回答时附加的提示前缀
	fallbackMarker = "（备用模型回答）"
)

// ResponseCacheReader 是编排层依赖的响应缓存操作。
type ResponseCacheReader interface {
	LookupExact(query, catalogID string) *model.ResponseCacheEntry
	LookupSemantic(queryEmbedding []float32, catalogID string) (*model.ResponseCacheEntry, float64)
	RecordHit(entryID uint)
	Put(query string, queryEmbedding []float32, response string, sources []model.Source, documentIDs []uint, catalogID string) error
}

// SessionContextProvider 是编排层依赖的会话记忆操作。
type SessionContextProvider interface {
	ProcessMessageContext(ctx context.Context, userID uint, message string) string
	RecordProvidedInfo(ctx context.Context, userID uint, info string)
}

// ResultReranker 对检索结果重排。
type ResultReranker interface {
	Rerank(ctx context.Context, query string, results []model.SearchResult) ([]model.SearchResult, error)
}

// ChatService 接口定义了问答编排操作。
type ChatService interface {
	Ask(ctx context.Context, userID uint, question, catalogID string) (*model.ChatAnswer, error)
}

// chatService 按固定顺序编排问答管线：
// 会话上下文、查询分析、精确缓存、语义缓存、检索、生成、缓存写入。
type chatService struct {
	searchService SearchService
	respCache     ResponseCacheReader
	sessionMemory SessionContextProvider
	reranker      ResultReranker
	embedder      embedding.Client
	primary       llm.Client
	fallback      llm.Client
	notifier      notify.Notifier
	promptCfg     config.LLMPromptConfig
}

// NewChatService 创建问答编排服务。fallback 与 reranker 允许为 nil。
func NewChatService(
	searchService SearchService,
	respCache ResponseCacheReader,
	sessionMemory SessionContextProvider,
	reranker ResultReranker,
	embedder embedding.Client,
	primary llm.Client,
	fallback llm.Client,
	notifier notify.Notifier,
	promptCfg config.LLMPromptConfig,
) ChatService {
	return &chatService{
		searchService: searchService,
		respCache:     respCache,
		sessionMemory: sessionMemory,
		reranker:      reranker,
		embedder:      embedder,
		primary:       primary,
		fallback:      fallback,
		notifier:      notifier,
		promptCfg:     promptCfg,
	}
}

// Ask 执行一轮完整问答。
func (s *chatService) Ask(ctx context.Context, userID uint, question, catalogID string) (*model.ChatAnswer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("%w: 问题不能为空", errs.ErrInvalidInput)
	}
	log.Infof("[ChatService] 收到提问 (userId=%d, catalog='%s'): %s", userID, catalogID, textutil.TruncateRunes(question, 100))

	// 1. 更新会话上下文并取得注入指令
	sessionInstructions := s.sessionMemory.ProcessMessageContext(ctx, userID, question)

	// 2. 查询分析
	analysis := analyzer.Analyze(question)
	log.Infof("[ChatService] 步骤1: 查询分析完成, type=%s, contextSize=%d, multiQuery=%v", analysis.Type, analysis.ContextSize, analysis.NeedsMultiQuery)

	// 寒暄不走检索与缓存
	if analysis.Type == analyzer.TypeGreeting {
		return &model.ChatAnswer{Answer: defaultGreetingText}, nil
	}

	// 3. 精确缓存：规范化哈希查找，先于语义缓存
	if entry := s.respCache.LookupExact(question, catalogID); entry != nil {
		log.Infof("[ChatService] 步骤2: 精确缓存命中 (entryId=%d)", entry.ID)
		s.respCache.RecordHit(entry.ID)
		return &model.ChatAnswer{
			Answer:    entry.Response,
			Sources:   entry.Sources,
			FromCache: true,
			CacheType: "exact",
		}, nil
	}

	// 4. 向量化问题（同时用于语义缓存与检索）
	queryVector, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("向量化问题失败: %w", err)
	}

	// 5. 语义缓存：最近窗口内的相似问题
	if entry, sim := s.respCache.LookupSemantic(queryVector, catalogID); entry != nil {
		log.Infof("[ChatService] 步骤2: 语义缓存命中 (entryId=%d, 相似度=%.4f)", entry.ID, sim)
		s.respCache.RecordHit(entry.ID)
		return &model.ChatAnswer{
			Answer:    entry.Response,
			Sources:   entry.Sources,
			FromCache: true,
			CacheType: "semantic",
		}, nil
	}

	// 6. 检索
	results, err := s.retrieve(ctx, question, catalogID, analysis)
	if err != nil {
		return nil, err
	}
	log.Infof("[ChatService] 步骤3: 检索完成, 命中 %d 条分块", len(results))

	// 推荐类问题做一次重排提升上下文质量
	if analysis.Type == analyzer.TypeRecommendation && s.reranker != nil && len(results) > 1 {
		if reranked, err := s.reranker.Rerank(ctx, question, results); err == nil {
			results = reranked
		}
	}

	// 7. 无资料：返回固定话术，不入缓存（语料变化后答案可能不同）
	if len(results) == 0 && !analysis.IsCountQuery {
		return &model.ChatAnswer{Answer: s.noResultText()}, nil
	}

	// 统计类问题附加语料库统计信息
	var stats *model.CorpusStats
	if analysis.IsCountQuery {
		cs, err := s.searchService.Stats(ctx, catalogID)
		if err != nil {
			log.Warnf("[ChatService] 获取语料库统计失败: %v", err)
		} else {
			stats = &cs
		}
	}

	// 8. 生成
	messages := s.buildMessages(question, results, stats, sessionInstructions)
	answer, usedFallback, err := s.complete(ctx, messages)
	if err != nil {
		return nil, err
	}
	log.Infof("[ChatService] 步骤4: 回答生成完成 (usedFallback=%v, 长度=%d)", usedFallback, len([]rune(answer)))

	sources := buildSources(results)
	documentIDs := uniqueDocumentIDs(results)

	// 9. 写入缓存并记录已提供信息。只有基于资料的确定性回答才值得缓存。
	if len(results) > 0 {
		if err := s.respCache.Put(question, queryVector, answer, sources, documentIDs, catalogID); err != nil {
			log.Warnf("[ChatService] 写入响应缓存失败: %v", err)
		}
	}
	s.sessionMemory.RecordProvidedInfo(ctx, userID, textutil.TruncateRunes(answer, 200))

	return &model.ChatAnswer{
		Answer:       answer,
		Sources:      sources,
		UsedFallback: usedFallback,
	}, nil
}

// retrieve 按分析结果选择单路或多路检索。
func (s *chatService) retrieve(ctx context.Context, question, catalogID string, analysis analyzer.Result) ([]model.SearchResult, error) {
	if analysis.NeedsMultiQuery && len(analysis.SuggestedQueries) > 1 {
		return s.searchService.MultiSearch(ctx, analysis.SuggestedQueries, analysis.ContextSize, catalogID)
	}
	return s.searchService.HybridSearch(ctx, question, analysis.ContextSize, catalogID)
}

// complete 先调用主模型，失败后切换备用模型，两者都失败时发送服务异常事件。
func (s *chatService) complete(ctx context.Context, messages []llm.Message) (string, bool, error) {
	answer, err := s.primary.Complete(ctx, messages, nil)
	if err == nil {
		return answer, false, nil
	}
	log.Warnf("[ChatService] 主模型调用失败, 切换备用模型: %v", err)

	if s.fallback == nil {
		s.notifier.Notify(notify.Event{Type: notify.EventProviderOutage, Detail: err.Error()})
		return "", false, fmt.Errorf("%w: %v", errs.ErrProviderUnavailable, err)
	}
	answer, fbErr := s.fallback.Complete(ctx, messages, nil)
	if fbErr != nil {
		log.Errorf("[ChatService] 备用模型也调用失败: %v", fbErr)
		s.notifier.Notify(notify.Event{
			Type:   notify.EventProviderOutage,
			Detail: fmt.Sprintf("primary: %v; fallback: %v", err, fbErr),
		})
		return "", false, fmt.Errorf("%w: primary: %v; fallback: %v", errs.ErrProviderUnavailable, err, fbErr)
	}
	return fallbackMarker + answer, true, nil
}

// buildMessages 组装生成请求：系统规则、参考资料、会话指令、用户问题。
func (s *chatService) buildMessages(question string, results []model.SearchResult, stats *model.CorpusStats, sessionInstructions string) []llm.Message {
	rules := s.promptCfg.Rules
	if rules == "" {
		rules = defaultRules
	}
	refStart := s.promptCfg.RefStart
	if refStart == "" {
		refStart = defaultRefStart
	}
	refEnd := s.promptCfg.RefEnd
	if refEnd == "" {
		refEnd = defaultRefEnd
	}

	var b strings.Builder
	b.WriteString(rules)
	b.WriteString("\n\n")
	b.WriteString(refStart)
	b.WriteString("\n")
	for i, r := range results {
		fmt.Fprintf(&b, "资料 %d（来源：%s）：\n%s\n\n", i+1, r.FileName, r.Content)
	}
	if stats != nil {
		fmt.Fprintf(&b, "知识库统计：共 %d 个文档，%d 个内容分块。\n", stats.DocumentCount, stats.ChunkCount)
	}
	b.WriteString(refEnd)
	if sessionInstructions != "" {
		b.WriteString("\n\n")
		b.WriteString(sessionInstructions)
	}

	return []llm.Message{
		{Role: "system", Content: b.String()},
		{Role: "user", Content: question},
	}
}

func (s *chatService) noResultText() string {
	if s.promptCfg.NoResultText != "" {
		return s.promptCfg.NoResultText
	}
	return defaultNoResultText
}

func buildSources(results []model.SearchResult) []model.Source {
	sources := make([]model.Source, 0, len(results))
	for _, r := range results {
		sources = append(sources, model.Source{
			FileName:   r.FileName,
			ChunkIndex: r.ChunkIndex,
			Similarity: r.Score,
		})
	}
	return sources
}

func uniqueDocumentIDs(results []model.SearchResult) []uint {
	seen := make(map[uint]struct{})
	var ids []uint
	for _, r := range results {
		if _, ok := seen[r.DocumentID]; ok {
			continue
		}
		seen[r.DocumentID] = struct{}{}
		ids = append(ids, r.DocumentID)
	}
	return ids
}
