package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"doc-smart-go/internal/config"
	"doc-smart-go/internal/errs"
	"doc-smart-go/internal/model"
	"doc-smart-go/pkg/llm"
	"doc-smart-go/pkg/notify"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSearchService struct {
	results    []model.SearchResult
	stats      model.CorpusStats
	err        error
	calls      int
	multiCalls int
}

func (s *fakeSearchService) HybridSearch(ctx context.Context, query string, topK int, catalogID string) ([]model.SearchResult, error) {
	s.calls++
	return s.results, s.err
}

func (s *fakeSearchService) MultiSearch(ctx context.Context, queries []string, topK int, catalogID string) ([]model.SearchResult, error) {
	s.multiCalls++
	return s.results, s.err
}

func (s *fakeSearchService) Stats(ctx context.Context, catalogID string) (model.CorpusStats, error) {
	return s.stats, nil
}

type fakeRespCache struct {
	exactEntry    *model.ResponseCacheEntry
	semanticEntry *model.ResponseCacheEntry
	semanticSim   float64
	hits          []uint
	putCalls      int
	putQuery      string
	putDocIDs     []uint
}

func (c *fakeRespCache) LookupExact(query, catalogID string) *model.ResponseCacheEntry {
	return c.exactEntry
}

func (c *fakeRespCache) LookupSemantic(queryEmbedding []float32, catalogID string) (*model.ResponseCacheEntry, float64) {
	return c.semanticEntry, c.semanticSim
}

func (c *fakeRespCache) RecordHit(entryID uint) {
	c.hits = append(c.hits, entryID)
}

func (c *fakeRespCache) Put(query string, queryEmbedding []float32, response string, sources []model.Source, documentIDs []uint, catalogID string) error {
	c.putCalls++
	c.putQuery = query
	c.putDocIDs = documentIDs
	return nil
}

type fakeSessionMemory struct {
	instructions string
	recorded     []string
}

func (m *fakeSessionMemory) ProcessMessageContext(ctx context.Context, userID uint, message string) string {
	return m.instructions
}

func (m *fakeSessionMemory) RecordProvidedInfo(ctx context.Context, userID uint, info string) {
	m.recorded = append(m.recorded, info)
}

type fakeEmbedClient struct {
	vector []float32
	err    error
	calls  int
}

func (e *fakeEmbedClient) Embed(ctx context.Context, text string) ([]float32, error) {
	e.calls++
	return e.vector, e.err
}

func (e *fakeEmbedClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = e.vector
	}
	return out, e.err
}

type fakeLLMClient struct {
	answer   string
	err      error
	messages []llm.Message
	calls    int
}

func (c *fakeLLMClient) Complete(ctx context.Context, messages []llm.Message, gen *llm.GenerationParams) (string, error) {
	c.calls++
	c.messages = messages
	return c.answer, c.err
}

type capturingNotifier struct {
	events []notify.Event
}

func (n *capturingNotifier) Notify(event notify.Event) {
	n.events = append(n.events, event)
}

type chatFixture struct {
	svc      ChatService
	search   *fakeSearchService
	cache    *fakeRespCache
	session  *fakeSessionMemory
	embedder *fakeEmbedClient
	primary  *fakeLLMClient
	fallback *fakeLLMClient
	notifier *capturingNotifier
}

func newChatFixture() *chatFixture {
	f := &chatFixture{
		search:   &fakeSearchService{},
		cache:    &fakeRespCache{},
		session:  &fakeSessionMemory{},
		embedder: &fakeEmbedClient{vector: []float32{1, 0}},
		primary:  &fakeLLMClient{answer: "主模型的回答"},
		fallback: &fakeLLMClient{answer: "备用模型的回答"},
		notifier: &capturingNotifier{},
	}
	f.svc = NewChatService(
		f.search, f.cache, f.session, nil,
		f.embedder, f.primary, f.fallback, f.notifier,
		config.LLMPromptConfig{},
	)
	return f
}

func sampleResults() []model.SearchResult {
	return []model.SearchResult{
		{DocumentID: 7, FileName: "手册A.pdf", ChunkIndex: 0, Content: "XK-500 保修期两年。", Score: 9.1},
		{DocumentID: 7, FileName: "手册A.pdf", ChunkIndex: 3, Content: "保修范围包含主轴。", Score: 7.4},
		{DocumentID: 9, FileName: "手册B.pdf", ChunkIndex: 1, Content: "HT-300 保修期三年。", Score: 6.2},
	}
}

func TestChatService_EmptyQuestionRejected(t *testing.T) {
	f := newChatFixture()
	_, err := f.svc.Ask(context.Background(), 1, "   ", "")
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
}

func TestChatService_GreetingShortCircuits(t *testing.T) {
	f := newChatFixture()

	answer, err := f.svc.Ask(context.Background(), 1, "你好", "")
	require.NoError(t, err)
	assert.NotEmpty(t, answer.Answer)
	assert.False(t, answer.FromCache)

	// 寒暄不触发向量化、检索、生成与缓存
	assert.Equal(t, 0, f.embedder.calls)
	assert.Equal(t, 0, f.search.calls)
	assert.Equal(t, 0, f.primary.calls)
	assert.Equal(t, 0, f.cache.putCalls)
}

func TestChatService_ExactCacheHitBeforeEmbedding(t *testing.T) {
	f := newChatFixture()
	f.cache.exactEntry = &model.ResponseCacheEntry{
		ID:       11,
		Response: "缓存的答案",
		Sources:  []model.Source{{FileName: "手册A.pdf"}},
	}

	answer, err := f.svc.Ask(context.Background(), 1, "XK-500 的保修期", "")
	require.NoError(t, err)
	assert.True(t, answer.FromCache)
	assert.Equal(t, "exact", answer.CacheType)
	assert.Equal(t, "缓存的答案", answer.Answer)
	assert.Equal(t, []uint{11}, f.cache.hits)

	// 精确命中时连向量化都不需要
	assert.Equal(t, 0, f.embedder.calls)
	assert.Equal(t, 0, f.search.calls)
	assert.Equal(t, 0, f.primary.calls)
}

func TestChatService_SemanticCacheHit(t *testing.T) {
	f := newChatFixture()
	f.cache.semanticEntry = &model.ResponseCacheEntry{ID: 12, Response: "语义缓存的答案"}
	f.cache.semanticSim = 0.97

	answer, err := f.svc.Ask(context.Background(), 1, "XK-500 质保多长时间", "")
	require.NoError(t, err)
	assert.True(t, answer.FromCache)
	assert.Equal(t, "semantic", answer.CacheType)
	assert.Equal(t, []uint{12}, f.cache.hits)

	// 语义命中需要先向量化，但不触发检索与生成
	assert.Equal(t, 1, f.embedder.calls)
	assert.Equal(t, 0, f.search.calls)
	assert.Equal(t, 0, f.primary.calls)
}

func TestChatService_FullPipelineCachesAnswer(t *testing.T) {
	f := newChatFixture()
	f.search.results = sampleResults()

	answer, err := f.svc.Ask(context.Background(), 1, "XK-500 的保修期是多久呀", "")
	require.NoError(t, err)
	assert.Equal(t, "主模型的回答", answer.Answer)
	assert.False(t, answer.FromCache)
	assert.False(t, answer.UsedFallback)
	assert.Len(t, answer.Sources, 3)

	// 答案入缓存，documentIDs 去重
	assert.Equal(t, 1, f.cache.putCalls)
	assert.Equal(t, []uint{7, 9}, f.cache.putDocIDs)

	// 参考资料进入系统提示词
	require.Len(t, f.primary.messages, 2)
	assert.Equal(t, "system", f.primary.messages[0].Role)
	assert.Contains(t, f.primary.messages[0].Content, "XK-500 保修期两年。")
	// 已提供信息写入会话记忆
	assert.NotEmpty(t, f.session.recorded)
}

func TestChatService_SessionInstructionsInjected(t *testing.T) {
	f := newChatFixture()
	f.search.results = sampleResults()
	f.session.instructions = "用户偏好用表格呈现答案。"

	_, err := f.svc.Ask(context.Background(), 1, "XK-500 的参数", "")
	require.NoError(t, err)
	assert.Contains(t, f.primary.messages[0].Content, "用户偏好用表格呈现答案。")
}

func TestChatService_FallbackMarker(t *testing.T) {
	f := newChatFixture()
	f.search.results = sampleResults()
	f.primary.err = errors.New("主模型超时")

	answer, err := f.svc.Ask(context.Background(), 1, "XK-500 的保修期是多久呀", "")
	require.NoError(t, err)
	assert.True(t, answer.UsedFallback)
	assert.True(t, strings.HasPrefix(answer.Answer, fallbackMarker))
	assert.Contains(t, answer.Answer, "备用模型的回答")
}

func TestChatService_BothProvidersFail(t *testing.T) {
	f := newChatFixture()
	f.search.results = sampleResults()
	f.primary.err = errors.New("主模型超时")
	f.fallback.err = errors.New("备用模型也超时")

	_, err := f.svc.Ask(context.Background(), 1, "XK-500 的保修期是多久呀", "")
	assert.ErrorIs(t, err, errs.ErrProviderUnavailable)

	// 双路故障发送服务异常事件，且不写缓存
	require.Len(t, f.notifier.events, 1)
	assert.Equal(t, notify.EventProviderOutage, f.notifier.events[0].Type)
	assert.Equal(t, 0, f.cache.putCalls)
}

func TestChatService_NoResultsPoliteAnswer(t *testing.T) {
	f := newChatFixture()
	f.search.results = nil

	answer, err := f.svc.Ask(context.Background(), 1, "不存在的设备 ZZZZ 的说明", "")
	require.NoError(t, err)
	assert.Equal(t, defaultNoResultText, answer.Answer)
	assert.Empty(t, answer.Sources)

	// 无资料的回答不生成也不缓存
	assert.Equal(t, 0, f.primary.calls)
	assert.Equal(t, 0, f.cache.putCalls)
}

func TestChatService_NoResultTextConfigurable(t *testing.T) {
	f := newChatFixture()
	f.svc = NewChatService(
		f.search, f.cache, f.session, nil,
		f.embedder, f.primary, f.fallback, f.notifier,
		config.LLMPromptConfig{NoResultText: "资料暂缺，请联系管理员。"},
	)

	answer, err := f.svc.Ask(context.Background(), 1, "不存在的设备 ZZZZ 的说明", "")
	require.NoError(t, err)
	assert.Equal(t, "资料暂缺，请联系管理员。", answer.Answer)
}

func TestChatService_CountQueryIncludesStats(t *testing.T) {
	f := newChatFixture()
	f.search.results = sampleResults()
	f.search.stats = model.CorpusStats{DocumentCount: 12, ChunkCount: 340}

	_, err := f.svc.Ask(context.Background(), 1, "知识库里一共有几种机床", "")
	require.NoError(t, err)
	assert.Contains(t, f.primary.messages[0].Content, "共 12 个文档")
	assert.Contains(t, f.primary.messages[0].Content, "340 个内容分块")
}

func TestChatService_MultiQueryFanout(t *testing.T) {
	f := newChatFixture()
	f.search.results = sampleResults()

	// 多余空白让规范化改写与原问句不同，产生多条扇出查询
	_, err := f.svc.Ask(context.Background(), 1, "对比  XK-500 和 HT-300 的技术参数", "")
	require.NoError(t, err)
	assert.Equal(t, 1, f.search.multiCalls)
	assert.Equal(t, 0, f.search.calls)
}
