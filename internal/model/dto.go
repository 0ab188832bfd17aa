package model

// SearchResult 定义了检索层返回的单条分块结果。
type SearchResult struct {
	DocumentID uint    `json:"documentId"`
	FileName   string  `json:"fileName"`
	ChunkIndex int     `json:"chunkIndex"`
	Content    string  `json:"content"`
	Score      float64 `json:"score"`
	CatalogID  string  `json:"catalogId"`
}

// ChatAnswer 定义了问答管线的最终输出。
type ChatAnswer struct {
	Answer       string   `json:"answer"`
	Sources      []Source `json:"sources"`
	FromCache    bool     `json:"fromCache"`
	CacheType    string   `json:"cacheType,omitempty"` // exact / semantic
	UsedFallback bool     `json:"usedFallback"`
}

// CorpusStats 是统计类问题附带的语料库统计信息。
type CorpusStats struct {
	DocumentCount int64 `json:"documentCount"`
	ChunkCount    int64 `json:"chunkCount"`
}
