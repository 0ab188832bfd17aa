// Package embedding provides a client for interacting with embedding models.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"doc-smart-go/internal/config"
	"doc-smart-go/pkg/log"
)

// Client defines the interface for an embedding client.
type Client interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch 一次请求向量化多条文本，用于摄取时摊薄往返开销。
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

type openAICompatibleClient struct {
	cfg    config.EmbeddingConfig
	client *http.Client
}

// NewClient creates a new embedding client based on the provider in the config.
func NewClient(cfg config.EmbeddingConfig) Client {
	return &openAICompatibleClient{
		cfg:    cfg,
		client: &http.Client{},
	}
}

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed calls the OpenAI-compatible API to get the vector for a given text.
func (c *openAICompatibleClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch 批量调用 Embedding API，返回与输入等长的向量序列。
func (c *openAICompatibleClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	log.Infof("[EmbeddingClient] 开始调用 Embedding API, model: %s, batch: %d", c.cfg.Model, len(texts))
	reqBody := embeddingRequest{
		Model:      c.cfg.Model,
		Input:      texts,
		Dimensions: c.cfg.Dimensions,
	}

	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.BaseURL+"/embeddings", bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		log.Errorf("[EmbeddingClient] 调用 Embedding API 失败, error: %v", err)
		return nil, fmt.Errorf("failed to call embedding api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Errorf("[EmbeddingClient] Embedding API 返回非 200 状态码: %s", resp.Status)
		return nil, fmt.Errorf("embedding api returned non-200 status: %s", resp.Status)
	}

	var embeddingResp embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&embeddingResp); err != nil {
		log.Errorf("[EmbeddingClient] 解析 Embedding API 响应失败, error: %v", err)
		return nil, fmt.Errorf("failed to decode embedding response: %w", err)
	}

	if len(embeddingResp.Data) != len(texts) {
		log.Warnf("[EmbeddingClient] Embedding API 返回向量数 %d 与输入数 %d 不一致", len(embeddingResp.Data), len(texts))
		return nil, fmt.Errorf("embedding api returned %d vectors for %d inputs", len(embeddingResp.Data), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for i, d := range embeddingResp.Data {
		if len(d.Embedding) == 0 {
			return nil, fmt.Errorf("received empty embedding from api at index %d", i)
		}
		vectors[i] = d.Embedding
	}

	log.Infof("[EmbeddingClient] 成功从 Embedding API 获取 %d 个向量, 维度: %d", len(vectors), len(vectors[0]))
	return vectors, nil
}
