// Package llm provides a client for interacting with Large Language Models.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"doc-smart-go/internal/config"
)

// Message 表示一条角色消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerationParams 控制生成行为
type GenerationParams struct {
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// Client defines the interface for an LLM client.
type Client interface {
	// Complete 以 role-based 消息调用聊天接口并返回完整回答。
	Complete(ctx context.Context, messages []Message, gen *GenerationParams) (string, error)
}

type openAICompatibleClient struct {
	cfg    config.LLMProviderConfig
	genCfg config.LLMGenerationConfig
	client *http.Client
}

// NewClient 基于单个服务端点配置创建 LLM 客户端。
// 主备两个端点各建一个实例，由编排层负责失败切换。
func NewClient(cfg config.LLMProviderConfig, genCfg config.LLMGenerationConfig) Client {
	return &openAICompatibleClient{
		cfg:    cfg,
		genCfg: genCfg,
		client: &http.Client{},
	}
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	Temperature *float64  `json:"temperature,omitempty"`
	TopP        *float64  `json:"top_p,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete calls the chat completions API and returns the full answer text.
func (c *openAICompatibleClient) Complete(ctx context.Context, messages []Message, gen *GenerationParams) (string, error) {
	reqBody := chatRequest{
		Model:    c.cfg.Model,
		Messages: messages,
		Stream:   false,
	}
	// 从配置或传参注入生成参数（传参优先生效）
	if gen != nil {
		reqBody.Temperature = gen.Temperature
		reqBody.TopP = gen.TopP
		reqBody.MaxTokens = gen.MaxTokens
	} else {
		if c.genCfg.Temperature != 0 {
			t := c.genCfg.Temperature
			reqBody.Temperature = &t
		}
		if c.genCfg.TopP != 0 {
			p := c.genCfg.TopP
			reqBody.TopP = &p
		}
		if c.genCfg.MaxTokens != 0 {
			m := c.genCfg.MaxTokens
			reqBody.MaxTokens = &m
		}
	}

	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.BaseURL+"/chat/completions", bytes.NewReader(reqBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create chat request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call chat api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("chat api returned non-200 status: %s, body: %s", resp.Status, string(bodyBytes))
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("failed to decode chat response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("chat api returned no choices")
	}
	return chatResp.Choices[0].Message.Content, nil
}
