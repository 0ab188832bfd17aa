// Package es 提供了与 Elasticsearch 交互的客户端功能。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"doc-smart-go/internal/config"
	"doc-smart-go/internal/model"
	"doc-smart-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// Client 封装了分块向量索引的全部 Elasticsearch 操作。
type Client struct {
	es        *elasticsearch.Client
	indexName string
}

// NewClient 初始化 Elasticsearch 客户端并确保分块索引存在。
func NewClient(esCfg config.ElasticsearchConfig, dims int) (*Client, error) {
	cfg := elasticsearch.Config{
		Addresses: []string{esCfg.Addresses},
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	es, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	c := &Client{es: es, indexName: esCfg.IndexName}
	if err := c.createIndexIfNotExists(dims); err != nil {
		return nil, err
	}
	return c, nil
}

// createIndexIfNotExists 检查索引是否存在，如果不存在则创建它
func (c *Client) createIndexIfNotExists(dims int) error {
	res, err := c.es.Indices.Exists([]string{c.indexName})
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return err
	}
	// 200 说明索引已存在
	if !res.IsError() && res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", c.indexName)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		log.Errorf("检查索引 '%s' 是否存在时收到意外的状态码: %d", c.indexName, res.StatusCode)
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	// 使用 ik 中文分词器，向量字段使用 cosine 相似度
	mapping := fmt.Sprintf(`{
		"mappings": {
			"properties": {
				"chunk_key": { "type": "keyword" },
				"document_id": { "type": "long" },
				"chunk_index": { "type": "integer" },
				"content": {
					"type": "text",
					"analyzer": "ik_max_word",
					"search_analyzer": "ik_smart"
				},
				"vector": {
					"type": "dense_vector",
					"dims": %d,
					"index": true,
					"similarity": "cosine"
				},
				"file_name": { "type": "keyword" },
				"catalog_id": { "type": "keyword" },
				"is_image": { "type": "boolean" }
			}
		}
	}`, dims)

	res, err = c.es.Indices.Create(
		c.indexName,
		c.es.Indices.Create.WithBody(strings.NewReader(mapping)),
	)
	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", c.indexName, err)
		return err
	}
	if res.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", c.indexName, res.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}

	log.Infof("索引 '%s' 创建成功", c.indexName)
	return nil
}

// IndexChunk 将单个分块文档索引到 Elasticsearch。
func (c *Client) IndexChunk(ctx context.Context, doc model.EsChunk) error {
	docBytes, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	req := esapi.IndexRequest{
		Index:      c.indexName,
		DocumentID: doc.ChunkKey,
		Body:       bytes.NewReader(docBytes),
		Refresh:    "true",
	}

	res, err := req.Do(ctx, c.es)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("索引分块到 Elasticsearch 出错: %s", res.String())
		return errors.New("failed to index chunk")
	}
	return nil
}

// DeleteByDocument 删除某文档的全部分块（delete-by-query）。
func (c *Client) DeleteByDocument(ctx context.Context, documentID uint) error {
	query := fmt.Sprintf(`{"query":{"term":{"document_id":%d}}}`, documentID)
	res, err := c.es.DeleteByQuery(
		[]string{c.indexName},
		strings.NewReader(query),
		c.es.DeleteByQuery.WithContext(ctx),
		c.es.DeleteByQuery.WithRefresh(true),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("按文档删除分块出错: %s", res.String())
		return errors.New("failed to delete chunks by document")
	}
	return nil
}

// Search 执行混合搜索请求体并返回命中的分块与得分。
func (c *Client) Search(ctx context.Context, body map[string]interface{}) ([]model.EsChunk, []float64, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, nil, fmt.Errorf("failed to encode es query: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.indexName),
		c.es.Search.WithBody(&buf),
		c.es.Search.WithTrackTotalHits(true),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("elasticsearch search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		bodyBytes, _ := io.ReadAll(res.Body)
		log.Errorf("[ES] Elasticsearch 返回错误, status: %s, body: %s", res.Status(), string(bodyBytes))
		return nil, nil, fmt.Errorf("elasticsearch returned an error: %s", res.String())
	}

	var esResponse struct {
		Hits struct {
			Hits []struct {
				Source model.EsChunk `json:"_source"`
				Score  float64       `json:"_score"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, nil, fmt.Errorf("failed to decode es response: %w", err)
	}

	chunks := make([]model.EsChunk, 0, len(esResponse.Hits.Hits))
	scores := make([]float64, 0, len(esResponse.Hits.Hits))
	for _, hit := range esResponse.Hits.Hits {
		chunks = append(chunks, hit.Source)
		scores = append(scores, hit.Score)
	}
	return chunks, scores, nil
}

// CountChunks 统计索引中的分块总数，catalogID 非空时限定目录范围。
func (c *Client) CountChunks(ctx context.Context, catalogID string) (int64, error) {
	opts := []func(*esapi.CountRequest){
		c.es.Count.WithContext(ctx),
		c.es.Count.WithIndex(c.indexName),
	}
	if catalogID != "" {
		query := fmt.Sprintf(`{"query":{"term":{"catalog_id":%q}}}`, catalogID)
		opts = append(opts, c.es.Count.WithBody(strings.NewReader(query)))
	}
	res, err := c.es.Count(opts...)
	if err != nil {
		return 0, err
	}
	defer res.Body.Close()

	if res.IsError() {
		return 0, fmt.Errorf("elasticsearch count returned an error: %s", res.String())
	}

	var countResp struct {
		Count int64 `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&countResp); err != nil {
		return 0, err
	}
	return countResp.Count, nil
}
