// Package es 提供了与 Elasticsearch 交互的客户端功能。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"autoline-go/internal/config"
	"autoline-go/pkg/log"
	"autoline-go/pkg/tasks"
)

var ESClient *elasticsearch.Client

// InitES 初始化 Elasticsearch 客户端
func InitES(esCfg config.ElasticsearchConfig) error {
	cfg := elasticsearch.Config{
		Addresses: []string{esCfg.Addresses},
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return err
	}
	ESClient = client
	return createIndexIfNotExists(esCfg.IndexName)
}

// createIndexIfNotExists 检查索引是否存在，如果不存在则创建它
func createIndexIfNotExists(indexName string) error {
	res, err := ESClient.Indices.Exists([]string{indexName})
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return err
	}
	if !res.IsError() && res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", indexName)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		log.Errorf("检查索引 '%s' 是否存在时收到意外的状态码: %d", indexName, res.StatusCode)
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	// 对话审计索引：content 全文检索，其余字段用于过滤聚合
	mapping := `{
		"mappings": {
			"properties": {
				"record_id": { "type": "long" },
				"conversation_id": { "type": "keyword" },
				"user_id": { "type": "keyword" },
				"role": { "type": "keyword" },
				"content": { "type": "text" },
				"priority": { "type": "keyword" },
				"categories": { "type": "keyword" },
				"function_call": { "type": "boolean" },
				"platform": { "type": "keyword" },
				"created_at": { "type": "date" }
			}
		}
	}`

	res, err = ESClient.Indices.Create(
		indexName,
		ESClient.Indices.Create.WithBody(bytes.NewReader([]byte(mapping))),
	)
	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", indexName, err)
		return err
	}
	if res.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", indexName, res.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}

	log.Infof("索引 '%s' 创建成功", indexName)
	return nil
}

// IndexConversationEvent 将一条对话审计事件索引到 Elasticsearch。
func IndexConversationEvent(ctx context.Context, indexName string, event tasks.ConversationEventTask) error {
	docBytes, err := json.Marshal(event)
	if err != nil {
		return err
	}

	req := esapi.IndexRequest{
		Index:      indexName,
		DocumentID: fmt.Sprintf("%d", event.RecordID),
		Body:       bytes.NewReader(docBytes),
		Refresh:    "true",
	}

	res, err := req.Do(ctx, ESClient)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("索引对话事件到 Elasticsearch 出错: %s", res.String())
		return errors.New("failed to index conversation event")
	}
	return nil
}

// SearchFilters 是对话检索的过滤条件，零值字段不参与过滤。
type SearchFilters struct {
	UserID   string
	Priority string
	Platform string
	Since    time.Time
	Limit    int
}

// SearchConversations 在审计索引中全文检索对话内容。
func SearchConversations(ctx context.Context, indexName, term string, filters SearchFilters) ([]tasks.ConversationEventTask, error) {
	must := []map[string]interface{}{}
	if term != "" {
		must = append(must, map[string]interface{}{
			"match": map[string]interface{}{"content": term},
		})
	}

	filter := []map[string]interface{}{}
	if filters.UserID != "" {
		filter = append(filter, map[string]interface{}{
			"term": map[string]interface{}{"user_id": filters.UserID},
		})
	}
	if filters.Priority != "" {
		filter = append(filter, map[string]interface{}{
			"term": map[string]interface{}{"priority": filters.Priority},
		})
	}
	if filters.Platform != "" {
		filter = append(filter, map[string]interface{}{
			"term": map[string]interface{}{"platform": filters.Platform},
		})
	}
	if !filters.Since.IsZero() {
		filter = append(filter, map[string]interface{}{
			"range": map[string]interface{}{
				"created_at": map[string]interface{}{"gte": filters.Since.Format(time.RFC3339)},
			},
		})
	}

	size := filters.Limit
	if size <= 0 {
		size = 20
	}
	query := map[string]interface{}{
		"size": size,
		"sort": []map[string]interface{}{
			{"created_at": map[string]interface{}{"order": "desc"}},
		},
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must":   must,
				"filter": filter,
			},
		},
	}

	queryBytes, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search query: %w", err)
	}

	res, err := ESClient.Search(
		ESClient.Search.WithContext(ctx),
		ESClient.Search.WithIndex(indexName),
		ESClient.Search.WithBody(bytes.NewReader(queryBytes)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to execute search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("search returned error: %s", res.String())
	}

	var envelope struct {
		Hits struct {
			Hits []struct {
				Source tasks.ConversationEventTask `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	results := make([]tasks.ConversationEventTask, 0, len(envelope.Hits.Hits))
	for _, hit := range envelope.Hits.Hits {
		results = append(results, hit.Source)
	}
	return results, nil
}
