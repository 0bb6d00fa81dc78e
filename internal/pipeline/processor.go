// Package pipeline 包含 Kafka 消费侧的异步任务处理器。
package pipeline

import (
	"context"
	"fmt"

	"autoline-go/pkg/es"
	"autoline-go/pkg/log"
	"autoline-go/pkg/tasks"
)

// AuditProcessor 把对话审计事件写入 Elasticsearch 索引，
// 为运营后台的全文检索提供数据。
type AuditProcessor struct {
	indexName string
}

// NewAuditProcessor 创建审计索引处理器。
func NewAuditProcessor(indexName string) *AuditProcessor {
	return &AuditProcessor{indexName: indexName}
}

// Process 索引一条对话审计事件。以 RecordID 作为文档 ID，
// 重复投递时覆盖写入，天然幂等。
func (p *AuditProcessor) Process(ctx context.Context, task tasks.ConversationEventTask) error {
	if task.RecordID == 0 {
		log.Warnf("审计事件缺少记录 ID，跳过: conversationID=%s", task.ConversationID)
		return nil
	}

	if err := es.IndexConversationEvent(ctx, p.indexName, task); err != nil {
		return fmt.Errorf("failed to index conversation event %d: %w", task.RecordID, err)
	}

	log.Debugf("对话审计事件已索引: recordID=%d, conversationID=%s", task.RecordID, task.ConversationID)
	return nil
}
