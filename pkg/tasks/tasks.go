// Package tasks 定义了在 Kafka 中流转的异步任务结构。
package tasks

import "time"

// ConversationEventTask 是一条已持久化对话记录的审计事件，
// 由存储服务发布，消费端负责写入 Elasticsearch 检索索引。
type ConversationEventTask struct {
	RecordID       uint      `json:"record_id"`
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	Priority       string    `json:"priority"`
	Categories     []string  `json:"categories"`
	FunctionCall   bool      `json:"function_call"`
	Platform       string    `json:"platform"`
	CreatedAt      time.Time `json:"created_at"`
}
