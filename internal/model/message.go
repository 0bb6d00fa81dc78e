// Package model 包含了应用的数据模型定义。
package model

import "time"

// Role 标识一条对话消息的发送方。
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// TurnMeta 是附加在对话轮次上的结构化元数据。
type TurnMeta struct {
	Priority     Priority `json:"priority,omitempty"`
	Categories   []string `json:"categories,omitempty"`
	FunctionCall bool     `json:"functionCall,omitempty"`
}

// ConversationTurn 代表对话中的一条消息（用户或助手）。
// 它同时出现在短期缓存、持久存储和发给生成服务的消息列表中。
type ConversationTurn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Meta      *TurnMeta `json:"meta,omitempty"`
}

// MessageContext 携带一条入站消息的调用方上下文。
type MessageContext struct {
	UserID           string `json:"userId"`
	Platform         string `json:"platform"`
	DisplayName      string `json:"displayName,omitempty"`
	HasDomainContext bool   `json:"hasDomainContext"`
}
