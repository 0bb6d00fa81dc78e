package model

import "time"

// ConversationRecord 代表持久化到 MySQL 的单条对话记录。
// 只有分类器判定值得保留的交互才会落库，user/assistant 两条记录
// 共享同一个 ConversationID。
type ConversationRecord struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	UserID         string    `gorm:"index;size:64;not null" json:"userId"`
	CustomerID     *uint     `gorm:"index" json:"customerId,omitempty"`
	ConversationID string    `gorm:"index;size:64;not null" json:"conversationId"`
	Role           string    `gorm:"size:16;not null" json:"role"`
	Content        string    `gorm:"type:text;not null" json:"content"`
	Priority       string    `gorm:"size:16" json:"priority"`
	Categories     string    `gorm:"size:255" json:"categories"` // 逗号分隔的分类名
	FunctionCall   bool      `json:"functionCall"`
	Platform       string    `gorm:"size:32" json:"platform"`
	CreatedAt      time.Time `gorm:"autoCreateTime;index" json:"createdAt"`
}

func (ConversationRecord) TableName() string {
	return "conversation_records"
}

// Customer 是经销商 CRM 中的客户档案，用于把平台用户关联到内部身份。
// 档案由外部 CRM 维护，这里只做只读的身份解析。
type Customer struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	LineUserID string    `gorm:"uniqueIndex;size:64" json:"lineUserId"`
	Name       string    `gorm:"size:128" json:"name"`
	Phone      string    `gorm:"size:32" json:"phone"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

func (Customer) TableName() string {
	return "customers"
}

// ConversationStats 是持久对话记录的聚合统计。
type ConversationStats struct {
	TotalRecords  int64            `json:"totalRecords"`
	Conversations int64            `json:"conversations"`
	ByPriority    map[string]int64 `json:"byPriority"`
	OldestRecord  *time.Time       `json:"oldestRecord,omitempty"`
}
