// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"autoline-go/internal/model"
)

// ConversationRepository 定义了持久对话记录的操作接口。
type ConversationRepository interface {
	LoadRecent(ctx context.Context, userID, platform string, maxTurns int, cutoff time.Time) ([]model.ConversationRecord, error)
	SaveRecords(ctx context.Context, records []model.ConversationRecord) error
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
	Stats(ctx context.Context, userID string) (*model.ConversationStats, error)
}

type mysqlConversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository 创建一个新的 ConversationRepository 实例。
func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &mysqlConversationRepository{db: db}
}

// LoadRecent 返回保留期内该用户最近的若干条记录，按时间先后排列。
func (r *mysqlConversationRepository) LoadRecent(ctx context.Context, userID, platform string, maxTurns int, cutoff time.Time) ([]model.ConversationRecord, error) {
	var records []model.ConversationRecord
	query := r.db.WithContext(ctx).
		Where("user_id = ? AND created_at >= ?", userID, cutoff).
		Order("created_at DESC").
		Limit(maxTurns)
	if platform != "" {
		query = query.Where("platform = ?", platform)
	}
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to load recent conversation records: %w", err)
	}

	// 查询按时间倒序取最近 N 条，这里反转为正序返回
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

// SaveRecords 在一个事务中写入一组记录（通常是共享会话 ID 的 user/assistant 两条）。
func (r *mysqlConversationRepository) SaveRecords(ctx context.Context, records []model.ConversationRecord) error {
	if len(records) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&records).Error
	})
	if err != nil {
		return fmt.Errorf("failed to save conversation records: %w", err)
	}
	return nil
}

// Prune 删除早于保留期截止时间的记录，返回删除条数。
func (r *mysqlConversationRepository) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&model.ConversationRecord{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to prune conversation records: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// Stats 返回持久记录的聚合统计；userID 为空时统计全量。
func (r *mysqlConversationRepository) Stats(ctx context.Context, userID string) (*model.ConversationStats, error) {
	base := r.db.WithContext(ctx).Model(&model.ConversationRecord{})
	if userID != "" {
		base = base.Where("user_id = ?", userID)
	}

	stats := &model.ConversationStats{ByPriority: make(map[string]int64)}
	if err := base.Session(&gorm.Session{}).Count(&stats.TotalRecords).Error; err != nil {
		return nil, fmt.Errorf("failed to count conversation records: %w", err)
	}
	if err := base.Session(&gorm.Session{}).
		Distinct("conversation_id").
		Count(&stats.Conversations).Error; err != nil {
		return nil, fmt.Errorf("failed to count conversations: %w", err)
	}

	type priorityCount struct {
		Priority string
		Count    int64
	}
	var byPriority []priorityCount
	if err := base.Session(&gorm.Session{}).
		Select("priority, COUNT(*) AS count").
		Group("priority").
		Scan(&byPriority).Error; err != nil {
		return nil, fmt.Errorf("failed to group conversation records: %w", err)
	}
	for _, pc := range byPriority {
		stats.ByPriority[pc.Priority] = pc.Count
	}

	var oldest time.Time
	row := base.Session(&gorm.Session{}).Select("MIN(created_at)").Row()
	if err := row.Scan(&oldest); err == nil && !oldest.IsZero() {
		stats.OldestRecord = &oldest
	}
	return stats, nil
}
