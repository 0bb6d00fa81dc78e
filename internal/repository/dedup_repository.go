package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const dedupTTL = time.Hour

// EventDedupRepository 基于 Redis 去重平台 webhook 事件。
// 消息平台会对未及时响应的回调做重投，同一事件只允许处理一次。
type EventDedupRepository interface {
	// MarkProcessed 标记事件为已处理；首次标记返回 true，重复事件返回 false。
	MarkProcessed(ctx context.Context, eventID string) (bool, error)
}

type redisEventDedupRepository struct {
	redisClient *redis.Client
}

// NewEventDedupRepository 创建一个新的 EventDedupRepository 实例。
func NewEventDedupRepository(redisClient *redis.Client) EventDedupRepository {
	return &redisEventDedupRepository{redisClient: redisClient}
}

func (r *redisEventDedupRepository) MarkProcessed(ctx context.Context, eventID string) (bool, error) {
	key := fmt.Sprintf("webhook:event:%s", eventID)
	first, err := r.redisClient.SetNX(ctx, key, 1, dedupTTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark webhook event: %w", err)
	}
	return first, nil
}
