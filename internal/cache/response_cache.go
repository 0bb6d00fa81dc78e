// Package cache 提供管道使用的进程内缓存：生成回复缓存与短期对话窗口。
package cache

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"autoline-go/internal/model"
	"autoline-go/pkg/log"
)

const (
	defaultResponseTTL      = 30 * time.Minute
	defaultResponseCapacity = 1000
	// 纯文本回复短于该长度视为寒暄类通用回复，不值得缓存
	minCacheableTextLen = 20
)

// personalMarkers 出现在回复中说明内容绑定了具体客户（预约、合同等），
// 缓存后会把个性化数据泄漏给其他用户，因此拒绝缓存。
var personalMarkers = []string{
	"นัดหมาย", "จองคิว", "ใบจอง", "เลขที่สัญญา", "ใบเสนอราคา",
	"appointment", "booking",
}

type responseEntry struct {
	reply          *model.Reply
	userID         string
	createdAt      time.Time
	lastAccessedAt time.Time
}

// ResponseCache 是按指纹索引的生成回复缓存，带 TTL 与近似 LRU 淘汰。
// 所有操作不返回错误，缓存故障对管道不可见。
type ResponseCache struct {
	mu       sync.Mutex
	entries  map[string]*responseEntry
	ttl      time.Duration
	capacity int
	now      func() time.Time
	onLookup func(hit bool)
}

// NewResponseCache 创建回复缓存。ttl/capacity 为零时使用默认值，
// onLookup 用于上报命中/未命中指标，可以为 nil。
func NewResponseCache(ttl time.Duration, capacity int, onLookup func(hit bool)) *ResponseCache {
	if ttl <= 0 {
		ttl = defaultResponseTTL
	}
	if capacity <= 0 {
		capacity = defaultResponseCapacity
	}
	return &ResponseCache{
		entries:  make(map[string]*responseEntry),
		ttl:      ttl,
		capacity: capacity,
		now:      time.Now,
		onLookup: onLookup,
	}
}

// Fingerprint 对消息文本与调用上下文计算确定性指纹。
// 用户身份参与哈希，避免个性化回复在用户之间串号。
func Fingerprint(text string, mctx model.MessageContext) string {
	normalized := strings.ToLower(strings.TrimSpace(text))
	raw := fmt.Sprintf("%s|%s|%t|%s", normalized, mctx.Platform, mctx.HasDomainContext, mctx.UserID)
	sum := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%x", sum[:16])
}

// Get 按指纹查询缓存的回复。条目缺失或已过 TTL 时返回 nil，
// 过期条目顺手物理删除；命中时刷新访问时间。
func (c *ResponseCache) Get(fingerprint string) *model.Reply {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[fingerprint]
	if !ok {
		c.lookup(false)
		return nil
	}
	if c.now().Sub(entry.createdAt) >= c.ttl {
		delete(c.entries, fingerprint)
		c.lookup(false)
		return nil
	}
	entry.lastAccessedAt = c.now()
	c.lookup(true)
	return entry.reply
}

// Set 缓存一条生成的回复。不可缓存的回复（兜底回复、过短的通用回复、
// 带个性化标记的内容）被静默拒绝；容量满时先淘汰最久未访问的条目。
func (c *ResponseCache) Set(fingerprint, userID string, reply *model.Reply) {
	if reply == nil || !Cacheable(reply) {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[fingerprint]; !exists && len(c.entries) >= c.capacity {
		c.evictOldest()
	}
	now := c.now()
	c.entries[fingerprint] = &responseEntry{
		reply:          reply,
		userID:         userID,
		createdAt:      now,
		lastAccessedAt: now,
	}
}

// Cacheable 判断一条回复是否适合进入共享缓存。
func Cacheable(reply *model.Reply) bool {
	if reply.Degraded {
		return false
	}
	if reply.Type == model.ReplyText && utf8.RuneCountInString(reply.Text) < minCacheableTextLen {
		return false
	}
	lower := strings.ToLower(reply.Text)
	for _, marker := range personalMarkers {
		if strings.Contains(lower, marker) {
			return false
		}
	}
	return true
}

// Clear 清空整个缓存。
func (c *ResponseCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*responseEntry)
}

// ClearFor 删除指定用户的全部缓存条目，返回删除数量。
func (c *ResponseCache) ClearFor(userID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for fp, entry := range c.entries {
		if entry.userID == userID {
			delete(c.entries, fp)
			removed++
		}
	}
	return removed
}

// Sweep 主动删除所有已过期的条目，返回删除数量。
func (c *ResponseCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	removed := 0
	for fp, entry := range c.entries {
		if now.Sub(entry.createdAt) >= c.ttl {
			delete(c.entries, fp)
			removed++
		}
	}
	return removed
}

// Len 返回当前条目数。
func (c *ResponseCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// StartSweeper 启动后台定时清理，interval 为零时默认每 5 分钟一次。
// ctx 取消后退出，由应用生命周期统一管理。
func (c *ResponseCache) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := c.Sweep(); removed > 0 {
				log.Debugf("回复缓存清理完成，删除 %d 条过期条目", removed)
			}
		}
	}
}

// evictOldest 淘汰 lastAccessedAt 最早的条目，调用方需持有锁。
func (c *ResponseCache) evictOldest() {
	var oldestKey string
	var oldestAt time.Time
	for fp, entry := range c.entries {
		if oldestKey == "" || entry.lastAccessedAt.Before(oldestAt) {
			oldestKey = fp
			oldestAt = entry.lastAccessedAt
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

func (c *ResponseCache) lookup(hit bool) {
	if c.onLookup != nil {
		c.onLookup(hit)
	}
}
