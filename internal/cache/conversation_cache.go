package cache

import (
	"sync"
	"time"

	"autoline-go/internal/model"
)

const (
	defaultWindowSize     = 8
	defaultWindowTimeout  = 15 * time.Minute
	defaultWindowCapacity = 500
)

type userWindow struct {
	turns        []model.ConversationTurn
	lastActivity time.Time
}

// ConversationCache 是按用户维护的短期对话窗口，充当廉价的会话记忆。
// 窗口长度与不活跃超时都有上界，超时窗口在下次读取时按空处理并删除。
type ConversationCache struct {
	mu       sync.Mutex
	windows  map[string]*userWindow
	maxTurns int
	timeout  time.Duration
	capacity int
	now      func() time.Time
}

// NewConversationCache 创建短期对话缓存，参数为零时使用默认值
// （8 轮、15 分钟超时、500 个并发窗口）。
func NewConversationCache(maxTurns int, timeout time.Duration, capacity int) *ConversationCache {
	if maxTurns <= 0 {
		maxTurns = defaultWindowSize
	}
	if timeout <= 0 {
		timeout = defaultWindowTimeout
	}
	if capacity <= 0 {
		capacity = defaultWindowCapacity
	}
	return &ConversationCache{
		windows:  make(map[string]*userWindow),
		maxTurns: maxTurns,
		timeout:  timeout,
		capacity: capacity,
		now:      time.Now,
	}
}

// GetWindow 返回用户窗口内的对话轮次（按时间先后）。
// 窗口超过不活跃时限时视为空并删除。返回的切片是副本。
func (c *ConversationCache) GetWindow(userID string) []model.ConversationTurn {
	c.mu.Lock()
	defer c.mu.Unlock()

	w, ok := c.windows[userID]
	if !ok {
		return nil
	}
	if c.now().Sub(w.lastActivity) > c.timeout {
		delete(c.windows, userID)
		return nil
	}
	turns := make([]model.ConversationTurn, len(w.turns))
	copy(turns, w.turns)
	return turns
}

// AddTurn 向用户窗口追加一轮对话，超出窗口长度时静默丢弃最旧的。
// 并发窗口数超过上限时先做一次全量清理（协作式上限，不是硬约束）。
func (c *ConversationCache) AddTurn(userID string, turn model.ConversationTurn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	w, ok := c.windows[userID]
	if !ok {
		if len(c.windows) >= c.capacity {
			c.sweepLocked()
		}
		w = &userWindow{}
		c.windows[userID] = w
	}
	w.turns = append(w.turns, turn)
	if len(w.turns) > c.maxTurns {
		w.turns = w.turns[len(w.turns)-c.maxTurns:]
	}
	w.lastActivity = c.now()
}

// HasActive 判断用户是否存在未超时的窗口。
func (c *ConversationCache) HasActive(userID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	w, ok := c.windows[userID]
	return ok && c.now().Sub(w.lastActivity) <= c.timeout
}

// ClearUser 删除指定用户的窗口。
func (c *ConversationCache) ClearUser(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.windows, userID)
}

// Sweep 删除所有不活跃窗口，返回删除数量。
func (c *ConversationCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sweepLocked()
}

// Len 返回当前窗口数。
func (c *ConversationCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.windows)
}

func (c *ConversationCache) sweepLocked() int {
	now := c.now()
	removed := 0
	for userID, w := range c.windows {
		if now.Sub(w.lastActivity) > c.timeout {
			delete(c.windows, userID)
			removed++
		}
	}
	return removed
}
