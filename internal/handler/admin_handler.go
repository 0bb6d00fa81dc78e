package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"autoline-go/internal/cache"
	"autoline-go/internal/intent"
	"autoline-go/internal/metrics"
	"autoline-go/internal/service"
	"autoline-go/pkg/es"
	"autoline-go/pkg/log"
)

// 实时指标推送间隔。
const liveMetricsInterval = 5 * time.Second

// AdminHandler 负责运营后台的管理 API：指标、缓存运维与对话检索。
type AdminHandler struct {
	monitor           *metrics.Monitor
	responseCache     *cache.ResponseCache
	conversationCache *cache.ConversationCache
	conversationSvc   service.ConversationService
	matcher           *intent.Matcher
	templates         intent.TemplateSet
	upgrader          websocket.Upgrader
}

// NewAdminHandler 创建一个新的 AdminHandler 实例。
func NewAdminHandler(
	monitor *metrics.Monitor,
	responseCache *cache.ResponseCache,
	conversationCache *cache.ConversationCache,
	conversationSvc service.ConversationService,
) *AdminHandler {
	return &AdminHandler{
		monitor:           monitor,
		responseCache:     responseCache,
		conversationCache: conversationCache,
		conversationSvc:   conversationSvc,
		matcher:           intent.NewMatcher(),
		templates:         intent.DefaultTemplates(),
		upgrader: websocket.Upgrader{
			// 后台接口已有 JWT 鉴权，握手阶段不再限制来源
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// GetMetrics 返回当前性能指标快照。
func (h *AdminHandler) GetMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"code": http.StatusOK,
		"data": h.monitor.Snapshot(),
	})
}

// GetAlerts 返回按阈值评估的告警列表。
func (h *AdminHandler) GetAlerts(c *gin.Context) {
	alerts := h.monitor.Alerts()
	if alerts == nil {
		alerts = []metrics.Alert{}
	}
	c.JSON(http.StatusOK, gin.H{
		"code": http.StatusOK,
		"data": alerts,
	})
}

// ResetMetrics 清零所有性能计数器。
func (h *AdminHandler) ResetMetrics(c *gin.Context) {
	h.monitor.Reset()
	log.Infof("性能计数器已由运营后台清零")
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "计数器已清零",
	})
}

// LiveMetrics 升级为 WebSocket 连接，定时推送指标快照。
func (h *AdminHandler) LiveMetrics(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warnf("LiveMetrics: websocket upgrade failed, error: %v", err)
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(liveMetricsInterval)
	defer ticker.Stop()

	// 先推一帧再进入定时循环
	if err := conn.WriteJSON(h.monitor.Snapshot()); err != nil {
		return
	}
	for range ticker.C {
		if err := conn.WriteJSON(h.monitor.Snapshot()); err != nil {
			log.Debugf("LiveMetrics: 连接已断开, error: %v", err)
			return
		}
	}
}

// GetCacheStats 返回两级缓存的当前规模。
func (h *AdminHandler) GetCacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"code": http.StatusOK,
		"data": gin.H{
			"responseEntries":     h.responseCache.Len(),
			"conversationWindows": h.conversationCache.Len(),
		},
	})
}

// ClearCache 清理回复缓存。带 userId 参数时只清理该用户的条目
// 和短期窗口，否则清空整个回复缓存。
func (h *AdminHandler) ClearCache(c *gin.Context) {
	userID := c.Query("userId")
	if userID != "" {
		removed := h.responseCache.ClearFor(userID)
		h.conversationCache.ClearUser(userID)
		log.Infof("已清理用户缓存: userID=%s, 回复条目 %d 条", userID, removed)
		c.JSON(http.StatusOK, gin.H{
			"code": http.StatusOK,
			"data": gin.H{"removed": removed},
		})
		return
	}

	h.responseCache.Clear()
	log.Infof("回复缓存已全量清空")
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "回复缓存已清空",
	})
}

// PruneConversations 手动触发一次过期对话记录清理。
func (h *AdminHandler) PruneConversations(c *gin.Context) {
	count, err := h.conversationSvc.Prune(c.Request.Context())
	if err != nil {
		log.Error("PruneConversations: prune failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "清理失败",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code": http.StatusOK,
		"data": gin.H{"pruned": count},
	})
}

// SearchConversations 在审计索引中全文检索对话记录。
func (h *AdminHandler) SearchConversations(c *gin.Context) {
	term := c.Query("q")
	filters := es.SearchFilters{
		UserID:   c.Query("userId"),
		Priority: c.Query("priority"),
		Platform: c.Query("platform"),
	}
	if limit := c.Query("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil && n > 0 {
			filters.Limit = n
		}
	}
	if since := c.Query("since"); since != "" {
		if t, err := time.Parse(time.RFC3339, since); err == nil {
			filters.Since = t
		}
	}

	results, err := h.conversationSvc.Search(c.Request.Context(), term, filters)
	if err != nil {
		log.Error("SearchConversations: search failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "检索失败",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code": http.StatusOK,
		"data": results,
	})
}

// GetRecentConversations 返回指定用户保留期内的最近对话轮次。
func (h *AdminHandler) GetRecentConversations(c *gin.Context) {
	userID := c.Query("userId")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "userId 不能为空",
		})
		return
	}
	maxTurns := 0
	if limit := c.Query("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil {
			maxTurns = n
		}
	}

	turns, err := h.conversationSvc.LoadRecent(c.Request.Context(), userID, c.Query("platform"), maxTurns)
	if err != nil {
		log.Error("GetRecentConversations: load failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "加载对话失败",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code": http.StatusOK,
		"data": turns,
	})
}

// SuggestTemplates 对一条客户消息做模板匹配分析，
// 供客服人员在人工接管模式下挑选回复模板。
func (h *AdminHandler) SuggestTemplates(c *gin.Context) {
	text := c.Query("text")
	if text == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "text 不能为空",
		})
		return
	}

	analysis := h.matcher.Analyze(text, h.templates)
	c.JSON(http.StatusOK, gin.H{
		"code": http.StatusOK,
		"data": analysis,
	})
}

// GetConversationStats 返回持久对话记录的聚合统计。
func (h *AdminHandler) GetConversationStats(c *gin.Context) {
	stats, err := h.conversationSvc.Stats(c.Request.Context(), c.Query("userId"))
	if err != nil {
		log.Error("GetConversationStats: stats failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "统计失败",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code": http.StatusOK,
		"data": stats,
	})
}
