// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"autoline-go/internal/model"
	"autoline-go/internal/repository"
	"autoline-go/internal/service"
	"autoline-go/pkg/line"
	"autoline-go/pkg/log"
)

// 处理单个事件的上限。回复整体受生成超时约束，
// 这里再留出回复通道和存储的余量。
const eventTimeout = 15 * time.Second

// WebhookHandler 负责接收 LINE 平台的消息回调。
type WebhookHandler struct {
	chatService   service.ChatService
	lineClient    line.Client
	dedupRepo     repository.EventDedupRepository
	channelSecret string
}

// lineEvent 是 LINE webhook 事件中我们关心的字段。
type lineEvent struct {
	Type           string `json:"type"`
	ReplyToken     string `json:"replyToken"`
	WebhookEventID string `json:"webhookEventId"`
	Source         struct {
		UserID string `json:"userId"`
	} `json:"source"`
	Message struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"message"`
}

type lineWebhookRequest struct {
	Events []lineEvent `json:"events"`
}

// NewWebhookHandler 创建 webhook 处理器。
func NewWebhookHandler(
	chatService service.ChatService,
	lineClient line.Client,
	dedupRepo repository.EventDedupRepository,
	channelSecret string,
) *WebhookHandler {
	return &WebhookHandler{
		chatService:   chatService,
		lineClient:    lineClient,
		dedupRepo:     dedupRepo,
		channelSecret: channelSecret,
	}
}

// HandleLine 处理 LINE 的消息回调。签名不合法直接拒绝；
// 事件处理失败不影响 200 响应，避免平台无限重投。
func (h *WebhookHandler) HandleLine(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无法读取请求体",
		})
		return
	}

	signature := c.GetHeader("X-Line-Signature")
	if !line.VerifySignature(h.channelSecret, body, signature) {
		log.Warnf("HandleLine: webhook 签名校验失败")
		c.JSON(http.StatusUnauthorized, gin.H{
			"code":    http.StatusUnauthorized,
			"message": "签名校验失败",
		})
		return
	}

	var req lineWebhookRequest
	if err := json.Unmarshal(body, &req); err != nil {
		log.Warnf("HandleLine: 解析 webhook 请求失败, error: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的请求负载",
		})
		return
	}

	for _, event := range req.Events {
		h.handleEvent(event)
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "ok"})
}

func (h *WebhookHandler) handleEvent(event lineEvent) {
	// 只处理文本消息事件，贴图、关注等事件直接忽略
	if event.Type != "message" || event.Message.Type != "text" {
		return
	}
	text := strings.TrimSpace(event.Message.Text)
	if text == "" || event.Source.UserID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	// 平台会重投未及时确认的事件，以事件 ID 去重。
	// 去重存储故障时放行，宁可重复回复也不丢消息。
	eventID := event.WebhookEventID
	if eventID == "" {
		eventID = event.Message.ID
	}
	if h.dedupRepo != nil && eventID != "" {
		first, err := h.dedupRepo.MarkProcessed(ctx, eventID)
		if err != nil {
			log.Warnf("handleEvent: 事件去重检查失败, eventID=%s, error: %v", eventID, err)
		} else if !first {
			log.Debugf("handleEvent: 重复事件已跳过, eventID=%s", eventID)
			return
		}
	}

	mctx := model.MessageContext{
		UserID:           event.Source.UserID,
		Platform:         "line",
		HasDomainContext: true,
	}
	reply := h.chatService.HandleMessage(ctx, text, mctx)

	if err := h.lineClient.Reply(ctx, event.ReplyToken, reply); err != nil {
		log.Warnf("handleEvent: reply 通道失败，改用 push, userID=%s, error: %v", event.Source.UserID, err)
		if err := h.lineClient.Push(ctx, event.Source.UserID, reply); err != nil {
			log.Error("handleEvent: push 通道同样失败，回复丢失", err)
		}
	}
}
