package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"autoline-go/internal/cache"
	"autoline-go/internal/intent"
	"autoline-go/internal/metrics"
	"autoline-go/internal/model"
	"autoline-go/pkg/llm"
	"autoline-go/pkg/log"
)

const defaultGenerateTimeout = 8 * time.Second

// 生成失败与超时的兜底回复。兜底回复标记 Degraded，
// 永远不会进入回复缓存或触发持久化。
const (
	timeoutApology = "ขออภัยค่ะ ระบบใช้เวลานานกว่าปกติ รบกวนส่งข้อความอีกครั้งนะคะ"
	errorApology   = "ขออภัยค่ะ ขณะนี้ระบบขัดข้อง รบกวนลองใหม่อีกสักครู่นะคะ"
)

// importantPhrases 出现在助手回复里说明对话产生了业务承诺
// （约了试驾、答应回电等），即使分类器没判定持久化也要落库。
var importantPhrases = []string{
	"นัดหมาย", "ติดต่อกลับ", "ยืนยันการจอง", "เซลล์จะติดต่อ", "ทดลองขับ",
}

// ChatService 是消息处理管道的编排入口。
type ChatService interface {
	// HandleMessage 处理一条进站消息并返回回复。任何内部故障都以
	// 兜底回复的形式体现，不向调用方抛错。
	HandleMessage(ctx context.Context, text string, mctx model.MessageContext) *model.Reply
}

type chatService struct {
	llmClient         llm.Client
	conversationSvc   ConversationService
	responseCache     *cache.ResponseCache
	conversationCache *cache.ConversationCache
	classifier        *intent.Classifier
	shaper            *ResponseShaper
	monitor           *metrics.Monitor
	systemPrompt      string
	historyMax        int
	genTimeout        time.Duration
}

// NewChatService 组装消息处理管道。genTimeout 为零时默认 8 秒。
func NewChatService(
	llmClient llm.Client,
	conversationSvc ConversationService,
	responseCache *cache.ResponseCache,
	conversationCache *cache.ConversationCache,
	classifier *intent.Classifier,
	shaper *ResponseShaper,
	monitor *metrics.Monitor,
	systemPrompt string,
	historyMax int,
	genTimeout time.Duration,
) ChatService {
	if genTimeout <= 0 {
		genTimeout = defaultGenerateTimeout
	}
	if historyMax <= 0 {
		historyMax = defaultHistoryMaxTurns
	}
	return &chatService{
		llmClient:         llmClient,
		conversationSvc:   conversationSvc,
		responseCache:     responseCache,
		conversationCache: conversationCache,
		classifier:        classifier,
		shaper:            shaper,
		monitor:           monitor,
		systemPrompt:      systemPrompt,
		historyMax:        historyMax,
		genTimeout:        genTimeout,
	}
}

func (s *chatService) HandleMessage(ctx context.Context, text string, mctx model.MessageContext) *model.Reply {
	start := time.Now()
	reply := s.process(ctx, text, mctx)
	s.monitor.RecordRequest(time.Since(start), !reply.Degraded)
	return reply
}

func (s *chatService) process(ctx context.Context, text string, mctx model.MessageContext) *model.Reply {
	// 1. 缓存命中直接短路，不触碰分类器和存储
	fingerprint := cache.Fingerprint(text, mctx)
	if cached := s.responseCache.Get(fingerprint); cached != nil {
		log.Debugf("回复缓存命中: userID=%s", mctx.UserID)
		return cached
	}

	// 2. 分类决定上下文来源与持久化
	cls := s.classifier.Classify(text)

	// 3. 加载上下文：需要历史时查长期存储，失败或为空时退回短期窗口
	contextTurns := s.loadContext(ctx, mctx, cls)

	// 4. 带超时竞速生成
	result, reply := s.generate(ctx, text, contextTurns)
	if reply != nil {
		return reply
	}

	// 5. 响应整形 + 写回复缓存
	shaped, functionCalled := s.shaper.Shape(result)
	s.responseCache.Set(fingerprint, mctx.UserID, shaped)

	// 6. 无条件更新短期窗口
	now := time.Now()
	userTurn := model.ConversationTurn{Role: model.RoleUser, Content: text, Timestamp: now}
	assistantTurn := model.ConversationTurn{Role: model.RoleAssistant, Content: shaped.Text, Timestamp: now}
	if cls.Priority != "" || len(cls.Matches) > 0 {
		userTurn.Meta = &model.TurnMeta{Priority: cls.Priority, Categories: cls.Categories()}
	}
	s.conversationCache.AddTurn(mctx.UserID, userTurn)
	s.conversationCache.AddTurn(mctx.UserID, assistantTurn)

	// 7. 持久化判定：分类器判定、富回复、或回复里出现业务承诺
	if cls.ShouldPersist || shaped.Type == model.ReplyRich || containsImportantPhrase(shaped.Text) {
		storeStart := time.Now()
		saved := s.conversationSvc.Save(ctx, mctx.UserID, userTurn, assistantTurn, SaveOptions{
			Platform:       mctx.Platform,
			Classification: cls,
			FunctionCall:   functionCalled,
		})
		s.monitor.RecordStore(time.Since(storeStart), saved.Success)
		if !saved.Success {
			log.Warnf("持久化失败，回复照常返回: userID=%s, err=%s", mctx.UserID, saved.Error)
		}
	}

	return shaped
}

// loadContext 按分类结果选择上下文来源。长期存储失败只降级不中断。
func (s *chatService) loadContext(ctx context.Context, mctx model.MessageContext, cls *model.ClassificationResult) []model.ConversationTurn {
	if cls.NeedsHistory {
		loadStart := time.Now()
		turns, err := s.conversationSvc.LoadRecent(ctx, mctx.UserID, mctx.Platform, s.historyMax)
		s.monitor.RecordStore(time.Since(loadStart), err == nil)
		if err != nil {
			log.Warnf("加载历史对话失败，退回短期窗口: userID=%s, err=%v", mctx.UserID, err)
		} else if len(turns) > 0 {
			return turns
		}
	}
	return s.conversationCache.GetWindow(mctx.UserID)
}

// generate 在独立协程中调用模型并与超时竞速。通道带缓冲，
// 迟到的结果只会被丢弃，不产生任何副作用。
// 成功时返回 (result, nil)，失败或超时返回 (nil, 兜底回复)。
func (s *chatService) generate(ctx context.Context, text string, contextTurns []model.ConversationTurn) (*llm.ChatResult, *model.Reply) {
	messages := make([]llm.Message, 0, len(contextTurns)+2)
	if s.systemPrompt != "" {
		messages = append(messages, llm.Message{Role: string(model.RoleSystem), Content: s.systemPrompt})
	}
	for _, turn := range contextTurns {
		messages = append(messages, llm.Message{Role: string(turn.Role), Content: turn.Content})
	}
	messages = append(messages, llm.Message{Role: string(model.RoleUser), Content: text})

	genCtx, cancel := context.WithTimeout(ctx, s.genTimeout)
	defer cancel()

	type genOut struct {
		result *llm.ChatResult
		err    error
	}
	ch := make(chan genOut, 1)
	genStart := time.Now()
	go func() {
		result, err := s.llmClient.ChatMessages(genCtx, messages, nil)
		ch <- genOut{result, err}
	}()

	select {
	case out := <-ch:
		if out.err != nil {
			timedOut := errors.Is(out.err, context.DeadlineExceeded)
			s.monitor.RecordGeneration(time.Since(genStart), false, timedOut)
			log.Error("生成回复失败", out.err)
			if timedOut {
				return nil, degraded(timeoutApology)
			}
			return nil, degraded(errorApology)
		}
		s.monitor.RecordGeneration(time.Since(genStart), true, false)
		return out.result, nil
	case <-genCtx.Done():
		timedOut := errors.Is(genCtx.Err(), context.DeadlineExceeded)
		s.monitor.RecordGeneration(time.Since(genStart), false, timedOut)
		log.Warnf("生成回复超时，返回兜底回复: timeout=%s", s.genTimeout)
		return nil, degraded(timeoutApology)
	}
}

func degraded(text string) *model.Reply {
	reply := model.NewTextReply(text)
	reply.Degraded = true
	return reply
}

func containsImportantPhrase(text string) bool {
	for _, phrase := range importantPhrases {
		if strings.Contains(text, phrase) {
			return true
		}
	}
	return false
}
