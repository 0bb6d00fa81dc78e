package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autoline-go/internal/cache"
	"autoline-go/internal/config"
	"autoline-go/internal/intent"
	"autoline-go/internal/metrics"
	"autoline-go/internal/model"
	"autoline-go/pkg/es"
	"autoline-go/pkg/llm"
	"autoline-go/pkg/tasks"
)

const assistantAnswer = "รถรุ่นนี้เรามีหลายคันให้เลือกชมครับ เชิญที่เต็นท์ได้เลยครับ"

// stubLLM 是可控的生成客户端：可配置固定结果、错误或一直阻塞到超时。
type stubLLM struct {
	mu           sync.Mutex
	calls        int
	lastMessages []llm.Message
	result       *llm.ChatResult
	err          error
	block        bool
}

func (s *stubLLM) ChatMessages(ctx context.Context, messages []llm.Message, _ *llm.GenerationParams) (*llm.ChatResult, error) {
	s.mu.Lock()
	s.calls++
	s.lastMessages = messages
	s.mu.Unlock()

	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.result, s.err
}

func (s *stubLLM) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *stubLLM) messages() []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastMessages
}

type savedPair struct {
	userID        string
	userTurn      model.ConversationTurn
	assistantTurn model.ConversationTurn
	opts          SaveOptions
}

// fakeConversationService 记录持久化调用，可注入历史与故障。
type fakeConversationService struct {
	mu       sync.Mutex
	saved    []savedPair
	history  []model.ConversationTurn
	loadErr  error
	saveFail bool
	loads    int
}

func (f *fakeConversationService) LoadRecent(_ context.Context, _, _ string, _ int) ([]model.ConversationTurn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.history, nil
}

func (f *fakeConversationService) Save(_ context.Context, userID string, userTurn, assistantTurn model.ConversationTurn, opts SaveOptions) *SaveResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveFail {
		return &SaveResult{Success: false, Error: "store unavailable"}
	}
	f.saved = append(f.saved, savedPair{userID, userTurn, assistantTurn, opts})
	return &SaveResult{Success: true, ConversationID: "conv-1"}
}

func (f *fakeConversationService) Prune(context.Context) (int64, error) { return 0, nil }

func (f *fakeConversationService) Stats(context.Context, string) (*model.ConversationStats, error) {
	return &model.ConversationStats{}, nil
}

func (f *fakeConversationService) Search(context.Context, string, es.SearchFilters) ([]tasks.ConversationEventTask, error) {
	return nil, nil
}

func (f *fakeConversationService) savedPairs() []savedPair {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saved
}

func (f *fakeConversationService) loadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loads
}

type chatFixture struct {
	svc     ChatService
	llm     *stubLLM
	store   *fakeConversationService
	monitor *metrics.Monitor
}

func newChatFixture(llmStub *stubLLM, store *fakeConversationService, genTimeout time.Duration) *chatFixture {
	monitor := metrics.NewMonitor()
	return &chatFixture{
		svc: NewChatService(
			llmStub,
			store,
			cache.NewResponseCache(time.Minute, 100, monitor.RecordCache),
			cache.NewConversationCache(8, time.Minute, 100),
			intent.NewClassifier(),
			NewResponseShaper(config.MinIOConfig{BucketName: "car-images"}),
			monitor,
			"you are a dealership assistant",
			4,
			genTimeout,
		),
		llm:     llmStub,
		store:   store,
		monitor: monitor,
	}
}

func lineContext(userID string) model.MessageContext {
	return model.MessageContext{UserID: userID, Platform: "line", HasDomainContext: true}
}

func TestHandleMessageGeneratesReply(t *testing.T) {
	fx := newChatFixture(
		&stubLLM{result: &llm.ChatResult{Text: assistantAnswer}},
		&fakeConversationService{},
		time.Second,
	)

	reply := fx.svc.HandleMessage(context.Background(), "มีรถ Honda City ไหมครับ", lineContext("U1"))

	require.NotNil(t, reply)
	assert.Equal(t, model.ReplyText, reply.Type)
	assert.Equal(t, assistantAnswer, reply.Text)
	assert.False(t, reply.Degraded)

	snap := fx.monitor.Snapshot()
	assert.Equal(t, int64(1), snap.GenerationTotal)
	assert.Equal(t, int64(1), snap.RequestTotal)
	assert.Zero(t, snap.RequestErrors)
}

func TestHandleMessageCacheHit(t *testing.T) {
	stub := &stubLLM{result: &llm.ChatResult{Text: assistantAnswer}}
	fx := newChatFixture(stub, &fakeConversationService{}, time.Second)
	mctx := lineContext("U1")

	first := fx.svc.HandleMessage(context.Background(), "มีรถ Honda City ไหมครับ", mctx)
	second := fx.svc.HandleMessage(context.Background(), "มีรถ Honda City ไหมครับ", mctx)

	assert.Equal(t, first.Text, second.Text)
	// 命中缓存时不再触碰生成服务
	assert.Equal(t, 1, stub.callCount())

	snap := fx.monitor.Snapshot()
	assert.Equal(t, int64(1), snap.CacheHits)
	assert.Equal(t, int64(1), snap.CacheMisses)
}

func TestHandleMessageCacheIsolatedPerUser(t *testing.T) {
	stub := &stubLLM{result: &llm.ChatResult{Text: assistantAnswer}}
	fx := newChatFixture(stub, &fakeConversationService{}, time.Second)

	fx.svc.HandleMessage(context.Background(), "มีรถ Honda City ไหมครับ", lineContext("U1"))
	fx.svc.HandleMessage(context.Background(), "มีรถ Honda City ไหมครับ", lineContext("U2"))

	// 不同用户指纹不同，各自都要生成
	assert.Equal(t, 2, stub.callCount())
}

func TestHandleMessageTimeout(t *testing.T) {
	fx := newChatFixture(&stubLLM{block: true}, &fakeConversationService{}, 50*time.Millisecond)

	reply := fx.svc.HandleMessage(context.Background(), "มีรถ Honda City ไหมครับ", lineContext("U1"))

	require.NotNil(t, reply)
	assert.True(t, reply.Degraded)
	assert.Equal(t, timeoutApology, reply.Text)

	snap := fx.monitor.Snapshot()
	assert.Equal(t, int64(1), snap.GenerationTimeouts)
	assert.Equal(t, int64(1), snap.RequestErrors)
	// 兜底回复不进入缓存也不落库
	assert.Empty(t, fx.store.savedPairs())
}

func TestHandleMessageTimeoutNotCached(t *testing.T) {
	stub := &stubLLM{block: true}
	fx := newChatFixture(stub, &fakeConversationService{}, 50*time.Millisecond)
	mctx := lineContext("U1")

	fx.svc.HandleMessage(context.Background(), "มีรถ Honda City ไหมครับ", mctx)
	fx.svc.HandleMessage(context.Background(), "มีรถ Honda City ไหมครับ", mctx)

	// 两次都必须真正走到生成，证明兜底回复没有被缓存
	assert.Equal(t, 2, stub.callCount())
}

func TestHandleMessageGenerationError(t *testing.T) {
	fx := newChatFixture(
		&stubLLM{err: errors.New("upstream 500")},
		&fakeConversationService{},
		time.Second,
	)

	reply := fx.svc.HandleMessage(context.Background(), "มีรถ Honda City ไหมครับ", lineContext("U1"))

	assert.True(t, reply.Degraded)
	assert.Equal(t, errorApology, reply.Text)
	assert.Equal(t, int64(1), fx.monitor.Snapshot().GenerationErrors)
}

func TestHandleMessagePersistsSalesLead(t *testing.T) {
	fx := newChatFixture(
		&stubLLM{result: &llm.ChatResult{Text: assistantAnswer}},
		&fakeConversationService{},
		time.Second,
	)

	// business+financial 组合是需要跟进的销售线索，必须落库
	fx.svc.HandleMessage(context.Background(), "ราคาเท่าไหร่ครับ ผมสนใจซื้อ", lineContext("U1"))

	saved := fx.store.savedPairs()
	require.Len(t, saved, 1)
	assert.Equal(t, "U1", saved[0].userID)
	assert.Equal(t, model.RoleUser, saved[0].userTurn.Role)
	assert.Equal(t, model.RoleAssistant, saved[0].assistantTurn.Role)
	assert.Equal(t, "line", saved[0].opts.Platform)
	require.NotNil(t, saved[0].opts.Classification)
	assert.Equal(t, model.PriorityMedium, saved[0].opts.Classification.Priority)
}

func TestHandleMessageSkipsPersistForSmallTalk(t *testing.T) {
	fx := newChatFixture(
		&stubLLM{result: &llm.ChatResult{Text: assistantAnswer}},
		&fakeConversationService{},
		time.Second,
	)

	fx.svc.HandleMessage(context.Background(), "วันนี้อากาศดีนะครับ", lineContext("U1"))

	assert.Empty(t, fx.store.savedPairs())
}

func TestHandleMessagePersistsImportantReply(t *testing.T) {
	// 入站消息本身不触发持久化，但助手回复里出现了业务承诺
	fx := newChatFixture(
		&stubLLM{result: &llm.ChatResult{Text: "ได้ครับ เดี๋ยวเซลล์จะติดต่อกลับภายในวันนี้นะครับ"}},
		&fakeConversationService{},
		time.Second,
	)

	fx.svc.HandleMessage(context.Background(), "วันนี้อากาศดีนะครับ", lineContext("U1"))

	assert.Len(t, fx.store.savedPairs(), 1)
}

func TestHandleMessageStoreOutageDoesNotBlockReply(t *testing.T) {
	fx := newChatFixture(
		&stubLLM{result: &llm.ChatResult{Text: assistantAnswer}},
		&fakeConversationService{saveFail: true},
		time.Second,
	)

	reply := fx.svc.HandleMessage(context.Background(), "ผมจะร้องเรียน ขอคืนเงิน", lineContext("U1"))

	// 存储故障只体现在存储指标上，回复照常返回
	assert.False(t, reply.Degraded)
	assert.Equal(t, assistantAnswer, reply.Text)

	snap := fx.monitor.Snapshot()
	assert.Equal(t, int64(1), snap.StoreErrors)
	assert.Zero(t, snap.RequestErrors)
}

func TestHandleMessageLoadsHistoryForBackReference(t *testing.T) {
	history := []model.ConversationTurn{
		{Role: model.RoleUser, Content: "สนใจ Honda City ปี 2020", Timestamp: time.Now()},
		{Role: model.RoleAssistant, Content: "คันนี้ราคา 450,000 บาทครับ", Timestamp: time.Now()},
	}
	stub := &stubLLM{result: &llm.ChatResult{Text: assistantAnswer}}
	store := &fakeConversationService{history: history}
	fx := newChatFixture(stub, store, time.Second)

	fx.svc.HandleMessage(context.Background(), "คันนั้นยังอยู่ไหมครับ", lineContext("U1"))

	assert.Equal(t, 1, store.loadCount())
	// system + 2 条历史 + 当前消息
	msgs := stub.messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, "system", msgs[0].Role)
	assert.Equal(t, "สนใจ Honda City ปี 2020", msgs[1].Content)
	assert.Equal(t, "คันนั้นยังอยู่ไหมครับ", msgs[3].Content)
}

func TestHandleMessageHistoryOutageFallsBackToWindow(t *testing.T) {
	stub := &stubLLM{result: &llm.ChatResult{Text: assistantAnswer}}
	store := &fakeConversationService{loadErr: errors.New("db down")}
	fx := newChatFixture(stub, store, time.Second)
	mctx := lineContext("U1")

	// 先积累一轮短期窗口
	fx.svc.HandleMessage(context.Background(), "มีรถ Honda City ไหมครับ", mctx)
	// 回指消息触发历史加载，存储故障时退回短期窗口
	reply := fx.svc.HandleMessage(context.Background(), "คันนั้นยังอยู่ไหมครับ", mctx)

	assert.False(t, reply.Degraded)
	msgs := stub.messages()
	// system + 窗口里的 2 条 + 当前消息
	require.Len(t, msgs, 4)
	assert.Equal(t, "มีรถ Honda City ไหมครับ", msgs[1].Content)
}

func TestHandleMessageUpdatesWindowUnconditionally(t *testing.T) {
	stub := &stubLLM{result: &llm.ChatResult{Text: assistantAnswer}}
	fx := newChatFixture(stub, &fakeConversationService{}, time.Second)
	mctx := lineContext("U1")

	// 闲聊不落库，但短期窗口照样更新
	fx.svc.HandleMessage(context.Background(), "วันนี้อากาศดีนะครับ", mctx)
	fx.svc.HandleMessage(context.Background(), "คันนั้นยังอยู่ไหมครับ", mctx)

	msgs := stub.messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, "วันนี้อากาศดีนะครับ", msgs[1].Content)
	assert.Equal(t, assistantAnswer, msgs[2].Content)
}
