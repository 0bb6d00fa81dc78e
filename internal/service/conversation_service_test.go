package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autoline-go/internal/model"
	"autoline-go/pkg/tasks"
)

// fakeConversationRepo 是内存版的记录仓储，记录写入并回放预设查询结果。
type fakeConversationRepo struct {
	mu      sync.Mutex
	records []model.ConversationRecord
	loadOut []model.ConversationRecord
	saveErr error
	nextID  uint
}

func (r *fakeConversationRepo) LoadRecent(_ context.Context, _, _ string, _ int, _ time.Time) ([]model.ConversationRecord, error) {
	return r.loadOut, nil
}

func (r *fakeConversationRepo) SaveRecords(_ context.Context, records []model.ConversationRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	for i := range records {
		r.nextID++
		records[i].ID = r.nextID
		records[i].CreatedAt = time.Now()
	}
	r.records = append(r.records, records...)
	return nil
}

func (r *fakeConversationRepo) Prune(_ context.Context, _ time.Time) (int64, error) {
	return int64(len(r.records)), nil
}

func (r *fakeConversationRepo) Stats(_ context.Context, _ string) (*model.ConversationStats, error) {
	return &model.ConversationStats{TotalRecords: int64(len(r.records))}, nil
}

func TestConversationServiceSavePair(t *testing.T) {
	repo := &fakeConversationRepo{}
	var published []tasks.ConversationEventTask
	svc := NewConversationService(repo, nil, 7, 4, "conversation-audit", func(task tasks.ConversationEventTask) error {
		published = append(published, task)
		return nil
	})

	cls := &model.ClassificationResult{
		Matches:  []model.CategoryMatch{{Category: "business"}, {Category: "financial"}},
		Priority: model.PriorityMedium,
	}
	userTurn := model.ConversationTurn{Role: model.RoleUser, Content: "ราคาเท่าไหร่ครับ ผมสนใจซื้อ"}
	assistantTurn := model.ConversationTurn{Role: model.RoleAssistant, Content: assistantAnswer}

	result := svc.Save(context.Background(), "U1", userTurn, assistantTurn, SaveOptions{
		Platform:       "line",
		Classification: cls,
		FunctionCall:   true,
	})

	require.True(t, result.Success)
	assert.NotEmpty(t, result.ConversationID)

	require.Len(t, repo.records, 2)
	// user/assistant 两条记录共享同一会话 ID
	assert.Equal(t, result.ConversationID, repo.records[0].ConversationID)
	assert.Equal(t, result.ConversationID, repo.records[1].ConversationID)
	assert.Equal(t, "user", repo.records[0].Role)
	assert.Equal(t, "assistant", repo.records[1].Role)
	assert.Equal(t, "medium", repo.records[0].Priority)
	assert.Equal(t, "business,financial", repo.records[0].Categories)
	// 工具调用标记只落在 assistant 记录上
	assert.False(t, repo.records[0].FunctionCall)
	assert.True(t, repo.records[1].FunctionCall)

	// 每条记录发布一个审计事件
	require.Len(t, published, 2)
	assert.Equal(t, repo.records[0].ID, published[0].RecordID)
	assert.Equal(t, []string{"business", "financial"}, published[0].Categories)
}

func TestConversationServiceSaveFailure(t *testing.T) {
	repo := &fakeConversationRepo{saveErr: errors.New("mysql down")}
	svc := NewConversationService(repo, nil, 7, 4, "conversation-audit", nil)

	result := svc.Save(context.Background(), "U1",
		model.ConversationTurn{Role: model.RoleUser, Content: "a"},
		model.ConversationTurn{Role: model.RoleAssistant, Content: "b"},
		SaveOptions{Platform: "line"},
	)

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "mysql down")
}

func TestConversationServiceSavePublishFailureIsNonFatal(t *testing.T) {
	repo := &fakeConversationRepo{}
	svc := NewConversationService(repo, nil, 7, 4, "conversation-audit", func(tasks.ConversationEventTask) error {
		return errors.New("kafka down")
	})

	result := svc.Save(context.Background(), "U1",
		model.ConversationTurn{Role: model.RoleUser, Content: "a"},
		model.ConversationTurn{Role: model.RoleAssistant, Content: "b"},
		SaveOptions{Platform: "line"},
	)

	// 审计通道故障不影响写入结果
	assert.True(t, result.Success)
	assert.Len(t, repo.records, 2)
}

func TestConversationServiceLoadRecent(t *testing.T) {
	now := time.Now()
	repo := &fakeConversationRepo{loadOut: []model.ConversationRecord{
		{Role: "user", Content: "สนใจ Honda City", Priority: "medium", Categories: "business,financial", CreatedAt: now.Add(-time.Hour)},
		{Role: "assistant", Content: "มีครับ", CreatedAt: now.Add(-59 * time.Minute)},
	}}
	svc := NewConversationService(repo, nil, 7, 4, "conversation-audit", nil)

	turns, err := svc.LoadRecent(context.Background(), "U1", "line", 4)
	require.NoError(t, err)
	require.Len(t, turns, 2)

	assert.Equal(t, model.RoleUser, turns[0].Role)
	assert.Equal(t, "สนใจ Honda City", turns[0].Content)
	require.NotNil(t, turns[0].Meta)
	assert.Equal(t, model.PriorityMedium, turns[0].Meta.Priority)
	assert.Equal(t, []string{"business", "financial"}, turns[0].Meta.Categories)

	// 没有元数据的记录不挂空的 Meta
	assert.Nil(t, turns[1].Meta)
}
