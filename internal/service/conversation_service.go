// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"autoline-go/internal/model"
	"autoline-go/internal/repository"
	"autoline-go/pkg/es"
	"autoline-go/pkg/log"
	"autoline-go/pkg/tasks"
)

const (
	defaultRetentionDays   = 7
	defaultHistoryMaxTurns = 4
)

// SaveOptions 携带一次持久化写入的附加信息。
type SaveOptions struct {
	Platform       string
	Classification *model.ClassificationResult
	FunctionCall   bool
}

// SaveResult 是持久化写入的结构化结果。存储故障不向上抛错，
// 调用方通过 Success/Error 判断，绝不因此阻塞用户回复。
type SaveResult struct {
	Success        bool   `json:"success"`
	ConversationID string `json:"conversationId,omitempty"`
	Error          string `json:"error,omitempty"`
}

// ConversationService 定义了长期对话存储的业务接口。
type ConversationService interface {
	// LoadRecent 加载保留期内该用户最近的对话轮次，按时间先后返回。
	LoadRecent(ctx context.Context, userID, platform string, maxTurns int) ([]model.ConversationTurn, error)
	// Save 以同一会话 ID 持久化一对 user/assistant 轮次。
	Save(ctx context.Context, userID string, userTurn, assistantTurn model.ConversationTurn, opts SaveOptions) *SaveResult
	// Prune 删除超过保留期的记录。
	Prune(ctx context.Context) (int64, error)
	// Stats 返回持久记录的聚合统计，userID 为空时统计全量。
	Stats(ctx context.Context, userID string) (*model.ConversationStats, error)
	// Search 在审计索引中全文检索对话。
	Search(ctx context.Context, term string, filters es.SearchFilters) ([]tasks.ConversationEventTask, error)
}

type conversationService struct {
	repo         repository.ConversationRepository
	customerRepo repository.CustomerRepository
	retention    time.Duration
	historyMax   int
	esIndex      string
	publishEvent func(tasks.ConversationEventTask) error
}

// NewConversationService 创建长期对话存储服务。
// retentionDays/historyMax 为零时使用默认值（7 天 / 4 轮），
// publishEvent 用于发布审计事件（通常是 Kafka 生产者），可以为 nil。
func NewConversationService(
	repo repository.ConversationRepository,
	customerRepo repository.CustomerRepository,
	retentionDays, historyMax int,
	esIndex string,
	publishEvent func(tasks.ConversationEventTask) error,
) ConversationService {
	if retentionDays <= 0 {
		retentionDays = defaultRetentionDays
	}
	if historyMax <= 0 {
		historyMax = defaultHistoryMaxTurns
	}
	return &conversationService{
		repo:         repo,
		customerRepo: customerRepo,
		retention:    time.Duration(retentionDays) * 24 * time.Hour,
		historyMax:   historyMax,
		esIndex:      esIndex,
		publishEvent: publishEvent,
	}
}

func (s *conversationService) LoadRecent(ctx context.Context, userID, platform string, maxTurns int) ([]model.ConversationTurn, error) {
	if maxTurns <= 0 || maxTurns > s.historyMax {
		maxTurns = s.historyMax
	}
	cutoff := time.Now().Add(-s.retention)
	records, err := s.repo.LoadRecent(ctx, userID, platform, maxTurns, cutoff)
	if err != nil {
		return nil, err
	}

	turns := make([]model.ConversationTurn, 0, len(records))
	for _, rec := range records {
		turn := model.ConversationTurn{
			Role:      model.Role(rec.Role),
			Content:   rec.Content,
			Timestamp: rec.CreatedAt,
		}
		if rec.Priority != "" || rec.Categories != "" || rec.FunctionCall {
			turn.Meta = &model.TurnMeta{
				Priority:     model.Priority(rec.Priority),
				FunctionCall: rec.FunctionCall,
			}
			if rec.Categories != "" {
				turn.Meta.Categories = strings.Split(rec.Categories, ",")
			}
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

func (s *conversationService) Save(ctx context.Context, userID string, userTurn, assistantTurn model.ConversationTurn, opts SaveOptions) *SaveResult {
	// 会话 ID 用时间戳+用户 ID 生成，user/assistant 两条记录共享
	conversationID := fmt.Sprintf("%d-%s", time.Now().UnixNano(), userID)

	// 身份解析尽力而为，失败时 CustomerID 留空照常落库
	var customerID *uint
	if s.customerRepo != nil {
		customer, err := s.customerRepo.FindByLineUserID(ctx, userID)
		if err != nil {
			log.Warnf("解析客户身份失败，记录将不关联客户档案: userID=%s, err=%v", userID, err)
		} else if customer != nil {
			customerID = &customer.ID
		}
	}

	priority := string(model.PriorityLow)
	categories := ""
	if opts.Classification != nil {
		priority = string(opts.Classification.Priority)
		categories = strings.Join(opts.Classification.Categories(), ",")
	}

	records := []model.ConversationRecord{
		{
			UserID:         userID,
			CustomerID:     customerID,
			ConversationID: conversationID,
			Role:           string(userTurn.Role),
			Content:        userTurn.Content,
			Priority:       priority,
			Categories:     categories,
			FunctionCall:   false,
			Platform:       opts.Platform,
		},
		{
			UserID:         userID,
			CustomerID:     customerID,
			ConversationID: conversationID,
			Role:           string(assistantTurn.Role),
			Content:        assistantTurn.Content,
			Priority:       priority,
			Categories:     categories,
			FunctionCall:   opts.FunctionCall,
			Platform:       opts.Platform,
		},
	}

	if err := s.repo.SaveRecords(ctx, records); err != nil {
		log.Error("持久化对话记录失败", err)
		return &SaveResult{Success: false, Error: err.Error()}
	}

	// 审计事件发布失败只记日志，检索索引允许短暂落后
	if s.publishEvent != nil {
		for _, rec := range records {
			event := tasks.ConversationEventTask{
				RecordID:       rec.ID,
				ConversationID: rec.ConversationID,
				UserID:         rec.UserID,
				Role:           rec.Role,
				Content:        rec.Content,
				Priority:       rec.Priority,
				FunctionCall:   rec.FunctionCall,
				Platform:       rec.Platform,
				CreatedAt:      rec.CreatedAt,
			}
			if categories != "" {
				event.Categories = strings.Split(categories, ",")
			}
			if err := s.publishEvent(event); err != nil {
				log.Warnf("发布对话审计事件失败: recordID=%d, err=%v", rec.ID, err)
			}
		}
	}

	return &SaveResult{Success: true, ConversationID: conversationID}
}

func (s *conversationService) Prune(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-s.retention)
	count, err := s.repo.Prune(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		log.Infof("对话记录清理完成，删除 %d 条过期记录", count)
	}
	return count, nil
}

func (s *conversationService) Stats(ctx context.Context, userID string) (*model.ConversationStats, error) {
	return s.repo.Stats(ctx, userID)
}

func (s *conversationService) Search(ctx context.Context, term string, filters es.SearchFilters) ([]tasks.ConversationEventTask, error) {
	return es.SearchConversations(ctx, s.esIndex, term, filters)
}
