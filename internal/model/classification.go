package model

// Priority 是一条消息业务重要度的三级分类。
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

var priorityRank = map[Priority]int{
	PriorityLow:    0,
	PriorityMedium: 1,
	PriorityHigh:   2,
}

// Rank 返回优先级的序值，用于比较（low < medium < high）。
func (p Priority) Rank() int {
	return priorityRank[p]
}

// Max 返回两个优先级中较高的一个。
func (p Priority) Max(other Priority) Priority {
	if other.Rank() > p.Rank() {
		return other
	}
	return p
}

// CategoryMatch 记录单个分类命中的关键词列表。
type CategoryMatch struct {
	Category string   `json:"category"`
	Keywords []string `json:"keywords"`
}

// ClassificationResult 是关键词分类器对一条消息的判定结果。
// 它是纯计算产物，每条消息重新计算，本身不持久化。
type ClassificationResult struct {
	Matches       []CategoryMatch `json:"matches"`
	Confidence    float64         `json:"confidence"`
	Priority      Priority        `json:"priority"`
	ShouldPersist bool            `json:"shouldPersist"`
	NeedsHistory  bool            `json:"needsHistory"`
}

// Categories 返回按命中顺序排列的分类名列表。
func (r *ClassificationResult) Categories() []string {
	names := make([]string, 0, len(r.Matches))
	for _, m := range r.Matches {
		names = append(names, m.Category)
	}
	return names
}

// HasCategory 判断结果中是否命中了指定分类。
func (r *ClassificationResult) HasCategory(name string) bool {
	for _, m := range r.Matches {
		if m.Category == name {
			return true
		}
	}
	return false
}
