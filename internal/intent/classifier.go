// Package intent 提供两个纯函数组件：关键词分类器（决定持久化策略）
// 与模板匹配器（半自动回复模式下挑选回复模板）。两者无副作用、结果确定。
package intent

import (
	"strings"

	"autoline-go/internal/model"
)

// 分类器的关键词分类名。
const (
	CategoryCritical         = "critical"
	CategoryBusiness         = "business"
	CategoryAppointments     = "appointments"
	CategoryContact          = "contact"
	CategoryContextDependent = "contextDependent"
	CategoryFinancial        = "financial"
)

type categoryDef struct {
	name     string
	keywords []string
}

// 触发词为大小写不敏感的子串匹配，泰英双语。声明顺序固定，保证结果确定。
var classifierCategories = []categoryDef{
	{CategoryCritical, []string{
		"ร้องเรียน", "โกง", "หลอก", "ฟ้อง", "แย่มาก", "ไม่พอใจ", "คืนเงิน",
		"complaint", "refund", "scam", "lawyer",
	}},
	{CategoryBusiness, []string{
		"สนใจ", "ซื้อ", "จอง", "ออกรถ", "เทิร์น", "ขายรถ", "รับซื้อ",
		"buy", "interested", "trade-in",
	}},
	{CategoryAppointments, []string{
		"นัด", "เข้ามาดู", "ทดลองขับ", "เทสไดรฟ์", "เข้าไปดูรถ", "กี่โมง", "วันไหน",
		"test drive", "appointment", "visit",
	}},
	{CategoryContact, []string{
		"เบอร์", "โทร", "ติดต่อ", "ไลน์", "ที่อยู่", "แผนที่", "พิกัด",
		"contact", "call", "email", "address",
	}},
	{CategoryContextDependent, []string{
		"คันนั้น", "คันนี้", "คันเดิม", "อันนั้น", "ตัวนั้น", "ที่ว่า",
		"that one", "this one", "the same car",
	}},
	{CategoryFinancial, []string{
		"ราคา", "เท่าไหร่", "เท่าไร", "ผ่อน", "ดาวน์", "ดอกเบี้ย", "ไฟแนนซ์", "งวด",
		"price", "finance", "installment", "down payment",
	}},
}

// persistRule 把命中的分类组合映射到输出策略。
// 规则按序累加评估：优先级取所有命中规则的最大值，
// 两个布尔量取所有命中规则的逻辑或，后评估的规则只会抬高优先级。
type persistRule struct {
	categories    []string
	priority      model.Priority
	alwaysPersist bool
	needsHistory  bool
}

var persistRules = []persistRule{
	// 单分类规则
	{[]string{CategoryCritical}, model.PriorityHigh, true, false},
	{[]string{CategoryAppointments}, model.PriorityMedium, true, false},
	{[]string{CategoryBusiness}, model.PriorityLow, false, false},
	{[]string{CategoryFinancial}, model.PriorityLow, false, false},
	{[]string{CategoryContact}, model.PriorityLow, false, false},
	{[]string{CategoryContextDependent}, model.PriorityLow, false, true},
	// 组合规则：同时谈钱又表达购买意向，是需要跟进的销售线索
	{[]string{CategoryBusiness, CategoryFinancial}, model.PriorityMedium, true, false},
	{[]string{CategoryBusiness, CategoryAppointments}, model.PriorityHigh, true, false},
	{[]string{CategoryBusiness, CategoryContact}, model.PriorityMedium, true, false},
	{[]string{CategoryBusiness, CategoryFinancial, CategoryAppointments}, model.PriorityHigh, true, false},
}

// 回指表达：消息引用了先前的对话内容，需要加载历史上下文。
var historyPatterns = []string{
	"ตามที่คุย", "ที่คุยกัน", "ที่คุยไว้", "เมื่อกี้", "ก่อนหน้านี้", "เหมือนเดิม", "ที่บอกไป",
	"what we discussed", "go back to", "same as before", "as i said",
}

// Classifier 按固定关键词表对入站消息做重要度分类。
// 它是编排器决定是否持久化一轮对话的唯一依据。
type Classifier struct{}

// NewClassifier 创建关键词分类器。
func NewClassifier() *Classifier {
	return &Classifier{}
}

// Classify 对消息文本做确定性分类，永不失败；
// 无任何命中时返回 low 优先级的空结果。
func (c *Classifier) Classify(text string) *model.ClassificationResult {
	lower := strings.ToLower(text)

	result := &model.ClassificationResult{Priority: model.PriorityLow}
	matched := make(map[string]bool)
	for _, def := range classifierCategories {
		var hits []string
		for _, kw := range def.keywords {
			if strings.Contains(lower, kw) {
				hits = append(hits, kw)
			}
		}
		if len(hits) > 0 {
			matched[def.name] = true
			result.Matches = append(result.Matches, model.CategoryMatch{Category: def.name, Keywords: hits})
			result.Confidence += 0.1 * float64(len(hits))
		}
	}
	if result.Confidence > 1.0 {
		result.Confidence = 1.0
	}

	for _, rule := range persistRules {
		if !ruleApplies(rule, matched) {
			continue
		}
		result.Priority = result.Priority.Max(rule.priority)
		result.ShouldPersist = result.ShouldPersist || rule.alwaysPersist
		result.NeedsHistory = result.NeedsHistory || rule.needsHistory
	}

	// 回指表达独立于规则表强制加载历史
	for _, pattern := range historyPatterns {
		if strings.Contains(lower, pattern) {
			result.NeedsHistory = true
			break
		}
	}

	return result
}

func ruleApplies(rule persistRule, matched map[string]bool) bool {
	for _, cat := range rule.categories {
		if !matched[cat] {
			return false
		}
	}
	return true
}
