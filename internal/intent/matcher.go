package intent

import (
	"sort"
	"strings"
	"unicode"
)

// 模板匹配的置信度档位。
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
	ConfidenceNone   = "none"
)

// 模板匹配的意图分类。与分类器的分类是两套：这里选回复模板，
// 分类器决定持久化策略。
const (
	TemplateGreeting       = "greeting"
	TemplateProductInquiry = "productInquiry"
	TemplatePricing        = "pricing"
	TemplateContact        = "contact"
)

// TemplateCategory 是一个意图分类及其触发词表。
type TemplateCategory struct {
	Type     string
	Triggers []string
}

// TemplateSet 是有序的模板分类集合，声明顺序固定，平分时取先声明者。
type TemplateSet []TemplateCategory

// DefaultTemplates 返回经销商客服的内置模板集。首位分类（greeting）
// 同时是全部得分为零时的兜底分类。
func DefaultTemplates() TemplateSet {
	return TemplateSet{
		{TemplateGreeting, []string{"สวัสดี", "หวัดดี", "ดีครับ", "ดีค่ะ", "hello", "hi"}},
		{TemplateProductInquiry, []string{"มีรถ", "รุ่นไหน", "สเปค", "รถมือสอง", "รถบ้าน", "สนใจรถ", "สี", "ปีไหน"}},
		{TemplatePricing, []string{"ราคา", "เท่าไหร่", "เท่าไร", "ผ่อน", "ดาวน์", "โปรโมชั่น"}},
		{TemplateContact, []string{"ติดต่อ", "เบอร์", "โทร", "ที่อยู่", "แผนที่", "เปิดกี่โมง"}},
	}
}

// TemplateMatch 是单个分类的匹配得分。
type TemplateMatch struct {
	Type            string   `json:"type"`
	Score           float64  `json:"score"`
	Confidence      string   `json:"confidence"`
	MatchedTriggers []string `json:"matchedTriggers,omitempty"`
}

// MatchAnalysis 是模板匹配器对一条消息的完整分析结果。
type MatchAnalysis struct {
	BestMatch         TemplateMatch   `json:"bestMatch"`
	AllMatches        []TemplateMatch `json:"allMatches"`
	Suggestion        string          `json:"suggestion"`
	ShouldUseTemplate bool            `json:"shouldUseTemplate"`
}

// suggestions 按（置信档位, 分类）给出给客服人员的操作建议。
var suggestions = map[string]map[string]string{
	ConfidenceHigh: {
		TemplateGreeting:       "ใช้เทมเพลตทักทายตอบกลับได้ทันที",
		TemplateProductInquiry: "ส่งรายการรถที่ตรงเงื่อนไขพร้อมรูปภาพ",
		TemplatePricing:        "ส่งตารางราคาและโปรโมชั่นปัจจุบัน",
		TemplateContact:        "ส่งข้อมูลติดต่อและแผนที่โชว์รูม",
	},
	ConfidenceMedium: {
		TemplateGreeting:       "ทักทายพร้อมถามความต้องการเพิ่มเติม",
		TemplateProductInquiry: "ถามรุ่นหรืองบประมาณก่อนส่งรายการรถ",
		TemplatePricing:        "ถามรุ่นที่สนใจก่อนแจ้งราคา",
		TemplateContact:        "ยืนยันช่องทางติดต่อที่ลูกค้าสะดวก",
	},
	ConfidenceLow: {
		TemplateGreeting:       "ตรวจสอบข้อความก่อนใช้เทมเพลตทักทาย",
		TemplateProductInquiry: "ตรวจสอบความต้องการก่อนตอบ",
		TemplatePricing:        "ตรวจสอบว่าลูกค้าถามราคารุ่นใด",
		TemplateContact:        "ตรวจสอบว่าลูกค้าต้องการติดต่อเรื่องใด",
	},
}

const suggestionFallback = "ส่งต่อให้เจ้าหน้าที่ตอบด้วยตนเอง"

// Matcher 按模板触发词给消息打分，用于人工/半自动回复模式。
type Matcher struct{}

// NewMatcher 创建模板匹配器。
func NewMatcher() *Matcher {
	return &Matcher{}
}

// Analyze 对消息文本与模板集做确定性匹配分析。
// 输入与模板集不变时结果完全一致。
func (m *Matcher) Analyze(text string, set TemplateSet) *MatchAnalysis {
	if len(set) == 0 {
		return &MatchAnalysis{
			BestMatch:  TemplateMatch{Confidence: ConfidenceNone},
			Suggestion: suggestionFallback,
		}
	}
	matches := m.scoreAll(text, set)

	// 声明顺序遍历 + 严格大于，保证平分时取先声明的分类
	best := matches[0]
	for _, match := range matches[1:] {
		if match.Score > best.Score {
			best = match
		}
	}

	analysis := &MatchAnalysis{
		BestMatch:  best,
		AllMatches: matches,
		Suggestion: suggestionFor(best),
		// 噪声级别的匹配不允许自动套用模板
		ShouldUseTemplate: best.Confidence != ConfidenceNone && best.Score > 0.1,
	}
	return analysis
}

// SuggestMultiple 返回得分最高的前 limit 个分类，得分降序。
func (m *Matcher) SuggestMultiple(text string, set TemplateSet, limit int) []TemplateMatch {
	matches := m.scoreAll(text, set)
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

func (m *Matcher) scoreAll(text string, set TemplateSet) []TemplateMatch {
	norm := normalizeText(text)
	wordCount := len(strings.Fields(norm))
	if wordCount == 0 {
		wordCount = 1
	}

	matches := make([]TemplateMatch, 0, len(set))
	for _, category := range set {
		matches = append(matches, m.scoreCategory(norm, wordCount, category))
	}
	return matches
}

// scoreCategory 对单个分类打分：精确子串命中按出现次数加权 2 分，
// 3 字符前缀的部分命中加 0.5 分，再叠加关键词密度与消息密度因子。
func (m *Matcher) scoreCategory(norm string, wordCount int, category TemplateCategory) TemplateMatch {
	var matchScore float64
	var matched []string

	for _, trigger := range category.Triggers {
		trig := normalizeText(trigger)
		if trig == "" {
			continue
		}
		if freq := strings.Count(norm, trig); freq > 0 {
			matchScore += 2.0 * float64(freq)
			matched = append(matched, trigger)
			continue
		}
		runes := []rune(trig)
		if len(runes) >= 3 && strings.Contains(norm, string(runes[:3])) {
			matchScore += 0.5
			matched = append(matched, trigger)
		}
	}

	kwDensity := float64(len(matched)) / float64(len(category.Triggers))
	msgDensity := float64(len(matched)) / float64(wordCount)
	if msgDensity > 1.0 {
		msgDensity = 1.0
	}

	score := matchScore*0.25 + kwDensity*0.4 + msgDensity*0.35
	if score > 1.0 {
		score = 1.0
	}

	return TemplateMatch{
		Type:            category.Type,
		Score:           score,
		Confidence:      confidenceBand(score),
		MatchedTriggers: matched,
	}
}

// normalizeText 去掉标点，只保留字母（含泰文）、数字与空白，并转为小写。
func normalizeText(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

func confidenceBand(score float64) string {
	switch {
	case score >= 0.7:
		return ConfidenceHigh
	case score >= 0.4:
		return ConfidenceMedium
	case score >= 0.2:
		return ConfidenceLow
	default:
		return ConfidenceNone
	}
}

func suggestionFor(match TemplateMatch) string {
	if byCategory, ok := suggestions[match.Confidence]; ok {
		if s, ok := byCategory[match.Type]; ok {
			return s
		}
	}
	return suggestionFallback
}
