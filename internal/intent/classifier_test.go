package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autoline-go/internal/model"
)

func TestClassifyNoMatch(t *testing.T) {
	c := NewClassifier()
	result := c.Classify("วันนี้อากาศดีนะครับ")

	assert.Empty(t, result.Matches)
	assert.Equal(t, model.PriorityLow, result.Priority)
	assert.False(t, result.ShouldPersist)
	assert.False(t, result.NeedsHistory)
	assert.Zero(t, result.Confidence)
}

func TestClassifyCritical(t *testing.T) {
	c := NewClassifier()
	result := c.Classify("ผมจะร้องเรียน รถที่ซื้อไปมีปัญหา ขอคืนเงิน")

	assert.True(t, result.HasCategory(CategoryCritical))
	assert.Equal(t, model.PriorityHigh, result.Priority)
	assert.True(t, result.ShouldPersist)
}

func TestClassifyAppointment(t *testing.T) {
	c := NewClassifier()
	result := c.Classify("ขอนัดเข้ามาดูรถวันเสาร์ได้ไหมครับ")

	assert.True(t, result.HasCategory(CategoryAppointments))
	assert.Equal(t, model.PriorityMedium, result.Priority)
	assert.True(t, result.ShouldPersist)
}

func TestClassifyBusinessWithFinancial(t *testing.T) {
	c := NewClassifier()
	// 同时命中 financial (ราคา, เท่าไหร่) 和 business (สนใจ, ซื้อ)：
	// 单独都只是 low 不落库，组合规则把它抬成 medium 的销售线索
	result := c.Classify("ราคาเท่าไหร่ครับ ผมสนใจซื้อ")

	require.True(t, result.HasCategory(CategoryFinancial))
	require.True(t, result.HasCategory(CategoryBusiness))
	assert.Equal(t, model.PriorityMedium, result.Priority)
	assert.True(t, result.ShouldPersist)
}

func TestClassifyFinancialAloneDoesNotPersist(t *testing.T) {
	c := NewClassifier()
	result := c.Classify("ราคาเปิดอยู่ที่เท่าไร")

	assert.True(t, result.HasCategory(CategoryFinancial))
	assert.False(t, result.HasCategory(CategoryBusiness))
	assert.Equal(t, model.PriorityLow, result.Priority)
	assert.False(t, result.ShouldPersist)
}

func TestClassifyMoreCategoriesNeverLowerPriority(t *testing.T) {
	c := NewClassifier()
	base := c.Classify("ราคาเท่าไหร่ครับ ผมสนใจซื้อ")
	// 追加预约意图只能抬高优先级，不可能降低
	wider := c.Classify("ราคาเท่าไหร่ครับ ผมสนใจซื้อ ขอนัดทดลองขับด้วย")

	assert.GreaterOrEqual(t, wider.Priority.Rank(), base.Priority.Rank())
	assert.Equal(t, model.PriorityHigh, wider.Priority)
	assert.True(t, wider.ShouldPersist)
}

func TestClassifyContextDependentNeedsHistory(t *testing.T) {
	c := NewClassifier()
	result := c.Classify("คันนั้นยังอยู่ไหมครับ")

	assert.True(t, result.HasCategory(CategoryContextDependent))
	assert.True(t, result.NeedsHistory)
	assert.False(t, result.ShouldPersist)
}

func TestClassifyHistoryPattern(t *testing.T) {
	c := NewClassifier()
	// 回指表达不属于任何关键词分类，但仍要求加载历史
	result := c.Classify("ตามที่คุยกันไว้ สรุปยังไงครับ")

	assert.True(t, result.NeedsHistory)
}

func TestClassifyConfidence(t *testing.T) {
	c := NewClassifier()

	one := c.Classify("สนใจครับ")
	two := c.Classify("สนใจครับ อยากซื้อเลย")
	assert.InDelta(t, 0.1, one.Confidence, 1e-9)
	assert.Greater(t, two.Confidence, one.Confidence)

	// 置信度封顶 1.0
	many := c.Classify("ร้องเรียน โกง หลอก ฟ้อง แย่มาก ไม่พอใจ คืนเงิน สนใจ ซื้อ จอง ราคา ผ่อน")
	assert.Equal(t, 1.0, many.Confidence)
}

func TestClassifyDeterministic(t *testing.T) {
	c := NewClassifier()
	text := "ผมสนใจรถ ขอนัดดูรถและถามราคาผ่อนด้วยครับ"

	first := c.Classify(text)
	second := c.Classify(text)
	assert.Equal(t, first, second)
}
