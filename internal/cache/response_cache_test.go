package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autoline-go/internal/model"
)

const cacheableText = "รถรุ่นนี้เรามีหลายคันให้เลือกชมครับ ทั้งสีขาวและสีดำ"

func TestFingerprintDeterministic(t *testing.T) {
	mctx := model.MessageContext{UserID: "U1", Platform: "line", HasDomainContext: true}

	fp1 := Fingerprint("มีรถ Honda City ไหมครับ", mctx)
	fp2 := Fingerprint("มีรถ Honda City ไหมครับ", mctx)
	assert.Equal(t, fp1, fp2)

	// 大小写与首尾空白不影响指纹
	fp3 := Fingerprint("  มีรถ HONDA CITY ไหมครับ  ", mctx)
	assert.Equal(t, fp1, fp3)

	// 不同用户的指纹必须不同，避免个性化回复串号
	other := mctx
	other.UserID = "U2"
	assert.NotEqual(t, fp1, Fingerprint("มีรถ Honda City ไหมครับ", other))

	// 上下文开关参与指纹
	noDomain := mctx
	noDomain.HasDomainContext = false
	assert.NotEqual(t, fp1, Fingerprint("มีรถ Honda City ไหมครับ", noDomain))
}

func TestResponseCacheGetSet(t *testing.T) {
	c := NewResponseCache(time.Minute, 10, nil)
	mctx := model.MessageContext{UserID: "U1", Platform: "line"}
	fp := Fingerprint("มีรถอะไรบ้าง", mctx)

	assert.Nil(t, c.Get(fp))

	reply := model.NewTextReply(cacheableText)
	c.Set(fp, "U1", reply)

	got := c.Get(fp)
	require.NotNil(t, got)
	assert.Equal(t, reply.Text, got.Text)
	assert.Equal(t, 1, c.Len())
}

func TestResponseCacheTTLExpiry(t *testing.T) {
	c := NewResponseCache(10*time.Minute, 10, nil)
	base := time.Now()
	c.now = func() time.Time { return base }

	c.Set("fp", "U1", model.NewTextReply(cacheableText))
	require.NotNil(t, c.Get("fp"))

	// 刚好到 TTL 边界即视为过期，并被物理删除
	c.now = func() time.Time { return base.Add(10 * time.Minute) }
	assert.Nil(t, c.Get("fp"))
	assert.Equal(t, 0, c.Len())
}

func TestResponseCacheLRUEviction(t *testing.T) {
	c := NewResponseCache(time.Hour, 2, nil)
	base := time.Now()
	now := base
	c.now = func() time.Time { return now }

	c.Set("a", "U1", model.NewTextReply(cacheableText))
	now = base.Add(time.Second)
	c.Set("b", "U1", model.NewTextReply(cacheableText))

	// 访问 a 刷新它的活跃时间，b 成为最久未访问
	now = base.Add(2 * time.Second)
	require.NotNil(t, c.Get("a"))

	now = base.Add(3 * time.Second)
	c.Set("c", "U1", model.NewTextReply(cacheableText))

	assert.NotNil(t, c.Get("a"))
	assert.Nil(t, c.Get("b"))
	assert.NotNil(t, c.Get("c"))
}

func TestCacheable(t *testing.T) {
	// 兜底回复不允许缓存
	degraded := model.NewTextReply(cacheableText)
	degraded.Degraded = true
	assert.False(t, Cacheable(degraded))

	// 过短的通用回复不值得缓存
	assert.False(t, Cacheable(model.NewTextReply("สวัสดีครับ")))

	// 带个性化标记的内容拒绝缓存
	assert.False(t, Cacheable(model.NewTextReply("ยืนยันนัดหมายของคุณวันเสาร์ 10 โมงเช้านะครับ")))

	assert.True(t, Cacheable(model.NewTextReply(cacheableText)))

	// 富回复不受最小长度限制
	rich := model.NewRichReply("รูปรถครับ", &model.RichPayload{Kind: "car_images"})
	assert.True(t, Cacheable(rich))
}

func TestResponseCacheSetRejectsUncacheable(t *testing.T) {
	c := NewResponseCache(time.Minute, 10, nil)
	degraded := model.NewTextReply(cacheableText)
	degraded.Degraded = true

	c.Set("fp", "U1", degraded)
	assert.Equal(t, 0, c.Len())
}

func TestResponseCacheClearFor(t *testing.T) {
	c := NewResponseCache(time.Minute, 10, nil)
	c.Set("a", "U1", model.NewTextReply(cacheableText))
	c.Set("b", "U1", model.NewTextReply(cacheableText))
	c.Set("c", "U2", model.NewTextReply(cacheableText))

	removed := c.ClearFor("U1")
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, c.Len())
	assert.NotNil(t, c.Get("c"))
}

func TestResponseCacheSweep(t *testing.T) {
	c := NewResponseCache(10*time.Minute, 10, nil)
	base := time.Now()
	now := base
	c.now = func() time.Time { return now }

	c.Set("old", "U1", model.NewTextReply(cacheableText))
	now = base.Add(5 * time.Minute)
	c.Set("fresh", "U1", model.NewTextReply(cacheableText))

	now = base.Add(11 * time.Minute)
	removed := c.Sweep()
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, c.Len())
	assert.NotNil(t, c.Get("fresh"))
}

func TestResponseCacheLookupMetrics(t *testing.T) {
	var hits, misses int
	c := NewResponseCache(time.Minute, 10, func(hit bool) {
		if hit {
			hits++
		} else {
			misses++
		}
	})

	c.Get("missing")
	c.Set("fp", "U1", model.NewTextReply(cacheableText))
	c.Get("fp")

	assert.Equal(t, 1, hits)
	assert.Equal(t, 1, misses)
}
