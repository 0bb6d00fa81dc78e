// Package metrics 提供进程内的性能计数器与派生指标快照。
package metrics

import (
	"sync"
	"time"
)

// Snapshot 是某一时刻的指标快照。比率与均值在读取时派生，
// 不单独存储，避免分子分母更新不同步产生漂移。
type Snapshot struct {
	GenerationTotal    int64   `json:"generationTotal"`
	GenerationTimeouts int64   `json:"generationTimeouts"`
	GenerationErrors   int64   `json:"generationErrors"`
	AvgGenerationMs    float64 `json:"avgGenerationMs"`
	TimeoutRate        float64 `json:"timeoutRate"`

	StoreTotal   int64   `json:"storeTotal"`
	StoreErrors  int64   `json:"storeErrors"`
	AvgStoreMs   float64 `json:"avgStoreMs"`
	CacheHits    int64   `json:"cacheHits"`
	CacheMisses  int64   `json:"cacheMisses"`
	CacheHitRate float64 `json:"cacheHitRate"`

	RequestTotal  int64   `json:"requestTotal"`
	RequestErrors int64   `json:"requestErrors"`
	AvgRequestMs  float64 `json:"avgRequestMs"`
	ErrorRate     float64 `json:"errorRate"`

	Timestamp time.Time `json:"timestamp"`
}

// Alert 是一条阈值告警，仅供运营参考，不参与任何控制逻辑。
type Alert struct {
	Severity string `json:"severity"` // warning | critical
	Message  string `json:"message"`
}

// Monitor 维护管道的健康计数器。除 Reset 外所有计数单调递增，
// 可被多个请求协程并发更新。
type Monitor struct {
	mu sync.Mutex

	genTotal    int64
	genTimeouts int64
	genErrors   int64
	genSumMs    int64

	storeTotal int64
	storeErrs  int64
	storeSumMs int64

	cacheHits   int64
	cacheMisses int64

	reqTotal  int64
	reqErrors int64
	reqSumMs  int64
}

// NewMonitor 创建性能监视器。
func NewMonitor() *Monitor {
	return &Monitor{}
}

// RecordGeneration 记录一次生成调用的耗时与结果。
func (m *Monitor) RecordGeneration(duration time.Duration, success, timedOut bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.genTotal++
	m.genSumMs += duration.Milliseconds()
	if timedOut {
		m.genTimeouts++
	} else if !success {
		m.genErrors++
	}
}

// RecordStore 记录一次持久存储操作的耗时与结果。
func (m *Monitor) RecordStore(duration time.Duration, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.storeTotal++
	m.storeSumMs += duration.Milliseconds()
	if !success {
		m.storeErrs++
	}
}

// RecordCache 记录一次回复缓存查询的命中情况。
func (m *Monitor) RecordCache(hit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if hit {
		m.cacheHits++
	} else {
		m.cacheMisses++
	}
}

// RecordRequest 记录一次完整请求的耗时与结果。
func (m *Monitor) RecordRequest(duration time.Duration, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reqTotal++
	m.reqSumMs += duration.Milliseconds()
	if !success {
		m.reqErrors++
	}
}

// Snapshot 返回当前指标快照，比率与均值即时计算。
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Snapshot{
		GenerationTotal:    m.genTotal,
		GenerationTimeouts: m.genTimeouts,
		GenerationErrors:   m.genErrors,
		AvgGenerationMs:    average(m.genSumMs, m.genTotal),
		TimeoutRate:        rate(m.genTimeouts, m.genTotal),

		StoreTotal:   m.storeTotal,
		StoreErrors:  m.storeErrs,
		AvgStoreMs:   average(m.storeSumMs, m.storeTotal),
		CacheHits:    m.cacheHits,
		CacheMisses:  m.cacheMisses,
		CacheHitRate: rate(m.cacheHits, m.cacheHits+m.cacheMisses),

		RequestTotal:  m.reqTotal,
		RequestErrors: m.reqErrors,
		AvgRequestMs:  average(m.reqSumMs, m.reqTotal),
		ErrorRate:     rate(m.reqErrors, m.reqTotal),

		Timestamp: time.Now(),
	}
}

// Alerts 按固定阈值评估当前快照，返回告警列表。
func (m *Monitor) Alerts() []Alert {
	snap := m.Snapshot()
	var alerts []Alert

	if snap.RequestTotal > 0 && snap.AvgRequestMs > 2000 {
		alerts = append(alerts, Alert{"warning", "平均请求延迟超过 2000ms"})
	}
	if snap.GenerationTotal > 0 && snap.TimeoutRate > 0.02 {
		alerts = append(alerts, Alert{"critical", "生成超时率超过 2%"})
	}
	if snap.CacheHits+snap.CacheMisses > 0 && snap.CacheHitRate < 0.30 {
		alerts = append(alerts, Alert{"warning", "回复缓存命中率低于 30%"})
	}
	if snap.RequestTotal > 0 && snap.ErrorRate > 0.05 {
		alerts = append(alerts, Alert{"critical", "请求错误率超过 5%"})
	}
	return alerts
}

// Reset 清零所有计数器。
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.genTotal, m.genTimeouts, m.genErrors, m.genSumMs = 0, 0, 0, 0
	m.storeTotal, m.storeErrs, m.storeSumMs = 0, 0, 0
	m.cacheHits, m.cacheMisses = 0, 0
	m.reqTotal, m.reqErrors, m.reqSumMs = 0, 0, 0
}

func average(sumMs, count int64) float64 {
	if count == 0 {
		return 0
	}
	return float64(sumMs) / float64(count)
}

func rate(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total)
}
