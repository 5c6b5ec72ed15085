package processor

import (
	"sync/atomic"
	"time"
)

type ServiceMetrics struct {
	totalProcessed  atomic.Int64
	totalFailed     atomic.Int64
	totalDurationNs atomic.Int64
	startedNs       atomic.Int64
}

type MetricsSnapshot struct {
	TotalProcessed int64   `json:"total_processed"`
	TotalFailed    int64   `json:"total_failed"`
	RatePerSecond  float64 `json:"rate_per_second"`
	AvgDurationMs  int64   `json:"avg_duration_ms"`
	UptimeSeconds  float64 `json:"uptime_seconds"`
}

func NewServiceMetrics() *ServiceMetrics {
	m := &ServiceMetrics{}
	m.startedNs.Store(time.Now().UnixNano())
	return m
}

func (m *ServiceMetrics) RecordSuccess(duration time.Duration) {
	m.totalProcessed.Add(1)
	m.totalDurationNs.Add(int64(duration))
}

func (m *ServiceMetrics) RecordFailure() {
	m.totalFailed.Add(1)
}

func (m *ServiceMetrics) Snapshot() MetricsSnapshot {
	processed := m.totalProcessed.Load()
	elapsed := time.Since(time.Unix(0, m.startedNs.Load())).Seconds()

	s := MetricsSnapshot{
		TotalProcessed: processed,
		TotalFailed:    m.totalFailed.Load(),
		UptimeSeconds:  elapsed,
	}
	if elapsed > 0 {
		s.RatePerSecond = float64(processed) / elapsed
	}
	if processed > 0 {
		s.AvgDurationMs = time.Duration(m.totalDurationNs.Load() / processed).Milliseconds()
	}
	return s
}
