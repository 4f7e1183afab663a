package identity

import "sync/atomic"

// MetricID enumerates the engine's in-process counters.
type MetricID uint16

const (
	MetricRegisterSuccess MetricID = iota
	MetricRegisterDuplicate
	MetricVerifyEmailSuccess
	MetricVerifyEmailFailure
	MetricLoginSuccess
	MetricLoginFailure
	MetricTwoFactorPending
	MetricTwoFactorSuccess
	MetricTwoFactorFailure
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricLogout
	MetricPasswordResetRequest
	MetricPasswordResetSuccess
	MetricPasswordResetFailure
	MetricNotificationFailure
	metricIDCount
)

// paddedCounter keeps each counter on its own cache line so hot
// counters do not false-share.
type paddedCounter struct {
	value uint64
	_     [56]byte
}

// Metrics is a fixed set of atomic counters. Inc is lock-free and safe
// for concurrent use.
type Metrics struct {
	counters [metricIDCount]paddedCounter
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) Inc(id MetricID) {
	if m == nil || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// MetricsSnapshot is a point-in-time copy of every counter.
type MetricsSnapshot struct {
	Counters map[MetricID]uint64
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{Counters: make(map[MetricID]uint64, metricIDCount)}
	if m == nil {
		return s
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}
	return s
}
