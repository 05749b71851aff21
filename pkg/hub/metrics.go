package hub

import (
	"sync/atomic"
	"time"
)

// SessionMetrics aggregates one session's counters at a point in time.
type SessionMetrics struct {
	// Connection lifecycle
	ConnectAttempts int64
	Connects        int64
	Reconnects      int64
	LoginFailures   int64

	// Stream
	FramesReceived int64
	FramesSent     int64
	BytesReceived  int64
	BytesSent      int64
	DeltasApplied  int64
	Reloads        int64
	Heartbeats     int64
	DecodeErrors   int64

	// Connect latency (microseconds, dial through tree install)
	ConnectLatencyP50 int64
	ConnectLatencyP99 int64

	// Timestamp
	CollectedAt time.Time
}

// MetricsCollector accumulates session metrics over time.
type MetricsCollector struct {
	// Counters (atomic)
	connectAttempts atomic.Int64
	connects        atomic.Int64
	reconnects      atomic.Int64
	loginFailures   atomic.Int64
	framesReceived  atomic.Int64
	framesSent      atomic.Int64
	bytesReceived   atomic.Int64
	bytesSent       atomic.Int64
	deltasApplied   atomic.Int64
	reloads         atomic.Int64
	heartbeats      atomic.Int64
	decodeErrors    atomic.Int64

	// Latency tracking
	latencies []int64
	latencyMu atomic.Int32 // Simple spinlock
}

// NewMetricsCollector creates a new MetricsCollector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		latencies: make([]int64, 0, 1000),
	}
}

// RecordConnectAttempt records a dial attempt.
func (m *MetricsCollector) RecordConnectAttempt() {
	m.connectAttempts.Add(1)
}

// RecordConnect records a session reaching the streaming state.
func (m *MetricsCollector) RecordConnect() {
	m.connects.Add(1)
}

// RecordReconnect records a failed attempt entering the backoff wait.
func (m *MetricsCollector) RecordReconnect() {
	m.reconnects.Add(1)
}

// RecordLoginFailure records a login response without a success indicator.
func (m *MetricsCollector) RecordLoginFailure() {
	m.loginFailures.Add(1)
}

// RecordFrameReceived records one inbound frame and its wire size.
func (m *MetricsCollector) RecordFrameReceived(bytes int) {
	m.framesReceived.Add(1)
	m.bytesReceived.Add(int64(bytes))
}

// RecordFrameSent records one outbound frame and its wire size.
func (m *MetricsCollector) RecordFrameSent(bytes int) {
	m.framesSent.Add(1)
	m.bytesSent.Add(int64(bytes))
}

// RecordDeltaApplied records a channel update merged into the tree.
func (m *MetricsCollector) RecordDeltaApplied() {
	m.deltasApplied.Add(1)
}

// RecordReload records a deletion notification forwarded as a reload.
func (m *MetricsCollector) RecordReload() {
	m.reloads.Add(1)
}

// RecordHeartbeat records an idle-timeout probe.
func (m *MetricsCollector) RecordHeartbeat() {
	m.heartbeats.Add(1)
}

// RecordDecodeError records a stream payload abandoned as undecodable.
func (m *MetricsCollector) RecordDecodeError() {
	m.decodeErrors.Add(1)
}

// RecordConnectLatency records dial-to-streaming latency in microseconds.
func (m *MetricsCollector) RecordConnectLatency(latencyUs int64) {
	// Simple spinlock for latency array
	for !m.latencyMu.CompareAndSwap(0, 1) {
		// Spin
	}
	defer m.latencyMu.Store(0)

	// Keep only recent samples
	if len(m.latencies) >= 1000 {
		m.latencies = m.latencies[500:] // Drop oldest half
	}
	m.latencies = append(m.latencies, latencyUs)
}

// Snapshot returns current metrics.
func (m *MetricsCollector) Snapshot() SessionMetrics {
	metrics := SessionMetrics{
		ConnectAttempts: m.connectAttempts.Load(),
		Connects:        m.connects.Load(),
		Reconnects:      m.reconnects.Load(),
		LoginFailures:   m.loginFailures.Load(),
		FramesReceived:  m.framesReceived.Load(),
		FramesSent:      m.framesSent.Load(),
		BytesReceived:   m.bytesReceived.Load(),
		BytesSent:       m.bytesSent.Load(),
		DeltasApplied:   m.deltasApplied.Load(),
		Reloads:         m.reloads.Load(),
		Heartbeats:      m.heartbeats.Load(),
		DecodeErrors:    m.decodeErrors.Load(),
		CollectedAt:     time.Now(),
	}

	metrics.ConnectLatencyP50, metrics.ConnectLatencyP99 = m.latencyPercentiles()

	return metrics
}

// latencyPercentiles calculates P50 and P99 connect latencies.
func (m *MetricsCollector) latencyPercentiles() (p50, p99 int64) {
	// Simple spinlock
	for !m.latencyMu.CompareAndSwap(0, 1) {
		// Spin
	}
	defer m.latencyMu.Store(0)

	n := len(m.latencies)
	if n == 0 {
		return 0, 0
	}

	// Copy and sort
	sorted := make([]int64, n)
	copy(sorted, m.latencies)

	// Simple sort (not efficient but fine for small arrays)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if sorted[i] > sorted[j] {
				sorted[i], sorted[j] = sorted[j], sorted[i]
			}
		}
	}

	p50 = sorted[n/2]
	p99 = sorted[(n*99)/100]

	return p50, p99
}

// Reset resets all counters.
func (m *MetricsCollector) Reset() {
	m.connectAttempts.Store(0)
	m.connects.Store(0)
	m.reconnects.Store(0)
	m.loginFailures.Store(0)
	m.framesReceived.Store(0)
	m.framesSent.Store(0)
	m.bytesReceived.Store(0)
	m.bytesSent.Store(0)
	m.deltasApplied.Store(0)
	m.reloads.Store(0)
	m.heartbeats.Store(0)
	m.decodeErrors.Store(0)

	// Clear latencies
	for !m.latencyMu.CompareAndSwap(0, 1) {
		// Spin
	}
	m.latencies = m.latencies[:0]
	m.latencyMu.Store(0)
}
