package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/gatelink-dev/gatelink/pkg/hub"
)

// registerSessionMetrics bridges the session's internal counters into a
// Prometheus registry. The collectors read a fresh metrics snapshot at
// scrape time, so nothing here runs between scrapes.
func registerSessionMetrics(reg prometheus.Registerer, namespace string, src Source) {
	factory := promauto.With(reg)

	counter := func(name, help string, pick func(m hub.SessionMetrics) int64) {
		factory.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      name,
			Help:      help,
		}, func() float64 {
			return float64(pick(src.Metrics()))
		})
	}
	gauge := func(name, help string, read func() float64) {
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      name,
			Help:      help,
		}, read)
	}

	counter("connect_attempts_total", "TCP connection attempts to the hub",
		func(m hub.SessionMetrics) int64 { return m.ConnectAttempts })
	counter("connects_total", "Attempts that reached the streaming state",
		func(m hub.SessionMetrics) int64 { return m.Connects })
	counter("reconnects_total", "Failed attempts that entered the backoff wait",
		func(m hub.SessionMetrics) int64 { return m.Reconnects })
	counter("login_failures_total", "Login responses without a success indicator",
		func(m hub.SessionMetrics) int64 { return m.LoginFailures })
	counter("frames_received_total", "Frames decoded from the hub stream",
		func(m hub.SessionMetrics) int64 { return m.FramesReceived })
	counter("frames_sent_total", "Frames written to the hub",
		func(m hub.SessionMetrics) int64 { return m.FramesSent })
	counter("bytes_received_total", "Raw frame bytes received from the hub",
		func(m hub.SessionMetrics) int64 { return m.BytesReceived })
	counter("bytes_sent_total", "Raw frame bytes sent to the hub",
		func(m hub.SessionMetrics) int64 { return m.BytesSent })
	counter("deltas_applied_total", "Channel updates merged into the device tree",
		func(m hub.SessionMetrics) int64 { return m.DeltasApplied })
	counter("reloads_total", "Deletion notifications forwarded as reload signals",
		func(m hub.SessionMetrics) int64 { return m.Reloads })
	counter("heartbeats_total", "Idle-timeout get-config probes sent",
		func(m hub.SessionMetrics) int64 { return m.Heartbeats })
	counter("decode_errors_total", "Stream payloads abandoned as undecodable",
		func(m hub.SessionMetrics) int64 { return m.DecodeErrors })

	gauge("devices", "Devices in the current tree", func() float64 {
		return float64(len(src.Devices()))
	})
	gauge("channels", "Channels across all devices in the current tree", func() float64 {
		return float64(src.Devices().ChannelCount())
	})
	gauge("streaming", "1 while the session is in the streaming state", func() float64 {
		if src.State() == hub.StateStreaming {
			return 1
		}
		return 0
	})
	gauge("connect_latency_p50_microseconds", "Median dial-to-streaming latency", func() float64 {
		return float64(src.Metrics().ConnectLatencyP50)
	})
}
