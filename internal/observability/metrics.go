package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service. A nil
// *Metrics is valid and turns every recording method into a no-op, which is
// what the protocol tests use.
type Metrics struct {
	ActiveSessions  prometheus.Gauge
	SessionEvents   *prometheus.CounterVec
	OutboundEvents  *prometheus.CounterVec
	InboundEvents   *prometheus.CounterVec
	ToolInvocations *prometheus.CounterVec
	StreamFailures  *prometheus.CounterVec
	AudioDropped    prometheus.Counter
	WSMessages      *prometheus.CounterVec
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of active bidirectional streaming sessions.",
		}),
		SessionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session lifecycle events by type.",
		}, []string{"event"}),
		OutboundEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbound_events_total",
			Help:      "Wire events queued toward the model by kind.",
		}, []string{"kind"}),
		InboundEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_events_total",
			Help:      "Wire events received from the model by kind.",
		}, []string{"kind"}),
		ToolInvocations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_invocations_total",
			Help:      "Tool bridge invocations by tool name.",
		}, []string{"tool"}),
		StreamFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_failures_total",
			Help:      "Upstream stream failures by phase.",
		}, []string{"phase"}),
		AudioDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_chunks_dropped_total",
			Help:      "Audio chunks evicted from full session queues.",
		}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
	}
}

func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}

func (m *Metrics) IncSessionEvent(event string) {
	if m == nil {
		return
	}
	m.SessionEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) IncOutboundEvent(kind string) {
	if m == nil {
		return
	}
	m.OutboundEvents.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncInboundEvent(kind string) {
	if m == nil {
		return
	}
	m.InboundEvents.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncToolInvocation(tool string) {
	if m == nil {
		return
	}
	m.ToolInvocations.WithLabelValues(tool).Inc()
}

func (m *Metrics) IncStreamFailure(phase string) {
	if m == nil {
		return
	}
	m.StreamFailures.WithLabelValues(phase).Inc()
}

func (m *Metrics) IncAudioDropped() {
	if m == nil {
		return
	}
	m.AudioDropped.Inc()
}

func (m *Metrics) IncWSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
