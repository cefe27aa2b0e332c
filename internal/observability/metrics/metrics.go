package metrics

import "github.com/prometheus/client_golang/prometheus"

// ConversationMetrics exposes counters/histograms for the chat pipeline.
type ConversationMetrics struct {
	inboundTotal *prometheus.CounterVec
	flushTotal   *prometheus.CounterVec
	runTotal     *prometheus.CounterVec
	runLatency   *prometheus.HistogramVec
	toolTotal    *prometheus.CounterVec
}

func NewConversationMetrics(reg prometheus.Registerer) *ConversationMetrics {
	m := &ConversationMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "conversation",
			Name:      "inbound_webhook_total",
			Help:      "Total inbound ManyChat webhooks",
		}, []string{"media_kind", "status"}),
		flushTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "conversation",
			Name:      "flush_total",
			Help:      "Coalesced batches handed to the pipeline",
		}, []string{"status"}),
		runTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "assistant",
			Name:      "run_total",
			Help:      "Assistant runs by terminal status",
		}, []string{"status"}),
		runLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "assistant",
			Name:      "run_latency_seconds",
			Help:      "Wall time from run start to terminal status",
			Buckets:   []float64{1, 2, 5, 10, 20, 30, 60, 120},
		}, []string{"status"}),
		toolTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "assistant",
			Name:      "tool_call_total",
			Help:      "Tool calls dispatched by function and outcome",
		}, []string{"function", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.flushTotal, m.runTotal, m.runLatency, m.toolTotal)
	return m
}

func (m *ConversationMetrics) ObserveInbound(mediaKind, status string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(mediaKind, status).Inc()
}

func (m *ConversationMetrics) ObserveFlush(status string) {
	if m == nil {
		return
	}
	m.flushTotal.WithLabelValues(status).Inc()
}

func (m *ConversationMetrics) ObserveRun(status string, seconds float64) {
	if m == nil {
		return
	}
	m.runTotal.WithLabelValues(status).Inc()
	m.runLatency.WithLabelValues(status).Observe(seconds)
}

func (m *ConversationMetrics) ObserveToolCall(function string, ok bool) {
	if m == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "error"
	}
	m.toolTotal.WithLabelValues(function, status).Inc()
}
