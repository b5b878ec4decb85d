package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	StageFirstChunk  = "request_to_first_chunk"
	StageStreamTotal = "stream_total"
	StagePersist     = "transcript_persist"
)

// Metrics groups all Prometheus instruments used by the service. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	ChatRequests      *prometheus.CounterVec
	ActiveStreams     prometheus.Gauge
	WSMessages        *prometheus.CounterVec
	ProviderErrors    *prometheus.CounterVec
	TranscriptWrites  *prometheus.CounterVec
	FirstChunkLatency prometheus.Histogram
	StreamDuration    prometheus.Histogram

	stages *streamStageWindow
}

func NewMetrics(namespace string) *Metrics {
	return NewMetricsWithRegistry(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry registers the instruments on reg. Tests pass a fresh
// registry so repeated construction does not collide.
func NewMetricsWithRegistry(namespace string, reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ChatRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_requests_total",
			Help:      "Chat requests by outcome.",
		}, []string{"outcome"}),
		ActiveStreams: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_streams",
			Help:      "Number of completion streams currently relayed to clients.",
		}),
		WSMessages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		ProviderErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Provider errors by provider and code.",
		}, []string{"provider", "code"}),
		TranscriptWrites: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcript_writes_total",
			Help:      "Transcript store writes by store, operation and result.",
		}, []string{"store", "op", "result"}),
		FirstChunkLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "first_chunk_latency_ms",
			Help:      "Latency from request to first streamed text chunk in milliseconds.",
			Buckets:   []float64{100, 200, 300, 500, 700, 900, 1200, 2000, 4000},
		}),
		StreamDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stream_duration_ms",
			Help:      "Total duration of a streamed completion in milliseconds.",
			Buckets:   []float64{500, 1000, 2000, 4000, 8000, 15000, 30000, 60000},
		}),
		stages: newStreamStageWindow(256),
	}
}

func (m *Metrics) ObserveChatRequest(outcome string) {
	if m == nil {
		return
	}
	m.ChatRequests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) StreamStarted() {
	if m == nil {
		return
	}
	m.ActiveStreams.Inc()
}

func (m *Metrics) StreamFinished(total time.Duration) {
	if m == nil {
		return
	}
	m.ActiveStreams.Dec()
	m.StreamDuration.Observe(float64(total.Milliseconds()))
	m.stages.Observe(StageStreamTotal, float64(total.Milliseconds()))
}

func (m *Metrics) ObserveFirstChunkLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.FirstChunkLatency.Observe(float64(d.Milliseconds()))
	m.stages.Observe(StageFirstChunk, float64(d.Milliseconds()))
}

func (m *Metrics) ObserveProviderError(provider, code string) {
	if m == nil {
		return
	}
	if code == "" {
		code = "unknown"
	}
	m.ProviderErrors.WithLabelValues(provider, code).Inc()
	m.stages.ObserveIndicator("provider_error")
}

func (m *Metrics) ObserveWSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

func (m *Metrics) ObserveTranscriptWrite(store, op string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
		m.stages.ObserveIndicator("transcript_write_failed")
	}
	m.TranscriptWrites.WithLabelValues(store, op, result).Inc()
}

func (m *Metrics) ObservePersistLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.stages.Observe(StagePersist, float64(d.Milliseconds()))
}

// ObserveIndicator counts a named event in the rolling latency window.
func (m *Metrics) ObserveIndicator(name string) {
	if m == nil {
		return
	}
	m.stages.ObserveIndicator(name)
}

func (m *Metrics) SnapshotStreamStages() StreamStageSnapshot {
	if m == nil {
		return newStreamStageWindow(0).Snapshot()
	}
	return m.stages.Snapshot()
}

func (m *Metrics) ResetStreamStages() {
	if m == nil {
		return
	}
	m.stages.Reset()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
