package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ActiveSessions   prometheus.Gauge
	SessionEvents    *prometheus.CounterVec
	WSMessages       *prometheus.CounterVec
	WSWriteErrors    *prometheus.CounterVec
	ProviderErrors   *prometheus.CounterVec
	OutboundMessages *prometheus.CounterVec
	IngestSteps      *prometheus.CounterVec
	KarmaUpdates     *prometheus.CounterVec
	FactsStored      prometheus.Counter
	ReplyLatency     prometheus.Histogram
	RecallLatency    prometheus.Histogram

	stageWindow *turnStageWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of active chat sessions.",
		}),
		SessionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session and turn events by type.",
		}, []string{"event"}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		WSWriteErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_write_errors_total",
			Help:      "WebSocket write failures by reason.",
		}, []string{"reason"}),
		ProviderErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Provider errors by provider and code.",
		}, []string{"provider", "code"}),
		OutboundMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbound_messages_total",
			Help:      "Outbound chat messages by type and delivery result.",
		}, []string{"type", "result"}),
		IngestSteps: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_steps_total",
			Help:      "Memory ingestion steps by step name and result.",
		}, []string{"step", "result"}),
		KarmaUpdates: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "karma_updates_total",
			Help:      "Karma score mutations by source.",
		}, []string{"source"}),
		FactsStored: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "facts_stored_total",
			Help:      "Facts written to the semantic memory store.",
		}),
		ReplyLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reply_latency_ms",
			Help:      "Latency from accepted turn to finalized reply in milliseconds.",
			Buckets:   []float64{100, 250, 500, 1000, 2000, 4000, 8000, 15000},
		}),
		RecallLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "memory_recall_latency_ms",
			Help:      "Latency of semantic memory queries in milliseconds.",
			Buckets:   []float64{10, 25, 50, 100, 200, 350, 700, 1500},
		}),
		stageWindow: newTurnStageWindow(256),
	}
}

// All methods tolerate a nil receiver so tests can run without a registry.

func (m *Metrics) ObserveReplyLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.ReplyLatency.Observe(float64(d.Milliseconds()))
}

func (m *Metrics) ObserveRecallLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.RecallLatency.Observe(float64(d.Milliseconds()))
}

func (m *Metrics) IncKarmaUpdate(source string) {
	if m == nil {
		return
	}
	m.KarmaUpdates.WithLabelValues(source).Inc()
}

func (m *Metrics) IncIngestStep(step, result string) {
	if m == nil {
		return
	}
	m.IngestSteps.WithLabelValues(step, result).Inc()
}

func (m *Metrics) AddFactsStored(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.FactsStored.Add(float64(n))
}

func (m *Metrics) IncProviderError(provider, code string) {
	if m == nil {
		return
	}
	m.ProviderErrors.WithLabelValues(provider, code).Inc()
}

func (m *Metrics) IncSessionEvent(event string) {
	if m == nil {
		return
	}
	m.SessionEvents.WithLabelValues(event).Inc()
}

// ObserveTurnStage records one stage duration into the bounded window that
// backs the perf endpoint.
func (m *Metrics) ObserveTurnStage(stage string, d time.Duration) {
	if m == nil || m.stageWindow == nil {
		return
	}
	m.stageWindow.Observe(stage, float64(d.Microseconds())/1000.0)
}

func (m *Metrics) ObserveTurnIndicator(name string) {
	if m == nil || m.stageWindow == nil {
		return
	}
	m.stageWindow.ObserveIndicator(name)
}

func (m *Metrics) ObserveOutboundMessage(msgType, result string) {
	if m == nil {
		return
	}
	m.OutboundMessages.WithLabelValues(msgType, result).Inc()
}

func (m *Metrics) TurnStageSnapshot() TurnStageSnapshot {
	if m == nil || m.stageWindow == nil {
		return TurnStageSnapshot{}
	}
	return m.stageWindow.Snapshot()
}

func (m *Metrics) ResetTurnStages() {
	if m == nil {
		return
	}
	m.stageWindow.Reset()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
