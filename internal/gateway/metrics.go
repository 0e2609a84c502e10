package gateway

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/flemzord/agentbridge/internal/agent"
	"github.com/flemzord/agentbridge/internal/provider"
	"github.com/flemzord/agentbridge/internal/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "agentbridge"

// Metrics collects gateway-wide measurements. It exports Prometheus
// collectors on its own registry and keeps atomic counters for the
// /status snapshot. It is safe for concurrent use.
type Metrics struct {
	registry *prometheus.Registry

	sessionsActive  prometheus.Gauge
	sessionsTotal   prometheus.Counter
	batchesRejected *prometheus.CounterVec
	runsTotal       *prometheus.CounterVec
	runDuration     prometheus.Histogram
	modelCalls      *prometheus.CounterVec
	modelLatency    *prometheus.HistogramVec
	tokens          *prometheus.CounterVec
	toolCalls       *prometheus.CounterVec
	toolLatency     *prometheus.HistogramVec

	runs         atomic.Int64
	failedRuns   atomic.Int64
	modelErrors  atomic.Int64
	totalTokens  atomic.Int64
	modelCount   atomic.Int64
	totalLatency atomic.Int64 // nanoseconds
}

// Interface guards.
var (
	_ agent.Observer  = (*Metrics)(nil)
	_ session.Metrics = (*Metrics)(nil)
)

// NewMetrics creates a Metrics with a fresh registry that also carries
// the Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Subsystem: "session", Name: "active",
			Help: "Number of connected chat sessions.",
		}),
		sessionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: "session", Name: "opened_total",
			Help: "Total chat sessions opened.",
		}),
		batchesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: "session", Name: "batches_rejected_total",
			Help: "Inbound batches rejected before a run started.",
		}, []string{"reason"}),
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: "agent", Name: "runs_total",
			Help: "Loop executions by stop reason.",
		}, []string{"stop_reason"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace, Subsystem: "agent", Name: "run_duration_seconds",
			Help:    "Wall time of loop executions.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
		modelCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: "model", Name: "calls_total",
			Help: "Model API calls by provider, model and outcome.",
		}, []string{"provider", "model", "outcome"}),
		modelLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace, Subsystem: "model", Name: "call_duration_seconds",
			Help:    "Model API call latency.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}, []string{"provider"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: "model", Name: "tokens_total",
			Help: "Tokens consumed by direction.",
		}, []string{"direction"}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: "tool", Name: "calls_total",
			Help: "Tool executions by tool and outcome.",
		}, []string{"tool", "outcome"}),
		toolLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace, Subsystem: "tool", Name: "call_duration_seconds",
			Help:    "Tool execution latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"tool"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.sessionsActive, m.sessionsTotal, m.batchesRejected,
		m.runsTotal, m.runDuration,
		m.modelCalls, m.modelLatency, m.tokens,
		m.toolCalls, m.toolLatency,
	)
	return m
}

// Registry returns the Prometheus registry the metrics are exported on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// SessionOpened implements session.Metrics.
func (m *Metrics) SessionOpened() {
	m.sessionsActive.Inc()
	m.sessionsTotal.Inc()
}

// SessionClosed implements session.Metrics.
func (m *Metrics) SessionClosed() {
	m.sessionsActive.Dec()
}

// BatchRejected implements session.Metrics.
func (m *Metrics) BatchRejected(reason string) {
	m.batchesRejected.WithLabelValues(reason).Inc()
}

// RunFinished implements session.Metrics.
func (m *Metrics) RunFinished(reason agent.StopReason, d time.Duration) {
	m.runsTotal.WithLabelValues(string(reason)).Inc()
	m.runDuration.Observe(d.Seconds())
	m.runs.Add(1)
	if reason != agent.StopReasonComplete {
		m.failedRuns.Add(1)
	}
}

// ObserveModelCall implements agent.Observer.
func (m *Metrics) ObserveModelCall(kind provider.Kind, model string, d time.Duration, usage provider.TokenUsage, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
		m.modelErrors.Add(1)
	}
	m.modelCalls.WithLabelValues(string(kind), model, outcome).Inc()
	m.modelLatency.WithLabelValues(string(kind)).Observe(d.Seconds())
	m.tokens.WithLabelValues("input").Add(float64(usage.PromptTokens))
	m.tokens.WithLabelValues("output").Add(float64(usage.CompletionTokens))

	m.modelCount.Add(1)
	m.totalTokens.Add(int64(usage.TotalTokens))
	m.totalLatency.Add(int64(d))
}

// ObserveToolCall implements agent.Observer.
func (m *Metrics) ObserveToolCall(name string, d time.Duration, isError bool) {
	outcome := "ok"
	if isError {
		outcome = "error"
	}
	m.toolCalls.WithLabelValues(name, outcome).Inc()
	m.toolLatency.WithLabelValues(name).Observe(d.Seconds())
}

// Snapshot returns a point-in-time view of the counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	calls := m.modelCount.Load()
	snap := MetricsSnapshot{
		Runs:        m.runs.Load(),
		FailedRuns:  m.failedRuns.Load(),
		ModelCalls:  calls,
		ModelErrors: m.modelErrors.Load(),
		TotalTokens: m.totalTokens.Load(),
	}
	if calls > 0 {
		snap.AvgModelLatency = time.Duration(m.totalLatency.Load() / calls)
	}
	return snap
}

// MetricsSnapshot is a serializable point-in-time metrics view.
type MetricsSnapshot struct {
	Runs            int64         `json:"runs"`
	FailedRuns      int64         `json:"failed_runs"`
	ModelCalls      int64         `json:"model_calls"`
	ModelErrors     int64         `json:"model_errors"`
	TotalTokens     int64         `json:"total_tokens"`
	AvgModelLatency time.Duration `json:"avg_model_latency_ns"`
}
