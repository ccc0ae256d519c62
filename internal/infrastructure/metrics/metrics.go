package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/classboard/core/internal/ports"
)

// Metrics owns the Prometheus registry shared by the gateway and the sync core
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	FeedConnections prometheus.Gauge
	ChangesSent     *prometheus.CounterVec

	remoteWrites     *prometheus.CounterVec
	echoesSuppressed *prometheus.CounterVec
	remoteChanges    *prometheus.CounterVec
	resubscribes     prometheus.Counter
}

// New registers every collector on a fresh registry
func New(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		FeedConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "realtime_connections",
			Help:      "Open websocket change feed connections",
		}),
		ChangesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "realtime_changes_sent_total",
				Help:      "Change notifications written to feed subscribers",
			},
			[]string{"table", "event"},
		),
		remoteWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sync_remote_writes_total",
				Help:      "Optimistic writes by entity, operation and outcome",
			},
			[]string{"entity", "op", "outcome"},
		),
		echoesSuppressed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sync_echoes_suppressed_total",
				Help:      "Remote updates discarded because a local write was in flight",
			},
			[]string{"table"},
		),
		remoteChanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sync_remote_changes_total",
				Help:      "Realtime notifications received by the bridge",
			},
			[]string{"table", "event", "applied"},
		),
		resubscribes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_resubscribes_total",
			Help:      "Realtime channel resubscriptions after a drop",
		}),
	}

	m.registry.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.FeedConnections,
		m.ChangesSent,
		m.remoteWrites,
		m.echoesSuppressed,
		m.remoteChanges,
		m.resubscribes,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler exposes the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry, mostly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) RemoteWrite(entity, op, outcome string) {
	m.remoteWrites.WithLabelValues(entity, op, outcome).Inc()
}

func (m *Metrics) EchoSuppressed(table ports.Table) {
	m.echoesSuppressed.WithLabelValues(string(table)).Inc()
}

func (m *Metrics) RemoteChange(table ports.Table, event ports.ChangeEvent, applied bool) {
	m.remoteChanges.WithLabelValues(string(table), string(event), strconv.FormatBool(applied)).Inc()
}

func (m *Metrics) Resubscribed() {
	m.resubscribes.Inc()
}

var _ ports.SyncMetrics = (*Metrics)(nil)
