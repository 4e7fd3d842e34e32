// Package telemetry exposes the bridge's Prometheus metrics (spec.md §4.1's
// cross-cutting observability requirements), generalized from the teacher's
// internal/gateway/metrics_prometheus.go counter/gauge/histogram shapes.
//
// Unlike the teacher, which registers its collectors against the global
// prometheus.DefaultRegisterer via prometheus.MustRegister (a pattern that
// breaks running more than one bridge instance, or a clean instance per
// test, in the same process), Metrics takes a *prometheus.Registry at
// construction and registers into it explicitly.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the bridge's Prometheus collectors.
type Metrics struct {
	SyncEventsTotal      *prometheus.CounterVec
	ActiveSubscriptions  prometheus.Gauge
	SyncLatencySeconds   *prometheus.HistogramVec
	QueueDepth           *prometheus.GaugeVec
	QueueDropsTotal      *prometheus.CounterVec
	CircuitBreakerState  *prometheus.GaugeVec
}

// NewMetrics constructs and registers the bridge's collectors into reg. Pass
// a freshly created *prometheus.Registry per bridge instance (or per test)
// rather than prometheus.DefaultRegisterer.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		SyncEventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_sync_events_total",
			Help: "Total number of synchronization events processed, by direction and status.",
		}, []string{"direction", "status"}),

		ActiveSubscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bridge_active_subscriptions",
			Help: "Number of currently active OPC UA monitored items.",
		}),

		SyncLatencySeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bridge_sync_latency_seconds",
			Help:    "Latency of one synchronization event, by direction.",
			Buckets: prometheus.DefBuckets,
		}, []string{"direction"}),

		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bridge_queue_depth",
			Help: "Current depth of an internal bounded queue, by queue name.",
		}, []string{"queue"}),

		QueueDropsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_queue_drops_total",
			Help: "Total number of items dropped from a bounded queue due to overflow, by queue name.",
		}, []string{"queue"}),

		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bridge_circuit_breaker_state",
			Help: "Circuit breaker state per endpoint: 0=closed, 1=half-open, 2=open.",
		}, []string{"endpoint"}),
	}

	reg.MustRegister(
		m.SyncEventsTotal,
		m.ActiveSubscriptions,
		m.SyncLatencySeconds,
		m.QueueDepth,
		m.QueueDropsTotal,
		m.CircuitBreakerState,
	)

	return m
}

// Direction label values shared across metrics.
const (
	DirectionOPCUAToAAS = "opcua_to_aas"
	DirectionAASToOPCUA = "aas_to_opcua"
)

// Status label values for SyncEventsTotal.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusDropped = "dropped"
)

// RecordSyncEvent increments the sync event counter for one direction/status
// pair.
func (m *Metrics) RecordSyncEvent(direction, status string) {
	m.SyncEventsTotal.WithLabelValues(direction, status).Inc()
}

// ObserveSyncLatency records how long one synchronization event took.
func (m *Metrics) ObserveSyncLatency(direction string, d time.Duration) {
	m.SyncLatencySeconds.WithLabelValues(direction).Observe(d.Seconds())
}

// SetQueueDepth reports the current depth of a named bounded queue.
func (m *Metrics) SetQueueDepth(queue string, depth int) {
	m.QueueDepth.WithLabelValues(queue).Set(float64(depth))
}

// RecordQueueDrop increments the drop counter for a named bounded queue.
func (m *Metrics) RecordQueueDrop(queue string) {
	m.QueueDropsTotal.WithLabelValues(queue).Inc()
}

// SetCircuitBreakerState reports an endpoint's circuit breaker state: 0 for
// closed, 1 for half-open, 2 for open, matching gobreaker.State's ordering.
func (m *Metrics) SetCircuitBreakerState(endpoint string, state float64) {
	m.CircuitBreakerState.WithLabelValues(endpoint).Set(state)
}
