package reporter

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const metricsNamespace = "tos_reporter"

// Metrics holds the reporter's Prometheus collectors
type Metrics struct {
	registry *prometheus.Registry

	processed  *prometheus.CounterVec
	retried    *prometheus.CounterVec
	discarded  *prometheus.CounterVec
	rejected   prometheus.Counter
	blocks     *prometheus.CounterVec
	lostBlocks *prometheus.CounterVec
	queueDepth prometheus.GaugeFunc
}

func newMetrics(queueSize func() int) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "items_processed_total",
			Help:      "Work items handled successfully",
		}, []string{"kind"}),
		retried: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "items_retried_total",
			Help:      "Work item attempts that failed with a transient error",
		}, []string{"kind"}),
		discarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "items_discarded_total",
			Help:      "Work items dropped after a fatal error",
		}, []string{"kind"}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "items_rejected_total",
			Help:      "Work items refused at enqueue time",
		}),
		blocks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "blocks_solved_total",
			Help:      "Solved blocks recorded",
		}, []string{"currency", "algo"}),
		lostBlocks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "blocks_without_shares_total",
			Help:      "Solved blocks whose accounting period had no chain shares",
		}, []string{"currency", "algo"}),
		queueDepth: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "queue_size",
			Help:      "Work items waiting to be processed",
		}, func() float64 { return float64(queueSize()) }),
	}

	registry.MustRegister(
		m.processed,
		m.retried,
		m.discarded,
		m.rejected,
		m.blocks,
		m.lostBlocks,
		m.queueDepth,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry to expose over HTTP
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
