package worker

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// counters holds the monotonic tallies described in component D. A plain
// struct backs GetWorkerStatistics(); the same increments additionally drive
// a set of prometheus gauges/counters owned by this worker (see metrics
// below), grounded on the teacher's prometheus package
// (prometheus/prometheus.go), adapted from per-resource-kind gauges to
// per-worker signal/collect operation counts.
type counters struct {
	messagesSent         uint64
	messagesReceived     uint64
	verticesAdded        uint64
	verticesRemoved      uint64
	outgoingEdgesAdded   uint64
	outgoingEdgesRemoved uint64
	signalOperations     uint64
	collectOperations    uint64
	signalSteps          uint64
	collectSteps         uint64
}

// metrics is the prometheus surface for one worker. Each worker owns its own
// registry rather than using prometheus's global default registry, so that
// several workers can coexist in one process (e.g. the local multi-worker
// demo, or tests) without colliding on metric registration.
type metrics struct {
	registry *prometheus.Registry

	verticesAdded     prometheus.Counter
	verticesRemoved   prometheus.Counter
	signalOperations  prometheus.Counter
	collectOperations prometheus.Counter
	messagesReceived  prometheus.Counter
	storeSize         prometheus.Gauge
}

// newMetrics builds and registers the per-worker metric set.
func newMetrics(workerID uint32) *metrics {
	registry := prometheus.NewRegistry()
	labels := prometheus.Labels{"worker": fmt.Sprintf("%d", workerID)}

	m := &metrics{
		registry: registry,
		verticesAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "sigcollect_vertices_added_total",
			Help:        "Number of vertices added to this worker's shard.",
			ConstLabels: labels,
		}),
		verticesRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "sigcollect_vertices_removed_total",
			Help:        "Number of vertices removed from this worker's shard.",
			ConstLabels: labels,
		}),
		signalOperations: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "sigcollect_signal_operations_total",
			Help:        "Number of ExecuteSignal invocations run by this worker.",
			ConstLabels: labels,
		}),
		collectOperations: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "sigcollect_collect_operations_total",
			Help:        "Number of ExecuteCollect invocations run by this worker.",
			ConstLabels: labels,
		}),
		messagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "sigcollect_messages_received_total",
			Help:        "Number of inbox messages processed by this worker.",
			ConstLabels: labels,
		}),
		storeSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "sigcollect_store_size",
			Help:        "Current number of vertices held by this worker's store.",
			ConstLabels: labels,
		}),
	}

	registry.MustRegister(
		m.verticesAdded,
		m.verticesRemoved,
		m.signalOperations,
		m.collectOperations,
		m.messagesReceived,
		m.storeSize,
	)
	return m
}

// Registry returns the worker's private prometheus registry, for wiring into
// an HTTP handler (e.g. promhttp.HandlerFor) by the caller that owns the
// process's metrics endpoint.
func (obj *Worker[I, S]) Registry() *prometheus.Registry {
	return obj.metrics.registry
}
