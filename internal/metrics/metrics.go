// Package metrics holds a prometheus registry of internal counters and
// histograms (connections accepted, bytes transferred, inference batch
// sizes, queue depth). Per spec.md's explicit "metrics export" Non-goal
// this registry is never bound to an HTTP /metrics endpoint; it exists
// purely so the rest of the server has somewhere to record observations
// for local inspection (e.g. via a debug dump or future wiring) without
// every call site re-deriving counter shapes, grounded on the teacher's
// monitor package's use of client_golang collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Registry bundles the collectors this server records into, all
// registered against a private prometheus.Registry rather than the
// global default one, so nothing leaks onto a process-wide /metrics
// handler some other package might register.
type Registry struct {
	reg *prometheus.Registry

	ConnectionsAccepted prometheus.Counter
	BytesRead           prometheus.Counter
	BytesWritten        prometheus.Counter
	InferenceBatchSize  prometheus.Histogram
	InferenceQueueDepth prometheus.Gauge
}

// New constructs and registers every collector.
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		ConnectionsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "boneserver_connections_accepted_total",
			Help: "Total TCP connections accepted by the acceptor loop.",
		}),
		BytesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "boneserver_bytes_read_total",
			Help: "Total bytes read from client sockets.",
		}),
		BytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "boneserver_bytes_written_total",
			Help: "Total bytes written to client sockets.",
		}),
		InferenceBatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "boneserver_inference_batch_size",
			Help:    "Distribution of inference batch sizes dispatched to the model pipeline.",
			Buckets: prometheus.LinearBuckets(1, 1, 8),
		}),
		InferenceQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "boneserver_inference_queue_depth",
			Help: "Number of inference tasks currently queued.",
		}),
	}

	reg.MustRegister(
		r.ConnectionsAccepted,
		r.BytesRead,
		r.BytesWritten,
		r.InferenceBatchSize,
		r.InferenceQueueDepth,
	)

	return r
}

// Gather exposes the underlying registry's MetricFamily snapshot, used
// by tests to assert a collector recorded an observation.
func (r *Registry) Gather() ([]*dto.MetricFamily, error) {
	return r.reg.Gather()
}
