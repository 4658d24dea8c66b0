// Package metrics exports chunk and operation timings in the Prometheus
// exposition format. Each Metrics value owns its registry so tests and
// multiple servers in one process never collide.
package metrics

import (
	"net/http"

	"userbench/internal/apperrors"
	"userbench/internal/batch"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "userbench"

const (
	MetricChunkDuration     = "chunk_duration_seconds"
	MetricChunkRecords      = "chunk_records_total"
	MetricChunkFailures     = "chunk_failures_total"
	MetricOperationDuration = "operation_duration_seconds"
	MetricOperations        = "operations_total"
)

type Metrics struct {
	registry *prometheus.Registry

	chunkDuration     *prometheus.HistogramVec
	chunkRecords      *prometheus.CounterVec
	chunkFailures     *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	operations        *prometheus.CounterVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		chunkDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      MetricChunkDuration,
			Help:      "Time spent in a single backend call of a chunked operation.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 18),
		}, []string{"backend", "operation"}),
		chunkRecords: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      MetricChunkRecords,
			Help:      "Records applied by backend calls.",
		}, []string{"backend", "operation"}),
		chunkFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      MetricChunkFailures,
			Help:      "Backend calls that returned an error.",
		}, []string{"backend", "operation"}),
		operationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      MetricOperationDuration,
			Help:      "Reported totalQueryTimeMs of benchmark operations, in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 20),
		}, []string{"backend", "operation"}),
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      MetricOperations,
			Help:      "Benchmark operations by outcome.",
		}, []string{"backend", "operation", "outcome"}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ChunkCompleted implements batch.Observer.
func (m *Metrics) ChunkCompleted(event batch.ChunkEvent) {
	m.chunkDuration.WithLabelValues(event.Backend, event.Operation).Observe(event.Elapsed.Seconds())
	if event.Records > 0 {
		m.chunkRecords.WithLabelValues(event.Backend, event.Operation).Add(float64(event.Records))
	}
	if event.Err != nil {
		m.chunkFailures.WithLabelValues(event.Backend, event.Operation).Inc()
	}
}

// ObserveOperation records one finished operation. outcome is "ok" or the
// error kind.
func (m *Metrics) ObserveOperation(backend, operation string, totalMs float64, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(apperrors.KindOf(err))
	}

	m.operations.WithLabelValues(backend, operation, outcome).Inc()
	if err == nil {
		m.operationDuration.WithLabelValues(backend, operation).Observe(totalMs / 1000)
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
