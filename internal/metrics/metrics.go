// Package metrics exposes Prometheus collectors for the ingestion pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "reiteradas"

const (
	MetricBatchesCommitted = "batches_committed_total"
	MetricRecordsPersisted = "records_persisted_total"
	MetricRecordsSkipped   = "records_skipped_total"
	MetricRetries          = "store_retries_total"
	MetricUploads          = "uploads_total"
	MetricDocumentsDeleted = "documents_deleted_total"
	MetricBatchSeconds     = "batch_commit_seconds"
)

// Metrics groups the pipeline collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	batchesCommitted prometheus.Counter
	recordsPersisted prometheus.Counter
	recordsSkipped   prometheus.Counter
	retries          *prometheus.CounterVec
	uploads          *prometheus.CounterVec
	deleted          *prometheus.CounterVec
	batchSeconds     prometheus.Histogram
}

// New creates the collectors on a dedicated registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		batchesCommitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      MetricBatchesCommitted,
			Help:      "Record batches committed to the store.",
		}),
		recordsPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      MetricRecordsPersisted,
			Help:      "Records written to the store.",
		}),
		recordsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      MetricRecordsSkipped,
			Help:      "Records dropped because no territory could be resolved.",
		}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      MetricRetries,
			Help:      "Transient store failures that were retried.",
		}, []string{"operation"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      MetricUploads,
			Help:      "Finished ingestion runs.",
		}, []string{"result"}),
		deleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      MetricDocumentsDeleted,
			Help:      "Documents removed by delete or clear operations.",
		}, []string{"collection"}),
		batchSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      MetricBatchSeconds,
			Help:      "Latency of a single batch commit.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
	}
	m.registry.MustRegister(
		m.batchesCommitted,
		m.recordsPersisted,
		m.recordsSkipped,
		m.retries,
		m.uploads,
		m.deleted,
		m.batchSeconds,
		prometheus.NewGoCollector(),
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the collectors in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) BatchCommitted(size int, took time.Duration) {
	if m == nil {
		return
	}
	m.batchesCommitted.Inc()
	m.recordsPersisted.Add(float64(size))
	m.batchSeconds.Observe(took.Seconds())
}

func (m *Metrics) RecordsSkipped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.recordsSkipped.Add(float64(n))
}

func (m *Metrics) Retried(operation string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(operation).Inc()
}

func (m *Metrics) UploadFinished(success bool) {
	if m == nil {
		return
	}
	result := "failed"
	if success {
		result = "succeeded"
	}
	m.uploads.WithLabelValues(result).Inc()
}

func (m *Metrics) Deleted(collection string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.deleted.WithLabelValues(collection).Add(float64(n))
}
