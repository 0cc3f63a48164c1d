package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsCount(t *testing.T) {
	m := New()
	m.BatchCommitted(200, 40*time.Millisecond)
	m.BatchCommitted(50, 10*time.Millisecond)
	m.Retried("upsert")
	m.UploadFinished(true)
	m.Deleted("records", 900)
	m.RecordsSkipped(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.batchesCommitted))
	assert.Equal(t, 250.0, testutil.ToFloat64(m.recordsPersisted))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.recordsSkipped))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.retries.WithLabelValues("upsert")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.uploads.WithLabelValues("succeeded")))
	assert.Equal(t, 900.0, testutil.ToFloat64(m.deleted.WithLabelValues("records")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.BatchCommitted(1, time.Second)
		m.Retried("delete")
		m.UploadFinished(false)
		m.Deleted("uploads", 1)
		m.RecordsSkipped(1)
	})
	assert.Nil(t, m.Registry())
	assert.NotNil(t, m.Handler())
}
