package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"userbench/internal/apperrors"
	"userbench/internal/batch"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func family(t *testing.T, m *Metrics, name string) *dto.MetricFamily {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == namespace+"_"+name {
			return f
		}
	}
	return nil
}

func TestMetrics_ChunkCompleted(t *testing.T) {
	m := New()

	m.ChunkCompleted(batch.ChunkEvent{Backend: "sqlite", Operation: "insert", Records: 200, Elapsed: 20 * time.Millisecond})
	m.ChunkCompleted(batch.ChunkEvent{Backend: "sqlite", Operation: "insert", Records: 50, Elapsed: 5 * time.Millisecond})
	m.ChunkCompleted(batch.ChunkEvent{
		Backend: "sqlite", Operation: "insert", Elapsed: time.Millisecond, Err: errors.New("boom"),
	})

	assert.InDelta(t, 250, testutil.ToFloat64(m.chunkRecords.WithLabelValues("sqlite", "insert")), 0.001)
	assert.InDelta(t, 1, testutil.ToFloat64(m.chunkFailures.WithLabelValues("sqlite", "insert")), 0.001)

	hist := family(t, m, MetricChunkDuration)
	require.NotNil(t, hist)
	require.Len(t, hist.GetMetric(), 1)
	assert.Equal(t, uint64(3), hist.GetMetric()[0].GetHistogram().GetSampleCount())
	assert.InDelta(t, 0.026, hist.GetMetric()[0].GetHistogram().GetSampleSum(), 0.0001)
}

func TestMetrics_ObserveOperation(t *testing.T) {
	m := New()

	m.ObserveOperation("mongo", "query", 12, nil)
	m.ObserveOperation("mongo", "query", 30, apperrors.BackendUnavailable("down", nil))
	m.ObserveOperation("mongo", "query", 0, apperrors.InvalidArgument("bad"))

	assert.InDelta(t, 1, testutil.ToFloat64(m.operations.WithLabelValues("mongo", "query", "ok")), 0.001)
	assert.InDelta(t, 1, testutil.ToFloat64(m.operations.WithLabelValues("mongo", "query", "BackendUnavailable")), 0.001)
	assert.InDelta(t, 1, testutil.ToFloat64(m.operations.WithLabelValues("mongo", "query", "InvalidArgument")), 0.001)

	hist := family(t, m, MetricOperationDuration)
	require.NotNil(t, hist)
	assert.Equal(t, uint64(1), hist.GetMetric()[0].GetHistogram().GetSampleCount())
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ObserveOperation("sqlite", "aggregate", 3, nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, string(body), `userbench_operations_total{backend="sqlite",operation="aggregate",outcome="ok"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	a, b := New(), New()
	a.ObserveOperation("sqlite", "insert", 1, nil)

	assert.InDelta(t, 0, testutil.ToFloat64(b.operations.WithLabelValues("sqlite", "insert", "ok")), 0.001)
}
