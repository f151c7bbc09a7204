package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordRun(t *testing.T) {
	m := New()

	m.RecordRun("completed", 2*time.Second)
	m.RecordRun("completed", 0)
	m.RecordRun("fatal", time.Second)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.RunsTotal.WithLabelValues("completed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RunsTotal.WithLabelValues("fatal")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.QueryDuration))
}

func TestCounters(t *testing.T) {
	m := New()

	m.AddPagesSaved(3)
	m.AddPagesSaved(-1)
	m.AddBatchDue(4)

	assert.Equal(t, float64(3), testutil.ToFloat64(m.PagesSaved))
	assert.Equal(t, float64(4), testutil.ToFloat64(m.BatchDue))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordRun("handled", time.Second)
		m.AddPagesSaved(1)
		m.AddBatchDue(1)
	})
}

func TestHandler(t *testing.T) {
	m := New()
	m.RecordRun("handled", 0)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `sdzerobot_report_runs_total{outcome="handled"} 1`)
}
