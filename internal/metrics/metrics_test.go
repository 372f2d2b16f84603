package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveOperation(t *testing.T) {
	m := New()
	m.ObserveOperation("rename", "ok")
	m.ObserveOperation("rename", "ok")
	m.ObserveOperation("rename", "destination_exists")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.OperationsTotal.WithLabelValues("rename", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OperationsTotal.WithLabelValues("rename", "destination_exists")))
}

func TestObserveScanAndBusy(t *testing.T) {
	m := New()
	m.ObserveScan("manual", "completed", 2*time.Second, 3, 1)
	m.SetBusy(true)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScansTotal.WithLabelValues("manual", "completed")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.UnrenamedFiles))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CoordinatorBusy))

	m.SetBusy(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.CoordinatorBusy))
}

func TestInstancesDoNotShareRegistry(t *testing.T) {
	a, b := New(), New()
	a.Rejected("scan")
	assert.Equal(t, 0.0, testutil.ToFloat64(b.ScansRejected.WithLabelValues("scan")))
}

func TestHandlerServesMetrics(t *testing.T) {
	m := New()
	m.ObserveRollback("ok")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), `embress_rollbacks_total{result="ok"} 1`)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveOperation("rename", "ok")
	m.ObserveScan("manual", "completed", time.Second, 0, 0)
	m.SetBusy(true)
	m.SkippedScheduled()
	assert.Nil(t, m.Registry())
}
