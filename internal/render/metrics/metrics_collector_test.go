package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/edgecomet/pdfbatch/internal/job"
)

var _ job.Observer = (*MetricsCollector)(nil)

func newTestCollector(t *testing.T) *MetricsCollector {
	t.Helper()
	return NewMetricsCollectorWithRegistry("pdfbatch", prometheus.NewRegistry(), zap.NewNop())
}

func TestMetricsCollector_Captures(t *testing.T) {
	mc := newTestCollector(t)

	mc.RecordCapture("success", 1.5)
	mc.RecordCapture("success", 2.5)
	mc.RecordCapture("navigation", 0.2)
	mc.RecordReadinessWarning("network_idle")

	assert.Equal(t, 2.0, testutil.ToFloat64(mc.prometheus.capturesTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(mc.prometheus.capturesTotal.WithLabelValues("navigation")))
	assert.Equal(t, 1.0, testutil.ToFloat64(mc.prometheus.readinessWarnings.WithLabelValues("network_idle")))
	assert.Equal(t, 1, testutil.CollectAndCount(mc.prometheus.captureDuration))
	assert.InDelta(t, 2.0/3.0, testutil.ToFloat64(mc.prometheus.captureSuccess), 1e-9)
}

func TestMetricsCollector_ContextStarts(t *testing.T) {
	mc := newTestCollector(t)

	mc.RecordContextStart(true)
	mc.RecordContextStart(false)

	assert.Equal(t, 1.0, testutil.ToFloat64(mc.prometheus.contextsStarted.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(mc.prometheus.contextsStarted.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(mc.prometheus.errorsTotal.WithLabelValues("context_start")))
}

func TestMetricsCollector_Jobs(t *testing.T) {
	mc := newTestCollector(t)

	mc.UpdateJobSlots(4)
	mc.JobStarted()
	mc.JobStarted()
	mc.JobFinished()
	mc.RecordJob("partial", 12)

	assert.Equal(t, 4.0, testutil.ToFloat64(mc.prometheus.jobSlots))
	assert.Equal(t, 1.0, testutil.ToFloat64(mc.prometheus.jobsActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(mc.prometheus.jobsTotal.WithLabelValues("partial")))
}

func TestMetricsCollector_HTTPAndErrors(t *testing.T) {
	mc := newTestCollector(t)

	mc.RecordHTTPRequest("site_pdf", "200")
	mc.RecordValidationError()
	mc.RecordStoreError()
	mc.RecordInternalError()

	assert.Equal(t, 1.0, testutil.ToFloat64(mc.prometheus.httpRequests.WithLabelValues("site_pdf", "200")))
	for _, typ := range []string{"validation", "store", "internal"} {
		assert.Equal(t, 1.0, testutil.ToFloat64(mc.prometheus.errorsTotal.WithLabelValues(typ)), typ)
	}
}

func TestMetricsCollector_ServeHTTP(t *testing.T) {
	mc := newTestCollector(t)
	mc.RecordCapture("success", 1)

	ctx := &fasthttp.RequestCtx{}
	ctx.Request.SetRequestURI("/metrics")
	mc.ServeHTTP(ctx)

	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	body := string(ctx.Response.Body())
	assert.Contains(t, body, `pdfbatch_captures_total{outcome="success"} 1`)
	assert.Contains(t, body, "pdfbatch_capture_duration_seconds_bucket")
}
