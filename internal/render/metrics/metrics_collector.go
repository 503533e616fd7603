package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// MetricsCollector centralizes metrics recording for the PDF service.
// It satisfies job.Observer so a job reports captures as they happen.
type MetricsCollector struct {
	prometheus *PrometheusMetrics
	logger     *zap.Logger
}

// NewMetricsCollector registers on the default registry
func NewMetricsCollector(namespace string, logger *zap.Logger) *MetricsCollector {
	return NewMetricsCollectorWithRegistry(namespace, prometheus.DefaultRegisterer, logger)
}

// NewMetricsCollectorWithRegistry registers on a custom registry, used by tests
func NewMetricsCollectorWithRegistry(namespace string, registerer prometheus.Registerer, logger *zap.Logger) *MetricsCollector {
	return &MetricsCollector{
		prometheus: NewPrometheusMetricsWithRegistry(namespace, registerer, logger),
		logger:     logger,
	}
}

// RecordContextStart records a browser process start attempt
func (mc *MetricsCollector) RecordContextStart(success bool) {
	result := "success"
	if !success {
		result = "error"
		mc.prometheus.errorsTotal.WithLabelValues("context_start").Inc()
	}
	mc.prometheus.contextsStarted.WithLabelValues(result).Inc()
}

// RecordCapture records one URL outcome and its duration
func (mc *MetricsCollector) RecordCapture(outcome string, seconds float64) {
	mc.prometheus.capturesTotal.WithLabelValues(outcome).Inc()
	mc.prometheus.captureDuration.Observe(seconds)
	mc.prometheus.updateCaptureSuccessRatio()
}

// RecordReadinessWarning records an abandoned readiness step
func (mc *MetricsCollector) RecordReadinessWarning(step string) {
	mc.prometheus.readinessWarnings.WithLabelValues(step).Inc()
}

// RecordJob records a finished job
func (mc *MetricsCollector) RecordJob(status string, seconds float64) {
	mc.prometheus.jobsTotal.WithLabelValues(status).Inc()
	mc.prometheus.jobDuration.Observe(seconds)
}

// JobStarted increments the active jobs gauge
func (mc *MetricsCollector) JobStarted() {
	mc.prometheus.jobsActive.Inc()
}

// JobFinished decrements the active jobs gauge
func (mc *MetricsCollector) JobFinished() {
	mc.prometheus.jobsActive.Dec()
}

// UpdateJobSlots sets the concurrent job limit
func (mc *MetricsCollector) UpdateJobSlots(slots int) {
	mc.prometheus.jobSlots.Set(float64(slots))
}

// RecordHTTPRequest records an HTTP request
func (mc *MetricsCollector) RecordHTTPRequest(endpoint, status string) {
	mc.prometheus.httpRequests.WithLabelValues(endpoint, status).Inc()
}

// RecordValidationError records a rejected request
func (mc *MetricsCollector) RecordValidationError() {
	mc.prometheus.errorsTotal.WithLabelValues("validation").Inc()
}

// RecordStoreError records a Redis failure
func (mc *MetricsCollector) RecordStoreError() {
	mc.prometheus.errorsTotal.WithLabelValues("store").Inc()
}

// RecordInternalError records an internal error
func (mc *MetricsCollector) RecordInternalError() {
	mc.prometheus.errorsTotal.WithLabelValues("internal").Inc()
}

// ServeHTTP serves Prometheus metrics via HTTP
func (mc *MetricsCollector) ServeHTTP(ctx *fasthttp.RequestCtx) {
	mc.prometheus.ServeHTTP(ctx)
}
