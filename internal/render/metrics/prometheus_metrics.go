package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"
)

// PrometheusMetrics holds the raw collectors for the PDF service
type PrometheusMetrics struct {
	// Capture metrics
	capturesTotal     *prometheus.CounterVec
	captureDuration   prometheus.Histogram
	readinessWarnings *prometheus.CounterVec
	contextsStarted   *prometheus.CounterVec
	captureSuccess    prometheus.Gauge

	// Job metrics
	jobsTotal   *prometheus.CounterVec
	jobDuration prometheus.Histogram
	jobsActive  prometheus.Gauge
	jobSlots    prometheus.Gauge

	// HTTP metrics
	httpRequests *prometheus.CounterVec

	// Error metrics
	errorsTotal *prometheus.CounterVec

	logger      *zap.Logger
	httpHandler func(*fasthttp.RequestCtx)
}

// NewPrometheusMetrics registers on the default registry
func NewPrometheusMetrics(namespace string, logger *zap.Logger) *PrometheusMetrics {
	return NewPrometheusMetricsWithRegistry(namespace, prometheus.DefaultRegisterer, logger)
}

// NewPrometheusMetricsWithRegistry creates collectors on a custom registry
func NewPrometheusMetricsWithRegistry(namespace string, registerer prometheus.Registerer, logger *zap.Logger) *PrometheusMetrics {
	pm := &PrometheusMetrics{
		logger: logger,
	}

	pm.capturesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "captures_total",
		Help:      "Total URL captures by outcome",
	}, []string{"outcome"}) // outcome: success, navigation, readiness, measurement, emission, merge, cancelled

	pm.captureDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "capture_duration_seconds",
		Help:      "Time spent capturing one URL",
		Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10), // 0.25s to ~2m
	})

	pm.captureSuccess = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "capture_success_ratio",
		Help:      "Share of URL captures that ended in the merged document since start",
	})

	pm.readinessWarnings = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "readiness_warnings_total",
		Help:      "Readiness steps abandoned after their timeout",
	}, []string{"step"})

	pm.contextsStarted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "contexts_started_total",
		Help:      "Capture context (browser process) starts by result",
	}, []string{"result"}) // result: success, error

	pm.jobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_total",
		Help:      "Finished jobs by status",
	}, []string{"status"}) // status: success, partial, empty, failed_fatal

	pm.jobDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "job_duration_seconds",
		Help:      "End-to-end job duration",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~17m
	})

	pm.jobsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "jobs_active",
		Help:      "Jobs currently running",
	})

	pm.jobSlots = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "job_slots",
		Help:      "Maximum number of concurrent jobs",
	})

	pm.httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by endpoint and status",
	}, []string{"endpoint", "status"})

	pm.errorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "errors_total",
		Help:      "Total errors by type",
	}, []string{"type"}) // type: validation, context_start, store, internal

	registerer.MustRegister(
		pm.capturesTotal,
		pm.captureDuration,
		pm.captureSuccess,
		pm.readinessWarnings,
		pm.contextsStarted,
		pm.jobsTotal,
		pm.jobDuration,
		pm.jobsActive,
		pm.jobSlots,
		pm.httpRequests,
		pm.errorsTotal,
	)

	gatherer, ok := registerer.(prometheus.Gatherer)
	if !ok {
		gatherer = prometheus.DefaultGatherer
	}
	pm.httpHandler = fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	logger.Info("PDF service Prometheus metrics initialized", zap.String("namespace", namespace))
	return pm
}

// ServeHTTP serves the registry in the Prometheus text format
func (pm *PrometheusMetrics) ServeHTTP(ctx *fasthttp.RequestCtx) {
	pm.httpHandler(ctx)
}

// captureOutcomes are the label values of captures_total
var captureOutcomes = []string{"success", "navigation", "readiness", "measurement", "emission", "merge", "cancelled"}

// updateCaptureSuccessRatio recomputes the success ratio from the outcome counters
func (pm *PrometheusMetrics) updateCaptureSuccessRatio() {
	var success, total float64
	for _, outcome := range captureOutcomes {
		v := pm.getCounterValue(pm.capturesTotal.WithLabelValues(outcome))
		if outcome == "success" {
			success = v
		}
		total += v
	}
	if total > 0 {
		pm.captureSuccess.Set(success / total)
	}
}

// getCounterValue reads the current value of a counter
func (pm *PrometheusMetrics) getCounterValue(counter prometheus.Counter) float64 {
	metric := &dto.Metric{}
	if err := counter.Write(metric); err != nil {
		pm.logger.Warn("Failed to read counter value", zap.Error(err))
		return 0
	}
	return metric.GetCounter().GetValue()
}
