package service

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/edgecomet/pdfbatch/internal/capture"
	"github.com/edgecomet/pdfbatch/internal/common/config"
	"github.com/edgecomet/pdfbatch/internal/common/redis"
	"github.com/edgecomet/pdfbatch/internal/common/urlutil"
	"github.com/edgecomet/pdfbatch/internal/merge"
	"github.com/edgecomet/pdfbatch/internal/render/metrics"
)

// DefaultQueueWait is how long a request waits for a free job slot before 503
const DefaultQueueWait = 30 * time.Second

// Options wires the HTTP handlers to the pipeline
type Options struct {
	Config    *config.ServiceConfig
	Renderer  capture.Renderer
	Primitive merge.Primitive
	Metrics   *metrics.MetricsCollector // nil registers on a private registry
	Limiter   *JobLimiter
	Reports   *redis.ReportStore // nil when redis is disabled
	Locks     *redis.SiteLock    // nil when redis is disabled
	Resolver  urlutil.Resolver   // nil skips DNS checks on ad-hoc targets
	QueueWait time.Duration
	Logger    *zap.Logger
}

// Handlers serves the PDF endpoints
type Handlers struct {
	Options
}

func NewHandlers(opts Options) *Handlers {
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewMetricsCollectorWithRegistry(opts.Config.Metrics.Namespace, prometheus.NewRegistry(), opts.Logger)
	}
	if opts.Limiter == nil {
		opts.Limiter = NewJobLimiter(1)
	}
	if opts.QueueWait <= 0 {
		opts.QueueWait = DefaultQueueWait
	}
	opts.Metrics.UpdateJobSlots(opts.Limiter.Capacity())
	return &Handlers{Options: opts}
}

// CreateHTTPHandler creates the main HTTP request handler with routing
func CreateHTTPHandler(h *Handlers) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		path := string(ctx.Path())
		method := string(ctx.Method())

		switch {
		case method == http.MethodGet && path == "/health":
			h.HandleHealth(ctx)
		case method == http.MethodGet && path == "/sites":
			h.HandleListSites(ctx)
		case method == http.MethodGet && strings.HasPrefix(path, "/sites/") && strings.HasSuffix(path, "/pdf"):
			id := strings.TrimSuffix(strings.TrimPrefix(path, "/sites/"), "/pdf")
			h.HandleSitePDF(ctx, id)
		case method == http.MethodPost && path == "/jobs":
			h.HandleCreateJob(ctx)
		case method == http.MethodGet && strings.HasPrefix(path, "/jobs/"):
			h.HandleGetJob(ctx, strings.TrimPrefix(path, "/jobs/"))
		case method == http.MethodGet && path == "/pdf":
			h.HandleSinglePDF(ctx)
		default:
			ctx.SetStatusCode(fasthttp.StatusNotFound)
			ctx.SetBodyString("Not Found")
			h.Metrics.RecordHTTPRequest("not_found", "404")
		}
	}
}

// NewHTTPServer configures fasthttp so a request can outlive the slowest job
func NewHTTPServer(cfg *config.ServiceConfig, handler fasthttp.RequestHandler) *fasthttp.Server {
	timeout := cfg.ServerTimeout()
	name := "pdfbatch"
	if cfg.Server.ID != "" {
		name += "/" + cfg.Server.ID
	}
	return &fasthttp.Server{
		Handler:            handler,
		ReadTimeout:        timeout,
		WriteTimeout:       timeout,
		IdleTimeout:        timeout,
		MaxRequestBodySize: maxRequestBody,
		Name:               name,
	}
}
