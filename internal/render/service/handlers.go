package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/edgecomet/pdfbatch/internal/capture"
	"github.com/edgecomet/pdfbatch/internal/common/config"
	"github.com/edgecomet/pdfbatch/internal/common/requestid"
	"github.com/edgecomet/pdfbatch/internal/common/urlutil"
	"github.com/edgecomet/pdfbatch/internal/job"
	"github.com/edgecomet/pdfbatch/pkg/types"
)

const (
	maxRequestBody = 1 << 20
	maxWidthCap    = 3840

	storeTimeout   = 5 * time.Second
	resolveTimeout = 10 * time.Second
)

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status       string `json:"status"`
	ServerID     string `json:"server_id,omitempty"`
	JobSlots     int    `json:"job_slots"`
	JobsActive   int    `json:"jobs_active"`
	BrowsersLive int64  `json:"browsers_live"`
	ReportStore  bool   `json:"report_store"`
}

// SiteSummary lists one configured site
type SiteSummary struct {
	ID        string `json:"id"`
	Pages     int    `json:"pages"`
	Templated bool   `json:"templated"`
}

// CreateJobRequest is the POST /jobs body for ad-hoc URL lists
type CreateJobRequest struct {
	URLs             []string       `json:"urls"`
	BatchSize        int            `json:"batch_size,omitempty"`
	WidthCap         int            `json:"width_cap,omitempty"`
	HideSelectors    []string       `json:"hide_selectors,omitempty"`
	RemoveSelectors  []string       `json:"remove_selectors,omitempty"`
	ReadinessTimeout types.Duration `json:"readiness_timeout,omitempty"`
	Filename         string         `json:"filename,omitempty"`
}

// liveCounter is implemented by renderers that track open browser processes
type liveCounter interface {
	Live() int64
}

// HandleHealth returns service status and job slot usage
func (h *Handlers) HandleHealth(ctx *fasthttp.RequestCtx) {
	resp := HealthResponse{
		Status:      "ok",
		ServerID:    h.Config.Server.ID,
		JobSlots:    h.Limiter.Capacity(),
		JobsActive:  h.Limiter.Active(),
		ReportStore: h.Reports != nil,
	}
	if lc, ok := h.Renderer.(liveCounter); ok {
		resp.BrowsersLive = lc.Live()
	}
	h.writeJSONResponse(ctx, fasthttp.StatusOK, resp, "health")
}

// HandleListSites lists configured sites in id order
func (h *Handlers) HandleListSites(ctx *fasthttp.RequestCtx) {
	sites := make([]SiteSummary, 0, len(h.Config.Sites))
	for id, site := range h.Config.Sites {
		sites = append(sites, SiteSummary{ID: id, Pages: len(site.Paths), Templated: site.Templated()})
	}
	sort.Slice(sites, func(i, j int) bool { return sites[i].ID < sites[j].ID })
	h.writeJSONResponse(ctx, fasthttp.StatusOK, map[string]interface{}{"sites": sites}, "sites")
}

// HandleSitePDF renders a configured site: GET /sites/{id}/pdf?slug=&hide=&remove=&batch_size=
func (h *Handlers) HandleSitePDF(ctx *fasthttp.RequestCtx, siteID string) {
	const endpoint = "site_pdf"
	args := ctx.QueryArgs()
	slug := string(args.Peek("slug"))

	jc, err := h.Config.SiteJob(siteID, slug)
	switch {
	case errors.Is(err, config.ErrUnknownSite):
		h.writeErrorResponse(ctx, fasthttp.StatusNotFound, err.Error(), errTypeNotFound, "", endpoint)
		return
	case err != nil:
		h.writeErrorResponse(ctx, fasthttp.StatusBadRequest, err.Error(), errTypeValidation, "", endpoint)
		return
	}

	if err := applyQueryOverrides(&jc, args); err != nil {
		h.writeErrorResponse(ctx, fasthttp.StatusBadRequest, err.Error(), errTypeValidation, "", endpoint)
		return
	}

	site := h.Config.Sites[siteID]
	name := siteID
	if site.Templated() {
		name = slug
		if name == "" {
			name = site.DefaultSlug
		}
	}

	jc.ID = requestid.New(name)
	h.runJob(ctx, jc, siteID, name+".pdf", endpoint)
}

// HandleSinglePDF renders one URL: GET /pdf?slug=&url=&hideSelectors=
func (h *Handlers) HandleSinglePDF(ctx *fasthttp.RequestCtx) {
	const endpoint = "pdf"
	args := ctx.QueryArgs()
	slug := string(args.Peek("slug"))
	target := string(args.Peek("url"))

	if slug == "" || target == "" {
		h.writeErrorResponse(ctx, fasthttp.StatusBadRequest, "Missing slug or url.", errTypeValidation, "", endpoint)
		return
	}
	if err := h.validateTargets([]string{target}); err != nil {
		h.writeErrorResponse(ctx, fasthttp.StatusBadRequest, err.Error(), errTypeValidation, "", endpoint)
		return
	}

	jc, err := h.Config.JobTemplate([]string{target})
	if err != nil {
		h.writeErrorResponse(ctx, fasthttp.StatusInternalServerError, err.Error(), errTypeInternal, "", endpoint)
		return
	}
	if hide := splitList(string(args.Peek("hideSelectors"))); len(hide) > 0 {
		jc.Policy = jc.Policy.With(capture.HideSelectors(hide...))
	}

	name := safeFilename(slug)
	jc.ID = requestid.New(name)
	h.runJob(ctx, jc, "", name+".pdf", endpoint)
}

// HandleCreateJob renders an ad-hoc list: POST /jobs
func (h *Handlers) HandleCreateJob(ctx *fasthttp.RequestCtx) {
	const endpoint = "jobs"

	var req CreateJobRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		h.writeErrorResponse(ctx, fasthttp.StatusBadRequest, "Invalid JSON body", errTypeValidation, "", endpoint)
		h.Logger.Warn("Invalid job request body", zap.Error(err))
		return
	}
	if len(req.URLs) == 0 {
		h.writeErrorResponse(ctx, fasthttp.StatusBadRequest, "urls field is required", errTypeValidation, "", endpoint)
		return
	}
	if err := h.validateTargets(req.URLs); err != nil {
		h.writeErrorResponse(ctx, fasthttp.StatusBadRequest, err.Error(), errTypeValidation, "", endpoint)
		return
	}

	jc, err := h.Config.JobTemplate(req.URLs)
	if err != nil {
		h.writeErrorResponse(ctx, fasthttp.StatusInternalServerError, err.Error(), errTypeInternal, "", endpoint)
		return
	}
	if err := applyJobRequest(&jc, req); err != nil {
		h.writeErrorResponse(ctx, fasthttp.StatusBadRequest, err.Error(), errTypeValidation, "", endpoint)
		return
	}

	name := safeFilename(req.Filename)
	jc.ID = requestid.New("")
	h.runJob(ctx, jc, "", name+".pdf", endpoint)
}

// HandleGetJob returns a stored report: GET /jobs/{id}
func (h *Handlers) HandleGetJob(ctx *fasthttp.RequestCtx, jobID string) {
	const endpoint = "job_report"

	if h.Reports == nil {
		h.writeErrorResponse(ctx, fasthttp.StatusNotImplemented, "report storage is disabled", errTypeNotFound, jobID, endpoint)
		return
	}
	if !requestid.Valid(jobID) {
		h.writeErrorResponse(ctx, fasthttp.StatusBadRequest, "invalid job id", errTypeValidation, "", endpoint)
		return
	}

	loadCtx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	var report job.Report
	found, err := h.Reports.Load(loadCtx, jobID, &report)
	if err != nil {
		h.writeErrorResponse(ctx, fasthttp.StatusInternalServerError, "failed to load report", errTypeStore, jobID, endpoint)
		h.Logger.Error("Failed to load job report", zap.String("job_id", jobID), zap.Error(err))
		return
	}
	if !found {
		h.writeErrorResponse(ctx, fasthttp.StatusNotFound, "job report not found or expired", errTypeNotFound, jobID, endpoint)
		return
	}
	h.writeJSONResponse(ctx, fasthttp.StatusOK, &report, endpoint)
}

// runJob acquires a job slot and the site lock, runs the job and writes the result.
// siteID is empty for ad-hoc jobs, which take no lock.
func (h *Handlers) runJob(ctx *fasthttp.RequestCtx, jc job.Config, siteID, filename, endpoint string) {
	logger := h.Logger.With(zap.String("endpoint", endpoint))
	if siteID != "" {
		logger = logger.With(zap.String("site", siteID))
	}

	j, err := job.New(jc, h.Renderer, h.Primitive, h.Metrics, logger)
	if err != nil {
		h.writeErrorResponse(ctx, fasthttp.StatusBadRequest, err.Error(), errTypeValidation, jc.ID, endpoint)
		return
	}

	waitCtx, cancel := context.WithTimeout(context.Background(), h.QueueWait)
	release, err := h.Limiter.Acquire(waitCtx)
	cancel()
	if err != nil {
		h.writeErrorResponse(ctx, fasthttp.StatusServiceUnavailable, "all job slots are busy, retry later", errTypeBusy, j.ID(), endpoint)
		logger.Warn("Job rejected: no free slot", zap.String("job_id", j.ID()), zap.Duration("waited", h.QueueWait))
		return
	}
	defer release()

	if h.Locks != nil && siteID != "" {
		acquired, err := h.Locks.Acquire(siteID, j.ID(), jc.Deadline)
		switch {
		case err != nil:
			// A lock we cannot reach must not block rendering
			h.Metrics.RecordStoreError()
			logger.Warn("Site lock unavailable, running unlocked", zap.String("job_id", j.ID()), zap.Error(err))
		case !acquired:
			holderCtx, cancel := context.WithTimeout(context.Background(), storeTimeout)
			holder, _, _ := h.Locks.Holder(holderCtx, siteID)
			cancel()
			h.writeErrorResponse(ctx, fasthttp.StatusConflict,
				fmt.Sprintf("a job for site %q is already running", siteID), errTypeConflict, holder, endpoint)
			return
		default:
			defer h.Locks.Release(siteID, j.ID())
		}
	}

	h.Metrics.JobStarted()
	defer h.Metrics.JobFinished()

	// The job's own deadline bounds it; a cancelled request must not abort a half-merged document
	report, err := j.Run(context.Background())
	if err != nil {
		h.saveReport(job.FatalReport(j.ID(), err), logger)
		if errors.Is(err, capture.ErrContextStart) {
			h.writeErrorResponse(ctx, fasthttp.StatusServiceUnavailable, err.Error(), errTypeContextStart, j.ID(), endpoint)
			return
		}
		h.writeErrorResponse(ctx, fasthttp.StatusInternalServerError, err.Error(), errTypeInternal, j.ID(), endpoint)
		return
	}

	h.saveReport(report, logger)

	if !report.HasDocument() {
		h.writeJSONResponse(ctx, fasthttp.StatusUnprocessableEntity, report, endpoint)
		return
	}
	h.writeDocument(ctx, report, filename, endpoint)
}

func (h *Handlers) saveReport(report *job.Report, logger *zap.Logger) {
	if h.Reports == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := h.Reports.Save(ctx, report.JobID, report); err != nil {
		h.Metrics.RecordStoreError()
		logger.Error("Failed to store job report", zap.String("job_id", report.JobID), zap.Error(err))
	}
}

// validateTargets rejects non-http(s) URLs and, unless allowed, private addresses
func (h *Handlers) validateTargets(urls []string) error {
	if len(urls) > job.MaxURLs {
		return fmt.Errorf("%d urls exceeds limit of %d", len(urls), job.MaxURLs)
	}
	allowPrivate := h.Config.Server.AllowPrivateTargets

	ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
	defer cancel()

	for i, raw := range urls {
		u, err := urlutil.ValidateTarget(raw)
		if err != nil {
			if allowPrivate && errors.Is(err, urlutil.ErrPrivateTarget) {
				continue
			}
			return fmt.Errorf("url %d: %w", i, err)
		}
		if !allowPrivate && h.Resolver != nil {
			if err := urlutil.ValidateResolved(ctx, h.Resolver, u.Hostname()); err != nil {
				return fmt.Errorf("url %d: %w", i, err)
			}
		}
	}
	return nil
}

// applyQueryOverrides reads hide, remove and batch_size from the query string
func applyQueryOverrides(jc *job.Config, args *fasthttp.Args) error {
	if raw := args.Peek("batch_size"); len(raw) > 0 {
		n, err := strconv.Atoi(string(raw))
		if err != nil || n <= 0 || n > job.MaxURLs {
			return fmt.Errorf("batch_size must be an integer between 1 and %d", job.MaxURLs)
		}
		jc.BatchSize = n
	}
	if hide := splitList(string(args.Peek("hide"))); len(hide) > 0 {
		if capture.SanitizeSelectors(hide) == "" {
			return fmt.Errorf("hide has no usable selectors")
		}
		jc.Policy = jc.Policy.With(capture.HideSelectors(hide...))
	}
	if remove := splitList(string(args.Peek("remove"))); len(remove) > 0 {
		if capture.SanitizeSelectors(remove) == "" {
			return fmt.Errorf("remove has no usable selectors")
		}
		jc.Policy = jc.Policy.With(capture.RemoveSelectors(remove...))
	}
	return nil
}

func applyJobRequest(jc *job.Config, req CreateJobRequest) error {
	if req.BatchSize < 0 || req.BatchSize > job.MaxURLs {
		return fmt.Errorf("batch_size must be between 1 and %d", job.MaxURLs)
	}
	if req.BatchSize > 0 {
		jc.BatchSize = req.BatchSize
	}
	if req.WidthCap < 0 || req.WidthCap > maxWidthCap {
		return fmt.Errorf("width_cap must be between 1 and %d", maxWidthCap)
	}
	if req.WidthCap > 0 {
		jc.WidthCap = req.WidthCap
	}
	if req.ReadinessTimeout < 0 {
		return fmt.Errorf("readiness_timeout must not be negative")
	}
	if req.ReadinessTimeout > 0 {
		jc.Policy = withStepTimeout(jc.Policy, req.ReadinessTimeout.ToDuration())
	}
	if len(req.HideSelectors) > 0 {
		jc.Policy = jc.Policy.With(capture.HideSelectors(req.HideSelectors...))
	}
	if len(req.RemoveSelectors) > 0 {
		jc.Policy = jc.Policy.With(capture.RemoveSelectors(req.RemoveSelectors...))
	}
	return nil
}

// withStepTimeout replaces the timeout of every bounded wait step; fixed delays keep their length
func withStepTimeout(p capture.Policy, timeout time.Duration) capture.Policy {
	out := capture.Policy{Steps: make([]capture.Step, len(p.Steps))}
	for i, s := range p.Steps {
		if s.Kind != capture.StepFixedDelay {
			s.Timeout = timeout
		}
		out.Steps[i] = s
	}
	return out
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func safeFilename(name string) string {
	name = strings.Trim(unsafeFilenameChars.ReplaceAllString(name, "-"), "-")
	if name == "" {
		return "document"
	}
	if len(name) > 64 {
		name = name[:64]
	}
	return name
}
