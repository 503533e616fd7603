package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"go.uber.org/zap"

	"github.com/edgecomet/pdfbatch/internal/capture"
	"github.com/edgecomet/pdfbatch/internal/common/config"
	"github.com/edgecomet/pdfbatch/internal/job"
	"github.com/edgecomet/pdfbatch/internal/merge"
)

// Exit codes
const (
	exitSuccess = 0 // at least one page in the document
	exitFailure = 1 // no document produced
	exitUsage   = 2 // invalid flags or configuration
)

var (
	errNoDocument = errors.New("no page could be captured")
	errWriteFile  = errors.New("failed to write document")
)

func exitCodeFor(err error) int {
	switch {
	case err == nil:
		return exitSuccess
	case errors.Is(err, errUsage),
		errors.Is(err, job.ErrInvalidConfig),
		errors.Is(err, config.ErrUnknownSite),
		errors.Is(err, config.ErrInvalidSlug):
		return exitUsage
	default:
		return exitFailure
	}
}

// resolveSite picks opts.site, or the only configured site when none is given
func resolveSite(cfg *config.ServiceConfig, site string) (string, error) {
	if site != "" {
		return site, nil
	}
	if len(cfg.Sites) == 1 {
		for id := range cfg.Sites {
			return id, nil
		}
	}
	ids := make([]string, 0, len(cfg.Sites))
	for id := range cfg.Sites {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return "", fmt.Errorf("%w: --site is required, configured sites: %v", errUsage, ids)
}

// execute runs one site job and writes the merged document
func execute(ctx context.Context, cfg *config.ServiceConfig, opts options, renderer capture.Renderer, primitive merge.Primitive, out io.Writer, logger *zap.Logger) (*job.Report, error) {
	site, err := resolveSite(cfg, opts.site)
	if err != nil {
		return nil, err
	}
	opts.site = site

	jc, err := cfg.SiteJob(site, opts.slug)
	if err != nil {
		return nil, err
	}
	if opts.batchSize > 0 {
		jc.BatchSize = opts.batchSize
	}
	if len(opts.hide) > 0 {
		jc.Policy = jc.Policy.With(capture.HideSelectors(opts.hide...))
	}

	for _, u := range jc.URLs {
		fmt.Fprintf(out, "Queued:  %s\n", u)
	}

	report, err := job.Run(ctx, jc, renderer, primitive, nil, logger)
	if err != nil {
		return nil, err
	}
	printReport(out, jc.URLs, report)

	if !report.HasDocument() {
		return report, errNoDocument
	}

	path := opts.outputPath()
	if err := os.WriteFile(path, report.Document, 0o644); err != nil {
		return report, fmt.Errorf("%w: %v", errWriteFile, err)
	}
	fmt.Fprintf(out, "PDF saved to %s (%d pages, %d bytes)\n", path, report.Pages, report.DocumentSize)
	return report, nil
}

// printReport lists every URL in input order with its outcome
func printReport(out io.Writer, urls []string, report *job.Report) {
	failures := make(map[string]job.URLFailure, len(report.Failed))
	for _, f := range report.Failed {
		failures[f.URL] = f
	}
	warnings := make(map[string]int, len(report.Warnings))
	for _, w := range report.Warnings {
		warnings[w.URL]++
	}

	for _, u := range urls {
		if f, ok := failures[u]; ok {
			fmt.Fprintf(out, "Skipped: %s (%s: %s)\n", u, f.Reason, f.Message)
			continue
		}
		if n := warnings[u]; n > 0 {
			fmt.Fprintf(out, "Added:   %s (%d readiness warnings)\n", u, n)
			continue
		}
		fmt.Fprintf(out, "Added:   %s\n", u)
	}
	fmt.Fprintf(out, "Succeeded %d, failed %d\n", len(report.Succeeded), len(report.Failed))
}
