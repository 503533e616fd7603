package job

import (
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/edgecomet/pdfbatch/internal/capture"
)

// URLFailure is a URL that contributed nothing to the merged document
type URLFailure struct {
	URL     string         `json:"url"`
	Reason  capture.Reason `json:"reason"`
	Message string         `json:"message,omitempty"`
}

// Report is the outcome of one job. Document is nil when every URL failed.
type Report struct {
	JobID            string            `json:"job_id"`
	State            State             `json:"state"`
	Succeeded        []string          `json:"succeeded"`
	Failed           []URLFailure      `json:"failed"`
	Warnings         []capture.Warning `json:"warnings,omitempty"`
	Batches          int               `json:"batches"`
	Pages            int               `json:"pages"`
	DocumentSize     int               `json:"document_size"`
	Checksum         string            `json:"checksum,omitempty"`
	DeadlineExceeded bool              `json:"deadline_exceeded,omitempty"`
	Error            string            `json:"error,omitempty"` // set only for failed_fatal
	StartedAt        time.Time         `json:"started_at"`
	DurationMs       int64             `json:"duration_ms"`

	Document []byte `json:"-"`
}

// HasDocument reports whether at least one page was merged
func (r *Report) HasDocument() bool {
	return len(r.Document) > 0
}

// buildReport walks results in input order
func buildReport(id string, results []capture.Result, document []byte, pages int) *Report {
	r := &Report{
		JobID:     id,
		Succeeded: make([]string, 0, len(results)),
		Failed:    make([]URLFailure, 0),
		Document:  document,
		Pages:     pages,
	}

	for _, res := range results {
		r.Warnings = append(r.Warnings, res.Warnings...)
		if res.OK() {
			r.Succeeded = append(r.Succeeded, res.URL)
			continue
		}
		r.Failed = append(r.Failed, URLFailure{
			URL:     res.URL,
			Reason:  res.Failure.Reason,
			Message: res.Failure.Message,
		})
	}

	if len(document) > 0 {
		r.DocumentSize = len(document)
		r.Checksum = Checksum(document)
	}

	return r
}

// FatalReport records a job that stopped because a capture context could not start
func FatalReport(id string, err error) *Report {
	return &Report{
		JobID:     id,
		State:     StateFailedFatal,
		Succeeded: []string{},
		Failed:    []URLFailure{},
		Error:     err.Error(),
		StartedAt: time.Now().UTC(),
	}
}

// Checksum is the hex xxhash64 of a document, used as its ETag
func Checksum(document []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(document))
}
