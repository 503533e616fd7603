package service

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/edgecomet/pdfbatch/internal/job"
)

// Error categories for metrics and the error body's type field
const (
	errTypeValidation   = "validation"
	errTypeNotFound     = "not_found"
	errTypeBusy         = "busy"
	errTypeConflict     = "conflict"
	errTypeContextStart = "context_start"
	errTypeStore        = "store"
	errTypeInternal     = "internal"
)

// ErrorResponse is the JSON body of every non-document error
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Type    string `json:"type"`
	JobID   string `json:"job_id,omitempty"`
}

// writeJSONResponse writes a JSON response with proper error handling
func (h *Handlers) writeJSONResponse(ctx *fasthttp.RequestCtx, statusCode int, response interface{}, endpoint string) {
	body, err := json.Marshal(response)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		ctx.SetBodyString(`{"success":false,"error":"Failed to marshal response","type":"internal"}`)
		ctx.SetContentType("application/json")
		h.Metrics.RecordHTTPRequest(endpoint, "500")
		h.Logger.Error("Failed to marshal JSON response",
			zap.String("endpoint", endpoint),
			zap.Error(err))
		return
	}

	ctx.SetStatusCode(statusCode)
	ctx.SetBody(body)
	ctx.SetContentType("application/json")
	h.Metrics.RecordHTTPRequest(endpoint, strconv.Itoa(statusCode))
}

// writeErrorResponse writes an error body and counts it by category
func (h *Handlers) writeErrorResponse(ctx *fasthttp.RequestCtx, statusCode int, msg, errType, jobID, endpoint string) {
	h.writeJSONResponse(ctx, statusCode, ErrorResponse{
		Success: false,
		Error:   msg,
		Type:    errType,
		JobID:   jobID,
	}, endpoint)

	switch errType {
	case errTypeValidation:
		h.Metrics.RecordValidationError()
	case errTypeStore:
		h.Metrics.RecordStoreError()
	case errTypeInternal:
		h.Metrics.RecordInternalError()
	}
}

// writeDocument sends the merged PDF with the job summary in headers
func (h *Handlers) writeDocument(ctx *fasthttp.RequestCtx, report *job.Report, filename, endpoint string) {
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetContentType("application/pdf")
	ctx.Response.Header.Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	ctx.Response.Header.Set("X-Job-ID", report.JobID)
	ctx.Response.Header.Set("X-Pages-Succeeded", strconv.Itoa(len(report.Succeeded)))
	ctx.Response.Header.Set("X-Pages-Failed", strconv.Itoa(len(report.Failed)))
	ctx.Response.Header.Set("X-Readiness-Warnings", strconv.Itoa(len(report.Warnings)))
	ctx.Response.Header.Set("ETag", `"`+report.Checksum+`"`)
	ctx.SetBody(report.Document)
	h.Metrics.RecordHTTPRequest(endpoint, "200")
}
