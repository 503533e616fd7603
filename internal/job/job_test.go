package job_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edgecomet/pdfbatch/internal/capture"
	"github.com/edgecomet/pdfbatch/internal/capture/capturetest"
	"github.com/edgecomet/pdfbatch/internal/job"
	"github.com/edgecomet/pdfbatch/internal/merge/mergetest"
)

func urls(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("https://example.com/page-%d", i)
	}
	return out
}

// pageURLs decodes the fake merged document back into the URLs of its pages
func pageURLs(t *testing.T, doc []byte) []string {
	t.Helper()
	var out []string
	for _, p := range mergetest.Pages(doc) {
		u, ok := capturetest.ParseDocument(p)
		require.True(t, ok, "unexpected page %q", p)
		out = append(out, u)
	}
	return out
}

type recordingObserver struct {
	mu       sync.Mutex
	starts   []bool
	captures []string
	warnings []string
	jobs     []string
}

func (o *recordingObserver) RecordContextStart(success bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.starts = append(o.starts, success)
}

func (o *recordingObserver) RecordCapture(outcome string, _ float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.captures = append(o.captures, outcome)
}

func (o *recordingObserver) RecordReadinessWarning(step string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.warnings = append(o.warnings, step)
}

func (o *recordingObserver) RecordJob(status string, _ float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.jobs = append(o.jobs, status)
}

func TestRun_PartialFailure(t *testing.T) {
	a, b, c := "https://example.com/a", "https://example.com/b", "https://example.com/c"
	renderer := capturetest.NewRenderer(map[string]capturetest.Page{
		b: {Status: 404},
	})
	observer := &recordingObserver{}

	report, err := job.Run(context.Background(), job.Config{
		ID:        "job-1",
		URLs:      []string{a, b, c},
		BatchSize: 2,
	}, renderer, &mergetest.Primitive{}, observer, zap.NewNop())

	require.NoError(t, err)
	assert.Equal(t, "job-1", report.JobID)
	assert.Equal(t, job.StateDone, report.State)
	assert.Equal(t, []string{a, c}, report.Succeeded)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, b, report.Failed[0].URL)
	assert.Equal(t, capture.ReasonNavigation, report.Failed[0].Reason)
	assert.Equal(t, []string{a, c}, pageURLs(t, report.Document))
	assert.Equal(t, 2, report.Pages)
	assert.Equal(t, 2, report.Batches)
	assert.Equal(t, job.Checksum(report.Document), report.Checksum)
	assert.Equal(t, len(report.Document), report.DocumentSize)
	assert.False(t, report.DeadlineExceeded)

	assert.Equal(t, 2, renderer.Opens())
	assert.Equal(t, 2, renderer.Closes())
	assert.Equal(t, []bool{true, true}, observer.starts)
	assert.Equal(t, []string{"success", "navigation", "success"}, observer.captures)
	assert.Equal(t, []string{"partial"}, observer.jobs)
}

func TestRun_AllFail(t *testing.T) {
	list := urls(3)
	pages := make(map[string]capturetest.Page)
	for _, u := range list {
		pages[u] = capturetest.Page{Status: 500}
	}
	observer := &recordingObserver{}

	report, err := job.Run(context.Background(), job.Config{URLs: list, BatchSize: 2},
		capturetest.NewRenderer(pages), &mergetest.Primitive{}, observer, zap.NewNop())

	require.NoError(t, err)
	assert.False(t, report.HasDocument())
	assert.Empty(t, report.Succeeded)
	assert.Len(t, report.Failed, 3)
	assert.Zero(t, report.Pages)
	assert.Empty(t, report.Checksum)
	assert.Equal(t, []string{"empty"}, observer.jobs)
}

func TestRun_BatchSizeDoesNotChangeOutput(t *testing.T) {
	list := urls(7)
	pages := map[string]capturetest.Page{
		list[1]: {Status: 404},
		list[4]: {EmitErr: fmt.Errorf("print failed")},
		list[6]: {ScrollSize: capture.ContentBox{Width: 2000, Height: 900}},
	}

	var baseline *job.Report
	for _, size := range []int{1, 2, 3, 4, 7, 50} {
		t.Run(fmt.Sprintf("batch_size_%d", size), func(t *testing.T) {
			renderer := capturetest.NewRenderer(pages)
			report, err := job.Run(context.Background(), job.Config{URLs: list, BatchSize: size},
				renderer, &mergetest.Primitive{}, nil, zap.NewNop())
			require.NoError(t, err)

			wantBatches := (len(list) + size - 1) / size
			assert.Equal(t, wantBatches, report.Batches)
			assert.Equal(t, wantBatches, renderer.Opens())
			assert.Equal(t, wantBatches, renderer.Closes())
			assert.Equal(t, 1, renderer.MaxLive())
			assert.Equal(t, list, renderer.Navigations())

			if baseline == nil {
				baseline = report
				return
			}
			assert.Equal(t, baseline.Document, report.Document)
			assert.Equal(t, baseline.Succeeded, report.Succeeded)
			assert.Equal(t, baseline.Failed, report.Failed)
			assert.Equal(t, baseline.Checksum, report.Checksum)
		})
	}
}

func TestRun_WidthCapAppliedToEveryPage(t *testing.T) {
	u := "https://example.com/wide"
	renderer := capturetest.NewRenderer(map[string]capturetest.Page{
		u: {ScrollSize: capture.ContentBox{Width: 3000, Height: 1200}},
	})

	report, err := job.Run(context.Background(), job.Config{URLs: []string{u}, WidthCap: 800},
		renderer, &mergetest.Primitive{}, nil, zap.NewNop())

	require.NoError(t, err)
	pages := mergetest.Pages(report.Document)
	require.Len(t, pages, 1)
	assert.Equal(t, capturetest.Document(u, capture.ContentBox{Width: 800, Height: 1200}), pages[0])
}

func TestRun_ContextStartFailureIsFatal(t *testing.T) {
	renderer := capturetest.NewRenderer(nil)
	renderer.FailOpenAt = 2
	observer := &recordingObserver{}

	j, err := job.New(job.Config{URLs: urls(4), BatchSize: 2}, renderer, &mergetest.Primitive{}, observer, zap.NewNop())
	require.NoError(t, err)

	report, err := j.Run(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, capture.ErrContextStart)
	assert.Nil(t, report)

	state, batchIndex := j.State()
	assert.Equal(t, job.StateFailedFatal, state)
	assert.Equal(t, 1, batchIndex)

	assert.Equal(t, 1, renderer.Closes(), "first batch context must be closed")
	assert.Equal(t, []bool{true, false}, observer.starts)
	assert.Equal(t, []string{"failed_fatal"}, observer.jobs)
}

func TestRun_DeadlineMergesWhatSucceeded(t *testing.T) {
	list := urls(3)
	renderer := capturetest.NewRenderer(map[string]capturetest.Page{
		list[1]: {Delay: 5 * time.Second},
	})

	report, err := job.Run(context.Background(), job.Config{
		URLs:      list,
		BatchSize: 1,
		Deadline:  100 * time.Millisecond,
	}, renderer, &mergetest.Primitive{}, nil, zap.NewNop())

	require.NoError(t, err)
	assert.Equal(t, []string{list[0]}, report.Succeeded)
	require.Len(t, report.Failed, 2)
	for i, f := range report.Failed {
		assert.Equal(t, list[i+1], f.URL)
		assert.Equal(t, capture.ReasonCancelled, f.Reason)
	}
	assert.True(t, report.DeadlineExceeded)
	assert.Equal(t, []string{list[0]}, pageURLs(t, report.Document))
	assert.Equal(t, 2, renderer.Opens())
	assert.Equal(t, renderer.Opens(), renderer.Closes())
}

func TestRun_MergeRejectionBecomesFailure(t *testing.T) {
	list := urls(3)
	box := capture.ContentBox{Width: 1024, Height: 2048}
	primitive := &mergetest.Primitive{Reject: [][]byte{capturetest.Document(list[1], box)}}

	report, err := job.Run(context.Background(), job.Config{URLs: list},
		capturetest.NewRenderer(nil), primitive, nil, zap.NewNop())

	require.NoError(t, err)
	assert.Equal(t, []string{list[0], list[2]}, report.Succeeded)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, list[1], report.Failed[0].URL)
	assert.Equal(t, capture.ReasonMerge, report.Failed[0].Reason)
}

func TestRun_ReadinessTimeoutIsWarning(t *testing.T) {
	list := urls(2)
	renderer := capturetest.NewRenderer(map[string]capturetest.Page{
		list[0]: {StepErrs: map[capture.StepKind]error{capture.StepNetworkIdle: capture.ErrWaitTimeout}},
	})
	observer := &recordingObserver{}

	report, err := job.Run(context.Background(), job.Config{
		URLs:   list,
		Policy: capture.NewPolicy(capture.NetworkIdle(time.Second)),
	}, renderer, &mergetest.Primitive{}, observer, zap.NewNop())

	require.NoError(t, err)
	assert.Equal(t, list, report.Succeeded)
	require.Len(t, report.Warnings, 1)
	assert.Equal(t, capture.StepNetworkIdle, report.Warnings[0].Step)
	assert.Equal(t, list[0], report.Warnings[0].URL)
	assert.Equal(t, []string{string(capture.StepNetworkIdle)}, observer.warnings)
}

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  job.Config
	}{
		{"no urls", job.Config{}},
		{"relative url", job.Config{URLs: []string{"/about"}}},
		{"unsupported scheme", job.Config{URLs: []string{"ftp://example.com/file"}}},
		{"too many urls", job.Config{URLs: urls(job.MaxURLs + 1)}},
		{"negative deadline", job.Config{URLs: urls(1), Deadline: -time.Second}},
		{"invalid step", job.Config{URLs: urls(1), Policy: capture.Policy{Steps: []capture.Step{{Kind: "wiggle"}}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := job.New(tt.cfg, capturetest.NewRenderer(nil), &mergetest.Primitive{}, nil, zap.NewNop())
			assert.ErrorIs(t, err, job.ErrInvalidConfig)
		})
	}
}

func TestNew_GeneratesID(t *testing.T) {
	j, err := job.New(job.Config{URLs: urls(1)}, capturetest.NewRenderer(nil), &mergetest.Primitive{}, nil, zap.NewNop())
	require.NoError(t, err)

	assert.NotEmpty(t, j.ID())
	state, batchIndex := j.State()
	assert.Equal(t, job.StatePending, state)
	assert.Equal(t, -1, batchIndex)
}
