package job

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/edgecomet/pdfbatch/internal/batch"
	"github.com/edgecomet/pdfbatch/internal/capture"
	"github.com/edgecomet/pdfbatch/internal/common/requestid"
	"github.com/edgecomet/pdfbatch/internal/merge"
)

// State is a job lifecycle state
type State string

const (
	StatePending     State = "pending"
	StateScheduling  State = "scheduling"
	StateRendering   State = "rendering"
	StateMerging     State = "merging"
	StateDone        State = "done"
	StateFailedFatal State = "failed_fatal"
)

// ErrJobDeadline marks URLs that were never attempted because the job ran out of time
var ErrJobDeadline = errors.New("job deadline reached before capture started")

// Observer receives job events for metrics. All methods must be safe for concurrent use.
type Observer interface {
	RecordContextStart(success bool)
	RecordCapture(outcome string, seconds float64)
	RecordReadinessWarning(step string)
	RecordJob(status string, seconds float64)
}

type noopObserver struct{}

func (noopObserver) RecordContextStart(bool)       {}
func (noopObserver) RecordCapture(string, float64) {}
func (noopObserver) RecordReadinessWarning(string) {}
func (noopObserver) RecordJob(string, float64)     {}

// Job renders an ordered URL list into one merged document.
// Batches run sequentially, each on its own capture context; URLs inside a
// batch run sequentially on that context.
type Job struct {
	cfg       Config
	renderer  capture.Renderer
	primitive merge.Primitive
	observer  Observer
	logger    *zap.Logger

	mu    sync.RWMutex
	state State
	batch int
}

// New validates cfg and creates a pending job. observer may be nil.
func New(cfg Config, renderer capture.Renderer, primitive merge.Primitive, observer Observer, logger *zap.Logger) (*Job, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.ID == "" {
		cfg.ID = requestid.New("")
	}
	if observer == nil {
		observer = noopObserver{}
	}

	return &Job{
		cfg:       cfg,
		renderer:  renderer,
		primitive: primitive,
		observer:  observer,
		logger:    logger.With(zap.String("job_id", cfg.ID)),
		state:     StatePending,
		batch:     -1,
	}, nil
}

// ID returns the job identifier
func (j *Job) ID() string {
	return j.cfg.ID
}

// State returns the current state and, while rendering, the batch index
func (j *Job) State() (State, int) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.state, j.batch
}

func (j *Job) transition(state State, batchIndex int) {
	j.mu.Lock()
	j.state = state
	j.batch = batchIndex
	j.mu.Unlock()

	j.logger.Debug("Job state changed",
		zap.String("state", string(state)),
		zap.Int("batch_index", batchIndex))
}

// Run executes the job. The only error it returns wraps capture.ErrContextStart,
// in which case no report is produced. Every per-URL problem ends up in the report.
// When the job deadline passes, batches not yet started are skipped and whatever
// succeeded is still merged.
func (j *Job) Run(ctx context.Context) (*Report, error) {
	start := time.Now()

	if j.cfg.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.cfg.Deadline)
		defer cancel()
	}

	j.transition(StateScheduling, -1)
	batches, err := batch.Schedule(j.cfg.URLs, j.cfg.BatchSize)
	if err != nil {
		// Config was validated in New
		return nil, err
	}

	j.logger.Info("Job started",
		zap.Int("urls", len(j.cfg.URLs)),
		zap.Int("batch_size", j.cfg.BatchSize),
		zap.Int("batches", len(batches)),
		zap.Int("width_cap", j.cfg.WidthCap))

	results := make([]capture.Result, len(j.cfg.URLs))
	attempted := make([]bool, len(j.cfg.URLs))
	acc := merge.NewAccumulator(j.primitive, j.logger)

	for _, b := range batches {
		if ctx.Err() != nil {
			j.logger.Warn("Job deadline reached, skipping remaining batches",
				zap.Int("batch_index", b.Index),
				zap.Int("remaining_batches", len(batches)-b.Index))
			break
		}

		j.transition(StateRendering, b.Index)
		if err := j.runBatch(ctx, b, results, attempted, acc); err != nil {
			j.transition(StateFailedFatal, b.Index)
			j.observer.RecordJob(string(StateFailedFatal), time.Since(start).Seconds())
			j.logger.Error("Job failed: capture context could not be started",
				zap.Int("batch_index", b.Index),
				zap.Error(err))
			return nil, err
		}
	}

	deadlineExceeded := false
	for i, u := range j.cfg.URLs {
		if attempted[i] {
			continue
		}
		deadlineExceeded = true
		results[i] = capture.Failed(u, capture.ReasonCancelled, ErrJobDeadline)
		if err := acc.Add(i, results[i]); err != nil {
			j.logger.Error("Failed to record skipped url", zap.Int("index", i), zap.Error(err))
		}
	}

	j.transition(StateMerging, -1)
	merged, mergeErr := acc.Finish()
	for _, rej := range acc.Rejected() {
		results[rej.Index] = capture.Failed(rej.URL, capture.ReasonMerge, rej.Err)
	}

	var document []byte
	pages := 0
	switch {
	case mergeErr == nil:
		document, pages = merged.Document, merged.Pages
	case errors.Is(mergeErr, merge.ErrEmptyResult):
		j.logger.Warn("No page captured, job has no document")
	default:
		// Serialization failed after pages were accepted; every contributing URL failed at merge
		j.logger.Error("Failed to serialize merged document", zap.Error(mergeErr))
		for i, res := range results {
			if res.OK() {
				results[i] = capture.Failed(res.URL, capture.ReasonMerge, mergeErr)
			}
		}
	}

	report := buildReport(j.cfg.ID, results, document, pages)
	report.State = StateDone
	report.Batches = len(batches)
	report.DeadlineExceeded = deadlineExceeded
	report.StartedAt = start.UTC()
	report.DurationMs = time.Since(start).Milliseconds()

	j.transition(StateDone, -1)
	j.observer.RecordJob(jobStatus(report), time.Since(start).Seconds())

	j.logger.Info("Job completed",
		zap.Int("succeeded", len(report.Succeeded)),
		zap.Int("failed", len(report.Failed)),
		zap.Int("warnings", len(report.Warnings)),
		zap.Int("pages", report.Pages),
		zap.Int("document_bytes", report.DocumentSize),
		zap.Bool("deadline_exceeded", deadlineExceeded),
		zap.Duration("duration", time.Since(start)))

	return report, nil
}

// runBatch opens one capture context, captures each URL on it and closes it
func (j *Job) runBatch(ctx context.Context, b batch.Batch, results []capture.Result, attempted []bool, acc *merge.Accumulator) error {
	session, err := j.renderer.Open(ctx)
	if err != nil {
		if ctx.Err() != nil {
			// Deadline hit while starting; leave the batch unattempted
			j.logger.Warn("Job deadline reached while opening capture context",
				zap.Int("batch_index", b.Index),
				zap.Error(err))
			return nil
		}
		j.observer.RecordContextStart(false)
		return fmt.Errorf("%w: batch %d: %v", capture.ErrContextStart, b.Index, err)
	}
	j.observer.RecordContextStart(true)

	defer func() {
		if err := session.Close(); err != nil {
			j.logger.Warn("Failed to close capture context",
				zap.Int("batch_index", b.Index),
				zap.Error(err))
		}
	}()

	for i, u := range b.URLs {
		if ctx.Err() != nil {
			return nil
		}

		index := b.GlobalIndex(i)
		res := capture.Capture(ctx, session, j.cfg.request(u), j.logger.With(zap.Int("batch_index", b.Index)))
		results[index] = res
		attempted[index] = true

		j.observe(res)
		if err := acc.Add(index, res); err != nil {
			j.logger.Error("Failed to accumulate result", zap.Int("index", index), zap.Error(err))
		}
	}

	j.logger.Debug("Batch completed",
		zap.Int("batch_index", b.Index),
		zap.Int("urls", len(b.URLs)))
	return nil
}

func (j *Job) observe(res capture.Result) {
	outcome := "success"
	if !res.OK() {
		outcome = string(res.Failure.Reason)
	}
	j.observer.RecordCapture(outcome, res.Duration.Seconds())
	for _, w := range res.Warnings {
		j.observer.RecordReadinessWarning(string(w.Step))
	}
}

// jobStatus labels a finished job for metrics
func jobStatus(r *Report) string {
	switch {
	case len(r.Failed) == 0:
		return "success"
	case r.HasDocument():
		return "partial"
	default:
		return "empty"
	}
}

// Run is a convenience wrapper that builds and runs a job
func Run(ctx context.Context, cfg Config, renderer capture.Renderer, primitive merge.Primitive, observer Observer, logger *zap.Logger) (*Report, error) {
	j, err := New(cfg, renderer, primitive, observer, logger)
	if err != nil {
		return nil, err
	}
	return j.Run(ctx)
}
