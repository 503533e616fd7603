package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// stepGrace is added on top of a step's budget for the hard context deadline,
// so a session that misses its own timeout still returns.
const stepGrace = 2 * time.Second

// Capture navigates to req.URL, settles the page, measures it and prints one page.
// Every per-URL error is converted into a Failure result; Capture never panics
// past its boundary and never returns an error.
func Capture(ctx context.Context, session Session, req Request, logger *zap.Logger) (result Result) {
	start := time.Now()
	req = req.withDefaults()
	stage := ReasonNavigation
	var warnings []Warning

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Capture panicked",
				zap.String("url", req.URL),
				zap.String("stage", string(stage)),
				zap.Any("panic", r))
			result = Failed(req.URL, stage, fmt.Errorf("panic during %s: %v", stage, r))
		}
		result.Warnings = warnings
		result.Duration = time.Since(start)
	}()

	if req.URL == "" {
		return Failed(req.URL, ReasonNavigation, fmt.Errorf("%w: url is empty", ErrInvalidRequest))
	}
	if err := ctx.Err(); err != nil {
		return Failed(req.URL, ReasonCancelled, err)
	}

	// Navigation
	status, err := session.Navigate(ctx, req.URL, req.NavigationTimeout)
	if err != nil {
		return failWith(ctx, req.URL, stage, errors.Join(ErrNavigateFailed, err), logger)
	}
	if status < 200 || status >= 300 {
		return failWith(ctx, req.URL, stage, fmt.Errorf("%w: %d", ErrBadStatus, status), logger)
	}

	// Readiness
	stage = ReasonReadiness
	warnings, err = ApplyPolicy(ctx, session, req.URL, req.Policy, logger)
	if err != nil {
		return failWith(ctx, req.URL, stage, err, logger)
	}

	// Measurement
	stage = ReasonMeasurement
	measureCtx, measureCancel := context.WithTimeout(ctx, req.MeasureTimeout)
	box, err := session.MeasureContentBox(measureCtx, req.WidthCap)
	measureCancel()
	if err != nil {
		return failWith(ctx, req.URL, stage, errors.Join(ErrMeasureFailed, err), logger)
	}
	box = box.Clamp(req.WidthCap)
	if box.Empty() {
		return failWith(ctx, req.URL, stage, fmt.Errorf("%w: %s", ErrEmptyContentBox, box), logger)
	}

	// Emission
	stage = ReasonEmission
	emitCtx, emitCancel := context.WithTimeout(ctx, req.EmitTimeout)
	doc, err := session.EmitDocument(emitCtx, box)
	emitCancel()
	if err != nil {
		return failWith(ctx, req.URL, stage, errors.Join(ErrEmitFailed, err), logger)
	}
	if len(doc) == 0 {
		return failWith(ctx, req.URL, stage, ErrEmptyDocument, logger)
	}

	logger.Debug("Page captured",
		zap.String("url", req.URL),
		zap.Int("status_code", status),
		zap.Int("width", box.Width),
		zap.Int("height", box.Height),
		zap.Int("document_bytes", len(doc)),
		zap.Int("warnings", len(warnings)))

	return Succeeded(req.URL, doc, box)
}

// failWith reports a stage failure, or cancellation when the caller's context is done
func failWith(ctx context.Context, url string, stage Reason, err error, logger *zap.Logger) Result {
	reason := stage
	if ctx.Err() != nil {
		reason = ReasonCancelled
	}

	logger.Warn("Capture failed",
		zap.String("url", url),
		zap.String("reason", string(reason)),
		zap.Error(err))

	return Failed(url, reason, err)
}

// ApplyPolicy runs each step in order under its own deadline. A step that runs out
// of time is abandoned and recorded as a warning; any other step error stops the
// policy and is returned. Parent cancellation is returned as-is.
func ApplyPolicy(ctx context.Context, session Session, url string, policy Policy, logger *zap.Logger) ([]Warning, error) {
	var warnings []Warning

	for i, step := range policy.Steps {
		step = step.WithDefaults()

		stepCtx, cancel := context.WithTimeout(ctx, step.Budget()+stepGrace)
		err := session.WaitFor(stepCtx, step)
		hardTimeout := errors.Is(stepCtx.Err(), context.DeadlineExceeded)
		cancel()

		if err == nil {
			continue
		}

		if ctx.Err() != nil {
			return warnings, ctx.Err()
		}

		if errors.Is(err, ErrWaitTimeout) || hardTimeout {
			logger.Warn("Readiness step timed out, continuing",
				zap.String("url", url),
				zap.Int("step_index", i),
				zap.String("step", string(step.Kind)),
				zap.Duration("budget", step.Budget()))
			warnings = append(warnings, Warning{Step: step.Kind, URL: url, Reason: WarningTimeout})
			continue
		}

		return warnings, fmt.Errorf("readiness step %d (%s): %w", i, step.Kind, err)
	}

	return warnings, nil
}
