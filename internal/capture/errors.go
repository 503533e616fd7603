package capture

import "errors"

// Readiness errors - returned by Session.WaitFor
var (
	ErrWaitTimeout   = errors.New("wait timeout exceeded")
	ErrUnknownStep   = errors.New("unknown readiness step")
	ErrInvalidPolicy = errors.New("invalid readiness policy")
)

// Capture errors - wrapped into Failure results, never returned past Capture
var (
	ErrNavigateFailed  = errors.New("navigation failed")
	ErrBadStatus       = errors.New("unexpected navigation status")
	ErrMeasureFailed   = errors.New("content box measurement failed")
	ErrEmptyContentBox = errors.New("content box has zero area")
	ErrEmitFailed      = errors.New("document emission failed")
	ErrEmptyDocument   = errors.New("renderer emitted an empty document")
	ErrInvalidRequest  = errors.New("invalid capture request")
)

// ErrContextStart is the only error that escapes a job: the renderer could not open a capture context
var ErrContextStart = errors.New("capture context could not be started")
