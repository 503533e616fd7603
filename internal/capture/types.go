package capture

import (
	"context"
	"fmt"
	"time"
)

// Renderer opens capture contexts. One context serves one batch of URLs.
type Renderer interface {
	Open(ctx context.Context) (Session, error)
}

// Session is a live capture context bound to a single renderer process.
// Implementations are used by one goroutine at a time.
type Session interface {
	// Navigate loads url and returns the main document status code.
	Navigate(ctx context.Context, url string, timeout time.Duration) (int, error)
	// WaitFor runs one readiness step and returns ErrWaitTimeout when the step's own budget runs out.
	WaitFor(ctx context.Context, step Step) error
	// MeasureContentBox reads the post-readiness layout size, width clamped to widthCap.
	MeasureContentBox(ctx context.Context, widthCap int) (ContentBox, error)
	// EmitDocument prints exactly one page sized to box.
	EmitDocument(ctx context.Context, box ContentBox) ([]byte, error)
	Close() error
}

// ContentBox is the measured size in CSS pixels a page's output occupies
type ContentBox struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Empty reports whether the box cannot hold a printable page
func (b ContentBox) Empty() bool {
	return b.Width <= 0 || b.Height <= 0
}

// Clamp limits the width to widthCap
func (b ContentBox) Clamp(widthCap int) ContentBox {
	if widthCap > 0 && b.Width > widthCap {
		b.Width = widthCap
	}
	return b
}

func (b ContentBox) String() string {
	return fmt.Sprintf("%dx%d", b.Width, b.Height)
}

// Request describes one URL capture. Immutable once built.
type Request struct {
	URL               string
	Policy            Policy
	WidthCap          int
	NavigationTimeout time.Duration
	MeasureTimeout    time.Duration
	EmitTimeout       time.Duration
}

const (
	DefaultWidthCap          = 1280
	DefaultNavigationTimeout = 20 * time.Second
	DefaultMeasureTimeout    = 10 * time.Second
	DefaultEmitTimeout       = 30 * time.Second
)

// withDefaults fills zero timeouts and width cap
func (r Request) withDefaults() Request {
	if r.WidthCap <= 0 {
		r.WidthCap = DefaultWidthCap
	}
	if r.NavigationTimeout <= 0 {
		r.NavigationTimeout = DefaultNavigationTimeout
	}
	if r.MeasureTimeout <= 0 {
		r.MeasureTimeout = DefaultMeasureTimeout
	}
	if r.EmitTimeout <= 0 {
		r.EmitTimeout = DefaultEmitTimeout
	}
	return r
}

// Reason classifies why a URL contributed nothing to the merged document
type Reason string

const (
	ReasonNavigation  Reason = "navigation"
	ReasonReadiness   Reason = "readiness"
	ReasonMeasurement Reason = "measurement"
	ReasonEmission    Reason = "emission"
	ReasonMerge       Reason = "merge"
	ReasonCancelled   Reason = "cancelled"
)

// Success carries a single-page document and the box it was printed at
type Success struct {
	Document []byte
	Box      ContentBox
}

// Failure records why a capture produced nothing
type Failure struct {
	Reason  Reason
	Message string
}

// WarningTimeout is the only warning reason readiness steps produce
const WarningTimeout = "timeout"

// Warning is a readiness step that was abandoned without failing the capture
type Warning struct {
	Step   StepKind `json:"step"`
	URL    string   `json:"url"`
	Reason string   `json:"reason"`
}

// Result is the outcome of one capture: exactly one of Success or Failure is set
type Result struct {
	URL      string
	Success  *Success
	Failure  *Failure
	Warnings []Warning
	Duration time.Duration
}

// Succeeded builds a successful result
func Succeeded(url string, document []byte, box ContentBox) Result {
	return Result{
		URL:     url,
		Success: &Success{Document: document, Box: box},
	}
}

// Failed builds a failed result. err may be nil.
func Failed(url string, reason Reason, err error) Result {
	msg := string(reason)
	if err != nil {
		msg = err.Error()
	}
	return Result{
		URL:     url,
		Failure: &Failure{Reason: reason, Message: msg},
	}
}

// OK reports whether the capture produced a document
func (r Result) OK() bool {
	return r.Success != nil
}
