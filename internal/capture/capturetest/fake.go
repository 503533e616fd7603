// Package capturetest provides a scripted Renderer for exercising the capture
// pipeline without a browser.
package capturetest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/edgecomet/pdfbatch/internal/capture"
)

// ErrOpenFailed is returned by Open when the renderer is scripted to fail
var ErrOpenFailed = errors.New("fake renderer: open failed")

// Page scripts how the fake renderer behaves for one URL
type Page struct {
	Status      int                        // 0 means 200
	NavigateErr error                      // returned from Navigate
	ScrollSize  capture.ContentBox         // measured size before clamping; zero means 1024x2048
	MeasureErr  error                      // returned from MeasureContentBox
	EmitErr     error                      // returned from EmitDocument
	StepErrs    map[capture.StepKind]error // returned from WaitFor for a step kind
	PanicOn     capture.Reason             // panic during navigation, readiness, measurement or emission
	Delay       time.Duration              // latency added to Navigate
}

// Renderer is a scripted capture.Renderer. URLs missing from Pages render with defaults.
type Renderer struct {
	Pages map[string]Page
	// FailOpenAt makes the Nth Open call (1-based) fail; 0 never fails
	FailOpenAt int

	mu          sync.Mutex
	opens       int
	closes      int
	live        int
	maxLive     int
	navigations []string
	steps       []capture.StepKind
}

// NewRenderer creates a fake renderer with the given per-URL scripts
func NewRenderer(pages map[string]Page) *Renderer {
	if pages == nil {
		pages = make(map[string]Page)
	}
	return &Renderer{Pages: pages}
}

// Open starts a fake capture context
func (r *Renderer) Open(ctx context.Context) (capture.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.opens++
	if r.FailOpenAt > 0 && r.opens == r.FailOpenAt {
		return nil, ErrOpenFailed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.live++
	r.maxLive = max(r.maxLive, r.live)
	return &Session{renderer: r}, nil
}

// Opens returns how many contexts were requested
func (r *Renderer) Opens() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.opens
}

// Closes returns how many contexts were closed
func (r *Renderer) Closes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closes
}

// MaxLive returns the peak number of simultaneously open contexts
func (r *Renderer) MaxLive() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.maxLive
}

// Navigations returns every URL navigated to, in order
func (r *Renderer) Navigations() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.navigations...)
}

// Steps returns every readiness step kind executed, in order
func (r *Renderer) Steps() []capture.StepKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]capture.StepKind(nil), r.steps...)
}

func (r *Renderer) page(url string) Page {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Pages[url]
}

// Session is a fake capture context
type Session struct {
	renderer *Renderer
	current  string
	closed   bool
}

func (s *Session) Navigate(ctx context.Context, url string, timeout time.Duration) (int, error) {
	if s.closed {
		return 0, errors.New("fake session closed")
	}

	s.renderer.mu.Lock()
	s.renderer.navigations = append(s.renderer.navigations, url)
	s.renderer.mu.Unlock()

	s.current = url
	p := s.renderer.page(url)
	if p.PanicOn == capture.ReasonNavigation {
		panic("scripted navigation panic")
	}
	if p.Delay > 0 {
		if err := capture.Sleep(ctx, min(p.Delay, timeout)); err != nil {
			return 0, err
		}
		if p.Delay > timeout {
			return 0, fmt.Errorf("navigation timeout after %s", timeout)
		}
	}
	if p.NavigateErr != nil {
		return 0, p.NavigateErr
	}
	if p.Status == 0 {
		return 200, nil
	}
	return p.Status, nil
}

func (s *Session) WaitFor(ctx context.Context, step capture.Step) error {
	s.renderer.mu.Lock()
	s.renderer.steps = append(s.renderer.steps, step.Kind)
	s.renderer.mu.Unlock()

	p := s.renderer.page(s.current)
	if p.PanicOn == capture.ReasonReadiness {
		panic("scripted readiness panic")
	}
	if err, ok := p.StepErrs[step.Kind]; ok {
		return err
	}
	if step.Kind == capture.StepFixedDelay {
		return capture.Sleep(ctx, step.Delay)
	}
	return nil
}

func (s *Session) MeasureContentBox(ctx context.Context, widthCap int) (capture.ContentBox, error) {
	p := s.renderer.page(s.current)
	if p.PanicOn == capture.ReasonMeasurement {
		panic("scripted measurement panic")
	}
	if p.MeasureErr != nil {
		return capture.ContentBox{}, p.MeasureErr
	}

	box := p.ScrollSize
	if box == (capture.ContentBox{}) {
		box = capture.ContentBox{Width: 1024, Height: 2048}
	}
	return box.Clamp(widthCap), nil
}

func (s *Session) EmitDocument(ctx context.Context, box capture.ContentBox) ([]byte, error) {
	p := s.renderer.page(s.current)
	if p.PanicOn == capture.ReasonEmission {
		panic("scripted emission panic")
	}
	if p.EmitErr != nil {
		return nil, p.EmitErr
	}
	return Document(s.current, box), nil
}

func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	s.renderer.mu.Lock()
	defer s.renderer.mu.Unlock()
	s.renderer.closes++
	s.renderer.live--
	return nil
}

const documentPrefix = "%FAKE-PDF "

// Document returns the bytes the fake session emits for url at box
func Document(url string, box capture.ContentBox) []byte {
	return []byte(fmt.Sprintf("%surl=%s box=%s", documentPrefix, url, box))
}

// ParseDocument extracts the URL from a fake document
func ParseDocument(doc []byte) (string, bool) {
	rest, ok := strings.CutPrefix(string(doc), documentPrefix)
	if !ok {
		return "", false
	}
	url, _, ok := strings.Cut(strings.TrimPrefix(rest, "url="), " box=")
	return url, ok
}
