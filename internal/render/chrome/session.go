package chrome

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/edgecomet/pdfbatch/internal/capture"
)

const (
	lifecycleLoad      = "load"
	fetchCommandWait   = 2 * time.Second
	fetchDrainTimeout  = 5 * time.Second
	fetchDrainInterval = 100 * time.Millisecond

	// CSS px per inch; PrintToPDF paper sizes are in inches
	cssPixelsPerInch = 96.0
)

// Session is one browser process with one tab, reused for every URL of a batch
type Session struct {
	id             int64
	tabCtx         context.Context
	tabCancel      context.CancelFunc
	allocCancel    context.CancelFunc
	blocklist      *Blocklist
	state          *pageState
	logger         *zap.Logger
	browserVersion string
	onClose        func()

	loaderID          string // current navigation; only touched by the capture goroutine
	fetchHandlerCount atomic.Int64
	closeOnce         sync.Once
	closed            atomic.Bool
}

// run executes actions on the tab, bounded by ctx without tying the tab's lifetime to it
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}

	opCtx, cancel := context.WithCancel(s.tabCtx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		opCtx, cancelDeadline = context.WithDeadline(opCtx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(opCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return fmt.Errorf("%w: %v", ctx.Err(), err)
	}
	return err
}

func (s *Session) evaluate(ctx context.Context, script string, out any) error {
	if err := s.run(ctx, chromedp.Evaluate(script, out)); err != nil {
		if ctx.Err() != nil {
			return err
		}
		return errors.Join(ErrScriptFailed, err)
	}
	return nil
}

// Navigate loads url in the tab and waits for its load event. The returned status is the
// main document's final response, after redirects.
func (s *Session) Navigate(ctx context.Context, url string, timeout time.Duration) (int, error) {
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	s.state.reset()
	s.loaderID = ""

	var loaderID cdp.LoaderID
	err := s.run(navCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, id, errorText, _, err := page.Navigate(url).Do(ctx)
		if err != nil {
			return err
		}
		if errorText != "" {
			return fmt.Errorf("%s", errorText)
		}
		loaderID = id
		return nil
	}))
	if err != nil {
		return 0, errors.Join(ErrNavigateFailed, err)
	}
	s.loaderID = string(loaderID)

	if s.loaderID != "" {
		if err := s.state.wait(navCtx, s.loaderID, lifecycleLoad); err != nil {
			return 0, fmt.Errorf("%w: load event not reached within %s: %v", ErrNavigateFailed, timeout, err)
		}
	}

	status := s.state.status(s.loaderID)
	if status == 0 {
		var fallback int64
		if err := s.evaluate(navCtx, statusFallbackScript, &fallback); err != nil {
			s.logger.Warn("Failed to retrieve status code via Performance API fallback",
				zap.String("url", url),
				zap.Error(err))
		}
		status = int(fallback)
		if status > 0 {
			s.logger.Debug("Status code retrieved via Performance API fallback",
				zap.String("url", url),
				zap.Int("status_code", status))
		}
	}
	if status == 0 {
		return 0, fmt.Errorf("%w: %s", ErrStatusCapture, url)
	}

	return status, nil
}

// WaitFor runs one readiness step against the current page
func (s *Session) WaitFor(ctx context.Context, step capture.Step) error {
	step = step.WithDefaults()

	switch step.Kind {
	case capture.StepNetworkIdle:
		timer, cancel := context.WithTimeout(ctx, step.Timeout)
		defer cancel()
		err := s.state.wait(timer, s.loaderID, step.Event)
		if err != nil && ctx.Err() == nil {
			return capture.ErrWaitTimeout
		}
		return err

	case capture.StepFixedDelay:
		return capture.Sleep(ctx, step.Delay)

	case capture.StepAnimatedCounterSettle:
		return capture.SettleCounters(ctx, s, step)

	case capture.StepScrollSweep:
		return capture.SweepScroll(ctx, s, step)

	case capture.StepHideSelectors:
		script, ok := hideScript(step.Selectors)
		if !ok {
			return nil
		}
		return s.mutate(ctx, step, script)

	case capture.StepRemoveSelectors:
		script, ok := removeScript(step.Selectors)
		if !ok {
			return nil
		}
		return s.mutate(ctx, step, script)

	case capture.StepExpandAccordions:
		return s.mutate(ctx, step, expandAccordionsScript)

	case capture.StepReplaceIframes:
		return s.mutate(ctx, step, replaceIframesScript)
	}

	return fmt.Errorf("%w: %q", capture.ErrUnknownStep, step.Kind)
}

// mutate runs a DOM mutation script bounded by the step's timeout
func (s *Session) mutate(ctx context.Context, step capture.Step, script string) error {
	stepCtx, cancel := context.WithTimeout(ctx, step.Timeout)
	defer cancel()

	var affected int64
	if err := s.evaluate(stepCtx, script, &affected); err != nil {
		if ctx.Err() == nil && errors.Is(stepCtx.Err(), context.DeadlineExceeded) {
			return capture.ErrWaitTimeout
		}
		return err
	}

	s.logger.Debug("Page mutated",
		zap.String("step", string(step.Kind)),
		zap.Int64("elements", affected))
	return nil
}

// ReadCounters implements capture.CounterProbe
func (s *Session) ReadCounters(ctx context.Context, selector, targetAttr string) ([]capture.Counter, error) {
	var counters []capture.Counter
	if err := s.evaluate(ctx, readCountersScript(selector, targetAttr), &counters); err != nil {
		return nil, err
	}
	return counters, nil
}

// SnapCounters implements capture.CounterProbe
func (s *Session) SnapCounters(ctx context.Context, selector, targetAttr string) (int, error) {
	var n int64
	if err := s.evaluate(ctx, snapCountersScript(selector, targetAttr), &n); err != nil {
		return 0, err
	}
	return int(n), nil
}

// ScrollStep implements capture.Scroller
func (s *Session) ScrollStep(ctx context.Context) (bool, error) {
	var atBottom bool
	if err := s.evaluate(ctx, scrollStepScript, &atBottom); err != nil {
		return false, err
	}
	return atBottom, nil
}

// ScrollTop implements capture.Scroller
func (s *Session) ScrollTop(ctx context.Context) error {
	var ok bool
	return s.evaluate(ctx, scrollTopScript, &ok)
}

type scrollSize struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// MeasureContentBox reads the document's scroll size and clamps its width
func (s *Session) MeasureContentBox(ctx context.Context, widthCap int) (capture.ContentBox, error) {
	var size scrollSize
	if err := s.evaluate(ctx, measureScript, &size); err != nil {
		return capture.ContentBox{}, err
	}

	box := capture.ContentBox{
		Width:  int(math.Ceil(size.Width)),
		Height: int(math.Ceil(size.Height)),
	}
	return box.Clamp(widthCap), nil
}

// EmitDocument prints the first page of the current document on paper exactly the size of box
func (s *Session) EmitDocument(ctx context.Context, box capture.ContentBox) ([]byte, error) {
	var doc []byte
	err := s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		data, _, err := printParams(box).Do(ctx)
		if err != nil {
			return err
		}
		doc = data
		return nil
	}))
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func printParams(box capture.ContentBox) *page.PrintToPDFParams {
	return page.PrintToPDF().
		WithPrintBackground(true).
		WithPaperWidth(float64(box.Width) / cssPixelsPerInch).
		WithPaperHeight(float64(box.Height) / cssPixelsPerInch).
		WithMarginTop(0).
		WithMarginBottom(0).
		WithMarginLeft(0).
		WithMarginRight(0).
		WithScale(1).
		WithPageRanges("1").
		WithPreferCSSPageSize(false)
}

// Close waits briefly for in-flight request handlers, then kills the browser process
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)

		deadline := time.Now().Add(fetchDrainTimeout)
		for s.fetchHandlerCount.Load() > 0 && time.Now().Before(deadline) {
			time.Sleep(fetchDrainInterval)
		}
		if remaining := s.fetchHandlerCount.Load(); remaining > 0 {
			s.logger.Warn("Timeout waiting for fetch handlers to complete",
				zap.Int64("remaining", remaining))
		}

		s.tabCancel()
		s.allocCancel()
		if s.onClose != nil {
			s.onClose()
		}
		s.logger.Debug("Capture context closed")
	})
	return nil
}

// handleEvent is the tab's single CDP event listener
func (s *Session) handleEvent(event any) {
	switch ev := event.(type) {
	case *fetch.EventRequestPaused:
		s.fetchHandlerCount.Add(1)
		go s.resolvePaused(ev)

	case *network.EventResponseReceived:
		if ev.Type == network.ResourceTypeDocument && ev.Response != nil {
			s.state.recordStatus(string(ev.LoaderID), int(ev.Response.Status))
		}

	case *page.EventLifecycleEvent:
		s.state.recordLifecycle(string(ev.LoaderID), ev.Name)
	}
}

// resolvePaused fails blocked requests and lets the rest continue.
// Handlers run off the event goroutine so CDP replies are not deadlocked.
func (s *Session) resolvePaused(ev *fetch.EventRequestPaused) {
	defer s.fetchHandlerCount.Add(-1)

	cmdCtx, cancel := context.WithTimeout(s.tabCtx, fetchCommandWait)
	defer cancel()

	c := chromedp.FromContext(cmdCtx)
	if c == nil || c.Target == nil {
		return
	}
	executor := cdp.WithExecutor(cmdCtx, c.Target)

	if s.blocklist.Blocks(ev.Request.URL, string(ev.ResourceType)) {
		if err := fetch.FailRequest(ev.RequestID, network.ErrorReasonAborted).Do(executor); err != nil {
			s.logger.Debug("Failed to block request",
				zap.String("url", ev.Request.URL),
				zap.Error(err))
		}
		return
	}

	if err := fetch.ContinueRequest(ev.RequestID).Do(executor); err != nil {
		s.logger.Debug("Failed to continue request, failing instead to prevent hang",
			zap.String("url", ev.Request.URL),
			zap.Error(err))
		_ = fetch.FailRequest(ev.RequestID, network.ErrorReasonAborted).Do(executor)
	}
}
