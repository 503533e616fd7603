package chrome

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/edgecomet/pdfbatch/internal/capture"
)

// Renderer launches one headless Chrome process per capture context.
// A fresh process per batch is what recycles browser memory between batches.
type Renderer struct {
	config    *Config
	blocklist *Blocklist
	logger    *zap.Logger

	opened atomic.Int64
	live   atomic.Int64
}

// NewRenderer validates config and creates a renderer
func NewRenderer(config *Config, logger *zap.Logger) (*Renderer, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid chrome config: %w", err)
	}
	return &Renderer{
		config:    config,
		blocklist: NewBlocklist(config.BlockedPatterns, config.BlockedResourceTypes),
		logger:    logger,
	}, nil
}

// Live returns the number of capture contexts currently open
func (r *Renderer) Live() int64 {
	return r.live.Load()
}

// Open starts a browser process with one tab and prepares it for captures.
// The process is bounded by StartTimeout and by ctx; a failure here is fatal to the job.
func (r *Renderer) Open(ctx context.Context) (capture.Session, error) {
	id := r.opened.Add(1)
	start := time.Now()

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), r.allocatorOptions()...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	s := &Session{
		id:          id,
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
		allocCancel: allocCancel,
		blocklist:   r.blocklist,
		state:       newPageState(),
		logger:      r.logger.With(zap.Int64("context_id", id)),
		onClose:     func() { r.live.Add(-1) },
	}

	startCtx, cancel := context.WithTimeout(ctx, r.config.StartTimeout)
	defer cancel()
	stop := context.AfterFunc(startCtx, tabCancel)

	// First Run on tabCtx launches the browser; it must not use a derived context
	err := chromedp.Run(tabCtx, r.setupTasks(s)...)
	if !stop() {
		err = errors.Join(err, startCtx.Err())
	}
	if err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("%w: %v", ErrBrowserStart, err)
	}

	r.live.Add(1)
	s.logger.Debug("Capture context started",
		zap.String("browser_version", s.browserVersion),
		zap.Duration("startup", time.Since(start)))

	return s, nil
}

// allocatorOptions builds the Chrome command line
func (r *Renderer) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", r.config.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", r.config.NoSandbox),
		chromedp.Flag("disable-setuid-sandbox", r.config.NoSandbox),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("disable-translate", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.WindowSize(r.config.ViewportWidth, r.config.ViewportHeight),
	)
	if r.config.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(r.config.ExecPath))
	}
	return opts
}

// setupTasks attaches listeners and applies emulation once per capture context
func (r *Renderer) setupTasks(s *Session) chromedp.Tasks {
	tasks := chromedp.Tasks{
		chromedp.ActionFunc(func(ctx context.Context) error {
			chromedp.ListenTarget(ctx, s.handleEvent)
			return nil
		}),
		network.Enable(),
		fetch.Enable(),
		page.Enable(),
		page.SetLifecycleEventsEnabled(true),
		emulation.SetDeviceMetricsOverride(int64(r.config.ViewportWidth), int64(r.config.ViewportHeight), 1.0, false),
		emulation.SetEmulatedMedia().WithMedia("screen"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, product, _, _, _, err := browser.GetVersion().Do(ctx)
			if err != nil {
				s.logger.Warn("Failed to capture browser version", zap.Error(err))
				return nil
			}
			s.browserVersion = product
			return nil
		}),
	}
	if r.config.UserAgent != "" {
		tasks = append(tasks, emulation.SetUserAgentOverride(r.config.UserAgent))
	}
	return tasks
}
