package capture

import (
	"context"
	"time"
)

// Counter is one animated numeric element and the value it animates towards
type Counter struct {
	Value  float64 `json:"value"`
	Target float64 `json:"target"`
}

// Settled reports whether the counter reached a nonzero target
func (c Counter) Settled() bool {
	return c.Value == c.Target && c.Value != 0
}

// CounterProbe reads and rewrites animated counters on a live page
type CounterProbe interface {
	ReadCounters(ctx context.Context, selector, targetAttr string) ([]Counter, error)
	// SnapCounters rewrites unsettled counters to their target and returns how many changed
	SnapCounters(ctx context.Context, selector, targetAttr string) (int, error)
}

// SettleCounters polls counters until all are settled or the step times out.
// On timeout every unsettled counter is snapped to its target and ErrWaitTimeout
// is returned. Pages with no matching counters, or already settled ones, are left untouched.
func SettleCounters(ctx context.Context, probe CounterProbe, step Step) error {
	step = step.WithDefaults()
	deadline := time.NewTimer(step.Timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(step.PollInterval)
	defer ticker.Stop()

	for {
		counters, err := probe.ReadCounters(ctx, step.Selector, step.TargetAttr)
		if err != nil {
			return err
		}
		if allSettled(counters) {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			if _, err := probe.SnapCounters(ctx, step.Selector, step.TargetAttr); err != nil {
				return err
			}
			return ErrWaitTimeout
		case <-ticker.C:
		}
	}
}

func allSettled(counters []Counter) bool {
	for _, c := range counters {
		if !c.Settled() {
			return false
		}
	}
	return true
}

// Scroller moves a live page's viewport
type Scroller interface {
	// ScrollStep scrolls one viewport down and reports whether the bottom was reached
	ScrollStep(ctx context.Context) (bool, error)
	ScrollTop(ctx context.Context) error
}

// maxScrollSteps bounds pages that keep growing while being scrolled
const maxScrollSteps = 200

// SweepScroll scrolls to the bottom with a pause between moves so lazy content
// loads, then returns to the top. Running out of time returns ErrWaitTimeout
// after scrolling back up.
func SweepScroll(ctx context.Context, scroller Scroller, step Step) error {
	step = step.WithDefaults()
	deadline := time.Now().Add(step.Timeout)

	for i := 0; i < maxScrollSteps; i++ {
		atBottom, err := scroller.ScrollStep(ctx)
		if err != nil {
			return err
		}
		if atBottom {
			return scroller.ScrollTop(ctx)
		}
		if time.Now().Add(step.Pause).After(deadline) {
			if err := scroller.ScrollTop(ctx); err != nil {
				return err
			}
			return ErrWaitTimeout
		}
		if err := Sleep(ctx, step.Pause); err != nil {
			return err
		}
	}

	return scroller.ScrollTop(ctx)
}

// Sleep waits for d or until ctx is done
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
