package capture_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edgecomet/pdfbatch/internal/capture"
	"github.com/edgecomet/pdfbatch/internal/capture/capturetest"
)

const testURL = "https://example.com/cpc/"

func openSession(t *testing.T, pages map[string]capturetest.Page) (*capturetest.Renderer, capture.Session) {
	t.Helper()
	r := capturetest.NewRenderer(pages)
	s, err := r.Open(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return r, s
}

func TestCapture_Success(t *testing.T) {
	_, s := openSession(t, map[string]capturetest.Page{
		testURL: {ScrollSize: capture.ContentBox{Width: 1200, Height: 3400}},
	})

	res := capture.Capture(context.Background(), s, capture.Request{
		URL:      testURL,
		Policy:   capture.NewPolicy(capture.NetworkIdle(time.Second)),
		WidthCap: 1280,
	}, zap.NewNop())

	require.True(t, res.OK())
	assert.Nil(t, res.Failure)
	assert.Equal(t, testURL, res.URL)
	assert.Equal(t, capture.ContentBox{Width: 1200, Height: 3400}, res.Success.Box)
	assert.Equal(t, capturetest.Document(testURL, res.Success.Box), res.Success.Document)
	assert.Empty(t, res.Warnings)
}

func TestCapture_WidthClamp(t *testing.T) {
	tests := []struct {
		name     string
		scroll   int
		cap      int
		expected int
	}{
		{name: "wider than cap", scroll: 2500, cap: 1280, expected: 1280},
		{name: "equal to cap", scroll: 1920, cap: 1920, expected: 1920},
		{name: "narrower than cap", scroll: 800, cap: 1920, expected: 800},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, s := openSession(t, map[string]capturetest.Page{
				testURL: {ScrollSize: capture.ContentBox{Width: tt.scroll, Height: 900}},
			})

			res := capture.Capture(context.Background(), s, capture.Request{URL: testURL, WidthCap: tt.cap}, zap.NewNop())

			require.True(t, res.OK())
			assert.Equal(t, tt.expected, res.Success.Box.Width)
			assert.LessOrEqual(t, res.Success.Box.Width, tt.cap)
			assert.Equal(t, 900, res.Success.Box.Height)
		})
	}
}

func TestCapture_FailureReasons(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name   string
		page   capturetest.Page
		policy capture.Policy
		reason capture.Reason
		errIs  error
	}{
		{
			name:   "not found status",
			page:   capturetest.Page{Status: 404},
			reason: capture.ReasonNavigation,
		},
		{
			name:   "server error status",
			page:   capturetest.Page{Status: 503},
			reason: capture.ReasonNavigation,
		},
		{
			name:   "dns failure",
			page:   capturetest.Page{NavigateErr: errors.New("net::ERR_NAME_NOT_RESOLVED")},
			reason: capture.ReasonNavigation,
		},
		{
			name:   "non-timeout readiness error",
			page:   capturetest.Page{StepErrs: map[capture.StepKind]error{capture.StepScrollSweep: boom}},
			policy: capture.NewPolicy(capture.ScrollSweep(0, time.Second)),
			reason: capture.ReasonReadiness,
		},
		{
			name:   "measurement error",
			page:   capturetest.Page{MeasureErr: boom},
			reason: capture.ReasonMeasurement,
		},
		{
			name:   "zero height box",
			page:   capturetest.Page{ScrollSize: capture.ContentBox{Width: 800, Height: 0}},
			reason: capture.ReasonMeasurement,
		},
		{
			name:   "emission error",
			page:   capturetest.Page{EmitErr: boom},
			reason: capture.ReasonEmission,
		},
		{
			name:   "panic during emission",
			page:   capturetest.Page{PanicOn: capture.ReasonEmission},
			reason: capture.ReasonEmission,
		},
		{
			name:   "panic during navigation",
			page:   capturetest.Page{PanicOn: capture.ReasonNavigation},
			reason: capture.ReasonNavigation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, s := openSession(t, map[string]capturetest.Page{testURL: tt.page})

			res := capture.Capture(context.Background(), s, capture.Request{URL: testURL, Policy: tt.policy}, zap.NewNop())

			require.False(t, res.OK())
			assert.Nil(t, res.Success)
			require.NotNil(t, res.Failure)
			assert.Equal(t, tt.reason, res.Failure.Reason)
			assert.NotEmpty(t, res.Failure.Message)
		})
	}
}

func TestCapture_NavigationFailureSkipsLaterStages(t *testing.T) {
	r, s := openSession(t, map[string]capturetest.Page{testURL: {Status: 404}})

	res := capture.Capture(context.Background(), s, capture.Request{
		URL:    testURL,
		Policy: capture.NewPolicy(capture.NetworkIdle(time.Second), capture.ScrollSweep(0, time.Second)),
	}, zap.NewNop())

	require.False(t, res.OK())
	assert.Empty(t, r.Steps(), "readiness must not run after a failed navigation")
}

func TestCapture_ReadinessTimeoutIsWarning(t *testing.T) {
	r, s := openSession(t, map[string]capturetest.Page{
		testURL: {StepErrs: map[capture.StepKind]error{
			capture.StepAnimatedCounterSettle: capture.ErrWaitTimeout,
			capture.StepNetworkIdle:           capture.ErrWaitTimeout,
		}},
	})

	policy := capture.NewPolicy(
		capture.NetworkIdle(time.Second),
		capture.AnimatedCounterSettle(".counter", time.Second, 10*time.Millisecond),
		capture.ScrollSweep(0, time.Second),
	)

	res := capture.Capture(context.Background(), s, capture.Request{URL: testURL, Policy: policy}, zap.NewNop())

	require.True(t, res.OK(), "timeouts never fail the capture")
	assert.Equal(t, []capture.Warning{
		{Step: capture.StepNetworkIdle, URL: testURL, Reason: capture.WarningTimeout},
		{Step: capture.StepAnimatedCounterSettle, URL: testURL, Reason: capture.WarningTimeout},
	}, res.Warnings)
	assert.Equal(t, []capture.StepKind{
		capture.StepNetworkIdle,
		capture.StepAnimatedCounterSettle,
		capture.StepScrollSweep,
	}, r.Steps(), "steps after a timeout still run")
}

func TestCapture_CancelledContext(t *testing.T) {
	_, s := openSession(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := capture.Capture(ctx, s, capture.Request{URL: testURL}, zap.NewNop())

	require.False(t, res.OK())
	assert.Equal(t, capture.ReasonCancelled, res.Failure.Reason)
}

func TestCapture_EmptyURL(t *testing.T) {
	_, s := openSession(t, nil)

	res := capture.Capture(context.Background(), s, capture.Request{}, zap.NewNop())

	require.False(t, res.OK())
	assert.Equal(t, capture.ReasonNavigation, res.Failure.Reason)
}

func TestCapture_FailureIsIsolatedWithinSession(t *testing.T) {
	a, b, c := "https://example.com/a", "https://example.com/b", "https://example.com/c"
	_, s := openSession(t, map[string]capturetest.Page{b: {Status: 404}})

	var results []capture.Result
	for _, u := range []string{a, b, c} {
		results = append(results, capture.Capture(context.Background(), s, capture.Request{URL: u}, zap.NewNop()))
	}

	assert.True(t, results[0].OK())
	assert.False(t, results[1].OK())
	assert.True(t, results[2].OK())
	assert.Equal(t, capturetest.Document(c, results[2].Success.Box), results[2].Success.Document)
}

type slowSession struct {
	capture.Session
}

// WaitFor ignores its own budget and blocks until the context deadline
func (s slowSession) WaitFor(ctx context.Context, step capture.Step) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestApplyPolicy_HardDeadlineBecomesWarning(t *testing.T) {
	_, s := openSession(t, nil)

	step := capture.Step{Kind: capture.StepExpandAccordions, Timeout: 10 * time.Millisecond}
	warnings, err := capture.ApplyPolicy(context.Background(), slowSession{s}, testURL, capture.NewPolicy(step), zap.NewNop())

	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Equal(t, capture.StepExpandAccordions, warnings[0].Step)
}

func TestApplyPolicy_ParentCancellation(t *testing.T) {
	_, s := openSession(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	step := capture.Step{Kind: capture.StepExpandAccordions, Timeout: time.Minute}
	_, err := capture.ApplyPolicy(ctx, slowSession{s}, testURL, capture.NewPolicy(step), zap.NewNop())

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
