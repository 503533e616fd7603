package capture

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStep_WithDefaults(t *testing.T) {
	t.Run("counter settle fills selector and poll interval", func(t *testing.T) {
		s := Step{Kind: StepAnimatedCounterSettle}.WithDefaults()
		assert.Equal(t, DefaultStepTimeout, s.Timeout)
		assert.Equal(t, DefaultPollInterval, s.PollInterval)
		assert.Equal(t, DefaultCounterTarget, s.TargetAttr)
		assert.Equal(t, "[data-target]", s.Selector)
	})

	t.Run("network idle defaults to almost idle", func(t *testing.T) {
		s := Step{Kind: StepNetworkIdle}.WithDefaults()
		assert.Equal(t, EventNetworkAlmostIdle, s.Event)
	})

	t.Run("explicit values are kept", func(t *testing.T) {
		s := ScrollSweep(time.Second, time.Minute).WithDefaults()
		assert.Equal(t, time.Second, s.Pause)
		assert.Equal(t, time.Minute, s.Timeout)
	})
}

func TestStep_Budget(t *testing.T) {
	assert.Equal(t, 3*time.Second, FixedDelay(3*time.Second).Budget())
	assert.Equal(t, 7*time.Second, NetworkIdle(7*time.Second).Budget())
}

func TestStep_Validate(t *testing.T) {
	tests := []struct {
		name    string
		step    Step
		wantErr error
	}{
		{name: "network idle", step: NetworkIdle(time.Second)},
		{name: "network idle bad event", step: Step{Kind: StepNetworkIdle, Event: "load"}, wantErr: ErrInvalidPolicy},
		{name: "fixed delay", step: FixedDelay(time.Second)},
		{name: "fixed delay zero", step: FixedDelay(0), wantErr: ErrInvalidPolicy},
		{name: "counter", step: AnimatedCounterSettle(".stat", time.Second, 100*time.Millisecond)},
		{name: "scroll", step: ScrollSweep(100*time.Millisecond, time.Second)},
		{name: "hide", step: HideSelectors("header", "footer")},
		{name: "hide only unsafe chars", step: HideSelectors("{};"), wantErr: ErrInvalidPolicy},
		{name: "remove without selectors", step: RemoveSelectors(), wantErr: ErrInvalidPolicy},
		{name: "accordions", step: ExpandAccordions(time.Second)},
		{name: "iframes", step: ReplaceIframes(time.Second)},
		{name: "negative timeout", step: Step{Kind: StepExpandAccordions, Timeout: -time.Second}, wantErr: ErrInvalidPolicy},
		{name: "unknown kind", step: Step{Kind: "wiggle"}, wantErr: ErrUnknownStep},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.step.Validate()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPolicy(t *testing.T) {
	t.Run("default policy is valid", func(t *testing.T) {
		require.NoError(t, DefaultPolicy().Validate())
		assert.Equal(t, StepNetworkIdle, DefaultPolicy().Steps[0].Kind)
	})

	t.Run("validate reports step index", func(t *testing.T) {
		p := NewPolicy(NetworkIdle(time.Second), Step{Kind: "bogus"})
		err := p.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "step 1")
	})

	t.Run("with appends without mutating", func(t *testing.T) {
		base := NewPolicy(NetworkIdle(time.Second))
		extended := base.With(HideSelectors(".cookie-banner"))

		assert.Len(t, base.Steps, 1)
		require.Len(t, extended.Steps, 2)
		assert.Equal(t, StepHideSelectors, extended.Steps[1].Kind)
	})
}

func TestSanitizeSelectors(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected string
	}{
		{name: "plain list", input: []string{"header, footer"}, expected: "header, footer"},
		{name: "multiple entries", input: []string{"header", ".nav-bar", "#promo"}, expected: "header, .nav-bar, #promo"},
		{name: "pseudo class kept", input: []string{"li:first-child"}, expected: "li:first-child"},
		{name: "attribute selector kept", input: []string{`[data-role="ad"]`}, expected: `[data-role="ad"]`},
		{name: "rule injection stripped", input: []string{"header { color: red } body"}, expected: "header  color: red  body"},
		{name: "statement terminators stripped", input: []string{"footer;</style><script>"}, expected: "footerstylescript"},
		{name: "empty pieces dropped", input: []string{" , ", "", "aside"}, expected: "aside"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SanitizeSelectors(tt.input))
		})
	}
}
