package capture

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// StepKind names a readiness step
type StepKind string

const (
	StepNetworkIdle           StepKind = "network_idle"
	StepFixedDelay            StepKind = "fixed_delay"
	StepAnimatedCounterSettle StepKind = "animated_counter_settle"
	StepScrollSweep           StepKind = "scroll_sweep"

	// DOM mutation steps. Each is optional, idempotent and bounded by its own timeout.
	StepHideSelectors    StepKind = "hide_selectors"
	StepRemoveSelectors  StepKind = "remove_selectors"
	StepExpandAccordions StepKind = "expand_accordions"
	StepReplaceIframes   StepKind = "replace_iframes"
)

// Lifecycle events a network idle step can wait for
const (
	EventNetworkIdle       = "networkIdle"       // no connections for 500ms
	EventNetworkAlmostIdle = "networkAlmostIdle" // at most 2 connections for 500ms
)

const (
	DefaultStepTimeout   = 10 * time.Second
	DefaultPollInterval  = 200 * time.Millisecond
	DefaultScrollPause   = 250 * time.Millisecond
	DefaultCounterTarget = "data-target"
)

// Step is one bounded wait or page mutation applied before measurement.
// Only the fields relevant to Kind are read.
type Step struct {
	Kind    StepKind
	Timeout time.Duration

	// fixed_delay
	Delay time.Duration

	// network_idle
	Event string

	// animated_counter_settle
	Selector     string
	TargetAttr   string
	PollInterval time.Duration

	// scroll_sweep
	Pause time.Duration

	// hide_selectors, remove_selectors
	Selectors []string
}

// NetworkIdle waits for the page's network to go quiet
func NetworkIdle(timeout time.Duration) Step {
	return Step{Kind: StepNetworkIdle, Timeout: timeout, Event: EventNetworkAlmostIdle}
}

// FixedDelay sleeps for d
func FixedDelay(d time.Duration) Step {
	return Step{Kind: StepFixedDelay, Delay: d}
}

// AnimatedCounterSettle polls counters matching selector until their text equals the target attribute
func AnimatedCounterSettle(selector string, timeout, poll time.Duration) Step {
	return Step{
		Kind:         StepAnimatedCounterSettle,
		Selector:     selector,
		TargetAttr:   DefaultCounterTarget,
		Timeout:      timeout,
		PollInterval: poll,
	}
}

// ScrollSweep scrolls to the bottom one viewport at a time, pausing between moves
func ScrollSweep(pause, timeout time.Duration) Step {
	return Step{Kind: StepScrollSweep, Pause: pause, Timeout: timeout}
}

// HideSelectors injects a display:none rule for the given selectors
func HideSelectors(selectors ...string) Step {
	return Step{Kind: StepHideSelectors, Selectors: selectors, Timeout: DefaultStepTimeout}
}

// RemoveSelectors deletes matching elements from the DOM
func RemoveSelectors(selectors ...string) Step {
	return Step{Kind: StepRemoveSelectors, Selectors: selectors, Timeout: DefaultStepTimeout}
}

// ExpandAccordions opens collapsed details and aria-expanded toggles
func ExpandAccordions(timeout time.Duration) Step {
	return Step{Kind: StepExpandAccordions, Timeout: timeout}
}

// ReplaceIframes swaps cross-origin iframes for a same-size link placeholder
func ReplaceIframes(timeout time.Duration) Step {
	return Step{Kind: StepReplaceIframes, Timeout: timeout}
}

// WithDefaults fills zero-valued fields for the step's kind
func (s Step) WithDefaults() Step {
	if s.Timeout <= 0 {
		s.Timeout = DefaultStepTimeout
	}
	switch s.Kind {
	case StepNetworkIdle:
		if s.Event == "" {
			s.Event = EventNetworkAlmostIdle
		}
	case StepAnimatedCounterSettle:
		if s.TargetAttr == "" {
			s.TargetAttr = DefaultCounterTarget
		}
		if s.PollInterval <= 0 {
			s.PollInterval = DefaultPollInterval
		}
		if s.Selector == "" {
			s.Selector = "[" + s.TargetAttr + "]"
		}
	case StepScrollSweep:
		if s.Pause <= 0 {
			s.Pause = DefaultScrollPause
		}
	}
	return s
}

// Budget is the longest the step may run before it is abandoned
func (s Step) Budget() time.Duration {
	if s.Kind == StepFixedDelay {
		return s.Delay
	}
	return s.Timeout
}

// Validate checks the fields the step's kind depends on
func (s Step) Validate() error {
	switch s.Kind {
	case StepNetworkIdle:
		if s.Event != "" && s.Event != EventNetworkIdle && s.Event != EventNetworkAlmostIdle {
			return fmt.Errorf("%w: network_idle event must be %s or %s, got %q",
				ErrInvalidPolicy, EventNetworkIdle, EventNetworkAlmostIdle, s.Event)
		}
	case StepFixedDelay:
		if s.Delay <= 0 {
			return fmt.Errorf("%w: fixed_delay requires a positive delay", ErrInvalidPolicy)
		}
	case StepAnimatedCounterSettle:
		if s.PollInterval < 0 {
			return fmt.Errorf("%w: animated_counter_settle poll interval must not be negative", ErrInvalidPolicy)
		}
	case StepScrollSweep:
		if s.Pause < 0 {
			return fmt.Errorf("%w: scroll_sweep pause must not be negative", ErrInvalidPolicy)
		}
	case StepHideSelectors, StepRemoveSelectors:
		if SanitizeSelectors(s.Selectors) == "" {
			return fmt.Errorf("%w: %s requires at least one selector", ErrInvalidPolicy, s.Kind)
		}
	case StepExpandAccordions, StepReplaceIframes:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStep, s.Kind)
	}

	if s.Timeout < 0 {
		return fmt.Errorf("%w: %s timeout must not be negative", ErrInvalidPolicy, s.Kind)
	}
	return nil
}

// Policy is an ordered list of readiness steps
type Policy struct {
	Steps []Step
}

// NewPolicy builds a policy from steps, filling per-kind defaults
func NewPolicy(steps ...Step) Policy {
	p := Policy{Steps: make([]Step, len(steps))}
	for i, s := range steps {
		p.Steps[i] = s.WithDefaults()
	}
	return p
}

// DefaultPolicy waits for the network to settle and then for animated counters to finish
func DefaultPolicy() Policy {
	return NewPolicy(
		NetworkIdle(DefaultNavigationTimeout),
		ScrollSweep(DefaultScrollPause, 30*time.Second),
		AnimatedCounterSettle("", DefaultStepTimeout, DefaultPollInterval),
		FixedDelay(500*time.Millisecond),
	)
}

// Validate checks every step
func (p Policy) Validate() error {
	for i, s := range p.Steps {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
	}
	return nil
}

// With returns a copy of the policy with extra steps appended
func (p Policy) With(steps ...Step) Policy {
	out := Policy{Steps: make([]Step, 0, len(p.Steps)+len(steps))}
	out.Steps = append(out.Steps, p.Steps...)
	for _, s := range steps {
		out.Steps = append(out.Steps, s.WithDefaults())
	}
	return out
}

// unsafeSelectorChars matches anything that could escape a CSS selector list
var unsafeSelectorChars = regexp.MustCompile(`[^a-zA-Z0-9.#,\s:_\-\[\]="]`)

// SanitizeSelectors joins selectors into one CSS selector list, dropping
// characters that could close the rule or start a new declaration.
func SanitizeSelectors(selectors []string) string {
	parts := make([]string, 0, len(selectors))
	for _, sel := range selectors {
		for _, piece := range strings.Split(sel, ",") {
			clean := strings.TrimSpace(unsafeSelectorChars.ReplaceAllString(piece, ""))
			if clean != "" {
				parts = append(parts, clean)
			}
		}
	}
	return strings.Join(parts, ", ")
}
