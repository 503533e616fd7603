package config

import (
	"fmt"

	"github.com/edgecomet/pdfbatch/internal/capture"
	"github.com/edgecomet/pdfbatch/pkg/types"
)

// StepConfig is one readiness step in YAML. Fields not used by Type are ignored.
//
//	readiness:
//	  - type: network_idle
//	    timeout: 20s
//	  - type: animated_counter_settle
//	    selector: ".counter"
//	    poll_interval: 200ms
type StepConfig struct {
	Type         string         `yaml:"type"`
	Timeout      types.Duration `yaml:"timeout,omitempty"`
	Delay        types.Duration `yaml:"delay,omitempty"`
	Event        string         `yaml:"event,omitempty"`
	Selector     string         `yaml:"selector,omitempty"`
	TargetAttr   string         `yaml:"target_attr,omitempty"`
	PollInterval types.Duration `yaml:"poll_interval,omitempty"`
	Pause        types.Duration `yaml:"pause,omitempty"`
	Selectors    []string       `yaml:"selectors,omitempty"`
}

// Step converts to a capture step with per-kind defaults filled
func (s StepConfig) Step() capture.Step {
	return capture.Step{
		Kind:         capture.StepKind(s.Type),
		Timeout:      s.Timeout.ToDuration(),
		Delay:        s.Delay.ToDuration(),
		Event:        s.Event,
		Selector:     s.Selector,
		TargetAttr:   s.TargetAttr,
		PollInterval: s.PollInterval.ToDuration(),
		Pause:        s.Pause.ToDuration(),
		Selectors:    s.Selectors,
	}.WithDefaults()
}

// BuildPolicy converts YAML steps in order. No steps means capture.DefaultPolicy.
func BuildPolicy(steps []StepConfig) (capture.Policy, error) {
	if len(steps) == 0 {
		return capture.DefaultPolicy(), nil
	}

	policy := capture.Policy{Steps: make([]capture.Step, 0, len(steps))}
	for i, sc := range steps {
		if sc.Type == "" {
			return capture.Policy{}, fmt.Errorf("step %d: type is required", i)
		}
		policy.Steps = append(policy.Steps, sc.Step())
	}
	if err := policy.Validate(); err != nil {
		return capture.Policy{}, err
	}
	return policy, nil
}
