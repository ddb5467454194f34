package env

import "github.com/wipesim/wipesim/sim"

// Termination policy names.
const (
	TerminateMaxSteps        = "max-steps"
	TerminateHorizon         = "horizon"
	TerminateDeliveredTarget = "delivered-target"
	TerminateNever           = "never"
)

// TerminationPolicy decides whether an episode is over after a step.
type TerminationPolicy interface {
	Name() string
	Reset()
	Done(st *StepStats) bool
}

// TerminationFunc adapts a stateless predicate to TerminationPolicy.
type TerminationFunc func(st *StepStats) bool

func (f TerminationFunc) Name() string            { return "func" }
func (f TerminationFunc) Reset()                  {}
func (f TerminationFunc) Done(st *StepStats) bool { return f(st) }

type namedTermination struct {
	name string
	fn   TerminationFunc
}

func (n namedTermination) Name() string            { return n.name }
func (n namedTermination) Reset()                  {}
func (n namedTermination) Done(st *StepStats) bool { return n.fn(st) }

// NewTerminationPolicy builds the policy described by spec.
func NewTerminationPolicy(spec TerminationSpec) (TerminationPolicy, error) {
	if err := spec.validate(); err != nil {
		return nil, err
	}
	switch spec.Policy {
	case TerminateMaxSteps:
		limit := spec.MaxSteps
		return namedTermination{spec.Policy, func(st *StepStats) bool { return st.Step >= limit }}, nil
	case TerminateHorizon:
		horizon := sim.FromSeconds(spec.Horizon)
		return namedTermination{spec.Policy, func(st *StepStats) bool { return st.Now >= horizon }}, nil
	case TerminateDeliveredTarget:
		target := spec.DeliveredTarget
		return namedTermination{spec.Policy, func(st *StepStats) bool { return st.GatewayFrames >= target }}, nil
	default:
		return namedTermination{TerminateNever, func(*StepStats) bool { return false }}, nil
	}
}
