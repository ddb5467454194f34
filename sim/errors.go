package sim

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is. Every typed error below matches exactly one of them.
var (
	ErrInvalidSchedule = errors.New("invalid schedule")
	ErrInvalidAction   = errors.New("invalid action")
	ErrSimulation      = errors.New("simulation failed")
	ErrConfiguration   = errors.New("invalid configuration")
)

// InvalidScheduleError reports an attempt to place an event in the past,
// on an unknown entity, or on a simulator that already aborted.
type InvalidScheduleError struct {
	Owner  EntityID
	Now    Time
	At     Time
	Reason string
}

func (e *InvalidScheduleError) Error() string {
	return fmt.Sprintf("invalid schedule for entity %d at tick %d (now %d): %s", e.Owner, e.At, e.Now, e.Reason)
}

func (e *InvalidScheduleError) Is(target error) bool { return target == ErrInvalidSchedule }

// InvalidActionError reports an action outside the declared action space.
type InvalidActionError struct {
	Action []float64
	Space  string
	Reason string
}

func (e *InvalidActionError) Error() string {
	return fmt.Sprintf("action %v not in %s: %s", e.Action, e.Space, e.Reason)
}

func (e *InvalidActionError) Is(target error) bool { return target == ErrInvalidAction }

// SimulationError wraps a fault raised by an entity callback. The simulator
// that produced it is aborted and keeps returning it.
type SimulationError struct {
	EntityID  EntityID
	Entity    string
	Time      Time
	EventKind string
	Err       error
}

func (e *SimulationError) Error() string {
	name := e.Entity
	if name == "" {
		name = "kernel"
	}
	return fmt.Sprintf("entity %d (%s) failed handling %q at tick %d: %v", e.EntityID, name, e.EventKind, e.Time, e.Err)
}

func (e *SimulationError) Unwrap() error { return e.Err }

func (e *SimulationError) Is(target error) bool { return target == ErrSimulation }

// ConfigurationError reports an invalid configuration field.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// ConfigErrorf is shorthand for building a ConfigurationError.
func ConfigErrorf(field, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
